// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/aleutian-ai/toolhost/internal/jsonrpc"
	"github.com/aleutian-ai/toolhost/internal/manifest"
	"github.com/aleutian-ai/toolhost/internal/registry"
	"github.com/aleutian-ai/toolhost/internal/transport"
)

// clientName/clientVersion identify this host in the initialize handshake.
const (
	clientName    = "toolhost"
	clientVersion = "0.1.0"
)

// requestChannelCapacity is the bounded capacity of the channel between a
// caller and the writer task, per spec §5's backpressure policy.
const requestChannelCapacity = 32

// pendingEntry is spec §3's PendingRequest, minus the request id (which is
// the map key in sessionCore.pending).
type pendingEntry struct {
	method     string
	completion chan jsonrpc.Response
}

// sessionCore is the small inner struct spec §9 calls for to flatten the
// cyclic ownership between a Session and the tasks that mutate its state:
// each of the five goroutines holds a pointer to sessionCore, never to the
// outer ServerSession, so there is no reference cycle back through the
// session to its own tasks.
type sessionCore struct {
	mu      sync.Mutex
	pending map[uint64]*pendingEntry

	capMu        sync.RWMutex
	capabilities *manifest.ServerCapabilities

	shutdownFlag atomic.Bool
}

type requestJob struct {
	req        jsonrpc.Request
	completion chan jsonrpc.Response
}

type notifyJob struct {
	notif jsonrpc.Notification
}

type writeJob struct {
	req   *jsonrpc.Request
	notif *jsonrpc.Notification
}

// ServerSession owns one tool server's channel, its five I/O goroutines, and
// its pending-request table, per spec §3/§4.2.
type ServerSession struct {
	name     string
	config   manifest.ToolServerConfig
	registry *registry.Registry
	log      *slog.Logger

	channel transport.Channel
	core    *sessionCore

	state atomic.Int32

	requestCh  chan requestJob
	notifyCh   chan notifyJob
	writeCh    chan writeJob
	shutdownCh chan struct{}
	writerDone chan struct{}
	readDone   chan struct{}
	stderrDone chan struct{}

	shutdownOnce sync.Once
	takeOnce     sync.Once
}

// Launch spawns config's channel and starts the session's five tasks, per
// spec §4.2. It returns the session immediately and an initialization
// future that resolves nil on a successful initialize handshake, or an
// error otherwise. The session rejects SendRequest with ErrNotReady until
// that future resolves successfully.
func Launch(ctx context.Context, config manifest.ToolServerConfig, reg *registry.Registry, log *slog.Logger) (*ServerSession, <-chan error) {
	initFuture := make(chan error, 1)

	ch, err := transport.Launch(config)
	if err != nil {
		initFuture <- fmt.Errorf("session: launch %q: %w", config.Name, err)
		return nil, initFuture
	}

	return NewWithChannel(ctx, ch, config, reg, log)
}

// NewWithChannel starts a session's five tasks and its initialize handshake
// over an already-established channel, skipping transport.Launch's own
// dial/spawn step. Launch is the normal entry point; this is exported so
// callers that need to supply a non-standard channel (tests, or a future
// transport this package doesn't know how to dial itself) can still get a
// fully wired ServerSession.
func NewWithChannel(ctx context.Context, ch transport.Channel, config manifest.ToolServerConfig, reg *registry.Registry, log *slog.Logger) (*ServerSession, <-chan error) {
	initFuture := make(chan error, 1)

	s := &ServerSession{
		name:     config.Name,
		config:   config,
		registry: reg,
		log:      log,
		channel:  ch,
		core: &sessionCore{
			pending: make(map[uint64]*pendingEntry),
		},
		requestCh:  make(chan requestJob, requestChannelCapacity),
		notifyCh:   make(chan notifyJob, requestChannelCapacity),
		writeCh:    make(chan writeJob, requestChannelCapacity),
		shutdownCh: make(chan struct{}),
		writerDone: make(chan struct{}),
		readDone:   make(chan struct{}),
		stderrDone: make(chan struct{}),
	}
	s.setState(StateInitializing)

	go s.stderrDrain()
	go s.stdinWriter()
	go s.requestDispatcher()
	go s.notificationDispatcher()
	go s.stdoutReader()
	go s.runInitialize(ctx, initFuture)

	return s, initFuture
}

// Name returns the server name this session was launched for.
func (s *ServerSession) Name() string { return s.name }

// Config returns the immutable configuration this session was launched
// with.
func (s *ServerSession) Config() manifest.ToolServerConfig { return s.config }

// State returns the session's current lifecycle state.
func (s *ServerSession) State() State { return State(s.state.Load()) }

func (s *ServerSession) setState(st State) { s.state.Store(int32(st)) }

// Capabilities returns the capabilities discovered during initialize, or
// nil if initialize has not yet succeeded.
func (s *ServerSession) Capabilities() *manifest.ServerCapabilities {
	s.core.capMu.RLock()
	defer s.core.capMu.RUnlock()
	return s.core.capabilities
}

func (s *ServerSession) setCapabilities(caps manifest.ServerCapabilities) {
	s.core.capMu.Lock()
	s.core.capabilities = &caps
	s.core.capMu.Unlock()
}

// SendRequest forwards a request to the writer via the dispatcher and
// blocks on the completion handle, per spec §4.2's SendRequest contract.
// It does not apply a timeout; callers (the Host Supervisor) layer timeouts
// via ctx.
func (s *ServerSession) SendRequest(ctx context.Context, method string, params interface{}) (jsonrpc.Response, error) {
	if s.State() != StateReady {
		return jsonrpc.Response{}, ErrNotReady
	}
	return s.sendRequest(ctx, method, params)
}

// sendRequest is the internal form used both by public callers (after the
// Ready check) and by the initialize handshake itself (before the session
// is Ready).
func (s *ServerSession) sendRequest(ctx context.Context, method string, params interface{}) (jsonrpc.Response, error) {
	id := s.registry.Next()
	req := jsonrpc.NewRequest(id, method, params)
	completion := make(chan jsonrpc.Response, 1)

	select {
	case s.requestCh <- requestJob{req: req, completion: completion}:
	case <-ctx.Done():
		return jsonrpc.Response{}, ctx.Err()
	case <-s.shutdownCh:
		return jsonrpc.Response{}, ErrShutdown
	}

	select {
	case resp := <-completion:
		if resp.Error != nil {
			return resp, resp.Error
		}
		return resp, nil
	case <-ctx.Done():
		return jsonrpc.Response{}, ctx.Err()
	}
}

// SendNotification enqueues a fire-and-forget notification, per spec
// §4.2's SendNotification contract. It returns once enqueued; there is no
// delivery guarantee across a shutdown.
func (s *ServerSession) SendNotification(method string, params interface{}) error {
	notif := jsonrpc.NewNotification(method, params)
	select {
	case s.notifyCh <- notifyJob{notif: notif}:
		return nil
	case <-s.shutdownCh:
		return ErrShutdown
	}
}

// SetShutdown sets the shutdown flag exactly once. All dispatcher tasks
// exit after their next iteration; any remaining pending requests are
// completed with a Shutdown error. Idempotent: further calls are no-ops.
func (s *ServerSession) SetShutdown() {
	s.shutdownOnce.Do(func() {
		s.core.shutdownFlag.Store(true)
		s.setState(StateShutting)
		close(s.shutdownCh)
		s.drainPending(jsonrpc.CodeConnectionClosed, "session is shutting down")
	})
}

// TakeChannel takes exclusive ownership of the underlying transport channel
// for the shutdown path (spec §4.2's take_child_process). Returns nil if
// already taken.
func (s *ServerSession) TakeChannel() transport.Channel {
	var taken transport.Channel
	s.takeOnce.Do(func() {
		taken = s.channel
	})
	return taken
}

// ReadDone is closed once the stdout reader task has exited (EOF or
// framing error), signaling the session has reached StateExited.
func (s *ServerSession) ReadDone() <-chan struct{} { return s.readDone }

// =============================================================================
// Task 1: stderr drain
// =============================================================================

func (s *ServerSession) stderrDrain() {
	defer close(s.stderrDone)
	r := s.channel.Stderr()
	if r == nil {
		return
	}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		s.log.Warn(scanner.Text(), "server", s.name, "stream", "stderr")
	}
}

// =============================================================================
// Task 2: stdout reader (the heart, per spec §4.2)
// =============================================================================

func (s *ServerSession) stdoutReader() {
	defer close(s.readDone)
	for {
		raw, err := s.channel.ReadMessage()
		if err != nil {
			code := jsonrpc.CodeEOFDuringBody
			if errors.Is(err, io.EOF) {
				code = jsonrpc.CodeEOFDuringHeaders
			}
			s.log.Warn("session: transport read failed, draining pending requests",
				"server", s.name, "error", err)
			s.drainPending(code, err.Error())
			// A dead channel means the writer and dispatcher tasks have
			// nothing left to do either; close shutdownCh so they unblock
			// from their own <-s.shutdownCh selects instead of leaking
			// until some future, explicit Host.Shutdown call reaches them.
			s.SetShutdown()
			s.setState(StateExited)
			return
		}
		s.handleFrame(raw)
	}
}

// frameEnvelope is a loose peek at a frame's shape: enough to distinguish a
// response (has id, and result or error) from a notification (has method,
// no id), per spec §4.2's reader discipline.
type frameEnvelope struct {
	ID     *uint64         `json:"id"`
	Method string          `json:"method"`
	Result json.RawMessage `json:"result"`
	Error  *jsonrpc.Error  `json:"error"`
}

func (s *ServerSession) handleFrame(raw json.RawMessage) {
	var env frameEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		s.log.Warn("session: discarding unparseable frame", "server", s.name, "error", err)
		return
	}

	switch {
	case env.ID != nil && (env.Result != nil || env.Error != nil):
		s.deliverResponse(jsonrpc.Response{
			JSONRPC: jsonrpc.Version,
			ID:      *env.ID,
			Result:  env.Result,
			Error:   env.Error,
		})
	case env.Method != "":
		// Servers are not expected to originate requests in this spec;
		// log and ignore per spec §4.2.
		s.log.Debug("session: ignoring server-originated notification",
			"server", s.name, "method", env.Method)
	default:
		s.log.Warn("session: discarding frame with neither id nor method", "server", s.name)
	}
}

func (s *ServerSession) deliverResponse(resp jsonrpc.Response) {
	s.core.mu.Lock()
	entry, ok := s.core.pending[resp.ID]
	if ok {
		delete(s.core.pending, resp.ID)
	}
	s.core.mu.Unlock()

	if !ok {
		s.log.Debug("session: discarding response for unknown or late id",
			"server", s.name, "id", resp.ID)
		return
	}

	if resp.Error == nil && entry.method == "initialize" {
		var result manifest.InitializeResult
		if err := json.Unmarshal(resp.Result, &result); err != nil {
			s.log.Warn("session: malformed initialize result", "server", s.name, "error", err)
		} else {
			s.setCapabilities(result.Capabilities)
		}
	}

	select {
	case entry.completion <- resp:
	default:
		// Caller already gave up (e.g. its context was cancelled); the
		// completion channel is buffered 1 so this never blocks, and the
		// pending entry is already removed above.
	}
}

func (s *ServerSession) drainPending(code int, message string) {
	s.core.mu.Lock()
	entries := s.core.pending
	s.core.pending = make(map[uint64]*pendingEntry)
	s.core.mu.Unlock()

	for id, entry := range entries {
		select {
		case entry.completion <- jsonrpc.TransportError(id, code, message):
		default:
		}
	}
}

// =============================================================================
// Task 3: stdin writer
// =============================================================================

func (s *ServerSession) stdinWriter() {
	defer close(s.writerDone)
	for {
		var job writeJob
		select {
		case <-s.shutdownCh:
			return
		case job = <-s.writeCh:
		}
		var err error
		switch {
		case job.req != nil:
			err = s.channel.WriteMessage(*job.req)
		case job.notif != nil:
			err = s.channel.WriteMessage(*job.notif)
		}
		if err != nil {
			s.log.Error("session: write failed, writer exiting", "server", s.name, "error", err)
			return
		}
	}
}

// =============================================================================
// Task 4: request dispatcher
// =============================================================================

func (s *ServerSession) requestDispatcher() {
	for {
		select {
		case <-s.shutdownCh:
			s.drainQueuedRequests()
			return
		case job := <-s.requestCh:
			s.dispatchRequest(job)
		}
	}
}

func (s *ServerSession) dispatchRequest(job requestJob) {
	if s.core.shutdownFlag.Load() {
		job.completion <- jsonrpc.TransportError(job.req.ID, jsonrpc.CodeConnectionClosed, "session is shutting down")
		return
	}

	s.core.mu.Lock()
	s.core.pending[job.req.ID] = &pendingEntry{method: job.req.Method, completion: job.completion}
	s.core.mu.Unlock()

	select {
	case s.writeCh <- writeJob{req: &job.req}:
	case <-s.writerDone:
		s.core.mu.Lock()
		delete(s.core.pending, job.req.ID)
		s.core.mu.Unlock()
		job.completion <- jsonrpc.TransportError(job.req.ID, jsonrpc.CodeWriteFailure, "writer channel closed")
	}
}

func (s *ServerSession) drainQueuedRequests() {
	for {
		select {
		case job := <-s.requestCh:
			job.completion <- jsonrpc.TransportError(job.req.ID, jsonrpc.CodeConnectionClosed, "session is shutting down")
		default:
			return
		}
	}
}

// =============================================================================
// Task 5: notification dispatcher
// =============================================================================

func (s *ServerSession) notificationDispatcher() {
	for {
		select {
		case <-s.shutdownCh:
			return
		case job := <-s.notifyCh:
			s.dispatchNotification(job)
		}
	}
}

func (s *ServerSession) dispatchNotification(job notifyJob) {
	if s.core.shutdownFlag.Load() {
		return
	}
	select {
	case s.writeCh <- writeJob{notif: &job.notif}:
	case <-s.writerDone:
	}
}

// =============================================================================
// initialize handshake
// =============================================================================

func (s *ServerSession) runInitialize(ctx context.Context, initFuture chan<- error) {
	params := map[string]interface{}{
		"clientInfo": map[string]string{"name": clientName, "version": clientVersion},
	}
	resp, err := s.sendRequest(ctx, "initialize", params)
	if err != nil {
		initFuture <- fmt.Errorf("%w: %v", ErrInitializeFailed, err)
		return
	}
	if resp.Error != nil {
		initFuture <- fmt.Errorf("%w: %s (code %d)", ErrInitializeFailed, resp.Error.Message, resp.Error.Code)
		return
	}

	if err := s.SendNotification("initialized", nil); err != nil {
		s.log.Warn("session: failed to send initialized notification", "server", s.name, "error", err)
	}

	s.setState(StateReady)
	initFuture <- nil
}
