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
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aleutian-ai/toolhost/internal/jsonrpc"
	"github.com/aleutian-ai/toolhost/internal/manifest"
	"github.com/aleutian-ai/toolhost/internal/registry"
)

// ===========================================================================
// Test Setup
// ===========================================================================

// mockChannel is an in-memory transport.Channel standing in for a real
// subprocess or websocket connection, so session tests never spawn a
// process or open a socket.
type mockChannel struct {
	mu      sync.Mutex
	inbox   chan json.RawMessage
	sent    []json.RawMessage
	closed  bool
	failErr error
}

func newMockChannel() *mockChannel {
	return &mockChannel{inbox: make(chan json.RawMessage, 32)}
}

func (m *mockChannel) ReadMessage() (json.RawMessage, error) {
	msg, ok := <-m.inbox
	if !ok {
		return nil, io.EOF
	}
	return msg, nil
}

func (m *mockChannel) WriteMessage(v interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.sent = append(m.sent, data)
	return nil
}

func (m *mockChannel) Stderr() io.Reader { return nil }

func (m *mockChannel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.inbox)
	}
	return nil
}

func (m *mockChannel) Kill() error { return m.Close() }
func (m *mockChannel) Wait() error { return nil }

// push delivers a server-originated frame to the session's reader task.
func (m *mockChannel) push(t *testing.T, v interface{}) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	m.inbox <- data
}

// lastSentRequest decodes the most recently written frame as a request,
// failing the test if nothing has been sent yet.
func (m *mockChannel) lastSentRequest(t *testing.T) jsonrpc.Request {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent)
	var req jsonrpc.Request
	require.NoError(t, json.Unmarshal(m.sent[len(m.sent)-1], &req))
	return req
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestSession wires a ServerSession directly to a mockChannel, bypassing
// Launch's transport.Launch dial so tests never touch a real process.
func newTestSession(t *testing.T) (*ServerSession, *mockChannel) {
	t.Helper()
	ch := newMockChannel()
	s := &ServerSession{
		name:     "echo",
		config:   manifest.ToolServerConfig{Name: "echo", Command: []string{"echo"}},
		registry: registry.New(),
		log:      testLogger(),
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

	t.Cleanup(func() { ch.Close() })
	return s, ch
}

func waitForState(t *testing.T, s *ServerSession, want State, timeout time.Duration) {
	t.Helper()
	deadline := time.After(timeout)
	for {
		if s.State() == want {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for state %s, got %s", want, s.State())
		case <-time.After(time.Millisecond):
		}
	}
}

// ===========================================================================
// Tests
// ===========================================================================

func TestSendRequest_RejectsBeforeReady(t *testing.T) {
	s, _ := newTestSession(t)
	_, err := s.SendRequest(context.Background(), "tools/call", nil)
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestInitializeHandshake_SetsCapabilitiesAndReady(t *testing.T) {
	s, ch := newTestSession(t)
	initFuture := make(chan error, 1)
	go s.runInitialize(context.Background(), initFuture)

	deadline := time.After(2 * time.Second)
	select {
	case <-deadline:
		t.Fatal("timed out waiting for initialize request to be sent")
	case <-time.After(20 * time.Millisecond):
	}
	req := ch.lastSentRequest(t)
	require.Equal(t, "initialize", req.Method)

	result := manifest.InitializeResult{
		Capabilities: manifest.ServerCapabilities{
			Tools: []manifest.ToolDescriptor{{Name: "search"}},
		},
	}
	resultJSON, err := json.Marshal(result)
	require.NoError(t, err)
	ch.push(t, jsonrpc.Response{JSONRPC: jsonrpc.Version, ID: req.ID, Result: resultJSON})

	select {
	case err := <-initFuture:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for initialize future")
	}

	waitForState(t, s, StateReady, time.Second)
	caps := s.Capabilities()
	require.NotNil(t, caps)
	assert.Equal(t, "search", caps.Tools[0].Name)
}

func TestSendRequest_CorrelatesOutOfOrderResponses(t *testing.T) {
	s, ch := newTestSession(t)
	s.setState(StateReady)

	type result struct {
		id   uint64
		resp jsonrpc.Response
		err  error
	}
	results := make(chan result, 2)

	go func() {
		resp, err := s.SendRequest(context.Background(), "tools/call", map[string]string{"name": "a"})
		results <- result{resp: resp, err: err}
	}()
	go func() {
		resp, err := s.SendRequest(context.Background(), "tools/call", map[string]string{"name": "b"})
		results <- result{resp: resp, err: err}
	}()

	var firstReq, secondReq jsonrpc.Request
	require.Eventually(t, func() bool {
		ch.mu.Lock()
		defer ch.mu.Unlock()
		return len(ch.sent) >= 2
	}, 2*time.Second, 5*time.Millisecond)

	ch.mu.Lock()
	require.NoError(t, json.Unmarshal(ch.sent[0], &firstReq))
	require.NoError(t, json.Unmarshal(ch.sent[1], &secondReq))
	ch.mu.Unlock()

	// Respond out of order: second request's response arrives first.
	okResult, _ := json.Marshal(map[string]string{"ok": "true"})
	ch.push(t, jsonrpc.Response{JSONRPC: jsonrpc.Version, ID: secondReq.ID, Result: okResult})
	ch.push(t, jsonrpc.Response{JSONRPC: jsonrpc.Version, ID: firstReq.ID, Result: okResult})

	r1 := <-results
	r2 := <-results
	require.NoError(t, r1.err)
	require.NoError(t, r2.err)
	ids := map[uint64]bool{r1.resp.ID: true, r2.resp.ID: true}
	assert.True(t, ids[firstReq.ID])
	assert.True(t, ids[secondReq.ID])
}

func TestTransportFailure_DrainsPendingWithTransportError(t *testing.T) {
	s, ch := newTestSession(t)
	s.setState(StateReady)

	respCh := make(chan error, 1)
	go func() {
		_, err := s.SendRequest(context.Background(), "tools/call", nil)
		respCh <- err
	}()

	require.Eventually(t, func() bool {
		ch.mu.Lock()
		defer ch.mu.Unlock()
		return len(ch.sent) >= 1
	}, 2*time.Second, 5*time.Millisecond)

	ch.Close() // simulates the child process exiting mid-request

	select {
	case err := <-respCh:
		require.Error(t, err)
		var rpcErr *jsonrpc.Error
		require.ErrorAs(t, err, &rpcErr)
		assert.Equal(t, jsonrpc.CodeEOFDuringHeaders, rpcErr.Code)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for drained pending request")
	}

	waitForState(t, s, StateExited, time.Second)

	s.core.mu.Lock()
	assert.Empty(t, s.core.pending)
	s.core.mu.Unlock()
}

// TestTransportFailure_ReleasesWriterAndDispatcherTasks guards against a
// child-process crash (or any transport read failure) leaking the writer,
// request, and notification dispatcher goroutines: stdoutReader's error
// path must close shutdownCh itself rather than waiting for some future,
// explicit Host.Shutdown call that may never come.
func TestTransportFailure_ReleasesWriterAndDispatcherTasks(t *testing.T) {
	s, ch := newTestSession(t)
	s.setState(StateReady)

	ch.Close() // simulates the child process exiting

	waitForState(t, s, StateExited, time.Second)

	select {
	case <-s.shutdownCh:
	case <-time.After(time.Second):
		t.Fatal("shutdownCh was not closed after a transport read failure")
	}

	select {
	case <-s.writerDone:
	case <-time.After(time.Second):
		t.Fatal("stdinWriter did not exit after a transport read failure")
	}

	// With shutdownCh closed, SendNotification must reject rather than
	// block forever waiting for a dispatcher that has already exited.
	err := s.SendNotification("exit", nil)
	assert.ErrorIs(t, err, ErrShutdown)
}

func TestSetShutdown_IsIdempotentAndRejectsNewRequests(t *testing.T) {
	s, _ := newTestSession(t)
	s.setState(StateReady)

	s.SetShutdown()
	assert.NotPanics(t, func() { s.SetShutdown() })

	_, err := s.SendRequest(context.Background(), "tools/call", nil)
	assert.Error(t, err)
}

func TestSendNotification_DeliversWithoutWaitingForResponse(t *testing.T) {
	s, ch := newTestSession(t)
	s.setState(StateReady)

	err := s.SendNotification("progress", map[string]int{"percent": 50})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		ch.mu.Lock()
		defer ch.mu.Unlock()
		return len(ch.sent) == 1
	}, 2*time.Second, 5*time.Millisecond)

	ch.mu.Lock()
	var notif jsonrpc.Notification
	require.NoError(t, json.Unmarshal(ch.sent[0], &notif))
	ch.mu.Unlock()
	assert.Equal(t, "progress", notif.Method)
}

func TestTakeChannel_ReturnsNilOnSecondCall(t *testing.T) {
	s, ch := newTestSession(t)
	first := s.TakeChannel()
	assert.Equal(t, ch, first)

	second := s.TakeChannel()
	assert.Nil(t, second)
}
