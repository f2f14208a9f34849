// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package host implements the Host Supervisor of spec §4.1: it launches one
// ServerSession per enabled tool server, aggregates their capabilities under
// a "<server>/<tool>" namespace, dispatches caller tool calls to the right
// session under a per-tool timeout, and owns the six-step shutdown sequence.
package host

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aleutian-ai/toolhost/internal/jsonrpc"
	"github.com/aleutian-ai/toolhost/internal/manifest"
	"github.com/aleutian-ai/toolhost/internal/observability"
	"github.com/aleutian-ai/toolhost/internal/registry"
	"github.com/aleutian-ai/toolhost/internal/session"
	"github.com/aleutian-ai/toolhost/internal/timeoutpolicy"
)

// nameSeparator joins a server name and a tool/resource name into the
// aggregated capability namespace of spec §4.1 ("<server>/<tool>").
const nameSeparator = "/"

// defaultInitTimeout bounds how long Host construction waits for every
// session's initialize handshake to settle when the caller passes zero.
// toolhostd passes its config's init_timeout, which the HOST_INIT_TIMEOUT
// environment variable (whole seconds) overrides; New itself takes
// the deadline as a parameter so callers (tests, cmd/toolhostd) control it
// explicitly.
const defaultInitTimeout = 30 * time.Second

// ToolExecutor is the caller-facing surface a Host satisfies, mirroring the
// Rust McpHostInterface trait this module's spec was distilled from
// (SPEC_FULL.md §6). HTTP handlers and other callers should depend on this
// interface, not *Host, so tests can substitute a fake.
type ToolExecutor interface {
	ExecuteTool(ctx context.Context, server, tool string, args interface{}) (json.RawMessage, error)
	GetResource(ctx context.Context, server, resource string) (json.RawMessage, error)
	SendRequest(ctx context.Context, server, method string, params interface{}) (jsonrpc.Response, error)
	GetAllCapabilities() map[string]manifest.ServerCapabilities
	IsAutoExecute(server, tool string) bool
	AddToAutoExecute(server, tool string) error
	Shutdown(ctx context.Context)
}

// sessionEntry pairs a launched session with the config it was launched
// from, whose auto-execute set is persisted to Host.manifestPath when it
// changes.
type sessionEntry struct {
	sess   *session.ServerSession
	config manifest.ToolServerConfig
}

// Host is the Host Supervisor: the top-level object cmd/toolhostd
// constructs once per process.
type Host struct {
	log          *slog.Logger
	manifestPath string

	mu       sync.RWMutex
	sessions map[string]*sessionEntry

	reg *registry.Registry

	shutdownOnce sync.Once
}

// LaunchResult reports one server's outcome during New, per spec §4.1's
// partial-success semantics: a manifest with one broken entry must not
// prevent every other server from starting.
type LaunchResult struct {
	Server string
	Err    error
}

// New launches one session per enabled entry in configs concurrently,
// bounded by initTimeout (defaultInitTimeout if zero), and returns a Host
// holding every session that initialized successfully plus the per-server
// errors for the rest. New never returns a nil *Host as long as configs is
// non-empty and at least the errgroup itself could run; callers decide
// whether a partial launch is fatal.
func New(ctx context.Context, configs []manifest.ToolServerConfig, manifestPath string, log *slog.Logger, initTimeout time.Duration) (*Host, []LaunchResult) {
	if initTimeout <= 0 {
		initTimeout = defaultInitTimeout
	}
	if log == nil {
		log = slog.Default()
	}

	h := &Host{
		log:          log,
		manifestPath: manifestPath,
		sessions:     make(map[string]*sessionEntry),
		reg:          registry.New(),
	}

	launchCtx, cancel := context.WithTimeout(ctx, initTimeout)
	defer cancel()

	var mu sync.Mutex
	results := make([]LaunchResult, 0, len(configs))

	g, gCtx := errgroup.WithContext(launchCtx)
	for _, cfg := range configs {
		cfg := cfg
		if !cfg.Enabled {
			continue
		}
		g.Go(func() error {
			err := h.launchOne(gCtx, cfg)
			mu.Lock()
			results = append(results, LaunchResult{Server: cfg.Name, Err: err})
			mu.Unlock()
			// Partial failures are reported, not propagated: one broken
			// tool server must not cancel its siblings' initialize
			// handshakes (spec §4.1).
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Server < results[j].Server })
	return h, results
}

func (h *Host) launchOne(ctx context.Context, cfg manifest.ToolServerConfig) error {
	sess, initFuture := session.Launch(ctx, cfg, h.reg, h.log.With("server", cfg.Name))

	select {
	case err := <-initFuture:
		if err != nil {
			h.log.Warn("host: session failed to initialize", "server", cfg.Name, "error", err)
			observability.DefaultMetrics.RecordSessionSpawn(cfg.Name, false)
			return err
		}
	case <-ctx.Done():
		observability.DefaultMetrics.RecordSessionSpawn(cfg.Name, false)
		return fmt.Errorf("host: server %q: %w", cfg.Name, ctx.Err())
	}

	h.mu.Lock()
	h.sessions[cfg.Name] = &sessionEntry{sess: sess, config: cfg}
	h.mu.Unlock()

	observability.DefaultMetrics.RecordSessionSpawn(cfg.Name, true)
	h.log.Info("host: session ready", "server", cfg.Name)
	return nil
}

// lookup returns the sessionEntry for server, or an error matching spec
// §7's "unknown server" category.
func (h *Host) lookup(server string) (*sessionEntry, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	entry, ok := h.sessions[server]
	if !ok {
		return nil, fmt.Errorf("host: unknown server %q", server)
	}
	return entry, nil
}

// unwrapResult extracts the tool/resource server's actual output from a
// response envelope. Per spec §4.3 / §6, a tool server wraps its output
// under a nested "result" key (the mock scenario of spec §8 #1:
// `{result:{result:{"content":"hi"}}}` must surface as `{"content":"hi"}`
// to the caller), so the outer jsonrpc.Response.Result must itself be
// unmarshaled one level further before it's handed back.
func unwrapResult(resp jsonrpc.Response) (json.RawMessage, error) {
	if resp.Error != nil {
		return nil, resp.Error
	}
	var wrapper struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(resp.Result, &wrapper); err != nil {
		return nil, fmt.Errorf("host: unwrap result: %w", err)
	}
	return wrapper.Result, nil
}

// ExecuteTool dispatches an mcp/tool/execute request to server's session,
// bounded by the per-tool timeout resolved from internal/timeoutpolicy
// (spec §4.1 / §4.3 / §5).
func (h *Host) ExecuteTool(ctx context.Context, server, tool string, args interface{}) (json.RawMessage, error) {
	entry, err := h.lookup(server)
	if err != nil {
		return nil, err
	}

	ctx, span := observability.StartExecuteSpan(ctx, server, tool)
	defer span.End()

	timeout := timeoutpolicy.Resolve(server, tool)
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	params := map[string]interface{}{"tool_name": tool, "arguments": args}
	resp, err := entry.sess.SendRequest(callCtx, "mcp/tool/execute", params)
	duration := time.Since(start)
	if err == nil {
		var result json.RawMessage
		result, err = unwrapResult(resp)
		if err == nil {
			observability.DefaultMetrics.RecordExecute(server, tool, duration, true)
			observability.RecordExecuteSpan(ctx, server, tool, duration, true)
			return result, nil
		}
	}

	observability.DefaultMetrics.RecordExecute(server, tool, duration, false)
	observability.RecordExecuteSpan(ctx, server, tool, duration, false)
	return nil, err
}

// GetResource dispatches a resource/get request to server's session, using
// the same timeout policy as ExecuteTool (spec §4.1 / §4.3).
func (h *Host) GetResource(ctx context.Context, server, resource string) (json.RawMessage, error) {
	entry, err := h.lookup(server)
	if err != nil {
		return nil, err
	}

	ctx, span := observability.StartExecuteSpan(ctx, server, resource)
	defer span.End()

	timeout := timeoutpolicy.Resolve(server, resource)
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	params := map[string]interface{}{"name": resource}
	resp, err := entry.sess.SendRequest(callCtx, "resource/get", params)
	duration := time.Since(start)
	if err == nil {
		var result json.RawMessage
		result, err = unwrapResult(resp)
		if err == nil {
			observability.DefaultMetrics.RecordExecute(server, resource, duration, true)
			observability.RecordExecuteSpan(ctx, server, resource, duration, true)
			return result, nil
		}
	}

	observability.DefaultMetrics.RecordExecute(server, resource, duration, false)
	observability.RecordExecuteSpan(ctx, server, resource, duration, false)
	return nil, err
}

// SendRequest passes an arbitrary JSON-RPC method/params through to
// server's session verbatim (spec.md §6's send_request, preserved with
// server_name carried alongside params rather than folded into the method
// name — SPEC_FULL.md §9's Open Question resolution). Like ExecuteTool and
// GetResource, the timeout is resolved by internal/timeoutpolicy with method
// in the tool position, so TOOL_TIMEOUT_<SERVER>_<METHOD> applies.
func (h *Host) SendRequest(ctx context.Context, server, method string, params interface{}) (jsonrpc.Response, error) {
	entry, err := h.lookup(server)
	if err != nil {
		return jsonrpc.Response{}, err
	}

	ctx, span := observability.StartExecuteSpan(ctx, server, method)
	defer span.End()

	timeout := timeoutpolicy.Resolve(server, method)
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	resp, err := entry.sess.SendRequest(callCtx, method, params)
	duration := time.Since(start)

	success := err == nil
	observability.DefaultMetrics.RecordExecute(server, method, duration, success)
	observability.RecordExecuteSpan(ctx, server, method, duration, success)
	return resp, err
}

// GetAllCapabilities returns every ready session's capabilities, keyed by
// server name. Tool and resource names inside each entry remain
// server-local; AggregatedTools and AggregatedResources return the
// "<server>/<tool>" aggregated view.
func (h *Host) GetAllCapabilities() map[string]manifest.ServerCapabilities {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make(map[string]manifest.ServerCapabilities, len(h.sessions))
	for name, entry := range h.sessions {
		if caps := entry.sess.Capabilities(); caps != nil {
			out[name] = *caps
		}
	}
	return out
}

// IsAutoExecute reports whether tool is pre-approved for server without a
// confirmation round-trip (spec §3).
func (h *Host) IsAutoExecute(server, tool string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	entry, ok := h.sessions[server]
	if !ok {
		return false
	}
	return entry.config.IsAutoExecute(tool)
}

// AddToAutoExecute adds tool to server's auto-execute set and persists the
// whole manifest atomically. The manifest write happens outside the
// session-map lock so a slow disk never blocks ExecuteTool/GetResource on
// unrelated servers.
func (h *Host) AddToAutoExecute(server, tool string) error {
	h.mu.Lock()
	entry, ok := h.sessions[server]
	if !ok {
		h.mu.Unlock()
		return fmt.Errorf("host: unknown server %q", server)
	}
	if entry.config.AutoExecute == nil {
		entry.config.AutoExecute = make(map[string]struct{})
	}
	entry.config.AutoExecute[tool] = struct{}{}

	configs := make([]manifest.ToolServerConfig, 0, len(h.sessions))
	for _, e := range h.sessions {
		configs = append(configs, e.config)
	}
	h.mu.Unlock()

	if h.manifestPath == "" {
		return nil
	}
	sort.Slice(configs, func(i, j int) bool { return configs[i].Name < configs[j].Name })
	return manifest.Persist(h.manifestPath, configs)
}

// shutdownRequestTimeout and the two sleeps between protocol steps are spec
// §4.1's six-step sequence, given explicit names so the durations read as
// intentional policy rather than magic numbers scattered through Shutdown.
const (
	shutdownRequestTimeout = 5 * time.Second
	postShutdownPause      = time.Second
	postExitPause          = 500 * time.Millisecond
)

// Shutdown runs spec §4.1's six-step shutdown sequence against every
// session: (1) send a "shutdown" request under a 5s timeout, (2) pause 1s,
// (3) send an "exit" notification, (4) pause 500ms, (5) mark the session's
// shutdown flag, (6) unconditionally kill the child. Steps run concurrently
// across sessions but sequentially within one session; Shutdown is
// idempotent and safe to call more than once.
func (h *Host) Shutdown(ctx context.Context) {
	h.shutdownOnce.Do(func() {
		h.mu.Lock()
		entries := make([]*sessionEntry, 0, len(h.sessions))
		for _, e := range h.sessions {
			entries = append(entries, e)
		}
		h.mu.Unlock()

		var wg sync.WaitGroup
		for _, entry := range entries {
			wg.Add(1)
			go func(e *sessionEntry) {
				defer wg.Done()
				h.shutdownOne(ctx, e)
			}(entry)
		}
		wg.Wait()
	})
}

func (h *Host) shutdownOne(ctx context.Context, entry *sessionEntry) {
	log := h.log.With("server", entry.sess.Name())

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownRequestTimeout)
	_, err := entry.sess.SendRequest(shutdownCtx, "shutdown", nil)
	cancel()
	if err != nil {
		log.Debug("host: shutdown request did not complete cleanly", "error", err)
	}

	time.Sleep(postShutdownPause)

	if err := entry.sess.SendNotification("exit", nil); err != nil {
		log.Debug("host: exit notification not delivered", "error", err)
	}

	time.Sleep(postExitPause)

	entry.sess.SetShutdown()

	if ch := entry.sess.TakeChannel(); ch != nil {
		if err := ch.Kill(); err != nil {
			log.Warn("host: kill failed", "error", err)
		}
		_ = ch.Wait()
	}
	log.Info("host: session shut down")
}

// ServerNames returns the names of every session the host currently owns,
// sorted for deterministic output.
func (h *Host) ServerNames() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.sessions))
	for name := range h.sessions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
