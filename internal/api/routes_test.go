// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aleutian-ai/toolhost/internal/jsonrpc"
	"github.com/aleutian-ai/toolhost/internal/manifest"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeExecutor is a scriptable host.ToolExecutor double for routing tests.
type fakeExecutor struct {
	executeResp json.RawMessage
	executeErr  error

	resourceResp json.RawMessage
	resourceErr  error

	sendResp jsonrpc.Response
	sendErr  error

	caps map[string]manifest.ServerCapabilities

	autoExecute   map[string]bool
	addAutoErr    error
	shutdownCalls int
	shutdownCtx   context.Context

	lastServer, lastTool, lastMethod string
}

func (f *fakeExecutor) ExecuteTool(ctx context.Context, server, tool string, args interface{}) (json.RawMessage, error) {
	f.lastServer, f.lastTool = server, tool
	return f.executeResp, f.executeErr
}

func (f *fakeExecutor) GetResource(ctx context.Context, server, resource string) (json.RawMessage, error) {
	f.lastServer, f.lastTool = server, resource
	return f.resourceResp, f.resourceErr
}

func (f *fakeExecutor) SendRequest(ctx context.Context, server, method string, params interface{}) (jsonrpc.Response, error) {
	f.lastServer, f.lastMethod = server, method
	return f.sendResp, f.sendErr
}

func (f *fakeExecutor) GetAllCapabilities() map[string]manifest.ServerCapabilities {
	return f.caps
}

func (f *fakeExecutor) IsAutoExecute(server, tool string) bool {
	return f.autoExecute[server+"/"+tool]
}

func (f *fakeExecutor) AddToAutoExecute(server, tool string) error {
	return f.addAutoErr
}

func (f *fakeExecutor) Shutdown(ctx context.Context) {
	f.shutdownCalls++
	f.shutdownCtx = ctx
}

func setupTestRouter(executor *fakeExecutor) *gin.Engine {
	router := gin.New()
	registerRoutes(router, executor, slog.Default())
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandleHealth_ReturnsOK(t *testing.T) {
	router := setupTestRouter(&fakeExecutor{})

	w := doJSON(t, router, http.MethodGet, "/health", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestHandleExecuteTool_DispatchesToExecutor(t *testing.T) {
	exec := &fakeExecutor{executeResp: json.RawMessage(`{"ok":true}`)}
	router := setupTestRouter(exec)

	w := doJSON(t, router, http.MethodPost, "/v1/tools/execute", executeToolRequest{
		Server: "fs", Tool: "read_file", Arguments: map[string]string{"path": "/tmp/x"},
	})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
	}
	if exec.lastServer != "fs" || exec.lastTool != "read_file" {
		t.Fatalf("executor called with server=%q tool=%q", exec.lastServer, exec.lastTool)
	}
}

func TestHandleExecuteTool_MissingFieldsReturnsBadRequest(t *testing.T) {
	router := setupTestRouter(&fakeExecutor{})

	w := doJSON(t, router, http.MethodPost, "/v1/tools/execute", map[string]string{})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHandleExecuteTool_ExecutorErrorReturnsBadGateway(t *testing.T) {
	exec := &fakeExecutor{executeErr: errors.New("session not ready")}
	router := setupTestRouter(exec)

	w := doJSON(t, router, http.MethodPost, "/v1/tools/execute", executeToolRequest{Server: "fs", Tool: "read_file"})

	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadGateway)
	}
}

func TestHandleSendRequest_DispatchesWithServerNameAndMethod(t *testing.T) {
	exec := &fakeExecutor{sendResp: jsonrpc.Response{JSONRPC: jsonrpc.Version, ID: 7}}
	router := setupTestRouter(exec)

	w := doJSON(t, router, http.MethodPost, "/v1/request", sendRequestBody{
		Server: "fs", Method: "resources/list",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
	}
	if exec.lastServer != "fs" || exec.lastMethod != "resources/list" {
		t.Fatalf("executor called with server=%q method=%q", exec.lastServer, exec.lastMethod)
	}
}

func TestHandleCapabilities_ReturnsAggregatedMap(t *testing.T) {
	exec := &fakeExecutor{caps: map[string]manifest.ServerCapabilities{
		"fs": {Tools: []manifest.ToolDescriptor{{Name: "read_file"}}},
	}}
	router := setupTestRouter(exec)

	w := doJSON(t, router, http.MethodGet, "/v1/capabilities", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var got map[string]manifest.ServerCapabilities
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := got["fs"]; !ok {
		t.Fatalf("expected capabilities for %q, got %v", "fs", got)
	}
}

func TestHandleAddAutoExecute_PropagatesExecutorError(t *testing.T) {
	exec := &fakeExecutor{addAutoErr: errors.New("unknown server")}
	router := setupTestRouter(exec)

	w := doJSON(t, router, http.MethodPost, "/v1/auto-execute", addAutoExecuteRequest{Server: "nope", Tool: "x"})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHandleShutdown_TriggersShutdownAsync(t *testing.T) {
	exec := &fakeExecutor{}
	router := setupTestRouter(exec)

	w := doJSON(t, router, http.MethodPost, "/v1/shutdown", nil)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusAccepted)
	}
}

// TestHandleShutdown_ContextOutlivesRequest guards against deriving the
// shutdown sequence's context from the HTTP request: gin cancels that
// context the instant the handler returns, which would give the six-step
// sequence's "shutdown" RPC a dead context instead of its own timeout
// window. context.Background() (unlike a request context) has a nil Done
// channel.
func TestHandleShutdown_ContextOutlivesRequest(t *testing.T) {
	exec := &fakeExecutor{}
	router := setupTestRouter(exec)

	doJSON(t, router, http.MethodPost, "/v1/shutdown", nil)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && exec.shutdownCtx == nil {
		time.Sleep(5 * time.Millisecond)
	}
	if exec.shutdownCtx == nil {
		t.Fatal("executor.Shutdown was not called")
	}
	if exec.shutdownCtx.Done() != nil {
		t.Fatalf("shutdown context has a cancelable Done channel; want context.Background()")
	}
	if err := exec.shutdownCtx.Err(); err != nil {
		t.Fatalf("shutdown context already has an error: %v", err)
	}
}

func TestHandleMetrics_IsReachable(t *testing.T) {
	router := setupTestRouter(&fakeExecutor{})

	w := doJSON(t, router, http.MethodGet, "/metrics", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
}
