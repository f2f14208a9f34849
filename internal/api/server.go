// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package api exposes the Host Supervisor over a caller-facing HTTP
// surface: tool execution, resource reads, capability listing, and
// shutdown, per SPEC_FULL.md §4.10's ToolExecutor mapping.
package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/aleutian-ai/toolhost/internal/host"
)

// serviceName is the otelgin middleware's span-naming service identifier.
const serviceName = "toolhostd"

// Server is toolhostd's caller-facing HTTP server, bound to a Unix domain
// socket so only local processes on the same host can reach it.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	log        *slog.Logger
}

// NewServer builds the gin engine and registers every route against
// executor.
func NewServer(executor host.ToolExecutor, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(otelgin.Middleware(serviceName))

	registerRoutes(engine, executor, log)

	return &Server{
		engine: engine,
		log:    log,
	}
}

// Serve listens on socketPath (a Unix domain socket) until ctx is
// cancelled or Shutdown is called, removing any stale socket file left
// behind by a prior unclean exit.
func (s *Server) Serve(ctx context.Context, socketPath string) error {
	if err := os.RemoveAll(socketPath); err != nil {
		return err
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return err
	}

	s.httpServer = &http.Server{Handler: s.engine}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// Shutdown gracefully stops the HTTP server, bounded by a 5 second
// deadline if ctx carries none of its own.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	return s.httpServer.Shutdown(ctx)
}
