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
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aleutian-ai/toolhost/internal/host"
)

// executeToolRequest is the body of POST /v1/tools/execute.
type executeToolRequest struct {
	Server    string      `json:"server_name" binding:"required"`
	Tool      string      `json:"tool_name" binding:"required"`
	Arguments interface{} `json:"arguments"`
}

func handleExecuteTool(executor host.ToolExecutor, log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req executeToolRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		resp, err := executor.ExecuteTool(c.Request.Context(), req.Server, req.Tool, req.Arguments)
		if err != nil {
			log.Warn("api: tools/execute failed", "server", req.Server, "tool", req.Tool, "error", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

// getResourceRequest is the body of POST /v1/resources/read, an additive
// endpoint alongside spec.md §6's four operations (SPEC_FULL.md §4.10
// explicitly allows this package to be additive).
type getResourceRequest struct {
	Server   string `json:"server_name" binding:"required"`
	Resource string `json:"resource_name" binding:"required"`
}

func handleGetResource(executor host.ToolExecutor, log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req getResourceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		resp, err := executor.GetResource(c.Request.Context(), req.Server, req.Resource)
		if err != nil {
			log.Warn("api: resources/read failed", "server", req.Server, "resource", req.Resource, "error", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

// sendRequestBody is the body of POST /v1/request: spec.md §6's
// send_request, passed through with server_name carried alongside params.
type sendRequestBody struct {
	Server string      `json:"server_name" binding:"required"`
	Method string      `json:"method" binding:"required"`
	Params interface{} `json:"params"`
}

func handleSendRequest(executor host.ToolExecutor, log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req sendRequestBody
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		resp, err := executor.SendRequest(c.Request.Context(), req.Server, req.Method, req.Params)
		if err != nil {
			log.Warn("api: request failed", "server", req.Server, "method", req.Method, "error", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

func handleCapabilities(executor host.ToolExecutor) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, executor.GetAllCapabilities())
	}
}

// addAutoExecuteRequest is the body of POST /v1/auto-execute, an additive
// endpoint exposing Host.AddToAutoExecute.
type addAutoExecuteRequest struct {
	Server string `json:"server_name" binding:"required"`
	Tool   string `json:"tool_name" binding:"required"`
}

func handleAddAutoExecute(executor host.ToolExecutor, log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req addAutoExecuteRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		if err := executor.AddToAutoExecute(req.Server, req.Tool); err != nil {
			log.Warn("api: auto-execute update failed", "server", req.Server, "tool", req.Tool, "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func handleShutdown(executor host.ToolExecutor, log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		log.Info("api: shutdown requested via HTTP")
		// The six-step shutdown sequence (internal/host.Host.Shutdown) runs its
		// own per-request timeouts and unconditional sleeps; it must not inherit
		// this handler's request context, which gin cancels the instant this
		// handler returns — long before the sequence's goroutines finish.
		go executor.Shutdown(context.Background())
		c.JSON(http.StatusAccepted, gin.H{"status": "shutting down"})
	}
}
