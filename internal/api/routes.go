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
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aleutian-ai/toolhost/internal/host"
)

func registerRoutes(router *gin.Engine, executor host.ToolExecutor, log *slog.Logger) {
	router.GET("/health", handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	{
		v1.POST("/tools/execute", handleExecuteTool(executor, log))
		v1.POST("/resources/read", handleGetResource(executor, log))
		v1.POST("/request", handleSendRequest(executor, log))
		v1.GET("/capabilities", handleCapabilities(executor))
		v1.POST("/auto-execute", handleAddAutoExecute(executor, log))
		v1.POST("/shutdown", handleShutdown(executor, log))
	}
}

func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
