// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package hub

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handlers adapts the hub to HTTP.
type Handlers struct {
	hub *Hub
}

// NewHandlers creates the HTTP handlers for a hub.
func NewHandlers(hub *Hub) *Handlers {
	return &Handlers{hub: hub}
}

// HandleCommand accepts one command envelope and returns its reply.
//
// Every dispatched command answers 200 with a reply envelope, including
// handler failures (Exception true); only a malformed request body is a
// 400. Clients inspect the envelope, not the HTTP status.
func (h *Handlers) HandleCommand(c *gin.Context) {
	var cmd Command
	if err := c.ShouldBindJSON(&cmd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid command envelope: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.hub.Dispatch(c.Request.Context(), cmd))
}

// HandleHealth reports liveness.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// RegisterRoutes registers the hub routes with the router.
//
// Endpoints:
//
//	POST /v1/hub/command - Dispatch a command envelope
//	GET  /v1/hub/health  - Health check
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	hub := rg.Group("/hub")
	{
		hub.POST("/command", handlers.HandleCommand)
		hub.GET("/health", handlers.HandleHealth)
	}
}
