package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"instagram-automation/internal/logger"

	"github.com/gin-gonic/gin"
)

// AuditMiddleware logs every state-changing API call with the operator
// behind it. Reads are left to the access log.
func AuditMiddleware() gin.HandlerFunc {
	log := logger.Component("audit")
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead || c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		resource, resourceID := auditResource(c)
		status := c.Writer.Status()
		attrs := []any{
			"action", auditAction(c.Request.Method, c.FullPath()),
			"resource", resource,
			"resource_id", resourceID,
			"operator", GetOperator(c),
			"status", status,
			"success", status < http.StatusBadRequest,
			"ip", c.ClientIP(),
			"request_id", GetRequestID(c),
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "error", c.Errors.Last().Error())
		}

		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		log.Log(c.Request.Context(), level, "API mutation", attrs...)
	}
}

// auditAction maps the method, and for sub-resource routes the last path
// segment, onto an action name.
func auditAction(method, route string) string {
	if i := strings.LastIndex(route, "/"); i >= 0 {
		switch last := route[i+1:]; last {
		case "cancel", "active", "schedule":
			return strings.ToUpper(last)
		}
	}
	switch method {
	case http.MethodPost:
		return "CREATE"
	case http.MethodPut, http.MethodPatch:
		return "UPDATE"
	case http.MethodDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// auditResource reads the resource from the matched route, e.g.
// /api/posts/:id/cancel gives ("posts", <id>).
func auditResource(c *gin.Context) (string, string) {
	route := strings.TrimPrefix(c.FullPath(), "/api/")
	if route == "" {
		return "unknown", ""
	}
	resource, _, _ := strings.Cut(route, "/")
	id := c.Param("id")
	if id == "" {
		id = c.Param("tag")
	}
	return resource, id
}
