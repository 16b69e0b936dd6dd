// Package http provides HTTP server infrastructure including module registration.
package http

import (
	"context"

	"dealerdesk_backend/internal/events"
	"dealerdesk_backend/platform/config"
	"dealerdesk_backend/platform/logger"

	"github.com/gin-gonic/gin"
)

// RouterConfig combines the config interfaces needed by the HTTP router.
type RouterConfig interface {
	config.HTTPConfig
	IsDevelopment() bool
}

// HealthChecker exposes minimal functionality for readiness checks.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// App holds the fully initialized application dependencies.
// This is populated by main.go (the composition root) and passed to the router.
type App struct {
	// Config holds the router configuration.
	Config RouterConfig
	// Logger is the structured logger.
	Logger *logger.Logger
	// Health is used for readiness checks (DB ping).
	Health HealthChecker
	// EventBus is the domain event bus for cross-module communication.
	EventBus events.Bus
	// Auth authenticates bearer requests and resolves the caller's tenant.
	// Nil disables the protected route group.
	Auth []gin.HandlerFunc
	// Modules contains all HTTP-facing domain modules.
	Modules []Module
}
