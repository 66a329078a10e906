package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Router wraps a configured Gin engine and exposes it as an http.Handler.
type Router struct {
	engine *gin.Engine
}

// NewRouter constructs a Router with the full middleware chain and all routes
// registered. Middleware order:
//  1. Recovery, panic → 500
//  2. Tracing, OTEL trace context per request
//  3. RequestLogger, structured request/response logging
//
// metrics may be nil, in which case /metrics is not served.
func NewRouter(o orchestratorService, serviceName string, metrics http.Handler) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(Recovery(slog.Default()))
	engine.Use(Tracing(serviceName))
	engine.Use(RequestLogger(slog.Default()))

	h := &Handler{orchestrator: o}

	v1 := engine.Group("/api/v1")
	v1.POST("/bootstrap", h.Bootstrap)
	v1.GET("/bootstrap/last", h.LastBootstrap)

	engine.GET("/health", h.Health)
	engine.GET("/health/deep", h.DeepHealth)
	engine.GET("/ready", h.Ready)

	if metrics != nil {
		engine.GET("/metrics", gin.WrapH(metrics))
	}

	return &Router{engine: engine}
}

// Handler returns the underlying http.Handler for use with net/http servers.
func (r *Router) Handler() http.Handler {
	return r.engine
}
