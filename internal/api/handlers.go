package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"arc-framework/dbboot/internal/orchestrator"
)

// orchestratorService is the subset of *orchestrator.Orchestrator used by the
// HTTP handlers. Declaring it as an interface allows test doubles to be injected.
type orchestratorService interface {
	RunBootstrap(ctx context.Context) (*orchestrator.BootstrapResult, error)
	RunDeepHealth(ctx context.Context) map[string]orchestrator.ProbeResult
	IsReady() bool
	IsBootstrapInProgress() bool
	LastResult() *orchestrator.BootstrapResult
}

// Handler holds the dependencies shared across all HTTP handlers.
type Handler struct {
	orchestrator orchestratorService
}

// Bootstrap handles POST /api/v1/bootstrap.
// By default it returns 202 and runs the bootstrap in a background goroutine.
// With ?wait=true it runs inline and returns the result: 200 on success, 500
// when the run aborted. 409 is returned if a run is already in progress.
func (h *Handler) Bootstrap(c *gin.Context) {
	if h.orchestrator.IsBootstrapInProgress() {
		c.JSON(http.StatusConflict, gin.H{"status": orchestrator.StatusInProgress})
		return
	}

	if wait, _ := strconv.ParseBool(c.Query("wait")); wait {
		res, err := h.orchestrator.RunBootstrap(c.Request.Context())
		switch {
		case errors.Is(err, orchestrator.ErrBootstrapInProgress):
			c.JSON(http.StatusConflict, gin.H{"status": orchestrator.StatusInProgress})
		case err != nil:
			c.JSON(http.StatusInternalServerError, res)
		default:
			c.JSON(http.StatusOK, res)
		}
		return
	}

	go func() {
		//nolint:errcheck
		h.orchestrator.RunBootstrap(context.Background()) //nolint:contextcheck
	}()
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// LastBootstrap handles GET /api/v1/bootstrap/last.
// It returns the most recent completed result, or 404 before the first run.
func (h *Handler) LastBootstrap(c *gin.Context) {
	res := h.orchestrator.LastResult()
	if res == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no bootstrap has completed yet"})
		return
	}
	c.JSON(http.StatusOK, res)
}

// Health handles GET /health.
// It always returns 200; this is the liveness probe.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"mode":   "shallow",
	})
}

// DeepHealth handles GET /health/deep.
// It runs every dependency probe and returns 200 only when all are OK.
func (h *Handler) DeepHealth(c *gin.Context) {
	probes := h.orchestrator.RunDeepHealth(c.Request.Context())

	allOK := true
	for _, p := range probes {
		if !p.OK {
			allOK = false
			break
		}
	}

	status := "healthy"
	code := http.StatusOK
	if !allOK {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":       status,
		"dependencies": probes,
	})
}

// Ready handles GET /ready.
// It returns 200 only after a successful bootstrap; 503 otherwise.
func (h *Handler) Ready(c *gin.Context) {
	if h.orchestrator.IsReady() {
		c.JSON(http.StatusOK, gin.H{"ready": true})
		return
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false})
}
