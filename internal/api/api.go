// Package api exposes the search pipeline over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/carsift/carsift/internal/model"
	"github.com/carsift/carsift/internal/stream"
)

// Runner starts a pipeline run and yields its events.
type Runner interface {
	Run(ctx context.Context, criteria model.Criteria) <-chan stream.Event
}

// Router wires the HTTP handlers.
type Router struct {
	pipeline Runner
	logger   *slog.Logger
}

// searchRequest is the POST /api/search body.
type searchRequest struct {
	Criteria model.Criteria `json:"criteria"`
}

func NewRouter(pipeline Runner, logger *slog.Logger) *gin.Engine {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{pipeline: pipeline, logger: logger}

	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	{
		api.POST("/search", r.search)
	}

	return router
}

// search validates the criteria, then streams pipeline events as
// newline-delimited JSON until the run finishes or the client disconnects.
func (r *Router) search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request body", "detail": err.Error()})
		return
	}

	if problems := req.Criteria.Validate(); len(problems) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid criteria", "problems": problems})
		return
	}

	c.Header("Content-Type", "application/x-ndjson")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	ctx := c.Request.Context()
	encoder := stream.NewEncoder(c.Writer)

	for event := range r.pipeline.Run(ctx, req.Criteria) {
		if err := encoder.Encode(event); err != nil {
			// Lines already sent stay valid; there is nobody left to
			// write to, so stop and let cancellation unwind the run.
			if ctx.Err() == nil {
				r.logger.Warn("response stream broke", "error", err)
			}
			return
		}
	}
}
