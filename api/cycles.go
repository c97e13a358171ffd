package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"github.com/autopost/autopost"
	apimodel "github.com/autopost/autopost/api/model"
	"github.com/autopost/autopost/internal/trigger"
)

// RunCycle runs one cycle now, or hands it to the workers when async is requested.
func (a Api) RunCycle(c *gin.Context) {
	var req apimodel.RunCycle
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
			return
		}
	}
	if err := req.ValidateRunCycle(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	if req.Async {
		a.enqueueCycle(c, req)
		return
	}

	opts := trigger.Options{Reason: "api", DryRun: req.DryRun}
	if req.MaxPosts != nil {
		opts.MaxPosts = *req.MaxPosts
	}
	report, err := a.runner.Run(c.Request.Context(), opts)
	if err != nil {
		var cfgErr *autopost.ConfigurationError
		switch {
		case errors.Is(err, trigger.ErrCycleInProgress):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.As(err, &cfgErr):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "report": report})
		}
		return
	}
	c.JSON(http.StatusOK, report)
}

func (a Api) enqueueCycle(c *gin.Context, req apimodel.RunCycle) {
	if a.queue == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "async cycles need redis to be configured"})
		return
	}
	if req.MaxPosts != nil || req.DryRun != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": "max_posts and dry_run overrides are only supported for synchronous runs"})
		return
	}
	info, err := a.queue.EnqueueCycle(c.Request.Context(), "api")
	if err != nil {
		if errors.Is(err, asynq.ErrDuplicateTask) {
			c.JSON(http.StatusConflict, gin.H{"error": "a cycle is already queued"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, apimodel.Enqueued{TaskID: info.ID, Queue: info.Queue})
}
