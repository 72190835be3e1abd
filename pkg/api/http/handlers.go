package http

import (
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aescanero/localdag/internal/application/orchestrator"
	"github.com/aescanero/localdag/internal/application/workers"
	"github.com/aescanero/localdag/pkg/domain"
)

// RunSubmitRequest represents a run submission request
type RunSubmitRequest struct {
	PipelineSpec *domain.PipelineSpec `json:"pipeline_spec" binding:"required"`
	// Arguments are plain JSON values. An artifact input takes a URI or
	// path string, or an object such as {"uri": "file:///data.csv"}.
	Arguments map[string]interface{} `json:"arguments"`
}

// RunSubmitResponse represents a run submission response
type RunSubmitResponse struct {
	RunID       string `json:"run_id"`
	State       string `json:"state"`
	SubmittedAt string `json:"submitted_at"`
}

// RunResultResponse is the outcome of a finished run
type RunResultResponse struct {
	RunID       string          `json:"run_id"`
	State       domain.RunState `json:"state"`
	Status      domain.Status   `json:"status,omitempty"`
	FailedTask  string          `json:"failed_task,omitempty"`
	Error       string          `json:"error,omitempty"`
	Outputs     domain.ValueMap `json:"outputs,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail represents error details
type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func errorJSON(c *gin.Context, status int, code, message string) {
	c.JSON(status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	checks := gin.H{"api": "ok"}
	status := http.StatusOK
	state := "healthy"

	if s.pool != nil {
		pool := s.pool.Health().GetStatus()
		checks["workers"] = pool
		if !pool.Healthy {
			status = http.StatusServiceUnavailable
			state = "unhealthy"
		}
	}

	c.JSON(status, gin.H{
		"status":    state,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleSubmitRun handles run submission
func (s *Server) handleSubmitRun(c *gin.Context) {
	var req RunSubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.Error("invalid request", zap.Error(err))
		errorJSON(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	runID, err := s.runs.SubmitRun(c.Request.Context(), req.PipelineSpec, req.Arguments)
	if err != nil {
		s.logger.Error("failed to submit run", zap.Error(err))
		switch {
		case domain.IsSpecError(err):
			c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
				Error: ErrorDetail{
					Code:    "INVALID_PIPELINE",
					Message: err.Error(),
					Details: gin.H{"kind": domain.SpecErrorKind(err)},
				},
			})
		case errors.Is(err, workers.ErrQueueFull), errors.Is(err, workers.ErrPoolStopped):
			errorJSON(c, http.StatusServiceUnavailable, "QUEUE_UNAVAILABLE", err.Error())
		default:
			errorJSON(c, http.StatusInternalServerError, "SUBMISSION_FAILED", err.Error())
		}
		return
	}

	c.JSON(http.StatusCreated, RunSubmitResponse{
		RunID:       runID,
		State:       string(domain.RunStatePending),
		SubmittedAt: time.Now().UTC().Format(time.RFC3339),
	})
}

// handleListRuns handles listing runs
func (s *Server) handleListRuns(c *gin.Context) {
	runs, err := s.runs.ListRuns(c.Request.Context())
	if err != nil {
		s.logger.Error("failed to list runs", zap.Error(err))
		errorJSON(c, http.StatusInternalServerError, "STORAGE_ERROR", "Failed to list runs")
		return
	}

	if state := c.Query("state"); state != "" {
		filtered := runs[:0]
		for _, run := range runs {
			if string(run.State) == state {
				filtered = append(filtered, run)
			}
		}
		runs = filtered
	}

	c.JSON(http.StatusOK, gin.H{
		"runs":  runs,
		"total": len(runs),
	})
}

// handleGetRun handles getting run details
func (s *Server) handleGetRun(c *gin.Context) {
	run, ok := s.lookupRun(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, run)
}

// handleGetResult handles getting a run's result
func (s *Server) handleGetResult(c *gin.Context) {
	run, ok := s.lookupRun(c)
	if !ok {
		return
	}

	if !run.State.IsTerminal() {
		errorJSON(c, http.StatusConflict, "NOT_COMPLETED", "Run has not finished yet")
		return
	}

	resp := RunResultResponse{
		RunID:       run.ID,
		State:       run.State,
		FailedTask:  run.FailedTask,
		Error:       run.Error,
		Outputs:     run.Outputs,
		CompletedAt: run.CompletedAt,
	}
	switch run.State {
	case domain.RunStateSucceeded:
		resp.Status = domain.StatusSuccess
	case domain.RunStateFailed:
		resp.Status = domain.StatusFailure
	}

	c.JSON(http.StatusOK, resp)
}

// handleCancelRun handles run cancellation
func (s *Server) handleCancelRun(c *gin.Context) {
	runID := c.Param("id")

	if err := s.runs.CancelRun(c.Request.Context(), runID); err != nil {
		switch {
		case errors.Is(err, domain.ErrRunNotFound):
			errorJSON(c, http.StatusNotFound, "NOT_FOUND", "Run not found")
		case errors.Is(err, orchestrator.ErrRunTerminal):
			errorJSON(c, http.StatusConflict, "CANCELLATION_FAILED", err.Error())
		default:
			errorJSON(c, http.StatusInternalServerError, "CANCELLATION_FAILED", err.Error())
		}
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"run_id": runID,
		"state":  "cancelling",
	})
}

// handleListWorkers handles listing workers
func (s *Server) handleListWorkers(c *gin.Context) {
	if s.pool == nil {
		errorJSON(c, http.StatusServiceUnavailable, "POOL_NOT_AVAILABLE", "Worker pool is not configured")
		return
	}

	statuses := s.pool.GetStatus()
	ids := make([]string, 0, len(statuses))
	for id := range statuses {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	list := make([]gin.H, 0, len(ids))
	for _, id := range ids {
		list = append(list, gin.H{"id": id, "state": statuses[id]})
	}

	c.JSON(http.StatusOK, gin.H{
		"data":   list,
		"health": s.pool.Health().GetStatus(),
	})
}

func (s *Server) lookupRun(c *gin.Context) (*domain.RunRecord, bool) {
	runID := c.Param("id")

	run, err := s.runs.GetRun(c.Request.Context(), runID)
	if err != nil {
		if errors.Is(err, domain.ErrRunNotFound) {
			errorJSON(c, http.StatusNotFound, "NOT_FOUND", "Run not found")
		} else {
			s.logger.Error("failed to get run", zap.String("run_id", runID), zap.Error(err))
			errorJSON(c, http.StatusInternalServerError, "STORAGE_ERROR", "Failed to load run")
		}
		return nil, false
	}
	return run, true
}
