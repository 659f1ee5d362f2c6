package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/topmcon/Catalog-Verification-API-sub004/internal/domain"
	"github.com/topmcon/Catalog-Verification-API-sub004/internal/healing"
	"github.com/topmcon/Catalog-Verification-API-sub004/internal/repository"
)

// HealingHandler handles self-healing trigger, schedule, and status
// endpoints.
type HealingHandler struct {
	orchestrator *healing.Orchestrator
	scheduler    *healing.Scheduler
	runs         *repository.RunRepository
}

// NewHealingHandler creates a new healing handler.
// Parameters:
//   - orchestrator: the self-healing orchestrator.
//   - scheduler: deferred-run scheduler.
//   - runs: run ledger repository for history queries.
// Returns:
//   - *HealingHandler: initialized handler.
func NewHealingHandler(orchestrator *healing.Orchestrator, scheduler *healing.Scheduler, runs *repository.RunRepository) *HealingHandler {
	return &HealingHandler{
		orchestrator: orchestrator,
		scheduler:    scheduler,
		runs:         runs,
	}
}

// Trigger handles POST /api/v1/jobs/:id/heal. The run executes
// synchronously; the response carries the run outcome.
func (h *HealingHandler) Trigger(c *gin.Context) {
	jobID := c.Param("id")

	result, err := h.orchestrator.RunCompleteSelfHealing(c.Request.Context(), jobID)
	switch {
	case errors.Is(err, healing.ErrHealingDisabled):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	case errors.Is(err, healing.ErrConcurrentRun):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case errors.Is(err, healing.ErrJobUnloadable):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case errors.Is(err, healing.ErrInvalidJobState):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Healing run failed: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"run_id":          result.RunID,
		"job_id":          result.JobID,
		"phase":           result.Phase,
		"outcome":         result.Outcome,
		"issues_found":    len(result.Issues),
		"attempts_taken":  len(result.Attempts),
		"correction_sent": result.CorrectionSent,
		"escalated":       result.Escalated,
	})
}

type scheduleRequest struct {
	DelayMs int64 `json:"delay_ms" binding:"required,gt=0"`
}

// Schedule handles POST /api/v1/jobs/:id/heal/schedule. Used by upstream
// collaborators that know a record will need healing shortly.
func (h *HealingHandler) Schedule(c *gin.Context) {
	jobID := c.Param("id")

	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	delay := time.Duration(req.DelayMs) * time.Millisecond
	scheduleID, err := h.scheduler.ScheduleAfterDelay(c.Request.Context(), jobID, delay)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to schedule run: " + err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"schedule_id": scheduleID,
		"job_id":      jobID,
		"due_at":      time.Now().UTC().Add(delay),
	})
}

// CancelSchedule handles DELETE /api/v1/healing/schedules/:id.
func (h *HealingHandler) CancelSchedule(c *gin.Context) {
	err := h.scheduler.Cancel(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, repository.ErrScheduleNotPending):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to cancel schedule: " + err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"cancelled": true})
	}
}

// Status handles GET /api/v1/jobs/:id/healing/status, derived from the
// job's most recent run.
func (h *HealingHandler) Status(c *gin.Context) {
	jobID := c.Param("id")

	run, err := h.orchestrator.Status(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// No run yet; a scheduled trigger still counts as pending.
			pending, perr := h.scheduler.HasPending(c.Request.Context(), jobID)
			if perr == nil && pending {
				c.JSON(http.StatusOK, gin.H{
					"job_id": jobID,
					"status": domain.HealingStatusPending,
				})
				return
			}
			c.JSON(http.StatusNotFound, gin.H{"error": "No healing runs for job " + jobID})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Status query failed: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"job_id":          run.JobID,
		"run_id":          run.ID,
		"status":          run.Status(),
		"phase":           run.Phase,
		"outcome":         run.FinalOutcome,
		"attempts_taken":  run.AttemptsTaken,
		"correction_sent": run.CorrectionSent,
		"escalated":       run.EscalatedToHuman,
		"started_at":      run.StartedAt,
		"completed_at":    run.CompletedAt,
	})
}

// Runs handles GET /api/v1/jobs/:id/healing/runs, the ledger history for a
// job, newest first.
func (h *HealingHandler) Runs(c *gin.Context) {
	jobID := c.Param("id")

	limit := 20
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 100 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 100"})
			return
		}
		limit = parsed
	}

	runs, err := h.runs.ListByJob(c.Request.Context(), jobID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "History query failed: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"job_id": jobID,
		"count":  len(runs),
		"runs":   runs,
	})
}
