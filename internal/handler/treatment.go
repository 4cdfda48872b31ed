// Package handler exposes the engine's upstream surface over HTTP. The UI
// layer consumes these endpoints; everything else (auth, onboarding) lives
// upstream of this service.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pawtrack/pawtrack-backend/internal/queue"
	"github.com/pawtrack/pawtrack-backend/internal/service"
	"github.com/pawtrack/pawtrack-backend/internal/treaterr"
	"github.com/pawtrack/pawtrack-backend/pkg/model"
	"go.uber.org/zap"
)

// TreatmentHandler adapts HTTP requests to the treatment service and the
// offline queue.
type TreatmentHandler struct {
	service *service.TreatmentService
	queue   *queue.Queue
	logger  *zap.Logger
}

// NewTreatmentHandler creates a TreatmentHandler.
func NewTreatmentHandler(svc *service.TreatmentService, q *queue.Queue, logger *zap.Logger) *TreatmentHandler {
	return &TreatmentHandler{service: svc, queue: q, logger: logger}
}

// Register wires the handler's routes onto the router.
func (h *TreatmentHandler) Register(r *gin.Engine) {
	api := r.Group("/api/v1")

	api.POST("/sessions/medication", h.LogMedication)
	api.PUT("/sessions/medication/:id", h.UpdateMedication)
	api.DELETE("/sessions/medication/:id", h.DeleteMedication)
	api.POST("/sessions/fluid", h.LogFluid)
	api.PUT("/sessions/fluid/:id", h.UpdateFluid)
	api.DELETE("/sessions/fluid/:id", h.DeleteFluid)
	api.POST("/sessions/quick-log", h.QuickLog)

	api.GET("/summaries/today", h.TodaySummary)
	api.GET("/summaries/daily/:date", h.DailySummary)
	api.GET("/summaries/weekly/:date", h.WeeklySummary)
	api.GET("/summaries/monthly/:date", h.MonthlySummary)

	api.GET("/queue", h.QueueStatus)
	api.POST("/queue/:id/retry", h.RetryQueued)
}

// LogMedication records one medication session. With background=true a write
// failure is captured in the offline queue instead of surfacing.
func (h *TreatmentHandler) LogMedication(c *gin.Context) {
	var sess model.MedicationSession
	if err := c.ShouldBindJSON(&sess); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	logged, err := h.service.LogMedicationSession(c.Request.Context(), sess)
	if err != nil {
		h.writeOrQueue(c, model.OpCreateMedication, mustJSON(sess), err)
		return
	}
	c.JSON(http.StatusCreated, logged)
}

// UpdateMedication edits an existing medication session.
func (h *TreatmentHandler) UpdateMedication(c *gin.Context) {
	var sess model.MedicationSession
	if err := c.ShouldBindJSON(&sess); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	sess.ID = c.Param("id")

	updated, err := h.service.UpdateMedicationSession(c.Request.Context(), sess)
	if err != nil {
		h.writeOrQueue(c, model.OpUpdateMedication, mustJSON(sess), err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// DeleteMedication removes a medication session and reverses its rollup
// contribution.
func (h *TreatmentHandler) DeleteMedication(c *gin.Context) {
	userID, petID, ok := h.owner(c)
	if !ok {
		return
	}
	if err := h.service.DeleteMedicationSession(c.Request.Context(), userID, petID, c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// LogFluid records one fluid session.
func (h *TreatmentHandler) LogFluid(c *gin.Context) {
	var sess model.FluidSession
	if err := c.ShouldBindJSON(&sess); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	logged, err := h.service.LogFluidSession(c.Request.Context(), sess)
	if err != nil {
		h.writeOrQueue(c, model.OpCreateFluid, mustJSON(sess), err)
		return
	}
	c.JSON(http.StatusCreated, logged)
}

// UpdateFluid edits an existing fluid session.
func (h *TreatmentHandler) UpdateFluid(c *gin.Context) {
	var sess model.FluidSession
	if err := c.ShouldBindJSON(&sess); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	sess.ID = c.Param("id")

	updated, err := h.service.UpdateFluidSession(c.Request.Context(), sess)
	if err != nil {
		h.writeOrQueue(c, model.OpUpdateFluid, mustJSON(sess), err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// DeleteFluid removes a fluid session and reverses its rollup contribution.
func (h *TreatmentHandler) DeleteFluid(c *gin.Context) {
	userID, petID, ok := h.owner(c)
	if !ok {
		return
	}
	if err := h.service.DeleteFluidSession(c.Request.Context(), userID, petID, c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// QuickLog logs everything scheduled for today that has not been logged yet.
// "Nothing outstanding" is a success shape, not a failure banner.
func (h *TreatmentHandler) QuickLog(c *gin.Context) {
	userID, petID, ok := h.owner(c)
	if !ok {
		return
	}

	result, err := h.service.QuickLogAll(c.Request.Context(), userID, petID)
	if err != nil {
		switch {
		case errors.Is(err, treaterr.ErrNothingOutstanding):
			c.JSON(http.StatusOK, gin.H{"status": "all_caught_up"})
		case errors.Is(err, treaterr.ErrNoActiveSchedules):
			c.JSON(http.StatusOK, gin.H{"status": "nothing_scheduled"})
		default:
			h.writeOrQueue(c, model.OpQuickLogAll,
				mustJSON(service.QuickLogPayload{UserID: userID, PetID: petID}), err)
		}
		return
	}
	c.JSON(http.StatusCreated, result)
}

// TodaySummary returns today's daily rollup.
func (h *TreatmentHandler) TodaySummary(c *gin.Context) {
	userID, petID, ok := h.owner(c)
	if !ok {
		return
	}
	sum, err := h.service.GetTodaySummary(c.Request.Context(), userID, petID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

// DailySummary returns the daily rollup for the date in the path.
func (h *TreatmentHandler) DailySummary(c *gin.Context) {
	h.summaryByDate(c, func(userID, petID string, date time.Time) (any, error) {
		return h.service.GetDailySummary(c.Request.Context(), userID, petID, date)
	})
}

// WeeklySummary returns the weekly rollup for the week containing the date.
func (h *TreatmentHandler) WeeklySummary(c *gin.Context) {
	h.summaryByDate(c, func(userID, petID string, date time.Time) (any, error) {
		return h.service.GetWeeklySummary(c.Request.Context(), userID, petID, date)
	})
}

// MonthlySummary returns the monthly rollup for the month containing the
// date.
func (h *TreatmentHandler) MonthlySummary(c *gin.Context) {
	h.summaryByDate(c, func(userID, petID string, date time.Time) (any, error) {
		return h.service.GetMonthlySummary(c.Request.Context(), userID, petID, date)
	})
}

// QueueStatus lists the offline queue after TTL expiry.
func (h *TreatmentHandler) QueueStatus(c *gin.Context) {
	ops, err := h.queue.Pending()
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"operations": ops, "count": len(ops)})
}

// RetryQueued replays one failed queue entry on explicit request.
func (h *TreatmentHandler) RetryQueued(c *gin.Context) {
	ok, err := h.queue.Retry(c.Request.Context(), c.Param("id"), h.service)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusBadGateway, gin.H{"error": "retry failed, entry kept in failed status"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "synced"})
}

func (h *TreatmentHandler) summaryByDate(c *gin.Context, get func(userID, petID string, date time.Time) (any, error)) {
	userID, petID, ok := h.owner(c)
	if !ok {
		return
	}
	date, err := time.ParseInLocation("2006-01-02", c.Param("date"), time.Local)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}
	sum, err := get(userID, petID, date)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (h *TreatmentHandler) owner(c *gin.Context) (string, string, bool) {
	userID := c.Query("user_id")
	petID := c.Query("pet_id")
	if userID == "" || petID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id and pet_id are required"})
		return "", "", false
	}
	return userID, petID, true
}

// writeOrQueue surfaces a failure interactively, or captures the operation in
// the offline queue when the caller marked the request as background. Only
// write failures are queueable: validation and duplicate rejections would
// fail identically on replay.
func (h *TreatmentHandler) writeOrQueue(c *gin.Context, kind model.OperationKind, payload []byte, err error) {
	var writeErr *treaterr.AtomicWriteError
	if c.Query("background") == "true" && errors.As(err, &writeErr) {
		warning, qErr := h.queue.Enqueue(kind, payload)
		if qErr != nil {
			h.respondError(c, qErr)
			return
		}
		resp := gin.H{"status": "queued"}
		if warning != nil {
			resp["warning"] = warning.Error()
			resp["queue_size"] = warning.Size
		}
		c.JSON(http.StatusAccepted, resp)
		return
	}
	h.respondError(c, err)
}

// respondError maps the failure taxonomy onto HTTP responses with enough
// structure for the UI to render each case distinctly.
func (h *TreatmentHandler) respondError(c *gin.Context, err error) {
	var (
		vErr *treaterr.ValidationError
		dErr *treaterr.DuplicateConflictError
		wErr *treaterr.AtomicWriteError
		fErr *treaterr.QueueFullError
		sErr *treaterr.SyncError
	)

	switch {
	case errors.As(err, &vErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"error": vErr.Error(),
			"field": vErr.Field,
		})
	case errors.As(err, &dErr):
		c.JSON(http.StatusConflict, gin.H{
			"error":            dErr.Error(),
			"medication_name":  dErr.MedicationName,
			"conflicting_time": dErr.ConflictingTime,
		})
	case errors.Is(err, treaterr.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &fErr):
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":    fErr.Error(),
			"captured": false,
		})
	case errors.As(err, &wErr):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":     wErr.Error(),
			"operation": wErr.Operation,
			"chunk":     wErr.Chunk,
		})
	case errors.As(err, &sErr):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":     sErr.Error(),
			"failed":    sErr.Failed,
			"succeeded": sErr.Succeeded,
		})
	default:
		h.logger.Error("unhandled error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func mustJSON(v any) []byte {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}
