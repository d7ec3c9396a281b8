package api

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"relief-alert-service/internal/apperr"
	"relief-alert-service/internal/intake"
	"relief-alert-service/internal/logging"
	"relief-alert-service/internal/models"
	"relief-alert-service/internal/notification"
	"relief-alert-service/internal/scheduler"
)

// Simulator is the manual side of the scheduler.
type Simulator interface {
	Trigger(ctx context.Context) (notification.Result, error)
	Running() bool
	LastRun() (scheduler.RunReport, bool)
}

type Handler struct {
	intake    *intake.Service
	settings  *notification.Settings
	simulator Simulator
	logger    *logging.Logger
}

func NewHandler(in *intake.Service, settings *notification.Settings, simulator Simulator, logger *logging.Logger) *Handler {
	return &Handler{intake: in, settings: settings, simulator: simulator, logger: logger}
}

func success(c *gin.Context, code int, message string, extra gin.H) {
	body := gin.H{"status": "success", "message": message}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(code, body)
}

func fail(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{"status": "error", "message": message})
}

// writeError maps service errors onto status codes. Anything unrecognised is
// logged and reported as a generic failure.
func (h *Handler) writeError(c *gin.Context, err error, action string) {
	var rl *apperr.RateLimitedError
	var invalid *apperr.ValidationError
	switch {
	case errors.As(err, &rl):
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(rl.RetryAfter.Seconds()))))
		fail(c, http.StatusTooManyRequests, "Too many requests, try again later")
	case errors.Is(err, apperr.ErrRateLimited):
		fail(c, http.StatusTooManyRequests, "Too many requests, try again later")
	case errors.As(err, &invalid):
		fail(c, http.StatusBadRequest, invalid.Error())
	case errors.Is(err, apperr.ErrNotFound):
		fail(c, http.StatusNotFound, "Not found")
	default:
		h.logger.Errorf("Failed to %s: %v", action, err)
		fail(c, http.StatusInternalServerError, "Failed to "+action)
	}
}

func (h *Handler) reportID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		fail(c, http.StatusBadRequest, "Invalid id")
		return 0, false
	}
	return id, true
}

func (h *Handler) CreateHelpCall(c *gin.Context) {
	var req intake.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		// still counts against the client's quota
		req = intake.SubmitRequest{}
	}
	report, err := h.intake.Submit(c.Request.Context(), c.ClientIP(), userID(c), req)
	if err != nil {
		h.writeError(c, err, "create help call")
		return
	}
	success(c, http.StatusCreated, "Help call created", gin.H{"data": report})
}

func (h *Handler) ListHelpCalls(c *gin.Context) {
	status := models.ReportStatus(c.Query("status"))
	reports, err := h.intake.List(c.Request.Context(), userID(c), status)
	if err != nil {
		h.writeError(c, err, "list help calls")
		return
	}
	success(c, http.StatusOK, "Help calls retrieved", gin.H{"data": reports})
}

func (h *Handler) UpdateHelpCall(c *gin.Context) {
	id, ok := h.reportID(c)
	if !ok {
		return
	}
	var req intake.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.intake.UpdateContent(c.Request.Context(), userID(c), id, req); err != nil {
		h.writeError(c, err, "update help call")
		return
	}
	success(c, http.StatusOK, "Help call updated", nil)
}

func (h *Handler) UpdateHelpCallStatus(c *gin.Context) {
	id, ok := h.reportID(c)
	if !ok {
		return
	}
	var req struct {
		Status models.ReportStatus `json:"status"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.intake.UpdateStatus(c.Request.Context(), userID(c), id, req.Status); err != nil {
		h.writeError(c, err, "update help call status")
		return
	}
	success(c, http.StatusOK, "Help call status updated", nil)
}

func (h *Handler) DeleteHelpCall(c *gin.Context) {
	id, ok := h.reportID(c)
	if !ok {
		return
	}
	if err := h.intake.Delete(c.Request.Context(), userID(c), id); err != nil {
		h.writeError(c, err, "delete help call")
		return
	}
	success(c, http.StatusOK, "Help call deleted", nil)
}

func (h *Handler) GetPreferences(c *gin.Context) {
	pref, err := h.settings.Preferences(c.Request.Context(), userID(c))
	if err != nil {
		h.writeError(c, err, "load notification settings")
		return
	}
	success(c, http.StatusOK, "Notification settings retrieved", gin.H{"data": pref})
}

func (h *Handler) SavePreferences(c *gin.Context) {
	var update models.PreferenceUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	pref, err := h.settings.SavePreferences(c.Request.Context(), userID(c), update)
	if err != nil {
		h.writeError(c, err, "save notification settings")
		return
	}
	success(c, http.StatusOK, "Notification settings saved", gin.H{"data": pref})
}

func (h *Handler) RegisterToken(c *gin.Context) {
	var req struct {
		Token string `json:"expo_token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.settings.RegisterToken(c.Request.Context(), userID(c), req.Token); err != nil {
		h.writeError(c, err, "save push token")
		return
	}
	success(c, http.StatusOK, "Push token saved", nil)
}

func (h *Handler) SendDemo(c *gin.Context) {
	res, err := h.settings.SendDemo(c.Request.Context(), userID(c))
	if err != nil {
		h.writeError(c, err, "send demo notification")
		return
	}
	success(c, http.StatusOK, "Demo notification sent", gin.H{
		"response": gin.H{"status_code": res.StatusCode, "body": res.Body},
	})
}

func (h *Handler) SimulateEarthquake(c *gin.Context) {
	res, err := h.simulator.Trigger(c.Request.Context())
	if err != nil {
		h.writeError(c, err, "run simulation")
		return
	}
	success(c, http.StatusOK, "Simulation completed", gin.H{
		"results": res.Outcomes,
		"summary": res.Summary,
	})
}

func (h *Handler) Health(c *gin.Context) {
	body := gin.H{"status": "ok", "scheduler_running": h.simulator.Running()}
	if last, ok := h.simulator.LastRun(); ok {
		run := gin.H{
			"trigger":     last.Trigger,
			"started_at":  last.StartedAt,
			"finished_at": last.FinishedAt,
			"succeeded":   last.Summary.Succeeded,
			"failed":      last.Summary.Failed,
		}
		if last.Err != nil {
			run["error"] = last.Err.Error()
		}
		body["last_run"] = run
	}
	c.JSON(http.StatusOK, body)
}
