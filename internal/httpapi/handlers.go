package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"telehealth-platform/internal/audit"
	"telehealth-platform/internal/auth"
	"telehealth-platform/internal/calls"
	"telehealth-platform/internal/callsession"
	"telehealth-platform/internal/rbac"
	"telehealth-platform/internal/reporting"
	"telehealth-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth    *auth.Manager
	Calls   *callsession.Registry
	Reports *reporting.Service
	Audit   *audit.Service
	Log     *slog.Logger
}

// --- Auth ---

type loginRequest struct {
	UserID   string `json:"user_id"`
	ClinicID string `json:"clinic_id"`
	Role     string `json:"role"`
	Name     string `json:"name"`
}

// Login issues a JWT token pair.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate credentials.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.ClinicID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, clinic_id, role required"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), auth.Identity{UserID: req.UserID, ClinicID: req.ClinicID, Role: req.Role, Name: req.Name})
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Calls ---

type startCallRequest struct {
	SessionChannel string     `json:"session_channel"`
	RemoteID       string     `json:"remote_id"`
	CallType       calls.Kind `json:"call_type"`
}

type channelRequest struct {
	SessionChannel string `json:"session_channel"`
}

type incomingRequest struct {
	SessionChannel string     `json:"session_channel"`
	CallerID       string     `json:"caller_id"`
	CallerName     string     `json:"caller_name"`
	CallType       calls.Kind `json:"call_type"`
}

// manager resolves the caller's call manager. It writes the error response itself.
func (h Handlers) manager(c *gin.Context) (*callsession.Manager, bool) {
	if h.Calls == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "calls not configured"})
		return nil, false
	}
	id, err := auth.IdentityFrom(c.Request.Context())
	if err != nil || id.ClinicID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "clinic_id required"})
		return nil, false
	}
	name := id.Name
	if name == "" {
		name = id.UserID
	}
	m := h.Calls.Get(callsession.Participant{ID: id.UserID, DisplayName: name, ClinicID: id.ClinicID})
	if m == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "shutting down"})
		return nil, false
	}
	return m, true
}

// actionContext detaches call actions from the request so a dropped HTTP
// client cannot leave a half-built session behind.
func actionContext(c *gin.Context) context.Context {
	return context.WithoutCancel(c.Request.Context())
}

// StartCall places a call. RBAC: doctor or patient.
func (h Handlers) StartCall(c *gin.Context) {
	m, ok := h.manager(c)
	if !ok {
		return
	}
	var req startCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.CallType == "" {
		req.CallType = calls.KindVideo
	}
	if err := m.StartCall(actionContext(c), req.SessionChannel, req.RemoteID, req.CallType); err != nil {
		h.callError(c, "start", err)
		return
	}
	c.JSON(http.StatusCreated, m.State())
}

// Watch subscribes the caller to an appointment channel so offers on it ring.
func (h Handlers) Watch(c *gin.Context) {
	m, ok := h.manager(c)
	if !ok {
		return
	}
	var req channelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if err := m.Watch(actionContext(c), req.SessionChannel); err != nil {
		h.callError(c, "watch", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "watching", "session_channel": req.SessionChannel})
}

// Unwatch stops ringing for offers on an appointment channel.
func (h Handlers) Unwatch(c *gin.Context) {
	m, ok := h.manager(c)
	if !ok {
		return
	}
	var req channelRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.SessionChannel == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "session_channel required"})
		return
	}
	m.Unwatch(req.SessionChannel)
	c.Status(http.StatusNoContent)
}

// Incoming rings for a call announced by another service (push notification, appointment reminder).
func (h Handlers) Incoming(c *gin.Context) {
	m, ok := h.manager(c)
	if !ok {
		return
	}
	var req incomingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if err := m.NotifyIncoming(actionContext(c), req.SessionChannel, req.CallerID, req.CallerName, req.CallType); err != nil {
		h.callError(c, "incoming", err)
		return
	}
	c.JSON(http.StatusOK, m.State())
}

func (h Handlers) AcceptCall(c *gin.Context) {
	m, ok := h.manager(c)
	if !ok {
		return
	}
	if err := m.AcceptCall(actionContext(c)); err != nil {
		h.callError(c, "accept", err)
		return
	}
	c.JSON(http.StatusOK, m.State())
}

func (h Handlers) RejectCall(c *gin.Context) {
	m, ok := h.manager(c)
	if !ok {
		return
	}
	if err := m.RejectCall(actionContext(c)); err != nil {
		h.callError(c, "reject", err)
		return
	}
	c.JSON(http.StatusOK, m.State())
}

// EndCall always succeeds; ending without a call is a no-op.
func (h Handlers) EndCall(c *gin.Context) {
	m, ok := h.manager(c)
	if !ok {
		return
	}
	_ = m.EndCall(actionContext(c))
	c.JSON(http.StatusOK, m.State())
}

func (h Handlers) ToggleAudio(c *gin.Context) {
	m, ok := h.manager(c)
	if !ok {
		return
	}
	enabled := m.ToggleAudio()
	c.JSON(http.StatusOK, gin.H{"enabled": enabled, "state": m.State()})
}

func (h Handlers) ToggleVideo(c *gin.Context) {
	m, ok := h.manager(c)
	if !ok {
		return
	}
	enabled := m.ToggleVideo()
	c.JSON(http.StatusOK, gin.H{"enabled": enabled, "state": m.State()})
}

func (h Handlers) CallState(c *gin.Context) {
	m, ok := h.manager(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, m.State())
}

func (h Handlers) callError(c *gin.Context, action string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, callsession.ErrInvalidRequest), errors.Is(err, calls.ErrInvalidRecord):
		status = http.StatusBadRequest
	case errors.Is(err, callsession.ErrNoSession):
		status = http.StatusNotFound
	case errors.Is(err, callsession.ErrSessionActive),
		errors.Is(err, callsession.ErrInvalidPhase),
		errors.Is(err, callsession.ErrParticipantBusy),
		errors.Is(err, callsession.ErrSessionClosed):
		status = http.StatusConflict
	case errors.Is(err, callsession.ErrOfferTimeout):
		status = http.StatusGatewayTimeout
	}
	if status == http.StatusInternalServerError {
		h.logger(c).Error("call action failed", "action", action, "err", err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func (h Handlers) logger(c *gin.Context) *slog.Logger {
	return logger.FromGin(c, h.Log)
}

// --- Reporting ---

// AdminCallsSummary aggregates call history for the caller's clinic.
// RBAC: clinic_admin or super_admin.
func (h Handlers) AdminCallsSummary(c *gin.Context) {
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}
	id, err := auth.IdentityFrom(c.Request.Context())
	if err != nil || id.ClinicID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "clinic_id required"})
		return
	}

	to := time.Now().UTC()
	from := to.Add(-30 * 24 * time.Hour)
	if v := c.Query("from"); v != "" {
		if from, err = time.Parse(time.RFC3339, v); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from must be RFC3339"})
			return
		}
	}
	if v := c.Query("to"); v != "" {
		if to, err = time.Parse(time.RFC3339, v); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must be RFC3339"})
			return
		}
	}

	out, err := h.Reports.CallsSummary(c.Request.Context(), reporting.CallsSummaryRequest{
		ClinicID:      id.ClinicID,
		ParticipantID: c.Query("participant_id"),
		Range:         reporting.TimeRange{From: from, To: to},
	})
	if err != nil {
		if errors.Is(err, reporting.ErrInvalidRequest) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger(c).Error("calls summary failed", "clinic_id", id.ClinicID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "summary failed"})
		return
	}

	if h.Audit != nil {
		if err := h.Audit.LogAdminAction(c.Request.Context(), id.ClinicID, id.UserID, id.Role, c.ClientIP(), "viewed calls summary", ""); err != nil {
			h.logger(c).Debug("audit append failed", "err", err)
		}
	}
	c.JSON(http.StatusOK, out)
}

// Convenience middleware bundles.

func RequireClinicAndAnyRole(roles ...string) []gin.HandlerFunc {
	return []gin.HandlerFunc{rbac.RequireClinic(), rbac.RequireAnyRole(roles...)}
}
