package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/oryonaisystem-create/smartbar-system-sub000/internal/telemetry"
)

const maxClientEvents = 50

// ClientEvent is a diagnostic event reported by the dashboard UI.
type ClientEvent struct {
	Type     string                 `json:"type" binding:"required"`
	Severity telemetry.Severity     `json:"severity"`
	Message  string                 `json:"message"`
	Context  map[string]interface{} `json:"context"`
	Path     string                 `json:"path"`
}

// TelemetryRequest accepts a single event or a batch.
type TelemetryRequest struct {
	Events []ClientEvent `json:"events" binding:"required,min=1,dive"`
}

type TelemetryHandler struct {
	recorder telemetry.Recorder
	identity IdentityState
}

func NewTelemetryHandler(r telemetry.Recorder, s IdentityState) *TelemetryHandler {
	return &TelemetryHandler{recorder: r, identity: s}
}

func (h *TelemetryHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/telemetry", h.Ingest)
}

// Ingest enqueues client events. Delivery is asynchronous so the response is 202.
func (h *TelemetryHandler) Ingest(c *gin.Context) {
	var req TelemetryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Events) > maxClientEvents {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "too many events"})
		return
	}
	for _, ev := range req.Events {
		if !validSeverity(ev.Severity) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid severity " + string(ev.Severity)})
			return
		}
	}

	var userID string
	if h.identity != nil {
		if snap := h.identity.Snapshot(); snap.Authenticated() {
			userID = snap.Session.UserID
		}
	}
	for _, ev := range req.Events {
		h.recorder.Record(telemetry.Event{
			Type:     strings.TrimSpace(ev.Type),
			Severity: ev.Severity,
			Message:  ev.Message,
			Context:  ev.Context,
			Path:     ev.Path,
			UserID:   userID,
		})
	}
	c.JSON(http.StatusAccepted, gin.H{"accepted": len(req.Events)})
}

func validSeverity(s telemetry.Severity) bool {
	switch s {
	case "", telemetry.SeverityInfo, telemetry.SeverityWarning, telemetry.SeverityError, telemetry.SeverityCritical:
		return true
	}
	return false
}
