package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/oryonaisystem-create/smartbar-system-sub000/internal/models"
	"github.com/oryonaisystem-create/smartbar-system-sub000/internal/shifts"
	"github.com/oryonaisystem-create/smartbar-system-sub000/pkg/logger"
	"github.com/oryonaisystem-create/smartbar-system-sub000/pkg/middleware"
)

const reportLinkTTL = 15 * time.Minute

// ReportLinker issues download links for archived closing reports.
type ReportLinker interface {
	ReportURL(ctx context.Context, s *shifts.Shift, expires time.Duration) (string, error)
}

type OpenShiftRequest struct {
	Operator       string       `json:"operator"`
	InitialBalance shifts.Money `json:"initialBalance"`
}

type CloseShiftRequest struct {
	Operator     string       `json:"operator"`
	FinalBalance shifts.Money `json:"finalBalance"`
	Notes        string       `json:"notes"`
}

type TransactionRequest struct {
	Type   shifts.TransactionType `json:"type" binding:"required"`
	Amount shifts.Money           `json:"amount"`
}

// ShiftsHandler exposes the register shift of this terminal.
type ShiftsHandler struct {
	ledger  *shifts.Ledger
	reports ReportLinker
}

// NewShiftsHandler builds the handler; reports may be nil when no archive is configured.
func NewShiftsHandler(l *shifts.Ledger, reports ReportLinker) *ShiftsHandler {
	return &ShiftsHandler{ledger: l, reports: reports}
}

// Register mounts the routes on rg, which must already run AuthMiddleware.
func (h *ShiftsHandler) Register(rg *gin.RouterGroup) {
	s := rg.Group("/shifts")
	s.GET("/current", h.Current)
	cashier := middleware.RequireRole(models.RoleAdmin, models.RoleWaiter)
	s.POST("/open", cashier, h.Open)
	s.POST("/close", cashier, h.Close)
	s.POST("/transactions", cashier, h.AddTransaction)
	if h.reports != nil {
		s.GET("/:id/report", middleware.RequireRole(models.RoleAdmin), h.Report)
	}
}

func (h *ShiftsHandler) Current(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"shift": h.ledger.Current()})
}

func (h *ShiftsHandler) Open(c *gin.Context) {
	var req OpenShiftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s, err := h.ledger.Open(c.Request.Context(), operatorName(c, req.Operator), req.InitialBalance)
	if err != nil {
		writeShiftError(c, "open", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"shift": s})
}

func (h *ShiftsHandler) Close(c *gin.Context) {
	var req CloseShiftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	report, err := h.ledger.Close(c.Request.Context(), operatorName(c, req.Operator), req.FinalBalance, req.Notes)
	if err != nil {
		writeShiftError(c, "close", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *ShiftsHandler) AddTransaction(c *gin.Context) {
	var req TransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !req.Type.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "type must be sale or expense"})
		return
	}
	tx, err := h.ledger.Record(c.Request.Context(), req.Type, req.Amount)
	if err != nil {
		writeShiftError(c, "record transaction", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"transaction": tx})
}

// Report returns a temporary link to the archived closing report.
func (h *ShiftsHandler) Report(c *gin.Context) {
	s, err := h.ledger.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeShiftError(c, "report", err)
		return
	}
	if s.Status != shifts.StatusClosed {
		c.JSON(http.StatusConflict, gin.H{"error": "shift is still open"})
		return
	}
	url, err := h.reports.ReportURL(c.Request.Context(), s, reportLinkTTL)
	if err != nil {
		writeShiftError(c, "report", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url, "expires_in": int(reportLinkTTL.Seconds())})
}

// operatorName falls back to the signed-in operator when the body names nobody.
func operatorName(c *gin.Context, requested string) string {
	if name := strings.TrimSpace(requested); name != "" {
		return name
	}
	snap, ok := middleware.SnapshotFrom(c)
	if !ok {
		return ""
	}
	if snap.DisplayName != "" {
		return snap.DisplayName
	}
	if snap.Session != nil {
		return snap.Session.Email
	}
	return ""
}

func writeShiftError(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, shifts.ErrShiftAlreadyOpen):
		c.JSON(http.StatusConflict, gin.H{"error": "a shift is already open"})
	case errors.Is(err, shifts.ErrNoOpenShift):
		c.JSON(http.StatusConflict, gin.H{"error": "no open shift"})
	case errors.Is(err, shifts.ErrInvalidAmount), errors.Is(err, shifts.ErrOperatorRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, shifts.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	default:
		logger.ErrorEvent().Str("component", "shifts").Str("op", op).Err(err).Msg("shift operation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to " + op + " shift", "details": err.Error()})
	}
}
