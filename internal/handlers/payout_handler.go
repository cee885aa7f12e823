package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/referly/backend/internal/services/earnings"
)

// PayoutHandler handles earnings calculation and payout endpoints
type PayoutHandler struct {
	earningsSvc *earnings.Service
}

// NewPayoutHandler creates a new payout handler
func NewPayoutHandler(earningsSvc *earnings.Service) *PayoutHandler {
	return &PayoutHandler{earningsSvc: earningsSvc}
}

// CalculateEarningsRequest is the body for a calculation preview
type CalculateEarningsRequest struct {
	RelationshipID uuid.UUID `json:"relationship_id" binding:"required"`
	ReferrerID     uuid.UUID `json:"referrer_id" binding:"required"`
	ReferredUserID uuid.UUID `json:"referred_user_id" binding:"required"`
}

// BulkPayoutRequest is the body for batch payout processing
type BulkPayoutRequest struct {
	RelationshipIDs []uuid.UUID `json:"relationship_ids" binding:"required,min=1"`
}

// CalculateEarnings previews the earnings for a relationship without paying
func (h *PayoutHandler) CalculateEarnings(c *gin.Context) {
	var req CalculateEarningsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	calc, err := h.earningsSvc.CalculateEarnings(req.RelationshipID, req.ReferrerID, req.ReferredUserID)
	if err != nil {
		status, body := earningsErrorResponse(err, "Failed to calculate earnings")
		c.JSON(status, body)
		return
	}

	c.JSON(http.StatusOK, gin.H{"calculation": calc})
}

// ProcessPayout executes a single payout (admin only)
func (h *PayoutHandler) ProcessPayout(c *gin.Context) {
	var req earnings.PayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if req.ProcessedBy == "" {
		if email, exists := c.Get("email"); exists {
			req.ProcessedBy, _ = email.(string)
		}
	}

	result, err := h.earningsSvc.ProcessPayout(req)
	if err != nil {
		status, body := earningsErrorResponse(err, "Failed to process payout")
		c.JSON(status, body)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payout": result})
}

// ProcessBulkPayouts executes payouts for a batch of relationships,
// each item independently (admin only)
func (h *PayoutHandler) ProcessBulkPayouts(c *gin.Context) {
	var req BulkPayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	processedBy := ""
	if email, exists := c.Get("email"); exists {
		processedBy, _ = email.(string)
	}

	result, err := h.earningsSvc.ProcessBulkPayouts(req.RelationshipIDs, processedBy)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process bulk payouts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": result})
}

// GetFriendPaymentHistory returns the caller's commission ledger for one
// referred friend
func (h *PayoutHandler) GetFriendPaymentHistory(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	friendID, err := uuid.Parse(c.Param("friendID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid friend id"})
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	history, err := h.earningsSvc.GetFriendPaymentHistory(userID.(uuid.UUID), friendID, page, limit)
	if err != nil {
		status, body := earningsErrorResponse(err, "Failed to load payment history")
		c.JSON(status, body)
		return
	}

	c.JSON(http.StatusOK, gin.H{"history": history})
}

// earningsErrorResponse maps earnings service errors to HTTP responses
func earningsErrorResponse(err error, fallback string) (int, gin.H) {
	var eerr *earnings.Error
	if !errors.As(err, &eerr) {
		return http.StatusInternalServerError, gin.H{"error": fallback}
	}

	status := http.StatusBadRequest
	switch eerr {
	case earnings.ErrRelationshipNotFound:
		status = http.StatusNotFound
	case earnings.ErrAlreadyPaid:
		status = http.StatusConflict
	case earnings.ErrAccessDenied:
		status = http.StatusForbidden
	case earnings.ErrNotEligible:
		status = http.StatusUnprocessableEntity
	}

	return status, gin.H{"error": eerr.Message, "code": eerr.Code}
}
