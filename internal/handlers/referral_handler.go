package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/referly/backend/internal/services/graph"
	"github.com/referly/backend/internal/services/referralcode"
	"github.com/referly/backend/internal/services/users"
)

// ReferralHandler handles referral code and relationship endpoints
type ReferralHandler struct {
	codeSvc  *referralcode.Service
	graphSvc *graph.Service
	userSvc  *users.UserService
}

// NewReferralHandler creates a new referral handler
func NewReferralHandler(codeSvc *referralcode.Service, graphSvc *graph.Service, userSvc *users.UserService) *ReferralHandler {
	return &ReferralHandler{codeSvc: codeSvc, graphSvc: graphSvc, userSvc: userSvc}
}

// CreateRelationshipRequest is the body for relationship creation
type CreateRelationshipRequest struct {
	ReferralCode   string     `json:"referral_code" binding:"required"`
	ReferredUserID *uuid.UUID `json:"referred_user_id"`
}

// GenerateCode issues a referral code for the authenticated user
func (h *ReferralHandler) GenerateCode(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	user, err := h.userSvc.GetUser(userID.(uuid.UUID))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to find user"})
		return
	}
	if user.ReferralCode != "" {
		c.JSON(http.StatusOK, gin.H{"referral_code": user.ReferralCode})
		return
	}

	code, err := h.codeSvc.Generate(referralcode.GenerateOptions{})
	if err != nil {
		if errors.Is(err, referralcode.ErrCodeGenerationExhausted) {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error": "Could not generate a unique code, please retry",
				"code":  "CODE_GENERATION_EXHAUSTED",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate referral code"})
		return
	}

	if err := h.userSvc.AssignReferralCode(user.ID, code); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Referral code already assigned"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"referral_code": code})
}

// ValidateCode checks whether a referral code can be used. Public, rate
// limited, used by the signup flow before an account exists.
func (h *ReferralHandler) ValidateCode(c *gin.Context) {
	result, err := h.codeSvc.Validate(c.Param("code"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to validate referral code"})
		return
	}

	response := gin.H{
		"is_valid": result.IsValid,
		"code":     result.Code,
	}
	if !result.IsValid {
		response["reason"] = result.Reason
	}
	if result.Referrer != nil {
		response["referrer"] = gin.H{
			"id":   result.Referrer.ID,
			"name": result.Referrer.Name,
		}
	}

	c.JSON(http.StatusOK, response)
}

// CreateRelationship records that the caller (or an explicit referred user)
// was referred by the owner of the submitted code.
func (h *ReferralHandler) CreateRelationship(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req CreateRelationshipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	validation, err := h.codeSvc.Validate(req.ReferralCode)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to validate referral code"})
		return
	}
	if !validation.IsValid {
		c.JSON(http.StatusBadRequest, gin.H{"error": validation.Reason, "code": "INVALID_CODE"})
		return
	}

	referredID := userID.(uuid.UUID)
	if req.ReferredUserID != nil {
		referredID = *req.ReferredUserID
	}

	relationship, err := h.graphSvc.CreateRelationship(validation.Referrer.ID, referredID, validation.Code)
	if err != nil {
		status, body := graphErrorResponse(err)
		c.JSON(status, body)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"relationship": relationship})
}

// CheckCircularReference is the pre-flight cycle check used by clients
// before committing to a code.
func (h *ReferralHandler) CheckCircularReference(c *gin.Context) {
	referrerID, err := uuid.Parse(c.Query("referrer_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid referrer_id"})
		return
	}
	referredID, err := uuid.Parse(c.Query("referred_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid referred_id"})
		return
	}

	result, err := h.graphSvc.CheckCircularReference(referrerID, referredID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check for circular reference"})
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetReferralChain returns a user's ancestor chain up to the walk bound
func (h *ReferralHandler) GetReferralChain(c *gin.Context) {
	targetID, err := uuid.Parse(c.Param("userID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user id"})
		return
	}

	chain, err := h.graphSvc.GetReferralChain(targetID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load referral chain"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"chain": chain, "levels": len(chain)})
}

// GetStats returns aggregate referral graph statistics (admin only)
func (h *ReferralHandler) GetStats(c *gin.Context) {
	stats, err := h.graphSvc.GetRelationshipStats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute referral stats"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

// ClearCodeCache empties the pre-generation cache (admin maintenance)
func (h *ReferralHandler) ClearCodeCache(c *gin.Context) {
	h.codeSvc.ClearCache()
	c.JSON(http.StatusOK, gin.H{"message": "Referral code cache cleared"})
}

// graphErrorResponse maps graph service errors to HTTP responses
func graphErrorResponse(err error) (int, gin.H) {
	var gerr *graph.Error
	if !errors.As(err, &gerr) {
		return http.StatusInternalServerError, gin.H{"error": "Failed to create relationship"}
	}

	status := http.StatusBadRequest
	switch gerr {
	case graph.ErrReferrerNotFound, graph.ErrReferredNotFound:
		status = http.StatusNotFound
	case graph.ErrExistingRelationship, graph.ErrCircularReference, graph.ErrReferralLimitExceeded:
		status = http.StatusConflict
	}

	return status, gin.H{"error": gerr.Message, "code": gerr.Code}
}
