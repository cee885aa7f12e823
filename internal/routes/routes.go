package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/referly/backend/internal/handlers"
	"github.com/referly/backend/internal/middleware"
)

// RegisterRoutes configures all API routes
func RegisterRoutes(router *gin.Engine, referralHandler *handlers.ReferralHandler, payoutHandler *handlers.PayoutHandler) {
	// The public validation endpoint gets its own, tighter limiter
	validateLimiter := middleware.NewRateLimiter(2, 5)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	referrals := router.Group("/api/referrals")
	{
		// Public: signup flow checks codes before an account exists
		referrals.GET("/code/validate/:code",
			validateLimiter.IPRateLimiterMiddleware(),
			referralHandler.ValidateCode)

		// Authenticated user routes
		protected := referrals.Group("/")
		protected.Use(middleware.AuthMiddleware())
		{
			protected.POST("/code/generate", referralHandler.GenerateCode)
			protected.POST("/relationships", referralHandler.CreateRelationship)
			protected.GET("/relationships/check", referralHandler.CheckCircularReference)
			protected.GET("/chain/:userID", referralHandler.GetReferralChain)
			protected.GET("/friends/:friendID/payments", payoutHandler.GetFriendPaymentHistory)
			protected.POST("/payouts/calculate", payoutHandler.CalculateEarnings)
		}

		// Admin routes
		admin := referrals.Group("/")
		admin.Use(middleware.AuthMiddleware(), middleware.AdminMiddleware())
		{
			admin.GET("/stats", referralHandler.GetStats)
			admin.POST("/payouts", payoutHandler.ProcessPayout)
			admin.POST("/payouts/bulk", payoutHandler.ProcessBulkPayouts)
			admin.POST("/code/cache/clear", referralHandler.ClearCodeCache)
		}
	}
}
