package api_gateway

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/marketplace-settlement/internal/api_gateway/handler"
	"github.com/marketplace-settlement/internal/api_gateway/middleware"
)

// setupRouter configures API routes and middleware for the application
func setupRouter(
	logger *slog.Logger,
	r *gin.Engine,
	escrowHandler *handler.EscrowHandler,
	queryHandler *handler.QueryHandler,
) {
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CorrelationID())

	// API v1 endpoints
	v1 := r.Group("/api/v1")
	{
		// Escrow lifecycle
		escrows := v1.Group("/escrows")
		{
			escrows.POST("", escrowHandler.Create)
			escrows.GET("/:id", escrowHandler.GetByID)
			escrows.POST("/:id/fund", escrowHandler.Fund)
			escrows.POST("/:id/release", escrowHandler.Release)
			escrows.POST("/:id/refund", escrowHandler.Refund)
			escrows.POST("/:id/dispute", escrowHandler.Dispute)
			escrows.POST("/:id/resolve", escrowHandler.Resolve)
			escrows.GET("/:id/events", queryHandler.GetEscrowEvents)
		}

		// Read side
		wallets := v1.Group("/wallets")
		{
			wallets.GET("/:id", queryHandler.GetWallet)
			wallets.GET("/:id/transactions", queryHandler.GetWalletTransactions)
		}

		payouts := v1.Group("/payouts")
		{
			payouts.GET("/:id", queryHandler.GetPayout)
		}

		// Settlement event archive, newest first
		v1.GET("/events", queryHandler.GetEvents)
	}

	// Health check endpoint for monitoring
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
	})
}
