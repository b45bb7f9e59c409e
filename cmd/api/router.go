package api

import (
	"net/http"

	authDelivery "mailtrack-backend/internal/auth/delivery"
	authUsecase "mailtrack-backend/internal/auth/usecase"
	trackingDelivery "mailtrack-backend/internal/tracking/delivery"
	"mailtrack-backend/internal/tracking/dto"
	"mailtrack-backend/pkg/config"

	"github.com/gin-gonic/gin"
)

const serviceName = "email-tracking-service"

func SetupRoutes(r *gin.Engine, authUsecase authUsecase.AuthUsecase, trackingHandler *trackingDelivery.TrackingHandler, cfg *config.Config) {
	// Health check (no auth required)
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, dto.HealthResponse{Status: "ok", Service: serviceName})
	})

	email := r.Group("/api/v1/email")
	trackingHandler.RegisterRoutes(email, authDelivery.AuthMiddleware(authUsecase, cfg.TrustUserHeader))
}
