package delivery

import (
	"errors"
	"net/http"
	"strconv"

	authdelivery "mailtrack-backend/internal/auth/delivery"
	"mailtrack-backend/internal/tracking/domain"
	"mailtrack-backend/internal/tracking/dto"
	"mailtrack-backend/internal/tracking/usecase"
	"mailtrack-backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type TrackingHandler struct {
	trackingUsecase usecase.TrackingUsecase
	frontendURL     string
	logger          *zap.Logger
}

func NewTrackingHandler(trackingUsecase usecase.TrackingUsecase, frontendURL string, log *zap.Logger) *TrackingHandler {
	return &TrackingHandler{
		trackingUsecase: trackingUsecase,
		frontendURL:     frontendURL,
		logger:          logger.OrNop(log).Named("http"),
	}
}

// RegisterRoutes mounts the email endpoints on rg. Every route except the
// OAuth callback requires auth.
func (h *TrackingHandler) RegisterRoutes(rg *gin.RouterGroup, auth gin.HandlerFunc) {
	rg.GET("/oauth/url", auth, h.GetOAuthURL)
	rg.GET("/oauth/callback", h.HandleOAuthCallback)

	rg.GET("/connection", auth, h.GetConnectionStatus)
	rg.DELETE("/connection", auth, h.Disconnect)

	rg.GET("/tracked", auth, h.GetTrackedEmails)
	rg.GET("/tracked/:id", auth, h.GetTrackedEmailByID)
	rg.PATCH("/tracked/:id/read", auth, h.MarkRead)

	rg.POST("/sync", auth, h.TriggerSync)
}

func (h *TrackingHandler) GetOAuthURL(c *gin.Context) {
	url, err := h.trackingUsecase.AuthURL(authdelivery.UserID(c))
	if err != nil {
		h.internalError(c, "Failed to generate OAuth URL", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": dto.AuthURLResponse{URL: url}})
}

func (h *TrackingHandler) HandleOAuthCallback(c *gin.Context) {
	code := c.Query("code")
	state := c.Query("state")
	if code == "" || state == "" {
		h.logger.Warn("oauth callback without code or state", zap.String("provider_error", c.Query("error")))
		h.redirectSettings(c, "email_error")
		return
	}

	userID, err := h.trackingUsecase.ResolveState(state)
	if err != nil {
		h.logger.Warn("oauth callback with invalid state", zap.Error(err))
		h.redirectSettings(c, "email_error")
		return
	}

	if err := h.trackingUsecase.CompleteAuthorization(c.Request.Context(), code, userID); err != nil {
		h.logger.Error("oauth callback failed", zap.String("user_id", userID), zap.Error(err))
		h.redirectSettings(c, "email_error")
		return
	}
	h.redirectSettings(c, "email_connected")
}

func (h *TrackingHandler) GetConnectionStatus(c *gin.Context) {
	status, err := h.trackingUsecase.ConnectionStatus(c.Request.Context(), authdelivery.UserID(c))
	if err != nil {
		h.internalError(c, "Failed to get connection status", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": status})
}

func (h *TrackingHandler) Disconnect(c *gin.Context) {
	err := h.trackingUsecase.Disconnect(c.Request.Context(), authdelivery.UserID(c))
	if errors.Is(err, domain.ErrConnectionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "No email connection found"})
		return
	}
	if err != nil {
		h.internalError(c, "Failed to disconnect email", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Email disconnected successfully"})
}

func (h *TrackingHandler) GetTrackedEmails(c *gin.Context) {
	query := dto.TrackedEmailQuery{
		Page:   1,
		Status: c.Query("status"),
	}
	if pageStr := c.Query("page"); pageStr != "" {
		if parsed, err := strconv.Atoi(pageStr); err == nil {
			query.Page = parsed
		}
	}
	if limitStr := c.Query("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil {
			query.Limit = parsed
		}
	}

	page, err := h.trackingUsecase.ListTrackedEmails(c.Request.Context(), authdelivery.UserID(c), query)
	if errors.Is(err, domain.ErrInvalidFilter) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status filter"})
		return
	}
	if err != nil {
		h.internalError(c, "Failed to get tracked emails", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": page})
}

func (h *TrackingHandler) GetTrackedEmailByID(c *gin.Context) {
	email, err := h.trackingUsecase.GetTrackedEmail(c.Request.Context(), authdelivery.UserID(c), c.Param("id"))
	if errors.Is(err, domain.ErrTrackedEmailNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Email not found"})
		return
	}
	if err != nil {
		h.internalError(c, "Failed to get tracked email", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": email})
}

func (h *TrackingHandler) MarkRead(c *gin.Context) {
	var req dto.MarkReadRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
	}
	read := true
	if req.IsRead != nil {
		read = *req.IsRead
	}

	err := h.trackingUsecase.MarkRead(c.Request.Context(), authdelivery.UserID(c), c.Param("id"), read)
	if errors.Is(err, domain.ErrTrackedEmailNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Email not found"})
		return
	}
	if err != nil {
		h.internalError(c, "Failed to update tracked email", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"id": c.Param("id"), "isRead": read}})
}

func (h *TrackingHandler) TriggerSync(c *gin.Context) {
	result, err := h.trackingUsecase.SyncEmails(c.Request.Context(), authdelivery.UserID(c))
	if err != nil {
		h.internalError(c, "Failed to trigger sync", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": dto.SyncResponse{
		Message:    "Sync completed successfully",
		Synced:     result.Scanned,
		Stored:     result.Stored,
		Reconciled: result.Reconciled,
	}})
}

func (h *TrackingHandler) redirectSettings(c *gin.Context, flag string) {
	c.Redirect(http.StatusFound, h.frontendURL+"/dashboard/settings?"+flag+"=true")
}

// internalError logs message and err. The client only sees a generic error.
func (h *TrackingHandler) internalError(c *gin.Context, message string, err error) {
	h.logger.Error(message,
		zap.String("user_id", authdelivery.UserID(c)),
		zap.String("path", c.FullPath()),
		zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
}
