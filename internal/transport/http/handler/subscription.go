package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/ErlanBelekov/newsletter/internal/domain"
	"github.com/ErlanBelekov/newsletter/internal/usecase"
)

type subscriptionUsecaser interface {
	Subscribe(ctx context.Context, in usecase.SubscribeInput) error
	Confirm(ctx context.Context, rawToken string) error
}

type SubscriptionHandler struct {
	usecase subscriptionUsecaser
	logger  *slog.Logger
}

func NewSubscriptionHandler(uc subscriptionUsecaser, logger *slog.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{usecase: uc, logger: logger.With("component", "subscription_handler")}
}

type subscribeRequest struct {
	Name  string `form:"name"  binding:"required"`
	Email string `form:"email" binding:"required"`
}

type confirmRequest struct {
	Token string `form:"subscription_token" binding:"required"`
}

// Subscribe handles POST /subscriptions with a url-encoded form body.
func (h *SubscriptionHandler) Subscribe(ctx *gin.Context) {
	var req subscribeRequest
	if err := ctx.ShouldBindWith(&req, binding.Form); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": errInvalidSubscription})
		return
	}

	err := h.usecase.Subscribe(ctx.Request.Context(), usecase.SubscribeInput{
		Name:  req.Name,
		Email: req.Email,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidInput):
			ctx.JSON(http.StatusBadRequest, gin.H{"error": errInvalidSubscription})
		default:
			h.logger.ErrorContext(ctx.Request.Context(), "subscribe", "error", err)
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		}
		return
	}

	ctx.Status(http.StatusOK)
}

// Confirm handles GET /subscriptions/confirm?subscription_token=...
func (h *SubscriptionHandler) Confirm(ctx *gin.Context) {
	var req confirmRequest
	if err := ctx.ShouldBindQuery(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": errTokenInvalid})
		return
	}

	if err := h.usecase.Confirm(ctx.Request.Context(), req.Token); err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidToken):
			ctx.JSON(http.StatusBadRequest, gin.H{"error": errTokenInvalid})
		default:
			h.logger.ErrorContext(ctx.Request.Context(), "confirm subscription", "error", err)
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		}
		return
	}

	ctx.Status(http.StatusOK)
}

// HealthCheck is a liveness probe with an empty body.
func HealthCheck(ctx *gin.Context) {
	ctx.Status(http.StatusOK)
}
