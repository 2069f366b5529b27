package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ErlanBelekov/newsletter/internal/domain"
)

type subscriberFinder interface {
	FindSubscriber(ctx context.Context, email string) (*domain.Subscriber, error)
}

type AdminHandler struct {
	usecase subscriberFinder
	logger  *slog.Logger
}

func NewAdminHandler(uc subscriberFinder, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{usecase: uc, logger: logger.With("component", "admin_handler")}
}

type subscriberResponse struct {
	ID           string        `json:"id"`
	Email        string        `json:"email"`
	Name         string        `json:"name"`
	Status       domain.Status `json:"status"`
	SubscribedAt time.Time     `json:"subscribed_at"`
}

func (h *AdminHandler) GetSubscriber(ctx *gin.Context) {
	s, err := h.usecase.FindSubscriber(ctx.Request.Context(), ctx.Query("email"))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidInput):
			ctx.JSON(http.StatusBadRequest, gin.H{"error": errInvalidEmail})
		case errors.Is(err, domain.ErrSubscriberNotFound):
			ctx.JSON(http.StatusNotFound, gin.H{"error": errSubscriberNotFound})
		default:
			h.logger.ErrorContext(ctx.Request.Context(), "find subscriber", "error", err)
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		}
		return
	}

	ctx.JSON(http.StatusOK, subscriberResponse{
		ID:           s.ID,
		Email:        s.Email,
		Name:         s.Name,
		Status:       s.Status,
		SubscribedAt: s.SubscribedAt,
	})
}
