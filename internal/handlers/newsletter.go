package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/launchpad/internal/services"
	"github.com/charlesng35/launchpad/pkg/response"
)

type NewsletterHandler struct {
	newsletter *services.NewsletterService
}

func NewNewsletterHandler(newsletter *services.NewsletterService) *NewsletterHandler {
	return &NewsletterHandler{newsletter: newsletter}
}

// Subscribe POST /api/newsletter/subscribe
func (h *NewsletterHandler) Subscribe(c *gin.Context) {
	var req emailRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.newsletter.Subscribe(requestContext(c), req.Email); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusAccepted, gin.H{
		"message": "Check your inbox to confirm your subscription",
	})
}

// Confirm GET /api/newsletter/confirm?token=
func (h *NewsletterHandler) Confirm(c *gin.Context) {
	token, ok := queryToken(c)
	if !ok {
		return
	}

	subscriber, err := h.newsletter.Confirm(requestContext(c), token)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"email":        subscriber.Email,
		"confirmed_at": subscriber.ConfirmedAt,
	})
}
