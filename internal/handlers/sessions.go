package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/launchpad/internal/auth"
	"github.com/charlesng35/launchpad/internal/middleware"
	"github.com/charlesng35/launchpad/internal/models"
	"github.com/charlesng35/launchpad/pkg/response"
)

// SessionHandler serves the session heartbeat and the dashboard session list.
type SessionHandler struct {
	sessions *auth.SessionService
}

func NewSessionHandler(sessions *auth.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

type sessionResponse struct {
	ID         string    `json:"id"`
	Current    bool      `json:"current"`
	IPAddress  string    `json:"ip_address"`
	DeviceType string    `json:"device_type"`
	Browser    string    `json:"browser"`
	OS         string    `json:"os"`
	Location   string    `json:"location"`
	LastActive time.Time `json:"last_active"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// toSessionResponse never exposes the session token itself.
func toSessionResponse(session *models.Session, currentToken string) sessionResponse {
	return sessionResponse{
		ID:         session.ID,
		Current:    currentToken != "" && session.SessionToken == currentToken,
		IPAddress:  session.IPAddress,
		DeviceType: session.DeviceType,
		Browser:    session.Browser,
		OS:         session.OS,
		Location:   session.Location,
		LastActive: session.LastActive,
		CreatedAt:  session.CreatedAt,
		ExpiresAt:  session.ExpiresAt,
	}
}

// Update POST /api/session/update
//
// The heartbeat always answers 200 for an authenticated caller; metadata failures are
// logged by the session service.
func (h *SessionHandler) Update(c *gin.Context) {
	h.sessions.UpdateSessionInfo(requestContext(c), sessionToken(c), requestMetadata(c))
	response.Success(c, http.StatusOK, gin.H{"updated": true})
}

// List GET /api/sessions
func (h *SessionHandler) List(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	sessions, err := h.sessions.ListForUser(requestContext(c), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	current := sessionToken(c)
	items := make([]sessionResponse, 0, len(sessions))
	for i := range sessions {
		items = append(items, toSessionResponse(&sessions[i], current))
	}
	response.Success(c, http.StatusOK, gin.H{"sessions": items})
}
