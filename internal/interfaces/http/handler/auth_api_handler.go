package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/dreschagin/pagespeed-monitor/internal/interfaces/http/middleware"
	"github.com/dreschagin/pagespeed-monitor/pkg/logger"
)

// sessionTTL задает срок жизни сессии дашборда
const sessionTTL = 12 * time.Hour

// AuthAPIHandler обменивает общий токен на сессионную cookie
type AuthAPIHandler struct {
	authConfig middleware.AuthConfig
	logger     *logger.Logger
}

type loginRequest struct {
	Token string `json:"token"`
}

type authState struct {
	Success       bool       `json:"success"`
	AuthEnabled   bool       `json:"auth_enabled"`
	Authenticated bool       `json:"authenticated"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

func NewAuthAPIHandler(authConfig middleware.AuthConfig, log *logger.Logger) *AuthAPIHandler {
	return &AuthAPIHandler{authConfig: authConfig, logger: log}
}

// Login проверяет токен и выдает подписанную сессию
func (h *AuthAPIHandler) Login(w http.ResponseWriter, r *http.Request) {
	if !h.authConfig.Enabled {
		middleware.WriteJSON(w, http.StatusOK, authState{Success: true, Authenticated: true})
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if !middleware.TokenMatches(strings.TrimSpace(req.Token), h.authConfig.BearerToken) {
		h.logger.Warn("Auth login failed", "remote_ip", middleware.ClientIP(r))
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	session, err := middleware.IssueSession(h.authConfig, sessionTTL)
	if err != nil {
		h.logger.Error("Failed to issue session", err)
		writeError(w, http.StatusInternalServerError, "failed to issue session")
		return
	}
	middleware.SetSessionCookie(w, session, r.TLS != nil, int(sessionTTL.Seconds()))

	expiresAt := time.Now().Add(sessionTTL).UTC()
	middleware.WriteJSON(w, http.StatusOK, authState{
		Success:       true,
		AuthEnabled:   true,
		Authenticated: true,
		ExpiresAt:     &expiresAt,
	})
}

// Logout удаляет cookie; сама сессия истечет по сроку
func (h *AuthAPIHandler) Logout(w http.ResponseWriter, r *http.Request) {
	middleware.SetSessionCookie(w, "", r.TLS != nil, -1)
	middleware.WriteJSON(w, http.StatusOK, authState{Success: true, AuthEnabled: h.authConfig.Enabled})
}

// Status сообщает дашборду, нужен ли вход
func (h *AuthAPIHandler) Status(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, authState{
		Success:       true,
		AuthEnabled:   h.authConfig.Enabled,
		Authenticated: middleware.ValidateRequestAuth(r, h.authConfig) == nil,
	})
}
