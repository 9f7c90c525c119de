package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dreschagin/pagespeed-monitor/pkg/logger"
)

var ErrUnauthorized = errors.New("unauthorized")

const (
	AuthCookieName = "pagespeed_session"

	sessionSubject = "dashboard"
	sessionIssuer  = "pagespeed-monitor"
)

// AuthConfig описывает доступ по общему токену.
// Браузер получает не сам токен, а подписанную им сессию в cookie.
type AuthConfig struct {
	Enabled     bool
	BearerToken string
}

// sessionClaims хранит только срок действия: сессия дашборда обезличена
type sessionClaims struct {
	jwt.RegisteredClaims
}

// sessionKey выводится из общего токена, поэтому смена AUTH_TOKEN отзывает все сессии
func (c AuthConfig) sessionKey() []byte {
	sum := sha256.Sum256([]byte("pagespeed-session:" + c.BearerToken))
	return sum[:]
}

// IssueSession подписывает сессию для cookie
func IssueSession(cfg AuthConfig, ttl time.Duration) (string, error) {
	if strings.TrimSpace(cfg.BearerToken) == "" {
		return "", ErrUnauthorized
	}
	now := time.Now()
	claims := sessionClaims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   sessionSubject,
		Issuer:    sessionIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(cfg.sessionKey())
}

// ValidateSession проверяет подпись, срок и издателя сессии
func ValidateSession(cfg AuthConfig, session string) error {
	if session == "" || strings.TrimSpace(cfg.BearerToken) == "" {
		return ErrUnauthorized
	}
	token, err := jwt.ParseWithClaims(session, &sessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return cfg.sessionKey(), nil
	},
		jwt.WithIssuer(sessionIssuer),
		jwt.WithSubject(sessionSubject),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return ErrUnauthorized
	}
	return nil
}

// Auth защищает endpoint общим Bearer token или сессионной cookie
func Auth(cfg AuthConfig, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := ValidateRequestAuth(r, cfg); err != nil {
				log.Warn("Unauthorized request", "path", r.URL.Path, "method", r.Method, "remote_ip", ClientIP(r))
				w.Header().Set("WWW-Authenticate", `Bearer realm="pagespeed-monitor"`)
				WriteJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ValidateRequestAuth принимает токен из Authorization или ?token
// (браузерный WebSocket не умеет слать заголовки), либо сессию из cookie.
func ValidateRequestAuth(r *http.Request, cfg AuthConfig) error {
	if !cfg.Enabled {
		return nil
	}
	if strings.TrimSpace(cfg.BearerToken) == "" {
		return ErrUnauthorized
	}

	if TokenMatches(ExtractToken(r), cfg.BearerToken) {
		return nil
	}
	if c, err := r.Cookie(AuthCookieName); err == nil {
		return ValidateSession(cfg, strings.TrimSpace(c.Value))
	}
	return ErrUnauthorized
}

// TokenMatches сравнивает токены за постоянное время
func TokenMatches(got, want string) bool {
	if got == "" || want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// ExtractToken достает общий токен из заголовка или query
func ExtractToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

// SetSessionCookie пишет cookie; maxAge < 0 удаляет ее
func SetSessionCookie(w http.ResponseWriter, value string, secure bool, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     AuthCookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}

func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
