package handler

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/dreschagin/pagespeed-monitor/internal/application/dto"
	"github.com/dreschagin/pagespeed-monitor/internal/domain/valueobject"
	wsInfra "github.com/dreschagin/pagespeed-monitor/internal/infrastructure/notification/websocket"
	"github.com/dreschagin/pagespeed-monitor/internal/interfaces/http/middleware"
	"github.com/dreschagin/pagespeed-monitor/pkg/logger"
)

// maxSubscribers ограничивает число открытых вкладок дашборда на один процесс
const maxSubscribers = 512

// StatusSource отдает снимок статуса запуска
type StatusSource interface {
	Status() *dto.RunStatusDTO
}

// originPolicy разрешает подключение только с перечисленных origin.
// Пустой список запрещает все, "*" разрешает любой.
type originPolicy struct {
	any     bool
	allowed map[string]struct{}
}

func newOriginPolicy(origins []string) originPolicy {
	policy := originPolicy{allowed: make(map[string]struct{}, len(origins))}
	for _, origin := range origins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		switch origin {
		case "":
		case "*":
			policy.any = true
		default:
			policy.allowed[origin] = struct{}{}
		}
	}
	return policy
}

func (p originPolicy) check(r *http.Request) bool {
	parsed, err := url.Parse(strings.TrimSpace(r.Header.Get("Origin")))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return false
	}
	if p.any {
		return true
	}
	_, ok := p.allowed[parsed.Scheme+"://"+parsed.Host]
	return ok
}

// WebSocketHandler подписывает дашборд на события запусков
type WebSocketHandler struct {
	hub        *wsInfra.Hub
	status     StatusSource
	authConfig middleware.AuthConfig
	upgrader   websocket.Upgrader
	logger     *logger.Logger
}

func NewWebSocketHandler(
	hub *wsInfra.Hub,
	status StatusSource,
	allowedOrigins []string,
	authConfig middleware.AuthConfig,
	logger *logger.Logger,
) *WebSocketHandler {
	policy := newOriginPolicy(allowedOrigins)
	return &WebSocketHandler{
		hub:        hub,
		status:     status,
		authConfig: authConfig,
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Сообщения measurement содержат списки аудитов и хорошо сжимаются
			EnableCompression: true,
			CheckOrigin:       policy.check,
		},
	}
}

// HandleConnection проверяет доступ и фильтр до upgrade: после него HTTP-ответ уже не отправить
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	if err := middleware.ValidateRequestAuth(r, h.authConfig); err != nil {
		h.logger.Warn("WebSocket unauthorized", "remote_ip", middleware.ClientIP(r))
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	// ?network=Mobile|Desktop ограничивает поток записей одним профилем
	filter, err := valueobject.ParseNetworkFilter(r.URL.Query().Get("network"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if h.hub.ClientCount() >= maxSubscribers {
		h.logger.Warn("WebSocket subscriber limit reached", "limit", maxSubscribers)
		writeError(w, http.StatusServiceUnavailable, "too many subscribers")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrader уже ответил клиенту
		h.logger.Warn("WebSocket upgrade failed", "remote_ip", middleware.ClientIP(r), "error", err.Error())
		return
	}

	client := wsInfra.NewClient(h.hub, conn, filter, h.logger)

	// Текущий статус получает только новый клиент
	if h.status != nil {
		client.Deliver(h.hub.Snapshot(wsInfra.MessageRunStatus, h.status.Status()))
	}
	h.hub.Register(client)
	h.logger.Debug("WebSocket subscribed", "client_id", client.ID(), "network", filter.String())

	go client.WritePump()
	go client.ReadPump()
}
