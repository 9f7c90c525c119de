package websocket

import (
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/dreschagin/pagespeed-monitor/internal/application/dto"
	"github.com/dreschagin/pagespeed-monitor/internal/domain/valueobject"
	"github.com/dreschagin/pagespeed-monitor/pkg/logger"
)

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
	// pingPeriod должен быть меньше pongWait
	pingPeriod = pongWait * 9 / 10

	// Клиент дашборда ничего не отправляет, кроме control frames
	maxMessageSize = 512

	// Полный запуск по всем профилям дает до двух сообщений на цель
	sendBufferSize = 256
)

// Client представляет подписчика на события запусков.
// filter ограничивает сообщения measurement одним сетевым профилем.
type Client struct {
	id     string
	conn   *websocket.Conn
	hub    *Hub
	filter valueobject.NetworkFilter
	send   chan Message
	logger *logger.Logger
}

// NewClient создает клиента; filter по умолчанию пропускает все профили
func NewClient(hub *Hub, conn *websocket.Conn, filter valueobject.NetworkFilter, logger *logger.Logger) *Client {
	return &Client{
		id:     uuid.NewString(),
		conn:   conn,
		hub:    hub,
		filter: filter,
		send:   make(chan Message, sendBufferSize),
		logger: logger,
	}
}

// ID возвращает идентификатор клиента для логов
func (c *Client) ID() string {
	return c.id
}

// Deliver ставит сообщение в очередь только этого клиента.
// Вызывается до Register: после регистрации каналом владеет hub.
func (c *Client) Deliver(message Message) bool {
	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}

// accepts сообщает, нужно ли отправлять сообщение клиенту
func (c *Client) accepts(message Message) bool {
	if message.Type != MessageMeasurement || c.filter.IsAll() {
		return true
	}
	measurement, ok := message.Data.(*dto.MeasurementDTO)
	if !ok {
		return true
	}
	profile, err := valueobject.ParseNetworkProfile(measurement.Network)
	if err != nil {
		return false
	}
	return c.filter.Matches(profile)
}

// ReadPump держит read deadline и снимает клиента с регистрации при разрыве
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Warn("WebSocket set read deadline failed", "client_id", c.id, "error", err.Error())
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("WebSocket closed unexpectedly", "client_id", c.id, "error", err.Error())
			}
			return
		}
	}
}

// WritePump отправляет сообщения из очереди и ping по таймеру
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub закрыл очередь: прощаемся с клиентом
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				c.logger.Debug("WebSocket write failed", "client_id", c.id, "type", message.Type, "error", err.Error())
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("WebSocket ping failed", "client_id", c.id, "error", err.Error())
				return
			}
		}
	}
}
