// Package websocket pushes run progress to open dashboards.
package websocket

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/dreschagin/pagespeed-monitor/internal/application/dto"
	"github.com/dreschagin/pagespeed-monitor/pkg/logger"
)

// Типы сообщений, которые получает клиент
const (
	MessageRunStatus   = "run_status"
	MessageMeasurement = "measurement"
	MessageRunFinished = "run_finished"
)

// broadcastBuffer держит очередь событий последовательного запуска: measurement и run_status на каждую цель
const broadcastBuffer = 256

// Message представляет сообщение для клиента.
// Seq растет на каждую рассылку: по разрыву в Seq дашборд понимает, что пропустил записи, и перечитывает список.
type Message struct {
	Type   string      `json:"type"`
	Seq    uint64      `json:"seq"`
	SentAt time.Time   `json:"sent_at"`
	Data   interface{} `json:"data"`
}

// Hub реализует port.NotificationService.
// Набором клиентов владеет goroutine Run; mu нужен только для ClientCount.
type Hub struct {
	clients    map[*Client]struct{}
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client

	quit     chan struct{}
	stopOnce sync.Once

	mu      sync.RWMutex
	seq     atomic.Uint64
	dropped atomic.Uint64

	logger *logger.Logger
}

func NewHub(logger *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan Message, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		quit:       make(chan struct{}),
		logger:     logger,
	}
}

// Run обслуживает регистрацию и рассылку до Stop
func (h *Hub) Run() {
	h.logger.Info("WebSocket hub started")
	for {
		select {
		case client := <-h.register:
			h.add(client)
		case client := <-h.unregister:
			h.remove(client, "disconnected")
		case message := <-h.broadcast:
			h.dispatch(message)
		case <-h.quit:
			h.closeAll()
			h.logger.Info("WebSocket hub stopped", "dropped_messages", h.dropped.Load())
			return
		}
	}
}

func (h *Hub) add(client *Client) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("Client registered", "client_id", client.ID(), "total_clients", total)
}

func (h *Hub) remove(client *Client, reason string) {
	h.mu.Lock()
	_, ok := h.clients[client]
	if ok {
		delete(h.clients, client)
		close(client.send)
	}
	total := len(h.clients)
	h.mu.Unlock()
	if ok {
		h.logger.Debug("Client unregistered", "client_id", client.ID(), "reason", reason, "total_clients", total)
	}
}

// dispatch не ждет клиентов: переполненная очередь означает отключение
func (h *Hub) dispatch(message Message) {
	var slow []*Client

	h.mu.RLock()
	for client := range h.clients {
		if !client.accepts(message) {
			continue
		}
		select {
		case client.send <- message:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		h.logger.Warn("Client queue full, disconnecting", "client_id", client.ID(), "type", message.Type)
		h.remove(client, "queue full")
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}

// Stop закрывает очереди всех клиентов; повторный вызов безопасен
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.quit) })
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.quit:
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.quit:
	}
}

func (h *Hub) BroadcastRunStatus(status *dto.RunStatusDTO) {
	h.enqueue(MessageRunStatus, status)
}

func (h *Hub) BroadcastMeasurement(measurement *dto.MeasurementDTO) {
	h.enqueue(MessageMeasurement, measurement)
}

func (h *Hub) BroadcastRunFinished(status *dto.RunStatusDTO) {
	h.enqueue(MessageRunFinished, status)
}

func (h *Hub) enqueue(kind string, data interface{}) {
	message := Message{Type: kind, Seq: h.seq.Add(1), SentAt: time.Now().UTC(), Data: data}
	select {
	case h.broadcast <- message:
	default:
		h.dropped.Add(1)
		h.logger.Warn("Broadcast channel full, dropping message", "type", kind, "seq", message.Seq)
	}
}

// Snapshot строит сообщение для одного клиента без нового номера: Seq равен последней рассылке
func (h *Hub) Snapshot(kind string, data interface{}) Message {
	return Message{Type: kind, Seq: h.seq.Load(), SentAt: time.Now().UTC(), Data: data}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
