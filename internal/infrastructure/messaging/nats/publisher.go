package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/dreschagin/pagespeed-monitor/pkg/logger"
)

const (
	// StreamName хранит события запусков и измерений
	StreamName = "PAGESPEED"
	// StreamSubjects покрывает все subjects приложения
	StreamSubjects = "pagespeed.>"

	streamMaxAge = 7 * 24 * time.Hour
	// Окно дедупликации по Nats-Msg-Id: повторная отправка после reconnect не дублирует событие
	duplicateWindow = 2 * time.Minute

	drainTimeout = 5 * time.Second
)

// Заголовки, по которым подписчики фильтруют события без разбора тела
const (
	HeaderContentType = "Content-Type"
	HeaderEventType   = "Pagespeed-Event"
)

// NATSPublisher публикует события запусков в JetStream.
// Публикация асинхронная: подтверждения ждем только при Close.
type NATSPublisher struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	logger *logger.Logger
}

// NewNATSPublisher подключается к NATS и создает stream при первом запуске
func NewNATSPublisher(natsURL string, log *logger.Logger) (*NATSPublisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("pagespeed-monitor"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("NATS disconnected", "error", err.Error())
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream(nats.PublishAsyncErrHandler(func(_ nats.JetStream, msg *nats.Msg, err error) {
		log.Warn("NATS publish not acknowledged", "subject", msg.Subject, "error", err.Error())
	}))
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	if err := ensureStream(js); err != nil {
		nc.Close()
		return nil, err
	}

	log.Info("Connected to NATS", "url", natsURL, "stream", StreamName)
	return &NATSPublisher{nc: nc, js: js, logger: log}, nil
}

func streamConfig() *nats.StreamConfig {
	return &nats.StreamConfig{
		Name:       StreamName,
		Subjects:   []string{StreamSubjects},
		Storage:    nats.FileStorage,
		MaxAge:     streamMaxAge,
		Duplicates: duplicateWindow,
	}
}

// ensureStream создает stream или обновляет настройки существующего
func ensureStream(js nats.JetStreamContext) error {
	_, err := js.StreamInfo(StreamName)
	switch {
	case err == nil:
		if _, err := js.UpdateStream(streamConfig()); err != nil {
			return fmt.Errorf("failed to update stream %s: %w", StreamName, err)
		}
		return nil
	case !errors.Is(err, nats.ErrStreamNotFound):
		return fmt.Errorf("failed to look up stream %s: %w", StreamName, err)
	}

	if _, err := js.AddStream(streamConfig()); err != nil {
		return fmt.Errorf("failed to create stream %s: %w", StreamName, err)
	}
	return nil
}

// newEventMessage упаковывает событие в сообщение с заголовками.
// Тип события берется из subject без префикса: pagespeed.run.finished -> run.finished.
func newEventMessage(subject string, event interface{}) (*nats.Msg, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event for %s: %w", subject, err)
	}

	msg := nats.NewMsg(subject)
	msg.Data = data
	msg.Header.Set(HeaderContentType, "application/json")
	msg.Header.Set(HeaderEventType, eventType(subject))
	msg.Header.Set(nats.MsgIdHdr, uuid.NewString())
	return msg, nil
}

func eventType(subject string) string {
	const prefix = "pagespeed."
	if len(subject) > len(prefix) && subject[:len(prefix)] == prefix {
		return subject[len(prefix):]
	}
	return subject
}

// PublishEvent ставит событие в очередь асинхронной отправки
func (p *NATSPublisher) PublishEvent(ctx context.Context, subject string, event interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := newEventMessage(subject, event)
	if err != nil {
		return err
	}

	if _, err := p.js.PublishMsgAsync(msg); err != nil {
		return fmt.Errorf("failed to publish %s: %w", subject, err)
	}

	p.logger.Debug("Event published", "subject", subject, "size", len(msg.Data))
	return nil
}

// Close ждет подтверждений и закрывает соединение
func (p *NATSPublisher) Close() error {
	if p.nc == nil {
		return nil
	}

	select {
	case <-p.js.PublishAsyncComplete():
	case <-time.After(drainTimeout):
		p.logger.Warn("NATS pending acks not received before close", "pending", p.js.PublishAsyncPending())
	}

	p.nc.Close()
	p.logger.Info("NATS connection closed")
	return nil
}
