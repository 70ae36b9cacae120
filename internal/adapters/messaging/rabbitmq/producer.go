// Package rabbitmq publica los eventos de custodia en un exchange topic.
package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"custody-ledger/internal/platform/logger"

	amqp "github.com/rabbitmq/amqp091-go"
)

const DefaultExchange = "custody_events"

// EventProducer mantiene conexión y canal. El canal se reabre una vez
// si un declare o publish falla.
type EventProducer struct {
	exchange string
	log      logger.Logger

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

func NewEventProducer(amqpURL, exchange string, log logger.Logger) (*EventProducer, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(exchange) == "" {
		exchange = DefaultExchange
	}
	if log == nil {
		log = logger.Discard()
	}

	conn, err := amqp.DialConfig(cleanURL, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := declare(ch, exchange); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	return &EventProducer{
		exchange: exchange,
		log:      log.With(map[string]any{"component": "rabbitmq_producer", "exchange": exchange}),
		conn:     conn,
		channel:  ch,
	}, nil
}

func (p *EventProducer) Publish(ctx context.Context, routingKey string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         payload,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg)
	if err == nil {
		return nil
	}

	p.log.Warn("publish failed; reopening channel", map[string]any{"routing_key": routingKey, "error": err.Error()})
	if rerr := p.reopenLocked(); rerr != nil {
		return errors.Join(err, rerr)
	}
	return p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg)
}

func (p *EventProducer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

func (p *EventProducer) reopenLocked() error {
	if p.conn == nil || p.conn.IsClosed() {
		return amqp.ErrClosed
	}
	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}
	if err := declare(ch, p.exchange); err != nil {
		_ = ch.Close()
		return err
	}
	if p.channel != nil {
		_ = p.channel.Close()
	}
	p.channel = ch
	return nil
}

func declare(ch *amqp.Channel, exchange string) error {
	return ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // autoDelete
		false,    // internal
		false,    // noWait
		nil,      // args
	)
}

// FallbackPublisher se usa cuando RabbitMQ no está disponible al arrancar:
// loguea y descarta.
type FallbackPublisher struct {
	Log logger.Logger
}

func (p FallbackPublisher) Publish(ctx context.Context, routingKey string, body any) error {
	if p.Log != nil {
		p.Log.Warn("publish skipped", map[string]any{
			"component":   "rabbitmq_producer",
			"mode":        "fallback",
			"routing_key": routingKey,
		})
	}
	return nil
}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.Trim(clean, "\"'")
	// basura antes del scheme (p.ej. "URL=amqp://...")
	if idx := strings.Index(strings.ToLower(clean), "amqp"); idx > 0 {
		clean = clean[idx:]
	}
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}
