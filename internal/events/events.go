// Package events publishes submission state changes to other services.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/Spok95/classtrack-portal/internal/metrics"
	"github.com/Spok95/classtrack-portal/internal/models"
)

type Publisher interface {
	Publish(ctx context.Context, ev models.SubmissionEvent) error
	Close() error
}

// Noop is used when no broker is configured; it still counts events.
type Noop struct{}

func (Noop) Publish(_ context.Context, ev models.SubmissionEvent) error {
	metrics.SubmissionEvents.WithLabelValues(ev.Type).Inc()
	return nil
}

func (Noop) Close() error { return nil }

// AMQP publishes to a durable topic exchange with the event type as routing key.
type AMQP struct {
	conn     *amqp091.Connection
	mu       sync.Mutex
	channel  *amqp091.Channel
	exchange string
	log      *zap.Logger
}

func NewAMQP(url, exchange string, log *zap.Logger) (*AMQP, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	err = ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	log.Info("connected to rabbitmq", zap.String("exchange", exchange))
	return &AMQP{conn: conn, channel: ch, exchange: exchange, log: log}, nil
}

func (p *AMQP) Publish(ctx context.Context, ev models.SubmissionEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	// amqp channels are not safe for concurrent publishing
	p.mu.Lock()
	err = p.channel.PublishWithContext(ctx,
		p.exchange, // exchange
		ev.Type,    // routing key
		false,      // mandatory
		false,      // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp091.Persistent,
			Timestamp:    ev.OccurredAt,
		},
	)
	p.mu.Unlock()
	if err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	metrics.SubmissionEvents.WithLabelValues(ev.Type).Inc()
	p.log.Debug("event published", zap.String("type", ev.Type), zap.Int64("submission_id", ev.SubmissionID))
	return nil
}

func (p *AMQP) Close() error {
	if err := p.channel.Close(); err != nil {
		_ = p.conn.Close()
		return err
	}
	return p.conn.Close()
}
