package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

var errPublisherClosed = errors.New("publisher closed")

// AMQPPublisher publishes events to a durable RabbitMQ topic exchange,
// using the event type as routing key. When the broker closes the channel
// the next Publish opens a new one on the same connection.
type AMQPPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	closes   chan *amqp.Error
	closed   bool
	exchange string
	logger   *slog.Logger
}

// NewAMQPPublisher opens a channel on conn and declares the exchange.
func NewAMQPPublisher(conn *amqp.Connection, exchange string, logger *slog.Logger) (*AMQPPublisher, error) {
	p := &AMQPPublisher{conn: conn, exchange: exchange, logger: logger}
	if err := p.openChannel(); err != nil {
		return nil, err
	}
	return p, nil
}

// openChannel must be called with mu held (or before p is shared).
func (p *AMQPPublisher) openChannel() error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(p.exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		ch.Close()
		return fmt.Errorf("declare exchange %q: %w", p.exchange, err)
	}

	p.ch = ch
	p.closes = ch.NotifyClose(make(chan *amqp.Error, 1))
	return nil
}

// channel returns a usable channel, replacing one the broker has closed.
func (p *AMQPPublisher) channel(ctx context.Context) (*amqp.Channel, error) {
	if p.closed {
		return nil, errPublisherClosed
	}

	if p.ch != nil {
		select {
		case amqpErr := <-p.closes:
			attrs := []any{slog.String("exchange", p.exchange)}
			if amqpErr != nil {
				attrs = append(attrs, slog.String("error", amqpErr.Error()))
			}
			p.logger.WarnContext(ctx, "amqp channel closed, reopening", attrs...)
			p.ch = nil
		default:
		}
	}

	if p.ch == nil {
		if err := p.openChannel(); err != nil {
			return nil, fmt.Errorf("reopen: %w", err)
		}
	}
	return p.ch, nil
}

// Publish sends evt as a persistent JSON message
func (p *AMQPPublisher) Publish(ctx context.Context, evt Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel(ctx)
	if err != nil {
		return fmt.Errorf("publish %s: %w", evt.Type, err)
	}

	err = ch.PublishWithContext(ctx, p.exchange, evt.Type, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    evt.OccurredAt,
		Type:         evt.Type,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", evt.Type, err)
	}

	p.logger.DebugContext(ctx, "event published",
		slog.String("type", evt.Type),
		slog.String("alias", evt.Alias))
	return nil
}

// Close closes the channel and stops further publishing. The connection
// belongs to the caller.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	if p.ch == nil {
		return nil
	}
	return p.ch.Close()
}
