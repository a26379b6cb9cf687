package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"github.com/eventflow/eventflow-api/internal/config"
	"github.com/eventflow/eventflow-api/internal/metrics"
)

// Handler processes one delivery.  A returned error rejects the message
// without requeue.
type Handler interface {
	Handle(ctx context.Context, routingKey string, body []byte) error
}

// Consumer binds the notification queue to the event exchange and feeds
// deliveries to a Handler.
type Consumer struct {
	cfg     config.BrokerConfig
	handler Handler
}

func NewConsumer(cfg config.BrokerConfig, h Handler) *Consumer {
	if h == nil {
		panic("nil handler")
	}
	return &Consumer{cfg: cfg, handler: h}
}

// Run dials the broker and consumes until ctx is cancelled, reconnecting
// with exponential backoff (capped at 30s) whenever the connection drops.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.cfg.URL)
		if err != nil {
			log.Warn().Err(err).Dur("retry_in", backoff).Msg("notification consumer: dial failed")
			if !sleepCtx(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn().Err(err).Msg("notification consumer: loop ended, reconnecting")
		if !sleepCtx(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		log.Warn().Err(err).Msg("notification consumer: set QoS failed")
	}
	if err := ch.ExchangeDeclare(c.cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("exchange declare: %w", err)
	}
	q, err := ch.QueueDeclare(c.cfg.NotificationQueue, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	for _, key := range BindingKeys {
		if err := ch.QueueBind(q.Name, key, c.cfg.Exchange, false, nil); err != nil {
			return fmt.Errorf("bind %s: %w", key, err)
		}
	}
	msgs, err := ch.ConsumeWithContext(ctx, q.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	log.Info().Str("queue", q.Name).Strs("bindings", BindingKeys).Msg("notification consumer started")

	for d := range msgs {
		c.dispatch(ctx, d)
	}
	return errors.New("deliveries channel closed")
}

// acker is the part of amqp.Delivery used after handling.
type acker interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func (c *Consumer) dispatch(ctx context.Context, d amqp.Delivery) {
	c.handle(ctx, d.RoutingKey, d.Body, &d)
}

func (c *Consumer) handle(ctx context.Context, key string, body []byte, a acker) {
	hctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := c.handler.Handle(hctx, key, body); err != nil {
		log.Error().Err(err).Str("routing_key", key).Msg("notification consumer: handle message failed")
		metrics.Notifications.WithLabelValues(key, "rejected").Inc()
		_ = a.Nack(false, false) // reject, do not requeue to avoid tight loops
		return
	}
	metrics.Notifications.WithLabelValues(key, "ok").Inc()
	_ = a.Ack(false)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
