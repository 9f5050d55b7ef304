package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/room-slot-reservation/internal/model"
)

// Consumer reads PromotionQueue and emits one notification log line per
// promoted party.  Delivering the notice by email or SMS happens downstream
// of these log lines.
type Consumer struct {
	url string
	log *zap.Logger
}

// NewConsumer returns a Consumer for the broker at url.
func NewConsumer(url string, log *zap.Logger) *Consumer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{url: url, log: log}
}

// Run connects, consumes and reconnects with backoff until ctx is cancelled.
// It returns ctx.Err() once cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	if c.url == "" {
		return errors.New("rabbitmq: no broker url configured")
	}
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.Warn("promotion consumer: dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn("promotion consumer: consume loop ended, reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.log.Warn("promotion consumer: set QoS failed", zap.Error(err))
	}
	if _, err := ch.QueueDeclare(PromotionQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.ConsumeWithContext(ctx, PromotionQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.handle(d.Body); err != nil {
				c.log.Error("promotion consumer: dropping message", zap.Error(err))
				_ = d.Nack(false, false) // do not requeue a message that will never parse
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// handle turns one message into a notification log line.
func (c *Consumer) handle(body []byte) error {
	p, err := decodePromotion(body)
	if err != nil {
		return err
	}
	id := model.Identity{Email: p.HolderEmail}
	if p.HolderEmail == "" {
		id = model.Identity{Phone: p.HolderPhone}
	}
	c.log.Info("promotion notice",
		zap.Uint64("slot_id", p.SlotID),
		zap.Int("room", p.Room),
		zap.String("date", p.Date),
		zap.Int("hour", p.Hour),
		zap.String("holder", p.HolderName),
		zap.String("contact", id.Masked()),
		zap.Time("promoted_at", p.PromotedAt),
	)
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
