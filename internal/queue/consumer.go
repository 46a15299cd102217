package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Consumer appends every event to a log file, one line per event.
type Consumer struct {
	url     string
	logPath string
	logger  *zap.Logger
}

// NewConsumer returns a Consumer writing to logs/chat.log.
func NewConsumer(url string, logger *zap.Logger) *Consumer {
	return &Consumer{url: url, logPath: filepath.Join("logs", "chat.log"), logger: logger.Named("consumer")}
}

// Run connects to RabbitMQ, declares the event queues (durable) and consumes
// them until ctx is done.  A lost connection is redialled with exponential
// backoff capped at 30s; a message that cannot be handled is rejected
// without requeue so it cannot spin.
func (c *Consumer) Run(ctx context.Context) {
	backoff := time.Second
	for ctx.Err() == nil {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.logger.Warn("dial broker failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("consume loop ended, reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return
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
		c.logger.Warn("set QoS failed", zap.Error(err))
	}

	merged := make(chan amqp.Delivery)
	done := make(chan struct{})
	defer close(done)
	for _, name := range Queues {
		if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
			return fmt.Errorf("queue declare %s: %w", name, err)
		}
		msgs, err := ch.Consume(name, "", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("queue consume %s: %w", name, err)
		}
		go func(msgs <-chan amqp.Delivery) {
			for d := range msgs {
				select {
				case merged <- d:
				case <-done:
					return
				}
			}
		}(msgs)
	}

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case amqpErr := <-closed:
			if amqpErr != nil {
				return amqpErr
			}
			return errors.New("connection closed")
		case d := <-merged:
			if err := c.handle(d.Body); err != nil {
				c.logger.Warn("handle message failed", zap.String("queue", d.RoutingKey), zap.Error(err))
				_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (c *Consumer) handle(body []byte) error {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	line, err := FormatLine(ev)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.logPath), 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(c.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// FormatLine renders ev as one human-friendly log line.
func FormatLine(ev Event) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] ", ev.OccurredAt)
	switch ev.Type {
	case CheckinRecorded:
		fmt.Fprintf(&b, "Check-in recorded | checkin_id=%d | user_id=%d | establishment_id=%d | room_id=%d | distance=%.1fm",
			ev.CheckinID, ev.UserID, ev.EstablishmentID, ev.RoomID, ev.DistanceMeters)
		if ev.GrantExpiresAt != "" {
			fmt.Fprintf(&b, " | access_until=%s", ev.GrantExpiresAt)
		} else {
			b.WriteString(" | access_until=none")
		}
	case ChatMessageSent:
		fmt.Fprintf(&b, "Message sent | message_id=%d | user_id=%d | room_id=%d",
			ev.MessageID, ev.UserID, ev.RoomID)
	default:
		return "", fmt.Errorf("unknown event type %q", ev.Type)
	}
	b.WriteByte('\n')
	return b.String(), nil
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
