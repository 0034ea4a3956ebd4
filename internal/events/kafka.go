package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"

	"practice-ledger/internal/logger"
)

// Writer is the subset of kafka.Writer the bus needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Reader is the subset of kafka.Reader the bus needs.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaBus keys messages by event id. A message is committed once the handler
// succeeds or has failed maxAttempts times.
type KafkaBus struct {
	writer         Writer
	reader         Reader
	handlerTimeout time.Duration
	retryDelay     time.Duration
	maxAttempts    int
}

func NewKafkaBus(brokers []string, topic, groupID string) *KafkaBus {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return NewKafkaBusWith(w, r)
}

// NewKafkaBusWith allows injecting test readers and writers.
func NewKafkaBusWith(w Writer, r Reader) *KafkaBus {
	return &KafkaBus{
		writer:         w,
		reader:         r,
		handlerTimeout: 30 * time.Second,
		retryDelay:     time.Second,
		maxAttempts:    5,
	}
}

func (b *KafkaBus) Publish(ctx context.Context, evs ...Event) error {
	msgs := make([]kafka.Message, 0, len(evs))
	for _, e := range evs {
		body, err := json.Marshal(e)
		if err != nil {
			return err
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(e.ID),
			Value: body,
			Headers: []kafka.Header{
				{Key: "type", Value: []byte(e.Type)},
			},
		})
	}
	if err := b.writer.WriteMessages(ctx, msgs...); err != nil {
		logger.Error("Kafka write failed", "count", len(msgs), "error", err)
		return err
	}
	return nil
}

func (b *KafkaBus) Run(ctx context.Context, h Handler) error {
	logger.Info("Kafka consumer started")
	for {
		if ctx.Err() != nil {
			return nil
		}
		m, err := b.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			logger.Warn("Error fetching message", "error", err)
			b.sleep(ctx)
			continue
		}

		e, err := decode(m.Value)
		if err != nil {
			// poison message; commit so it does not block the partition
			logger.Error("Dropping undecodable event", "offset", m.Offset, "error", err)
		} else if !b.handle(ctx, e, h) {
			return nil
		}

		if err := b.reader.CommitMessages(ctx, m); err != nil {
			logger.Error("Failed to commit offset", "offset", m.Offset, "error", err)
		}
	}
}

// handle retries the same event up to maxAttempts times. It returns false
// only when ctx ended first, leaving the message uncommitted.
func (b *KafkaBus) handle(ctx context.Context, e Event, h Handler) bool {
	for attempt := 1; ; attempt++ {
		hctx, cancel := context.WithTimeout(ctx, b.handlerTimeout)
		err := h(hctx, e)
		cancel()
		if err == nil {
			return true
		}
		if attempt >= b.maxAttempts {
			logger.Error("Event handler gave up", "eventID", e.ID, "attempts", attempt, "error", err)
			return true
		}
		logger.Warn("Event handler failed, will retry", "eventID", e.ID, "attempt", attempt, "error", err)
		b.sleep(ctx)
		if ctx.Err() != nil {
			return false
		}
	}
}

func (b *KafkaBus) sleep(ctx context.Context) {
	t := time.NewTimer(b.retryDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (b *KafkaBus) Close() error {
	return errors.Join(b.writer.Close(), b.reader.Close())
}
