package events

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"

	"practice-ledger/internal/logger"
)

// amqpChannel is the part of *amqp.Channel the bus uses.
type amqpChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Qos(prefetchCount, prefetchSize int, global bool) error
	Close() error
}

// RabbitBus publishes events to a durable queue. A handler error requeues the
// delivery once; a body that does not decode is dropped.
type RabbitBus struct {
	conn    *amqp.Connection
	chn     amqpChannel
	queue   string
	workers int
}

func NewRabbitBus(url, queue string, workers int) (*RabbitBus, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	chn, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	b, err := newRabbitBus(chn, queue, workers)
	if err != nil {
		chn.Close()
		conn.Close()
		return nil, err
	}
	b.conn = conn
	return b, nil
}

func newRabbitBus(chn amqpChannel, queue string, workers int) (*RabbitBus, error) {
	if workers <= 0 {
		workers = 1
	}
	_, err := chn.QueueDeclare(
		queue, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}
	return &RabbitBus{chn: chn, queue: queue, workers: workers}, nil
}

func (b *RabbitBus) Publish(ctx context.Context, evs ...Event) error {
	for _, e := range evs {
		body, err := json.Marshal(e)
		if err != nil {
			return err
		}
		err = b.chn.PublishWithContext(ctx,
			"",      // exchange
			b.queue, // routing key
			false,   // mandatory
			false,   // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    e.ID,
				Type:         string(e.Type),
				Timestamp:    e.OccurredAt,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("failed to publish event %s: %w", e.ID, err)
		}
	}
	return nil
}

func (b *RabbitBus) Run(ctx context.Context, h Handler) error {
	if err := b.chn.Qos(b.workers, 0, false); err != nil {
		return fmt.Errorf("failed to set prefetch: %w", err)
	}
	msgs, err := b.chn.Consume(
		b.queue, // queue
		"",      // consumer
		false,   // auto-ack
		false,   // exclusive
		false,   // no-local
		false,   // no-wait
		nil,     // args
	)
	if err != nil {
		return fmt.Errorf("failed to consume %s: %w", b.queue, err)
	}
	logger.Info("RabbitMQ consumer started", "queue", b.queue, "workers", b.workers)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < b.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case d, ok := <-msgs:
					if !ok {
						return nil
					}
					b.deliver(ctx, d, h)
				}
			}
		})
	}
	return g.Wait()
}

func (b *RabbitBus) deliver(ctx context.Context, d amqp.Delivery, h Handler) {
	e, err := decode(d.Body)
	if err != nil {
		logger.Error("Dropping undecodable event", "messageID", d.MessageId, "error", err)
		d.Nack(false, false)
		return
	}
	if err := h(ctx, e); err != nil {
		// one redelivery, then the event is dropped
		logger.Warn("Event handler failed", "eventID", e.ID, "redelivered", d.Redelivered, "error", err)
		d.Nack(false, !d.Redelivered)
		return
	}
	d.Ack(false)
}

func (b *RabbitBus) Close() error {
	if err := b.chn.Close(); err != nil {
		return err
	}
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}
