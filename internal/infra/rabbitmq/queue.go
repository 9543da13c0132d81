package rabbitmq

import (
	"context"
	"fmt"
	"log"

	amqp "github.com/rabbitmq/amqp091-go"

	"live-quiz-service/internal/app"
)

// Queue is the RabbitMQ implementation of the durable work queue: named
// durable queues, persistent publishes, prefetch of one in-flight message
// per consumer, manual acks. Unacked messages follow the broker's own
// redelivery policy.
type Queue struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

// Dial connects, opens a channel and declares both grading queues up
// front so publishers and consumers can start in any order.
func Dial(url string, queues ...string) (*Queue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	for _, queue := range queues {
		if _, err := channel.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			_ = channel.Close()
			_ = conn.Close()
			return nil, fmt.Errorf("declare queue %s: %w", queue, err)
		}
	}

	closings := conn.NotifyClose(make(chan *amqp.Error, 1))
	go func() {
		if err := <-closings; err != nil {
			log.Printf("rabbitmq connection closed: %v", err)
		}
	}()

	return &Queue{conn: conn, channel: channel}, nil
}

func (q *Queue) Publish(ctx context.Context, queue string, body []byte) error {
	return q.channel.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

func (q *Queue) Consume(ctx context.Context, queue string) (<-chan app.Delivery, error) {
	// One unacked message at a time keeps consumption ordered and
	// back-pressured per worker.
	if err := q.channel.Qos(1, 0, false); err != nil {
		return nil, fmt.Errorf("set prefetch: %w", err)
	}
	deliveries, err := q.channel.ConsumeWithContext(ctx, queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", queue, err)
	}

	out := make(chan app.Delivery)
	go func() {
		defer close(out)
		for d := range deliveries {
			d := d
			delivery := app.Delivery{
				Body: d.Body,
				Ack:  func() error { return d.Ack(false) },
				Nack: func(requeue bool) error { return d.Nack(false, requeue) },
			}
			select {
			case out <- delivery:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close tears down the channel and connection.
func (q *Queue) Close() error {
	if err := q.channel.Close(); err != nil {
		_ = q.conn.Close()
		return err
	}
	return q.conn.Close()
}
