package memory

import (
	"context"
	"sync"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

const queueDepth = 256

// Queue is an in-process JobQueue for running without a broker and for
// tests. Messages survive a nack-with-requeue but not a process restart;
// durability comes from the RabbitMQ implementation in production.
type Queue struct {
	mu     sync.Mutex
	queues map[string]chan []byte
	closed bool
}

func NewQueue() *Queue {
	return &Queue{queues: make(map[string]chan []byte)}
}

func (q *Queue) Publish(_ context.Context, queue string, body []byte) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return domain.ErrQueueClosed
	}
	ch := q.channel(queue)
	q.mu.Unlock()

	select {
	case ch <- body:
		return nil
	default:
		return domain.ErrQueueClosed
	}
}

// Consume bridges the buffered channel into ack-based deliveries. Ack is a
// no-op; Nack with requeue republishes the body onto the same queue.
func (q *Queue) Consume(ctx context.Context, queue string) (<-chan app.Delivery, error) {
	q.mu.Lock()
	ch := q.channel(queue)
	q.mu.Unlock()

	out := make(chan app.Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case body, ok := <-ch:
				if !ok {
					return
				}
				delivery := app.Delivery{
					Body: body,
					Ack:  func() error { return nil },
					Nack: func(requeue bool) error {
						if !requeue {
							return nil
						}
						return q.Publish(ctx, queue, body)
					},
				}
				select {
				case out <- delivery:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close stops accepting publishes.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}

func (q *Queue) channel(queue string) chan []byte {
	ch, ok := q.queues[queue]
	if !ok {
		ch = make(chan []byte, queueDepth)
		q.queues[queue] = ch
	}
	return ch
}
