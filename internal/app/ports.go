package app

import (
	"context"
	"time"

	"live-quiz-service/internal/domain"
)

// StateStore is the ephemeral key/value capability backing the live session
// state: the active quiz snapshot, per-participant answer ledgers, and the
// arena counters. Implementations: Redis, in-memory.
type StateStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error

	HSet(ctx context.Context, key, field, value string) error
	HGet(ctx context.Context, key, field string) (string, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HLen(ctx context.Context, key string) (int64, error)

	Incr(ctx context.Context, key string) (int64, error)
	HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error)
	SAdd(ctx context.Context, key string, members ...string) error
}

// Publisher pushes a message onto a named broadcast channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Subscriber receives messages from a named broadcast channel. The returned
// cancel function releases the subscription.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error)
}

// Relay is the cross-process notification channel between grading workers
// and whichever coordinator holds the recipient's connection.
type Relay interface {
	Publisher
	Subscriber
}

// Delivery is one consumed queue message. Ack confirms processing; Nack
// with requeue=false drops the message (or routes it to a dead-letter
// exchange when the broker has one configured).
type Delivery struct {
	Body []byte
	Ack  func() error
	Nack func(requeue bool) error
}

// JobQueue is the durable, ack-based work queue capability. Consume uses a
// bounded prefetch of one in-flight delivery per consumer.
type JobQueue interface {
	Publish(ctx context.Context, queue string, body []byte) error
	Consume(ctx context.Context, queue string) (<-chan Delivery, error)
}

// QuizStore is the durable quiz record capability.
type QuizStore interface {
	Create(ctx context.Context, quiz *domain.Quiz) error
	FindByID(ctx context.Context, id string) (domain.Quiz, error)
	FindAll(ctx context.Context) ([]domain.Quiz, error)
	// FindByStatus returns quizzes in any of the given states, newest first.
	FindByStatus(ctx context.Context, statuses ...domain.QuizStatus) ([]domain.Quiz, error)
	// FindRecent returns up to limit quizzes in the given states, newest first.
	FindRecent(ctx context.Context, limit int, statuses ...domain.QuizStatus) ([]domain.Quiz, error)
	UpdateStatus(ctx context.Context, id string, status domain.QuizStatus) error
}

// ResultStore persists graded results. Only the grading worker writes here.
type ResultStore interface {
	Save(ctx context.Context, result *domain.QuizResult) error
	FindByID(ctx context.Context, id string) (domain.QuizResult, error)
	FindAll(ctx context.Context) ([]domain.QuizResult, error)
	FindByStudent(ctx context.Context, studentID string) ([]domain.QuizResult, error)
	FindByQuizIDs(ctx context.Context, quizIDs []string) ([]domain.QuizResult, error)
}

// MalpracticeStore is the append-only audit trail.
type MalpracticeStore interface {
	Append(ctx context.Context, entry domain.MalpracticeLog) error
}

// UserStore is the narrow account lookup consumed for section filtering and
// the leaderboard roster.
type UserStore interface {
	FindByID(ctx context.Context, userID string) (domain.User, error)
	FindStudents(ctx context.Context) ([]domain.User, error)
}
