package domain

import "errors"

var (
	// ErrQuizNotFound indicates the quiz record could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrNoActiveQuiz is returned when no quiz is currently being administered.
	ErrNoActiveQuiz = errors.New("no active quiz")
	// ErrResultNotFound indicates a graded result lookup missed.
	ErrResultNotFound = errors.New("result not found")
	// ErrUserNotFound indicates an unknown account id.
	ErrUserNotFound = errors.New("user not found")
	// ErrKeyNotFound is returned by state stores for missing keys.
	ErrKeyNotFound = errors.New("key not found")
	// ErrQueueClosed is returned when publishing to a shut-down queue.
	ErrQueueClosed = errors.New("queue closed")
)
