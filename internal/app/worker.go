package app

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"live-quiz-service/internal/domain"
)

// Worker drains both grading queues with one in-flight job per queue.
// Success acks; a missing quiz nacks without requeue so the broker can
// drop or dead-letter it (no retry can grade without the quiz record);
// anything else nacks with requeue and relies on the broker's redelivery.
type Worker struct {
	queue  JobQueue
	grader *Grader
}

func NewWorker(queue JobQueue, grader *Grader) *Worker {
	return &Worker{queue: queue, grader: grader}
}

// Run consumes until ctx is canceled.
func (w *Worker) Run(ctx context.Context) error {
	submissions, err := w.queue.Consume(ctx, domain.SubmissionQueue)
	if err != nil {
		return err
	}
	validations, err := w.queue.Consume(ctx, domain.ValidationQueue)
	if err != nil {
		return err
	}
	log.Printf("worker consuming %s and %s", domain.SubmissionQueue, domain.ValidationQueue)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-submissions:
			if !ok {
				return domain.ErrQueueClosed
			}
			w.handleSubmission(ctx, d)
		case d, ok := <-validations:
			if !ok {
				return domain.ErrQueueClosed
			}
			w.handleValidation(ctx, d)
		}
	}
}

func (w *Worker) handleSubmission(ctx context.Context, d Delivery) {
	var job domain.SubmissionJob
	if err := json.Unmarshal(d.Body, &job); err != nil {
		log.Printf("worker: bad submission payload: %v", err)
		w.reject(d, false)
		return
	}
	log.Printf("received submission: %s for quiz %s", job.UserID, job.QuizID)

	if _, err := w.grader.ProcessSubmission(ctx, job); err != nil {
		log.Printf("worker: process submission: %v", err)
		w.reject(d, !errors.Is(err, domain.ErrQuizNotFound))
		return
	}
	if err := d.Ack(); err != nil {
		log.Printf("worker: ack submission: %v", err)
	}
}

func (w *Worker) handleValidation(ctx context.Context, d Delivery) {
	var job domain.ValidationJob
	if err := json.Unmarshal(d.Body, &job); err != nil {
		log.Printf("worker: bad validation payload: %v", err)
		w.reject(d, false)
		return
	}

	if err := w.grader.ValidateAnswer(ctx, job); err != nil {
		log.Printf("worker: validate answer: %v", err)
		w.reject(d, !errors.Is(err, domain.ErrQuizNotFound))
		return
	}
	if err := d.Ack(); err != nil {
		log.Printf("worker: ack validation: %v", err)
	}
}

func (w *Worker) reject(d Delivery, requeue bool) {
	if err := d.Nack(requeue); err != nil {
		log.Printf("worker: nack: %v", err)
	}
}
