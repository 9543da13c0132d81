package app_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
)

func TestWorkerGradesQueuedSubmission(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quizzes := memory.NewQuizStore()
	results := memory.NewResultStore()
	queue := memory.NewQueue()
	quiz := threeQuestionQuiz()
	if err := quizzes.Create(ctx, &quiz); err != nil {
		t.Fatalf("seed quiz: %v", err)
	}

	worker := app.NewWorker(queue, app.NewGrader(quizzes, results, &capturingRelay{}))
	go func() { _ = worker.Run(ctx) }()

	body, _ := json.Marshal(domain.SubmissionJob{
		UserID:         "alice",
		QuizID:         quiz.ID,
		StudentAnswers: map[string]string{"0": "A", "1": "B", "2": "C"},
		StudentTimes:   map[string]string{},
	})
	if err := queue.Publish(ctx, domain.SubmissionQueue, body); err != nil {
		t.Fatalf("publish: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		saved, err := results.FindByStudent(ctx, "alice")
		if err != nil {
			t.Fatalf("find results: %v", err)
		}
		if len(saved) == 1 {
			if saved[0].Score != 30 {
				t.Fatalf("expected full marks, got %d", saved[0].Score)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("submission never graded")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWorkerDropsSubmissionForMissingQuiz(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results := memory.NewResultStore()
	queue := memory.NewQueue()
	worker := app.NewWorker(queue, app.NewGrader(memory.NewQuizStore(), results, &capturingRelay{}))
	go func() { _ = worker.Run(ctx) }()

	body, _ := json.Marshal(domain.SubmissionJob{UserID: "alice", QuizID: "ghost"})
	if err := queue.Publish(ctx, domain.SubmissionQueue, body); err != nil {
		t.Fatalf("publish: %v", err)
	}
	// Malformed payload is also dropped rather than looping forever.
	if err := queue.Publish(ctx, domain.SubmissionQueue, []byte("not json")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	saved, err := results.FindAll(ctx)
	if err != nil {
		t.Fatalf("find results: %v", err)
	}
	if len(saved) != 0 {
		t.Fatalf("nothing should have been graded, got %d results", len(saved))
	}
}

func TestWorkerValidatesQueuedAnswer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quizzes := memory.NewQuizStore()
	relay := &capturingRelay{}
	queue := memory.NewQueue()
	quiz := threeQuestionQuiz()
	if err := quizzes.Create(ctx, &quiz); err != nil {
		t.Fatalf("seed quiz: %v", err)
	}

	worker := app.NewWorker(queue, app.NewGrader(quizzes, memory.NewResultStore(), relay))
	go func() { _ = worker.Run(ctx) }()

	body, _ := json.Marshal(domain.ValidationJob{UserID: "alice", QuizID: quiz.ID, QuestionIndex: 0, Answer: "A"})
	if err := queue.Publish(ctx, domain.ValidationQueue, body); err != nil {
		t.Fatalf("publish: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		relay.mu.Lock()
		count := len(relay.messages)
		relay.mu.Unlock()
		if count == 1 {
			n := relay.last(t)
			if n.Type != domain.NotifyAnswerResult || n.UserID != "alice" {
				t.Fatalf("unexpected notification: %+v", n)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("validation feedback never published")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
