package app_test

import (
	"context"
	"testing"
	"time"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
)

func TestForStudentSplitsAvailableAndCompleted(t *testing.T) {
	ctx := context.Background()
	quizzes := memory.NewQuizStore()
	results := memory.NewResultStore()
	users := memory.NewUserStore(domain.User{UserID: "alice", Role: domain.RoleStudent, Section: "A"})
	state := memory.NewStateStore()
	coordinator := app.NewCoordinator(state, quizzes, memory.NewMalpracticeStore(), newCapturingQueue(), state, app.NewHub(), 0)
	listing := app.NewQuizListing(coordinator, quizzes, results, users)

	base := time.Now()
	seed := []domain.Quiz{
		{ID: "open", Title: "Open", Questions: threeQuestionQuiz().Questions, Status: domain.StatusActive, CreatedAt: base},
		{ID: "done", Title: "Done", Questions: threeQuestionQuiz().Questions, Status: domain.StatusActive, CreatedAt: base.Add(-time.Minute)},
		{ID: "over", Title: "Over", Questions: threeQuestionQuiz().Questions, Status: domain.StatusEnded, CreatedAt: base.Add(-2 * time.Minute)},
		{ID: "other-section", Title: "Other", Questions: threeQuestionQuiz().Questions, Status: domain.StatusActive, AllowedSections: []string{"B"}, CreatedAt: base.Add(-3 * time.Minute)},
	}
	for _, q := range seed {
		quiz := q
		if err := quizzes.Create(ctx, &quiz); err != nil {
			t.Fatalf("seed quiz: %v", err)
		}
	}
	result := domain.QuizResult{ID: "r1", StudentID: "alice", QuizID: "done", Score: 5}
	if err := results.Save(ctx, &result); err != nil {
		t.Fatalf("seed result: %v", err)
	}

	lists, err := listing.ForStudent(ctx, "alice")
	if err != nil {
		t.Fatalf("for student: %v", err)
	}

	if len(lists.Available) != 1 || lists.Available[0].ID != "open" {
		t.Fatalf("expected only the open quiz available, got %+v", lists.Available)
	}
	completed := map[string]bool{}
	for _, q := range lists.Completed {
		completed[q.ID] = true
	}
	if len(completed) != 2 || !completed["done"] || !completed["over"] {
		t.Fatalf("expected done and over completed, got %v", completed)
	}
}

func TestForStudentActivatesDueQuizBeforeListing(t *testing.T) {
	ctx := context.Background()
	quizzes := memory.NewQuizStore()
	state := memory.NewStateStore()
	coordinator := app.NewCoordinator(state, quizzes, memory.NewMalpracticeStore(), newCapturingQueue(), state, app.NewHub(), 0)
	listing := app.NewQuizListing(coordinator, quizzes, memory.NewResultStore(), memory.NewUserStore())

	start := time.Now().Add(-time.Minute)
	quiz := domain.Quiz{
		ID: "due", Title: "Due", Questions: threeQuestionQuiz().Questions,
		Status: domain.StatusScheduled, ScheduledStartTime: &start, CreatedAt: time.Now(),
	}
	if err := quizzes.Create(ctx, &quiz); err != nil {
		t.Fatalf("seed quiz: %v", err)
	}

	lists, err := listing.ForStudent(ctx, "unknown-student")
	if err != nil {
		t.Fatalf("for student: %v", err)
	}
	if len(lists.Available) != 1 || lists.Available[0].Status != domain.StatusActive {
		t.Fatalf("due quiz should be live in the listing, got %+v", lists.Available)
	}
}
