package app_test

import (
	"context"
	"testing"
	"time"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
)

func markedQuiz(id string, marks int, createdAt time.Time) domain.Quiz {
	return domain.Quiz{
		ID:    id,
		Title: id,
		Questions: []domain.Question{
			{Text: "Q", Options: abcd(), CorrectOption: "A", Marks: marks},
		},
		Status:    domain.StatusEnded,
		CreatedAt: createdAt,
	}
}

func TestComputeLeaderboardPenalizesAbsence(t *testing.T) {
	quizzes := []domain.Quiz{
		markedQuiz("q1", 10, time.Now()),
		markedQuiz("q2", 10, time.Now().Add(-time.Hour)),
	}
	students := []domain.User{
		{UserID: "alice", Role: domain.RoleStudent},
		{UserID: "bob", Role: domain.RoleStudent},
	}
	results := []domain.QuizResult{
		{StudentID: "alice", QuizID: "q1", Score: 10},
		{StudentID: "alice", QuizID: "q2", Score: 5},
		{StudentID: "bob", QuizID: "q1", Score: 10},
		// bob never took q2.
	}

	rows := app.ComputeLeaderboard(quizzes, students, results)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].UserID != "alice" || rows[0].TotalScore != 15 || rows[0].Percentage != 75 {
		t.Fatalf("unexpected top row: %+v", rows[0])
	}
	// Absence counts the full quiz marks in the denominator.
	if rows[1].UserID != "bob" || rows[1].TotalScore != 10 || rows[1].TotalPossible != 20 || rows[1].Percentage != 50 {
		t.Fatalf("unexpected bottom row: %+v", rows[1])
	}
}

func TestComputeLeaderboardZeroResultsStudent(t *testing.T) {
	quizzes := []domain.Quiz{markedQuiz("q1", 10, time.Now())}
	students := []domain.User{{UserID: "carol", Role: domain.RoleStudent}}

	rows := app.ComputeLeaderboard(quizzes, students, nil)
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0].TotalScore != 0 || rows[0].TotalPossible != 10 || rows[0].Percentage != 0 {
		t.Fatalf("absent student should have 0%% of full marks, got %+v", rows[0])
	}
}

func TestComputeLeaderboardFirstResultWinsForDuplicates(t *testing.T) {
	quizzes := []domain.Quiz{markedQuiz("q1", 10, time.Now())}
	students := []domain.User{{UserID: "alice", Role: domain.RoleStudent}}
	results := []domain.QuizResult{
		{StudentID: "alice", QuizID: "q1", Score: 10},
		{StudentID: "alice", QuizID: "q1", Score: 3},
	}

	rows := app.ComputeLeaderboard(quizzes, students, results)
	if rows[0].TotalScore != 10 {
		t.Fatalf("duplicate rows should not double-count, got %d", rows[0].TotalScore)
	}
}

func TestLeaderboardServiceWindowsRecentQuizzes(t *testing.T) {
	ctx := context.Background()
	quizStore := memory.NewQuizStore()
	resultStore := memory.NewResultStore()
	users := memory.NewUserStore(
		domain.User{UserID: "alice", Role: domain.RoleStudent},
		domain.User{UserID: "teacher", Role: domain.RoleTeacher},
	)

	// Four quizzes; only the newest three may count with a window of 3.
	base := time.Now()
	for i, id := range []string{"q1", "q2", "q3", "q4"} {
		quiz := markedQuiz(id, 10, base.Add(-time.Duration(i)*time.Hour))
		if err := quizStore.Create(ctx, &quiz); err != nil {
			t.Fatalf("seed quiz: %v", err)
		}
	}
	// A full score on the quiz outside the window must not count.
	for _, r := range []domain.QuizResult{
		{ID: "r1", StudentID: "alice", QuizID: "q1", Score: 10, Timestamp: base},
		{ID: "r4", StudentID: "alice", QuizID: "q4", Score: 10, Timestamp: base},
	} {
		result := r
		if err := resultStore.Save(ctx, &result); err != nil {
			t.Fatalf("seed result: %v", err)
		}
	}

	service := app.NewLeaderboardService(quizStore, resultStore, users, 3)
	rows, err := service.Leaderboard(ctx)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("teacher must not appear; expected 1 row, got %d", len(rows))
	}
	if rows[0].TotalScore != 10 || rows[0].TotalPossible != 30 {
		t.Fatalf("expected 10/30 over the three newest quizzes, got %d/%d", rows[0].TotalScore, rows[0].TotalPossible)
	}
}

func TestLeaderboardServiceNoQuizzes(t *testing.T) {
	service := app.NewLeaderboardService(memory.NewQuizStore(), memory.NewResultStore(), memory.NewUserStore(), 0)
	rows, err := service.Leaderboard(context.Background())
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected empty board, got %d rows", len(rows))
	}
}
