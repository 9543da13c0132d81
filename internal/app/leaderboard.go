package app

import (
	"context"
	"fmt"
	"math"
	"sort"

	"golang.org/x/sync/singleflight"

	"live-quiz-service/internal/domain"
)

// DefaultLeaderboardQuizzes is how many recent quizzes feed the board.
const DefaultLeaderboardQuizzes = 3

// LeaderboardService aggregates scores across the most recent quizzes.
// Read-only and off the live path; concurrent requests for the board are
// collapsed with singleflight.
type LeaderboardService struct {
	quizzes QuizStore
	results ResultStore
	users   UserStore
	window  int
	sf      singleflight.Group
}

func NewLeaderboardService(quizzes QuizStore, results ResultStore, users UserStore, window int) *LeaderboardService {
	if window <= 0 {
		window = DefaultLeaderboardQuizzes
	}
	return &LeaderboardService{quizzes: quizzes, results: results, users: users, window: window}
}

// Leaderboard computes the board over the last N active/ended quizzes.
func (s *LeaderboardService) Leaderboard(ctx context.Context) ([]domain.LeaderboardRow, error) {
	rows, err, _ := s.sf.Do("leaderboard", func() (interface{}, error) {
		quizzes, err := s.quizzes.FindRecent(ctx, s.window, domain.StatusEnded, domain.StatusActive)
		if err != nil {
			return nil, fmt.Errorf("load recent quizzes: %w", err)
		}
		if len(quizzes) == 0 {
			return []domain.LeaderboardRow{}, nil
		}

		students, err := s.users.FindStudents(ctx)
		if err != nil {
			return nil, fmt.Errorf("load students: %w", err)
		}

		quizIDs := make([]string, len(quizzes))
		for i, q := range quizzes {
			quizIDs[i] = q.ID
		}
		results, err := s.results.FindByQuizIDs(ctx, quizIDs)
		if err != nil {
			return nil, fmt.Errorf("load results: %w", err)
		}

		return ComputeLeaderboard(quizzes, students, results), nil
	})
	if err != nil {
		return nil, err
	}
	return rows.([]domain.LeaderboardRow), nil
}

// ComputeLeaderboard is the pure aggregation: for every student, achieved
// score and each quiz's full marks are summed across all selected quizzes.
// A quiz without a result still counts its full marks in the denominator,
// penalizing absence. Sorted by percentage descending; ties keep the
// store-returned student order.
func ComputeLeaderboard(quizzes []domain.Quiz, students []domain.User, results []domain.QuizResult) []domain.LeaderboardRow {
	// First result per (student, quiz) wins, matching the at-least-once
	// pipeline where duplicates carry identical scores anyway.
	byStudentQuiz := make(map[string]domain.QuizResult, len(results))
	for _, r := range results {
		key := r.StudentID + "\x00" + r.QuizID
		if _, seen := byStudentQuiz[key]; !seen {
			byStudentQuiz[key] = r
		}
	}

	totalPossible := 0
	for _, quiz := range quizzes {
		totalPossible += quiz.TotalMarks()
	}

	rows := make([]domain.LeaderboardRow, 0, len(students))
	for _, student := range students {
		totalScore := 0
		for _, quiz := range quizzes {
			if r, ok := byStudentQuiz[student.UserID+"\x00"+quiz.ID]; ok {
				totalScore += r.Score
			}
		}

		percentage := 0.0
		if totalPossible > 0 {
			percentage = math.Round(float64(totalScore)/float64(totalPossible)*10000) / 100
		}
		rows = append(rows, domain.LeaderboardRow{
			UserID:        student.UserID,
			TotalScore:    totalScore,
			TotalPossible: totalPossible,
			Percentage:    percentage,
		})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Percentage > rows[j].Percentage
	})
	return rows
}
