package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"live-quiz-service/internal/domain"
)

// QuizStore persists quiz records. Question documents are stored as JSONB;
// scalar fields used for filtering and ordering get their own columns.
type QuizStore struct {
	pool *pgxpool.Pool
}

func NewQuizStore(pool *pgxpool.Pool) *QuizStore {
	return &QuizStore{pool: pool}
}

func (s *QuizStore) Create(ctx context.Context, quiz *domain.Quiz) error {
	questions, err := json.Marshal(quiz.Questions)
	if err != nil {
		return fmt.Errorf("encode questions: %w", err)
	}
	sections, err := json.Marshal(quiz.AllowedSections)
	if err != nil {
		return fmt.Errorf("encode sections: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO quizzes (id, title, questions, created_by, timer_mode, total_quiz_time,
			allowed_sections, status, scheduled_start_time, scheduled_end_time, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		quiz.ID, quiz.Title, questions, quiz.CreatedBy, string(quiz.TimerMode), quiz.TotalQuizTime,
		sections, string(quiz.Status), quiz.ScheduledStartTime, quiz.ScheduledEndTime, quiz.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert quiz: %w", err)
	}
	return nil
}

func (s *QuizStore) FindByID(ctx context.Context, id string) (domain.Quiz, error) {
	row := s.pool.QueryRow(ctx, selectQuiz+` WHERE id=$1`, id)
	quiz, err := scanQuiz(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return quiz, err
}

func (s *QuizStore) FindAll(ctx context.Context) ([]domain.Quiz, error) {
	rows, err := s.pool.Query(ctx, selectQuiz+` ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query quizzes: %w", err)
	}
	defer rows.Close()
	return scanQuizzes(rows)
}

func (s *QuizStore) FindByStatus(ctx context.Context, statuses ...domain.QuizStatus) ([]domain.Quiz, error) {
	rows, err := s.pool.Query(ctx, selectQuiz+` WHERE status = ANY($1) ORDER BY created_at DESC`, statusStrings(statuses))
	if err != nil {
		return nil, fmt.Errorf("query quizzes by status: %w", err)
	}
	defer rows.Close()
	return scanQuizzes(rows)
}

func (s *QuizStore) FindRecent(ctx context.Context, limit int, statuses ...domain.QuizStatus) ([]domain.Quiz, error) {
	rows, err := s.pool.Query(ctx, selectQuiz+` WHERE status = ANY($1) ORDER BY created_at DESC LIMIT $2`, statusStrings(statuses), limit)
	if err != nil {
		return nil, fmt.Errorf("query recent quizzes: %w", err)
	}
	defer rows.Close()
	return scanQuizzes(rows)
}

func (s *QuizStore) UpdateStatus(ctx context.Context, id string, status domain.QuizStatus) error {
	tag, err := s.pool.Exec(ctx, `UPDATE quizzes SET status=$2 WHERE id=$1`, id, string(status))
	if err != nil {
		return fmt.Errorf("update quiz status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrQuizNotFound
	}
	return nil
}

const selectQuiz = `
	SELECT id, title, questions, created_by, timer_mode, total_quiz_time,
		allowed_sections, status, scheduled_start_time, scheduled_end_time, created_at
	FROM quizzes`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanQuiz(row rowScanner) (domain.Quiz, error) {
	var (
		quiz      domain.Quiz
		questions []byte
		sections  []byte
		timerMode string
		status    string
		start     *time.Time
		end       *time.Time
	)
	if err := row.Scan(&quiz.ID, &quiz.Title, &questions, &quiz.CreatedBy, &timerMode,
		&quiz.TotalQuizTime, &sections, &status, &start, &end, &quiz.CreatedAt); err != nil {
		return domain.Quiz{}, err
	}
	if err := json.Unmarshal(questions, &quiz.Questions); err != nil {
		return domain.Quiz{}, fmt.Errorf("decode questions: %w", err)
	}
	if len(sections) > 0 {
		if err := json.Unmarshal(sections, &quiz.AllowedSections); err != nil {
			return domain.Quiz{}, fmt.Errorf("decode sections: %w", err)
		}
	}
	quiz.TimerMode = domain.TimerMode(timerMode)
	quiz.Status = domain.QuizStatus(status)
	quiz.ScheduledStartTime = start
	quiz.ScheduledEndTime = end
	return quiz, nil
}

func scanQuizzes(rows pgx.Rows) ([]domain.Quiz, error) {
	out := make([]domain.Quiz, 0)
	for rows.Next() {
		quiz, err := scanQuiz(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, quiz)
	}
	return out, rows.Err()
}

func statusStrings(statuses []domain.QuizStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// ResultStore persists graded results, breakdown as JSONB.
type ResultStore struct {
	pool *pgxpool.Pool
}

func NewResultStore(pool *pgxpool.Pool) *ResultStore {
	return &ResultStore{pool: pool}
}

func (s *ResultStore) Save(ctx context.Context, result *domain.QuizResult) error {
	answers, err := json.Marshal(result.Answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO quiz_results (id, student_id, quiz_id, quiz_title, score, total_marks,
			total_time_taken, answers, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		result.ID, result.StudentID, result.QuizID, result.QuizTitle, result.Score,
		result.TotalMarks, result.TotalTimeTaken, answers, result.Timestamp)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

func (s *ResultStore) FindByID(ctx context.Context, id string) (domain.QuizResult, error) {
	row := s.pool.QueryRow(ctx, selectResult+` WHERE id=$1`, id)
	result, err := scanResult(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.QuizResult{}, domain.ErrResultNotFound
	}
	return result, err
}

func (s *ResultStore) FindAll(ctx context.Context) ([]domain.QuizResult, error) {
	rows, err := s.pool.Query(ctx, selectResult+` ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()
	return scanResults(rows)
}

func (s *ResultStore) FindByStudent(ctx context.Context, studentID string) ([]domain.QuizResult, error) {
	rows, err := s.pool.Query(ctx, selectResult+` WHERE student_id=$1 ORDER BY created_at DESC`, studentID)
	if err != nil {
		return nil, fmt.Errorf("query results by student: %w", err)
	}
	defer rows.Close()
	return scanResults(rows)
}

func (s *ResultStore) FindByQuizIDs(ctx context.Context, quizIDs []string) ([]domain.QuizResult, error) {
	rows, err := s.pool.Query(ctx, selectResult+` WHERE quiz_id = ANY($1) ORDER BY created_at DESC`, quizIDs)
	if err != nil {
		return nil, fmt.Errorf("query results by quiz: %w", err)
	}
	defer rows.Close()
	return scanResults(rows)
}

const selectResult = `
	SELECT id, student_id, quiz_id, quiz_title, score, total_marks,
		total_time_taken, answers, created_at
	FROM quiz_results`

func scanResult(row rowScanner) (domain.QuizResult, error) {
	var (
		result  domain.QuizResult
		answers []byte
	)
	if err := row.Scan(&result.ID, &result.StudentID, &result.QuizID, &result.QuizTitle,
		&result.Score, &result.TotalMarks, &result.TotalTimeTaken, &answers, &result.Timestamp); err != nil {
		return domain.QuizResult{}, err
	}
	if err := json.Unmarshal(answers, &result.Answers); err != nil {
		return domain.QuizResult{}, fmt.Errorf("decode answers: %w", err)
	}
	return result, nil
}

func scanResults(rows pgx.Rows) ([]domain.QuizResult, error) {
	out := make([]domain.QuizResult, 0)
	for rows.Next() {
		result, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, result)
	}
	return out, rows.Err()
}

// MalpracticeStore appends audit rows; there is deliberately no update or
// delete path.
type MalpracticeStore struct {
	pool *pgxpool.Pool
}

func NewMalpracticeStore(pool *pgxpool.Pool) *MalpracticeStore {
	return &MalpracticeStore{pool: pool}
}

func (s *MalpracticeStore) Append(ctx context.Context, entry domain.MalpracticeLog) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO malpractice_logs (student_id, quiz_id, event_type, created_at)
		VALUES ($1,$2,$3,$4)`,
		entry.StudentID, entry.QuizID, entry.EventType, entry.Timestamp)
	if err != nil {
		return fmt.Errorf("insert malpractice log: %w", err)
	}
	return nil
}

// UserStore is the narrow account lookup.
type UserStore struct {
	pool *pgxpool.Pool
}

func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

func (s *UserStore) FindByID(ctx context.Context, userID string) (domain.User, error) {
	var user domain.User
	var role string
	var section *string
	err := s.pool.QueryRow(ctx, `SELECT userid, name, role, section FROM users WHERE userid=$1`, userID).
		Scan(&user.UserID, &user.Name, &role, &section)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("query user: %w", err)
	}
	user.Role = domain.Role(role)
	if section != nil {
		user.Section = *section
	}
	return user, nil
}

func (s *UserStore) FindStudents(ctx context.Context) ([]domain.User, error) {
	rows, err := s.pool.Query(ctx, `SELECT userid, name, role, section FROM users WHERE role=$1 ORDER BY userid`, string(domain.RoleStudent))
	if err != nil {
		return nil, fmt.Errorf("query students: %w", err)
	}
	defer rows.Close()

	out := make([]domain.User, 0)
	for rows.Next() {
		var user domain.User
		var role string
		var section *string
		if err := rows.Scan(&user.UserID, &user.Name, &role, &section); err != nil {
			return nil, err
		}
		user.Role = domain.Role(role)
		if section != nil {
			user.Section = *section
		}
		out = append(out, user)
	}
	return out, rows.Err()
}
