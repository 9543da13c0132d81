package domain

import "time"

// QuizStatus is the lifecycle state of a quiz. Transitions are monotonic:
// scheduled -> active -> ended.
type QuizStatus string

const (
	StatusScheduled QuizStatus = "scheduled"
	StatusActive    QuizStatus = "active"
	StatusEnded     QuizStatus = "ended"
)

// TimerMode selects how quiz time is enforced on the client.
type TimerMode string

const (
	TimerWholeQuiz   TimerMode = "whole_quiz"
	TimerPerQuestion TimerMode = "per_question"
)

// Role identifies the kind of connected participant.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

const (
	DefaultMarks     = 1
	DefaultTimeLimit = 30 // seconds
)

// Question is a single MCQ with options keyed A-D.
type Question struct {
	Text          string            `json:"question"`
	Options       map[string]string `json:"options"`
	CorrectOption string            `json:"correctOption"`
	Marks         int               `json:"marks"`
	TimeLimit     int               `json:"timeLimit"`
}

// MarksOrDefault returns the question's marks, defaulting to 1 when unset.
func (q Question) MarksOrDefault() int {
	if q.Marks <= 0 {
		return DefaultMarks
	}
	return q.Marks
}

// TimeLimitOrDefault returns the per-question time limit in seconds.
func (q Question) TimeLimitOrDefault() int {
	if q.TimeLimit <= 0 {
		return DefaultTimeLimit
	}
	return q.TimeLimit
}

// Quiz is the durable quiz record. The durable row is the source of truth;
// the active snapshot in the state store is only a fast read path.
type Quiz struct {
	ID                 string     `json:"id"`
	Title              string     `json:"title"`
	Questions          []Question `json:"questions"`
	CreatedBy          string     `json:"createdBy"`
	TimerMode          TimerMode  `json:"timerMode"`
	TotalQuizTime      int        `json:"totalQuizTime"` // minutes, whole_quiz mode
	AllowedSections    []string   `json:"allowedSections"`
	Status             QuizStatus `json:"status"`
	ScheduledStartTime *time.Time `json:"scheduledStartTime,omitempty"`
	ScheduledEndTime   *time.Time `json:"scheduledEndTime,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
}

// TotalMarks sums the marks of all questions.
func (q Quiz) TotalMarks() int {
	total := 0
	for _, question := range q.Questions {
		total += question.MarksOrDefault()
	}
	return total
}

// SectionAllowed reports whether a student section may take this quiz.
// An empty filter admits everyone.
func (q Quiz) SectionAllowed(section string) bool {
	if len(q.AllowedSections) == 0 {
		return true
	}
	for _, s := range q.AllowedSections {
		if s == section {
			return true
		}
	}
	return false
}

// ActiveQuizSnapshot is the denormalized, expiring copy of the active quiz
// kept in the state store under a well-known key. Advisory only: grading
// always re-reads the durable record.
type ActiveQuizSnapshot struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Questions     []Question `json:"questions"`
	TimerMode     TimerMode  `json:"timerMode"`
	TotalQuizTime int        `json:"totalQuizTime"`
	Status        QuizStatus `json:"status"`
}

// SnapshotOf derives the advisory snapshot from a quiz record.
func SnapshotOf(q Quiz) ActiveQuizSnapshot {
	return ActiveQuizSnapshot{
		ID:            q.ID,
		Title:         q.Title,
		Questions:     q.Questions,
		TimerMode:     q.TimerMode,
		TotalQuizTime: q.TotalQuizTime,
		Status:        StatusActive,
	}
}

// AnswerDetail is the per-question breakdown inside a graded result.
type AnswerDetail struct {
	QuestionID    string  `json:"questionId"`
	QuestionText  string  `json:"questionText"`
	UserAnswer    *string `json:"userAnswer"` // nil when the student skipped
	CorrectAnswer string  `json:"correctAnswer"`
	IsCorrect     bool    `json:"isCorrect"`
	MarksEarned   int     `json:"marksEarned"`
	TimeTaken     int     `json:"timeTaken"`
	TimeLimit     int     `json:"timeLimit"`
}

// QuizResult is the durable graded outcome for one (student, quiz) pair.
// Written only by the grading worker; read-only everywhere else.
type QuizResult struct {
	ID             string         `json:"id"`
	StudentID      string         `json:"studentId"`
	QuizID         string         `json:"quizId"`
	QuizTitle      string         `json:"quizTitle"`
	Score          int            `json:"score"`
	TotalMarks     int            `json:"totalMarks"`
	TotalTimeTaken int            `json:"totalTimeTaken"` // seconds
	Answers        []AnswerDetail `json:"answers"`
	Timestamp      time.Time      `json:"timestamp"`
}

// MalpracticeLog is an append-only audit record, never updated.
type MalpracticeLog struct {
	StudentID string    `json:"studentId"`
	QuizID    string    `json:"quizId"`
	EventType string    `json:"eventType"`
	Timestamp time.Time `json:"timestamp"`
}

// User is the narrow account lookup used for section filtering and the
// leaderboard roster. Account management itself lives elsewhere.
type User struct {
	UserID  string `json:"userid"`
	Name    string `json:"name"`
	Role    Role   `json:"role"`
	Section string `json:"section"`
}

// LeaderboardRow is one aggregated line of the cross-quiz leaderboard.
type LeaderboardRow struct {
	UserID        string  `json:"userid"`
	TotalScore    int     `json:"totalScore"`
	TotalPossible int     `json:"totalPossible"`
	Percentage    float64 `json:"percentage"`
}
