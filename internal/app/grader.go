package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"

	"live-quiz-service/internal/domain"
)

// Grader turns raw submissions into persisted, scored results. It always
// loads the quiz from the durable store: the snapshot a job may have seen
// is advisory and is never graded against.
type Grader struct {
	quizzes QuizStore
	results ResultStore
	relay   Publisher
	now     func() time.Time
}

func NewGrader(quizzes QuizStore, results ResultStore, relay Publisher) *Grader {
	return &Grader{quizzes: quizzes, results: results, relay: relay, now: time.Now}
}

// ProcessSubmission grades a complete submission, persists one QuizResult
// and publishes a quiz_completed notification addressed to the student.
// Deterministic for a given (quiz, answers, times) tuple; re-processing
// after a crash-before-ack writes a duplicate row, the documented
// at-least-once trade-off.
func (g *Grader) ProcessSubmission(ctx context.Context, job domain.SubmissionJob) (domain.QuizResult, error) {
	quiz, err := g.quizzes.FindByID(ctx, job.QuizID)
	if err != nil {
		return domain.QuizResult{}, fmt.Errorf("load quiz %s: %w", job.QuizID, err)
	}

	result := GradeSubmission(quiz, job)
	result.ID = uuid.NewString()
	result.Timestamp = g.now()

	if err := g.results.Save(ctx, &result); err != nil {
		return domain.QuizResult{}, fmt.Errorf("save result: %w", err)
	}
	log.Printf("saved result: %s %d/%d", job.UserID, result.Score, result.TotalMarks)

	if err := g.notify(ctx, job.UserID, domain.NotifyQuizCompleted, result); err != nil {
		// The result is durable; the live notification is best-effort.
		log.Printf("notify %s: %v", job.UserID, err)
	}
	return result, nil
}

// GradeSubmission is the pure scoring core: every quiz question is compared
// to the submitted answer map, a missing answer counts as incorrect with a
// nil recorded answer, and marks are summed against the quiz total.
func GradeSubmission(quiz domain.Quiz, job domain.SubmissionJob) domain.QuizResult {
	title := job.QuizTitle
	if title == "" {
		title = quiz.Title
	}

	totalScore := 0
	totalPossible := 0
	details := make([]domain.AnswerDetail, 0, len(quiz.Questions))

	for index, question := range quiz.Questions {
		marks := question.MarksOrDefault()
		totalPossible += marks

		key := strconv.Itoa(index)
		var userAnswer *string
		if submitted, ok := job.StudentAnswers[key]; ok {
			userAnswer = &submitted
		}
		isCorrect := userAnswer != nil && *userAnswer == question.CorrectOption
		earned := 0
		if isCorrect {
			earned = marks
			totalScore += marks
		}

		timeTaken := 0
		if raw, ok := job.StudentTimes[key]; ok {
			timeTaken, _ = strconv.Atoi(raw)
		}

		details = append(details, domain.AnswerDetail{
			QuestionID:    key,
			QuestionText:  question.Text,
			UserAnswer:    userAnswer,
			CorrectAnswer: question.CorrectOption,
			IsCorrect:     isCorrect,
			MarksEarned:   earned,
			TimeTaken:     timeTaken,
			TimeLimit:     question.TimeLimitOrDefault(),
		})
	}

	return domain.QuizResult{
		StudentID:      job.UserID,
		QuizID:         quiz.ID,
		QuizTitle:      title,
		Score:          totalScore,
		TotalMarks:     totalPossible,
		TotalTimeTaken: job.TotalTime,
		Answers:        details,
	}
}

// ValidateAnswer checks a single live answer against the quiz and publishes
// an answer_result notification. The correct option is revealed only when
// the submission was wrong.
func (g *Grader) ValidateAnswer(ctx context.Context, job domain.ValidationJob) error {
	quiz, err := g.quizzes.FindByID(ctx, job.QuizID)
	if err != nil {
		return fmt.Errorf("load quiz %s: %w", job.QuizID, err)
	}
	if job.QuestionIndex < 0 || job.QuestionIndex >= len(quiz.Questions) {
		return fmt.Errorf("question index %d out of range for quiz %s: %w", job.QuestionIndex, job.QuizID, domain.ErrQuizNotFound)
	}

	question := quiz.Questions[job.QuestionIndex]
	isCorrect := question.CorrectOption == job.Answer

	feedback := domain.AnswerFeedback{
		QuestionIndex: job.QuestionIndex,
		IsCorrect:     isCorrect,
		Message:       "Incorrect",
	}
	if isCorrect {
		feedback.Message = "Correct!"
	} else {
		correct := question.CorrectOption
		feedback.CorrectOption = &correct
	}
	return g.notify(ctx, job.UserID, domain.NotifyAnswerResult, feedback)
}

func (g *Grader) notify(ctx context.Context, userID, kind string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	envelope, err := json.Marshal(domain.Notification{UserID: userID, Type: kind, Payload: raw})
	if err != nil {
		return err
	}
	return g.relay.Publish(ctx, domain.NotificationChannel, envelope)
}
