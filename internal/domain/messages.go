package domain

import "encoding/json"

// Queue names for the grading pipeline. Both queues are durable and every
// message is published persistent.
const (
	SubmissionQueue = "quiz_submissions"
	ValidationQueue = "question_validation"
)

// NotificationChannel is the pub/sub channel workers use to reach whichever
// coordinator process holds the recipient's live connection.
const NotificationChannel = "quiz_notifications"

// Notification kinds carried over the relay.
const (
	NotifyQuizCompleted = "quiz_completed"
	NotifyAnswerResult  = "answer_result"
)

// SubmissionJob is one participant's complete answer set for a finished
// quiz, destined for full grading. Answer and time maps are keyed by the
// question index rendered as a string.
type SubmissionJob struct {
	UserID         string            `json:"userid"`
	QuizID         string            `json:"quizId"`
	QuizTitle      string            `json:"quizTitle"`
	TotalTime      int               `json:"totalTime"`
	StudentAnswers map[string]string `json:"studentAnswers"`
	StudentTimes   map[string]string `json:"studentTimes"`
}

// ValidationJob is a single answered question destined for immediate
// correctness feedback.
type ValidationJob struct {
	UserID        string `json:"userid"`
	QuizID        string `json:"quizId"`
	QuestionIndex int    `json:"questionIndex"`
	Answer        string `json:"answer"`
}

// Notification is the typed envelope crossing the worker/coordinator
// process boundary. The payload stays raw until it reaches the socket.
type Notification struct {
	UserID  string          `json:"userid"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AnswerFeedback is the payload of an answer_result notification. The
// correct option is revealed only when the submission was wrong.
type AnswerFeedback struct {
	QuestionIndex int     `json:"questionIndex"`
	IsCorrect     bool    `json:"isCorrect"`
	CorrectOption *string `json:"correctOption"`
	Message       string  `json:"message"`
}
