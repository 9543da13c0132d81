package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"

	"live-quiz-service/internal/domain"
)

// ActiveQuizKey is the well-known state-store key holding the snapshot of
// the quiz currently being administered.
const ActiveQuizKey = "quiz:active"

// DefaultSnapshotTTL bounds how long a snapshot survives a crashed
// coordinator before the store expires it.
const DefaultSnapshotTTL = 2 * time.Hour

// Coordinator owns the single-active-quiz invariant and mediates all live
// participant interaction. It is the sole writer of quiz status and of the
// active snapshot; concurrent activations converge because the last snapshot
// write wins and stale actives are swept on the next pass.
type Coordinator struct {
	state       StateStore
	quizzes     QuizStore
	malpractice MalpracticeStore
	queue       JobQueue
	relay       Subscriber
	hub         *Hub
	snapshotTTL time.Duration
	now         func() time.Time
}

func NewCoordinator(state StateStore, quizzes QuizStore, malpractice MalpracticeStore, queue JobQueue, relay Subscriber, hub *Hub, snapshotTTL time.Duration) *Coordinator {
	if snapshotTTL <= 0 {
		snapshotTTL = DefaultSnapshotTTL
	}
	return &Coordinator{
		state:       state,
		quizzes:     quizzes,
		malpractice: malpractice,
		queue:       queue,
		relay:       relay,
		hub:         hub,
		snapshotTTL: snapshotTTL,
		now:         time.Now,
	}
}

// Hub exposes the connection registry to the transport layer.
func (c *Coordinator) Hub() *Hub { return c.hub }

// QuizDraft is the inbound shape for quiz creation over the live channel.
type QuizDraft struct {
	Title              string            `json:"title"`
	Questions          []domain.Question `json:"questions"`
	CreatedBy          string            `json:"createdBy"`
	TimerMode          domain.TimerMode  `json:"timerMode"`
	TotalQuizTime      int               `json:"totalQuizTime"`
	AllowedSections    []string          `json:"allowedSections"`
	ScheduledStartTime *time.Time        `json:"scheduledStartTime"`
	ScheduledEndTime   *time.Time        `json:"scheduledEndTime"`
}

// CreateQuiz persists a new quiz. A draft with a scheduled start time is
// created in the scheduled state; otherwise it goes active immediately and
// its snapshot is broadcast.
func (c *Coordinator) CreateQuiz(ctx context.Context, draft QuizDraft) (domain.Quiz, error) {
	if draft.Title == "" || len(draft.Questions) == 0 {
		return domain.Quiz{}, fmt.Errorf("quiz needs a title and at least one question")
	}

	status := domain.StatusActive
	if draft.ScheduledStartTime != nil {
		status = domain.StatusScheduled
	}
	timerMode := draft.TimerMode
	if timerMode == "" {
		timerMode = domain.TimerPerQuestion
	}
	totalTime := draft.TotalQuizTime
	if totalTime <= 0 {
		totalTime = 30
	}
	createdBy := draft.CreatedBy
	if createdBy == "" {
		createdBy = "teacher"
	}

	quiz := domain.Quiz{
		ID:                 uuid.NewString(),
		Title:              draft.Title,
		Questions:          draft.Questions,
		CreatedBy:          createdBy,
		TimerMode:          timerMode,
		TotalQuizTime:      totalTime,
		AllowedSections:    draft.AllowedSections,
		Status:             status,
		ScheduledStartTime: draft.ScheduledStartTime,
		ScheduledEndTime:   draft.ScheduledEndTime,
		CreatedAt:          c.now(),
	}
	if err := c.quizzes.Create(ctx, &quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("create quiz: %w", err)
	}

	if status == domain.StatusActive {
		c.Activate(ctx, quiz)
	}
	return quiz, nil
}

// Activate makes the quiz the single active one: its snapshot is written
// under the well-known key (last writer wins) and any other quiz still
// marked active is force-ended as repair. Store failures are logged only;
// the broadcast is best-effort.
func (c *Coordinator) Activate(ctx context.Context, quiz domain.Quiz) {
	if quiz.Status != domain.StatusActive {
		if err := c.quizzes.UpdateStatus(ctx, quiz.ID, domain.StatusActive); err != nil {
			log.Printf("activate: status update for %s failed: %v", quiz.ID, err)
			return
		}
		quiz.Status = domain.StatusActive
	}

	c.sweepStaleActives(ctx, quiz.ID)

	if err := c.writeSnapshot(ctx, quiz); err != nil {
		log.Printf("activate: snapshot write for %s failed: %v", quiz.ID, err)
	}

	c.hub.Broadcast(Event{Type: "quiz", Payload: domain.SnapshotOf(quiz)})
}

// RestoreActiveState reconciles durable status with the snapshot after a
// restart: the most recent active quiz keeps running, older actives left by
// a crash are ended, and with no active quiz the snapshot key is cleared.
func (c *Coordinator) RestoreActiveState(ctx context.Context) {
	actives, err := c.quizzes.FindByStatus(ctx, domain.StatusActive)
	if err != nil {
		log.Printf("restore active state: %v", err)
		return
	}
	if len(actives) == 0 {
		if err := c.state.Del(ctx, ActiveQuizKey); err != nil {
			log.Printf("restore active state: clear snapshot: %v", err)
		}
		return
	}

	current := actives[0]
	log.Printf("restoring active quiz: %s (%s)", current.Title, current.ID)
	if err := c.writeSnapshot(ctx, current); err != nil {
		log.Printf("restore active state: snapshot write: %v", err)
	}
	for _, stale := range actives[1:] {
		log.Printf("ending stale active quiz: %s (%s)", stale.Title, stale.ID)
		if err := c.quizzes.UpdateStatus(ctx, stale.ID, domain.StatusEnded); err != nil {
			log.Printf("restore active state: end stale quiz %s: %v", stale.ID, err)
		}
	}
}

// SweepSchedules activates scheduled quizzes whose start time has passed
// and ends active quizzes past their end time. Called from read paths so a
// due quiz is live before any quiz list is returned.
func (c *Coordinator) SweepSchedules(ctx context.Context) {
	now := c.now()

	quizzes, err := c.quizzes.FindByStatus(ctx, domain.StatusScheduled, domain.StatusActive)
	if err != nil {
		log.Printf("schedule sweep: %v", err)
		return
	}

	for _, quiz := range quizzes {
		switch {
		case quiz.Status == domain.StatusScheduled &&
			quiz.ScheduledStartTime != nil && !quiz.ScheduledStartTime.After(now):
			log.Printf("auto-activating scheduled quiz: %s", quiz.Title)
			c.Activate(ctx, quiz)

		case quiz.Status == domain.StatusActive &&
			quiz.ScheduledEndTime != nil && !quiz.ScheduledEndTime.After(now):
			log.Printf("auto-ending expired quiz: %s", quiz.Title)
			if err := c.quizzes.UpdateStatus(ctx, quiz.ID, domain.StatusEnded); err != nil {
				log.Printf("schedule sweep: end quiz %s: %v", quiz.ID, err)
				continue
			}
			c.clearSnapshotIfCurrent(ctx, quiz.ID)
		}
	}
}

// ActiveSnapshot returns the snapshot of the running quiz, or
// domain.ErrNoActiveQuiz when none is active. Absence is a normal signal,
// not an error condition for callers.
func (c *Coordinator) ActiveSnapshot(ctx context.Context) (domain.ActiveQuizSnapshot, error) {
	raw, err := c.state.Get(ctx, ActiveQuizKey)
	if err != nil {
		if errors.Is(err, domain.ErrKeyNotFound) {
			return domain.ActiveQuizSnapshot{}, domain.ErrNoActiveQuiz
		}
		return domain.ActiveQuizSnapshot{}, fmt.Errorf("read active snapshot: %w", err)
	}
	var snapshot domain.ActiveQuizSnapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return domain.ActiveQuizSnapshot{}, fmt.Errorf("decode active snapshot: %w", err)
	}
	return snapshot, nil
}

// StudentJoin reports the active snapshot plus how many answers the student
// has already banked, so a reconnecting client resumes where it left off.
func (c *Coordinator) StudentJoin(ctx context.Context, userID string) (domain.ActiveQuizSnapshot, int64, error) {
	snapshot, err := c.ActiveSnapshot(ctx)
	if err != nil {
		return domain.ActiveQuizSnapshot{}, 0, err
	}
	count, err := c.state.HLen(ctx, answersKey(snapshot.ID, userID))
	if err != nil {
		log.Printf("student join: answer count for %s: %v", userID, err)
		count = 0
	}
	return snapshot, count, nil
}

// MonitorState summarizes the live session for an observer view.
type MonitorState struct {
	Active   bool                      `json:"active"`
	Quiz     *domain.ActiveQuizSnapshot `json:"quiz,omitempty"`
	Students []MonitorStudent          `json:"students,omitempty"`
}

type MonitorStudent struct {
	UserID       string `json:"userid"`
	AnswersCount int64  `json:"answersCount"`
	Status       string `json:"status"`
}

// MonitorSnapshot builds the observer view: the running quiz and each
// online student's progress pulled from the answer ledgers.
func (c *Coordinator) MonitorSnapshot(ctx context.Context) (MonitorState, error) {
	snapshot, err := c.ActiveSnapshot(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNoActiveQuiz) {
			return MonitorState{Active: false}, nil
		}
		return MonitorState{}, err
	}

	students := make([]MonitorStudent, 0)
	for _, userID := range c.hub.OnlineStudents() {
		count, err := c.state.HLen(ctx, answersKey(snapshot.ID, userID))
		if err != nil {
			log.Printf("monitor: answer count for %s: %v", userID, err)
			continue
		}
		students = append(students, MonitorStudent{UserID: userID, AnswersCount: count, Status: "online"})
	}
	return MonitorState{Active: true, Quiz: &snapshot, Students: students}, nil
}

// RecordAnswer appends to the student's answer ledger for the active quiz
// (last write wins per question index) and enqueues an asynchronous
// validation job for fast feedback. Returns ErrNoActiveQuiz when nothing is
// running.
func (c *Coordinator) RecordAnswer(ctx context.Context, userID string, questionIndex int, answer string, timeTaken *int) error {
	snapshot, err := c.ActiveSnapshot(ctx)
	if err != nil {
		return err
	}

	field := strconv.Itoa(questionIndex)
	if err := c.state.HSet(ctx, answersKey(snapshot.ID, userID), field, answer); err != nil {
		return fmt.Errorf("record answer: %w", err)
	}
	if timeTaken != nil {
		if err := c.state.HSet(ctx, timesKey(snapshot.ID, userID), field, strconv.Itoa(*timeTaken)); err != nil {
			log.Printf("record answer: time ledger for %s: %v", userID, err)
		}
	}

	job := domain.ValidationJob{
		UserID:        userID,
		QuizID:        snapshot.ID,
		QuestionIndex: questionIndex,
		Answer:        answer,
	}
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode validation job: %w", err)
	}
	if err := c.queue.Publish(ctx, domain.ValidationQueue, body); err != nil {
		// Feedback is best-effort; the answer itself is already banked.
		log.Printf("record answer: queue validation for %s: %v", userID, err)
	}
	return nil
}

// FinishSession packages the student's complete ledgers into a submission
// job and enqueues it for grading. The caller is acknowledged as soon as
// the job is durably queued; grading happens off this path entirely.
func (c *Coordinator) FinishSession(ctx context.Context, userID string, totalTime int) error {
	snapshot, err := c.ActiveSnapshot(ctx)
	if err != nil {
		return err
	}

	answers, err := c.state.HGetAll(ctx, answersKey(snapshot.ID, userID))
	if err != nil {
		return fmt.Errorf("finish session: read answers: %w", err)
	}
	times, err := c.state.HGetAll(ctx, timesKey(snapshot.ID, userID))
	if err != nil {
		return fmt.Errorf("finish session: read times: %w", err)
	}

	job := domain.SubmissionJob{
		UserID:         userID,
		QuizID:         snapshot.ID,
		QuizTitle:      snapshot.Title,
		TotalTime:      totalTime,
		StudentAnswers: answers,
		StudentTimes:   times,
	}
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode submission job: %w", err)
	}
	if err := c.queue.Publish(ctx, domain.SubmissionQueue, body); err != nil {
		return fmt.Errorf("queue submission: %w", err)
	}
	log.Printf("queued submission for %s (quiz %s)", userID, snapshot.ID)
	return nil
}

// EndQuiz marks the running quiz ended, removes its snapshot and broadcasts
// completion. Returns the ended quiz id.
func (c *Coordinator) EndQuiz(ctx context.Context) (string, error) {
	snapshot, err := c.ActiveSnapshot(ctx)
	if err != nil {
		return "", err
	}
	if err := c.quizzes.UpdateStatus(ctx, snapshot.ID, domain.StatusEnded); err != nil {
		return "", fmt.Errorf("end quiz: %w", err)
	}
	if err := c.state.Del(ctx, ActiveQuizKey); err != nil {
		log.Printf("end quiz: clear snapshot: %v", err)
	}
	c.hub.Broadcast(Event{Type: "quiz_ended", Payload: map[string]string{"quizId": snapshot.ID}})
	log.Printf("quiz ended: %s (%s)", snapshot.Title, snapshot.ID)
	return snapshot.ID, nil
}

// RecordMalpractice appends to the audit trail and alerts observers. The
// log write failing does not suppress the live alert.
func (c *Coordinator) RecordMalpractice(ctx context.Context, entry domain.MalpracticeLog) error {
	entry.Timestamp = c.now()
	if err := c.malpractice.Append(ctx, entry); err != nil {
		return fmt.Errorf("log malpractice: %w", err)
	}
	return nil
}

// RunRelay subscribes to the notification channel and routes each envelope
// to the recipient's connections. Unroutable notifications are dropped;
// results remain retrievable from durable storage. Blocks until ctx is done.
func (c *Coordinator) RunRelay(ctx context.Context) error {
	messages, cancel, err := c.relay.Subscribe(ctx, domain.NotificationChannel)
	if err != nil {
		return fmt.Errorf("subscribe notifications: %w", err)
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-messages:
			if !ok {
				return nil
			}
			var n domain.Notification
			if err := json.Unmarshal(raw, &n); err != nil {
				log.Printf("relay: bad notification: %v", err)
				continue
			}
			if !c.hub.ToUser(n.UserID, Event{Type: n.Type, Payload: n.Payload}) {
				log.Printf("relay: %s for %s dropped (not connected)", n.Type, n.UserID)
			}
		}
	}
}

func (c *Coordinator) writeSnapshot(ctx context.Context, quiz domain.Quiz) error {
	data, err := json.Marshal(domain.SnapshotOf(quiz))
	if err != nil {
		return err
	}
	return c.state.Set(ctx, ActiveQuizKey, string(data), c.snapshotTTL)
}

// sweepStaleActives force-ends every active quiz other than winnerID.
// Repairs the invariant after a crashed coordinator or a superseding
// activation.
func (c *Coordinator) sweepStaleActives(ctx context.Context, winnerID string) {
	actives, err := c.quizzes.FindByStatus(ctx, domain.StatusActive)
	if err != nil {
		log.Printf("sweep stale actives: %v", err)
		return
	}
	for _, quiz := range actives {
		if quiz.ID == winnerID {
			continue
		}
		log.Printf("ending superseded active quiz: %s (%s)", quiz.Title, quiz.ID)
		if err := c.quizzes.UpdateStatus(ctx, quiz.ID, domain.StatusEnded); err != nil {
			log.Printf("sweep stale actives: end %s: %v", quiz.ID, err)
		}
	}
}

// clearSnapshotIfCurrent deletes the snapshot only when it still belongs to
// the given quiz, so ending an old quiz never clobbers a newer activation.
func (c *Coordinator) clearSnapshotIfCurrent(ctx context.Context, quizID string) {
	snapshot, err := c.ActiveSnapshot(ctx)
	if err != nil {
		return
	}
	if snapshot.ID != quizID {
		return
	}
	if err := c.state.Del(ctx, ActiveQuizKey); err != nil {
		log.Printf("clear snapshot: %v", err)
	}
}

func answersKey(quizID, userID string) string {
	return "answers:" + quizID + ":" + userID
}

func timesKey(quizID, userID string) string {
	return "times:" + quizID + ":" + userID
}
