package app

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"live-quiz-service/internal/domain"
)

// Arena state-store keys. The scoreboard is independent of durable grading
// and can be wiped without touching any result.
const (
	arenaParticipantsKey  = "arena:participants"
	arenaTeacherScoreKey  = "arena:score:teacher"
	arenaStudentScoresKey = "arena:score:students"
)

// Arena runs the fast-answer live game: one counter for the presenter, one
// per student, every change followed by a full scoreboard broadcast.
type Arena struct {
	state StateStore
	hub   *Hub
}

func NewArena(state StateStore, hub *Hub) *Arena {
	return &Arena{state: state, hub: hub}
}

// ArenaQuestion is relayed verbatim from the presenter to the room.
type ArenaQuestion struct {
	Question      string            `json:"question"`
	Options       map[string]string `json:"options"`
	CorrectOption string            `json:"correctOption"`
	TimeLimit     int               `json:"timeLimit"`
}

// ScoreUpdate is the joining view of the two counters.
type ScoreUpdate struct {
	TeacherScore int `json:"teacherScore"`
	StudentScore int `json:"studentScore"`
}

// ArenaAnswerResult is the submitter's personal outcome.
type ArenaAnswerResult struct {
	Correct       bool   `json:"correct"`
	CorrectOption string `json:"correctOption"`
	NewScore      int    `json:"newScore"`
	TeacherScore  int    `json:"teacherScore"`
}

// ArenaEntry is one scoreboard line.
type ArenaEntry struct {
	UserID string `json:"userid"`
	Score  int    `json:"score"`
}

// Join registers a student in the participant set and returns the current
// counters for the joining connection.
func (a *Arena) Join(ctx context.Context, userID string, role domain.Role) (ScoreUpdate, error) {
	if role == domain.RoleStudent {
		if err := a.state.SAdd(ctx, arenaParticipantsKey, userID); err != nil {
			return ScoreUpdate{}, fmt.Errorf("arena join: %w", err)
		}
	}

	update := ScoreUpdate{TeacherScore: a.teacherScore(ctx)}
	if role == domain.RoleStudent {
		update.StudentScore = a.studentScore(ctx, userID)
	}
	return update, nil
}

// PostQuestion broadcasts a presenter question to the room.
func (a *Arena) PostQuestion(q ArenaQuestion) {
	a.hub.ToRoom(ArenaRoom, Event{Type: "arena_new_question", Payload: q})
}

// SubmitAnswer scores a fast answer: correct increments the student's
// counter, incorrect increments the presenter's. Both paths end with a
// global score broadcast and a scoreboard recomputation.
func (a *Arena) SubmitAnswer(ctx context.Context, userID, answer, correctOption string) (ArenaAnswerResult, error) {
	isCorrect := answer == correctOption

	var studentScore, teacherScore int
	if isCorrect {
		n, err := a.state.HIncrBy(ctx, arenaStudentScoresKey, userID, 1)
		if err != nil {
			return ArenaAnswerResult{}, fmt.Errorf("arena score: %w", err)
		}
		studentScore = int(n)
		teacherScore = a.teacherScore(ctx)
	} else {
		n, err := a.state.Incr(ctx, arenaTeacherScoreKey)
		if err != nil {
			return ArenaAnswerResult{}, fmt.Errorf("arena score: %w", err)
		}
		teacherScore = int(n)
		studentScore = a.studentScore(ctx, userID)
	}

	a.hub.ToRoom(ArenaRoom, Event{Type: "arena_global_score_update", Payload: map[string]int{"teacherScore": teacherScore}})
	a.BroadcastScoreboard(ctx)

	return ArenaAnswerResult{
		Correct:       isCorrect,
		CorrectOption: correctOption,
		NewScore:      studentScore,
		TeacherScore:  teacherScore,
	}, nil
}

// ResetScores wipes both counters and the participant set, then pushes the
// zeroed state to the room.
func (a *Arena) ResetScores(ctx context.Context) error {
	if err := a.state.Del(ctx, arenaTeacherScoreKey, arenaStudentScoresKey, arenaParticipantsKey); err != nil {
		return fmt.Errorf("arena reset: %w", err)
	}
	a.hub.ToRoom(ArenaRoom, Event{Type: "score_update", Payload: ScoreUpdate{}})
	a.BroadcastScoreboard(ctx)
	return nil
}

// Scoreboard returns the per-student scores sorted descending. Ties keep
// the hash iteration order, which is not deterministic; fine for a live
// display, never used for graded results.
func (a *Arena) Scoreboard(ctx context.Context) ([]ArenaEntry, error) {
	scores, err := a.state.HGetAll(ctx, arenaStudentScoresKey)
	if err != nil {
		return nil, fmt.Errorf("arena scoreboard: %w", err)
	}
	entries := make([]ArenaEntry, 0, len(scores))
	for userID, raw := range scores {
		score, _ := strconv.Atoi(raw)
		entries = append(entries, ArenaEntry{UserID: userID, Score: score})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})
	return entries, nil
}

// BroadcastScoreboard recomputes the scoreboard and sends it to the room.
// Best-effort: failures are swallowed after being reported by Scoreboard.
func (a *Arena) BroadcastScoreboard(ctx context.Context) {
	entries, err := a.Scoreboard(ctx)
	if err != nil {
		return
	}
	a.hub.ToRoom(ArenaRoom, Event{Type: "arena_leaderboard_update", Payload: entries})
}

func (a *Arena) teacherScore(ctx context.Context) int {
	raw, err := a.state.Get(ctx, arenaTeacherScoreKey)
	if err != nil {
		return 0
	}
	n, _ := strconv.Atoi(raw)
	return n
}

func (a *Arena) studentScore(ctx context.Context, userID string) int {
	raw, err := a.state.HGet(ctx, arenaStudentScoresKey, userID)
	if err != nil {
		return 0
	}
	n, _ := strconv.Atoi(raw)
	return n
}
