package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

// WSHandler exposes the coordinator and arena over a websocket carrying
// {type, payload} envelopes in both directions.
type WSHandler struct {
	coordinator *app.Coordinator
	arena       *app.Arena
	upgrader    websocket.Upgrader
}

func NewWSHandler(coordinator *app.Coordinator, arena *app.Arena) *WSHandler {
	return &WSHandler{
		coordinator: coordinator,
		arena:       arena,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type joinPayload struct {
	UserID string      `json:"userid"`
	Role   domain.Role `json:"role"`
}

type answerPayload struct {
	UserID        string `json:"userid"`
	QuestionIndex int    `json:"questionIndex"`
	Answer        string `json:"answer"`
	TimeTaken     *int   `json:"timeTaken"`
}

type finishPayload struct {
	UserID    string `json:"userid"`
	TotalTime int    `json:"totalTime"`
}

type malpracticePayload struct {
	UserID string `json:"userid"`
	QuizID string `json:"quizId"`
	Type   string `json:"type"`
}

type arenaAnswerPayload struct {
	UserID        string `json:"userid"`
	Answer        string `json:"answer"`
	CorrectOption string `json:"correctOption"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades the request and runs the connection: a writer goroutine
// drains the hub stream (the hub is the only producer, so there is exactly
// one writer per socket) while this goroutine reads and dispatches.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	hub := h.coordinator.Hub()
	connID := uuid.NewString()
	events, cancel := hub.Register(connID)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for ev := range events {
			if err := conn.WriteJSON(ev); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		h.dispatch(r.Context(), connID, inbound)
	}

	cancel()
	hub.Broadcast(app.Event{Type: "update_active_count", Payload: hub.StudentCount()})
	<-writerDone
}

func (h *WSHandler) dispatch(ctx context.Context, connID string, inbound inboundMessage) {
	hub := h.coordinator.Hub()

	switch inbound.Type {
	case "join":
		var payload joinPayload
		if !h.decode(connID, inbound.Payload, &payload) {
			return
		}
		h.handleJoin(ctx, connID, payload)

	case "monitor_join":
		hub.JoinRoom(connID, app.MonitorRoom)
		state, err := h.coordinator.MonitorSnapshot(ctx)
		if err != nil {
			h.sendError(connID, err)
			return
		}
		hub.Send(connID, app.Event{Type: "monitor_init", Payload: state})

	case "create_quiz":
		var draft app.QuizDraft
		if !h.decode(connID, inbound.Payload, &draft) {
			return
		}
		quiz, err := h.coordinator.CreateQuiz(ctx, draft)
		if err != nil {
			log.Printf("create quiz: %v", err)
			hub.Send(connID, app.Event{Type: "quiz_creation_failed", Payload: errorPayload{Message: "Failed to create quiz"}})
			return
		}
		hub.Send(connID, app.Event{Type: "quiz_created", Payload: map[string]string{
			"quizId":  quiz.ID,
			"message": "Quiz created successfully!",
		}})

	case "submit_answer":
		var payload answerPayload
		if !h.decode(connID, inbound.Payload, &payload) {
			return
		}
		if err := h.coordinator.RecordAnswer(ctx, payload.UserID, payload.QuestionIndex, payload.Answer, payload.TimeTaken); err != nil {
			if !errors.Is(err, domain.ErrNoActiveQuiz) {
				h.sendError(connID, err)
			}
			return
		}
		hub.Send(connID, app.Event{Type: "answer_received", Payload: map[string]any{
			"questionIndex": payload.QuestionIndex,
			"answer":        payload.Answer,
		}})
		hub.Broadcast(app.Event{Type: "new_answer", Payload: payload})

	case "finish_quiz":
		var payload finishPayload
		if !h.decode(connID, inbound.Payload, &payload) {
			return
		}
		if err := h.coordinator.FinishSession(ctx, payload.UserID, payload.TotalTime); err != nil {
			h.sendError(connID, err)
			return
		}
		hub.Send(connID, app.Event{Type: "quiz_processing_started", Payload: errorPayload{Message: "Result calculation in progress..."}})

	case "malpractice_alert":
		var payload malpracticePayload
		if !h.decode(connID, inbound.Payload, &payload) {
			return
		}
		log.Printf("malpractice alert: %s - %s", payload.UserID, payload.Type)
		if err := h.coordinator.RecordMalpractice(ctx, domain.MalpracticeLog{
			StudentID: payload.UserID,
			QuizID:    payload.QuizID,
			EventType: payload.Type,
		}); err != nil {
			log.Printf("malpractice log: %v", err)
		}
		hub.BroadcastExcept(connID, app.Event{Type: "malpractice_alert", Payload: payload})

	case "end_quiz":
		if _, err := h.coordinator.EndQuiz(ctx); err != nil {
			if errors.Is(err, domain.ErrNoActiveQuiz) {
				hub.Send(connID, app.Event{Type: "error", Payload: errorPayload{Message: "No active quiz to end"}})
				return
			}
			h.sendError(connID, err)
		}

	case "join_arena":
		var payload joinPayload
		if !h.decode(connID, inbound.Payload, &payload) {
			return
		}
		hub.Identify(connID, payload.UserID, payload.Role)
		hub.JoinRoom(connID, app.ArenaRoom)
		update, err := h.arena.Join(ctx, payload.UserID, payload.Role)
		if err != nil {
			h.sendError(connID, err)
			return
		}
		hub.Send(connID, app.Event{Type: "score_update", Payload: update})
		h.arena.BroadcastScoreboard(ctx)

	case "arena_post_question":
		var question app.ArenaQuestion
		if !h.decode(connID, inbound.Payload, &question) {
			return
		}
		log.Printf("broadcasting arena question with %ds limit", question.TimeLimit)
		h.arena.PostQuestion(question)

	case "arena_submit_answer":
		var payload arenaAnswerPayload
		if !h.decode(connID, inbound.Payload, &payload) {
			return
		}
		result, err := h.arena.SubmitAnswer(ctx, payload.UserID, payload.Answer, payload.CorrectOption)
		if err != nil {
			h.sendError(connID, err)
			return
		}
		hub.Send(connID, app.Event{Type: "arena_answer_result", Payload: result})

	case "arena_reset_scores":
		if err := h.arena.ResetScores(ctx); err != nil {
			h.sendError(connID, err)
		}

	default:
		hub.Send(connID, app.Event{Type: "error", Payload: errorPayload{Message: "unsupported message type"}})
	}
}

// handleJoin identifies the connection and serves the current quiz state:
// students get the active snapshot (or an explicit no_active_quiz signal)
// plus their banked answer count, observers learn about the arrival.
func (h *WSHandler) handleJoin(ctx context.Context, connID string, payload joinPayload) {
	hub := h.coordinator.Hub()
	hub.Identify(connID, payload.UserID, payload.Role)

	if payload.Role != domain.RoleStudent {
		hub.Send(connID, app.Event{Type: "update_active_count", Payload: hub.StudentCount()})
		return
	}

	answersCount := int64(0)
	snapshot, count, err := h.coordinator.StudentJoin(ctx, payload.UserID)
	switch {
	case errors.Is(err, domain.ErrNoActiveQuiz):
		hub.Send(connID, app.Event{Type: "no_active_quiz"})
	case err != nil:
		h.sendError(connID, err)
	default:
		answersCount = count
		hub.Send(connID, app.Event{Type: "quiz", Payload: snapshot})
	}

	hub.Broadcast(app.Event{Type: "student_joined", Payload: map[string]any{
		"userid":       payload.UserID,
		"role":         payload.Role,
		"answersCount": answersCount,
	}})
	hub.Broadcast(app.Event{Type: "update_active_count", Payload: hub.StudentCount()})
}

func (h *WSHandler) decode(connID string, raw json.RawMessage, into any) bool {
	if err := json.Unmarshal(raw, into); err != nil {
		h.coordinator.Hub().Send(connID, app.Event{Type: "error", Payload: errorPayload{Message: "invalid payload"}})
		return false
	}
	return true
}

func (h *WSHandler) sendError(connID string, err error) {
	h.coordinator.Hub().Send(connID, app.Event{Type: "error", Payload: errorPayload{Message: err.Error()}})
}
