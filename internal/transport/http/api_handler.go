package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

// APIHandler serves the read-only REST surface next to the websocket:
// leaderboard, results, and quiz listings.
type APIHandler struct {
	leaderboard *app.LeaderboardService
	listing     *app.QuizListing
	quizzes     app.QuizStore
	results     app.ResultStore
}

func NewAPIHandler(leaderboard *app.LeaderboardService, listing *app.QuizListing, quizzes app.QuizStore, results app.ResultStore) *APIHandler {
	return &APIHandler{leaderboard: leaderboard, listing: listing, quizzes: quizzes, results: results}
}

// Register mounts all routes on the mux.
func (h *APIHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/leaderboard", h.getLeaderboard)
	mux.HandleFunc("GET /api/all-results", h.getAllResults)
	mux.HandleFunc("GET /api/result/{id}", h.getResult)
	mux.HandleFunc("GET /api/analytics/{userid}", h.getAnalytics)
	mux.HandleFunc("GET /api/quizzes", h.getQuizzes)
	mux.HandleFunc("GET /api/quizzes/for-student/{userid}", h.getStudentQuizzes)
}

func (h *APIHandler) getLeaderboard(w http.ResponseWriter, r *http.Request) {
	rows, err := h.leaderboard.Leaderboard(r.Context())
	if err != nil {
		h.fail(w, "Failed to fetch leaderboard", err)
		return
	}
	writeJSON(w, rows)
}

func (h *APIHandler) getAllResults(w http.ResponseWriter, r *http.Request) {
	results, err := h.results.FindAll(r.Context())
	if err != nil {
		h.fail(w, "Failed to fetch results", err)
		return
	}
	writeJSON(w, results)
}

func (h *APIHandler) getResult(w http.ResponseWriter, r *http.Request) {
	result, err := h.results.FindByID(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, domain.ErrResultNotFound) {
			writeError(w, http.StatusNotFound, "Result not found")
			return
		}
		h.fail(w, "Failed to fetch result", err)
		return
	}
	writeJSON(w, result)
}

func (h *APIHandler) getAnalytics(w http.ResponseWriter, r *http.Request) {
	results, err := h.results.FindByStudent(r.Context(), r.PathValue("userid"))
	if err != nil {
		h.fail(w, "Failed to fetch analytics", err)
		return
	}
	writeJSON(w, results)
}

func (h *APIHandler) getQuizzes(w http.ResponseWriter, r *http.Request) {
	quizzes, err := h.quizzes.FindAll(r.Context())
	if err != nil {
		h.fail(w, "Failed to fetch quizzes", err)
		return
	}
	writeJSON(w, quizzes)
}

func (h *APIHandler) getStudentQuizzes(w http.ResponseWriter, r *http.Request) {
	lists, err := h.listing.ForStudent(r.Context(), r.PathValue("userid"))
	if err != nil {
		h.fail(w, "Failed to fetch quizzes", err)
		return
	}
	writeJSON(w, lists)
}

func (h *APIHandler) fail(w http.ResponseWriter, message string, err error) {
	log.Printf("%s: %v", message, err)
	writeError(w, http.StatusInternalServerError, message)
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
