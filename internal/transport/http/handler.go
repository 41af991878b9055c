// Package http exposes the practice backend over REST plus a per-room
// websocket push channel.
package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"quizroom/internal/app"
	"quizroom/internal/domain"
)

// Handler wires the room use cases into HTTP routes.
type Handler struct {
	service *app.RoomService
	hub     *Hub
	log     zerolog.Logger
}

func NewHandler(service *app.RoomService, log zerolog.Logger) *Handler {
	hub := NewHub(log)
	service.SetBroadcaster(hub)
	return &Handler{service: service, hub: hub, log: log}
}

// Routes returns the practice backend's mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("POST /rooms", h.createRoom)
	mux.HandleFunc("GET /rooms/{id}", h.getRoom)
	mux.HandleFunc("POST /rooms/{id}/join", h.joinRoom)
	mux.HandleFunc("POST /rooms/{id}/start", h.startRoom)
	mux.HandleFunc("POST /rooms/{id}/answers", h.submitAnswer)
	mux.HandleFunc("GET /rooms/{id}/leaderboard", h.leaderboard)
	mux.HandleFunc("GET /ws/{id}", func(w http.ResponseWriter, r *http.Request) {
		h.hub.ServeWS(w, r, r.PathValue("id"))
	})
	return mux
}

func (h *Handler) createRoom(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TimePerQuestion   int `json:"timePerQuestion"`
		NumRounds         int `json:"numRounds"`
		QuestionsPerRound int `json:"questionsPerRound"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req) // empty body means defaults
	}
	room := h.service.CreateRoom(r.Context(), app.CreateRoomRequest{
		TimePerQuestion:   req.TimePerQuestion,
		NumRounds:         req.NumRounds,
		QuestionsPerRound: req.QuestionsPerRound,
	})
	writeJSON(w, http.StatusCreated, room)
}

func (h *Handler) getRoom(w http.ResponseWriter, r *http.Request) {
	room, err := h.service.GetRoom(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func (h *Handler) joinRoom(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		http.Error(w, "missing player name", http.StatusBadRequest)
		return
	}
	player, token, err := h.service.Join(r.Context(), r.PathValue("id"), req.Name)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"player": player, "token": token})
}

func (h *Handler) startRoom(w http.ResponseWriter, r *http.Request) {
	room, err := h.service.Start(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func (h *Handler) submitAnswer(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		http.Error(w, "missing player token", http.StatusUnauthorized)
		return
	}
	var req struct {
		QuestionID  string `json:"questionId"`
		AnswerIndex int    `json:"answerIndex"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.QuestionID == "" {
		http.Error(w, "invalid answer payload", http.StatusBadRequest)
		return
	}
	result, err := h.service.SubmitAnswer(r.Context(), r.PathValue("id"), token, req.QuestionID, req.AnswerIndex)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) leaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.Leaderboard(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrRoomNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrInvalidToken):
		http.Error(w, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, domain.ErrQuestionNotFound),
		errors.Is(err, domain.ErrAlreadyAnswered),
		errors.Is(err, domain.ErrRoomNotStarted):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		h.log.Error().Err(err).Msg("request failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
