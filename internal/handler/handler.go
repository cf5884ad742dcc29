// Package handler adapts the engine's boundary operations to HTTP 1:1.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/avolkova/mathquiz/internal/engine"
	"github.com/avolkova/mathquiz/internal/identity"
	"github.com/avolkova/mathquiz/internal/model"
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	engine   *engine.Engine
	identity identity.Provider
}

// New creates a new Handler.
func New(e *engine.Engine, p identity.Provider) *Handler {
	return &Handler{engine: e, identity: p}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Use(h.requireIdentity)
	r.Post("/test/start", h.handleStartTest)
	r.Get("/test/{sessionID}", h.handleGetTest)
	r.Post("/test/{sessionID}/submit", h.handleSubmitTest)
	r.Get("/history", h.handleHistory)
}

// requireIdentity resolves the caller's user id and injects it into the
// request context.
func (h *Handler) requireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ownerID, err := h.identity.UserID(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "missing user identity")
			return
		}
		next.ServeHTTP(w, r.WithContext(model.ContextWithOwner(r.Context(), ownerID)))
	})
}

// startRequest optionally overrides the configured generation defaults.
type startRequest struct {
	Topic      string `json:"topic"`
	Difficulty string `json:"difficulty"`
	Count      int    `json:"count"`
}

// questionView is a question as shown to the student: the correct
// answer and explanation stay server-side until grading.
type questionView struct {
	ID      string   `json:"id"`
	Text    string   `json:"question"`
	Options []string `json:"options"`
}

type sessionView struct {
	SessionID string         `json:"session_id"`
	CreatedAt time.Time      `json:"created_at"`
	Status    string         `json:"status"`
	Questions []questionView `json:"questions"`
}

func viewOf(sess *model.TestSession) sessionView {
	v := sessionView{
		SessionID: sess.SessionID,
		CreatedAt: sess.CreatedAt,
		Status:    string(sess.Status),
		Questions: make([]questionView, 0, len(sess.Questions)),
	}
	for _, q := range sess.Questions {
		v.Questions = append(v.Questions, questionView{ID: q.ID, Text: q.Text, Options: q.Options})
	}
	return v
}

func (h *Handler) handleStartTest(w http.ResponseWriter, r *http.Request) {
	ownerID := model.OwnerFromContext(r.Context())

	var req startRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	sess, err := h.engine.StartTest(r.Context(), ownerID, model.Scope{
		Topic:      req.Topic,
		Difficulty: model.Difficulty(req.Difficulty),
		Count:      req.Count,
	})
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewOf(sess))
}

func (h *Handler) handleGetTest(w http.ResponseWriter, r *http.Request) {
	ownerID := model.OwnerFromContext(r.Context())
	sessionID := chi.URLParam(r, "sessionID")

	sess, err := h.engine.GetSession(r.Context(), sessionID, ownerID)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(sess))
}

// submitRequest is the canonical submission encoding: a mapping from the
// session's question ids to the chosen option strings.
type submitRequest struct {
	Answers map[string]string `json:"answers"`
}

func (h *Handler) handleSubmitTest(w http.ResponseWriter, r *http.Request) {
	ownerID := model.OwnerFromContext(r.Context())
	sessionID := chi.URLParam(r, "sessionID")

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rec, err := h.engine.SubmitTest(r.Context(), sessionID, ownerID, req.Answers)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	ownerID := model.OwnerFromContext(r.Context())

	records, err := h.engine.GetHistory(r.Context(), ownerID)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	if records == nil {
		records = []model.TestRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *Handler) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrUnknownSession):
		writeError(w, http.StatusNotFound, "unknown session")
	case errors.Is(err, engine.ErrAlreadyGraded):
		writeError(w, http.StatusConflict, "session already graded")
	case errors.Is(err, engine.ErrUnknownQuestion):
		writeError(w, http.StatusBadRequest, "submission references an unknown question")
	case engine.Unavailable(err):
		slog.Error("generation endpoint unavailable", "error", err)
		writeError(w, http.StatusServiceUnavailable, "question generation is temporarily unavailable, try again")
	case errors.Is(err, engine.ErrGenerationFailed):
		slog.Error("generation failed", "error", err)
		writeError(w, http.StatusBadGateway, "could not generate a valid question set")
	case errors.Is(err, engine.ErrPersistenceFailure):
		slog.Error("persistence failure", "error", err)
		writeError(w, http.StatusInternalServerError, "result may not have been saved")
	default:
		slog.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
