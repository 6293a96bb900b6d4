package http

import (
	"net/http"
	"time"

	"placement-service/internal/app"
	"placement-service/internal/domain"

	"github.com/gorilla/mux"
)

type AttemptHandler struct {
	attempts *app.AttemptService
}

func NewAttemptHandler(attempts *app.AttemptService) *AttemptHandler {
	return &AttemptHandler{attempts: attempts}
}

type draftRequest struct {
	QuestionID string `json:"questionId" validate:"required"`
	Language   string `json:"language"`
	Answer     string `json:"answer"`
}

type runRequest struct {
	QuestionID string `json:"questionId" validate:"required"`
	Language   string `json:"language"`
	Code       string `json:"code"`
}

type remainingResponse struct {
	AttemptID        string               `json:"attemptId"`
	Status           domain.AttemptStatus `json:"status"`
	RemainingSeconds int64                `json:"remainingSeconds"`
}

// Start creates the caller's attempt or resumes it with the time already spent deducted.
func (h *AttemptHandler) Start(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	view, err := h.attempts.Start(r.Context(), actor.ID, mux.Vars(r)["id"])
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *AttemptHandler) SaveDraft(w http.ResponseWriter, r *http.Request) {
	var req draftRequest
	if !decode(w, r, &req) {
		return
	}
	actor, _ := ActorFromContext(r.Context())
	if err := h.attempts.SaveDraft(r.Context(), mux.Vars(r)["id"], actor.ID, req.QuestionID, req.Language, req.Answer); err != nil {
		respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AttemptHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if !decode(w, r, &req) {
		return
	}
	actor, _ := ActorFromContext(r.Context())
	report, err := h.attempts.RunTests(r.Context(), mux.Vars(r)["id"], actor.ID, req.QuestionID, req.Code, req.Language)
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Submit finalizes the attempt; repeating it returns the stored result.
func (h *AttemptHandler) Submit(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := h.owned(w, r); !ok {
		return
	}
	result, err := h.attempts.Submit(r.Context(), mux.Vars(r)["id"], domain.TriggerManual)
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *AttemptHandler) Result(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := h.owned(w, r); !ok {
		return
	}
	result, err := h.attempts.Result(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *AttemptHandler) Remaining(w http.ResponseWriter, r *http.Request) {
	attempt, left, ok := h.owned(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, remainingResponse{
		AttemptID:        attempt.ID,
		Status:           attempt.Status,
		RemainingSeconds: int64(left / time.Second),
	})
}

// owned loads the attempt with its remaining time and hides it from students other than its owner.
// Staff may read any attempt.
func (h *AttemptHandler) owned(w http.ResponseWriter, r *http.Request) (domain.ExamAttempt, time.Duration, bool) {
	attempt, left, err := h.attempts.Remaining(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondErr(w, err)
		return domain.ExamAttempt{}, 0, false
	}
	actor, _ := ActorFromContext(r.Context())
	if actor.Role == domain.RoleStudent && attempt.StudentID != actor.ID {
		respondErr(w, domain.ErrAttemptNotFound)
		return domain.ExamAttempt{}, 0, false
	}
	return attempt, left, true
}
