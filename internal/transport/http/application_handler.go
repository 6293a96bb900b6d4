package http

import (
	"net/http"

	"placement-service/internal/app"
	"placement-service/internal/domain"

	"github.com/gorilla/mux"
)

type ApplicationHandler struct {
	pipeline *app.PipelineService
}

func NewApplicationHandler(pipeline *app.PipelineService) *ApplicationHandler {
	return &ApplicationHandler{pipeline: pipeline}
}

type applyRequest struct {
	JobID    string `json:"jobId" validate:"required"`
	MentorID string `json:"mentorId"`
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"required"`
}

type outcomeRequest struct {
	Outcome string `json:"outcome" validate:"required,oneof=selected rejected"`
	Notes   string `json:"notes"`
}

// Apply creates the caller's application for a job.
func (h *ApplicationHandler) Apply(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	var req applyRequest
	if !decode(w, r, &req) {
		return
	}
	created, err := h.pipeline.Apply(r.Context(), actor.ID, req.JobID, req.MentorID)
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *ApplicationHandler) Get(w http.ResponseWriter, r *http.Request) {
	application, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, application)
}

func (h *ApplicationHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	items, err := h.pipeline.ListByStudent(r.Context(), actor.ID)
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *ApplicationHandler) ListByJob(w http.ResponseWriter, r *http.Request) {
	items, err := h.pipeline.ListByJob(r.Context(), mux.Vars(r)["jobId"])
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *ApplicationHandler) Approve(w http.ResponseWriter, r *http.Request) {
	application, ok := h.loadForMentor(w, r)
	if !ok {
		return
	}
	actor, _ := ActorFromContext(r.Context())
	updated, err := h.pipeline.Approve(r.Context(), application.ID, actor.ID)
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *ApplicationHandler) Reject(w http.ResponseWriter, r *http.Request) {
	application, ok := h.loadForMentor(w, r)
	if !ok {
		return
	}
	var req rejectRequest
	if !decode(w, r, &req) {
		return
	}
	actor, _ := ActorFromContext(r.Context())
	updated, err := h.pipeline.Reject(r.Context(), application.ID, actor.ID, req.Reason)
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *ApplicationHandler) ScheduleInterview(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	updated, err := h.pipeline.ScheduleInterview(r.Context(), mux.Vars(r)["id"], actor.ID)
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *ApplicationHandler) RecordOutcome(w http.ResponseWriter, r *http.Request) {
	var req outcomeRequest
	if !decode(w, r, &req) {
		return
	}
	actor, _ := ActorFromContext(r.Context())
	updated, err := h.pipeline.RecordOutcome(r.Context(), mux.Vars(r)["id"], actor.ID, domain.ApplicationStatus(req.Outcome), req.Notes)
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// load fetches the application and hides it from students who do not own it.
func (h *ApplicationHandler) load(w http.ResponseWriter, r *http.Request) (domain.Application, bool) {
	application, err := h.pipeline.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondErr(w, err)
		return domain.Application{}, false
	}
	actor, _ := ActorFromContext(r.Context())
	if actor.Role == domain.RoleStudent && application.StudentID != actor.ID {
		respondErr(w, domain.ErrApplicationNotFound)
		return domain.Application{}, false
	}
	return application, true
}

// loadForMentor restricts mentor decisions to the assigned mentor; the placement office may act on any.
func (h *ApplicationHandler) loadForMentor(w http.ResponseWriter, r *http.Request) (domain.Application, bool) {
	application, ok := h.load(w, r)
	if !ok {
		return domain.Application{}, false
	}
	actor, _ := ActorFromContext(r.Context())
	if actor.Role == domain.RoleMentor && application.MentorID != "" && application.MentorID != actor.ID {
		writeError(w, http.StatusForbidden, "only the assigned mentor may decide this application")
		return domain.Application{}, false
	}
	return application, true
}
