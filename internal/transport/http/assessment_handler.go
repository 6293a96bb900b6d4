package http

import (
	"net/http"
	"time"

	"placement-service/internal/app"
	"placement-service/internal/domain"

	"github.com/gorilla/mux"
)

type AssessmentHandler struct {
	assessments *app.AssessmentService
	rounds      *app.RoundService
}

func NewAssessmentHandler(assessments *app.AssessmentService, rounds *app.RoundService) *AssessmentHandler {
	return &AssessmentHandler{assessments: assessments, rounds: rounds}
}

type createAssessmentRequest struct {
	JobID           string `json:"jobId" validate:"required"`
	Title           string `json:"title" validate:"required"`
	DurationMinutes int    `json:"durationMinutes" validate:"gt=0"`
	PassingScore    int    `json:"passingScore" validate:"min=0,max=100"`
}

type addQuestionsRequest struct {
	Questions []domain.Question `json:"questions" validate:"required,min=1"`
}

type assignRequest struct {
	StudentIDs []string  `json:"studentIds" validate:"required,min=1"`
	Deadline   time.Time `json:"deadline" validate:"required"`
}

type activateResponse struct {
	Assessment  domain.Assessment   `json:"assessment"`
	Assignments []domain.Assignment `json:"assignments"`
}

func (h *AssessmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAssessmentRequest
	if !decode(w, r, &req) {
		return
	}
	created, err := h.assessments.CreateDraft(r.Context(), req.JobID, req.Title, req.DurationMinutes, req.PassingScore)
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// AddQuestions validates question shapes in the service; the request only needs a non-empty batch.
func (h *AssessmentHandler) AddQuestions(w http.ResponseWriter, r *http.Request) {
	var req addQuestionsRequest
	if !decode(w, r, &req) {
		return
	}
	updated, err := h.assessments.AddQuestions(r.Context(), mux.Vars(r)["id"], req.Questions)
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *AssessmentHandler) Activate(w http.ResponseWriter, r *http.Request) {
	activated, assignments, err := h.assessments.Activate(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, activateResponse{Assessment: activated, Assignments: assignments})
}

func (h *AssessmentHandler) Assign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if !decode(w, r, &req) {
		return
	}
	assignments, err := h.assessments.AssignDeadline(r.Context(), mux.Vars(r)["id"], req.StudentIDs, req.Deadline)
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, assignments)
}

func (h *AssessmentHandler) Assignments(w http.ResponseWriter, r *http.Request) {
	assignments, err := h.assessments.Assignments(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, assignments)
}

func (h *AssessmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	assessment, err := h.assessments.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, assessment)
}

func (h *AssessmentHandler) ListByJob(w http.ResponseWriter, r *http.Request) {
	list, err := h.assessments.ListByJob(r.Context(), mux.Vars(r)["jobId"])
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// Questions serves the candidate view to students and the full set with keys to staff.
func (h *AssessmentHandler) Questions(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	questions, err := h.assessments.Questions(r.Context(), mux.Vars(r)["id"], actor.Role == domain.RoleStudent)
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, questions)
}

func (h *AssessmentHandler) Rounds(w http.ResponseWriter, r *http.Request) {
	summary, err := h.rounds.Summary(r.Context(), mux.Vars(r)["jobId"])
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
