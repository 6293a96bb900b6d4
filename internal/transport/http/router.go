package http

import (
	"net/http"

	"placement-service/internal/domain"

	"github.com/gorilla/mux"
)

// Handlers groups the route handlers mounted by NewRouter.
type Handlers struct {
	Applications *ApplicationHandler
	Assessments  *AssessmentHandler
	Attempts     *AttemptHandler
	WS           *WSHandler
}

// NewRouter mounts the versioned API behind JWT authentication; /healthz stays open.
func NewRouter(h Handlers, jwtSecret string) *mux.Router {
	r := mux.NewRouter()
	r.Use(RecoveryMiddleware, LoggingMiddleware)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	api := r.PathPrefix("/v1").Subrouter()
	api.Use(JWTAuthMiddleware(jwtSecret))

	student := []domain.Role{domain.RoleStudent}
	mentor := []domain.Role{domain.RoleMentor, domain.RolePlacementOffice}
	recruiter := []domain.Role{domain.RoleRecruiter, domain.RolePlacementOffice}
	staff := []domain.Role{domain.RoleMentor, domain.RoleRecruiter, domain.RolePlacementOffice}

	api.Handle("/applications", allow(h.Applications.Apply, student...)).Methods(http.MethodPost)
	api.Handle("/me/applications", allow(h.Applications.ListMine, student...)).Methods(http.MethodGet)
	api.HandleFunc("/applications/{id}", h.Applications.Get).Methods(http.MethodGet)
	api.Handle("/jobs/{jobId}/applications", allow(h.Applications.ListByJob, staff...)).Methods(http.MethodGet)
	api.Handle("/applications/{id}/approve", allow(h.Applications.Approve, mentor...)).Methods(http.MethodPost)
	api.Handle("/applications/{id}/reject", allow(h.Applications.Reject, mentor...)).Methods(http.MethodPost)
	api.Handle("/applications/{id}/interview", allow(h.Applications.ScheduleInterview, recruiter...)).Methods(http.MethodPost)
	api.Handle("/applications/{id}/outcome", allow(h.Applications.RecordOutcome, recruiter...)).Methods(http.MethodPost)

	api.Handle("/assessments", allow(h.Assessments.Create, recruiter...)).Methods(http.MethodPost)
	api.Handle("/assessments/{id}/questions", allow(h.Assessments.AddQuestions, recruiter...)).Methods(http.MethodPost)
	api.Handle("/assessments/{id}/activate", allow(h.Assessments.Activate, recruiter...)).Methods(http.MethodPost)
	api.Handle("/assessments/{id}/assignments", allow(h.Assessments.Assign, recruiter...)).Methods(http.MethodPut)
	api.Handle("/assessments/{id}/assignments", allow(h.Assessments.Assignments, staff...)).Methods(http.MethodGet)
	api.HandleFunc("/assessments/{id}", h.Assessments.Get).Methods(http.MethodGet)
	api.HandleFunc("/assessments/{id}/questions", h.Assessments.Questions).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{jobId}/assessments", h.Assessments.ListByJob).Methods(http.MethodGet)
	api.Handle("/jobs/{jobId}/rounds", allow(h.Assessments.Rounds, staff...)).Methods(http.MethodGet)

	api.Handle("/assessments/{id}/attempts", allow(h.Attempts.Start, student...)).Methods(http.MethodPost)
	api.Handle("/attempts/{id}/drafts", allow(h.Attempts.SaveDraft, student...)).Methods(http.MethodPut)
	api.Handle("/attempts/{id}/run", allow(h.Attempts.Run, student...)).Methods(http.MethodPost)
	api.Handle("/attempts/{id}/submit", allow(h.Attempts.Submit, student...)).Methods(http.MethodPost)
	api.HandleFunc("/attempts/{id}", h.Attempts.Result).Methods(http.MethodGet)
	api.HandleFunc("/attempts/{id}/remaining", h.Attempts.Remaining).Methods(http.MethodGet)
	if h.WS != nil {
		api.Handle("/ws/attempts/{id}", allow(h.WS.ServeWS, student...)).Methods(http.MethodGet)
	}
	return r
}

func allow(h http.HandlerFunc, roles ...domain.Role) http.Handler {
	return requireRole(roles...)(h)
}
