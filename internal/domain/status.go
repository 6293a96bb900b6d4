package domain

// ApplicationStatus is the pipeline stage of one candidacy.
type ApplicationStatus string

const (
	StatusPending         ApplicationStatus = "pending"
	StatusFacultyApproved ApplicationStatus = "faculty_approved"
	StatusFacultyRejected ApplicationStatus = "faculty_rejected"
	StatusShortlisted     ApplicationStatus = "shortlisted"
	StatusInterview       ApplicationStatus = "interview"
	StatusSelected        ApplicationStatus = "selected"
	StatusRejected        ApplicationStatus = "rejected"
)

// applicationTransitions is the only place legal pipeline edges are declared.
var applicationTransitions = map[ApplicationStatus][]ApplicationStatus{
	StatusPending:         {StatusFacultyApproved, StatusFacultyRejected},
	StatusFacultyApproved: {StatusShortlisted, StatusFacultyRejected},
	StatusShortlisted:     {StatusInterview},
	StatusInterview:       {StatusSelected, StatusRejected},
	StatusFacultyRejected: nil,
	StatusSelected:        nil,
	StatusRejected:        nil,
}

// Valid reports whether s is a known application status.
func (s ApplicationStatus) Valid() bool {
	_, ok := applicationTransitions[s]
	return ok
}

// CanTransition reports whether the pipeline allows moving from s to next.
func (s ApplicationStatus) CanTransition(next ApplicationStatus) bool {
	for _, to := range applicationTransitions[s] {
		if to == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s ApplicationStatus) Terminal() bool {
	edges, ok := applicationTransitions[s]
	return ok && len(edges) == 0
}

// PastMentorApproval reports whether the application cleared the mentor gate and is still in the running
// or finished the pipeline afterwards.
func (s ApplicationStatus) PastMentorApproval() bool {
	switch s {
	case StatusFacultyApproved, StatusShortlisted, StatusInterview, StatusSelected, StatusRejected:
		return true
	default:
		return false
	}
}

// AssessmentStatus is the authoring lifecycle of an assessment.
type AssessmentStatus string

const (
	AssessmentDraft     AssessmentStatus = "draft"
	AssessmentActive    AssessmentStatus = "active"
	AssessmentCompleted AssessmentStatus = "completed"
)

// AttemptStatus is the lifecycle of one exam attempt.
type AttemptStatus string

const (
	AttemptNotStarted AttemptStatus = "not_started"
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptPassed     AttemptStatus = "passed"
	AttemptFailed     AttemptStatus = "failed"
)

// Terminal reports whether the attempt is finished and immutable.
func (s AttemptStatus) Terminal() bool {
	return s == AttemptPassed || s == AttemptFailed
}

// QuestionKind distinguishes answer shapes.
type QuestionKind string

const (
	QuestionMCQ    QuestionKind = "mcq"
	QuestionCoding QuestionKind = "coding"
)

// SubmitTrigger records why an attempt was finalized.
type SubmitTrigger string

const (
	TriggerManual  SubmitTrigger = "manual"
	TriggerTimeout SubmitTrigger = "timeout"
)

// Role is the actor's role in the portal.
type Role string

const (
	RoleStudent         Role = "student"
	RoleMentor          Role = "mentor"
	RoleRecruiter       Role = "recruiter"
	RolePlacementOffice Role = "placement_office"
)

// Valid reports whether the role is one the portal knows.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleMentor, RoleRecruiter, RolePlacementOffice:
		return true
	}
	return false
}
