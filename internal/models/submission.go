package models

import "time"

// Submission is a student's persisted work for one assignment.
// At most one exists per (AssignmentID, StudentID).
type Submission struct {
	ID               int64     `json:"id"`
	AssignmentID     int64     `json:"assignment_id"`
	StudentID        int64     `json:"student_id"`
	StudentName      string    `json:"student_name,omitempty"`
	Content          *string   `json:"content,omitempty"`
	LinkURL          *string   `json:"link_url,omitempty"`
	FileKey          *string   `json:"file_path,omitempty"`
	FileName         *string   `json:"file_name,omitempty"`
	TimeSpentMinutes float64   `json:"time_spent_minutes"`
	SubmittedAt      time.Time `json:"submitted_at"`
	Grade            *float64  `json:"grade,omitempty"`
	Feedback         *string   `json:"feedback,omitempty"`
	IsGraded         bool      `json:"is_graded"`
}

// Normalize keeps IsGraded in step with Grade.
func (s *Submission) Normalize() {
	s.IsGraded = s.Grade != nil
}

func (s Submission) HasFile() bool {
	return s.FileKey != nil && *s.FileKey != ""
}

type GradeUpdate struct {
	Grade    float64 `json:"grade"`
	Feedback *string `json:"feedback,omitempty"`
}

// SubmissionEvent is published on every state change of a submission.
type SubmissionEvent struct {
	Type         string    `json:"type"`
	SubmissionID int64     `json:"submission_id"`
	AssignmentID int64     `json:"assignment_id"`
	StudentID    int64     `json:"student_id"`
	Grade        *float64  `json:"grade,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

const (
	EventSubmissionCreated = "submission.created"
	EventSubmissionUpdated = "submission.updated"
	EventSubmissionDeleted = "submission.deleted"
	EventSubmissionGraded  = "submission.graded"
)

// SubmissionDraft is unsaved student work. File is nil when nothing is attached.
type SubmissionDraft struct {
	AssignmentID     int64
	Content          string
	LinkURL          string
	TimeSpentMinutes float64
	FileName         string
	File             []byte
}

func (d SubmissionDraft) FileSize() int64 { return int64(len(d.File)) }

func (d SubmissionDraft) Empty() bool {
	return d.Content == "" && d.LinkURL == "" && len(d.File) == 0
}
