package service

import (
	"context"
	"errors"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/Spok95/classtrack-portal/internal/apperr"
	"github.com/Spok95/classtrack-portal/internal/db"
	"github.com/Spok95/classtrack-portal/internal/filestore"
	"github.com/Spok95/classtrack-portal/internal/models"
	"github.com/Spok95/classtrack-portal/internal/validate"
)

// SubmissionForm is a create or resubmit request. File is nil when nothing
// is attached.
type SubmissionForm struct {
	AssignmentID     int64   `json:"assignment_id" form:"assignment_id" validate:"required,gt=0"`
	Content          string  `json:"content" form:"content" validate:"max=100000"`
	LinkURL          string  `json:"link_url" form:"link_url" validate:"omitempty,url,max=2048"`
	TimeSpentMinutes float64 `json:"time_spent_minutes" form:"time_spent_minutes" validate:"gte=0,lte=10000"`

	FileName string    `json:"-"`
	FileSize int64     `json:"-"`
	File     io.Reader `json:"-"`
}

func (f SubmissionForm) hasFile() bool { return f.File != nil && f.FileSize > 0 }

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func requireStudent(caller models.Identity) error {
	if caller.Role != models.Student {
		return apperr.AuthForbidden("Not authorized to submit work")
	}
	return nil
}

// MySubmission returns the caller's own submission for an assignment.
func (s *Service) MySubmission(ctx context.Context, caller models.Identity, assignmentID int64) (*models.Submission, error) {
	if err := requireStudent(caller); err != nil {
		return nil, err
	}
	sub, err := s.repo.SubmissionForStudent(ctx, assignmentID, caller.ID)
	if err != nil {
		return nil, notFound(err, "Submission not found")
	}
	return sub, nil
}

// CreateSubmission stores the first submission of the caller for an
// assignment. A second one for the same assignment is a conflict.
func (s *Service) CreateSubmission(ctx context.Context, caller models.Identity, f SubmissionForm) (*models.Submission, error) {
	if err := requireStudent(caller); err != nil {
		return nil, err
	}
	if err := validate.Struct(f); err != nil {
		return nil, err
	}
	if err := validate.Submission(f.Content+f.LinkURL, f.FileName, f.FileSize); err != nil {
		return nil, err
	}
	a, err := s.repo.Assignment(ctx, f.AssignmentID)
	if err != nil {
		return nil, notFound(err, "Assignment not found")
	}
	if err := s.canView(ctx, caller, a); err != nil {
		return nil, err
	}

	sub := &models.Submission{
		AssignmentID:     a.ID,
		StudentID:        caller.ID,
		Content:          optional(f.Content),
		LinkURL:          optional(f.LinkURL),
		TimeSpentMinutes: f.TimeSpentMinutes,
	}
	if f.hasFile() {
		if err := s.storeFile(ctx, sub, f); err != nil {
			return nil, err
		}
	}
	if err := s.repo.CreateSubmission(ctx, sub); err != nil {
		if sub.FileKey != nil {
			s.dropFile(ctx, *sub.FileKey)
		}
		if errors.Is(err, db.ErrDuplicate) {
			return nil, apperr.Conflict("")
		}
		return nil, err
	}
	s.log.Info("submission created", zap.Int64("submission_id", sub.ID), zap.Int64("assignment_id", a.ID), zap.Int64("student_id", caller.ID))
	s.publish(ctx, models.EventSubmissionCreated, *sub)
	return sub, nil
}

// UpdateSubmission resubmits in place. Without a new file the stored one is
// kept; any previous grade is cleared.
func (s *Service) UpdateSubmission(ctx context.Context, caller models.Identity, id int64, f SubmissionForm) (*models.Submission, error) {
	if err := requireStudent(caller); err != nil {
		return nil, err
	}
	cur, err := s.repo.Submission(ctx, id)
	if err != nil {
		return nil, notFound(err, "Submission not found")
	}
	if cur.StudentID != caller.ID {
		return nil, apperr.AuthForbidden("Not authorized to update this submission")
	}
	if f.AssignmentID == 0 {
		f.AssignmentID = cur.AssignmentID
	}
	if f.AssignmentID != cur.AssignmentID {
		return nil, apperr.Validation("invalid request", apperr.FieldError{Field: "assignment_id", Error: "does not match the submission"})
	}
	if err := validate.Struct(f); err != nil {
		return nil, err
	}
	if f.hasFile() || !cur.HasFile() {
		if err := validate.Submission(f.Content+f.LinkURL, f.FileName, f.FileSize); err != nil {
			return nil, err
		}
	}

	next := &models.Submission{
		ID:               cur.ID,
		AssignmentID:     cur.AssignmentID,
		StudentID:        cur.StudentID,
		Content:          optional(f.Content),
		LinkURL:          optional(f.LinkURL),
		TimeSpentMinutes: f.TimeSpentMinutes,
	}
	if f.hasFile() {
		if err := s.storeFile(ctx, next, f); err != nil {
			return nil, err
		}
	}
	replaced, err := s.repo.ResubmitSubmission(ctx, next)
	if err != nil {
		if next.FileKey != nil && (cur.FileKey == nil || *next.FileKey != *cur.FileKey) {
			s.dropFile(ctx, *next.FileKey)
		}
		return nil, notFound(err, "Submission not found")
	}
	if replaced != nil {
		s.dropFile(ctx, *replaced)
	}
	s.log.Info("submission updated", zap.Int64("submission_id", id), zap.Bool("was_graded", cur.IsGraded))
	s.publish(ctx, models.EventSubmissionUpdated, *next)
	return next, nil
}

// DeleteSubmission unsubmits. Graded submissions may be withdrawn too.
func (s *Service) DeleteSubmission(ctx context.Context, caller models.Identity, id int64) error {
	cur, err := s.repo.Submission(ctx, id)
	if err != nil {
		return notFound(err, "Submission not found")
	}
	if caller.Role != models.Admin && cur.StudentID != caller.ID {
		return apperr.AuthForbidden("Not authorized to delete this submission")
	}
	if err := s.repo.DeleteSubmission(ctx, id); err != nil {
		return notFound(err, "Submission not found")
	}
	if cur.HasFile() {
		s.dropFile(ctx, *cur.FileKey)
	}
	s.log.Info("submission deleted", zap.Int64("submission_id", id), zap.Bool("was_graded", cur.IsGraded))
	s.publish(ctx, models.EventSubmissionDeleted, *cur)
	return nil
}

func (s *Service) storeFile(ctx context.Context, sub *models.Submission, f SubmissionForm) error {
	key := filestore.NewKey(sub.AssignmentID, f.FileName)
	if err := s.files.Put(ctx, key, io.LimitReader(f.File, validate.MaxFileSize+1), f.FileSize, filestore.ContentType(f.FileName)); err != nil {
		return apperr.Transient(err)
	}
	name := f.FileName
	sub.FileKey, sub.FileName = &key, &name
	return nil
}

// Download is the attached file of a submission, readable by its student,
// the assignment's teacher and admins.
type Download struct {
	Name        string
	ContentType string
	Body        io.ReadCloser
}

func (s *Service) Download(ctx context.Context, caller models.Identity, id int64) (*Download, error) {
	sub, err := s.repo.Submission(ctx, id)
	if err != nil {
		return nil, notFound(err, "Submission not found")
	}
	switch caller.Role {
	case models.Student:
		if sub.StudentID != caller.ID {
			return nil, apperr.AuthForbidden("Not authorized to download this file")
		}
	case models.Teacher:
		a, err := s.repo.Assignment(ctx, sub.AssignmentID)
		if err != nil {
			return nil, notFound(err, "Assignment not found")
		}
		if a.CreatorID != caller.ID {
			return nil, apperr.AuthForbidden("Not authorized to download this file")
		}
	}
	if !sub.HasFile() {
		return nil, apperr.NotFound("No file attached to this submission")
	}
	body, err := s.files.Get(ctx, *sub.FileKey)
	if errors.Is(err, filestore.ErrNotFound) {
		return nil, apperr.NotFound("File not found on server")
	}
	if err != nil {
		return nil, apperr.Transient(err)
	}
	name := "submission"
	if sub.FileName != nil {
		name = *sub.FileName
	}
	return &Download{Name: name, ContentType: filestore.ContentType(name), Body: body}, nil
}
