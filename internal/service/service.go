// Package service holds the portal's server-side rules: who may see and
// change which submission, and what happens when they do.
package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/Spok95/classtrack-portal/internal/apperr"
	"github.com/Spok95/classtrack-portal/internal/auth"
	"github.com/Spok95/classtrack-portal/internal/db"
	"github.com/Spok95/classtrack-portal/internal/events"
	"github.com/Spok95/classtrack-portal/internal/filestore"
	"github.com/Spok95/classtrack-portal/internal/lifecycle"
	"github.com/Spok95/classtrack-portal/internal/models"
	"github.com/Spok95/classtrack-portal/internal/notify"
	"github.com/Spok95/classtrack-portal/internal/observability"
)

// Repo is the persistence the service needs; db.Repo implements it.
type Repo interface {
	UserByID(ctx context.Context, id int64) (*models.User, error)
	UserByUsername(ctx context.Context, username string) (*models.User, error)

	Assignment(ctx context.Context, id int64) (*models.Assignment, error)
	AssignmentsByCreator(ctx context.Context, creatorID int64) ([]models.Assignment, error)
	AssignmentsForStudent(ctx context.Context, studentID int64) ([]models.Assignment, error)
	AllAssignments(ctx context.Context) ([]models.Assignment, error)
	Class(ctx context.Context, id int64) (*models.Class, error)
	IsEnrolled(ctx context.Context, classID, studentID int64) (bool, error)

	CreateSubmission(ctx context.Context, s *models.Submission) error
	Submission(ctx context.Context, id int64) (*models.Submission, error)
	SubmissionForStudent(ctx context.Context, assignmentID, studentID int64) (*models.Submission, error)
	ResubmitSubmission(ctx context.Context, s *models.Submission) (replacedKey *string, err error)
	DeleteSubmission(ctx context.Context, id int64) error
	GradeSubmission(ctx context.Context, id int64, grade float64, feedback *string, graderID int64) (*models.Submission, error)
	SubmissionsByAssignment(ctx context.Context, assignmentID int64) ([]models.Submission, error)
	CountUngraded(ctx context.Context) (int, error)

	CreateUser(ctx context.Context, u models.User) (int64, error)
	SetTelegramChatID(ctx context.Context, userID int64, chatID *int64) error
	CreateClass(ctx context.Context, c models.Class) (int64, error)
	Enroll(ctx context.Context, classID, studentID int64) error
	CreateAssignment(ctx context.Context, a models.Assignment) (*models.Assignment, error)
}

var _ Repo = (*db.Repo)(nil)

type Deps struct {
	Repo     Repo
	Files    filestore.Store
	Events   events.Publisher
	Notifier notify.Notifier
	Tokens   *auth.Tokens
	Policy   lifecycle.EngagementPolicy
	Log      *zap.Logger
	// AdminIDs are accounts treated as admins whatever their stored role.
	AdminIDs []int64
}

type Service struct {
	repo     Repo
	files    filestore.Store
	events   events.Publisher
	notifier notify.Notifier
	tokens   *auth.Tokens
	policy   lifecycle.EngagementPolicy
	log      *zap.Logger
	admins   map[int64]struct{}
	now      func() time.Time
}

func New(d Deps) *Service {
	s := &Service{
		repo:     d.Repo,
		files:    d.Files,
		events:   d.Events,
		notifier: d.Notifier,
		tokens:   d.Tokens,
		policy:   d.Policy,
		log:      d.Log,
		admins:   make(map[int64]struct{}, len(d.AdminIDs)),
		now:      time.Now,
	}
	for _, id := range d.AdminIDs {
		s.admins[id] = struct{}{}
	}
	if s.files == nil {
		s.files = filestore.NewMemory()
	}
	if s.events == nil {
		s.events = events.Noop{}
	}
	if s.notifier == nil {
		s.notifier = notify.Noop{}
	}
	if s.policy == nil {
		s.policy = lifecycle.DefaultPolicy
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	return s
}

// CountUngraded feeds the backlog gauge job.
func (s *Service) CountUngraded(ctx context.Context) (int, error) {
	return s.repo.CountUngraded(ctx)
}

// identity applies the configured admin override.
func (s *Service) identity(u *models.User) models.Identity {
	id := u.Identity
	if _, ok := s.admins[id.ID]; ok {
		id.Role = models.Admin
	}
	return id
}

// notFound turns a missing row into a 404 with msg; other errors pass through.
func notFound(err error, msg string) error {
	if errors.Is(err, db.ErrNotFound) {
		return apperr.NotFound(msg)
	}
	return err
}

func (s *Service) publish(ctx context.Context, typ string, sub models.Submission) {
	ev := models.SubmissionEvent{
		Type:         typ,
		SubmissionID: sub.ID,
		AssignmentID: sub.AssignmentID,
		StudentID:    sub.StudentID,
		Grade:        sub.Grade,
		OccurredAt:   s.now().UTC(),
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.Warn("publish event", zap.String("type", typ), zap.Int64("submission_id", sub.ID), zap.Error(err))
		observability.CaptureCtx(ctx, err)
	}
}

func (s *Service) dropFile(ctx context.Context, key string) {
	if err := s.files.Delete(ctx, key); err != nil {
		s.log.Warn("delete stored file", zap.String("key", key), zap.Error(err))
	}
}
