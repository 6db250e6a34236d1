// Package lifecycle tracks a student's submission for one assignment and a
// teacher's grading over an assignment roster.
package lifecycle

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/Spok95/classtrack-portal/internal/apperr"
	"github.com/Spok95/classtrack-portal/internal/models"
	"github.com/Spok95/classtrack-portal/internal/validate"
)

type State int

const (
	StateNone State = iota
	StateDraft
	StateSubmitted
	StateGraded
)

func (s State) String() string {
	switch s {
	case StateDraft:
		return "draft"
	case StateSubmitted:
		return "submitted"
	case StateGraded:
		return "graded"
	}
	return "none"
}

var (
	ErrCancelled     = errors.New("cancelled")
	ErrNoSubmission  = errors.New("nothing submitted yet")
	ErrBusy          = errors.New("another request for this submission is in flight")
	ErrTrackerClosed = errors.New("tracker closed")
)

// SubmissionAPI is the part of the portal API a student uses.
type SubmissionAPI interface {
	MySubmission(ctx context.Context, assignmentID int64) (models.Submission, error)
	CreateSubmission(ctx context.Context, d models.SubmissionDraft) (models.Submission, error)
	UpdateSubmission(ctx context.Context, id int64, d models.SubmissionDraft) (models.Submission, error)
	DeleteSubmission(ctx context.Context, id int64) error
}

// Confirm asks the user before a destructive call; false aborts it.
type Confirm func(prompt string) bool

// Tracker owns the submission state of one (assignment, student) pair.
type Tracker struct {
	api          SubmissionAPI
	assignmentID int64
	log          *zap.Logger

	mu     sync.Mutex
	sub    *models.Submission
	draft  *models.SubmissionDraft
	busy   bool
	closed bool
}

func NewTracker(api SubmissionAPI, assignmentID int64, log *zap.Logger) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Tracker{
		api:          api,
		assignmentID: assignmentID,
		log:          log.With(zap.Int64("assignment_id", assignmentID)),
	}
}

func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stateLocked()
}

func (t *Tracker) stateLocked() State {
	switch {
	case t.sub != nil && t.sub.IsGraded:
		return StateGraded
	case t.sub != nil:
		return StateSubmitted
	case t.draft != nil:
		return StateDraft
	}
	return StateNone
}

// Submission returns a copy of the saved record, if any.
func (t *Tracker) Submission() (models.Submission, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sub == nil {
		return models.Submission{}, false
	}
	return *t.sub, true
}

// Load fetches the student's saved submission; a 404 means there is none.
func (t *Tracker) Load(ctx context.Context) error {
	if err := t.acquire(); err != nil {
		return err
	}
	sub, err := t.api.MySubmission(ctx, t.assignmentID)
	return t.release(func() error {
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			t.sub = nil
			return nil
		case err != nil:
			return err
		}
		sub.Normalize()
		t.sub = &sub
		return nil
	})
}

// EditDraft keeps unsaved work on the client.
func (t *Tracker) EditDraft(d models.SubmissionDraft) {
	t.mu.Lock()
	defer t.mu.Unlock()
	d.AssignmentID = t.assignmentID
	t.draft = &d
}

func (t *Tracker) Draft() (models.SubmissionDraft, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.draft == nil {
		return models.SubmissionDraft{}, false
	}
	return *t.draft, true
}

// Submit creates the submission, or updates the existing one in place.
// Validation runs before any request is made.
func (t *Tracker) Submit(ctx context.Context, d models.SubmissionDraft) (models.Submission, error) {
	if err := validate.Submission(d.Content+d.LinkURL, d.FileName, d.FileSize()); err != nil {
		return models.Submission{}, err
	}
	d.AssignmentID = t.assignmentID
	if err := t.acquire(); err != nil {
		return models.Submission{}, err
	}

	t.mu.Lock()
	var existing int64
	if t.sub != nil {
		existing = t.sub.ID
	}
	t.mu.Unlock()

	var (
		sub models.Submission
		err error
	)
	if existing != 0 {
		sub, err = t.api.UpdateSubmission(ctx, existing, d)
	} else {
		sub, err = t.api.CreateSubmission(ctx, d)
	}
	err = t.release(func() error {
		if err != nil {
			return err
		}
		sub.Normalize()
		t.sub = &sub
		t.draft = nil
		return nil
	})
	if err != nil {
		t.log.Warn("submit failed", zap.Int64("submission_id", existing), zap.String("kind", apperr.KindOf(err).String()), zap.Error(err))
		return models.Submission{}, err
	}
	t.log.Info("submitted", zap.Int64("submission_id", sub.ID), zap.Bool("resubmission", existing != 0))
	return sub, nil
}

// Unsubmit deletes the saved submission after confirm agrees.
func (t *Tracker) Unsubmit(ctx context.Context, confirm Confirm) error {
	t.mu.Lock()
	if t.sub == nil {
		t.mu.Unlock()
		return ErrNoSubmission
	}
	id, graded := t.sub.ID, t.sub.IsGraded
	t.mu.Unlock()

	prompt := "Delete your submission? This cannot be undone."
	if graded {
		prompt = "Delete your graded submission? The grade will be lost."
	}
	if confirm == nil || !confirm(prompt) {
		return ErrCancelled
	}
	if err := t.acquire(); err != nil {
		return err
	}
	err := t.api.DeleteSubmission(ctx, id)
	return t.release(func() error {
		if err != nil {
			return err
		}
		t.sub = nil
		t.log.Info("unsubmitted", zap.Int64("submission_id", id))
		return nil
	})
}

// Close detaches the tracker; responses arriving later are discarded.
func (t *Tracker) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}

func (t *Tracker) acquire() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrTrackerClosed
	}
	if t.busy {
		return ErrBusy
	}
	t.busy = true
	return nil
}

// release applies fn under the lock unless the tracker was closed meanwhile.
func (t *Tracker) release(apply func() error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.busy = false
	if t.closed {
		return ErrTrackerClosed
	}
	return apply()
}
