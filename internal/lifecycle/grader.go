package lifecycle

import (
	"context"
	"errors"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/Spok95/classtrack-portal/internal/apperr"
	"github.com/Spok95/classtrack-portal/internal/models"
	"github.com/Spok95/classtrack-portal/internal/validate"
)

var (
	ErrSaveInFlight = errors.New("grade save in flight for this submission")
	ErrNotInRoster  = errors.New("submission is not in the loaded roster")
	ErrNoPending    = errors.New("no pending grade for this submission")
)

// GradingAPI is the part of the portal API a teacher uses.
type GradingAPI interface {
	AssignmentSubmissions(ctx context.Context, assignmentID int64) ([]models.Submission, error)
	GradeSubmission(ctx context.Context, id int64, g models.GradeUpdate) (models.Submission, error)
}

// Grader keeps a teacher's roster and the pending grade edits keyed by
// submission id. Edits to different submissions never interact.
type Grader struct {
	api GradingAPI
	log *zap.Logger

	mu       sync.Mutex
	roster   map[int64]models.Submission
	order    []int64
	pending  map[int64]float64
	inFlight map[int64]bool
}

func NewGrader(api GradingAPI, log *zap.Logger) *Grader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Grader{
		api:      api,
		log:      log,
		roster:   make(map[int64]models.Submission),
		pending:  make(map[int64]float64),
		inFlight: make(map[int64]bool),
	}
}

// LoadRoster replaces the roster; pending edits for submissions that are
// still present survive the reload.
func (g *Grader) LoadRoster(ctx context.Context, assignmentID int64) ([]models.Submission, error) {
	subs, err := g.api.AssignmentSubmissions(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.roster = make(map[int64]models.Submission, len(subs))
	g.order = g.order[:0]
	for _, s := range subs {
		s.Normalize()
		g.roster[s.ID] = s
		g.order = append(g.order, s.ID)
	}
	for id := range g.pending {
		if _, ok := g.roster[id]; !ok {
			delete(g.pending, id)
		}
	}
	return g.rosterLocked(), nil
}

func (g *Grader) Roster() []models.Submission {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rosterLocked()
}

func (g *Grader) rosterLocked() []models.Submission {
	out := make([]models.Submission, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.roster[id])
	}
	return out
}

// BeginEdit opens the edit buffer for id, seeded with the current grade.
func (g *Grader) BeginEdit(id int64) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.roster[id]
	if !ok {
		return 0, ErrNotInRoster
	}
	if g.inFlight[id] {
		return 0, ErrSaveInFlight
	}
	if v, ok := g.pending[id]; ok {
		return v, nil
	}
	var v float64
	if s.Grade != nil {
		v = *s.Grade
	}
	g.pending[id] = v
	return v, nil
}

func (g *Grader) SetPending(id int64, value float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.roster[id]; !ok {
		return ErrNotInRoster
	}
	if g.inFlight[id] {
		return ErrSaveInFlight
	}
	g.pending[id] = value
	return nil
}

// Cancel discards the pending edit for id.
func (g *Grader) Cancel(id int64) {
	g.mu.Lock()
	delete(g.pending, id)
	g.mu.Unlock()
}

func (g *Grader) Pending(id int64) (float64, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	v, ok := g.pending[id]
	return v, ok
}

// PendingIDs lists submissions with an open edit, in id order.
func (g *Grader) PendingIDs() []int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	ids := make([]int64, 0, len(g.pending))
	for id := range g.pending {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Save flushes the pending edit for id.
func (g *Grader) Save(ctx context.Context, id int64, feedback *string) (models.Submission, error) {
	v, ok := g.Pending(id)
	if !ok {
		return models.Submission{}, ErrNoPending
	}
	return g.Grade(ctx, id, v, feedback)
}

// Grade validates value, sends it and marks the roster entry graded once the
// server confirms. The pending edit for id is cleared on success only.
func (g *Grader) Grade(ctx context.Context, id int64, value float64, feedback *string) (models.Submission, error) {
	if err := validate.GradeValue(value); err != nil {
		return models.Submission{}, err
	}

	g.mu.Lock()
	if _, ok := g.roster[id]; !ok {
		g.mu.Unlock()
		return models.Submission{}, ErrNotInRoster
	}
	if g.inFlight[id] {
		g.mu.Unlock()
		return models.Submission{}, ErrSaveInFlight
	}
	g.inFlight[id] = true
	g.mu.Unlock()

	sub, err := g.api.GradeSubmission(ctx, id, models.GradeUpdate{Grade: value, Feedback: feedback})

	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inFlight, id)
	if err != nil {
		g.log.Warn("grade failed", zap.Int64("submission_id", id), zap.String("kind", apperr.KindOf(err).String()), zap.Error(err))
		return models.Submission{}, err
	}
	prev, ok := g.roster[id]
	if !ok {
		// the roster was reloaded without id while the save was in flight
		delete(g.pending, id)
		g.log.Info("graded submission left the roster", zap.Int64("submission_id", id))
		return sub, nil
	}
	if sub.StudentName == "" {
		sub.StudentName = prev.StudentName
	}
	if sub.Grade == nil {
		sub.Grade = &value
	}
	sub.Normalize()
	g.roster[id] = sub
	delete(g.pending, id)
	g.log.Info("graded", zap.Int64("submission_id", id), zap.Float64("grade", value))
	return sub, nil
}
