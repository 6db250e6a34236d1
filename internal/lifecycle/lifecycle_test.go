package lifecycle

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Spok95/classtrack-portal/internal/apperr"
	"github.com/Spok95/classtrack-portal/internal/models"
)

// fakePortal keeps at most one submission per (assignment, student), like the server.
type fakePortal struct {
	mu      sync.Mutex
	student int64
	nextID  int64
	subs    map[int64]models.Submission
	calls   int
	failNxt error
	hold    chan struct{}
}

func newFakePortal() *fakePortal {
	return &fakePortal{student: 7, nextID: 1, subs: map[int64]models.Submission{}}
}

func (f *fakePortal) enter() error {
	f.mu.Lock()
	f.calls++
	err := f.failNxt
	f.failNxt = nil
	hold := f.hold
	f.mu.Unlock()
	if hold != nil {
		<-hold
	}
	return err
}

func (f *fakePortal) MySubmission(_ context.Context, assignmentID int64) (models.Submission, error) {
	if err := f.enter(); err != nil {
		return models.Submission{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.subs {
		if s.AssignmentID == assignmentID && s.StudentID == f.student {
			return s, nil
		}
	}
	return models.Submission{}, apperr.NotFound("submission not found")
}

func (f *fakePortal) CreateSubmission(_ context.Context, d models.SubmissionDraft) (models.Submission, error) {
	if err := f.enter(); err != nil {
		return models.Submission{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.subs {
		if s.AssignmentID == d.AssignmentID && s.StudentID == f.student {
			return models.Submission{}, apperr.Conflict("")
		}
	}
	s := models.Submission{ID: f.nextID, AssignmentID: d.AssignmentID, StudentID: f.student, Content: &d.Content, SubmittedAt: time.Now()}
	f.nextID++
	f.subs[s.ID] = s
	return s, nil
}

func (f *fakePortal) UpdateSubmission(_ context.Context, id int64, d models.SubmissionDraft) (models.Submission, error) {
	if err := f.enter(); err != nil {
		return models.Submission{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.subs[id]
	if !ok {
		return models.Submission{}, apperr.NotFound("")
	}
	s.Content = &d.Content
	s.Grade, s.Feedback, s.IsGraded = nil, nil, false
	f.subs[id] = s
	return s, nil
}

func (f *fakePortal) DeleteSubmission(_ context.Context, id int64) error {
	if err := f.enter(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.subs[id]; !ok {
		return apperr.NotFound("")
	}
	delete(f.subs, id)
	return nil
}

func (f *fakePortal) AssignmentSubmissions(_ context.Context, assignmentID int64) ([]models.Submission, error) {
	if err := f.enter(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Submission
	for id := int64(1); id < f.nextID; id++ {
		if s, ok := f.subs[id]; ok && s.AssignmentID == assignmentID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakePortal) GradeSubmission(_ context.Context, id int64, g models.GradeUpdate) (models.Submission, error) {
	if err := f.enter(); err != nil {
		return models.Submission{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.subs[id]
	if !ok {
		return models.Submission{}, apperr.NotFound("")
	}
	v := g.Grade
	s.Grade, s.Feedback, s.IsGraded = &v, g.Feedback, true
	f.subs[id] = s
	return s, nil
}

func (f *fakePortal) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func yes(string) bool { return true }
func no(string) bool  { return false }

func TestSubmitEmptyMakesNoCall(t *testing.T) {
	api := newFakePortal()
	tr := NewTracker(api, 10, nil)

	_, err := tr.Submit(context.Background(), models.SubmissionDraft{Content: "   "})
	require.Error(t, err)
	assert.Equal(t, "empty submission", apperr.Message(err))
	assert.True(t, errors.Is(err, apperr.ErrValidation))
	assert.Equal(t, 0, api.callCount())
	assert.Equal(t, StateNone, tr.State())
}

func TestSubmitUnsubmitSubmitKeepsOneRecord(t *testing.T) {
	api := newFakePortal()
	tr := NewTracker(api, 10, nil)
	ctx := context.Background()

	tr.EditDraft(models.SubmissionDraft{Content: "draft"})
	assert.Equal(t, StateDraft, tr.State())

	first, err := tr.Submit(ctx, models.SubmissionDraft{Content: "v1"})
	require.NoError(t, err)
	assert.Equal(t, StateSubmitted, tr.State())
	_, hasDraft := tr.Draft()
	assert.False(t, hasDraft)

	again, err := tr.Submit(ctx, models.SubmissionDraft{Content: "v2"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	require.NoError(t, tr.Unsubmit(ctx, yes))
	assert.Equal(t, StateNone, tr.State())

	_, err = tr.Submit(ctx, models.SubmissionDraft{Content: "v3"})
	require.NoError(t, err)

	roster, err := api.AssignmentSubmissions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, roster, 1)
	assert.Equal(t, "v3", *roster[0].Content)
}

func TestUnsubmitNeedsConfirmation(t *testing.T) {
	api := newFakePortal()
	tr := NewTracker(api, 10, nil)
	ctx := context.Background()

	assert.ErrorIs(t, tr.Unsubmit(ctx, yes), ErrNoSubmission)

	_, err := tr.Submit(ctx, models.SubmissionDraft{Content: "work"})
	require.NoError(t, err)
	before := api.callCount()

	assert.ErrorIs(t, tr.Unsubmit(ctx, no), ErrCancelled)
	assert.ErrorIs(t, tr.Unsubmit(ctx, nil), ErrCancelled)
	assert.Equal(t, before, api.callCount())
	assert.Equal(t, StateSubmitted, tr.State())
}

func TestFailedSubmitLeavesStateAlone(t *testing.T) {
	api := newFakePortal()
	tr := NewTracker(api, 10, nil)
	ctx := context.Background()

	api.failNxt = apperr.Transient(errors.New("connection reset"))
	_, err := tr.Submit(ctx, models.SubmissionDraft{Content: "work"})
	require.Error(t, err)
	assert.True(t, apperr.IsRetriable(err))
	assert.Equal(t, StateNone, tr.State())

	_, err = tr.Submit(ctx, models.SubmissionDraft{Content: "work"})
	require.NoError(t, err)

	api.failNxt = apperr.Transient(errors.New("502"))
	require.Error(t, tr.Unsubmit(ctx, yes))
	assert.Equal(t, StateSubmitted, tr.State())
}

func TestConflictIsReportedAsAlreadySubmitted(t *testing.T) {
	api := newFakePortal()
	ctx := context.Background()
	other := NewTracker(api, 10, nil)
	_, err := other.Submit(ctx, models.SubmissionDraft{Content: "from another device"})
	require.NoError(t, err)

	tr := NewTracker(api, 10, nil)
	_, err = tr.Submit(ctx, models.SubmissionDraft{Content: "stale view"})
	require.ErrorIs(t, err, apperr.ErrConflict)
	assert.Equal(t, "already submitted", apperr.Message(err))
	assert.Equal(t, StateNone, tr.State())

	require.NoError(t, tr.Load(ctx))
	assert.Equal(t, StateSubmitted, tr.State())
}

func TestLoadWithoutSubmission(t *testing.T) {
	tr := NewTracker(newFakePortal(), 10, nil)
	require.NoError(t, tr.Load(context.Background()))
	assert.Equal(t, StateNone, tr.State())
}

func TestResponseAfterCloseIsIgnored(t *testing.T) {
	api := newFakePortal()
	api.hold = make(chan struct{})
	tr := NewTracker(api, 10, nil)

	done := make(chan error, 1)
	go func() {
		_, err := tr.Submit(context.Background(), models.SubmissionDraft{Content: "late"})
		done <- err
	}()
	for api.callCount() == 0 {
		time.Sleep(time.Millisecond)
	}
	assert.ErrorIs(t, func() error { _, err := tr.Submit(context.Background(), models.SubmissionDraft{Content: "x"}); return err }(), ErrBusy)
	tr.Close()
	close(api.hold)

	assert.ErrorIs(t, <-done, ErrTrackerClosed)
	_, ok := tr.Submission()
	assert.False(t, ok)
}

func TestGradedStateAndResubmission(t *testing.T) {
	api := newFakePortal()
	ctx := context.Background()
	tr := NewTracker(api, 10, nil)
	sub, err := tr.Submit(ctx, models.SubmissionDraft{Content: "essay"})
	require.NoError(t, err)

	g := NewGrader(api, nil)
	_, err = g.LoadRoster(ctx, 10)
	require.NoError(t, err)
	_, err = g.Grade(ctx, sub.ID, 80, nil)
	require.NoError(t, err)

	require.NoError(t, tr.Load(ctx))
	assert.Equal(t, StateGraded, tr.State())

	resub, err := tr.Submit(ctx, models.SubmissionDraft{Content: "essay v2"})
	require.NoError(t, err)
	assert.Equal(t, sub.ID, resub.ID)
	assert.False(t, resub.IsGraded)
	assert.Equal(t, StateSubmitted, tr.State())
}

func seedRoster(t *testing.T, api *fakePortal, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		api.student = int64(100 + i)
		_, err := api.CreateSubmission(context.Background(), models.SubmissionDraft{AssignmentID: 10, Content: "x"})
		require.NoError(t, err)
	}
}

func TestGradeOneLeavesOthersUntouched(t *testing.T) {
	api := newFakePortal()
	api.nextID = 5
	seedRoster(t, api, 2)
	ctx := context.Background()

	g := NewGrader(api, nil)
	roster, err := g.LoadRoster(ctx, 10)
	require.NoError(t, err)
	require.Len(t, roster, 2)

	_, err = g.BeginEdit(6)
	require.NoError(t, err)
	require.NoError(t, g.SetPending(6, 70))

	got, err := g.Grade(ctx, 5, 92, nil)
	require.NoError(t, err)
	assert.True(t, got.IsGraded)
	assert.Equal(t, 92.0, *got.Grade)

	roster = g.Roster()
	assert.True(t, roster[0].IsGraded)
	assert.False(t, roster[1].IsGraded)
	assert.Nil(t, roster[1].Grade)
	v, ok := g.Pending(6)
	assert.True(t, ok)
	assert.Equal(t, 70.0, v)
}

func TestGradeOutOfRangeMakesNoCall(t *testing.T) {
	api := newFakePortal()
	seedRoster(t, api, 1)
	g := NewGrader(api, nil)
	_, err := g.LoadRoster(context.Background(), 10)
	require.NoError(t, err)
	before := api.callCount()

	for _, v := range []float64{-1, 100.5, math.NaN(), math.Inf(1)} {
		_, err := g.Grade(context.Background(), 1, v, nil)
		assert.Equal(t, "grade out of range", apperr.Message(err))
	}
	assert.Equal(t, before, api.callCount())

	for _, v := range []float64{0, 100} {
		_, err := g.Grade(context.Background(), 1, v, nil)
		assert.NoError(t, err)
	}
}

func TestEditBufferLifecycle(t *testing.T) {
	api := newFakePortal()
	seedRoster(t, api, 1)
	ctx := context.Background()
	g := NewGrader(api, nil)
	_, err := g.LoadRoster(ctx, 10)
	require.NoError(t, err)

	_, err = g.BeginEdit(99)
	assert.ErrorIs(t, err, ErrNotInRoster)

	v, err := g.BeginEdit(1)
	require.NoError(t, err)
	assert.Equal(t, 0.0, v)
	require.NoError(t, g.SetPending(1, 55))
	g.Cancel(1)
	_, ok := g.Pending(1)
	assert.False(t, ok)

	_, err = g.Save(ctx, 1, nil)
	assert.ErrorIs(t, err, ErrNoPending)

	require.NoError(t, g.SetPending(1, 88))
	fb := "good"
	sub, err := g.Save(ctx, 1, &fb)
	require.NoError(t, err)
	assert.Equal(t, "good", *sub.Feedback)
	assert.Empty(t, g.PendingIDs())
}

func TestBeginEditDuringSave(t *testing.T) {
	api := newFakePortal()
	seedRoster(t, api, 1)
	g := NewGrader(api, nil)
	_, err := g.LoadRoster(context.Background(), 10)
	require.NoError(t, err)
	api.hold = make(chan struct{})
	before := api.callCount()

	done := make(chan error, 1)
	go func() {
		_, err := g.Grade(context.Background(), 1, 60, nil)
		done <- err
	}()
	for api.callCount() == before {
		time.Sleep(time.Millisecond)
	}
	_, err = g.BeginEdit(1)
	assert.ErrorIs(t, err, ErrSaveInFlight)
	_, err = g.Grade(context.Background(), 1, 61, nil)
	assert.ErrorIs(t, err, ErrSaveInFlight)

	close(api.hold)
	require.NoError(t, <-done)
	_, err = g.BeginEdit(1)
	assert.NoError(t, err)
}

func TestGradeAfterRosterSwitchLeavesNoEntry(t *testing.T) {
	api := newFakePortal()
	seedRoster(t, api, 1)
	_, err := api.CreateSubmission(context.Background(), models.SubmissionDraft{AssignmentID: 11, Content: "y"})
	require.NoError(t, err)

	g := NewGrader(api, nil)
	_, err = g.LoadRoster(context.Background(), 10)
	require.NoError(t, err)
	_, err = g.BeginEdit(1)
	require.NoError(t, err)

	hold := make(chan struct{})
	api.mu.Lock()
	api.hold = hold
	before := api.calls
	api.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		_, err := g.Grade(context.Background(), 1, 75, nil)
		done <- err
	}()
	for api.callCount() == before {
		time.Sleep(time.Millisecond)
	}

	// the grade request stays blocked while the teacher opens another roster
	api.mu.Lock()
	api.hold = nil
	api.mu.Unlock()
	roster, err := g.LoadRoster(context.Background(), 11)
	require.NoError(t, err)
	require.Len(t, roster, 1)

	close(hold)
	require.NoError(t, <-done)

	for _, s := range g.Roster() {
		assert.NotEqual(t, int64(1), s.ID)
	}
	_, err = g.BeginEdit(1)
	assert.ErrorIs(t, err, ErrNotInRoster)
	assert.ErrorIs(t, g.SetPending(1, 80), ErrNotInRoster)
	_, ok := g.Pending(1)
	assert.False(t, ok)
}

func TestStepPolicy(t *testing.T) {
	cases := map[float64]float64{0: 5.0, 14.9: 5.0, 15: 6.5, 30: 7.5, 44: 7.5, 45: 8.5, 60: 9.5, 500: 9.5}
	for in, want := range cases {
		assert.Equal(t, want, DefaultPolicy.Score(in), "minutes=%v", in)
	}
	prev := 0.0
	for m := 0.0; m <= 120; m += 0.5 {
		s := DefaultPolicy.Score(m)
		assert.GreaterOrEqual(t, s, prev)
		prev = s
	}

	avg, score := Engagement(nil, []float64{20, 40})
	assert.Equal(t, 30.0, avg)
	assert.Equal(t, 7.5, score)
	avg, score = Engagement(DefaultPolicy, nil)
	assert.Zero(t, avg)
	assert.Zero(t, score)
}
