package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Spok95/classtrack-portal/internal/apperr"
	"github.com/Spok95/classtrack-portal/internal/models"
)

func TestCreateUser(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	form := NewUserForm{Username: "carol", Password: "hunter22", Role: "student", FirstName: " Carol "}

	_, err := f.svc.CreateUser(ctx, teacher, form)
	assert.Equal(t, apperr.KindAuthForbidden, apperr.KindOf(err))

	bad := form
	bad.Password = "123"
	_, err = f.svc.CreateUser(ctx, admin, bad)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	bad = form
	bad.Role = "parent"
	_, err = f.svc.CreateUser(ctx, admin, bad)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	id, err := f.svc.CreateUser(ctx, admin, form)
	require.NoError(t, err)
	assert.Equal(t, "Carol", id.FirstName)
	assert.Equal(t, models.Student, id.Role)

	tok, err := f.svc.Login(ctx, LoginRequest{Identifier: "carol", Password: "hunter22"})
	require.NoError(t, err)
	got, err := f.svc.Authenticate(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, id.ID, got.ID)

	_, err = f.svc.CreateUser(ctx, admin, form)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestBootstrapCreatesAdminOnce(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	created, err := f.svc.Bootstrap(ctx, "principal", "changeme")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = f.svc.Bootstrap(ctx, "principal", "other-password")
	require.NoError(t, err)
	assert.False(t, created)

	tok, err := f.svc.Login(ctx, LoginRequest{Identifier: "principal", Password: "changeme"})
	require.NoError(t, err)
	id, err := f.svc.Authenticate(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, models.Admin, id.Role)

	_, err = f.svc.Bootstrap(ctx, "x", "changeme")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestLinkTelegramEnablesGradeNotification(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	chat := int64(777)

	zero := int64(0)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(f.svc.LinkTelegram(ctx, bob, &zero)))
	require.NoError(t, f.svc.LinkTelegram(ctx, bob, &chat))

	sub, err := f.svc.CreateSubmission(ctx, bob, text(1, "done", 20))
	require.NoError(t, err)
	_, err = f.svc.Grade(ctx, teacher, sub.ID, models.GradeUpdate{Grade: 64})
	require.NoError(t, err)
	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, chat, f.notifier.sent[0].ChatID)
	assert.Equal(t, "Essay", f.notifier.sent[0].AssignmentName)

	require.NoError(t, f.svc.LinkTelegram(ctx, bob, nil))
	_, err = f.svc.Grade(ctx, teacher, sub.ID, models.GradeUpdate{Grade: 70})
	require.NoError(t, err)
	assert.Len(t, f.notifier.sent, 1)

	ghost := models.Identity{ID: 404, Role: models.Student}
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(f.svc.LinkTelegram(ctx, ghost, &chat)))
}

func TestCreateClassAndEnroll(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	tid := teacher.ID

	_, err := f.svc.CreateClass(ctx, teacher, NewClassForm{Name: "8A", Code: "8a"})
	assert.Equal(t, apperr.KindAuthForbidden, apperr.KindOf(err))

	wrong := alice.ID
	_, err = f.svc.CreateClass(ctx, admin, NewClassForm{Name: "8A", Code: "8a", TeacherID: &wrong})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	c, err := f.svc.CreateClass(ctx, admin, NewClassForm{Name: " 8A ", Code: "8a", TeacherID: &tid})
	require.NoError(t, err)
	assert.Equal(t, "8A", c.Code)
	assert.Equal(t, "8A", c.Name)

	_, err = f.svc.CreateClass(ctx, admin, NewClassForm{Name: "Other", Code: "8A"})
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	cases := []struct {
		name    string
		caller  models.Identity
		class   int64
		student int64
		want    apperr.Kind
	}{
		{"not admin", teacher, c.ID, mallory.ID, apperr.KindAuthForbidden},
		{"missing class", admin, 404, mallory.ID, apperr.KindNotFound},
		{"teacher as student", admin, c.ID, other.ID, apperr.KindValidation},
		{"unknown student", admin, c.ID, 404, apperr.KindValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := f.svc.Enroll(ctx, tc.caller, tc.class, tc.student)
			assert.Equal(t, tc.want, apperr.KindOf(err))
		})
	}

	require.NoError(t, f.svc.Enroll(ctx, admin, c.ID, mallory.ID))
	require.NoError(t, f.svc.Enroll(ctx, admin, c.ID, mallory.ID))

	a, err := f.svc.CreateAssignment(ctx, teacher, NewAssignmentForm{Name: "Poem", ClassID: c.ID})
	require.NoError(t, err)
	list, err := f.svc.MyAssignments(ctx, mallory)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, a.ID, list[0].ID)
}

func TestCreateAssignment(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	tid := other.ID
	f.repo.classes[3] = &models.Class{ID: 3, Name: "9C", Code: "9C", TeacherID: &tid}
	blank := "   "

	cases := []struct {
		name   string
		caller models.Identity
		form   NewAssignmentForm
		want   apperr.Kind
	}{
		{"student", alice, NewAssignmentForm{Name: "X", ClassID: 1}, apperr.KindAuthForbidden},
		{"blank name", teacher, NewAssignmentForm{Name: "  ", ClassID: 1}, apperr.KindValidation},
		{"no class", teacher, NewAssignmentForm{Name: "X"}, apperr.KindValidation},
		{"missing class", teacher, NewAssignmentForm{Name: "X", ClassID: 404}, apperr.KindNotFound},
		{"class of another teacher", teacher, NewAssignmentForm{Name: "X", ClassID: 3}, apperr.KindAuthForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreateAssignment(ctx, tc.caller, tc.form)
			assert.Equal(t, tc.want, apperr.KindOf(err))
		})
	}

	a, err := f.svc.CreateAssignment(ctx, teacher, NewAssignmentForm{Name: " Report ", Description: &blank, ClassID: 1})
	require.NoError(t, err)
	assert.Equal(t, "Report", a.Name)
	assert.Nil(t, a.Description)
	assert.Equal(t, teacher.ID, a.CreatorID)

	mine, err := f.svc.MyAssignments(ctx, teacher)
	require.NoError(t, err)
	ids := make([]int64, 0, len(mine))
	for _, m := range mine {
		ids = append(ids, m.ID)
	}
	assert.Contains(t, ids, a.ID)

	_, err = f.svc.CreateAssignment(ctx, admin, NewAssignmentForm{Name: "Any", ClassID: 3})
	require.NoError(t, err)
}
