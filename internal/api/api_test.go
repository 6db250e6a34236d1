package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Spok95/classtrack-portal/internal/apperr"
	"github.com/Spok95/classtrack-portal/internal/models"
	"github.com/Spok95/classtrack-portal/internal/service"
)

var (
	student = models.Identity{ID: 1, Username: "alice", Role: models.Student}
	teacher = models.Identity{ID: 10, Username: "ms.t", Role: models.Teacher}
	admin   = models.Identity{ID: 99, Username: "root", Role: models.Admin}
)

// stubPortal answers from fixed tokens and records what reached it.
type stubPortal struct {
	lastForm  service.SubmissionForm
	fileBody  string
	lastGrade models.GradeUpdate
	createErr error
	deleted   []int64
	linked    *int64
	enrolled  [][2]int64
	newUser   service.NewUserForm
}

func (p *stubPortal) Login(_ context.Context, req service.LoginRequest) (string, error) {
	if req.Identifier == "alice" && req.Password == "secret" {
		return "tok-student", nil
	}
	return "", apperr.Validation("Incorrect username or password")
}

func (p *stubPortal) Authenticate(_ context.Context, token string) (models.Identity, error) {
	switch token {
	case "tok-student":
		return student, nil
	case "tok-teacher":
		return teacher, nil
	case "tok-admin":
		return admin, nil
	}
	return models.Identity{}, apperr.AuthExpired("could not validate credentials")
}

func (p *stubPortal) MyAssignments(_ context.Context, c models.Identity) ([]models.Assignment, error) {
	return []models.Assignment{{ID: 1, Name: "Essay", CreatorID: teacher.ID}}, nil
}

func (p *stubPortal) Assignment(_ context.Context, c models.Identity, id int64) (*models.Assignment, error) {
	if id != 1 {
		return nil, apperr.NotFound("Assignment not found")
	}
	return &models.Assignment{ID: 1, Name: "Essay"}, nil
}

func (p *stubPortal) Roster(context.Context, models.Identity, int64) ([]models.Submission, error) {
	return []models.Submission{{ID: 5, StudentName: "Alice"}}, nil
}

func (p *stubPortal) RosterExport(context.Context, models.Identity, int64) ([]byte, string, error) {
	return []byte("PK.."), "Roster - Essay.xlsx", nil
}

func (p *stubPortal) Engagement(_ context.Context, _ models.Identity, id int64) (*models.EngagementInsight, error) {
	return &models.EngagementInsight{AssignmentID: id, EngagementScore: 7.5}, nil
}

func (p *stubPortal) CreateSubmission(_ context.Context, c models.Identity, f service.SubmissionForm) (*models.Submission, error) {
	p.lastForm = f
	if f.File != nil {
		b, _ := io.ReadAll(f.File)
		p.fileBody = string(b)
	}
	if p.createErr != nil {
		return nil, p.createErr
	}
	return &models.Submission{ID: 7, AssignmentID: f.AssignmentID, StudentID: c.ID}, nil
}

func (p *stubPortal) UpdateSubmission(_ context.Context, c models.Identity, id int64, f service.SubmissionForm) (*models.Submission, error) {
	p.lastForm = f
	return &models.Submission{ID: id, AssignmentID: f.AssignmentID, StudentID: c.ID}, nil
}

func (p *stubPortal) DeleteSubmission(_ context.Context, _ models.Identity, id int64) error {
	p.deleted = append(p.deleted, id)
	return nil
}

func (p *stubPortal) MySubmission(context.Context, models.Identity, int64) (*models.Submission, error) {
	return nil, apperr.NotFound("Submission not found")
}

func (p *stubPortal) Grade(_ context.Context, _ models.Identity, id int64, upd models.GradeUpdate) (*models.Submission, error) {
	p.lastGrade = upd
	g := upd.Grade
	return &models.Submission{ID: id, Grade: &g, IsGraded: true}, nil
}

func (p *stubPortal) Download(context.Context, models.Identity, int64) (*service.Download, error) {
	return &service.Download{Name: "notes.txt", ContentType: "text/plain", Body: io.NopCloser(strings.NewReader("hello"))}, nil
}

func (p *stubPortal) CreateUser(_ context.Context, _ models.Identity, f service.NewUserForm) (*models.Identity, error) {
	if f.Username == "taken" {
		return nil, apperr.Conflict("Username already registered")
	}
	p.newUser = f
	return &models.Identity{ID: 50, Username: f.Username, Role: models.Role(f.Role)}, nil
}

func (p *stubPortal) LinkTelegram(_ context.Context, _ models.Identity, chatID *int64) error {
	p.linked = chatID
	return nil
}

func (p *stubPortal) CreateClass(_ context.Context, _ models.Identity, f service.NewClassForm) (*models.Class, error) {
	return &models.Class{ID: 7, Name: f.Name, Code: f.Code}, nil
}

func (p *stubPortal) Enroll(_ context.Context, _ models.Identity, classID, studentID int64) error {
	p.enrolled = append(p.enrolled, [2]int64{classID, studentID})
	return nil
}

func (p *stubPortal) CreateAssignment(_ context.Context, c models.Identity, f service.NewAssignmentForm) (*models.Assignment, error) {
	return &models.Assignment{ID: 8, Name: f.Name, ClassID: f.ClassID, CreatorID: c.ID}, nil
}

func newServer(t *testing.T) (*httptest.Server, *stubPortal) {
	t.Helper()
	p := &stubPortal{}
	srv := httptest.NewServer(NewHandler(p, Options{}, nil).Router())
	t.Cleanup(srv.Close)
	return srv, p
}

func call(t *testing.T, srv *httptest.Server, method, path, token string, body io.Reader, ct string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, body)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if ct != "" {
		req.Header.Set("Content-Type", ct)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeError(t *testing.T, resp *http.Response) errorBody {
	t.Helper()
	var b errorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&b))
	return b
}

func TestLogin(t *testing.T) {
	srv, _ := newServer(t)

	resp := call(t, srv, http.MethodPost, "/auth/login", "", strings.NewReader(`{"identifier":"alice","password":"secret"}`), "application/json")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var tok tokenResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tok))
	assert.Equal(t, "tok-student", tok.Token)
	assert.Equal(t, "tok-student", tok.AccessToken)

	resp = call(t, srv, http.MethodPost, "/auth/login", "", strings.NewReader(`{"identifier":"alice","password":"x"}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Incorrect username or password", decodeError(t, resp).Detail)

	resp = call(t, srv, http.MethodPost, "/auth/login", "", strings.NewReader(`{"identifier":""}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.NotEmpty(t, decodeError(t, resp).Fields)
}

func TestTokenFormAlias(t *testing.T) {
	srv, _ := newServer(t)
	form := url.Values{"username": {"alice"}, "password": {"secret"}}
	resp := call(t, srv, http.MethodPost, "/token", "", strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthRequired(t *testing.T) {
	srv, _ := newServer(t)

	resp := call(t, srv, http.MethodGet, "/users/me", "", nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "auth_expired", decodeError(t, resp).Kind)

	resp = call(t, srv, http.MethodGet, "/users/me", "bogus", nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = call(t, srv, http.MethodGet, "/users/me", "tok-student", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var id models.Identity
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&id))
	assert.Equal(t, student, id)
}

func TestRoleChecks(t *testing.T) {
	srv, _ := newServer(t)

	cases := []struct {
		method, path, token string
		want                int
	}{
		{http.MethodGet, "/assignments/1/submissions", "tok-student", http.StatusForbidden},
		{http.MethodGet, "/assignments/1/submissions", "tok-teacher", http.StatusOK},
		{http.MethodGet, "/insights/engagement/1", "tok-student", http.StatusForbidden},
		{http.MethodGet, "/insights/engagement/1", "tok-teacher", http.StatusOK},
		{http.MethodPatch, "/submissions/5/grade", "tok-student", http.StatusForbidden},
		{http.MethodGet, "/submissions/assignment/1/student", "tok-teacher", http.StatusForbidden},
		{http.MethodGet, "/submissions/assignment/1/student", "tok-student", http.StatusNotFound},
		{http.MethodGet, "/assignments/2", "tok-student", http.StatusNotFound},
		{http.MethodGet, "/assignments/abc", "tok-student", http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.path+" "+tc.token, func(t *testing.T) {
			resp := call(t, srv, tc.method, tc.path, tc.token, strings.NewReader(`{"grade":90}`), "application/json")
			assert.Equal(t, tc.want, resp.StatusCode)
		})
	}
}

func TestCreateSubmissionMultipart(t *testing.T) {
	srv, p := newServer(t)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("assignment_id", "3"))
	require.NoError(t, w.WriteField("content", "see attached"))
	require.NoError(t, w.WriteField("time_spent_minutes", "42.5"))
	part, err := w.CreateFormFile("file", "essay.txt")
	require.NoError(t, err)
	_, _ = part.Write([]byte("body of work"))
	require.NoError(t, w.Close())

	resp := call(t, srv, http.MethodPost, "/submissions", "tok-student", &buf, w.FormDataContentType())
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, int64(3), p.lastForm.AssignmentID)
	assert.Equal(t, 42.5, p.lastForm.TimeSpentMinutes)
	assert.Equal(t, "essay.txt", p.lastForm.FileName)
	assert.Equal(t, int64(len("body of work")), p.lastForm.FileSize)
	assert.Equal(t, "body of work", p.fileBody)
}

func TestCreateSubmissionConflict(t *testing.T) {
	srv, p := newServer(t)
	p.createErr = apperr.Conflict("")

	resp := call(t, srv, http.MethodPost, "/submissions", "tok-student", strings.NewReader(`{"assignment_id":1,"content":"x"}`), "application/json")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	b := decodeError(t, resp)
	assert.Equal(t, "conflict", b.Kind)
	assert.Equal(t, "already submitted", b.Detail)
}

func TestUpdateAndDelete(t *testing.T) {
	srv, p := newServer(t)

	resp := call(t, srv, http.MethodPut, "/submissions/9", "tok-student", strings.NewReader(`{"assignment_id":1,"content":"v2","time_spent_minutes":5}`), "application/json")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "v2", p.lastForm.Content)

	resp = call(t, srv, http.MethodDelete, "/submissions/9", "tok-student", nil, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, []int64{9}, p.deleted)
}

func TestGrade(t *testing.T) {
	srv, p := newServer(t)

	resp := call(t, srv, http.MethodPatch, "/submissions/5/grade", "tok-teacher", strings.NewReader(`{"grade":92,"feedback":"good"}`), "application/json")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 92.0, p.lastGrade.Grade)
	require.NotNil(t, p.lastGrade.Feedback)
	assert.Equal(t, "good", *p.lastGrade.Feedback)

	resp = call(t, srv, http.MethodPatch, "/submissions/5/grade", "tok-teacher", strings.NewReader(`{"feedback":"no grade"}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDownloadAndExportHeaders(t *testing.T) {
	srv, _ := newServer(t)

	resp := call(t, srv, http.MethodGet, "/submissions/5/download", "tok-student", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), `filename=notes.txt`)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "hello", string(body))

	resp = call(t, srv, http.MethodGet, "/assignments/1/submissions/export", "tok-teacher", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "Roster - Essay.xlsx")
}

func TestHealthz(t *testing.T) {
	p := &stubPortal{}
	down := NewHandler(p, Options{Ping: func(context.Context) error { return io.ErrUnexpectedEOF }}, nil).Router()

	rec := httptest.NewRecorder()
	down.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	up := NewHandler(p, Options{}, nil).Router()
	rec = httptest.NewRecorder()
	up.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestPanicIsRecovered(t *testing.T) {
	h := NewHandler(&stubPortal{}, Options{}, nil)
	boom := h.recovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))

	rec := httptest.NewRecorder()
	boom.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestProvisioningRoutes(t *testing.T) {
	srv, p := newServer(t)
	js := "application/json"

	cases := []struct {
		name, method, path, token, body string
		want                            int
	}{
		{"student cannot create users", http.MethodPost, "/users", "tok-student", `{"username":"carol"}`, http.StatusForbidden},
		{"admin creates user", http.MethodPost, "/users", "tok-admin", `{"username":"carol","password":"hunter22","role":"student"}`, http.StatusCreated},
		{"duplicate user", http.MethodPost, "/users", "tok-admin", `{"username":"taken"}`, http.StatusConflict},
		{"teacher cannot create classes", http.MethodPost, "/classes", "tok-teacher", `{"name":"8A","code":"8A"}`, http.StatusForbidden},
		{"admin creates class", http.MethodPost, "/classes", "tok-admin", `{"name":"8A","code":"8A"}`, http.StatusCreated},
		{"enroll needs student id", http.MethodPost, "/classes/7/students", "tok-admin", `{}`, http.StatusBadRequest},
		{"admin enrolls", http.MethodPost, "/classes/7/students", "tok-admin", `{"student_id":1}`, http.StatusNoContent},
		{"student cannot create assignments", http.MethodPost, "/assignments", "tok-student", `{"name":"X","class_id":7}`, http.StatusForbidden},
		{"teacher creates assignment", http.MethodPost, "/assignments", "tok-teacher", `{"name":"X","class_id":7}`, http.StatusCreated},
		{"link telegram", http.MethodPut, "/users/me/telegram", "tok-student", `{"chat_id":555}`, http.StatusNoContent},
		{"link telegram needs auth", http.MethodPut, "/users/me/telegram", "", `{"chat_id":555}`, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := call(t, srv, tc.method, tc.path, tc.token, strings.NewReader(tc.body), js)
			assert.Equal(t, tc.want, resp.StatusCode)
		})
	}

	assert.Equal(t, "hunter22", p.newUser.Password)
	assert.Equal(t, [][2]int64{{7, 1}}, p.enrolled)
	require.NotNil(t, p.linked)
	assert.Equal(t, int64(555), *p.linked)

	resp := call(t, srv, http.MethodPut, "/users/me/telegram", "tok-student", strings.NewReader(`{"chat_id":null}`), js)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Nil(t, p.linked)
}
