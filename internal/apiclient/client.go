// Package apiclient talks to the portal API on behalf of a client tab.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Spok95/classtrack-portal/internal/apperr"
	"github.com/Spok95/classtrack-portal/internal/models"
)

type Options struct {
	Timeout    time.Duration
	RetryCount int
	RetryDelay time.Duration
}

func DefaultOptions() Options {
	return Options{Timeout: 15 * time.Second, RetryCount: 2, RetryDelay: 300 * time.Millisecond}
}

type Client struct {
	baseURL    string
	retryCount int
	retryDelay time.Duration
	client     *http.Client
	log        *zap.Logger
	token      string
}

func New(baseURL string, opts Options, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions().Timeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		retryCount: opts.RetryCount,
		retryDelay: opts.RetryDelay,
		client:     &http.Client{Timeout: opts.Timeout},
		log:        log,
	}
}

// WithToken returns a copy of c that sends token as a bearer credential.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

// errorBody is what the portal API answers with on failure.
type errorBody struct {
	Detail string              `json:"detail"`
	Kind   string              `json:"kind"`
	Fields []apperr.FieldError `json:"fields"`
}

type request struct {
	method      string
	path        string
	token       string
	body        io.Reader
	contentType string
}

// do sends r and decodes a 2xx JSON answer into out (unless out is nil).
// Idempotent GETs are retried on transient failures.
func (c *Client) do(ctx context.Context, r request, out any) error {
	resp, err := c.send(ctx, r)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperr.Transient(errors.Wrapf(err, "decode %s %s", r.method, r.path))
	}
	return nil
}

func (c *Client) send(ctx context.Context, r request) (*http.Response, error) {
	attempts := 1
	if r.method == http.MethodGet {
		attempts += c.retryCount
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			c.log.Warn("retrying request", zap.String("method", r.method), zap.String("path", r.path), zap.Int("attempt", i), zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return nil, apperr.Transient(ctx.Err())
			case <-time.After(c.retryDelay * time.Duration(i)):
			}
		}
		resp, err := c.once(ctx, r)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !apperr.IsRetriable(err) || ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func (c *Client) once(ctx context.Context, r request) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, r.body)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	tok := r.token
	if tok == "" {
		tok = c.token
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, apperr.Transient(errors.Wrapf(err, "%s %s", r.method, r.path))
	}
	c.log.Debug("api call", zap.String("method", r.method), zap.String("path", r.path),
		zap.Int("status", resp.StatusCode), zap.Duration("took", time.Since(start)))
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var eb errorBody
	if json.Unmarshal(raw, &eb) != nil || eb.Detail == "" {
		eb.Detail = strings.TrimSpace(string(raw))
	}
	err = apperr.FromStatus(resp.StatusCode, eb.Detail)
	if len(eb.Fields) > 0 {
		var ae *apperr.Error
		if errors.As(err, &ae) {
			ae.Fields = eb.Fields
		}
	}
	return nil, err
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return c.do(ctx, request{method: http.MethodGet, path: path}, out)
}

func jsonBody(v any) (io.Reader, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "encode request")
	}
	return bytes.NewReader(b), nil
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type loginResponse struct {
	Token       string `json:"token"`
	AccessToken string `json:"access_token"`
}

// Login exchanges credentials for a token.
func (c *Client) Login(ctx context.Context, identifier, password string) (string, error) {
	body, err := jsonBody(loginRequest{Identifier: identifier, Password: password})
	if err != nil {
		return "", err
	}
	var lr loginResponse
	if err := c.do(ctx, request{method: http.MethodPost, path: "/auth/login", body: body, contentType: "application/json"}, &lr); err != nil {
		return "", err
	}
	if lr.Token == "" {
		lr.Token = lr.AccessToken
	}
	if lr.Token == "" {
		return "", apperr.Transient(errors.New("login answered without a token"))
	}
	return lr.Token, nil
}

// Me resolves the identity behind token.
func (c *Client) Me(ctx context.Context, token string) (models.Identity, error) {
	var id models.Identity
	err := c.do(ctx, request{method: http.MethodGet, path: "/users/me", token: token}, &id)
	return id, err
}

func (c *Client) Assignment(ctx context.Context, id int64) (models.Assignment, error) {
	var a models.Assignment
	err := c.getJSON(ctx, fmt.Sprintf("/assignments/%d", id), &a)
	return a, err
}

func (c *Client) MyAssignments(ctx context.Context) ([]models.Assignment, error) {
	var out []models.Assignment
	err := c.getJSON(ctx, "/assignments/me", &out)
	return out, err
}

func (c *Client) MySubmission(ctx context.Context, assignmentID int64) (models.Submission, error) {
	var s models.Submission
	err := c.getJSON(ctx, fmt.Sprintf("/submissions/assignment/%d/student", assignmentID), &s)
	return s, err
}

func (c *Client) AssignmentSubmissions(ctx context.Context, assignmentID int64) ([]models.Submission, error) {
	var out []models.Submission
	err := c.getJSON(ctx, fmt.Sprintf("/assignments/%d/submissions", assignmentID), &out)
	return out, err
}

func (c *Client) Engagement(ctx context.Context, assignmentID int64) (models.EngagementInsight, error) {
	var e models.EngagementInsight
	err := c.getJSON(ctx, fmt.Sprintf("/insights/engagement/%d", assignmentID), &e)
	return e, err
}

func (c *Client) CreateSubmission(ctx context.Context, d models.SubmissionDraft) (models.Submission, error) {
	return c.writeSubmission(ctx, http.MethodPost, "/submissions", d)
}

func (c *Client) UpdateSubmission(ctx context.Context, id int64, d models.SubmissionDraft) (models.Submission, error) {
	return c.writeSubmission(ctx, http.MethodPut, fmt.Sprintf("/submissions/%d", id), d)
}

// submissionJSON is the body used when no file is attached.
type submissionJSON struct {
	AssignmentID     int64   `json:"assignment_id"`
	Content          string  `json:"content,omitempty"`
	LinkURL          string  `json:"link_url,omitempty"`
	TimeSpentMinutes float64 `json:"time_spent_minutes"`
}

func (c *Client) writeSubmission(ctx context.Context, method, path string, d models.SubmissionDraft) (models.Submission, error) {
	var (
		body io.Reader
		ct   string
		err  error
	)
	if len(d.File) > 0 {
		body, ct, err = multipartDraft(d)
	} else {
		body, err = jsonBody(submissionJSON{AssignmentID: d.AssignmentID, Content: d.Content, LinkURL: d.LinkURL, TimeSpentMinutes: d.TimeSpentMinutes})
		ct = "application/json"
	}
	if err != nil {
		return models.Submission{}, err
	}
	var s models.Submission
	if err := c.do(ctx, request{method: method, path: path, body: body, contentType: ct}, &s); err != nil {
		return models.Submission{}, err
	}
	s.Normalize()
	return s, nil
}

func multipartDraft(d models.SubmissionDraft) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fields := map[string]string{
		"assignment_id":      strconv.FormatInt(d.AssignmentID, 10),
		"content":            d.Content,
		"link_url":           d.LinkURL,
		"time_spent_minutes": strconv.FormatFloat(d.TimeSpentMinutes, 'f', -1, 64),
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := w.WriteField(k, v); err != nil {
			return nil, "", errors.Wrap(err, "write form field")
		}
	}
	part, err := w.CreateFormFile("file", d.FileName)
	if err != nil {
		return nil, "", errors.Wrap(err, "create form file")
	}
	if _, err := part.Write(d.File); err != nil {
		return nil, "", errors.Wrap(err, "copy file content")
	}
	if err := w.Close(); err != nil {
		return nil, "", errors.Wrap(err, "close multipart writer")
	}
	return &buf, w.FormDataContentType(), nil
}

func (c *Client) DeleteSubmission(ctx context.Context, id int64) error {
	return c.do(ctx, request{method: http.MethodDelete, path: fmt.Sprintf("/submissions/%d", id)}, nil)
}

// LinkTelegram points grade notifications at chatID; nil unlinks.
func (c *Client) LinkTelegram(ctx context.Context, chatID *int64) error {
	body, err := jsonBody(struct {
		ChatID *int64 `json:"chat_id"`
	}{chatID})
	if err != nil {
		return err
	}
	return c.do(ctx, request{method: http.MethodPut, path: "/users/me/telegram", body: body, contentType: "application/json"}, nil)
}

func (c *Client) GradeSubmission(ctx context.Context, id int64, g models.GradeUpdate) (models.Submission, error) {
	body, err := jsonBody(g)
	if err != nil {
		return models.Submission{}, err
	}
	var s models.Submission
	err = c.do(ctx, request{method: http.MethodPatch, path: fmt.Sprintf("/submissions/%d/grade", id), body: body, contentType: "application/json"}, &s)
	if err != nil {
		return models.Submission{}, err
	}
	s.Normalize()
	return s, nil
}

// Download fetches the attached file and the name it was uploaded under.
func (c *Client) Download(ctx context.Context, id int64) (string, []byte, error) {
	resp, err := c.send(ctx, request{method: http.MethodGet, path: fmt.Sprintf("/submissions/%d/download", id)})
	if err != nil {
		return "", nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, apperr.Transient(errors.Wrap(err, "read download"))
	}
	name := fmt.Sprintf("submission-%d", id)
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		name = params["filename"]
	}
	return name, data, nil
}
