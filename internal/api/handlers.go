package api

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/Spok95/classtrack-portal/internal/apperr"
	"github.com/Spok95/classtrack-portal/internal/models"
	"github.com/Spok95/classtrack-portal/internal/service"
	"github.com/Spok95/classtrack-portal/internal/validate"
)

const (
	maxJSONBody  = 1 << 20
	maxMultipart = validate.MaxFileSize + 1<<20
)

type tokenResponse struct {
	Token       string `json:"token"`
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.Validation("invalid request body")
	}
	return nil
}

func (h *Handler) issue(w http.ResponseWriter, r *http.Request, req service.LoginRequest) {
	if err := validate.Struct(req); err != nil {
		h.writeError(w, r, err)
		return
	}
	tok, err := h.portal.Login(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: tok, AccessToken: tok, TokenType: "bearer"})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req service.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.issue(w, r, req)
}

// tokenForm accepts the OAuth2 password form (username, password).
func (h *Handler) tokenForm(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := r.ParseForm(); err != nil {
		h.writeError(w, r, apperr.Validation("invalid form"))
		return
	}
	h.issue(w, r, service.LoginRequest{Identifier: r.PostForm.Get("username"), Password: r.PostForm.Get("password")})
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, caller(r.Context()))
}

func (h *Handler) myAssignments(w http.ResponseWriter, r *http.Request) {
	out, err := h.portal.MyAssignments(r.Context(), caller(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) assignment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	a, err := h.portal.Assignment(r.Context(), caller(r.Context()), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) roster(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	subs, err := h.portal.Roster(r.Context(), caller(r.Context()), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

func (h *Handler) rosterExport(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	data, name, err := h.portal.RosterExport(r.Context(), caller(r.Context()), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

func (h *Handler) engagement(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	e, err := h.portal.Engagement(r.Context(), caller(r.Context()), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// submissionForm reads a JSON body or a multipart form with an optional
// "file" part. The returned closer releases the uploaded file.
func submissionForm(w http.ResponseWriter, r *http.Request) (service.SubmissionForm, func(), error) {
	var f service.SubmissionForm
	noop := func() {}

	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct != "multipart/form-data" {
		if err := decodeJSON(w, r, &f); err != nil {
			return f, noop, err
		}
		return f, noop, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxMultipart)
	if err := r.ParseMultipartForm(maxMultipart); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return f, noop, apperr.Validation("file too large", apperr.FieldError{Field: "file", Error: "maximum size: 10MB"})
		}
		return f, noop, apperr.Validation("invalid form")
	}
	if v := strings.TrimSpace(r.FormValue("assignment_id")); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return f, noop, badRequest("assignment_id", "must be an integer")
		}
		f.AssignmentID = id
	}
	if v := strings.TrimSpace(r.FormValue("time_spent_minutes")); v != "" {
		m, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return f, noop, badRequest("time_spent_minutes", "must be a number")
		}
		f.TimeSpentMinutes = m
	}
	f.Content = r.FormValue("content")
	f.LinkURL = r.FormValue("link_url")

	file, hdr, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return f, noop, nil
	}
	if err != nil {
		return f, noop, apperr.Validation("invalid file upload")
	}
	f.File, f.FileName, f.FileSize = file, hdr.Filename, hdr.Size
	return f, func() { _ = file.Close() }, nil
}

func (h *Handler) createSubmission(w http.ResponseWriter, r *http.Request) {
	f, done, err := submissionForm(w, r)
	defer done()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	sub, err := h.portal.CreateSubmission(r.Context(), caller(r.Context()), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (h *Handler) updateSubmission(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	f, done, err := submissionForm(w, r)
	defer done()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	sub, err := h.portal.UpdateSubmission(r.Context(), caller(r.Context()), id, f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (h *Handler) deleteSubmission(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.portal.DeleteSubmission(r.Context(), caller(r.Context()), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) mySubmission(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	sub, err := h.portal.MySubmission(r.Context(), caller(r.Context()), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

type gradeRequest struct {
	Grade    *float64 `json:"grade" validate:"required"`
	Feedback *string  `json:"feedback" validate:"omitempty,max=10000"`
}

func (h *Handler) grade(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req gradeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		h.writeError(w, r, err)
		return
	}
	sub, err := h.portal.Grade(r.Context(), caller(r.Context()), id, models.GradeUpdate{Grade: *req.Grade, Feedback: req.Feedback})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	d, err := h.portal.Download(r.Context(), caller(r.Context()), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer d.Body.Close()
	w.Header().Set("Content-Type", d.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": d.Name}))
	_, _ = io.Copy(w, d.Body)
}
