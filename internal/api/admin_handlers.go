package api

import (
	"net/http"

	"github.com/Spok95/classtrack-portal/internal/service"
	"github.com/Spok95/classtrack-portal/internal/validate"
)

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var f service.NewUserForm
	if err := decodeJSON(w, r, &f); err != nil {
		h.writeError(w, r, err)
		return
	}
	id, err := h.portal.CreateUser(r.Context(), caller(r.Context()), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, id)
}

type telegramRequest struct {
	// null unlinks
	ChatID *int64 `json:"chat_id"`
}

func (h *Handler) linkTelegram(w http.ResponseWriter, r *http.Request) {
	var req telegramRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.portal.LinkTelegram(r.Context(), caller(r.Context()), req.ChatID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) createClass(w http.ResponseWriter, r *http.Request) {
	var f service.NewClassForm
	if err := decodeJSON(w, r, &f); err != nil {
		h.writeError(w, r, err)
		return
	}
	c, err := h.portal.CreateClass(r.Context(), caller(r.Context()), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

type enrollRequest struct {
	StudentID int64 `json:"student_id" validate:"required,gt=0"`
}

func (h *Handler) enroll(w http.ResponseWriter, r *http.Request) {
	classID, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req enrollRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.portal.Enroll(r.Context(), caller(r.Context()), classID, req.StudentID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) createAssignment(w http.ResponseWriter, r *http.Request) {
	var f service.NewAssignmentForm
	if err := decodeJSON(w, r, &f); err != nil {
		h.writeError(w, r, err)
		return
	}
	a, err := h.portal.CreateAssignment(r.Context(), caller(r.Context()), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}
