// Package api is the portal's HTTP surface.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/Spok95/classtrack-portal/internal/metrics"
	"github.com/Spok95/classtrack-portal/internal/models"
	"github.com/Spok95/classtrack-portal/internal/service"
)

// Portal is the service the handlers call; *service.Service implements it.
type Portal interface {
	Login(ctx context.Context, req service.LoginRequest) (string, error)
	Authenticate(ctx context.Context, token string) (models.Identity, error)

	MyAssignments(ctx context.Context, caller models.Identity) ([]models.Assignment, error)
	Assignment(ctx context.Context, caller models.Identity, id int64) (*models.Assignment, error)
	Roster(ctx context.Context, caller models.Identity, assignmentID int64) ([]models.Submission, error)
	RosterExport(ctx context.Context, caller models.Identity, assignmentID int64) ([]byte, string, error)
	Engagement(ctx context.Context, caller models.Identity, assignmentID int64) (*models.EngagementInsight, error)

	CreateSubmission(ctx context.Context, caller models.Identity, f service.SubmissionForm) (*models.Submission, error)
	UpdateSubmission(ctx context.Context, caller models.Identity, id int64, f service.SubmissionForm) (*models.Submission, error)
	DeleteSubmission(ctx context.Context, caller models.Identity, id int64) error
	MySubmission(ctx context.Context, caller models.Identity, assignmentID int64) (*models.Submission, error)
	Grade(ctx context.Context, caller models.Identity, id int64, upd models.GradeUpdate) (*models.Submission, error)
	Download(ctx context.Context, caller models.Identity, id int64) (*service.Download, error)

	CreateUser(ctx context.Context, caller models.Identity, f service.NewUserForm) (*models.Identity, error)
	LinkTelegram(ctx context.Context, caller models.Identity, chatID *int64) error
	CreateClass(ctx context.Context, caller models.Identity, f service.NewClassForm) (*models.Class, error)
	Enroll(ctx context.Context, caller models.Identity, classID, studentID int64) error
	CreateAssignment(ctx context.Context, caller models.Identity, f service.NewAssignmentForm) (*models.Assignment, error)
}

var _ Portal = (*service.Service)(nil)

type Options struct {
	CORSOrigins []string
	Timeout     time.Duration
	// Ping backs /healthz; nil always reports healthy.
	Ping func(ctx context.Context) error
}

type Handler struct {
	portal Portal
	log    *zap.Logger
	opts   Options
}

func NewHandler(p Portal, opts Options, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Handler{portal: p, log: log, opts: opts}
}

// Router wires the middleware chain and every route.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(newCORS(h.opts.CORSOrigins))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.StripSlashes)
	r.Use(requestContext)
	r.Use(requestLogger(h.log))
	r.Use(h.recovery)
	r.Use(middleware.Timeout(h.opts.Timeout))

	r.Get("/healthz", h.healthz)
	r.Handle("/metrics", metrics.Handler())

	r.Post("/auth/login", h.login)
	r.Post("/token", h.tokenForm)

	r.Group(func(r chi.Router) {
		r.Use(h.authenticate)

		r.Route("/users", func(r chi.Router) {
			r.Get("/me", h.me)
			r.Put("/me/telegram", h.linkTelegram)
			r.With(h.requireRole(models.Admin)).Post("/", h.createUser)
		})

		r.Route("/classes", func(r chi.Router) {
			r.Use(h.requireRole(models.Admin))
			r.Post("/", h.createClass)
			r.Post("/{id}/students", h.enroll)
		})

		r.Route("/assignments", func(r chi.Router) {
			r.With(h.requireRole(models.Teacher, models.Admin)).Post("/", h.createAssignment)
			r.Get("/me", h.myAssignments)
			r.Get("/{id}", h.assignment)
			r.With(h.requireRole(models.Teacher, models.Admin)).Get("/{id}/submissions", h.roster)
			r.With(h.requireRole(models.Teacher, models.Admin)).Get("/{id}/submissions/export", h.rosterExport)
		})

		r.With(h.requireRole(models.Teacher, models.Admin)).Get("/insights/engagement/{id}", h.engagement)

		r.Route("/submissions", func(r chi.Router) {
			r.With(h.requireRole(models.Student)).Post("/", h.createSubmission)
			r.With(h.requireRole(models.Student)).Put("/{id}", h.updateSubmission)
			r.Delete("/{id}", h.deleteSubmission)
			r.With(h.requireRole(models.Student)).Get("/assignment/{id}/student", h.mySubmission)
			r.With(h.requireRole(models.Teacher, models.Admin)).Patch("/{id}/grade", h.grade)
			r.Get("/{id}/download", h.download)
		})
	})
	return r
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	if h.opts.Ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 800*time.Millisecond)
		defer cancel()
		if err := h.opts.Ping(ctx); err != nil {
			http.Error(w, "db not ok: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
	}
	_, _ = w.Write([]byte("ok"))
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("id", "must be a positive integer")
	}
	return id, nil
}
