package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Spok95/classtrack-portal/internal/ctxutil"
	"github.com/Spok95/classtrack-portal/internal/models"
)

// Repo binds the query functions to one pool, bounds each call with the DB
// timeout and reports missing rows as ErrNotFound.
type Repo struct {
	DB *sql.DB
}

func NewRepo(database *sql.DB) *Repo { return &Repo{DB: database} }

func missing(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (r *Repo) UserByID(ctx context.Context, id int64) (*models.User, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()
	u, err := GetUserByID(ctx, r.DB, id)
	return u, missing(err)
}

func (r *Repo) UserByUsername(ctx context.Context, username string) (*models.User, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()
	u, err := GetUserByUsername(ctx, r.DB, username)
	return u, missing(err)
}

func (r *Repo) Assignment(ctx context.Context, id int64) (*models.Assignment, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()
	a, err := GetAssignment(ctx, r.DB, id)
	return a, missing(err)
}

func (r *Repo) AssignmentsByCreator(ctx context.Context, creatorID int64) ([]models.Assignment, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()
	return AssignmentsByCreator(ctx, r.DB, creatorID)
}

func (r *Repo) AssignmentsForStudent(ctx context.Context, studentID int64) ([]models.Assignment, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()
	ids, err := StudentClassIDs(ctx, r.DB, studentID)
	if err != nil || len(ids) == 0 {
		return nil, err
	}
	return AssignmentsForClasses(ctx, r.DB, ids)
}

func (r *Repo) AllAssignments(ctx context.Context) ([]models.Assignment, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()
	return AllAssignments(ctx, r.DB)
}

func (r *Repo) Class(ctx context.Context, id int64) (*models.Class, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()
	c, err := GetClass(ctx, r.DB, id)
	return c, missing(err)
}

func (r *Repo) IsEnrolled(ctx context.Context, classID, studentID int64) (bool, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()
	return IsEnrolled(ctx, r.DB, classID, studentID)
}

func (r *Repo) CreateSubmission(ctx context.Context, s *models.Submission) error {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()
	return CreateSubmission(ctx, r.DB, s)
}

func (r *Repo) Submission(ctx context.Context, id int64) (*models.Submission, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()
	s, err := GetSubmission(ctx, r.DB, id)
	return s, missing(err)
}

func (r *Repo) SubmissionForStudent(ctx context.Context, assignmentID, studentID int64) (*models.Submission, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()
	s, err := GetSubmissionForStudent(ctx, r.DB, assignmentID, studentID)
	return s, missing(err)
}

func (r *Repo) ResubmitSubmission(ctx context.Context, s *models.Submission) (*string, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()
	key, err := ResubmitSubmission(ctx, r.DB, s)
	return key, missing(err)
}

func (r *Repo) DeleteSubmission(ctx context.Context, id int64) error {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()
	return missing(DeleteSubmission(ctx, r.DB, id))
}

func (r *Repo) GradeSubmission(ctx context.Context, id int64, grade float64, feedback *string, graderID int64) (*models.Submission, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()
	s, err := GradeSubmission(ctx, r.DB, id, grade, feedback, graderID)
	return s, missing(err)
}

func (r *Repo) SubmissionsByAssignment(ctx context.Context, assignmentID int64) ([]models.Submission, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()
	return SubmissionsByAssignment(ctx, r.DB, assignmentID)
}

func (r *Repo) CountUngraded(ctx context.Context) (int, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()
	return CountUngraded(ctx, r.DB)
}

func (r *Repo) CreateUser(ctx context.Context, u models.User) (int64, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()
	return CreateUser(ctx, r.DB, u)
}

func (r *Repo) SetTelegramChatID(ctx context.Context, userID int64, chatID *int64) error {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()
	return missing(SetTelegramChatID(ctx, r.DB, userID, chatID))
}

func (r *Repo) CreateClass(ctx context.Context, c models.Class) (int64, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()
	return CreateClass(ctx, r.DB, c)
}

func (r *Repo) Enroll(ctx context.Context, classID, studentID int64) error {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()
	return Enroll(ctx, r.DB, classID, studentID)
}

func (r *Repo) CreateAssignment(ctx context.Context, a models.Assignment) (*models.Assignment, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()
	id, err := CreateAssignment(ctx, r.DB, a)
	if err != nil {
		return nil, err
	}
	out, err := GetAssignment(ctx, r.DB, id)
	return out, missing(err)
}
