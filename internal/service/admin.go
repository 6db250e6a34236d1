package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Spok95/classtrack-portal/internal/apperr"
	"github.com/Spok95/classtrack-portal/internal/auth"
	"github.com/Spok95/classtrack-portal/internal/db"
	"github.com/Spok95/classtrack-portal/internal/models"
	"github.com/Spok95/classtrack-portal/internal/validate"
)

type NewUserForm struct {
	Username       string `json:"username" validate:"required,min=3,max=64"`
	Password       string `json:"password" validate:"required,min=6,max=128"`
	Role           string `json:"role" validate:"required,oneof=admin teacher student"`
	FirstName      string `json:"first_name" validate:"max=100"`
	LastName       string `json:"last_name" validate:"max=100"`
	TelegramChatID *int64 `json:"telegram_chat_id"`
}

type NewClassForm struct {
	Name      string `json:"name" validate:"required,max=100"`
	Code      string `json:"code" validate:"required,alphanum,max=20"`
	TeacherID *int64 `json:"teacher_id" validate:"omitempty,gt=0"`
}

type NewAssignmentForm struct {
	Name        string     `json:"name" validate:"required,max=200"`
	Description *string    `json:"description" validate:"omitempty,max=5000"`
	ClassID     int64      `json:"class_id" validate:"required,gt=0"`
	DueDate     *time.Time `json:"due_date"`
}

func requireAdmin(caller models.Identity, msg string) error {
	if caller.Role != models.Admin {
		return apperr.AuthForbidden(msg)
	}
	return nil
}

// CreateUser registers an account. Admin only.
func (s *Service) CreateUser(ctx context.Context, caller models.Identity, f NewUserForm) (*models.Identity, error) {
	if err := requireAdmin(caller, "Not authorized to create users"); err != nil {
		return nil, err
	}
	if err := validate.Struct(f); err != nil {
		return nil, err
	}
	return s.createUser(ctx, f)
}

func (s *Service) createUser(ctx context.Context, f NewUserForm) (*models.Identity, error) {
	hash, err := auth.HashPassword(f.Password)
	if err != nil {
		return nil, err
	}
	u := models.User{
		Identity: models.Identity{
			Username:  strings.TrimSpace(f.Username),
			Role:      models.Role(f.Role),
			FirstName: strings.TrimSpace(f.FirstName),
			LastName:  strings.TrimSpace(f.LastName),
		},
		PasswordHash:   hash,
		TelegramChatID: f.TelegramChatID,
	}
	id, err := s.repo.CreateUser(ctx, u)
	if errors.Is(err, db.ErrDuplicate) {
		return nil, apperr.Conflict("Username already registered")
	}
	if err != nil {
		return nil, err
	}
	u.ID = id
	s.log.Info("user created", zap.Int64("user_id", id), zap.String("role", f.Role))
	out := u.Identity
	return &out, nil
}

// Bootstrap creates the first admin account when username is not taken yet.
// It reports whether an account was created.
func (s *Service) Bootstrap(ctx context.Context, username, password string) (bool, error) {
	_, err := s.repo.UserByUsername(ctx, username)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return false, err
	}
	f := NewUserForm{Username: username, Password: password, Role: string(models.Admin)}
	if err := validate.Struct(f); err != nil {
		return false, err
	}
	if _, err := s.createUser(ctx, f); err != nil {
		if apperr.KindOf(err) == apperr.KindConflict {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// LinkTelegram sets or, with nil, clears the chat that receives the caller's
// grade notifications.
func (s *Service) LinkTelegram(ctx context.Context, caller models.Identity, chatID *int64) error {
	if chatID != nil && *chatID == 0 {
		return apperr.Validation("invalid chat id", apperr.FieldError{Field: "chat_id", Error: "must not be zero"})
	}
	if err := s.repo.SetTelegramChatID(ctx, caller.ID, chatID); err != nil {
		return notFound(err, "User not found")
	}
	s.log.Info("telegram link updated", zap.Int64("user_id", caller.ID), zap.Bool("linked", chatID != nil))
	return nil
}

// CreateClass is admin only. A teacher, when given, must hold the teacher role.
func (s *Service) CreateClass(ctx context.Context, caller models.Identity, f NewClassForm) (*models.Class, error) {
	if err := requireAdmin(caller, "Not authorized to create classes"); err != nil {
		return nil, err
	}
	if err := validate.Struct(f); err != nil {
		return nil, err
	}
	if f.TeacherID != nil {
		if err := s.expectRole(ctx, *f.TeacherID, models.Teacher, "teacher_id"); err != nil {
			return nil, err
		}
	}
	c := models.Class{Name: strings.TrimSpace(f.Name), Code: strings.ToUpper(strings.TrimSpace(f.Code)), TeacherID: f.TeacherID}
	id, err := s.repo.CreateClass(ctx, c)
	if errors.Is(err, db.ErrDuplicate) {
		return nil, apperr.Conflict("Class code already in use")
	}
	if err != nil {
		return nil, err
	}
	c.ID = id
	return &c, nil
}

// Enroll adds a student to a class; enrolling twice is a no-op. Admin only.
func (s *Service) Enroll(ctx context.Context, caller models.Identity, classID, studentID int64) error {
	if err := requireAdmin(caller, "Not authorized to manage enrollments"); err != nil {
		return err
	}
	if _, err := s.repo.Class(ctx, classID); err != nil {
		return notFound(err, "Class not found")
	}
	if err := s.expectRole(ctx, studentID, models.Student, "student_id"); err != nil {
		return err
	}
	return s.repo.Enroll(ctx, classID, studentID)
}

// CreateAssignment is open to teachers and admins; the caller becomes the
// creator. A teacher may not target a class assigned to another teacher.
func (s *Service) CreateAssignment(ctx context.Context, caller models.Identity, f NewAssignmentForm) (*models.Assignment, error) {
	if caller.Role != models.Teacher && caller.Role != models.Admin {
		return nil, apperr.AuthForbidden("Only teachers and admins can create assignments")
	}
	f.Name = strings.TrimSpace(f.Name)
	if f.Description != nil {
		f.Description = optional(*f.Description)
	}
	if err := validate.Struct(f); err != nil {
		return nil, err
	}
	c, err := s.repo.Class(ctx, f.ClassID)
	if err != nil {
		return nil, notFound(err, "Class not found")
	}
	if caller.Role == models.Teacher && c.TeacherID != nil && *c.TeacherID != caller.ID {
		return nil, apperr.AuthForbidden("Not authorized to create assignments for this class")
	}
	a, err := s.repo.CreateAssignment(ctx, models.Assignment{
		Name:        f.Name,
		Description: f.Description,
		ClassID:     f.ClassID,
		CreatorID:   caller.ID,
		DueDate:     f.DueDate,
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("assignment created", zap.Int64("assignment_id", a.ID), zap.Int64("class_id", a.ClassID), zap.Int64("creator_id", caller.ID))
	return a, nil
}

func (s *Service) expectRole(ctx context.Context, userID int64, role models.Role, field string) error {
	u, err := s.repo.UserByID(ctx, userID)
	if errors.Is(err, db.ErrNotFound) {
		return apperr.Validation("unknown user", apperr.FieldError{Field: field, Error: "user not found"})
	}
	if err != nil {
		return err
	}
	if u.Role != role {
		return apperr.Validation("wrong role", apperr.FieldError{Field: field, Error: "must be a " + string(role)})
	}
	return nil
}
