package service

import (
	"context"

	"github.com/Spok95/classtrack-portal/internal/apperr"
	"github.com/Spok95/classtrack-portal/internal/models"
)

// MyAssignments lists what the caller works on: created assignments for a
// teacher, assignments of enrolled classes for a student, everything for an admin.
func (s *Service) MyAssignments(ctx context.Context, caller models.Identity) ([]models.Assignment, error) {
	var (
		out []models.Assignment
		err error
	)
	switch caller.Role {
	case models.Teacher:
		out, err = s.repo.AssignmentsByCreator(ctx, caller.ID)
	case models.Student:
		out, err = s.repo.AssignmentsForStudent(ctx, caller.ID)
	case models.Admin:
		out, err = s.repo.AllAssignments(ctx)
	default:
		return nil, apperr.AuthForbidden("")
	}
	if out == nil && err == nil {
		out = []models.Assignment{}
	}
	return out, err
}

func (s *Service) Assignment(ctx context.Context, caller models.Identity, id int64) (*models.Assignment, error) {
	a, err := s.repo.Assignment(ctx, id)
	if err != nil {
		return nil, notFound(err, "Assignment not found")
	}
	if err := s.canView(ctx, caller, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) canView(ctx context.Context, caller models.Identity, a *models.Assignment) error {
	switch caller.Role {
	case models.Admin:
		return nil
	case models.Teacher:
		if a.CreatorID == caller.ID {
			return nil
		}
	case models.Student:
		ok, err := s.repo.IsEnrolled(ctx, a.ClassID, caller.ID)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return apperr.AuthForbidden("Not authorized to view this assignment")
}

// canManage allows the creating teacher and admins.
func canManage(caller models.Identity, a *models.Assignment) error {
	if caller.Role == models.Admin || (caller.Role == models.Teacher && a.CreatorID == caller.ID) {
		return nil
	}
	return apperr.AuthForbidden("Not authorized to manage this assignment")
}
