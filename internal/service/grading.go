package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/Spok95/classtrack-portal/internal/export"
	"github.com/Spok95/classtrack-portal/internal/lifecycle"
	"github.com/Spok95/classtrack-portal/internal/models"
	"github.com/Spok95/classtrack-portal/internal/notify"
	"github.com/Spok95/classtrack-portal/internal/validate"
)

func (s *Service) managed(ctx context.Context, caller models.Identity, assignmentID int64) (*models.Assignment, error) {
	a, err := s.repo.Assignment(ctx, assignmentID)
	if err != nil {
		return nil, notFound(err, "Assignment not found")
	}
	if err := canManage(caller, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Roster is every submission of an assignment, oldest first.
func (s *Service) Roster(ctx context.Context, caller models.Identity, assignmentID int64) ([]models.Submission, error) {
	if _, err := s.managed(ctx, caller, assignmentID); err != nil {
		return nil, err
	}
	subs, err := s.repo.SubmissionsByAssignment(ctx, assignmentID)
	if subs == nil && err == nil {
		subs = []models.Submission{}
	}
	return subs, err
}

// RosterExport renders the roster as an xlsx workbook.
func (s *Service) RosterExport(ctx context.Context, caller models.Identity, assignmentID int64) ([]byte, string, error) {
	a, err := s.managed(ctx, caller, assignmentID)
	if err != nil {
		return nil, "", err
	}
	subs, err := s.repo.SubmissionsByAssignment(ctx, assignmentID)
	if err != nil {
		return nil, "", err
	}
	data, err := export.RosterWorkbook(*a, subs)
	if err != nil {
		return nil, "", err
	}
	return data, export.RosterFilename(a.Name), nil
}

// Grade records a grade for one submission. Other submissions are untouched.
func (s *Service) Grade(ctx context.Context, caller models.Identity, submissionID int64, upd models.GradeUpdate) (*models.Submission, error) {
	if err := validate.GradeValue(upd.Grade); err != nil {
		return nil, err
	}
	cur, err := s.repo.Submission(ctx, submissionID)
	if err != nil {
		return nil, notFound(err, "Submission not found")
	}
	a, err := s.managed(ctx, caller, cur.AssignmentID)
	if err != nil {
		return nil, err
	}
	if upd.Feedback != nil {
		fb := strings.TrimSpace(*upd.Feedback)
		upd.Feedback = &fb
		if fb == "" {
			upd.Feedback = nil
		}
	}
	sub, err := s.repo.GradeSubmission(ctx, submissionID, upd.Grade, upd.Feedback, caller.ID)
	if err != nil {
		return nil, notFound(err, "Submission not found")
	}
	s.log.Info("submission graded",
		zap.Int64("submission_id", sub.ID),
		zap.Float64("grade", upd.Grade),
		zap.Int64("grader_id", caller.ID),
	)
	s.publish(ctx, models.EventSubmissionGraded, *sub)
	s.notifyGrade(ctx, *a, *sub)
	return sub, nil
}

func (s *Service) notifyGrade(ctx context.Context, a models.Assignment, sub models.Submission) {
	student, err := s.repo.UserByID(ctx, sub.StudentID)
	if err != nil || student.TelegramChatID == nil || sub.Grade == nil {
		return
	}
	g := notify.Grade{ChatID: *student.TelegramChatID, AssignmentName: a.Name, Grade: *sub.Grade, Feedback: sub.Feedback}
	if err := s.notifier.GradePosted(ctx, g); err != nil {
		s.log.Warn("grade notification", zap.Int64("student_id", sub.StudentID), zap.Error(err))
	}
}

// Engagement summarises how long students spent on an assignment.
func (s *Service) Engagement(ctx context.Context, caller models.Identity, assignmentID int64) (*models.EngagementInsight, error) {
	a, err := s.managed(ctx, caller, assignmentID)
	if err != nil {
		return nil, err
	}
	subs, err := s.repo.SubmissionsByAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	minutes := make([]float64, 0, len(subs))
	for _, sub := range subs {
		minutes = append(minutes, sub.TimeSpentMinutes)
	}
	avg, score := lifecycle.Engagement(s.policy, minutes)

	out := &models.EngagementInsight{
		AssignmentID:     a.ID,
		AssignmentName:   a.Name,
		TotalSubmissions: len(subs),
		AverageTimeSpent: avg,
		EngagementScore:  score,
		LastUpdated:      s.now().UTC(),
	}
	if c, err := s.repo.Class(ctx, a.ClassID); err == nil {
		out.ClassName = c.Name
	}
	return out, nil
}
