package db

import (
	"context"
	"database/sql"

	"github.com/Spok95/classtrack-portal/internal/models"
)

const submissionCols = `s.id, s.assignment_id, s.student_id, s.content, s.link_url, s.file_key, s.file_name,
	s.time_spent_minutes, s.submitted_at, s.grade, s.feedback`

func scanSubmission(row interface{ Scan(...any) error }, extra ...any) (*models.Submission, error) {
	var (
		s                                    models.Submission
		content, link, fileKey, fileName, fb sql.NullString
		grade                                sql.NullFloat64
	)
	dest := []any{&s.ID, &s.AssignmentID, &s.StudentID, &content, &link, &fileKey, &fileName,
		&s.TimeSpentMinutes, &s.SubmittedAt, &grade, &fb}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	s.Content = nullStr(content)
	s.LinkURL = nullStr(link)
	s.FileKey = nullStr(fileKey)
	s.FileName = nullStr(fileName)
	s.Feedback = nullStr(fb)
	if grade.Valid {
		g := grade.Float64
		s.Grade = &g
	}
	s.Normalize()
	return &s, nil
}

func nullStr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

// CreateSubmission inserts s and fills in its id and submitted_at.
// A second submission for the same (assignment, student) gives ErrDuplicate.
func CreateSubmission(ctx context.Context, database *sql.DB, s *models.Submission) error {
	err := database.QueryRowContext(ctx, `
		INSERT INTO submissions (assignment_id, student_id, content, link_url, file_key, file_name, time_spent_minutes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, submitted_at`,
		s.AssignmentID, s.StudentID, s.Content, s.LinkURL, s.FileKey, s.FileName, s.TimeSpentMinutes,
	).Scan(&s.ID, &s.SubmittedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	s.Grade, s.Feedback = nil, nil
	s.Normalize()
	return err
}

func GetSubmission(ctx context.Context, database *sql.DB, id int64) (*models.Submission, error) {
	return scanSubmission(database.QueryRowContext(ctx, `SELECT `+submissionCols+` FROM submissions s WHERE s.id = $1`, id))
}

func GetSubmissionForStudent(ctx context.Context, database *sql.DB, assignmentID, studentID int64) (*models.Submission, error) {
	return scanSubmission(database.QueryRowContext(ctx,
		`SELECT `+submissionCols+` FROM submissions s WHERE s.assignment_id = $1 AND s.student_id = $2`,
		assignmentID, studentID))
}

// ResubmitSubmission replaces the content of an existing submission in place,
// clearing any grade. It returns the file key that was replaced, if the
// new version carries a different file, so the caller can drop the old object.
func ResubmitSubmission(ctx context.Context, database *sql.DB, s *models.Submission) (replacedKey *string, err error) {
	tx, err := database.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var oldKey sql.NullString
	err = tx.QueryRowContext(ctx, `SELECT file_key FROM submissions WHERE id = $1 FOR UPDATE`, s.ID).Scan(&oldKey)
	if err != nil {
		return nil, err
	}

	// keep the stored file when the resubmission does not attach a new one
	err = tx.QueryRowContext(ctx, `
		UPDATE submissions
		SET content = $2,
		    link_url = $3,
		    file_key = COALESCE($4, file_key),
		    file_name = CASE WHEN $4::text IS NULL THEN file_name ELSE $5 END,
		    time_spent_minutes = $6,
		    submitted_at = now(),
		    grade = NULL,
		    feedback = NULL,
		    graded_at = NULL,
		    graded_by = NULL
		WHERE id = $1
		RETURNING submitted_at, file_key, file_name`,
		s.ID, s.Content, s.LinkURL, s.FileKey, s.FileName, s.TimeSpentMinutes,
	).Scan(&s.SubmittedAt, &s.FileKey, &s.FileName)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	s.Grade, s.Feedback = nil, nil
	s.Normalize()
	if oldKey.Valid && s.FileKey != nil && *s.FileKey != oldKey.String {
		return &oldKey.String, nil
	}
	return nil, nil
}

func DeleteSubmission(ctx context.Context, database *sql.DB, id int64) error {
	res, err := database.ExecContext(ctx, `DELETE FROM submissions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// GradeSubmission records the grade and returns the updated row.
func GradeSubmission(ctx context.Context, database *sql.DB, id int64, grade float64, feedback *string, graderID int64) (*models.Submission, error) {
	return scanSubmission(database.QueryRowContext(ctx, `
		UPDATE submissions s
		SET grade = $2, feedback = $3, graded_at = now(), graded_by = $4
		WHERE s.id = $1
		RETURNING `+submissionCols,
		id, grade, feedback, graderID))
}

// SubmissionsByAssignment is the roster of an assignment with student names.
func SubmissionsByAssignment(ctx context.Context, database *sql.DB, assignmentID int64) ([]models.Submission, error) {
	rows, err := database.QueryContext(ctx, `
		SELECT `+submissionCols+`, u.username, COALESCE(u.first_name, ''), COALESCE(u.last_name, '')
		FROM submissions s
		JOIN users u ON u.id = s.student_id
		WHERE s.assignment_id = $1
		ORDER BY s.submitted_at, s.id`, assignmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Submission
	for rows.Next() {
		var who models.Identity
		s, err := scanSubmission(rows, &who.Username, &who.FirstName, &who.LastName)
		if err != nil {
			return nil, err
		}
		s.StudentName = who.DisplayName()
		out = append(out, *s)
	}
	return out, rows.Err()
}

func CountUngraded(ctx context.Context, database *sql.DB) (int, error) {
	var n int
	err := database.QueryRowContext(ctx, `SELECT count(*) FROM submissions WHERE grade IS NULL`).Scan(&n)
	return n, err
}
