package db

import (
	"context"
	"database/sql"
	"strings"

	"github.com/Spok95/classtrack-portal/internal/models"
)

func CreateClass(ctx context.Context, database *sql.DB, c models.Class) (int64, error) {
	var id int64
	err := database.QueryRowContext(ctx, `
		INSERT INTO classes (name, code, teacher_id) VALUES ($1, $2, $3) RETURNING id`,
		strings.TrimSpace(c.Name), strings.ToUpper(strings.TrimSpace(c.Code)), c.TeacherID,
	).Scan(&id)
	if isUniqueViolation(err) {
		return 0, ErrDuplicate
	}
	return id, err
}

func GetClass(ctx context.Context, database *sql.DB, id int64) (*models.Class, error) {
	var (
		c       models.Class
		teacher sql.NullInt64
	)
	err := database.QueryRowContext(ctx, `SELECT id, name, code, teacher_id FROM classes WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.Code, &teacher)
	if err != nil {
		return nil, err
	}
	if teacher.Valid {
		v := teacher.Int64
		c.TeacherID = &v
	}
	return &c, nil
}

// Enroll is idempotent.
func Enroll(ctx context.Context, database *sql.DB, classID, studentID int64) error {
	_, err := database.ExecContext(ctx, `
		INSERT INTO enrollments (class_id, student_id) VALUES ($1, $2)
		ON CONFLICT (class_id, student_id) DO NOTHING`, classID, studentID)
	return err
}

func StudentClassIDs(ctx context.Context, database *sql.DB, studentID int64) ([]int64, error) {
	rows, err := database.QueryContext(ctx, `SELECT class_id FROM enrollments WHERE student_id = $1 ORDER BY class_id`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func IsEnrolled(ctx context.Context, database *sql.DB, classID, studentID int64) (bool, error) {
	var ok bool
	err := database.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM enrollments WHERE class_id = $1 AND student_id = $2)`,
		classID, studentID).Scan(&ok)
	return ok, err
}
