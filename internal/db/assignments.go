package db

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"github.com/Spok95/classtrack-portal/internal/models"
)

const assignmentCols = `id, name, description, class_id, creator_id, created_at, due_date`

func scanAssignment(row interface{ Scan(...any) error }) (*models.Assignment, error) {
	var (
		a    models.Assignment
		desc sql.NullString
		due  sql.NullTime
	)
	if err := row.Scan(&a.ID, &a.Name, &desc, &a.ClassID, &a.CreatorID, &a.CreatedAt, &due); err != nil {
		return nil, err
	}
	if desc.Valid {
		a.Description = &desc.String
	}
	if due.Valid {
		t := due.Time
		a.DueDate = &t
	}
	return &a, nil
}

func queryAssignments(ctx context.Context, database *sql.DB, q string, args ...any) ([]models.Assignment, error) {
	rows, err := database.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func CreateAssignment(ctx context.Context, database *sql.DB, a models.Assignment) (int64, error) {
	var id int64
	err := database.QueryRowContext(ctx, `
		INSERT INTO assignments (name, description, class_id, creator_id, due_date)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		a.Name, a.Description, a.ClassID, a.CreatorID, a.DueDate,
	).Scan(&id)
	return id, err
}

func GetAssignment(ctx context.Context, database *sql.DB, id int64) (*models.Assignment, error) {
	return scanAssignment(database.QueryRowContext(ctx, `SELECT `+assignmentCols+` FROM assignments WHERE id = $1`, id))
}

func AssignmentsByCreator(ctx context.Context, database *sql.DB, creatorID int64) ([]models.Assignment, error) {
	return queryAssignments(ctx, database,
		`SELECT `+assignmentCols+` FROM assignments WHERE creator_id = $1 ORDER BY created_at DESC, id DESC`, creatorID)
}

// AssignmentsForClasses lists assignments of any of the given classes.
func AssignmentsForClasses(ctx context.Context, database *sql.DB, classIDs []int64) ([]models.Assignment, error) {
	if len(classIDs) == 0 {
		return nil, nil
	}
	return queryAssignments(ctx, database,
		`SELECT `+assignmentCols+` FROM assignments WHERE class_id = ANY($1) ORDER BY created_at DESC, id DESC`,
		pq.Array(classIDs))
}

func AllAssignments(ctx context.Context, database *sql.DB) ([]models.Assignment, error) {
	return queryAssignments(ctx, database, `SELECT `+assignmentCols+` FROM assignments ORDER BY created_at DESC, id DESC`)
}
