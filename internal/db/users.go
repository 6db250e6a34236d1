package db

import (
	"context"
	"database/sql"

	"github.com/Spok95/classtrack-portal/internal/models"
)

const userCols = `id, username, password_hash, role, COALESCE(first_name, ''), COALESCE(last_name, ''),
	COALESCE(profile_picture_url, ''), telegram_chat_id`

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	var (
		u    models.User
		role string
		chat sql.NullInt64
	)
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &role, &u.FirstName, &u.LastName, &u.AvatarURL, &chat); err != nil {
		return nil, err
	}
	u.Role = models.Role(role)
	if chat.Valid {
		v := chat.Int64
		u.TelegramChatID = &v
	}
	return &u, nil
}

func CreateUser(ctx context.Context, database *sql.DB, u models.User) (int64, error) {
	var id int64
	err := database.QueryRowContext(ctx, `
		INSERT INTO users (username, password_hash, role, first_name, last_name, profile_picture_url, telegram_chat_id)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), $7)
		RETURNING id`,
		u.Username, u.PasswordHash, string(u.Role), u.FirstName, u.LastName, u.AvatarURL, u.TelegramChatID,
	).Scan(&id)
	if isUniqueViolation(err) {
		return 0, ErrDuplicate
	}
	return id, err
}

func GetUserByID(ctx context.Context, database *sql.DB, id int64) (*models.User, error) {
	return scanUser(database.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id))
}

func GetUserByUsername(ctx context.Context, database *sql.DB, username string) (*models.User, error) {
	return scanUser(database.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE lower(username) = lower($1)`, username))
}

// SetTelegramChatID links an account to the chat that receives its notifications.
func SetTelegramChatID(ctx context.Context, database *sql.DB, userID int64, chatID *int64) error {
	res, err := database.ExecContext(ctx, `UPDATE users SET telegram_chat_id = $2 WHERE id = $1`, userID, chatID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
