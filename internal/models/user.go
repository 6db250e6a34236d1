package models

import "strings"

type Role string

const (
	Student Role = "student"
	Teacher Role = "teacher"
	Admin   Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case Student, Teacher, Admin:
		return true
	}
	return false
}

// Home is the dashboard a known identity is sent to.
func (r Role) Home() string {
	return "/" + string(r) + "/dashboard"
}

// Identity is the resolved user record behind a bearer token.
type Identity struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Role      Role   `json:"role"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	AvatarURL string `json:"profile_picture_url,omitempty"`
}

func (i Identity) DisplayName() string {
	first, last := strings.TrimSpace(i.FirstName), strings.TrimSpace(i.LastName)
	switch {
	case first != "" && last != "":
		return first + " " + last
	case first != "":
		return first
	case last != "":
		return last
	}
	return i.Username
}

// User is the server-side account row.
type User struct {
	Identity
	PasswordHash   []byte
	TelegramChatID *int64
}
