package models

import "time"

type Assignment struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Description *string    `json:"description,omitempty"`
	ClassID     int64      `json:"class_id"`
	CreatorID   int64      `json:"creator_id"`
	CreatedAt   time.Time  `json:"created_at"`
	DueDate     *time.Time `json:"due_date,omitempty"`
}

type Class struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Code      string `json:"code"`
	TeacherID *int64 `json:"teacher_id,omitempty"`
}

type EngagementInsight struct {
	AssignmentID     int64     `json:"assignment_id"`
	AssignmentName   string    `json:"assignment_name"`
	ClassName        string    `json:"class_name"`
	TotalSubmissions int       `json:"total_submissions"`
	AverageTimeSpent float64   `json:"average_time_spent"`
	EngagementScore  float64   `json:"engagement_score"`
	LastUpdated      time.Time `json:"last_updated"`
}
