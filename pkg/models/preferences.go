package models

import "time"

// StudyPreferences holds per-user planning settings
type StudyPreferences struct {
	UserID           int64     `json:"user_id"`
	ChatID           int64     `json:"chat_id"`
	DailyMinutes     int       `json:"daily_minutes"`
	Subjects         []string  `json:"subjects"`
	NotificationHour int       `json:"notification_hour"` // 0-23
	Active           bool      `json:"active"`
	UpdatedAt        time.Time `json:"updated_at"`
}
