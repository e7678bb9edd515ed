package models

import "time"

// ReviewLog records a single graded review. IdempotencyKey is unique so a
// review can never advance the interval twice.
type ReviewLog struct {
	ID             string    `json:"id"`
	IdempotencyKey string    `json:"idempotency_key"`
	UserID         int64     `json:"user_id"`
	TopicID        int64     `json:"topic_id"`
	Quality        int       `json:"quality"`
	IntervalDays   int       `json:"interval_days"`
	EaseFactor     float64   `json:"ease_factor"`
	ReviewedAt     time.Time `json:"reviewed_at"`
}
