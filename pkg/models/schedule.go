package models

import "time"

// ActivityType is what the user does with a scheduled topic
type ActivityType string

const (
	ActivityRevise   ActivityType = "revise"
	ActivityPractice ActivityType = "practice"
	ActivityLearn    ActivityType = "learn"
)

// ScheduleItem is one planned study block
type ScheduleItem struct {
	TopicID         int64        `json:"topic_id"`
	TopicName       string       `json:"topic_name"`
	Subject         string       `json:"subject"`
	ActivityType    ActivityType `json:"activity_type"`
	DurationMinutes int          `json:"duration_minutes"`
	Priority        float64      `json:"priority"`
	Completed       bool         `json:"completed"`
}

// ScheduleDay is a user's plan for a single date
type ScheduleDay struct {
	UserID int64          `json:"user_id"`
	Date   time.Time      `json:"date"`
	Items  []ScheduleItem `json:"items"`
}

// TotalMinutes sums planned durations
func (d *ScheduleDay) TotalMinutes() int {
	total := 0
	for _, it := range d.Items {
		total += it.DurationMinutes
	}
	return total
}

// CompletionPercentage is the share of completed items, 0 for an empty day
func (d *ScheduleDay) CompletionPercentage() float64 {
	if len(d.Items) == 0 {
		return 0
	}
	done := 0
	for _, it := range d.Items {
		if it.Completed {
			done++
		}
	}
	return float64(done) / float64(len(d.Items)) * 100
}

// DateLayout is how calendar dates are stored and exchanged
const DateLayout = "2006-01-02"

// Day truncates t to a UTC calendar date
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD date
func ParseDay(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}
