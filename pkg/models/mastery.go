package models

import (
	"sort"
	"time"
)

const (
	// DefaultEaseFactor is the SM-2 starting ease
	DefaultEaseFactor = 2.5
	// MinEaseFactor is the SM-2 floor
	MinEaseFactor = 1.3
	// NeutralAccuracy is the prior used before any attempt
	NeutralAccuracy = 0.5
)

// TopicMastery tracks a user's competency in one topic together with its
// spaced-repetition state
type TopicMastery struct {
	UserID           int64     `json:"user_id"`
	TopicID          int64     `json:"topic_id"`
	MasteryScore     float64   `json:"mastery_score"`
	Accuracy         float64   `json:"accuracy"`
	AvgResponseTime  float64   `json:"avg_response_time"` // seconds
	TotalAttempts    int       `json:"total_attempts"`
	CorrectAttempts  int       `json:"correct_attempts"`
	RevisionCount    int       `json:"revision_count"`
	LastAttemptDate  time.Time `json:"last_attempt_date"`
	EaseFactor       float64   `json:"ease_factor"`
	IntervalDays     int       `json:"interval_days"`
	RepetitionNumber int       `json:"repetition_number"`
	NextReviewDate   time.Time `json:"next_review_date"` // zero until the first attempt
	WeakConcepts     []string  `json:"weak_concepts"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// NewTopicMastery returns the default record for an untried topic
func NewTopicMastery(userID, topicID int64, now time.Time) TopicMastery {
	return TopicMastery{
		UserID:       userID,
		TopicID:      topicID,
		MasteryScore: 0,
		Accuracy:     NeutralAccuracy,
		EaseFactor:   DefaultEaseFactor,
		WeakConcepts: []string{},
		UpdatedAt:    now,
	}
}

// Scheduled reports whether the record has a review date
func (m *TopicMastery) Scheduled() bool {
	return !m.NextReviewDate.IsZero()
}

// SetWeakConcepts stores the set sorted and without duplicates
func (m *TopicMastery) SetWeakConcepts(concepts map[string]struct{}) {
	out := make([]string, 0, len(concepts))
	for c := range concepts {
		out = append(out, c)
	}
	sort.Strings(out)
	m.WeakConcepts = out
}

// Difficulty of generated practice material
type Difficulty string

const (
	DifficultyEasy   Difficulty = "Easy"
	DifficultyMedium Difficulty = "Medium"
	DifficultyHard   Difficulty = "Hard"
)
