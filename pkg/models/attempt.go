package models

import "time"

// Attempt is one graded interaction with a topic (quiz, practice set)
type Attempt struct {
	ID               string    `json:"id"`
	UserID           int64     `json:"user_id"`
	TopicID          int64     `json:"topic_id"`
	Kind             string    `json:"kind"` // e.g. "mcq", "numeric", "descriptive"
	Total            int       `json:"total"`
	Correct          int       `json:"correct"`
	ResponseSeconds  float64   `json:"response_seconds"` // average per question
	WeakConcepts     []string  `json:"weak_concepts"`
	MasteredConcepts []string  `json:"mastered_concepts"`
	TakenAt          time.Time `json:"taken_at"`
}

// Accuracy is the share answered correctly
func (a *Attempt) Accuracy() float64 {
	if a.Total <= 0 {
		return 0
	}
	return float64(a.Correct) / float64(a.Total)
}
