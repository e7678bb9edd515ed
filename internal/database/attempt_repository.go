package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/oklog/ulid/v2"

	"github.com/example/mindmentor/pkg/models"
)

// AttemptRepository handles database operations for graded attempts
type AttemptRepository struct {
	db *sqlx.DB
}

// NewAttemptRepository creates a new repository instance
func NewAttemptRepository(db *sqlx.DB) *AttemptRepository {
	return &AttemptRepository{db: db}
}

type attemptRow struct {
	ID               string    `db:"id"`
	UserID           int64     `db:"user_id"`
	TopicID          int64     `db:"topic_id"`
	Kind             string    `db:"kind"`
	Total            int       `db:"total"`
	Correct          int       `db:"correct"`
	ResponseSeconds  float64   `db:"response_seconds"`
	WeakConcepts     string    `db:"weak_concepts"`
	MasteredConcepts string    `db:"mastered_concepts"`
	TakenAt          time.Time `db:"taken_at"`
}

// Create inserts a new attempt, assigning an id and timestamp when missing
func (r *AttemptRepository) Create(ctx context.Context, a *models.Attempt) error {
	if a.ID == "" {
		a.ID = ulid.Make().String()
	}
	if a.TakenAt.IsZero() {
		a.TakenAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO quiz_attempts (id, user_id, topic_id, kind, total, correct,
			response_seconds, weak_concepts, mastered_concepts, taken_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		a.ID, a.UserID, a.TopicID, a.Kind, a.Total, a.Correct,
		a.ResponseSeconds, encodeList(a.WeakConcepts), encodeList(a.MasteredConcepts), a.TakenAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to create attempt: %v", err)
	}
	return nil
}

// ListByUser returns a user's most recent attempts first
func (r *AttemptRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]models.Attempt, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []attemptRow
	err := r.db.SelectContext(ctx, &rows, r.db.Rebind(`
		SELECT id, user_id, topic_id, kind, total, correct, response_seconds,
			weak_concepts, mastered_concepts, taken_at
		FROM quiz_attempts WHERE user_id = ?
		ORDER BY taken_at DESC, id DESC LIMIT ?`), userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get attempts: %v", err)
	}
	out := make([]models.Attempt, 0, len(rows))
	for _, row := range rows {
		weak, err := decodeList[string](row.WeakConcepts)
		if err != nil {
			return nil, fmt.Errorf("bad weak concepts in attempt %s: %v", row.ID, err)
		}
		mastered, err := decodeList[string](row.MasteredConcepts)
		if err != nil {
			return nil, fmt.Errorf("bad mastered concepts in attempt %s: %v", row.ID, err)
		}
		out = append(out, models.Attempt{
			ID:               row.ID,
			UserID:           row.UserID,
			TopicID:          row.TopicID,
			Kind:             row.Kind,
			Total:            row.Total,
			Correct:          row.Correct,
			ResponseSeconds:  row.ResponseSeconds,
			WeakConcepts:     weak,
			MasteredConcepts: mastered,
			TakenAt:          row.TakenAt.UTC(),
		})
	}
	return out, nil
}

// AttemptSummary aggregates attempts over a period
type AttemptSummary struct {
	Attempts    int     `db:"attempts" json:"attempts"`
	Questions   int     `db:"questions" json:"questions"`
	Correct     int     `db:"correct" json:"correct"`
	AvgAccuracy float64 `db:"-" json:"avg_accuracy"`
}

// SummaryByPeriod returns attempt statistics for a user within a time period
func (r *AttemptRepository) SummaryByPeriod(ctx context.Context, userID int64, from, to time.Time) (*AttemptSummary, error) {
	var s AttemptSummary
	err := r.db.GetContext(ctx, &s, r.db.Rebind(`
		SELECT COUNT(*) AS attempts,
			COALESCE(SUM(total), 0) AS questions,
			COALESCE(SUM(correct), 0) AS correct
		FROM quiz_attempts
		WHERE user_id = ? AND taken_at >= ? AND taken_at < ?`), userID, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to summarise attempts: %v", err)
	}
	if s.Questions > 0 {
		s.AvgAccuracy = float64(s.Correct) / float64(s.Questions)
	}
	return &s, nil
}

// StudyDays returns the distinct UTC days with at least one attempt, newest first
func (r *AttemptRepository) StudyDays(ctx context.Context, userID int64) ([]time.Time, error) {
	var taken []time.Time
	err := r.db.SelectContext(ctx, &taken, r.db.Rebind(
		"SELECT taken_at FROM quiz_attempts WHERE user_id = ? ORDER BY taken_at DESC"), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get study days: %v", err)
	}
	var days []time.Time
	for _, at := range taken {
		d := models.Day(at.UTC())
		if len(days) == 0 || !days[len(days)-1].Equal(d) {
			days = append(days, d)
		}
	}
	return days, nil
}
