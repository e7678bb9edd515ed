package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/example/mindmentor/internal/mastery"
	"github.com/example/mindmentor/pkg/models"
)

// MasteryRepository stores topic mastery and review logs
type MasteryRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewMasteryRepository creates a new repository instance
func NewMasteryRepository(db *sqlx.DB) *MasteryRepository {
	return &MasteryRepository{db: db, now: time.Now}
}

var _ mastery.Store = (*MasteryRepository)(nil)

type masteryRow struct {
	UserID           int64        `db:"user_id"`
	TopicID          int64        `db:"topic_id"`
	MasteryScore     float64      `db:"mastery_score"`
	Accuracy         float64      `db:"accuracy"`
	AvgResponseTime  float64      `db:"avg_response_time"`
	TotalAttempts    int          `db:"total_attempts"`
	CorrectAttempts  int          `db:"correct_attempts"`
	RevisionCount    int          `db:"revision_count"`
	LastAttemptDate  sql.NullTime `db:"last_attempt_date"`
	EaseFactor       float64      `db:"ease_factor"`
	IntervalDays     int          `db:"interval_days"`
	RepetitionNumber int          `db:"repetition_number"`
	NextReviewDate   sql.NullTime `db:"next_review_date"`
	WeakConcepts     string       `db:"weak_concepts"`
	UpdatedAt        time.Time    `db:"updated_at"`
}

func (r masteryRow) record() (*models.TopicMastery, error) {
	weak, err := decodeList[string](r.WeakConcepts)
	if err != nil {
		return nil, fmt.Errorf("bad weak concepts for user %d topic %d: %v", r.UserID, r.TopicID, err)
	}
	return &models.TopicMastery{
		UserID:           r.UserID,
		TopicID:          r.TopicID,
		MasteryScore:     r.MasteryScore,
		Accuracy:         r.Accuracy,
		AvgResponseTime:  r.AvgResponseTime,
		TotalAttempts:    r.TotalAttempts,
		CorrectAttempts:  r.CorrectAttempts,
		RevisionCount:    r.RevisionCount,
		LastAttemptDate:  fromNullTime(r.LastAttemptDate),
		EaseFactor:       r.EaseFactor,
		IntervalDays:     r.IntervalDays,
		RepetitionNumber: r.RepetitionNumber,
		NextReviewDate:   fromNullTime(r.NextReviewDate),
		WeakConcepts:     weak,
		UpdatedAt:        r.UpdatedAt.UTC(),
	}, nil
}

const masteryColumns = `user_id, topic_id, mastery_score, accuracy, avg_response_time,
	total_attempts, correct_attempts, revision_count, last_attempt_date, ease_factor,
	interval_days, repetition_number, next_review_date, weak_concepts, updated_at`

// Find returns progress for a specific user and topic, nil when absent
func (r *MasteryRepository) Find(ctx context.Context, userID, topicID int64) (*models.TopicMastery, error) {
	return r.find(ctx, r.db, userID, topicID, false)
}

// ListByUser returns all progress records of a user
func (r *MasteryRepository) ListByUser(ctx context.Context, userID int64) ([]models.TopicMastery, error) {
	var rows []masteryRow
	err := r.db.SelectContext(ctx, &rows, r.db.Rebind(
		"SELECT "+masteryColumns+" FROM topic_mastery WHERE user_id = ? ORDER BY topic_id"), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list mastery: %v", err)
	}
	out := make([]models.TopicMastery, 0, len(rows))
	for _, row := range rows {
		rec, err := row.record()
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, nil
}

// Update applies fn to the record inside a transaction, creating it first if needed
func (r *MasteryRepository) Update(ctx context.Context, userID, topicID int64, fn mastery.MutateFunc) (*models.TopicMastery, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback()

	rec, err := r.mutate(ctx, tx, userID, topicID, fn)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %v", err)
	}
	return rec, nil
}

// RecordReview applies fn and writes the review log in one transaction
func (r *MasteryRepository) RecordReview(ctx context.Context, entry *models.ReviewLog, fn mastery.MutateFunc) (*models.TopicMastery, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback()

	var seen int
	err = tx.GetContext(ctx, &seen, tx.Rebind("SELECT COUNT(*) FROM review_logs WHERE idempotency_key = ?"), entry.IdempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("failed to check review log: %v", err)
	}
	if seen > 0 {
		return r.duplicate(ctx, tx, entry)
	}

	rec, err := r.mutate(ctx, tx, entry.UserID, entry.TopicID, fn)
	if err != nil {
		return nil, err
	}
	entry.IntervalDays = rec.IntervalDays
	entry.EaseFactor = rec.EaseFactor
	_, err = tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO review_logs (id, idempotency_key, user_id, topic_id, quality, interval_days, ease_factor, reviewed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		entry.ID, entry.IdempotencyKey, entry.UserID, entry.TopicID, entry.Quality,
		entry.IntervalDays, entry.EaseFactor, entry.ReviewedAt.UTC())
	if isUniqueViolation(err) {
		// A concurrent request with the same key won the race
		tx.Rollback()
		return r.duplicate(ctx, r.db, entry)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to insert review log: %v", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %v", err)
	}
	return rec, nil
}

// ListReviews returns a user's review history for a topic, oldest first
func (r *MasteryRepository) ListReviews(ctx context.Context, userID, topicID int64) ([]models.ReviewLog, error) {
	var logs []struct {
		ID             string    `db:"id"`
		IdempotencyKey string    `db:"idempotency_key"`
		UserID         int64     `db:"user_id"`
		TopicID        int64     `db:"topic_id"`
		Quality        int       `db:"quality"`
		IntervalDays   int       `db:"interval_days"`
		EaseFactor     float64   `db:"ease_factor"`
		ReviewedAt     time.Time `db:"reviewed_at"`
	}
	err := r.db.SelectContext(ctx, &logs, r.db.Rebind(`
		SELECT id, idempotency_key, user_id, topic_id, quality, interval_days, ease_factor, reviewed_at
		FROM review_logs WHERE user_id = ? AND topic_id = ? ORDER BY reviewed_at, id`), userID, topicID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %v", err)
	}
	out := make([]models.ReviewLog, len(logs))
	for i, l := range logs {
		out[i] = models.ReviewLog(l)
		out[i].ReviewedAt = l.ReviewedAt.UTC()
	}
	return out, nil
}

func (r *MasteryRepository) duplicate(ctx context.Context, q sqlx.QueryerContext, entry *models.ReviewLog) (*models.TopicMastery, error) {
	var owner struct {
		UserID  int64 `db:"user_id"`
		TopicID int64 `db:"topic_id"`
	}
	err := sqlx.GetContext(ctx, q, &owner, r.db.Rebind(
		"SELECT user_id, topic_id FROM review_logs WHERE idempotency_key = ?"), entry.IdempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load review log: %v", err)
	}
	if owner.UserID != entry.UserID || owner.TopicID != entry.TopicID {
		return nil, fmt.Errorf("%w: review key %s belongs to user %d topic %d",
			models.ErrKeyConflict, entry.IdempotencyKey, owner.UserID, owner.TopicID)
	}
	rec, err := r.find(ctx, q, entry.UserID, entry.TopicID, false)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: review %s has no mastery record", models.ErrNotFound, entry.IdempotencyKey)
	}
	return rec, models.ErrDuplicateReview
}

func (r *MasteryRepository) mutate(ctx context.Context, tx *sqlx.Tx, userID, topicID int64, fn mastery.MutateFunc) (*models.TopicMastery, error) {
	rec, err := r.find(ctx, tx, userID, topicID, isPostgres(tx))
	if err != nil {
		return nil, err
	}
	if rec == nil {
		fresh := models.NewTopicMastery(userID, topicID, r.now().UTC())
		rec = &fresh
	}
	if fn != nil {
		if err := fn(rec); err != nil {
			return nil, err
		}
	}
	if err := r.upsert(ctx, tx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *MasteryRepository) find(ctx context.Context, q sqlx.QueryerContext, userID, topicID int64, lock bool) (*models.TopicMastery, error) {
	query := "SELECT " + masteryColumns + " FROM topic_mastery WHERE user_id = ? AND topic_id = ?"
	if lock {
		query += " FOR UPDATE"
	}
	var row masteryRow
	err := sqlx.GetContext(ctx, q, &row, sqlx.Rebind(sqlx.BindType(r.db.DriverName()), query), userID, topicID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get mastery: %v", err)
	}
	return row.record()
}

func (r *MasteryRepository) upsert(ctx context.Context, tx *sqlx.Tx, m *models.TopicMastery) error {
	_, err := tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO topic_mastery (`+masteryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, topic_id) DO UPDATE SET
			mastery_score = excluded.mastery_score,
			accuracy = excluded.accuracy,
			avg_response_time = excluded.avg_response_time,
			total_attempts = excluded.total_attempts,
			correct_attempts = excluded.correct_attempts,
			revision_count = excluded.revision_count,
			last_attempt_date = excluded.last_attempt_date,
			ease_factor = excluded.ease_factor,
			interval_days = excluded.interval_days,
			repetition_number = excluded.repetition_number,
			next_review_date = excluded.next_review_date,
			weak_concepts = excluded.weak_concepts,
			updated_at = excluded.updated_at`),
		m.UserID, m.TopicID, m.MasteryScore, m.Accuracy, m.AvgResponseTime,
		m.TotalAttempts, m.CorrectAttempts, m.RevisionCount, nullTime(m.LastAttemptDate), m.EaseFactor,
		m.IntervalDays, m.RepetitionNumber, nullTime(m.NextReviewDate), encodeList(m.WeakConcepts), m.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save mastery: %v", err)
	}
	return nil
}
