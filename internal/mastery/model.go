package mastery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/example/mindmentor/internal/spaced_repetition"
	"github.com/example/mindmentor/pkg/models"
)

const (
	// MinSmoothing keeps late attempts from becoming irrelevant
	MinSmoothing = 0.15

	hardMastery, hardAccuracy     = 0.8, 0.8
	mediumMastery, mediumAccuracy = 0.5, 0.6
)

// Model owns per-(user, topic) competency and review state
type Model struct {
	store  Store
	sm2    *spaced_repetition.SM2
	logger *slog.Logger
	now    func() time.Time
}

// NewModel creates a mastery model. A nil engine uses classic SM-2.
func NewModel(store Store, sm2 *spaced_repetition.SM2, logger *slog.Logger) *Model {
	if sm2 == nil {
		sm2 = spaced_repetition.NewSM2()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Model{store: store, sm2: sm2, logger: logger, now: time.Now}
}

// Find returns the record or nil when the user never touched the topic.
// It never creates anything.
func (m *Model) Find(ctx context.Context, userID, topicID int64) (*models.TopicMastery, error) {
	return m.store.Find(ctx, userID, topicID)
}

// GetOrCreate returns the record, persisting the default one
// (mastery 0, neutral accuracy 0.5) when none exists
func (m *Model) GetOrCreate(ctx context.Context, userID, topicID int64) (*models.TopicMastery, error) {
	rec, err := m.store.Find(ctx, userID, topicID)
	if err != nil || rec != nil {
		return rec, err
	}
	return m.store.Update(ctx, userID, topicID, nil)
}

// List returns all records of a user ordered by topic id
func (m *Model) List(ctx context.Context, userID int64) ([]models.TopicMastery, error) {
	return m.store.ListByUser(ctx, userID)
}

// Update folds a graded attempt into the record
func (m *Model) Update(ctx context.Context, a models.Attempt) (*models.TopicMastery, error) {
	if err := validateAttempt(a); err != nil {
		return nil, err
	}
	now := m.now()
	if !a.TakenAt.IsZero() {
		now = a.TakenAt
	}

	rec, err := m.store.Update(ctx, a.UserID, a.TopicID, func(rec *models.TopicMastery) error {
		ApplyAttempt(rec, a, now)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update mastery: %w", err)
	}
	m.logger.Debug("mastery updated", "user_id", a.UserID, "topic_id", a.TopicID,
		"mastery", rec.MasteryScore, "accuracy", rec.Accuracy)
	return rec, nil
}

func validateAttempt(a models.Attempt) error {
	if a.Total <= 0 || a.Correct < 0 || a.Correct > a.Total {
		return fmt.Errorf("%w: attempt with %d of %d correct", models.ErrValidation, a.Correct, a.Total)
	}
	if a.ResponseSeconds < 0 {
		return fmt.Errorf("%w: negative response time", models.ErrValidation)
	}
	return nil
}

// ApplyAttempt is the pure record update behind Update
func ApplyAttempt(rec *models.TopicMastery, a models.Attempt, now time.Time) {
	acc := a.Accuracy()
	alpha := Smoothing(rec.RevisionCount)
	rec.MasteryScore = clamp01(rec.MasteryScore + alpha*(acc-rec.MasteryScore))

	prev := rec.TotalAttempts
	rec.TotalAttempts += a.Total
	rec.CorrectAttempts += a.Correct
	rec.Accuracy = float64(rec.CorrectAttempts) / float64(rec.TotalAttempts)
	rec.AvgResponseTime = (rec.AvgResponseTime*float64(prev) + a.ResponseSeconds*float64(a.Total)) / float64(rec.TotalAttempts)

	weak := make(map[string]struct{}, len(rec.WeakConcepts)+len(a.WeakConcepts))
	for _, c := range rec.WeakConcepts {
		weak[c] = struct{}{}
	}
	for _, c := range a.WeakConcepts {
		weak[c] = struct{}{}
	}
	for _, c := range a.MasteredConcepts {
		delete(weak, c)
	}
	rec.SetWeakConcepts(weak)

	touch(rec, now)
}

// Smoothing is the weight of new evidence after n revisions
func Smoothing(revisions int) float64 {
	return math.Max(MinSmoothing, 1/float64(revisions+2))
}

// RecordLesson notes a completed lesson. It creates the record, so the
// topic stops counting as new.
func (m *Model) RecordLesson(ctx context.Context, userID, topicID int64) (*models.TopicMastery, error) {
	now := m.now()
	rec, err := m.store.Update(ctx, userID, topicID, func(rec *models.TopicMastery) error {
		touch(rec, now)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record lesson: %w", err)
	}
	return rec, nil
}

// touch counts a revision and schedules the first review for tomorrow
func touch(rec *models.TopicMastery, now time.Time) {
	rec.RevisionCount++
	rec.LastAttemptDate = now
	if !rec.Scheduled() {
		rec.NextReviewDate = models.Day(now).AddDate(0, 0, 1)
	}
	rec.UpdatedAt = now
}

// ReviewOutcome is the result of a graded review
type ReviewOutcome struct {
	Record         *models.TopicMastery `json:"record"`
	IdempotencyKey string               `json:"idempotency_key"`
	// Duplicate is set when the key was seen before and nothing changed
	Duplicate bool `json:"duplicate"`
}

// Review advances the SM-2 state exactly once per idempotency key.
// An empty key gets a fresh one. A key already used for another
// (user, topic) is ErrKeyConflict.
func (m *Model) Review(ctx context.Context, userID, topicID int64, quality int, key string) (*ReviewOutcome, error) {
	return m.review(ctx, userID, topicID, quality, key, nil)
}

// ReviewAttempt folds a graded attempt into the record and advances SM-2
// in one store write, keyed like Review. A repeated key changes nothing.
func (m *Model) ReviewAttempt(ctx context.Context, a models.Attempt, quality int, key string) (*ReviewOutcome, error) {
	if err := validateAttempt(a); err != nil {
		return nil, err
	}
	takenAt := a.TakenAt
	if takenAt.IsZero() {
		takenAt = m.now()
	}
	return m.review(ctx, a.UserID, a.TopicID, quality, key, func(rec *models.TopicMastery) {
		ApplyAttempt(rec, a, takenAt)
	})
}

func (m *Model) review(ctx context.Context, userID, topicID int64, quality int, key string, before func(*models.TopicMastery)) (*ReviewOutcome, error) {
	q := spaced_repetition.QualityResponse(quality)
	if !q.Valid() {
		return nil, fmt.Errorf("%w: quality %d outside 0..5", models.ErrValidation, quality)
	}
	now := m.now()
	if key == "" {
		key = ulid.Make().String()
	}
	entry := &models.ReviewLog{
		ID:             ulid.Make().String(),
		IdempotencyKey: key,
		UserID:         userID,
		TopicID:        topicID,
		Quality:        quality,
		ReviewedAt:     now,
	}

	rec, err := m.store.RecordReview(ctx, entry, func(rec *models.TopicMastery) error {
		if before != nil {
			before(rec)
		}
		next, err := m.sm2.Advance(spaced_repetition.StateOf(rec), q, now)
		if err != nil {
			return err
		}
		next.Apply(rec)
		rec.UpdatedAt = now
		return nil
	})
	if errors.Is(err, models.ErrDuplicateReview) {
		m.logger.Info("review already recorded", "user_id", userID, "topic_id", topicID, "key", key)
		return &ReviewOutcome{Record: rec, IdempotencyKey: key, Duplicate: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to record review: %w", err)
	}
	return &ReviewOutcome{Record: rec, IdempotencyKey: key}, nil
}

// DifficultyFor picks practice difficulty. Untried topics get Medium.
func (m *Model) DifficultyFor(ctx context.Context, userID, topicID int64) (models.Difficulty, error) {
	rec, err := m.store.Find(ctx, userID, topicID)
	if err != nil {
		return "", err
	}
	if rec == nil {
		return models.DifficultyMedium, nil
	}
	return DifficultyOf(rec), nil
}

// DifficultyOf applies the mastery/accuracy thresholds
func DifficultyOf(rec *models.TopicMastery) models.Difficulty {
	switch {
	case rec.MasteryScore >= hardMastery && rec.Accuracy >= hardAccuracy:
		return models.DifficultyHard
	case rec.MasteryScore >= mediumMastery && rec.Accuracy >= mediumAccuracy:
		return models.DifficultyMedium
	default:
		return models.DifficultyEasy
	}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
