package mastery

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/example/mindmentor/pkg/models"
)

// MutateFunc changes a record in place. Returning an error aborts the write.
type MutateFunc func(rec *models.TopicMastery) error

// Store persists mastery records. Update and RecordReview must apply the
// mutation and the write atomically per (user, topic).
type Store interface {
	// Find returns nil without error when no record exists
	Find(ctx context.Context, userID, topicID int64) (*models.TopicMastery, error)
	ListByUser(ctx context.Context, userID int64) ([]models.TopicMastery, error)
	// Update loads the record, creating the default one if missing, applies fn and saves it
	Update(ctx context.Context, userID, topicID int64, fn MutateFunc) (*models.TopicMastery, error)
	// RecordReview is Update plus an insert of the review log in the same
	// transaction. A known idempotency key returns the stored record and
	// ErrDuplicateReview without calling fn.
	RecordReview(ctx context.Context, log *models.ReviewLog, fn MutateFunc) (*models.TopicMastery, error)
}

type recordKey struct {
	userID, topicID int64
}

// MemoryStore is a Store backed by maps
type MemoryStore struct {
	mu      sync.Mutex
	records map[recordKey]models.TopicMastery
	reviews map[string]models.ReviewLog
	now     func() time.Time
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[recordKey]models.TopicMastery),
		reviews: make(map[string]models.ReviewLog),
		now:     time.Now,
	}
}

func (s *MemoryStore) Find(ctx context.Context, userID, topicID int64) (*models.TopicMastery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[recordKey{userID, topicID}]
	if !ok {
		return nil, nil
	}
	return cloneRecord(rec), nil
}

func (s *MemoryStore) ListByUser(ctx context.Context, userID int64) ([]models.TopicMastery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.TopicMastery
	for k, rec := range s.records {
		if k.userID == userID {
			out = append(out, *cloneRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TopicID < out[j].TopicID })
	return out, nil
}

func (s *MemoryStore) Update(ctx context.Context, userID, topicID int64, fn MutateFunc) (*models.TopicMastery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apply(userID, topicID, fn)
}

func (s *MemoryStore) RecordReview(ctx context.Context, log *models.ReviewLog, fn MutateFunc) (*models.TopicMastery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.reviews[log.IdempotencyKey]; ok {
		if prev.UserID != log.UserID || prev.TopicID != log.TopicID {
			return nil, fmt.Errorf("%w: review key %s belongs to user %d topic %d",
				models.ErrKeyConflict, log.IdempotencyKey, prev.UserID, prev.TopicID)
		}
		rec, found := s.records[recordKey{log.UserID, log.TopicID}]
		if !found {
			return nil, fmt.Errorf("%w: review %s has no mastery record", models.ErrNotFound, log.IdempotencyKey)
		}
		return cloneRecord(rec), models.ErrDuplicateReview
	}
	rec, err := s.apply(log.UserID, log.TopicID, fn)
	if err != nil {
		return nil, err
	}
	log.IntervalDays = rec.IntervalDays
	log.EaseFactor = rec.EaseFactor
	s.reviews[log.IdempotencyKey] = *log
	return rec, nil
}

// apply runs fn on a copy so a failed mutation leaves the map untouched
func (s *MemoryStore) apply(userID, topicID int64, fn MutateFunc) (*models.TopicMastery, error) {
	k := recordKey{userID, topicID}
	rec, ok := s.records[k]
	if !ok {
		rec = models.NewTopicMastery(userID, topicID, s.now())
	}
	work := cloneRecord(rec)
	if fn != nil {
		if err := fn(work); err != nil {
			return nil, err
		}
	}
	s.records[k] = *cloneRecord(*work)
	return work, nil
}

func cloneRecord(rec models.TopicMastery) *models.TopicMastery {
	rec.WeakConcepts = append([]string{}, rec.WeakConcepts...)
	return &rec
}
