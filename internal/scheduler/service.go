package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/mindmentor/internal/mastery"
	"github.com/example/mindmentor/pkg/models"
)

// DayStore persists generated plans
type DayStore interface {
	SaveDay(ctx context.Context, day models.ScheduleDay) error
	// GetDay returns nil without error for a date that was never planned
	GetDay(ctx context.Context, userID int64, date time.Time) (*models.ScheduleDay, error)
	ListDays(ctx context.Context, userID int64, from, to time.Time) ([]models.ScheduleDay, error)
	// SetCompleted returns ErrNotFound when the day or the item is missing
	SetCompleted(ctx context.Context, userID int64, date time.Time, topicID int64, completed bool) (*models.ScheduleItem, error)
}

// Catalog resolves topics by id and lists them by subject
type Catalog interface {
	TopicLister
	Get(ctx context.Context, id int64) (*models.Topic, error)
}

// Service builds, stores and tracks study plans
type Service struct {
	builder *Builder
	catalog Catalog
	days    DayStore
	mastery *mastery.Model
	logger  *slog.Logger
}

// NewService wires the plan builder to storage and the mastery model
func NewService(catalog Catalog, days DayStore, model *mastery.Model, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		builder: NewBuilder(catalog, model),
		catalog: catalog,
		days:    days,
		mastery: model,
		logger:  logger,
	}
}

// Builder exposes the plan builder for tuning block lengths
func (s *Service) Builder() *Builder {
	return s.builder
}

// Regenerate rebuilds and stores the plan for every requested date.
// Items that survive keep their completed flag.
func (s *Service) Regenerate(ctx context.Context, req Request) ([]models.ScheduleDay, error) {
	days, err := s.builder.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	for i := range days {
		prev, err := s.days.GetDay(ctx, req.UserID, days[i].Date)
		if err != nil {
			return nil, fmt.Errorf("failed to load previous plan: %w", err)
		}
		if prev != nil {
			carryCompleted(prev, &days[i])
		}
		if err := s.days.SaveDay(ctx, days[i]); err != nil {
			return nil, fmt.Errorf("failed to save plan: %w", err)
		}
	}
	s.logger.Info("schedule regenerated", "user_id", req.UserID,
		"start", models.Day(req.StartDate).Format(models.DateLayout), "days", len(days))
	return days, nil
}

func carryCompleted(prev *models.ScheduleDay, next *models.ScheduleDay) {
	done := make(map[int64]models.ActivityType)
	for _, it := range prev.Items {
		if it.Completed {
			done[it.TopicID] = it.ActivityType
		}
	}
	for i, it := range next.Items {
		if act, ok := done[it.TopicID]; ok && act == it.ActivityType {
			next.Items[i].Completed = true
		}
	}
}

// Day returns the stored plan for a date, nil when none was generated
func (s *Service) Day(ctx context.Context, userID int64, date time.Time) (*models.ScheduleDay, error) {
	return s.days.GetDay(ctx, userID, date)
}

// Days returns the stored plans in [from, to]
func (s *Service) Days(ctx context.Context, userID int64, from, to time.Time) ([]models.ScheduleDay, error) {
	return s.days.ListDays(ctx, userID, from, to)
}

// MarkCompleted flags a scheduled item done. Finishing a Learn block
// records the lesson, which moves the topic out of the new pool.
func (s *Service) MarkCompleted(ctx context.Context, userID int64, date time.Time, topicID int64) (*models.ScheduleItem, error) {
	item, err := s.days.SetCompleted(ctx, userID, date, topicID, true)
	if err != nil {
		return nil, err
	}
	if item.ActivityType == models.ActivityLearn {
		if _, err := s.mastery.RecordLesson(ctx, userID, topicID); err != nil {
			return nil, err
		}
	}
	s.logger.Info("schedule item completed", "user_id", userID, "topic_id", topicID, "activity", item.ActivityType)
	return item, nil
}

// RecordReviewQuality feeds a 0..5 rating into the SM-2 state of a topic,
// once per idempotency key
func (s *Service) RecordReviewQuality(ctx context.Context, userID, topicID int64, quality int, idempotencyKey string) (*mastery.ReviewOutcome, error) {
	if _, err := s.catalog.Get(ctx, topicID); err != nil {
		return nil, err
	}
	return s.mastery.Review(ctx, userID, topicID, quality, idempotencyKey)
}

// Stats summarises adherence over a date range
type Stats struct {
	Days             int     `json:"days"`
	CompletedDays    int     `json:"completed_days"`
	AvgCompletion    float64 `json:"avg_completion"`
	ItemsScheduled   int     `json:"items_scheduled"`
	ItemsCompleted   int     `json:"items_completed"`
	MinutesPlanned   int     `json:"minutes_planned"`
	MinutesCompleted int     `json:"minutes_completed"`
}

// Stats reports plan completion between from and to inclusive
func (s *Service) Stats(ctx context.Context, userID int64, from, to time.Time) (*Stats, error) {
	days, err := s.days.ListDays(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}
	st := &Stats{Days: len(days)}
	var sum float64
	for i := range days {
		d := &days[i]
		pct := d.CompletionPercentage()
		sum += pct
		if len(d.Items) > 0 && pct == 100 {
			st.CompletedDays++
		}
		st.ItemsScheduled += len(d.Items)
		st.MinutesPlanned += d.TotalMinutes()
		for _, it := range d.Items {
			if it.Completed {
				st.ItemsCompleted++
				st.MinutesCompleted += it.DurationMinutes
			}
		}
	}
	if st.Days > 0 {
		st.AvgCompletion = sum / float64(st.Days)
	}
	return st, nil
}
