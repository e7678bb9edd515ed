package scheduler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/example/mindmentor/pkg/models"
)

// Default block lengths in minutes
const (
	RevisionMinutes = 30
	PracticeMinutes = 45
	LearnMinutes    = 60

	// WeakMastery is the score below which a topic needs practice
	WeakMastery = 0.6
)

// TopicLister returns catalog topics, all subjects for an empty filter
type TopicLister interface {
	List(ctx context.Context, subjects []string) ([]models.Topic, error)
}

// MasteryLister returns a user's mastery records
type MasteryLister interface {
	List(ctx context.Context, userID int64) ([]models.TopicMastery, error)
}

// Request describes a plan to build
type Request struct {
	UserID       int64     `json:"user_id"`
	StartDate    time.Time `json:"start_date"`
	NumDays      int       `json:"num_days"`
	DailyMinutes int       `json:"daily_minutes"`
	Subjects     []string  `json:"subjects,omitempty"`
}

// Builder assembles multi-day study plans under a daily time budget
type Builder struct {
	topics  TopicLister
	mastery MasteryLister

	RevisionMinutes int
	PracticeMinutes int
	LearnMinutes    int
	WeakMastery     float64
}

// NewBuilder creates a builder with the default block lengths
func NewBuilder(topics TopicLister, mastery MasteryLister) *Builder {
	return &Builder{
		topics:          topics,
		mastery:         mastery,
		RevisionMinutes: RevisionMinutes,
		PracticeMinutes: PracticeMinutes,
		LearnMinutes:    LearnMinutes,
		WeakMastery:     WeakMastery,
	}
}

type candidate struct {
	topic    models.Topic
	activity models.ActivityType
	minutes  int
	priority float64
}

// Generate returns one ScheduleDay per date starting at req.StartDate.
// A topic is placed at most once per run and no day exceeds the budget.
// The result only depends on the inputs, ties are broken by topic id.
func (b *Builder) Generate(ctx context.Context, req Request) ([]models.ScheduleDay, error) {
	if req.NumDays <= 0 {
		return nil, fmt.Errorf("%w: number of days must be positive", models.ErrValidation)
	}
	if req.DailyMinutes < 0 {
		return nil, fmt.Errorf("%w: daily minutes must not be negative", models.ErrValidation)
	}

	topics, err := b.topics.List(ctx, req.Subjects)
	if err != nil {
		return nil, fmt.Errorf("failed to load topics: %w", err)
	}
	records, err := b.mastery.List(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load mastery: %w", err)
	}
	byTopic := make(map[int64]models.TopicMastery, len(records))
	for _, rec := range records {
		byTopic[rec.TopicID] = rec
	}

	start := models.Day(req.StartDate)
	placed := make(map[int64]bool)
	days := make([]models.ScheduleDay, 0, req.NumDays)

	for i := 0; i < req.NumDays; i++ {
		date := start.AddDate(0, 0, i)
		day := models.ScheduleDay{UserID: req.UserID, Date: date, Items: []models.ScheduleItem{}}
		remaining := req.DailyMinutes

		for _, c := range b.candidates(date, topics, byTopic, placed) {
			if c.minutes > remaining {
				// Stays eligible for later days
				continue
			}
			remaining -= c.minutes
			placed[c.topic.ID] = true
			day.Items = append(day.Items, models.ScheduleItem{
				TopicID:         c.topic.ID,
				TopicName:       c.topic.Name,
				Subject:         c.topic.Subject,
				ActivityType:    c.activity,
				DurationMinutes: c.minutes,
				Priority:        c.priority,
			})
		}
		days = append(days, day)
	}
	return days, nil
}

// candidates lists the day's pool in priority order: due revisions, weak
// topics, then untried topics. Each topic appears at most once.
func (b *Builder) candidates(date time.Time, topics []models.Topic, records map[int64]models.TopicMastery, placed map[int64]bool) []candidate {
	var revise, practice, learn []candidate
	for _, t := range topics {
		if placed[t.ID] {
			continue
		}
		rec, ok := records[t.ID]
		switch {
		case !ok:
			learn = append(learn, candidate{t, models.ActivityLearn, b.LearnMinutes, t.ExamWeight})
		case rec.Scheduled() && !models.Day(rec.NextReviewDate).After(date):
			revise = append(revise, candidate{t, models.ActivityRevise, b.RevisionMinutes, t.ExamWeight})
		case rec.MasteryScore < b.WeakMastery:
			practice = append(practice, candidate{t, models.ActivityPractice, b.PracticeMinutes, (1 - rec.MasteryScore) * t.ExamWeight})
		}
	}
	byPriority(revise)
	byPriority(practice)
	byPriority(learn)

	out := make([]candidate, 0, len(revise)+len(practice)+len(learn))
	out = append(out, revise...)
	out = append(out, practice...)
	return append(out, learn...)
}

func byPriority(cs []candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].priority != cs[j].priority {
			return cs[i].priority > cs[j].priority
		}
		return cs[i].topic.ID < cs[j].topic.ID
	})
}
