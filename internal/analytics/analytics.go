// Package analytics summarises a learner's progress: overview counters,
// per-subject breakdown, weak and strong topics, study streak, mastery
// distribution and what to study next.
package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/example/mindmentor/pkg/models"
)

// Mastery bands
const (
	learningThreshold = 0.3
	StrongThreshold   = 0.6
	masteredThreshold = 0.8

	// RecommendThreshold marks started topics worth revisiting
	RecommendThreshold = 0.5

	DefaultTopicLimit          = 10
	DefaultRecommendationLimit = 5
)

type MasteryLister interface {
	List(ctx context.Context, userID int64) ([]models.TopicMastery, error)
}

type TopicLister interface {
	List(ctx context.Context, subjects []string) ([]models.Topic, error)
}

// StudyDaySource returns distinct study days, newest first
type StudyDaySource interface {
	StudyDays(ctx context.Context, userID int64) ([]time.Time, error)
}

// Level is a mastery band
type Level string

const (
	LevelBeginner   Level = "beginner"
	LevelLearning   Level = "learning"
	LevelProficient Level = "proficient"
	LevelMastered   Level = "mastered"
)

// LevelOf maps a mastery score onto its band
func LevelOf(score float64) Level {
	switch {
	case score >= masteredThreshold:
		return LevelMastered
	case score >= StrongThreshold:
		return LevelProficient
	case score >= learningThreshold:
		return LevelLearning
	default:
		return LevelBeginner
	}
}

type Overview struct {
	TopicsStarted  int     `json:"topics_started"`
	TopicsMastered int     `json:"topics_mastered"`
	AverageMastery float64 `json:"average_mastery"`
	TotalAttempts  int     `json:"total_attempts"`
	TotalCorrect   int     `json:"total_correct"`
	// OverallAccuracy is a percentage
	OverallAccuracy float64 `json:"overall_accuracy"`
	StrongTopics    int     `json:"strong_topics"`
	AverageTopics   int     `json:"average_topics"`
	WeakTopics      int     `json:"weak_topics"`
}

type SubjectStats struct {
	Subject         string  `json:"subject"`
	TopicsStarted   int     `json:"topics_started"`
	TopicsMastered  int     `json:"topics_mastered"`
	AverageMastery  float64 `json:"average_mastery"`
	TotalAttempts   int     `json:"total_attempts"`
	CorrectAttempts int     `json:"correct_attempts"`
	Accuracy        float64 `json:"accuracy"`
}

type TopicStanding struct {
	TopicID      int64   `json:"topic_id"`
	Name         string  `json:"name"`
	Subject      string  `json:"subject"`
	MasteryScore float64 `json:"mastery_score"`
	Accuracy     float64 `json:"accuracy"`
	Level        Level   `json:"level"`
}

type Streak struct {
	Current       int        `json:"current"`
	Longest       int        `json:"longest"`
	LastStudyDate *time.Time `json:"last_study_date,omitempty"`
}

type Recommendation struct {
	Topic    models.Topic `json:"topic"`
	Reason   string       `json:"reason"`
	Priority float64      `json:"priority"`
}

// Report is everything the dashboard shows for a user
type Report struct {
	UserID          int64            `json:"user_id"`
	Overview        Overview         `json:"overview"`
	Subjects        []SubjectStats   `json:"subjects"`
	WeakTopics      []TopicStanding  `json:"weak_topics"`
	StrongTopics    []TopicStanding  `json:"strong_topics"`
	Streak          Streak           `json:"streak"`
	Distribution    map[Level]int    `json:"distribution"`
	Recommendations []Recommendation `json:"recommendations"`
}

// Service computes analytics from mastery records, the topic catalog and
// attempt history
type Service struct {
	mastery MasteryLister
	topics  TopicLister
	days    StudyDaySource
	logger  *slog.Logger
	now     func() time.Time
}

// NewService creates the analytics service. days may be nil, then the
// streak is always empty.
func NewService(mastery MasteryLister, topics TopicLister, days StudyDaySource, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{mastery: mastery, topics: topics, days: days, logger: logger, now: time.Now}
}

// Report loads a user's data once and computes every section
func (s *Service) Report(ctx context.Context, userID int64) (*Report, error) {
	var (
		records []models.TopicMastery
		catalog []models.Topic
		days    []time.Time
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		records, err = s.mastery.List(gctx, userID)
		if err != nil {
			return fmt.Errorf("failed to list mastery: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		catalog, err = s.topics.List(gctx, nil)
		if err != nil {
			return fmt.Errorf("failed to list topics: %w", err)
		}
		return nil
	})
	if s.days != nil {
		g.Go(func() error {
			var err error
			days, err = s.days.StudyDays(gctx, userID)
			if err != nil {
				return fmt.Errorf("failed to load study days: %w", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byID := make(map[int64]models.Topic, len(catalog))
	for _, t := range catalog {
		byID[t.ID] = t
	}
	rep := &Report{
		UserID:          userID,
		Overview:        OverviewOf(records),
		Subjects:        SubjectsOf(records, byID),
		WeakTopics:      WeakTopics(records, byID, DefaultTopicLimit),
		StrongTopics:    StrongTopics(records, byID, DefaultTopicLimit),
		Streak:          StreakOf(days, s.now()),
		Distribution:    DistributionOf(records),
		Recommendations: Recommend(records, catalog, DefaultRecommendationLimit),
	}
	s.logger.Debug("analytics report built", "user_id", userID,
		"topics_started", rep.Overview.TopicsStarted, "streak", rep.Streak.Current)
	return rep, nil
}

// OverviewOf aggregates all records of a user
func OverviewOf(records []models.TopicMastery) Overview {
	var o Overview
	if len(records) == 0 {
		return o
	}
	total := 0.0
	for _, r := range records {
		total += r.MasteryScore
		o.TotalAttempts += r.TotalAttempts
		o.TotalCorrect += r.CorrectAttempts
		switch LevelOf(r.MasteryScore) {
		case LevelMastered:
			o.TopicsMastered++
			o.StrongTopics++
		case LevelProficient:
			o.StrongTopics++
		case LevelLearning:
			o.AverageTopics++
		default:
			o.WeakTopics++
		}
	}
	o.TopicsStarted = len(records)
	o.AverageMastery = total / float64(len(records))
	o.OverallAccuracy = percent(o.TotalCorrect, o.TotalAttempts)
	return o
}

// SubjectsOf groups records by the subject of their topic, sorted by subject
func SubjectsOf(records []models.TopicMastery, topics map[int64]models.Topic) []SubjectStats {
	bySubject := make(map[string]*SubjectStats)
	for _, r := range records {
		subject := "Unknown"
		if t, ok := topics[r.TopicID]; ok {
			subject = t.Subject
		}
		st, ok := bySubject[subject]
		if !ok {
			st = &SubjectStats{Subject: subject}
			bySubject[subject] = st
		}
		st.TopicsStarted++
		if LevelOf(r.MasteryScore) == LevelMastered {
			st.TopicsMastered++
		}
		st.AverageMastery += r.MasteryScore
		st.TotalAttempts += r.TotalAttempts
		st.CorrectAttempts += r.CorrectAttempts
	}
	out := make([]SubjectStats, 0, len(bySubject))
	for _, st := range bySubject {
		st.AverageMastery /= float64(st.TopicsStarted)
		st.Accuracy = percent(st.CorrectAttempts, st.TotalAttempts)
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Subject < out[j].Subject })
	return out
}

// WeakTopics lists topics below StrongThreshold, weakest first
func WeakTopics(records []models.TopicMastery, topics map[int64]models.Topic, limit int) []TopicStanding {
	out := standings(records, topics, func(score float64) bool { return score < StrongThreshold })
	sort.SliceStable(out, func(i, j int) bool { return out[i].MasteryScore < out[j].MasteryScore })
	return head(out, limit)
}

// StrongTopics lists topics at or above StrongThreshold, strongest first
func StrongTopics(records []models.TopicMastery, topics map[int64]models.Topic, limit int) []TopicStanding {
	out := standings(records, topics, func(score float64) bool { return score >= StrongThreshold })
	sort.SliceStable(out, func(i, j int) bool { return out[i].MasteryScore > out[j].MasteryScore })
	return head(out, limit)
}

func standings(records []models.TopicMastery, topics map[int64]models.Topic, keep func(float64) bool) []TopicStanding {
	out := []TopicStanding{}
	for _, r := range records {
		if !keep(r.MasteryScore) {
			continue
		}
		t := topics[r.TopicID]
		out = append(out, TopicStanding{
			TopicID:      r.TopicID,
			Name:         t.Name,
			Subject:      t.Subject,
			MasteryScore: r.MasteryScore,
			Accuracy:     r.Accuracy,
			Level:        LevelOf(r.MasteryScore),
		})
	}
	return out
}

// StreakOf computes streaks from distinct study days, newest first. The
// current streak counts back from today and is 0 when today has no study.
func StreakOf(days []time.Time, now time.Time) Streak {
	if len(days) == 0 {
		return Streak{}
	}
	last := days[0]
	st := Streak{LastStudyDate: &last, Longest: 1}

	today := models.Day(now)
	for i, d := range days {
		if !models.Day(d).Equal(today.AddDate(0, 0, -i)) {
			break
		}
		st.Current++
	}

	run := 1
	for i := 1; i < len(days); i++ {
		if models.Day(days[i-1]).AddDate(0, 0, -1).Equal(models.Day(days[i])) {
			run++
			if run > st.Longest {
				st.Longest = run
			}
		} else {
			run = 1
		}
	}
	return st
}

// DistributionOf counts records per mastery band; every band is present
func DistributionOf(records []models.TopicMastery) map[Level]int {
	dist := map[Level]int{LevelBeginner: 0, LevelLearning: 0, LevelProficient: 0, LevelMastered: 0}
	for _, r := range records {
		dist[LevelOf(r.MasteryScore)]++
	}
	return dist
}

// Recommend ranks started topics below RecommendThreshold by
// weight × (1 - mastery) together with unstarted topics by weight.
// Ties go to the lower topic id.
func Recommend(records []models.TopicMastery, catalog []models.Topic, limit int) []Recommendation {
	started := make(map[int64]models.TopicMastery, len(records))
	for _, r := range records {
		started[r.TopicID] = r
	}
	out := []Recommendation{}
	for _, t := range catalog {
		weight := t.ExamWeight
		if weight <= 0 {
			weight = 1
		}
		r, ok := started[t.ID]
		switch {
		case !ok:
			out = append(out, Recommendation{Topic: t, Reason: "Not started yet", Priority: weight})
		case r.MasteryScore < RecommendThreshold:
			out = append(out, Recommendation{
				Topic:    t,
				Reason:   fmt.Sprintf("Low mastery (%.0f%%)", r.MasteryScore*100),
				Priority: weight * (1 - r.MasteryScore),
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Topic.ID < out[j].Topic.ID
	})
	return head(out, limit)
}

func head[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

func percent(part, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(part)/float64(total)*1000) / 10
}
