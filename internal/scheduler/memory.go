package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/example/mindmentor/pkg/models"
)

// MemoryDayStore keeps plans in a map
type MemoryDayStore struct {
	mu   sync.Mutex
	days map[int64]map[string]models.ScheduleDay
}

func NewMemoryDayStore() *MemoryDayStore {
	return &MemoryDayStore{days: make(map[int64]map[string]models.ScheduleDay)}
}

func (s *MemoryDayStore) SaveDay(ctx context.Context, day models.ScheduleDay) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.days[day.UserID] == nil {
		s.days[day.UserID] = make(map[string]models.ScheduleDay)
	}
	day.Date = models.Day(day.Date)
	s.days[day.UserID][day.Date.Format(models.DateLayout)] = cloneDay(day)
	return nil
}

func (s *MemoryDayStore) GetDay(ctx context.Context, userID int64, date time.Time) (*models.ScheduleDay, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	day, ok := s.days[userID][models.Day(date).Format(models.DateLayout)]
	if !ok {
		return nil, nil
	}
	out := cloneDay(day)
	return &out, nil
}

func (s *MemoryDayStore) ListDays(ctx context.Context, userID int64, from, to time.Time) ([]models.ScheduleDay, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lo, hi := models.Day(from), models.Day(to)
	var out []models.ScheduleDay
	for _, day := range s.days[userID] {
		if !day.Date.Before(lo) && !day.Date.After(hi) {
			out = append(out, cloneDay(day))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *MemoryDayStore) SetCompleted(ctx context.Context, userID int64, date time.Time, topicID int64, completed bool) (*models.ScheduleItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := models.Day(date).Format(models.DateLayout)
	day, ok := s.days[userID][d]
	if !ok {
		return nil, fmt.Errorf("%w: no plan for %s", models.ErrNotFound, d)
	}
	for i, it := range day.Items {
		if it.TopicID == topicID {
			day.Items[i].Completed = completed
			out := day.Items[i]
			return &out, nil
		}
	}
	return nil, fmt.Errorf("%w: no item for topic %d on %s", models.ErrNotFound, topicID, d)
}

func cloneDay(day models.ScheduleDay) models.ScheduleDay {
	day.Items = append([]models.ScheduleItem{}, day.Items...)
	return day
}

// StaticCatalog is a fixed in-memory topic list
type StaticCatalog []models.Topic

func (c StaticCatalog) List(ctx context.Context, subjects []string) ([]models.Topic, error) {
	want := make(map[string]bool, len(subjects))
	for _, s := range subjects {
		want[s] = true
	}
	out := make([]models.Topic, 0, len(c))
	for _, t := range c {
		if len(want) == 0 || want[t.Subject] {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (c StaticCatalog) Get(ctx context.Context, id int64) (*models.Topic, error) {
	for _, t := range c {
		if t.ID == id {
			out := t
			return &out, nil
		}
	}
	return nil, fmt.Errorf("%w: topic %d", models.ErrNotFound, id)
}
