package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"testing"
	"time"

	"github.com/example/mindmentor/internal/mastery"
	"github.com/example/mindmentor/pkg/models"
)

var t0 = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type fixedMastery []models.TopicMastery

func (f fixedMastery) List(ctx context.Context, userID int64) ([]models.TopicMastery, error) {
	return f, nil
}

func topic(id int64, weight float64) models.Topic {
	return models.Topic{ID: id, Subject: "Physics", Name: "T", ExamWeight: weight}
}

func record(topicID int64, score float64, due time.Time) models.TopicMastery {
	rec := models.NewTopicMastery(1, topicID, t0)
	rec.MasteryScore = score
	rec.NextReviewDate = due
	return rec
}

func mustGenerate(t *testing.T, b *Builder, req Request) []models.ScheduleDay {
	t.Helper()
	days, err := b.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return days
}

func TestGenerateNinetyMinutesThreeNewTopics(t *testing.T) {
	b := NewBuilder(StaticCatalog{topic(1, 5), topic(2, 3), topic(3, 1)}, fixedMastery(nil))
	days := mustGenerate(t, b, Request{UserID: 1, StartDate: t0, NumDays: 1, DailyMinutes: 90})

	if len(days) != 1 {
		t.Fatalf("days = %d", len(days))
	}
	items := days[0].Items
	if len(items) != 1 {
		t.Fatalf("items = %+v, want a single Learn block", items)
	}
	if items[0].TopicID != 1 || items[0].ActivityType != models.ActivityLearn || items[0].DurationMinutes != 60 {
		t.Errorf("item = %+v", items[0])
	}
	if !days[0].Date.Equal(models.Day(t0)) {
		t.Errorf("date = %v", days[0].Date)
	}
}

func TestGeneratePriorityOrder(t *testing.T) {
	cat := StaticCatalog{topic(1, 2), topic(2, 4), topic(3, 5), topic(4, 3), topic(5, 1)}
	recs := fixedMastery{
		record(1, 0.9, models.Day(t0)),                   // due
		record(2, 0.9, models.Day(t0).AddDate(0, 0, -2)), // overdue, heavier
		record(3, 0.2, models.Day(t0).AddDate(0, 0, 3)),  // weak, not due
		record(4, 0.7, models.Day(t0).AddDate(0, 0, 3)),  // fine, not due
	}
	b := NewBuilder(cat, recs)
	days := mustGenerate(t, b, Request{UserID: 1, StartDate: t0, NumDays: 1, DailyMinutes: 500})

	var got []int64
	var acts []models.ActivityType
	for _, it := range days[0].Items {
		got = append(got, it.TopicID)
		acts = append(acts, it.ActivityType)
	}
	wantIDs := []int64{2, 1, 3, 5}
	wantActs := []models.ActivityType{models.ActivityRevise, models.ActivityRevise, models.ActivityPractice, models.ActivityLearn}
	if !reflect.DeepEqual(got, wantIDs) || !reflect.DeepEqual(acts, wantActs) {
		t.Errorf("order = %v %v, want %v %v", got, acts, wantIDs, wantActs)
	}
	if p := days[0].Items[2].Priority; p != 0.8*5 {
		t.Errorf("practice priority = %v, want 4", p)
	}
}

func TestGeneratePracticeOrderedByWeightedWeakness(t *testing.T) {
	future := models.Day(t0).AddDate(0, 0, 10)
	cat := StaticCatalog{topic(1, 10), topic(2, 2)}
	recs := fixedMastery{record(1, 0.55, future), record(2, 0.0, future)}
	b := NewBuilder(cat, recs)
	days := mustGenerate(t, b, Request{UserID: 1, StartDate: t0, NumDays: 1, DailyMinutes: 90})

	// 0.45*10 = 4.5 beats 1.0*2 = 2
	if len(days[0].Items) != 2 || days[0].Items[0].TopicID != 1 {
		t.Errorf("items = %+v", days[0].Items)
	}
}

func TestGenerateUnscheduledRecordIsNotDue(t *testing.T) {
	b := NewBuilder(StaticCatalog{topic(1, 5)}, fixedMastery{record(1, 0.9, time.Time{})})
	days := mustGenerate(t, b, Request{UserID: 1, StartDate: t0, NumDays: 3, DailyMinutes: 120})
	for _, d := range days {
		if len(d.Items) != 0 {
			t.Errorf("%s: %+v", d.Date.Format(models.DateLayout), d.Items)
		}
	}
}

func TestGenerateNoDuplicatesAndBudget(t *testing.T) {
	var cat StaticCatalog
	var recs fixedMastery
	for id := int64(1); id <= 30; id++ {
		cat = append(cat, topic(id, float64(id%7+1)))
		switch id % 3 {
		case 0:
			recs = append(recs, record(id, 0.3, models.Day(t0).AddDate(0, 0, int(id%5))))
		case 1:
			recs = append(recs, record(id, 0.8, models.Day(t0).AddDate(0, 0, int(id%4))))
		}
	}
	b := NewBuilder(cat, recs)
	for _, budget := range []int{0, 29, 30, 75, 100, 180} {
		days := mustGenerate(t, b, Request{UserID: 1, StartDate: t0, NumDays: 7, DailyMinutes: budget})
		seen := make(map[int64]bool)
		for _, d := range days {
			if d.TotalMinutes() > budget {
				t.Errorf("budget %d: %s uses %d minutes", budget, d.Date.Format(models.DateLayout), d.TotalMinutes())
			}
			for _, it := range d.Items {
				if seen[it.TopicID] {
					t.Errorf("budget %d: topic %d scheduled twice", budget, it.TopicID)
				}
				seen[it.TopicID] = true
			}
		}
	}
}

func TestGeneratePartialFillIsFirstFit(t *testing.T) {
	// Two revisions use 60 of 70 minutes, the Learn block waits for day 2
	cat := StaticCatalog{topic(1, 9), topic(2, 8), topic(3, 1)}
	recs := fixedMastery{record(1, 0.9, models.Day(t0)), record(2, 0.9, models.Day(t0))}
	b := NewBuilder(cat, recs)
	days := mustGenerate(t, b, Request{UserID: 1, StartDate: t0, NumDays: 2, DailyMinutes: 70})

	if n := len(days[0].Items); n != 2 {
		t.Fatalf("day 1 items = %+v", days[0].Items)
	}
	if len(days[1].Items) != 1 || days[1].Items[0].TopicID != 3 {
		t.Errorf("skipped Learn topic not carried to day 2: %+v", days[1].Items)
	}
}

func TestGenerateDeterministic(t *testing.T) {
	cat := StaticCatalog{topic(4, 2), topic(2, 2), topic(3, 2), topic(1, 2)}
	b := NewBuilder(cat, fixedMastery(nil))
	req := Request{UserID: 1, StartDate: t0, NumDays: 2, DailyMinutes: 120}
	first := mustGenerate(t, b, req)
	second := mustGenerate(t, b, req)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("plans differ:\n%+v\n%+v", first, second)
	}
	if first[0].Items[0].TopicID != 1 || first[0].Items[1].TopicID != 2 || first[1].Items[0].TopicID != 3 {
		t.Errorf("ties not broken by id: %+v", first)
	}
}

func TestGenerateEmptyPool(t *testing.T) {
	b := NewBuilder(StaticCatalog{}, fixedMastery(nil))
	days := mustGenerate(t, b, Request{UserID: 1, StartDate: t0, NumDays: 3, DailyMinutes: 120})
	if len(days) != 3 {
		t.Fatalf("days = %d", len(days))
	}
	for _, d := range days {
		if d.Items == nil || len(d.Items) != 0 {
			t.Errorf("day = %+v", d)
		}
	}
}

func TestGenerateValidation(t *testing.T) {
	b := NewBuilder(StaticCatalog{}, fixedMastery(nil))
	for _, req := range []Request{{NumDays: 0, DailyMinutes: 60}, {NumDays: 1, DailyMinutes: -1}} {
		if _, err := b.Generate(context.Background(), req); !errors.Is(err, models.ErrValidation) {
			t.Errorf("%+v: err = %v", req, err)
		}
	}
}

func TestGenerateSubjectFilter(t *testing.T) {
	cat := StaticCatalog{
		{ID: 1, Subject: "Physics", Name: "Optics", ExamWeight: 1},
		{ID: 2, Subject: "Chemistry", Name: "Bonding", ExamWeight: 9},
	}
	b := NewBuilder(cat, fixedMastery(nil))
	days := mustGenerate(t, b, Request{UserID: 1, StartDate: t0, NumDays: 1, DailyMinutes: 200, Subjects: []string{"Physics"}})
	if len(days[0].Items) != 1 || days[0].Items[0].Subject != "Physics" {
		t.Errorf("items = %+v", days[0].Items)
	}
}

func TestGenerateReadsRealMastery(t *testing.T) {
	store := mastery.NewMemoryStore()
	model := mastery.NewModel(store, nil, quietLogger)
	if _, err := model.RecordLesson(context.Background(), 1, 1); err != nil {
		t.Fatalf("RecordLesson: %v", err)
	}
	b := NewBuilder(StaticCatalog{topic(1, 5), topic(2, 1)}, model)
	days := mustGenerate(t, b, Request{UserID: 1, StartDate: time.Now(), NumDays: 1, DailyMinutes: 60})
	items := days[0].Items
	if len(items) != 1 || items[0].TopicID != 1 || items[0].ActivityType != models.ActivityPractice {
		t.Errorf("lesson-recorded topic should move from Learn to Practice: %+v", items)
	}
}
