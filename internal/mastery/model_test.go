package mastery

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/example/mindmentor/pkg/models"
)

var t0 = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

func newTestModel() (*Model, *MemoryStore) {
	store := NewMemoryStore()
	store.now = func() time.Time { return t0 }
	m := NewModel(store, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	m.now = func() time.Time { return t0 }
	return m, store
}

func mustUpdate(t *testing.T, m *Model, a models.Attempt) *models.TopicMastery {
	t.Helper()
	rec, err := m.Update(context.Background(), a)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	return rec
}

func TestFindDoesNotCreate(t *testing.T) {
	m, _ := newTestModel()
	ctx := context.Background()
	rec, err := m.Find(ctx, 1, 7)
	if err != nil || rec != nil {
		t.Fatalf("Find = %v, %v; want nil, nil", rec, err)
	}
	if d, _ := m.DifficultyFor(ctx, 1, 7); d != models.DifficultyMedium {
		t.Errorf("untried difficulty = %s, want Medium", d)
	}
	if rec, _ := m.Find(ctx, 1, 7); rec != nil {
		t.Errorf("DifficultyFor created a record")
	}
}

func TestGetOrCreateDefaults(t *testing.T) {
	m, _ := newTestModel()
	ctx := context.Background()
	rec, err := m.GetOrCreate(ctx, 1, 7)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if rec.MasteryScore != 0 || rec.Accuracy != models.NeutralAccuracy || rec.EaseFactor != models.DefaultEaseFactor {
		t.Errorf("default record = %+v", rec)
	}
	if rec.Scheduled() {
		t.Errorf("new record already has a review date")
	}
	if found, _ := m.Find(ctx, 1, 7); found == nil {
		t.Errorf("GetOrCreate did not persist")
	}
	if d, _ := m.DifficultyFor(ctx, 1, 7); d != models.DifficultyEasy {
		t.Errorf("default record difficulty = %s, want Easy", d)
	}
}

func TestUpdateMonotonic(t *testing.T) {
	priors := []float64{0, 0.2, 0.5, 0.9, 1}
	for _, p := range priors {
		for revisions := 0; revisions < 20; revisions += 3 {
			rec := models.NewTopicMastery(1, 1, t0)
			rec.MasteryScore = p
			rec.RevisionCount = revisions

			up := rec
			ApplyAttempt(&up, models.Attempt{Total: 1, Correct: 1}, t0)
			if up.MasteryScore < p {
				t.Errorf("prior %.2f rev %d: correct attempt lowered mastery to %.3f", p, revisions, up.MasteryScore)
			}
			down := rec
			ApplyAttempt(&down, models.Attempt{Total: 1, Correct: 0}, t0)
			if down.MasteryScore > p {
				t.Errorf("prior %.2f rev %d: wrong attempt raised mastery to %.3f", p, revisions, down.MasteryScore)
			}
		}
	}
}

func TestUpdateWeightsEarlyEvidenceMore(t *testing.T) {
	if Smoothing(0) <= Smoothing(5) {
		t.Errorf("Smoothing(0)=%.3f not above Smoothing(5)=%.3f", Smoothing(0), Smoothing(5))
	}
	if Smoothing(1000) != MinSmoothing {
		t.Errorf("Smoothing floor = %.3f", Smoothing(1000))
	}
}

func TestUpdateAggregates(t *testing.T) {
	m, _ := newTestModel()
	mustUpdate(t, m, models.Attempt{UserID: 1, TopicID: 2, Total: 4, Correct: 4, ResponseSeconds: 30,
		WeakConcepts: []string{"vectors", "graphs"}})
	rec := mustUpdate(t, m, models.Attempt{UserID: 1, TopicID: 2, Total: 4, Correct: 2, ResponseSeconds: 60,
		WeakConcepts: []string{"units"}, MasteredConcepts: []string{"graphs"}})

	if rec.TotalAttempts != 8 || rec.CorrectAttempts != 6 {
		t.Errorf("attempts = %d/%d", rec.CorrectAttempts, rec.TotalAttempts)
	}
	if rec.Accuracy != 0.75 {
		t.Errorf("accuracy = %.3f, want 0.75", rec.Accuracy)
	}
	if rec.AvgResponseTime != 45 {
		t.Errorf("avg response = %.2f, want 45", rec.AvgResponseTime)
	}
	if rec.RevisionCount != 2 {
		t.Errorf("revisions = %d", rec.RevisionCount)
	}
	want := []string{"units", "vectors"}
	if len(rec.WeakConcepts) != 2 || rec.WeakConcepts[0] != want[0] || rec.WeakConcepts[1] != want[1] {
		t.Errorf("weak concepts = %v, want %v", rec.WeakConcepts, want)
	}
	if !rec.NextReviewDate.Equal(time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("next review = %v", rec.NextReviewDate)
	}
}

func TestUpdateRejectsInvalidAttempt(t *testing.T) {
	m, _ := newTestModel()
	bad := []models.Attempt{
		{UserID: 1, TopicID: 1, Total: 0},
		{UserID: 1, TopicID: 1, Total: 2, Correct: 3},
		{UserID: 1, TopicID: 1, Total: 2, Correct: -1},
		{UserID: 1, TopicID: 1, Total: 2, Correct: 1, ResponseSeconds: -4},
	}
	for _, a := range bad {
		if _, err := m.Update(context.Background(), a); !errors.Is(err, models.ErrValidation) {
			t.Errorf("%+v: err = %v", a, err)
		}
	}
}

func TestDifficultyThresholds(t *testing.T) {
	cases := []struct {
		mastery, accuracy float64
		want              models.Difficulty
	}{
		{0.85, 0.9, models.DifficultyHard},
		{0.8, 0.8, models.DifficultyHard},
		{0.9, 0.7, models.DifficultyMedium},
		{0.5, 0.6, models.DifficultyMedium},
		{0.5, 0.5, models.DifficultyEasy},
		{0.3, 0.9, models.DifficultyEasy},
	}
	for _, c := range cases {
		rec := &models.TopicMastery{MasteryScore: c.mastery, Accuracy: c.accuracy}
		if got := DifficultyOf(rec); got != c.want {
			t.Errorf("DifficultyOf(%.2f, %.2f) = %s, want %s", c.mastery, c.accuracy, got, c.want)
		}
	}
}

func TestRecordLessonCreatesAndSchedules(t *testing.T) {
	m, _ := newTestModel()
	rec, err := m.RecordLesson(context.Background(), 3, 9)
	if err != nil {
		t.Fatalf("RecordLesson: %v", err)
	}
	if rec.RevisionCount != 1 || !rec.Scheduled() || rec.MasteryScore != 0 {
		t.Errorf("record = %+v", rec)
	}
}

func TestReviewIsIdempotent(t *testing.T) {
	m, _ := newTestModel()
	ctx := context.Background()

	first, err := m.Review(ctx, 1, 4, 5, "quiz-42")
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if first.Duplicate || first.Record.RepetitionNumber != 1 {
		t.Fatalf("first review = %+v", first.Record)
	}
	again, err := m.Review(ctx, 1, 4, 5, "quiz-42")
	if err != nil {
		t.Fatalf("repeat Review: %v", err)
	}
	if !again.Duplicate {
		t.Errorf("repeat not flagged duplicate")
	}
	if again.Record.RepetitionNumber != 1 || again.Record.IntervalDays != first.Record.IntervalDays {
		t.Errorf("repeat advanced state: %+v", again.Record)
	}

	second, err := m.Review(ctx, 1, 4, 4, "")
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if second.IdempotencyKey == "" || second.Record.IntervalDays != 6 {
		t.Errorf("second review = key %q interval %d", second.IdempotencyKey, second.Record.IntervalDays)
	}
}

func TestReviewRejectsBadQuality(t *testing.T) {
	m, store := newTestModel()
	if _, err := m.Review(context.Background(), 1, 1, 9, ""); !errors.Is(err, models.ErrValidation) {
		t.Errorf("err = %v", err)
	}
	if len(store.records) != 0 {
		t.Errorf("invalid review created a record")
	}
}

func TestReviewKeyIsScopedToTopic(t *testing.T) {
	m, store := newTestModel()
	ctx := context.Background()

	if _, err := m.Review(ctx, 1, 1, 5, "k1"); err != nil {
		t.Fatalf("Review: %v", err)
	}
	if _, err := m.Review(ctx, 1, 2, 5, "k1"); !errors.Is(err, models.ErrKeyConflict) {
		t.Errorf("reuse on untouched topic: err = %v, want ErrKeyConflict", err)
	}
	if _, ok := store.records[recordKey{1, 2}]; ok {
		t.Errorf("conflicting key created a record")
	}

	mustUpdate(t, m, models.Attempt{UserID: 1, TopicID: 3, Total: 2, Correct: 2, TakenAt: t0})
	if _, err := m.Review(ctx, 1, 3, 5, "k1"); !errors.Is(err, models.ErrKeyConflict) {
		t.Errorf("reuse on existing topic: err = %v, want ErrKeyConflict", err)
	}
	if _, err := m.Review(ctx, 2, 1, 5, "k1"); !errors.Is(err, models.ErrKeyConflict) {
		t.Errorf("reuse by another user: err = %v, want ErrKeyConflict", err)
	}
	if rec := store.records[recordKey{1, 3}]; rec.RepetitionNumber != 0 {
		t.Errorf("conflicting key advanced topic 3: %+v", rec)
	}
}

func TestReviewAttemptFoldsAndAdvancesOnce(t *testing.T) {
	m, _ := newTestModel()
	ctx := context.Background()
	a := models.Attempt{UserID: 1, TopicID: 7, Total: 4, Correct: 3, ResponseSeconds: 12, TakenAt: t0}

	if _, err := m.ReviewAttempt(ctx, models.Attempt{UserID: 1, TopicID: 7}, 4, "quiz-1-7"); !errors.Is(err, models.ErrValidation) {
		t.Fatalf("empty attempt: err = %v", err)
	}
	out, err := m.ReviewAttempt(ctx, a, 4, "quiz-1-7")
	if err != nil {
		t.Fatalf("ReviewAttempt: %v", err)
	}
	if out.Duplicate || out.Record.TotalAttempts != 4 || out.Record.RepetitionNumber != 1 || out.Record.RevisionCount != 1 {
		t.Fatalf("record = %+v", out.Record)
	}
	again, err := m.ReviewAttempt(ctx, a, 4, "quiz-1-7")
	if err != nil {
		t.Fatalf("repeat ReviewAttempt: %v", err)
	}
	if !again.Duplicate || again.Record.TotalAttempts != 4 || again.Record.RepetitionNumber != 1 {
		t.Errorf("repeat changed the record: %+v", again.Record)
	}
}
