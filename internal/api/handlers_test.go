package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/example/mindmentor/internal/ai"
	"github.com/example/mindmentor/internal/analytics"
	"github.com/example/mindmentor/internal/cache"
	"github.com/example/mindmentor/internal/mastery"
	"github.com/example/mindmentor/internal/quiz"
	"github.com/example/mindmentor/internal/scheduler"
	"github.com/example/mindmentor/pkg/models"
)

var t0 = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

const lessonJSON = `{"explanation":"Motion in a straight line","key_points":["v = u + at"]}`

const quizJSON = `{"questions":[
 {"question_text":"Unit of force?","type":"MCQ","options":["Newton","Joule","Watt","Pascal"],"correct_answer":"A"},
 {"question_text":"Unit of power?","type":"MCQ","options":["Newton","Joule","Watt","Pascal"],"correct_answer":"C"}]}`

// scriptedProvider answers by template content and can be told to fail
type scriptedProvider struct {
	mu    sync.Mutex
	reply string
	err   error
	calls int
}

func (p *scriptedProvider) Generate(ctx context.Context, modelID, prompt string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.reply, p.err
}

type server struct {
	router   *gin.Engine
	provider *scriptedProvider
	model    *mastery.Model
}

func newServer(t *testing.T) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	provider := &scriptedProvider{reply: lessonJSON}
	store := cache.NewMemoryStore()
	client := ai.NewClient(store, provider, ai.Options{Attempts: 1, Timeout: time.Second, Logger: logger})
	catalog := scheduler.StaticCatalog{
		{ID: 1, Subject: "Physics", Name: "Kinematics", ExamWeight: 5},
		{ID: 2, Subject: "Physics", Name: "Optics", ExamWeight: 3},
	}
	model := mastery.NewModel(mastery.NewMemoryStore(), nil, logger)
	plans := scheduler.NewService(catalog, scheduler.NewMemoryDayStore(), model, logger)

	h := NewHandler(Deps{
		Generator: client,
		Cache:     store,
		Mastery:   model,
		Plans:     plans,
		Quiz:      quiz.NewService(client, catalog, model, nil, logger),
		Analytics: analytics.NewService(model, catalog, nil, logger),
		Logger:    logger,
	})
	h.now = func() time.Time { return t0 }
	return &server{router: h.Router(), provider: provider, model: model}
}

func (s *server) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func lessonBody() gin.H {
	return gin.H{
		"task":        ai.TaskLessonGeneration,
		"template_id": ai.TemplateLesson,
		"params":      gin.H{"subject": "Physics", "topic": "Kinematics", "difficulty": "Medium"},
	}
}

func TestHealth(t *testing.T) {
	s := newServer(t)
	if w := s.do(t, http.MethodGet, "/health", nil); w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
}

func TestGenerateCachesAndReportsStats(t *testing.T) {
	s := newServer(t)
	w := s.do(t, http.MethodPost, "/v1/generate", lessonBody())
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body)
	}
	first := decode[struct {
		Key       string          `json:"key"`
		Tier      string          `json:"tier"`
		WasCached bool            `json:"was_cached"`
		Data      json.RawMessage `json:"data"`
	}](t, w)
	if first.WasCached || first.Tier != "standard" || len(first.Data) == 0 {
		t.Fatalf("first = %+v", first)
	}

	w = s.do(t, http.MethodPost, "/v1/generate", lessonBody())
	second := decode[struct {
		WasCached bool `json:"was_cached"`
	}](t, w)
	if !second.WasCached || s.provider.calls != 1 {
		t.Errorf("second cached=%v calls=%d", second.WasCached, s.provider.calls)
	}

	stats := decode[struct {
		Store   cache.Stats     `json:"store"`
		Session ai.SessionStats `json:"session"`
	}](t, s.do(t, http.MethodGet, "/v1/cache/stats", nil))
	if stats.Store.Entries != 1 || stats.Store.Hits != 1 || stats.Session.ProviderCalls != 1 {
		t.Errorf("stats = %+v", stats)
	}

	if w := s.do(t, http.MethodDelete, "/v1/cache/"+first.Key, nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", w.Code)
	}
	w = s.do(t, http.MethodPost, "/v1/generate", lessonBody())
	third := decode[struct {
		WasCached bool `json:"was_cached"`
	}](t, w)
	if third.WasCached {
		t.Errorf("entry survived invalidation")
	}
}

func TestGenerateErrorStatuses(t *testing.T) {
	cases := []struct {
		name  string
		reply string
		err   error
		body  gin.H
		want  int
	}{
		{"unknown template", "", nil, gin.H{"template_id": "nope"}, http.StatusBadRequest},
		{"missing template", "", nil, gin.H{}, http.StatusBadRequest},
		{"provider down", "", errors.New("connection refused"), lessonBody(), http.StatusBadGateway},
		{"provider timeout", "", &ai.ProviderError{Kind: ai.ProviderTimeout, Err: errors.New("slow")}, lessonBody(), http.StatusGatewayTimeout},
		{"malformed output", "not json", nil, lessonBody(), http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newServer(t)
			s.provider.reply, s.provider.err = tc.reply, tc.err
			if w := s.do(t, http.MethodPost, "/v1/generate", tc.body); w.Code != tc.want {
				t.Errorf("status = %d, want %d (%s)", w.Code, tc.want, w.Body)
			}
		})
	}
}

func TestMasteryEndpoints(t *testing.T) {
	s := newServer(t)
	if w := s.do(t, http.MethodGet, "/v1/mastery/5/1", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing record status = %d", w.Code)
	}
	if w := s.do(t, http.MethodGet, "/v1/mastery/x/1", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad user status = %d", w.Code)
	}

	w := s.do(t, http.MethodPost, "/v1/mastery/5/1/attempts", gin.H{"total": 4, "correct": 3, "response_seconds": 20})
	if w.Code != http.StatusOK {
		t.Fatalf("attempt status = %d body = %s", w.Code, w.Body)
	}
	got := decode[struct {
		Mastery    models.TopicMastery `json:"mastery"`
		Difficulty models.Difficulty   `json:"difficulty"`
	}](t, w)
	if got.Mastery.TotalAttempts != 4 || got.Mastery.Accuracy != 0.75 || got.Difficulty != models.DifficultyEasy {
		t.Errorf("mastery = %+v", got)
	}

	if w := s.do(t, http.MethodPost, "/v1/mastery/5/1/attempts", gin.H{"total": 2, "correct": 3}); w.Code != http.StatusBadRequest {
		t.Errorf("invalid attempt status = %d", w.Code)
	}
	if w := s.do(t, http.MethodGet, "/v1/mastery/5/1", nil); w.Code != http.StatusOK {
		t.Errorf("existing record status = %d", w.Code)
	}
}

func TestScheduleEndpoints(t *testing.T) {
	s := newServer(t)
	w := s.do(t, http.MethodPost, "/v1/schedule", gin.H{"user_id": 5, "start_date": "2025-06-15", "num_days": 3, "daily_minutes": 90})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body)
	}
	days := decode[struct {
		Days []models.ScheduleDay `json:"days"`
	}](t, w).Days
	if len(days) != 3 || len(days[0].Items) != 1 || days[0].Items[0].TopicID != 1 {
		t.Fatalf("days = %+v", days)
	}

	if w := s.do(t, http.MethodPost, "/v1/schedule", gin.H{"user_id": 5, "num_days": 0, "daily_minutes": 90}); w.Code != http.StatusBadRequest {
		t.Errorf("zero days status = %d", w.Code)
	}
	if w := s.do(t, http.MethodPost, "/v1/schedule", gin.H{"user_id": 5, "start_date": "15/06/2025", "num_days": 1}); w.Code != http.StatusBadRequest {
		t.Errorf("bad date status = %d", w.Code)
	}

	w = s.do(t, http.MethodPost, "/v1/schedule/5/complete", gin.H{"date": "2025-06-15", "topic_id": 1})
	if w.Code != http.StatusOK {
		t.Fatalf("complete status = %d body = %s", w.Code, w.Body)
	}
	if w := s.do(t, http.MethodPost, "/v1/schedule/5/complete", gin.H{"date": "2025-06-15", "topic_id": 2}); w.Code != http.StatusNotFound {
		t.Errorf("missing item status = %d", w.Code)
	}

	w = s.do(t, http.MethodGet, "/v1/schedule/5?from=2025-06-15&to=2025-06-17", nil)
	got := decode[struct {
		Days  []models.ScheduleDay `json:"days"`
		Stats scheduler.Stats      `json:"stats"`
	}](t, w)
	if len(got.Days) != 3 || got.Stats.ItemsCompleted != 1 {
		t.Errorf("schedule = %+v", got)
	}
}

func TestReviewIsIdempotent(t *testing.T) {
	s := newServer(t)
	body := gin.H{"user_id": 5, "topic_id": 1, "quality": 4, "idempotency_key": "r-1"}
	first := decode[mastery.ReviewOutcome](t, s.do(t, http.MethodPost, "/v1/reviews", body))
	if first.Duplicate || first.Record.IntervalDays != 1 {
		t.Fatalf("first = %+v", first)
	}
	second := decode[mastery.ReviewOutcome](t, s.do(t, http.MethodPost, "/v1/reviews", body))
	if !second.Duplicate || second.Record.RepetitionNumber != 1 {
		t.Errorf("second = %+v", second)
	}

	bad := []gin.H{
		{"user_id": 5, "topic_id": 1, "quality": 7},
		{"user_id": 5, "topic_id": 1},
	}
	for _, b := range bad {
		if w := s.do(t, http.MethodPost, "/v1/reviews", b); w.Code != http.StatusBadRequest {
			t.Errorf("%v: status = %d", b, w.Code)
		}
	}
	if w := s.do(t, http.MethodPost, "/v1/reviews", gin.H{"user_id": 5, "topic_id": 9, "quality": 3}); w.Code != http.StatusNotFound {
		t.Errorf("unknown topic status = %d", w.Code)
	}
}

func TestQuizRoundTrip(t *testing.T) {
	s := newServer(t)
	s.provider.reply = quizJSON

	w := s.do(t, http.MethodPost, "/v1/quizzes", gin.H{"user_id": 5, "topic_ids": []int{1}, "count": 2})
	if w.Code != http.StatusOK {
		t.Fatalf("build status = %d body = %s", w.Code, w.Body)
	}
	q := decode[quiz.Quiz](t, w)
	if len(q.Questions) != 2 {
		t.Fatalf("quiz = %+v", q)
	}

	w = s.do(t, http.MethodPost, "/v1/quizzes/submit", gin.H{
		"quiz":            q,
		"answers":         gin.H{"1": "a", "2": "b"},
		"elapsed_seconds": 40,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("submit status = %d body = %s", w.Code, w.Body)
	}
	res := decode[quiz.Result](t, w)
	if res.CorrectAnswers != 1 || res.ScorePercentage != 50 {
		t.Errorf("result = %+v", res)
	}
	rec, _ := s.model.Find(context.Background(), 5, 1)
	if rec == nil || rec.TotalAttempts != 2 {
		t.Errorf("mastery = %+v", rec)
	}
}

func TestAnalyticsReport(t *testing.T) {
	s := newServer(t)
	if w := s.do(t, http.MethodPost, "/v1/mastery/7/1/attempts", gin.H{"kind": "mcq", "total": 4, "correct": 4}); w.Code != http.StatusOK {
		t.Fatalf("attempt status = %d: %s", w.Code, w.Body.String())
	}

	w := s.do(t, http.MethodGet, "/v1/analytics/7", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	rep := decode[analytics.Report](t, w)
	if rep.Overview.TopicsStarted != 1 || rep.Overview.OverallAccuracy != 100 {
		t.Errorf("overview = %+v", rep.Overview)
	}
	if len(rep.Recommendations) != 1 || rep.Recommendations[0].Topic.Name != "Optics" {
		t.Errorf("recommendations = %+v", rep.Recommendations)
	}
	if len(rep.Subjects) != 1 || rep.Subjects[0].Subject != "Physics" {
		t.Errorf("subjects = %+v", rep.Subjects)
	}

	if w := s.do(t, http.MethodGet, "/v1/analytics/abc", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad user status = %d", w.Code)
	}
}
