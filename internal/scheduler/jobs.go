package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/example/mindmentor/internal/cache"
	"github.com/example/mindmentor/pkg/models"
)

// Notifier delivers a study reminder for the day's plan
type Notifier interface {
	SendReminder(ctx context.Context, prefs models.StudyPreferences, day *models.ScheduleDay) error
}

// PreferenceSource lists users who opted into planning and reminders
type PreferenceSource interface {
	ListActive(ctx context.Context) ([]models.StudyPreferences, error)
}

// StatsSource reports cache usage
type StatsSource interface {
	Stats(ctx context.Context) (cache.Stats, error)
}

// JobsConfig configures the periodic jobs
type JobsConfig struct {
	PlanDays       int
	DefaultMinutes int
	// RegenerateAt is the daily HH:MM (UTC) of the nightly regeneration
	RegenerateAt string
	Logger       *slog.Logger
}

// Jobs manages scheduled tasks for the application
type Jobs struct {
	scheduler *gocron.Scheduler
	service   *Service
	prefs     PreferenceSource
	notifier  Notifier
	cache     StatsSource
	cfg       JobsConfig
	logger    *slog.Logger
	now       func() time.Time
}

// NewJobs creates the job runner. notifier and cache may be nil.
func NewJobs(service *Service, prefs PreferenceSource, notifier Notifier, cache StatsSource, cfg JobsConfig) *Jobs {
	if cfg.PlanDays <= 0 {
		cfg.PlanDays = 7
	}
	if cfg.RegenerateAt == "" {
		cfg.RegenerateAt = "00:05"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Jobs{
		scheduler: gocron.NewScheduler(time.UTC),
		service:   service,
		prefs:     prefs,
		notifier:  notifier,
		cache:     cache,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// Start begins running all scheduled tasks
func (j *Jobs) Start() error {
	j.scheduler.WaitForScheduleAll()

	if _, err := j.scheduler.Every(1).Day().At(j.cfg.RegenerateAt).Do(j.runRegenerate); err != nil {
		return fmt.Errorf("failed to schedule regeneration: %v", err)
	}
	if j.notifier != nil {
		if _, err := j.scheduler.Every(1).Hour().Do(j.runReminders); err != nil {
			return fmt.Errorf("failed to schedule reminders: %v", err)
		}
	}
	if j.cache != nil {
		if _, err := j.scheduler.Every(1).Hour().Do(j.runCacheStats); err != nil {
			return fmt.Errorf("failed to schedule cache stats: %v", err)
		}
	}

	// Start the scheduler in a non-blocking manner
	j.scheduler.StartAsync()
	return nil
}

// Stop terminates all scheduled tasks
func (j *Jobs) Stop() {
	j.scheduler.Stop()
}

func (j *Jobs) runRegenerate() {
	if err := j.RegenerateAll(context.Background()); err != nil {
		j.logger.Error("nightly regeneration failed", "error", err)
	}
}

func (j *Jobs) runReminders() {
	if err := j.SendReminders(context.Background(), j.now().UTC().Hour()); err != nil {
		j.logger.Error("sending reminders failed", "error", err)
	}
}

func (j *Jobs) runCacheStats() {
	st, err := j.cache.Stats(context.Background())
	if err != nil {
		j.logger.Error("cache stats failed", "error", err)
		return
	}
	j.logger.Info("llm cache", "hits", st.Hits, "misses", st.Misses, "hit_rate", st.HitRate, "entries", st.Entries)
}

// RegenerateAll rebuilds the upcoming plan of every active user. One user's
// failure does not stop the others.
func (j *Jobs) RegenerateAll(ctx context.Context) error {
	users, err := j.prefs.ListActive(ctx)
	if err != nil {
		return err
	}
	today := models.Day(j.now())
	failed := 0
	for _, p := range users {
		minutes := p.DailyMinutes
		if minutes <= 0 {
			minutes = j.cfg.DefaultMinutes
		}
		_, err := j.service.Regenerate(ctx, Request{
			UserID:       p.UserID,
			StartDate:    today,
			NumDays:      j.cfg.PlanDays,
			DailyMinutes: minutes,
			Subjects:     p.Subjects,
		})
		if err != nil {
			failed++
			j.logger.Error("regeneration failed", "user_id", p.UserID, "error", err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("regeneration failed for %d of %d users", failed, len(users))
	}
	return nil
}

// SendReminders notifies users whose notification hour is hour and whose
// plan for today still has open items
func (j *Jobs) SendReminders(ctx context.Context, hour int) error {
	if j.notifier == nil {
		return nil
	}
	users, err := j.prefs.ListActive(ctx)
	if err != nil {
		return err
	}
	today := models.Day(j.now())
	for _, p := range users {
		if p.NotificationHour != hour {
			continue
		}
		day, err := j.service.Day(ctx, p.UserID, today)
		if err != nil {
			j.logger.Error("loading plan failed", "user_id", p.UserID, "error", err)
			continue
		}
		if day == nil || len(day.Items) == 0 || day.CompletionPercentage() == 100 {
			continue
		}
		if err := j.notifier.SendReminder(ctx, p, day); err != nil {
			j.logger.Error("sending reminder failed", "user_id", p.UserID, "error", err)
		}
	}
	return nil
}
