package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/example/mindmentor/pkg/models"
)

// PreferencesRepository stores per-user study settings
type PreferencesRepository struct {
	db *sqlx.DB
}

// NewPreferencesRepository creates a new repository instance
func NewPreferencesRepository(db *sqlx.DB) *PreferencesRepository {
	return &PreferencesRepository{db: db}
}

type preferencesRow struct {
	UserID           int64     `db:"user_id"`
	ChatID           int64     `db:"chat_id"`
	DailyMinutes     int       `db:"daily_minutes"`
	Subjects         string    `db:"subjects"`
	NotificationHour int       `db:"notification_hour"`
	Active           bool      `db:"active"`
	UpdatedAt        time.Time `db:"updated_at"`
}

func (r preferencesRow) prefs() (*models.StudyPreferences, error) {
	subjects, err := decodeList[string](r.Subjects)
	if err != nil {
		return nil, fmt.Errorf("bad subjects for user %d: %v", r.UserID, err)
	}
	return &models.StudyPreferences{
		UserID:           r.UserID,
		ChatID:           r.ChatID,
		DailyMinutes:     r.DailyMinutes,
		Subjects:         subjects,
		NotificationHour: r.NotificationHour,
		Active:           r.Active,
		UpdatedAt:        r.UpdatedAt.UTC(),
	}, nil
}

const preferencesColumns = "user_id, chat_id, daily_minutes, subjects, notification_hour, active, updated_at"

// Get retrieves user preferences, nil when the user never set any
func (r *PreferencesRepository) Get(ctx context.Context, userID int64) (*models.StudyPreferences, error) {
	var row preferencesRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind("SELECT "+preferencesColumns+" FROM study_preferences WHERE user_id = ?"), userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get preferences: %v", err)
	}
	return row.prefs()
}

// Save creates or updates user preferences
func (r *PreferencesRepository) Save(ctx context.Context, p *models.StudyPreferences) error {
	if p.DailyMinutes < 0 || p.NotificationHour < 0 || p.NotificationHour > 23 {
		return fmt.Errorf("%w: daily minutes %d, notification hour %d", models.ErrValidation, p.DailyMinutes, p.NotificationHour)
	}
	p.UpdatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO study_preferences (`+preferencesColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			chat_id = excluded.chat_id,
			daily_minutes = excluded.daily_minutes,
			subjects = excluded.subjects,
			notification_hour = excluded.notification_hour,
			active = excluded.active,
			updated_at = excluded.updated_at`),
		p.UserID, p.ChatID, p.DailyMinutes, encodeList(p.Subjects), p.NotificationHour, p.Active, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save preferences: %v", err)
	}
	return nil
}

// ListActive returns users with reminders and planning enabled
func (r *PreferencesRepository) ListActive(ctx context.Context) ([]models.StudyPreferences, error) {
	var rows []preferencesRow
	err := r.db.SelectContext(ctx, &rows, r.db.Rebind(
		"SELECT "+preferencesColumns+" FROM study_preferences WHERE active = ? ORDER BY user_id"), true)
	if err != nil {
		return nil, fmt.Errorf("failed to list active users: %v", err)
	}
	out := make([]models.StudyPreferences, 0, len(rows))
	for _, row := range rows {
		p, err := row.prefs()
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, nil
}
