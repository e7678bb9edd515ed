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

// ScheduleRepository stores generated study days
type ScheduleRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewScheduleRepository creates a new repository instance
func NewScheduleRepository(db *sqlx.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db, now: time.Now}
}

type scheduleItemRow struct {
	Day             string  `db:"day"`
	Position        int     `db:"position"`
	TopicID         int64   `db:"topic_id"`
	TopicName       string  `db:"topic_name"`
	Subject         string  `db:"subject"`
	ActivityType    string  `db:"activity_type"`
	DurationMinutes int     `db:"duration_minutes"`
	Priority        float64 `db:"priority"`
	Completed       bool    `db:"completed"`
}

func (r scheduleItemRow) item() models.ScheduleItem {
	return models.ScheduleItem{
		TopicID:         r.TopicID,
		TopicName:       r.TopicName,
		Subject:         r.Subject,
		ActivityType:    models.ActivityType(r.ActivityType),
		DurationMinutes: r.DurationMinutes,
		Priority:        r.Priority,
		Completed:       r.Completed,
	}
}

// SaveDay replaces the stored plan for the day's user and date
func (r *ScheduleRepository) SaveDay(ctx context.Context, day models.ScheduleDay) error {
	date := models.Day(day.Date).Format(models.DateLayout)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, tx.Rebind("DELETE FROM schedule_items WHERE user_id = ? AND day = ?"), day.UserID, date)
	if err != nil {
		return fmt.Errorf("failed to clear schedule items: %v", err)
	}
	_, err = tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO schedule_days (user_id, day, generated_at) VALUES (?, ?, ?)
		ON CONFLICT (user_id, day) DO UPDATE SET generated_at = excluded.generated_at`),
		day.UserID, date, r.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save schedule day: %v", err)
	}
	for i, it := range day.Items {
		_, err = tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO schedule_items (user_id, day, position, topic_id, topic_name, subject,
				activity_type, duration_minutes, priority, completed)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			day.UserID, date, i, it.TopicID, it.TopicName, it.Subject,
			string(it.ActivityType), it.DurationMinutes, it.Priority, it.Completed)
		if err != nil {
			return fmt.Errorf("failed to save schedule item: %v", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %v", err)
	}
	return nil
}

// GetDay returns the stored plan or nil when the date was never planned
func (r *ScheduleRepository) GetDay(ctx context.Context, userID int64, date time.Time) (*models.ScheduleDay, error) {
	days, err := r.ListDays(ctx, userID, date, date)
	if err != nil {
		return nil, err
	}
	if len(days) == 0 {
		return nil, nil
	}
	return &days[0], nil
}

// ListDays returns the stored plans in [from, to] ordered by date
func (r *ScheduleRepository) ListDays(ctx context.Context, userID int64, from, to time.Time) ([]models.ScheduleDay, error) {
	lo := models.Day(from).Format(models.DateLayout)
	hi := models.Day(to).Format(models.DateLayout)

	var dates []string
	err := r.db.SelectContext(ctx, &dates, r.db.Rebind(
		"SELECT day FROM schedule_days WHERE user_id = ? AND day >= ? AND day <= ? ORDER BY day"), userID, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedule days: %v", err)
	}
	if len(dates) == 0 {
		return nil, nil
	}

	var rows []scheduleItemRow
	err = r.db.SelectContext(ctx, &rows, r.db.Rebind(`
		SELECT day, position, topic_id, topic_name, subject, activity_type, duration_minutes, priority, completed
		FROM schedule_items WHERE user_id = ? AND day >= ? AND day <= ?
		ORDER BY day, position`), userID, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedule items: %v", err)
	}

	byDate := make(map[string]*models.ScheduleDay, len(dates))
	out := make([]models.ScheduleDay, len(dates))
	for i, d := range dates {
		t, err := models.ParseDay(d)
		if err != nil {
			return nil, fmt.Errorf("bad schedule date %q: %v", d, err)
		}
		out[i] = models.ScheduleDay{UserID: userID, Date: t, Items: []models.ScheduleItem{}}
		byDate[d] = &out[i]
	}
	for _, row := range rows {
		if day, ok := byDate[row.Day]; ok {
			day.Items = append(day.Items, row.item())
		}
	}
	return out, nil
}

// SetCompleted flags the item for topicID on the date; ErrNotFound when
// the day or the item does not exist
func (r *ScheduleRepository) SetCompleted(ctx context.Context, userID int64, date time.Time, topicID int64, completed bool) (*models.ScheduleItem, error) {
	d := models.Day(date).Format(models.DateLayout)
	res, err := r.db.ExecContext(ctx, r.db.Rebind(
		"UPDATE schedule_items SET completed = ? WHERE user_id = ? AND day = ? AND topic_id = ?"),
		completed, userID, d, topicID)
	if err != nil {
		return nil, fmt.Errorf("failed to update schedule item: %v", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("%w: no item for topic %d on %s", models.ErrNotFound, topicID, d)
	}

	var row scheduleItemRow
	err = r.db.GetContext(ctx, &row, r.db.Rebind(`
		SELECT day, position, topic_id, topic_name, subject, activity_type, duration_minutes, priority, completed
		FROM schedule_items WHERE user_id = ? AND day = ? AND topic_id = ?`), userID, d, topicID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no item for topic %d on %s", models.ErrNotFound, topicID, d)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule item: %v", err)
	}
	it := row.item()
	return &it, nil
}
