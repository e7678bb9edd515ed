package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/example/mindmentor/pkg/models"
)

// TopicRepository handles database operations for the syllabus catalog
type TopicRepository struct {
	db *sqlx.DB
}

// NewTopicRepository creates a new repository instance
func NewTopicRepository(db *sqlx.DB) *TopicRepository {
	return &TopicRepository{db: db}
}

type topicRow struct {
	ID            int64   `db:"id"`
	Subject       string  `db:"subject"`
	Name          string  `db:"name"`
	ExamWeight    float64 `db:"exam_weight"`
	Prerequisites string  `db:"prerequisites"`
}

func (r topicRow) topic() (models.Topic, error) {
	prereq, err := decodeList[int64](r.Prerequisites)
	if err != nil {
		return models.Topic{}, fmt.Errorf("bad prerequisites for topic %d: %v", r.ID, err)
	}
	return models.Topic{ID: r.ID, Subject: r.Subject, Name: r.Name, ExamWeight: r.ExamWeight, Prerequisites: prereq}, nil
}

// Get returns a topic by ID or ErrNotFound
func (r *TopicRepository) Get(ctx context.Context, id int64) (*models.Topic, error) {
	var row topicRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(
		"SELECT id, subject, name, exam_weight, prerequisites FROM topics WHERE id = ?"), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: topic %d", models.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get topic: %v", err)
	}
	t, err := row.topic()
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// List returns topics ordered by id. An empty filter means every subject.
func (r *TopicRepository) List(ctx context.Context, subjects []string) ([]models.Topic, error) {
	query := "SELECT id, subject, name, exam_weight, prerequisites FROM topics"
	var args []any
	if len(subjects) > 0 {
		q, a, err := sqlx.In(query+" WHERE subject IN (?)", subjects)
		if err != nil {
			return nil, fmt.Errorf("failed to build topic query: %v", err)
		}
		query, args = q, a
	}
	var rows []topicRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query+" ORDER BY id"), args...); err != nil {
		return nil, fmt.Errorf("failed to get topics: %v", err)
	}
	out := make([]models.Topic, 0, len(rows))
	for _, row := range rows {
		t, err := row.topic()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// Upsert creates or updates a topic
func (r *TopicRepository) Upsert(ctx context.Context, t models.Topic) error {
	if t.ID <= 0 || strings.TrimSpace(t.Name) == "" || t.ExamWeight <= 0 {
		return fmt.Errorf("%w: topic needs a positive id, a name and a positive exam weight", models.ErrValidation)
	}
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO topics (id, subject, name, exam_weight, prerequisites)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			subject = excluded.subject,
			name = excluded.name,
			exam_weight = excluded.exam_weight,
			prerequisites = excluded.prerequisites`),
		t.ID, t.Subject, t.Name, t.ExamWeight, encodeList(t.Prerequisites))
	if err != nil {
		return fmt.Errorf("failed to save topic: %v", err)
	}
	return nil
}

// Delete removes a topic
func (r *TopicRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind("DELETE FROM topics WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("failed to delete topic: %v", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: topic %d", models.ErrNotFound, id)
	}
	return nil
}
