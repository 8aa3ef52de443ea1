package db

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/mrwolf/align-server/internal/models"
)

var milestoneColumns = []string{
	"id", "user_id", "title", "description", "target", "progress", "priority", "due_date", "created_at",
}

// CreateMilestone inserts a milestone at zero progress
func (db *DB) CreateMilestone(ctx context.Context, userID string, req models.CreateMilestoneRequest) (*models.Milestone, error) {
	priority := req.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}
	m := &models.Milestone{
		ID:          uuid.NewString(),
		UserID:      userID,
		Title:       req.Title,
		Description: req.Description,
		Target:      req.Target,
		Priority:    priority,
		DueDate:     req.DueDate,
		CreatedAt:   db.now(),
	}

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO milestones (id, user_id, title, description, target, progress, priority, due_date, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?)
	`, m.ID, userID, m.Title, m.Description, m.Target, m.Priority,
		formatOptionalTime(m.DueDate), formatTime(m.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("inserting milestone: %w", err)
	}
	return m, nil
}

// ListMilestones returns the user's milestones by priority then due date. Finished milestones
// (progress 100) are skipped unless includeCompleted is set.
func (db *DB) ListMilestones(ctx context.Context, userID string, includeCompleted bool) ([]models.Milestone, error) {
	q := sq.Select(milestoneColumns...).From("milestones").
		Where(sq.Eq{"user_id": userID}).
		OrderBy(priorityOrder, "due_date IS NULL", "due_date ASC")
	if !includeCompleted {
		q = q.Where(sq.Lt{"progress": 100})
	}
	return db.queryMilestones(ctx, q)
}

// FindMilestone returns the first milestone whose title contains fragment, or nil, nil.
func (db *DB) FindMilestone(ctx context.Context, userID, fragment string) (*models.Milestone, error) {
	q := sq.Select(milestoneColumns...).From("milestones").
		Where(sq.Eq{"user_id": userID}).
		Where(sq.Like{"title": "%" + fragment + "%"}).
		OrderBy("created_at ASC").
		Limit(1)
	ms, err := db.queryMilestones(ctx, q)
	if err != nil || len(ms) == 0 {
		return nil, err
	}
	return &ms[0], nil
}

// UpdateMilestoneProgress sets progress, clamped to 0..100
func (db *DB) UpdateMilestoneProgress(ctx context.Context, userID, id string, progress int) error {
	progress = min(100, max(0, progress))
	result, err := db.conn.ExecContext(ctx, `
		UPDATE milestones SET progress = ? WHERE id = ? AND user_id = ?
	`, progress, id, userID)
	if err != nil {
		return fmt.Errorf("updating milestone progress: %w", err)
	}
	return requireAffected(result)
}

// DeleteMilestone removes a milestone
func (db *DB) DeleteMilestone(ctx context.Context, userID, id string) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM milestones WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("deleting milestone: %w", err)
	}
	return requireAffected(result)
}

func (db *DB) queryMilestones(ctx context.Context, q sq.SelectBuilder) ([]models.Milestone, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building milestone query: %w", err)
	}
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying milestones: %w", err)
	}
	defer rows.Close()

	milestones := make([]models.Milestone, 0)
	for rows.Next() {
		var m models.Milestone
		var description, target, due sql.NullString
		var createdStr string
		if err := rows.Scan(&m.ID, &m.UserID, &m.Title, &description, &target, &m.Progress,
			&m.Priority, &due, &createdStr); err != nil {
			return nil, err
		}
		m.Description = description.String
		m.Target = target.String
		m.DueDate = parseOptionalTime(due)
		if c := parseOptionalTime(sql.NullString{String: createdStr, Valid: true}); c != nil {
			m.CreatedAt = *c
		}
		milestones = append(milestones, m)
	}
	return milestones, rows.Err()
}
