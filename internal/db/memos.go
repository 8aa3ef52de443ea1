package db

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/mrwolf/align-server/internal/models"
)

var memoColumns = []string{"id", "user_id", "key", "content", "category", "last_reviewed_at"}

// UpsertMemo creates or replaces the memo stored under key and marks it reviewed now
func (db *DB) UpsertMemo(ctx context.Context, userID, key, content, category string) (*models.Memo, error) {
	reviewed := db.now()
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO memos (id, user_id, key, content, category, last_reviewed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, key) DO UPDATE SET
			content = excluded.content,
			category = excluded.category,
			last_reviewed_at = excluded.last_reviewed_at
	`, uuid.NewString(), userID, key, content, category, formatTime(reviewed))
	if err != nil {
		return nil, fmt.Errorf("upserting memo: %w", err)
	}

	memos, err := db.queryMemos(ctx, sq.Select(memoColumns...).From("memos").
		Where(sq.Eq{"user_id": userID, "key": key}))
	if err != nil {
		return nil, err
	}
	if len(memos) == 0 {
		return nil, fmt.Errorf("memo %q missing after upsert", key)
	}
	return &memos[0], nil
}

// ListMemos returns the user's memos, most recently reviewed first. An empty category returns all.
func (db *DB) ListMemos(ctx context.Context, userID, category string) ([]models.Memo, error) {
	q := sq.Select(memoColumns...).From("memos").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("last_reviewed_at DESC")
	if category != "" {
		q = q.Where(sq.Eq{"category": category})
	}
	return db.queryMemos(ctx, q)
}

// FindMemo returns the first memo whose key contains fragment, or nil, nil.
func (db *DB) FindMemo(ctx context.Context, userID, fragment string) (*models.Memo, error) {
	memos, err := db.queryMemos(ctx, sq.Select(memoColumns...).From("memos").
		Where(sq.Eq{"user_id": userID}).
		Where(sq.Like{"key": "%" + fragment + "%"}).
		OrderBy("key ASC").
		Limit(1))
	if err != nil || len(memos) == 0 {
		return nil, err
	}
	return &memos[0], nil
}

// DeleteMemo removes a memo by id
func (db *DB) DeleteMemo(ctx context.Context, userID, id string) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM memos WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("deleting memo: %w", err)
	}
	return requireAffected(result)
}

func (db *DB) queryMemos(ctx context.Context, q sq.SelectBuilder) ([]models.Memo, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building memo query: %w", err)
	}
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying memos: %w", err)
	}
	defer rows.Close()

	memos := make([]models.Memo, 0)
	for rows.Next() {
		var m models.Memo
		var category, reviewed sql.NullString
		if err := rows.Scan(&m.ID, &m.UserID, &m.Key, &m.Content, &category, &reviewed); err != nil {
			return nil, err
		}
		m.Category = category.String
		m.LastReviewedAt = parseOptionalTime(reviewed)
		memos = append(memos, m)
	}
	return memos, rows.Err()
}
