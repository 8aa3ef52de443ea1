package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mrwolf/align-server/internal/models"
)

// AlignmentRecord is one stored alignment. Result holds the parsed result as JSON.
type AlignmentRecord struct {
	ID        string
	UserID    string
	Text      string
	Summary   string
	Result    json.RawMessage
	Signals   models.Signals
	CreatedAt time.Time
}

// SaveAlignment stores a parsed alignment and its signals
func (db *DB) SaveAlignment(ctx context.Context, rec *AlignmentRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = db.now()
	}
	risks, err := json.Marshal(nonNil(rec.Signals.Risks))
	if err != nil {
		return fmt.Errorf("encoding risks: %w", err)
	}
	changes, err := json.Marshal(nonNil(rec.Signals.ContextChanges))
	if err != nil {
		return fmt.Errorf("encoding context changes: %w", err)
	}

	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO alignments (id, user_id, text, summary, result, risks, context_changes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.UserID, rec.Text, rec.Summary, string(rec.Result), string(risks), string(changes),
		formatTime(rec.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting alignment: %w", err)
	}
	return nil
}

// LatestAlignment returns the user's most recent alignment, or nil, nil if there is none
func (db *DB) LatestAlignment(ctx context.Context, userID string) (*AlignmentRecord, error) {
	var rec AlignmentRecord
	var result, risks, changes, createdStr string
	err := db.conn.QueryRowContext(ctx, `
		SELECT id, user_id, text, summary, result, risks, context_changes, created_at
		FROM alignments
		WHERE user_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1
	`, userID).Scan(&rec.ID, &rec.UserID, &rec.Text, &rec.Summary, &result, &risks, &changes, &createdStr)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest alignment: %w", err)
	}
	rec.Result = json.RawMessage(result)
	if err := json.Unmarshal([]byte(risks), &rec.Signals.Risks); err != nil {
		return nil, fmt.Errorf("decoding risks: %w", err)
	}
	if err := json.Unmarshal([]byte(changes), &rec.Signals.ContextChanges); err != nil {
		return nil, fmt.Errorf("decoding context changes: %w", err)
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339, createdStr)
	return &rec, nil
}

// ReplaceInquiries stores inquiries as the user's current set, dropping the previous one
func (db *DB) ReplaceInquiries(ctx context.Context, userID string, inquiries []models.Inquiry) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM inquiries WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("clearing inquiries: %w", err)
	}
	created := formatTime(db.now())
	for i, inq := range inquiries {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO inquiries (id, user_id, position, question, context, priority, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, uuid.NewString(), userID, i, inq.Question, inq.Context, inq.Priority, created)
		if err != nil {
			return fmt.Errorf("inserting inquiry: %w", err)
		}
	}
	return tx.Commit()
}

// ListInquiries returns the user's current inquiries in ranked order
func (db *DB) ListInquiries(ctx context.Context, userID string) ([]models.Inquiry, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT question, context, priority FROM inquiries
		WHERE user_id = ?
		ORDER BY position ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying inquiries: %w", err)
	}
	defer rows.Close()

	inquiries := make([]models.Inquiry, 0)
	for rows.Next() {
		var inq models.Inquiry
		if err := rows.Scan(&inq.Question, &inq.Context, &inq.Priority); err != nil {
			return nil, err
		}
		inquiries = append(inquiries, inq)
	}
	return inquiries, rows.Err()
}

// LogInteraction records one chat exchange
func (db *DB) LogInteraction(ctx context.Context, userID, input, summary string) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO interactions (id, user_id, input, summary, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, uuid.NewString(), userID, input, summary, formatTime(db.now()))
	if err != nil {
		return fmt.Errorf("inserting interaction: %w", err)
	}
	return nil
}

// ListInteractions returns the user's interactions since the given time, oldest first
func (db *DB) ListInteractions(ctx context.Context, userID string, since time.Time) ([]models.Interaction, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, user_id, input, summary, created_at FROM interactions
		WHERE user_id = ? AND created_at >= ?
		ORDER BY created_at ASC
	`, userID, formatTime(since))
	if err != nil {
		return nil, fmt.Errorf("querying interactions: %w", err)
	}
	defer rows.Close()

	interactions := make([]models.Interaction, 0)
	for rows.Next() {
		var it models.Interaction
		var createdStr string
		if err := rows.Scan(&it.ID, &it.UserID, &it.Input, &it.Summary, &createdStr); err != nil {
			return nil, err
		}
		it.CreatedAt, _ = time.Parse(time.RFC3339, createdStr)
		interactions = append(interactions, it)
	}
	return interactions, rows.Err()
}

// PruneInteractions deletes interactions and alignments older than cutoff across all users
func (db *DB) PruneInteractions(ctx context.Context, cutoff time.Time) (int64, error) {
	var total int64
	for _, table := range []string{"interactions", "alignments"} {
		result, err := db.conn.ExecContext(ctx, `DELETE FROM `+table+` WHERE created_at < ?`, formatTime(cutoff))
		if err != nil {
			return total, fmt.Errorf("pruning %s: %w", table, err)
		}
		n, _ := result.RowsAffected()
		total += n
	}
	return total, nil
}

// Snapshot assembles what the inquiry ranker needs for one user: all todos and milestones,
// memos, and the signals and timestamp of the latest alignment.
func (db *DB) Snapshot(ctx context.Context, userID string) (models.InquiryRequest, error) {
	var snap models.InquiryRequest
	var err error

	if snap.Todos, err = db.ListTodos(ctx, userID, ""); err != nil {
		return snap, err
	}
	if snap.Milestones, err = db.ListMilestones(ctx, userID, true); err != nil {
		return snap, err
	}
	if snap.Memos, err = db.ListMemos(ctx, userID, ""); err != nil {
		return snap, err
	}
	latest, err := db.LatestAlignment(ctx, userID)
	if err != nil {
		return snap, err
	}
	snap.Signals = models.Signals{Risks: []string{}, ContextChanges: []string{}}
	if latest != nil {
		snap.Signals = latest.Signals
		at := latest.CreatedAt
		snap.LastAlignAt = &at
	}
	return snap, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
