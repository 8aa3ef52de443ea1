package db

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	apperrors "github.com/mrwolf/align-server/internal/errors"
	"github.com/mrwolf/align-server/internal/models"
)

var todoColumns = []string{
	"id", "user_id", "title", "description", "status", "priority",
	"due_date", "is_blocker", "last_commitment", "completed_at", "created_at",
}

// CreateTodo inserts a pending todo for the user
func (db *DB) CreateTodo(ctx context.Context, userID string, req models.CreateTodoRequest) (*models.Todo, error) {
	priority := req.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}
	todo := &models.Todo{
		ID:          uuid.NewString(),
		UserID:      userID,
		Title:       req.Title,
		Description: req.Description,
		Status:      models.StatusPending,
		Priority:    priority,
		DueDate:     req.DueDate,
		IsBlocker:   req.IsBlocker,
		CreatedAt:   db.now(),
	}

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO todos (id, user_id, title, description, status, priority, due_date, is_blocker, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, todo.ID, userID, todo.Title, todo.Description, todo.Status, todo.Priority,
		formatOptionalTime(todo.DueDate), boolToInt(todo.IsBlocker), formatTime(todo.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("inserting todo: %w", err)
	}
	return todo, nil
}

// ListTodos returns the user's todos, optionally filtered by status. An empty status or "all"
// returns everything. Urgent and recent todos come first.
func (db *DB) ListTodos(ctx context.Context, userID, status string) ([]models.Todo, error) {
	q := sq.Select(todoColumns...).From("todos").
		Where(sq.Eq{"user_id": userID}).
		OrderBy(priorityOrder, "created_at DESC")
	if status != "" && status != "all" {
		q = q.Where(sq.Eq{"status": status})
	}
	return db.queryTodos(ctx, q)
}

// FindOpenTodo returns the first unfinished todo whose title contains fragment, ignoring case
// for ASCII letters. Returns nil, nil when nothing matches.
func (db *DB) FindOpenTodo(ctx context.Context, userID, fragment string) (*models.Todo, error) {
	return db.findTodo(ctx, userID, fragment, true)
}

// FindTodo is FindOpenTodo including completed todos.
func (db *DB) FindTodo(ctx context.Context, userID, fragment string) (*models.Todo, error) {
	return db.findTodo(ctx, userID, fragment, false)
}

func (db *DB) findTodo(ctx context.Context, userID, fragment string, openOnly bool) (*models.Todo, error) {
	q := sq.Select(todoColumns...).From("todos").
		Where(sq.Eq{"user_id": userID}).
		Where(sq.Like{"title": "%" + fragment + "%"}).
		OrderBy("created_at ASC").
		Limit(1)
	if openOnly {
		q = q.Where(sq.NotEq{"status": models.StatusCompleted})
	}
	todos, err := db.queryTodos(ctx, q)
	if err != nil || len(todos) == 0 {
		return nil, err
	}
	return &todos[0], nil
}

// CompleteTodo marks a todo completed
func (db *DB) CompleteTodo(ctx context.Context, userID, id string) error {
	result, err := db.conn.ExecContext(ctx, `
		UPDATE todos SET status = ?, completed_at = ?
		WHERE id = ? AND user_id = ?
	`, models.StatusCompleted, formatTime(db.now()), id, userID)
	if err != nil {
		return fmt.Errorf("completing todo: %w", err)
	}
	return requireAffected(result)
}

// SetTodoCommitment records the last thing the user committed to for a todo
func (db *DB) SetTodoCommitment(ctx context.Context, userID, id, commitment string) error {
	result, err := db.conn.ExecContext(ctx, `
		UPDATE todos SET last_commitment = ? WHERE id = ? AND user_id = ?
	`, commitment, id, userID)
	if err != nil {
		return fmt.Errorf("updating todo commitment: %w", err)
	}
	return requireAffected(result)
}

// DeleteTodo removes a todo
func (db *DB) DeleteTodo(ctx context.Context, userID, id string) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM todos WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("deleting todo: %w", err)
	}
	return requireAffected(result)
}

func (db *DB) queryTodos(ctx context.Context, q sq.SelectBuilder) ([]models.Todo, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building todo query: %w", err)
	}
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying todos: %w", err)
	}
	defer rows.Close()

	todos := make([]models.Todo, 0)
	for rows.Next() {
		var t models.Todo
		var description, due, commitment, completed sql.NullString
		var blocker int
		var createdStr string
		if err := rows.Scan(&t.ID, &t.UserID, &t.Title, &description, &t.Status, &t.Priority,
			&due, &blocker, &commitment, &completed, &createdStr); err != nil {
			return nil, err
		}
		t.Description = description.String
		t.DueDate = parseOptionalTime(due)
		t.IsBlocker = blocker != 0
		t.LastCommitment = commitment.String
		t.CompletedAt = parseOptionalTime(completed)
		if c := parseOptionalTime(sql.NullString{String: createdStr, Valid: true}); c != nil {
			t.CreatedAt = *c
		}
		todos = append(todos, t)
	}
	return todos, rows.Err()
}

func requireAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}
