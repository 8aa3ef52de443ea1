// Package reconcile applies a parsed alignment to a user's stored todos, milestones and memos.
package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mrwolf/align-server/internal/alignment"
	"github.com/mrwolf/align-server/internal/db"
	"github.com/mrwolf/align-server/internal/models"
	"github.com/mrwolf/align-server/internal/slug"
)

// Store is the subset of the database the reconciler writes through.
type Store interface {
	ListTodos(ctx context.Context, userID, status string) ([]models.Todo, error)
	CompleteTodo(ctx context.Context, userID, id string) error
	ListMilestones(ctx context.Context, userID string, includeCompleted bool) ([]models.Milestone, error)
	UpdateMilestoneProgress(ctx context.Context, userID, id string, progress int) error
	UpsertMemo(ctx context.Context, userID, key, content, category string) (*models.Memo, error)
	SaveAlignment(ctx context.Context, rec *db.AlignmentRecord) error
}

// Report lists what an alignment changed. Unmatched holds slugs that matched no stored entity.
type Report struct {
	CompletedTodos    []string `json:"completed_todos"`
	UpdatedMilestones []string `json:"updated_milestones"`
	SavedMemos        []string `json:"saved_memos"`
	Unmatched         []string `json:"unmatched"`
}

// Reconciler writes parsed alignments to the store.
type Reconciler struct {
	store  Store
	logger zerolog.Logger
}

func New(store Store, logger zerolog.Logger) *Reconciler {
	return &Reconciler{store: store, logger: logger.With().Str("component", "reconcile").Logger()}
}

// Apply matches the result's completed todos and milestone progress against the user's open
// items by slugified title, upserts its memos and saves the alignment itself.
func (r *Reconciler) Apply(ctx context.Context, userID, text string, res *alignment.Result) (*Report, error) {
	report := &Report{
		CompletedTodos:    []string{},
		UpdatedMilestones: []string{},
		SavedMemos:        []string{},
		Unmatched:         []string{},
	}

	todos, err := r.store.ListTodos(ctx, userID, "")
	if err != nil {
		return nil, fmt.Errorf("loading todos: %w", err)
	}
	open := make([]titled, 0, len(todos))
	for _, t := range todos {
		if t.Status != models.StatusCompleted {
			open = append(open, titled{id: t.ID, title: t.Title, slug: slug.Slugify(t.Title)})
		}
	}
	for _, s := range res.Updates.CompletedTodos {
		i := match(open, s)
		if i < 0 {
			report.Unmatched = append(report.Unmatched, s)
			continue
		}
		if err := r.store.CompleteTodo(ctx, userID, open[i].id); err != nil {
			return nil, fmt.Errorf("completing todo %s: %w", open[i].id, err)
		}
		report.CompletedTodos = append(report.CompletedTodos, open[i].title)
		open = append(open[:i], open[i+1:]...)
	}

	milestones, err := r.store.ListMilestones(ctx, userID, true)
	if err != nil {
		return nil, fmt.Errorf("loading milestones: %w", err)
	}
	candidates := make([]titled, 0, len(milestones))
	for _, m := range milestones {
		candidates = append(candidates, titled{id: m.ID, title: m.Title, slug: slug.Slugify(m.Title)})
	}
	for _, mp := range res.Updates.MilestoneProgress {
		i := match(candidates, mp.ID)
		if i < 0 {
			report.Unmatched = append(report.Unmatched, mp.ID)
			continue
		}
		if err := r.store.UpdateMilestoneProgress(ctx, userID, candidates[i].id, mp.Progress); err != nil {
			return nil, fmt.Errorf("updating milestone %s: %w", candidates[i].id, err)
		}
		report.UpdatedMilestones = append(report.UpdatedMilestones, candidates[i].title)
	}

	for _, memo := range res.Updates.NewMemos {
		if _, err := r.store.UpsertMemo(ctx, userID, memo.Key, memo.Content, memo.Category); err != nil {
			return nil, fmt.Errorf("saving memo %s: %w", memo.Key, err)
		}
		report.SavedMemos = append(report.SavedMemos, memo.Key)
	}

	encoded, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("encoding alignment: %w", err)
	}
	err = r.store.SaveAlignment(ctx, &db.AlignmentRecord{
		UserID:  userID,
		Text:    text,
		Summary: res.Summary,
		Result:  encoded,
		Signals: res.Signals,
	})
	if err != nil {
		return nil, fmt.Errorf("saving alignment: %w", err)
	}

	r.logger.Info().
		Str("user", userID).
		Int("todos", len(report.CompletedTodos)).
		Int("milestones", len(report.UpdatedMilestones)).
		Int("memos", len(report.SavedMemos)).
		Int("unmatched", len(report.Unmatched)).
		Msg("alignment applied")
	return report, nil
}

type titled struct {
	id    string
	title string
	slug  string
}

// match returns the index of the entity whose slug equals s, else the first whose slug contains
// s or is contained in it, else -1.
func match(items []titled, s string) int {
	if s == "" {
		return -1
	}
	for i, it := range items {
		if it.slug == s {
			return i
		}
	}
	for i, it := range items {
		if it.slug != "" && (strings.Contains(it.slug, s) || strings.Contains(s, it.slug)) {
			return i
		}
	}
	return -1
}
