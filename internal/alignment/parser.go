// Package alignment turns a free-text status update into structured updates: completed todos,
// milestone progress, memo candidates and risk/context-change signals.
//
// Everything here is a pure function of the input text and the fixed keyword tables.
package alignment

import (
	"strings"

	apperrors "github.com/mrwolf/align-server/internal/errors"
	"github.com/mrwolf/align-server/internal/models"
)

// Parsed groups the classified sentences returned to the caller.
type Parsed struct {
	Achievements []string `json:"achievements"`
	Blockers     []string `json:"blockers"`
	Decisions    []string `json:"decisions"`
}

// Updates are the entity changes inferred from the text.
type Updates struct {
	CompletedTodos    []string            `json:"completed_todos"`
	MilestoneProgress []MilestoneProgress `json:"milestone_progress"`
	NewMemos          []MemoCandidate     `json:"new_memos"`
}

// Result is the outcome of one parse.
type Result struct {
	Parsed  Parsed         `json:"parsed"`
	Updates Updates        `json:"updates"`
	Signals models.Signals `json:"signals"`
	Summary string         `json:"summary"`
}

// Counts returns the totals the summary is derived from.
func (r *Result) Counts() Counts {
	return Counts{
		Achievements: len(r.Parsed.Achievements),
		Milestones:   len(r.Updates.MilestoneProgress),
		Blockers:     len(r.Parsed.Blockers),
		Decisions:    len(r.Parsed.Decisions),
		Risks:        len(r.Signals.Risks),
	}
}

// Parse runs segmentation, classification, extraction and summarization over text.
func Parse(text string) (*Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperrors.NewValidationError("text", "请提供需要拉齐的文本")
	}

	sentences := ClassifyAll(SplitSentences(text))

	risks := collect(sentences, TagRisk)
	result := &Result{
		Parsed: Parsed{
			Achievements: collect(sentences, TagAchievement),
			Blockers:     collect(sentences, TagBlocker),
			Decisions:    collect(sentences, TagDecision),
		},
		Updates: Updates{
			CompletedTodos:    ExtractCompletedTodos(sentences),
			MilestoneProgress: ExtractMilestoneProgress(sentences),
			NewMemos:          ExtractMemos(sentences),
		},
		Signals: models.Signals{
			Risks:          risks,
			ContextChanges: without(collect(sentences, TagContextChange), risks),
		},
	}
	result.Summary = Summarize(result.Counts())
	return result, nil
}

// without drops every item of list that also appears in exclude. Risk classification takes
// precedence over context-change classification.
func without(list, exclude []string) []string {
	skip := make(map[string]struct{}, len(exclude))
	for _, e := range exclude {
		skip[e] = struct{}{}
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if _, ok := skip[item]; !ok {
			out = append(out, item)
		}
	}
	return out
}
