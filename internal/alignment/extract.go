package alignment

import (
	"strings"

	"github.com/mrwolf/align-server/internal/slug"
)

// Memo categories inferred from memo sentences.
const (
	MemoCategoryGoal = "goal"
	MemoCategoryRisk = "risk"
)

// MilestoneProgress is a progress update for the milestone identified by the slug ID.
type MilestoneProgress struct {
	ID       string `json:"id"`
	Progress int    `json:"progress"`
}

// MemoCandidate is a memo proposed from a sentence.
type MemoCandidate struct {
	Key      string `json:"key"`
	Content  string `json:"content"`
	Category string `json:"category,omitempty"`
}

// slugOr slugifies label, falling back to the slug of sentence when the label is blank or
// normalizes to nothing.
func slugOr(label, sentence string) string {
	if strings.TrimSpace(label) != "" {
		if s := slug.Slugify(label); s != "" {
			return s
		}
	}
	return slug.Slugify(sentence)
}

// ExtractCompletedTodos returns slugs of the work items that achievement sentences report as done.
// Sentences without the achievement tag are skipped entirely.
func ExtractCompletedTodos(sentences []Classified) []string {
	completed := make([]string, 0)
	for _, s := range sentences {
		if !s.Tags.Has(TagAchievement) {
			continue
		}
		label, _ := matchCompletedLabel(s.Text)
		completed = append(completed, slugOr(label, s.Text))
	}
	return firstWins(completed, func(id string) string { return id })
}

// ExtractMilestoneProgress scans every sentence, regardless of tags, for milestone percentages.
// The first mention of a milestone wins.
func ExtractMilestoneProgress(sentences []Classified) []MilestoneProgress {
	updates := make([]MilestoneProgress, 0)
	for _, s := range sentences {
		name, digits, ok := matchMilestone(s.Text)
		if !ok {
			continue
		}
		updates = append(updates, MilestoneProgress{
			ID:       slugOr(name, s.Text),
			Progress: parsePercent(digits),
		})
	}
	return firstWins(updates, func(m MilestoneProgress) string { return m.ID })
}

// ExtractMemos turns memo sentences into memo candidates keyed by an explicit "memo:" key or the
// sentence slug. The first memo for a key wins.
func ExtractMemos(sentences []Classified) []MemoCandidate {
	memos := make([]MemoCandidate, 0)
	for _, s := range sentences {
		if !s.Tags.Has(TagMemo) {
			continue
		}
		key, _ := matchMemoKey(s.Text)
		memos = append(memos, MemoCandidate{
			Key:      slugOr(key, s.Text),
			Content:  s.Text,
			Category: memoCategory(s.Text),
		})
	}
	return firstWins(memos, func(m MemoCandidate) string { return m.Key })
}

func memoCategory(sentence string) string {
	switch {
	case strings.Contains(sentence, "目标"):
		return MemoCategoryGoal
	case strings.Contains(sentence, "风险"):
		return MemoCategoryRisk
	}
	return ""
}
