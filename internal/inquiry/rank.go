// Package inquiry selects the follow-up questions worth asking a user, given a snapshot of their
// todos, milestones, memos and recent signals.
package inquiry

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/mrwolf/align-server/internal/models"
)

// Budget is the maximum number of inquiries returned by Rank.
const Budget = 3

// StaleAfter is how long after the last alignment a generic check-in is asked.
const StaleAfter = 5 * time.Hour

const (
	priorityUrgent = 1
	prioritySignal = 2
	priorityReview = 3
)

// Rank returns at most Budget inquiries in precedence order: blocked todos, overdue todos,
// at-risk milestones, the first risk signal, the first context change, the least recently
// reviewed memo, and finally a check-in when the last alignment is stale. Calendar comparisons
// use now's location.
func Rank(snap models.InquiryRequest, now time.Time) []models.Inquiry {
	out := make([]models.Inquiry, 0, Budget)
	full := func() bool { return len(out) >= Budget }

	for _, todo := range append(blockedTodos(snap.Todos), overdueTodos(snap.Todos, now)...) {
		if full() {
			break
		}
		out = append(out, todoInquiry(todo))
	}

	for _, m := range atRiskMilestones(snap.Milestones, now) {
		if full() {
			break
		}
		out = append(out, milestoneInquiry(m, now))
	}

	if !full() && len(snap.Signals.Risks) > 0 {
		out = append(out, models.Inquiry{
			Question: fmt.Sprintf("关于提到的风险「%s」，现在的状况有没有变化？", snap.Signals.Risks[0]),
			Context:  "风险追踪",
			Priority: prioritySignal,
		})
	}

	if !full() && len(snap.Signals.ContextChanges) > 0 {
		out = append(out, models.Inquiry{
			Question: fmt.Sprintf("由于「%s」导致的变化，需要我们调整计划吗？", snap.Signals.ContextChanges[0]),
			Context:  "上下文变更",
			Priority: prioritySignal,
		})
	}

	if !full() && len(snap.Memos) > 0 {
		out = append(out, memoInquiry(stalestMemo(snap.Memos)))
	}

	if !full() && snap.LastAlignAt != nil && now.Sub(*snap.LastAlignAt) >= StaleAfter {
		out = append(out, models.Inquiry{
			Question: "距离上次拉齐已经超过 5 小时，有没有新的进展需要同步？",
			Context:  "上次拉齐：" + formatDateTime(snap.LastAlignAt.In(now.Location())),
			Priority: priorityReview,
		})
	}

	return out
}

func blockedTodos(todos []models.Todo) []models.Todo {
	var out []models.Todo
	for _, t := range todos {
		if t.IsBlocker && t.Status != models.StatusCompleted {
			out = append(out, t)
		}
	}
	return out
}

// overdueTodos keeps open todos due before now on an earlier calendar day. A todo that is also a
// blocker is listed here as well.
func overdueTodos(todos []models.Todo, now time.Time) []models.Todo {
	var out []models.Todo
	for _, t := range todos {
		if t.Status != models.StatusCompleted && isOverdue(t.DueDate, now) {
			out = append(out, t)
		}
	}
	return out
}

func isOverdue(due *time.Time, now time.Time) bool {
	if due == nil {
		return false
	}
	return due.Before(now) && !sameDay(*due, now)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.In(b.Location()).Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func todoInquiry(t models.Todo) models.Inquiry {
	context := "状态：" + statusLabel(t.Status)
	if t.LastCommitment != "" {
		context = "上次承诺：" + t.LastCommitment
	}
	return models.Inquiry{
		Question: fmt.Sprintf("「%s」目前进展如何？需要额外支持来解除阻塞吗？", t.Title),
		Context:  context,
		Priority: priorityUrgent,
	}
}

func statusLabel(status string) string {
	switch status {
	case models.StatusCompleted:
		return "已完成"
	case models.StatusInProgress:
		return "进行中"
	default:
		return "未开始"
	}
}

type riskyMilestone struct {
	models.Milestone
	daysToDue *int
}

// atRiskMilestones filters milestones behind schedule and orders them by days to due, undated
// last. The sort is stable so input order breaks ties.
func atRiskMilestones(milestones []models.Milestone, now time.Time) []riskyMilestone {
	var out []riskyMilestone
	for _, m := range milestones {
		r := riskyMilestone{Milestone: m}
		if m.DueDate != nil {
			d := daysUntil(now, *m.DueDate)
			r.daysToDue = &d
		}
		if atRisk(r) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].daysToDue, out[j].daysToDue
		if a == nil {
			return false
		}
		if b == nil {
			return true
		}
		return *a < *b
	})
	return out
}

func atRisk(m riskyMilestone) bool {
	switch {
	case m.Progress >= 100:
		return false
	case m.daysToDue == nil:
		return m.Progress < 50
	case *m.daysToDue <= 3:
		return m.Progress < 90
	case *m.daysToDue <= 7:
		return m.Progress < 70
	}
	return false
}

// daysUntil is the ceiling of the exact number of days from now to due. Past dates are negative.
func daysUntil(now, due time.Time) int {
	days := math.Ceil(float64(due.Sub(now)) / float64(24*time.Hour))
	return int(days)
}

func milestoneInquiry(m riskyMilestone, now time.Time) models.Inquiry {
	context := "无明确截止时间"
	if m.DueDate != nil {
		context = fmt.Sprintf("截止 %s 仅剩 %d 天", formatDate(m.DueDate.In(now.Location())), *m.daysToDue)
	}
	return models.Inquiry{
		Question: fmt.Sprintf("里程碑「%s」当前进度 %d%% ，按这个节奏能否完成目标？", m.Title, m.Progress),
		Context:  context,
		Priority: priorityUrgent,
	}
}

// stalestMemo returns the memo reviewed longest ago. Never reviewed counts as the Unix epoch and
// the earliest entry wins ties.
func stalestMemo(memos []models.Memo) models.Memo {
	reviewed := func(m models.Memo) int64 {
		if m.LastReviewedAt == nil {
			return 0
		}
		return m.LastReviewedAt.UnixMilli()
	}
	oldest := memos[0]
	for _, m := range memos[1:] {
		if reviewed(m) < reviewed(oldest) {
			oldest = m
		}
	}
	return oldest
}

func memoInquiry(m models.Memo) models.Inquiry {
	context := "长期记忆复核"
	if m.Category != "" {
		context = "分类：" + m.Category
	}
	return models.Inquiry{
		Question: fmt.Sprintf("长记忆「%s」还保持有效吗？需要更新相关判断吗？", m.Key),
		Context:  context,
		Priority: priorityReview,
	}
}

func formatDate(t time.Time) string {
	return fmt.Sprintf("%d/%d", int(t.Month()), t.Day())
}

func formatDateTime(t time.Time) string {
	return fmt.Sprintf("%d/%d %02d:%02d", int(t.Month()), t.Day(), t.Hour(), t.Minute())
}
