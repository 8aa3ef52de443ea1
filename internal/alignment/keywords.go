package alignment

import "strings"

// Tag is one semantic bucket a sentence can fall into.
type Tag uint8

const (
	TagAchievement Tag = 1 << iota
	TagBlocker
	TagDecision
	TagMemo
	TagContextChange
	TagRisk
)

var tagNames = map[Tag]string{
	TagAchievement:   "achievement",
	TagBlocker:       "blocker",
	TagDecision:      "decision",
	TagMemo:          "memo",
	TagContextChange: "context-change",
	TagRisk:          "risk",
}

func (t Tag) String() string {
	if name, ok := tagNames[t]; ok {
		return name
	}
	return "unknown"
}

// TagSet holds the independent tags of one sentence. Classification is not exclusive.
type TagSet uint8

// Has reports whether t is in the set.
func (s TagSet) Has(t Tag) bool { return s&TagSet(t) != 0 }

// With returns a copy of the set including t.
func (s TagSet) With(t Tag) TagSet { return s | TagSet(t) }

// Keyword tables. Latin keywords are matched case-insensitively.
var keywords = map[Tag][]string{
	TagAchievement:   {"完成", "搞定", "实现", "交付", "上线"},
	TagBlocker:       {"卡住", "阻塞", "问题", "困难", "风险", "挑战", "延迟"},
	TagDecision:      {"决定", "计划", "准备", "打算", "安排", "调整"},
	TagMemo:          {"记得", "需要记录", "memo", "提醒", "长期", "灵感"},
	TagContextChange: {"调整", "变化", "改成", "切换", "更换"},
	TagRisk:          {"风险", "担心", "隐患", "紧急", "压力"},
}

var allTags = []Tag{TagAchievement, TagBlocker, TagDecision, TagMemo, TagContextChange, TagRisk}

// containsAny reports whether sentence contains at least one of the keywords as a substring.
func containsAny(sentence string, words []string) bool {
	lower := strings.ToLower(sentence)
	for _, w := range words {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// Classify tags a sentence against every keyword table.
func Classify(sentence string) TagSet {
	var set TagSet
	for _, t := range allTags {
		if containsAny(sentence, keywords[t]) {
			set = set.With(t)
		}
	}
	return set
}

// Classified is a sentence together with its tags.
type Classified struct {
	Text string
	Tags TagSet
}

// ClassifyAll tags every sentence, preserving order.
func ClassifyAll(sentences []string) []Classified {
	out := make([]Classified, len(sentences))
	for i, s := range sentences {
		out[i] = Classified{Text: s, Tags: Classify(s)}
	}
	return out
}

// collect returns the sentences carrying tag, deduplicated by exact text in first-seen order.
func collect(sentences []Classified, tag Tag) []string {
	matches := make([]string, 0)
	for _, s := range sentences {
		if s.Tags.Has(tag) {
			matches = append(matches, s.Text)
		}
	}
	return firstWins(matches, func(s string) string { return s })
}
