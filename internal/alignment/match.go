package alignment

import (
	"strconv"
	"strings"
	"unicode"
)

// The matchers below form a small hand-written grammar over the rune slice of one sentence.
// Each returns the capture and whether the pattern matched at all; callers decide the fallback.

var (
	completionVerbs  = []string{"完成", "搞定", "收尾"}
	todoSuffixes     = []string{"任务", "todo", "事项", "工作"}
	milestoneMarkers = []string{"里程碑", "milestone", "阶段"}
	memoMarker       = "memo"
)

const labelTerminators = ",，。；;!！?？"

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

func isWordRune(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || isDigit(r) || r == '_'
}

func isIdeograph(r rune) bool { return r >= 0x4E00 && r <= 0x9FA5 }

// isLabelRune covers the characters allowed in a completed-todo label.
func isLabelRune(r rune) bool {
	return isWordRune(r) || unicode.IsSpace(r) || r == '-' || r == '/'
}

// isNameRune covers the characters allowed in milestone names and memo keys.
func isNameRune(r rune) bool {
	return isWordRune(r) || isIdeograph(r) || r == '-' || r == '/'
}

// wordAt returns the rune length of the first word found at runes[i:], or 0. Words are lowercase
// and matched ignoring case.
func wordAt(runes []rune, i int, words []string) int {
	for _, w := range words {
		if hasPrefixFold(runes, i, w) {
			return len([]rune(w))
		}
	}
	return 0
}

func hasPrefixFold(runes []rune, i int, word string) bool {
	w := []rune(word)
	if i < 0 || i+len(w) > len(runes) {
		return false
	}
	for k, r := range w {
		if unicode.ToLower(runes[i+k]) != r {
			return false
		}
	}
	return true
}

func atLabelEnd(runes []rune, p int) bool {
	return p >= len(runes) || strings.ContainsRune(labelTerminators, runes[p])
}

// matchCompletedLabel finds a completion verb (完成/搞定/收尾, optionally followed by 了) and captures
// the shortest label that is followed either by the end of the sentence or a terminator, optionally
// with a todo suffix (任务/todo/事项/工作) in between. The returned label is untrimmed and may be empty.
func matchCompletedLabel(sentence string) (string, bool) {
	runes := []rune(sentence)
	for i := range runes {
		n := wordAt(runes, i, completionVerbs)
		if n == 0 {
			continue
		}
		start := i + n
		if start < len(runes) && runes[start] == '了' {
			start++
		}
		end := start
		for end < len(runes) && isLabelRune(runes[end]) {
			end++
		}
		for p := start; p <= end; p++ {
			if atLabelEnd(runes, p) {
				return string(runes[start:p]), true
			}
			if s := wordAt(runes, p, todoSuffixes); s > 0 && atLabelEnd(runes, p+s) {
				return string(runes[start:p]), true
			}
		}
	}
	return "", false
}

// matchMilestone finds a milestone marker (里程碑/milestone/阶段), an optional name token, and the
// first 1-3 digit number followed by '%'. The name is the longest token prefix that still leaves a
// percentage behind it; a number is never split between the name and the percentage.
// An empty name means none was captured.
func matchMilestone(sentence string) (name, digits string, ok bool) {
	runes := []rune(sentence)
	for i := range runes {
		n := wordAt(runes, i, milestoneMarkers)
		if n == 0 {
			continue
		}
		start := i + n
		for start < len(runes) && unicode.IsSpace(runes[start]) {
			start++
		}
		end := start
		for end < len(runes) && isNameRune(runes[end]) {
			end++
		}
		for stop := end; stop >= start; stop-- {
			if d, found := percentAfter(runes, stop); found {
				return string(runes[start:stop]), d, true
			}
		}
	}
	return "", "", false
}

// percentAfter skips non-digits from q and reads a 1-3 digit number immediately followed by '%'.
func percentAfter(runes []rune, q int) (string, bool) {
	r := q
	for r < len(runes) && !isDigit(runes[r]) {
		r++
	}
	if r > 0 && r < len(runes) && isDigit(runes[r-1]) {
		return "", false
	}
	d := r
	for d < len(runes) && isDigit(runes[d]) {
		d++
	}
	if n := d - r; n < 1 || n > 3 {
		return "", false
	}
	if d >= len(runes) || runes[d] != '%' {
		return "", false
	}
	return string(runes[r:d]), true
}

// matchMemoKey captures an explicit key written as "memo: key" (colon optional, ASCII or fullwidth).
func matchMemoKey(sentence string) (string, bool) {
	runes := []rune(sentence)
	for i := range runes {
		if !hasPrefixFold(runes, i, memoMarker) {
			continue
		}
		start := i + len(memoMarker)
		if start < len(runes) && (runes[start] == ':' || runes[start] == '：') {
			start++
		}
		for start < len(runes) && unicode.IsSpace(runes[start]) {
			start++
		}
		end := start
		for end < len(runes) && isNameRune(runes[end]) {
			end++
		}
		if end > start {
			return string(runes[start:end]), true
		}
	}
	return "", false
}

// parsePercent converts captured digits to a progress value. Values above 100 clamp to 100.
// Anything that does not parse yields 0 rather than being skipped.
func parsePercent(digits string) int {
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}
