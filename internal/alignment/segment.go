package alignment

import "strings"

// SplitSentences splits text on runs of 。！？!? and newlines, trims every fragment and drops the
// empty ones. Order and duplicates are preserved.
func SplitSentences(text string) []string {
	fields := strings.FieldsFunc(text, isSentenceDelimiter)
	sentences := make([]string, 0, len(fields))
	for _, f := range fields {
		if s := strings.TrimSpace(f); s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

func isSentenceDelimiter(r rune) bool {
	switch r {
	case '。', '！', '？', '!', '?', '\n':
		return true
	}
	return false
}
