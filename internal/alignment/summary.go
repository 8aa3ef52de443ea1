package alignment

import (
	"fmt"
	"strings"
)

const (
	summarySeparator = " · "

	// EmptySummary is returned when nothing was extracted.
	EmptySummary = "已解析输入，等待下一步操作"
)

// Counts are the extraction totals a summary is built from.
type Counts struct {
	Achievements int `json:"achievements"`
	Milestones   int `json:"milestones"`
	Blockers     int `json:"blockers"`
	Decisions    int `json:"decisions"`
	Risks        int `json:"risks"`
}

// Summarize builds the digest line. Clause order is fixed: achievements, milestone updates,
// blockers, decisions, risks.
func Summarize(c Counts) string {
	var parts []string
	if c.Achievements > 0 {
		parts = append(parts, fmt.Sprintf("识别到 %d 条成就", c.Achievements))
	}
	if c.Milestones > 0 {
		parts = append(parts, fmt.Sprintf("更新了 %d 个里程碑进度", c.Milestones))
	}
	if c.Blockers > 0 {
		parts = append(parts, fmt.Sprintf("存在 %d 个潜在阻塞", c.Blockers))
	}
	if c.Decisions > 0 {
		parts = append(parts, fmt.Sprintf("记录 %d 项决策", c.Decisions))
	}
	if c.Risks > 0 {
		parts = append(parts, fmt.Sprintf("监控 %d 个风险信号", c.Risks))
	}
	if len(parts) == 0 {
		return EmptySummary
	}
	return strings.Join(parts, summarySeparator)
}
