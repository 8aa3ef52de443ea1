package alignment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummarize(t *testing.T) {
	tests := []struct {
		name   string
		counts Counts
		want   string
	}{
		{"empty", Counts{}, EmptySummary},
		{"single clause", Counts{Risks: 2}, "监控 2 个风险信号"},
		{
			name:   "fixed clause order",
			counts: Counts{Achievements: 1, Milestones: 2, Blockers: 3, Decisions: 4, Risks: 5},
			want:   "识别到 1 条成就 · 更新了 2 个里程碑进度 · 存在 3 个潜在阻塞 · 记录 4 项决策 · 监控 5 个风险信号",
		},
		{"gaps skipped", Counts{Achievements: 1, Decisions: 1}, "识别到 1 条成就 · 记录 1 项决策"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Summarize(tt.counts))
		})
	}
}
