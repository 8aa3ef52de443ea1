package alignment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchCompletedLabel(t *testing.T) {
	tests := []struct {
		name      string
		sentence  string
		wantLabel string
		wantOK    bool
	}{
		{"ascii label", "完成了A", "A", true},
		{"suffix stripped", "完成任务", "", true},
		{"todo suffix", "搞定 api todo", " api ", true},
		{"label before terminator", "收尾了 deploy-v2/api，下一步写文档", " deploy-v2/api", true},
		{"verb at end", "已经完成", "", true},
		{"cjk label does not match", "完成了登录页面", "", false},
		{"label not followed by end", "完成了 alpha 版本", "", false},
		{"no verb", "上线了新功能", "", false},
		{"second verb matches", "完成了一半，搞定 docs", " docs", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			label, ok := matchCompletedLabel(tt.sentence)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantLabel, label)
		})
	}
}

func TestMatchMilestone(t *testing.T) {
	tests := []struct {
		name       string
		sentence   string
		wantName   string
		wantDigits string
		wantOK     bool
	}{
		{"name swallows trailing words", "广告投放里程碑进度提升到 55%", "进度提升到", "55", true},
		{"latin marker", "milestone Beta: 80%", "Beta", "80", true},
		{"marker case insensitive", "MILESTONE launch 150%", "launch", "150", true},
		{"number never split into name", "里程碑55%", "", "55", true},
		{"numeric name", "阶段2 55%", "2", "55", true},
		{"four digits do not match", "阶段二 完成 1000%", "", "", false},
		{"no marker", "进度 55%", "", "", false},
		{"no percent sign", "里程碑 Beta 55", "", "", false},
		{"first marker wins", "里程碑A 30% 然后 里程碑B 40%", "A", "30", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, digits, ok := matchMilestone(tt.sentence)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantDigits, digits)
		})
	}
}

func TestMatchMemoKey(t *testing.T) {
	tests := []struct {
		sentence string
		wantKey  string
		wantOK   bool
	}{
		{"memo: 季度目标 记得复盘", "季度目标", true},
		{"Memo：pitch-deck", "pitch-deck", true},
		{"memo roadmap/q3", "roadmap/q3", true},
		{"记得 memo", "", false},
		{"记得买牛奶", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.sentence, func(t *testing.T) {
			key, ok := matchMemoKey(tt.sentence)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantKey, key)
		})
	}
}

func TestParsePercent(t *testing.T) {
	assert.Equal(t, 55, parsePercent("55"))
	assert.Equal(t, 100, parsePercent("100"))
	assert.Equal(t, 100, parsePercent("150"))
	assert.Equal(t, 0, parsePercent("0"))

	// Unparseable captures become 0 instead of dropping the update.
	assert.Equal(t, 0, parsePercent("abc"))
	assert.Equal(t, 0, parsePercent(""))
}
