package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mrwolf/align-server/internal/alignment"
	"github.com/mrwolf/align-server/internal/models"
)

func TestRunParse_Argument(t *testing.T) {
	var out bytes.Buffer
	if err := runParse(strings.NewReader(""), &out, []string{"完成了 login 任务"}); err != nil {
		t.Fatalf("runParse error: %v", err)
	}

	var res alignment.Result
	if err := json.Unmarshal(out.Bytes(), &res); err != nil {
		t.Fatalf("decoding output: %v", err)
	}
	if len(res.Updates.CompletedTodos) != 1 || res.Updates.CompletedTodos[0] != "login" {
		t.Errorf("completed_todos = %v, want [login]", res.Updates.CompletedTodos)
	}
}

func TestRunParse_Stdin(t *testing.T) {
	var out bytes.Buffer
	if err := runParse(strings.NewReader("里程碑 Beta 进度 60%\n"), &out, nil); err != nil {
		t.Fatalf("runParse error: %v", err)
	}
	if !strings.Contains(out.String(), `"id": "beta"`) {
		t.Errorf("output missing milestone id:\n%s", out.String())
	}
}

func TestRunParse_Empty(t *testing.T) {
	var out bytes.Buffer
	if err := runParse(strings.NewReader("  \n"), &out, nil); err == nil {
		t.Error("expected an error for empty input")
	}
}

func TestRunInquire(t *testing.T) {
	snap := `{
		"todos": [{"id": "t1", "title": "修复登录", "status": "pending", "isBlocker": true}],
		"milestones": [],
		"memos": [],
		"signals": {"risks": [], "context_changes": ["改成周更"]},
		"lastAlignAt": "2026-03-10T01:00:00Z"
	}`
	path := filepath.Join(t.TempDir(), "snapshot.json")
	if err := os.WriteFile(path, []byte(snap), 0644); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}

	var out bytes.Buffer
	if err := runInquire(&out, path, "2026-03-10T09:00:00Z", time.Time{}); err != nil {
		t.Fatalf("runInquire error: %v", err)
	}

	var resp models.InquiryResponse
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("decoding output: %v", err)
	}
	if len(resp.Inquiries) != 3 {
		t.Fatalf("got %d inquiries, want 3: %+v", len(resp.Inquiries), resp.Inquiries)
	}
	wantPriorities := []int{1, 2, 3}
	for i, inq := range resp.Inquiries {
		if inq.Priority != wantPriorities[i] {
			t.Errorf("inquiry %d priority = %d, want %d", i, inq.Priority, wantPriorities[i])
		}
	}
}

func TestRunInquire_Errors(t *testing.T) {
	dir := t.TempDir()
	invalid := filepath.Join(dir, "invalid.json")
	os.WriteFile(invalid, []byte(`{"todos": [{"title": "x", "status": "done"}]}`), 0644)

	tests := []struct {
		name string
		path string
		now  string
	}{
		{"missing file", filepath.Join(dir, "missing.json"), ""},
		{"bad now", invalid, "yesterday"},
		{"invalid status", invalid, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			if err := runInquire(&out, tt.path, tt.now, time.Now()); err == nil {
				t.Error("expected an error")
			}
		})
	}
}
