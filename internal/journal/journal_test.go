package journal

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mrwolf/align-server/internal/alignment"
	"github.com/mrwolf/align-server/internal/models"
)

var testTime = time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

func TestNewDisabled(t *testing.T) {
	j := New("")
	if j != nil {
		t.Fatal("expected nil journal for empty path")
	}
	if err := j.LogAlignment(AlignmentEntry{User: "wolf"}); err != nil {
		t.Errorf("nil journal LogAlignment() error = %v", err)
	}
	if path, err := j.WriteDigest("wolf", testTime, nil); err != nil || path != "" {
		t.Errorf("nil journal WriteDigest() = %q, %v", path, err)
	}
}

func TestLogAlignment(t *testing.T) {
	tmpDir := t.TempDir()
	j := New(tmpDir)

	res, err := alignment.Parse("完成了 login 任务。担心预算")
	if err != nil {
		t.Fatalf("parsing: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := j.LogAlignment(NewAlignmentEntry("Wolf", "text", res, testTime)); err != nil {
			t.Fatalf("logging alignment: %v", err)
		}
	}

	f, err := os.Open(filepath.Join(tmpDir, "wolf", "alignments.jsonl"))
	if err != nil {
		t.Fatalf("opening log: %v", err)
	}
	defer f.Close()

	var lines []AlignmentEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e AlignmentEntry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("decoding line: %v", err)
		}
		lines = append(lines, e)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0].Counts.Achievements != 1 || lines[0].Counts.Risks != 1 {
		t.Errorf("unexpected counts: %+v", lines[0].Counts)
	}
	if lines[0].TS != "2026-03-10T09:30:00Z" {
		t.Errorf("unexpected ts %s", lines[0].TS)
	}
}

func TestWriteDigest(t *testing.T) {
	tmpDir := t.TempDir()
	j := New(tmpDir)

	inquiries := []models.Inquiry{
		{Question: "「Deploy」目前进展如何？", Context: "状态：未开始", Priority: 1},
		{Question: "长记忆「k」还保持有效吗？", Context: "长期记忆复核", Priority: 3},
	}
	relPath, err := j.WriteDigest("wolf", testTime, inquiries)
	if err != nil {
		t.Fatalf("writing digest: %v", err)
	}

	expectedPath := filepath.Join("wolf", "inquiries", "2026-03-10.md")
	if relPath != expectedPath {
		t.Errorf("expected path %s, got %s", expectedPath, relPath)
	}

	content, err := j.ReadDigest("wolf", testTime)
	if err != nil {
		t.Fatalf("reading digest: %v", err)
	}
	for _, want := range []string{
		"for_date: 2026-03-10",
		"count: 2",
		"1. [P1] 「Deploy」目前进展如何？",
		"   > 长期记忆复核",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("digest missing %q:\n%s", want, content)
		}
	}

	// Same day overwrites
	if _, err := j.WriteDigest("wolf", testTime.Add(time.Hour), nil); err != nil {
		t.Fatalf("rewriting digest: %v", err)
	}
	content, _ = j.ReadDigest("wolf", testTime)
	if !strings.Contains(content, "暂无需要追问的事项") {
		t.Errorf("expected empty digest, got:\n%s", content)
	}

	entries, _ := os.ReadDir(filepath.Join(tmpDir, "wolf", "inquiries"))
	if len(entries) != 1 {
		t.Errorf("expected no leftover temp files, got %d entries", len(entries))
	}
}

func TestAppendLineAddsNewline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "log.jsonl")
	if err := AppendLine(path, []byte(`{"a":1}`)); err != nil {
		t.Fatalf("appending: %v", err)
	}
	if err := AppendLine(path, []byte("{\"a\":2}\n")); err != nil {
		t.Fatalf("appending: %v", err)
	}
	content, _ := os.ReadFile(path)
	if string(content) != "{\"a\":1}\n{\"a\":2}\n" {
		t.Errorf("unexpected content %q", content)
	}
}

func TestUserDir(t *testing.T) {
	if got := userDir("../../etc"); got != "etc" {
		t.Errorf("userDir(../../etc) = %q", got)
	}
	if got := userDir("!!!"); got != "unknown" {
		t.Errorf("userDir(!!!) = %q", got)
	}
}
