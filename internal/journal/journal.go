// Package journal keeps a file-based record next to the database: an append-only JSONL log of
// alignments and one markdown digest of ranked inquiries per user per day.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mrwolf/align-server/internal/alignment"
	"github.com/mrwolf/align-server/internal/models"
	"github.com/mrwolf/align-server/internal/slug"
)

// Journal writes under one base directory. A nil *Journal is valid and writes nothing.
type Journal struct {
	basePath string
	logLock  sync.Mutex
}

// New returns a journal rooted at basePath, or nil when basePath is empty.
func New(basePath string) *Journal {
	if basePath == "" {
		return nil
	}
	return &Journal{basePath: basePath}
}

// BasePath returns the journal base path
func (j *Journal) BasePath() string {
	if j == nil {
		return ""
	}
	return j.basePath
}

// AlignmentEntry is one line of the alignment log
type AlignmentEntry struct {
	TS             string           `json:"ts"`
	User           string           `json:"user"`
	Text           string           `json:"text"`
	Summary        string           `json:"summary"`
	Counts         alignment.Counts `json:"counts"`
	CompletedTodos []string         `json:"completed_todos"`
	Risks          []string         `json:"risks"`
	ContextChanges []string         `json:"context_changes"`
}

// NewAlignmentEntry builds a log entry for a parsed alignment
func NewAlignmentEntry(user, text string, res *alignment.Result, at time.Time) AlignmentEntry {
	return AlignmentEntry{
		TS:             at.UTC().Format(time.RFC3339),
		User:           user,
		Text:           text,
		Summary:        res.Summary,
		Counts:         res.Counts(),
		CompletedTodos: res.Updates.CompletedTodos,
		Risks:          res.Signals.Risks,
		ContextChanges: res.Signals.ContextChanges,
	}
}

// LogAlignment appends entry to {user}/alignments.jsonl
func (j *Journal) LogAlignment(entry AlignmentEntry) error {
	if j == nil {
		return nil
	}
	j.logLock.Lock()
	defer j.logLock.Unlock()

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling alignment entry: %w", err)
	}

	fullPath := filepath.Join(j.basePath, userDir(entry.User), "alignments.jsonl")
	if err := AppendLine(fullPath, line); err != nil {
		return fmt.Errorf("appending alignment log: %w", err)
	}
	return nil
}

// WriteDigest writes the inquiries ranked for user on day to
// {user}/inquiries/{yyyy-mm-dd}.md, replacing an earlier digest for the same day.
// Returns the path relative to the journal root.
func (j *Journal) WriteDigest(user string, at time.Time, inquiries []models.Inquiry) (string, error) {
	if j == nil {
		return "", nil
	}
	relPath := digestPath(user, at)
	content := buildDigestContent(user, at, inquiries)

	if err := WriteFileAtomic(filepath.Join(j.basePath, relPath), []byte(content)); err != nil {
		return "", fmt.Errorf("writing digest: %w", err)
	}
	return relPath, nil
}

// ReadDigest returns the digest written for user on the day of at
func (j *Journal) ReadDigest(user string, at time.Time) (string, error) {
	if j == nil {
		return "", os.ErrNotExist
	}
	content, err := os.ReadFile(filepath.Join(j.basePath, digestPath(user, at)))
	if err != nil {
		return "", err
	}
	return string(content), nil
}

func digestPath(user string, at time.Time) string {
	return filepath.Join(userDir(user), "inquiries", at.Format("2006-01-02")+".md")
}

func buildDigestContent(user string, at time.Time, inquiries []models.Inquiry) string {
	var sb strings.Builder

	sb.WriteString("---\n")
	sb.WriteString(fmt.Sprintf("user: %s\n", user))
	sb.WriteString(fmt.Sprintf("for_date: %s\n", at.Format("2006-01-02")))
	sb.WriteString(fmt.Sprintf("generated: %s\n", at.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("count: %d\n", len(inquiries)))
	sb.WriteString("---\n\n")

	if len(inquiries) == 0 {
		sb.WriteString("暂无需要追问的事项。\n")
		return sb.String()
	}

	for i, inq := range inquiries {
		sb.WriteString(fmt.Sprintf("%d. [P%d] %s\n", i+1, inq.Priority, inq.Question))
		sb.WriteString(fmt.Sprintf("   > %s\n", inq.Context))
	}
	return sb.String()
}

func userDir(user string) string {
	if s := slug.Slugify(user); s != "" {
		return s
	}
	return "unknown"
}
