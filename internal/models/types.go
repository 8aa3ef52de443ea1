package models

import "time"

// Todo represents a tracked work item owned by a user
type Todo struct {
	ID             string     `json:"id"`
	UserID         string     `json:"-"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	Status         string     `json:"status"` // "pending", "in_progress", "completed"
	Priority       string     `json:"priority,omitempty"`
	DueDate        *time.Time `json:"dueDate,omitempty"`
	IsBlocker      bool       `json:"isBlocker,omitempty"`
	LastCommitment string     `json:"lastCommitment,omitempty"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt,omitempty"`
}

// Milestone represents a longer running goal measured in percent
type Milestone struct {
	ID          string     `json:"id"`
	UserID      string     `json:"-"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Target      string     `json:"target,omitempty"`
	Progress    int        `json:"progress"`
	Priority    string     `json:"priority,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	CreatedAt   time.Time  `json:"createdAt,omitempty"`
}

// Memo is a long-term memory entry, unique per user by key
type Memo struct {
	ID             string     `json:"id"`
	UserID         string     `json:"-"`
	Key            string     `json:"key"`
	Content        string     `json:"content"`
	Category       string     `json:"category,omitempty"`
	LastReviewedAt *time.Time `json:"lastReviewedAt,omitempty"`
}

// Interaction is one logged chat exchange
type Interaction struct {
	ID        string    `json:"id"`
	UserID    string    `json:"-"`
	Input     string    `json:"input"`
	Summary   string    `json:"summary"`
	CreatedAt time.Time `json:"createdAt"`
}

// Signals carries risk and context-change observations between alignments
type Signals struct {
	Risks          []string `json:"risks"`
	ContextChanges []string `json:"context_changes"`
}

// Inquiry is a generated follow-up question. Priority 1 is the most urgent.
type Inquiry struct {
	Question string `json:"question"`
	Context  string `json:"context"`
	Priority int    `json:"priority"`
}

// AlignRequest is the body of the align endpoint
type AlignRequest struct {
	Text string `json:"text"`
}

// InquiryRequest is an entity snapshot submitted for ranking
type InquiryRequest struct {
	Todos       []Todo      `json:"todos"`
	Milestones  []Milestone `json:"milestones"`
	Memos       []Memo      `json:"memos"`
	Signals     Signals     `json:"signals"`
	LastAlignAt *time.Time  `json:"lastAlignAt,omitempty"`
}

// InquiryResponse is returned by the inquiry endpoints
type InquiryResponse struct {
	Inquiries []Inquiry `json:"inquiries"`
}

// DataResponse is the dashboard snapshot for one user
type DataResponse struct {
	Todos      []Todo      `json:"todos"`
	Milestones []Milestone `json:"milestones"`
	Memos      []Memo      `json:"memos"`
}

// CreateTodoRequest is the body of the todo create endpoint
type CreateTodoRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Priority    string     `json:"priority,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	IsBlocker   bool       `json:"isBlocker,omitempty"`
}

// CreateMilestoneRequest is the body of the milestone create endpoint
type CreateMilestoneRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Target      string     `json:"target,omitempty"`
	Priority    string     `json:"priority,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
}

// CommitmentRequest records what the user last promised for a todo
type CommitmentRequest struct {
	Commitment string `json:"commitment"`
}

// CompleteByNameRequest completes the first open todo whose title contains Name
type CompleteByNameRequest struct {
	Name string `json:"name"`
}

// ProgressRequest sets a milestone's progress
type ProgressRequest struct {
	Progress int `json:"progress"`
}

// MemoRequest is the body of the memo upsert endpoint
type MemoRequest struct {
	Content  string `json:"content"`
	Category string `json:"category,omitempty"`
}

// DeleteRequest removes one entity by name fragment
type DeleteRequest struct {
	Type string `json:"type"` // "todo", "milestone", "memo"
	Name string `json:"name"`
}

// ChatRequest is a free-form message for the assistant
type ChatRequest struct {
	Message string `json:"message"`
}

// HealthResponse is returned by the health endpoint
type HealthResponse struct {
	Status  string `json:"status"`
	Ollama  string `json:"ollama"`
	Store   string `json:"store"`
	Version string `json:"version"`
}

// ErrorResponse is the JSON error envelope
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Todo status constants
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

// Priority constants
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Delete target types
const (
	TypeTodo      = "todo"
	TypeMilestone = "milestone"
	TypeMemo      = "memo"
)

// ValidStatus reports whether s is a known todo status.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// ValidPriority reports whether p is a known priority. Empty means default.
func ValidPriority(p string) bool {
	switch p {
	case "", PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}
