package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/mrwolf/align-server/internal/alignment"
	"github.com/mrwolf/align-server/internal/assistant"
	"github.com/mrwolf/align-server/internal/config"
	"github.com/mrwolf/align-server/internal/db"
	apperrors "github.com/mrwolf/align-server/internal/errors"
	"github.com/mrwolf/align-server/internal/inquiry"
	"github.com/mrwolf/align-server/internal/journal"
	"github.com/mrwolf/align-server/internal/metrics"
	"github.com/mrwolf/align-server/internal/models"
	"github.com/mrwolf/align-server/internal/reconcile"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// genericFailure is shown for upstream and internal failures.
const genericFailure = "处理失败，请稍后再试"

func writeError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(models.ErrorResponse{
		Error: message,
		Code:  code,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// LLM is the language model the handlers talk to.
type LLM interface {
	assistant.Completer
	HealthCheck(ctx context.Context) error
}

// Deps are the collaborators the router is built from. Journal and LLM may be nil.
type Deps struct {
	Config  *config.Config
	Store   *db.DB
	Journal *journal.Journal
	LLM     LLM
	Metrics *metrics.Metrics
	Clock   clockwork.Clock
	Logger  zerolog.Logger
}

type Handlers struct {
	cfg        *config.Config
	store      *db.DB
	journal    *journal.Journal
	llm        LLM
	assistant  *assistant.Assistant
	reconciler *reconcile.Reconciler
	metrics    *metrics.Metrics
	clock      clockwork.Clock
	location   *time.Location
	logger     zerolog.Logger
}

func NewHandlers(d Deps) *Handlers {
	clock := d.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	m := d.Metrics
	if m == nil {
		m = metrics.New()
	}
	logger := d.Logger.With().Str("component", "api").Logger()

	h := &Handlers{
		cfg:        d.Config,
		store:      d.Store,
		journal:    d.Journal,
		llm:        d.LLM,
		reconciler: reconcile.New(d.Store, d.Logger),
		metrics:    m,
		clock:      clock,
		location:   d.Config.Location(),
		logger:     logger,
	}
	if d.LLM != nil {
		h.assistant = assistant.New(d.LLM, d.Logger)
	}
	return h
}

func (h *Handlers) now() time.Time {
	return h.clock.Now().In(h.location)
}

// respondError maps the error taxonomy onto HTTP statuses.
func (h *Handlers) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *apperrors.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Message, "INVALID_INPUT")
	case errors.Is(err, apperrors.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_INPUT")
	case errors.Is(err, apperrors.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found", "NOT_FOUND")
	case apperrors.IsUpstream(err):
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("upstream failure")
		writeError(w, http.StatusBadGateway, genericFailure, "UPSTREAM_ERROR")
	default:
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, genericFailure, "INTERNAL_ERROR")
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "INVALID_BODY")
		return false
	}
	return true
}

// Health handles GET /health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := models.HealthResponse{
		Status:  "ok",
		Ollama:  h.checkOllama(r.Context()),
		Store:   h.checkStore(r.Context()),
		Version: Version,
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) checkOllama(ctx context.Context) string {
	if h.llm == nil {
		return "not configured"
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := h.llm.HealthCheck(ctx); err != nil {
		return "error: " + err.Error()
	}
	return "connected"
}

func (h *Handlers) checkStore(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		return "error: " + err.Error()
	}
	return "ok"
}

// AlignResponse is returned by POST /align?apply=true
type AlignResponse struct {
	Result  *alignment.Result `json:"result"`
	Applied *reconcile.Report `json:"applied"`
}

// Align handles POST /align
func (h *Handlers) Align(w http.ResponseWriter, r *http.Request) {
	var req models.AlignRequest
	if !decode(w, r, &req) {
		return
	}

	user := GetUser(r)
	res, err := h.parse(user, req.Text)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	if r.URL.Query().Get("apply") != "true" {
		writeJSON(w, http.StatusOK, res)
		return
	}

	report, err := h.reconciler.Apply(r.Context(), user, req.Text, res)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AlignResponse{Result: res, Applied: report})
}

// parse runs the alignment parser and records the result in metrics and the journal.
func (h *Handlers) parse(user, text string) (*alignment.Result, error) {
	res, err := alignment.Parse(text)
	if err != nil {
		return nil, err
	}

	h.metrics.RecordAlignment(
		len(res.Parsed.Achievements),
		len(res.Updates.CompletedTodos),
		len(res.Updates.MilestoneProgress),
		len(res.Updates.NewMemos),
		len(res.Signals.Risks),
		len(res.Signals.ContextChanges),
	)
	if err := h.journal.LogAlignment(journal.NewAlignmentEntry(user, text, res, h.now())); err != nil {
		h.logger.Warn().Err(err).Str("user", user).Msg("journaling alignment failed")
	}
	return res, nil
}

// Inquiry handles POST /inquiry: ranks a submitted snapshot
func (h *Handlers) Inquiry(w http.ResponseWriter, r *http.Request) {
	var req models.InquiryRequest
	if !decode(w, r, &req) {
		return
	}
	if err := inquiry.Validate(req); err != nil {
		h.respondError(w, r, err)
		return
	}

	inquiries := inquiry.Rank(req, h.now())
	h.recordInquiries(inquiries)
	writeJSON(w, http.StatusOK, models.InquiryResponse{Inquiries: inquiries})
}

// Inquiries handles GET /inquiries: ranks the caller's stored snapshot
func (h *Handlers) Inquiries(w http.ResponseWriter, r *http.Request) {
	user := GetUser(r)
	snap, err := h.store.Snapshot(r.Context(), user)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	inquiries := inquiry.Rank(snap, h.now())
	if err := h.store.ReplaceInquiries(r.Context(), user, inquiries); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.recordInquiries(inquiries)
	writeJSON(w, http.StatusOK, models.InquiryResponse{Inquiries: inquiries})
}

func (h *Handlers) recordInquiries(inquiries []models.Inquiry) {
	for _, inq := range inquiries {
		h.metrics.RecordInquiry(inq.Priority)
	}
}

// Data handles GET /data
func (h *Handlers) Data(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := GetUser(r)

	todos, err := h.store.ListTodos(ctx, user, r.URL.Query().Get("status"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	milestones, err := h.store.ListMilestones(ctx, user, true)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	memos, err := h.store.ListMemos(ctx, user, r.URL.Query().Get("category"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.DataResponse{Todos: todos, Milestones: milestones, Memos: memos})
}

// CreateTodo handles POST /todos
func (h *Handlers) CreateTodo(w http.ResponseWriter, r *http.Request) {
	var req models.CreateTodoRequest
	if !decode(w, r, &req) {
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required", "MISSING_TITLE")
		return
	}
	if !models.ValidPriority(req.Priority) {
		writeError(w, http.StatusBadRequest, "unknown priority", "INVALID_PRIORITY")
		return
	}

	todo, err := h.store.CreateTodo(r.Context(), GetUser(r), req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, todo)
}

// CompleteTodo handles POST /todos/{id}/complete
func (h *Handlers) CompleteTodo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.store.CompleteTodo(r.Context(), GetUser(r), id); err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": models.StatusCompleted})
}

// CompleteTodoByName handles POST /todos/complete: completes the first open todo matching name
func (h *Handlers) CompleteTodoByName(w http.ResponseWriter, r *http.Request) {
	var req models.CompleteByNameRequest
	if !decode(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required", "MISSING_NAME")
		return
	}

	ctx := r.Context()
	user := GetUser(r)
	todo, err := h.store.FindOpenTodo(ctx, user, req.Name)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if todo == nil {
		writeError(w, http.StatusNotFound, "no open todo matches "+req.Name, "NOT_FOUND")
		return
	}
	if err := h.store.CompleteTodo(ctx, user, todo.ID); err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": todo.ID, "title": todo.Title, "status": models.StatusCompleted})
}

// TodoCommitment handles POST /todos/{id}/commitment
func (h *Handlers) TodoCommitment(w http.ResponseWriter, r *http.Request) {
	var req models.CommitmentRequest
	if !decode(w, r, &req) {
		return
	}
	req.Commitment = strings.TrimSpace(req.Commitment)
	if req.Commitment == "" {
		writeError(w, http.StatusBadRequest, "commitment is required", "MISSING_COMMITMENT")
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.store.SetTodoCommitment(r.Context(), GetUser(r), id, req.Commitment); err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "lastCommitment": req.Commitment})
}

// CreateMilestone handles POST /milestones
func (h *Handlers) CreateMilestone(w http.ResponseWriter, r *http.Request) {
	var req models.CreateMilestoneRequest
	if !decode(w, r, &req) {
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required", "MISSING_TITLE")
		return
	}
	if !models.ValidPriority(req.Priority) {
		writeError(w, http.StatusBadRequest, "unknown priority", "INVALID_PRIORITY")
		return
	}

	ms, err := h.store.CreateMilestone(r.Context(), GetUser(r), req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ms)
}

// MilestoneProgress handles POST /milestones/{id}/progress
func (h *Handlers) MilestoneProgress(w http.ResponseWriter, r *http.Request) {
	var req models.ProgressRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Progress < 0 || req.Progress > 100 {
		writeError(w, http.StatusBadRequest, "progress must be between 0 and 100", "INVALID_PROGRESS")
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.store.UpdateMilestoneProgress(r.Context(), GetUser(r), id, req.Progress); err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "progress": req.Progress})
}

// PutMemo handles PUT /memos/{key}
func (h *Handlers) PutMemo(w http.ResponseWriter, r *http.Request) {
	var req models.MemoRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "content is required", "MISSING_CONTENT")
		return
	}

	memo, err := h.store.UpsertMemo(r.Context(), GetUser(r), chi.URLParam(r, "key"), req.Content, req.Category)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, memo)
}

// Delete handles POST /delete: removes the first todo, milestone or memo matching name
func (h *Handlers) Delete(w http.ResponseWriter, r *http.Request) {
	var req models.DeleteRequest
	if !decode(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required", "MISSING_NAME")
		return
	}

	ctx := r.Context()
	user := GetUser(r)
	var (
		id, label string
		err       error
	)

	switch req.Type {
	case models.TypeTodo:
		var t *models.Todo
		if t, err = h.store.FindTodo(ctx, user, req.Name); err == nil && t != nil {
			id, label = t.ID, t.Title
			err = h.store.DeleteTodo(ctx, user, id)
		}
	case models.TypeMilestone:
		var m *models.Milestone
		if m, err = h.store.FindMilestone(ctx, user, req.Name); err == nil && m != nil {
			id, label = m.ID, m.Title
			err = h.store.DeleteMilestone(ctx, user, id)
		}
	case models.TypeMemo:
		var m *models.Memo
		if m, err = h.store.FindMemo(ctx, user, req.Name); err == nil && m != nil {
			id, label = m.ID, m.Key
			err = h.store.DeleteMemo(ctx, user, id)
		}
	default:
		writeError(w, http.StatusBadRequest, "type must be todo, milestone or memo", "INVALID_TYPE")
		return
	}

	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if id == "" {
		writeError(w, http.StatusNotFound, "nothing matches "+req.Name, "NOT_FOUND")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"type": req.Type, "id": id, "deleted": label})
}

// ChatResponse is the assistant's answer together with the parsed message
type ChatResponse struct {
	Reply     string            `json:"reply"`
	Alignment *alignment.Result `json:"alignment"`
}

// Chat handles POST /chat
func (h *Handlers) Chat(w http.ResponseWriter, r *http.Request) {
	if h.assistant == nil {
		writeError(w, http.StatusServiceUnavailable, "assistant not configured", "LLM_DISABLED")
		return
	}

	var req models.ChatRequest
	if !decode(w, r, &req) {
		return
	}

	ctx := r.Context()
	user := GetUser(r)
	res, err := h.parse(user, req.Message)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	snap, err := h.store.Snapshot(ctx, user)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()
	reply, err := h.assistant.Reply(ctx, req.Message, res, snap)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	if err := h.store.LogInteraction(r.Context(), user, req.Message, res.Summary); err != nil {
		h.logger.Warn().Err(err).Str("user", user).Msg("logging interaction failed")
	}
	writeJSON(w, http.StatusOK, ChatResponse{Reply: reply, Alignment: res})
}

// PlanRequest asks the assistant to break a goal into todos
type PlanRequest struct {
	Goal       string `json:"goal"`
	Background string `json:"background,omitempty"`
	Create     bool   `json:"create,omitempty"`
}

// PlanResponse carries the plan and, when requested, the todos created from it
type PlanResponse struct {
	Plan    *assistant.Plan `json:"plan"`
	Created []models.Todo   `json:"created"`
}

// Plan handles POST /plan
func (h *Handlers) Plan(w http.ResponseWriter, r *http.Request) {
	if h.assistant == nil {
		writeError(w, http.StatusServiceUnavailable, "assistant not configured", "LLM_DISABLED")
		return
	}

	var body PlanRequest
	if !decode(w, r, &body) {
		return
	}
	body.Goal = strings.TrimSpace(body.Goal)
	if body.Goal == "" {
		writeError(w, http.StatusBadRequest, "goal is required", "MISSING_GOAL")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 120*time.Second)
	defer cancel()
	plan, err := h.assistant.PlanTodos(ctx, body.Goal, body.Background)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	resp := PlanResponse{Plan: plan, Created: []models.Todo{}}
	if body.Create {
		user := GetUser(r)
		for _, t := range plan.Todos {
			todo, err := h.store.CreateTodo(r.Context(), user, t)
			if err != nil {
				h.respondError(w, r, err)
				return
			}
			resp.Created = append(resp.Created, *todo)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
