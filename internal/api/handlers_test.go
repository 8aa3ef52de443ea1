package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrwolf/align-server/internal/config"
	"github.com/mrwolf/align-server/internal/db"
	"github.com/mrwolf/align-server/internal/journal"
	"github.com/mrwolf/align-server/internal/metrics"
	"github.com/mrwolf/align-server/internal/models"
)

const (
	wolfToken = "test_wolf_token"
	wifeToken = "test_wife_token"
)

var testNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type fakeLLM struct {
	reply     string
	plan      string
	err       error
	healthErr error
}

func (f *fakeLLM) Generate(context.Context, string, bool) (string, error) {
	return f.plan, f.err
}

func (f *fakeLLM) GenerateText(context.Context, string, string, bool) (string, error) {
	return f.reply, f.err
}

func (f *fakeLLM) HealthCheck(context.Context) error { return f.healthErr }

type testEnv struct {
	server *httptest.Server
	store  *db.DB
}

func setupTestServer(t *testing.T, llm *fakeLLM) *testEnv {
	t.Helper()

	tmpDir := t.TempDir()
	clock := clockwork.NewFakeClockAt(testNow)

	cfg := &config.Config{
		Port:      "0",
		DBPath:    filepath.Join(tmpDir, "test.db"),
		Timezone:  "UTC",
		RateLimit: 1000,
		Users: []config.User{
			{ID: "wolf", Token: wolfToken},
			{ID: "wife", Token: wifeToken},
		},
	}

	database, err := db.Open(cfg.DBPath, db.WithClock(clock))
	require.NoError(t, err)

	router := NewRouter(Deps{
		Config:  cfg,
		Store:   database,
		Journal: journal.New(filepath.Join(tmpDir, "journal")),
		LLM:     llm,
		Metrics: metrics.New(),
		Clock:   clock,
		Logger:  zerolog.Nop(),
	})
	server := httptest.NewServer(router)

	t.Cleanup(func() {
		server.Close()
		database.Close()
	})
	return &testEnv{server: server, store: database}
}

// call sends body as JSON and decodes the response into out when out is non-nil.
func (e *testEnv) call(t *testing.T, method, path, token string, body, out any) int {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealthEndpoint(t *testing.T) {
	env := setupTestServer(t, &fakeLLM{})

	var body models.HealthResponse
	status := env.call(t, http.MethodGet, "/health", "", nil, &body)

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "connected", body.Ollama)
	assert.Equal(t, "ok", body.Store)
	assert.Equal(t, Version, body.Version)
}

func TestHealthEndpoint_OllamaDown(t *testing.T) {
	env := setupTestServer(t, &fakeLLM{healthErr: errors.New("connection refused")})

	var body models.HealthResponse
	env.call(t, http.MethodGet, "/health", "", nil, &body)
	assert.Equal(t, "error: connection refused", body.Ollama)
}

func TestRequiresAuth(t *testing.T) {
	env := setupTestServer(t, &fakeLLM{})

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic abc"},
		{"unknown token", "Bearer nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, env.server.URL+"/api/v1/data", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			var body models.ErrorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, "UNAUTHORIZED", body.Code)
		})
	}
}

func TestAlign(t *testing.T) {
	env := setupTestServer(t, &fakeLLM{})

	var body map[string]any
	status := env.call(t, http.MethodPost, "/api/v1/align", wolfToken,
		models.AlignRequest{Text: "完成了 login 任务。里程碑 Beta 进度 60%"}, &body)

	require.Equal(t, http.StatusOK, status)
	updates := body["updates"].(map[string]any)
	assert.Equal(t, []any{"login"}, updates["completed_todos"])
	assert.Equal(t, "识别到 1 条成就 · 更新了 1 个里程碑进度", body["summary"])

	// Parsing alone does not touch the store.
	latest, err := env.store.LatestAlignment(context.Background(), "wolf")
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestAlign_Apply(t *testing.T) {
	env := setupTestServer(t, &fakeLLM{})
	ctx := context.Background()

	_, err := env.store.CreateTodo(ctx, "wolf", models.CreateTodoRequest{Title: "Login"})
	require.NoError(t, err)

	var body struct {
		Applied struct {
			CompletedTodos []string `json:"completed_todos"`
			Unmatched      []string `json:"unmatched"`
		} `json:"applied"`
	}
	status := env.call(t, http.MethodPost, "/api/v1/align?apply=true", wolfToken,
		models.AlignRequest{Text: "完成了 login 任务。完成了 deploy"}, &body)

	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []string{"Login"}, body.Applied.CompletedTodos)
	assert.Equal(t, []string{"deploy"}, body.Applied.Unmatched)

	latest, err := env.store.LatestAlignment(ctx, "wolf")
	require.NoError(t, err)
	require.NotNil(t, latest)
}

func TestAlign_EmptyText(t *testing.T) {
	env := setupTestServer(t, &fakeLLM{})

	var body models.ErrorResponse
	status := env.call(t, http.MethodPost, "/api/v1/align", wolfToken, models.AlignRequest{Text: "  "}, &body)

	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "请提供需要拉齐的文本", body.Error)
	assert.Equal(t, "INVALID_INPUT", body.Code)
}

func TestAlign_InvalidBody(t *testing.T) {
	env := setupTestServer(t, &fakeLLM{})

	req, _ := http.NewRequest(http.MethodPost, env.server.URL+"/api/v1/align", strings.NewReader("{not json"))
	req.Header.Set("Authorization", "Bearer "+wolfToken)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestInquiry(t *testing.T) {
	env := setupTestServer(t, &fakeLLM{})

	snap := models.InquiryRequest{
		Todos: []models.Todo{
			{ID: "t1", Title: "修复登录", Status: models.StatusInProgress, IsBlocker: true},
		},
		Signals: models.Signals{Risks: []string{"服务器压力大"}},
	}

	var body models.InquiryResponse
	status := env.call(t, http.MethodPost, "/api/v1/inquiry", wolfToken, snap, &body)

	require.Equal(t, http.StatusOK, status)
	require.Len(t, body.Inquiries, 2)
	assert.Equal(t, 1, body.Inquiries[0].Priority)
	assert.Equal(t, "状态：进行中", body.Inquiries[0].Context)
	assert.Equal(t, 2, body.Inquiries[1].Priority)
}

func TestInquiry_Validation(t *testing.T) {
	env := setupTestServer(t, &fakeLLM{})

	snap := models.InquiryRequest{
		Milestones: []models.Milestone{{ID: "m1", Title: "Beta", Progress: 140}},
	}

	var body models.ErrorResponse
	status := env.call(t, http.MethodPost, "/api/v1/inquiry", wolfToken, snap, &body)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.NotEmpty(t, body.Error)
}

func TestInquiries_FromStore(t *testing.T) {
	env := setupTestServer(t, &fakeLLM{})
	ctx := context.Background()

	_, err := env.store.CreateTodo(ctx, "wolf", models.CreateTodoRequest{Title: "修复登录", IsBlocker: true})
	require.NoError(t, err)

	var body models.InquiryResponse
	status := env.call(t, http.MethodGet, "/api/v1/inquiries", wolfToken, nil, &body)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, body.Inquiries, 1)

	stored, err := env.store.ListInquiries(ctx, "wolf")
	require.NoError(t, err)
	assert.Equal(t, body.Inquiries, stored)

	var other models.InquiryResponse
	env.call(t, http.MethodGet, "/api/v1/inquiries", wifeToken, nil, &other)
	assert.Empty(t, other.Inquiries)
}

func TestTodoLifecycle(t *testing.T) {
	env := setupTestServer(t, &fakeLLM{})

	var todo models.Todo
	status := env.call(t, http.MethodPost, "/api/v1/todos", wolfToken,
		models.CreateTodoRequest{Title: "Write script", Priority: models.PriorityHigh}, &todo)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, models.StatusPending, todo.Status)

	status = env.call(t, http.MethodPost, "/api/v1/todos/"+todo.ID+"/complete", wifeToken, nil, nil)
	assert.Equal(t, http.StatusNotFound, status, "other users cannot complete it")

	status = env.call(t, http.MethodPost, "/api/v1/todos/"+todo.ID+"/complete", wolfToken, nil, nil)
	assert.Equal(t, http.StatusOK, status)

	var data models.DataResponse
	env.call(t, http.MethodGet, "/api/v1/data", wolfToken, nil, &data)
	require.Len(t, data.Todos, 1)
	assert.Equal(t, models.StatusCompleted, data.Todos[0].Status)
}

func TestTodoCommitment_ReachesInquiryContext(t *testing.T) {
	env := setupTestServer(t, &fakeLLM{})

	var todo models.Todo
	status := env.call(t, http.MethodPost, "/api/v1/todos", wolfToken,
		models.CreateTodoRequest{Title: "修复登录", IsBlocker: true}, &todo)
	require.Equal(t, http.StatusCreated, status)

	path := "/api/v1/todos/" + todo.ID + "/commitment"
	assert.Equal(t, http.StatusBadRequest, env.call(t, http.MethodPost, path, wolfToken, models.CommitmentRequest{Commitment: " "}, nil))
	assert.Equal(t, http.StatusNotFound, env.call(t, http.MethodPost, path, wifeToken, models.CommitmentRequest{Commitment: "周五前修好"}, nil))
	require.Equal(t, http.StatusOK, env.call(t, http.MethodPost, path, wolfToken, models.CommitmentRequest{Commitment: "周五前修好"}, nil))

	var body models.InquiryResponse
	status = env.call(t, http.MethodGet, "/api/v1/inquiries", wolfToken, nil, &body)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, body.Inquiries, 1)
	assert.Equal(t, "上次承诺：周五前修好", body.Inquiries[0].Context)
}

func TestCompleteTodoByName(t *testing.T) {
	env := setupTestServer(t, &fakeLLM{})
	ctx := context.Background()

	script, err := env.store.CreateTodo(ctx, "wolf", models.CreateTodoRequest{Title: "PitchLab 第二集脚本"})
	require.NoError(t, err)

	var body map[string]string
	status := env.call(t, http.MethodPost, "/api/v1/todos/complete", wolfToken,
		models.CompleteByNameRequest{Name: "第二集"}, &body)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, script.ID, body["id"])

	// Completed todos no longer match.
	status = env.call(t, http.MethodPost, "/api/v1/todos/complete", wolfToken,
		models.CompleteByNameRequest{Name: "第二集"}, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status = env.call(t, http.MethodPost, "/api/v1/todos/complete", wolfToken, models.CompleteByNameRequest{}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestCreateTodo_Validation(t *testing.T) {
	env := setupTestServer(t, &fakeLLM{})

	status := env.call(t, http.MethodPost, "/api/v1/todos", wolfToken, models.CreateTodoRequest{Title: " "}, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status = env.call(t, http.MethodPost, "/api/v1/todos", wolfToken,
		models.CreateTodoRequest{Title: "x", Priority: "whenever"}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestMilestoneProgress(t *testing.T) {
	env := setupTestServer(t, &fakeLLM{})

	var ms models.Milestone
	status := env.call(t, http.MethodPost, "/api/v1/milestones", wolfToken,
		models.CreateMilestoneRequest{Title: "Beta"}, &ms)
	require.Equal(t, http.StatusCreated, status)

	path := "/api/v1/milestones/" + ms.ID + "/progress"
	assert.Equal(t, http.StatusBadRequest, env.call(t, http.MethodPost, path, wolfToken, models.ProgressRequest{Progress: 150}, nil))
	assert.Equal(t, http.StatusOK, env.call(t, http.MethodPost, path, wolfToken, models.ProgressRequest{Progress: 80}, nil))
	assert.Equal(t, http.StatusNotFound, env.call(t, http.MethodPost, "/api/v1/milestones/missing/progress", wolfToken, models.ProgressRequest{Progress: 10}, nil))

	var data models.DataResponse
	env.call(t, http.MethodGet, "/api/v1/data", wolfToken, nil, &data)
	require.Len(t, data.Milestones, 1)
	assert.Equal(t, 80, data.Milestones[0].Progress)
}

func TestMemoAndDelete(t *testing.T) {
	env := setupTestServer(t, &fakeLLM{})

	var memo models.Memo
	status := env.call(t, http.MethodPut, "/api/v1/memos/q1-goal", wolfToken,
		models.MemoRequest{Content: "ship beta", Category: "goal"}, &memo)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "q1-goal", memo.Key)

	status = env.call(t, http.MethodPut, "/api/v1/memos/q1-goal", wolfToken, models.MemoRequest{}, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	del := models.DeleteRequest{Type: models.TypeMemo, Name: "q1"}
	assert.Equal(t, http.StatusOK, env.call(t, http.MethodPost, "/api/v1/delete", wolfToken, del, nil))
	assert.Equal(t, http.StatusNotFound, env.call(t, http.MethodPost, "/api/v1/delete", wolfToken, del, nil))

	bad := models.DeleteRequest{Type: "note", Name: "q1"}
	assert.Equal(t, http.StatusBadRequest, env.call(t, http.MethodPost, "/api/v1/delete", wolfToken, bad, nil))
}

func TestDeleteTodoByName(t *testing.T) {
	env := setupTestServer(t, &fakeLLM{})
	ctx := context.Background()

	_, err := env.store.CreateTodo(ctx, "wolf", models.CreateTodoRequest{Title: "PitchLab 第二集脚本"})
	require.NoError(t, err)

	var body map[string]string
	status := env.call(t, http.MethodPost, "/api/v1/delete", wolfToken,
		models.DeleteRequest{Type: models.TypeTodo, Name: "第二集"}, &body)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "PitchLab 第二集脚本", body["deleted"])

	todos, err := env.store.ListTodos(ctx, "wolf", "")
	require.NoError(t, err)
	assert.Empty(t, todos)
}

func TestChat(t *testing.T) {
	env := setupTestServer(t, &fakeLLM{reply: "  收到，继续推进 Beta。 "})

	var body ChatResponse
	status := env.call(t, http.MethodPost, "/api/v1/chat", wolfToken,
		models.ChatRequest{Message: "完成了 login 任务"}, &body)

	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "收到，继续推进 Beta。", body.Reply)
	require.NotNil(t, body.Alignment)
	assert.Equal(t, []string{"login"}, body.Alignment.Updates.CompletedTodos)

	interactions, err := env.store.ListInteractions(context.Background(), "wolf", time.Time{})
	require.NoError(t, err)
	require.Len(t, interactions, 1)
	assert.Equal(t, "完成了 login 任务", interactions[0].Input)
}

func TestChat_UpstreamFailure(t *testing.T) {
	env := setupTestServer(t, &fakeLLM{err: errors.New("model unavailable")})

	var body models.ErrorResponse
	status := env.call(t, http.MethodPost, "/api/v1/chat", wolfToken, models.ChatRequest{Message: "你好"}, &body)

	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, genericFailure, body.Error)

	interactions, err := env.store.ListInteractions(context.Background(), "wolf", time.Time{})
	require.NoError(t, err)
	assert.Empty(t, interactions)
}

func TestPlan(t *testing.T) {
	env := setupTestServer(t, &fakeLLM{
		reply: "先写大纲，再录制。",
		plan:  `{"todos":[{"title":"写大纲","priority":"high"},{"title":"录制","priority":"soon"}]}`,
	})

	var body PlanResponse
	status := env.call(t, http.MethodPost, "/api/v1/plan", wolfToken,
		PlanRequest{Goal: "发布第二集", Create: true}, &body)

	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "先写大纲，再录制。", body.Plan.Analysis)
	require.Len(t, body.Created, 2)
	assert.Equal(t, models.PriorityHigh, body.Created[0].Priority)
	assert.Equal(t, models.PriorityMedium, body.Created[1].Priority)

	status = env.call(t, http.MethodPost, "/api/v1/plan", wolfToken, PlanRequest{}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupTestServer(t, &fakeLLM{})

	env.call(t, http.MethodGet, "/api/v1/data", wolfToken, nil, nil)

	resp, err := http.Get(env.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(data), `align_requests_total{route="/api/v1/data",status="200"} 1`)
}

func TestRateLimiter(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testNow)
	rl := NewRateLimiter(2, time.Minute, clock)

	assert.True(t, rl.Allow("wolf"))
	assert.True(t, rl.Allow("wolf"))
	assert.False(t, rl.Allow("wolf"))
	assert.True(t, rl.Allow("wife"))

	clock.Advance(61 * time.Second)
	assert.True(t, rl.Allow("wolf"))
}
