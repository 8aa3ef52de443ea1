// Package assistant wraps the language model for conversational replies and goal planning.
package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mrwolf/align-server/internal/alignment"
	apperrors "github.com/mrwolf/align-server/internal/errors"
	"github.com/mrwolf/align-server/internal/models"
)

const systemPrompt = `你是一个帮助用户保持目标对齐的个人助理。
用户会用自然语言同步进展。请结合系统解析出的结构化信息和当前的待办、里程碑与长期记忆，
用简洁的中文回复：确认已记录的进展，指出阻塞和风险，并在需要时提出一个具体的追问。`

const replyPrompt = `用户消息：
%s

解析结果：%s
%s
当前状态：
%s`

const analysisPrompt = `用户目标: %s
%s
请深度分析这个目标，并按以下格式返回：

## 理解
对用户目标的简要理解和重述

## 关键问题
列出 3-5 个需要澄清的具体问题

## 初步拆解
基于目标本身，建议的主要阶段或组成部分

## 可能的风险
列出可能的阻碍和注意事项

## 建议的 Todo 拆分
按照时间序列或优先级提出 5-8 个具体的、可执行的 Todo 任务`

const todoPlanPrompt = `基于以下分析结果，生成 JSON 格式的 Todo 列表。

分析结果:
%s

返回格式（必须是有效的 JSON）：
{"todos": [{"title": "Todo标题", "description": "详细描述", "priority": "low|medium|high|urgent"}]}

返回 5-8 个 Todo，只返回 JSON。`

// MaxPlannedTodos caps how many todos one plan may create.
const MaxPlannedTodos = 8

const maxListed = 20

var errEmptyReply = errors.New("empty reply")

// Completer is the language model used by the assistant.
type Completer interface {
	Generate(ctx context.Context, prompt string, useHeavy bool) (string, error)
	GenerateText(ctx context.Context, system, prompt string, useHeavy bool) (string, error)
}

// Assistant produces replies and plans through a Completer
type Assistant struct {
	llm    Completer
	logger zerolog.Logger
}

// New creates a new assistant
func New(llm Completer, logger zerolog.Logger) *Assistant {
	return &Assistant{llm: llm, logger: logger.With().Str("component", "assistant").Logger()}
}

// Reply answers a chat message given its parsed alignment and the user's current items.
// Model failures and empty replies are returned as upstream errors.
func (a *Assistant) Reply(ctx context.Context, message string, res *alignment.Result, snap models.InquiryRequest) (string, error) {
	prompt := buildReplyPrompt(message, res, snap)

	reply, err := a.llm.GenerateText(ctx, systemPrompt, prompt, false)
	if err != nil {
		return "", apperrors.NewUpstreamError("llm", err)
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", apperrors.NewUpstreamError("llm", errEmptyReply)
	}
	return reply, nil
}

// Plan is the outcome of planning a goal. When the model's todo list cannot be parsed, Todos is
// empty and ParseError is set; the analysis is still returned.
type Plan struct {
	Analysis   string                     `json:"analysis"`
	Todos      []models.CreateTodoRequest `json:"todos"`
	ParseError bool                       `json:"parse_error,omitempty"`
}

type plannedTodos struct {
	Todos []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Priority    string `json:"priority"`
	} `json:"todos"`
}

// PlanTodos analyses a goal with the heavy model, then asks for a JSON todo list derived from
// that analysis.
func (a *Assistant) PlanTodos(ctx context.Context, goal, background string) (*Plan, error) {
	extra := ""
	if background != "" {
		extra = "背景信息: " + background + "\n"
	}
	analysis, err := a.llm.GenerateText(ctx, "", fmt.Sprintf(analysisPrompt, goal, extra), true)
	if err != nil {
		return nil, apperrors.NewUpstreamError("llm", fmt.Errorf("analysing goal: %w", err))
	}

	response, err := a.llm.Generate(ctx, fmt.Sprintf(todoPlanPrompt, analysis), false)
	if err != nil {
		return nil, apperrors.NewUpstreamError("llm", fmt.Errorf("generating todo plan: %w", err))
	}

	plan := &Plan{Analysis: analysis, Todos: []models.CreateTodoRequest{}}
	var parsed plannedTodos
	if err := json.Unmarshal([]byte(response), &parsed); err != nil {
		a.logger.Warn().Err(err).Msg("todo plan was not valid JSON")
		plan.ParseError = true
		return plan, nil
	}

	for _, t := range parsed.Todos {
		title := strings.TrimSpace(t.Title)
		if title == "" {
			continue
		}
		priority := strings.ToLower(strings.TrimSpace(t.Priority))
		if !models.ValidPriority(priority) {
			priority = models.PriorityMedium
		}
		plan.Todos = append(plan.Todos, models.CreateTodoRequest{
			Title:       title,
			Description: t.Description,
			Priority:    priority,
		})
		if len(plan.Todos) == MaxPlannedTodos {
			break
		}
	}
	return plan, nil
}

func buildReplyPrompt(message string, res *alignment.Result, snap models.InquiryRequest) string {
	summary := alignment.EmptySummary
	var signals strings.Builder
	if res != nil {
		summary = res.Summary
		for _, r := range res.Signals.Risks {
			fmt.Fprintf(&signals, "风险：%s\n", r)
		}
		for _, c := range res.Signals.ContextChanges {
			fmt.Fprintf(&signals, "变化：%s\n", c)
		}
	}
	return fmt.Sprintf(replyPrompt, message, summary, signals.String(), describeState(snap))
}

// describeState lists open todos, unfinished milestones and memo keys, at most maxListed of each.
func describeState(snap models.InquiryRequest) string {
	var b strings.Builder

	n := 0
	for _, t := range snap.Todos {
		if t.Status == models.StatusCompleted || n == maxListed {
			continue
		}
		n++
		fmt.Fprintf(&b, "- 待办：%s [%s]", t.Title, t.Status)
		if t.IsBlocker {
			b.WriteString(" 阻塞")
		}
		if t.DueDate != nil {
			fmt.Fprintf(&b, " 截止 %s", t.DueDate.Format("2006-01-02"))
		}
		b.WriteString("\n")
	}

	n = 0
	for _, m := range snap.Milestones {
		if m.Progress >= 100 || n == maxListed {
			continue
		}
		n++
		fmt.Fprintf(&b, "- 里程碑：%s %d%%\n", m.Title, m.Progress)
	}

	for i, m := range snap.Memos {
		if i == maxListed {
			break
		}
		fmt.Fprintf(&b, "- 记忆：%s\n", m.Key)
	}

	if b.Len() == 0 {
		return "暂无记录"
	}
	return b.String()
}
