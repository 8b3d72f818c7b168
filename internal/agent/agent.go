// Package agent implements the three-stage LLM sentiment pipeline. Each stage
// is a BaseAgent with its own system prompt; PipelineScorer chains them per
// article and runs articles concurrently.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/seenimoa/newsentiment/internal/llm"
	"github.com/seenimoa/newsentiment/internal/sentiment"
	"github.com/seenimoa/newsentiment/pkg/models"
)

// ── Agent Interface ──

// Agent defines the interface every pipeline stage implements.
type Agent interface {
	// Name returns the agent's unique identifier (e.g., "sentiment_analyst").
	Name() string

	// Role returns a human-readable description of the agent's role.
	Role() string

	// SystemPrompt returns the system prompt that configures this agent's behavior.
	SystemPrompt() string

	// Tools returns the set of LLM tools this agent can invoke.
	Tools() []llm.Tool

	// Process executes a task and returns an AgentResult.
	Process(ctx context.Context, task string) (*AgentResult, error)

	// ProcessWithMessages processes a task with existing conversation context.
	ProcessWithMessages(ctx context.Context, task string, history []llm.Message) (*AgentResult, error)
}

// ── AgentResult ──

// AgentResult holds the output from an agent's processing.
type AgentResult struct {
	AgentName string        `json:"agent_name"`
	Role      string        `json:"role"`
	Content   string        `json:"content"`    // LLM-generated text
	ToolCalls int           `json:"tool_calls"` // number of tool calls made
	Tokens    int           `json:"tokens"`     // total tokens consumed
	Duration  time.Duration `json:"duration"`
	Messages  []llm.Message `json:"messages"` // full conversation history
	Error     string        `json:"error,omitempty"`
}

// ── BaseAgent ──

// BaseAgent provides a reusable base implementation for pipeline stages.
// It keeps no conversation state between calls, so one BaseAgent can serve
// many articles concurrently.
type BaseAgent struct {
	name         string
	role         string
	systemPrompt string
	tools        []llm.Tool
	registry     *llm.ToolRegistry
	provider     llm.LLMProvider
	opts         *llm.ChatOptions
	maxToolIter  int // max tool-call loop iterations
}

// BaseAgentConfig configures a BaseAgent.
type BaseAgentConfig struct {
	Name         string
	Role         string
	SystemPrompt string
	Provider     llm.LLMProvider
	Tools        []llm.Tool
	ChatOptions  *llm.ChatOptions
	MaxToolIter  int
}

// NewBaseAgent creates a new BaseAgent from the given configuration.
func NewBaseAgent(cfg BaseAgentConfig) *BaseAgent {
	if cfg.MaxToolIter <= 0 {
		cfg.MaxToolIter = 4
	}
	return &BaseAgent{
		name:         cfg.Name,
		role:         cfg.Role,
		systemPrompt: cfg.SystemPrompt,
		tools:        cfg.Tools,
		registry:     llm.NewToolRegistry(cfg.Tools...),
		provider:     cfg.Provider,
		opts:         cfg.ChatOptions,
		maxToolIter:  cfg.MaxToolIter,
	}
}

// Name returns the agent's identifier.
func (a *BaseAgent) Name() string { return a.name }

// Role returns the agent's role description.
func (a *BaseAgent) Role() string { return a.role }

// SystemPrompt returns the agent's system prompt.
func (a *BaseAgent) SystemPrompt() string { return a.systemPrompt }

// Tools returns the agent's available tools.
func (a *BaseAgent) Tools() []llm.Tool { return a.tools }

// Provider returns the agent's LLM provider.
func (a *BaseAgent) Provider() llm.LLMProvider { return a.provider }

// Process executes a task with a fresh conversation (system prompt + user message).
func (a *BaseAgent) Process(ctx context.Context, task string) (*AgentResult, error) {
	return a.ProcessWithMessages(ctx, task, nil)
}

// ProcessWithMessages processes a task with optional existing conversation history.
func (a *BaseAgent) ProcessWithMessages(ctx context.Context, task string, history []llm.Message) (*AgentResult, error) {
	start := time.Now()

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.SystemMessage(a.systemPrompt))
	messages = append(messages, history...)
	messages = append(messages, llm.UserMessage(task))

	resp, finalMsgs, err := llm.RunToolLoop(ctx, a.provider, a.registry, messages, a.tools, a.opts, a.maxToolIter)
	if err != nil {
		return &AgentResult{
			AgentName: a.name,
			Role:      a.role,
			Error:     err.Error(),
			Duration:  time.Since(start),
			Messages:  finalMsgs,
		}, err
	}

	toolCallCount := 0
	for _, msg := range finalMsgs {
		toolCallCount += len(msg.ToolCalls)
	}

	return &AgentResult{
		AgentName: a.name,
		Role:      a.role,
		Content:   resp.Content,
		ToolCalls: toolCallCount,
		Tokens:    resp.Usage.TotalTokens,
		Duration:  time.Since(start),
		Messages:  finalMsgs,
	}, nil
}

// ── Helper: Parse structured judgment from LLM response ──

// ErrNoJudgment is returned when a response carries no parseable JSON judgment.
var ErrNoJudgment = errors.New("agent: no JSON judgment in response")

// rawJudgment accepts the score as a number or a numeric string; models
// produce both.
type rawJudgment struct {
	Label      string      `json:"sentiment_label"`
	Score      json.Number `json:"sentiment_score"`
	Confidence json.Number `json:"confidence"`
	Reasoning  string      `json:"reasoning"`
}

// ParseJudgment extracts the JSON judgment embedded in LLM content. The
// object is taken from the first '{' to the last '}', so surrounding prose and
// code fences are tolerated. The result is normalized.
func ParseJudgment(content string) (sentiment.Judgment, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return sentiment.Judgment{}, ErrNoJudgment
	}

	var raw rawJudgment
	dec := json.NewDecoder(strings.NewReader(content[start : end+1]))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return sentiment.Judgment{}, fmt.Errorf("%w: %v", ErrNoJudgment, err)
	}
	if raw.Score == "" {
		return sentiment.Judgment{}, fmt.Errorf("%w: missing sentiment_score", ErrNoJudgment)
	}

	score, err := raw.Score.Float64()
	if err != nil {
		return sentiment.Judgment{}, fmt.Errorf("%w: sentiment_score %q", ErrNoJudgment, raw.Score)
	}
	var confidence float64
	if raw.Confidence != "" {
		confidence, _ = raw.Confidence.Float64()
	}

	j := sentiment.Judgment{
		Label:      models.SentimentLabel(raw.Label),
		Score:      score,
		Confidence: confidence,
		Reasoning:  strings.TrimSpace(raw.Reasoning),
	}
	return j.Normalize(), nil
}
