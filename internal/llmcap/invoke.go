// Package llmcap provides the single InvokeModel capability named in
// spec.md §9 Design Notes ("a single capability InvokeModel(prompt,
// model_name, timeout) -> text"), collapsing the teacher's split
// internal/anthropic + internal/llm/anthropic implementations into one
// surface used by both the rich-texture layer (entity/edge extraction, C7)
// and the summaries layer (C6).
package llmcap

import (
	"context"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"pps/internal/config"
)

// Invoker is the capability surface: prompt in, text out. Correctness must
// not depend on whether the implementation behind it is a warm persistent
// connection or a stateless call per spec.md §9.
type Invoker interface {
	InvokeModel(ctx context.Context, prompt, modelName string, timeout time.Duration) (string, error)
}

// AnthropicInvoker implements Invoker against the Anthropic Messages API.
type AnthropicInvoker struct {
	client    anthropic.Client
	cfg       config.LLMConfig
	reqOpts   []option.RequestOption
}

// New builds an AnthropicInvoker from cfg.
func New(cfg config.LLMConfig) *AnthropicInvoker {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &AnthropicInvoker{
		client:  anthropic.NewClient(opts...),
		cfg:     cfg,
		reqOpts: opts,
	}
}

// InvokeModel sends prompt as a single user turn and returns the
// concatenated text of the model's reply.
func (a *AnthropicInvoker) InvokeModel(ctx context.Context, prompt, modelName string, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	model := anthropic.Model(modelName)
	if modelName == "" {
		model = anthropic.Model(a.cfg.Model)
	}
	maxTokens := a.cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	params := anthropic.MessageNewParams{
		Model:     model,
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	msg, err := a.client.Messages.New(cctx, params)
	if err != nil {
		return "", fmt.Errorf("invoke model: %w", err)
	}

	var out string
	for _, block := range msg.Content {
		if block.Type == "text" {
			out += block.Text
		}
	}
	return out, nil
}

var _ Invoker = (*AnthropicInvoker)(nil)
