// Package anthropic adapts github.com/anthropics/anthropic-sdk-go's Messages
// API to the aiclient.Client port. Not a teacher concern — mbflow never
// called Claude directly — but every other repo in the retrieval pack that
// talks to an LLM pulls this SDK in, so it gets a home here rather than
// being left unwired, shaped the same way as pkg/aiclient/openai.
package anthropic

import (
	"context"
	"errors"
	"fmt"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/meshagent/meshagent/pkg/aiclient"
)

const defaultMaxTokens = 4096

// ModelPrice is the USD cost per 1000 prompt/completion tokens.
type ModelPrice struct {
	PromptPer1K     float64
	CompletionPer1K float64
}

// DefaultPriceTable carries list prices for the Claude models this package
// expects to be pointed at; callers may override via WithPriceTable.
var DefaultPriceTable = map[string]ModelPrice{
	"claude-sonnet-4-5-20250929": {PromptPer1K: 0.003, CompletionPer1K: 0.015},
	"claude-opus-4-1-20250805":   {PromptPer1K: 0.015, CompletionPer1K: 0.075},
	"claude-haiku-4-5-20251001":  {PromptPer1K: 0.0008, CompletionPer1K: 0.004},
}

// Client adapts anthropicsdk.Client to aiclient.Client.
type Client struct {
	sdk       anthropicsdk.Client
	maxTokens int64
	prices    map[string]ModelPrice
}

// Option configures a Client.
type Option func(*Client)

// WithMaxTokens overrides defaultMaxTokens.
func WithMaxTokens(n int64) Option {
	return func(c *Client) { c.maxTokens = n }
}

// WithPriceTable overrides DefaultPriceTable.
func WithPriceTable(t map[string]ModelPrice) Option {
	return func(c *Client) { c.prices = t }
}

// New constructs a Client from an API key.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		sdk:       anthropicsdk.NewClient(option.WithAPIKey(apiKey)),
		maxTokens: defaultMaxTokens,
		prices:    DefaultPriceTable,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// extractSystem separates system messages (Anthropic takes system as a
// request-level field) from the user/assistant turn history.
func extractSystem(msgs []aiclient.Message) (string, []aiclient.Message) {
	var system string
	var rest []aiclient.Message
	for _, m := range msgs {
		if m.Role == aiclient.RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}

func convertMessages(msgs []aiclient.Message) []anthropicsdk.MessageParam {
	out := make([]anthropicsdk.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case aiclient.RoleAssistant:
			out = append(out, anthropicsdk.NewAssistantMessage(anthropicsdk.NewTextBlock(m.Content)))
		default:
			out = append(out, anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(m.Content)))
		}
	}
	return out
}

func convertTools(schemas []aiclient.ToolSchema) []anthropicsdk.ToolUnionParam {
	out := make([]anthropicsdk.ToolUnionParam, 0, len(schemas))
	for _, s := range schemas {
		var properties any
		var required []string
		if s.Parameters != nil {
			if props, ok := s.Parameters["properties"]; ok {
				properties = props
			}
			if req, ok := s.Parameters["required"].([]string); ok {
				required = req
			}
		}
		out = append(out, anthropicsdk.ToolUnionParam{
			OfTool: &anthropicsdk.ToolParam{
				Name:        s.Name,
				Description: anthropicsdk.String(s.Description),
				InputSchema: anthropicsdk.ToolInputSchemaParam{
					Properties: properties,
					Required:   required,
				},
			},
		})
	}
	return out
}

// Complete issues one Messages.New call. API errors the SDK surfaces as a
// structured anthropicsdk.Error become a Failure result; anything else
// (network/context failures the SDK cannot classify) propagates as a Go
// error per the AIClient contract.
func (c *Client) Complete(ctx context.Context, req aiclient.Request) (*aiclient.Result, error) {
	system, rest := extractSystem(req.Messages)

	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(req.ModelID),
		Messages:  convertMessages(rest),
		MaxTokens: c.maxTokens,
	}
	if system != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: system}}
	}
	if len(req.Tools) > 0 && req.Mode == aiclient.ModeTool {
		params.Tools = convertTools(req.Tools)
		switch req.ToolChoice.Policy {
		case aiclient.ToolChoiceRequired:
			params.ToolChoice = anthropicsdk.ToolChoiceUnionParam{OfAny: &anthropicsdk.ToolChoiceAnyParam{}}
		case aiclient.ToolChoiceNamed:
			params.ToolChoice = anthropicsdk.ToolChoiceUnionParam{
				OfTool: &anthropicsdk.ToolChoiceToolParam{Name: req.ToolChoice.Tool},
			}
		}
	}

	resp, err := c.sdk.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropicsdk.Error
		if errors.As(err, &apiErr) {
			return aiclient.NewFailure(apiErr.Error(), apiErr.RawJSON(), 0), nil
		}
		return nil, fmt.Errorf("anthropic: connectivity failure: %w", err)
	}

	usage := aiclient.Usage{
		PromptTokens:     int(resp.Usage.InputTokens),
		CompletionTokens: int(resp.Usage.OutputTokens),
		TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
	}
	cost := c.cost(req.ModelID, usage)

	var text string
	var calls []aiclient.ToolCall
	for _, block := range resp.Content {
		switch b := block.AsAny().(type) {
		case anthropicsdk.TextBlock:
			if text != "" {
				text += "\n"
			}
			text += b.Text
		case anthropicsdk.ToolUseBlock:
			var args map[string]any
			if m, ok := b.Input.(map[string]any); ok {
				args = m
			}
			calls = append(calls, aiclient.ToolCall{ID: b.ID, Name: b.Name, Arguments: args})
		}
	}

	return aiclient.NewSuccess(text, calls, string(resp.StopReason), usage, cost), nil
}

func (c *Client) cost(modelID string, usage aiclient.Usage) float64 {
	price, ok := c.prices[modelID]
	if !ok {
		return 0
	}
	return (float64(usage.PromptTokens)/1000)*price.PromptPer1K +
		(float64(usage.CompletionTokens)/1000)*price.CompletionPer1K
}

var _ aiclient.Client = (*Client)(nil)
