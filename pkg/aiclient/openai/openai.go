// Package openai adapts github.com/sashabaranov/go-openai's chat-completions
// API to the aiclient.Client port, grounded on the teacher's
// pkg/executor/builtin/llm.go OpenAI chat-completions path
// (executeWithToolCalling / parseTools / responseToMap).
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/meshagent/meshagent/pkg/aiclient"
)

// PriceTable maps a model id to its per-1k-token prompt/completion USD
// price. Populated at construction from static, known list prices; the
// core never calls out to a pricing API.
type PriceTable map[string]ModelPrice

// ModelPrice is the USD cost per 1000 prompt/completion tokens.
type ModelPrice struct {
	PromptPer1K     float64
	CompletionPer1K float64
}

// DefaultPriceTable carries list prices for the chat models the teacher's
// llm.go already names in its examples. Callers may supply their own table
// via WithPriceTable for models not listed here.
var DefaultPriceTable = PriceTable{
	"gpt-4o":      {PromptPer1K: 0.0025, CompletionPer1K: 0.01},
	"gpt-4o-mini": {PromptPer1K: 0.00015, CompletionPer1K: 0.0006},
	"gpt-4-turbo": {PromptPer1K: 0.01, CompletionPer1K: 0.03},
	"gpt-3.5-turbo": {PromptPer1K: 0.0005, CompletionPer1K: 0.0015},
}

// Client adapts *openai.Client to aiclient.Client.
type Client struct {
	sdk    *openai.Client
	prices PriceTable
}

// Option configures a Client.
type Option func(*Client)

// WithPriceTable overrides DefaultPriceTable.
func WithPriceTable(t PriceTable) Option {
	return func(c *Client) { c.prices = t }
}

// New constructs a Client from an API key, mirroring the teacher's
// getOrCreateProvider lazy-construction pattern but resolved once at
// process wiring time instead of per request.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{sdk: openai.NewClient(apiKey), prices: DefaultPriceTable}
	for _, o := range opts {
		o(c)
	}
	return c
}

// NewWithSDK wraps an already-constructed *openai.Client, used by tests to
// point at a mock server via openai.Config.BaseURL.
func NewWithSDK(sdk *openai.Client, opts ...Option) *Client {
	c := &Client{sdk: sdk, prices: DefaultPriceTable}
	for _, o := range opts {
		o(c)
	}
	return c
}

func toChatRole(r aiclient.Role) string {
	switch r {
	case aiclient.RoleSystem:
		return openai.ChatMessageRoleSystem
	case aiclient.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	case aiclient.RoleTool:
		return openai.ChatMessageRoleTool
	default:
		return openai.ChatMessageRoleUser
	}
}

func toChatMessages(msgs []aiclient.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		cm := openai.ChatCompletionMessage{
			Role:    toChatRole(m.Role),
			Content: m.Content,
		}
		if m.Role == aiclient.RoleTool {
			cm.ToolCallID = m.ToolCallID
			cm.Name = m.Name
		}
		out = append(out, cm)
	}
	return out
}

func toChatTools(schemas []aiclient.ToolSchema) []openai.Tool {
	out := make([]openai.Tool, 0, len(schemas))
	for _, s := range schemas {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        s.Name,
				Description: s.Description,
				Parameters:  s.Parameters,
			},
		})
	}
	return out
}

func toToolChoice(tc aiclient.ToolChoice) any {
	switch tc.Policy {
	case aiclient.ToolChoiceRequired:
		return "required"
	case aiclient.ToolChoiceNamed:
		return openai.ToolChoice{
			Type:     openai.ToolTypeFunction,
			Function: openai.ToolFunction{Name: tc.Tool},
		}
	default:
		return "auto"
	}
}

// Complete issues one chat-completions call. Model-level failures (the API
// returning a non-2xx with a structured error body, or the response
// carrying no usable choice) become a Failure result; only a transport-level
// error the SDK cannot classify propagates as a Go error.
func (c *Client) Complete(ctx context.Context, req aiclient.Request) (*aiclient.Result, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:    req.ModelID,
		Messages: toChatMessages(req.Messages),
	}
	if len(req.Tools) > 0 && req.Mode == aiclient.ModeTool {
		chatReq.Tools = toChatTools(req.Tools)
		chatReq.ToolChoice = toToolChoice(req.ToolChoice)
	}

	resp, err := c.sdk.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return aiclient.NewFailure(apiErr.Message, apiErr.Error(), 0), nil
		}
		return nil, fmt.Errorf("openai: connectivity failure: %w", err)
	}
	if len(resp.Choices) == 0 {
		return aiclient.NewFailure("openai: empty choices in response", "", 0), nil
	}

	choice := resp.Choices[0]
	usage := aiclient.Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	cost := c.cost(req.ModelID, usage)

	var calls []aiclient.ToolCall
	for _, tc := range choice.Message.ToolCalls {
		var args map[string]any
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return aiclient.NewFailure(
					fmt.Sprintf("openai: malformed tool-call arguments for %s: %v", tc.Function.Name, err),
					tc.Function.Arguments, cost,
				), nil
			}
		}
		calls = append(calls, aiclient.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args})
	}

	return aiclient.NewSuccess(choice.Message.Content, calls, string(choice.FinishReason), usage, cost), nil
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
