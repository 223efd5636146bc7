// Package gemini adapts the google/generative-ai-go client (genai) to the
// aiclient.Client port, grounded on the teacher's HTTP-based
// pkg/executor/builtin/llm_gemini.go (request/response shape, instruction
// field, per-call API key header) but going through the official Go SDK the
// way the pack's dshills-langgraph-go google provider does.
package gemini

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/meshagent/meshagent/pkg/aiclient"
)

// ModelPrice is the USD cost per 1000 prompt/completion tokens.
type ModelPrice struct {
	PromptPer1K     float64
	CompletionPer1K float64
}

// DefaultPriceTable carries list prices for the Gemini models this package
// expects to be pointed at.
var DefaultPriceTable = map[string]ModelPrice{
	"gemini-2.0-flash": {PromptPer1K: 0.0001, CompletionPer1K: 0.0004},
	"gemini-1.5-pro":   {PromptPer1K: 0.00125, CompletionPer1K: 0.005},
}

// Client adapts genai.Client to aiclient.Client. Unlike the openai/anthropic
// adapters, genai.NewClient is per-call in the teacher's HTTP provider
// (api key passed per request); this package keeps a single long-lived SDK
// client constructed once at New, matching the pack's SDK-based usage.
type Client struct {
	apiKey string
	prices map[string]ModelPrice
}

// Option configures a Client.
type Option func(*Client)

// WithPriceTable overrides DefaultPriceTable.
func WithPriceTable(t map[string]ModelPrice) Option {
	return func(c *Client) { c.prices = t }
}

// New constructs a Client from an API key.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{apiKey: apiKey, prices: DefaultPriceTable}
	for _, o := range opts {
		o(c)
	}
	return c
}

func convertSchema(params map[string]any) *genai.Schema {
	if params == nil {
		return nil
	}
	schema := &genai.Schema{Type: genai.TypeObject}
	if props, ok := params["properties"].(map[string]any); ok {
		schema.Properties = make(map[string]*genai.Schema, len(props))
		for name, raw := range props {
			p, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			ps := &genai.Schema{}
			if t, ok := p["type"].(string); ok {
				ps.Type = convertType(t)
			}
			if d, ok := p["description"].(string); ok {
				ps.Description = d
			}
			schema.Properties[name] = ps
		}
	}
	if req, ok := params["required"].([]string); ok {
		schema.Required = req
	}
	return schema
}

func convertType(t string) genai.Type {
	switch t {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeUnspecified
	}
}

// Complete issues one GenerateContent call. Safety-filter blocks and other
// model-level refusals surface as a Failure result; SDK construction or
// transport failures propagate as a Go error.
func (c *Client) Complete(ctx context.Context, req aiclient.Request) (*aiclient.Result, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(c.apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini: failed to create client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(req.ModelID)

	var system string
	var parts []genai.Part
	for _, m := range req.Messages {
		if m.Role == aiclient.RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		if m.Content != "" {
			parts = append(parts, genai.Text(m.Content))
		}
	}
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	if len(req.Tools) > 0 && req.Mode == aiclient.ModeTool {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  convertSchema(t.Parameters),
			})
		}
		model.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return aiclient.NewFailure(fmt.Sprintf("gemini: generation failed: %v", err), "", 0), nil
	}
	if len(resp.Candidates) == 0 {
		return aiclient.NewFailure("gemini: no candidates returned (likely blocked by safety filters)", "", 0), nil
	}

	usage := aiclient.Usage{}
	if resp.UsageMetadata != nil {
		usage = aiclient.Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	cost := c.cost(req.ModelID, usage)

	var text string
	var calls []aiclient.ToolCall
	cand := resp.Candidates[0]
	if cand.Content != nil {
		for _, p := range cand.Content.Parts {
			switch v := p.(type) {
			case genai.Text:
				if text != "" {
					text += "\n"
				}
				text += string(v)
			case genai.FunctionCall:
				calls = append(calls, aiclient.ToolCall{Name: v.Name, Arguments: v.Args})
			}
		}
	}

	return aiclient.NewSuccess(text, calls, fmt.Sprintf("%v", cand.FinishReason), usage, cost), nil
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
