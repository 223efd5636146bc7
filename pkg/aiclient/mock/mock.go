// Package mock provides a deterministic, scriptable aiclient.Client for
// InvocationPipeline/StrategySelector/WorkflowExecutor tests, grounded on
// the teacher's mock_observer.go style of hand-rolled, queue-driven fakes
// for interfaces it doesn't want to bring a mocking framework in for.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/meshagent/meshagent/pkg/aiclient"
)

// ResponseFunc computes a Result for a Request, letting tests branch on
// request content (e.g. the scripted multi-step scenarios in spec.md S4).
type ResponseFunc func(req aiclient.Request) (*aiclient.Result, error)

// Client replays a fixed queue of responses, or falls back to Func if the
// queue is empty, or to a default success echoing the last user message.
type Client struct {
	mu        sync.Mutex
	queue     []*aiclient.Result
	Func      ResponseFunc
	Calls     []aiclient.Request
	CostPerCall float64
}

// New constructs an empty Client; use Enqueue/EnqueueText/EnqueueTool to
// script responses.
func New() *Client {
	return &Client{CostPerCall: 0.001}
}

// Enqueue appends one scripted Result, returned in FIFO order.
func (c *Client) Enqueue(r *aiclient.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue = append(c.queue, r)
}

// EnqueueText scripts a successful text response.
func (c *Client) EnqueueText(content string) {
	c.Enqueue(aiclient.NewSuccess(content, nil, "stop", aiclient.Usage{PromptTokens: 10, CompletionTokens: 10, TotalTokens: 20}, c.CostPerCall))
}

// EnqueueToolCall scripts a successful tool-call response.
func (c *Client) EnqueueToolCall(name string, args map[string]any) {
	c.Enqueue(aiclient.NewSuccess("", []aiclient.ToolCall{{ID: fmt.Sprintf("call-%d", len(c.queue)), Name: name, Arguments: args}},
		"tool_calls", aiclient.Usage{PromptTokens: 10, CompletionTokens: 10, TotalTokens: 20}, c.CostPerCall))
}

// EnqueueFailure scripts a model-level failure.
func (c *Client) EnqueueFailure(message string) {
	c.Enqueue(aiclient.NewFailure(message, "", c.CostPerCall))
}

// Complete pops the next queued response, or calls Func, or synthesizes a
// trivial echo success so tests that don't care about AI content still get
// a deterministic, costed response.
func (c *Client) Complete(ctx context.Context, req aiclient.Request) (*aiclient.Result, error) {
	c.mu.Lock()
	c.Calls = append(c.Calls, req)
	var next *aiclient.Result
	if len(c.queue) > 0 {
		next, c.queue = c.queue[0], c.queue[1:]
	}
	c.mu.Unlock()

	if next != nil {
		return next, nil
	}
	if c.Func != nil {
		return c.Func(req)
	}

	last := ""
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == aiclient.RoleUser {
			last = req.Messages[i].Content
			break
		}
	}
	return aiclient.NewSuccess(last, nil, "stop", aiclient.Usage{PromptTokens: 1, CompletionTokens: 1, TotalTokens: 2}, c.CostPerCall), nil
}

var _ aiclient.Client = (*Client)(nil)
