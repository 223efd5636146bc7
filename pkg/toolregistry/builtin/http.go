// Package builtin provides example code tools for the multi-step strategy:
// http, transform (jq/expr), and merge. Adapted from the teacher's
// pkg/executor/builtin/{http,transform,merge}.go node executors, regrounded
// on toolregistry.Tool instead of executor.Executor. These are generic
// enough to exercise the multi-step loop in tests (spec.md S4) without
// pretending to be the full tool catalog a real deployment would register
// (ToolRegistry is deliberately domain-agnostic per spec.md §4.2).
package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/meshagent/meshagent/pkg/toolregistry"
)

// HTTPTool issues an HTTP request described by its call arguments.
type HTTPTool struct {
	client *http.Client
}

// NewHTTPTool constructs an HTTPTool with a bounded client timeout,
// mirroring the teacher's NewHTTPExecutor default.
func NewHTTPTool() *HTTPTool {
	return &HTTPTool{client: &http.Client{Timeout: 30 * time.Second}}
}

func (t *HTTPTool) Name() string { return "http_request" }

func (t *HTTPTool) ParametersSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"method":  map[string]any{"type": "string", "enum": []string{"GET", "POST", "PUT", "PATCH", "DELETE"}},
			"url":     map[string]any{"type": "string"},
			"headers": map[string]any{"type": "object"},
			"body":    map[string]any{"type": "string"},
		},
		"required": []string{"method", "url"},
	}
}

func (t *HTTPTool) Cacheable() bool { return false }

func (t *HTTPTool) Call(ctx context.Context, _ toolregistry.ExecutionContext, args map[string]any) (any, error) {
	method, _ := args["method"].(string)
	url, _ := args["url"].(string)
	if method == "" || url == "" {
		return nil, fmt.Errorf("http_request: method and url are required")
	}

	var body io.Reader
	if raw, ok := args["body"]; ok {
		switch v := raw.(type) {
		case string:
			body = bytes.NewReader([]byte(v))
		default:
			data, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("http_request: marshal body: %w", err)
			}
			body = bytes.NewReader(data)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("http_request: building request: %w", err)
	}
	if headers, ok := args["headers"].(map[string]any); ok {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				req.Header.Set(k, s)
			}
		}
	}
	if req.Header.Get("Content-Type") == "" && body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http_request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("http_request: reading response: %w", err)
	}

	return map[string]any{
		"status_code": resp.StatusCode,
		"headers":     resp.Header,
		"body":        string(data),
	}, nil
}

var _ toolregistry.Tool = (*HTTPTool)(nil)
