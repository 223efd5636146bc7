package aiclient

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Router dispatches a Request to one of several backing Clients by a
// prefix match on Request.ModelID, so the engine package can depend on a
// single aiclient.Client regardless of how many providers (openai,
// anthropic, gemini) are configured. Grounded on the teacher's
// pkg/executor.Manager name-to-implementation registry, generalized from
// tool-name routing to model-id routing.
type Router struct {
	mu      sync.RWMutex
	routes  map[string]Client // prefix -> client
	order   []string          // longest-prefix-first match order
	fallback Client
}

// NewRouter constructs an empty Router. Register routes with Register;
// set a catch-all with SetFallback.
func NewRouter() *Router {
	return &Router{routes: make(map[string]Client)}
}

// Register binds every ModelID beginning with prefix to client.
func (r *Router) Register(prefix string, client Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.routes[prefix]; !exists {
		r.order = append(r.order, prefix)
	}
	r.routes[prefix] = client
}

// SetFallback sets the client used when no prefix matches.
func (r *Router) SetFallback(client Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = client
}

// Complete resolves req.ModelID to a registered client and delegates.
func (r *Router) Complete(ctx context.Context, req Request) (*Result, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best string
	var bestClient Client
	for _, prefix := range r.order {
		if strings.HasPrefix(req.ModelID, prefix) && len(prefix) > len(best) {
			best = prefix
			bestClient = r.routes[prefix]
		}
	}
	if bestClient != nil {
		return bestClient.Complete(ctx, req)
	}
	if r.fallback != nil {
		return r.fallback.Complete(ctx, req)
	}
	return nil, fmt.Errorf("aiclient: no provider registered for model %q", req.ModelID)
}

var _ Client = (*Router)(nil)
