package toolregistry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// ResultCache is the narrow caching capability ToolRegistry consults before
// Call() for cacheable tools, satisfied by
// internal/infrastructure/cache.RedisCache — the teacher's application
// cache, repointed at tool-output memoization instead of HTTP response
// caching, per SPEC_FULL.md's "Caching tool outputs" design note.
type ResultCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

// CachingToolSet wraps a ToolSet so that tools reporting Cacheable() == true
// have their (name, args) pair memoized in ResultCache, avoiding repeated
// network/compute cost for deterministic code tools across node
// invocations that happen to request identical arguments.
type CachingToolSet struct {
	inner ToolSet
	cache ResultCache
	ttl   time.Duration
}

// NewCachingToolSet wraps inner with memoization backed by cache.
func NewCachingToolSet(inner ToolSet, cache ResultCache, ttl time.Duration) *CachingToolSet {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachingToolSet{inner: inner, cache: cache, ttl: ttl}
}

// Call looks up name in the wrapped set, consulting the cache first when
// the tool is cacheable.
func (c *CachingToolSet) Call(ctx context.Context, name string, ec ExecutionContext, args map[string]any) (any, error) {
	tool, ok := c.inner[name]
	if !ok {
		return nil, errToolNotFoundLocal(name)
	}
	if !tool.Cacheable() || c.cache == nil {
		return tool.Call(ctx, ec, args)
	}

	key, err := cacheKey(name, args)
	if err != nil {
		return tool.Call(ctx, ec, args)
	}
	if raw, err := c.cache.Get(ctx, key); err == nil && raw != "" {
		var cached any
		if json.Unmarshal([]byte(raw), &cached) == nil {
			return cached, nil
		}
	}

	result, err := tool.Call(ctx, ec, args)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(result); err == nil {
		_ = c.cache.Set(ctx, key, string(data), c.ttl)
	}
	return result, nil
}

func cacheKey(name string, args map[string]any) (string, error) {
	data, err := json.Marshal(args)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(append([]byte(name+":"), data...))
	return "toolresult:" + hex.EncodeToString(sum[:]), nil
}

func errToolNotFoundLocal(name string) error {
	return &toolNotFoundError{name: name}
}

type toolNotFoundError struct{ name string }

func (e *toolNotFoundError) Error() string { return "toolregistry: tool not found: " + e.name }
