package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// ContextPrefix marks an allow-list expression that reads bot context.
const ContextPrefix = "context."

// ErrUnknownKey is returned when a context expression names a missing key.
var ErrUnknownKey = errors.New("auth: unknown context key")

// Resolver turns an allow-list expression into identifiers. Implementations
// must only read the provided context; they never execute code.
type Resolver interface {
	Resolve(expr string, ctx *Context) ([]string, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(expr string, ctx *Context) ([]string, error)

func (f ResolverFunc) Resolve(expr string, ctx *Context) ([]string, error) { return f(expr, ctx) }

// StaticResolver parses a literal comma-separated list. Blank entries and
// a leading '@' on usernames are dropped.
type StaticResolver struct{}

func (StaticResolver) Resolve(expr string, _ *Context) ([]string, error) {
	return splitList(expr), nil
}

// ContextResolver handles "context.<key>" expressions.
type ContextResolver struct{}

func (ContextResolver) Resolve(expr string, ctx *Context) ([]string, error) {
	key, ok := strings.CutPrefix(strings.TrimSpace(expr), ContextPrefix)
	if !ok {
		return nil, fmt.Errorf("auth: resolve %q: not a context expression", expr)
	}
	if key == "" {
		return nil, fmt.Errorf("auth: resolve %q: empty key", expr)
	}
	if ctx == nil {
		return nil, fmt.Errorf("auth: resolve %q: %w", expr, ErrUnknownKey)
	}
	v, ok := ctx.Get(key)
	if !ok {
		return nil, fmt.Errorf("auth: resolve %q: %w", expr, ErrUnknownKey)
	}
	switch val := v.(type) {
	case string:
		return splitList(val), nil
	case []string:
		out := make([]string, 0, len(val))
		for _, s := range val {
			out = append(out, splitList(s)...)
		}
		return out, nil
	case int64:
		return []string{strconv.FormatInt(val, 10)}, nil
	case int:
		return []string{strconv.Itoa(val)}, nil
	case []int64:
		out := make([]string, len(val))
		for i, id := range val {
			out[i] = strconv.FormatInt(id, 10)
		}
		return out, nil
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			out = append(out, strings.TrimPrefix(strings.TrimSpace(fmt.Sprint(item)), "@"))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("auth: resolve %q: unsupported value type %T", expr, v)
	}
}

// chainResolver sends context expressions to the context resolver and
// everything else to the static one.
type chainResolver struct {
	static  Resolver
	dynamic Resolver
}

func (c chainResolver) Resolve(expr string, ctx *Context) ([]string, error) {
	if strings.HasPrefix(strings.TrimSpace(expr), ContextPrefix) {
		return c.dynamic.Resolve(expr, ctx)
	}
	return c.static.Resolve(expr, ctx)
}

// DefaultResolver returns the built-in resolver: literal lists plus
// context lookups.
func DefaultResolver() Resolver {
	return chainResolver{static: StaticResolver{}, dynamic: ContextResolver{}}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimPrefix(strings.TrimSpace(part), "@")
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Context is bot-local mutable state that allow-list expressions may read.
// It is safe for concurrent use.
type Context struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewContext returns a context seeded with initial values.
func NewContext(initial map[string]any) *Context {
	c := &Context{values: make(map[string]any, len(initial))}
	for k, v := range initial {
		c.values[k] = v
	}
	return c
}

func (c *Context) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok
}

func (c *Context) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.values == nil {
		c.values = make(map[string]any)
	}
	c.values[key] = value
}

func (c *Context) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
}
