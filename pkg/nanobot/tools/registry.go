// Package tools – registry.go
// Tool contract and the registry offered to the model.
package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hkuds/nanobot/pkg/nanobot/providers"
)

// Tool is one callable capability. Parameters returns a JSON Schema
// object describing the arguments.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// Convo identifies the conversation a tool call belongs to. It rides on
// the context so concurrent runs cannot see each other's target.
type Convo struct {
	Channel string
	ChatID  string
}

type convoKeyType struct{}

var convoKey convoKeyType

// WithConvo attaches the originating conversation to ctx.
func WithConvo(ctx context.Context, channel, chatID string) context.Context {
	return context.WithValue(ctx, convoKey, Convo{Channel: channel, ChatID: chatID})
}

// ConvoFrom extracts the conversation a tool call belongs to.
func ConvoFrom(ctx context.Context) (Convo, bool) {
	c, ok := ctx.Value(convoKey).(Convo)
	return c, ok
}

// Registry holds the tools exposed to the agent.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds or replaces a tool by name.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

// Get looks a tool up by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Execute runs the named tool.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	tool, ok := r.Get(name)
	if !ok {
		return "", fmt.Errorf("unknown tool %q", name)
	}
	return tool.Execute(ctx, args)
}

// Definitions returns the catalog in provider format, sorted by name.
func (r *Registry) Definitions() []providers.ToolDef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]providers.ToolDef, 0, len(r.tools))
	for _, tool := range r.tools {
		defs = append(defs, providers.ToolDef{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  tool.Parameters(),
		})
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// stringArg extracts a required string argument.
func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing argument %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string", key)
	}
	return s, nil
}
