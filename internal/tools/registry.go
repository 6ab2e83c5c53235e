package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/ent0n29/penny/internal/model"
)

// ErrUnknownTool rejects tool names the catalogue does not know. The model
// occasionally invents names; those proposals must fail loudly instead of
// being silently ignored.
type ErrUnknownTool struct {
	Name string
}

func (e ErrUnknownTool) Error() string {
	return fmt.Sprintf("unknown tool %q", e.Name)
}

// Result is the uniform tool outcome. Expected failures (missing integration,
// not found, provider rejection) travel in Error with OK=false; handlers never
// return Go errors for them.
type Result struct {
	OK     bool
	Error  string
	Fields map[string]any
}

func OK(fields map[string]any) Result {
	return Result{OK: true, Fields: fields}
}

func Fail(format string, args ...any) Result {
	return Result{OK: false, Error: fmt.Sprintf(format, args...)}
}

// MarshalJSON flattens Fields next to ok/error, matching the wire shape tools
// report back to the model.
func (r Result) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Fields)+2)
	for k, v := range r.Fields {
		out[k] = v
	}
	out["ok"] = r.OK
	if r.Error != "" {
		out["error"] = r.Error
	}
	return json.Marshal(out)
}

func (r Result) Field(key string) any {
	if r.Fields == nil {
		return nil
	}
	return r.Fields[key]
}

// Invocation is one follow-up tool call produced by a post-condition hook.
type Invocation struct {
	Name string
	Args json.RawMessage
}

// FollowUpFunc inspects a primary tool result and optionally yields exactly
// one chained secondary invocation.
type FollowUpFunc func(res Result) *Invocation

// Handler is one named capability in the catalogue.
type Handler interface {
	Name() string
	Definition() model.Tool
	Execute(ctx context.Context, userID string, args json.RawMessage) Result
}

type funcHandler struct {
	def model.Tool
	fn  func(ctx context.Context, userID string, args json.RawMessage) Result
}

func (h funcHandler) Name() string           { return h.def.Name }
func (h funcHandler) Definition() model.Tool { return h.def }
func (h funcHandler) Execute(ctx context.Context, userID string, args json.RawMessage) Result {
	return h.fn(ctx, userID, args)
}

// Registry is a closed mapping from tool name to handler, with optional
// post-condition hooks attached per tool.
type Registry struct {
	handlers  map[string]Handler
	followUps map[string]FollowUpFunc
	order     []string
}

func NewRegistry() *Registry {
	return &Registry{
		handlers:  make(map[string]Handler),
		followUps: make(map[string]FollowUpFunc),
	}
}

func (r *Registry) Register(h Handler) {
	name := h.Name()
	if _, dup := r.handlers[name]; dup {
		panic(fmt.Sprintf("tools: duplicate handler %q", name))
	}
	r.handlers[name] = h
	r.order = append(r.order, name)
}

func (r *Registry) RegisterWithFollowUp(h Handler, fn FollowUpFunc) {
	r.Register(h)
	r.followUps[h.Name()] = fn
}

// Execute dispatches one tool call by name. Unknown names yield a typed
// error; everything else is reported inside the Result.
func (r *Registry) Execute(ctx context.Context, userID, name string, args json.RawMessage) (Result, error) {
	h, ok := r.handlers[name]
	if !ok {
		return Result{}, ErrUnknownTool{Name: name}
	}
	return h.Execute(ctx, userID, args), nil
}

// FollowUp returns the chained invocation for a completed tool call, or nil
// when the tool has no hook or the hook declines.
func (r *Registry) FollowUp(name string, res Result) *Invocation {
	fn, ok := r.followUps[name]
	if !ok {
		return nil
	}
	return fn(res)
}

// Definitions lists every tool schema in registration order for the model's
// tool catalogue.
func (r *Registry) Definitions() []model.Tool {
	out := make([]model.Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.handlers[name].Definition())
	}
	return out
}

// Names returns the sorted tool names, mainly for diagnostics.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
