// Package orchestrator drives one chat turn end to end: prompt assembly from
// memory and retrieved knowledge, tool proposal, sequential dispatch with
// conflict-aware scheduling, confirmation, and persistence.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ent0n29/penny/internal/knowledge"
	"github.com/ent0n29/penny/internal/memory"
	"github.com/ent0n29/penny/internal/model"
	"github.com/ent0n29/penny/internal/observability"
	"github.com/ent0n29/penny/internal/schedule"
	"github.com/ent0n29/penny/internal/store"
	"github.com/ent0n29/penny/internal/tools"
)

var (
	// ErrTurnFailed is the only error SubmitTurn surfaces for unexpected
	// failures past the durable user-message save. Details go to the log,
	// not the caller.
	ErrTurnFailed = errors.New("turn processing failed")

	// ErrUnknownUser rejects turns for users the store has never seen.
	ErrUnknownUser = errors.New("unknown user")
)

const systemPromptFormat = `You are an AI assistant for a financial advisor.
Use context snippets to answer questions about clients.
When asked to do something (email, schedule, HubSpot, tasks, rules), call the appropriate tool.
If the user mentions a time like "today 2.30pm", assume timezone %s.`

// backgroundTimeout bounds the post-reply title and summary work.
const backgroundTimeout = 30 * time.Second

type TurnResult struct {
	Reply       string                 `json:"reply"`
	ThreadID    string                 `json:"thread_id"`
	ToolResults []store.ToolInvocation `json:"tool_result"`
}

type Deps struct {
	Store     store.Store
	Memory    *memory.Service
	Retriever *knowledge.Retriever
	Registry  *tools.Registry
	Resolver  *schedule.Resolver
	Model     model.Client
	Metrics   *observability.Metrics

	// Timezone is the assumption stated to the model for bare times.
	Timezone string
	// KnowledgeTopK bounds context retrieval per turn.
	KnowledgeTopK int
}

type Engine struct {
	deps Deps
}

func NewEngine(deps Deps) *Engine {
	if deps.Timezone == "" {
		deps.Timezone = "UTC"
	}
	if deps.KnowledgeTopK <= 0 {
		deps.KnowledgeTopK = 5
	}
	return &Engine{deps: deps}
}

// SubmitTurn processes one inbound chat message. The user message is saved
// before any external call; everything after that is caught at this boundary
// and surfaced as ErrTurnFailed.
func (e *Engine) SubmitTurn(ctx context.Context, userID, message, threadID string) (TurnResult, error) {
	started := time.Now()
	if m := e.deps.Metrics; m != nil {
		m.TurnsInFlight.Inc()
		defer m.TurnsInFlight.Dec()
		defer func() { m.ObserveTurnLatency(time.Since(started)) }()
	}

	if _, err := e.deps.Store.GetUser(ctx, userID); err != nil {
		return TurnResult{}, fmt.Errorf("%w: %s", ErrUnknownUser, userID)
	}

	conv, err := e.deps.Memory.EnsureConversation(ctx, userID, threadID)
	if err != nil {
		log.Printf("orchestrator: ensure conversation for user %s: %v", userID, err)
		return TurnResult{}, ErrTurnFailed
	}
	if err := e.deps.Memory.SaveMessage(ctx, conv.ID, model.RoleUser, message, nil); err != nil {
		log.Printf("orchestrator: save user message in %s: %v", conv.ID, err)
		return TurnResult{}, ErrTurnFailed
	}

	result, err := e.runTurn(ctx, userID, message, conv)
	if err != nil {
		log.Printf("orchestrator: turn failed in conversation %s: %v", conv.ID, err)
		e.countOutcome("error")
		return TurnResult{}, ErrTurnFailed
	}
	return result, nil
}

func (e *Engine) runTurn(ctx context.Context, userID, message string, conv store.Conversation) (TurnResult, error) {
	prompt, err := e.assemblePrompt(ctx, userID, message, conv)
	if err != nil {
		return TurnResult{}, err
	}

	first, err := e.complete(ctx, "propose", model.Request{
		Messages: prompt,
		Tools:    e.deps.Registry.Definitions(),
	})
	if err != nil {
		return TurnResult{}, fmt.Errorf("first model pass: %w", err)
	}

	reply := first.Content
	dispatch := e.dispatch(ctx, userID, message, first.ToolCalls)

	switch {
	case dispatch.earlyExit:
		reply = dispatch.reply
		e.countOutcome(dispatch.outcome)
	case len(dispatch.modelVisible) > 0:
		confirmed, err := e.confirm(ctx, prompt, first.ToolCalls, dispatch.modelVisible)
		if err != nil {
			return TurnResult{}, fmt.Errorf("confirmation pass: %w", err)
		}
		if confirmed != "" {
			reply = confirmed
		} else if reply == "" {
			reply = "Done."
		}
		e.countOutcome("ok")
	default:
		e.countOutcome("ok")
	}

	if err := e.deps.Memory.SaveMessage(ctx, conv.ID, model.RoleAssistant, reply, dispatch.all); err != nil {
		return TurnResult{}, fmt.Errorf("save assistant message: %w", err)
	}
	e.runBackgroundTasks(userID, conv)

	return TurnResult{Reply: reply, ThreadID: conv.ID, ToolResults: dispatch.all}, nil
}

// assemblePrompt builds system instruction + rolling summary + recent window
// + retrieved context + the new user message.
func (e *Engine) assemblePrompt(ctx context.Context, userID, message string, conv store.Conversation) ([]model.Message, error) {
	snippets := e.deps.Retriever.Search(ctx, userID, message, e.deps.KnowledgeTopK)
	contents := make([]string, 0, len(snippets))
	for _, s := range snippets {
		contents = append(contents, s.Content)
	}

	recent, err := e.deps.Memory.LoadRecentMessages(ctx, conv.ID)
	if err != nil {
		return nil, err
	}

	prompt := []model.Message{{
		Role:    model.RoleSystem,
		Content: fmt.Sprintf(systemPromptFormat, e.deps.Timezone),
	}}
	if rolled := strings.TrimSpace(conv.RollingSummary); rolled != "" {
		prompt = append(prompt, model.Message{Role: model.RoleSystem, Content: "MEMORY:\n" + rolled})
	}
	for _, m := range recent {
		prompt = append(prompt, model.Message{Role: model.Role(m.Role), Content: m.Content})
	}
	prompt = append(prompt,
		model.Message{Role: model.RoleAssistant, Content: "CONTEXT:\n" + strings.Join(contents, "\n---\n")},
		model.Message{Role: model.RoleUser, Content: message},
	)
	return prompt, nil
}

// dispatchResult separates what the model may see in the confirmation pass
// (results matching its own tool-call ids) from everything persisted, which
// also includes chained follow-up invocations.
type dispatchResult struct {
	modelVisible []store.ToolInvocation
	all          []store.ToolInvocation
	earlyExit    bool
	reply        string
	outcome      string
}

// dispatch executes the proposed tool calls strictly in order. One failing
// tool does not abort the rest; scheduling outcomes may end the turn early.
func (e *Engine) dispatch(ctx context.Context, userID, message string, calls []model.ToolCall) dispatchResult {
	var out dispatchResult
	for _, call := range calls {
		if call.Name == "schedule_event" {
			done := e.dispatchSchedule(ctx, userID, message, call, &out)
			if done {
				return out
			}
			continue
		}

		res, err := e.deps.Registry.Execute(ctx, userID, call.Name, json.RawMessage(call.Arguments))
		if err != nil {
			// Unknown tool name invented by the model: record the
			// rejection as a failed result instead of dropping it.
			res = tools.Fail("%v", err)
		}
		e.record(&out, call.ID, call.Name, res, true)

		if follow := e.deps.Registry.FollowUp(call.Name, res); follow != nil {
			fres, ferr := e.deps.Registry.Execute(ctx, userID, follow.Name, follow.Args)
			if ferr != nil {
				fres = tools.Fail("%v", ferr)
			}
			e.record(&out, call.ID+":followup", follow.Name, fres, false)
		}
	}
	return out
}

// dispatchSchedule routes calendar creation through the conflict resolver.
// Returns true when the outcome terminates the turn.
func (e *Engine) dispatchSchedule(ctx context.Context, userID, message string, call model.ToolCall, out *dispatchResult) bool {
	var args schedule.Args
	if raw := call.Arguments; raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			e.record(out, call.ID, call.Name, tools.Fail("bad arguments: %v", err), true)
			return false
		}
	}

	outcome := e.deps.Resolver.Resolve(ctx, userID, message, args)
	switch outcome.Kind {
	case schedule.OutcomeCreated:
		res := tools.OK(outcome.Event)
		if outcome.BusyLookupError != "" {
			if res.Fields == nil {
				res.Fields = map[string]any{}
			}
			res.Fields["busyLookupError"] = outcome.BusyLookupError
		}
		e.record(out, call.ID, call.Name, res, true)
		return false
	case schedule.OutcomeClarify:
		out.earlyExit = true
		out.reply = outcome.Reply
		out.outcome = "clarify"
		return true
	case schedule.OutcomeConflict:
		res := tools.Result{
			OK:     false,
			Error:  "requested time is busy",
			Fields: map[string]any{"suggestions": outcome.Suggestions},
		}
		e.record(out, call.ID, call.Name, res, false)
		out.earlyExit = true
		out.reply = outcome.Reply
		out.outcome = "conflict"
		return true
	default:
		res := tools.Fail("%s", strings.TrimPrefix(outcome.Reply, "❌ "))
		if outcome.BusyLookupError != "" {
			res.Fields = map[string]any{"busyLookupError": outcome.BusyLookupError}
		}
		e.record(out, call.ID, call.Name, res, false)
		out.earlyExit = true
		out.reply = outcome.Reply
		out.outcome = "tool_failed"
		return true
	}
}

func (e *Engine) record(out *dispatchResult, callID, name string, res tools.Result, modelVisible bool) {
	content, err := json.Marshal(res)
	if err != nil {
		content = []byte(`{"ok":false,"error":"unserializable result"}`)
	}
	inv := store.ToolInvocation{ToolCallID: callID, Name: name, Content: string(content)}
	out.all = append(out.all, inv)
	if modelVisible {
		out.modelVisible = append(out.modelVisible, inv)
	}
	if m := e.deps.Metrics; m != nil {
		status := "ok"
		if !res.OK {
			status = "failed"
		}
		m.ToolCalls.WithLabelValues(name, status).Inc()
	}
}

// confirm runs the second model pass: the original prompt, the assistant's
// tool calls, and each visible result, asking for the final reply.
func (e *Engine) confirm(ctx context.Context, prompt []model.Message, calls []model.ToolCall, results []store.ToolInvocation) (string, error) {
	visible := make(map[string]bool, len(results))
	for _, r := range results {
		visible[r.ToolCallID] = true
	}
	answered := make([]model.ToolCall, 0, len(calls))
	for _, c := range calls {
		if visible[c.ID] {
			answered = append(answered, c)
		}
	}

	messages := make([]model.Message, 0, len(prompt)+len(results)+1)
	messages = append(messages, prompt...)
	messages = append(messages, model.Message{Role: model.RoleAssistant, ToolCalls: answered})
	for _, r := range results {
		messages = append(messages, model.Message{
			Role:       model.RoleTool,
			Name:       r.Name,
			Content:    r.Content,
			ToolCallID: r.ToolCallID,
		})
	}

	resp, err := e.complete(ctx, "confirm", model.Request{Messages: messages})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}

func (e *Engine) complete(ctx context.Context, purpose string, req model.Request) (model.Response, error) {
	resp, err := e.deps.Model.Complete(ctx, req)
	if m := e.deps.Metrics; m != nil {
		status := "ok"
		if err != nil {
			status = "error"
			code := "error"
			if model.IsRateLimited(err) {
				code = "rate_limited"
			}
			m.ProviderErrors.WithLabelValues("model", code).Inc()
		}
		m.ModelCalls.WithLabelValues(purpose, status).Inc()
	}
	return resp, err
}

// runBackgroundTasks kicks off title inference and summary compaction after
// the reply is already computed. Both are best-effort.
func (e *Engine) runBackgroundTasks(userID string, conv store.Conversation) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
		defer cancel()
		e.deps.Memory.MaybeSetTitle(ctx, conv)
		e.deps.Memory.UpdateRollingSummaryIfNeeded(ctx, conv.ID, userID)
	}()
}

func (e *Engine) countOutcome(outcome string) {
	if m := e.deps.Metrics; m != nil {
		m.TurnOutcomes.WithLabelValues(outcome).Inc()
	}
}
