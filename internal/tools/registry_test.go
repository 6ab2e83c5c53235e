package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/ent0n29/penny/internal/model"
)

func stubHandler(name string, res Result) Handler {
	return funcHandler{
		def: model.Tool{Name: name, Parameters: objectSchema(nil)},
		fn: func(_ context.Context, _ string, _ json.RawMessage) Result {
			return res
		},
	}
}

func TestExecuteRejectsUnknownTool(t *testing.T) {
	r := NewRegistry()
	r.Register(stubHandler("real_tool", OK(nil)))

	_, err := r.Execute(context.Background(), "u1", "invented_tool", nil)
	var unknown ErrUnknownTool
	if !errors.As(err, &unknown) {
		t.Fatalf("error = %v, want ErrUnknownTool", err)
	}
	if unknown.Name != "invented_tool" {
		t.Fatalf("Name = %q, want invented_tool", unknown.Name)
	}
}

func TestDefinitionsKeepRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	r.Register(stubHandler("zeta", OK(nil)))
	r.Register(stubHandler("alpha", OK(nil)))

	defs := r.Definitions()
	if len(defs) != 2 || defs[0].Name != "zeta" || defs[1].Name != "alpha" {
		t.Fatalf("Definitions order = %v, want registration order", defs)
	}
}

func TestFollowUpOnlyFiresForHookedTools(t *testing.T) {
	r := NewRegistry()
	r.Register(stubHandler("plain", OK(nil)))
	r.RegisterWithFollowUp(stubHandler("hooked", OK(nil)), func(res Result) *Invocation {
		if !res.OK {
			return nil
		}
		return &Invocation{Name: "chained", Args: json.RawMessage(`{}`)}
	})

	if inv := r.FollowUp("plain", OK(nil)); inv != nil {
		t.Fatalf("FollowUp on hookless tool = %+v, want nil", inv)
	}
	if inv := r.FollowUp("hooked", Fail("boom")); inv != nil {
		t.Fatalf("FollowUp on failed result = %+v, want nil", inv)
	}
	inv := r.FollowUp("hooked", OK(nil))
	if inv == nil || inv.Name != "chained" {
		t.Fatalf("FollowUp = %+v, want chained invocation", inv)
	}
}

func TestResultMarshalShape(t *testing.T) {
	b, err := json.Marshal(OK(map[string]any{"id": "42"}))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got["ok"] != true || got["id"] != "42" {
		t.Fatalf("marshalled ok result = %v", got)
	}
	if _, present := got["error"]; present {
		t.Fatalf("error key present on success: %v", got)
	}

	b, err = json.Marshal(Fail("it broke"))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got = map[string]any{}
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got["ok"] != false || got["error"] != "it broke" {
		t.Fatalf("marshalled fail result = %v", got)
	}
}
