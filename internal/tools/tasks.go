package tools

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ent0n29/penny/internal/model"
	"github.com/ent0n29/penny/internal/store"
)

func (c *catalog) createTaskDef() model.Tool {
	return model.Tool{
		Name:        "create_task",
		Description: "Create and store a task",
		Parameters: objectSchema(map[string]any{
			"description": map[string]any{"type": "string"},
			"related_to":  map[string]any{"type": "string"},
			"due_date":    map[string]any{"type": "string"},
		}, "description"),
	}
}

func (c *catalog) createTask(ctx context.Context, userID string, raw json.RawMessage) Result {
	var args struct {
		Description string `json:"description"`
		RelatedTo   string `json:"related_to"`
		DueDate     string `json:"due_date"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return Fail("bad arguments: %v", err)
	}
	if args.Description == "" {
		return Fail("description required")
	}

	task := store.Task{
		UserID:      userID,
		Status:      store.TaskStatusPending,
		Description: args.Description,
		RelatedTo:   args.RelatedTo,
	}
	if args.DueDate != "" {
		due, ok := parseDueDate(args.DueDate)
		if !ok {
			return Fail("invalid due_date %q", args.DueDate)
		}
		task.DueDate = &due
	}

	created, err := c.Store.CreateTask(ctx, task)
	if err != nil {
		return Fail("%v", err)
	}
	return OK(map[string]any{"taskId": created.ID})
}

func parseDueDate(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func (c *catalog) checkTasksDef() model.Tool {
	return model.Tool{
		Name:        "check_tasks",
		Description: "List the user's tasks",
		Parameters: objectSchema(map[string]any{
			"status": map[string]any{"type": "string"},
		}),
	}
}

func (c *catalog) checkTasks(ctx context.Context, userID string, raw json.RawMessage) Result {
	var args struct {
		Status string `json:"status"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return Fail("bad arguments: %v", err)
	}
	tasks, err := c.Store.ListTasks(ctx, userID, args.Status, 50)
	if err != nil {
		return Fail("%v", err)
	}
	return OK(map[string]any{"tasks": tasks})
}

func (c *catalog) completeTaskDef() model.Tool {
	return model.Tool{
		Name:        "complete_task",
		Description: "Mark a task as completed",
		Parameters: objectSchema(map[string]any{
			"taskId": map[string]any{"type": "string"},
			"notes":  map[string]any{"type": "string"},
		}, "taskId"),
	}
}

func (c *catalog) completeTask(ctx context.Context, userID string, raw json.RawMessage) Result {
	var args struct {
		TaskID string `json:"taskId"`
		Notes  string `json:"notes"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return Fail("bad arguments: %v", err)
	}
	if args.TaskID == "" {
		return Fail("taskId required")
	}
	if err := c.Store.CompleteTask(ctx, userID, args.TaskID, args.Notes); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Fail("task not found")
		}
		return Fail("%v", err)
	}
	return OK(nil)
}

func (c *catalog) addInstructionDef() model.Tool {
	return model.Tool{
		Name:        "add_instruction",
		Description: "Save a standing instruction (trigger -> action)",
		Parameters: objectSchema(map[string]any{
			"trigger": map[string]any{"type": "string"},
			"action":  map[string]any{"type": "string"},
		}, "trigger", "action"),
	}
}

func (c *catalog) addInstruction(ctx context.Context, userID string, raw json.RawMessage) Result {
	var args struct {
		Trigger     string `json:"trigger"`
		Action      string `json:"action"`
		Description string `json:"description"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return Fail("bad arguments: %v", err)
	}
	if args.Trigger == "" || args.Action == "" {
		return Fail("trigger and action required")
	}
	inst, err := c.Store.CreateInstruction(ctx, store.Instruction{
		UserID:      userID,
		Trigger:     args.Trigger,
		Action:      args.Action,
		Description: args.Description,
	})
	if err != nil {
		return Fail("%v", err)
	}
	return OK(map[string]any{"instructionId": inst.ID})
}

func (c *catalog) listInstructionsDef() model.Tool {
	return model.Tool{
		Name:        "list_instructions",
		Description: "List standing instructions",
		Parameters:  objectSchema(map[string]any{}),
	}
}

func (c *catalog) listInstructions(ctx context.Context, userID string, _ json.RawMessage) Result {
	instructions, err := c.Store.ListEnabledInstructions(ctx, userID)
	if err != nil {
		return Fail("%v", err)
	}
	return OK(map[string]any{"instructions": instructions})
}

func (c *catalog) removeInstructionDef() model.Tool {
	return model.Tool{
		Name:        "remove_instruction",
		Description: "Disable a standing instruction",
		Parameters: objectSchema(map[string]any{
			"instructionId": map[string]any{"type": "string"},
		}, "instructionId"),
	}
}

func (c *catalog) removeInstruction(ctx context.Context, userID string, raw json.RawMessage) Result {
	var args struct {
		InstructionID string `json:"instructionId"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return Fail("bad arguments: %v", err)
	}
	if args.InstructionID == "" {
		return Fail("instructionId required")
	}
	if err := c.Store.DisableInstruction(ctx, userID, args.InstructionID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Fail("instruction not found")
		}
		return Fail("%v", err)
	}
	return OK(nil)
}
