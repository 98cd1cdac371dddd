package plan

import (
	"encoding/json"
	"strings"
)

// ToolCall is one planned invocation: a tool name from the dispatch table
// plus its raw JSON arguments. Calls are owned by the plan that carries
// them; executors must not mutate them.
type ToolCall struct {
	Name string          `json:"name" jsonschema:"title=name,description=Tool name from the dispatch table"`
	Args json.RawMessage `json:"args,omitempty" jsonschema:"title=args,description=JSON arguments for the tool"`
}

// Plan is the ordered list of tool calls produced by the planner.
// Calls that can run in parallel are expected first.
type Plan struct {
	ToolCalls []ToolCall `json:"tool_calls"`
}

// ToolResult is the tagged outcome for exactly one ToolCall, stored at the
// call's own position in the batch. Either OK with Output or not OK with
// Error; never both empty.
type ToolResult struct {
	OK     bool            `json:"ok"`
	Name   string          `json:"name,omitempty"`
	Output json.RawMessage `json:"output,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// ToolSpec describes a dispatchable tool to planners and transports.
type ToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	ArgsSchema  json.RawMessage `json:"args_schema,omitempty"`
}

func Success(name string, output json.RawMessage) ToolResult {
	return ToolResult{OK: true, Name: name, Output: output}
}

func Failure(name string, message string) ToolResult {
	return ToolResult{OK: false, Name: name, Error: message}
}

func ValidateCall(call ToolCall) error {
	if strings.TrimSpace(call.Name) == "" {
		return ErrToolNameRequired
	}
	return nil
}

func ValidatePlan(p Plan) error {
	for _, call := range p.ToolCalls {
		if err := ValidateCall(call); err != nil {
			return err
		}
	}
	return nil
}
