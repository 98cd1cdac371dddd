package plan

import "errors"

var (
	ErrToolNameRequired = errors.New("tool name is required")
	ErrUnknownTool      = errors.New("unknown tool")
	ErrBadToolArgs      = errors.New("bad tool args")
	ErrEmptyPlan        = errors.New("planner produced no tool calls")
)
