package ports

import (
	"context"

	"xiaoer/internal/domain/plan"
)

// Planner turns a user query into an ordered tool-call plan and composes the
// final answer from the collected results.
type Planner interface {
	Plan(ctx context.Context, query string, tools []plan.ToolSpec) (plan.Plan, error)
	Compose(ctx context.Context, query string, p plan.Plan, results []plan.ToolResult) (string, error)
}
