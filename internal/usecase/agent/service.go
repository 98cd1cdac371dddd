package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"xiaoer/internal/bootstrap/logging"
	"xiaoer/internal/domain/plan"
	"xiaoer/internal/ports"
	"xiaoer/internal/usecase/batch"
	"xiaoer/internal/usecase/tools"
)

// Service drives one question end to end: plan the tool calls, execute
// them through the batch runner, then compose the final answer.
type Service struct {
	planner  ports.Planner
	registry *tools.Registry
	runner   *batch.Runner
}

func NewService(planner ports.Planner, registry *tools.Registry, runner *batch.Runner) *Service {
	return &Service{
		planner:  planner,
		registry: registry,
		runner:   runner,
	}
}

type AskInput struct {
	Query string `json:"query"`
}

type AskResult struct {
	RunID   string            `json:"run_id"`
	Query   string            `json:"query"`
	Plan    plan.Plan         `json:"plan"`
	Results []plan.ToolResult `json:"results"`
	Answer  string            `json:"answer"`
}

func (s *Service) Tools() []plan.ToolSpec {
	return s.registry.Specs()
}

func (s *Service) Runner() *batch.Runner {
	return s.runner
}

// Ask answers one query. Planner failures abort the run; per-call tool
// failures do not, they surface as failed slots in Results. When the
// composer is unreachable the answer falls back to a local summary so a
// completed batch is never thrown away.
func (s *Service) Ask(ctx context.Context, input AskInput) (AskResult, error) {
	if ctx == nil {
		return AskResult{}, errors.New("context is required")
	}
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return AskResult{}, errors.New("query is required")
	}

	runID := uuid.NewString()
	logCtx := logging.WithAttrs(ctx,
		slog.String("component", "usecase.agent"),
		slog.String("run_id", runID),
	)

	p, err := s.planner.Plan(logCtx, query, s.registry.Specs())
	if err != nil {
		return AskResult{}, fmt.Errorf("plan query: %w", err)
	}
	if len(p.ToolCalls) == 0 {
		return AskResult{}, fmt.Errorf("plan query: %w", plan.ErrEmptyPlan)
	}

	logging.Info(logCtx, "plan ready", slog.Int("tool_calls", len(p.ToolCalls)))

	results := s.runner.Run(logCtx, p.ToolCalls, s.registry.Executor())

	answer, err := s.planner.Compose(logCtx, query, p, results)
	if err != nil {
		logging.Warn(logCtx, "compose failed, using local summary", slog.Any("error", err))
		answer = localSummary(query, p, results)
	}

	return AskResult{
		RunID:   runID,
		Query:   query,
		Plan:    p,
		Results: results,
		Answer:  answer,
	}, nil
}

// localSummary renders the batch outcome without the model: one line per
// slot, successes with output and failures with their error.
func localSummary(query string, p plan.Plan, results []plan.ToolResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Results for: %s\n", query)
	for i, result := range results {
		name := result.Name
		if name == "" && i < len(p.ToolCalls) {
			name = p.ToolCalls[i].Name
		}
		if result.OK {
			fmt.Fprintf(&b, "%d. %s: %s\n", i+1, name, result.Output)
		} else {
			fmt.Fprintf(&b, "%d. %s failed: %s\n", i+1, name, result.Error)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
