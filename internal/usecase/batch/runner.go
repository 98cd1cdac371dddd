package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"xiaoer/internal/bootstrap/logging"
	"xiaoer/internal/domain/plan"
)

// DefaultWidth is the concurrent prefix size when none is configured.
const DefaultWidth = 2

// Executor runs a single tool call to completion. It owns any internal
// timeout; the runner never cuts it off. Returned results land in the
// call's own slot.
type Executor func(ctx context.Context, call plan.ToolCall) plan.ToolResult

// Runner executes a batch of tool calls: the first min(width, N) calls run
// concurrently, the rest strictly one at a time in input order once the
// concurrent prefix has fully drained. Results are positional and every
// slot is filled exactly once; a failing or panicking executor only ever
// poisons its own slot.
type Runner struct {
	width int

	mu       sync.Mutex
	observer func(index int, result plan.ToolResult)
}

func NewRunner(width int) *Runner {
	return &Runner{width: width}
}

// SetObserver registers a callback invoked once per call as its result
// lands. Invocations are serialized; indexes from the concurrent prefix
// arrive in completion order, not input order.
func (r *Runner) SetObserver(fn func(index int, result plan.ToolResult)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observer = fn
}

func (r *Runner) Width() int {
	return normalizeWidth(r.width)
}

func (r *Runner) Run(ctx context.Context, calls []plan.ToolCall, exec Executor) []plan.ToolResult {
	if ctx == nil {
		ctx = context.Background()
	}

	results := make([]plan.ToolResult, len(calls))
	if len(calls) == 0 {
		return results
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "usecase.batch"))

	prefix := normalizeWidth(r.width)
	if prefix > len(calls) {
		prefix = len(calls)
	}

	logging.Info(logCtx, "batch started",
		slog.Int("calls", len(calls)),
		slog.Int("concurrent_prefix", prefix),
	)

	var wg sync.WaitGroup
	for i := 0; i < prefix; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx] = safeExecute(ctx, exec, calls[idx])
			r.notify(idx, results[idx])
		}(i)
	}
	wg.Wait()

	for i := prefix; i < len(calls); i++ {
		results[i] = safeExecute(ctx, exec, calls[i])
		r.notify(i, results[i])
	}

	logging.Info(logCtx, "batch finished", slog.Int("calls", len(calls)))
	return results
}

func (r *Runner) notify(index int, result plan.ToolResult) {
	r.mu.Lock()
	observer := r.observer
	if observer != nil {
		// Hold the lock through the callback so observers see one
		// result at a time.
		defer r.mu.Unlock()
		observer(index, result)
		return
	}
	r.mu.Unlock()
}

// safeExecute guarantees a populated slot: a panicking executor becomes a
// failed result instead of an empty one.
func safeExecute(ctx context.Context, exec Executor, call plan.ToolCall) (result plan.ToolResult) {
	defer func() {
		if rec := recover(); rec != nil {
			result = plan.Failure(call.Name, fmt.Sprintf("executor panic: %v", rec))
		}
	}()

	result = exec(ctx, call)
	if result.Name == "" {
		result.Name = call.Name
	}
	if !result.OK && result.Error == "" {
		result.Error = "executor failed without detail"
	}
	return result
}

func normalizeWidth(width int) int {
	if width < 0 {
		return 0
	}
	return width
}
