package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"xiaoer/internal/domain/plan"
)

func localRegistry(t *testing.T) *Registry {
	t.Helper()

	r := NewRegistry()
	RegisterLocalTools(r)
	return r
}

func invoke(t *testing.T, r *Registry, name string, args string) map[string]any {
	t.Helper()

	raw, err := r.Invoke(context.Background(), plan.ToolCall{Name: name, Args: json.RawMessage(args)})
	if err != nil {
		t.Fatalf("invoke %s: %v", name, err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("decode %s output: %v", name, err)
	}
	return decoded
}

func TestInvokeUnknownTool(t *testing.T) {
	r := localRegistry(t)

	_, err := r.Invoke(context.Background(), plan.ToolCall{Name: "teleport"})
	if !errors.Is(err, plan.ErrUnknownTool) {
		t.Fatalf("expected unknown tool, got %v", err)
	}
}

func TestInvokeRejectsUnknownArgFields(t *testing.T) {
	r := localRegistry(t)

	_, err := r.Invoke(context.Background(), plan.ToolCall{
		Name: "echo",
		Args: json.RawMessage(`{"msg":"hi","volume":11}`),
	})
	if !errors.Is(err, plan.ErrBadToolArgs) {
		t.Fatalf("expected bad args, got %v", err)
	}
}

func TestInvokeRejectsEmptyName(t *testing.T) {
	r := localRegistry(t)

	_, err := r.Invoke(context.Background(), plan.ToolCall{Name: "  "})
	if !errors.Is(err, plan.ErrToolNameRequired) {
		t.Fatalf("expected name required, got %v", err)
	}
}

func TestComputeTool(t *testing.T) {
	r := localRegistry(t)

	out := invoke(t, r, "compute", `{"x":12,"y":9,"op":"mul"}`)
	if out["result"] != float64(108) {
		t.Fatalf("compute result = %v", out["result"])
	}

	// Default op is add.
	out = invoke(t, r, "compute", `{"x":2,"y":3}`)
	if out["result"] != float64(5) {
		t.Fatalf("default op result = %v", out["result"])
	}

	if _, err := r.Invoke(context.Background(), plan.ToolCall{
		Name: "compute",
		Args: json.RawMessage(`{"x":1,"y":0,"op":"div"}`),
	}); err == nil || !strings.Contains(err.Error(), "division by zero") {
		t.Fatalf("expected division by zero, got %v", err)
	}
}

func TestSummarizeTool(t *testing.T) {
	r := localRegistry(t)

	out := invoke(t, r, "summarize", `{"text":"One. Two. Three. Four.","max_sentences":2}`)
	if out["summary"] != "One. Two." {
		t.Fatalf("summary = %q", out["summary"])
	}
}

func TestStatsTool(t *testing.T) {
	r := localRegistry(t)

	out := invoke(t, r, "stats", `{"numbers":[1,2,3,10,50]}`)
	if out["count"] != float64(5) || out["median"] != float64(3) || out["max"] != float64(50) {
		t.Fatalf("stats = %v", out)
	}

	if _, err := r.Invoke(context.Background(), plan.ToolCall{
		Name: "stats",
		Args: json.RawMessage(`{"numbers":[]}`),
	}); err == nil {
		t.Fatal("expected error for empty number list")
	}
}

func TestExecutorCapturesHandlerErrors(t *testing.T) {
	r := localRegistry(t)
	exec := r.Executor()

	result := exec(context.Background(), plan.ToolCall{Name: "teleport"})
	if result.OK || result.Error == "" || result.Name != "teleport" {
		t.Fatalf("executor result = %+v", result)
	}

	result = exec(context.Background(), plan.ToolCall{Name: "echo", Args: json.RawMessage(`{"msg":"hi"}`)})
	if !result.OK || result.Name != "echo" {
		t.Fatalf("executor result = %+v", result)
	}
}

func TestSpecsCarrySchemas(t *testing.T) {
	r := localRegistry(t)

	specs := r.Specs()
	if len(specs) == 0 {
		t.Fatal("no specs registered")
	}
	for _, spec := range specs {
		if spec.Name == "" || spec.Description == "" {
			t.Fatalf("incomplete spec %+v", spec)
		}
		if len(spec.ArgsSchema) == 0 || !json.Valid(spec.ArgsSchema) {
			t.Fatalf("spec %s has no usable schema", spec.Name)
		}
	}
}
