package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"

	"xiaoer/internal/domain/plan"
)

// Registry is a closed dispatch table: every tool is registered with a
// typed argument struct, and calls either match an entry exactly or fail
// with a distinguishable error. There is no signature probing and no
// string-keyed lookup into untyped callables.
type Registry struct {
	entries map[string]entry
	order   []string
}

type entry struct {
	spec   plan.ToolSpec
	invoke func(ctx context.Context, args json.RawMessage) (any, error)
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register adds a tool with a typed argument struct. Arguments decode
// strictly: unknown fields are rejected as plan.ErrBadToolArgs. The
// argument schema is reflected from Args for planners and transports.
func Register[Args any](r *Registry, name string, description string, fn func(ctx context.Context, args Args) (any, error)) {
	if _, exists := r.entries[name]; exists {
		panic(fmt.Sprintf("tool %q registered twice", name))
	}

	r.entries[name] = entry{
		spec: plan.ToolSpec{
			Name:        name,
			Description: description,
			ArgsSchema:  reflectArgsSchema[Args](),
		},
		invoke: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var args Args
			if len(bytes.TrimSpace(raw)) > 0 {
				decoder := json.NewDecoder(bytes.NewReader(raw))
				decoder.DisallowUnknownFields()
				if err := decoder.Decode(&args); err != nil {
					return nil, fmt.Errorf("%w for %q: %v", plan.ErrBadToolArgs, name, err)
				}
			}
			return fn(ctx, args)
		},
	}
	r.order = append(r.order, name)
}

// Invoke dispatches one call. Unknown names and malformed arguments come
// back as plan.ErrUnknownTool / plan.ErrBadToolArgs; handler errors pass
// through untouched.
func (r *Registry) Invoke(ctx context.Context, call plan.ToolCall) (json.RawMessage, error) {
	if err := plan.ValidateCall(call); err != nil {
		return nil, err
	}

	ent, ok := r.entries[call.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", plan.ErrUnknownTool, call.Name)
	}

	output, err := ent.invoke(ctx, call.Args)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(output)
	if err != nil {
		return nil, fmt.Errorf("encode output of %q: %w", call.Name, err)
	}
	return raw, nil
}

// Executor adapts the registry for the batch runner: every error becomes a
// failed result in the call's own slot.
func (r *Registry) Executor() func(ctx context.Context, call plan.ToolCall) plan.ToolResult {
	return func(ctx context.Context, call plan.ToolCall) plan.ToolResult {
		output, err := r.Invoke(ctx, call)
		if err != nil {
			return plan.Failure(call.Name, err.Error())
		}
		return plan.Success(call.Name, output)
	}
}

// Specs lists the registered tools in registration order.
func (r *Registry) Specs() []plan.ToolSpec {
	specs := make([]plan.ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		specs = append(specs, r.entries[name].spec)
	}
	return specs
}

func (r *Registry) Has(name string) bool {
	_, ok := r.entries[name]
	return ok
}

func reflectArgsSchema[Args any]() json.RawMessage {
	reflector := jsonschema.Reflector{
		DoNotReference:            true,
		AllowAdditionalProperties: false,
	}

	var args Args
	schema := reflector.Reflect(&args)
	raw, err := json.Marshal(schema)
	if err != nil {
		// Schemas reflect from static struct types; failure here is a
		// programming error.
		panic(fmt.Sprintf("reflect args schema: %v", err))
	}
	return raw
}
