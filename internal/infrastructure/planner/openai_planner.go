package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"xiaoer/internal/bootstrap/config"
	"xiaoer/internal/domain/plan"
	"xiaoer/internal/errs"
	"xiaoer/internal/ports"
)

// OpenAIPlanner produces tool-call plans through any OpenAI-compatible
// chat endpoint, using a JSON-schema response format so the plan comes
// back as structured output rather than prose.
type OpenAIPlanner struct {
	client openai.Client
	model  string
}

var _ ports.Planner = (*OpenAIPlanner)(nil)

func NewOpenAIPlanner(cfg config.PlannerConfig) *OpenAIPlanner {
	var opts []option.RequestOption
	if strings.TrimSpace(cfg.APIKey) != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIPlanner{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
	}
}

const planSystemPrompt = "You are an agent planner. Reply with JSON only: " +
	`{"tool_calls":[{"name":TOOL_NAME,"args":{...}}]}. ` +
	"Use only the listed tools and make the arguments match each tool's schema. " +
	"If the request contains independent tasks, put them first so they can run concurrently."

// planResponseSchema is the response contract for the structured plan.
// Args stay an open object; each tool validates its own arguments on
// dispatch.
var planResponseSchema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"required":             []string{"tool_calls"},
	"properties": map[string]any{
		"tool_calls": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"required":             []string{"name", "args"},
				"properties": map[string]any{
					"name": map[string]any{"type": "string"},
					"args": map[string]any{"type": "object"},
				},
			},
		},
	},
}

func (p *OpenAIPlanner) Plan(ctx context.Context, query string, tools []plan.ToolSpec) (plan.Plan, error) {
	if ctx == nil {
		return plan.Plan{}, errors.New("context is required")
	}

	var prompt strings.Builder
	prompt.WriteString("Available tools:\n")
	for _, tool := range tools {
		fmt.Fprintf(&prompt, "- %s: %s\n", tool.Name, tool.Description)
		if len(tool.ArgsSchema) > 0 {
			fmt.Fprintf(&prompt, "  args schema: %s\n", tool.ArgsSchema)
		}
	}
	prompt.WriteString("\nUser request: ")
	prompt.WriteString(query)

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(planSystemPrompt),
			openai.UserMessage(prompt.String()),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        "tool_plan",
					Description: openai.String("Ordered list of tool calls"),
					Schema:      planResponseSchema,
				},
			},
		},
	})
	if err != nil {
		return plan.Plan{}, errs.Wrap(err, "request plan")
	}
	if len(resp.Choices) == 0 {
		return plan.Plan{}, errors.New("planner returned no choices")
	}

	var parsed plan.Plan
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &parsed); err != nil {
		return plan.Plan{}, errs.Wrap(err, "decode plan")
	}
	if err := plan.ValidatePlan(parsed); err != nil {
		return plan.Plan{}, errs.Wrap(err, "validate plan")
	}

	return parsed, nil
}

func (p *OpenAIPlanner) Compose(ctx context.Context, query string, executed plan.Plan, results []plan.ToolResult) (string, error) {
	if ctx == nil {
		return "", errors.New("context is required")
	}

	planJSON, err := json.MarshalIndent(executed, "", "  ")
	if err != nil {
		return "", errs.Wrap(err, "encode plan")
	}
	resultsJSON, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return "", errs.Wrap(err, "encode results")
	}

	prompt := fmt.Sprintf(
		"The user requested:\n%s\n\nThe agent executed this plan:\n%s\n\nTool outputs:\n%s\n\n"+
			"Write a short, friendly summary for the user (2-4 short paragraphs).",
		query, planJSON, resultsJSON,
	)

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", errs.Wrap(err, "request summary")
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("summarizer returned no choices")
	}

	return resp.Choices[0].Message.Content, nil
}
