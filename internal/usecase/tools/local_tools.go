package tools

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"time"

	"encoding/json"
)

// RegisterLocalTools adds the self-contained tools: no store, no network.
func RegisterLocalTools(r *Registry) {
	Register(r, "compute", "Basic arithmetic on two numbers (op: add, sub, mul, div)", computeTool)
	Register(r, "summarize", "Naive summary: the first N sentences of the text", summarizeTool)
	Register(r, "stats", "Count, mean, median, min and max of a number list", statsTool)
	Register(r, "now", "Current UTC date and time", nowTool)
	Register(r, "echo", "Echo the message back", echoTool)
	Register(r, "random_choice", "Pick one element of the list at random", randomChoiceTool)
}

type computeArgs struct {
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
	Op string  `json:"op,omitempty" jsonschema:"enum=add,enum=sub,enum=mul,enum=div"`
}

func computeTool(_ context.Context, args computeArgs) (any, error) {
	op := args.Op
	if op == "" {
		op = "add"
	}

	var value float64
	switch op {
	case "add":
		value = args.X + args.Y
	case "sub":
		value = args.X - args.Y
	case "mul":
		value = args.X * args.Y
	case "div":
		if args.Y == 0 {
			return nil, errors.New("division by zero")
		}
		value = args.X / args.Y
	default:
		return nil, fmt.Errorf("unsupported op %q", op)
	}

	return map[string]any{"x": args.X, "y": args.Y, "op": op, "result": value}, nil
}

type summarizeArgs struct {
	Text         string `json:"text"`
	MaxSentences int    `json:"max_sentences,omitempty"`
}

func summarizeTool(_ context.Context, args summarizeArgs) (any, error) {
	maxSentences := args.MaxSentences
	if maxSentences <= 0 {
		maxSentences = 3
	}

	var sentences []string
	for _, part := range strings.Split(strings.ReplaceAll(args.Text, "\n", " "), ".") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			sentences = append(sentences, trimmed)
		}
	}
	if len(sentences) > maxSentences {
		sentences = sentences[:maxSentences]
	}

	summary := strings.Join(sentences, ". ")
	if summary != "" {
		summary += "."
	}
	return map[string]any{"summary": summary}, nil
}

type statsArgs struct {
	Numbers []float64 `json:"numbers"`
}

func statsTool(_ context.Context, args statsArgs) (any, error) {
	if len(args.Numbers) == 0 {
		return nil, errors.New("no numbers provided")
	}

	sorted := append([]float64(nil), args.Numbers...)
	sort.Float64s(sorted)

	sum := 0.0
	for _, n := range sorted {
		sum += n
	}

	median := sorted[len(sorted)/2]
	if len(sorted)%2 == 0 {
		median = (sorted[len(sorted)/2-1] + sorted[len(sorted)/2]) / 2
	}

	return map[string]any{
		"count":  len(sorted),
		"mean":   sum / float64(len(sorted)),
		"median": median,
		"min":    sorted[0],
		"max":    sorted[len(sorted)-1],
	}, nil
}

type nowArgs struct{}

func nowTool(_ context.Context, _ nowArgs) (any, error) {
	now := time.Now().UTC()
	return map[string]any{
		"iso":  now.Format(time.RFC3339),
		"date": now.Format("2006-01-02"),
		"time": now.Format("15:04:05"),
	}, nil
}

type echoArgs struct {
	Msg string `json:"msg"`
}

func echoTool(_ context.Context, args echoArgs) (any, error) {
	return map[string]any{"msg": args.Msg}, nil
}

type randomChoiceArgs struct {
	Choices []json.RawMessage `json:"choices"`
}

func randomChoiceTool(_ context.Context, args randomChoiceArgs) (any, error) {
	if len(args.Choices) == 0 {
		return nil, errors.New("no choices provided")
	}
	return map[string]any{"choice": args.Choices[rand.IntN(len(args.Choices))]}, nil
}
