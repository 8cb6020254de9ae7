package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/briefops/briefer/config"
)

// Tier selects the quality/cost class for an invocation. Primary
// favors reasoning quality, secondary favors latency and cost.
type Tier string

const (
	TierPrimary   Tier = "primary"
	TierSecondary Tier = "secondary"
)

// InvocationError marks a failed structured invocation: transport
// failure, model refusal, or output that does not decode into the
// target shape. Consumers treat it as recoverable and fall back to
// stage-local deterministic values.
type InvocationError struct {
	Stage string
	Err   error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("invocation failed (%s): %v", e.Stage, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }

// Usage reports token counts for one invocation. Observability only.
type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
	Model            string
	Cost             float64
}

func (u Usage) Total() int64 { return u.PromptTokens + u.CompletionTokens }

// Invoker wraps a Provider with stage-to-model routing and strict-JSON
// structured output decoding.
type Invoker struct {
	provider Provider
	routing  config.LLMRoutingConfig
}

// NewInvoker builds an invoker over the given provider and routing table.
func NewInvoker(provider Provider, routing config.LLMRoutingConfig) *Invoker {
	return &Invoker{provider: provider, routing: routing}
}

// ModelFor resolves the configured model for a pipeline stage, falling
// back to the routing fallback when the stage has no explicit entry.
func (iv *Invoker) ModelFor(stage string) string {
	var m string
	switch stage {
	case "planning":
		m = iv.routing.Planning
	case "recall":
		m = iv.routing.Recall
	case "summarization":
		m = iv.routing.Summarization
	case "synthesis":
		m = iv.routing.Synthesis
	}
	if m == "" {
		m = iv.routing.Fallback
	}
	return m
}

// Invoke runs one structured call: the instructions and input are
// composed into a strict-JSON prompt, the first top-level JSON object
// in the response is extracted and decoded into out. Any failure comes
// back as *InvocationError.
func (iv *Invoker) Invoke(ctx context.Context, stage string, instructions, input string, out interface{}) (Usage, error) {
	model := iv.ModelFor(stage)
	prompt := fmt.Sprintf("%s\n\nReturn ONLY strict JSON matching the requested shape. No prose, no markdown fences.\n\n%s", instructions, input)

	raw, inTok, outTok, err := iv.provider.GenerateWithTokens(ctx, prompt, model, map[string]interface{}{"temperature": 0.2})
	usage := Usage{PromptTokens: inTok, CompletionTokens: outTok, Model: model}
	if err != nil {
		return usage, &InvocationError{Stage: stage, Err: err}
	}
	usage.Cost = iv.provider.CalculateCost(inTok, outTok, model)

	if err := json.Unmarshal([]byte(ExtractFirstJSON(raw)), out); err != nil {
		return usage, &InvocationError{Stage: stage, Err: fmt.Errorf("decode structured output: %w", err)}
	}
	return usage, nil
}

// ExtractFirstJSON finds the first balanced top-level JSON object in a
// string. Models often wrap JSON in prose or fences; this strips that.
func ExtractFirstJSON(s string) string {
	start := -1
	depth := 0
	for i, ch := range s {
		if ch == '{' {
			if depth == 0 {
				start = i
			}
			depth++
		} else if ch == '}' {
			if depth > 0 {
				depth--
			}
			if depth == 0 && start != -1 {
				return s[start : i+1]
			}
		}
	}
	return s
}
