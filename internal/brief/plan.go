package brief

import (
	"context"
	"fmt"
)

// plan produces the ResearchPlan. Never fatal: a failed or malformed
// invocation degrades to three templated queries with a depth-indexed
// expected source count.
func (e *Engine) plan(ctx context.Context, state *PipelineState) StageResult {
	digest := state.ContextSummary.Digest()

	var plan ResearchPlan
	usage, err := e.invoker.Invoke(ctx, "planning", planningInstructions, planningInput(state.Topic, state.Depth, digest), &plan)
	e.recordUsage(state, usage)
	if err != nil {
		fb := e.fallbackPlan(state.Topic, state.Depth)
		state.Plan = &fb
		return stageDegraded(err.Error())
	}

	plan.ClampExpectedSources()
	if err := plan.Validate(); err != nil {
		fb := e.fallbackPlan(state.Topic, state.Depth)
		state.Plan = &fb
		return stageDegraded(fmt.Sprintf("invalid plan: %v", err))
	}
	state.Plan = &plan
	return stageOK()
}

// fallbackPlan is the deterministic planning fallback.
func (e *Engine) fallbackPlan(topic string, depth Depth) ResearchPlan {
	p := ResearchPlan{
		Queries: []string{
			topic + " research",
			topic + " analysis",
			topic + " trends",
		},
		Rationale:       "Basic search queries for the topic",
		ExpectedSources: e.expectedSourcesFor(depth),
		FocusAreas:      []string{topic},
	}
	p.ClampExpectedSources()
	return p
}

// expectedSourcesFor resolves the depth table, defaulting to
// shallow:3 moderate:5 deep:8 when the config omits an entry.
func (e *Engine) expectedSourcesFor(depth Depth) int {
	if n, ok := e.cfg.Pipeline.ExpectedSources[string(depth)]; ok && n >= 1 && n <= 15 {
		return n
	}
	switch depth {
	case DepthShallow:
		return 3
	case DepthDeep:
		return 8
	default:
		return 5
	}
}
