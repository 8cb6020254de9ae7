package brief

import (
	"context"
	"log"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/briefops/briefer/config"
	"github.com/briefops/briefer/internal/fetch"
	"github.com/briefops/briefer/internal/llm"
	"github.com/briefops/briefer/internal/search"
	"github.com/briefops/briefer/internal/telemetry"
)

var engineTracer trace.Tracer = otel.Tracer("briefer/internal/brief/engine")

// Invoker is the structured-output model collaborator the stages call.
// *llm.Invoker satisfies it; tests substitute fakes.
type Invoker interface {
	Invoke(ctx context.Context, stage string, instructions, input string, out interface{}) (llm.Usage, error)
}

// Upgrader fetches the full article text for a search hit whose
// snippet is too thin to summarize. *fetch.Fetcher satisfies it.
type Upgrader interface {
	Fetch(ctx context.Context, url string) (fetch.Article, error)
}

// Engine owns the directed stage flow of one research run. It
// sequences stages, evaluates the two routing predicates, and
// guarantees every run terminates in exactly one FinalBrief.
type Engine struct {
	cfg       *config.Config
	invoker   Invoker
	searcher  search.Searcher
	upgrader  Upgrader
	telemetry *telemetry.Telemetry
	logger    *log.Logger
}

// NewEngine wires an engine from its collaborators. upgrader may be
// nil when full-page fetching is disabled.
func NewEngine(cfg *config.Config, invoker Invoker, searcher search.Searcher, upgrader Upgrader, tel *telemetry.Telemetry) *Engine {
	return &Engine{
		cfg:       cfg,
		invoker:   invoker,
		searcher:  searcher,
		upgrader:  upgrader,
		telemetry: tel,
		logger:    log.New(log.Writer(), "[ENGINE] ", log.LstdFlags),
	}
}

// Run drives one pipeline run to completion. It never returns an
// error: every failure path terminates in a FinalBrief carrying a
// diagnostic in its metadata.
func (e *Engine) Run(ctx context.Context, state *PipelineState) FinalBrief {
	ctx, span := engineTracer.Start(ctx, "pipeline.run",
		trace.WithAttributes(
			attribute.String("topic", state.Topic),
			attribute.String("depth", string(state.Depth)),
			attribute.Bool("follow_up", state.IsFollowUp),
		))
	defer span.End()
	start := time.Now()

	if tag := providerTag(e.cfg.LLM.Providers); tag != "" {
		state.ExecMeta["provider"] = tag
	}

	e.logger.Printf("run %s: topic=%q depth=%s follow_up=%t history=%d",
		state.TraceID(), state.Topic, state.Depth, state.IsFollowUp, len(state.History))

	if state.shouldRecall() {
		e.runStage(ctx, state, "recall", e.recall)
	}
	e.runStage(ctx, state, "planning", e.plan)
	e.runStage(ctx, state, "retrieval", e.retrieve)
	if !state.hasError() {
		e.runStage(ctx, state, "summarization", e.summarize)
	}

	if state.hasError() {
		e.runStage(ctx, state, "error_terminal", e.errorTerminal)
	} else {
		e.runStage(ctx, state, "synthesis", e.synthesize)
	}

	// The no-throw contract: a brief must exist no matter what.
	if state.FinalBrief == nil {
		if state.Err == "" {
			state.Err = "pipeline produced no brief"
		}
		e.errorTerminal(ctx, state)
	}

	duration := time.Since(start)
	success := !state.hasError()
	if e.telemetry != nil {
		e.telemetry.RecordRun(success, duration, state.tokens, state.cost)
	}
	state.FinalBrief.Metadata["trace_id"] = state.TraceID()
	state.FinalBrief.Metadata["duration_ms"] = duration.Milliseconds()
	state.FinalBrief.Metadata["tokens_used"] = state.tokens
	if e.cfg.Telemetry.CostTracking {
		state.FinalBrief.Metadata["cost_estimate"] = state.cost
	}

	e.logger.Printf("run %s: done in %v (references=%d, error=%q)",
		state.TraceID(), duration, len(state.FinalBrief.References), state.Err)
	return *state.FinalBrief
}

type stageFunc func(ctx context.Context, state *PipelineState) StageResult

// runStage executes one stage with cancellation conversion, span and
// telemetry bookkeeping. Cancellation between or during stages becomes
// a pipeline error so the terminal stage can absorb it.
func (e *Engine) runStage(ctx context.Context, state *PipelineState, name string, fn stageFunc) {
	if err := ctx.Err(); err != nil {
		if state.Err == "" {
			state.Err = "run cancelled: " + err.Error()
		}
		return
	}

	ctx, span := engineTracer.Start(ctx, "stage."+name)
	defer span.End()
	start := time.Now()

	result := fn(ctx, state)
	result.apply(state)

	duration := time.Since(start)
	span.SetAttributes(attribute.String("stage.status", result.Status.String()))
	if e.telemetry != nil {
		e.telemetry.RecordStage(name, result.Status.String(), duration)
	}
	switch result.Status {
	case StatusDegraded:
		e.logger.Printf("run %s: stage %s degraded: %s", state.TraceID(), name, result.Reason)
	case StatusFatal:
		e.logger.Printf("run %s: stage %s fatal: %s", state.TraceID(), name, result.Reason)
	}

	if err := ctx.Err(); err != nil && state.Err == "" && state.FinalBrief == nil {
		state.Err = "run cancelled: " + err.Error()
	}
}

// providerTag names the configured LLM providers for run metadata.
func providerTag(providers map[string]config.LLMProvider) string {
	if len(providers) == 0 {
		return ""
	}
	keys := make([]string, 0, len(providers))
	for k := range providers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ",")
}

// recordUsage accumulates token/cost totals on the run's state.
func (e *Engine) recordUsage(state *PipelineState, u llm.Usage) {
	state.addUsage(u.Total(), u.Cost)
	if e.telemetry != nil {
		e.telemetry.RecordInvocation(u.Model, u.PromptTokens, u.CompletionTokens, u.Cost)
	}
}
