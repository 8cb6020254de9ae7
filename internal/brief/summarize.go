package brief

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/briefops/briefer/internal/llm"
)

// Prompt context per source is capped independently of the stored
// content cap.
const summaryPromptChars = 2000

// summarize condenses every fetched source independently, fanning out
// one invocation per source under a bounded worker pool and fanning
// back in before synthesis. Count-preserving: one summary per source,
// each keeping its origin URL. Never fatal; per-source failures
// degrade locally.
func (e *Engine) summarize(ctx context.Context, state *PipelineState) StageResult {
	sources := state.FetchedContent
	summaries := make([]SourceSummary, len(sources))
	degraded := 0

	sem := make(chan struct{}, e.cfg.Pipeline.MaxConcurrentSummaries)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for i, src := range sources {
		wg.Add(1)
		go func(i int, src RawSource) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			summary, ok := e.summarizeOne(ctx, state, src)
			mu.Lock()
			summaries[i] = summary
			if !ok {
				degraded++
			}
			mu.Unlock()
		}(i, src)
	}
	wg.Wait()

	state.Summaries = summaries
	e.logger.Printf("run %s: summarized %d sources (%d degraded)", state.TraceID(), len(summaries), degraded)
	if degraded > 0 {
		return stageDegraded(fmt.Sprintf("%d of %d sources used fallback summaries", degraded, len(summaries)))
	}
	return stageOK()
}

// summarizeOne handles a single source. The two fallback tiers carry
// different relevance semantics: an invocation failure still yields a
// usable excerpt at neutral-positive relevance 0.7, while an
// unexpected processing error marks the source unusable at 0.0.
func (e *Engine) summarizeOne(ctx context.Context, state *PipelineState, src RawSource) (summary SourceSummary, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			summary = processingErrorSummary(src, fmt.Errorf("panic: %v", r))
			ok = false
		}
	}()

	var out SourceSummary
	usage, err := e.invoker.Invoke(ctx, "summarization", summarizationInstructions, summarizationInput(state.Topic, src, summaryPromptChars), &out)
	e.recordUsage(state, usage)
	if err != nil {
		var ie *llm.InvocationError
		if errors.As(err, &ie) {
			return invocationFallbackSummary(src), false
		}
		return processingErrorSummary(src, err), false
	}

	// Origin URL must survive for traceability regardless of what the
	// model echoed back.
	out.URL = src.URL
	if out.Title == "" {
		out.Title = src.Title
	}
	out.ClampRelevance()
	if out.SourceType == "" {
		out.SourceType = "web page"
	}
	return out, true
}

// invocationFallbackSummary is the first fallback tier: the model call
// failed but the raw content is still usable.
func invocationFallbackSummary(src RawSource) SourceSummary {
	return SourceSummary{
		URL:            src.URL,
		Title:          src.Title,
		Summary:        truncate(src.Content, 500) + "...",
		RelevanceScore: 0.7,
		KeyPoints: []string{
			truncate(src.Content, 100),
			"Source retrieved from web search",
			"Detailed analysis unavailable for this source",
		},
		SourceType: "web page",
	}
}

// processingErrorSummary is the second fallback tier: something beyond
// the invocation went wrong and the source cannot be trusted for
// ranking.
func processingErrorSummary(src RawSource, err error) SourceSummary {
	return SourceSummary{
		URL:            src.URL,
		Title:          src.Title,
		Summary:        fmt.Sprintf("Error processing source: %v", err),
		RelevanceScore: 0.0,
		KeyPoints:      []string{"Error processing source"},
		SourceType:     "web page",
	}
}
