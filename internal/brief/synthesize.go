package brief

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// synthesize combines all source summaries (and the continuity digest,
// if any) into the final brief. The pipeline's only normal exit; it
// never sets the pipeline error. On invocation failure a deterministic
// fallback composes the brief from keyword-bucketed key points.
func (e *Engine) synthesize(ctx context.Context, state *PipelineState) StageResult {
	digest := state.ContextSummary.Digest()

	var out FinalBrief
	usage, err := e.invoker.Invoke(ctx, "synthesis", synthesisInstructions(e.cfg.Pipeline.SummaryTarget), synthesisInput(state.Topic, state.Summaries, digest), &out)
	e.recordUsage(state, usage)
	if err != nil {
		fb := e.fallbackBrief(state)
		state.FinalBrief = &fb
		return stageDegraded(err.Error())
	}

	out.Topic = state.Topic
	if len(out.References) == 0 {
		out.References = state.Summaries
	}
	for i := range out.References {
		out.References[i].ClampRelevance()
	}
	out.ContextUsed = state.ContextSummary
	if out.Metadata == nil {
		out.Metadata = map[string]interface{}{}
	}
	out.Metadata["source_count"] = len(state.Summaries)
	out.GeneratedAt = time.Now().UTC()

	if err := out.ValidateExecutiveSummary(e.cfg.Pipeline.SummaryFloor); err != nil {
		fb := e.fallbackBrief(state)
		state.FinalBrief = &fb
		return stageDegraded(err.Error())
	}
	state.FinalBrief = &out
	return stageOK()
}

// fallbackBrief aggregates themes across the summaries without a model
// call. Key points are partitioned into comparison, data and trend
// buckets by literal keyword matching, and each non-empty bucket
// contributes a prose section.
func (e *Engine) fallbackBrief(state *PipelineState) FinalBrief {
	comparisons, data, trends := bucketKeyPoints(state.Summaries)

	var sections []string
	var insights []string
	if len(comparisons) > 0 {
		sections = append(sections, fmt.Sprintf("Comparative findings: %s.", strings.Join(dedupeHead(comparisons, 3), "; ")))
		insights = append(insights, "Sources draw direct comparisons between alternatives in this space")
	}
	if len(data) > 0 {
		sections = append(sections, fmt.Sprintf("Quantitative findings: %s.", strings.Join(dedupeHead(data, 3), "; ")))
		insights = append(insights, "Quantitative data points anchor the reported findings")
	}
	if len(trends) > 0 {
		sections = append(sections, fmt.Sprintf("Trend signals: %s.", strings.Join(dedupeHead(trends, 3), "; ")))
		insights = append(insights, "Multiple sources point to ongoing shifts and emerging directions")
	}
	sections = append(sections, fmt.Sprintf("These findings carry strategic implications for stakeholders tracking %s.", state.Topic))

	insights = append(insights,
		fmt.Sprintf("Analyzed %d sources on %s", len(state.Summaries), state.Topic),
		"Key findings aggregated across all retrieved sources",
	)

	execSummary := fmt.Sprintf(
		"Research brief generated for topic: %s. Findings were aggregated across %d sources covering comparative, quantitative and trend perspectives where available.",
		state.Topic, len(state.Summaries))

	return FinalBrief{
		Topic:            state.Topic,
		ExecutiveSummary: execSummary,
		Synthesis:        strings.Join(sections, " "),
		KeyInsights:      insights,
		References:       state.Summaries,
		ContextUsed:      state.ContextSummary,
		Metadata: map[string]interface{}{
			"source_count": len(state.Summaries),
			"degraded":     true,
		},
		GeneratedAt: time.Now().UTC(),
	}
}

var (
	comparisonWords = []string{"compare", "versus", "vs", "than", "while", "whereas"}
	dataWords       = []string{"%", "percent", "million", "billion", "number", "rank", "top", "first", "second", "third"}
	trendWords      = []string{"trend", "growth", "increase", "decrease", "rise", "fall", "emerging", "growing"}
)

// bucketKeyPoints partitions every key point into the comparison, data
// and trend buckets. A point may land in more than one bucket.
func bucketKeyPoints(summaries []SourceSummary) (comparisons, data, trends []string) {
	for _, s := range summaries {
		for _, kp := range s.KeyPoints {
			lower := strings.ToLower(kp)
			if containsAny(lower, comparisonWords) {
				comparisons = append(comparisons, kp)
			}
			if containsAny(lower, dataWords) {
				data = append(data, kp)
			}
			if containsAny(lower, trendWords) {
				trends = append(trends, kp)
			}
		}
	}
	return
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func dedupeHead(points []string, n int) []string {
	seen := make(map[string]bool, len(points))
	var out []string
	for _, p := range points {
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
		if len(out) == n {
			break
		}
	}
	return out
}
