package brief

import "context"

// recall condenses prior brief history into a ContinuitySummary for
// follow-up requests. Runs only when the entry predicate selected it.
// Never fatal: a failed invocation degrades to a digest built straight
// from the history.
func (e *Engine) recall(ctx context.Context, state *PipelineState) StageResult {
	recent := state.LastHistory(e.cfg.Pipeline.HistoryWindow)

	var summary ContextSummary
	usage, err := e.invoker.Invoke(ctx, "recall", recallInstructions, recallInput(state.Topic, recent), &summary)
	e.recordUsage(state, usage)
	if err != nil {
		state.ContextSummary = fallbackContextSummary(state.History)
		return stageDegraded(err.Error())
	}

	if summary.UserPreferences == nil {
		summary.UserPreferences = map[string]string{}
	}
	state.ContextSummary = &summary
	return stageOK()
}

// fallbackContextSummary is the deterministic recall fallback: all
// history topics, all flattened insights, fixed continuity note.
func fallbackContextSummary(history []FinalBrief) *ContextSummary {
	topics := make([]string, 0, len(history))
	var findings []string
	for _, b := range history {
		topics = append(topics, b.Topic)
		findings = append(findings, b.KeyInsights...)
	}
	return &ContextSummary{
		PreviousTopics:  topics,
		KeyFindings:     findings,
		UserPreferences: map[string]string{},
		ContinuityNotes: "Previous research context available",
	}
}
