package brief

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// PipelineState is the single record threaded through every stage of a
// run. It is owned exclusively by the engine for the duration of one
// run; stages mutate it in place and must not retain references after
// the run completes.
type PipelineState struct {
	Topic             string
	UserID            string
	Depth             Depth
	IsFollowUp        bool
	AdditionalContext string

	// History holds the user's prior briefs in canonical order:
	// most recent LAST. "Last N" slices the tail.
	History []FinalBrief

	ContextSummary *ContextSummary
	Plan           *ResearchPlan
	FetchedContent []RawSource
	Summaries      []SourceSummary
	FinalBrief     *FinalBrief

	// Err is set only by a Fatal stage result. Once set it is terminal:
	// the post-summarization predicate routes to the error terminal and
	// no later stage clears it.
	Err string

	// ExecMeta carries trace id, start time and provider tag. It feeds
	// observability only, never routing.
	ExecMeta map[string]interface{}

	// Token/cost totals for the run. The mutex covers concurrent
	// accumulation during the summarization fan-out.
	usageMu sync.Mutex
	tokens  int64
	cost    float64
}

// NewPipelineState builds the state for one run with a fresh trace id.
func NewPipelineState(topic, userID string, depth Depth, followUp bool, additionalContext string, history []FinalBrief) *PipelineState {
	return &PipelineState{
		Topic:             topic,
		UserID:            userID,
		Depth:             depth,
		IsFollowUp:        followUp,
		AdditionalContext: additionalContext,
		History:           history,
		ExecMeta: map[string]interface{}{
			"trace_id":   uuid.NewString(),
			"started_at": time.Now().UTC(),
		},
	}
}

// TraceID returns the run's trace id for logging and spans.
func (s *PipelineState) TraceID() string {
	if s.ExecMeta == nil {
		return ""
	}
	if id, ok := s.ExecMeta["trace_id"].(string); ok {
		return id
	}
	return ""
}

// LastHistory returns up to n of the most recent prior briefs,
// preserving the canonical most-recent-last order.
func (s *PipelineState) LastHistory(n int) []FinalBrief {
	if n <= 0 || len(s.History) == 0 {
		return nil
	}
	if len(s.History) <= n {
		return s.History
	}
	return s.History[len(s.History)-n:]
}

// shouldRecall is the entry predicate: recall runs only for follow-up
// requests that actually have history. Pure function of state.
func (s *PipelineState) shouldRecall() bool {
	return s.IsFollowUp && len(s.History) > 0
}

// hasError is the post-summarization predicate. Pure function of state.
func (s *PipelineState) hasError() bool {
	return s.Err != ""
}

func (s *PipelineState) addUsage(tokens int64, cost float64) {
	s.usageMu.Lock()
	s.tokens += tokens
	s.cost += cost
	s.usageMu.Unlock()
}
