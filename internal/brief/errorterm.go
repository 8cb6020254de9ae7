package brief

import (
	"context"
	"fmt"
	"time"
)

// errorTerminal converts any pipeline-level failure into a well-formed
// brief. Deterministic, no external calls. The sentinel reference at
// relevance 0.0 and metadata["error"] are the only markers that
// distinguish an error brief from a normal one.
func (e *Engine) errorTerminal(ctx context.Context, state *PipelineState) StageResult {
	errText := state.Err
	if errText == "" {
		errText = "unknown pipeline error"
	}

	sentinel := SourceSummary{
		URL:            "https://error.example.com",
		Title:          "Error in Research Generation",
		Summary:        fmt.Sprintf("An error occurred during research generation: %s", errText),
		RelevanceScore: 0.0,
		KeyPoints:      []string{"Error occurred during research generation"},
		SourceType:     "error",
	}

	state.FinalBrief = &FinalBrief{
		Topic:            state.Topic,
		ExecutiveSummary: fmt.Sprintf("Error generating research brief: %s. Please try again with a different topic or check your API configuration.", errText),
		Synthesis:        "Unable to complete research due to errors. The system encountered issues while processing your request. This could be due to API configuration problems, network issues, or invalid search queries.",
		KeyInsights: []string{
			"Error occurred during research generation",
			"Please check API configuration",
			"Try with a different topic",
		},
		References:  []SourceSummary{sentinel},
		Metadata:    map[string]interface{}{"error": errText},
		GeneratedAt: time.Now().UTC(),
	}
	return stageOK()
}
