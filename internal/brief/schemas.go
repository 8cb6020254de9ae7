package brief

import (
	"fmt"
	"strings"
	"time"
)

// Depth controls how many sources a research run aims for.
type Depth string

const (
	DepthShallow  Depth = "shallow"
	DepthModerate Depth = "moderate"
	DepthDeep     Depth = "deep"
)

// ParseDepth normalizes a user-supplied depth string, defaulting to moderate.
func ParseDepth(s string) Depth {
	switch Depth(strings.ToLower(strings.TrimSpace(s))) {
	case DepthShallow:
		return DepthShallow
	case DepthDeep:
		return DepthDeep
	default:
		return DepthModerate
	}
}

// ResearchPlan is the structured plan produced by the planning stage.
type ResearchPlan struct {
	Queries         []string `json:"queries"`
	Rationale       string   `json:"rationale"`
	ExpectedSources int      `json:"expected_sources"`
	FocusAreas      []string `json:"focus_areas"`
}

// Validate enforces the plan schema: at least one query and an
// expected source count inside [1,15].
func (p *ResearchPlan) Validate() error {
	if len(p.Queries) == 0 {
		return fmt.Errorf("plan has no queries")
	}
	if p.ExpectedSources < 1 || p.ExpectedSources > 15 {
		return fmt.Errorf("expected_sources %d outside [1,15]", p.ExpectedSources)
	}
	return nil
}

// ClampExpectedSources forces the count into [1,15] without failing.
func (p *ResearchPlan) ClampExpectedSources() {
	if p.ExpectedSources < 1 {
		p.ExpectedSources = 1
	}
	if p.ExpectedSources > 15 {
		p.ExpectedSources = 15
	}
}

// RawSource is one fetched document, normalized from a search hit.
// The pipeline treats the content as opaque text.
type RawSource struct {
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	WordCount int       `json:"word_count"`
	FetchedAt time.Time `json:"extracted_at"`
}

// SourceSummary is the structured condensation of one RawSource.
type SourceSummary struct {
	URL             string  `json:"url"`
	Title           string  `json:"title"`
	Summary         string  `json:"summary"`
	RelevanceScore  float64 `json:"relevance_score"`
	KeyPoints       []string `json:"key_points"`
	SourceType      string  `json:"source_type"`
	PublicationDate string  `json:"publication_date,omitempty"`
	Author          string  `json:"author,omitempty"`
}

// ClampRelevance forces the relevance score into [0,1].
func (s *SourceSummary) ClampRelevance() {
	if s.RelevanceScore < 0 {
		s.RelevanceScore = 0
	}
	if s.RelevanceScore > 1 {
		s.RelevanceScore = 1
	}
}

// ContextSummary is the condensed digest of a user's prior briefs,
// produced by the recall stage for follow-up requests.
type ContextSummary struct {
	PreviousTopics  []string          `json:"previous_topics"`
	KeyFindings     []string          `json:"key_findings"`
	UserPreferences map[string]string `json:"user_preferences"`
	ContinuityNotes string            `json:"continuity_notes"`
}

// Digest renders the summary as prompt context for downstream stages.
func (c *ContextSummary) Digest() string {
	if c == nil {
		return ""
	}
	return fmt.Sprintf("Previous topics: %s\nKey findings: %s",
		strings.Join(c.PreviousTopics, ", "), strings.Join(c.KeyFindings, ", "))
}

// FinalBrief is the terminal artifact of a pipeline run. Every run
// produces exactly one, degraded or not.
type FinalBrief struct {
	Topic            string                 `json:"topic"`
	ExecutiveSummary string                 `json:"executive_summary"`
	Synthesis        string                 `json:"synthesis"`
	KeyInsights      []string               `json:"key_insights"`
	References       []SourceSummary        `json:"references"`
	ContextUsed      *ContextSummary        `json:"context_used,omitempty"`
	Metadata         map[string]interface{} `json:"metadata"`
	GeneratedAt      time.Time              `json:"generated_at"`
}

// ValidateExecutiveSummary checks the schema floor on decoded briefs.
// The floor is a config constant, distinct from the larger length the
// synthesis prompt asks for.
func (b *FinalBrief) ValidateExecutiveSummary(floor int) error {
	if len(b.ExecutiveSummary) < floor {
		return fmt.Errorf("executive_summary length %d below floor %d", len(b.ExecutiveSummary), floor)
	}
	return nil
}
