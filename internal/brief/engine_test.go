package brief

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/briefops/briefer/config"
	"github.com/briefops/briefer/internal/llm"
	"github.com/briefops/briefer/internal/search"
)

// fakeInvoker serves canned structured outputs per stage, or a failure.
type fakeInvoker struct {
	responses map[string]interface{}
	failures  map[string]error
	calls     []string
}

func (f *fakeInvoker) Invoke(ctx context.Context, stage, instructions, input string, out interface{}) (llm.Usage, error) {
	f.calls = append(f.calls, stage)
	usage := llm.Usage{PromptTokens: 10, CompletionTokens: 10, Model: "fake"}
	if err, ok := f.failures[stage]; ok {
		return usage, err
	}
	resp, ok := f.responses[stage]
	if !ok {
		return usage, &llm.InvocationError{Stage: stage, Err: errors.New("no canned response")}
	}
	b, err := json.Marshal(resp)
	if err != nil {
		return usage, err
	}
	if err := json.Unmarshal(b, out); err != nil {
		return usage, &llm.InvocationError{Stage: stage, Err: err}
	}
	return usage, nil
}

func (f *fakeInvoker) called(stage string) bool {
	for _, c := range f.calls {
		if c == stage {
			return true
		}
	}
	return false
}

type fakeSearcher struct {
	results []search.Result
	err     error
	queries []string
}

func (f *fakeSearcher) Search(ctx context.Context, query string, max int) ([]search.Result, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func testConfig() *config.Config {
	return &config.Config{
		LLM: config.LLMConfig{
			Providers: map[string]config.LLMProvider{"openai": {Type: "openai"}},
		},
		Search: config.SearchConfig{MaxResults: 5},
		Pipeline: config.PipelineConfig{
			ExpectedSources:        map[string]int{"shallow": 3, "moderate": 5, "deep": 8},
			MaxConcurrentSummaries: 4,
			MinSourceWords:         20,
			QueryPacingDelay:       0,
			MaxSourceChars:         10000,
			SummaryFloor:           50,
			SummaryTarget:          200,
			HistoryWindow:          3,
		},
	}
}

func longSnippet(word string) string {
	return strings.TrimSpace(strings.Repeat(word+" ", 30))
}

func goodResponses(topic string) map[string]interface{} {
	return map[string]interface{}{
		"recall": ContextSummary{
			PreviousTopics:  []string{"old topic"},
			KeyFindings:     []string{"old finding"},
			UserPreferences: map[string]string{"style": "concise"},
			ContinuityNotes: "builds on prior work",
		},
		// One query: the fake searcher returns the same hits for every
		// query and retrieval never dedupes, so a single query keeps the
		// source count equal to the searcher's result count.
		"planning": ResearchPlan{
			Queries:         []string{topic + " overview"},
			Rationale:       "one broad angle",
			ExpectedSources: 5,
			FocusAreas:      []string{topic},
		},
		"summarization": SourceSummary{
			Title:          "Modeled Title",
			Summary:        "A relevant condensed view of the source.",
			RelevanceScore: 0.9,
			KeyPoints:      []string{"quantum error rates fall", "growth in qubit counts"},
			SourceType:     "article",
		},
		"synthesis": FinalBrief{
			Topic:            topic,
			ExecutiveSummary: strings.Repeat("Significant findings across all retrieved sources. ", 3),
			Synthesis:        "Detailed synthesis across sources organized into sections.",
			KeyInsights:      []string{"a", "b", "c", "d", "e"},
		},
	}
}

func threeResults() []search.Result {
	return []search.Result{
		{Title: "A", URL: "https://a.example.com/x", Snippet: longSnippet("alpha")},
		{Title: "B", URL: "https://b.example.com/y", Snippet: longSnippet("beta")},
		{Title: "C", URL: "https://c.example.com/z", Snippet: longSnippet("gamma")},
	}
}

func TestRunHappyPath(t *testing.T) {
	inv := &fakeInvoker{responses: goodResponses("quantum computing advances")}
	srch := &fakeSearcher{results: threeResults()}
	e := NewEngine(testConfig(), inv, srch, nil, nil)

	state := NewPipelineState("quantum computing advances", "u1", DepthModerate, false, "", nil)
	out := e.Run(context.Background(), state)

	if len(out.References) != 3 {
		t.Fatalf("references = %d, want 3", len(out.References))
	}
	if _, ok := out.Metadata["error"]; ok {
		t.Fatalf("unexpected error metadata: %v", out.Metadata["error"])
	}
	if len(out.ExecutiveSummary) < testConfig().Pipeline.SummaryFloor {
		t.Fatalf("executive summary below floor: %d chars", len(out.ExecutiveSummary))
	}
	if inv.called("recall") {
		t.Fatal("recall must not run when is_follow_up is false")
	}
	if state.ContextSummary != nil {
		t.Fatal("context summary must stay nil without recall")
	}
	for _, ref := range out.References {
		if ref.RelevanceScore < 0 || ref.RelevanceScore > 1 {
			t.Fatalf("relevance %f outside [0,1]", ref.RelevanceScore)
		}
	}
	if state.ExecMeta["provider"] != "openai" {
		t.Fatalf("provider tag = %v", state.ExecMeta["provider"])
	}
}

func TestRunEachQueryContributesSources(t *testing.T) {
	// Two queries against a searcher that repeats its hits: retrieval
	// keeps both batches, matching the no-dedup contract.
	inv := &fakeInvoker{responses: goodResponses("quantum computing advances")}
	plan := inv.responses["planning"].(ResearchPlan)
	plan.Queries = []string{"quantum computing overview", "quantum computing latest"}
	inv.responses["planning"] = plan
	srch := &fakeSearcher{results: threeResults()}
	e := NewEngine(testConfig(), inv, srch, nil, nil)

	state := NewPipelineState("quantum computing advances", "u1", DepthModerate, false, "", nil)
	out := e.Run(context.Background(), state)

	if len(srch.queries) != 2 {
		t.Fatalf("queries run = %d, want 2", len(srch.queries))
	}
	if len(out.References) != 6 {
		t.Fatalf("references = %d, want 6", len(out.References))
	}
}

func TestRunZeroSourcesIsErrorTerminal(t *testing.T) {
	inv := &fakeInvoker{responses: goodResponses("x")}
	srch := &fakeSearcher{results: nil}
	e := NewEngine(testConfig(), inv, srch, nil, nil)

	state := NewPipelineState("quantum computing advances", "u1", DepthModerate, false, "", nil)
	out := e.Run(context.Background(), state)

	if out.Metadata["error"] != errNoContent {
		t.Fatalf("metadata error = %v, want %q", out.Metadata["error"], errNoContent)
	}
	if len(out.References) != 1 {
		t.Fatalf("references = %d, want single sentinel", len(out.References))
	}
	ref := out.References[0]
	if ref.RelevanceScore != 0.0 || ref.SourceType != "error" {
		t.Fatalf("sentinel = %+v", ref)
	}
	if inv.called("synthesis") {
		t.Fatal("synthesis must not run when error is set")
	}
	if inv.called("summarization") {
		t.Fatal("summarization must not run after retrieval failure")
	}
}

func TestRunMissingPlanIsErrorTerminal(t *testing.T) {
	// Planning degrades to the fallback plan rather than going fatal,
	// so the missing-plan error is only reachable by driving the
	// retrieval stage directly.
	e := NewEngine(testConfig(), &fakeInvoker{}, &fakeSearcher{}, nil, nil)
	state := NewPipelineState("t", "u", DepthModerate, false, "", nil)

	res := e.retrieve(context.Background(), state)
	if res.Status != StatusFatal || res.Reason != errNoPlan {
		t.Fatalf("retrieve without plan = %+v", res)
	}
}

func TestRecallFallbackUsesHistory(t *testing.T) {
	history := []FinalBrief{
		{Topic: "first topic", KeyInsights: []string{"i1", "i2"}},
		{Topic: "second topic", KeyInsights: []string{"i3"}},
	}
	inv := &fakeInvoker{
		responses: goodResponses("follow up"),
		failures:  map[string]error{"recall": &llm.InvocationError{Stage: "recall", Err: errors.New("down")}},
	}
	srch := &fakeSearcher{results: threeResults()}
	e := NewEngine(testConfig(), inv, srch, nil, nil)

	state := NewPipelineState("follow up", "u1", DepthModerate, true, "", history)
	out := e.Run(context.Background(), state)

	cs := state.ContextSummary
	if cs == nil {
		t.Fatal("context summary not set on fallback")
	}
	if len(cs.PreviousTopics) != 2 || cs.PreviousTopics[0] != "first topic" || cs.PreviousTopics[1] != "second topic" {
		t.Fatalf("previous topics = %v", cs.PreviousTopics)
	}
	if len(cs.KeyFindings) != 3 {
		t.Fatalf("key findings = %v", cs.KeyFindings)
	}
	if cs.ContinuityNotes != "Previous research context available" {
		t.Fatalf("continuity notes = %q", cs.ContinuityNotes)
	}
	if _, ok := out.Metadata["error"]; ok {
		t.Fatal("recall failure must not surface as pipeline error")
	}
}

func TestPlanningFallbackDepthTable(t *testing.T) {
	cases := []struct {
		depth Depth
		want  int
	}{
		{DepthShallow, 3},
		{DepthModerate, 5},
		{DepthDeep, 8},
	}
	for _, c := range cases {
		inv := &fakeInvoker{failures: map[string]error{"planning": &llm.InvocationError{Stage: "planning", Err: errors.New("down")}}}
		e := NewEngine(testConfig(), inv, &fakeSearcher{}, nil, nil)
		state := NewPipelineState("solar power", "u", c.depth, false, "", nil)

		res := e.plan(context.Background(), state)
		if res.Status != StatusDegraded {
			t.Fatalf("depth %s: status = %v, want degraded", c.depth, res.Status)
		}
		p := state.Plan
		if p.ExpectedSources != c.want {
			t.Errorf("depth %s: expected_sources = %d, want %d", c.depth, p.ExpectedSources, c.want)
		}
		if p.ExpectedSources < 1 || p.ExpectedSources > 15 {
			t.Errorf("depth %s: expected_sources outside [1,15]", c.depth)
		}
		wantQueries := []string{"solar power research", "solar power analysis", "solar power trends"}
		for i, q := range wantQueries {
			if p.Queries[i] != q {
				t.Errorf("query %d = %q, want %q", i, p.Queries[i], q)
			}
		}
		if len(p.FocusAreas) != 1 || p.FocusAreas[0] != "solar power" {
			t.Errorf("focus areas = %v", p.FocusAreas)
		}
	}
}

func TestSummarizationCountPreservingWithFailures(t *testing.T) {
	inv := &fakeInvoker{failures: map[string]error{"summarization": &llm.InvocationError{Stage: "summarization", Err: errors.New("down")}}}
	e := NewEngine(testConfig(), inv, &fakeSearcher{}, nil, nil)

	state := NewPipelineState("t", "u", DepthModerate, false, "", nil)
	state.FetchedContent = []RawSource{
		{URL: "https://a.example.com", Title: "A", Content: longSnippet("aa"), WordCount: 30},
		{URL: "https://b.example.com", Title: "B", Content: longSnippet("bb"), WordCount: 30},
		{URL: "https://c.example.com", Title: "C", Content: longSnippet("cc"), WordCount: 30},
	}

	res := e.summarize(context.Background(), state)
	if res.Status != StatusDegraded {
		t.Fatalf("status = %v, want degraded", res.Status)
	}
	if len(state.Summaries) != len(state.FetchedContent) {
		t.Fatalf("summaries = %d, want %d", len(state.Summaries), len(state.FetchedContent))
	}
	urls := map[string]bool{}
	for _, s := range state.Summaries {
		urls[s.URL] = true
		if s.RelevanceScore != 0.7 {
			t.Errorf("invocation fallback relevance = %f, want 0.7", s.RelevanceScore)
		}
		if s.SourceType != "web page" {
			t.Errorf("source type = %q", s.SourceType)
		}
		if len(s.KeyPoints) != 3 {
			t.Errorf("key points = %v", s.KeyPoints)
		}
	}
	for _, src := range state.FetchedContent {
		if !urls[src.URL] {
			t.Errorf("origin url %s lost", src.URL)
		}
	}
}

func TestSummarizationProcessingErrorTier(t *testing.T) {
	// A non-invocation error from the collaborator takes the second
	// fallback tier: relevance 0.0 and the fixed key point.
	inv := &fakeInvoker{failures: map[string]error{"summarization": errors.New("unexpected")}}
	e := NewEngine(testConfig(), inv, &fakeSearcher{}, nil, nil)

	state := NewPipelineState("t", "u", DepthModerate, false, "", nil)
	state.FetchedContent = []RawSource{{URL: "https://a.example.com", Title: "A", Content: "c", WordCount: 30}}

	e.summarize(context.Background(), state)
	s := state.Summaries[0]
	if s.RelevanceScore != 0.0 {
		t.Fatalf("processing-error relevance = %f, want 0.0", s.RelevanceScore)
	}
	if len(s.KeyPoints) != 1 || s.KeyPoints[0] != "Error processing source" {
		t.Fatalf("key points = %v", s.KeyPoints)
	}
}

func TestSummarizationClampsModeledRelevance(t *testing.T) {
	inv := &fakeInvoker{responses: map[string]interface{}{
		"summarization": SourceSummary{Title: "T", Summary: "s", RelevanceScore: 1.7, KeyPoints: []string{"k"}},
	}}
	e := NewEngine(testConfig(), inv, &fakeSearcher{}, nil, nil)

	state := NewPipelineState("t", "u", DepthModerate, false, "", nil)
	state.FetchedContent = []RawSource{{URL: "https://a.example.com", Title: "A", Content: "c", WordCount: 30}}

	e.summarize(context.Background(), state)
	if got := state.Summaries[0].RelevanceScore; got != 1.0 {
		t.Fatalf("relevance = %f, want clamped to 1.0", got)
	}
	if state.Summaries[0].URL != "https://a.example.com" {
		t.Fatalf("origin url overwritten: %q", state.Summaries[0].URL)
	}
}

func TestSynthesisFallbackBuckets(t *testing.T) {
	inv := &fakeInvoker{failures: map[string]error{"synthesis": &llm.InvocationError{Stage: "synthesis", Err: errors.New("down")}}}
	e := NewEngine(testConfig(), inv, &fakeSearcher{}, nil, nil)

	state := NewPipelineState("electric cars", "u", DepthModerate, false, "", nil)
	state.Summaries = []SourceSummary{
		{URL: "https://a.example.com", KeyPoints: []string{"EVs cost less than gas cars over time"}},
		{URL: "https://b.example.com", KeyPoints: []string{"sales grew 40 percent last year"}},
		{URL: "https://c.example.com", KeyPoints: []string{"an emerging trend toward solid state batteries"}},
	}

	res := e.synthesize(context.Background(), state)
	if res.Status != StatusDegraded {
		t.Fatalf("status = %v, want degraded", res.Status)
	}
	b := state.FinalBrief
	if b == nil {
		t.Fatal("no fallback brief")
	}
	if !strings.Contains(b.Synthesis, "Comparative findings") {
		t.Error("comparison bucket missing from synthesis")
	}
	if !strings.Contains(b.Synthesis, "Quantitative findings") {
		t.Error("data bucket missing from synthesis")
	}
	if !strings.Contains(b.Synthesis, "Trend signals") {
		t.Error("trend bucket missing from synthesis")
	}
	if !strings.Contains(b.Synthesis, "strategic implications") {
		t.Error("closing strategic-implications sentence missing")
	}
	if len(b.References) != 3 {
		t.Errorf("references = %d, want full summaries list", len(b.References))
	}
	if b.Metadata["source_count"] != 3 {
		t.Errorf("source_count = %v", b.Metadata["source_count"])
	}
	if len(b.ExecutiveSummary) < testConfig().Pipeline.SummaryFloor {
		t.Errorf("fallback executive summary below floor: %d", len(b.ExecutiveSummary))
	}
}

func TestRunCancellationResolvesToErrorTerminal(t *testing.T) {
	inv := &fakeInvoker{responses: goodResponses("x")}
	srch := &fakeSearcher{results: threeResults()}
	e := NewEngine(testConfig(), inv, srch, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	state := NewPipelineState("t", "u", DepthModerate, false, "", nil)
	out := e.Run(ctx, state)

	if _, ok := out.Metadata["error"]; !ok {
		t.Fatal("cancelled run must carry error metadata")
	}
	if len(out.References) != 1 || out.References[0].SourceType != "error" {
		t.Fatalf("cancelled run references = %+v", out.References)
	}
}

func TestRunAlwaysProducesBrief(t *testing.T) {
	// Everything fails: recall, planning, summarization, synthesis.
	// Retrieval still works, so the run must end in a degraded brief.
	inv := &fakeInvoker{failures: map[string]error{
		"recall":        &llm.InvocationError{Stage: "recall", Err: errors.New("down")},
		"planning":      &llm.InvocationError{Stage: "planning", Err: errors.New("down")},
		"summarization": &llm.InvocationError{Stage: "summarization", Err: errors.New("down")},
		"synthesis":     &llm.InvocationError{Stage: "synthesis", Err: errors.New("down")},
	}}
	srch := &fakeSearcher{results: threeResults()}
	e := NewEngine(testConfig(), inv, srch, nil, nil)

	history := []FinalBrief{{Topic: "prior", KeyInsights: []string{"k"}}}
	state := NewPipelineState("resilience", "u", DepthDeep, true, "", history)
	out := e.Run(context.Background(), state)

	if out.Topic != "resilience" {
		t.Fatalf("topic = %q", out.Topic)
	}
	if _, ok := out.Metadata["error"]; ok {
		t.Fatal("all-degraded run must not be an error brief")
	}
	if len(out.References) != len(state.FetchedContent) {
		t.Fatalf("references = %d, want %d", len(out.References), len(state.FetchedContent))
	}
}

func TestRetrievalFiltersInvalidAndThinSources(t *testing.T) {
	inv := &fakeInvoker{responses: goodResponses("x")}
	srch := &fakeSearcher{results: []search.Result{
		{Title: "ok", URL: "https://good.example.com", Snippet: longSnippet("fine")},
		{Title: "thin", URL: "https://thin.example.com", Snippet: "too short"},
		{Title: "bad scheme", URL: "ftp://files.example.com", Snippet: longSnippet("nope")},
		{Title: "js", URL: "javascript:alert(1)", Snippet: longSnippet("nope")},
		{Title: "no host", URL: "https://", Snippet: longSnippet("nope")},
	}}
	e := NewEngine(testConfig(), inv, srch, nil, nil)

	state := NewPipelineState("t", "u", DepthModerate, false, "", nil)
	state.Plan = &ResearchPlan{Queries: []string{"q"}, Rationale: "r", ExpectedSources: 5, FocusAreas: []string{"t"}}

	res := e.retrieve(context.Background(), state)
	if res.Status != StatusOK {
		t.Fatalf("status = %v", res.Status)
	}
	if len(state.FetchedContent) != 1 {
		t.Fatalf("fetched = %d, want 1", len(state.FetchedContent))
	}
	if state.FetchedContent[0].URL != "https://good.example.com" {
		t.Fatalf("kept wrong source: %s", state.FetchedContent[0].URL)
	}
}

func TestRetrievalPacingBetweenQueries(t *testing.T) {
	cfg := testConfig()
	cfg.Pipeline.QueryPacingDelay = 30 * time.Millisecond
	srch := &fakeSearcher{results: threeResults()}
	e := NewEngine(cfg, &fakeInvoker{}, srch, nil, nil)

	state := NewPipelineState("t", "u", DepthModerate, false, "", nil)
	state.Plan = &ResearchPlan{Queries: []string{"q1", "q2", "q3"}, Rationale: "r", ExpectedSources: 5, FocusAreas: []string{"t"}}

	start := time.Now()
	e.retrieve(context.Background(), state)
	if elapsed := time.Since(start); elapsed < 60*time.Millisecond {
		t.Fatalf("elapsed %v, want >= 60ms of pacing for 3 queries", elapsed)
	}
	if len(srch.queries) != 3 {
		t.Fatalf("queries run = %d", len(srch.queries))
	}
}

func TestValidSourceURL(t *testing.T) {
	cases := []struct {
		url  string
		want bool
	}{
		{"https://a.example.com/page", true},
		{"http://a.example.com", true},
		{"ftp://a.example.com", false},
		{"javascript:alert(1)", false},
		{"data:text/html;base64,xx", false},
		{"file:///etc/passwd", false},
		{"https://", false},
		{"not a url", false},
	}
	for _, c := range cases {
		if got := validSourceURL(c.url); got != c.want {
			t.Errorf("validSourceURL(%q) = %t, want %t", c.url, got, c.want)
		}
	}
}

func TestLastHistorySlicesTail(t *testing.T) {
	state := &PipelineState{History: []FinalBrief{
		{Topic: "one"}, {Topic: "two"}, {Topic: "three"}, {Topic: "four"},
	}}
	got := state.LastHistory(3)
	if len(got) != 3 || got[0].Topic != "two" || got[2].Topic != "four" {
		t.Fatalf("LastHistory = %v", got)
	}
	if all := state.LastHistory(10); len(all) != 4 {
		t.Fatalf("LastHistory(10) = %d entries", len(all))
	}
}
