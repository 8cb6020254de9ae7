package brief

import (
	"bytes"
	"encoding/json"
	"reflect"
	"testing"
	"time"
)

func TestResearchPlanRoundTrip(t *testing.T) {
	in := ResearchPlan{
		Queries:         []string{"solar power research", "solar power trends"},
		Rationale:       "two angles on the topic",
		ExpectedSources: 5,
		FocusAreas:      []string{"solar power", "storage"},
	}
	payload, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out ResearchPlan
	if err := json.Unmarshal(payload, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("round trip changed plan:\n in=%+v\nout=%+v", in, out)
	}
}

func TestSourceSummaryRoundTrip(t *testing.T) {
	in := SourceSummary{
		URL:             "https://a.example.com/article",
		Title:           "Grid storage economics",
		Summary:         "Costs fell faster than projected.",
		RelevanceScore:  0.85,
		KeyPoints:       []string{"costs down 30%", "deployment doubled"},
		SourceType:      "article",
		PublicationDate: "2026-03-01",
		Author:          "J. Doe",
	}
	payload, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out SourceSummary
	if err := json.Unmarshal(payload, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("round trip changed summary:\n in=%+v\nout=%+v", in, out)
	}
}

func TestContextSummaryRoundTrip(t *testing.T) {
	in := ContextSummary{
		PreviousTopics:  []string{"solar power", "grid storage"},
		KeyFindings:     []string{"storage is the bottleneck"},
		UserPreferences: map[string]string{"style": "concise"},
		ContinuityNotes: "builds on prior work",
	}
	payload, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out ContextSummary
	if err := json.Unmarshal(payload, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("round trip changed context:\n in=%+v\nout=%+v", in, out)
	}
}

func TestFinalBriefRoundTrip(t *testing.T) {
	in := FinalBrief{
		Topic:            "grid storage",
		ExecutiveSummary: "A sufficiently long executive summary describing the findings.",
		Synthesis:        "Detailed synthesis across the retrieved sources.",
		KeyInsights:      []string{"one", "two", "three"},
		References: []SourceSummary{
			{URL: "https://a.example.com", Title: "A", Summary: "s", RelevanceScore: 0.9, KeyPoints: []string{"k"}, SourceType: "article"},
		},
		ContextUsed: &ContextSummary{ContinuityNotes: "n"},
		Metadata:    map[string]interface{}{"source_count": 3, "degraded": false},
		GeneratedAt: time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC),
	}

	// Metadata numbers decode as float64, so equality is checked on the
	// wire representation rather than the structs.
	first, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out FinalBrief
	if err := json.Unmarshal(first, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	second, err := json.Marshal(out)
	if err != nil {
		t.Fatalf("re-marshal: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("round trip changed brief:\n first=%s\nsecond=%s", first, second)
	}

	if out.Topic != in.Topic || len(out.References) != 1 || out.ContextUsed == nil {
		t.Fatalf("decoded brief = %+v", out)
	}
	if out.References[0].RelevanceScore != 0.9 {
		t.Fatalf("reference relevance = %f", out.References[0].RelevanceScore)
	}
	if !out.GeneratedAt.Equal(in.GeneratedAt) {
		t.Fatalf("generated_at = %v, want %v", out.GeneratedAt, in.GeneratedAt)
	}
}
