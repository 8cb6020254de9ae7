package brief

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const recallInstructions = `You are an expert research assistant. Summarize previous research
interactions to provide context for a new research request.
Focus on key topics and findings from previous research, user preferences and
patterns, and how new research might build on previous work. Be concise but
comprehensive.
Shape: {"previous_topics": [string], "key_findings": [string], "user_preferences": {string: string}, "continuity_notes": string}`

const planningInstructions = `You are an expert research planner. Create a comprehensive research
plan for the given topic. Consider multiple search angles, different source
types (academic, news, reports), recent vs historical information, and
specific focus areas within the topic. Generate search queries that will
yield diverse, high-quality sources.
Shape: {"queries": [string], "rationale": string, "expected_sources": int (1-15), "focus_areas": [string]}`

const summarizationInstructions = `You are an expert research analyst. Summarize web content in
relation to a specific research topic. Extract the title and key information,
summarize relevant content, assess relevance to the topic from 0.0 to 1.0,
identify key points, and note the source type. Be objective and factual.
Shape: {"url": string, "title": string, "summary": string, "relevance_score": float 0.0-1.0, "key_points": [string], "source_type": string, "publication_date": string, "author": string}`

func synthesisInstructions(targetLen int) string {
	return fmt.Sprintf(`You are an expert research analyst. Synthesize multiple source
summaries into a comprehensive research brief. Structure the response as an
executive summary of at least %d characters, a detailed synthesis organized
into logical sections, at least 5 key insights, and the references used. Be
thorough, objective, and well-organized.
Shape: {"topic": string, "executive_summary": string, "synthesis": string, "key_insights": [string], "references": [{"url": string, "title": string, "summary": string, "relevance_score": float, "key_points": [string], "source_type": string}]}`, targetLen)
}

func recallInput(topic string, recent []FinalBrief) string {
	var sb strings.Builder
	for i, b := range recent {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "Topic: %s\nKey Insights: %s\nExecutive Summary: %s...",
			b.Topic, strings.Join(b.KeyInsights, ", "), truncate(b.ExecutiveSummary, 200))
	}
	return fmt.Sprintf("Previous research context:\n%s\n\nNew research topic: %s\n\nSummarize the previous research context relevant to the new topic.", sb.String(), topic)
}

func planningInput(topic string, depth Depth, contextDigest string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Research topic: %s\nResearch depth: %s\n", topic, depth)
	if contextDigest != "" {
		fmt.Fprintf(&sb, "Previous research context: %s\n", contextDigest)
	}
	sb.WriteString("\nCreate a comprehensive research plan with search queries and rationale.")
	return sb.String()
}

func summarizationInput(topic string, src RawSource, contentLimit int) string {
	return fmt.Sprintf("Research topic: %s\nSource URL: %s\nSource content: %s\n\nSummarize this source in relation to the research topic.",
		topic, src.URL, truncate(src.Content, contentLimit))
}

func synthesisInput(topic string, summaries []SourceSummary, contextDigest string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Research topic: %s\n\n", topic)
	if contextDigest != "" {
		fmt.Fprintf(&sb, "Previous research context: %s\n\n", contextDigest)
	}
	sb.WriteString("Source summaries:\n")
	for i, s := range summaries {
		fmt.Fprintf(&sb, "Source %d: %s\nURL: %s\nSummary: %s\nRelevance: %.2f\nKey Points: %s\nType: %s\n",
			i+1, s.Title, s.URL, s.Summary, s.RelevanceScore, strings.Join(s.KeyPoints, ", "), s.SourceType)
		if s.Author != "" {
			fmt.Fprintf(&sb, "Author: %s\n", s.Author)
		}
		if s.PublicationDate != "" {
			fmt.Fprintf(&sb, "Published: %s\n", s.PublicationDate)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("Create a comprehensive research brief synthesizing all sources.")
	return sb.String()
}

// truncate caps s at n bytes without splitting a multi-byte rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
