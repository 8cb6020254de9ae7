package brief

import (
	"context"
	"net/url"
	"strings"
	"time"
)

const (
	errNoPlan    = "No research plan available"
	errNoContent = "No content could be fetched from search results"
)

// retrieve executes every planned query against the search
// collaborator and normalizes hits into RawSource values. Hits with
// invalid URLs or too-thin content are discarded. A pacing delay runs
// between queries. Fatal when nothing usable comes back: there would
// be nothing to summarize.
func (e *Engine) retrieve(ctx context.Context, state *PipelineState) StageResult {
	if state.Plan == nil {
		return stageFatal(errNoPlan)
	}

	var sources []RawSource
	queryErrors := 0
	for i, query := range state.Plan.Queries {
		if i > 0 {
			// Pacing between queries respects third-party rate limits.
			select {
			case <-time.After(e.cfg.Pipeline.QueryPacingDelay):
			case <-ctx.Done():
				break
			}
		}
		if ctx.Err() != nil {
			break
		}

		results, err := e.searcher.Search(ctx, query, e.cfg.Search.MaxResults)
		if err != nil {
			// A failed query is logged and skipped, contributing zero
			// sources. No retries.
			e.logger.Printf("run %s: query %q failed: %v", state.TraceID(), query, err)
			queryErrors++
			continue
		}

		for _, r := range results {
			if !validSourceURL(r.URL) {
				continue
			}
			src := RawSource{
				URL:       r.URL,
				Title:     r.Title,
				Content:   r.Snippet,
				WordCount: countWords(r.Snippet),
				FetchedAt: time.Now().UTC(),
			}
			if src.Title == "" {
				src.Title = "Unknown Title"
			}
			e.maybeUpgrade(ctx, state, &src)
			if src.WordCount <= e.cfg.Pipeline.MinSourceWords {
				continue
			}
			if max := e.cfg.Pipeline.MaxSourceChars; max > 0 && len(src.Content) > max {
				src.Content = truncate(src.Content, max)
			}
			sources = append(sources, src)
		}
	}

	if len(sources) == 0 {
		return stageFatal(errNoContent)
	}
	state.FetchedContent = sources
	e.logger.Printf("run %s: fetched %d sources from %d queries", state.TraceID(), len(sources), len(state.Plan.Queries))
	if queryErrors > 0 {
		return stageDegraded("some queries failed")
	}
	return stageOK()
}

// maybeUpgrade replaces a thin snippet with the full rendered article
// when the fetch upgrader is enabled. Upgrade failures leave the
// snippet untouched; the word-count filter decides its fate.
func (e *Engine) maybeUpgrade(ctx context.Context, state *PipelineState, src *RawSource) {
	if e.upgrader == nil || !e.cfg.Fetch.Enabled {
		return
	}
	if src.WordCount > e.cfg.Pipeline.MinSourceWords {
		return
	}
	article, err := e.upgrader.Fetch(ctx, src.URL)
	if err != nil {
		e.logger.Printf("run %s: upgrade fetch %s failed: %v", state.TraceID(), src.URL, err)
		return
	}
	if len(article.Text) > len(src.Content) {
		src.Content = article.Text
		src.WordCount = countWords(article.Text)
		if article.Title != "" {
			src.Title = article.Title
		}
	}
}

// validSourceURL accepts http/https URLs with a non-empty host and
// rejects javascript, data, file and ftp schemes anywhere in the URL.
func validSourceURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	if u.Host == "" {
		return false
	}
	lower := strings.ToLower(raw)
	for _, blocked := range []string{"javascript:", "data:", "file:", "ftp:"} {
		if strings.Contains(lower, blocked) {
			return false
		}
	}
	return true
}

func countWords(s string) int {
	return len(strings.Fields(s))
}
