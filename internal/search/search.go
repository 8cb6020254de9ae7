package search

import (
	"context"
	"fmt"

	"github.com/briefops/briefer/config"
)

// Result is one search hit before normalization into a RawSource.
type Result struct {
	Title   string
	URL     string
	Snippet string
}

// Searcher executes one query against a web search backend.
// Implementations must be safe for concurrent use.
type Searcher interface {
	Search(ctx context.Context, query string, max int) ([]Result, error)
}

// NewSearcher builds the configured search client.
func NewSearcher(cfg config.SearchConfig) (Searcher, error) {
	switch cfg.Provider {
	case "brave":
		if cfg.BraveAPIKey == "" {
			return nil, fmt.Errorf("search.brave_api_key not configured")
		}
		return NewBrave(cfg.BraveAPIKey, cfg.Timeout), nil
	case "serper":
		if cfg.SerperAPIKey == "" {
			return nil, fmt.Errorf("search.serper_api_key not configured")
		}
		return NewSerper(cfg.SerperAPIKey, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unsupported search provider: %s", cfg.Provider)
	}
}
