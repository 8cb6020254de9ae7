package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Brave queries the Brave web search API.
// https://api.search.brave.com/app/documentation/web-search
type Brave struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewBrave(apiKey string, timeout time.Duration) *Brave {
	return &Brave{
		apiKey:  apiKey,
		baseURL: "https://api.search.brave.com/res/v1",
		client:  &http.Client{Timeout: timeout},
	}
}

func (b *Brave) Search(ctx context.Context, query string, max int) ([]Result, error) {
	u := fmt.Sprintf("%s/web/search?q=%s&count=%d", b.baseURL, url.QueryEscape(query), max)
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", b.apiKey)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("brave search status %d", resp.StatusCode)
	}

	var raw struct {
		Web struct {
			Results []struct {
				Title   string `json:"title"`
				URL     string `json:"url"`
				Snippet string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}

	var out []Result
	for i, r := range raw.Web.Results {
		if i >= max {
			break
		}
		out = append(out, Result{Title: r.Title, URL: r.URL, Snippet: r.Snippet})
	}
	return out, nil
}
