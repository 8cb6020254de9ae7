package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Serper queries the serper.dev Google search proxy.
type Serper struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewSerper(apiKey string, timeout time.Duration) *Serper {
	return &Serper{
		apiKey:  apiKey,
		baseURL: "https://google.serper.dev",
		client:  &http.Client{Timeout: timeout},
	}
}

func (s *Serper) Search(ctx context.Context, query string, max int) ([]Result, error) {
	body, err := json.Marshal(map[string]interface{}{"q": query, "num": max})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", s.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-API-KEY", s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("serper search status %d", resp.StatusCode)
	}

	var raw struct {
		Organic []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"organic"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}

	var out []Result
	for i, r := range raw.Organic {
		if i >= max {
			break
		}
		out = append(out, Result{Title: r.Title, URL: r.Link, Snippet: r.Snippet})
	}
	return out, nil
}
