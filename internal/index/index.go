package index

import (
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/blevesearch/bleve"

	"github.com/briefops/briefer/internal/brief"
)

// Hit is one full-text match over the saved brief corpus.
type Hit struct {
	BriefID string  `json:"brief_id"`
	UserID  string  `json:"user_id"`
	Topic   string  `json:"topic"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
	Rank    int     `json:"rank"`
}

type briefDoc struct {
	Topic            string `json:"topic"`
	ExecutiveSummary string `json:"executive_summary"`
	Synthesis        string `json:"synthesis"`
	KeyInsights      string `json:"key_insights"`
}

type docMeta struct {
	UserID string
	Topic  string
	Text   string
}

// Index is a BM25 index over generated briefs, used by the search
// endpoint to find prior research without hitting the LLM.
type Index struct {
	bleve bleve.Index
	meta  map[string]docMeta
	mu    sync.RWMutex
}

// New opens the index at path, creating it when absent. An empty path
// yields a memory-only index.
func New(path string) (*Index, error) {
	var (
		idx bleve.Index
		err error
	)
	if path == "" {
		idx, err = bleve.NewMemOnly(bleve.NewIndexMapping())
	} else {
		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, bleve.NewIndexMapping())
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open brief index: %w", err)
	}
	return &Index{bleve: idx, meta: make(map[string]docMeta)}, nil
}

// IndexBrief adds or replaces one brief in the index.
func (ix *Index) IndexBrief(id, userID string, b brief.FinalBrief) error {
	doc := briefDoc{
		Topic:            b.Topic,
		ExecutiveSummary: b.ExecutiveSummary,
		Synthesis:        b.Synthesis,
		KeyInsights:      joinInsights(b.KeyInsights),
	}
	ix.mu.Lock()
	ix.meta[id] = docMeta{UserID: userID, Topic: b.Topic, Text: b.ExecutiveSummary}
	ix.mu.Unlock()
	return ix.bleve.Index(id, doc)
}

// Search runs a BM25 query and returns up to k hits, best first.
func (ix *Index) Search(q string, k int) ([]Hit, error) {
	query := bleve.NewQueryStringQuery(q)
	req := bleve.NewSearchRequestOptions(query, k, 0, false)
	res, err := ix.bleve.Search(req)
	if err != nil {
		return nil, err
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	var out []Hit
	for i, hit := range res.Hits {
		m := ix.meta[hit.ID]
		out = append(out, Hit{
			BriefID: hit.ID,
			UserID:  m.UserID,
			Topic:   m.Topic,
			Snippet: snippet(m.Text),
			Score:   hit.Score,
			Rank:    i + 1,
		})
	}
	return out, nil
}

// Close releases the underlying index.
func (ix *Index) Close() error {
	return ix.bleve.Close()
}

func joinInsights(insights []string) string {
	out := ""
	for i, s := range insights {
		if i > 0 {
			out += " "
		}
		out += s
	}
	return out
}

func snippet(s string) string {
	if len(s) <= 300 {
		return s
	}
	n := 300
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "…"
}
