package index

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/briefops/briefer/internal/brief"
)

func memIndex(t *testing.T) *Index {
	t.Helper()
	ix, err := New("")
	if err != nil {
		t.Fatalf("new index: %v", err)
	}
	t.Cleanup(func() { ix.Close() })
	return ix
}

func TestSearchFindsIndexedBrief(t *testing.T) {
	ix := memIndex(t)

	err := ix.IndexBrief("b1", "u1", brief.FinalBrief{
		Topic:            "perovskite solar cells",
		ExecutiveSummary: "Perovskite cells reached new efficiency records this year.",
		Synthesis:        "Lab efficiencies now rival silicon.",
		KeyInsights:      []string{"tandem designs lead"},
		GeneratedAt:      time.Now(),
	})
	if err != nil {
		t.Fatalf("index brief: %v", err)
	}
	err = ix.IndexBrief("b2", "u2", brief.FinalBrief{
		Topic:            "sovereign bond yields",
		ExecutiveSummary: "Yields drifted lower across developed markets.",
		GeneratedAt:      time.Now(),
	})
	if err != nil {
		t.Fatalf("index brief: %v", err)
	}

	hits, err := ix.Search("perovskite efficiency", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("no hits")
	}
	if hits[0].BriefID != "b1" || hits[0].UserID != "u1" {
		t.Fatalf("top hit = %+v", hits[0])
	}
	if hits[0].Rank != 1 || hits[0].Topic != "perovskite solar cells" {
		t.Fatalf("hit metadata = %+v", hits[0])
	}
}

func TestSearchNoMatches(t *testing.T) {
	ix := memIndex(t)
	hits, err := ix.Search("nothing indexed", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("hits = %+v", hits)
	}
}

func TestSnippetKeepsRuneBoundaries(t *testing.T) {
	// leading ascii byte shifts every 2-byte rune off the 300 cut
	long := "a" + strings.Repeat("é", 200)
	got := snippet(long)
	if !utf8.ValidString(got) {
		t.Fatalf("snippet split a rune: %q", got[:12])
	}
	if !strings.HasSuffix(got, "…") {
		t.Fatalf("snippet missing ellipsis: %q", got)
	}

	short := "plain summary"
	if snippet(short) != short {
		t.Fatalf("short snippet changed: %q", snippet(short))
	}
}

func TestIndexBriefReplacesDocument(t *testing.T) {
	ix := memIndex(t)

	b := brief.FinalBrief{Topic: "graph databases", ExecutiveSummary: "First pass summary about graph databases."}
	if err := ix.IndexBrief("b1", "u1", b); err != nil {
		t.Fatalf("index brief: %v", err)
	}
	b.ExecutiveSummary = "Updated summary mentioning property graphs."
	if err := ix.IndexBrief("b1", "u1", b); err != nil {
		t.Fatalf("reindex brief: %v", err)
	}

	hits, err := ix.Search("property graphs", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 || hits[0].Snippet != "Updated summary mentioning property graphs." {
		t.Fatalf("hits = %+v", hits)
	}
}
