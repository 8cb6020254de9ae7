package fetch

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	readability "github.com/go-shiori/go-readability"
)

// Article is the extracted text content of one rendered page.
type Article struct {
	URL    string
	Title  string
	Byline string
	Text   string
}

// Fetcher renders a page headlessly and extracts its readable text.
// Used to upgrade search hits whose snippets are too thin to summarize.
type Fetcher struct {
	Timeout  time.Duration
	MaxChars int
}

// Fetch navigates to the URL in a headless browser, waits for the body
// and runs readability extraction over the rendered HTML.
func (f Fetcher) Fetch(ctx context.Context, raw string) (Article, error) {
	if strings.TrimSpace(raw) == "" {
		return Article{}, errors.New("invalid url")
	}

	ctx, cancel := context.WithTimeout(ctx, f.Timeout)
	defer cancel()

	html, err := fetchHTML(ctx, raw)
	if err != nil {
		return Article{}, err
	}

	article, err := readability.FromReader(strings.NewReader(html), mustParseURL(raw))
	if err != nil {
		return Article{}, err
	}
	text := strings.TrimSpace(article.TextContent)
	if f.MaxChars > 0 && len(text) > f.MaxChars {
		text = text[:f.MaxChars]
	}

	return Article{
		URL:    raw,
		Title:  strings.TrimSpace(article.Title),
		Byline: strings.TrimSpace(article.Byline),
		Text:   text,
	}, nil
}

func fetchHTML(ctx context.Context, url string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.UserAgent("BrieferBot/1.0 (+contact@example.com)"),
	)
	actx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	bctx, cancelBrowser := chromedp.NewContext(actx)
	defer cancelBrowser()

	var html string
	err := chromedp.Run(bctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	return html, err
}

func mustParseURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		return &url.URL{}
	}
	return u
}
