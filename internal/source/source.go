// Package source turns web articles and RSS/Atom feed entries into
// documents for card generation.
package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
	"github.com/mmcdole/gofeed"

	"github.com/TobiSchelling/ankiforge/internal/model"
	"github.com/TobiSchelling/ankiforge/internal/trace"
)

const (
	defaultUserAgent  = "ankiforge/1.0 (flashcard generator)"
	defaultMaxPerFeed = 20
	minContentLength  = 100
)

// Options configures a Source.
type Options struct {
	Timeout    time.Duration
	MaxPerFeed int
	// DaysBack limits feed entries to the last n days; 0 keeps all.
	DaysBack int
	// FullContent fetches each feed entry's page instead of using the
	// feed's own summary.
	FullContent bool
	UserAgent   string
}

// Source fetches web documents.
type Source struct {
	opts   Options
	client *http.Client
	parser *gofeed.Parser
}

// New creates a Source.
func New(opts Options) *Source {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.MaxPerFeed <= 0 {
		opts.MaxPerFeed = defaultMaxPerFeed
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	client := &http.Client{
		Timeout: opts.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
	parser := gofeed.NewParser()
	parser.Client = client
	parser.UserAgent = opts.UserAgent
	return &Source{opts: opts, client: client, parser: parser}
}

// IsURL reports whether s is an http(s) URL rather than a local path.
func IsURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// HTTPError is a 4xx/5xx answer from a web server.
type HTTPError struct {
	URL  string
	Code int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("fetching %s: HTTP %d %s", e.URL, e.Code, http.StatusText(e.Code))
}

// FetchDocument downloads pageURL and extracts its readable text.
func (s *Source) FetchDocument(ctx context.Context, pageURL string) (model.ConvertedDocument, error) {
	title, text, err := s.fetchArticle(ctx, pageURL)
	if err != nil {
		return model.ConvertedDocument{}, err
	}

	content := text
	if title != "" {
		content = "# " + title + "\n\n" + text
	}
	slog.Info("fetched web document", "url", pageURL, "title", title, "length", len(content))
	return model.ConvertedDocument{
		Content:      content,
		SourceFormat: model.FormatMarkdown,
		SourcePath:   pageURL,
		FileName:     documentName(pageURL, title),
		TraceID:      trace.NewID(),
	}, nil
}

func (s *Source) fetchArticle(ctx context.Context, pageURL string) (title, text string, err error) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid url %q: %w", pageURL, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("User-Agent", s.opts.UserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("fetching %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", "", &HTTPError{URL: pageURL, Code: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", fmt.Errorf("reading %s: %w", pageURL, err)
	}

	article, err := readability.FromReader(strings.NewReader(string(body)), parsed)
	if err != nil {
		return "", "", fmt.Errorf("extracting %s: %w", pageURL, err)
	}

	text = strings.TrimSpace(article.TextContent)
	if len(text) <= minContentLength {
		return "", "", fmt.Errorf("no extractable content at %s", pageURL)
	}
	return strings.TrimSpace(article.Title), text, nil
}

func documentName(pageURL, title string) string {
	if title != "" {
		return title
	}
	u, err := url.Parse(pageURL)
	if err != nil || u.Host == "" {
		return pageURL
	}
	return u.Host + u.Path
}
