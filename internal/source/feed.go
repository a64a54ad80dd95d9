package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/TobiSchelling/ankiforge/internal/model"
	"github.com/TobiSchelling/ankiforge/internal/trace"
)

// Entry is one parsed feed item.
type Entry struct {
	URL           string
	Title         string
	PublishedDate string // YYYY-MM-DD or empty
	Content       string
	Source        string
}

// ReadFeed parses feedURL and returns up to MaxPerFeed entries inside the
// DaysBack window.
func (s *Source) ReadFeed(ctx context.Context, feedURL string) ([]Entry, error) {
	feed, err := s.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parsing feed %s: %w", feedURL, err)
	}

	name := strings.TrimSpace(feed.Title)
	if name == "" {
		name = extractSourceName(feedURL)
	}

	var cutoff time.Time
	if s.opts.DaysBack > 0 {
		cutoff = time.Now().AddDate(0, 0, -s.opts.DaysBack)
	}

	var entries []Entry
	for _, item := range feed.Items {
		if len(entries) >= s.opts.MaxPerFeed {
			break
		}
		entry := parseItem(item, name)
		if entry == nil {
			continue
		}
		if isWithinWindow(entry.PublishedDate, cutoff) {
			entries = append(entries, *entry)
		}
	}

	slog.Info("parsed feed", "feed", name, "entries", len(entries), "days_back", s.opts.DaysBack)
	return entries, nil
}

// FeedDocuments turns the entries of feedURL into documents. With
// FullContent, each entry's page is fetched; after an HTTP error the
// remaining entries from that host fall back to the feed summary.
func (s *Source) FeedDocuments(ctx context.Context, feedURL string) ([]model.ConvertedDocument, error) {
	entries, err := s.ReadFeed(ctx, feedURL)
	if err != nil {
		return nil, err
	}

	failedHosts := map[string]bool{}
	var docs []model.ConvertedDocument
	for _, e := range entries {
		content := e.Content
		if s.opts.FullContent {
			host := hostOf(e.URL)
			if !failedHosts[host] {
				_, text, err := s.fetchArticle(ctx, e.URL)
				var httpErr *HTTPError
				switch {
				case err == nil:
					content = text
				case errors.As(err, &httpErr):
					failedHosts[host] = true
					slog.Warn("HTTP error, skipping remaining pages from host", "url", e.URL, "host", host, "status", httpErr.Code)
				default:
					slog.Warn("could not fetch entry page, using feed summary", "url", e.URL, "error", err)
				}
			}
		}

		if strings.TrimSpace(content) == "" {
			slog.Debug("skipping feed entry without content", "url", e.URL)
			continue
		}
		docs = append(docs, model.ConvertedDocument{
			Content:      "# " + e.Title + "\n\n" + content,
			SourceFormat: model.FormatMarkdown,
			SourcePath:   e.URL,
			FileName:     e.Title,
			TraceID:      trace.NewID(),
		})
	}
	return docs, nil
}

func parseItem(item *gofeed.Item, source string) *Entry {
	itemURL := item.Link
	if itemURL == "" {
		itemURL = item.GUID
	}
	if itemURL == "" {
		return nil
	}

	title := strings.TrimSpace(item.Title)
	if title == "" {
		return nil
	}

	var publishedDate string
	if item.PublishedParsed != nil {
		publishedDate = item.PublishedParsed.Format("2006-01-02")
	} else if item.UpdatedParsed != nil {
		publishedDate = item.UpdatedParsed.Format("2006-01-02")
	}

	var content string
	if item.Content != "" {
		content = stripHTML(item.Content)
	} else if item.Description != "" {
		content = stripHTML(item.Description)
	}

	return &Entry{
		URL:           itemURL,
		Title:         title,
		PublishedDate: publishedDate,
		Content:       content,
		Source:        source,
	}
}

// isWithinWindow keeps undated entries; a zero cutoff keeps everything.
func isWithinWindow(publishedDate string, cutoff time.Time) bool {
	if publishedDate == "" || cutoff.IsZero() {
		return true
	}
	pub, err := time.Parse("2006-01-02", publishedDate)
	if err != nil {
		return true
	}
	return !pub.Before(cutoff.Truncate(24 * time.Hour))
}

var entityReplacer = strings.NewReplacer(
	"&nbsp;", " ",
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
)

func stripHTML(text string) string {
	var b strings.Builder
	inTag := false
	for _, r := range text {
		switch {
		case r == '<':
			inTag = true
			b.WriteRune(' ')
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(entityReplacer.Replace(b.String())), " ")
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}

func extractSourceName(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil || u.Hostname() == "" {
		return feedURL
	}
	host := strings.ToLower(u.Hostname())

	for _, prefix := range []string{"www.", "blog.", "blogs.", "rss.", "feeds."} {
		host = strings.TrimPrefix(host, prefix)
	}

	parts := strings.Split(host, ".")
	if len(parts) >= 2 {
		host = parts[len(parts)-2]
	}
	return strings.ToUpper(host[:1]) + host[1:]
}
