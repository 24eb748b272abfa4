package discovery

import (
	"context"
	"net/http"

	"github.com/mmcdole/gofeed"
	"github.com/rotisserie/eris"

	"github.com/sells-group/report-kpi/internal/fetcher"
)

// RSSSource reads PDF links from a news feed. An item contributes its
// first PDF among link, links and enclosures.
type RSSSource struct {
	Entity  string
	FeedURL string
	http    *fetcher.HTTPFetcher
}

// NewRSSSource returns a feed source fetched through h.
func NewRSSSource(entity, feedURL string, h *fetcher.HTTPFetcher) *RSSSource {
	return &RSSSource{Entity: entity, FeedURL: feedURL, http: h}
}

// Name implements Source.
func (s *RSSSource) Name() string { return "rss:" + s.FeedURL }

// Discover implements Source.
func (s *RSSSource) Discover(ctx context.Context) ([]Link, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.FeedURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "rss: create request")
	}
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")

	resp, err := s.http.Do(ctx, req)
	if err != nil {
		return nil, eris.Wrap(err, "rss: fetch feed")
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusOK {
		return nil, &fetcher.StatusError{URL: s.FeedURL, StatusCode: resp.StatusCode}
	}

	feed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, eris.Wrapf(err, "rss: parse %s", s.FeedURL)
	}

	seenGUID := make(map[string]bool)
	seenURL := make(map[string]bool)
	var links []Link
	for _, item := range feed.Items {
		if item.GUID != "" {
			if seenGUID[item.GUID] {
				continue
			}
			seenGUID[item.GUID] = true
		}
		u := itemPDF(item)
		if u == "" || seenURL[u] {
			continue
		}
		seenURL[u] = true

		l := Link{Entity: s.Entity, URL: u, Title: item.Title}
		if item.PublishedParsed != nil {
			l.Published = *item.PublishedParsed
		}
		links = append(links, l)
	}
	return links, nil
}

func itemPDF(item *gofeed.Item) string {
	candidates := append([]string{item.Link}, item.Links...)
	for _, enc := range item.Enclosures {
		candidates = append(candidates, enc.URL)
	}
	for _, c := range candidates {
		if c != "" && IsPDFURL(c) {
			return c
		}
	}
	return ""
}
