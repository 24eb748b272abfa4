package discovery

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/sells-group/report-kpi/internal/fetcher"
)

// HTMLSource scrapes PDF anchors from an investor-relations page.
type HTMLSource struct {
	Entity  string
	PageURL string
	// Selector limits the search to matching elements, e.g. "#reports".
	Selector string
	http     *fetcher.HTTPFetcher
}

// NewHTMLSource returns a page source fetched through h.
func NewHTMLSource(entity, pageURL, selector string, h *fetcher.HTTPFetcher) *HTMLSource {
	return &HTMLSource{Entity: entity, PageURL: pageURL, Selector: selector, http: h}
}

// Name implements Source.
func (s *HTMLSource) Name() string { return "html:" + s.PageURL }

// Discover implements Source.
func (s *HTMLSource) Discover(ctx context.Context) ([]Link, error) {
	base, err := url.Parse(s.PageURL)
	if err != nil {
		return nil, eris.Wrapf(err, "html: parse page url %q", s.PageURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.PageURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "html: create request")
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := s.http.Do(ctx, req)
	if err != nil {
		return nil, eris.Wrap(err, "html: fetch page")
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusOK {
		return nil, &fetcher.StatusError{URL: s.PageURL, StatusCode: resp.StatusCode}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, eris.Wrapf(err, "html: parse %s", s.PageURL)
	}
	return pdfAnchors(doc, base, s.Selector, s.Entity), nil
}

func pdfAnchors(doc *goquery.Document, base *url.URL, selector, entity string) []Link {
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if b, err := base.Parse(strings.TrimSpace(href)); err == nil {
			base = b
		}
	}

	scope := doc.Selection
	if selector != "" {
		scope = doc.Find(selector)
	}

	seen := make(map[string]bool)
	var links []Link
	scope.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
			return
		}
		u, err := base.Parse(href)
		if err != nil {
			return
		}
		u.Fragment = ""
		abs := u.String()
		if !IsPDFURL(abs) || seen[abs] {
			return
		}
		seen[abs] = true

		title := strings.Join(strings.Fields(a.Text()), " ")
		if title == "" {
			title = a.AttrOr("title", "")
		}
		links = append(links, Link{Entity: entity, URL: abs, Title: title})
	})
	return links
}
