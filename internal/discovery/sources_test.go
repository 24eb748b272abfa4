package discovery

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/report-kpi/internal/config"
)

const testFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Kitron news</title>
  <item>
    <title>Kitron Q3 2024 report</title>
    <guid>r-1</guid>
    <link>https://example.com/news/q3</link>
    <enclosure url="https://example.com/files/q3-2024.pdf" type="application/pdf" length="1"/>
    <pubDate>Thu, 24 Oct 2024 07:00:00 +0200</pubDate>
  </item>
  <item>
    <title>Duplicate guid</title>
    <guid>r-1</guid>
    <link>https://example.com/files/other.pdf</link>
  </item>
  <item>
    <title>Annual report</title>
    <guid>r-2</guid>
    <link>https://example.com/files/annual-2023.pdf</link>
  </item>
  <item>
    <title>No attachment</title>
    <guid>r-3</guid>
    <link>https://example.com/news/agm</link>
  </item>
</channel>
</rss>`

func TestRSSSource(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = io.WriteString(w, testFeed)
	}))
	defer srv.Close()

	links, err := NewRSSSource("kitron", srv.URL, testFetcher()).Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, "https://example.com/files/q3-2024.pdf", links[0].URL)
	assert.Equal(t, "Kitron Q3 2024 report", links[0].Title)
	assert.Equal(t, 2024, links[0].Published.Year())
	assert.Equal(t, "kitron", links[0].Entity)
	assert.Equal(t, "https://example.com/files/annual-2023.pdf", links[1].URL)
}

func TestRSSSource_Status(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := NewRSSSource("kitron", srv.URL, testFetcher()).Discover(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

const testPage = `<html><head><title>IR</title></head><body>
<nav><a href="/files/menu.pdf">Menu</a></nav>
<section id="reports">
  <a href="/files/Q1-2024.pdf">  Q1   2024 </a>
  <a href="files/Q2-2024.pdf#page=1" title="Second quarter"></a>
  <a href="/files/Q1-2024.pdf">duplicate</a>
  <a href="/news/agm">AGM</a>
  <a href="https://cdn.example.net/annual.PDF">Annual</a>
  <a href="javascript:void(0)">js</a>
</section>
</body></html>`

func TestHTMLSource(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, testPage)
	}))
	defer srv.Close()

	links, err := NewHTMLSource("elab", srv.URL+"/ir/", "#reports", testFetcher()).Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, links, 3)
	assert.Equal(t, srv.URL+"/files/Q1-2024.pdf", links[0].URL)
	assert.Equal(t, "Q1 2024", links[0].Title)
	assert.Equal(t, srv.URL+"/ir/files/Q2-2024.pdf", links[1].URL)
	assert.Equal(t, "Second quarter", links[1].Title)
	assert.Equal(t, "https://cdn.example.net/annual.PDF", links[2].URL)

	all, err := NewHTMLSource("elab", srv.URL+"/ir/", "", testFetcher()).Discover(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

// newswebServer fakes the GraphQL gateway with two pages of releases.
func newswebServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/missing", http.NotFound)
	mux.HandleFunc("/graphql", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		var req gqlRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")

		switch {
		case strings.Contains(req.Query, "companyNewsSearch"):
			q := req.Variables["q"].(map[string]any)
			assert.Equal(t, float64(118710), q["issuerId"])
			var resp string
			if q["language"] == "no" && q["page"] == float64(0) {
				resp = `{"data":{"companyNewsSearch":{"edges":[
					{"node":{"id":"101","title":"Kitron Q1 2024"}},
					{"node":{"id":"102","title":"Mandatory notification of trade"}}],
					"pageInfo":{"hasNextPage":true}}}}`
			} else if q["language"] == "no" {
				resp = `{"data":{"companyNewsSearch":{"edges":[
					{"node":{"id":103,"title":"Årsrapport 2023"}}],
					"pageInfo":{"hasNextPage":false}}}}`
			} else {
				resp = `{"data":{"companyNewsSearch":{"edges":[
					{"node":{"id":"101","title":"Kitron Q1 2024"}}],
					"pageInfo":{"hasNextPage":false}}}}`
			}
			_, _ = io.WriteString(w, resp)
		case strings.Contains(req.Query, "companyPressRelease"):
			switch req.Variables["id"] {
			case float64(101):
				_, _ = io.WriteString(w, `{"data":{"companyPressRelease":{"attachments":[
					{"url":"https://att.example.com/q1-2024.pdf"},
					{"url":"https://att.example.com/q1-2024.xlsx"}]}}}`)
			case float64(103):
				_, _ = io.WriteString(w, `{"data":{"companyPressRelease":{"attachments":[
					{"url":"https://att.example.com/annual-2023.pdf"}]}}}`)
			default:
				t.Errorf("unexpected press release %v", req.Variables["id"])
			}
		}
	})
	return httptest.NewServer(mux)
}

func TestNewswebSource(t *testing.T) {
	t.Parallel()

	srv := newswebServer(t)
	defer srv.Close()

	cfg := config.DiscoveryConfig{
		NewswebEndpoints: []string{srv.URL + "/missing", srv.URL + "/graphql"},
		NewswebAPIKey:    "secret",
		Languages:        []string{"no", "en"},
		ReportTypes:      []string{"quarterly", "annual"},
		PageSize:         2,
	}
	src := NewNewswebSource("kitron", 118710, cfg, testFetcher())
	assert.Equal(t, "newsweb:118710", src.Name())

	links, err := src.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, "https://att.example.com/q1-2024.pdf", links[0].URL)
	assert.Equal(t, "Kitron Q1 2024", links[0].Title)
	assert.Equal(t, "https://att.example.com/annual-2023.pdf", links[1].URL)
	assert.Equal(t, "kitron", links[1].Entity)
}

func TestNewswebSource_ServerErrorStops(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "forbidden by gateway", http.StatusForbidden)
	}))
	defer srv.Close()

	cfg := config.DiscoveryConfig{NewswebEndpoints: []string{srv.URL + "/a", srv.URL + "/b"}}
	_, err := NewNewswebSource("kitron", 1, cfg, testFetcher()).Discover(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.Equal(t, int32(1), calls.Load())
}

func TestNewswebSource_AllEndpointsMissing(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	cfg := config.DiscoveryConfig{NewswebEndpoints: []string{srv.URL + "/a", srv.URL + "/b"}}
	_, err := NewNewswebSource("kitron", 1, cfg, testFetcher()).Discover(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "every endpoint failed")
}

func TestNewswebSource_GraphQLError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"errors":[{"message":"issuer not found"}]}`)
	}))
	defer srv.Close()

	cfg := config.DiscoveryConfig{NewswebEndpoints: []string{srv.URL}}
	_, err := NewNewswebSource("kitron", 1, cfg, testFetcher()).Discover(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "issuer not found")
}
