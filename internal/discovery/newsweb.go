package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/report-kpi/internal/config"
	"github.com/sells-group/report-kpi/internal/fetcher"
)

const newsSearchQuery = `query news($q: CompanyNewsSearchInput!) {
  companyNewsSearch(query: $q) {
    edges { node { id title } }
    pageInfo { hasNextPage }
  }
}`

const pressReleaseQuery = `query one($id: Int!) {
  companyPressRelease(id: $id) {
    attachments { url }
  }
}`

// NewswebSource lists an issuer's press releases on the Euronext GraphQL
// gateway, keeps those whose title matches the report types and returns
// their PDF attachments.
type NewswebSource struct {
	Entity   string
	IssuerID int

	endpoints []string
	apiKey    string
	languages []string
	types     []string
	pageSize  int
	http      *fetcher.HTTPFetcher
}

// NewNewswebSource returns a NewsWeb source for one issuer.
func NewNewswebSource(entity string, issuerID int, cfg config.DiscoveryConfig, h *fetcher.HTTPFetcher) *NewswebSource {
	s := &NewswebSource{
		Entity:    entity,
		IssuerID:  issuerID,
		endpoints: cfg.NewswebEndpoints,
		apiKey:    cfg.NewswebAPIKey,
		languages: cfg.Languages,
		types:     cfg.ReportTypes,
		pageSize:  cfg.PageSize,
		http:      h,
	}
	if s.pageSize <= 0 {
		s.pageSize = 250
	}
	if len(s.languages) == 0 {
		s.languages = []string{"no", "en"}
	}
	return s
}

// Name implements Source.
func (s *NewswebSource) Name() string { return "newsweb:" + strconv.Itoa(s.IssuerID) }

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type gqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

type newsSearchData struct {
	CompanyNewsSearch struct {
		Edges []struct {
			Node struct {
				ID    json.Number `json:"id"`
				Title string      `json:"title"`
			} `json:"node"`
		} `json:"edges"`
		PageInfo struct {
			HasNextPage bool `json:"hasNextPage"`
		} `json:"pageInfo"`
	} `json:"companyNewsSearch"`
}

type pressReleaseData struct {
	CompanyPressRelease *struct {
		Attachments []struct {
			URL string `json:"url"`
		} `json:"attachments"`
	} `json:"companyPressRelease"`
}

// Discover implements Source.
func (s *NewswebSource) Discover(ctx context.Context) ([]Link, error) {
	re, err := CompileReportTypes(s.types)
	if err != nil {
		return nil, err
	}

	titles := make(map[int64]string)
	for _, lang := range s.languages {
		for page := 0; ; page++ {
			var data newsSearchData
			err := s.query(ctx, gqlRequest{
				Query: newsSearchQuery,
				Variables: map[string]any{"q": map[string]any{
					"issuerId": s.IssuerID,
					"language": lang,
					"page":     page,
					"pageSize": s.pageSize,
				}},
			}, &data)
			if err != nil {
				return nil, eris.Wrapf(err, "newsweb: search issuer %d (%s, page %d)", s.IssuerID, lang, page)
			}
			for _, e := range data.CompanyNewsSearch.Edges {
				if !re.MatchString(e.Node.Title) {
					continue
				}
				id, err := e.Node.ID.Int64()
				if err != nil {
					zap.L().Warn("newsweb: skipping release with bad id", zap.String("id", e.Node.ID.String()))
					continue
				}
				if _, ok := titles[id]; !ok {
					titles[id] = e.Node.Title
				}
			}
			if !data.CompanyNewsSearch.PageInfo.HasNextPage {
				break
			}
		}
	}

	ids := make([]int64, 0, len(titles))
	for id := range titles {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	seen := make(map[string]bool)
	var links []Link
	for _, id := range ids {
		var data pressReleaseData
		if err := s.query(ctx, gqlRequest{
			Query:     pressReleaseQuery,
			Variables: map[string]any{"id": id},
		}, &data); err != nil {
			return nil, eris.Wrapf(err, "newsweb: press release %d", id)
		}
		if data.CompanyPressRelease == nil {
			continue
		}
		for _, a := range data.CompanyPressRelease.Attachments {
			if !IsPDFURL(a.URL) || seen[a.URL] {
				continue
			}
			seen[a.URL] = true
			links = append(links, Link{Entity: s.Entity, URL: a.URL, Title: titles[id]})
		}
	}

	zap.L().Info("newsweb: releases matched",
		zap.String("entity", s.Entity),
		zap.Int("releases", len(ids)),
		zap.Int("pdfs", len(links)),
	)
	return links, nil
}

// query posts to each endpoint in turn. Transport errors and 404 fall
// through to the next endpoint; any other status of 400 or above fails.
func (s *NewswebSource) query(ctx context.Context, payload gqlRequest, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return eris.Wrap(err, "newsweb: marshal query")
	}
	if len(s.endpoints) == 0 {
		return eris.New("newsweb: no endpoints configured")
	}

	var lastErr error
	for _, endpoint := range s.endpoints {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return eris.Wrap(err, "newsweb: create request")
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		if s.apiKey != "" {
			req.Header.Set("x-api-key", s.apiKey)
		}

		resp, err := s.http.Do(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return eris.Wrap(ctx.Err(), "newsweb: query")
			}
			lastErr = err
			continue
		}
		if resp.StatusCode == http.StatusNotFound {
			_ = resp.Body.Close()
			lastErr = &fetcher.StatusError{URL: endpoint, StatusCode: resp.StatusCode}
			continue
		}
		if resp.StatusCode >= 400 {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 120))
			_ = resp.Body.Close()
			return eris.Wrapf(&fetcher.StatusError{URL: endpoint, StatusCode: resp.StatusCode},
				"newsweb: %s", strings.TrimSpace(string(snippet)))
		}

		var gr gqlResponse
		err = json.NewDecoder(resp.Body).Decode(&gr)
		_ = resp.Body.Close()
		if err != nil {
			return eris.Wrapf(err, "newsweb: decode response from %s", endpoint)
		}
		if len(gr.Errors) > 0 {
			return eris.Errorf("newsweb: graphql error: %s", gr.Errors[0].Message)
		}
		if err := json.Unmarshal(gr.Data, out); err != nil {
			return eris.Wrap(err, "newsweb: decode data")
		}
		return nil
	}
	return eris.Wrap(lastErr, "newsweb: every endpoint failed")
}
