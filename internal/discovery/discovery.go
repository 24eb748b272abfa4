// Package discovery finds report PDF links for registered entities from
// RSS feeds, investor-relations pages and the Oslo Børs NewsWeb service.
package discovery

import (
	"context"
	"net/url"
	"path"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Link is a discovered report document.
type Link struct {
	Entity    string
	URL       string
	Title     string
	Published time.Time
}

// Source yields report links for one entity.
type Source interface {
	Name() string
	Discover(ctx context.Context) ([]Link, error)
}

// Unicode-aware word edges; RE2's \b only knows ASCII and would miss "årsrapport".
const (
	wordStart = `(?:^|[^\p{L}\p{N}_])`
	wordEnd   = `(?:$|[^\p{L}\p{N}_])`
)

var reportTypePatterns = map[string]string{
	"quarterly":    wordStart + `(?:q[1-4]|quarter|interim|half|h[12])` + wordEnd,
	"annual":       wordStart + `(?:annual|årsrapport|årsregnskap|year[- ]?end)` + wordEnd,
	"presentation": wordStart + `(?:presentation|presentasjon)` + wordEnd,
	"all":          `.`,
}

// ReportTypes lists the accepted report type names.
func ReportTypes() []string {
	out := make([]string, 0, len(reportTypePatterns))
	for k := range reportTypePatterns {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// CompileReportTypes builds one case-insensitive matcher for the union of
// types. No types means every title matches.
func CompileReportTypes(types []string) (*regexp.Regexp, error) {
	if len(types) == 0 {
		types = []string{"all"}
	}
	parts := make([]string, 0, len(types))
	for _, t := range types {
		p, ok := reportTypePatterns[strings.ToLower(strings.TrimSpace(t))]
		if !ok {
			return nil, eris.Errorf("discovery: unknown report type %q", t)
		}
		parts = append(parts, "(?:"+p+")")
	}
	return regexp.Compile("(?i)" + strings.Join(parts, "|"))
}

// ClassifyTitle reports whether a press release title matches any of the
// report types. Unknown types never match.
func ClassifyTitle(title string, types []string) bool {
	re, err := CompileReportTypes(types)
	if err != nil {
		return false
	}
	return re.MatchString(title)
}

// IsPDFURL reports whether the URL path ends in .pdf, ignoring query and
// fragment.
func IsPDFURL(raw string) bool {
	p := raw
	if u, err := url.Parse(raw); err == nil {
		p = u.Path
	}
	return strings.EqualFold(path.Ext(p), ".pdf")
}

// Collect runs every source in order. A failing source is logged and
// skipped; links are deduplicated by URL across sources.
func Collect(ctx context.Context, sources []Source) ([]Link, error) {
	seen := make(map[string]bool)
	var out []Link
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return out, eris.Wrap(err, "discovery: collect")
		}
		links, err := src.Discover(ctx)
		if err != nil {
			zap.L().Warn("discovery: source failed",
				zap.String("source", src.Name()),
				zap.Error(err),
			)
			continue
		}
		added := 0
		for _, l := range links {
			if seen[l.URL] {
				continue
			}
			seen[l.URL] = true
			out = append(out, l)
			added++
		}
		zap.L().Info("discovery: source done",
			zap.String("source", src.Name()),
			zap.Int("links", added),
		)
	}
	return out, nil
}
