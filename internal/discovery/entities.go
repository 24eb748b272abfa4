package discovery

import (
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/report-kpi/internal/config"
	"github.com/sells-group/report-kpi/internal/fetcher"
)

// Source types accepted in the registry.
const (
	SourceRSS     = "rss"
	SourceHTML    = "html"
	SourceNewsweb = "newsweb"
)

// SourceSpec configures one discovery source of an entity.
type SourceSpec struct {
	Type     string `yaml:"type"`
	URL      string `yaml:"url,omitempty"`
	IssuerID int    `yaml:"issuer_id,omitempty"`
	Selector string `yaml:"selector,omitempty"`
}

// Entity is a company in the registry. Name doubles as its document
// directory under the PDF root.
type Entity struct {
	Name    string       `yaml:"name"`
	Sources []SourceSpec `yaml:"sources"`
}

// Registry is the parsed entities file.
type Registry struct {
	Entities []Entity `yaml:"entities"`
}

// LoadRegistry reads and validates an entities YAML file.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "discovery: read registry %s", path)
	}
	var reg Registry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return nil, eris.Wrapf(err, "discovery: parse registry %s", path)
	}
	if err := reg.validate(); err != nil {
		return nil, eris.Wrapf(err, "discovery: registry %s", path)
	}
	return &reg, nil
}

func (r *Registry) validate() error {
	var errs []string
	names := make(map[string]bool)
	for i, e := range r.Entities {
		if e.Name == "" {
			errs = append(errs, "entity "+strconv.Itoa(i)+": name is required")
			continue
		}
		if names[e.Name] {
			errs = append(errs, "entity "+e.Name+": duplicate name")
		}
		names[e.Name] = true
		for j, s := range e.Sources {
			where := "entity " + e.Name + " source " + strconv.Itoa(j)
			switch s.Type {
			case SourceRSS, SourceHTML:
				if s.URL == "" {
					errs = append(errs, where+": url is required")
				}
			case SourceNewsweb:
				if s.IssuerID <= 0 {
					errs = append(errs, where+": issuer_id is required")
				}
			default:
				errs = append(errs, where+": unknown type "+strconv.Quote(s.Type))
			}
		}
	}
	if len(errs) > 0 {
		return eris.New(strings.Join(errs, "; "))
	}
	return nil
}

// Find returns the named entity.
func (r *Registry) Find(name string) (Entity, bool) {
	for _, e := range r.Entities {
		if e.Name == name {
			return e, true
		}
	}
	return Entity{}, false
}

// BuildSources turns an entity's specs into sources sharing one HTTP
// fetcher.
func BuildSources(e Entity, cfg config.DiscoveryConfig, h *fetcher.HTTPFetcher) []Source {
	out := make([]Source, 0, len(e.Sources))
	for _, s := range e.Sources {
		switch s.Type {
		case SourceRSS:
			out = append(out, NewRSSSource(e.Name, s.URL, h))
		case SourceHTML:
			out = append(out, NewHTMLSource(e.Name, s.URL, s.Selector, h))
		case SourceNewsweb:
			out = append(out, NewNewswebSource(e.Name, s.IssuerID, cfg, h))
		}
	}
	return out
}
