package fetcher

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// FileFetcher opens local paths and file:// URLs.
type FileFetcher struct{}

var _ Fetcher = FileFetcher{}

// Fetch opens the file. Local files declare no content type.
func (FileFetcher) Fetch(ctx context.Context, src string) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "fetcher: open file")
	}
	path := src
	if strings.HasPrefix(strings.ToLower(src), "file://") {
		u, err := url.Parse(src)
		if err != nil {
			return nil, eris.Wrapf(err, "fetcher: parse file url %q", src)
		}
		path = filepath.FromSlash(u.Path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: open %s", path)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, eris.Wrapf(err, "fetcher: stat %s", path)
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, eris.Errorf("fetcher: %s is a directory", path)
	}
	return &Response{Body: f, Size: info.Size()}, nil
}

// Mux routes a fetch to the Fetcher registered for the URL scheme. Sources
// without a scheme (plain paths) use the "file" entry.
type Mux struct {
	byScheme map[string]Fetcher
}

var _ Fetcher = (*Mux)(nil)

// NewMux builds a Mux serving http, https, ftp and local files.
func NewMux(h *HTTPFetcher, ftp *FTPFetcher) *Mux {
	m := &Mux{byScheme: map[string]Fetcher{"file": FileFetcher{}}}
	if h != nil {
		m.Handle("http", h)
		m.Handle("https", h)
	}
	if ftp != nil {
		m.Handle("ftp", ftp)
	}
	return m
}

// Handle registers f for scheme, replacing any previous entry.
func (m *Mux) Handle(scheme string, f Fetcher) {
	m.byScheme[strings.ToLower(scheme)] = f
}

// Fetch dispatches on the scheme of src.
func (m *Mux) Fetch(ctx context.Context, src string) (*Response, error) {
	scheme := "file"
	if u, err := url.Parse(src); err == nil && len(u.Scheme) > 1 {
		scheme = strings.ToLower(u.Scheme)
	}
	f, ok := m.byScheme[scheme]
	if !ok {
		return nil, eris.Errorf("fetcher: unsupported scheme %q", scheme)
	}
	return f.Fetch(ctx, src)
}
