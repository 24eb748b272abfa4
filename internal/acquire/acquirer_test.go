package acquire

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/report-kpi/internal/fetcher"
	"github.com/sells-group/report-kpi/internal/model"
)

const samplePDF = "%PDF-1.4\n1 0 obj <<>> endobj\ntrailer <<>>\n%%EOF\n"

type stubFetcher struct {
	calls       atomic.Int32
	body        string
	contentType string
	err         error
}

func (s *stubFetcher) Fetch(context.Context, string) (*fetcher.Response, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return &fetcher.Response{
		Body:        io.NopCloser(strings.NewReader(s.body)),
		ContentType: s.contentType,
		Size:        int64(len(s.body)),
	}, nil
}

func TestAcquire_DownloadsOnce(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	f := &stubFetcher{body: samplePDF, contentType: "application/pdf"}
	a := New(root, f, time.Second)
	ref := model.NewDocumentRef("kitron", "https://example.com/ir/Q1%202024.pdf")

	first := a.Acquire(context.Background(), ref)
	require.Equal(t, model.AcquireDownloaded, first.Status, first.Reason)
	assert.Equal(t, filepath.Join(root, "kitron", "Q1_2024.pdf"), first.Path)
	assert.Equal(t, int64(len(samplePDF)), first.Bytes)

	// A changed remote must not replace the file already on disk.
	f.body = "%PDF-1.7 different"
	second := a.Acquire(context.Background(), ref)
	assert.Equal(t, model.AcquireAlreadyPresent, second.Status)
	assert.Equal(t, int32(1), f.calls.Load())

	data, err := os.ReadFile(first.Path)
	require.NoError(t, err)
	assert.Equal(t, samplePDF, string(data))
}

func TestAcquire_ExistingFileSkipsFetch(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	ref := model.NewDocumentRef("elab", "https://example.com/report.pdf")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "elab"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "elab", "report.pdf"), []byte("original"), 0o644))

	f := &stubFetcher{body: samplePDF}
	res := New(root, f, 0).Acquire(context.Background(), ref)
	assert.Equal(t, model.AcquireAlreadyPresent, res.Status)
	assert.Equal(t, int32(0), f.calls.Load())
}

func TestAcquire_RejectsHTML(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	f := &stubFetcher{body: "<html>Not found</html>", contentType: "text/html; charset=utf-8"}
	res := New(root, f, 0).Acquire(context.Background(), model.NewDocumentRef("x", "https://example.com/a.pdf"))

	assert.Equal(t, model.AcquireFailed, res.Status)
	assert.Contains(t, res.Reason, "content type")
	assert.NoFileExists(t, filepath.Join(root, "x", "a.pdf"))
}

func TestAcquire_RejectsMissingSignature(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	f := &stubFetcher{body: "PK\x03\x04 zip bytes", contentType: "application/octet-stream"}
	res := New(root, f, 0).Acquire(context.Background(), model.NewDocumentRef("x", "https://example.com/a.pdf"))

	assert.Equal(t, model.AcquireFailed, res.Status)
	assert.Contains(t, res.Reason, "%PDF-")
	entries, err := os.ReadDir(filepath.Join(root, "x"))
	if err == nil {
		assert.Empty(t, entries, "no temp files left behind")
	}
}

func TestAcquire_FetchErrorIsFailedResult(t *testing.T) {
	t.Parallel()

	f := &stubFetcher{err: eris.New("connection refused")}
	res := New(t.TempDir(), f, 0).Acquire(context.Background(), model.NewDocumentRef("x", "https://example.com/a.pdf"))
	assert.Equal(t, model.AcquireFailed, res.Status)
	assert.Contains(t, res.Reason, "connection refused")
}

func TestAcquire_InvalidRef(t *testing.T) {
	t.Parallel()

	f := &stubFetcher{body: samplePDF}
	res := New(t.TempDir(), f, 0).Acquire(context.Background(), model.DocumentRef{Entity: "x", LocalIdentifier: "../escape.pdf"})
	assert.Equal(t, model.AcquireFailed, res.Status)
	assert.Equal(t, int32(0), f.calls.Load())
}

func TestAcquire_LocalSource(t *testing.T) {
	t.Parallel()

	src := filepath.Join(t.TempDir(), "Annual Report.pdf")
	require.NoError(t, os.WriteFile(src, []byte(samplePDF), 0o644))

	root := t.TempDir()
	a := New(root, fetcher.NewMux(nil, nil), 0)
	res := a.Acquire(context.Background(), model.NewDocumentRef("nekkar", src))
	require.Equal(t, model.AcquireDownloaded, res.Status, res.Reason)
	assert.FileExists(t, filepath.Join(root, "nekkar", "Annual_Report.pdf"))
}

func TestAcquire_HTTPServer(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte(samplePDF))
	}))
	defer srv.Close()

	h := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{RequestsPerSecond: 100})
	a := New(t.TempDir(), fetcher.NewMux(h, nil), 5*time.Second)

	refs := []model.DocumentRef{
		model.NewDocumentRef("kitron", srv.URL+"/q1.pdf"),
		model.NewDocumentRef("kitron", srv.URL+"/q2.pdf"),
		model.NewDocumentRef("kitron", srv.URL+"/q1.pdf"),
	}
	results := a.AcquireAll(context.Background(), refs)
	require.Len(t, results, 3)
	assert.Equal(t, model.AcquireDownloaded, results[0].Status)
	assert.Equal(t, model.AcquireDownloaded, results[1].Status)
	assert.Equal(t, model.AcquireAlreadyPresent, results[2].Status)
	assert.Equal(t, int32(2), hits.Load())
}

func TestAcquireAll_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := &stubFetcher{body: samplePDF}
	results := New(t.TempDir(), f, 0).AcquireAll(ctx, []model.DocumentRef{
		model.NewDocumentRef("x", "https://example.com/a.pdf"),
	})
	require.Len(t, results, 1)
	assert.Equal(t, model.AcquireFailed, results[0].Status)
	assert.Equal(t, int32(0), f.calls.Load())
}

func TestPublish_NeverOverwrites(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tmp := filepath.Join(dir, "tmp")
	dst := filepath.Join(dir, "dst.pdf")
	require.NoError(t, os.WriteFile(tmp, []byte("new"), 0o644))
	require.NoError(t, os.WriteFile(dst, []byte("old"), 0o644))

	require.Error(t, publish(tmp, dst))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))
}

func TestValidation(t *testing.T) {
	t.Parallel()

	for _, ct := range []string{"text/html", "application/json", "application/xhtml+xml", "text/plain; charset=utf-8"} {
		err := checkContentType(ct)
		assert.True(t, eris.Is(err, ErrNotPDF), ct)
	}
	for _, ct := range []string{"", "application/pdf", "application/octet-stream", "binary/octet-stream"} {
		assert.NoError(t, checkContentType(ct), ct)
	}

	assert.NoError(t, checkMagic([]byte("%PDF-1.7")))
	assert.NoError(t, checkMagic([]byte("\xef\xbb\xbf junk %PDF-1.3")))
	assert.Error(t, checkMagic([]byte(strings.Repeat(" ", sniffLen)+"%PDF-1.3")))
	assert.Error(t, checkMagic(nil))
}
