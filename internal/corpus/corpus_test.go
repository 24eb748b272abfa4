package corpus

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/report-kpi/internal/ledger"
)

// fileExtractor returns the file content so tests can see which documents
// were read.
type fileExtractor struct{ calls int }

func (f *fileExtractor) Extract(_ context.Context, path string) string {
	f.calls++
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return string(data)
}

func writeDocs(t *testing.T, root, entity string, docs map[string]string) {
	t.Helper()
	dir := filepath.Join(root, entity)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for name, body := range docs {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
}

func TestCombine_TwoDocumentsThenNothing(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeDocs(t, root, "X", map[string]string{"A.pdf": "alpha text", "B.pdf": "beta text"})
	l := ledger.NewFileLedger(filepath.Join(t.TempDir(), "ledger.csv"))
	ex := &fileExtractor{}
	c := NewCombiner(root, ex, l)

	refs, err := ScanDir(root, "X")
	require.NoError(t, err)

	first, err := c.Combine(context.Background(), "X", refs)
	require.NoError(t, err)
	assert.Equal(t, []string{"A.pdf", "B.pdf"}, first.NewlyProcessed)
	assert.Contains(t, first.Text, "alpha text")
	assert.Contains(t, first.Text, "beta text")
	assert.Equal(t,
		"\n--- Content from A.pdf ---\nalpha text\n--- Content from B.pdf ---\nbeta text",
		first.Text)
	assert.False(t, first.Empty())
	assert.Equal(t, 0, l.Len(), "combine must not touch the ledger")

	for _, id := range first.NewlyProcessed {
		l.Mark(id)
	}
	require.NoError(t, l.Flush())

	second, err := c.Combine(context.Background(), "X", refs)
	require.NoError(t, err)
	assert.Empty(t, second.NewlyProcessed)
	assert.Equal(t, "", second.Text)
	assert.Equal(t, []string{"A.pdf", "B.pdf"}, second.AlreadyProcessed)
	assert.True(t, second.Empty())
	assert.Equal(t, 2, ex.calls)
}

func TestCombine_EmptyExtractionStillCounts(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeDocs(t, root, "X", map[string]string{"scan.pdf": ""})
	c := NewCombiner(root, &fileExtractor{}, ledger.NewFileLedger(filepath.Join(t.TempDir(), "l.csv")))

	refs, err := ScanDir(root, "X")
	require.NoError(t, err)
	got, err := c.Combine(context.Background(), "X", refs)
	require.NoError(t, err)
	assert.Equal(t, []string{"scan.pdf"}, got.NewlyProcessed)
	assert.True(t, got.Empty())
	assert.True(t, strings.HasPrefix(got.Text, SectionHeader("scan.pdf")))
}

func TestCombine_CancelledContext(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeDocs(t, root, "X", map[string]string{"A.pdf": "a"})
	c := NewCombiner(root, &fileExtractor{}, ledger.NewFileLedger(filepath.Join(t.TempDir(), "l.csv")))
	refs, _ := ScanDir(root, "X")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Combine(ctx, "X", refs)
	assert.Error(t, err)
}

func TestNext_FirstUnread(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeDocs(t, root, "X", map[string]string{"A.pdf": "a", "B.pdf": "b"})
	l := ledger.NewFileLedger(filepath.Join(t.TempDir(), "l.csv"))
	l.Mark("A.pdf")
	c := NewCombiner(root, &fileExtractor{}, l)
	refs, _ := ScanDir(root, "X")

	got, err := c.Next(context.Background(), "X", refs)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []string{"B.pdf"}, got.NewlyProcessed)

	l.Mark("B.pdf")
	got, err = c.Next(context.Background(), "X", refs)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestScanDir(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeDocs(t, root, "X", map[string]string{"b.PDF": "", "a.pdf": "", "notes.txt": ""})
	require.NoError(t, os.MkdirAll(filepath.Join(root, "X", "sub.pdf"), 0o755))

	refs, err := ScanDir(root, "X")
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, "a.pdf", refs[0].LocalIdentifier)
	assert.Equal(t, "b.PDF", refs[1].LocalIdentifier)
	assert.Equal(t, "X", refs[0].Entity)

	missing, err := ScanDir(root, "nobody")
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestDocumentsAndEntities(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeDocs(t, root, "kitron", map[string]string{"q1.pdf": "", "q2.pdf": ""})
	writeDocs(t, root, "elab", map[string]string{"q4.pdf": ""})
	l := ledger.NewFileLedger(filepath.Join(t.TempDir(), "l.csv"))
	l.Mark("q1.pdf")

	docs, err := Documents(root, "kitron", l)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.True(t, docs[0].Processed)
	assert.False(t, docs[1].Processed)
	assert.Equal(t, filepath.Join(root, "kitron", "q2.pdf"), docs[1].FullPath)

	names, err := Entities(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"elab", "kitron"}, names)
}
