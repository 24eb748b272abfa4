// Package ledger records which documents have already been analyzed.
package ledger

import (
	"bufio"
	"encoding/csv"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Ledger is a persistent set of processed document identifiers. The set only
// grows: nothing removes an identifier once marked.
type Ledger interface {
	Contains(id string) bool
	// Mark adds id and reports whether it was newly added.
	Mark(id string) bool
	IDs() []string
	Len() int
	Load() error
	Flush() error
}

// FileLedger stores one identifier per CSV row. It is safe for concurrent
// use within a process but holds no lock across processes; concurrent runs
// against the same file must be serialized by the caller.
type FileLedger struct {
	path string

	mu  sync.RWMutex
	ids map[string]struct{}
}

var _ Ledger = (*FileLedger)(nil)

// NewFileLedger returns an empty ledger bound to path. Call Load to read it.
func NewFileLedger(path string) *FileLedger {
	return &FileLedger{path: path, ids: make(map[string]struct{})}
}

// Open creates a FileLedger and loads its contents.
func Open(path string) (*FileLedger, error) {
	l := NewFileLedger(path)
	if err := l.Load(); err != nil {
		return nil, err
	}
	return l, nil
}

// Path returns the backing file.
func (l *FileLedger) Path() string { return l.path }

// Load replaces the in-memory set with the file contents. A missing file is
// an empty ledger. Rows that cannot be parsed are logged and skipped.
func (l *FileLedger) Load() error {
	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		l.mu.Lock()
		l.ids = make(map[string]struct{})
		l.mu.Unlock()
		return nil
	}
	if err != nil {
		return eris.Wrapf(err, "ledger: open %s", l.path)
	}
	defer f.Close() //nolint:errcheck

	ids := make(map[string]struct{})
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		id, ok := parseRow(line)
		if !ok {
			zap.L().Warn("ledger: skipping malformed row",
				zap.String("path", l.path),
				zap.Int("line", lineNo),
			)
			continue
		}
		ids[id] = struct{}{}
	}
	if err := sc.Err(); err != nil {
		return eris.Wrapf(err, "ledger: read %s", l.path)
	}

	l.mu.Lock()
	l.ids = ids
	l.mu.Unlock()
	return nil
}

func parseRow(line string) (string, bool) {
	r := csv.NewReader(strings.NewReader(line))
	r.FieldsPerRecord = -1
	rec, err := r.Read()
	if err != nil || len(rec) == 0 {
		return "", false
	}
	id := strings.TrimSpace(rec[0])
	if id == "" {
		return "", false
	}
	return id, true
}

// Contains reports whether id has been marked. Surrounding whitespace is
// ignored, as in Mark and Load.
func (l *FileLedger) Contains(id string) bool {
	id = strings.TrimSpace(id)
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.ids[id]
	return ok
}

// Mark adds id to the set. Empty identifiers and identifiers spanning lines
// are refused since they cannot round-trip through the file.
func (l *FileLedger) Mark(id string) bool {
	id = strings.TrimSpace(id)
	if id == "" || strings.ContainsAny(id, "\r\n") {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.ids[id]; ok {
		return false
	}
	l.ids[id] = struct{}{}
	return true
}

// IDs returns the identifiers in sorted order.
func (l *FileLedger) IDs() []string {
	l.mu.RLock()
	out := make([]string, 0, len(l.ids))
	for id := range l.ids {
		out = append(out, id)
	}
	l.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Len returns the number of identifiers.
func (l *FileLedger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.ids)
}

// Flush writes the set as sorted rows. The file is replaced atomically, so
// flushing an unchanged set leaves the content byte-identical.
func (l *FileLedger) Flush() error {
	ids := l.IDs()

	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "ledger: create dir %s", dir)
	}
	tmp, err := os.CreateTemp(dir, ".ledger-*.tmp")
	if err != nil {
		return eris.Wrap(err, "ledger: create temp file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrap(err, "ledger: chmod temp file")
	}

	w := csv.NewWriter(tmp)
	for _, id := range ids {
		if err := w.Write([]string{id}); err != nil {
			tmp.Close() //nolint:errcheck
			return eris.Wrap(err, "ledger: write row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrap(err, "ledger: flush rows")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrap(err, "ledger: sync")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "ledger: close temp file")
	}
	if err := os.Rename(tmpName, l.path); err != nil {
		return eris.Wrapf(err, "ledger: replace %s", l.path)
	}
	return nil
}
