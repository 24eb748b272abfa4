// Package corpus gathers the text of an entity's unanalyzed documents into
// one body for KPI extraction.
package corpus

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/report-kpi/internal/model"
)

// TextExtractor returns the text of the document at path, "" when nothing
// can be read.
type TextExtractor interface {
	Extract(ctx context.Context, path string) string
}

// Seen answers whether a document identifier was already analyzed.
type Seen interface {
	Contains(id string) bool
}

// Section is the extracted text of one document.
type Section struct {
	ID   string
	Text string
}

// Corpus is the combined text of one entity's new documents. It lives only
// for the duration of one analysis.
type Corpus struct {
	Entity           string
	Text             string
	Sections         []Section
	NewlyProcessed   []string
	AlreadyProcessed []string
}

// Empty reports whether no new document contributed any text.
func (c *Corpus) Empty() bool {
	for _, s := range c.Sections {
		if strings.TrimSpace(s.Text) != "" {
			return false
		}
	}
	return true
}

// SectionHeader introduces each document's text in the combined body.
func SectionHeader(id string) string {
	return "\n--- Content from " + id + " ---\n"
}

// Combiner builds corpora from documents under Root/<entity>/.
type Combiner struct {
	Root      string
	Extractor TextExtractor
	Seen      Seen
}

// NewCombiner returns a Combiner. seen is only read, never updated; the
// caller marks documents once their analysis has been committed.
func NewCombiner(root string, ex TextExtractor, seen Seen) *Combiner {
	return &Combiner{Root: root, Extractor: ex, Seen: seen}
}

// Combine extracts every candidate not yet in the ledger, in the given
// order, and concatenates the results behind per-document headers.
func (c *Combiner) Combine(ctx context.Context, entity string, refs []model.DocumentRef) (*Corpus, error) {
	out := &Corpus{Entity: entity}
	var sb strings.Builder

	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "corpus: combine")
		}
		id := ref.LocalIdentifier
		if c.Seen.Contains(id) {
			out.AlreadyProcessed = append(out.AlreadyProcessed, id)
			continue
		}

		text := c.Extractor.Extract(ctx, filepath.Join(c.Root, entity, id))
		sb.WriteString(SectionHeader(id))
		sb.WriteString(text)
		out.Sections = append(out.Sections, Section{ID: id, Text: text})
		out.NewlyProcessed = append(out.NewlyProcessed, id)

		zap.L().Info("corpus: document extracted",
			zap.String("entity", entity),
			zap.String("document", id),
			zap.Int("chars", len(text)),
		)
	}

	if len(out.AlreadyProcessed) > 0 {
		zap.L().Info("corpus: skipped documents already processed",
			zap.String("entity", entity),
			zap.Strings("documents", out.AlreadyProcessed),
		)
	}
	out.Text = sb.String()
	return out, nil
}

// Next extracts only the first unprocessed candidate. It returns nil when
// every candidate has been processed.
func (c *Combiner) Next(ctx context.Context, entity string, refs []model.DocumentRef) (*Corpus, error) {
	for _, ref := range refs {
		if !c.Seen.Contains(ref.LocalIdentifier) {
			return c.Combine(ctx, entity, []model.DocumentRef{ref})
		}
	}
	zap.L().Info("corpus: no new documents", zap.String("entity", entity))
	return nil, nil
}

// ScanDir lists the PDFs in root/<entity> in name order. A missing
// directory has no documents.
func ScanDir(root, entity string) ([]model.DocumentRef, error) {
	dir := filepath.Join(root, entity)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "corpus: read dir %s", dir)
	}

	var refs []model.DocumentRef
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
			continue
		}
		refs = append(refs, model.DocumentRef{
			SourceURL:       filepath.Join(dir, e.Name()),
			LocalIdentifier: e.Name(),
			Entity:          entity,
		})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].LocalIdentifier < refs[j].LocalIdentifier })
	return refs, nil
}

// Document is a PDF on disk with its analysis state.
type Document struct {
	Filename  string `json:"filename"`
	FullPath  string `json:"full_path"`
	Processed bool   `json:"processed"`
}

// Documents lists the entity's PDFs and whether each has been analyzed.
func Documents(root, entity string, seen Seen) ([]Document, error) {
	refs, err := ScanDir(root, entity)
	if err != nil {
		return nil, err
	}
	docs := make([]Document, 0, len(refs))
	for _, r := range refs {
		docs = append(docs, Document{
			Filename:  r.LocalIdentifier,
			FullPath:  r.SourceURL,
			Processed: seen.Contains(r.LocalIdentifier),
		})
	}
	return docs, nil
}

// Entities lists the entity directories under root.
func Entities(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "corpus: read dir %s", root)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
