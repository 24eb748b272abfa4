// Package pipeline runs the analysis of one entity: combine its new
// documents, ask the oracle for KPIs, reconcile with what is already known
// for the period, persist, then commit the ledger.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/report-kpi/internal/config"
	"github.com/sells-group/report-kpi/internal/corpus"
	"github.com/sells-group/report-kpi/internal/kpi"
	"github.com/sells-group/report-kpi/internal/ledger"
	"github.com/sells-group/report-kpi/internal/model"
	"github.com/sells-group/report-kpi/internal/oracle"
	"github.com/sells-group/report-kpi/internal/store"
)

// Pipeline analyzes entities one at a time. It is not safe for concurrent
// use: the ledger it commits to is shared by every entity.
type Pipeline struct {
	root      string
	outputDir string
	combiner  *corpus.Combiner
	oracle    oracle.Oracle
	store     store.Store
	ledger    ledger.Ledger
}

// New creates a Pipeline. A nil store disables persistence; prior records
// are then read back from the output directory.
func New(cfg *config.Config, ex corpus.TextExtractor, o oracle.Oracle, st store.Store, l ledger.Ledger) *Pipeline {
	if st == nil {
		st = store.Nop{}
	}
	return &Pipeline{
		root:      cfg.Paths.PDFRoot,
		outputDir: cfg.Paths.OutputDir,
		combiner:  corpus.NewCombiner(cfg.Paths.PDFRoot, ex, l),
		oracle:    o,
		store:     st,
		ledger:    l,
	}
}

// Result describes one entity's analysis.
type Result struct {
	Entity string
	Key    model.RecordKey
	// Record is the consolidated record that was saved.
	Record kpi.Record
	// Extracted is what this run's documents produced on their own.
	Extracted kpi.Record
	Documents []string
	Skipped   []string
	// Reconciled is set when a prior record for Key was merged in.
	Reconciled   bool
	OracleCalled bool
	OutputPath   string
}

// Analyzed reports whether any new document was processed.
func (r *Result) Analyzed() bool {
	return len(r.Documents) > 0
}

// RunEntity analyzes the entity's unprocessed documents. fallback supplies
// the period when the extracted record carries none.
//
// The ledger is only updated after the record is stored, so a failed oracle
// call or write leaves the documents to be retried on the next run. When the
// ledger flush itself fails, the retry finds the documents in the extraction
// log and keeps the stored record as it is.
func (p *Pipeline) RunEntity(ctx context.Context, entity string, fallback model.Period) (*Result, error) {
	log := zap.L().With(zap.String("entity", entity))

	refs, err := corpus.ScanDir(p.root, entity)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: scan documents")
	}
	c, err := p.combiner.Combine(ctx, entity, refs)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: combine")
	}

	result := &Result{
		Entity:    entity,
		Documents: c.NewlyProcessed,
		Skipped:   c.AlreadyProcessed,
	}
	if !result.Analyzed() {
		log.Info("pipeline: no new documents", zap.Int("skipped", len(result.Skipped)))
		return result, nil
	}

	extracted, err := p.extract(ctx, c, result)
	if err != nil {
		return nil, err
	}

	period, ok := extracted.Period()
	if !ok {
		period = fallback
		log.Info("pipeline: no period in record, using fallback", zap.Stringer("period", period))
	}
	extracted = extracted.WithIdentity(entity, period)
	result.Extracted = extracted
	result.Key = model.RecordKey{Company: entity, Year: period.Year, Quarter: period.Quarter}
	result.OutputPath = p.OutputPath(result.Key)

	prior, found, err := p.prior(ctx, result.Key)
	if err != nil {
		return nil, err
	}
	consolidated := extracted
	switch {
	case found && p.applied(ctx, result.Key, result.Documents):
		// A previous run stored these documents but failed to commit the
		// ledger. Merging again would count them twice.
		consolidated = prior
		log.Warn("pipeline: documents already in stored record, committing ledger only",
			zap.Stringer("key", result.Key),
			zap.Strings("documents", result.Documents),
		)
	default:
		if found {
			consolidated = kpi.Reconcile(prior, extracted)
			result.Reconciled = true
			log.Info("pipeline: reconciled with prior record", zap.Stringer("key", result.Key))
		}
		if err := p.store.SaveRecord(ctx, result.Key, consolidated); err != nil {
			return nil, eris.Wrapf(err, "pipeline: save record %s", result.Key)
		}
		if err := p.store.LogExtraction(ctx, &store.Extraction{
			ID:        uuid.New(),
			Key:       result.Key,
			Documents: result.Documents,
			Record:    extracted,
		}); err != nil {
			log.Warn("pipeline: failed to log extraction", zap.Error(err))
		}
	}
	result.Record = consolidated

	data, err := consolidated.Encode()
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: encode record")
	}
	if err := writeFileAtomic(result.OutputPath, data); err != nil {
		return nil, err
	}

	for _, id := range result.Documents {
		p.ledger.Mark(id)
	}
	if err := p.ledger.Flush(); err != nil {
		return result, eris.Wrap(err, "pipeline: flush ledger")
	}

	log.Info("pipeline: entity analyzed",
		zap.Stringer("key", result.Key),
		zap.Int("documents", len(result.Documents)),
		zap.String("output", result.OutputPath),
	)
	return result, nil
}

// extract asks the oracle about the corpus. A corpus with no readable text
// skips the oracle and yields the all-null record, as does unparsable output.
func (p *Pipeline) extract(ctx context.Context, c *corpus.Corpus, result *Result) (kpi.Record, error) {
	log := zap.L().With(zap.String("entity", c.Entity))

	if c.Empty() {
		log.Warn("pipeline: no readable text in new documents", zap.Strings("documents", c.NewlyProcessed))
		return kpi.NullRecord(), nil
	}

	raw, err := oracle.Scope(p.oracle, c.Entity).Run(ctx, c.Text)
	result.OracleCalled = true
	if err != nil {
		return kpi.Record{}, eris.Wrapf(err, "pipeline: oracle for %s", c.Entity)
	}

	rec, err := kpi.Parse(raw)
	if err != nil {
		log.Warn("pipeline: unparsable oracle output", zap.Error(err), zap.Int("chars", len(raw)))
		return kpi.NullRecord(), nil
	}
	return rec, nil
}

// applied reports whether the extraction log already holds docs for key.
// Without a store the log is empty, so a failed ledger flush there means
// the documents are merged into the output file again on the next run.
func (p *Pipeline) applied(ctx context.Context, key model.RecordKey, docs []string) bool {
	exts, err := p.store.ListExtractions(ctx, key)
	if err != nil {
		zap.L().Warn("pipeline: failed to list extractions", zap.Stringer("key", key), zap.Error(err))
		return false
	}
	want := slices.Sorted(slices.Values(docs))
	for _, e := range exts {
		if slices.Equal(want, slices.Sorted(slices.Values(e.Documents))) {
			return true
		}
	}
	return false
}

// prior returns the record already known for key, from the store first and
// the output file second.
func (p *Pipeline) prior(ctx context.Context, key model.RecordKey) (kpi.Record, bool, error) {
	rec, found, err := p.store.GetRecord(ctx, key)
	if err != nil {
		return kpi.Record{}, false, eris.Wrapf(err, "pipeline: load record %s", key)
	}
	if found {
		return rec, true, nil
	}
	return ReadRecordFile(p.OutputPath(key))
}

// OutputPath is where the consolidated record for key is written.
func (p *Pipeline) OutputPath(key model.RecordKey) string {
	return filepath.Join(p.outputDir, fmt.Sprintf("%s_%dQ%d.json", key.Company, key.Year, key.Quarter))
}

// ReadRecordFile loads a KPI record written earlier. A missing file is not
// an error.
func ReadRecordFile(path string) (kpi.Record, bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return kpi.Record{}, false, nil
	}
	if err != nil {
		return kpi.Record{}, false, eris.Wrapf(err, "pipeline: read %s", path)
	}
	var rec kpi.Record
	if err := rec.UnmarshalJSON(data); err != nil {
		return kpi.Record{}, false, eris.Wrapf(err, "pipeline: decode %s", path)
	}
	return rec, true, nil
}

// RunAll analyzes entities in order. A failing entity is logged and the
// rest still run; the failures are returned together.
func (p *Pipeline) RunAll(ctx context.Context, entities []string, fallback model.Period) ([]*Result, error) {
	var (
		results []*Result
		errs    []error
	)
	for _, entity := range entities {
		if err := ctx.Err(); err != nil {
			return results, eris.Wrap(err, "pipeline: run all")
		}
		res, err := p.RunEntity(ctx, entity, fallback)
		if err != nil {
			zap.L().Error("pipeline: entity failed", zap.String("entity", entity), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "pipeline: create %s", dir)
	}
	tmp, err := os.CreateTemp(dir, ".record-*.tmp")
	if err != nil {
		return eris.Wrap(err, "pipeline: create temp file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return eris.Wrap(err, "pipeline: chmod temp file")
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return eris.Wrapf(err, "pipeline: write %s", path)
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrapf(err, "pipeline: close %s", path)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return eris.Wrapf(err, "pipeline: publish %s", path)
	}
	return nil
}
