// Package acquire downloads report documents to the entity directories,
// fetching each document at most once.
package acquire

import (
	"bufio"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/report-kpi/internal/fetcher"
	"github.com/sells-group/report-kpi/internal/model"
)

// Acquirer materializes DocumentRefs under Root/<entity>/<identifier>.
// A document already on disk is never fetched again or overwritten. Whether
// it has been analyzed is tracked separately by the ledger.
type Acquirer struct {
	Root    string
	Fetcher fetcher.Fetcher
	// Timeout bounds one fetch including the body transfer. Zero means none.
	Timeout time.Duration
}

// New returns an Acquirer writing under root.
func New(root string, f fetcher.Fetcher, timeout time.Duration) *Acquirer {
	return &Acquirer{Root: root, Fetcher: f, Timeout: timeout}
}

// Target returns the destination path for ref.
func (a *Acquirer) Target(ref model.DocumentRef) string {
	return filepath.Join(a.Root, ref.Entity, ref.LocalIdentifier)
}

// Acquire ensures ref is on disk. Failures are reported in the result,
// never as a Go error, so one bad link does not stop a batch.
func (a *Acquirer) Acquire(ctx context.Context, ref model.DocumentRef) model.AcquireResult {
	log := zap.L().With(
		zap.String("entity", ref.Entity),
		zap.String("document", ref.LocalIdentifier),
		zap.String("url", ref.SourceURL),
	)
	res := model.AcquireResult{Ref: ref}

	if ref.Entity == "" || ref.LocalIdentifier == "" || filepath.Base(ref.LocalIdentifier) != ref.LocalIdentifier {
		res.Status = model.AcquireFailed
		res.Reason = "invalid document reference"
		log.Warn("acquire: failed", zap.String("reason", res.Reason))
		return res
	}

	dst := a.Target(ref)
	res.Path = dst
	if info, err := os.Stat(dst); err == nil && !info.IsDir() {
		res.Status = model.AcquireAlreadyPresent
		res.Bytes = info.Size()
		log.Info("acquire: already present")
		return res
	}

	n, err := a.download(ctx, ref.SourceURL, dst)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			res.Status = model.AcquireAlreadyPresent
			log.Info("acquire: already present")
			return res
		}
		res.Status = model.AcquireFailed
		res.Reason = err.Error()
		log.Warn("acquire: failed", zap.String("reason", res.Reason))
		return res
	}

	res.Status = model.AcquireDownloaded
	res.Bytes = n
	log.Info("acquire: downloaded", zap.Int64("bytes", n))
	return res
}

// AcquireAll processes refs in order and returns one result per ref.
func (a *Acquirer) AcquireAll(ctx context.Context, refs []model.DocumentRef) []model.AcquireResult {
	out := make([]model.AcquireResult, 0, len(refs))
	for _, ref := range refs {
		if ctx.Err() != nil {
			out = append(out, model.AcquireResult{
				Ref:    ref,
				Status: model.AcquireFailed,
				Reason: ctx.Err().Error(),
			})
			continue
		}
		out = append(out, a.Acquire(ctx, ref))
	}
	return out
}

func (a *Acquirer) download(ctx context.Context, src, dst string) (int64, error) {
	if a.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.Timeout)
		defer cancel()
	}

	resp, err := a.Fetcher.Fetch(ctx, src)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close() //nolint:errcheck

	if err := checkContentType(resp.ContentType); err != nil {
		return 0, err
	}

	br := bufio.NewReaderSize(resp.Body, sniffLen)
	head, err := br.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return 0, eris.Wrap(err, "acquire: read body")
	}
	if err := checkMagic(head); err != nil {
		return 0, err
	}

	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, eris.Wrapf(err, "acquire: create dir %s", dir)
	}
	tmp, err := os.CreateTemp(dir, ".acquire-*.part")
	if err != nil {
		return 0, eris.Wrap(err, "acquire: create temp file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck

	n, err := io.Copy(tmp, br)
	if err != nil {
		_ = tmp.Close()
		return n, eris.Wrap(err, "acquire: write body")
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return n, eris.Wrap(err, "acquire: chmod")
	}
	if err := tmp.Close(); err != nil {
		return n, eris.Wrap(err, "acquire: close temp file")
	}
	if err := publish(tmpName, dst); err != nil {
		return n, err
	}
	return n, nil
}

// publish moves tmp to dst without replacing an existing dst. A hard link
// fails atomically when dst exists; filesystems without links fall back to
// a check followed by rename.
func publish(tmp, dst string) error {
	err := os.Link(tmp, dst)
	if err == nil {
		return nil
	}
	if errors.Is(err, fs.ErrExist) {
		return err
	}
	if _, statErr := os.Stat(dst); statErr == nil {
		return fs.ErrExist
	}
	if err := os.Rename(tmp, dst); err != nil {
		return eris.Wrapf(err, "acquire: move into place %s", dst)
	}
	return nil
}
