package main

import (
	"context"
	"fmt"
	"time"

	"github.com/goinsane/xlog"

	"github.com/bizzlechizzle/aupat-sub000/catalog"
)

// batchTracker wraps a pipeline run: it opens the batch row, carries the
// running counters, writes one import_log row per file per stage and
// settles the terminal status. Every stage goes through run, so a stage
// failure always leaves an audited partial batch behind.
type batchTracker struct {
	cat *catalog.Catalog
	b   *catalog.ImportBatch
}

func newBatchTracker(cat *catalog.Catalog, locUUID, sourcePath, backupPath string) (*batchTracker, error) {
	b, err := cat.CreateBatch(locUUID, sourcePath, backupPath)
	if err != nil {
		return nil, fmt.Errorf("batch create error: %w", err)
	}
	return &batchTracker{cat: cat, b: b}, nil
}

// run executes one stage under the tracker. A returned error marks the
// batch partial; a panic is captured as failed with the panic text in
// error_log. Counters are flushed after the stage either way.
func (t *batchTracker) run(ctx context.Context, stage catalog.Stage, fn func(ctx context.Context) error) (err error) {
	xlog.V(1).Infof("stage %s started", stage)
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("stage %s panic: %v", stage, p)
			t.b.Status = catalog.BatchFailed
			t.b.ErrorLog = err.Error()
		}
		if err != nil && t.b.Status != catalog.BatchFailed {
			t.b.Status = catalog.BatchPartial
			t.b.ErrorLog = fmt.Sprintf("stage %s: %v", stage, err)
		}
		if saveErr := t.cat.SaveBatch(t.b); saveErr != nil {
			xlog.Warningf("batch save error: %v", saveErr)
		}
		if err != nil {
			xlog.Errorf("stage %s error: %v", stage, err)
		} else {
			xlog.V(1).Infof("stage %s completed", stage)
		}
	}()
	return fn(ctx)
}

// finish stamps the terminal status. Stages that failed have already
// downgraded the status; an untouched running batch completes.
func (t *batchTracker) finish() {
	now := time.Now().UTC()
	t.b.BatchEnd = &now
	if t.b.Status == catalog.BatchRunning {
		t.b.Status = catalog.BatchCompleted
	}
	if err := t.cat.SaveBatch(t.b); err != nil {
		xlog.Warningf("batch finish save error: %v", err)
	}
}

// logFile appends one (file, stage) observation to the import log.
func (t *batchTracker) logFile(entry catalog.ImportLog) {
	t.logFileTx(t.cat, entry)
}

// logFileTx writes the observation through tx so stages running inside
// a catalog transaction keep their log rows in the same commit. The
// single sqlite writer connection makes writing around an open
// transaction a deadlock, never do that.
func (t *batchTracker) logFileTx(tx *catalog.Catalog, entry catalog.ImportLog) {
	entry.BatchID = t.b.BatchID
	if err := tx.AppendLog(&entry); err != nil {
		xlog.Warningf("import log append error: %v", err)
	}
}

func (t *batchTracker) addTotal(n int64)     { t.b.TotalFiles += n }
func (t *batchTracker) addImported(n int64)  { t.b.FilesImported += n }
func (t *batchTracker) addSkipped(n int64)   { t.b.FilesSkipped += n }
func (t *batchTracker) addFailed(n int64)    { t.b.FilesFailed += n }
func (t *batchTracker) addDuplicate(n int64) { t.b.DuplicatesFound += n }
