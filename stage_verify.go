package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goinsane/xlog"

	"github.com/bizzlechizzle/aupat-sub000/catalog"
	"github.com/bizzlechizzle/aupat-sub000/content"
	"github.com/bizzlechizzle/aupat-sub000/layout"
)

var errVerificationFailed = errors.New("verification failed")

type verifyJob struct {
	mt  layout.MediaType
	rec catalog.MediaRecord
}

type verifyFailure struct {
	mt     layout.MediaType
	name   string
	reason string
}

// stageVerify re-hashes every record of a location and compares against
// the stored hash. Hashing fans out to a bounded worker pool; record
// updates and log rows stay on the single writer afterwards. Only a
// clean sweep may delete the location's staging directory; any doubt
// about archive integrity leaves staging untouched and fails the run.
// A record still pointing into staging is never verified: its staging
// copy is the only copy, so it fails as not archived.
func (c *command) stageVerify(ctx context.Context, t *batchTracker, loc *catalog.Location, dryRun bool) error {
	stagingDir := layout.StagingDir(c.Config.StagingRoot, loc.LocID)

	var jobs []verifyJob
	var failures []verifyFailure
	for _, mt := range []layout.MediaType{layout.MediaImage, layout.MediaVideo, layout.MediaDocument, layout.MediaMap} {
		recs, err := c.Catalog.ListMedia(mt, loc.LocID)
		if err != nil {
			return err
		}
		for _, rec := range recs {
			if strings.HasPrefix(rec.FilePath, stagingDir+string(os.PathSeparator)) {
				failures = append(failures, verifyFailure{mt: mt, name: rec.FileName, reason: "not archived"})
				continue
			}
			jobs = append(jobs, verifyJob{mt: mt, rec: rec})
		}
	}

	var (
		mu        sync.Mutex
		verified  []verifyJob
		progress  uint64
		total     = len(jobs) + len(failures)
		jobCh     = make(chan verifyJob, 64)
		wg        = new(sync.WaitGroup)
		poolCtx   context.Context
		poolAbort context.CancelFunc
	)
	poolCtx, poolAbort = context.WithCancel(ctx)
	defer poolAbort()

	workerCount := runtime.NumCPU()
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobCh {
				if poolCtx.Err() != nil {
					return
				}
				fail := verifyOne(poolCtx, job)
				n := atomic.AddUint64(&progress, 1)
				mu.Lock()
				if fail != nil {
					failures = append(failures, *fail)
				} else {
					verified = append(verified, job)
				}
				mu.Unlock()
				xlog.V(1).Infof("verify %d/%d: %q", n, total, job.rec.FileName)
			}
		}()
	}
	for _, job := range jobs {
		select {
		case <-ctx.Done():
			close(jobCh)
			wg.Wait()
			return ctx.Err()
		case jobCh <- job:
		}
	}
	close(jobCh)
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, job := range verified {
		if err := c.Catalog.MarkVerified(job.mt, job.rec.Hash, now); err != nil {
			return fmt.Errorf("verified flag update error: %w", err)
		}
		t.logFile(catalog.ImportLog{
			FilePath: job.rec.FilePath, FileName: job.rec.FileName, FileSHA256: job.rec.Hash,
			Stage: catalog.StageVerify, Status: catalog.LogSuccess,
			MediaType: string(job.mt), ArchivePath: job.rec.FilePath,
		})
	}
	for _, fail := range failures {
		t.logFile(catalog.ImportLog{
			FileName: fail.name,
			Stage:    catalog.StageVerify, Status: catalog.LogFailed,
			MediaType: string(fail.mt), ErrorMessage: fail.reason,
		})
	}

	if len(failures) > 0 {
		for _, fail := range failures {
			xlog.Errorf("verify failure: %s %q: %s", fail.mt, fail.name, fail.reason)
		}
		xlog.Errorf("%d of %d files failed verification for location %s; staging kept, fix and re-run",
			len(failures), total, loc.UUID8())
		t.addFailed(int64(len(failures)))
		return fmt.Errorf("%w: %d of %d files", errVerificationFailed, len(failures), total)
	}

	if dryRun {
		xlog.Infof("all %d files verified for location %s; would delete staging directory %q (dry run)",
			total, loc.UUID8(), stagingDir)
		return nil
	}
	if err := os.RemoveAll(stagingDir); err != nil {
		return fmt.Errorf("staging directory remove error: %w", err)
	}
	xlog.WithFieldKeyVals("verified", total).
		Infof("all %d files verified for location %s; staging directory %q removed",
			total, loc.UUID8(), stagingDir)
	return nil
}

// verifyOne checks a single record, returning nil when the file at its
// recorded path hashes to the stored value.
func verifyOne(ctx context.Context, job verifyJob) *verifyFailure {
	if _, err := os.Stat(job.rec.FilePath); err != nil {
		if os.IsNotExist(err) {
			return &verifyFailure{mt: job.mt, name: job.rec.FileName, reason: "not found"}
		}
		return &verifyFailure{mt: job.mt, name: job.rec.FileName, reason: err.Error()}
	}
	sum, _, err := content.HashFile(ctx, job.rec.FilePath)
	if err != nil {
		return &verifyFailure{mt: job.mt, name: job.rec.FileName, reason: err.Error()}
	}
	if sum != job.rec.Hash {
		return &verifyFailure{mt: job.mt, name: job.rec.FileName, reason: "hash mismatch"}
	}
	return nil
}
