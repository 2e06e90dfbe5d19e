package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goinsane/xlog"
	"github.com/rwcarlsen/goexif/exif"

	"github.com/bizzlechizzle/aupat-sub000/catalog"
	"github.com/bizzlechizzle/aupat-sub000/layout"
	"github.com/bizzlechizzle/aupat-sub000/util"
)

type stagingStats struct {
	total      int64
	imported   int64
	skipped    int64
	duplicates int64
	failed     int64
}

// stageStaging walks srcDir and pulls every regular file into the
// per-location staging area under its canonical content-addressed name,
// recording one media row per accepted file. All inserts ride one
// transaction: a crash mid-scan leaves no partial rows. Per-file read
// errors are logged and counted, they never abort the scan.
func (c *command) stageStaging(ctx context.Context, t *batchTracker, loc *catalog.Location, subID, srcDir string) error {
	stagingDir := layout.StagingDir(c.Config.StagingRoot, loc.LocID)
	tmpDir := filepath.Join(c.Config.StagingRoot, "tmp")
	for _, dir := range []string{stagingDir, tmpDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("staging directory create error: %w", err)
		}
	}

	srcFileCh := make(chan string, 64)
	scanErrCh := make(chan error, 1)
	scanCtx, scanCancel := context.WithCancel(ctx)
	defer scanCancel()
	go func() {
		scanErrCh <- util.FileScan(scanCtx, srcDir, srcFileCh)
		close(srcFileCh)
	}()

	stats := &stagingStats{}
	err := c.Catalog.Transaction(func(tx *catalog.Catalog) error {
		for srcFile := range srcFileCh {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			stats.total++
			if err := c.stageOneFile(ctx, tx, t, loc, subID, srcFile, stagingDir, tmpDir, stats); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := <-scanErrCh; err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("source scan error: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	t.addTotal(stats.total)
	t.addImported(stats.imported)
	t.addSkipped(stats.skipped)
	t.addFailed(stats.failed)
	t.addDuplicate(stats.duplicates)
	xlog.WithFieldKeyVals(
		"total", stats.total,
		"imported", stats.imported,
		"skipped", stats.skipped,
		"duplicates", stats.duplicates,
		"failed", stats.failed,
	).Infof("%d of %d files staged from %q", stats.imported, stats.total, srcDir)
	return nil
}

// stageOneFile handles a single source file. Recoverable per-file
// trouble is absorbed into the stats and the import log; only storage
// errors and cancellation propagate and abort the stage.
func (c *command) stageOneFile(ctx context.Context, tx *catalog.Catalog, t *batchTracker, loc *catalog.Location, subID, srcFile, stagingDir, tmpDir string, stats *stagingStats) error {
	ext := layout.NormalizeExt(filepath.Ext(srcFile))
	mt := layout.ClassifyExt(ext)
	origName := filepath.Base(srcFile)

	if mt == layout.MediaOther {
		xlog.V(2).Warningf("source file %q has non-archivable extension, skipping", srcFile)
		stats.skipped++
		t.logFileTx(tx, catalog.ImportLog{
			FilePath: srcFile, FileName: origName,
			Stage: catalog.StageStaging, Status: catalog.LogSkipped,
			MediaType: string(mt),
		})
		return nil
	}

	fail := func(err error) {
		xlog.V(1).Warningf("source file %q staging error: %v", srcFile, err)
		stats.failed++
		t.logFileTx(tx, catalog.ImportLog{
			FilePath: srcFile, FileName: origName,
			Stage: catalog.StageStaging, Status: catalog.LogFailed,
			MediaType: string(mt), ErrorMessage: err.Error(),
		})
	}

	srcHandle, err := os.OpenFile(srcFile, os.O_RDONLY, 0)
	if err != nil {
		fail(fmt.Errorf("source file open error: %w", err))
		return nil
	}
	defer srcHandle.Close()

	tmpHandle, err := os.CreateTemp(tmpDir, origName+"-*")
	if err != nil {
		return fmt.Errorf("temp file create error: %w", err)
	}
	tmpFile := tmpHandle.Name()
	staged := false
	defer func() {
		tmpHandle.Close()
		if !staged {
			if err := os.Remove(tmpFile); err != nil && !os.IsNotExist(err) {
				xlog.Warningf("temp file remove error: %v", err)
			}
		}
	}()

	sum := sha256.New()
	size, err := util.Copy(ctx, tmpHandle, srcHandle, nil, sum)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		fail(fmt.Errorf("staging copy error: %w", err))
		return nil
	}
	if err := tmpHandle.Close(); err != nil {
		fail(fmt.Errorf("temp file close error: %w", err))
		return nil
	}
	hash := hex.EncodeToString(sum.Sum(nil))

	logDup := func() {
		xlog.V(1).Infof("source file %q content already catalogued, skipping", srcFile)
		stats.duplicates++
		t.logFileTx(tx, catalog.ImportLog{
			FilePath: srcFile, FileName: origName, FileSHA256: hash,
			Stage: catalog.StageStaging, Status: catalog.LogDuplicate,
			MediaType: string(mt),
		})
	}

	exists, err := tx.MediaExists(mt, hash)
	if err != nil {
		return fmt.Errorf("media lookup error: %w", err)
	}
	if exists {
		logDup()
		return nil
	}

	name := layout.Filename(loc.LocID, subID, hash, ext)
	dstFile := filepath.Join(stagingDir, name)
	// content-addressed name: overwriting a leftover from an earlier
	// crashed run replaces identical bytes
	if err := os.Rename(tmpFile, dstFile); err != nil {
		return fmt.Errorf("staging file rename error: %w", err)
	}
	staged = true

	rec := catalog.MediaRecord{
		Hash:       hash,
		LocID:      loc.LocID,
		SubID:      subID,
		FileName:   name,
		FilePath:   dstFile,
		OrigName:   origName,
		OrigPath:   srcFile,
		Ext:        ext,
		Size:       size,
		ImportedAt: time.Now().UTC(),
	}
	if mt == layout.MediaImage {
		rec.Width, rec.Height = imageDimensions(dstFile)
	}

	if err := tx.NewMedia(mt, rec); err != nil {
		if errors.Is(err, catalog.ErrMediaAlreadyExists) {
			// same bytes seen twice within this scan
			logDup()
			return nil
		}
		return fmt.Errorf("media record insert error: %w", err)
	}

	stats.imported++
	xlog.V(1).Infof("source file %q staged as %q", srcFile, name)
	t.logFileTx(tx, catalog.ImportLog{
		FilePath: srcFile, FileName: name, FileSHA256: hash,
		Stage: catalog.StageStaging, Status: catalog.LogSuccess,
		MediaType: string(mt), StagingPath: dstFile,
	})
	return nil
}

// imageDimensions reads pixel dimensions from EXIF where present.
// Plenty of images carry none; zero values mean unknown.
func imageDimensions(path string) (w, h int) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0
	}
	defer f.Close()
	x, err := exif.Decode(f)
	if err != nil {
		return 0, 0
	}
	if tag, err := x.Get(exif.PixelXDimension); err == nil {
		w, _ = tag.Int(0)
	}
	if tag, err := x.Get(exif.PixelYDimension); err == nil {
		h, _ = tag.Int(0)
	}
	return w, h
}
