package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/goinsane/xlog"

	"github.com/bizzlechizzle/aupat-sub000/catalog"
	"github.com/bizzlechizzle/aupat-sub000/layout"
	"github.com/bizzlechizzle/aupat-sub000/util"
)

var errNotOrganized = errors.New("record has no hardware category yet")

// stageIngest relocates every staged record into its archive folder
// under the regenerated canonical filename. Staging and archive on the
// same device get a hardlink (archived content is immutable, so shared
// inodes are safe); across devices the bytes are copied with the source
// mtime preserved. The staging copy is left in place: only a successful
// verify may discard it.
func (c *command) stageIngest(ctx context.Context, t *batchTracker, loc *catalog.Location) error {
	stagingDir := layout.StagingDir(c.Config.StagingRoot, loc.LocID)
	base := filepath.Join(c.Config.ArchiveRoot, loc.Dir())

	var moved, skipped, failed int64
	for _, mt := range []layout.MediaType{layout.MediaImage, layout.MediaVideo, layout.MediaDocument} {
		recs, err := c.Catalog.ListStaged(mt, loc.LocID, stagingDir)
		if err != nil {
			return err
		}
		for i, rec := range recs {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			dst, err := c.ingestOne(mt, base, rec)
			entry := catalog.ImportLog{
				FilePath: rec.FilePath, FileName: rec.FileName, FileSHA256: rec.Hash,
				Stage: catalog.StageIngest, MediaType: string(mt),
				HardwareCategory: string(rec.Hardware()),
				StagingPath:      rec.FilePath, ArchivePath: dst,
			}
			switch {
			case errors.Is(err, errNotOrganized):
				xlog.V(1).Warningf("file %q not organized yet, leaving in staging", rec.FileName)
				skipped++
				entry.Status = catalog.LogSkipped
				entry.ErrorMessage = err.Error()
			case err != nil:
				xlog.V(1).Warningf("file %q ingest error: %v", rec.FileName, err)
				failed++
				entry.Status = catalog.LogFailed
				entry.ErrorMessage = err.Error()
			default:
				moved++
				entry.Status = catalog.LogSuccess
				xlog.V(1).Infof("ingest %s %d/%d: %q -> %q", mt, i+1, len(recs), rec.FileName, dst)
			}
			t.logFile(entry)
		}
	}

	t.addFailed(failed)
	xlog.WithFieldKeyVals("moved", moved, "skipped", skipped, "failed", failed).
		Infof("%d staged files archived for location %s", moved, loc.UUID8())
	return nil
}

// ingestOne places one record and updates its row. The filename is
// regenerated from the row's own fields and must equal what staging
// produced; both sides derive it from the same hash and ids.
func (c *command) ingestOne(mt layout.MediaType, base string, rec catalog.MediaRecord) (string, error) {
	hw := rec.Hardware()
	if hw == "" {
		return "", errNotOrganized
	}

	name := layout.Filename(rec.LocID, rec.SubID, rec.Hash, rec.Ext)
	dstDir := layout.MediaDir(base, mt, hw)
	if err := os.MkdirAll(dstDir, 0755); err != nil {
		return "", fmt.Errorf("archive directory create error: %w", err)
	}
	dst := filepath.Join(dstDir, name)

	if err := placeFile(rec.FilePath, dst); err != nil {
		return dst, err
	}

	if err := c.Catalog.UpdateMediaPath(mt, rec.Hash, dst, name); err != nil {
		return dst, fmt.Errorf("media path update error: %w", err)
	}
	return dst, nil
}

// placeFile puts the bytes at src into dst: hardlink on the same
// device, mtime-preserving copy otherwise. An existing dst is a
// completed placement from an earlier run; filenames are content-
// addressed, so check-then-act re-entry is safe.
func placeFile(src, dst string) error {
	srcStat, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("staging file stat error: %w", err)
	}
	if _, err := os.Stat(dst); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("archive file stat error: %w", err)
	}

	dstDirStat, err := os.Stat(filepath.Dir(dst))
	if err != nil {
		return fmt.Errorf("archive directory stat error: %w", err)
	}

	if sameDevice(srcStat, dstDirStat) {
		if err := os.Link(src, dst); err != nil {
			if os.IsExist(err) {
				return nil
			}
			return fmt.Errorf("archive file link error: %w", err)
		}
		return nil
	}
	return copyPreservingMtime(src, dst, srcStat)
}

func sameDevice(a, b os.FileInfo) bool {
	as, aok := a.Sys().(*syscall.Stat_t)
	bs, bok := b.Sys().(*syscall.Stat_t)
	return aok && bok && as.Dev == bs.Dev
}

// copyPreservingMtime writes through a .part file so a crash mid-copy
// never leaves a plausible-looking truncated archive file.
func copyPreservingMtime(src, dst string, srcStat os.FileInfo) error {
	srcHandle, err := os.OpenFile(src, os.O_RDONLY, 0)
	if err != nil {
		return fmt.Errorf("staging file open error: %w", err)
	}
	defer srcHandle.Close()

	part := dst + ".part"
	partHandle, err := os.OpenFile(part, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("archive file create error: %w", err)
	}
	if _, err := util.Copy(context.Background(), partHandle, srcHandle, nil); err != nil {
		partHandle.Close()
		os.Remove(part)
		return fmt.Errorf("archive file copy error: %w", err)
	}
	if err := partHandle.Close(); err != nil {
		os.Remove(part)
		return fmt.Errorf("archive file close error: %w", err)
	}
	if err := os.Chtimes(part, srcStat.ModTime(), srcStat.ModTime()); err != nil {
		os.Remove(part)
		return fmt.Errorf("archive file chtimes error: %w", err)
	}
	if err := os.Rename(part, dst); err != nil {
		os.Remove(part)
		return fmt.Errorf("archive file rename error: %w", err)
	}
	return nil
}
