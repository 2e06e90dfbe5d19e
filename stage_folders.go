package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goinsane/xlog"

	"github.com/bizzlechizzle/aupat-sub000/catalog"
	"github.com/bizzlechizzle/aupat-sub000/layout"
)

// stageFolders materializes the folder plan for one location: the base
// directory always, media subfolders only for categories that actually
// hold files. MkdirAll makes re-runs no-ops, so the planner is re-run
// freely whenever new categories of media first appear. A permission
// error here is stage-fatal: an incomplete tree would fail every
// following move.
func (c *command) stageFolders(t *batchTracker, loc *catalog.Location) error {
	imgCounts, err := c.Catalog.CountByHardware(layout.MediaImage, loc.LocID)
	if err != nil {
		return fmt.Errorf("image counts error: %w", err)
	}
	vidCounts, err := c.Catalog.CountByHardware(layout.MediaVideo, loc.LocID)
	if err != nil {
		return fmt.Errorf("video counts error: %w", err)
	}
	docCount, err := c.Catalog.CountMedia(layout.MediaDocument, loc.LocID)
	if err != nil {
		return fmt.Errorf("document count error: %w", err)
	}

	base := filepath.Join(c.Config.ArchiveRoot, loc.Dir())
	dirs := layout.PlanFolders(base, layout.Counts{
		Images:    imgCounts,
		Videos:    vidCounts,
		Documents: docCount,
	})

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("archive directory %q create error: %w", dir, err)
		}
		t.logFile(catalog.ImportLog{
			FilePath: dir,
			Stage:    catalog.StageFolder, Status: catalog.LogSuccess,
			ArchivePath: dir,
		})
	}

	xlog.WithFieldKeyVals("location", loc.UUID8(), "dirs", len(dirs)).
		Infof("archive folders ready under %q", base)
	return nil
}
