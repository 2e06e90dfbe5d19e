package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/goinsane/xlog"

	"github.com/bizzlechizzle/aupat-sub000/catalog"
)

// importCommand runs the whole pipeline for one source directory and
// one target location: staging, organize, folders, ingest, verify, all
// under a single tracked batch. A stage error stops the pipeline and
// leaves the batch partial; prior stages' effects stay on disk and a
// re-run picks up where things stopped.
type importCommand struct {
	command

	SrcDir string
	Loc    string
	Sub    string
	Backup bool

	srcDir string
	loc    *catalog.Location
	subID  string
}

func (c *importCommand) Prepare() {
	if c.SrcDir == "" {
		xlog.Fatal("source directory required")
	}
	absSrcDir, err := filepath.Abs(c.SrcDir)
	if err != nil {
		xlog.Fatalf("source directory abs error: %v", err)
	}
	stat, err := os.Lstat(absSrcDir)
	if err != nil {
		xlog.Fatalf("source directory stat error: %v", err)
	}
	if !stat.IsDir() {
		xlog.Fatalf("source directory %q is not a directory", c.SrcDir)
	}
	c.srcDir = absSrcDir

	if c.Loc == "" {
		xlog.Fatal("target location required")
	}
	c.loc, err = c.Catalog.GetLocation(c.Loc)
	if err != nil {
		xlog.Fatalf("location %q lookup error: %v", c.Loc, err)
	}

	if c.Sub != "" {
		sub, err := c.Catalog.GetSubLocation(c.Sub)
		if err != nil {
			xlog.Fatalf("sub-location %q lookup error: %v", c.Sub, err)
		}
		if sub.LocID != c.loc.LocID {
			xlog.Fatalf("sub-location %q does not belong to location %q", c.Sub, c.Loc)
		}
		c.subID = sub.SubID
	}
}

func (c *importCommand) Run(ctx context.Context) error {
	backupPath := ""
	if c.Backup {
		var err error
		backupPath, err = backupCatalog(ctx, c.Config)
		if err != nil {
			return err
		}
		xlog.Infof("catalog backed up to %q", backupPath)
	}

	t, err := newBatchTracker(c.Catalog, c.loc.LocID, c.srcDir, backupPath)
	if err != nil {
		return err
	}
	defer t.finish()

	if err := t.run(ctx, catalog.StageStaging, func(ctx context.Context) error {
		return c.stageStaging(ctx, t, c.loc, c.subID, c.srcDir)
	}); err != nil {
		return err
	}
	if err := t.run(ctx, catalog.StageOrganize, func(ctx context.Context) error {
		return c.stageOrganize(ctx, t, c.loc.LocID)
	}); err != nil {
		return err
	}
	if err := t.run(ctx, catalog.StageFolder, func(ctx context.Context) error {
		return c.stageFolders(t, c.loc)
	}); err != nil {
		return err
	}
	if err := t.run(ctx, catalog.StageIngest, func(ctx context.Context) error {
		return c.stageIngest(ctx, t, c.loc)
	}); err != nil {
		return err
	}
	if err := t.run(ctx, catalog.StageVerify, func(ctx context.Context) error {
		return c.stageVerify(ctx, t, c.loc, false)
	}); err != nil {
		return err
	}
	return nil
}
