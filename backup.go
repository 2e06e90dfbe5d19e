package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jehiah/go-strftime"

	"github.com/bizzlechizzle/aupat-sub000/config"
	"github.com/bizzlechizzle/aupat-sub000/util"
)

// backupCatalog copies the catalog database into the archive's backups
// folder before a pipeline run and returns the backup path for the
// batch row.
func backupCatalog(ctx context.Context, cfg *config.Config) (string, error) {
	dir := filepath.Join(cfg.ArchiveRoot, "backups")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("backup directory create error: %w", err)
	}
	name := "catalog-" + strftime.Format("%Y%m%d-%H%M%S", time.Now().UTC()) + ".sqlite3"
	dst := filepath.Join(dir, name)

	srcHandle, err := os.OpenFile(cfg.CatalogPath, os.O_RDONLY, 0)
	if err != nil {
		return "", fmt.Errorf("catalog open error: %w", err)
	}
	defer srcHandle.Close()

	dstHandle, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return "", fmt.Errorf("backup file create error: %w", err)
	}
	if _, err := util.Copy(ctx, dstHandle, srcHandle, nil); err != nil {
		dstHandle.Close()
		os.Remove(dst)
		return "", fmt.Errorf("backup copy error: %w", err)
	}
	if err := dstHandle.Close(); err != nil {
		os.Remove(dst)
		return "", fmt.Errorf("backup file close error: %w", err)
	}
	return dst, nil
}
