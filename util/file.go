package util

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// FileScan walks root depth-first and sends the path of every regular
// file to pathCh. Symbolic links and special files are skipped; entries
// are visited in name order so runs are deterministic. Returns on the
// first directory error or when ctx is done.
func FileScan(ctx context.Context, root string, pathCh chan<- string) error {
	root, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	stat, err := os.Lstat(root)
	if err != nil {
		return err
	}
	if !stat.IsDir() {
		return fmt.Errorf("root %s must be directory", root)
	}
	return fileScan(ctx, root, pathCh)
}

func fileScan(ctx context.Context, dir string, pathCh chan<- string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		path := filepath.Join(dir, entry.Name())
		switch {
		case entry.IsDir():
			if err := fileScan(ctx, path, pathCh); err != nil {
				return err
			}
		case entry.Type() == 0:
			select {
			case <-ctx.Done():
				return ctx.Err()
			case pathCh <- path:
			}
		}
	}
	return nil
}
