// Package catalog is the relational store behind the archive: locations,
// per-category media tables keyed by content hash, import batches and the
// per-file import log.
package catalog

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/sqlite"
)

var (
	ErrMediaAlreadyExists = errors.New("media already exists")
	ErrMediaNotFound      = errors.New("media not found")
	ErrLocationNotFound   = errors.New("location not found")
	ErrBatchNotFound      = errors.New("batch not found")
	ErrUnknownMediaType   = errors.New("unknown media type")
)

type Catalog struct {
	db   *gorm.DB
	inTx bool
}

func New(path string) (*Catalog, error) {
	var err error
	c := &Catalog{}
	defer func() {
		if err == nil {
			return
		}
		c.Close()
	}()

	err = os.MkdirAll(filepath.Dir(path), 0755)
	if err != nil {
		return nil, err
	}

	dbValues := make(url.Values)
	dbValues.Set("_auto_vacuum", "INCREMENTAL")
	dbValues.Set("_busy_timeout", "60000")
	dbValues.Set("_journal_mode", "WAL")
	dbValues.Set("mode", "rwc")
	dbValues.Set("_mutex", "full")
	dbValues.Set("cache", "shared")
	dbValues.Set("_synchronous", "NORMAL")
	dbValues.Set("_loc", "UTC")
	dbValues.Set("_txlock", "DEFERRED")
	if idx := strings.Index(path, "?"); idx >= 0 {
		path = path[:idx]
	}
	dbConnectionString := fmt.Sprintf("file:%s?%s",
		path, dbValues.Encode())

	c.db, err = gorm.Open("sqlite3", dbConnectionString)
	if err != nil {
		return nil, err
	}

	c.db.LogMode(false)
	// single writer; concurrent readers go through the WAL
	c.db.DB().SetMaxOpenConns(1)

	err = c.db.AutoMigrate(
		&Location{},
		&SubLocation{},
		&imgModel{},
		&videoModel{},
		&documentModel{},
		&mapModel{},
		&ImportBatch{},
		&ImportLog{},
	).Error
	if err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Catalog) Close() {
	if c.db != nil && !c.inTx {
		c.db.Close()
	}
}

// Transaction runs fn against a transaction-scoped Catalog and commits
// when fn returns nil. Nested calls run on the same handle, so every
// public operation stays atomic on its own and composes into larger
// units like the all-or-nothing staging scan.
func (c *Catalog) Transaction(fn func(tx *Catalog) error) error {
	if c.inTx {
		return fn(c)
	}
	tx := c.db.Begin()
	if err := tx.Error; err != nil {
		return err
	}
	defer tx.RollbackUnlessCommitted()
	if err := fn(&Catalog{db: tx, inTx: true}); err != nil {
		return err
	}
	return tx.Commit().Error
}
