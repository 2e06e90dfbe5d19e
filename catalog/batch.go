package catalog

import (
	"crypto/rand"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/gorm"
)

// CreateBatch opens a running batch row and returns it.
func (c *Catalog) CreateBatch(locUUID, sourcePath, backupPath string) (*ImportBatch, error) {
	id, err := newBatchID(rand.Reader)
	if err != nil {
		return nil, err
	}
	b := &ImportBatch{
		BatchID:    id,
		LocUUID:    locUUID,
		SourcePath: sourcePath,
		BatchStart: time.Now().UTC(),
		Status:     BatchRunning,
		BackupPath: backupPath,
	}
	if err := c.db.Create(b).Error; err != nil {
		return nil, err
	}
	return b, nil
}

func newBatchID(rnd io.Reader) (string, error) {
	u, err := uuid.NewRandomFromReader(rnd)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// SaveBatch flushes the batch row's counters and status.
func (c *Catalog) SaveBatch(b *ImportBatch) error {
	q := c.db.Model(&ImportBatch{}).Where("batch_id = ?", b.BatchID).
		Updates(map[string]interface{}{
			"status":           b.Status,
			"batch_end":        b.BatchEnd,
			"total_files":      b.TotalFiles,
			"files_imported":   b.FilesImported,
			"files_skipped":    b.FilesSkipped,
			"files_failed":     b.FilesFailed,
			"duplicates_found": b.DuplicatesFound,
			"error_log":        b.ErrorLog,
		})
	if q.Error != nil {
		return q.Error
	}
	if q.RowsAffected == 0 {
		return ErrBatchNotFound
	}
	return nil
}

// GetBatch fetches one batch row.
func (c *Catalog) GetBatch(batchID string) (*ImportBatch, error) {
	b := &ImportBatch{}
	err := c.db.Where("batch_id = ?", batchID).Take(b).Error
	if gorm.IsRecordNotFoundError(err) {
		return nil, ErrBatchNotFound
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// AppendLog writes one (file, stage) observation.
func (c *Catalog) AppendLog(entry *ImportLog) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	return c.db.Create(entry).Error
}

// ListLog returns a batch's log rows in write order.
func (c *Catalog) ListLog(batchID string) ([]ImportLog, error) {
	var entries []ImportLog
	err := c.db.Where("batch_id = ?", batchID).Order("log_id").Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}
