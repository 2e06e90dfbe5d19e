package catalog

import (
	"strings"
	"time"

	"github.com/jinzhu/gorm"

	"github.com/bizzlechizzle/aupat-sub000/layout"
)

// NewMedia inserts rec into the table for mt. The existence check and
// the insert run in one transaction; a row with the same hash yields
// ErrMediaAlreadyExists.
func (c *Catalog) NewMedia(mt layout.MediaType, rec MediaRecord) error {
	table, err := mediaTable(mt)
	if err != nil {
		return err
	}
	return c.Transaction(func(tx *Catalog) error {
		var existing MediaRecord
		err := tx.db.Table(table).Where("hash = ?", rec.Hash).Take(&existing).Error
		if !gorm.IsRecordNotFoundError(err) {
			if err == nil {
				return ErrMediaAlreadyExists
			}
			return err
		}
		return tx.db.Table(table).Create(&rec).Error
	})
}

// MediaExists reports whether a record with hash is present in the
// table for mt.
func (c *Catalog) MediaExists(mt layout.MediaType, hash string) (bool, error) {
	table, err := mediaTable(mt)
	if err != nil {
		return false, err
	}
	var rec MediaRecord
	err = c.db.Table(table).Select("hash").Where("hash = ?", hash).Take(&rec).Error
	if gorm.IsRecordNotFoundError(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetMedia fetches one record by hash.
func (c *Catalog) GetMedia(mt layout.MediaType, hash string) (*MediaRecord, error) {
	table, err := mediaTable(mt)
	if err != nil {
		return nil, err
	}
	rec := &MediaRecord{}
	err = c.db.Table(table).Where("hash = ?", hash).Take(rec).Error
	if gorm.IsRecordNotFoundError(err) {
		return nil, ErrMediaNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// UpdateMediaPath moves a record to its new path/name in one statement.
// The verified flag drops with it: verification vouches for bytes at a
// path, and the path just changed.
func (c *Catalog) UpdateMediaPath(mt layout.MediaType, hash, filePath, fileName string) error {
	table, err := mediaTable(mt)
	if err != nil {
		return err
	}
	q := c.db.Table(table).Where("hash = ?", hash).
		Updates(map[string]interface{}{"file_path": filePath, "file_name": fileName, "verified": false})
	if q.Error != nil {
		return q.Error
	}
	if q.RowsAffected == 0 {
		return ErrMediaNotFound
	}
	return nil
}

// SetMediaHardware writes the organizer's findings: exactly one
// category flag, the raw probe blob and dimensions/duration where the
// probe produced them. Zero dimension values leave the columns alone.
func (c *Catalog) SetMediaHardware(mt layout.MediaType, hash string, hw layout.Hardware, meta string, width, height int, duration float64) error {
	table, err := mediaTable(mt)
	if err != nil {
		return err
	}
	rec := MediaRecord{}
	rec.SetHardware(hw)
	updates := map[string]interface{}{
		"camera":     rec.Camera,
		"phone":      rec.Phone,
		"drone":      rec.Drone,
		"action_cam": rec.ActionCam,
		"dash_cam":   rec.DashCam,
		"film":       rec.Film,
		"other":      rec.Other,
		"meta":       meta,
	}
	if width > 0 {
		updates["width"] = width
	}
	if height > 0 {
		updates["height"] = height
	}
	if duration > 0 {
		updates["duration"] = duration
	}
	q := c.db.Table(table).Where("hash = ?", hash).Updates(updates)
	if q.Error != nil {
		return q.Error
	}
	if q.RowsAffected == 0 {
		return ErrMediaNotFound
	}
	return nil
}

// MarkVerified records a fresh hash match for the file at its current
// path. Never set without re-hashing.
func (c *Catalog) MarkVerified(mt layout.MediaType, hash string, at time.Time) error {
	table, err := mediaTable(mt)
	if err != nil {
		return err
	}
	q := c.db.Table(table).Where("hash = ?", hash).
		Updates(map[string]interface{}{"verified": true, "verified_at": at})
	if q.Error != nil {
		return q.Error
	}
	if q.RowsAffected == 0 {
		return ErrMediaNotFound
	}
	return nil
}

// ListUnclassified returns records of mt for a location with no
// hardware flag set yet. Empty locID means all locations.
func (c *Catalog) ListUnclassified(mt layout.MediaType, locID string) ([]MediaRecord, error) {
	table, err := mediaTable(mt)
	if err != nil {
		return nil, err
	}
	q := c.db.Table(table).Where(
		"camera = ? AND phone = ? AND drone = ? AND action_cam = ? AND dash_cam = ? AND film = ? AND other = ?",
		false, false, false, false, false, false, false)
	if locID != "" {
		q = q.Where("loc_id = ?", locID)
	}
	var recs []MediaRecord
	if err := q.Order("hash").Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

// escapeLike neutralizes LIKE metacharacters so a path is matched
// literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// ListStaged returns records whose current path is still under prefix,
// i.e. files the mover has not archived yet.
func (c *Catalog) ListStaged(mt layout.MediaType, locID, prefix string) ([]MediaRecord, error) {
	table, err := mediaTable(mt)
	if err != nil {
		return nil, err
	}
	q := c.db.Table(table).Where(`file_path LIKE ? ESCAPE '\'`, escapeLike(prefix)+"%")
	if locID != "" {
		q = q.Where("loc_id = ?", locID)
	}
	var recs []MediaRecord
	if err := q.Order("hash").Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

// ListMedia returns all records of mt, optionally scoped to a location.
func (c *Catalog) ListMedia(mt layout.MediaType, locID string) ([]MediaRecord, error) {
	table, err := mediaTable(mt)
	if err != nil {
		return nil, err
	}
	q := c.db.Table(table)
	if locID != "" {
		q = q.Where("loc_id = ?", locID)
	}
	var recs []MediaRecord
	if err := q.Order("hash").Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

// CountByHardware returns per-category counts for mt at a location; the
// folder plan is derived from these.
func (c *Catalog) CountByHardware(mt layout.MediaType, locID string) (map[layout.Hardware]int64, error) {
	table, err := mediaTable(mt)
	if err != nil {
		return nil, err
	}
	counts := make(map[layout.Hardware]int64, len(layout.AllHardware))
	cols := map[layout.Hardware]string{
		layout.HardwareCamera:  "camera",
		layout.HardwarePhone:   "phone",
		layout.HardwareDrone:   "drone",
		layout.HardwareAction:  "action_cam",
		layout.HardwareDashCam: "dash_cam",
		layout.HardwareFilm:    "film",
		layout.HardwareOther:   "other",
	}
	for hw, col := range cols {
		var n int64
		q := c.db.Table(table).Where(col+" = ?", true)
		if locID != "" {
			q = q.Where("loc_id = ?", locID)
		}
		if err := q.Count(&n).Error; err != nil {
			return nil, err
		}
		counts[hw] = n
	}
	return counts, nil
}

// CountMedia returns the total record count for mt at a location.
func (c *Catalog) CountMedia(mt layout.MediaType, locID string) (int64, error) {
	table, err := mediaTable(mt)
	if err != nil {
		return 0, err
	}
	q := c.db.Table(table)
	if locID != "" {
		q = q.Where("loc_id = ?", locID)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}
