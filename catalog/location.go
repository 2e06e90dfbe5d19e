package catalog

import (
	"crypto/rand"
	"time"

	"github.com/jinzhu/gorm"

	"github.com/bizzlechizzle/aupat-sub000/content"
)

// locIDPrefixExists backs the collision check behind content.NewID: two
// locations must never share a uuid8, it is the path namespace.
func (c *Catalog) locIDPrefixExists(prefix string) (bool, error) {
	var loc Location
	err := c.db.Select("loc_id").Where("loc_id LIKE ?", prefix+"%").Take(&loc).Error
	if gorm.IsRecordNotFoundError(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *Catalog) subIDPrefixExists(prefix string) (bool, error) {
	var sub SubLocation
	err := c.db.Select("sub_id").Where("sub_id LIKE ?", prefix+"%").Take(&sub).Error
	if gorm.IsRecordNotFoundError(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CreateLocation assigns loc a collision-checked UUID and inserts it.
func (c *Catalog) CreateLocation(loc *Location) error {
	return c.Transaction(func(tx *Catalog) error {
		id, err := content.NewID(rand.Reader, tx.locIDPrefixExists)
		if err != nil {
			return err
		}
		loc.LocID = id
		now := time.Now().UTC()
		loc.CreatedAt = now
		loc.UpdatedAt = now
		return tx.db.Create(loc).Error
	})
}

// CreateSubLocation assigns sub a collision-checked UUID and inserts it
// under its parent location.
func (c *Catalog) CreateSubLocation(sub *SubLocation) error {
	return c.Transaction(func(tx *Catalog) error {
		if _, err := tx.getLocation(sub.LocID); err != nil {
			return err
		}
		id, err := content.NewID(rand.Reader, tx.subIDPrefixExists)
		if err != nil {
			return err
		}
		sub.SubID = id
		now := time.Now().UTC()
		sub.CreatedAt = now
		sub.UpdatedAt = now
		return tx.db.Create(sub).Error
	})
}

// GetLocation resolves id, accepting either the full UUID or the uuid8
// prefix used in paths.
func (c *Catalog) GetLocation(id string) (*Location, error) {
	return c.getLocation(id)
}

func (c *Catalog) getLocation(id string) (*Location, error) {
	loc := &Location{}
	q := c.db.Where("loc_id = ?", id)
	if len(id) == content.ShortLen {
		q = c.db.Where("loc_id LIKE ?", id+"%")
	}
	err := q.Take(loc).Error
	if gorm.IsRecordNotFoundError(err) {
		return nil, ErrLocationNotFound
	}
	if err != nil {
		return nil, err
	}
	return loc, nil
}

// GetSubLocation resolves id, accepting either the full UUID or the
// uuid8 prefix.
func (c *Catalog) GetSubLocation(id string) (*SubLocation, error) {
	sub := &SubLocation{}
	q := c.db.Where("sub_id = ?", id)
	if len(id) == content.ShortLen {
		q = c.db.Where("sub_id LIKE ?", id+"%")
	}
	err := q.Take(sub).Error
	if gorm.IsRecordNotFoundError(err) {
		return nil, ErrLocationNotFound
	}
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// ListLocations returns every location ordered by creation.
func (c *Catalog) ListLocations() ([]Location, error) {
	var locs []Location
	if err := c.db.Order("created_at").Find(&locs).Error; err != nil {
		return nil, err
	}
	return locs, nil
}
