package store

import (
	"database/sql"
	"time"
)

// InsertDistributionList creates a new distribution list and returns its ID.
func (db *DB) InsertDistributionList(d *DistributionList) (int64, error) {
	now := time.Now().UnixMilli()
	createdAt := d.CreatedAt
	if createdAt == 0 {
		createdAt = now
	}
	res, err := db.Exec(`
		INSERT INTO distribution_lists (name, is_archived, is_hidden, last_update, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		d.Name, d.IsArchived, d.IsHidden, nullableInt64(d.LastUpdate), createdAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// UpdateDistributionList updates a distribution list's mutable fields.
func (db *DB) UpdateDistributionList(d *DistributionList) error {
	_, err := db.Exec(`
		UPDATE distribution_lists SET name = ?, is_archived = ?, is_hidden = ?, last_update = ?
		WHERE id = ?`,
		d.Name, d.IsArchived, d.IsHidden, nullableInt64(d.LastUpdate), d.ID)
	return err
}

// GetDistributionList returns a distribution list by ID, or nil if not found.
func (db *DB) GetDistributionList(id int64) (*DistributionList, error) {
	var d DistributionList
	var lastUpdate sql.NullInt64
	err := db.QueryRow(`
		SELECT id, name, is_archived, is_hidden, last_update, created_at
		FROM distribution_lists WHERE id = ?`, id).
		Scan(&d.ID, &d.Name, &d.IsArchived, &d.IsHidden, &lastUpdate, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if lastUpdate.Valid {
		d.LastUpdate = &lastUpdate.Int64
	}
	return &d, nil
}

// SetDistributionListArchived sets the archived flag of a distribution list.
func (db *DB) SetDistributionListArchived(id int64, archived bool) error {
	_, err := db.Exec(`UPDATE distribution_lists SET is_archived = ? WHERE id = ?`, archived, id)
	return err
}

// SetDistributionListLastUpdate sets the lastUpdate timestamp of a
// distribution list.
func (db *DB) SetDistributionListLastUpdate(id int64, lastUpdate int64) error {
	_, err := db.Exec(`UPDATE distribution_lists SET last_update = ? WHERE id = ?`, lastUpdate, id)
	return err
}
