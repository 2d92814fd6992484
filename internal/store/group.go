package store

import (
	"database/sql"
	"time"
)

// InsertGroup creates a new group and returns its ID.
func (db *DB) InsertGroup(g *Group) (int64, error) {
	now := time.Now().UnixMilli()
	createdAt := g.CreatedAt
	if createdAt == 0 {
		createdAt = now
	}
	res, err := db.Exec(`
		INSERT INTO chat_groups (name, creator_identity, is_archived, is_member, last_update, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		g.Name, g.CreatorIdentity, g.IsArchived, g.IsMember, nullableInt64(g.LastUpdate), createdAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// UpdateGroup updates a group's mutable fields.
func (db *DB) UpdateGroup(g *Group) error {
	_, err := db.Exec(`
		UPDATE chat_groups SET name = ?, is_archived = ?, is_member = ?, last_update = ?
		WHERE id = ?`,
		g.Name, g.IsArchived, g.IsMember, nullableInt64(g.LastUpdate), g.ID)
	return err
}

// GetGroup returns a group by ID, or nil if not found.
func (db *DB) GetGroup(id int64) (*Group, error) {
	var g Group
	var lastUpdate sql.NullInt64
	err := db.QueryRow(`
		SELECT id, name, creator_identity, is_archived, is_member, last_update, created_at
		FROM chat_groups WHERE id = ?`, id).
		Scan(&g.ID, &g.Name, &g.CreatorIdentity, &g.IsArchived, &g.IsMember, &lastUpdate, &g.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if lastUpdate.Valid {
		g.LastUpdate = &lastUpdate.Int64
	}
	return &g, nil
}

// SetGroupArchived sets the archived flag of a group.
func (db *DB) SetGroupArchived(id int64, archived bool) error {
	_, err := db.Exec(`UPDATE chat_groups SET is_archived = ? WHERE id = ?`, archived, id)
	return err
}

// SetGroupLastUpdate sets the lastUpdate timestamp of a group.
func (db *DB) SetGroupLastUpdate(id int64, lastUpdate int64) error {
	_, err := db.Exec(`UPDATE chat_groups SET last_update = ? WHERE id = ?`, lastUpdate, id)
	return err
}
