package store

import (
	"database/sql"
	"time"
)

// UpsertContact inserts or updates a contact keyed by identity.
func (db *DB) UpsertContact(c *Contact) error {
	now := time.Now().UnixMilli()
	createdAt := c.CreatedAt
	if createdAt == 0 {
		createdAt = now
	}
	_, err := db.Exec(`
		INSERT INTO contacts (identity, name, state, acquaintance_level, is_archived, is_blocked, last_update, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(identity) DO UPDATE SET
			name = excluded.name,
			state = excluded.state,
			acquaintance_level = excluded.acquaintance_level,
			is_archived = excluded.is_archived,
			is_blocked = excluded.is_blocked,
			last_update = excluded.last_update`,
		c.Identity, c.Name, c.State, c.AcquaintanceLevel, c.IsArchived, c.IsBlocked, nullableInt64(c.LastUpdate), createdAt)
	return err
}

// GetContact returns a contact by identity, or nil if not found.
func (db *DB) GetContact(identity string) (*Contact, error) {
	var c Contact
	var lastUpdate sql.NullInt64
	err := db.QueryRow(`
		SELECT identity, name, state, acquaintance_level, is_archived, is_blocked, last_update, created_at
		FROM contacts WHERE identity = ?`, identity).
		Scan(&c.Identity, &c.Name, &c.State, &c.AcquaintanceLevel, &c.IsArchived, &c.IsBlocked, &lastUpdate, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if lastUpdate.Valid {
		c.LastUpdate = &lastUpdate.Int64
	}
	return &c, nil
}

// SetContactArchived sets the archived flag of a contact.
func (db *DB) SetContactArchived(identity string, archived bool) error {
	_, err := db.Exec(`UPDATE contacts SET is_archived = ? WHERE identity = ?`, archived, identity)
	return err
}

// SetContactLastUpdate sets the lastUpdate timestamp of a contact.
func (db *DB) SetContactLastUpdate(identity string, lastUpdate int64) error {
	_, err := db.Exec(`UPDATE contacts SET last_update = ? WHERE identity = ?`, lastUpdate, identity)
	return err
}

// ClearContactLastUpdate clears the lastUpdate timestamp of a contact,
// removing its conversation from future listings.
func (db *DB) ClearContactLastUpdate(identity string) error {
	_, err := db.Exec(`UPDATE contacts SET last_update = NULL WHERE identity = ?`, identity)
	return err
}

func nullableInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
