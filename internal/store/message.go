package store

import (
	"database/sql"
	"fmt"
	"time"
)

// messageTable returns the table and conversation key column for a kind.
func messageTable(kind Kind) (table, keyColumn string) {
	switch kind {
	case KindGroup:
		return "group_messages", "group_id"
	case KindDistributionList:
		return "distribution_list_messages", "distribution_list_id"
	default:
		return "contact_messages", "identity"
	}
}

// InsertMessage stores a message in the kind-specific table and
// returns its ID.
func (db *DB) InsertMessage(m *Message) (int64, error) {
	table, keyColumn := messageTable(m.Kind)
	createdAt := m.CreatedAt
	if createdAt == 0 {
		createdAt = time.Now().UnixMilli()
	}
	res, err := db.Exec(fmt.Sprintf(`
		INSERT INTO %s (%s, body, type, is_status, is_saved, is_read, is_outbox, is_downloaded, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, table, keyColumn),
		m.ConversationKey(), m.Body, m.Type, m.IsStatus, m.IsSaved, m.IsRead, m.IsOutbox, m.IsDownloaded, createdAt)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	m.ID = id
	m.CreatedAt = createdAt
	return id, nil
}

// GetMessage returns a message by kind and ID, or nil if not found.
func (db *DB) GetMessage(kind Kind, id int64) (*Message, error) {
	table, keyColumn := messageTable(kind)
	row := db.QueryRow(fmt.Sprintf(`
		SELECT id, %s, body, type, is_status, is_saved, is_read, is_outbox, is_downloaded, created_at
		FROM %s WHERE id = ?`, keyColumn, table), id)
	return scanMessage(kind, row)
}

// ListMessages returns all messages of one conversation, oldest first.
func (db *DB) ListMessages(kind Kind, conversationKey string) ([]*Message, error) {
	table, keyColumn := messageTable(kind)
	rows, err := db.Query(fmt.Sprintf(`
		SELECT id, %s, body, type, is_status, is_saved, is_read, is_outbox, is_downloaded, created_at
		FROM %s WHERE %s = ? ORDER BY id ASC`, keyColumn, table, keyColumn), conversationKey)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []*Message
	for rows.Next() {
		m, err := scanMessageRows(kind, rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// DeleteMessage removes one message by kind and ID.
func (db *DB) DeleteMessage(kind Kind, id int64) error {
	table, _ := messageTable(kind)
	_, err := db.Exec(fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, table), id)
	return err
}

// MarkMessageRead flags a message as read.
func (db *DB) MarkMessageRead(kind Kind, id int64) error {
	table, _ := messageTable(kind)
	_, err := db.Exec(fmt.Sprintf(`UPDATE %s SET is_read = 1 WHERE id = ?`, table), id)
	return err
}

// LatestSavedMessage returns the most recent saved, downloaded,
// non-status message of a conversation, or nil if none remains. Used
// to recompute the latest message after a deletion.
func (db *DB) LatestSavedMessage(kind Kind, conversationKey string) (*Message, error) {
	table, keyColumn := messageTable(kind)
	row := db.QueryRow(fmt.Sprintf(`
		SELECT id, %s, body, type, is_status, is_saved, is_read, is_outbox, is_downloaded, created_at
		FROM %s
		WHERE %s = ? AND is_status = 0 AND is_saved = 1 AND is_downloaded = 1
		ORDER BY id DESC LIMIT 1`, keyColumn, table, keyColumn), conversationKey)
	return scanMessage(kind, row)
}

// MessageTableCount returns the total number of rows in the kind's
// message table. Used as a cheap existence probe without a full load.
func (db *DB) MessageTableCount(kind Kind) (int64, error) {
	table, _ := messageTable(kind)
	var count int64
	err := db.QueryRow(fmt.Sprintf(`SELECT COUNT(*) FROM %s`, table)).Scan(&count)
	return count, err
}

// UnreadMessageCount returns the number of unread inbound messages of
// one conversation.
func (db *DB) UnreadMessageCount(kind Kind, conversationKey string) (int64, error) {
	table, keyColumn := messageTable(kind)
	var count int64
	err := db.QueryRow(fmt.Sprintf(`
		SELECT COUNT(*) FROM %s
		WHERE %s = ? AND is_outbox = 0 AND is_read = 0 AND is_status = 0 AND is_saved = 1`,
		table, keyColumn), conversationKey).Scan(&count)
	return count, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(kind Kind, row *sql.Row) (*Message, error) {
	m, err := scanMessageRows(kind, row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func scanMessageRows(kind Kind, row rowScanner) (*Message, error) {
	m := Message{Kind: kind}
	var key any
	switch kind {
	case KindGroup:
		key = &m.GroupID
	case KindDistributionList:
		key = &m.DistributionListID
	default:
		key = &m.Identity
	}
	err := row.Scan(&m.ID, key, &m.Body, &m.Type, &m.IsStatus, &m.IsSaved, &m.IsRead, &m.IsOutbox, &m.IsDownloaded, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
