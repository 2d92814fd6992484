package store

import (
	"database/sql"
	"fmt"
)

// The conversation queries project each receiver row into
// (identifier, messageCount, lastUpdate, latestMessageID). Message
// counts only include saved, non-status messages, with the exception
// of group call status messages, which do count.

// SelectContactConversation returns the conversation row for one
// contact identity. Contacts without a lastUpdate timestamp have no
// conversation and yield no row.
func (db *DB) SelectContactConversation(identity string) ([]ConversationRow, error) {
	return db.queryConversationRows(`
		WITH message_info AS (
			SELECT identity, COUNT(*) AS message_count, MAX(id) AS latest_message_id
			FROM contact_messages
			WHERE is_saved = 1 AND is_status = 0
			GROUP BY identity
		)
		SELECT c.identity, IFNULL(m.message_count, 0), c.last_update, m.latest_message_id
		FROM contacts c
		LEFT JOIN message_info m ON c.identity = m.identity
		WHERE c.last_update IS NOT NULL AND c.identity = ?`, identity)
}

// SelectAllContactConversations returns the conversation rows of all
// directly acquainted contacts matching the archived flag. Group-only
// contacts are excluded here but never in SelectContactConversation.
func (db *DB) SelectAllContactConversations(archived bool) ([]ConversationRow, error) {
	return db.queryConversationRows(`
		WITH message_info AS (
			SELECT identity, COUNT(*) AS message_count, MAX(id) AS latest_message_id
			FROM contact_messages
			WHERE is_saved = 1 AND is_status = 0
			GROUP BY identity
		)
		SELECT c.identity, IFNULL(m.message_count, 0), c.last_update, m.latest_message_id
		FROM contacts c
		LEFT JOIN message_info m ON c.identity = m.identity
		WHERE c.last_update IS NOT NULL AND c.acquaintance_level != ? AND c.is_archived = ?`,
		AcquaintanceGroupOnly, archived)
}

// SelectGroupConversation returns the conversation row for one group.
// Groups without lastUpdate are not excluded; they are always visible.
func (db *DB) SelectGroupConversation(groupID string) ([]ConversationRow, error) {
	return db.queryConversationRows(groupConversationQuery+` WHERE g.id = ?`,
		MessageTypeGroupCallStatus, groupID)
}

// SelectAllGroupConversations returns the conversation rows of all
// groups matching the archived flag.
func (db *DB) SelectAllGroupConversations(archived bool) ([]ConversationRow, error) {
	return db.queryConversationRows(groupConversationQuery+` WHERE g.is_archived = ?`,
		MessageTypeGroupCallStatus, archived)
}

const groupConversationQuery = `
	WITH message_info AS (
		SELECT group_id, COUNT(*) AS message_count, MAX(id) AS latest_message_id
		FROM group_messages
		WHERE is_saved = 1 AND (is_status = 0 OR type = ?)
		GROUP BY group_id
	)
	SELECT g.id, IFNULL(m.message_count, 0), IFNULL(g.last_update, 0), m.latest_message_id
	FROM chat_groups g
	LEFT JOIN message_info m ON g.id = m.group_id`

// SelectDistributionListConversation returns the conversation row for
// one distribution list. Hidden lists are not excluded here.
func (db *DB) SelectDistributionListConversation(listID string) ([]ConversationRow, error) {
	return db.queryConversationRows(distributionListConversationQuery+` WHERE d.id = ?`, listID)
}

// SelectAllDistributionListConversations returns the conversation rows
// of all non-hidden distribution lists matching the archived flag.
func (db *DB) SelectAllDistributionListConversations(archived bool) ([]ConversationRow, error) {
	return db.queryConversationRows(distributionListConversationQuery+
		` WHERE d.is_hidden != 1 AND d.is_archived = ?`, archived)
}

const distributionListConversationQuery = `
	WITH message_info AS (
		SELECT distribution_list_id, COUNT(*) AS message_count, MAX(id) AS latest_message_id
		FROM distribution_list_messages
		WHERE is_saved = 1 AND is_status = 0
		GROUP BY distribution_list_id
	)
	SELECT d.id, IFNULL(m.message_count, 0), IFNULL(d.last_update, 0), m.latest_message_id
	FROM distribution_lists d
	LEFT JOIN message_info m ON d.id = m.distribution_list_id`

func (db *DB) queryConversationRows(query string, args ...any) ([]ConversationRow, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []ConversationRow
	for rows.Next() {
		var r ConversationRow
		var latestMessageID sql.NullInt64
		if err := rows.Scan(&r.Identifier, &r.MessageCount, &r.LastUpdate, &latestMessageID); err != nil {
			return nil, err
		}
		if latestMessageID.Valid {
			r.LatestMessageID = &latestMessageID.Int64
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// ArchivedConversationCount returns the number of archived
// conversations across all three kinds in a single aggregate query.
// Query failures are reported as 0; the caller cannot recover store
// availability anyway.
func (db *DB) ArchivedConversationCount() int {
	var count int64
	err := db.QueryRow(`SELECT
		(SELECT COUNT(DISTINCT c.identity) FROM contacts c
			INNER JOIN contact_messages m ON c.identity = m.identity
			WHERE m.is_saved = 1 AND c.is_archived = 1)
		+
		(SELECT COUNT(DISTINCT g.id) FROM chat_groups g
			LEFT JOIN group_messages gm ON gm.group_id = g.id
				AND gm.is_status = 0 AND gm.is_saved = 1
			WHERE g.is_archived = 1)
		+
		(SELECT COUNT(DISTINCT d.id) FROM distribution_lists d
			LEFT JOIN distribution_list_messages dm ON dm.distribution_list_id = d.id
				AND dm.is_status = 0 AND dm.is_saved = 1
			WHERE d.is_archived = 1)`).Scan(&count)
	if err != nil {
		return 0
	}
	return int(count)
}

// RecalculateLastUpdates recomputes the lastUpdate field of every
// contact, group and distribution list from the creation timestamp of
// its newest saved message. Groups and distribution lists without
// messages fall back to their own creation timestamp. Intended for
// one-time migrations, not steady-state use.
func (db *DB) RecalculateLastUpdates() error {
	statements := []string{
		`UPDATE contacts SET last_update = tmp.last_update FROM (
			SELECT identity, MAX(created_at) AS last_update
			FROM contact_messages WHERE is_saved = 1 GROUP BY identity
		) tmp WHERE contacts.identity = tmp.identity`,
		`UPDATE chat_groups SET last_update = tmp.last_update FROM (
			SELECT group_id, MAX(created_at) AS last_update
			FROM group_messages WHERE is_saved = 1 GROUP BY group_id
		) tmp WHERE chat_groups.id = tmp.group_id`,
		`UPDATE chat_groups SET last_update = created_at WHERE last_update IS NULL`,
		`UPDATE distribution_lists SET last_update = tmp.last_update FROM (
			SELECT distribution_list_id, MAX(created_at) AS last_update
			FROM distribution_list_messages WHERE is_saved = 1 GROUP BY distribution_list_id
		) tmp WHERE distribution_lists.id = tmp.distribution_list_id`,
		`UPDATE distribution_lists SET last_update = created_at WHERE last_update IS NULL`,
	}
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("recalculate last updates: %w", err)
		}
	}
	return nil
}
