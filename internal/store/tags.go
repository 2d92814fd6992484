package store

import "time"

// ListTags returns all (conversation uid, tag) pairs.
func (db *DB) ListTags() ([]TagRow, error) {
	rows, err := db.Query(`SELECT conversation_uid, tag FROM conversation_tags`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var tags []TagRow
	for rows.Next() {
		var t TagRow
		if err := rows.Scan(&t.ConversationUID, &t.Tag); err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

// AddTag attaches a tag to a conversation. Adding an existing tag is a
// no-op.
func (db *DB) AddTag(conversationUID, tag string) error {
	_, err := db.Exec(`
		INSERT INTO conversation_tags (conversation_uid, tag, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(conversation_uid, tag) DO NOTHING`,
		conversationUID, tag, time.Now().UnixMilli())
	return err
}

// RemoveTag detaches one tag from a conversation.
func (db *DB) RemoveTag(conversationUID, tag string) error {
	_, err := db.Exec(`DELETE FROM conversation_tags WHERE conversation_uid = ? AND tag = ?`,
		conversationUID, tag)
	return err
}

// RemoveAllTags detaches every tag from a conversation.
func (db *DB) RemoveAllTags(conversationUID string) error {
	_, err := db.Exec(`DELETE FROM conversation_tags WHERE conversation_uid = ?`, conversationUID)
	return err
}

// HasTag reports whether the conversation carries the given tag.
func (db *DB) HasTag(conversationUID, tag string) (bool, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM conversation_tags WHERE conversation_uid = ? AND tag = ?`,
		conversationUID, tag).Scan(&count)
	return count > 0, err
}
