package store

import "database/sql"

// SetConversationCategory assigns a category to a conversation,
// replacing any previous one.
func (db *DB) SetConversationCategory(conversationUID, category string) error {
	_, err := db.Exec(`
		INSERT INTO conversation_categories (conversation_uid, category)
		VALUES (?, ?)
		ON CONFLICT(conversation_uid) DO UPDATE SET category = excluded.category`,
		conversationUID, category)
	return err
}

// ClearConversationCategory removes a conversation's category.
func (db *DB) ClearConversationCategory(conversationUID string) error {
	_, err := db.Exec(`DELETE FROM conversation_categories WHERE conversation_uid = ?`, conversationUID)
	return err
}

// ConversationCategory returns the category of a conversation, or ""
// if none is set.
func (db *DB) ConversationCategory(conversationUID string) (string, error) {
	var category string
	err := db.QueryRow(`SELECT category FROM conversation_categories WHERE conversation_uid = ?`,
		conversationUID).Scan(&category)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return category, err
}

// PrivateChatUIDs returns the set of conversation uids marked private.
func (db *DB) PrivateChatUIDs() (map[string]struct{}, error) {
	rows, err := db.Query(`SELECT conversation_uid FROM conversation_categories WHERE category = ?`,
		CategoryPrivate)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	uids := make(map[string]struct{})
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, err
		}
		uids[uid] = struct{}{}
	}
	return uids, rows.Err()
}
