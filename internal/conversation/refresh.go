package conversation

import (
	"fmt"

	"github.com/dmelo/convd/internal/bus"
	"github.com/dmelo/convd/internal/store"
	"go.uber.org/zap"
)

// countsTowardConversation reports whether the message participates in
// the conversation's message count and latest-message selection. Group
// call status messages count despite being status messages.
func countsTowardConversation(m *store.Message) bool {
	if !m.IsSaved {
		return false
	}
	if !m.IsStatus {
		return true
	}
	return m.Kind == store.KindGroup && m.Type == store.MessageTypeGroupCallStatus
}

// Refresh re-reads the receiver behind a conversation after a metadata
// change. Cached entries are updated in place and re-sorted; entries
// that became archived or hidden are dropped from the cache; unknown
// conversations are loaded and announced as new.
func (ix *Index) Refresh(kind store.Kind, identifier string) (*Entry, error) {
	s, ok := ix.strategies[kind]
	if !ok {
		return nil, fmt.Errorf("unknown conversation kind %q", kind)
	}

	ix.mu.Lock()
	e, notes, err := ix.refreshLocked(s, identifier)
	ix.mu.Unlock()
	ix.publish(notes)
	return e, err
}

func (ix *Index) refreshLocked(s kindStrategy, identifier string) (*Entry, []bus.Event, error) {
	e := ix.cachedLocked(s, identifier)
	if e == nil {
		e, err := ix.loadLocked(s, identifier)
		if err != nil || e == nil {
			return nil, nil, err
		}
		var notes []bus.Event
		if !s.isArchived(e) && !s.isHidden(e) {
			ix.sortLocked()
			notes = append(notes, newEvent(e))
		}
		return e, notes, nil
	}

	prev := e.Position
	ok, err := s.resolve(ix.db, identifier, e)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		notes := ix.removeFromCacheLocked(e.UID())
		ix.sortLocked()
		return nil, notes, nil
	}
	if s.isArchived(e) || s.isHidden(e) {
		notes := ix.removeFromCacheLocked(e.UID())
		ix.sortLocked()
		return e, notes, nil
	}

	if lu := s.receiverLastUpdate(e); lu != nil {
		e.LastUpdate = *lu
	}
	ix.sortLocked()
	var previousPosition *int
	if e.Position != prev {
		previousPosition = &prev
	}
	return e, []bus.Event{modifiedEvent(e, previousPosition)}, nil
}

// RefreshMessage updates the conversation the message belongs to after
// the message was created or modified. For cached conversations the
// message count and latest message are advanced in place without
// re-querying the store; cache misses fall back to a full load.
func (ix *Index) RefreshMessage(m *store.Message) (*Entry, error) {
	s, ok := ix.strategies[m.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown conversation kind %q", m.Kind)
	}
	identifier := m.ConversationKey()

	ix.mu.Lock()
	e, notes, err := ix.refreshMessageLocked(s, identifier, m)
	ix.mu.Unlock()
	ix.publish(notes)
	return e, err
}

func (ix *Index) refreshMessageLocked(s kindStrategy, identifier string, m *store.Message) (*Entry, []bus.Event, error) {
	e := ix.cachedLocked(s, identifier)
	if e == nil {
		e, err := ix.loadLocked(s, identifier)
		if err != nil || e == nil {
			return nil, nil, err
		}
		var notes []bus.Event
		if !s.isArchived(e) && !s.isHidden(e) {
			ix.sortLocked()
			notes = append(notes, newEvent(e))
		}
		return e, notes, nil
	}

	prev := e.Position
	if countsTowardConversation(m) {
		switch {
		case e.LatestMessage == nil || e.LatestMessage.ID < m.ID:
			// New newest message: advance the count client-side
			// instead of re-running the aggregate query.
			e.MessageCount++
			e.LatestMessage = m
			e.LastUpdate = m.CreatedAt
		case e.LatestMessage.ID == m.ID:
			// The latest message itself was modified.
			e.LatestMessage = m
		}
	}

	var notes []bus.Event
	if s.allowsUnread() {
		switch {
		case e.LatestMessage != nil && e.LatestMessage.IsUnread():
			unreadCount, err := ix.db.UnreadMessageCount(s.kind(), identifier)
			if err != nil {
				return nil, nil, fmt.Errorf("count unread messages: %w", err)
			}
			e.UnreadCount = unreadCount
			if e.IsUnreadTagged {
				// A real unread message supersedes the manual tag.
				if err := ix.db.RemoveTag(e.UID(), store.TagUnread); err != nil {
					return nil, nil, err
				}
				e.IsUnreadTagged = false
				notes = append(notes, bus.Event{Kind: bus.KindTagsUpdated, Payload: Change{Entry: *e}})
			}
		case e.LatestMessage == nil || (e.LatestMessage.ID == m.ID && !m.IsUnread()):
			// The newest message was read, so nothing older counts
			// as unread either.
			e.UnreadCount = 0
			if err := ix.db.RemoveTag(e.UID(), store.TagUnread); err != nil {
				return nil, nil, err
			}
			if e.IsUnreadTagged {
				e.IsUnreadTagged = false
				notes = append(notes, bus.Event{Kind: bus.KindTagsUpdated, Payload: Change{Entry: *e}})
			}
		}
	}

	ix.sortLocked()
	var previousPosition *int
	if e.Position != prev {
		previousPosition = &prev
	}
	notes = append(notes, modifiedEvent(e, previousPosition))
	return e, notes, nil
}

// MarkRead zeroes the unread state of a conversation and removes its
// marked-as-unread tag. No conversation notification is published; the
// caller's UI initiated the read and already reflects it.
func (ix *Index) MarkRead(kind store.Kind, identifier string) error {
	s, ok := ix.strategies[kind]
	if !ok {
		return fmt.Errorf("unknown conversation kind %q", kind)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	e := ix.cachedLocked(s, identifier)
	if e == nil {
		loaded, err := ix.loadLocked(s, identifier)
		if err != nil {
			return err
		}
		e = loaded
	}
	if e != nil {
		e.UnreadCount = 0
		e.IsUnreadTagged = false
	}
	return ix.db.RemoveTag(UIDFor(kind, identifier), store.TagUnread)
}

// MarkReadMessage marks the conversation of the given message as read.
func (ix *Index) MarkReadMessage(m *store.Message) error {
	return ix.MarkRead(m.Kind, m.ConversationKey())
}

// MessageDeleted updates the conversation after one of its messages
// was removed from the store. The latest message is recomputed only
// when the deleted message was at or after it.
func (ix *Index) MessageDeleted(m *store.Message) (*Entry, error) {
	s, ok := ix.strategies[m.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown conversation kind %q", m.Kind)
	}
	identifier := m.ConversationKey()

	ix.mu.Lock()
	e, notes, err := ix.messageDeletedLocked(s, identifier, m)
	ix.mu.Unlock()
	ix.publish(notes)
	return e, err
}

func (ix *Index) messageDeletedLocked(s kindStrategy, identifier string, m *store.Message) (*Entry, []bus.Event, error) {
	e := ix.cachedLocked(s, identifier)
	if e == nil {
		return nil, nil, nil
	}

	prev := e.Position
	if countsTowardConversation(m) && e.MessageCount > 0 {
		e.MessageCount--
	}
	if e.LatestMessage != nil && m.ID < e.LatestMessage.ID {
		// An older message was deleted; the adjusted count surfaces
		// with the next modification or reload.
		return e, nil, nil
	}

	latest, err := ix.db.LatestSavedMessage(s.kind(), identifier)
	if err != nil {
		return nil, nil, fmt.Errorf("recompute latest message: %w", err)
	}
	e.LatestMessage = latest
	if latest == nil {
		e.MessageCount = 0
		e.UnreadCount = 0
	} else if !latest.IsUnread() {
		e.UnreadCount = 0
	}

	ix.sortLocked()
	var previousPosition *int
	if e.Position != prev {
		previousPosition = &prev
	}
	return e, []bus.Event{modifiedEvent(e, previousPosition)}, nil
}

// Archive marks a conversation as archived: all tags are removed, the
// unread state is cleared, the receiver's archived flag is persisted
// and the entry is dropped from the cache with a removal notification.
func (ix *Index) Archive(kind store.Kind, identifier string, source store.TriggerSource) error {
	s, ok := ix.strategies[kind]
	if !ok {
		return fmt.Errorf("unknown conversation kind %q", kind)
	}

	ix.mu.Lock()
	notes, err := ix.archiveLocked(s, identifier)
	ix.mu.Unlock()
	if err != nil {
		return err
	}
	ix.publish(notes)
	ix.logger.Info("conversation archived",
		zap.String("kind", string(kind)), zap.String("identifier", identifier),
		zap.String("source", string(source)))
	return nil
}

func (ix *Index) archiveLocked(s kindStrategy, identifier string) ([]bus.Event, error) {
	e := ix.cachedLocked(s, identifier)
	if e == nil {
		var err error
		e, err = ix.loadLocked(s, identifier)
		if err != nil {
			return nil, err
		}
		if e == nil {
			return nil, nil
		}
	}

	uid := e.UID()
	if err := ix.db.RemoveAllTags(uid); err != nil {
		return nil, err
	}
	e.IsPinTagged = false
	e.IsUnreadTagged = false
	e.UnreadCount = 0
	if err := ix.setArchivedLocked(e, true); err != nil {
		return nil, err
	}

	notes := ix.removeFromCacheLocked(uid)
	ix.sortLocked()
	return notes, nil
}

// Unarchive clears the receiver's archived flag. The conversation is
// not re-inserted into the cache here; the receiver-updated event that
// follows the flag change repopulates it through Refresh.
func (ix *Index) Unarchive(kind store.Kind, identifier string, source store.TriggerSource) error {
	s, ok := ix.strategies[kind]
	if !ok {
		return fmt.Errorf("unknown conversation kind %q", kind)
	}

	e := &Entry{}
	found, err := s.resolve(ix.db, identifier, e)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	if err := ix.setArchivedLocked(e, false); err != nil {
		return err
	}
	ix.logger.Info("conversation unarchived",
		zap.String("kind", string(kind)), zap.String("identifier", identifier),
		zap.String("source", string(source)))
	return nil
}

func (ix *Index) setArchivedLocked(e *Entry, archived bool) error {
	switch e.Kind {
	case store.KindContact:
		e.Contact.IsArchived = archived
		return ix.db.SetContactArchived(e.Contact.Identity, archived)
	case store.KindGroup:
		e.Group.IsArchived = archived
		return ix.db.SetGroupArchived(e.Group.ID, archived)
	case store.KindDistributionList:
		e.DistributionList.IsArchived = archived
		return ix.db.SetDistributionListArchived(e.DistributionList.ID, archived)
	}
	return fmt.Errorf("unknown conversation kind %q", e.Kind)
}

// Empty deletes every message of a conversation one at a time, removes
// the marked-as-unread tag and resets the cached counts. The pin tag
// survives emptying. Returns the number of deleted messages. When
// silent is set no notification is published.
func (ix *Index) Empty(kind store.Kind, identifier string, silent bool) (int, error) {
	s, ok := ix.strategies[kind]
	if !ok {
		return 0, fmt.Errorf("unknown conversation kind %q", kind)
	}

	ix.mu.Lock()
	deleted, notes, err := ix.emptyLocked(s, identifier, silent)
	ix.mu.Unlock()
	if err != nil {
		return deleted, err
	}
	ix.publish(notes)
	ix.logger.Info("conversation emptied",
		zap.String("kind", string(kind)), zap.String("identifier", identifier),
		zap.Int("deleted", deleted))
	return deleted, nil
}

func (ix *Index) emptyLocked(s kindStrategy, identifier string, silent bool) (int, []bus.Event, error) {
	if ix.cachedLocked(s, identifier) == nil {
		if _, err := ix.loadLocked(s, identifier); err != nil {
			return 0, nil, err
		}
	}

	messages, err := ix.db.ListMessages(s.kind(), identifier)
	if err != nil {
		return 0, nil, fmt.Errorf("list messages: %w", err)
	}
	deleted := 0
	for _, m := range messages {
		if err := ix.db.DeleteMessage(s.kind(), m.ID); err != nil {
			return deleted, nil, fmt.Errorf("delete message %d: %w", m.ID, err)
		}
		deleted++
	}

	if err := ix.db.RemoveTag(UIDFor(s.kind(), identifier), store.TagUnread); err != nil {
		return deleted, nil, err
	}

	var notes []bus.Event
	if e := ix.cachedLocked(s, identifier); e != nil {
		e.MessageCount = 0
		e.LatestMessage = nil
		e.UnreadCount = 0
		e.IsUnreadTagged = false
		if !silent {
			notes = append(notes, modifiedEvent(e, nil))
		}
	}
	return deleted, notes, nil
}

// Delete removes a contact conversation entirely: all messages are
// deleted, the contact's lastUpdate is cleared so no conversation row
// is projected for it anymore, all tags are dropped and the entry is
// removed from the cache.
func (ix *Index) Delete(identity string) error {
	s := ix.strategies[store.KindContact]

	ix.mu.Lock()
	notes, err := ix.deleteLocked(s, identity)
	ix.mu.Unlock()
	if err != nil {
		return err
	}
	ix.publish(notes)
	ix.logger.Info("conversation deleted", zap.String("identity", identity))
	return nil
}

func (ix *Index) deleteLocked(s kindStrategy, identity string) ([]bus.Event, error) {
	if _, _, err := ix.emptyLocked(s, identity, true); err != nil {
		return nil, err
	}
	if err := ix.db.ClearContactLastUpdate(identity); err != nil {
		return nil, err
	}
	uid := UIDFor(store.KindContact, identity)
	if err := ix.db.RemoveAllTags(uid); err != nil {
		return nil, err
	}
	notes := ix.removeFromCacheLocked(uid)
	ix.sortLocked()
	return notes, nil
}

// RemoveFromCache drops a conversation from the cache without touching
// the store, publishing a removal notification when it was cached.
func (ix *Index) RemoveFromCache(kind store.Kind, identifier string) {
	ix.mu.Lock()
	notes := ix.removeFromCacheLocked(UIDFor(kind, identifier))
	ix.sortLocked()
	ix.mu.Unlock()
	ix.publish(notes)
}
