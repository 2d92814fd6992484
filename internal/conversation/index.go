package conversation

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dmelo/convd/internal/bus"
	"github.com/dmelo/convd/internal/store"
	"go.uber.org/zap"
)

// Index is the conversation cache and its orchestration. All public
// entry points serialize on one mutex scoped to the whole cache;
// sorting and position reassignment happen in the same critical
// section as the mutation that triggered them, so readers never
// observe a partially sorted cache. Change notifications are published
// on the bus after the critical section completes.
//
// Store queries are synchronous local-database calls; the index makes
// no async promises, and callers dispatch to background execution
// themselves if store latency matters to them.
type Index struct {
	mu         sync.Mutex
	db         *store.DB
	bus        *bus.Bus
	logger     *zap.Logger
	cache      []*Entry
	loaded     bool
	strategies map[store.Kind]kindStrategy
}

// NewIndex creates an empty conversation index. The cache is populated
// on the first GetAll call.
func NewIndex(db *store.DB, b *bus.Bus, logger *zap.Logger) *Index {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Index{
		db:     db,
		bus:    b,
		logger: logger,
		strategies: map[store.Kind]kindStrategy{
			store.KindContact:          contactStrategy{},
			store.KindGroup:            groupStrategy{},
			store.KindDistributionList: distributionListStrategy{},
		},
	}
}

// strategyOrder fixes the load order of the three kinds.
var strategyOrder = []store.Kind{store.KindContact, store.KindGroup, store.KindDistributionList}

// GetAll returns the cached conversations, loading all three kinds
// from the store on first use or when forceReload is set. When filter
// stages are active the narrowed result is returned; otherwise the
// full cache is returned as a copied slice whose entries must not be
// mutated by the caller.
func (ix *Index) GetAll(forceReload bool, filter *Filter) ([]*Entry, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if forceReload || !ix.loaded {
		ix.cache = nil
		for _, kind := range strategyOrder {
			s := ix.strategies[kind]
			rows, err := s.selectAll(ix.db, false)
			if err != nil {
				return nil, fmt.Errorf("select all %s conversations: %w", kind, err)
			}
			for _, row := range rows {
				if _, err := ix.parseRowLocked(s, row, nil, true); err != nil {
					return nil, err
				}
			}
		}
		if err := ix.updateTagsLocked(); err != nil {
			return nil, err
		}
		ix.loaded = true
	}

	ix.sortLocked()

	if filter.active() {
		return ix.applyFilterLocked(filter)
	}

	return append([]*Entry(nil), ix.cache...), nil
}

func (ix *Index) applyFilterLocked(filter *Filter) ([]*Entry, error) {
	filtered := ix.cache

	if filter.OnlyUnread {
		filtered = keep(filtered, func(e *Entry) bool { return e.HasUnread() })
	}
	if filter.NoDistributionLists {
		filtered = keep(filtered, func(e *Entry) bool { return e.Kind != store.KindDistributionList })
	}
	if filter.NoHiddenChats {
		privateUIDs, err := ix.db.PrivateChatUIDs()
		if err != nil {
			return nil, fmt.Errorf("load private chat uids: %w", err)
		}
		filtered = keep(filtered, func(e *Entry) bool {
			_, private := privateUIDs[e.UID()]
			return !private
		})
	}
	if filter.NoInvalid {
		// Chats with revoked contacts or left groups cannot receive
		// messages.
		filtered = keep(filtered, func(e *Entry) bool {
			switch e.Kind {
			case store.KindContact:
				return e.Contact.State != store.StateInvalid
			case store.KindGroup:
				return e.Group.IsMember
			}
			return true
		})
	}
	if filter.OnlyPersonal {
		filtered = keep(filtered, func(e *Entry) bool {
			if e.Kind == store.KindContact {
				return !isEchoOrGatewayContact(e.Contact) && !e.Contact.IsBlocked
			}
			return true
		})
	}
	if filter.Query != "" {
		filtered = keep(filtered, func(e *Entry) bool {
			return matchesQuery(filter.Query, e.DisplayName())
		})
	}

	return filtered, nil
}

func keep(entries []*Entry, pred func(*Entry) bool) []*Entry {
	var out []*Entry
	for _, e := range entries {
		if pred(e) {
			out = append(out, e)
		}
	}
	return out
}

// isEchoOrGatewayContact reports whether the contact is the echo test
// contact or a gateway channel (identity starting with '*').
func isEchoOrGatewayContact(c *store.Contact) bool {
	return c.Identity == "ECHOECHO" || (len(c.Identity) > 0 && c.Identity[0] == '*')
}

// GetArchived returns the archived conversations of all three kinds,
// freshly queried from the store and sorted by lastUpdate descending.
// Archived conversations ignore pin tags and are never cached.
func (ix *Index) GetArchived(searchQuery string) ([]*Entry, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	var entries []*Entry
	for _, kind := range strategyOrder {
		s := ix.strategies[kind]
		rows, err := s.selectAll(ix.db, true)
		if err != nil {
			return nil, fmt.Errorf("select archived %s conversations: %w", kind, err)
		}
		for _, row := range rows {
			e, err := ix.parseRowLocked(s, row, nil, false)
			if err != nil {
				return nil, err
			}
			if e == nil {
				continue
			}
			if matchesQuery(searchQuery, e.DisplayName()) {
				entries = append(entries, e)
			}
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].SortDate() > entries[j].SortDate()
	})
	return entries, nil
}

// ArchivedCount returns the number of archived conversations across
// all three kinds. Query failures are reported as 0.
func (ix *Index) ArchivedCount() int {
	return ix.db.ArchivedConversationCount()
}

// Sort reorders the cache: pinned conversations first, both partitions
// by lastUpdate descending, then reassigns dense 0-based positions.
func (ix *Index) Sort() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.sortLocked()
}

func (ix *Index) sortLocked() {
	sort.SliceStable(ix.cache, func(i, j int) bool {
		a, b := ix.cache[i], ix.cache[j]
		if a.IsPinTagged != b.IsPinTagged {
			return a.IsPinTagged
		}
		return a.SortDate() > b.SortDate()
	})
	for pos, e := range ix.cache {
		e.Position = pos
	}
}

// UpdateTags reloads the pin/unread tag sets from the store and
// applies them to all cached entries by UID.
func (ix *Index) UpdateTags() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.updateTagsLocked()
}

func (ix *Index) updateTagsLocked() error {
	tags, err := ix.db.ListTags()
	if err != nil {
		return fmt.Errorf("load conversation tags: %w", err)
	}
	pinned := make(map[string]struct{})
	unread := make(map[string]struct{})
	for _, t := range tags {
		switch t.Tag {
		case store.TagPinned:
			pinned[t.ConversationUID] = struct{}{}
		case store.TagUnread:
			unread[t.ConversationUID] = struct{}{}
		}
	}
	for _, e := range ix.cache {
		_, e.IsPinTagged = pinned[e.UID()]
		_, e.IsUnreadTagged = unread[e.UID()]
	}
	return nil
}

// HasConversations reports whether any conversation exists: true if
// the cache is non-empty, otherwise probes the raw message counts of
// all three tables without a full load.
func (ix *Index) HasConversations() bool {
	ix.mu.Lock()
	cached := len(ix.cache) > 0
	ix.mu.Unlock()
	if cached {
		return true
	}

	for _, kind := range strategyOrder {
		count, err := ix.db.MessageTableCount(kind)
		if err != nil {
			ix.logger.Warn("message count probe failed", zap.String("kind", string(kind)), zap.Error(err))
			continue
		}
		if count > 0 {
			return true
		}
	}
	return false
}

// Reset clears the cache and the loaded flag so the next GetAll
// reloads from the store. Used after bulk restore operations.
func (ix *Index) Reset() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.cache = nil
	ix.loaded = false
	ix.logger.Debug("conversation cache reset")
}

// SetTyping flags a cached contact conversation as typing. The flag is
// transient and never persisted.
func (ix *Index) SetTyping(identity string, isTyping bool) *Entry {
	ix.mu.Lock()
	e := ix.cachedLocked(ix.strategies[store.KindContact], identity)
	var notes []bus.Event
	if e != nil {
		e.IsTyping = isTyping
		notes = append(notes, modifiedEvent(e, nil))
	}
	ix.mu.Unlock()
	ix.publish(notes)
	return e
}

// RecalculateLastUpdates runs the bulk lastUpdate recomputation across
// all receiver tables and resets the cache so the new values are
// picked up on the next load.
func (ix *Index) RecalculateLastUpdates() error {
	if err := ix.db.RecalculateLastUpdates(); err != nil {
		return err
	}
	ix.Reset()
	return nil
}

// findByUIDLocked returns the cached entry with the given UID, or nil.
func (ix *Index) findByUIDLocked(uid string) *Entry {
	for _, e := range ix.cache {
		if e.UID() == uid {
			return e
		}
	}
	return nil
}

// cachedLocked returns the cached entry matching the identifier, or
// nil on a cache miss.
func (ix *Index) cachedLocked(s kindStrategy, identifier string) *Entry {
	for _, e := range ix.cache {
		if e.Kind == s.kind() && s.matches(e, identifier) {
			return e
		}
	}
	return nil
}

// parseRowLocked builds or updates an entry from a conversation row.
// When existing is nil a new entry is created and deduplicated against
// the cache by UID; it is added to the cache only when addToCache is
// set and the receiver is neither archived nor hidden. Returns nil
// (without error) when the receiver has vanished from the store.
func (ix *Index) parseRowLocked(s kindStrategy, row store.ConversationRow, existing *Entry, addToCache bool) (*Entry, error) {
	e := existing
	if e == nil {
		e = &Entry{}
	}
	ok, err := s.resolve(ix.db, row.Identifier, e)
	if err != nil {
		return nil, fmt.Errorf("resolve %s %q: %w", s.kind(), row.Identifier, err)
	}
	if !ok {
		ix.logger.Warn("receiver not found, skipping conversation",
			zap.String("kind", string(s.kind())), zap.String("identifier", row.Identifier))
		return nil, nil
	}

	if existing == nil {
		if prior := ix.findByUIDLocked(e.UID()); prior != nil {
			// Duplicate insert attempted under concurrent refreshes;
			// update the existing entry in place instead.
			ix.logger.Warn("conversation already cached, updating in place", zap.String("uid", e.UID()))
			if _, err := s.resolve(ix.db, row.Identifier, prior); err != nil {
				return nil, err
			}
			e = prior
		} else if addToCache && !s.isArchived(e) && !s.isHidden(e) {
			ix.cache = append(ix.cache, e)
		}
	}

	e.MessageCount = row.MessageCount
	e.LastUpdate = row.LastUpdate
	if row.MessageCount > 0 && row.LatestMessageID != nil {
		latest, err := ix.db.GetMessage(s.kind(), *row.LatestMessageID)
		if err != nil {
			return nil, fmt.Errorf("load latest message: %w", err)
		}
		e.LatestMessage = latest
		if s.allowsUnread() && latest.IsUnread() {
			// Only pull the authoritative unread count when the newest
			// message is unread.
			unreadCount, err := ix.db.UnreadMessageCount(s.kind(), row.Identifier)
			if err != nil {
				return nil, fmt.Errorf("count unread messages: %w", err)
			}
			e.UnreadCount = unreadCount
		}
	}
	if !s.allowsUnread() {
		e.UnreadCount = 0
	}

	return e, nil
}

// loadLocked queries the store for one conversation and parses it into
// the cache. Returns nil when the conversation does not exist.
func (ix *Index) loadLocked(s kindStrategy, identifier string) (*Entry, error) {
	rows, err := s.selectOne(ix.db, identifier)
	if err != nil {
		return nil, fmt.Errorf("select %s conversation %q: %w", s.kind(), identifier, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return ix.parseRowLocked(s, rows[0], nil, true)
}

// removeFromCacheLocked removes all entries matching the UID and
// returns the removal notifications. Entries are matched by UID rather
// than pointer identity so duplicates are swept as well.
func (ix *Index) removeFromCacheLocked(uid string) []bus.Event {
	var notes []bus.Event
	kept := ix.cache[:0]
	for _, e := range ix.cache {
		if e.UID() == uid {
			notes = append(notes, bus.Event{Kind: bus.KindConversationRemoved, Payload: Change{Entry: *e}})
			continue
		}
		kept = append(kept, e)
	}
	ix.cache = kept
	return notes
}

func modifiedEvent(e *Entry, previousPosition *int) bus.Event {
	return bus.Event{Kind: bus.KindConversationModified, Payload: Change{Entry: *e, PreviousPosition: previousPosition}}
}

func newEvent(e *Entry) bus.Event {
	return bus.Event{Kind: bus.KindConversationNew, Payload: Change{Entry: *e}}
}

// publish delivers collected notifications outside the cache lock.
func (ix *Index) publish(notes []bus.Event) {
	if ix.bus == nil {
		return
	}
	for _, evt := range notes {
		ix.bus.Emit(evt.Kind, evt.Payload)
	}
}
