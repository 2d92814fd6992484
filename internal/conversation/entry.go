// Package conversation implements the conversation index: an
// in-memory, lazily populated cache of conversation summaries over the
// contact, group and distribution list receivers in the store, kept in
// sync through explicit refresh calls driven by mutation events.
package conversation

import (
	"strconv"

	"github.com/dmelo/convd/internal/store"
)

// Entry is one cached conversation summary. Exactly one of the three
// receiver references is set, matching Kind. Entries are owned by the
// index; external callers must treat them as read-only snapshots.
type Entry struct {
	Kind store.Kind

	Contact          *store.Contact
	Group            *store.Group
	DistributionList *store.DistributionList

	MessageCount   int64
	LastUpdate     int64
	LatestMessage  *store.Message
	UnreadCount    int64
	IsPinTagged    bool
	IsUnreadTagged bool
	Position       int
	IsTyping       bool
}

// UID returns the stable unique identifier of the conversation,
// derived from its kind and key. It is the key used by the tag and
// category stores.
func (e *Entry) UID() string {
	return UIDFor(e.Kind, e.Identifier())
}

// UIDFor builds the conversation UID for a kind and identifier without
// a loaded entry.
func UIDFor(kind store.Kind, identifier string) string {
	return string(kind) + "-" + identifier
}

// Identifier returns the kind-specific conversation key in string
// form: the contact identity, or the decimal group / distribution
// list ID.
func (e *Entry) Identifier() string {
	switch e.Kind {
	case KindGroup:
		return strconv.FormatInt(e.Group.ID, 10)
	case KindDistributionList:
		return strconv.FormatInt(e.DistributionList.ID, 10)
	default:
		return e.Contact.Identity
	}
}

// DisplayName returns the receiver's display name, falling back to the
// identifier when no name is set.
func (e *Entry) DisplayName() string {
	var name string
	switch e.Kind {
	case KindGroup:
		name = e.Group.Name
	case KindDistributionList:
		name = e.DistributionList.Name
	default:
		name = e.Contact.Name
	}
	if name == "" {
		return e.Identifier()
	}
	return name
}

// SortDate returns the timestamp the cache is ordered by.
func (e *Entry) SortDate() int64 {
	return e.LastUpdate
}

// HasUnread reports whether the conversation counts as unread, either
// through actual unread messages or the marked-as-unread tag.
func (e *Entry) HasUnread() bool {
	return e.UnreadCount > 0 || e.IsUnreadTagged
}

// Change is the payload of conversation.* bus events. Entry is a
// snapshot of the post-mutation state; PreviousPosition is set on
// modified events when the sort position changed, so list UIs can
// animate the move.
type Change struct {
	Entry            Entry
	PreviousPosition *int
}

// Kind aliases, for callers that don't otherwise import the store.
const (
	KindContact          = store.KindContact
	KindGroup            = store.KindGroup
	KindDistributionList = store.KindDistributionList
)
