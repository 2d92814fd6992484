package conversation

import (
	"strconv"

	"github.com/dmelo/convd/internal/store"
)

// kindStrategy is the per-kind capability set: querying the store for
// conversation rows, resolving the receiver behind an identifier and
// exposing the kind-specific flags the shared index algorithms need.
// The three implementations are selected through the index's strategy
// table, never by type inspection.
type kindStrategy interface {
	kind() store.Kind

	// selectOne queries the store for the row(s) matching one
	// identifier. Empty result means no such conversation.
	selectOne(db *store.DB, identifier string) ([]store.ConversationRow, error)

	// selectAll queries the store for all non-hidden rows of this kind
	// matching the archived flag.
	selectAll(db *store.DB, archived bool) ([]store.ConversationRow, error)

	// resolve looks up the receiver for the identifier and applies it
	// to the entry. Returns false when the receiver no longer exists;
	// that is an expected condition under concurrent deletion, not an
	// error.
	resolve(db *store.DB, identifier string, e *Entry) (bool, error)

	// receiverLastUpdate returns the receiver's own lastUpdate
	// timestamp, used when refreshing due to a metadata change.
	receiverLastUpdate(e *Entry) *int64

	isArchived(e *Entry) bool
	isHidden(e *Entry) bool

	// allowsUnread reports whether conversations of this kind can have
	// unread messages. Distribution lists never do.
	allowsUnread() bool

	// matches reports whether the entry belongs to the identifier.
	matches(e *Entry, identifier string) bool
}

type contactStrategy struct{}

func (contactStrategy) kind() store.Kind { return store.KindContact }

func (contactStrategy) selectOne(db *store.DB, identifier string) ([]store.ConversationRow, error) {
	return db.SelectContactConversation(identifier)
}

func (contactStrategy) selectAll(db *store.DB, archived bool) ([]store.ConversationRow, error) {
	return db.SelectAllContactConversations(archived)
}

func (contactStrategy) resolve(db *store.DB, identifier string, e *Entry) (bool, error) {
	c, err := db.GetContact(identifier)
	if err != nil || c == nil {
		return false, err
	}
	e.Kind = store.KindContact
	e.Contact = c
	return true, nil
}

func (contactStrategy) receiverLastUpdate(e *Entry) *int64 { return e.Contact.LastUpdate }

func (contactStrategy) isArchived(e *Entry) bool { return e.Contact.IsArchived }

// Group-only contacts are hidden from conversation listings.
func (contactStrategy) isHidden(e *Entry) bool {
	return e.Contact.AcquaintanceLevel == store.AcquaintanceGroupOnly
}

func (contactStrategy) allowsUnread() bool { return true }

func (contactStrategy) matches(e *Entry, identifier string) bool {
	return e.Kind == store.KindContact && e.Contact.Identity == identifier
}

type groupStrategy struct{}

func (groupStrategy) kind() store.Kind { return store.KindGroup }

func (groupStrategy) selectOne(db *store.DB, identifier string) ([]store.ConversationRow, error) {
	return db.SelectGroupConversation(identifier)
}

func (groupStrategy) selectAll(db *store.DB, archived bool) ([]store.ConversationRow, error) {
	return db.SelectAllGroupConversations(archived)
}

func (groupStrategy) resolve(db *store.DB, identifier string, e *Entry) (bool, error) {
	id, err := strconv.ParseInt(identifier, 10, 64)
	if err != nil {
		return false, nil
	}
	g, err := db.GetGroup(id)
	if err != nil || g == nil {
		return false, err
	}
	e.Kind = store.KindGroup
	e.Group = g
	return true, nil
}

func (groupStrategy) receiverLastUpdate(e *Entry) *int64 { return e.Group.LastUpdate }

func (groupStrategy) isArchived(e *Entry) bool { return e.Group.IsArchived }

// Groups are never hidden.
func (groupStrategy) isHidden(e *Entry) bool { return false }

func (groupStrategy) allowsUnread() bool { return true }

func (groupStrategy) matches(e *Entry, identifier string) bool {
	return e.Kind == store.KindGroup && strconv.FormatInt(e.Group.ID, 10) == identifier
}

type distributionListStrategy struct{}

func (distributionListStrategy) kind() store.Kind { return store.KindDistributionList }

func (distributionListStrategy) selectOne(db *store.DB, identifier string) ([]store.ConversationRow, error) {
	return db.SelectDistributionListConversation(identifier)
}

func (distributionListStrategy) selectAll(db *store.DB, archived bool) ([]store.ConversationRow, error) {
	return db.SelectAllDistributionListConversations(archived)
}

func (distributionListStrategy) resolve(db *store.DB, identifier string, e *Entry) (bool, error) {
	id, err := strconv.ParseInt(identifier, 10, 64)
	if err != nil {
		return false, nil
	}
	d, err := db.GetDistributionList(id)
	if err != nil || d == nil {
		return false, err
	}
	e.Kind = store.KindDistributionList
	e.DistributionList = d
	return true, nil
}

func (distributionListStrategy) receiverLastUpdate(e *Entry) *int64 {
	return e.DistributionList.LastUpdate
}

func (distributionListStrategy) isArchived(e *Entry) bool { return e.DistributionList.IsArchived }

func (distributionListStrategy) isHidden(e *Entry) bool { return e.DistributionList.IsHidden }

// Distribution lists cannot have unread messages.
func (distributionListStrategy) allowsUnread() bool { return false }

func (distributionListStrategy) matches(e *Entry, identifier string) bool {
	return e.Kind == store.KindDistributionList &&
		strconv.FormatInt(e.DistributionList.ID, 10) == identifier
}
