package store

import "strconv"

// Kind discriminates the three conversation kinds. It is carried
// explicitly on messages and receiver references so dispatch never
// relies on runtime type inspection.
type Kind string

const (
	KindContact          Kind = "contact"
	KindGroup            Kind = "group"
	KindDistributionList Kind = "distribution-list"
)

// TriggerSource records the provenance of a state change: a local user
// action or a remote sync. It is carried as metadata only; device sync
// itself happens outside this process.
type TriggerSource string

const (
	TriggerLocal TriggerSource = "local"
	TriggerSync  TriggerSource = "sync"
)

// Conversation tags stored in the conversation_tags table.
const (
	TagPinned = "pinned"
	TagUnread = "unread"
)

// CategoryPrivate marks a conversation as a private (hidden) chat.
const CategoryPrivate = "private"

// Contact identity states.
const (
	StateActive  = "active"
	StateInvalid = "invalid"
)

// Acquaintance levels for contacts. Group-only contacts are known
// solely through shared group membership and are hidden from the
// default conversation listing.
const (
	AcquaintanceDirect    = 0
	AcquaintanceGroupOnly = 1
)

// Message types. Group call status messages are status messages that
// still count towards the conversation's message count.
const (
	MessageTypeText            = "text"
	MessageTypeFile            = "file"
	MessageTypeGroupCallStatus = "group-call-status"
)

// Contact is a 1:1 chat peer, keyed by its identity string.
type Contact struct {
	Identity          string
	Name              string
	State             string
	AcquaintanceLevel int
	IsArchived        bool
	IsBlocked         bool
	LastUpdate        *int64
	CreatedAt         int64
}

// Group is a group chat receiver.
type Group struct {
	ID              int64
	Name            string
	CreatorIdentity string
	IsArchived      bool
	IsMember        bool
	LastUpdate      *int64
	CreatedAt       int64
}

// DistributionList is a broadcast list receiver. Hidden lists are
// ad-hoc lists that never show up in conversation listings.
type DistributionList struct {
	ID         int64
	Name       string
	IsArchived bool
	IsHidden   bool
	LastUpdate *int64
	CreatedAt  int64
}

// Message is one row of the kind-specific message table. Exactly one
// of Identity, GroupID or DistributionListID is set, matching Kind.
type Message struct {
	ID                 int64
	Kind               Kind
	Identity           string
	GroupID            int64
	DistributionListID int64
	Body               string
	Type               string
	IsStatus           bool
	IsSaved            bool
	IsRead             bool
	IsOutbox           bool
	IsDownloaded       bool
	CreatedAt          int64
}

// ConversationKey returns the kind-specific conversation identifier of
// the message in string form.
func (m *Message) ConversationKey() string {
	switch m.Kind {
	case KindGroup:
		return formatID(m.GroupID)
	case KindDistributionList:
		return formatID(m.DistributionListID)
	default:
		return m.Identity
	}
}

// IsUnread reports whether the message counts as unread: an inbound,
// non-status message that has not been read yet.
func (m *Message) IsUnread() bool {
	return m != nil && !m.IsStatus && !m.IsOutbox && !m.IsRead
}

// ConversationRow is the raw projection returned by the per-kind
// conversation queries. It is consumed immediately by the index and
// discarded.
type ConversationRow struct {
	Identifier      string
	MessageCount    int64
	LastUpdate      int64
	LatestMessageID *int64
}

// TagRow is one (conversation uid, tag) pair.
type TagRow struct {
	ConversationUID string
	Tag             string
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

