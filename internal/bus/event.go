package bus

import "time"

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Event kinds published by the conversation index. The payloads are
// conversation entry snapshots (see internal/conversation).
const (
	KindConversationNew      = "conversation.new"
	KindConversationModified = "conversation.modified"
	KindConversationRemoved  = "conversation.removed"
)

// Event kinds consumed by the ingest engine. The API layer publishes
// them after store writes.
const (
	KindMessageAdded    = "message.added"
	KindMessageDeleted  = "message.deleted"
	KindMessageRead     = "message.read"
	KindReceiverUpdated = "receiver.updated"
	KindReceiverRemoved = "receiver.removed"
	KindTagsUpdated     = "tags.updated"
)

// ReceiverRef is the payload of receiver.* events: the conversation
// kind ("contact", "group" or "distribution-list") and the
// kind-specific identifier.
type ReceiverRef struct {
	Kind       string
	Identifier string
}
