package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dmelo/convd/internal/bus"
	"github.com/dmelo/convd/internal/conversation"
	"github.com/dmelo/convd/internal/store"
)

// entryJSON is the wire projection of a conversation entry.
type entryJSON struct {
	UID            string       `json:"uid"`
	Kind           string       `json:"kind"`
	Identifier     string       `json:"identifier"`
	DisplayName    string       `json:"display_name"`
	MessageCount   int64        `json:"message_count"`
	LastUpdate     int64        `json:"last_update"`
	UnreadCount    int64        `json:"unread_count"`
	IsPinned       bool         `json:"is_pinned"`
	IsMarkedUnread bool         `json:"is_marked_unread"`
	Position       int          `json:"position"`
	IsTyping       bool         `json:"is_typing,omitempty"`
	LatestMessage  *messageJSON `json:"latest_message,omitempty"`
}

type messageJSON struct {
	ID        int64  `json:"id"`
	Body      string `json:"body"`
	Type      string `json:"type"`
	IsStatus  bool   `json:"is_status"`
	IsRead    bool   `json:"is_read"`
	IsOutbox  bool   `json:"is_outbox"`
	CreatedAt int64  `json:"created_at"`
}

func toEntryJSON(e *conversation.Entry) entryJSON {
	out := entryJSON{
		UID:            e.UID(),
		Kind:           string(e.Kind),
		Identifier:     e.Identifier(),
		DisplayName:    e.DisplayName(),
		MessageCount:   e.MessageCount,
		LastUpdate:     e.LastUpdate,
		UnreadCount:    e.UnreadCount,
		IsPinned:       e.IsPinTagged,
		IsMarkedUnread: e.IsUnreadTagged,
		Position:       e.Position,
		IsTyping:       e.IsTyping,
	}
	if m := e.LatestMessage; m != nil {
		out.LatestMessage = &messageJSON{
			ID:        m.ID,
			Body:      m.Body,
			Type:      m.Type,
			IsStatus:  m.IsStatus,
			IsRead:    m.IsRead,
			IsOutbox:  m.IsOutbox,
			CreatedAt: m.CreatedAt,
		}
	}
	return out
}

func toEntryList(entries []*conversation.Entry) []entryJSON {
	out := make([]entryJSON, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntryJSON(e))
	}
	return out
}

func (s *Server) listConversations(c *gin.Context) {
	forceReload := c.Query("reload") == "true"
	filter := &conversation.Filter{
		OnlyUnread:          c.Query("unread") == "true",
		NoDistributionLists: c.Query("no_distribution_lists") == "true",
		NoHiddenChats:       c.Query("no_hidden") == "true",
		NoInvalid:           c.Query("no_invalid") == "true",
		OnlyPersonal:        c.Query("personal") == "true",
		Query:               c.Query("q"),
	}

	entries, err := s.index.GetAll(forceReload, filter)
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": toEntryList(entries)})
}

func (s *Server) listArchived(c *gin.Context) {
	entries, err := s.index.GetArchived(c.Query("q"))
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": toEntryList(entries)})
}

func (s *Server) archivedCount(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"count": s.index.ArchivedCount()})
}

func (s *Server) archiveConversation(c *gin.Context) {
	kind, ok := parseKind(c)
	if !ok {
		return
	}
	if err := s.index.Archive(kind, c.Param("id"), parseTrigger(c)); err != nil {
		s.handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) unarchiveConversation(c *gin.Context) {
	kind, ok := parseKind(c)
	if !ok {
		return
	}
	identifier := c.Param("id")
	if err := s.index.Unarchive(kind, identifier, parseTrigger(c)); err != nil {
		s.handleError(c, err)
		return
	}
	// Repopulate through the regular receiver-updated path.
	s.bus.Emit(bus.KindReceiverUpdated, bus.ReceiverRef{Kind: string(kind), Identifier: identifier})
	c.Status(http.StatusNoContent)
}

func (s *Server) markConversationRead(c *gin.Context) {
	kind, ok := parseKind(c)
	if !ok {
		return
	}
	if err := s.index.MarkRead(kind, c.Param("id")); err != nil {
		s.handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) emptyConversation(c *gin.Context) {
	kind, ok := parseKind(c)
	if !ok {
		return
	}
	silent := c.Query("silent") == "true"
	deleted, err := s.index.Empty(kind, c.Param("id"), silent)
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

func (s *Server) pinConversation(c *gin.Context) {
	s.setTag(c, store.TagPinned, true)
}

func (s *Server) unpinConversation(c *gin.Context) {
	s.setTag(c, store.TagPinned, false)
}

func (s *Server) markConversationUnread(c *gin.Context) {
	s.setTag(c, store.TagUnread, true)
}

func (s *Server) setTag(c *gin.Context, tag string, add bool) {
	kind, ok := parseKind(c)
	if !ok {
		return
	}
	uid := conversation.UIDFor(kind, c.Param("id"))

	var err error
	if add {
		err = s.db.AddTag(uid, tag)
	} else {
		err = s.db.RemoveTag(uid, tag)
	}
	if err != nil {
		s.handleError(c, err)
		return
	}
	s.bus.Emit(bus.KindTagsUpdated, bus.ReceiverRef{Kind: string(kind), Identifier: c.Param("id")})
	c.Status(http.StatusNoContent)
}

func (s *Server) markConversationPrivate(c *gin.Context) {
	s.setPrivateCategory(c, true)
}

func (s *Server) unmarkConversationPrivate(c *gin.Context) {
	s.setPrivateCategory(c, false)
}

// setPrivateCategory toggles the private category; the no_hidden filter
// reads categories fresh per query, so no bus event is needed.
func (s *Server) setPrivateCategory(c *gin.Context, private bool) {
	kind, ok := parseKind(c)
	if !ok {
		return
	}
	uid := conversation.UIDFor(kind, c.Param("id"))

	var err error
	if private {
		err = s.db.SetConversationCategory(uid, store.CategoryPrivate)
	} else {
		err = s.db.ClearConversationCategory(uid)
	}
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) setTyping(c *gin.Context) {
	kind, ok := parseKind(c)
	if !ok {
		return
	}
	if kind != store.KindContact {
		c.JSON(http.StatusBadRequest, gin.H{"error": "typing only applies to contact conversations"})
		return
	}
	s.index.SetTyping(c.Param("id"), c.Query("active") != "false")
	c.Status(http.StatusNoContent)
}

func (s *Server) deleteContactConversation(c *gin.Context) {
	if err := s.index.Delete(c.Param("id")); err != nil {
		s.handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) recalculateLastUpdates(c *gin.Context) {
	if err := s.index.RecalculateLastUpdates(); err != nil {
		s.handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func parseInt64Param(c *gin.Context, name string) (int64, bool) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return v, true
}
