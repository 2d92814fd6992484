// Package ingest drives the conversation index from mutation events on
// the bus. The API layer writes to the store and publishes an event;
// the engine translates the event into the matching index refresh.
package ingest

import (
	"context"

	"github.com/dmelo/convd/internal/bus"
	"github.com/dmelo/convd/internal/conversation"
	"github.com/dmelo/convd/internal/store"
	"go.uber.org/zap"
)

// Engine subscribes to message, receiver and tag events and keeps the
// conversation index current.
type Engine struct {
	index  *conversation.Index
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// NewEngine creates a new ingest engine.
func NewEngine(index *conversation.Index, b *bus.Bus, logger *zap.Logger) *Engine {
	return &Engine{
		index:  index,
		bus:    b,
		logger: logger,
	}
}

// Start subscribes to mutation events on the bus.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})

	messages, unsubMessages := e.bus.Subscribe("message.", 256)
	receivers, unsubReceivers := e.bus.Subscribe("receiver.", 64)
	tags, unsubTags := e.bus.Subscribe("tags.", 64)

	go func() {
		defer close(e.done)
		defer unsubMessages()
		defer unsubReceivers()
		defer unsubTags()
		for {
			select {
			case evt := <-messages:
				e.handleMessageEvent(evt)
			case evt := <-receivers:
				e.handleReceiverEvent(evt)
			case <-tags:
				e.handleTagsUpdated()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the engine and waits for the event loop to drain.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
		<-e.done
	}
}

func (e *Engine) handleMessageEvent(evt bus.Event) {
	m, ok := evt.Payload.(*store.Message)
	if !ok {
		return
	}

	var err error
	switch evt.Kind {
	case bus.KindMessageAdded:
		_, err = e.index.RefreshMessage(m)
	case bus.KindMessageDeleted:
		_, err = e.index.MessageDeleted(m)
	case bus.KindMessageRead:
		err = e.index.MarkReadMessage(m)
	default:
		return
	}
	if err != nil {
		e.logger.Error("failed to apply message event",
			zap.String("kind", evt.Kind), zap.Int64("msg_id", m.ID), zap.Error(err))
	}
}

func (e *Engine) handleReceiverEvent(evt bus.Event) {
	ref, ok := evt.Payload.(bus.ReceiverRef)
	if !ok {
		return
	}
	kind := store.Kind(ref.Kind)

	switch evt.Kind {
	case bus.KindReceiverUpdated:
		if _, err := e.index.Refresh(kind, ref.Identifier); err != nil {
			e.logger.Error("failed to refresh conversation",
				zap.String("kind", ref.Kind), zap.String("identifier", ref.Identifier), zap.Error(err))
		}
	case bus.KindReceiverRemoved:
		e.index.RemoveFromCache(kind, ref.Identifier)
	}
}

func (e *Engine) handleTagsUpdated() {
	if err := e.index.UpdateTags(); err != nil {
		e.logger.Error("failed to reload conversation tags", zap.Error(err))
		return
	}
	e.index.Sort()
}
