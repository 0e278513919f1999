package realtime

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Subscriber is one live session handle that can receive fan-out.
// Deliver must not block: slow or dead subscribers report an error instead.
type Subscriber interface {
	ID() string
	Deliver(payload []byte) error
}

// Registry maps broadcast groups to their joined subscribers
type Registry interface {
	// Join adds sub to group. Joining twice is a no-op.
	Join(group string, sub Subscriber)
	// Leave removes sub from group. Leaving a group sub is not in is a no-op.
	Leave(group string, sub Subscriber)
	// Publish delivers payload to every member of group, including the
	// publisher. A failing member never prevents delivery to the others.
	Publish(ctx context.Context, group string, payload []byte) error
	Close() error
}

// GroupKey is the broadcast group of a chat
func GroupKey(chatID uint) string {
	return fmt.Sprintf("chat_%d", chatID)
}

// Hub is the in-process Registry
type Hub struct {
	mu     sync.RWMutex
	groups map[string]map[string]Subscriber
	log    *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		groups: make(map[string]map[string]Subscriber),
		log:    log.Named("hub"),
	}
}

var _ Registry = (*Hub)(nil)

func (h *Hub) Join(group string, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members := h.groups[group]
	if members == nil {
		members = make(map[string]Subscriber)
		h.groups[group] = members
	}
	members[sub.ID()] = sub
}

func (h *Hub) Leave(group string, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members := h.groups[group]
	if members == nil {
		return
	}
	delete(members, sub.ID())
	if len(members) == 0 {
		delete(h.groups, group)
	}
}

func (h *Hub) Publish(_ context.Context, group string, payload []byte) error {
	h.mu.RLock()
	members := make([]Subscriber, 0, len(h.groups[group]))
	for _, sub := range h.groups[group] {
		members = append(members, sub)
	}
	h.mu.RUnlock()

	for _, sub := range members {
		h.deliver(group, sub, payload)
	}
	return nil
}

func (h *Hub) deliver(group string, sub Subscriber, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("subscriber panicked on delivery",
				zap.String("group", group),
				zap.String("subscriber", sub.ID()),
				zap.Any("panic", r))
		}
	}()
	if err := sub.Deliver(payload); err != nil {
		h.log.Warn("delivery failed",
			zap.String("group", group),
			zap.String("subscriber", sub.ID()),
			zap.Error(err))
	}
}

// Members returns the number of subscribers joined to group
func (h *Hub) Members(group string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[group])
}

// Groups returns the number of non-empty groups
func (h *Hub) Groups() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups)
}

func (h *Hub) Close() error {
	h.mu.Lock()
	h.groups = make(map[string]map[string]Subscriber)
	h.mu.Unlock()
	return nil
}
