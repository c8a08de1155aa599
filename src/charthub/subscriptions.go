package charthub

import (
	"fmt"

	"chart-hub/src/models"
)

// -----------------------------------------------------------------------------
// SubscriptionRegistry - who is focused on what.
//
// Three views over the same facts: socket -> focus, focus key -> socket
// set, symbol -> focus-key set. Empty sets are removed from their maps the
// moment they drain; the registry never accumulates zero-length entries.
// Callers serialize access through the hub's lock.
// -----------------------------------------------------------------------------

type SubscriptionRegistry struct {
	socketFocus  map[string]models.MFocus
	focusSockets map[string]map[string]struct{}
	symbolKeys   map[string]map[string]struct{}
}

// -----------------------------------------------------------------------------

func NewSubscriptionRegistry() *SubscriptionRegistry {
	return &SubscriptionRegistry{
		socketFocus:  make(map[string]models.MFocus),
		focusSockets: make(map[string]map[string]struct{}),
		symbolKeys:   make(map[string]map[string]struct{}),
	}
}

// -----------------------------------------------------------------------------

// FocusKey derives the fan-out key for a focus.
func FocusKey(focus models.MFocus) string {
	return fmt.Sprintf("%s:%s", focus.Symbol, focus.Timeframe)
}

// -----------------------------------------------------------------------------

// SetFocus records a socket's new focus and returns the previous one (if
// any) so the caller can tear it down. Switching focus is atomic from the
// caller's perspective: the old membership is fully removed here.
func (r *SubscriptionRegistry) SetFocus(socketID string, focus models.MFocus) (previous *models.MFocus, key string) {
	if prev, ok := r.socketFocus[socketID]; ok {
		previous = &prev
	}
	r.socketFocus[socketID] = focus
	key = FocusKey(focus)

	sockets, ok := r.focusSockets[key]
	if !ok {
		sockets = make(map[string]struct{})
		r.focusSockets[key] = sockets
	}
	sockets[socketID] = struct{}{}

	symbolKeys, ok := r.symbolKeys[focus.Symbol]
	if !ok {
		symbolKeys = make(map[string]struct{})
		r.symbolKeys[focus.Symbol] = symbolKeys
	}
	symbolKeys[key] = struct{}{}

	if previous != nil && FocusKey(*previous) != key {
		r.removeSocketFromFocus(socketID, *previous)
	}

	return previous, key
}

// -----------------------------------------------------------------------------

// ClearFocus removes a socket from every registry structure and returns its
// former focus, or nil when it had none.
func (r *SubscriptionRegistry) ClearFocus(socketID string) *models.MFocus {
	previous, ok := r.socketFocus[socketID]
	if !ok {
		return nil
	}
	r.removeSocketFromFocus(socketID, previous)
	delete(r.socketFocus, socketID)
	return &previous
}

// -----------------------------------------------------------------------------

// FocusForSocket returns the socket's current focus, or nil.
func (r *SubscriptionRegistry) FocusForSocket(socketID string) *models.MFocus {
	if focus, ok := r.socketFocus[socketID]; ok {
		return &focus
	}
	return nil
}

// -----------------------------------------------------------------------------

// SocketsForKey lists all sockets sharing a focus key.
func (r *SubscriptionRegistry) SocketsForKey(key string) []string {
	sockets := make([]string, 0, len(r.focusSockets[key]))
	for socketID := range r.focusSockets[key] {
		sockets = append(sockets, socketID)
	}
	return sockets
}

// -----------------------------------------------------------------------------

// FocusKeysForSymbol lists every active focus key for a symbol.
func (r *SubscriptionRegistry) FocusKeysForSymbol(symbol string) []string {
	keys := make([]string, 0, len(r.symbolKeys[symbol]))
	for key := range r.symbolKeys[symbol] {
		keys = append(keys, key)
	}
	return keys
}

// -----------------------------------------------------------------------------

func (r *SubscriptionRegistry) removeSocketFromFocus(socketID string, focus models.MFocus) {
	key := FocusKey(focus)
	sockets, ok := r.focusSockets[key]
	if !ok {
		return
	}

	delete(sockets, socketID)
	if len(sockets) > 0 {
		return
	}

	delete(r.focusSockets, key)
	if symbolKeys, ok := r.symbolKeys[focus.Symbol]; ok {
		delete(symbolKeys, key)
		if len(symbolKeys) == 0 {
			delete(r.symbolKeys, focus.Symbol)
		}
	}
}
