// Package client implements the process-scope client hub: typed
// publish/lookup of capability handles between modules.
package client

import (
	"reflect"
	"sync"
)

// DefaultScope is the scope used by the unscoped register/get helpers.
const DefaultScope = "global"

type hubKey struct {
	typ   reflect.Type
	scope string
}

// Hub stores shared capability handles keyed by their interface type and an
// optional scope. Registration happens during module init; lookups happen in
// any later phase. Last writer wins for the global scope.
type Hub struct {
	mu      sync.RWMutex
	entries map[hubKey]any
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{entries: make(map[hubKey]any)}
}

func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Register publishes a handle under the capability type T in the global scope.
func Register[T any](h *Hub, handle T) {
	RegisterScoped[T](h, DefaultScope, handle)
}

// RegisterScoped publishes a handle under the capability type T and a scope.
func RegisterScoped[T any](h *Hub, scope string, handle T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries[hubKey{typ: typeOf[T](), scope: scope}] = handle
}

// Get looks up the global-scope handle for the capability type T.
func Get[T any](h *Hub) (T, bool) {
	return GetScoped[T](h, DefaultScope)
}

// GetScoped looks up a scoped handle for the capability type T.
func GetScoped[T any](h *Hub, scope string) (T, bool) {
	h.mu.RLock()
	v, ok := h.entries[hubKey{typ: typeOf[T](), scope: scope}]
	h.mu.RUnlock()

	if !ok {
		var zero T
		return zero, false
	}
	return v.(T), true
}

// Len returns the number of registered handles.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}
