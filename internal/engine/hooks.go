package engine

import (
	"context"
	"sync"
)

// CallbackType names an engine lifecycle point a module can subscribe to.
type CallbackType string

const (
	CallbackProcess      CallbackType = "process"
	CallbackHostCheck    CallbackType = "host_check"
	CallbackServiceCheck CallbackType = "service_check"
	CallbackEventHandler CallbackType = "event_handler"
)

// Verdict is what a callback tells the engine to do with the event.
type Verdict int

const (
	// Proceed lets the engine execute the check natively.
	Proceed Verdict = iota
	// Override tells the engine the check was taken over.
	Override
	// Abort drops the check: not intercepted and not executed.
	Abort
)

func (v Verdict) String() string {
	switch v {
	case Override:
		return "override"
	case Abort:
		return "abort"
	default:
		return "proceed"
	}
}

type Callback func(ctx context.Context, data any) Verdict

// Hooks is the engine's callback table. One callback per type.
type Hooks struct {
	mu        sync.RWMutex
	callbacks map[CallbackType]Callback
}

func NewHooks() *Hooks {
	return &Hooks{callbacks: make(map[CallbackType]Callback)}
}

func (h *Hooks) Subscribe(t CallbackType, cb Callback) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.callbacks[t] = cb
}

func (h *Hooks) Unsubscribe(t CallbackType) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.callbacks, t)
}

func (h *Hooks) Subscribed(t CallbackType) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.callbacks[t]
	return ok
}

// Emit runs the callback for t. Without a subscriber the engine proceeds.
// The callback runs outside the lock so it may change subscriptions.
func (h *Hooks) Emit(ctx context.Context, t CallbackType, data any) Verdict {
	h.mu.RLock()
	cb, ok := h.callbacks[t]
	h.mu.RUnlock()

	if !ok {
		return Proceed
	}
	return cb(ctx, data)
}
