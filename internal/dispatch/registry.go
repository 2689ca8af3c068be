package dispatch

import (
	"context"
	"fmt"
	"sync"

	"taskagent/internal/logging"
	"taskagent/internal/perception"

	"go.uber.org/zap"
)

// Handler performs the work for one intent. It returns a short status
// message on success.
type Handler interface {
	Handle(ctx context.Context, params perception.Bundle) (string, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, params perception.Bundle) (string, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, params perception.Bundle) (string, error) {
	return f(ctx, params)
}

// Registry maps intents to handlers. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[perception.TaskIntent]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[perception.TaskIntent]Handler)}
}

// Register binds a handler to an intent.
func (r *Registry) Register(intent perception.TaskIntent, h Handler) error {
	if !intent.Valid() {
		return fmt.Errorf("cannot register handler for %s", intent)
	}
	if h == nil {
		return fmt.Errorf("%w: %s", ErrHandlerNil, intent)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[intent]; exists {
		return fmt.Errorf("%w: %s", ErrHandlerAlreadyRegistered, intent)
	}
	r.handlers[intent] = h

	logging.Get(logging.CategoryDispatch).Debug("registered handler", zap.String("intent", intent.String()))
	return nil
}

// MustRegister registers a handler and panics on error.
func (r *Registry) MustRegister(intent perception.TaskIntent, h Handler) {
	if err := r.Register(intent, h); err != nil {
		panic(fmt.Sprintf("failed to register handler: %v", err))
	}
}

// Lookup returns the handler for an intent.
func (r *Registry) Lookup(intent perception.TaskIntent) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[intent]
	return h, ok
}

// Intents returns the registered intents in declaration order.
func (r *Registry) Intents() []perception.TaskIntent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]perception.TaskIntent, 0, len(r.handlers))
	for _, intent := range perception.AllIntents() {
		if _, ok := r.handlers[intent]; ok {
			out = append(out, intent)
		}
	}
	return out
}

// Count returns the number of registered handlers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}
