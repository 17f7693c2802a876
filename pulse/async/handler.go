package async

import (
	"context"
	"sort"
	"sync"

	"github.com/teranos/pulsedesk/errors"
)

// JobHandler executes one job type. Handlers decode their own payload and
// return nil on success; a returned error counts as a failed attempt
// (wrap it with Permanent to skip the retries).
type JobHandler interface {
	Execute(ctx context.Context, job *Job) error

	// Name returns the handler name jobs are routed by (e.g. "ticket.notification").
	Name() string
}

// HandlerFunc adapts a function to JobHandler.
type HandlerFunc struct {
	HandlerName string
	Fn          func(ctx context.Context, job *Job) error
}

func (h HandlerFunc) Name() string { return h.HandlerName }

func (h HandlerFunc) Execute(ctx context.Context, job *Job) error { return h.Fn(ctx, job) }

// HandlerRegistry manages job handlers by name.
type HandlerRegistry struct {
	handlers map[string]JobHandler
	mu       sync.RWMutex
}

// NewHandlerRegistry creates an empty handler registry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[string]JobHandler)}
}

// Register adds a handler using its name.
// Panics if a handler is already registered with that name.
func (r *HandlerRegistry) Register(handler JobHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := handler.Name()
	if _, exists := r.handlers[name]; exists {
		panic("handler already registered for name: " + name)
	}
	r.handlers[name] = handler
}

// Get retrieves the handler for a handler name, or nil.
func (r *HandlerRegistry) Get(name string) JobHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[name]
}

// Names returns all registered handler names, sorted.
func (r *HandlerRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute dispatches the job to its handler. A job without a handler can
// never succeed, so that failure is permanent.
func (r *HandlerRegistry) Execute(ctx context.Context, job *Job) error {
	if job.HandlerName == "" {
		return Permanent(errors.New("job missing handler_name"))
	}
	handler := r.Get(job.HandlerName)
	if handler == nil {
		return Permanent(errors.Newf("no handler registered for handler name: %s", job.HandlerName))
	}
	return handler.Execute(ctx, job)
}
