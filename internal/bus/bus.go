// Package bus provides the in-process publish/subscribe layer that
// decouples the collaboration engine from its consumers.
package bus

import "sync"

type Handler func(payload any)

type Bus struct {
	mu       sync.Mutex
	nextID   int
	handlers map[string]map[int]Handler
}

func New() *Bus {
	return &Bus{handlers: make(map[string]map[int]Handler)}
}

// On registers a handler for an event name and returns a subscription id
// for Off. Handlers are invoked synchronously in Publish order.
func (b *Bus) On(event string, fn Handler) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	if b.handlers[event] == nil {
		b.handlers[event] = make(map[int]Handler)
	}
	b.handlers[event][b.nextID] = fn
	return b.nextID
}

// Off removes a subscription. Unknown ids are ignored.
func (b *Bus) Off(event string, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subs, ok := b.handlers[event]; ok {
		delete(subs, id)
		if len(subs) == 0 {
			delete(b.handlers, event)
		}
	}
}

func (b *Bus) Publish(event string, payload any) {
	b.mu.Lock()
	subs := b.handlers[event]
	fns := make([]Handler, 0, len(subs))
	for _, fn := range subs {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(payload)
	}
}
