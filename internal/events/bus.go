package events

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"conductor/pkg/logging"
)

// Bus is the publish/subscribe signalling backbone of the engine. It is the
// only cross-cutting communication path between components: no component
// calls another's event handlers directly.
//
// Delivery is synchronous and in handler-registration order for a given
// event. A handler panicking does not prevent delivery to subsequent
// handlers; the panic is recovered and re-emitted as a diagnostic EventError.
type Bus struct {
	mu     sync.RWMutex
	subs   []*subscription
	nextID int
}

type subscription struct {
	id      int
	pattern string
	handler Handler
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{}
}

// On subscribes a handler to every event whose name matches pattern and
// returns a subscription id for Off. Patterns are either an exact event name
// or a prefix with a trailing wildcard: "task.*" matches "task.started" and
// "task.completed"; a bare "*" matches everything.
func (b *Bus) On(pattern string, handler Handler) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.subs = append(b.subs, &subscription{
		id:      b.nextID,
		pattern: pattern,
		handler: handler,
	})
	return b.nextID
}

// Off removes the subscription with the given id. Removing an unknown id is
// a no-op, so tearing down twice is safe.
func (b *Bus) Off(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.subs {
		if sub.id == id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Emit delivers an event to all matching subscribers, in registration order.
func (b *Bus) Emit(name string, data map[string]interface{}) {
	b.emit(Event{Name: name, Timestamp: time.Now(), Data: data})
}

// EmitTask delivers a task-scoped event. Events emitted for the same task
// from the same goroutine arrive at subscribers in emission order.
func (b *Bus) EmitTask(name, taskID string, data map[string]interface{}) {
	b.emit(Event{Name: name, TaskID: taskID, Timestamp: time.Now(), Data: data})
}

func (b *Bus) emit(evt Event) {
	b.mu.RLock()
	// Snapshot under the read lock so handlers may subscribe/unsubscribe
	// without deadlocking. A handler added during delivery sees only later
	// emissions.
	matching := make([]*subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		if Matches(sub.pattern, evt.Name) {
			matching = append(matching, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range matching {
		b.deliver(sub, evt)
	}
}

func (b *Bus) deliver(sub *subscription, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("event handler panic: %v", r)
			logging.Error("EventBus", err, "handler for pattern %q panicked on event %s", sub.pattern, evt.Name)
			if evt.Name == EventError {
				// An error-handler panicking must not recurse.
				return
			}
			b.emit(Event{
				Name:      EventError,
				TaskID:    evt.TaskID,
				Timestamp: time.Now(),
				Data: map[string]interface{}{
					"source":  evt.Name,
					"pattern": sub.pattern,
					"error":   err.Error(),
				},
			})
		}
	}()
	sub.handler(evt)
}

// Matches reports whether an event name matches a subscription pattern.
// Supported forms: exact name, "prefix.*" (trailing wildcard), and "*".
func Matches(pattern, name string) bool {
	if pattern == "*" {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, ".*"); ok {
		return strings.HasPrefix(name, prefix+".")
	}
	return pattern == name
}
