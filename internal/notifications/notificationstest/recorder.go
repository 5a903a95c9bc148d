// Package notificationstest provides an in-memory Dispatcher for tests.
package notificationstest

import (
	"context"
	"sync"

	"github.com/educatory/backend/internal/notifications"
)

// Recorder stores every dispatched message. Err, when set, is returned from
// Dispatch after recording.
type Recorder struct {
	mu       sync.Mutex
	messages []notifications.Message
	Err      error
}

func (r *Recorder) Dispatch(_ context.Context, msg notifications.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
	return r.Err
}

// Messages returns a copy of what was dispatched.
func (r *Recorder) Messages() []notifications.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notifications.Message(nil), r.messages...)
}

// OfType returns dispatched messages of the given email type.
func (r *Recorder) OfType(typ string) []notifications.Message {
	var out []notifications.Message
	for _, m := range r.Messages() {
		if m.Type == typ {
			out = append(out, m)
		}
	}
	return out
}
