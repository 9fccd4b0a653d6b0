package supervisor

import (
	"slices"
	"sync"
	"time"
)

// EventType is the kind of a status event.
type EventType string

const (
	EventStarted EventType = "started"
	EventStopped EventType = "stopped"
	EventError   EventType = "error"
	EventInfo    EventType = "info"
)

// Severity is the display hint of a status.
type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

// Status is a short human-readable connection status.
type Status struct {
	Severity Severity `json:"severity"`
	Label    string   `json:"label"`
	Text     string   `json:"text"`
}

// Event is broadcast to subscribers on every status change.
type Event struct {
	Type   EventType `json:"type"`
	Bot    string    `json:"bot"`
	Status Status    `json:"status"`
	Time   time.Time `json:"time"`
}

// broadcaster fans events out to subscribers. Callbacks run synchronously
// on the emitting goroutine, outside the lock.
type broadcaster struct {
	mu   sync.Mutex
	next int
	subs map[int]func(Event)
}

func (b *broadcaster) subscribe(fn func(Event)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs == nil {
		b.subs = make(map[int]func(Event))
	}
	id := b.next
	b.next++
	b.subs[id] = fn
	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
		})
	}
}

func (b *broadcaster) publish(e Event) {
	b.mu.Lock()
	ids := make([]int, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	fns := make([]func(Event), 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		fns = append(fns, b.subs[id])
	}
	b.mu.Unlock()
	for _, fn := range fns {
		fn(e)
	}
}
