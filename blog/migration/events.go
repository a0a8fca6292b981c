package migration

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// EventType is the lifecycle stage an Event reports.
type EventType string

const (
	EventStarted   EventType = "started"
	EventProgress  EventType = "progress"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
)

// Event is broadcast while a job runs.
type Event struct {
	JobID     string
	Job       string
	Group     string
	Type      EventType
	Processed int
	Total     int
	Failed    int
	Message   string
	Time      time.Time
}

// Observer receives job events. Notify must not block for long.
type Observer interface {
	Notify(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Notify(e Event) { f(e) }

// Broadcaster fans events out to its observers. The zero value has no
// observers and drops every event.
type Broadcaster struct {
	mu        sync.RWMutex
	observers []Observer
}

func (b *Broadcaster) Subscribe(o Observer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observers = append(b.observers, o)
}

func (b *Broadcaster) publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, o := range b.observers {
		o.Notify(e)
	}
}

// LogObserver writes job events to the global zerolog logger.
var LogObserver = ObserverFunc(func(e Event) {
	ev := log.Info()
	if e.Type == EventFailed {
		ev = log.Error()
	} else if e.Type == EventProgress {
		ev = log.Debug()
	}
	ev.Str("job_id", e.JobID).
		Str("job", e.Job).
		Str("group", e.Group).
		Str("event", string(e.Type)).
		Int("processed", e.Processed).
		Int("total", e.Total).
		Int("failed", e.Failed).
		Msg(e.Message)
})
