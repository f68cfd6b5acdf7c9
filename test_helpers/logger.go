package test_helpers

import (
	"sync"

	query "github.com/ice-blockchain/go-tarantool-query"
)

// RecordingLogger keeps every reported event.
type RecordingLogger struct {
	mutex  sync.Mutex
	events []query.LogEvent
}

func (l *RecordingLogger) Report(event query.LogEvent) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.events = append(l.events, event)
}

// Events returns the names of the reported events in order.
func (l *RecordingLogger) Events() []string {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	names := make([]string, len(l.events))
	for i, event := range l.events {
		names[i] = event.EventName()
	}
	return names
}

// Find returns the first event with the given name.
func (l *RecordingLogger) Find(name string) (query.LogEvent, bool) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	for _, event := range l.events {
		if event.EventName() == name {
			return event, true
		}
	}
	return nil, false
}

// FindAll returns every event with the given name in order.
func (l *RecordingLogger) FindAll(name string) []query.LogEvent {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	var found []query.LogEvent
	for _, event := range l.events {
		if event.EventName() == name {
			found = append(found, event)
		}
	}
	return found
}
