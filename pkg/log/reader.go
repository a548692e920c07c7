package log

import (
	"io"
	"os"
	"time"
)

// Filter specifies criteria for filtering log events.
// Empty/nil fields match all events for that criterion.
type Filter struct {
	// ConnectionID filters by exact connection ID match.
	ConnectionID string

	// Category filters by event category.
	Category *Category

	// DeviceID filters by device ID.
	DeviceID string

	// TimeStart filters events at or after this time.
	TimeStart *time.Time

	// TimeEnd filters events before this time.
	TimeEnd *time.Time
}

// matches returns true if the event matches all filter criteria.
func (f *Filter) matches(event Event) bool {
	if f.ConnectionID != "" && event.ConnectionID != f.ConnectionID {
		return false
	}
	if f.Category != nil && event.Category != *f.Category {
		return false
	}
	if f.DeviceID != "" && event.DeviceID != f.DeviceID {
		return false
	}
	if f.TimeStart != nil && event.Timestamp.Before(*f.TimeStart) {
		return false
	}
	if f.TimeEnd != nil && !event.Timestamp.Before(*f.TimeEnd) {
		return false
	}
	return true
}

// ReadEvents reads all events from a CBOR log file written by FileLogger.
// A nil filter returns every event. Decoding stops at the first decode
// error or EOF; events read up to that point are returned.
func ReadEvents(path string, filter *Filter) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	decoder := NewDecoder(f)
	var events []Event
	for {
		var event Event
		if err := decoder.Decode(&event); err != nil {
			if err == io.EOF {
				break
			}
			return events, err
		}
		if filter == nil || filter.matches(event) {
			events = append(events, event)
		}
	}
	return events, nil
}
