package model

// EventType names a change to shared state.
type EventType string

const (
	EventTrackAdded     EventType = "track_added"
	EventTrackRemoved   EventType = "track_removed"
	EventPointerChanged EventType = "pointer_changed"
)

// Event is pushed to connected clients whenever shared state changes. It only
// tells clients to refetch; the payload is informational.
type Event struct {
	Type      EventType `json:"type"`
	TrackID   string    `json:"trackId,omitempty"`
	Timestamp int64     `json:"timestamp"`
}
