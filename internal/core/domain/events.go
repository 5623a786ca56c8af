package domain

type EventType string

const (
	EventTypeResult         EventType = "result"
	EventTypeError          EventType = "error"
	EventTypeSearchComplete EventType = "search_complete"
)

// SourceEvent is the unit produced by the orchestrator for a job.
// Exactly one of the variants is populated according to Type:
//   - result: Source and Item
//   - error: Source and Message
//   - search_complete: nothing else, always the last event of a job
type SourceEvent struct {
	Type    EventType
	Source  SourceID
	Item    *ListingRecord
	Message string
}

func NewResultEvent(source SourceID, item ListingRecord) SourceEvent {
	return SourceEvent{Type: EventTypeResult, Source: source, Item: &item}
}

func NewSourceErrorEvent(source SourceID, message string) SourceEvent {
	return SourceEvent{Type: EventTypeError, Source: source, Message: message}
}

func NewJobCompleteEvent() SourceEvent {
	return SourceEvent{Type: EventTypeSearchComplete}
}

func (e SourceEvent) IsTerminal() bool {
	return e.Type == EventTypeSearchComplete
}
