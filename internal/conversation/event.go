package conversation

// EventKind is the kind of inbound channel event.
type EventKind string

const (
	EventText      EventKind = "text"
	EventSelection EventKind = "selection"
	EventLocation  EventKind = "location"
	EventDocument  EventKind = "document"
)

// Event is one inbound message from the channel adapter.
//
// Fields:
//  Kind        – text, selection, location or document.
//  Text        – free text, or the selection id for interactive replies.
//  Name        – profile name reported by the channel, if any.
//  Address     – address text attached to a location share.
//  Latitude    – coordinates of a location share.
//  Longitude   – coordinates of a location share.
//  DocumentRef – storage reference of an uploaded document.
type Event struct {
	Kind        EventKind `json:"kind"`
	Text        string    `json:"text,omitempty"`
	Name        string    `json:"name,omitempty"`
	Address     string    `json:"address,omitempty"`
	Latitude    float64   `json:"latitude,omitempty"`
	Longitude   float64   `json:"longitude,omitempty"`
	DocumentRef string    `json:"document_ref,omitempty"`
}
