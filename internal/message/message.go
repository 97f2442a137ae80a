// Package message describes outbound chat messages independently of any
// messaging vendor.  Channel adapters render these descriptors.
package message

// Kind selects how a message is rendered.
type Kind string

const (
	KindText    Kind = "text"
	KindButtons Kind = "buttons"
	KindList    Kind = "list"
)

// Button is a quick-reply option.  ID is echoed back as a selection event.
type Button struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Item is a row in a list message.
type Item struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// Message is one outbound descriptor.
type Message struct {
	Kind    Kind     `json:"kind"`
	Text    string   `json:"text"`
	Buttons []Button `json:"buttons,omitempty"`
	Items   []Item   `json:"items,omitempty"`
}

// Text builds a plain text message.
func Text(body string) Message {
	return Message{Kind: KindText, Text: body}
}

// Buttons builds a quick-reply message.
func Buttons(body string, buttons ...Button) Message {
	return Message{Kind: KindButtons, Text: body, Buttons: buttons}
}

// List builds a list picker message.
func List(body string, items ...Item) Message {
	return Message{Kind: KindList, Text: body, Items: items}
}
