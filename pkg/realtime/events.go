package realtime

import "encoding/json"

// EventKind identifies a recognized inbound signaling event.
type EventKind int

const (
	// KindUnknown covers unrecognized or non-parseable frames. They are
	// dropped at the transport boundary without raising.
	KindUnknown EventKind = iota
	// KindTextDelta is an incremental assistant text fragment.
	KindTextDelta
	// KindTextDone is a complete assistant text segment.
	KindTextDone
	// KindGenericDelta is any other message carrying a text-delta field.
	KindGenericDelta
)

// Event is the decoded form of one inbound signaling frame.
type Event struct {
	Kind EventKind
	Text string
}

// wireEvent is the superset of fields inspected during decode.
type wireEvent struct {
	Type  string `json:"type"`
	Delta string `json:"delta"`
	Text  string `json:"text"`
}

// DecodeEvent parses an inbound signaling frame into one of the closed set
// of event variants. Decoding happens once, here; nothing downstream
// re-inspects raw frames.
func DecodeEvent(raw []byte) Event {
	var w wireEvent
	if err := json.Unmarshal(raw, &w); err != nil {
		return Event{Kind: KindUnknown}
	}

	switch w.Type {
	case "response.output_text.delta":
		return Event{Kind: KindTextDelta, Text: w.Delta}
	case "response.output_text":
		return Event{Kind: KindTextDone, Text: w.Text}
	}

	if w.Delta != "" {
		return Event{Kind: KindGenericDelta, Text: w.Delta}
	}
	return Event{Kind: KindUnknown}
}

// sessionUpdate configures the remote session once the signaling channel
// opens. Instructions originate server-side; the client never injects
// conversational content of its own.
type sessionUpdate struct {
	Type    string        `json:"type"`
	Session sessionParams `json:"session"`
}

type sessionParams struct {
	Voice        string `json:"voice"`
	Instructions string `json:"instructions,omitempty"`
}

func newSessionUpdate(voice, instructions string) sessionUpdate {
	return sessionUpdate{
		Type:    "session.update",
		Session: sessionParams{Voice: voice, Instructions: instructions},
	}
}

// responseCreate triggers the opening turn. Sent at most once per connection.
type responseCreate struct {
	Type     string         `json:"type"`
	Response map[string]any `json:"response"`
}

func newResponseCreate() responseCreate {
	return responseCreate{Type: "response.create", Response: map[string]any{}}
}
