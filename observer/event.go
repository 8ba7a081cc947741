package observer

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types pushed to observers.
const (
	TypeTurn   = "turn"
	TypeBoards = "boards"
	TypeChat   = "chat"
	TypeNotice = "notice"
	TypeEnd    = "end"
)

// Event is one message of the feed. Each event is sent as a single JSON
// text message.
type Event struct {
	Type string          `json:"type"`
	Seq  uint64          `json:"seq"`
	Time time.Time       `json:"time"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewEvent creates an event with data marshaled into the data field.
func NewEvent(typ string, data any) (Event, error) {
	e := Event{Type: typ, Time: time.Now()}
	if err := e.WriteDataFrom(data); err != nil {
		return Event{}, fmt.Errorf("cannot encode %s event: %w", typ, err)
	}
	return e, nil
}

// ReadDataTo unmarshals the data field into v.
func (e Event) ReadDataTo(v any) error {
	return json.Unmarshal(e.Data, v)
}

// WriteDataFrom marshals v into the data field.
func (e *Event) WriteDataFrom(v any) error {
	if v == nil {
		e.Data = nil
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	e.Data = b
	return nil
}

// String returns the JSON encoding of the event.
func (e Event) String() string {
	b, _ := json.Marshal(e)
	return string(b)
}

// turnData is the payload of TypeTurn.
type turnData struct {
	State  string `json:"state"`
	MyTurn bool   `json:"myTurn"`
}

// noticeData is the payload of TypeNotice.
type noticeData struct {
	Kind  string `json:"kind"`
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

// endData is the payload of TypeEnd.
type endData struct {
	Status string `json:"status"`
}
