package feed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Zia-Rashid/Krusty-Krab/market"
)

// Message is one parsed inbound frame.
type Message struct {
	Received time.Time
	Bars     []market.Bar
	Raw      []byte
}

// event is one element of a stream frame. Frames are JSON arrays of events
// discriminated by "T": "success", "error", "subscription", "b" (minute
// bar), "d" (daily bar), "u" (updated bar).
type event struct {
	T    string `json:"T"`
	Msg  string `json:"msg,omitempty"`
	Code int    `json:"code,omitempty"`

	Symbol string    `json:"S,omitempty"`
	Open   float64   `json:"o,omitempty"`
	High   float64   `json:"h,omitempty"`
	Low    float64   `json:"l,omitempty"`
	Close  float64   `json:"c,omitempty"`
	Volume float64   `json:"v,omitempty"`
	Time   time.Time `json:"t"`
}

func (e event) isBar() bool {
	switch e.T {
	case "b", "d", "u":
		return e.Symbol != ""
	}
	return false
}

func (e event) bar() market.Bar {
	return market.Bar{
		Symbol: e.Symbol,
		Time:   e.Time,
		Open:   e.Open,
		High:   e.High,
		Low:    e.Low,
		Close:  e.Close,
		Volume: e.Volume,
	}
}

// parseEvents accepts an array of events or a single event object.
func parseEvents(raw []byte) ([]event, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, nil
	}
	if raw[0] == '{' {
		var e event
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		return []event{e}, nil
	}
	var evs []event
	if err := json.Unmarshal(raw, &evs); err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}
	return evs, nil
}

// ParseMessage decodes a stream frame and extracts its bars.
func ParseMessage(raw []byte, received time.Time) (Message, error) {
	evs, err := parseEvents(raw)
	if err != nil {
		return Message{}, err
	}
	m := Message{Received: received, Raw: raw}
	for _, e := range evs {
		if e.isBar() {
			m.Bars = append(m.Bars, e.bar())
		}
	}
	return m, nil
}

type authRequest struct {
	Action string `json:"action"`
	Key    string `json:"key"`
	Secret string `json:"secret"`
}

type subscribeRequest struct {
	Action string   `json:"action"`
	Bars   []string `json:"bars"`
}
