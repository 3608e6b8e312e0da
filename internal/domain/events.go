package domain

import (
	"encoding/json"
	"time"
)

// Bus channels.
const (
	ChannelOpportunity = "ch:opportunity"
	ChannelTrade       = "ch:trade"
	ChannelPosition    = "ch:position"
	ChannelStats       = "ch:stats"
)

// Event types carried in an Envelope.
const (
	EventOpportunity   = "opportunity"
	EventTradeOpened   = "trade_opened"
	EventTradeClosed   = "trade_closed"
	EventEmergencyExit = "emergency_exit"
	EventStuckPosition = "stuck_position"
	EventStats         = "stats"
	EventError         = "error"
)

// Envelope is the JSON frame published on the bus and relayed to
// WebSocket clients.
type Envelope struct {
	Type    string          `json:"type"`
	Time    time.Time       `json:"time"`
	Payload json.RawMessage `json:"payload"`
}

// NewEnvelope marshals payload into an Envelope of the given type.
func NewEnvelope(eventType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: eventType, Time: time.Now().UTC(), Payload: raw})
}
