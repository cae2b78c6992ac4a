package exchange

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventRoleChanged  EventType = "role_changed"
	EventControlRound EventType = "control_round"
)

// RoundEvent describes a finished control round.
type RoundEvent struct {
	ID              uuid.UUID `json:"id"`
	Responses       int       `json:"responses"`
	MeanLuminosity  int32     `json:"mean_luminosity"`
	MeanTemperature int32     `json:"mean_temperature"`
	Brightness      int32     `json:"brightness"`
	Text            string    `json:"text"`
}

// Event is one notification published to the events exchange. InstanceID
// distinguishes restarts of a node that keeps the same identity.
type Event struct {
	Type       EventType   `json:"type"`
	InstanceID uuid.UUID   `json:"instance_id"`
	Identity   string      `json:"identity"`
	State      string      `json:"state,omitempty"`
	Master     string      `json:"master,omitempty"`
	Round      *RoundEvent `json:"round,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}

// RoutingKey is the key the event is published under.
func (e Event) RoutingKey() string {
	return string(e.Type)
}

func (e Event) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s event: %w", e.Type, err)
	}
	return data, nil
}

func decodeEvent(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("failed to decode event: %w", err)
	}
	return e, nil
}
