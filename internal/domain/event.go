package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Phase-completion event as reported by external producers.
// Raw keeps the original bytes so the event can be republished unchanged.
type PhaseEvent struct {
	DetailType string      `json:"detailType"`
	Detail     EventDetail `json:"detail"`

	Raw json.RawMessage `json:"-"`
}

type EventDetail struct {
	Data *EventData `json:"data"`
}

type EventData struct {
	ShipmentID      string           `json:"shipmentId"`
	CurrentPhase    string           `json:"currentPhase"`
	ExecutionStatus string           `json:"executionStatus"`
	ExecutionPlan   []ExecutionStep  `json:"executionPlan"`
	MasterPlan      []MasterPlanStep `json:"masterPlan"`
	DueDate         string           `json:"dueDate"`
	ShipmentClass   string           `json:"shipmentClass,omitempty"`
	IsPriority      *bool            `json:"isPriority,omitempty"`
}

// Validate reports ErrValidation when the event cannot be routed.
func (e PhaseEvent) Validate() error {
	if strings.TrimSpace(e.DetailType) == "" {
		return fmt.Errorf("%w: missing detailType", ErrValidation)
	}
	if e.Detail.Data == nil || strings.TrimSpace(e.Detail.Data.ShipmentID) == "" {
		return fmt.Errorf("%w: missing shipmentId", ErrValidation)
	}
	return nil
}

// DeclaredClass returns the class the producer declared, if any.
// An explicit shipmentClass wins over the isPriority flag.
func (d EventData) DeclaredClass() (ShipmentClass, bool) {
	if c := strings.TrimSpace(d.ShipmentClass); c != "" {
		return ShipmentClass(c), true
	}
	if d.IsPriority != nil {
		if *d.IsPriority {
			return ClassPriority, true
		}
		return ClassStandard, true
	}
	return "", false
}

// Entry put on the broadcast channel for every accepted event.
type OutboundEvent struct {
	ID      string          `json:"id"`
	Source  string          `json:"source"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Message enqueued for shipments the liveness sweep gave up on.
type RecoveryMessage struct {
	ShipmentID string `json:"shipmentId"`
	Reason     string `json:"reason"`
}

type ChangeKind string

const (
	ChangeInsert ChangeKind = "INSERT"
	ChangeModify ChangeKind = "MODIFY"
)

// RecordChange is one ExecutionRecordStore mutation as seen by listeners.
type RecordChange struct {
	Kind   ChangeKind
	Origin MutationOrigin
	Record ExecutionRecord
}

// DecodeBatch accepts either a bare JSON array of events or an object with an
// "events" field holding that array (or that array encoded as a string).
// Items that are not objects are kept with an empty DetailType so they are
// skipped by validation rather than failing the whole batch.
func DecodeBatch(body []byte) ([]PhaseEvent, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, errors.New("decode batch: empty body")
	}

	var items []json.RawMessage
	switch body[0] {
	case '[':
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, fmt.Errorf("decode batch: parse array: %w", err)
		}
	case '{':
		var envelope struct {
			Events json.RawMessage `json:"events"`
		}
		if err := json.Unmarshal(body, &envelope); err != nil {
			return nil, fmt.Errorf("decode batch: parse envelope: %w", err)
		}
		raw := bytes.TrimSpace(envelope.Events)
		if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
			return nil, errors.New("decode batch: missing events")
		}
		if raw[0] == '"' {
			var inner string
			if err := json.Unmarshal(raw, &inner); err != nil {
				return nil, fmt.Errorf("decode batch: parse events string: %w", err)
			}
			raw = []byte(inner)
		}
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("decode batch: parse events: %w", err)
		}
	default:
		return nil, errors.New("decode batch: expected array or object")
	}

	events := make([]PhaseEvent, 0, len(items))
	for _, item := range items {
		var ev PhaseEvent
		if err := json.Unmarshal(item, &ev); err != nil {
			ev = PhaseEvent{}
		}
		ev.Raw = item
		events = append(events, ev)
	}
	return events, nil
}
