package domain

import (
	"context"
	"encoding/json"
	"fmt"
)

// EventKind discriminates the closed set of domain events.
type EventKind string

const (
	EventPriceChanged       EventKind = "price_changed"
	EventTransactionPending EventKind = "transaction_pending"
	EventTransactionSettled EventKind = "transaction_settled"
	EventTransactionFailed  EventKind = "transaction_failed"
	EventCycleCompleted     EventKind = "cycle_completed"
)

// Event is the closed union of domain events emitted by the economy core
// and consumed by the UI and AI-learning layers. Every variant carries
// typed fields; payloads are never loose maps.
type Event interface {
	Kind() EventKind
}

// PriceChanged is emitted by the market ledger when a cycle update moves an
// item's price.
type PriceChanged struct {
	ItemID   string  `json:"itemId"`
	OldPrice float64 `json:"oldPrice"`
	NewPrice float64 `json:"newPrice"`
}

func (PriceChanged) Kind() EventKind { return EventPriceChanged }

// TransactionPending is emitted immediately after the optimistic apply so
// dependent views update without waiting on the network.
type TransactionPending struct {
	Transaction Transaction `json:"transaction"`
}

func (TransactionPending) Kind() EventKind { return EventTransactionPending }

// TransactionSettled is emitted once the gateway confirms a trade.
type TransactionSettled struct {
	Transaction Transaction `json:"transaction"`
}

func (TransactionSettled) Kind() EventKind { return EventTransactionSettled }

// TransactionFailed is emitted when settlement fails and the optimistic
// mutation has been rolled back.
type TransactionFailed struct {
	Transaction Transaction `json:"transaction"`
	Reason      string      `json:"reason"`
}

func (TransactionFailed) Kind() EventKind { return EventTransactionFailed }

// CycleCompleted is emitted when a revenue cycle finishes processing.
type CycleCompleted struct {
	Cycle RevenueCycle `json:"cycle"`
}

func (CycleCompleted) Kind() EventKind { return EventCycleCompleted }

// EventBus publishes domain events to interested consumers. Implementations
// must not block the publisher on slow subscribers.
type EventBus interface {
	Publish(ctx context.Context, evt Event) error
	Subscribe(ctx context.Context) (<-chan Event, error)
}

// eventEnvelope is the wire form of an Event: a kind tag plus the JSON
// payload of the concrete variant.
type eventEnvelope struct {
	Kind    EventKind       `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// MarshalEvent encodes an event into its tagged wire form.
func MarshalEvent(evt Event) ([]byte, error) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("domain: marshal event %s: %w", evt.Kind(), err)
	}
	return json.Marshal(eventEnvelope{Kind: evt.Kind(), Payload: payload})
}

// UnmarshalEvent decodes a tagged wire form back into the concrete variant.
// Unknown kinds are an error: the union is closed.
func UnmarshalEvent(data []byte) (Event, error) {
	var env eventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("domain: unmarshal event envelope: %w", err)
	}

	var evt Event
	switch env.Kind {
	case EventPriceChanged:
		evt = &PriceChanged{}
	case EventTransactionPending:
		evt = &TransactionPending{}
	case EventTransactionSettled:
		evt = &TransactionSettled{}
	case EventTransactionFailed:
		evt = &TransactionFailed{}
	case EventCycleCompleted:
		evt = &CycleCompleted{}
	default:
		return nil, fmt.Errorf("domain: unknown event kind %q", env.Kind)
	}

	if err := json.Unmarshal(env.Payload, evt); err != nil {
		return nil, fmt.Errorf("domain: unmarshal %s payload: %w", env.Kind, err)
	}
	return evt, nil
}
