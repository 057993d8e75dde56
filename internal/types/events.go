/*

This file contains the observable event log emitted by the vault and the
strategy manager for external monitoring and tooling.

*/

package types

import (
	"time"
)

// EventType identifies a single kind of observable state transition.
type EventType string

const (
	EventDeposit         EventType = "DEPOSIT"
	EventWithdrawal      EventType = "WITHDRAWAL"
	EventHarvest         EventType = "HARVEST"
	EventFeeDistributed  EventType = "FEE_DISTRIBUTED"
	EventIdleAllocated   EventType = "IDLE_ALLOCATED"
	EventAllocated       EventType = "ALLOCATED"
	EventRebalanced      EventType = "REBALANCED"
	EventStrategyAdded   EventType = "STRATEGY_ADDED"
	EventStrategyRemoved EventType = "STRATEGY_REMOVED"
)

// Event is a single entry in the minimum observable event log. Attribute keys
// are event-specific (user, assets, shares, profit, fee, strategy, ...); all
// values are rendered as strings so the log survives serialization unchanged.
type Event struct {
	ID         int64             `json:"id,omitempty"` // Assigned by the persistent store
	Type       EventType         `json:"type"`
	Timestamp  time.Time         `json:"timestamp"`
	Attributes map[string]string `json:"attributes"`
}

// NewEvent creates an event stamped with the current time.
func NewEvent(eventType EventType, attributes map[string]string) Event {
	if attributes == nil {
		attributes = make(map[string]string)
	}
	return Event{
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		Attributes: attributes,
	}
}

// EventSink receives every emitted event. Sinks must not fail the emitting
// operation: persistence problems are the sink's to log, not the ledger's.
type EventSink interface {
	Publish(event Event)
}

// NopSink discards every event.
type NopSink struct{}

func (NopSink) Publish(Event) {}

// MemorySink retains events in order of emission. Useful for tests and as a
// bounded in-process buffer behind the web API when no database is attached.
type MemorySink struct {
	events []Event
}

// NewMemorySink creates an empty in-memory event sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{events: make([]Event, 0)}
}

func (s *MemorySink) Publish(event Event) {
	event.ID = int64(len(s.events) + 1)
	s.events = append(s.events, event)
}

// Events returns a copy of everything published so far.
func (s *MemorySink) Events() []Event {
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// OfType returns all published events of the given type, in emission order.
func (s *MemorySink) OfType(eventType EventType) []Event {
	out := make([]Event, 0)
	for _, e := range s.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}
