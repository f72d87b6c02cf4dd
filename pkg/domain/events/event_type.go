package events

// EventType represents the type of an event in the system.
type EventType string

// Event type constants
const (
	// EventTypeTransactionInitiated is published upstream when a transaction
	// needs a balance adjustment on one account.
	EventTypeTransactionInitiated EventType = "Transaction.Initiated"
)

// String returns the string representation of the event type.
func (et EventType) String() string {
	return string(et)
}

// Event is implemented by every event carried on the bus.
type Event interface {
	Type() string
}
