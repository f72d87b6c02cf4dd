package eventbus

import (
	"context"
	"encoding/json"
	"time"
	"unicode/utf8"
)

// DeadLetter is what the dead-letter sink receives for every event that could
// not be processed: the original bytes plus why and after how many attempts.
type DeadLetter struct {
	Reason         string          `json:"reason"`
	AttemptCount   int             `json:"attemptCount"`
	LastError      string          `json:"lastError"`
	TransactionID  string          `json:"transactionId,omitempty"`
	AccountID      string          `json:"accountId,omitempty"`
	Source         string          `json:"source,omitempty"`
	MessageID      string          `json:"messageId,omitempty"`
	DeadLetteredAt time.Time       `json:"deadLetteredAt"`
	Event          json.RawMessage `json:"event,omitempty"`
	RawEvent       string          `json:"rawEvent,omitempty"`
	RawEventBytes  []byte          `json:"rawEventBytes,omitempty"`
}

// WithOriginal attaches payload, keeping it as JSON when it is JSON and as
// text or bytes otherwise.
func (d DeadLetter) WithOriginal(payload []byte) DeadLetter {
	switch {
	case len(payload) == 0:
	case json.Valid(payload):
		d.Event = json.RawMessage(append([]byte(nil), payload...))
	case utf8.Valid(payload):
		d.RawEvent = string(payload)
	default:
		d.RawEventBytes = append([]byte(nil), payload...)
	}
	return d
}

// Original returns the bytes of the dead-lettered event.
func (d DeadLetter) Original() []byte {
	switch {
	case len(d.Event) > 0:
		return d.Event
	case d.RawEvent != "":
		return []byte(d.RawEvent)
	}
	return d.RawEventBytes
}

// Marshal encodes the dead letter as JSON.
func (d DeadLetter) Marshal() ([]byte, error) { return json.Marshal(d) }

// DeadLetterSink stores dead letters durably. A nil error means the letter is
// safe and the original message may be acknowledged.
type DeadLetterSink interface {
	DeadLetter(ctx context.Context, d DeadLetter) error
}

// PublisherSink adapts a Publisher into a DeadLetterSink, keyed by account id.
type PublisherSink struct {
	Publisher Publisher
}

// DeadLetter implements DeadLetterSink.
func (s PublisherSink) DeadLetter(ctx context.Context, d DeadLetter) error {
	b, err := d.Marshal()
	if err != nil {
		return err
	}
	return s.Publisher.Publish(ctx, d.AccountID, b)
}
