package amqp

import "time"

// Table is the AMQP field-table value: a map from short-string keys to
// typed field values. Iteration order is unspecified on the wire — callers
// must not depend on insertion order surviving a round trip through a peer.
type Table map[string]any

// FieldArray is the AMQP field-array value: an ordered sequence of typed
// field values.
type FieldArray []any

// Decimal is the AMQP decimal-value: value × 10^(-scale).
type Decimal struct {
	Scale uint8
	Value int32
}

// Float returns the decimal's value as a float64, for display purposes
// only — arithmetic on Decimal should stay in the scaled-integer domain.
func (d Decimal) Float() float64 {
	v := float64(d.Value)
	for i := uint8(0); i < d.Scale; i++ {
		v /= 10
	}
	return v
}

// Timestamp is seconds since the Unix epoch, as carried on the wire.
type Timestamp int64

// Time converts a wire Timestamp to a time.Time in UTC.
func (t Timestamp) Time() time.Time { return time.Unix(int64(t), 0).UTC() }

// TimestampFromTime truncates t to whole seconds since the epoch.
func TimestampFromTime(t time.Time) Timestamp { return Timestamp(t.Unix()) }

// DeliveryMode values for BasicProperties.DeliveryMode.
const (
	DeliveryModeNonPersistent byte = 1
	DeliveryModePersistent    byte = 2
)
