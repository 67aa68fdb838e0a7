package ilp

import (
	"fmt"
	"time"
)

// ProtocolVersion selects the wire encoding of float and array values.
type ProtocolVersion int

const (
	// ProtocolVersion1 is the text-only encoding.
	ProtocolVersion1 ProtocolVersion = 1
	// ProtocolVersion2 adds binary floats and float arrays.
	ProtocolVersion2 ProtocolVersion = 2
)

func (v ProtocolVersion) String() string {
	return fmt.Sprintf("v%d", int(v))
}

// Valid reports whether v is a known protocol version.
func (v ProtocolVersion) Valid() bool {
	return v == ProtocolVersion1 || v == ProtocolVersion2
}

// Field is a named symbol or column value. A nil Value is skipped.
type Field struct {
	Name  string
	Value any
}

// F is shorthand for Field{Name: name, Value: value}.
func F(name string, value any) Field {
	return Field{Name: name, Value: value}
}

// Row is one line of input for a single table. Symbols are written before
// columns, both in slice order.
type Row struct {
	Table   string
	Symbols []Field
	Columns []Field
	At      Timestamp
}

// TimestampMicros is a column value counted in microseconds since the epoch.
type TimestampMicros int64

// TimestampNanos is a column value counted in nanoseconds since the epoch.
type TimestampNanos int64

type timeUnit uint8

const (
	unitServer timeUnit = iota
	unitNanos
	unitMicros
)

// Timestamp is the designated timestamp of a row: either a client supplied
// instant or ServerTime, letting the server assign it on arrival.
type Timestamp struct {
	unit  timeUnit
	value int64
}

// ServerTime asks the server to assign the row's timestamp.
var ServerTime = Timestamp{}

// AtNanos is a client supplied timestamp in nanoseconds since the epoch.
func AtNanos(n int64) Timestamp { return Timestamp{unit: unitNanos, value: n} }

// AtMicros is a client supplied timestamp in microseconds since the epoch.
func AtMicros(n int64) Timestamp { return Timestamp{unit: unitMicros, value: n} }

// AtTime converts t to a nanosecond timestamp.
func AtTime(t time.Time) Timestamp { return AtNanos(t.UnixNano()) }

// Now is AtTime(time.Now()).
func Now() Timestamp { return AtTime(time.Now()) }

// IsServerTime reports whether the server assigns the timestamp.
func (t Timestamp) IsServerTime() bool { return t.unit == unitServer }

// Float64Array is an N-dimensional array of doubles in row-major order.
type Float64Array struct {
	Shape []int
	Data  []float64
}

// NewFloat64Array checks that shape matches the number of elements.
func NewFloat64Array(shape []int, data []float64) (Float64Array, error) {
	a := Float64Array{Shape: shape, Data: data}
	if err := a.validate(); err != nil {
		return Float64Array{}, err
	}
	return a, nil
}

const (
	maxArrayDims   = 32
	maxArrayDimLen = 1<<28 - 1
	maxArrayElems  = (1<<31 - 1) / 8
)

func (a Float64Array) validate() error {
	if len(a.Shape) == 0 || len(a.Shape) > maxArrayDims {
		return Errorf(ErrInvalidValue,
			"Array dimension count %d is out of range, must be between 1 and %d.", len(a.Shape), maxArrayDims)
	}
	n := 1
	for i, d := range a.Shape {
		if d < 0 || d > maxArrayDimLen {
			return Errorf(ErrInvalidValue, "Array dimension %d has invalid length %d.", i, d)
		}
		if n != 0 && d > maxArrayElems/n {
			return Errorf(ErrInvalidValue, "Array shape %v has too many elements.", a.Shape)
		}
		n *= d
	}
	if n != len(a.Data) {
		return Errorf(ErrInvalidValue,
			"Array shape %v requires %d elements, got %d.", a.Shape, n, len(a.Data))
	}
	return nil
}
