package ilp

import (
	"encoding/binary"
	"math"
	"strconv"
	"time"
	"unicode/utf8"
)

// Binary format markers, written after "name=" under ProtocolVersion2.
const (
	binaryFormatFlag = '='

	binaryTypeArray  byte = 14
	binaryTypeDouble byte = 16

	arrayElemDouble byte = 10
)

// le appends little-endian values, as encoding/binary's AppendByteOrder.
var le = binary.LittleEndian

// appendUnquoted writes a table name, column name or symbol value, escaping
// the characters that delimit the line.
func appendUnquoted(dst []byte, s string) []byte {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case ' ', ',', '=', '\\':
			dst = append(dst, '\\')
		}
		dst = append(dst, c)
	}
	return dst
}

// appendQuoted writes a string column value in double quotes.
func appendQuoted(dst []byte, s string) []byte {
	dst = append(dst, '"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"', '\\':
			dst = append(dst, '\\')
		}
		dst = append(dst, c)
	}
	return append(dst, '"')
}

// checkText rejects text values that can't be carried on a single line.
func checkText(name, s string) error {
	if !utf8.ValidString(s) {
		return Errorf(ErrInvalidValue, "Bad value for %q: invalid UTF-8.", name)
	}
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' || s[i] == '\r' {
			return Errorf(ErrInvalidValue,
				"Bad value for %q: new line characters are not allowed, found at byte position %d.", name, i)
		}
	}
	return nil
}

// AppendFloatText renders f as shortest round-trip decimal text that always
// reads back as a float: "3.0", "0.5", "1e16", "1.5e-7", "NaN", "Infinity".
func AppendFloatText(dst []byte, f float64) []byte {
	switch {
	case math.IsNaN(f):
		return append(dst, "NaN"...)
	case math.IsInf(f, 1):
		return append(dst, "Infinity"...)
	case math.IsInf(f, -1):
		return append(dst, "-Infinity"...)
	}
	if math.Signbit(f) {
		dst = append(dst, '-')
		f = -f
	}
	if f == 0 {
		return append(dst, "0.0"...)
	}

	// "d.ddddde±xx"
	var scratch [32]byte
	sci := strconv.AppendFloat(scratch[:0], f, 'e', -1, 64)
	ePos := 0
	for ePos < len(sci) && sci[ePos] != 'e' {
		ePos++
	}
	digits := make([]byte, 0, 17)
	for _, c := range sci[:ePos] {
		if c != '.' {
			digits = append(digits, c)
		}
	}
	exp, _ := strconv.Atoi(string(sci[ePos+1:]))
	// value = 0.digits * 10^point
	point := exp + 1
	n := len(digits)

	switch {
	case point >= n && point <= 16:
		dst = append(dst, digits...)
		for i := n; i < point; i++ {
			dst = append(dst, '0')
		}
		return append(dst, '.', '0')
	case point > 0 && point <= 16:
		dst = append(dst, digits[:point]...)
		dst = append(dst, '.')
		return append(dst, digits[point:]...)
	case point > -5 && point <= 0:
		dst = append(dst, '0', '.')
		for i := point; i < 0; i++ {
			dst = append(dst, '0')
		}
		return append(dst, digits...)
	}
	dst = append(dst, digits[0])
	if n > 1 {
		dst = append(dst, '.')
		dst = append(dst, digits[1:]...)
	}
	dst = append(dst, 'e')
	return strconv.AppendInt(dst, int64(point-1), 10)
}

// appendFloat writes the value part of a float column.
func appendFloat(dst []byte, f float64, v ProtocolVersion) []byte {
	if v == ProtocolVersion1 {
		return AppendFloatText(dst, f)
	}
	dst = append(dst, binaryFormatFlag, binaryTypeDouble)
	return le.AppendUint64(dst, math.Float64bits(f))
}

// appendArray writes the value part of an array column. Arrays only exist
// under ProtocolVersion2.
func appendArray(dst []byte, name string, a Float64Array, v ProtocolVersion) ([]byte, error) {
	if v < ProtocolVersion2 {
		return dst, Errorf(ErrInvalidValue,
			"Bad value for %q: arrays require protocol version 2 or later, the buffer uses %s.", name, v)
	}
	if err := a.validate(); err != nil {
		return dst, err
	}
	dst = append(dst, binaryFormatFlag, binaryTypeArray, arrayElemDouble, byte(len(a.Shape)))
	for _, d := range a.Shape {
		dst = le.AppendUint32(dst, uint32(d))
	}
	for _, x := range a.Data {
		dst = le.AppendUint64(dst, math.Float64bits(x))
	}
	return dst, nil
}

// appendColumnValue writes the part after "name=" for a typed column value.
func appendColumnValue(dst []byte, name string, value any, v ProtocolVersion) ([]byte, error) {
	switch x := value.(type) {
	case bool:
		if x {
			return append(dst, 't'), nil
		}
		return append(dst, 'f'), nil
	case int:
		return appendInt(dst, int64(x)), nil
	case int8:
		return appendInt(dst, int64(x)), nil
	case int16:
		return appendInt(dst, int64(x)), nil
	case int32:
		return appendInt(dst, int64(x)), nil
	case int64:
		return appendInt(dst, x), nil
	case uint8:
		return appendInt(dst, int64(x)), nil
	case uint16:
		return appendInt(dst, int64(x)), nil
	case uint32:
		return appendInt(dst, int64(x)), nil
	case uint:
		return appendUint(dst, name, uint64(x))
	case uint64:
		return appendUint(dst, name, x)
	case float32:
		return appendFloat(dst, float64(x), v), nil
	case float64:
		return appendFloat(dst, x, v), nil
	case string:
		if err := checkText(name, x); err != nil {
			return dst, err
		}
		return appendQuoted(dst, x), nil
	case TimestampMicros:
		return appendColumnTimestamp(dst, name, int64(x), unitMicros, v)
	case TimestampNanos:
		return appendColumnTimestamp(dst, name, int64(x), unitNanos, v)
	case time.Time:
		return appendColumnTimestamp(dst, name, x.UnixMicro(), unitMicros, v)
	case []float64:
		return appendArray(dst, name, Float64Array{Shape: []int{len(x)}, Data: x}, v)
	case Float64Array:
		return appendArray(dst, name, x, v)
	case *Float64Array:
		return appendArray(dst, name, *x, v)
	}
	return dst, Errorf(ErrInvalidValue, "Bad value for %q: unsupported column type %T.", name, value)
}

func appendInt(dst []byte, n int64) []byte {
	dst = strconv.AppendInt(dst, n, 10)
	return append(dst, 'i')
}

func appendUint(dst []byte, name string, n uint64) ([]byte, error) {
	if n > math.MaxInt64 {
		return dst, Errorf(ErrInvalidValue,
			"Bad value for %q: %d is out of range for a signed 64-bit integer.", name, n)
	}
	return appendInt(dst, int64(n)), nil
}

func appendColumnTimestamp(dst []byte, name string, n int64, unit timeUnit, v ProtocolVersion) ([]byte, error) {
	if n < 0 {
		return dst, Errorf(ErrInvalidValue, "Bad value for %q: timestamp %d must be a positive integer.", name, n)
	}
	if unit == unitNanos {
		if v >= ProtocolVersion2 {
			dst = strconv.AppendInt(dst, n, 10)
			return append(dst, 'n'), nil
		}
		n /= 1000
	}
	dst = strconv.AppendInt(dst, n, 10)
	return append(dst, 't'), nil
}

// appendDesignatedTimestamp writes the trailing timestamp of a row, without
// the separating space.
func appendDesignatedTimestamp(dst []byte, ts Timestamp, v ProtocolVersion) ([]byte, error) {
	if ts.value < 0 {
		return dst, Errorf(ErrInvalidValue, "Bad timestamp %d: value must be a positive integer.", ts.value)
	}
	if v >= ProtocolVersion2 {
		dst = strconv.AppendInt(dst, ts.value, 10)
		if ts.unit == unitMicros {
			return append(dst, 't'), nil
		}
		return append(dst, 'n'), nil
	}
	n := ts.value
	if ts.unit == unitMicros {
		if n > math.MaxInt64/1000 {
			return dst, Errorf(ErrInvalidValue, "Bad timestamp %d: out of range when converted to nanoseconds.", n)
		}
		n *= 1000
	}
	return strconv.AppendInt(dst, n, 10), nil
}
