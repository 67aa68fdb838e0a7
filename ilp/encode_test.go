package ilp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppendFloatText(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0.0"},
		{math.Copysign(0, -1), "-0.0"},
		{3, "3.0"},
		{-3, "-3.0"},
		{0.5, "0.5"},
		{10.75, "10.75"},
		{1.2345678901234567, "1.2345678901234567"},
		{0.0001, "0.0001"},
		{0.00001, "0.00001"},
		{0.000001, "1e-6"},
		{1.5e-7, "1.5e-7"},
		{1e15, "1000000000000000.0"},
		{1e16, "1e16"},
		{1.25e20, "1.25e20"},
		{123456.789, "123456.789"},
		{math.MaxFloat64, "1.7976931348623157e308"},
		{math.SmallestNonzeroFloat64, "5e-324"},
		{math.NaN(), "NaN"},
		{math.Inf(1), "Infinity"},
		{math.Inf(-1), "-Infinity"},
	}
	for _, tt := range tests {
		got := string(AppendFloatText(nil, tt.in))
		require.Equal(t, tt.want, got, "float %v", tt.in)
	}
}

func TestAppendUnquoted(t *testing.T) {
	require := require.New(t)

	require.Equal(`value\ 3`, string(appendUnquoted(nil, "value 3")))
	require.Equal(`a\,b\=c\\d`, string(appendUnquoted(nil, `a,b=c\d`)))
	require.Equal(`value:4`, string(appendUnquoted(nil, "value:4")))
	require.Equal(`q"p`, string(appendUnquoted(nil, `q"p`)))
}

func TestAppendQuoted(t *testing.T) {
	require := require.New(t)

	require.Equal(`"val"`, string(appendQuoted(nil, "val")))
	require.Equal(`""`, string(appendQuoted(nil, "")))
	require.Equal(`"a\"b\\c, d=e"`, string(appendQuoted(nil, `a"b\c, d=e`)))
}

func TestCheckText(t *testing.T) {
	require := require.New(t)

	require.NoError(checkText("c", "plain text, with = and \"quotes\""))
	for _, s := range []string{"a\nb", "a\rb", "\n", "a\xff"} {
		err := checkText("c", s)
		require.Error(err, "%q", s)
		require.Equal(ErrInvalidValue, CodeOf(err))
	}
}

func TestAppendColumnValue(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"true", true, "t"},
		{"false", false, "f"},
		{"int", 42, "42i"},
		{"int8", int8(-8), "-8i"},
		{"int32 min", int32(math.MinInt32), "-2147483648i"},
		{"int64 max", int64(math.MaxInt64), "9223372036854775807i"},
		{"int64 min", int64(math.MinInt64), "-9223372036854775808i"},
		{"uint64 max ok", uint64(math.MaxInt64), "9223372036854775807i"},
		{"float32", float32(0.5), "0.5"},
		{"string", "val", `"val"`},
		{"micros", TimestampMicros(12345), "12345t"},
		{"nanos v1", TimestampNanos(12345678), "12345t"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := appendColumnValue(nil, "c", tt.value, ProtocolVersion1)
			require.NoError(t, err)
			require.Equal(t, tt.want, string(got))
		})
	}
}

func TestAppendColumnValue_Errors(t *testing.T) {
	for name, value := range map[string]any{
		"uint64 overflow":  uint64(math.MaxInt64) + 1,
		"negative micros":  TimestampMicros(-1),
		"unsupported type": struct{}{},
		"array on v1":      []float64{1, 2},
		"newline string":   "a\nb",
	} {
		_, err := appendColumnValue(nil, "c", value, ProtocolVersion1)
		require.Error(t, err, name)
		require.Equal(t, ErrInvalidValue, CodeOf(err), name)
	}
}

func TestAppendColumnValue_V2Binary(t *testing.T) {
	require := require.New(t)

	got, err := appendColumnValue(nil, "c", 1.5, ProtocolVersion2)
	require.NoError(err)
	want := append([]byte{'=', 16}, le.AppendUint64(nil, math.Float64bits(1.5))...)
	require.Equal(want, got)

	got, err = appendColumnValue(nil, "c", TimestampNanos(12345678), ProtocolVersion2)
	require.NoError(err)
	require.Equal("12345678n", string(got))

	// Integers stay textual under v2.
	got, err = appendColumnValue(nil, "c", 7, ProtocolVersion2)
	require.NoError(err)
	require.Equal("7i", string(got))
}

func TestAppendArray(t *testing.T) {
	require := require.New(t)

	arr, err := NewFloat64Array([]int{2, 2}, []float64{1, 2, 3, 4})
	require.NoError(err)
	got, err := appendArray(nil, "a", arr, ProtocolVersion2)
	require.NoError(err)

	want := []byte{'=', 14, 10, 2}
	want = le.AppendUint32(want, 2)
	want = le.AppendUint32(want, 2)
	for _, x := range []float64{1, 2, 3, 4} {
		want = le.AppendUint64(want, math.Float64bits(x))
	}
	require.Equal(want, got)

	_, err = NewFloat64Array([]int{3}, []float64{1, 2})
	require.Error(err)
	_, err = NewFloat64Array(nil, nil)
	require.Error(err)
	_, err = NewFloat64Array(make([]int, 33), nil)
	require.Error(err)

	// Empty arrays are allowed.
	_, err = NewFloat64Array([]int{0}, nil)
	require.NoError(err)
}

func TestAppendDesignatedTimestamp(t *testing.T) {
	require := require.New(t)

	got, err := appendDesignatedTimestamp(nil, AtNanos(111222233333), ProtocolVersion1)
	require.NoError(err)
	require.Equal("111222233333", string(got))

	got, err = appendDesignatedTimestamp(nil, AtMicros(5), ProtocolVersion1)
	require.NoError(err)
	require.Equal("5000", string(got))

	got, err = appendDesignatedTimestamp(nil, AtNanos(7), ProtocolVersion2)
	require.NoError(err)
	require.Equal("7n", string(got))

	got, err = appendDesignatedTimestamp(nil, AtMicros(7), ProtocolVersion2)
	require.NoError(err)
	require.Equal("7t", string(got))

	_, err = appendDesignatedTimestamp(nil, AtNanos(-1), ProtocolVersion1)
	require.Equal(ErrInvalidValue, CodeOf(err))

	_, err = appendDesignatedTimestamp(nil, AtMicros(math.MaxInt64), ProtocolVersion1)
	require.Equal(ErrInvalidValue, CodeOf(err))
}
