package ilp

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBuffer_New(t *testing.T) {
	require := require.New(t)

	buf := NewBuffer()
	require.Equal(0, buf.Len())
	require.Equal(64*1024, buf.Cap())
	require.Equal(ProtocolVersion1, buf.ProtocolVersion())

	buf = NewBuffer(WithInitCapacity(1024), WithProtocolVersion(ProtocolVersion2))
	require.Equal(1024, buf.Cap())
	require.Equal(ProtocolVersion2, buf.ProtocolVersion())
}

func TestBuffer_SymbolOnly(t *testing.T) {
	buf := NewBuffer()
	require.NoError(t, buf.Row(Row{Table: "test", Symbols: []Field{F("a", "b")}}))
	require.Equal(t, "test,a=b\n", buf.String())
}

func TestBuffer_ColumnOnly(t *testing.T) {
	buf := NewBuffer()
	require.NoError(t, buf.Row(Row{Table: "test", Columns: []Field{F("a", 1)}}))
	require.Equal(t, "test a=1i\n", buf.String())
}

func TestBuffer_Basic(t *testing.T) {
	require := require.New(t)

	buf := NewBuffer()
	require.NoError(buf.Row(Row{
		Table:   "tbl1",
		Symbols: []Field{F("sym1", "val1"), F("sym2", "val2")},
	}))
	require.Equal(25, buf.Len())
	require.Equal("tbl1,sym1=val1,sym2=val2\n", buf.String())
	require.Equal(1, buf.RowCount())
}

func TestBuffer_AllColumnTypes(t *testing.T) {
	twoHoursAfterEpoch := time.Date(1970, 1, 1, 2, 0, 0, 0, time.UTC)
	buf := NewBuffer()
	require.NoError(t, buf.Row(Row{
		Table: "tbl1",
		Columns: []Field{
			F("col1", true),
			F("col2", false),
			F("col3", -1),
			F("col4", 0.5),
			F("col5", "val"),
			F("col6", TimestampMicros(12345)),
			F("col7", twoHoursAfterEpoch),
			F("col8", nil),
		},
	}))
	require.Equal(t,
		"tbl1 col1=t,col2=f,col3=-1i,col4=0.5,col5=\"val\",col6=12345t,col7=7200000000t\n",
		buf.String())
}

func TestBuffer_SymbolsColumnsTimestamp(t *testing.T) {
	buf := NewBuffer()
	require.NoError(t, buf.Row(Row{
		Table:   "tab1",
		Symbols: []Field{F("t1", "val1"), F("t2", "val2")},
		Columns: []Field{F("f1", true), F("f2", 12345), F("f3", 10.75), F("f4", "val3")},
		At:      AtNanos(111222233333),
	}))
	require.NoError(t, buf.Row(Row{
		Table:   "tab1",
		Symbols: []Field{F("tag3", "value 3"), F("tag4", "value:4")},
		Columns: []Field{F("field5", false)},
	}))
	require.Equal(t,
		"tab1,t1=val1,t2=val2 f1=t,f2=12345i,f3=10.75,f4=\"val3\" 111222233333\n"+
			"tab1,tag3=value\\ 3,tag4=value:4 field5=f\n",
		buf.String())
}

func TestBuffer_Unicode(t *testing.T) {
	buf := NewBuffer(WithInitCapacity(1024))
	require.NoError(t, buf.Row(Row{
		Table:   "tbl1",
		Symbols: []Field{F("questdb1", "q❤️p")},
		Columns: []Field{F("questdb2", strings.Repeat("❤️", 1200))},
	}))
	require.NoError(t, buf.Row(Row{
		Table:   "tbl1",
		Symbols: []Field{F("Questo è il nome di una colonna", "Це символьне значення")},
		Columns: []Field{F("questdb1", ""), F("questdb2", "嚜꓂"), F("questdb3", "💩🦞")},
	}))
	require.Equal(t,
		"tbl1,questdb1=q❤️p questdb2=\""+strings.Repeat("❤️", 1200)+"\"\n"+
			"tbl1,Questo\\ è\\ il\\ nome\\ di\\ una\\ colonna=Це\\ символьне\\ значення "+
			"questdb1=\"\",questdb2=\"嚜꓂\",questdb3=\"💩🦞\"\n",
		buf.String())
}

func TestBuffer_NilFieldsSkipped(t *testing.T) {
	require := require.New(t)

	buf := NewBuffer()
	var missing *string
	require.NoError(buf.Row(Row{
		Table:   "tbl1",
		Symbols: []Field{F("sym1", "val1"), F("sym2", nil), F("sym3", missing)},
	}))
	require.Equal("tbl1,sym1=val1\n", buf.String())

	present := "v"
	require.NoError(buf.Row(Row{Table: "tbl1", Columns: []Field{F("c", &present)}}))
	require.Equal("tbl1,sym1=val1\ntbl1 c=\"v\"\n", buf.String())
}

func TestBuffer_EmptyRowRejected(t *testing.T) {
	require := require.New(t)

	buf := NewBuffer()
	err := buf.Row(Row{Table: "table_name"})
	require.Error(err)
	require.Equal(ErrInvalidAPICall, CodeOf(err))

	err = buf.Row(Row{Table: "table_name", Symbols: []Field{F("a", nil)}, Columns: []Field{F("b", nil)}})
	require.Error(err)
	require.Equal(0, buf.Len())
}

func TestBuffer_AtomicOnError(t *testing.T) {
	require := require.New(t)

	buf := NewBuffer()
	require.NoError(buf.Row(Row{Table: "tbl1", Symbols: []Field{F("questdb1", "q❤️p")}}))
	before := buf.String()

	// Fails after the table and symbols have been encoded.
	err := buf.Row(Row{
		Table:   "tbl1",
		Symbols: []Field{F("questdb1", "ok")},
		Columns: []Field{F("a", 1), F("bad", "line\nbreak")},
	})
	require.Error(err)
	require.Equal(before, buf.String())
	require.Equal(1, buf.RowCount())

	err = buf.Row(Row{Table: "tbl1", Symbols: []Field{F("questdb1", "a\xff")}})
	require.Equal(ErrInvalidValue, CodeOf(err))
	require.Equal(before, buf.String())

	err = buf.Row(Row{Table: "tbl1", Symbols: []Field{F("questdb1", 12)}})
	require.Equal(ErrInvalidValue, CodeOf(err))

	err = buf.Row(Row{Table: "tbl1", Columns: []Field{F("x", 1)}, At: AtNanos(-5)})
	require.Equal(ErrInvalidValue, CodeOf(err))
	require.Equal(before, buf.String())

	require.NoError(buf.Row(Row{Table: "tbl1", Symbols: []Field{F("questdb1", "another line of input")}}))
	require.Equal(before+"tbl1,questdb1=another\\ line\\ of\\ input\n", buf.String())
}

func TestBuffer_InvalidNames(t *testing.T) {
	require := require.New(t)

	buf := NewBuffer()
	err := buf.Row(Row{Table: "", Symbols: []Field{F("sym1", "val1")}})
	require.Equal(ErrInvalidName, CodeOf(err))
	require.Contains(err.Error(), "Table names must have a non-zero length.")

	err = buf.Row(Row{Table: "x..y", Symbols: []Field{F("sym1", "val1")}})
	require.Equal(ErrInvalidName, CodeOf(err))

	err = buf.Row(Row{Table: "tbl1", Symbols: []Field{F("", "val1")}})
	require.Contains(err.Error(), "Column names must have a non-zero length.")

	err = buf.Row(Row{Table: "tbl1", Symbols: []Field{F("a", "1")}, Columns: []Field{F("a", 2)}})
	require.Equal(ErrInvalidName, CodeOf(err))
	require.Equal(0, buf.Len())

	buf = NewBuffer(WithMaxNameLen(4))
	err = buf.Row(Row{Table: "toolong", Columns: []Field{F("a", 1)}})
	require.Equal(ErrInvalidName, CodeOf(err))
}

func TestBuffer_ArrayRequiresV2(t *testing.T) {
	require := require.New(t)

	buf := NewBuffer()
	require.NoError(buf.Row(Row{Table: "t", Columns: []Field{F("x", 1)}}))
	before := buf.String()

	err := buf.Row(Row{Table: "t", Columns: []Field{F("y", 2), F("arr", []float64{1, 2, 3})}})
	require.Error(err)
	require.Equal(ErrInvalidValue, CodeOf(err))
	require.Equal(before, buf.String())

	v2 := NewBuffer(WithProtocolVersion(ProtocolVersion2))
	require.NoError(v2.Row(Row{Table: "t", Columns: []Field{F("arr", []float64{1, 2, 3})}}))
	require.True(strings.HasPrefix(v2.String(), "t arr==\x0e\x0a\x01"))
	require.Equal(byte('\n'), v2.Bytes()[v2.Len()-1])
	// "t arr=" + "=" + type + elem + ndims + 4 byte dim + 3*8 bytes + "\n"
	require.Equal(6+1+1+1+1+4+24+1, v2.Len())
}

func TestBuffer_TellTruncate(t *testing.T) {
	require := require.New(t)

	buf := NewBuffer()
	require.NoError(buf.Row(Row{Table: "t", Columns: []Field{F("x", 1)}}))
	pos := buf.Tell()
	require.NoError(buf.Row(Row{Table: "t", Columns: []Field{F("x", 2)}}))
	require.NoError(buf.Row(Row{Table: "u", Columns: []Field{F("x", 3)}}))
	require.Equal(3, buf.RowCount())

	buf.Truncate(pos)
	require.Equal("t x=1i\n", buf.String())
	require.Equal(1, buf.RowCount())

	// Truncating to the current end is a no-op.
	buf.Truncate(buf.Tell())
	require.Equal("t x=1i\n", buf.String())
}

func TestBuffer_TruncateBelowFloorPanics(t *testing.T) {
	buf := NewBuffer()
	start := buf.Tell()
	require.NoError(t, buf.Row(Row{Table: "t", Columns: []Field{F("x", 1)}}))
	buf.Seal()

	require.Panics(t, func() { buf.Truncate(start) })

	// Clear resets the floor.
	buf.Clear()
	require.NotPanics(t, func() { buf.Truncate(start) })
}

func TestBuffer_TruncateBeyondEndPanics(t *testing.T) {
	buf := NewBuffer()
	require.NoError(t, buf.Row(Row{Table: "t", Columns: []Field{F("x", 1)}}))
	pos := buf.Tell()
	buf.Clear()
	require.Panics(t, func() { buf.Truncate(pos) })
}

func TestBuffer_Overflow(t *testing.T) {
	require := require.New(t)

	buf := NewBuffer(WithInitCapacity(16), WithMaxCapacity(20))
	require.NoError(buf.Row(Row{Table: "t", Columns: []Field{F("x", 42)}}))
	require.Equal(8, buf.Len())
	require.NoError(buf.Row(Row{Table: "t", Columns: []Field{F("x", 42)}}))

	err := buf.Row(Row{Table: "t", Columns: []Field{F("x", 42)}})
	require.Error(err)
	require.Equal(ErrBufferOverflow, CodeOf(err))
	require.Equal("t x=42i\nt x=42i\n", buf.String())
}

func TestBuffer_Clear(t *testing.T) {
	buf := NewBuffer()
	require.NoError(t, buf.Row(Row{Table: "t", Columns: []Field{F("x", 1)}}))
	buf.Clear()
	require.Equal(t, 0, buf.Len())
	require.Equal(t, 0, buf.RowCount())
	require.Equal(t, "", buf.String())
}

func TestBuffer_Transactional(t *testing.T) {
	require := require.New(t)

	buf := NewBuffer()
	require.True(buf.Transactional())
	require.NoError(buf.Row(Row{Table: "a", Columns: []Field{F("x", 1)}}))
	require.NoError(buf.Row(Row{Table: "a", Columns: []Field{F("x", 2)}}))
	require.True(buf.Transactional())
	pos := buf.Tell()
	require.NoError(buf.Row(Row{Table: "b", Columns: []Field{F("x", 3)}}))
	require.False(buf.Transactional())
	require.Equal([]string{"a", "b"}, buf.Tables())

	buf.Truncate(pos)
	require.True(buf.Transactional())
}

func TestBuffer_SetProtocolVersion(t *testing.T) {
	require := require.New(t)

	buf := NewBuffer()
	require.NoError(buf.SetProtocolVersion(ProtocolVersion2))
	require.Equal(ErrProtocol, CodeOf(buf.SetProtocolVersion(ProtocolVersion(7))))

	require.NoError(buf.Row(Row{Table: "t", Columns: []Field{F("x", 1.5)}}))
	require.Equal(ErrInvalidAPICall, CodeOf(buf.SetProtocolVersion(ProtocolVersion1)))
	require.NoError(buf.SetProtocolVersion(ProtocolVersion2))
}
