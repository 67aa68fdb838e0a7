package ilp

import "fmt"

const (
	// DefaultInitCapacity is the initial size of a Buffer's byte slice.
	DefaultInitCapacity = 64 * 1024
	// DefaultMaxCapacity bounds a Buffer's size.
	DefaultMaxCapacity = 100 * 1024 * 1024
)

// Position marks a row boundary inside a Buffer, see Tell and Truncate.
type Position struct {
	offset int
	rows   int
}

// Offset is the byte offset of the position.
func (p Position) Offset() int { return p.offset }

type rowMark struct {
	offset int
	table  string
}

// Buffer accumulates serialized rows. It is not safe for concurrent use:
// build one Buffer per goroutine, or guard it externally.
type Buffer struct {
	buf        []byte
	rows       []rowMark
	floor      int
	initCap    int
	maxCap     int
	maxNameLen int
	version    ProtocolVersion
}

// BufferOption configures a Buffer.
type BufferOption func(*Buffer)

// WithInitCapacity sets the initial byte capacity.
func WithInitCapacity(n int) BufferOption {
	return func(b *Buffer) {
		if n > 0 {
			b.initCap = n
		}
	}
}

// WithMaxCapacity sets the maximum size in bytes. Zero or less disables the limit.
func WithMaxCapacity(n int) BufferOption {
	return func(b *Buffer) {
		b.maxCap = n
	}
}

// WithMaxNameLen sets the maximum table and column name length in bytes.
func WithMaxNameLen(n int) BufferOption {
	return func(b *Buffer) {
		b.maxNameLen = n
	}
}

// WithProtocolVersion sets the encoding used for floats and arrays.
func WithProtocolVersion(v ProtocolVersion) BufferOption {
	return func(b *Buffer) {
		if v.Valid() {
			b.version = v
		}
	}
}

// NewBuffer creates an empty buffer using ProtocolVersion1 unless configured otherwise.
func NewBuffer(opts ...BufferOption) *Buffer {
	b := &Buffer{
		initCap:    DefaultInitCapacity,
		maxCap:     DefaultMaxCapacity,
		maxNameLen: DefaultMaxNameLen,
		version:    ProtocolVersion1,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.buf = make([]byte, 0, b.initCap)
	return b
}

// Row validates and appends one row. On error the buffer is left unchanged.
func (b *Buffer) Row(r Row) error {
	if err := b.validateNames(r); err != nil {
		return err
	}
	if !hasFields(r.Symbols) && !hasFields(r.Columns) {
		return Errorf(ErrInvalidAPICall,
			"Row for table %q must have at least one symbol or column.", r.Table)
	}

	start := len(b.buf)
	out, err := b.encodeRow(b.buf, r)
	if err != nil {
		b.buf = out[:start]
		return err
	}
	if b.maxCap > 0 && len(out) > b.maxCap {
		b.buf = out[:start]
		return Errorf(ErrBufferOverflow,
			"Buffer size of %d would exceed maximum configured allowed size of %d bytes.", len(out), b.maxCap)
	}
	b.buf = out
	b.rows = append(b.rows, rowMark{offset: start, table: r.Table})
	return nil
}

func (b *Buffer) validateNames(r Row) error {
	if err := ValidateName(r.Table, TableName, b.maxNameLen); err != nil {
		return err
	}
	for _, f := range r.Symbols {
		if err := ValidateName(f.Name, ColumnName, b.maxNameLen); err != nil {
			return err
		}
	}
	for _, f := range r.Columns {
		if err := ValidateName(f.Name, ColumnName, b.maxNameLen); err != nil {
			return err
		}
	}
	return checkUnique(r)
}

func checkUnique(r Row) error {
	seen := make(map[string]struct{}, len(r.Symbols)+len(r.Columns))
	for _, fields := range [2][]Field{r.Symbols, r.Columns} {
		for _, f := range fields {
			if _, dup := seen[f.Name]; dup {
				return Errorf(ErrInvalidName,
					"Bad name %q: column names must be unique within a row.", f.Name)
			}
			seen[f.Name] = struct{}{}
		}
	}
	return nil
}

func hasFields(fields []Field) bool {
	for _, f := range fields {
		if !isNil(f.Value) {
			return true
		}
	}
	return false
}

func isNil(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case *string:
		return x == nil
	case *Float64Array:
		return x == nil
	}
	return false
}

func (b *Buffer) encodeRow(dst []byte, r Row) ([]byte, error) {
	dst = appendUnquoted(dst, r.Table)

	for _, f := range r.Symbols {
		if isNil(f.Value) {
			continue
		}
		var s string
		switch x := f.Value.(type) {
		case string:
			s = x
		case *string:
			s = *x
		default:
			return dst, Errorf(ErrInvalidValue,
				"Bad value for symbol %q: expected a string, got %T.", f.Name, f.Value)
		}
		if err := checkText(f.Name, s); err != nil {
			return dst, err
		}
		dst = append(dst, ',')
		dst = appendUnquoted(dst, f.Name)
		dst = append(dst, '=')
		dst = appendUnquoted(dst, s)
	}

	sep := byte(' ')
	for _, f := range r.Columns {
		if isNil(f.Value) {
			continue
		}
		dst = append(dst, sep)
		sep = ','
		dst = appendUnquoted(dst, f.Name)
		dst = append(dst, '=')
		var err error
		value := f.Value
		if p, ok := value.(*string); ok {
			value = *p
		}
		if dst, err = appendColumnValue(dst, f.Name, value, b.version); err != nil {
			return dst, err
		}
	}

	if !r.At.IsServerTime() {
		dst = append(dst, ' ')
		var err error
		if dst, err = appendDesignatedTimestamp(dst, r.At, b.version); err != nil {
			return dst, err
		}
	}
	return append(dst, '\n'), nil
}

// Tell returns the current end of the buffer.
func (b *Buffer) Tell() Position {
	return Position{offset: len(b.buf), rows: len(b.rows)}
}

// Truncate discards everything after p. p must come from Tell on this
// buffer, must not lie beyond the current end, and must not lie before the
// flushed floor; violating this is a programming error and panics.
func (b *Buffer) Truncate(p Position) {
	if p.offset < b.floor {
		panic(fmt.Sprintf("ilp: truncate to offset %d below flushed offset %d", p.offset, b.floor))
	}
	if p.offset > len(b.buf) || p.rows > len(b.rows) {
		panic(fmt.Sprintf("ilp: truncate to offset %d beyond buffer length %d", p.offset, len(b.buf)))
	}
	if p.rows < len(b.rows) && b.rows[p.rows].offset != p.offset {
		panic(fmt.Sprintf("ilp: truncate to offset %d which is not a row boundary", p.offset))
	}
	if p.rows == len(b.rows) && p.offset != len(b.buf) {
		panic(fmt.Sprintf("ilp: truncate to offset %d which is not a row boundary", p.offset))
	}
	b.buf = b.buf[:p.offset]
	b.rows = b.rows[:p.rows]
}

// Seal marks the current contents as flushed: Truncate may no longer cut below it.
func (b *Buffer) Seal() {
	b.floor = len(b.buf)
}

// Clear empties the buffer and resets the flushed floor.
func (b *Buffer) Clear() {
	b.buf = b.buf[:0]
	b.rows = b.rows[:0]
	b.floor = 0
}

// Len is the buffer size in bytes.
func (b *Buffer) Len() int { return len(b.buf) }

// Cap is the allocated capacity in bytes.
func (b *Buffer) Cap() int { return cap(b.buf) }

// MaxCapacity is the configured size limit, zero or less when unlimited.
func (b *Buffer) MaxCapacity() int { return b.maxCap }

// RowCount is the number of rows in the buffer.
func (b *Buffer) RowCount() int { return len(b.rows) }

// Bytes returns the serialized rows. The slice is only valid until the next
// mutation of the buffer.
func (b *Buffer) Bytes() []byte { return b.buf }

func (b *Buffer) String() string { return string(b.buf) }

// ProtocolVersion is the encoding used by the buffer.
func (b *Buffer) ProtocolVersion() ProtocolVersion { return b.version }

// SetProtocolVersion changes the encoding. Only allowed while empty.
func (b *Buffer) SetProtocolVersion(v ProtocolVersion) error {
	if !v.Valid() {
		return Errorf(ErrProtocol, "Unsupported protocol version %d.", int(v))
	}
	if len(b.buf) > 0 && v != b.version {
		return Errorf(ErrInvalidAPICall, "Can't change the protocol version of a non-empty buffer.")
	}
	b.version = v
	return nil
}

// Tables lists the distinct tables in the buffer, in order of first appearance.
func (b *Buffer) Tables() []string {
	seen := make(map[string]struct{}, 1)
	var tables []string
	for _, r := range b.rows {
		if _, ok := seen[r.table]; ok {
			continue
		}
		seen[r.table] = struct{}{}
		tables = append(tables, r.table)
	}
	return tables
}

// Transactional reports whether all rows belong to a single table, which is
// required to send the buffer as one atomic request.
func (b *Buffer) Transactional() bool {
	for _, r := range b.rows[min(1, len(b.rows)):] {
		if r.table != b.rows[0].table {
			return false
		}
	}
	return true
}
