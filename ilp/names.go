package ilp

import (
	"fmt"
	"unicode/utf8"
)

// NameKind selects the character rules applied by ValidateName.
type NameKind int

const (
	TableName NameKind = iota
	ColumnName
)

func (k NameKind) String() string {
	if k == TableName {
		return "Table"
	}
	return "Column"
}

// DefaultMaxNameLen is the default limit on name length in UTF-8 bytes.
const DefaultMaxNameLen = 127

// ValidateName checks name against the rules for kind. A maxLen of zero or
// less disables the length check.
func ValidateName(name string, kind NameKind, maxLen int) error {
	if name == "" {
		return Errorf(ErrInvalidName, "%s names must have a non-zero length.", kind)
	}
	if maxLen > 0 && len(name) > maxLen {
		return Errorf(ErrInvalidName,
			"Bad name: %q: %s name too long, it has %d bytes, the maximum is %d.",
			name, kind, len(name), maxLen)
	}
	if !utf8.ValidString(name) {
		return Errorf(ErrInvalidName, "Bad name: %q: %s names must be valid UTF-8.", name, kind)
	}

	last := len(name) - 1
	prevDot := false
	for i, r := range name {
		if r == '.' {
			if kind == ColumnName {
				return badChar(name, kind, r, i)
			}
			if i == 0 || i == last || prevDot {
				return badChar(name, kind, r, i)
			}
			prevDot = true
			continue
		}
		prevDot = false
		if forbiddenNameRune(r) || (kind == ColumnName && r == '-') {
			return badChar(name, kind, r, i)
		}
	}
	return nil
}

// forbiddenNameRune reports characters rejected in both table and column names.
func forbiddenNameRune(r rune) bool {
	switch r {
	case '?', ',', '\'', '"', '\\', '/', ':', ')', '(', '+', '*', '%', '~',
		'\r', '\n', 0x00, 0x7f, 0xfeff:
		return true
	}
	return r >= 0x01 && r <= 0x0f
}

func badChar(name string, kind NameKind, r rune, pos int) error {
	var shown string
	switch {
	case r == '\'':
		shown = `'\''`
	case r < 0x20 || r == 0x7f || r == 0xfeff:
		shown = fmt.Sprintf("'\\u{%04x}'", r)
	default:
		shown = "'" + string(r) + "'"
	}
	if r == '.' && kind == TableName {
		return Errorf(ErrInvalidName,
			"Bad string %q: Found invalid dot `.` at position %d.", name, pos)
	}
	return Errorf(ErrInvalidName,
		"Bad string %q: %s names can't contain a %s character, which was found at byte position %d.",
		name, kind, shown, pos)
}
