package record

import "strings"

// Text holds a string whose length in bytes never exceeds its bound.
// The zero value of the stored string is "", never indeterminate.
type Text struct {
	bound int
	value string
}

func NewText(bound int) Text {
	return Text{bound: bound}
}

// Set stores value, or returns an error and keeps the previous value.
func (t *Text) Set(value string) error {
	if len(value) > t.bound {
		return ErrFieldTooLong
	}

	// Nodes keep values as NUL terminated strings.
	if strings.IndexByte(value, 0) >= 0 {
		return ErrInvalidFieldValue
	}

	t.value = value

	return nil
}

func (t Text) String() string {
	return t.value
}

func (t Text) Bound() int {
	return t.bound
}
