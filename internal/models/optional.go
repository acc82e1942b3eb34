package models

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

var jsonNull = []byte("null")

// Optional is a JSON field that remembers whether it was present in the payload.
// Absent: Set=false. Explicit null: Set=true, Valid=false.
type Optional[T any] struct {
	Set   bool
	Valid bool
	Value T
}

// Some returns a present, non-null Optional
func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Valid: true, Value: v}
}

// Null returns a present Optional holding JSON null
func Null[T any]() Optional[T] {
	return Optional[T]{Set: true}
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true

	if bytes.Equal(bytes.TrimSpace(data), jsonNull) {
		o.Valid = false
		return nil
	}

	if err := json.Unmarshal(data, &o.Value); err != nil {
		return err
	}

	o.Valid = true
	return nil
}

// Ptr returns nil for null, otherwise a pointer to a copy of the value
func (o Optional[T]) Ptr() *T {
	if !o.Valid {
		return nil
	}

	v := o.Value
	return &v
}

// FlexText is an optional free-form field that never fails to decode. Strings
// are kept, numbers keep their literal text and anything else becomes null.
type FlexText struct {
	Optional[string]
}

func (t *FlexText) UnmarshalJSON(data []byte) error {
	t.Optional = Null[string]()

	raw := bytes.TrimSpace(data)

	if len(raw) == 0 {
		return nil
	}

	switch c := raw[0]; {
	case c == '"':
		var text string
		if err := json.Unmarshal(raw, &text); err == nil {
			t.Optional = Some(text)
		}
	case c == '-' || (c >= '0' && c <= '9'):
		t.Optional = Some(string(raw))
	}

	return nil
}

// FlexNumber accepts a JSON number or a numeric string. Anything that does not
// coerce to a finite number becomes nil rather than a decode error.
type FlexNumber struct {
	Set   bool
	Value *float64
}

func (n *FlexNumber) UnmarshalJSON(data []byte) error {
	n.Set = true
	n.Value = nil

	raw := bytes.TrimSpace(data)

	if bytes.Equal(raw, jsonNull) {
		return nil
	}

	var text string

	if len(raw) > 0 && raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil
		}
	} else {
		text = string(raw)
	}

	f, err := strconv.ParseFloat(strings.TrimSpace(text), 64)

	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}

	n.Value = &f
	return nil
}
