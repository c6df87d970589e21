// Package document models decoded report payloads as a closed, ordered value tree.
//
// Upstream report bodies have no fixed schema, so everything the extraction
// pipeline walks is a Value: null, bool, number, string, array or object.
// Objects keep their member order so flattened columns come out in the order
// the upstream system emitted them.
package document

import (
	"math"
	"strconv"
)

// Kind identifies the variant held by a Value.
type Kind int

// Value kinds.
const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Member is one key/value pair of an object.
type Member struct {
	Key   string
	Value Value
}

// Value is an immutable node of a decoded document. The zero Value is null.
type Value struct {
	text    string
	items   []Value
	members []Member
	kind    Kind
	boolean bool
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, boolean: b} }

// Number wraps a numeric literal. The literal text is kept verbatim so large
// or high-precision amounts survive until they are rendered.
func Number(literal string) Value { return Value{kind: KindNumber, text: literal} }

// Float wraps a float64 as a number.
func Float(f float64) Value {
	return Number(strconv.FormatFloat(f, 'f', -1, 64))
}

// String wraps a string.
func String(s string) Value { return Value{kind: KindString, text: s} }

// Array builds an array value.
func Array(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindArray, items: items}
}

// Object builds an object value from members in order.
func Object(members ...Member) Value {
	if members == nil {
		members = []Member{}
	}
	return Value{kind: KindObject, members: members}
}

// Kind returns the variant of v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsContainer reports whether v is an array or an object.
func (v Value) IsContainer() bool { return v.kind == KindArray || v.kind == KindObject }

// IsScalar reports whether v is null, bool, number or string.
func (v Value) IsScalar() bool { return !v.IsContainer() }

// Bool returns the boolean payload; false for other kinds.
func (v Value) Bool() bool { return v.kind == KindBool && v.boolean }

// Text renders a scalar as text: strings verbatim, numbers as their literal,
// booleans as true/false and null as the empty string. Containers render empty.
func (v Value) Text() string {
	switch v.kind {
	case KindString, KindNumber:
		return v.text
	case KindBool:
		return strconv.FormatBool(v.boolean)
	default:
		return ""
	}
}

// Float64 parses a number value. Strings and other kinds report false.
func (v Value) Float64() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	f, err := strconv.ParseFloat(v.text, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

// Len returns the number of array items or object members.
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.items)
	case KindObject:
		return len(v.members)
	default:
		return 0
	}
}

// Items returns the elements of an array. The slice must not be modified.
func (v Value) Items() []Value {
	if v.kind != KindArray {
		return nil
	}
	return v.items
}

// Members returns the members of an object in order. The slice must not be modified.
func (v Value) Members() []Member {
	if v.kind != KindObject {
		return nil
	}
	return v.members
}

// Keys returns the member keys of an object in order.
func (v Value) Keys() []string {
	if v.kind != KindObject {
		return nil
	}
	keys := make([]string, 0, len(v.members))
	for _, m := range v.members {
		keys = append(keys, m.Key)
	}
	return keys
}

// Get looks up an object member by key.
func (v Value) Get(key string) (Value, bool) {
	for _, m := range v.Members() {
		if m.Key == key {
			return m.Value, true
		}
	}
	return Value{}, false
}

// Truthy applies loose truthiness: null, false, zero, NaN and the empty string
// are false; every array and object is true.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindBool:
		return v.boolean
	case KindNumber:
		f, err := strconv.ParseFloat(v.text, 64)
		if err != nil {
			return v.text != ""
		}
		return f != 0 && !math.IsNaN(f)
	case KindString:
		return v.text != ""
	case KindArray, KindObject:
		return true
	default:
		return false
	}
}
