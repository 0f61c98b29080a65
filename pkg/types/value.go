// pkg/types/value.go
package types

import "fmt"

// Kind identifies the tagged variant carried by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindInteger
	KindFloat
	KindBoolean
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "NULL"
	case KindInteger:
		return "INTEGER"
	case KindFloat:
		return "FLOAT"
	case KindBoolean:
		return "BOOLEAN"
	case KindText:
		return "TEXT"
	default:
		return "UNKNOWN"
	}
}

// Value is a tagged variant holding one of Null, Integer, Float, Boolean or
// Text, per spec §3.
type Value struct {
	kind    Kind
	intVal  int64
	fltVal  float64
	boolVal bool
	textVal string
}

func NewNull() Value                { return Value{kind: KindNull} }
func NewInteger(i int64) Value      { return Value{kind: KindInteger, intVal: i} }
func NewFloat(f float64) Value      { return Value{kind: KindFloat, fltVal: f} }
func NewBoolean(b bool) Value       { return Value{kind: KindBoolean, boolVal: b} }
func NewText(s string) Value        { return Value{kind: KindText, textVal: s} }

func (v Value) Kind() Kind       { return v.kind }
func (v Value) IsNull() bool     { return v.kind == KindNull }
func (v Value) Integer() int64   { return v.intVal }
func (v Value) Float() float64   { return v.fltVal }
func (v Value) Boolean() bool    { return v.boolVal }
func (v Value) Text() string     { return v.textVal }

func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "NULL"
	case KindInteger:
		return fmt.Sprintf("%d", v.intVal)
	case KindFloat:
		return fmt.Sprintf("%g", v.fltVal)
	case KindBoolean:
		if v.boolVal {
			return "TRUE"
		}
		return "FALSE"
	case KindText:
		return v.textVal
	default:
		return "?"
	}
}

// AsFloat promotes an Integer or Float value to float64. For any other kind
// it returns 0 without reporting an error — callers must check Kind first.
func (v Value) AsFloat() float64 {
	if v.kind == KindInteger {
		return float64(v.intVal)
	}
	return v.fltVal
}

// Equal implements the §3 equality rule: different kinds (other than a
// shared numeric promotion) are never equal, and any comparison touching a
// Null is Null (reported via the ok return, which the caller must treat as
// false).
func (v Value) Equal(o Value) (result, ok bool) {
	c, ok := v.Compare(o)
	if !ok {
		return false, false
	}
	return c == 0, true
}

// Compare orders two values per §3's numeric-promotion and cross-kind rules.
// ok is false when the comparison is undefined (either operand Null, or
// incompatible non-numeric kinds), in which case filter logic must treat the
// predicate as false.
func (v Value) Compare(o Value) (cmp int, ok bool) {
	if v.kind == KindNull || o.kind == KindNull {
		return 0, false
	}

	numeric := func(k Kind) bool { return k == KindInteger || k == KindFloat }
	if numeric(v.kind) && numeric(o.kind) {
		a, b := v.AsFloat(), o.AsFloat()
		switch {
		case a < b:
			return -1, true
		case a > b:
			return 1, true
		default:
			return 0, true
		}
	}

	if v.kind != o.kind {
		return 0, false
	}

	switch v.kind {
	case KindBoolean:
		switch {
		case v.boolVal == o.boolVal:
			return 0, true
		case !v.boolVal && o.boolVal:
			return -1, true
		default:
			return 1, true
		}
	case KindText:
		switch {
		case v.textVal < o.textVal:
			return -1, true
		case v.textVal > o.textVal:
			return 1, true
		default:
			return 0, true
		}
	default:
		return 0, false
	}
}
