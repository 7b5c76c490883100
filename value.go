package tfsm

import (
	"encoding/json"
	"strconv"

	"github.com/cockroachdb/errors"
)

// Value is a tagged union of the four primitive types the interpreter
// understands. The zero Value is an Int(0).
type Value struct {
	typ ValueType
	i   int64
	f   float64
	s   string
	b   bool
}

// IntValue constructs an Int Value.
func IntValue(i int64) Value { return Value{typ: TypeInt, i: i} }

// FloatValue constructs a Float Value.
func FloatValue(f float64) Value { return Value{typ: TypeFloat, f: f} }

// StringValue constructs a String Value.
func StringValue(s string) Value { return Value{typ: TypeString, s: s} }

// BoolValue constructs a Bool Value.
func BoolValue(b bool) Value { return Value{typ: TypeBool, b: b} }

// Type reports which variant is held.
func (v Value) Type() ValueType { return v.typ }

// Int returns the value as an int64, converting numeric types and
// parsing strings best-effort; non-numeric strings yield 0.
func (v Value) Int() int64 {
	switch v.typ {
	case TypeInt:
		return v.i
	case TypeFloat:
		return int64(v.f)
	case TypeBool:
		if v.b {
			return 1
		}
		return 0
	case TypeString:
		n, err := strconv.ParseInt(v.s, 10, 64)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

// Float returns the value as a float64, analogous to Int.
func (v Value) Float() float64 {
	switch v.typ {
	case TypeInt:
		return float64(v.i)
	case TypeFloat:
		return v.f
	case TypeBool:
		if v.b {
			return 1
		}
		return 0
	case TypeString:
		f, err := strconv.ParseFloat(v.s, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// String returns the value's string form. Used for display and for the
// string view of a variable that valueof() returns to scripts.
func (v Value) String() string {
	switch v.typ {
	case TypeInt:
		return strconv.FormatInt(v.i, 10)
	case TypeFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case TypeString:
		return v.s
	case TypeBool:
		return strconv.FormatBool(v.b)
	default:
		return ""
	}
}

// Bool returns the value coerced to bool. Non-zero is true for numbers;
// for strings only "1", "true", "TRUE" and "True" are true, and every
// other string (including "" and other spellings of true) is false.
func (v Value) Bool() bool {
	switch v.typ {
	case TypeBool:
		return v.b
	case TypeInt:
		return v.i != 0
	case TypeFloat:
		return v.f != 0
	case TypeString:
		return v.s == "1" || v.s == "true" || v.s == "TRUE" || v.s == "True"
	default:
		return false
	}
}

// Equal reports whether two values are equal, comparing by declared type
// and then by the natural Go equality of the held field. Values of
// different types are never equal, even when their string forms match.
func (v Value) Equal(other Value) bool {
	if v.typ != other.typ {
		return false
	}
	switch v.typ {
	case TypeInt:
		return v.i == other.i
	case TypeFloat:
		return v.f == other.f
	case TypeString:
		return v.s == other.s
	case TypeBool:
		return v.b == other.b
	default:
		return true
	}
}

// MarshalJSON encodes a Value as its natural JSON representation for the
// declared type: a JSON number for Int/Float, a JSON string for String,
// and a JSON bool for Bool. Value has no UnmarshalJSON; documents decode
// values by declared type in decodeInitValue.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.typ {
	case TypeInt:
		return json.Marshal(v.i)
	case TypeFloat:
		return json.Marshal(v.f)
	case TypeString:
		return json.Marshal(v.s)
	case TypeBool:
		return json.Marshal(v.b)
	default:
		return []byte("null"), nil
	}
}

// Variable is a named, typed, mutable storage cell. Variables are created
// at document load time and live for the lifetime of the owning
// Automaton; they are freely reassigned by scripts and by setVariable.
type Variable struct {
	name    string
	declTyp ValueType
	current Value
}

// NewVariable creates a Variable with the given declared type and
// initial value. The initial value is not required to match declTyp;
// Set performs no cross-type enforcement, matching the reference
// semantics (only SetFromString coerces).
func NewVariable(name string, declTyp ValueType, initial Value) *Variable {
	return &Variable{name: name, declTyp: declTyp, current: initial}
}

func (v *Variable) Name() string           { return v.name }
func (v *Variable) DeclaredType() ValueType { return v.declTyp }
func (v *Variable) Value() Value            { return v.current }

// Set stores newVal verbatim. No implicit cross-type checks are enforced.
func (v *Variable) Set(newVal Value) { v.current = newVal }

// SetFromString coerces s per the variable's declared type, falling back
// to storing the raw string when coercion fails.
func (v *Variable) SetFromString(s string) {
	switch v.declTyp {
	case TypeInt:
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			v.current = IntValue(n)
			return
		}
	case TypeFloat:
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			v.current = FloatValue(f)
			return
		}
	case TypeBool:
		v.current = BoolValue(s == "1" || s == "true" || s == "TRUE" || s == "True")
		return
	case TypeString:
		v.current = StringValue(s)
		return
	}
	v.current = StringValue(s)
}

// parseValueTypeJSON maps a document "type" field to a ValueType.
func parseValueTypeJSON(s string) (ValueType, error) {
	switch s {
	case "int":
		return TypeInt, nil
	case "float":
		return TypeFloat, nil
	case "string":
		return TypeString, nil
	case "bool":
		return TypeBool, nil
	default:
		return 0, errors.Newf("unknown variable type %q", s)
	}
}
