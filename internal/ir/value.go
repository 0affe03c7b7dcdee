package ir

import (
	"fmt"
	"regexp"
)

// ParamValue is a sealed interface over the typed parameter literals the IR
// accepts. Only ParamInt, ParamReal, ParamStr, ParamBool, and ParamRef
// implement it. There is no binary-float variant: real values are carried as
// decimal literals so structural hashes stay deterministic.
type ParamValue interface {
	paramValue() // sealed

	// Literal returns the value formatted as it appears in netlist text.
	Literal() string
}

// ParamInt is an integer parameter value.
type ParamInt int64

func (ParamInt) paramValue() {}

// Literal implements ParamValue.
func (v ParamInt) Literal() string { return fmt.Sprintf("%d", int64(v)) }

// ParamStr is a string parameter value.
type ParamStr string

func (ParamStr) paramValue() {}

// Literal implements ParamValue.
func (v ParamStr) Literal() string { return string(v) }

// ParamBool is a boolean parameter value.
type ParamBool bool

func (ParamBool) paramValue() {}

// Literal implements ParamValue.
func (v ParamBool) Literal() string {
	if v {
		return "true"
	}
	return "false"
}

// ParamReal is a real-valued parameter carried as a decimal literal,
// e.g. "1.5e-9" or "3.3". The literal is validated at construction and
// emitted verbatim, so values hash and print identically everywhere.
type ParamReal string

func (ParamReal) paramValue() {}

// Literal implements ParamValue.
func (v ParamReal) Literal() string { return string(v) }

// ParamRef references a parameter declared by the enclosing cell. The
// flattener substitutes refs with the instantiation site's override (or the
// declared default) when the cell is inlined.
type ParamRef string

func (ParamRef) paramValue() {}

// Literal implements ParamValue.
func (v ParamRef) Literal() string { return string(v) }

// realLiteral matches a decimal literal with optional sign, fraction, and
// exponent: 1, -2.5, 3.3e-9, .5E6.
var realLiteral = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// NewReal validates s as a decimal literal and returns it as a ParamReal.
func NewReal(s string) (ParamReal, error) {
	if !realLiteral.MatchString(s) {
		return "", fmt.Errorf("invalid real literal %q", s)
	}
	return ParamReal(s), nil
}

// MustReal is like NewReal but panics on error. Use only in tests or when
// the literal is known to be valid.
func MustReal(s string) ParamReal {
	v, err := NewReal(s)
	if err != nil {
		panic(err)
	}
	return v
}

// paramCanonical returns the canonical-JSON form of a parameter value. Each
// variant is tagged with its type so that ParamInt(1) and ParamReal("1")
// never collide under hashing.
func paramCanonical(v ParamValue) (any, error) {
	switch val := v.(type) {
	case ParamInt:
		return map[string]any{"int": int64(val)}, nil
	case ParamReal:
		return map[string]any{"real": string(val)}, nil
	case ParamStr:
		return map[string]any{"str": string(val)}, nil
	case ParamBool:
		return map[string]any{"bool": bool(val)}, nil
	case ParamRef:
		return map[string]any{"ref": string(val)}, nil
	default:
		return nil, fmt.Errorf("unknown ParamValue type: %T", v)
	}
}

// paramsCanonical returns the canonical form of a parameter map.
func paramsCanonical(params map[string]ParamValue) (map[string]any, error) {
	out := make(map[string]any, len(params))
	for name, v := range params {
		c, err := paramCanonical(v)
		if err != nil {
			return nil, fmt.Errorf("param %q: %w", name, err)
		}
		out[name] = c
	}
	return out, nil
}

// ParamEqual reports whether two parameter values are identical in type and
// content.
func ParamEqual(a, b ParamValue) bool {
	if a == nil || b == nil {
		return a == b
	}
	switch av := a.(type) {
	case ParamInt:
		bv, ok := b.(ParamInt)
		return ok && av == bv
	case ParamReal:
		bv, ok := b.(ParamReal)
		return ok && av == bv
	case ParamStr:
		bv, ok := b.(ParamStr)
		return ok && av == bv
	case ParamBool:
		bv, ok := b.(ParamBool)
		return ok && av == bv
	case ParamRef:
		bv, ok := b.(ParamRef)
		return ok && av == bv
	default:
		return false
	}
}

// ParamsEqual reports whether two parameter maps hold the same entries.
func ParamsEqual(a, b map[string]ParamValue) bool {
	if len(a) != len(b) {
		return false
	}
	for name, av := range a {
		bv, ok := b[name]
		if !ok || !ParamEqual(av, bv) {
			return false
		}
	}
	return true
}
