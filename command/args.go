package command

import (
	"encoding/json"
	"math"
	"strings"
)

// Kind is the value type an argument accepts.
type Kind int

const (
	KindString Kind = iota
	KindEnum
	KindInt
	KindFloat
	KindBool
	KindVector
)

// Arg describes one named argument of a command.
// Values arrive decoded from JSON, so numbers are float64 until normalized.
type Arg struct {
	Name     string
	Kind     Kind
	Required bool
	Default  any
	Enum     []string
	MinLen   int
	MaxLen   int
	Min, Max *float64
	Check    func(any) error
}

func String(name string) Arg { return Arg{Name: name, Kind: KindString} }

func Int(name string) Arg { return Arg{Name: name, Kind: KindInt} }

func Float(name string) Arg { return Arg{Name: name, Kind: KindFloat} }

func Bool(name string) Arg { return Arg{Name: name, Kind: KindBool} }

// Enum accepts one of values, matched case-insensitively and normalized to the listed spelling.
func Enum(name string, values ...string) Arg {
	return Arg{Name: name, Kind: KindEnum, Enum: values}
}

// Vector accepts a list of numbers whose length is within [minLen, maxLen].
func Vector(name string, minLen, maxLen int) Arg {
	return Arg{Name: name, Kind: KindVector, MinLen: minLen, MaxLen: maxLen}
}

func (a Arg) Require() Arg {
	a.Required = true
	return a
}

func (a Arg) WithDefault(v any) Arg {
	a.Default = v
	return a
}

// Range bounds numeric values, or every element of a vector.
func (a Arg) Range(lo, hi float64) Arg {
	a.Min, a.Max = &lo, &hi
	return a
}

func (a Arg) Validate(fn func(any) error) Arg {
	a.Check = fn
	return a
}

func (a Arg) normalize(cmd string, v any) (any, error) {
	var (
		out any
		err error
	)
	switch a.Kind {
	case KindString:
		out, err = a.asString(cmd, v)
	case KindEnum:
		out, err = a.asEnum(cmd, v)
	case KindInt:
		out, err = a.asInt(cmd, v)
	case KindFloat:
		out, err = a.asFloat(cmd, v)
	case KindBool:
		b, ok := v.(bool)
		if !ok {
			return nil, invalidArg(cmd, a.Name, "expected boolean, got %T", v)
		}
		out = b
	case KindVector:
		out, err = a.asVector(cmd, v)
	default:
		return nil, invalidArg(cmd, a.Name, "unsupported kind %d", a.Kind)
	}
	if err != nil {
		return nil, err
	}
	if a.Check != nil {
		if cerr := a.Check(out); cerr != nil {
			return nil, invalidArg(cmd, a.Name, "%v", cerr)
		}
	}
	return out, nil
}

func (a Arg) asString(cmd string, v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", invalidArg(cmd, a.Name, "expected string, got %T", v)
	}
	if a.Required && strings.TrimSpace(s) == "" {
		return "", missingArg(cmd, a.Name)
	}
	return s, nil
}

func (a Arg) asEnum(cmd string, v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", invalidArg(cmd, a.Name, "expected string, got %T", v)
	}
	for _, e := range a.Enum {
		if strings.EqualFold(e, s) {
			return e, nil
		}
	}
	return "", invalidArg(cmd, a.Name, "%q is not one of %s", s, strings.Join(a.Enum, ", "))
}

func (a Arg) asInt(cmd string, v any) (int, error) {
	f, ok := toFloat(v)
	if !ok || f != math.Trunc(f) {
		return 0, invalidArg(cmd, a.Name, "expected integer, got %v", v)
	}
	if err := a.inRange(cmd, f); err != nil {
		return 0, err
	}
	return int(f), nil
}

func (a Arg) asFloat(cmd string, v any) (float64, error) {
	f, ok := toFloat(v)
	if !ok {
		return 0, invalidArg(cmd, a.Name, "expected number, got %T", v)
	}
	if err := a.inRange(cmd, f); err != nil {
		return 0, err
	}
	return f, nil
}

func (a Arg) asVector(cmd string, v any) ([]float64, error) {
	var items []any
	switch t := v.(type) {
	case []any:
		items = t
	case []float64:
		items = make([]any, len(t))
		for i := range t {
			items[i] = t[i]
		}
	case []int:
		items = make([]any, len(t))
		for i := range t {
			items[i] = t[i]
		}
	default:
		return nil, invalidArg(cmd, a.Name, "expected list of numbers, got %T", v)
	}
	if len(items) < a.MinLen || (a.MaxLen > 0 && len(items) > a.MaxLen) {
		if a.MinLen == a.MaxLen {
			return nil, invalidArg(cmd, a.Name, "expected %d numbers, got %d", a.MinLen, len(items))
		}
		return nil, invalidArg(cmd, a.Name, "expected %d to %d numbers, got %d", a.MinLen, a.MaxLen, len(items))
	}
	out := make([]float64, len(items))
	for i, item := range items {
		f, ok := toFloat(item)
		if !ok {
			return nil, invalidArg(cmd, a.Name, "element %d is not a number", i)
		}
		if err := a.inRange(cmd, f); err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}

func (a Arg) inRange(cmd string, f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return invalidArg(cmd, a.Name, "value must be finite")
	}
	if a.Min != nil && f < *a.Min {
		return invalidArg(cmd, a.Name, "%v is below %v", f, *a.Min)
	}
	if a.Max != nil && f > *a.Max {
		return invalidArg(cmd, a.Name, "%v is above %v", f, *a.Max)
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// Args holds validated, normalized arguments.
type Args map[string]any

func (a Args) Has(name string) bool {
	_, ok := a[name]
	return ok
}

func (a Args) String(name string) string {
	s, _ := a[name].(string)
	return s
}

func (a Args) Int(name string) int {
	n, _ := a[name].(int)
	return n
}

func (a Args) Float(name string) float64 {
	f, _ := a[name].(float64)
	return f
}

func (a Args) Bool(name string) bool {
	b, _ := a[name].(bool)
	return b
}

func (a Args) Vector(name string) []float64 {
	v, _ := a[name].([]float64)
	return v
}
