package strategy

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// ParamType enumerates the value types a strategy parameter may declare.
type ParamType string

const (
	TypeInt    ParamType = "int"
	TypeFloat  ParamType = "float"
	TypeString ParamType = "string"
	TypeBool   ParamType = "bool"
)

// ParamSpec declares one parameter: its type, bounds, allowed options, and
// default. Min/Max apply to numeric types; Options to strings.
type ParamSpec struct {
	Type    ParamType `json:"type"`
	Min     *float64  `json:"min,omitempty"`
	Max     *float64  `json:"max,omitempty"`
	Options []string  `json:"options,omitempty"`
	Default any       `json:"default"`
}

// ParamSchema maps parameter names to their specs. Validation happens once,
// at strategy construction, never at use time.
type ParamSchema map[string]ParamSpec

// Params is a validated, normalized parameter bag. Int-typed values are
// stored as int, float-typed as float64.
type Params map[string]any

// Int returns the named int parameter. Panics on a name absent from the
// schema; Validate guarantees presence for every declared parameter.
func (p Params) Int(name string) int {
	v, ok := p[name].(int)
	if !ok {
		panic(fmt.Sprintf("param %q is not an int", name))
	}
	return v
}

// Float returns the named float parameter.
func (p Params) Float(name string) float64 {
	v, ok := p[name].(float64)
	if !ok {
		panic(fmt.Sprintf("param %q is not a float", name))
	}
	return v
}

// String returns the named string parameter.
func (p Params) String(name string) string {
	v, ok := p[name].(string)
	if !ok {
		panic(fmt.Sprintf("param %q is not a string", name))
	}
	return v
}

// Bool returns the named bool parameter.
func (p Params) Bool(name string) bool {
	v, ok := p[name].(bool)
	if !ok {
		panic(fmt.Sprintf("param %q is not a bool", name))
	}
	return v
}

// InvalidParameterError reports every constraint a parameter bag violated,
// not just the first.
type InvalidParameterError struct {
	Strategy   string
	Violations []string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid parameters for %s: %s",
		e.Strategy, strings.Join(e.Violations, "; "))
}

// Validate checks raw values against the schema and returns a normalized
// Params with defaults merged in for omitted names. All violations are
// collected into a single InvalidParameterError.
func (s ParamSchema) Validate(strategyName string, raw map[string]any) (Params, error) {
	var violations []string
	out := make(Params, len(s))

	// Deterministic violation ordering.
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		spec := s[name]
		v, present := raw[name]
		if !present {
			out[name] = spec.Default
			continue
		}

		norm, err := spec.normalize(name, v)
		if err != nil {
			violations = append(violations, err.Error())
			continue
		}
		out[name] = norm
	}

	// Unknown names are violations too: a typo'd parameter silently falling
	// back to its default is worse than an error.
	var unknown []string
	for name := range raw {
		if _, ok := s[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	for _, name := range unknown {
		violations = append(violations, fmt.Sprintf("%s: unknown parameter", name))
	}

	if len(violations) > 0 {
		return nil, &InvalidParameterError{Strategy: strategyName, Violations: violations}
	}
	return out, nil
}

// normalize coerces v to the spec's type and checks bounds. JSON decoding
// delivers all numbers as float64, so int specs accept integral floats.
func (spec ParamSpec) normalize(name string, v any) (any, error) {
	switch spec.Type {
	case TypeInt:
		var n int
		switch x := v.(type) {
		case int:
			n = x
		case int64:
			n = int(x)
		case float64:
			if x != math.Trunc(x) {
				return nil, fmt.Errorf("%s: expected int, got %v", name, x)
			}
			n = int(x)
		default:
			return nil, fmt.Errorf("%s: expected int, got %T", name, v)
		}
		if err := spec.checkBounds(name, float64(n)); err != nil {
			return nil, err
		}
		return n, nil

	case TypeFloat:
		var f float64
		switch x := v.(type) {
		case float64:
			f = x
		case int:
			f = float64(x)
		case int64:
			f = float64(x)
		default:
			return nil, fmt.Errorf("%s: expected float, got %T", name, v)
		}
		if err := spec.checkBounds(name, f); err != nil {
			return nil, err
		}
		return f, nil

	case TypeString:
		x, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%s: expected string, got %T", name, v)
		}
		if len(spec.Options) > 0 {
			for _, opt := range spec.Options {
				if x == opt {
					return x, nil
				}
			}
			return nil, fmt.Errorf("%s: %q is not one of %v", name, x, spec.Options)
		}
		return x, nil

	case TypeBool:
		x, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("%s: expected bool, got %T", name, v)
		}
		return x, nil

	default:
		return nil, fmt.Errorf("%s: unsupported parameter type %q", name, spec.Type)
	}
}

func (spec ParamSpec) checkBounds(name string, v float64) error {
	if spec.Min != nil && v < *spec.Min {
		return fmt.Errorf("%s: %v is below minimum %v", name, v, *spec.Min)
	}
	if spec.Max != nil && v > *spec.Max {
		return fmt.Errorf("%s: %v is above maximum %v", name, v, *spec.Max)
	}
	return nil
}

// Bound is a helper for building Min/Max bounds in schema literals.
func Bound(v float64) *float64 { return &v }
