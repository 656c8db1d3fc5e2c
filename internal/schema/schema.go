// Package schema compiles declared parameter shapes into validation schemas
// and reconciles variable-arity textual input against them.
package schema

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is a package-level singleton; constructing a validator per call
// is expensive.
var validate = validator.New()

// ParamKind is the enumerated parameter-kind tag recorded in a registration
// manifest. The compiler switches on the tag, never on runtime types.
type ParamKind string

const (
	KindActor       ParamKind = "actor"
	KindString      ParamKind = "string"
	KindNumber      ParamKind = "number"
	KindBoolean     ParamKind = "boolean"
	KindStringArray ParamKind = "string-array"
	// KindObject marks an opaque structured parameter. No default validator
	// exists for it; descriptors using it must carry an explicit schema.
	KindObject ParamKind = "object"
)

// Issue is a single validation failure.
type Issue struct {
	// Slot is the positional index, or the parameter name for Named schemas.
	Slot   string
	Reason string
}

func (i Issue) String() string {
	return i.Slot + ": " + i.Reason
}

// ValidationError aggregates the issues found while validating one call.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		parts[i] = issue.String()
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Validator checks and coerces a single argument slot.
type Validator struct {
	Kind ParamKind
	// Rest marks the final slot of a Positional schema as able to absorb
	// overflow arguments.
	Rest bool
}

// Array reports whether the validator expects an array value.
func (v Validator) Array() bool {
	return v.Kind == KindStringArray
}

// Check validates raw and returns the coerced value. Textual input arrives
// as strings; values decoded from structured payloads keep their JSON types.
func (v Validator) Check(raw any) (any, error) {
	switch v.Kind {
	case KindString:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", raw)
		}
		if err := validate.Var(s, "required"); err != nil {
			return nil, fmt.Errorf("expected non-empty string")
		}
		return s, nil

	case KindNumber:
		switch n := raw.(type) {
		case float64:
			return n, nil
		case int:
			return float64(n), nil
		case string:
			if err := validate.Var(n, "required,numeric"); err != nil {
				return nil, fmt.Errorf("expected a number, got %q", n)
			}
			f, err := strconv.ParseFloat(n, 64)
			if err != nil {
				return nil, fmt.Errorf("expected a number, got %q", n)
			}
			return f, nil
		default:
			return nil, fmt.Errorf("expected number, got %T", raw)
		}

	case KindBoolean:
		switch b := raw.(type) {
		case bool:
			return b, nil
		case string:
			if err := validate.Var(b, "required,boolean"); err != nil {
				return nil, fmt.Errorf("expected a boolean, got %q", b)
			}
			parsed, err := strconv.ParseBool(b)
			if err != nil {
				return nil, fmt.Errorf("expected a boolean, got %q", b)
			}
			return parsed, nil
		default:
			return nil, fmt.Errorf("expected boolean, got %T", raw)
		}

	case KindStringArray:
		var items []string
		switch arr := raw.(type) {
		case []string:
			items = arr
		case []any:
			items = make([]string, len(arr))
			for i, elem := range arr {
				s, ok := elem.(string)
				if !ok {
					return nil, fmt.Errorf("expected string at element %d, got %T", i, elem)
				}
				items[i] = s
			}
		default:
			return nil, fmt.Errorf("expected string array, got %T", raw)
		}
		for i, s := range items {
			if err := validate.Var(s, "required"); err != nil {
				return nil, fmt.Errorf("expected non-empty string at element %d", i)
			}
		}
		return items, nil

	default:
		return nil, fmt.Errorf("no validator for kind %q", v.Kind)
	}
}

// Positional is an ordered list of validators; the last may be rest-capable.
type Positional struct {
	Items []Validator
}

// Len returns the schema arity.
func (p *Positional) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Items)
}

// Validate checks args slot by slot. The argument count must already match
// the schema arity; use Reconcile first for textual input.
func (p *Positional) Validate(args []any) ([]any, error) {
	if len(args) != p.Len() {
		return nil, &ValidationError{Issues: []Issue{{
			Slot:   "arguments",
			Reason: fmt.Sprintf("expected %d arguments, got %d", p.Len(), len(args)),
		}}}
	}
	out := make([]any, len(args))
	var issues []Issue
	for i, raw := range args {
		value, err := p.Items[i].Check(raw)
		if err != nil {
			issues = append(issues, Issue{Slot: strconv.Itoa(i), Reason: err.Error()})
			continue
		}
		out[i] = value
	}
	if len(issues) > 0 {
		return nil, &ValidationError{Issues: issues}
	}
	return out, nil
}

// Field is one named slot of a Named schema.
type Field struct {
	Name      string
	Validator Validator
}

// Named validates an object keyed by parameter names, in declaration order.
type Named struct {
	Fields []Field
}

// Keys returns the field names in declaration order.
func (n *Named) Keys() []string {
	keys := make([]string, len(n.Fields))
	for i, f := range n.Fields {
		keys[i] = f.Name
	}
	return keys
}

// CheckParams verifies the schema key set equals the declared parameter
// names exactly. A symmetric difference is a configuration error.
func (n *Named) CheckParams(names []string) error {
	declared := make(map[string]bool, len(names))
	for _, name := range names {
		declared[name] = true
	}
	for _, f := range n.Fields {
		if !declared[f.Name] {
			return fmt.Errorf("schema key %q has no declared parameter", f.Name)
		}
		delete(declared, f.Name)
	}
	for name := range declared {
		return fmt.Errorf("declared parameter %q missing from schema", name)
	}
	return nil
}

// Validate checks the object as a single unit, accumulating issues per key.
func (n *Named) Validate(obj map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(n.Fields))
	var issues []Issue
	for _, f := range n.Fields {
		raw, ok := obj[f.Name]
		if !ok {
			issues = append(issues, Issue{Slot: f.Name, Reason: "missing"})
			continue
		}
		value, err := f.Validator.Check(raw)
		if err != nil {
			issues = append(issues, Issue{Slot: f.Name, Reason: err.Error()})
			continue
		}
		out[f.Name] = value
	}
	for key := range obj {
		known := false
		for _, f := range n.Fields {
			if f.Name == key {
				known = true
				break
			}
		}
		if !known {
			issues = append(issues, Issue{Slot: key, Reason: "unexpected field"})
		}
	}
	if len(issues) > 0 {
		return nil, &ValidationError{Issues: issues}
	}
	return out, nil
}
