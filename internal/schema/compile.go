package schema

import (
	"errors"
	"fmt"
)

// ErrNotDerivable is returned when a declared parameter list contains an
// opaque kind with no default validator. The descriptor must then carry an
// explicit schema.
var ErrNotDerivable = errors.New("schema not derivable from parameter kinds")

// Compile turns a declared parameter-kind list into a Positional schema.
//
// The first tag must be KindActor whenever the list is non-empty; the actor
// slot is bound by the dispatcher, not validated, so it does not appear in
// the compiled schema. A list of exactly one Actor tag compiles to an empty
// schema that only accepts zero arguments.
func Compile(params []ParamKind) (*Positional, error) {
	if len(params) == 0 {
		return &Positional{}, nil
	}
	if params[0] != KindActor {
		return nil, fmt.Errorf("first parameter must be %q, got %q", KindActor, params[0])
	}

	items := make([]Validator, 0, len(params)-1)
	for i, kind := range params[1:] {
		switch kind {
		case KindString, KindNumber, KindBoolean:
			items = append(items, Validator{Kind: kind})
		case KindStringArray:
			items = append(items, Validator{Kind: kind, Rest: true})
		case KindActor:
			return nil, fmt.Errorf("parameter %d: actor kind is only valid in first position", i+1)
		default:
			return nil, ErrNotDerivable
		}
	}
	return &Positional{Items: items}, nil
}
