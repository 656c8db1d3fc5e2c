package schema

import (
	"fmt"
	"strings"
)

// Reconcile bridges N raw textual arguments to an M-item Positional schema
// before validation. Only the last schema slot is special-cased; this is a
// best-effort arity bridge, not a general parser.
//
// Rules, evaluated in order:
//  1. Overflow into a trailing rest-capable array slot: the extra arguments
//     become one array value in the last slot.
//  2. Overflow into a trailing plain string slot: the extra arguments are
//     joined with single spaces into one string.
//  3. Exact arity with a trailing array slot but a scalar final argument:
//     the argument is wrapped into a one-element array.
//  4. Anything else passes through unchanged.
func Reconcile(args []any, p *Positional) []any {
	m := p.Len()
	if m == 0 {
		return args
	}
	last := p.Items[m-1]

	if len(args) > m {
		if last.Rest && last.Array() {
			out := make([]any, m)
			copy(out, args[:m-1])
			rest := make([]string, 0, len(args)-m+1)
			for _, arg := range args[m-1:] {
				rest = append(rest, stringify(arg))
			}
			out[m-1] = rest
			return out
		}
		if last.Kind == KindString {
			out := make([]any, m)
			copy(out, args[:m-1])
			parts := make([]string, 0, len(args)-m+1)
			for _, arg := range args[m-1:] {
				parts = append(parts, stringify(arg))
			}
			out[m-1] = strings.Join(parts, " ")
			return out
		}
	}

	if len(args) == m && last.Array() {
		if _, isArray := args[m-1].([]any); !isArray {
			if _, isArray := args[m-1].([]string); !isArray {
				out := make([]any, m)
				copy(out, args)
				out[m-1] = []string{stringify(args[m-1])}
				return out
			}
		}
	}

	return args
}

func stringify(arg any) string {
	if s, ok := arg.(string); ok {
		return s
	}
	return fmt.Sprint(arg)
}
