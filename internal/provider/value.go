// internal/provider/value.go
package provider

import (
	"fmt"
	"sort"
	"strings"
)

// Value wraps one node of a decoded JSON payload whose shape varies
// between scalar, list and object across item categories. All accessors
// are nil-safe and never panic; a miss yields a zero Value or empty
// string. Resolution order everywhere is: explicit preferred key, first
// non-empty alternate, recursive structural search as last resort.
type Value struct {
	v interface{}
}

// V wraps a raw decoded JSON value.
func V(v interface{}) Value {
	return Value{v: v}
}

// IsNil reports whether the node is absent.
func (val Value) IsNil() bool {
	return val.v == nil
}

// Str coerces the node to a string. Scalars format naturally, a list
// yields its first non-empty element's string form, an object yields
// the empty string (use Key/FirstOf for those).
func (val Value) Str() string {
	switch t := val.v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		// JSON numbers decode as float64; integral values print without
		// a fraction.
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	case bool:
		return fmt.Sprintf("%v", t)
	case []interface{}:
		for _, e := range t {
			if s := V(e).Str(); s != "" {
				return s
			}
		}
		return ""
	default:
		return ""
	}
}

// Key returns the named member of an object node, or a zero Value.
func (val Value) Key(name string) Value {
	if m, ok := val.v.(map[string]interface{}); ok {
		return V(m[name])
	}
	return Value{}
}

// FirstOf returns the first named member that resolves to a non-empty
// value, trying names in order.
func (val Value) FirstOf(names ...string) Value {
	for _, name := range names {
		if v := val.Key(name); !v.IsNil() && (v.Str() != "" || v.Len() > 0 || v.isObject()) {
			return v
		}
	}
	return Value{}
}

func (val Value) isObject() bool {
	_, ok := val.v.(map[string]interface{})
	return ok
}

// Len returns the element count of a list node, zero otherwise.
func (val Value) Len() int {
	if l, ok := val.v.([]interface{}); ok {
		return len(l)
	}
	return 0
}

// Each calls fn for every element of a list node. A scalar or object
// node is treated as a one-element list, matching payloads where a
// single value arrives unwrapped.
func (val Value) Each(fn func(Value)) {
	switch t := val.v.(type) {
	case nil:
		return
	case []interface{}:
		for _, e := range t {
			fn(V(e))
		}
	default:
		fn(val)
	}
}

// Names collects the "name" member of each element, the shape the
// vendor uses for actress, genre, maker and author lists. Elements
// without a name are skipped.
func (val Value) Names() []string {
	var out []string
	val.Each(func(e Value) {
		if n := e.Key("name").Str(); n != "" {
			out = append(out, n)
		}
	})
	return out
}

// URLString coerces a node that should hold an image or link URL. The
// vendor serves these as a bare string, a {large,list,small} object or
// a list of either; preference runs large, list, small, then first
// non-empty element.
func (val Value) URLString() string {
	switch t := val.v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case map[string]interface{}:
		for _, k := range []string{"large", "list", "small"} {
			if s := V(t[k]).URLString(); s != "" {
				return s
			}
		}
		return ""
	case []interface{}:
		for _, e := range t {
			if s := V(e).URLString(); s != "" {
				return s
			}
		}
		return ""
	default:
		return ""
	}
}

// Walk visits every string reachable from the node, depth-first. Object
// members named image, src or url are visited before the remaining
// members, keeping collection order deterministic and preferring the
// conventional URL slots.
func (val Value) Walk(fn func(s string)) {
	switch t := val.v.(type) {
	case nil:
		return
	case string:
		fn(t)
	case map[string]interface{}:
		for _, k := range []string{"image", "src", "url"} {
			if s, ok := t[k].(string); ok {
				fn(s)
			}
		}
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if k == "image" || k == "src" || k == "url" {
				// Already visited as a string above; descend only if
				// the member is itself a container.
				if _, isStr := t[k].(string); isStr {
					continue
				}
			}
			V(t[k]).Walk(fn)
		}
	case []interface{}:
		for _, e := range t {
			V(e).Walk(fn)
		}
	}
}
