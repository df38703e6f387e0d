package store

import (
	"fmt"
	"reflect"
	"strings"
)

// Apply mutates doc in place and reports whether anything changed. Set runs
// before AddToSet, which runs before Pull.
func Apply(doc Document, update Update) (bool, error) {
	modified := false

	if len(update.Set) > 0 {
		values, err := Normalize(Document(update.Set))
		if err != nil {
			return false, err
		}
		for field, value := range values {
			old, _ := lookup(doc, SplitPath(field))
			if err := assign(doc, SplitPath(field), value); err != nil {
				return false, err
			}
			if !reflect.DeepEqual(old, value) {
				modified = true
			}
		}
	}

	for field, ref := range update.AddToSet {
		path := SplitPath(field)
		current, _ := lookup(doc, path)
		if current != nil && !isList(current) {
			return false, fmt.Errorf("field %s is not a set", field)
		}
		refs := refSet(current)
		if contains(refs, ref) {
			continue
		}
		if err := assign(doc, path, toList(append(refs, ref))); err != nil {
			return false, err
		}
		modified = true
	}

	for field, ref := range update.Pull {
		path := SplitPath(field)
		current, ok := lookup(doc, path)
		if !ok || current == nil {
			continue
		}
		if !isList(current) {
			return false, fmt.Errorf("field %s is not a set", field)
		}
		refs := refSet(current)
		kept := make([]string, 0, len(refs))
		for _, r := range refs {
			if r != ref {
				kept = append(kept, r)
			}
		}
		if len(kept) == len(refs) {
			continue
		}
		if err := assign(doc, path, toList(kept)); err != nil {
			return false, err
		}
		modified = true
	}

	return modified, nil
}

// Matches reports whether doc satisfies filter.
func Matches(doc Document, filter Filter) bool {
	if filter.ID != "" && doc.ID() != filter.ID {
		return false
	}
	for field, want := range filter.Equals {
		got, ok := lookup(doc, SplitPath(field))
		if !ok {
			return false
		}
		s, isString := got.(string)
		if !isString || s != want {
			return false
		}
	}
	for field, ref := range filter.Contains {
		got, _ := lookup(doc, SplitPath(field))
		if !contains(refSet(got), ref) {
			return false
		}
	}
	return true
}

func lookup(doc Document, path []string) (any, bool) {
	var current any = map[string]any(doc)
	for _, key := range path {
		m, ok := current.(map[string]any)
		if !ok {
			if d, isDoc := current.(Document); isDoc {
				m = d
			} else {
				return nil, false
			}
		}
		current, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func assign(doc Document, path []string, value any) error {
	m := map[string]any(doc)
	for i, key := range path[:len(path)-1] {
		next, ok := m[key]
		if !ok || next == nil {
			child := map[string]any{}
			m[key] = child
			m = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("field %s is not an object", strings.Join(path[:i+1], "."))
		}
		m = child
	}
	m[path[len(path)-1]] = value
	return nil
}

func refSet(v any) []string {
	switch list := v.(type) {
	case []string:
		return append([]string(nil), list...)
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func isList(v any) bool {
	switch v.(type) {
	case []any, []string:
		return true
	default:
		return false
	}
}

func toList(refs []string) []any {
	out := make([]any, len(refs))
	for i, r := range refs {
		out[i] = r
	}
	return out
}

func contains(refs []string, ref string) bool {
	for _, r := range refs {
		if r == ref {
			return true
		}
	}
	return false
}
