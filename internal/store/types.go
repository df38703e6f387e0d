package store

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// Document is a stored entity. Values are limited to what survives a JSON
// round trip: string, float64, bool, nil, []any and map[string]any.
type Document map[string]any

func (d Document) ID() string {
	id, _ := d[IDField].(string)
	return id
}

// String returns the string value of key, or "" when it is unset or not a string.
func (d Document) String(key string) string {
	v, _ := d[key].(string)
	return v
}

// Refs returns the string members of a set field.
func (d Document) Refs(key string) []string {
	return refSet(d[key])
}

// Filter selects documents. All non-empty parts must match.
type Filter struct {
	ID       string
	Equals   map[string]string
	Contains map[string]string
}

func ByID(id string) Filter {
	return Filter{ID: id}
}

func Where(field, value string) Filter {
	return Filter{Equals: map[string]string{field: value}}
}

func Holding(field, ref string) Filter {
	return Filter{Contains: map[string]string{field: ref}}
}

// Update describes a partial document mutation. Set keys may be dotted paths
// into nested objects; AddToSet and Pull operate on string sets.
type Update struct {
	Set      map[string]any
	AddToSet map[string]string
	Pull     map[string]string
}

func (u Update) IsEmpty() bool {
	return len(u.Set) == 0 && len(u.AddToSet) == 0 && len(u.Pull) == 0
}

type UpdateResult struct {
	Matched  int64
	Modified int64
}

func (r *UpdateResult) Add(other UpdateResult) {
	r.Matched += other.Matched
	r.Modified += other.Modified
}

func ValidateField(name string) error {
	if !fieldPattern.MatchString(name) {
		return fmt.Errorf("invalid field name: %q", name)
	}
	return nil
}

func (f Filter) Validate() error {
	for field := range f.Equals {
		if err := ValidateField(field); err != nil {
			return err
		}
	}
	for field := range f.Contains {
		if err := ValidateField(field); err != nil {
			return err
		}
	}
	return nil
}

func (u Update) Validate() error {
	for field := range u.Set {
		if field == IDField {
			return fmt.Errorf("cannot set %s", IDField)
		}
		if err := ValidateField(field); err != nil {
			return err
		}
	}
	for field := range u.AddToSet {
		if err := ValidateField(field); err != nil {
			return err
		}
	}
	for field := range u.Pull {
		if err := ValidateField(field); err != nil {
			return err
		}
	}
	return nil
}

// Normalize deep-copies doc into its JSON form so every backend observes the
// same value types.
func Normalize(doc Document) (Document, error) {
	if doc == nil {
		return Document{}, nil
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding document: %w", err)
	}
	return Decode(data)
}

func Decode(data []byte) (Document, error) {
	var out Document
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decoding document: %w", err)
	}
	if out == nil {
		out = Document{}
	}
	return out, nil
}

// SplitPath splits a dotted field path.
func SplitPath(field string) []string {
	return strings.Split(field, ".")
}
