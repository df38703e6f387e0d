package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed schema.yaml
var defaultSchema []byte

type Schema struct {
	Version     int          `yaml:"version"`
	EntityTypes []EntityType `yaml:"entity_types"`

	entityIndex     map[string]*EntityType
	collectionIndex map[string]*EntityType
}

type EntityType struct {
	Name       string      `yaml:"name"`
	Collection string      `yaml:"collection"`
	Content    bool        `yaml:"content"`
	Timestamps bool        `yaml:"timestamps"`
	SetFields  []string    `yaml:"set_fields"`
	References []Reference `yaml:"references"`
}

// Reference describes a field holding ids of another entity type.
type Reference struct {
	Field  string `yaml:"field"`
	Target string `yaml:"target"`
	// Set marks a list of ids rather than a single id.
	Set bool `yaml:"set"`
	// Managed fields are only written through relationship operations.
	Managed bool `yaml:"managed"`
}

// DefaultSchema returns the schema compiled into the binary.
func DefaultSchema() *Schema {
	schema, err := ParseSchema(defaultSchema)
	if err != nil {
		panic(fmt.Sprintf("embedded schema: %v", err))
	}
	return schema
}

// DefaultSchemaYAML returns the embedded schema source.
func DefaultSchemaYAML() []byte {
	return append([]byte(nil), defaultSchema...)
}

// LoadSchema reads a schema file, or returns the embedded schema when path is empty.
func LoadSchema(path string) (*Schema, error) {
	if path == "" {
		return DefaultSchema(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading schema: %w", err)
	}

	schema, err := ParseSchema(data)
	if err != nil {
		return nil, fmt.Errorf("loading schema: %w", err)
	}
	return schema, nil
}

func ParseSchema(data []byte) (*Schema, error) {
	var schema Schema
	if err := yaml.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("parsing schema: %w", err)
	}

	if err := validateSchema(&schema); err != nil {
		return nil, err
	}

	schema.entityIndex = make(map[string]*EntityType)
	schema.collectionIndex = make(map[string]*EntityType)
	for i := range schema.EntityTypes {
		entity := &schema.EntityTypes[i]
		schema.entityIndex[strings.ToLower(entity.Name)] = entity
		schema.collectionIndex[entity.Collection] = entity
	}

	return &schema, nil
}

func validateSchema(s *Schema) error {
	if s.Version != 1 {
		return fmt.Errorf("unsupported version: %d", s.Version)
	}
	if len(s.EntityTypes) == 0 {
		return fmt.Errorf("at least one entity type is required")
	}

	entityNames := make(map[string]struct{})
	collections := make(map[string]struct{})
	for i, entity := range s.EntityTypes {
		if strings.TrimSpace(entity.Name) == "" {
			return fmt.Errorf("entity type %d name is required", i)
		}
		key := strings.ToLower(entity.Name)
		if _, exists := entityNames[key]; exists {
			return fmt.Errorf("duplicate entity type name: %s", entity.Name)
		}
		entityNames[key] = struct{}{}

		if strings.TrimSpace(entity.Collection) == "" {
			return fmt.Errorf("entity type %s collection is required", entity.Name)
		}
		if _, exists := collections[entity.Collection]; exists {
			return fmt.Errorf("duplicate collection: %s", entity.Collection)
		}
		collections[entity.Collection] = struct{}{}
	}

	for _, entity := range s.EntityTypes {
		fields := make(map[string]struct{})
		for _, ref := range entity.References {
			if strings.TrimSpace(ref.Field) == "" {
				return fmt.Errorf("entity type %s has reference with empty field", entity.Name)
			}
			if _, exists := fields[ref.Field]; exists {
				return fmt.Errorf("entity type %s has duplicate reference: %s", entity.Name, ref.Field)
			}
			fields[ref.Field] = struct{}{}
			if _, ok := entityNames[strings.ToLower(ref.Target)]; !ok {
				return fmt.Errorf("entity type %s reference %s targets unknown type: %s", entity.Name, ref.Field, ref.Target)
			}
		}
	}

	return nil
}

func (s *Schema) EntityTypeByName(name string) (*EntityType, bool) {
	if s == nil {
		return nil, false
	}
	entity, ok := s.entityIndex[strings.ToLower(name)]
	return entity, ok
}

func (s *Schema) EntityTypeByCollection(collection string) (*EntityType, bool) {
	if s == nil {
		return nil, false
	}
	entity, ok := s.collectionIndex[collection]
	return entity, ok
}

func (s *Schema) IsValidEntityType(name string) bool {
	_, ok := s.EntityTypeByName(name)
	return ok
}

// ContentTypes lists the entity types that live inside a game and are
// managed through the game content surface.
func (s *Schema) ContentTypes() []*EntityType {
	var out []*EntityType
	for i := range s.EntityTypes {
		if s.EntityTypes[i].Content {
			out = append(out, &s.EntityTypes[i])
		}
	}
	return out
}

// Collection returns the collection of the named entity type, or "" when unknown.
func (s *Schema) Collection(name string) string {
	entity, ok := s.EntityTypeByName(name)
	if !ok {
		return ""
	}
	return entity.Collection
}

// Reference returns the reference declared on field.
func (e *EntityType) Reference(field string) (Reference, bool) {
	for _, ref := range e.References {
		if ref.Field == field {
			return ref, true
		}
	}
	return Reference{}, false
}

// IsManaged reports whether field is written only by relationship operations.
func (e *EntityType) IsManaged(field string) bool {
	root, _, _ := strings.Cut(field, ".")
	for _, ref := range e.References {
		if ref.Managed && ref.Field == root {
			return true
		}
	}
	return false
}

// NewDocument fills the schema defaults a freshly created entity carries:
// empty set fields, nil single references and creation timestamps.
func (e *EntityType) NewDocument(fields map[string]any, now string) map[string]any {
	doc := make(map[string]any, len(fields)+len(e.SetFields)+2)
	for _, field := range e.SetFields {
		doc[field] = []any{}
	}
	for _, ref := range e.References {
		if !ref.Set {
			doc[ref.Field] = nil
		}
	}
	for k, v := range fields {
		doc[k] = v
	}
	if e.Timestamps {
		doc["createdAt"] = now
		doc["updatedAt"] = now
	}
	return doc
}
