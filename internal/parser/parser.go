// Package parser reads markdown prep notes whose YAML frontmatter describes
// one campaign entity.
package parser

import (
	"bytes"
	"errors"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Document struct {
	Frontmatter map[string]any
	Name        string
	EntityType  string
	Body        string
	SourceFile  string
}

var (
	ErrNoFrontmatter = errors.New("no frontmatter found")
	ErrInvalidYAML   = errors.New("invalid YAML in frontmatter")
	ErrMissingName   = errors.New("frontmatter missing required 'name' field")
	ErrMissingType   = errors.New("frontmatter missing required 'type' field")
)

func ParseFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	doc, err := Parse(data)
	if err != nil {
		return nil, err
	}
	doc.SourceFile = path
	return doc, nil
}

// Parse splits content into frontmatter and body. The entity name is read
// from "name", with "title" accepted as an alias.
func Parse(content []byte) (*Document, error) {
	content = bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
	trimmed := bytes.TrimLeft(content, "\ufeff\n\r\t ")
	if !bytes.HasPrefix(trimmed, []byte("---\n")) {
		return nil, ErrNoFrontmatter
	}

	rest := trimmed[len("---\n"):]
	var yamlBytes, body []byte
	if bytes.HasPrefix(rest, []byte("---\n")) {
		body = rest[len("---\n"):]
	} else {
		end := bytes.Index(rest, []byte("\n---\n"))
		if end == -1 {
			if !bytes.HasSuffix(rest, []byte("\n---")) {
				return nil, ErrNoFrontmatter
			}
			end = len(rest) - len("\n---")
			yamlBytes = rest[:end]
		} else {
			yamlBytes = rest[:end]
			body = rest[end+len("\n---\n"):]
		}
	}

	var frontmatter map[string]any
	if err := yaml.Unmarshal(yamlBytes, &frontmatter); err != nil {
		return nil, ErrInvalidYAML
	}
	if frontmatter == nil {
		frontmatter = map[string]any{}
	}

	entityType, ok := frontmatter["type"].(string)
	if !ok || strings.TrimSpace(entityType) == "" {
		return nil, ErrMissingType
	}

	name := stringField(frontmatter, "name")
	if name == "" {
		name = stringField(frontmatter, "title")
	}
	if name == "" {
		return nil, ErrMissingName
	}

	return &Document{
		Frontmatter: frontmatter,
		Name:        name,
		EntityType:  strings.ToLower(strings.TrimSpace(entityType)),
		Body:        strings.TrimSpace(string(body)),
	}, nil
}

func stringField(frontmatter map[string]any, key string) string {
	s, _ := frontmatter[key].(string)
	return strings.TrimSpace(s)
}

// Names reads a frontmatter value holding one name or a list of names.
func Names(value any) []string {
	switch v := value.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return nil
		}
		return []string{strings.TrimSpace(v)}
	case []any:
		names := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok || strings.TrimSpace(s) == "" {
				continue
			}
			names = append(names, strings.TrimSpace(s))
		}
		return names
	default:
		return nil
	}
}
