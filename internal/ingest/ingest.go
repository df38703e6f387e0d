// Package ingest imports markdown prep notes into a game. Each file with
// frontmatter becomes a scene, NPC, player or item; frontmatter fields that
// name other entities become relationships.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"questlog/internal/campaign"
	"questlog/internal/config"
	"questlog/internal/parser"
	"questlog/internal/relation"
)

const (
	sourceFileField = "sourceFile"
	sourceHashField = "sourceHash"
)

type Result struct {
	Created      int
	Updated      int
	Removed      int
	LinksApplied int
	FilesSkipped int
	Errors       []error
}

type Options struct {
	// Full re-imports files whose content hash is unchanged.
	Full bool
	// Prune deletes content imported from files under the roots that no
	// longer exist.
	Prune   bool
	Exclude []string
}

type imported struct {
	id   string
	kind string
	hash string
}

type processedDoc struct {
	doc  *parser.Document
	kind string
	id   string
}

// index tracks the game's content by source file and by lowercased name.
type index struct {
	bySource map[string]imported
	byName   map[string]map[string]string
}

func Run(ctx context.Context, camp *campaign.Service, schema *config.Schema, ownerID, gameID string, roots []string, options Options) (*Result, error) {
	if _, err := camp.GetGame(ctx, ownerID, gameID); err != nil {
		return nil, err
	}

	idx, err := loadIndex(ctx, camp, schema, ownerID, gameID)
	if err != nil {
		return nil, err
	}

	files, err := walkMarkdownFiles(roots, options.Exclude)
	if err != nil {
		return nil, fmt.Errorf("walking files: %w", err)
	}

	result := &Result{}
	var processed []processedDoc

	for _, path := range files {
		hash, err := computeHash(path)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("hashing %s: %w", path, err))
			continue
		}

		prev, known := idx.bySource[path]
		if known && !options.Full && prev.hash == hash {
			result.FilesSkipped++
			continue
		}

		doc, err := parser.ParseFile(path)
		if err != nil {
			if errors.Is(err, parser.ErrNoFrontmatter) || errors.Is(err, parser.ErrMissingType) {
				result.FilesSkipped++
				continue
			}
			result.Errors = append(result.Errors, fmt.Errorf("parsing %s: %w", path, err))
			continue
		}

		entityType, ok := schema.EntityTypeByName(doc.EntityType)
		if !ok || !entityType.Content {
			result.FilesSkipped++
			continue
		}
		kind := entityType.Name

		if known && prev.kind != kind {
			result.Errors = append(result.Errors, fmt.Errorf("%s: type changed from %s to %s", path, prev.kind, kind))
			continue
		}

		key := strings.ToLower(doc.Name)
		if existing, ok := idx.byName[kind][key]; ok && existing != prev.id {
			result.Errors = append(result.Errors, fmt.Errorf("%s: duplicate %s name %q", path, kind, doc.Name))
			continue
		}

		data := contentFields(doc, kind)
		data[sourceFileField] = path
		data[sourceHashField] = hash

		var id string
		if known {
			id = prev.id
			if err := camp.UpdateContent(ctx, ownerID, kind, id, data); err != nil {
				result.Errors = append(result.Errors, fmt.Errorf("updating %s: %w", path, err))
				continue
			}
			result.Updated++
		} else {
			id, err = camp.CreateContent(ctx, ownerID, campaign.CreateContentInput{Type: kind, GameID: gameID, Data: data})
			if err != nil {
				result.Errors = append(result.Errors, fmt.Errorf("creating %s: %w", path, err))
				continue
			}
			result.Created++
		}
		idx.byName[kind][key] = id
		processed = append(processed, processedDoc{doc: doc, kind: kind, id: id})
	}

	for _, item := range processed {
		for _, l := range links[item.kind] {
			for _, target := range parser.Names(item.doc.Frontmatter[l.Field]) {
				targetID, ok := idx.byName[l.Target][strings.ToLower(target)]
				if !ok {
					result.Errors = append(result.Errors, fmt.Errorf("%s: unresolved %s %q in %s", item.doc.SourceFile, l.Target, target, l.Field))
					continue
				}
				params := relation.Params{
					item.kind + "Id": item.id,
					l.Target + "Id":  targetID,
				}
				if err := camp.ApplyRelationship(ctx, ownerID, l.Relationship, params); err != nil {
					result.Errors = append(result.Errors, fmt.Errorf("%s: linking %s %q: %w", item.doc.SourceFile, l.Target, target, err))
					continue
				}
				result.LinksApplied++
			}
		}
	}

	if options.Prune {
		current := make(map[string]bool, len(files))
		for _, path := range files {
			current[path] = true
		}
		for path, prev := range idx.bySource {
			if current[path] || !underRoots(path, roots) {
				continue
			}
			if err := camp.DeleteContent(ctx, ownerID, prev.kind, prev.id); err != nil {
				result.Errors = append(result.Errors, fmt.Errorf("removing %s: %w", path, err))
				continue
			}
			result.Removed++
		}
	}

	return result, nil
}

func loadIndex(ctx context.Context, camp *campaign.Service, schema *config.Schema, ownerID, gameID string) (*index, error) {
	idx := &index{
		bySource: make(map[string]imported),
		byName:   make(map[string]map[string]string),
	}
	for _, entityType := range schema.ContentTypes() {
		docs, err := camp.ListContent(ctx, ownerID, gameID, entityType.Name)
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", entityType.Collection, err)
		}
		names := make(map[string]string, len(docs))
		for _, doc := range docs {
			if name := doc.String("name"); name != "" {
				names[strings.ToLower(name)] = doc.ID()
			}
			if source := doc.String(sourceFileField); source != "" {
				idx.bySource[source] = imported{id: doc.ID(), kind: entityType.Name, hash: doc.String(sourceHashField)}
			}
		}
		idx.byName[entityType.Name] = names
	}
	return idx, nil
}

// contentFields turns frontmatter into content data. Link fields are applied
// as relationships instead, and the body becomes the description unless the
// frontmatter sets one.
func contentFields(doc *parser.Document, kind string) map[string]any {
	data := make(map[string]any, len(doc.Frontmatter)+1)
	for key, value := range doc.Frontmatter {
		if key == "type" || key == "title" || key == "name" || isLinkField(kind, key) {
			continue
		}
		data[key] = value
	}
	data["name"] = doc.Name
	if _, ok := data["description"]; !ok && doc.Body != "" {
		data["description"] = doc.Body
	}
	return data
}

func walkMarkdownFiles(roots []string, excludes []string) ([]string, error) {
	excluded := make([]string, 0, len(excludes))
	for _, path := range excludes {
		if path == "" {
			continue
		}
		excluded = append(excluded, filepath.Clean(path))
	}

	var files []string
	for _, root := range roots {
		if root == "" {
			continue
		}
		root = filepath.Clean(root)
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() && isExcluded(path, excluded) {
				return filepath.SkipDir
			}
			if d.IsDir() {
				return nil
			}
			if !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
				return nil
			}
			if isExcluded(path, excluded) {
				return nil
			}
			files = append(files, path)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

func isExcluded(path string, excludes []string) bool {
	return underRoots(path, excludes)
}

func underRoots(path string, roots []string) bool {
	clean := filepath.Clean(path)
	for _, root := range roots {
		if root == "" {
			continue
		}
		root = filepath.Clean(root)
		if root == clean || strings.HasPrefix(clean, root+string(os.PathSeparator)) {
			return true
		}
	}
	return false
}

func computeHash(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
