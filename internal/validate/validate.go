// Package validate audits the references between the documents of a game
// and repairs the ones that point nowhere.
package validate

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"questlog/internal/config"
	"questlog/internal/metrics"
	"questlog/internal/store"
)

type Severity string

const (
	SeverityError Severity = "error"
	SeverityWarn  Severity = "warning"
)

const (
	CodeMultipleOwners    = "multiple_owners"
	CodeMissingBackref    = "missing_backref"
	CodeStaleHolder       = "stale_holder"
	CodeDanglingReference = "dangling_reference"
)

var codes = []string{CodeMultipleOwners, CodeMissingBackref, CodeStaleHolder, CodeDanglingReference}

type Issue struct {
	Severity   Severity `json:"severity"`
	Code       string   `json:"code"`
	Message    string   `json:"message"`
	Collection string   `json:"collection"`
	EntityID   string   `json:"entityId"`
	Field      string   `json:"field,omitempty"`
	Ref        string   `json:"ref,omitempty"`
}

type Report struct {
	GameID string  `json:"gameId"`
	Issues []Issue `json:"issues"`
}

func (r *Report) HasErrors() bool {
	for _, issue := range r.Issues {
		if issue.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Count returns the number of issues with the given code.
func (r *Report) Count(code string) int {
	n := 0
	for _, issue := range r.Issues {
		if issue.Code == code {
			n++
		}
	}
	return n
}

// snapshot holds the content documents of one game by collection and id.
type snapshot map[string]map[string]store.Document

func load(ctx context.Context, schema *config.Schema, db store.Collections, gameID string) (snapshot, error) {
	snap := make(snapshot)
	for _, entityType := range schema.ContentTypes() {
		docs, err := db.Find(ctx, entityType.Collection, store.Where("gameId", gameID))
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", entityType.Collection, err)
		}
		byID := make(map[string]store.Document, len(docs))
		for _, doc := range docs {
			byID[doc.ID()] = doc
		}
		snap[entityType.Collection] = byID
	}
	return snap, nil
}

// Run audits every content document of gameID against the references the
// schema declares.
func Run(ctx context.Context, schema *config.Schema, db store.Collections, gameID string) (*Report, error) {
	if schema == nil {
		return nil, errors.New("schema is required")
	}
	if db == nil {
		return nil, errors.New("store is required")
	}

	snap, err := load(ctx, schema, db, gameID)
	if err != nil {
		return nil, err
	}

	issues := make([]Issue, 0)
	for _, entityType := range schema.ContentTypes() {
		docs := snap[entityType.Collection]
		for _, id := range slices.Sorted(maps.Keys(docs)) {
			issues = append(issues, validateOwners(schema, entityType, docs[id])...)
			issues = append(issues, validateReferences(schema, snap, entityType, docs[id])...)
		}
	}

	report := &Report{GameID: gameID, Issues: issues}
	for _, code := range codes {
		metrics.IntegrityIssues.WithLabelValues(code).Set(float64(report.Count(code)))
	}
	return report, nil
}

// validateOwners reports a document naming more than one exclusive holder.
// A single reference is exclusive when its target keeps a set pointing back.
func validateOwners(schema *config.Schema, entityType *config.EntityType, doc store.Document) []Issue {
	var owners []string
	for _, ref := range entityType.References {
		if ref.Set || !ref.Managed {
			continue
		}
		if _, ok := backSet(schema, entityType, ref); !ok {
			continue
		}
		if doc.String(ref.Field) != "" {
			owners = append(owners, ref.Field)
		}
	}
	if len(owners) < 2 {
		return nil
	}
	return []Issue{{
		Severity:   SeverityError,
		Code:       CodeMultipleOwners,
		Message:    fmt.Sprintf("%s %s has more than one owner: %s", entityType.Name, doc.ID(), strings.Join(owners, ", ")),
		Collection: entityType.Collection,
		EntityID:   doc.ID(),
		Field:      strings.Join(owners, ","),
	}}
}

func validateReferences(schema *config.Schema, snap snapshot, entityType *config.EntityType, doc store.Document) []Issue {
	var issues []Issue
	for _, ref := range entityType.References {
		target, ok := schema.EntityTypeByName(ref.Target)
		if !ok {
			continue
		}
		targets := snap[target.Collection]

		if ref.Set {
			back, hasBack := backField(schema, entityType, ref)
			for _, refID := range doc.Refs(ref.Field) {
				held, ok := targets[refID]
				switch {
				case !ok:
					issues = append(issues, dangling(entityType, doc, ref, refID))
				case hasBack && held.String(back) != doc.ID():
					issues = append(issues, Issue{
						Severity:   SeverityError,
						Code:       CodeStaleHolder,
						Message:    fmt.Sprintf("%s %s lists %s %s whose %s is %q", entityType.Name, doc.ID(), target.Name, refID, back, held.String(back)),
						Collection: entityType.Collection,
						EntityID:   doc.ID(),
						Field:      ref.Field,
						Ref:        refID,
					})
				}
			}
			continue
		}

		refID := doc.String(ref.Field)
		if refID == "" {
			continue
		}
		holder, ok := targets[refID]
		if !ok {
			issues = append(issues, dangling(entityType, doc, ref, refID))
			continue
		}
		if set, ok := backSet(schema, entityType, ref); ok && !slices.Contains(holder.Refs(set), doc.ID()) {
			issues = append(issues, Issue{
				Severity:   SeverityError,
				Code:       CodeMissingBackref,
				Message:    fmt.Sprintf("%s %s names %s %s but its %s does not list it", entityType.Name, doc.ID(), target.Name, refID, set),
				Collection: entityType.Collection,
				EntityID:   doc.ID(),
				Field:      ref.Field,
				Ref:        refID,
			})
		}
	}
	return issues
}

func dangling(entityType *config.EntityType, doc store.Document, ref config.Reference, refID string) Issue {
	return Issue{
		Severity:   SeverityWarn,
		Code:       CodeDanglingReference,
		Message:    fmt.Sprintf("%s %s references missing %s %s in %s", entityType.Name, doc.ID(), ref.Target, refID, ref.Field),
		Collection: entityType.Collection,
		EntityID:   doc.ID(),
		Field:      ref.Field,
		Ref:        refID,
	}
}

// backField finds the single reference on a set member that should name the
// set's holder, e.g. an item's ownerNpcId for an npc's itemIds.
func backField(schema *config.Schema, holder *config.EntityType, ref config.Reference) (string, bool) {
	member, ok := schema.EntityTypeByName(ref.Target)
	if !ok {
		return "", false
	}
	for _, r := range member.References {
		if !r.Set && r.Target == holder.Name {
			return r.Field, true
		}
	}
	return "", false
}

// backSet finds the set on a referenced holder that should list the member.
func backSet(schema *config.Schema, member *config.EntityType, ref config.Reference) (string, bool) {
	holder, ok := schema.EntityTypeByName(ref.Target)
	if !ok {
		return "", false
	}
	for _, r := range holder.References {
		if r.Set && r.Target == member.Name {
			return r.Field, true
		}
	}
	return "", false
}

// Cleanup removes stale and dangling references in gameID: set members are
// pulled and single references are cleared. Ownership conflicts and missing
// back references are left for a person to resolve. It returns the number of
// documents modified.
func Cleanup(ctx context.Context, schema *config.Schema, db store.Store, gameID string) (int64, error) {
	var modified int64
	err := db.WithTx(ctx, func(ctx context.Context, tx store.Collections) error {
		report, err := Run(ctx, schema, tx, gameID)
		if err != nil {
			return err
		}
		for _, issue := range report.Issues {
			if issue.Code != CodeStaleHolder && issue.Code != CodeDanglingReference {
				continue
			}
			update, ok := repair(schema, issue)
			if !ok {
				continue
			}
			result, err := tx.UpdateOne(ctx, issue.Collection, store.ByID(issue.EntityID), update)
			if err != nil {
				return fmt.Errorf("repair %s %s: %w", issue.Collection, issue.EntityID, err)
			}
			modified += result.Modified
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("cleanup game %s: %w", gameID, err)
	}
	return modified, nil
}

func repair(schema *config.Schema, issue Issue) (store.Update, bool) {
	entityType, ok := schema.EntityTypeByCollection(issue.Collection)
	if !ok {
		return store.Update{}, false
	}
	ref, ok := entityType.Reference(issue.Field)
	if !ok {
		return store.Update{}, false
	}
	if ref.Set {
		return store.Update{Pull: map[string]string{ref.Field: issue.Ref}}, true
	}
	return store.Update{Set: map[string]any{ref.Field: nil}}, true
}
