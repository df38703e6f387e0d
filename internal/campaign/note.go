package campaign

import (
	"context"
	"fmt"
	"strings"

	"questlog/internal/store"
)

type NoteInput struct {
	Type     string `json:"type"`
	EntityID string `json:"entityId"`
	Title    string `json:"title"`
	Text     string `json:"text"`
}

func (s *Service) ListNotes(ctx context.Context, userID, entityType, entityID string) ([]Note, error) {
	if entityType == "" || entityID == "" {
		return nil, invalid("type and entityId are required")
	}

	filter := store.Filter{Equals: map[string]string{
		"entityType": entityType,
		"entityId":   entityID,
		"userId":     userID,
	}}
	docs, err := s.store.Find(ctx, "notes", filter)
	if err != nil {
		return nil, fmt.Errorf("listing notes: %w", err)
	}
	return decodeAll[Note](docs)
}

// CreateNote attaches a note to a content entity and returns every note the
// user holds for that entity.
func (s *Service) CreateNote(ctx context.Context, userID string, in NoteInput) ([]Note, error) {
	if in.Type == "" || in.EntityID == "" || strings.TrimSpace(in.Title) == "" || strings.TrimSpace(in.Text) == "" {
		return nil, invalid("type, entityId, title and text are required")
	}
	entity, err := s.contentType(in.Type)
	if err != nil {
		return nil, err
	}
	target, err := s.ownedEntity(ctx, userID, entity.Collection, in.EntityID)
	if err != nil {
		return nil, err
	}

	notes, _ := s.schema.EntityTypeByName("note")
	doc := notes.NewDocument(map[string]any{
		"gameId":     target.String("gameId"),
		"entityType": entity.Name,
		"entityId":   in.EntityID,
		"userId":     userID,
		"title":      in.Title,
		"text":       in.Text,
	}, s.timestamp())
	if _, err := s.store.Insert(ctx, notes.Collection, doc); err != nil {
		return nil, fmt.Errorf("creating note: %w", err)
	}

	return s.ListNotes(ctx, userID, entity.Name, in.EntityID)
}

func (s *Service) UpdateNote(ctx context.Context, userID, noteID, title, text string) error {
	if noteID == "" || strings.TrimSpace(title) == "" || strings.TrimSpace(text) == "" {
		return invalid("noteId, title and text are required")
	}

	filter := store.Filter{ID: noteID, Equals: map[string]string{"userId": userID}}
	res, err := s.store.UpdateOne(ctx, "notes", filter, store.Update{Set: map[string]any{
		"title":     title,
		"text":      text,
		"updatedAt": s.timestamp(),
	}})
	if err != nil {
		return fmt.Errorf("updating note %s: %w", noteID, err)
	}
	if res.Matched == 0 {
		return fmt.Errorf("note %s: %w", noteID, ErrNotFound)
	}
	return nil
}

func (s *Service) DeleteNote(ctx context.Context, userID, noteID string) error {
	if noteID == "" {
		return invalid("noteId is required")
	}

	n, err := s.store.DeleteOne(ctx, "notes", store.Filter{ID: noteID, Equals: map[string]string{"userId": userID}})
	if err != nil {
		return fmt.Errorf("deleting note %s: %w", noteID, err)
	}
	if n == 0 {
		return fmt.Errorf("note %s: %w", noteID, ErrNotFound)
	}
	return nil
}
