// Package campaign implements games, their content, session logs and notes
// on top of the document store. Relationship changes between content go
// through the relation engine.
package campaign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"questlog/internal/config"
	"questlog/internal/relation"
	"questlog/internal/store"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidInput = errors.New("invalid input")
)

type Service struct {
	store  store.Store
	engine *relation.Engine
	schema *config.Schema
	logger *slog.Logger
	now    func() time.Time
}

func NewService(st store.Store, engine *relation.Engine, schema *config.Schema, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  st,
		engine: engine,
		schema: schema,
		logger: logger,
		now:    time.Now,
	}
}

func (s *Service) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// ownedGame loads a game and checks that ownerID owns it.
func (s *Service) ownedGame(ctx context.Context, ownerID, gameID string) (store.Document, error) {
	if gameID == "" {
		return nil, invalid("gameId is required")
	}
	doc, err := s.store.FindByID(ctx, "games", gameID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("game %s: %w", gameID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading game %s: %w", gameID, err)
	}
	if doc.String("ownerId") != ownerID {
		return nil, fmt.Errorf("game %s: %w", gameID, ErrForbidden)
	}
	return doc, nil
}

// ownedEntity loads a document from collection and checks that its game is
// owned by ownerID.
func (s *Service) ownedEntity(ctx context.Context, ownerID, collection, id string) (store.Document, error) {
	if id == "" {
		return nil, invalid("%s id is required", collection)
	}
	doc, err := s.store.FindByID(ctx, collection, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%s %s: %w", collection, id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading %s %s: %w", collection, id, err)
	}
	if _, err := s.ownedGame(ctx, ownerID, doc.String("gameId")); err != nil {
		return nil, err
	}
	return doc, nil
}
