package campaign

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"questlog/internal/store"
)

func (s *Service) CreateGame(ctx context.Context, ownerID, name, description string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", invalid("name is required")
	}

	games, _ := s.schema.EntityTypeByName("game")
	doc := games.NewDocument(map[string]any{
		"ownerId":     ownerID,
		"name":        name,
		"description": description,
	}, s.timestamp())

	id, err := s.store.Insert(ctx, games.Collection, doc)
	if err != nil {
		return "", fmt.Errorf("creating game: %w", err)
	}

	s.logger.Info("game created", "game_id", id, "owner_id", ownerID)
	return id, nil
}

func (s *Service) ListGames(ctx context.Context, ownerID string) ([]Game, error) {
	docs, err := s.store.Find(ctx, "games", store.Where("ownerId", ownerID))
	if err != nil {
		return nil, fmt.Errorf("listing games: %w", err)
	}
	return decodeAll[Game](docs)
}

func (s *Service) GetGame(ctx context.Context, ownerID, gameID string) (*Game, error) {
	doc, err := s.ownedGame(ctx, ownerID, gameID)
	if err != nil {
		return nil, err
	}
	var game Game
	if err := decode(doc, &game); err != nil {
		return nil, err
	}
	return &game, nil
}

// GetGameData loads a game and all of its content, fetching each
// collection concurrently.
func (s *Service) GetGameData(ctx context.Context, ownerID, gameID string) (*GameData, error) {
	game, err := s.GetGame(ctx, ownerID, gameID)
	if err != nil {
		return nil, err
	}

	data := &GameData{Game: *game}
	byGame := store.Where("gameId", gameID)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		docs, err := s.store.Find(ctx, "scenes", byGame)
		if err != nil {
			return fmt.Errorf("loading scenes: %w", err)
		}
		data.Scenes, err = decodeAll[Scene](docs)
		return err
	})
	g.Go(func() error {
		docs, err := s.store.Find(ctx, "npcs", byGame)
		if err != nil {
			return fmt.Errorf("loading npcs: %w", err)
		}
		data.NPCs, err = decodeAll[NPC](docs)
		return err
	})
	g.Go(func() error {
		docs, err := s.store.Find(ctx, "players", byGame)
		if err != nil {
			return fmt.Errorf("loading players: %w", err)
		}
		data.Players, err = decodeAll[Player](docs)
		return err
	})
	g.Go(func() error {
		docs, err := s.store.Find(ctx, "items", byGame)
		if err != nil {
			return fmt.Errorf("loading items: %w", err)
		}
		data.Items, err = decodeAll[Item](docs)
		return err
	})
	g.Go(func() error {
		docs, err := s.store.Find(ctx, "notes", byGame)
		if err != nil {
			return fmt.Errorf("loading notes: %w", err)
		}
		data.Notes, err = decodeAll[Note](docs)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return data, nil
}
