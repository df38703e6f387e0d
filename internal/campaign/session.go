package campaign

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"questlog/internal/store"
)

// noteFields are the structured session note fields and their empty values.
var noteFields = map[string]any{
	"summary":          "",
	"plotDevelopments": "",
	"quests":           "",
	"loot":             "",
	"xp":               0,
	"secrets":          "",
	"factions":         "",
	"mysteries":        "",
	"goals":            "",
	"downtime":         "",
	"nextPlans":        "",
	"custom":           []any{},
}

type SaveSessionInput struct {
	SessionID   string             `json:"sessionId"`
	GameID      string             `json:"gameId"`
	Title       string             `json:"title"`
	IsEnded     bool               `json:"isEnded"`
	Notes       map[string]any     `json:"notes"`
	Connections SessionConnections `json:"connections"`
}

// SessionPatch holds the optional fields of a partial session update.
// Notes keys are merged into the existing notes one by one.
type SessionPatch struct {
	IsEnded    *bool          `json:"isEnded"`
	Date       *string        `json:"date"`
	Notes      map[string]any `json:"notes"`
	CustomNote *string        `json:"customNote"`
}

func sessionNotes(in map[string]any) (map[string]any, error) {
	notes := make(map[string]any, len(noteFields)+len(in))
	for k, v := range noteFields {
		notes[k] = v
	}
	for k, v := range in {
		if err := store.ValidateField(k); err != nil || strings.Contains(k, ".") {
			return nil, invalid("invalid note field %q", k)
		}
		if v == nil {
			continue
		}
		notes[k] = v
	}
	notes["custom"] = customList(notes["custom"])
	return notes, nil
}

// customList coerces a custom note value into a list of strings. Older
// sessions store a single string.
func customList(v any) []any {
	switch c := v.(type) {
	case string:
		if c == "" {
			return []any{}
		}
		return []any{c}
	case []any:
		return c
	case []string:
		out := make([]any, len(c))
		for i, s := range c {
			out[i] = s
		}
		return out
	default:
		return []any{}
	}
}

func (c SessionConnections) document() map[string]any {
	list := func(ids []string) []any {
		out := make([]any, len(ids))
		for i, id := range ids {
			out[i] = id
		}
		return out
	}
	return map[string]any{
		"npcs":    list(c.NPCs),
		"items":   list(c.Items),
		"scenes":  list(c.Scenes),
		"players": list(c.Players),
		"quests":  list(c.Quests),
	}
}

// SaveSession creates a session, or replaces the fields of an existing one
// when SessionID is set. It reports whether a new session was created.
func (s *Service) SaveSession(ctx context.Context, userID string, in SaveSessionInput) (string, bool, error) {
	if in.GameID == "" || strings.TrimSpace(in.Title) == "" {
		return "", false, invalid("gameId and title are required")
	}
	if _, err := s.ownedGame(ctx, userID, in.GameID); err != nil {
		return "", false, err
	}

	notes, err := sessionNotes(in.Notes)
	if err != nil {
		return "", false, err
	}

	now := s.timestamp()
	fields := map[string]any{
		"gameId":      in.GameID,
		"userId":      userID,
		"title":       in.Title,
		"isEnded":     in.IsEnded,
		"notes":       notes,
		"connections": in.Connections.document(),
		"updatedAt":   now,
	}

	if in.SessionID != "" {
		filter := store.Filter{ID: in.SessionID, Equals: map[string]string{"gameId": in.GameID, "userId": userID}}
		res, err := s.store.UpdateOne(ctx, "sessions", filter, store.Update{Set: fields})
		if err != nil {
			return "", false, fmt.Errorf("updating session %s: %w", in.SessionID, err)
		}
		if res.Matched == 0 {
			return "", false, fmt.Errorf("session %s: %w", in.SessionID, ErrNotFound)
		}
		return in.SessionID, false, nil
	}

	fields["createdAt"] = now
	id, err := s.store.Insert(ctx, "sessions", fields)
	if err != nil {
		return "", false, fmt.Errorf("creating session: %w", err)
	}

	s.logger.Info("session created", "session_id", id, "game_id", in.GameID)
	return id, true, nil
}

// ListSessions returns the user's sessions of a game, oldest first.
func (s *Service) ListSessions(ctx context.Context, userID, gameID string) ([]Session, error) {
	if gameID == "" {
		return nil, invalid("gameId is required")
	}

	filter := store.Filter{Equals: map[string]string{"gameId": gameID, "userId": userID}}
	docs, err := s.store.Find(ctx, "sessions", filter)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}

	sessions, err := decodeAll[Session](docs)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
	return sessions, nil
}

func (s *Service) GetSession(ctx context.Context, userID, sessionID string) (*Session, error) {
	doc, err := s.sessionDoc(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	var session Session
	if err := decode(doc, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *Service) sessionDoc(ctx context.Context, userID, sessionID string) (store.Document, error) {
	doc, err := s.store.FindByID(ctx, "sessions", sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading session %s: %w", sessionID, err)
	}
	if doc.String("userId") != userID {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	return doc, nil
}

// PatchSession applies a partial update. Note keys are written as dotted
// paths so untouched notes keep their values.
func (s *Service) PatchSession(ctx context.Context, userID, sessionID string, patch SessionPatch) error {
	set := make(map[string]any)
	if patch.IsEnded != nil {
		set["isEnded"] = *patch.IsEnded
	}
	if patch.Date != nil {
		set["date"] = *patch.Date
	}
	for k, v := range patch.Notes {
		if err := store.ValidateField(k); err != nil || strings.Contains(k, ".") {
			return invalid("invalid note field %q", k)
		}
		if k == "custom" {
			v = customList(v)
		}
		set["notes."+k] = v
	}
	if patch.CustomNote != nil {
		set["notes.custom"] = []any{*patch.CustomNote}
	}
	if len(set) == 0 {
		return invalid("no fields to update")
	}
	set["updatedAt"] = s.timestamp()

	filter := store.Filter{ID: sessionID, Equals: map[string]string{"userId": userID}}
	res, err := s.store.UpdateOne(ctx, "sessions", filter, store.Update{Set: set})
	if err != nil {
		return fmt.Errorf("updating session %s: %w", sessionID, err)
	}
	if res.Matched == 0 {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	return nil
}

// AppendSessionNote adds note to the session's custom notes.
func (s *Service) AppendSessionNote(ctx context.Context, userID, sessionID, note string) error {
	if strings.TrimSpace(note) == "" {
		return invalid("note is required")
	}

	return s.store.WithTx(ctx, func(ctx context.Context, tx store.Collections) error {
		doc, err := tx.FindByID(ctx, "sessions", sessionID)
		if errors.Is(err, store.ErrNotFound) || (err == nil && doc.String("userId") != userID) {
			return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("loading session %s: %w", sessionID, err)
		}

		var custom any
		if notes, ok := doc["notes"].(map[string]any); ok {
			custom = notes["custom"]
		}
		list := append(customList(custom), note)

		_, err = tx.UpdateOne(ctx, "sessions", store.ByID(sessionID), store.Update{Set: map[string]any{
			"notes.custom": list,
			"updatedAt":    s.timestamp(),
		}})
		if err != nil {
			return fmt.Errorf("updating session %s: %w", sessionID, err)
		}
		return nil
	})
}

func (s *Service) DeleteSession(ctx context.Context, userID, sessionID string) error {
	n, err := s.store.DeleteOne(ctx, "sessions", store.Filter{ID: sessionID, Equals: map[string]string{"userId": userID}})
	if err != nil {
		return fmt.Errorf("deleting session %s: %w", sessionID, err)
	}
	if n == 0 {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	return nil
}
