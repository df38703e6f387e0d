package campaign

import (
	"fmt"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"questlog/internal/store"
)

type Game struct {
	ID          string    `json:"_id"`
	OwnerID     string    `json:"ownerId"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type Scene struct {
	ID          string    `json:"_id"`
	GameID      string    `json:"gameId"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	DangerLevel string    `json:"dangerLevel"`
	ItemIDs     []string  `json:"itemIds"`
	ImageType   string    `json:"imageType,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type NPC struct {
	ID               string    `json:"_id"`
	GameID           string    `json:"gameId"`
	Name             string    `json:"name"`
	Description      string    `json:"description"`
	Role             string    `json:"role"`
	Status           string    `json:"status"`
	SceneID          *string   `json:"sceneId"`
	ItemIDs          []string  `json:"itemIds"`
	KilledByPlayerID *string   `json:"killedByPlayerId"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

type Player struct {
	ID          string    `json:"_id"`
	GameID      string    `json:"gameId"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Class       string    `json:"class"`
	Level       string    `json:"level"`
	ItemIDs     []string  `json:"itemIds"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Item ownership is exclusive: at most one of OwnerPlayerID, OwnerNPCID
// and SceneID is set.
type Item struct {
	ID            string    `json:"_id"`
	GameID        string    `json:"gameId"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	ItemType      string    `json:"itemType"`
	Benefits      string    `json:"benefits"`
	OwnerPlayerID *string   `json:"ownerPlayerId"`
	OwnerNPCID    *string   `json:"ownerNpcId"`
	SceneID       *string   `json:"sceneId"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Holder reports which kind of entity holds the item and its id.
// kind is "" for an unowned item.
func (i Item) Holder() (kind, id string) {
	switch {
	case i.OwnerPlayerID != nil && *i.OwnerPlayerID != "":
		return "player", *i.OwnerPlayerID
	case i.OwnerNPCID != nil && *i.OwnerNPCID != "":
		return "npc", *i.OwnerNPCID
	case i.SceneID != nil && *i.SceneID != "":
		return "scene", *i.SceneID
	}
	return "", ""
}

type Session struct {
	ID          string             `json:"_id"`
	GameID      string             `json:"gameId"`
	UserID      string             `json:"userId"`
	Title       string             `json:"title"`
	IsEnded     bool               `json:"isEnded"`
	Date        string             `json:"date,omitempty"`
	Notes       map[string]any     `json:"notes"`
	Connections SessionConnections `json:"connections"`
	CreatedAt   time.Time          `json:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

type SessionConnections struct {
	NPCs    []string `json:"npcs"`
	Items   []string `json:"items"`
	Scenes  []string `json:"scenes"`
	Players []string `json:"players"`
	Quests  []string `json:"quests"`
}

type Note struct {
	ID         string    `json:"_id"`
	GameID     string    `json:"gameId"`
	EntityType string    `json:"entityType"`
	EntityID   string    `json:"entityId"`
	UserID     string    `json:"userId"`
	Title      string    `json:"title"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"createdAt"`
}

// GameData is a game together with everything that lives in it.
type GameData struct {
	Game
	Scenes  []Scene  `json:"scenes"`
	NPCs    []NPC    `json:"npcs"`
	Players []Player `json:"players"`
	Items   []Item   `json:"items"`
	Notes   []Note   `json:"notes"`
}

func decode(doc store.Document, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("building decoder: %w", err)
	}
	if err := dec.Decode(map[string]any(doc)); err != nil {
		return fmt.Errorf("decoding document %s: %w", doc.ID(), err)
	}
	return nil
}

func decodeAll[T any](docs []store.Document) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		var v T
		if err := decode(doc, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
