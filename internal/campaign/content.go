package campaign

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"questlog/internal/config"
	"questlog/internal/relation"
	"questlog/internal/store"
)

// ContentConnections links new content to existing content of the same game.
type ContentConnections struct {
	SceneID          string   `json:"sceneId"`
	ItemIDs          []string `json:"itemIds"`
	NPCID            string   `json:"npcId"`
	PlayerID         string   `json:"playerId"`
	KilledByPlayerID string   `json:"killedByPlayerId"`
}

type CreateContentInput struct {
	Type        string             `json:"type"`
	GameID      string             `json:"gameId"`
	Data        map[string]any     `json:"data"`
	Connections ContentConnections `json:"connections"`
}

// ConnectInput either moves an item to a target (ItemID, TargetType,
// TargetID) or places an NPC in a scene (NPCID, SceneID).
type ConnectInput struct {
	ItemID     string `json:"itemId"`
	TargetType string `json:"targetType"`
	TargetID   string `json:"targetId"`
	NPCID      string `json:"npcId"`
	SceneID    string `json:"sceneId"`
}

// DisconnectInput removes a link. Type is item-player, item-npc, item-scene
// or npc-scene; FromID is the item or NPC and ToID the holder.
type DisconnectInput struct {
	Type   string `json:"type"`
	FromID string `json:"fromId"`
	ToID   string `json:"toId"`
}

type MarkDeadInput struct {
	NPCID    string `json:"npcId"`
	PlayerID string `json:"playerId"`
}

// link is one relationship to apply after content is created.
type link struct {
	name   relation.Name
	params relation.Params
}

func (s *Service) contentType(name string) (*config.EntityType, error) {
	entity, ok := s.schema.EntityTypeByName(name)
	if !ok || !entity.Content {
		return nil, invalid("unknown content type %q", name)
	}
	return entity, nil
}

// checkFields rejects fields callers may not write directly.
func checkFields(entity *config.EntityType, data map[string]any) error {
	for field := range data {
		if err := store.ValidateField(field); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		switch {
		case field == store.IDField, field == "gameId", field == "createdAt", field == "updatedAt":
			return invalid("field %s cannot be set", field)
		case entity.IsManaged(field):
			return invalid("field %s is managed by relationships", field)
		case entity.Name == "scene" && (field == "image" || field == "imageType"):
			return invalid("field %s is set through the image upload", field)
		}
	}
	return nil
}

// CreateContent inserts a scene, NPC, player or item into a game and applies
// the requested connections through the relation engine. The insert and its
// connections commit together.
func (s *Service) CreateContent(ctx context.Context, ownerID string, in CreateContentInput) (string, error) {
	entity, err := s.contentType(in.Type)
	if err != nil {
		return "", err
	}
	if in.Data == nil {
		return "", invalid("data is required")
	}
	if err := checkFields(entity, in.Data); err != nil {
		return "", err
	}
	if _, err := s.ownedGame(ctx, ownerID, in.GameID); err != nil {
		return "", err
	}

	links, err := s.plannedLinks(ctx, entity.Name, in.GameID, in.Connections)
	if err != nil {
		return "", err
	}

	fields := make(map[string]any, len(in.Data)+1)
	for k, v := range in.Data {
		fields[k] = v
	}
	fields["gameId"] = in.GameID

	var id string
	err = s.store.WithTx(ctx, func(ctx context.Context, tx store.Collections) error {
		var err error
		id, err = tx.Insert(ctx, entity.Collection, entity.NewDocument(fields, s.timestamp()))
		if err != nil {
			return fmt.Errorf("creating %s: %w", entity.Name, err)
		}
		for _, l := range links {
			l.params[entity.Name+"Id"] = id
			if err := s.engine.ApplyTx(ctx, tx, l.name, l.params); err != nil {
				return fmt.Errorf("connecting %s %s: %w", entity.Name, id, err)
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	s.logger.Info("content created", "type", entity.Name, "id", id, "game_id", in.GameID, "links", len(links))
	return id, nil
}

// plannedLinks checks that every connected entity exists in the game and
// returns the relationships to apply once the new entity has an id.
func (s *Service) plannedLinks(ctx context.Context, kind, gameID string, c ContentConnections) ([]link, error) {
	var links []link
	add := func(collection, id string, name relation.Name, param string) error {
		if id == "" {
			return nil
		}
		if err := s.inGame(ctx, collection, id, gameID); err != nil {
			return err
		}
		links = append(links, link{name: name, params: relation.Params{param: id}})
		return nil
	}

	var err error
	switch kind {
	case "scene":
		for _, itemID := range c.ItemIDs {
			err = errors.Join(err, add("items", itemID, relation.ItemInScene, "itemId"))
		}
	case "npc":
		err = errors.Join(
			add("scenes", c.SceneID, relation.NPCInScene, "sceneId"),
			add("players", c.KilledByPlayerID, relation.NPCKilledByPlayer, "playerId"),
		)
		for _, itemID := range c.ItemIDs {
			err = errors.Join(err, add("items", itemID, relation.NPCOwnsItem, "itemId"))
		}
	case "player":
		for _, itemID := range c.ItemIDs {
			err = errors.Join(err, add("items", itemID, relation.PlayerOwnsItem, "itemId"))
		}
	case "item":
		set := 0
		for _, id := range []string{c.PlayerID, c.NPCID, c.SceneID} {
			if id != "" {
				set++
			}
		}
		if set > 1 {
			return nil, invalid("an item can only have one holder")
		}
		err = errors.Join(
			add("players", c.PlayerID, relation.PlayerOwnsItem, "playerId"),
			add("npcs", c.NPCID, relation.NPCOwnsItem, "npcId"),
			add("scenes", c.SceneID, relation.ItemInScene, "sceneId"),
		)
	}
	if err != nil {
		return nil, err
	}
	return links, nil
}

func (s *Service) inGame(ctx context.Context, collection, id, gameID string) error {
	doc, err := s.store.FindByID(ctx, collection, id)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%s %s: %w", collection, id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("loading %s %s: %w", collection, id, err)
	}
	if doc.String("gameId") != gameID {
		return invalid("%s %s belongs to another game", collection, id)
	}
	return nil
}

// ListContent returns the raw documents of one content type in a game.
// Scene images are left out; they are served by SceneImage.
func (s *Service) ListContent(ctx context.Context, ownerID, gameID, kind string) ([]store.Document, error) {
	entity, err := s.contentType(kind)
	if err != nil {
		return nil, err
	}
	if _, err := s.ownedGame(ctx, ownerID, gameID); err != nil {
		return nil, err
	}

	docs, err := s.store.Find(ctx, entity.Collection, store.Where("gameId", gameID))
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", entity.Collection, err)
	}
	for _, doc := range docs {
		delete(doc, "image")
	}
	return docs, nil
}

func (s *Service) GetContent(ctx context.Context, ownerID, kind, id string) (store.Document, error) {
	entity, err := s.contentType(kind)
	if err != nil {
		return nil, err
	}
	doc, err := s.ownedEntity(ctx, ownerID, entity.Collection, id)
	if err != nil {
		return nil, err
	}
	delete(doc, "image")
	return doc, nil
}

// UpdateContent merges data into an existing entity. Relationship fields
// are rejected; they change only through Connect and Disconnect.
func (s *Service) UpdateContent(ctx context.Context, ownerID, kind, id string, data map[string]any) error {
	entity, err := s.contentType(kind)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return invalid("no fields to update")
	}
	if err := checkFields(entity, data); err != nil {
		return err
	}
	if _, err := s.ownedEntity(ctx, ownerID, entity.Collection, id); err != nil {
		return err
	}

	set := make(map[string]any, len(data)+1)
	for k, v := range data {
		set[k] = v
	}
	set["updatedAt"] = s.timestamp()

	res, err := s.store.UpdateOne(ctx, entity.Collection, store.ByID(id), store.Update{Set: set})
	if err != nil {
		return fmt.Errorf("updating %s %s: %w", entity.Name, id, err)
	}
	if res.Matched == 0 {
		return fmt.Errorf("%s %s: %w", entity.Name, id, ErrNotFound)
	}
	return nil
}

// DeleteContent removes one entity. References held by other documents are
// left in place; validate.Cleanup prunes them.
func (s *Service) DeleteContent(ctx context.Context, ownerID, kind, id string) error {
	entity, err := s.contentType(kind)
	if err != nil {
		return err
	}
	if _, err := s.ownedEntity(ctx, ownerID, entity.Collection, id); err != nil {
		return err
	}

	n, err := s.store.DeleteOne(ctx, entity.Collection, store.ByID(id))
	if err != nil {
		return fmt.Errorf("deleting %s %s: %w", entity.Name, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", entity.Name, id, ErrNotFound)
	}

	s.logger.Info("content deleted", "type", entity.Name, "id", id)
	return nil
}

// ApplyRelationship applies a named relationship after checking that every
// referenced entity lives in a game owned by ownerID.
func (s *Service) ApplyRelationship(ctx context.Context, ownerID string, name relation.Name, params relation.Params) error {
	if _, ok := relation.Lookup(name); ok {
		gameID := ""
		for _, p := range relation.RequiredParams(name) {
			id, ok := params[p]
			if !ok || id == "" {
				continue
			}
			collection := strings.TrimSuffix(p, "Id") + "s"
			doc, err := s.store.FindByID(ctx, collection, id)
			if errors.Is(err, store.ErrNotFound) {
				// The engine reports the missing entity.
				continue
			}
			if err != nil {
				return fmt.Errorf("loading %s %s: %w", collection, id, err)
			}
			if err := s.ownsGameOf(ctx, ownerID, collection, doc); err != nil {
				return err
			}
			if gameID == "" {
				gameID = doc.String("gameId")
			} else if doc.String("gameId") != gameID {
				return invalid("entities belong to different games")
			}
		}
	}
	return s.engine.Apply(ctx, name, params)
}

// ownsGameOf checks that doc lives in a game owned by ownerID. A document
// whose game is gone belongs to nobody.
func (s *Service) ownsGameOf(ctx context.Context, ownerID, collection string, doc store.Document) error {
	gameID := doc.String("gameId")
	if gameID == "" {
		return fmt.Errorf("%s %s: %w", collection, doc.ID(), ErrForbidden)
	}
	_, err := s.ownedGame(ctx, ownerID, gameID)
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%s %s: %w", collection, doc.ID(), ErrForbidden)
	}
	return err
}

func (s *Service) Connect(ctx context.Context, ownerID string, in ConnectInput) error {
	switch {
	case in.ItemID != "" && in.TargetType != "" && in.TargetID != "":
		var name relation.Name
		switch in.TargetType {
		case "player":
			name = relation.PlayerOwnsItem
		case "npc":
			name = relation.NPCOwnsItem
		case "scene":
			name = relation.ItemInScene
		default:
			return invalid("invalid targetType %q", in.TargetType)
		}
		params := relation.Params{"itemId": in.ItemID}
		params[in.TargetType+"Id"] = in.TargetID
		return s.ApplyRelationship(ctx, ownerID, name, params)
	case in.NPCID != "" && in.SceneID != "":
		return s.ApplyRelationship(ctx, ownerID, relation.NPCInScene, relation.Params{
			"npcId":   in.NPCID,
			"sceneId": in.SceneID,
		})
	default:
		return invalid("missing or invalid fields")
	}
}

func (s *Service) Disconnect(ctx context.Context, ownerID string, in DisconnectInput) error {
	if in.FromID == "" {
		return invalid("fromId is required")
	}

	var name relation.Name
	params := relation.Params{}
	switch in.Type {
	case "item-player":
		name, params["itemId"], params["playerId"] = relation.RemoveItemFromPlayer, in.FromID, in.ToID
	case "item-npc":
		name, params["itemId"], params["npcId"] = relation.RemoveItemFromNPC, in.FromID, in.ToID
	case "item-scene":
		name, params["itemId"], params["sceneId"] = relation.RemoveItemFromScene, in.FromID, in.ToID
	case "npc-scene":
		name, params["npcId"] = relation.RemoveNPCFromScene, in.FromID
	default:
		return invalid("invalid type %q", in.Type)
	}
	return s.ApplyRelationship(ctx, ownerID, name, params)
}

// MarkDead sets an NPC's status to dead and, when a player is named,
// records who killed it.
func (s *Service) MarkDead(ctx context.Context, ownerID string, in MarkDeadInput) error {
	if _, err := s.ownedEntity(ctx, ownerID, "npcs", in.NPCID); err != nil {
		return err
	}

	if in.PlayerID != "" {
		err := s.ApplyRelationship(ctx, ownerID, relation.NPCKilledByPlayer, relation.Params{
			"npcId":    in.NPCID,
			"playerId": in.PlayerID,
		})
		if err != nil {
			return err
		}
	}

	_, err := s.store.UpdateOne(ctx, "npcs", store.ByID(in.NPCID), store.Update{Set: map[string]any{
		"status":    "dead",
		"updatedAt": s.timestamp(),
	}})
	if err != nil {
		return fmt.Errorf("marking npc %s dead: %w", in.NPCID, err)
	}
	return nil
}

// SetSceneImage stores image bytes on the scene, base64 encoded.
func (s *Service) SetSceneImage(ctx context.Context, ownerID, sceneID string, image []byte, contentType string) error {
	if len(image) == 0 {
		return invalid("no image uploaded")
	}
	if _, err := s.ownedEntity(ctx, ownerID, "scenes", sceneID); err != nil {
		return err
	}

	_, err := s.store.UpdateOne(ctx, "scenes", store.ByID(sceneID), store.Update{Set: map[string]any{
		"image":     base64.StdEncoding.EncodeToString(image),
		"imageType": contentType,
		"updatedAt": s.timestamp(),
	}})
	if err != nil {
		return fmt.Errorf("storing image for scene %s: %w", sceneID, err)
	}
	return nil
}

// SceneImage returns the decoded image of a scene and its content type.
func (s *Service) SceneImage(ctx context.Context, ownerID, sceneID string) ([]byte, string, error) {
	doc, err := s.ownedEntity(ctx, ownerID, "scenes", sceneID)
	if err != nil {
		return nil, "", err
	}

	encoded := doc.String("image")
	if encoded == "" {
		return nil, "", fmt.Errorf("image for scene %s: %w", sceneID, ErrNotFound)
	}
	image, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, "", fmt.Errorf("decoding image for scene %s: %w", sceneID, err)
	}

	contentType := doc.String("imageType")
	if contentType == "" {
		contentType = "image/png"
	}
	return image, contentType, nil
}
