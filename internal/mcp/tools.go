package mcp

import (
	"context"
	"fmt"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"questlog/internal/campaign"
	"questlog/internal/config"
	"questlog/internal/relation"
	"questlog/internal/store"
	"questlog/internal/validate"
)

type ListGamesInput struct{}

type GetGameInput struct {
	GameID string `json:"gameId" jsonschema:"game id"`
}

type ListContentInput struct {
	GameID string `json:"gameId" jsonschema:"game id"`
	Type   string `json:"type" jsonschema:"content type: scene, npc, player or item"`
}

type ApplyRelationshipInput struct {
	Name   string            `json:"name" jsonschema:"relationship name, e.g. npc_owns_item"`
	Params map[string]string `json:"params" jsonschema:"entity ids keyed by parameter, e.g. npcId and itemId"`
}

type ValidateGameInput struct {
	GameID string `json:"gameId" jsonschema:"game id"`
}

type GetSchemaInput struct{}

type GameOutput struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type ListGamesOutput struct {
	Games []GameOutput `json:"games"`
}

type EntitySummaryOutput struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Name   string `json:"name"`
	Holder string `json:"holder,omitempty"`
}

type GetGameOutput struct {
	Game     GameOutput            `json:"game"`
	Entities []EntitySummaryOutput `json:"entities"`
}

type EntityOutput struct {
	ID     string         `json:"id"`
	Type   string         `json:"type"`
	Fields map[string]any `json:"fields"`
}

type ListContentOutput struct {
	Entities []EntityOutput `json:"entities"`
}

type ApplyRelationshipOutput struct {
	Applied bool   `json:"applied"`
	Name    string `json:"name"`
}

type IssueOutput struct {
	Severity string `json:"severity"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	EntityID string `json:"entity_id"`
}

type ValidateGameOutput struct {
	HasErrors bool          `json:"has_errors"`
	Issues    []IssueOutput `json:"issues"`
}

type SchemaOutput struct {
	Version       int                `json:"version"`
	EntityTypes   []EntityTypeOutput `json:"entity_types"`
	Relationships []string           `json:"relationships"`
}

type EntityTypeOutput struct {
	Name       string            `json:"name"`
	Collection string            `json:"collection"`
	References []ReferenceOutput `json:"references"`
}

type ReferenceOutput struct {
	Field  string `json:"field"`
	Target string `json:"target"`
	Set    bool   `json:"set,omitempty"`
}

func (s *Server) registerTools() {
	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "list_games",
		Description: "List the games you run",
	}, s.handleListGames)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "get_game",
		Description: "Summarize a game: its scenes, NPCs, players and items, and who holds each item",
	}, s.handleGetGame)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "list_content",
		Description: "List every entity of one type in a game with all its fields",
	}, s.handleListContent)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "apply_relationship",
		Description: "Apply a named relationship such as npc_owns_item or item_in_scene",
	}, s.handleApplyRelationship)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "validate_game",
		Description: "Audit a game for broken or conflicting references",
	}, s.handleValidateGame)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "get_schema",
		Description: "Return the entity types, their references and the relationship names",
	}, s.handleGetSchema)
}

func (s *Server) handleListGames(ctx context.Context, req *sdk.CallToolRequest, input ListGamesInput) (*sdk.CallToolResult, ListGamesOutput, error) {
	games, err := s.campaign.ListGames(ctx, s.ownerID)
	if err != nil {
		return nil, ListGamesOutput{}, err
	}
	output := make([]GameOutput, 0, len(games))
	for _, game := range games {
		output = append(output, gameOutput(game))
	}
	return nil, ListGamesOutput{Games: output}, nil
}

func (s *Server) handleGetGame(ctx context.Context, req *sdk.CallToolRequest, input GetGameInput) (*sdk.CallToolResult, GetGameOutput, error) {
	if input.GameID == "" {
		return nil, GetGameOutput{}, fmt.Errorf("gameId is required")
	}
	data, err := s.campaign.GetGameData(ctx, s.ownerID, input.GameID)
	if err != nil {
		return nil, GetGameOutput{}, err
	}

	entities := make([]EntitySummaryOutput, 0, len(data.Scenes)+len(data.NPCs)+len(data.Players)+len(data.Items))
	for _, scene := range data.Scenes {
		entities = append(entities, EntitySummaryOutput{ID: scene.ID, Type: "scene", Name: scene.Name})
	}
	for _, npc := range data.NPCs {
		entities = append(entities, EntitySummaryOutput{ID: npc.ID, Type: "npc", Name: npc.Name})
	}
	for _, player := range data.Players {
		entities = append(entities, EntitySummaryOutput{ID: player.ID, Type: "player", Name: player.Name})
	}
	for _, item := range data.Items {
		summary := EntitySummaryOutput{ID: item.ID, Type: "item", Name: item.Name}
		if kind, id := item.Holder(); kind != "" {
			summary.Holder = kind + ":" + id
		}
		entities = append(entities, summary)
	}
	return nil, GetGameOutput{Game: gameOutput(data.Game), Entities: entities}, nil
}

func (s *Server) handleListContent(ctx context.Context, req *sdk.CallToolRequest, input ListContentInput) (*sdk.CallToolResult, ListContentOutput, error) {
	if input.GameID == "" || input.Type == "" {
		return nil, ListContentOutput{}, fmt.Errorf("gameId and type are required")
	}
	docs, err := s.campaign.ListContent(ctx, s.ownerID, input.GameID, input.Type)
	if err != nil {
		return nil, ListContentOutput{}, err
	}
	output := make([]EntityOutput, 0, len(docs))
	for _, doc := range docs {
		output = append(output, entityOutput(input.Type, doc))
	}
	return nil, ListContentOutput{Entities: output}, nil
}

func (s *Server) handleApplyRelationship(ctx context.Context, req *sdk.CallToolRequest, input ApplyRelationshipInput) (*sdk.CallToolResult, ApplyRelationshipOutput, error) {
	if input.Name == "" {
		return nil, ApplyRelationshipOutput{}, fmt.Errorf("name is required")
	}
	err := s.campaign.ApplyRelationship(ctx, s.ownerID, relation.Name(input.Name), relation.Params(input.Params))
	if err != nil {
		return nil, ApplyRelationshipOutput{}, err
	}
	return nil, ApplyRelationshipOutput{Applied: true, Name: input.Name}, nil
}

func (s *Server) handleValidateGame(ctx context.Context, req *sdk.CallToolRequest, input ValidateGameInput) (*sdk.CallToolResult, ValidateGameOutput, error) {
	if input.GameID == "" {
		return nil, ValidateGameOutput{}, fmt.Errorf("gameId is required")
	}
	if _, err := s.campaign.GetGame(ctx, s.ownerID, input.GameID); err != nil {
		return nil, ValidateGameOutput{}, err
	}
	report, err := validate.Run(ctx, s.schema, s.db, input.GameID)
	if err != nil {
		return nil, ValidateGameOutput{}, err
	}

	issues := make([]IssueOutput, 0, len(report.Issues))
	for _, issue := range report.Issues {
		issues = append(issues, IssueOutput{
			Severity: string(issue.Severity),
			Code:     issue.Code,
			Message:  issue.Message,
			EntityID: issue.EntityID,
		})
	}
	return nil, ValidateGameOutput{HasErrors: report.HasErrors(), Issues: issues}, nil
}

func (s *Server) handleGetSchema(ctx context.Context, req *sdk.CallToolRequest, input GetSchemaInput) (*sdk.CallToolResult, SchemaOutput, error) {
	return nil, schemaOutputFromConfig(s.schema), nil
}

func schemaOutputFromConfig(schema *config.Schema) SchemaOutput {
	if schema == nil {
		return SchemaOutput{}
	}

	out := SchemaOutput{
		Version:       schema.Version,
		EntityTypes:   make([]EntityTypeOutput, 0, len(schema.EntityTypes)),
		Relationships: make([]string, 0),
	}
	for _, entityType := range schema.EntityTypes {
		entityOut := EntityTypeOutput{
			Name:       entityType.Name,
			Collection: entityType.Collection,
			References: make([]ReferenceOutput, 0, len(entityType.References)),
		}
		for _, ref := range entityType.References {
			entityOut.References = append(entityOut.References, ReferenceOutput{
				Field:  ref.Field,
				Target: ref.Target,
				Set:    ref.Set,
			})
		}
		out.EntityTypes = append(out.EntityTypes, entityOut)
	}
	for _, name := range relation.Names() {
		out.Relationships = append(out.Relationships, string(name))
	}
	return out
}

func gameOutput(game campaign.Game) GameOutput {
	return GameOutput{ID: game.ID, Name: game.Name, Description: game.Description}
}

func entityOutput(kind string, doc store.Document) EntityOutput {
	fields := make(map[string]any, len(doc))
	for key, value := range doc {
		if key == store.IDField || key == "image" {
			continue
		}
		fields[key] = value
	}
	return EntityOutput{ID: doc.ID(), Type: kind, Fields: fields}
}
