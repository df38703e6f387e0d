// Package mcp exposes a campaign owner's games as MCP tools.
package mcp

import (
	"context"
	"errors"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"questlog/internal/campaign"
	"questlog/internal/config"
	"questlog/internal/store"
)

// Server answers tool calls on behalf of a single owner.
type Server struct {
	schema   *config.Schema
	db       store.Store
	campaign *campaign.Service
	ownerID  string
	mcp      *sdk.Server
}

func NewServer(schema *config.Schema, db store.Store, camp *campaign.Service, ownerID, version string) (*Server, error) {
	if ownerID == "" {
		return nil, errors.New("mcp server needs an owner id")
	}
	s := &Server{
		schema:   schema,
		db:       db,
		campaign: camp,
		ownerID:  ownerID,
		mcp: sdk.NewServer(&sdk.Implementation{
			Name:    "questlog",
			Version: version,
		}, nil),
	}
	s.registerTools()
	return s, nil
}

func (s *Server) Run(ctx context.Context, transport sdk.Transport) error {
	return s.mcp.Run(ctx, transport)
}
