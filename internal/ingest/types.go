package ingest

import "questlog/internal/relation"

// link is a frontmatter field naming other entities of the game. Each named
// entity is connected by applying Relationship between the two.
type link struct {
	Field        string
	Target       string
	Relationship relation.Name
}

var links = map[string][]link{
	"scene": {
		{Field: "items", Target: "item", Relationship: relation.ItemInScene},
	},
	"npc": {
		{Field: "scene", Target: "scene", Relationship: relation.NPCInScene},
		{Field: "items", Target: "item", Relationship: relation.NPCOwnsItem},
	},
	"player": {
		{Field: "items", Target: "item", Relationship: relation.PlayerOwnsItem},
	},
	"item": {
		{Field: "ownerNpc", Target: "npc", Relationship: relation.NPCOwnsItem},
		{Field: "ownerPlayer", Target: "player", Relationship: relation.PlayerOwnsItem},
		{Field: "scene", Target: "scene", Relationship: relation.ItemInScene},
	},
}

func isLinkField(kind, field string) bool {
	for _, l := range links[kind] {
		if l.Field == field {
			return true
		}
	}
	return false
}
