// Package relation maps symbolic relationship names onto ordered document
// updates that keep item ownership and holder sets consistent.
package relation

import (
	"sort"
	"strings"
)

type Name string

const (
	NPCOwnsItem          Name = "npc_owns_item"
	PlayerOwnsItem       Name = "player_owns_item"
	ItemInScene          Name = "item_in_scene"
	NPCInScene           Name = "npc_in_scene"
	RemoveItemFromNPC    Name = "remove_item_from_npc"
	RemoveItemFromPlayer Name = "remove_item_from_player"
	RemoveItemFromScene  Name = "remove_item_from_scene"
	RemoveNPCFromScene   Name = "remove_npc_from_scene"
	NPCKilledByPlayer    Name = "npc_killed_by_player"
)

// Params maps parameter names (npcId, itemId, ...) to entity ids.
type Params map[string]string

// FilterMode selects which documents a step touches.
type FilterMode int

const (
	// FilterByID targets the single document whose id is the parameter
	// named after the collection's singular form (npcs -> npcId).
	FilterByID FilterMode = iota
	// FilterByMember targets every document whose Field set contains the
	// value parameter.
	FilterByMember
)

type Action int

const (
	AddToSet Action = iota
	Pull
	Set
	// Require fails the relationship when the target document is missing.
	Require
)

func (a Action) String() string {
	switch a {
	case AddToSet:
		return "addToSet"
	case Pull:
		return "pull"
	case Set:
		return "set"
	case Require:
		return "require"
	default:
		return "unknown"
	}
}

// FieldValue is one assignment of a Set step. The value is read from Param
// when it is non-empty and is Literal otherwise.
type FieldValue struct {
	Name    string
	Param   string
	Literal any
}

type Step struct {
	Collection string
	Filter     FilterMode
	Action     Action
	// Field is the set field for AddToSet, Pull and FilterByMember.
	Field  string
	Fields []FieldValue
	// Match narrows a FilterByID step to a document whose fields equal the
	// given params. The step is skipped when the document does not match.
	Match []FieldValue
}

// IDParam is the parameter naming the target document of a FilterByID step.
func (s Step) IDParam() string {
	return strings.TrimSuffix(s.Collection, "s") + "Id"
}

// ValueParam is the parameter holding the set member for AddToSet and Pull.
func (s Step) ValueParam() string {
	return strings.TrimSuffix(s.Field, "s")
}

// Params lists every parameter the step reads.
func (s Step) Params() []string {
	var out []string
	switch s.Filter {
	case FilterByID:
		out = append(out, s.IDParam())
	case FilterByMember:
		out = append(out, s.ValueParam())
	}
	switch s.Action {
	case AddToSet, Pull:
		if s.Filter != FilterByMember {
			out = append(out, s.ValueParam())
		}
	case Set:
		for _, f := range s.Fields {
			if f.Param != "" {
				out = append(out, f.Param)
			}
		}
	}
	for _, f := range s.Match {
		out = append(out, f.Param)
	}
	return out
}

const (
	itemIDs       = "itemIds"
	ownerNPCID    = "ownerNpcId"
	ownerPlayerID = "ownerPlayerId"
	sceneID       = "sceneId"
)

var holderCollections = []string{"scenes", "npcs", "players"}

// release pulls an item from every holder set before it changes hands.
func release() []Step {
	steps := make([]Step, 0, len(holderCollections))
	for _, collection := range holderCollections {
		steps = append(steps, Step{Collection: collection, Filter: FilterByMember, Action: Pull, Field: itemIDs})
	}
	return steps
}

// ownership sets field on the item from param and clears the other owner fields.
func ownership(field, param string) Step {
	fields := make([]FieldValue, 0, 3)
	for _, name := range []string{ownerPlayerID, ownerNPCID, sceneID} {
		if name == field {
			fields = append(fields, FieldValue{Name: name, Param: param})
			continue
		}
		fields = append(fields, FieldValue{Name: name})
	}
	return Step{Collection: "items", Action: Set, Fields: fields}
}

func transfer(holder, ownerField, param string) []Step {
	steps := release()
	steps = append(steps,
		Step{Collection: holder, Action: AddToSet, Field: itemIDs},
		ownership(ownerField, param),
	)
	return steps
}

// removal pulls the item from holder and clears ownerField only while it
// still names that holder, so removing from a non-holder changes nothing.
func removal(holder, ownerField, param string) []Step {
	return []Step{
		{Collection: "items", Action: Require},
		{Collection: holder, Action: Pull, Field: itemIDs},
		{
			Collection: "items",
			Action:     Set,
			Fields:     []FieldValue{{Name: ownerField}},
			Match:      []FieldValue{{Name: ownerField, Param: param}},
		},
	}
}

var table = map[Name][]Step{
	NPCOwnsItem:    transfer("npcs", ownerNPCID, "npcId"),
	PlayerOwnsItem: transfer("players", ownerPlayerID, "playerId"),
	ItemInScene:    transfer("scenes", sceneID, "sceneId"),
	NPCInScene: {
		{Collection: "scenes", Action: Require},
		{Collection: "npcs", Action: Set, Fields: []FieldValue{{Name: sceneID, Param: "sceneId"}}},
	},

	RemoveItemFromNPC:    removal("npcs", ownerNPCID, "npcId"),
	RemoveItemFromPlayer: removal("players", ownerPlayerID, "playerId"),
	RemoveItemFromScene:  removal("scenes", sceneID, "sceneId"),
	RemoveNPCFromScene: {
		{Collection: "npcs", Action: Set, Fields: []FieldValue{{Name: sceneID}}},
	},

	NPCKilledByPlayer: {
		{Collection: "players", Action: Require},
		{Collection: "npcs", Action: Set, Fields: []FieldValue{{Name: "killedByPlayerId", Param: "playerId"}}},
	},
}

// Lookup returns a copy of the steps for name.
func Lookup(name Name) ([]Step, bool) {
	steps, ok := table[name]
	if !ok {
		return nil, false
	}
	return append([]Step(nil), steps...), true
}

// Names lists the defined relationships in lexical order.
func Names() []Name {
	names := make([]Name, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// RequiredParams lists the distinct parameters name reads, in first-use order.
func RequiredParams(name Name) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, step := range table[name] {
		for _, p := range step.Params() {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}
