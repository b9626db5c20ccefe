package memory

import "github.com/qri-io/jsonschema"

// Entity is a node of the knowledge graph.
type Entity struct {
	Name         string   `json:"name"`
	EntityType   string   `json:"entityType"`
	Observations []string `json:"observations"`
}

// Relation is a directed edge between two entities, named in active voice.
type Relation struct {
	From         string `json:"from"`
	To           string `json:"to"`
	RelationType string `json:"relationType"`
}

// Graph is a set of entities and the relations between them.
type Graph struct {
	Entities  []Entity   `json:"entities"`
	Relations []Relation `json:"relations"`
}

// ObservationAddition lists observations to add to an entity. As a result it lists the ones that
// were actually new.
type ObservationAddition struct {
	EntityName string   `json:"entityName"`
	Contents   []string `json:"contents"`
}

// ObservationDeletion lists observations to remove from an entity.
type ObservationDeletion struct {
	EntityName   string   `json:"entityName"`
	Observations []string `json:"observations"`
}

// CreateEntitiesArgs is the params of memory/create_entities.
type CreateEntitiesArgs struct {
	Entities []Entity `json:"entities"`
}

// RelationsArgs is the params of memory/create_relations and memory/delete_relations.
type RelationsArgs struct {
	Relations []Relation `json:"relations"`
}

// AddObservationsArgs is the params of memory/add_observations.
type AddObservationsArgs struct {
	Observations []ObservationAddition `json:"observations"`
}

// DeleteEntitiesArgs is the params of memory/delete_entities.
type DeleteEntitiesArgs struct {
	EntityNames []string `json:"entityNames"`
}

// DeleteObservationsArgs is the params of memory/delete_observations.
type DeleteObservationsArgs struct {
	Deletions []ObservationDeletion `json:"deletions"`
}

// SearchNodesArgs is the params of memory/search_nodes.
type SearchNodesArgs struct {
	Query string `json:"query"`
}

// OpenNodesArgs is the params of memory/open_nodes.
type OpenNodesArgs struct {
	Names []string `json:"names"`
}

var createEntitiesSchema = jsonschema.Must(`{
  "type": "object",
  "properties": {
    "entities": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "name": { "type": "string", "minLength": 1 },
          "entityType": { "type": "string" },
          "observations": { "type": "array", "items": { "type": "string" } }
        },
        "required": ["name", "entityType"]
      }
    }
  },
  "required": ["entities"]
}`)

var relationsSchema = jsonschema.Must(`{
  "type": "object",
  "properties": {
    "relations": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "from": { "type": "string" },
          "to": { "type": "string" },
          "relationType": { "type": "string" }
        },
        "required": ["from", "to", "relationType"]
      }
    }
  },
  "required": ["relations"]
}`)

var addObservationsSchema = jsonschema.Must(`{
  "type": "object",
  "properties": {
    "observations": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "entityName": { "type": "string" },
          "contents": { "type": "array", "items": { "type": "string" } }
        },
        "required": ["entityName", "contents"]
      }
    }
  },
  "required": ["observations"]
}`)

var deleteEntitiesSchema = jsonschema.Must(`{
  "type": "object",
  "properties": {
    "entityNames": { "type": "array", "items": { "type": "string" } }
  },
  "required": ["entityNames"]
}`)

var deleteObservationsSchema = jsonschema.Must(`{
  "type": "object",
  "properties": {
    "deletions": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "entityName": { "type": "string" },
          "observations": { "type": "array", "items": { "type": "string" } }
        },
        "required": ["entityName", "observations"]
      }
    }
  },
  "required": ["deletions"]
}`)

var searchNodesSchema = jsonschema.Must(`{
  "type": "object",
  "properties": {
    "query": { "type": "string" }
  },
  "required": ["query"]
}`)

var openNodesSchema = jsonschema.Must(`{
  "type": "object",
  "properties": {
    "names": { "type": "array", "items": { "type": "string" } }
  },
  "required": ["names"]
}`)
