package memory

import (
	"context"

	"github.com/MegaGrindStone/go-jsonrpc"
)

// Server exposes a persistent knowledge graph of entities, relations and observations as a set of
// capabilities. The graph lives in a single JSON file that is rewritten on every change.
type Server struct {
	kb knowledgeBase
}

// Method names registered by Server.Register.
const (
	MethodCreateEntities     = "memory/create_entities"
	MethodCreateRelations    = "memory/create_relations"
	MethodAddObservations    = "memory/add_observations"
	MethodDeleteEntities     = "memory/delete_entities"
	MethodDeleteObservations = "memory/delete_observations"
	MethodDeleteRelations    = "memory/delete_relations"
	MethodReadGraph          = "memory/read_graph"
	MethodSearchNodes        = "memory/search_nodes"
	MethodOpenNodes          = "memory/open_nodes"
)

// NewServer creates a Server backed by the file at memoryFilePath. The file is created on the
// first change; its directory must exist.
func NewServer(memoryFilePath string) Server {
	return Server{
		kb: newKnowledgeBase(memoryFilePath),
	}
}

// Register adds every knowledge graph capability of s to b and returns b.
func (s Server) Register(b *jsonrpc.RegistryBuilder) *jsonrpc.RegistryBuilder {
	return b.
		Register(MethodCreateEntities, jsonrpc.WithSchema(createEntitiesSchema, jsonrpc.Typed(s.createEntities))).
		Register(MethodCreateRelations, jsonrpc.WithSchema(relationsSchema, jsonrpc.Typed(s.createRelations))).
		Register(MethodAddObservations, jsonrpc.WithSchema(addObservationsSchema, jsonrpc.Typed(s.addObservations))).
		Register(MethodDeleteEntities, jsonrpc.WithSchema(deleteEntitiesSchema, jsonrpc.Typed(s.deleteEntities))).
		Register(MethodDeleteObservations,
			jsonrpc.WithSchema(deleteObservationsSchema, jsonrpc.Typed(s.deleteObservations))).
		Register(MethodDeleteRelations, jsonrpc.WithSchema(relationsSchema, jsonrpc.Typed(s.deleteRelations))).
		Register(MethodReadGraph, jsonrpc.Typed(s.readGraph)).
		Register(MethodSearchNodes, jsonrpc.WithSchema(searchNodesSchema, jsonrpc.Typed(s.searchNodes))).
		Register(MethodOpenNodes, jsonrpc.WithSchema(openNodesSchema, jsonrpc.Typed(s.openNodes)))
}

func (s Server) createEntities(_ context.Context, args CreateEntitiesArgs) ([]Entity, error) {
	return s.kb.createEntities(args.Entities)
}

func (s Server) createRelations(_ context.Context, args RelationsArgs) ([]Relation, error) {
	return s.kb.createRelations(args.Relations)
}

func (s Server) addObservations(_ context.Context, args AddObservationsArgs) ([]ObservationAddition, error) {
	return s.kb.addObservations(args.Observations)
}

func (s Server) deleteEntities(_ context.Context, args DeleteEntitiesArgs) (bool, error) {
	if err := s.kb.deleteEntities(args.EntityNames); err != nil {
		return false, err
	}
	return true, nil
}

func (s Server) deleteObservations(_ context.Context, args DeleteObservationsArgs) (bool, error) {
	if err := s.kb.deleteObservations(args.Deletions); err != nil {
		return false, err
	}
	return true, nil
}

func (s Server) deleteRelations(_ context.Context, args RelationsArgs) (bool, error) {
	if err := s.kb.deleteRelations(args.Relations); err != nil {
		return false, err
	}
	return true, nil
}

func (s Server) readGraph(context.Context, struct{}) (Graph, error) {
	return s.kb.readGraph()
}

func (s Server) searchNodes(_ context.Context, args SearchNodesArgs) (Graph, error) {
	return s.kb.searchNodes(args.Query)
}

func (s Server) openNodes(_ context.Context, args OpenNodesArgs) (Graph, error) {
	return s.kb.openNodes(args.Names)
}
