package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/MegaGrindStone/go-jsonrpc"
)

// knowledgeBase persists a knowledge graph in a single JSON file. Every operation loads the file,
// applies its change and writes the whole graph back, under a lock shared by all copies.
type knowledgeBase struct {
	path string
	mu   *sync.Mutex
}

// kbItem is one record of the memory file. Entities and relations share the record shape and are
// told apart by Type.
type kbItem struct {
	Type string `json:"type"`

	Name         string   `json:"name,omitempty"`
	EntityType   string   `json:"entityType,omitempty"`
	Observations []string `json:"observations,omitempty"`

	From         string `json:"from,omitempty"`
	To           string `json:"to,omitempty"`
	RelationType string `json:"relationType,omitempty"`
}

const (
	itemTypeEntity   = "entity"
	itemTypeRelation = "relation"
)

func newKnowledgeBase(path string) knowledgeBase {
	return knowledgeBase{
		path: path,
		mu:   &sync.Mutex{},
	}
}

func (k knowledgeBase) loadGraph() (Graph, error) {
	graph := Graph{Entities: []Entity{}, Relations: []Relation{}}

	data, err := os.ReadFile(k.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return graph, nil
		}
		return Graph{}, fmt.Errorf("failed to read file %s: %w", k.path, err)
	}

	var items []kbItem
	if err := json.Unmarshal(data, &items); err != nil {
		return Graph{}, fmt.Errorf("failed to unmarshal file %s: %w", k.path, err)
	}

	for _, item := range items {
		switch item.Type {
		case itemTypeEntity:
			if item.Observations == nil {
				item.Observations = []string{}
			}
			graph.Entities = append(graph.Entities, Entity{
				Name:         item.Name,
				EntityType:   item.EntityType,
				Observations: item.Observations,
			})
		case itemTypeRelation:
			graph.Relations = append(graph.Relations, Relation{
				From:         item.From,
				To:           item.To,
				RelationType: item.RelationType,
			})
		}
	}

	return graph, nil
}

// saveGraph writes graph to a temporary file next to the memory file and renames it into place.
func (k knowledgeBase) saveGraph(graph Graph) error {
	items := make([]kbItem, 0, len(graph.Entities)+len(graph.Relations))
	for _, e := range graph.Entities {
		items = append(items, kbItem{
			Type:         itemTypeEntity,
			Name:         e.Name,
			EntityType:   e.EntityType,
			Observations: e.Observations,
		})
	}
	for _, r := range graph.Relations {
		items = append(items, kbItem{
			Type:         itemTypeRelation,
			From:         r.From,
			To:           r.To,
			RelationType: r.RelationType,
		})
	}

	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to marshal items: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(k.path), filepath.Base(k.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file for %s: %w", k.path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), k.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", k.path, err)
	}
	return nil
}

// update runs fn against the current graph and saves the result if fn succeeds.
func (k knowledgeBase) update(fn func(graph *Graph) error) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	graph, err := k.loadGraph()
	if err != nil {
		return err
	}
	if err := fn(&graph); err != nil {
		return err
	}
	return k.saveGraph(graph)
}

func (k knowledgeBase) readGraph() (Graph, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	return k.loadGraph()
}

func (k knowledgeBase) createEntities(entities []Entity) ([]Entity, error) {
	created := make([]Entity, 0, len(entities))
	err := k.update(func(graph *Graph) error {
		for _, e := range entities {
			if graph.entityIndex(e.Name) >= 0 {
				continue
			}
			if e.Observations == nil {
				e.Observations = []string{}
			}
			graph.Entities = append(graph.Entities, e)
			created = append(created, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (k knowledgeBase) createRelations(relations []Relation) ([]Relation, error) {
	created := make([]Relation, 0, len(relations))
	err := k.update(func(graph *Graph) error {
		for _, r := range relations {
			if slices.Contains(graph.Relations, r) {
				continue
			}
			graph.Relations = append(graph.Relations, r)
			created = append(created, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// addObservations appends new observations to existing entities. It fails without saving anything
// if one of the named entities does not exist.
func (k knowledgeBase) addObservations(additions []ObservationAddition) ([]ObservationAddition, error) {
	added := make([]ObservationAddition, 0, len(additions))
	err := k.update(func(graph *Graph) error {
		for _, a := range additions {
			i := graph.entityIndex(a.EntityName)
			if i < 0 {
				return jsonrpc.InvalidParamsError(fmt.Sprintf("entity with name %s not found", a.EntityName), nil)
			}

			result := ObservationAddition{EntityName: a.EntityName, Contents: []string{}}
			for _, content := range a.Contents {
				if slices.Contains(graph.Entities[i].Observations, content) {
					continue
				}
				graph.Entities[i].Observations = append(graph.Entities[i].Observations, content)
				result.Contents = append(result.Contents, content)
			}
			added = append(added, result)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return added, nil
}

// deleteEntities removes the named entities together with every relation touching them.
func (k knowledgeBase) deleteEntities(names []string) error {
	return k.update(func(graph *Graph) error {
		graph.Entities = slices.DeleteFunc(graph.Entities, func(e Entity) bool {
			return slices.Contains(names, e.Name)
		})
		graph.Relations = slices.DeleteFunc(graph.Relations, func(r Relation) bool {
			return slices.Contains(names, r.From) || slices.Contains(names, r.To)
		})
		return nil
	})
}

func (k knowledgeBase) deleteObservations(deletions []ObservationDeletion) error {
	return k.update(func(graph *Graph) error {
		for _, d := range deletions {
			i := graph.entityIndex(d.EntityName)
			if i < 0 {
				continue
			}
			graph.Entities[i].Observations = slices.DeleteFunc(graph.Entities[i].Observations, func(o string) bool {
				return slices.Contains(d.Observations, o)
			})
		}
		return nil
	})
}

func (k knowledgeBase) deleteRelations(relations []Relation) error {
	return k.update(func(graph *Graph) error {
		graph.Relations = slices.DeleteFunc(graph.Relations, func(r Relation) bool {
			return slices.Contains(relations, r)
		})
		return nil
	})
}

// searchNodes returns the entities whose name, type or any observation contains query,
// case-insensitively, and the relations between them.
func (k knowledgeBase) searchNodes(query string) (Graph, error) {
	graph, err := k.readGraph()
	if err != nil {
		return Graph{}, err
	}

	q := strings.ToLower(query)
	return graph.subgraph(func(e Entity) bool {
		if strings.Contains(strings.ToLower(e.Name), q) || strings.Contains(strings.ToLower(e.EntityType), q) {
			return true
		}
		return slices.ContainsFunc(e.Observations, func(o string) bool {
			return strings.Contains(strings.ToLower(o), q)
		})
	}), nil
}

func (k knowledgeBase) openNodes(names []string) (Graph, error) {
	graph, err := k.readGraph()
	if err != nil {
		return Graph{}, err
	}

	return graph.subgraph(func(e Entity) bool { return slices.Contains(names, e.Name) }), nil
}

func (g Graph) entityIndex(name string) int {
	return slices.IndexFunc(g.Entities, func(e Entity) bool { return e.Name == name })
}

// subgraph keeps the entities matching keep and the relations whose both ends were kept.
func (g Graph) subgraph(keep func(Entity) bool) Graph {
	sub := Graph{Entities: []Entity{}, Relations: []Relation{}}
	kept := make(map[string]struct{})
	for _, e := range g.Entities {
		if keep(e) {
			sub.Entities = append(sub.Entities, e)
			kept[e.Name] = struct{}{}
		}
	}
	for _, r := range g.Relations {
		_, from := kept[r.From]
		_, to := kept[r.To]
		if from && to {
			sub.Relations = append(sub.Relations, r)
		}
	}
	return sub
}
