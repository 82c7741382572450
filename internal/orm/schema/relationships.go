package schema

import (
	"fmt"
	"sort"
	"strings"
)

// RelationshipGraph represents the dependency graph between entities.
// An entity depends on another when it holds that entity's id: a RelatedRecord field, or the B
// side of a OneToOne/OneToMany relationship.
type RelationshipGraph struct {
	nodes map[string]*EntityDefinition
	edges map[string][]string // entity -> dependencies
}

// NewRelationshipGraph creates a new relationship graph
func NewRelationshipGraph(entities map[string]*EntityDefinition, relationships map[string]*RelationshipDefinition) *RelationshipGraph {
	graph := &RelationshipGraph{
		nodes: entities,
		edges: make(map[string][]string),
	}

	for name, def := range entities {
		for _, field := range def.RelatedRecordFields() {
			graph.addEdge(name, field.RelatedEntity)
		}
	}
	for _, rel := range relationships {
		if rel.Type != ManyToMany {
			graph.addEdge(rel.EntityB, rel.EntityA)
		}
	}

	return graph
}

func (g *RelationshipGraph) addEdge(from, to string) {
	if from == to || to == "" {
		return
	}
	for _, existing := range g.edges[from] {
		if existing == to {
			return
		}
	}
	g.edges[from] = append(g.edges[from], to)
	sort.Strings(g.edges[from])
}

func (g *RelationshipGraph) sortedNodes() []string {
	names := make([]string, 0, len(g.nodes))
	for name := range g.nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DetectCycles detects circular dependencies in the relationship graph
func (g *RelationshipGraph) DetectCycles() [][]string {
	var cycles [][]string
	visited := make(map[string]bool)
	recursionStack := make(map[string]bool)

	var dfs func(node string, path []string) bool
	dfs = func(node string, path []string) bool {
		visited[node] = true
		recursionStack[node] = true
		path = append(path, node)

		for _, neighbor := range g.edges[node] {
			if !visited[neighbor] {
				if dfs(neighbor, path) {
					return true
				}
			} else if recursionStack[neighbor] {
				for i, n := range path {
					if n == neighbor {
						cycle := make([]string, len(path)-i)
						copy(cycle, path[i:])
						cycles = append(cycles, cycle)
						break
					}
				}
				return true
			}
		}

		recursionStack[node] = false
		return false
	}

	for _, node := range g.sortedNodes() {
		if !visited[node] {
			dfs(node, []string{})
		}
	}

	return cycles
}

// TopologicalSort returns entities in dependency order (dependencies first).
// Ties are broken alphabetically so the order is stable across runs.
func (g *RelationshipGraph) TopologicalSort() ([]string, error) {
	outDegree := make(map[string]int)
	for node := range g.nodes {
		for _, dep := range g.edges[node] {
			if _, known := g.nodes[dep]; known {
				outDegree[node]++
			}
		}
	}

	reverseEdges := make(map[string][]string)
	for source, targets := range g.edges {
		for _, target := range targets {
			reverseEdges[target] = append(reverseEdges[target], source)
		}
	}

	var queue []string
	for _, node := range g.sortedNodes() {
		if outDegree[node] == 0 {
			queue = append(queue, node)
		}
	}

	var result []string
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		result = append(result, node)

		var ready []string
		for _, dependent := range reverseEdges[node] {
			outDegree[dependent]--
			if outDegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
		sort.Strings(ready)
		queue = append(queue, ready...)
	}

	if len(result) != len(g.nodes) {
		if cycles := g.DetectCycles(); len(cycles) > 0 {
			return nil, fmt.Errorf("circular dependency detected: %s", formatCycles(cycles))
		}
		return nil, fmt.Errorf("circular dependency detected")
	}

	return result, nil
}

// GetDependencies returns all direct dependencies of an entity
func (g *RelationshipGraph) GetDependencies(entity string) []string {
	deps, exists := g.edges[entity]
	if !exists {
		return []string{}
	}
	return deps
}

// GetDependents returns all entities that depend on the given entity
func (g *RelationshipGraph) GetDependents(entity string) []string {
	dependents := []string{}
	for _, node := range g.sortedNodes() {
		for _, dep := range g.edges[node] {
			if dep == entity {
				dependents = append(dependents, node)
				break
			}
		}
	}
	return dependents
}

// formatCycles formats cycle information for error messages
func formatCycles(cycles [][]string) string {
	var b strings.Builder
	for i, cycle := range cycles {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(fmt.Sprintf("  Cycle %d: %s -> %s",
			i+1,
			strings.Join(cycle, " -> "),
			cycle[0]))
	}
	return b.String()
}
