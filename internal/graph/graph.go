// Package graph provides the directed dependency graph the engine
// builds, validates, and publishes.
package graph

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/skeinhq/skein/pkg/models"
)

// ErrCycleDetected indicates a circular dependency was found in the graph.
var ErrCycleDetected = errors.New("circular dependency detected")

// ErrUnknownTask indicates an edge endpoint that is not in the graph.
var ErrUnknownTask = errors.New("unknown task")

// ErrSelfDependency indicates an edge from a task to itself.
var ErrSelfDependency = errors.New("task cannot depend on itself")

// Graph is a directed dependency graph. Nodes are tasks; an edge
// (from, to) means from depends on to, so to must complete first.
// Edges are deduplicated by the (from, to) pair and merged when more
// than one source produces them.
type Graph struct {
	mu    sync.RWMutex
	nodes map[string]*models.Task
	edges map[[2]string]*models.DependencyEdge
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[string]*models.Task),
		edges: make(map[[2]string]*models.DependencyEdge),
	}
}

// Build constructs a graph from a task list. Dependencies already on
// the tasks are ingested as explicit edges. Cycles are allowed here;
// validation reports them as findings.
func Build(tasks []*models.Task) (*Graph, error) {
	g := New()

	for _, task := range tasks {
		if task.ID == "" {
			return nil, errors.New("task with empty ID")
		}
		if _, dup := g.nodes[task.ID]; dup {
			return nil, fmt.Errorf("duplicate task ID %s", task.ID)
		}
		g.nodes[task.ID] = task
	}

	for _, task := range tasks {
		for _, dep := range task.DependsOn {
			if dep == task.ID {
				return nil, fmt.Errorf("task %s: %w", task.ID, ErrSelfDependency)
			}
			if _, ok := g.nodes[dep]; !ok {
				return nil, fmt.Errorf("task %s depends on unknown task %s: %w", task.ID, dep, ErrUnknownTask)
			}
			g.mergeEdgeLocked(&models.DependencyEdge{
				From:       task.ID,
				To:         dep,
				Sources:    []models.EdgeSource{models.SourceExplicit},
				Confidence: 1.0,
				Reason:     "provided by caller",
			})
		}
	}

	return g, nil
}

// AddEdge inserts or merges an edge. On merge the edge keeps the union
// of sources, the higher confidence, and stays mandatory once any
// contributor marked it mandatory. Returns true when a new edge was
// inserted.
func (g *Graph) AddEdge(e *models.DependencyEdge) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if e.From == e.To {
		return false, fmt.Errorf("edge %s -> %s: %w", e.From, e.To, ErrSelfDependency)
	}
	if _, ok := g.nodes[e.From]; !ok {
		return false, fmt.Errorf("edge from %s: %w", e.From, ErrUnknownTask)
	}
	if _, ok := g.nodes[e.To]; !ok {
		return false, fmt.Errorf("edge to %s: %w", e.To, ErrUnknownTask)
	}

	return g.mergeEdgeLocked(e), nil
}

func (g *Graph) mergeEdgeLocked(e *models.DependencyEdge) bool {
	key := e.Key()
	if existing, ok := g.edges[key]; ok {
		for _, s := range e.Sources {
			existing.AddSource(s)
		}
		if e.Confidence > existing.Confidence {
			existing.Confidence = e.Confidence
		}
		if e.Mandatory {
			existing.Mandatory = true
		}
		if existing.Reason == "" {
			existing.Reason = e.Reason
		}
		return false
	}
	g.edges[key] = e.Clone()
	return true
}

// RemoveEdge deletes the (from, to) edge. Returns true if it existed.
func (g *Graph) RemoveEdge(from, to string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := [2]string{from, to}
	if _, ok := g.edges[key]; !ok {
		return false
	}
	delete(g.edges, key)
	return true
}

// Edge returns a copy of the (from, to) edge, or nil if absent.
func (g *Graph) Edge(from, to string) *models.DependencyEdge {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if e, ok := g.edges[[2]string{from, to}]; ok {
		return e.Clone()
	}
	return nil
}

// HasEdge returns true if the (from, to) edge exists.
func (g *Graph) HasEdge(from, to string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.edges[[2]string{from, to}]
	return ok
}

// Task returns the task for an ID, or nil if not found.
func (g *Graph) Task(id string) *models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[id]
}

// Tasks returns all tasks sorted by ID.
func (g *Graph) Tasks() []*models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]*models.Task, 0, len(g.nodes))
	for _, t := range g.nodes {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Edges returns copies of all edges sorted by (from, to).
func (g *Graph) Edges() []*models.DependencyEdge {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]*models.DependencyEdge, 0, len(g.edges))
	for _, e := range g.edges {
		out = append(out, e.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out
}

// Size returns the number of tasks.
func (g *Graph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.edges)
}

// Dependencies returns the sorted IDs the given task depends on.
func (g *Graph) Dependencies(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.depsLocked(id)
}

func (g *Graph) depsLocked(id string) []string {
	var out []string
	for key := range g.edges {
		if key[0] == id {
			out = append(out, key[1])
		}
	}
	sort.Strings(out)
	return out
}

// Dependents returns the sorted IDs of tasks that depend on the given task.
func (g *Graph) Dependents(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []string
	for key := range g.edges {
		if key[1] == id {
			out = append(out, key[0])
		}
	}
	sort.Strings(out)
	return out
}

// Adjacency returns sorted task IDs and, for each task, its sorted
// dependency list. Both are fresh copies safe to mutate.
func (g *Graph) Adjacency() ([]string, map[string][]string) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	deps := make(map[string][]string, len(g.nodes))
	for _, id := range ids {
		deps[id] = g.depsLocked(id)
	}
	return ids, deps
}

// Roots returns sorted IDs of tasks with no dependencies.
func (g *Graph) Roots() []string {
	ids, deps := g.Adjacency()
	var out []string
	for _, id := range ids {
		if len(deps[id]) == 0 {
			out = append(out, id)
		}
	}
	return out
}

// Leaves returns sorted IDs of tasks nothing depends on.
func (g *Graph) Leaves() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	hasDependent := make(map[string]bool)
	for key := range g.edges {
		hasDependent[key[1]] = true
	}

	var out []string
	for id := range g.nodes {
		if !hasDependent[id] {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// HasCycle returns true if the graph contains a circular dependency.
func (g *Graph) HasCycle() bool {
	return len(g.FindCycle()) > 0
}

// FindCycle returns the full path of one cycle, e.g. [a b c a], or nil
// when the graph is acyclic. Node order is deterministic.
func (g *Graph) FindCycle() []string {
	ids, deps := g.Adjacency()

	// Colors: 0 = unvisited, 1 = in progress, 2 = done.
	colors := make(map[string]int, len(ids))
	parent := make(map[string]string, len(ids))

	var cycle []string
	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = 1
		for _, dep := range deps[id] {
			switch colors[dep] {
			case 1:
				// Back edge: walk parents from id back to dep.
				path := []string{dep}
				for cur := id; cur != dep; cur = parent[cur] {
					path = append(path, cur)
				}
				// Reverse into dependency order and close the loop.
				for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
					path[i], path[j] = path[j], path[i]
				}
				cycle = append(path, path[0])
				return true
			case 0:
				parent[dep] = id
				if visit(dep) {
					return true
				}
			}
		}
		colors[id] = 2
		return false
	}

	for _, id := range ids {
		if colors[id] == 0 {
			if visit(id) {
				return cycle
			}
		}
	}
	return nil
}

// TopologicalSort returns task IDs with every dependency before its
// dependents, breaking ties lexicographically. Returns ErrCycleDetected
// when no such order exists.
func (g *Graph) TopologicalSort() ([]string, error) {
	ids, deps := g.Adjacency()

	indeg := make(map[string]int, len(ids))
	dependents := make(map[string][]string, len(ids))
	for _, id := range ids {
		indeg[id] = len(deps[id])
		for _, d := range deps[id] {
			dependents[d] = append(dependents[d], id)
		}
	}

	var queue []string
	for _, id := range ids {
		if indeg[id] == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	order := make([]string, 0, len(ids))
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		order = append(order, n)

		released := false
		for _, m := range dependents[n] {
			indeg[m]--
			if indeg[m] == 0 {
				queue = append(queue, m)
				released = true
			}
		}
		if released {
			sort.Strings(queue)
		}
	}

	if len(order) != len(ids) {
		return nil, ErrCycleDetected
	}
	return order, nil
}

// Clone returns a deep copy of the graph for dry-run mutation.
func (g *Graph) Clone() *Graph {
	g.mu.RLock()
	defer g.mu.RUnlock()

	c := New()
	for id, t := range g.nodes {
		c.nodes[id] = t.Clone()
	}
	for key, e := range g.edges {
		c.edges[key] = e.Clone()
	}
	return c
}

// SyncTasks writes each task's edge-derived dependency list back onto
// the task's DependsOn field.
func (g *Graph) SyncTasks() {
	g.mu.Lock()
	defer g.mu.Unlock()

	for id, task := range g.nodes {
		task.SetDependencies(g.depsLocked(id))
	}
}
