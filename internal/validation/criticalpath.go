package validation

import (
	"github.com/skeinhq/skein/internal/graph"
)

// criticalPath finds the longest dependency chain in g, prerequisite first.
// When any task carries a duration estimate the chain maximizes total hours
// and the total is returned; otherwise each task counts one unit and the
// returned hours are zero. Ties resolve toward the smaller task id. order
// must be a topological sort of g.
func criticalPath(g *graph.Graph, order []string) ([]string, float64) {
	if len(order) == 0 {
		return nil, 0
	}

	useHours := false
	for _, t := range g.Tasks() {
		if t.EstimateHours > 0 {
			useHours = true
			break
		}
	}
	weight := func(id string) float64 {
		if !useHours {
			return 1
		}
		if t := g.Task(id); t != nil && t.EstimateHours > 0 {
			return t.EstimateHours
		}
		return 0
	}

	// Forward pass over the topological order: the longest chain ending at a
	// task extends the longest chain among its prerequisites.
	dist := make(map[string]float64, len(order))
	parent := make(map[string]string, len(order))
	for _, id := range order {
		bestDep := ""
		bestDist := 0.0
		for _, dep := range g.Dependencies(id) {
			if bestDep == "" || dist[dep] > bestDist {
				bestDep = dep
				bestDist = dist[dep]
			}
		}
		dist[id] = bestDist + weight(id)
		if bestDep != "" {
			parent[id] = bestDep
		}
	}

	end := ""
	for _, id := range order {
		if end == "" || dist[id] > dist[end] || (dist[id] == dist[end] && id < end) {
			end = id
		}
	}

	var path []string
	for id := end; id != ""; id = parent[id] {
		path = append(path, id)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}

	if !useHours {
		return path, 0
	}
	return path, dist[end]
}
