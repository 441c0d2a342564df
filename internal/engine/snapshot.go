package engine

import (
	"sort"
	"sync"
	"time"

	"github.com/skeinhq/skein/internal/graph"
	"github.com/skeinhq/skein/internal/validation"
)

// Snapshot is a published, validated view of one project's graph. Query
// operations read the snapshot current at the time they start; pipeline runs
// build a new graph aside and swap it in, last writer wins.
type Snapshot struct {
	ProjectID    string
	Graph        *graph.Graph
	Result       *validation.Result
	ValidationID string
	PublishedAt  time.Time
}

type snapshotRegistry struct {
	mu   sync.RWMutex
	byID map[string]*Snapshot
}

func newSnapshotRegistry() *snapshotRegistry {
	return &snapshotRegistry{byID: make(map[string]*Snapshot)}
}

func (r *snapshotRegistry) publish(s *Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[s.ProjectID] = s
}

func (r *snapshotRegistry) get(projectID string) *Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[projectID]
}

func (r *snapshotRegistry) projects() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.byID))
	for id := range r.byID {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
