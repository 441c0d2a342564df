package models

import "sort"

// EdgeSource identifies which subsystem produced a dependency edge.
type EdgeSource string

const (
	// SourceExplicit marks edges supplied by the caller on the task list.
	SourceExplicit EdgeSource = "explicit"
	// SourcePattern marks edges from deterministic pattern matching.
	SourcePattern EdgeSource = "pattern"
	// SourceAI marks edges from external reasoning judgments.
	SourceAI EdgeSource = "ai"
	// SourcePhaseRule marks edges from the phase dependency enforcer.
	SourcePhaseRule EdgeSource = "phase_rule"
	// SourceGlobalRule marks edges from the global rule engine.
	SourceGlobalRule EdgeSource = "global_rule"
)

// Valid returns true if the source is a known value.
func (s EdgeSource) Valid() bool {
	switch s {
	case SourceExplicit, SourcePattern, SourceAI, SourcePhaseRule, SourceGlobalRule:
		return true
	default:
		return false
	}
}

// DependencyEdge is a directed dependency: From depends on To, meaning
// To must complete before From may start.
type DependencyEdge struct {
	// From is the dependent task's ID.
	From string `json:"from"`
	// To is the prerequisite task's ID.
	To string `json:"to"`
	// Sources lists every subsystem that produced this edge, sorted.
	Sources []EdgeSource `json:"sources"`
	// Confidence is the combined confidence for the edge (0-1).
	Confidence float64 `json:"confidence"`
	// Mandatory edges may never be removed by auto-fix or merging.
	Mandatory bool `json:"mandatory"`
	// Reason is a short human-readable explanation of the edge.
	Reason string `json:"reason,omitempty"`
}

// Key returns the pair identity used for edge deduplication.
func (e *DependencyEdge) Key() [2]string {
	return [2]string{e.From, e.To}
}

// HasSource returns true if src already contributed to this edge.
func (e *DependencyEdge) HasSource(src EdgeSource) bool {
	for _, s := range e.Sources {
		if s == src {
			return true
		}
	}
	return false
}

// AddSource records src as a contributor, keeping Sources sorted.
func (e *DependencyEdge) AddSource(src EdgeSource) {
	if e.HasSource(src) {
		return
	}
	e.Sources = append(e.Sources, src)
	sort.Slice(e.Sources, func(i, j int) bool { return e.Sources[i] < e.Sources[j] })
}

// Clone returns a copy of the edge with its own Sources slice.
func (e *DependencyEdge) Clone() *DependencyEdge {
	c := *e
	if e.Sources != nil {
		c.Sources = append([]EdgeSource(nil), e.Sources...)
	}
	return &c
}
