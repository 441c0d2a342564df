package models

import (
	"sort"
	"strings"
)

// Task represents a unit of work flowing through the dependency engine.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// Name is the short description of the task.
	Name string `json:"name"`
	// Description provides detailed information about the task.
	Description string `json:"description,omitempty"`
	// Labels are free-form tags attached by the caller.
	Labels []string `json:"labels,omitempty"`
	// Phase is the lifecycle phase assigned by classification.
	Phase Phase `json:"phase,omitempty"`
	// PhaseConfidence is the classifier's confidence in Phase (0-1).
	PhaseConfidence float64 `json:"phase_confidence,omitempty"`
	// FeatureGroup keys tasks that belong to the same feature. Empty
	// means the task forms a group of its own.
	FeatureGroup string `json:"feature_group,omitempty"`
	// DependsOn lists task IDs that must complete before this task.
	// Kept sorted and free of duplicates.
	DependsOn []string `json:"depends_on,omitempty"`
	// EstimateHours is the optional effort estimate. Zero means unknown.
	EstimateHours float64 `json:"estimate_hours,omitempty"`
}

// Text returns the task's name, description, and labels joined into a
// single lowercase string for keyword and pattern matching.
func (t *Task) Text() string {
	parts := make([]string, 0, 2+len(t.Labels))
	if t.Name != "" {
		parts = append(parts, t.Name)
	}
	if t.Description != "" {
		parts = append(parts, t.Description)
	}
	parts = append(parts, t.Labels...)
	return strings.ToLower(strings.Join(parts, " "))
}

// Group returns the task's feature group key. Tasks without an explicit
// group form a singleton group keyed by their own ID.
func (t *Task) Group() string {
	if t.FeatureGroup != "" {
		return t.FeatureGroup
	}
	return t.ID
}

// HasDependency returns true if dep is already a prerequisite.
func (t *Task) HasDependency(dep string) bool {
	for _, d := range t.DependsOn {
		if d == dep {
			return true
		}
	}
	return false
}

// AddDependency records dep as a prerequisite, keeping DependsOn sorted
// and duplicate-free. Self references are ignored. Returns true if the
// list changed.
func (t *Task) AddDependency(dep string) bool {
	if dep == "" || dep == t.ID || t.HasDependency(dep) {
		return false
	}
	t.DependsOn = append(t.DependsOn, dep)
	sort.Strings(t.DependsOn)
	return true
}

// SetDependencies replaces DependsOn with deps, sorted and deduplicated,
// dropping self references.
func (t *Task) SetDependencies(deps []string) {
	seen := make(map[string]bool, len(deps))
	out := make([]string, 0, len(deps))
	for _, d := range deps {
		if d == "" || d == t.ID || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	sort.Strings(out)
	t.DependsOn = out
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	c := *t
	if t.Labels != nil {
		c.Labels = append([]string(nil), t.Labels...)
	}
	if t.DependsOn != nil {
		c.DependsOn = append([]string(nil), t.DependsOn...)
	}
	return &c
}

// CloneTasks deep-copies a task slice.
func CloneTasks(tasks []*Task) []*Task {
	out := make([]*Task, len(tasks))
	for i, t := range tasks {
		out[i] = t.Clone()
	}
	return out
}

// ProjectContext carries optional hints about the surrounding project
// used to bias classification.
type ProjectContext struct {
	// TechStack lists technologies in play, e.g. "go", "postgres".
	TechStack []string `json:"tech_stack,omitempty"`
	// Domain is a short description of the product domain.
	Domain string `json:"domain,omitempty"`
}
