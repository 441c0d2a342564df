// Package eligibility answers whether a task can start right now: every
// dependency completed, the task itself neither completed nor assigned.
// Checks are pure queries over a validated graph and never mutate it.
package eligibility

import (
	"fmt"
	"sort"
	"time"

	"github.com/skeinhq/skein/internal/graph"
	"github.com/skeinhq/skein/internal/logging"
)

// Status describes one dependency of the checked task.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusPending   Status = "pending"
)

// Decision is the outcome of one eligibility check.
type Decision struct {
	AgentID                string            `json:"agent_id,omitempty"`
	TaskID                 string            `json:"task_id"`
	Eligible               bool              `json:"eligible"`
	Reasons                []string          `json:"reasons,omitempty"`
	BlockingTasks          []string          `json:"blocking_tasks,omitempty"`
	Dependencies           map[string]Status `json:"dependencies_status,omitempty"`
	EstimatedDurationHours float64           `json:"estimated_duration_hours,omitempty"`
	RetryAfter             *time.Time        `json:"retry_after,omitempty"`
}

// Checker evaluates task readiness against a dependency graph.
type Checker struct {
	log *logging.Logger
	now func() time.Time
}

// NewChecker returns a ready checker.
func NewChecker(log *logging.Logger) *Checker {
	if log == nil {
		log = logging.Nop()
	}
	return &Checker{
		log: log.WithComponent("eligibility"),
		now: time.Now,
	}
}

// Check decides whether taskID may start. Mandatory and advisory dependencies
// block alike: an advisory edge records a real ordering belief, agents do not
// get to ignore it by default. The graph must have passed validation; a cyclic
// graph is refused because no task on a cycle could ever become eligible.
func (c *Checker) Check(g *graph.Graph, agentID, taskID string, completed, assigned []string) (*Decision, error) {
	t := g.Task(taskID)
	if t == nil {
		return nil, fmt.Errorf("%w %s", graph.ErrUnknownTask, taskID)
	}
	if g.HasCycle() {
		return nil, fmt.Errorf("%w, validate before checking eligibility", graph.ErrCycleDetected)
	}

	done := make(map[string]bool, len(completed))
	for _, id := range completed {
		done[id] = true
	}
	taken := make(map[string]bool, len(assigned))
	for _, id := range assigned {
		taken[id] = true
	}

	d := &Decision{
		AgentID:                agentID,
		TaskID:                 taskID,
		EstimatedDurationHours: t.EstimateHours,
	}

	if done[taskID] {
		d.Reasons = append(d.Reasons, "task is already completed")
	}
	if taken[taskID] {
		d.Reasons = append(d.Reasons, "task is already assigned")
	}

	deps := g.Dependencies(taskID)
	if len(deps) > 0 {
		d.Dependencies = make(map[string]Status, len(deps))
	}
	for _, dep := range deps {
		if done[dep] {
			d.Dependencies[dep] = StatusCompleted
			continue
		}
		d.Dependencies[dep] = StatusPending
		d.BlockingTasks = append(d.BlockingTasks, dep)
	}
	sort.Strings(d.BlockingTasks)

	if n := len(d.BlockingTasks); n > 0 {
		d.Reasons = append(d.Reasons, fmt.Sprintf("%d of %d dependencies are incomplete", n, len(deps)))
		if at, ok := c.retryAfter(g, d.BlockingTasks); ok {
			d.RetryAfter = &at
		}
	}

	d.Eligible = len(d.Reasons) == 0

	c.log.Debug("eligibility check",
		"agent_id", agentID,
		"task_id", taskID,
		"eligible", d.Eligible,
		"blocking", len(d.BlockingTasks),
	)
	return d, nil
}

// retryAfter estimates when the longest-running incomplete blocker would
// finish if it started now. Without any duration estimates there is nothing
// to project, so no retry hint is given.
func (c *Checker) retryAfter(g *graph.Graph, blocking []string) (time.Time, bool) {
	maxHours := 0.0
	for _, id := range blocking {
		if t := g.Task(id); t != nil && t.EstimateHours > maxHours {
			maxHours = t.EstimateHours
		}
	}
	if maxHours == 0 {
		return time.Time{}, false
	}
	return c.now().Add(time.Duration(maxHours * float64(time.Hour))).UTC(), true
}
