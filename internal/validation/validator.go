// Package validation inspects dependency graphs for structural and semantic
// problems. A pass reports errors and warnings, graph statistics, a suggested
// execution order, and the critical path; findings that have a safe
// remediation carry a fix that AutoFix can apply on request.
package validation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/skeinhq/skein/internal/graph"
	"github.com/skeinhq/skein/internal/infer"
	"github.com/skeinhq/skein/internal/logging"
	"github.com/skeinhq/skein/pkg/models"
)

// Mode selects how deep a validation pass digs.
type Mode string

const (
	// ModeStrict runs every check, including the semantic ones that need
	// phase classifications on the tasks.
	ModeStrict Mode = "strict"
	// ModeStructural limits the pass to graph-shape checks: cycles and
	// orphaned tasks.
	ModeStructural Mode = "structural"
)

// ParseMode maps a wire value onto a validation mode. Empty input selects
// strict.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "":
		return ModeStrict, nil
	case ModeStrict, ModeStructural:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown validation mode %q (valid: strict, structural)", s)
	}
}

// Severity grades a finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// ErrorType identifies the class of a validation error.
type ErrorType string

const (
	MissingDependency  ErrorType = "missing_dependency"
	CircularDependency ErrorType = "circular_dependency"
	InvalidPhase       ErrorType = "invalid_phase"
	DependencyConflict ErrorType = "dependency_conflict"
)

// Warning types reported in validation results.
const (
	WarnOrphanedTask      = "orphaned_task"
	WarnDegradedInference = "reduced_inference_coverage"
)

// Error is a single validation failure.
type Error struct {
	TaskID     string    `json:"task_id,omitempty"`
	Type       ErrorType `json:"error_type"`
	Severity   Severity  `json:"severity"`
	Message    string    `json:"message"`
	RelatedIDs []string  `json:"related_ids,omitempty"`
	Fix        *Fix      `json:"fix,omitempty"`
}

// Warning is a non-blocking finding.
type Warning struct {
	TaskID  string `json:"task_id,omitempty"`
	Type    string `json:"warning_type"`
	Message string `json:"message"`
}

// Fix describes a remediation AutoFix can apply. Findings without a safe
// remediation, such as cycles, carry no fix.
type Fix struct {
	ID          string   `json:"id"`
	Action      string   `json:"action"`
	TaskID      string   `json:"task_id"`
	DependsOn   []string `json:"depends_on,omitempty"`
	Description string   `json:"description"`
}

// Fix actions understood by AutoFix.
const (
	ActionAddDependency    = "add_dependency"
	ActionRemoveDependency = "remove_dependency"
)

// Statistics summarizes the validated graph.
type Statistics struct {
	TotalTasks        int            `json:"total_tasks"`
	TotalEdges        int            `json:"total_edges"`
	MandatoryEdges    int            `json:"mandatory_edges"`
	AdvisoryEdges     int            `json:"advisory_edges"`
	EdgesBySource     map[string]int `json:"edges_by_source,omitempty"`
	RootTasks         int            `json:"root_tasks"`
	LeafTasks         int            `json:"leaf_tasks"`
	IsolatedTasks     int            `json:"isolated_tasks"`
	LongestChain      int            `json:"longest_chain"`
	CriticalPathHours float64        `json:"critical_path_hours,omitempty"`
}

// Result is the outcome of one validation pass. ExecutionOrder and
// CriticalPath are empty when the graph has a cycle.
type Result struct {
	IsValid        bool       `json:"is_valid"`
	Mode           Mode       `json:"validation_mode"`
	Errors         []Error    `json:"errors"`
	Warnings       []Warning  `json:"warnings"`
	Statistics     Statistics `json:"statistics"`
	ExecutionOrder []string   `json:"suggested_execution_order,omitempty"`
	CriticalPath   []string   `json:"critical_path,omitempty"`
}

// AddError appends a finding discovered outside the validator, such as a
// global-rule conflict, and marks the result invalid.
func (r *Result) AddError(e Error) {
	r.Errors = append(r.Errors, e)
	r.IsValid = false
}

// AddWarning appends a non-blocking finding.
func (r *Result) AddWarning(w Warning) {
	r.Warnings = append(r.Warnings, w)
}

// Validator runs validation passes over dependency graphs.
type Validator struct {
	mode Mode
	log  *logging.Logger
}

// New returns a validator for the given mode. An empty mode means strict.
func New(mode Mode, log *logging.Logger) *Validator {
	if mode == "" {
		mode = ModeStrict
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Validator{mode: mode, log: log.WithComponent("validation")}
}

// Mode reports the validator's configured mode.
func (v *Validator) Mode() Mode {
	return v.mode
}

// Validate inspects g and reports every finding it can detect. The graph is
// not modified.
func (v *Validator) Validate(g *graph.Graph) *Result {
	res := &Result{
		Mode:     v.mode,
		Errors:   []Error{},
		Warnings: []Warning{},
	}

	v.checkCycles(g, res)
	if v.mode == ModeStrict {
		v.checkMissingDependencies(g, res)
		v.checkPhaseOrder(g, res)
		v.checkPhases(g, res)
	}
	v.checkOrphans(g, res)

	res.Statistics = summarize(g)
	if order, err := g.TopologicalSort(); err == nil {
		res.ExecutionOrder = order
		path, hours := criticalPath(g, order)
		res.CriticalPath = path
		res.Statistics.LongestChain = len(path)
		res.Statistics.CriticalPathHours = hours
	}

	assignFixIDs(res)
	res.IsValid = len(res.Errors) == 0

	v.log.Debug("validation pass complete",
		"mode", v.mode,
		"errors", len(res.Errors),
		"warnings", len(res.Warnings),
		"tasks", res.Statistics.TotalTasks,
	)
	return res
}

// checkCycles reports a circular dependency with its full path. Cycles have
// no automatic remediation; someone has to decide which edge is wrong.
func (v *Validator) checkCycles(g *graph.Graph, res *Result) {
	cycle := g.FindCycle()
	if cycle == nil {
		return
	}
	members := cycle[:len(cycle)-1]
	res.Errors = append(res.Errors, Error{
		TaskID:     members[0],
		Type:       CircularDependency,
		Severity:   SeverityError,
		Message:    fmt.Sprintf("circular dependency: %s", strings.Join(cycle, " -> ")),
		RelatedIDs: append([]string(nil), members...),
	})
}

// checkMissingDependencies flags testing tasks that do not depend on any
// implementation work in their own feature group. Groups without
// implementation tasks are skipped, there is nothing such a test could
// depend on.
func (v *Validator) checkMissingDependencies(g *graph.Graph, res *Result) {
	groups := make(map[string][]*models.Task)
	for _, t := range g.Tasks() {
		groups[t.Group()] = append(groups[t.Group()], t)
	}
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		var impl []*models.Task
		for _, t := range groups[key] {
			if t.Phase == models.PhaseImplementation {
				impl = append(impl, t)
			}
		}
		if len(impl) == 0 {
			continue
		}
		for _, t := range groups[key] {
			if t.Phase != models.PhaseTesting {
				continue
			}
			if dependsOnAny(g, t.ID, impl) {
				continue
			}
			suggested := likeliestPrerequisites(t, impl)
			res.Errors = append(res.Errors, Error{
				TaskID:   t.ID,
				Type:     MissingDependency,
				Severity: SeverityError,
				Message: fmt.Sprintf("testing task %s has no dependency on any implementation task in feature group %s",
					t.ID, key),
				RelatedIDs: suggested,
				Fix: &Fix{
					Action:    ActionAddDependency,
					TaskID:    t.ID,
					DependsOn: suggested,
					Description: fmt.Sprintf("add dependency from %s onto %s",
						t.ID, strings.Join(suggested, ", ")),
				},
			})
		}
	}
}

func dependsOnAny(g *graph.Graph, id string, candidates []*models.Task) bool {
	deps := make(map[string]bool)
	for _, dep := range g.Dependencies(id) {
		deps[dep] = true
	}
	for _, c := range candidates {
		if deps[c.ID] {
			return true
		}
	}
	return false
}

// likeliestPrerequisites picks the candidates sharing the most descriptive
// vocabulary with t. All candidates tied at the best score are returned,
// capped at three, ordered by id.
func likeliestPrerequisites(t *models.Task, candidates []*models.Task) []string {
	words := infer.SalientKeywords(t)
	best := -1
	var ids []string
	for _, c := range candidates {
		score := infer.SharedSalient(words, infer.SalientKeywords(c))
		switch {
		case score > best:
			best = score
			ids = []string{c.ID}
		case score == best:
			ids = append(ids, c.ID)
		}
	}
	sort.Strings(ids)
	if len(ids) > 3 {
		ids = ids[:3]
	}
	return ids
}

// checkPhaseOrder flags advisory edges that would schedule earlier-phase
// work after later-phase work. Mandatory edges are exempt: rules and
// explicit declarations outrank inferred ordering.
func (v *Validator) checkPhaseOrder(g *graph.Graph, res *Result) {
	for _, e := range g.Edges() {
		if e.Mandatory {
			continue
		}
		from := g.Task(e.From)
		to := g.Task(e.To)
		if from == nil || to == nil {
			continue
		}
		if !from.Phase.Valid() || !to.Phase.Valid() {
			continue
		}
		if !from.Phase.Before(to.Phase) {
			continue
		}
		res.Errors = append(res.Errors, Error{
			TaskID:   e.From,
			Type:     DependencyConflict,
			Severity: SeverityError,
			Message: fmt.Sprintf("advisory edge makes %s phase task %s depend on %s phase task %s",
				from.Phase, e.From, to.Phase, e.To),
			RelatedIDs: []string{e.From, e.To},
			Fix: &Fix{
				Action:      ActionRemoveDependency,
				TaskID:      e.From,
				DependsOn:   []string{e.To},
				Description: fmt.Sprintf("remove the advisory dependency from %s onto %s", e.From, e.To),
			},
		})
	}
}

// checkPhases flags tasks carrying a phase value outside the canonical set.
// An empty phase means the task has not been classified yet and is allowed.
func (v *Validator) checkPhases(g *graph.Graph, res *Result) {
	for _, t := range g.Tasks() {
		if t.Phase == "" || t.Phase.Valid() {
			continue
		}
		res.Errors = append(res.Errors, Error{
			TaskID:   t.ID,
			Type:     InvalidPhase,
			Severity: SeverityError,
			Message:  fmt.Sprintf("task %s has unknown phase %q", t.ID, t.Phase),
		})
	}
}

// checkOrphans warns about tasks with no edges at all. A single-task project
// is trivially connected and produces no warning.
func (v *Validator) checkOrphans(g *graph.Graph, res *Result) {
	if g.Size() <= 1 {
		return
	}
	for _, t := range g.Tasks() {
		if len(g.Dependencies(t.ID)) > 0 || len(g.Dependents(t.ID)) > 0 {
			continue
		}
		res.Warnings = append(res.Warnings, Warning{
			TaskID:  t.ID,
			Type:    WarnOrphanedTask,
			Message: fmt.Sprintf("task %s has no dependencies and no dependents", t.ID),
		})
	}
}

func summarize(g *graph.Graph) Statistics {
	stats := Statistics{
		TotalTasks: g.Size(),
		TotalEdges: g.EdgeCount(),
	}
	bySource := make(map[string]int)
	for _, e := range g.Edges() {
		if e.Mandatory {
			stats.MandatoryEdges++
		} else {
			stats.AdvisoryEdges++
		}
		for _, s := range e.Sources {
			bySource[string(s)]++
		}
	}
	if len(bySource) > 0 {
		stats.EdgesBySource = bySource
	}
	stats.RootTasks = len(g.Roots())
	stats.LeafTasks = len(g.Leaves())
	for _, t := range g.Tasks() {
		if len(g.Dependencies(t.ID)) == 0 && len(g.Dependents(t.ID)) == 0 {
			stats.IsolatedTasks++
		}
	}
	return stats
}

// assignFixIDs numbers the fixes in finding order so callers can select
// them. Numbering is deterministic because every check walks the graph in
// sorted order.
func assignFixIDs(res *Result) {
	n := 0
	for i := range res.Errors {
		if res.Errors[i].Fix == nil {
			continue
		}
		n++
		res.Errors[i].Fix.ID = fmt.Sprintf("fix-%d", n)
	}
}
