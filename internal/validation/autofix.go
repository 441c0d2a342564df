package validation

import (
	"fmt"
	"sort"

	"github.com/skeinhq/skein/internal/graph"
	"github.com/skeinhq/skein/pkg/models"
)

// FixOutcome records what happened to one requested fix.
type FixOutcome struct {
	FixID   string `json:"fix_id"`
	Applied bool   `json:"applied"`
	Detail  string `json:"detail,omitempty"`
}

// AutoFixResult reports an auto-fix run: which fixes landed, the tasks whose
// dependency lists changed, and the validation outcome afterwards.
type AutoFixResult struct {
	FixesApplied    []FixOutcome   `json:"fixes_applied"`
	UpdatedTasks    []*models.Task `json:"updated_tasks"`
	DryRun          bool           `json:"dry_run"`
	Revalidation    *Result        `json:"revalidation"`
	IsValidAfterFix bool           `json:"is_valid_after_fix"`
}

// AutoFix applies the selected fixes from a prior validation result and
// revalidates. In dry-run mode the work happens on a copy and g is left
// untouched. Fixes are selected by id; requesting an id the prior result does
// not carry is reported as not applied without failing the run.
func (v *Validator) AutoFix(g *graph.Graph, prior *Result, fixIDs []string, dryRun bool) (*AutoFixResult, error) {
	if prior == nil {
		return nil, fmt.Errorf("auto-fix requires a prior validation result")
	}

	fixes := make(map[string]*Fix)
	for i := range prior.Errors {
		if f := prior.Errors[i].Fix; f != nil && f.ID != "" {
			fixes[f.ID] = f
		}
	}

	target := g
	if dryRun {
		target = g.Clone()
	}

	out := &AutoFixResult{FixesApplied: []FixOutcome{}, DryRun: dryRun}
	touched := make(map[string]bool)
	for _, id := range fixIDs {
		fix, ok := fixes[id]
		if !ok {
			out.FixesApplied = append(out.FixesApplied, FixOutcome{
				FixID:  id,
				Detail: "no such fix in the validation result",
			})
			continue
		}
		outcome := FixOutcome{FixID: id}
		switch fix.Action {
		case ActionAddDependency:
			added := 0
			for _, dep := range fix.DependsOn {
				inserted, err := target.AddEdge(&models.DependencyEdge{
					From:       fix.TaskID,
					To:         dep,
					Sources:    []models.EdgeSource{models.SourceExplicit},
					Confidence: 1.0,
					Reason:     "added by auto-fix",
				})
				if err != nil {
					outcome.Detail = err.Error()
					break
				}
				if inserted {
					added++
				}
			}
			if outcome.Detail == "" {
				outcome.Applied = true
				outcome.Detail = fmt.Sprintf("%d dependencies added", added)
				touched[fix.TaskID] = true
			}
		case ActionRemoveDependency:
			removed := 0
			for _, dep := range fix.DependsOn {
				if target.RemoveEdge(fix.TaskID, dep) {
					removed++
				}
			}
			outcome.Applied = true
			outcome.Detail = fmt.Sprintf("%d dependencies removed", removed)
			touched[fix.TaskID] = true
		default:
			outcome.Detail = fmt.Sprintf("unsupported fix action %q", fix.Action)
		}
		out.FixesApplied = append(out.FixesApplied, outcome)
	}

	target.SyncTasks()

	ids := make([]string, 0, len(touched))
	for id := range touched {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if t := target.Task(id); t != nil {
			out.UpdatedTasks = append(out.UpdatedTasks, t.Clone())
		}
	}

	out.Revalidation = v.Validate(target)
	out.IsValidAfterFix = out.Revalidation.IsValid

	v.log.Info("auto-fix run complete",
		"requested", len(fixIDs),
		"updated_tasks", len(out.UpdatedTasks),
		"dry_run", dryRun,
		"valid_after", out.IsValidAfterFix,
	)
	return out, nil
}
