// Package rules inserts mandatory ordering edges derived from task phases:
// per-feature phase sequencing and project-wide global rules.
package rules

import (
	"fmt"
	"sort"

	"github.com/skeinhq/skein/internal/graph"
	"github.com/skeinhq/skein/internal/logging"
	"github.com/skeinhq/skein/pkg/models"
)

// EnforcementMode selects how far back phase edges reach within a feature
// group.
type EnforcementMode string

const (
	// EnforceFull links every task to every task in every strictly-earlier
	// present phase of its feature group.
	EnforceFull EnforcementMode = "full"
	// EnforceAdjacent links every task only to the nearest earlier present
	// phase, leaving the rest to transitivity.
	EnforceAdjacent EnforcementMode = "adjacent"
)

// ParseEnforcementMode maps a wire string to a mode. Empty input selects
// EnforceFull.
func ParseEnforcementMode(s string) (EnforcementMode, error) {
	switch EnforcementMode(s) {
	case "", EnforceFull:
		return EnforceFull, nil
	case EnforceAdjacent:
		return EnforceAdjacent, nil
	}
	return "", fmt.Errorf("unknown enforcement mode %q", s)
}

// FeatureGroup reports how one explicit feature's tasks partition across
// phases.
type FeatureGroup struct {
	Key     string                    `json:"key"`
	TaskIDs []string                  `json:"task_ids"`
	Phases  map[models.Phase][]string `json:"phases"`
}

// PhaseResult summarizes one enforcement pass.
type PhaseResult struct {
	Features     []FeatureGroup `json:"features_detected"`
	EdgesAdded   int            `json:"dependencies_added"`
	RulesApplied []string       `json:"phase_rules_applied"`
}

// PhaseEnforcer inserts mandatory edges so that within a feature group no
// phase starts before every strictly-earlier phase has finished. Tasks that
// name no feature group are each treated as their own group and therefore
// never gain phase edges here.
type PhaseEnforcer struct {
	mode EnforcementMode
	log  *logging.Logger
}

func NewPhaseEnforcer(mode EnforcementMode, log *logging.Logger) *PhaseEnforcer {
	if mode == "" {
		mode = EnforceFull
	}
	if log == nil {
		log = logging.Nop()
	}
	return &PhaseEnforcer{mode: mode, log: log}
}

// Apply walks every feature group in canonical phase order and adds the
// missing ordering edges. Tasks without a valid phase are skipped; the
// validator reports those separately. Re-applying adds nothing.
func (e *PhaseEnforcer) Apply(g *graph.Graph) (*PhaseResult, error) {
	groups := map[string][]*models.Task{}
	for _, t := range g.Tasks() {
		key := t.Group()
		groups[key] = append(groups[key], t)
	}
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	res := &PhaseResult{}
	ruleSet := map[string]bool{}
	for _, key := range keys {
		fg := FeatureGroup{Key: key, Phases: map[models.Phase][]string{}}
		explicit := false
		for _, t := range groups[key] {
			fg.TaskIDs = append(fg.TaskIDs, t.ID)
			if t.FeatureGroup == key {
				explicit = true
			}
			if t.Phase.Valid() {
				fg.Phases[t.Phase] = append(fg.Phases[t.Phase], t.ID)
			}
		}
		sort.Strings(fg.TaskIDs)

		var present []models.Phase
		for _, p := range models.Phases {
			if len(fg.Phases[p]) > 0 {
				sort.Strings(fg.Phases[p])
				present = append(present, p)
			}
		}
		for i, p := range present {
			earlier := present[:i]
			if e.mode == EnforceAdjacent && i > 0 {
				earlier = present[i-1 : i]
			}
			for _, ep := range earlier {
				added, err := e.link(g, key, p, ep, fg.Phases[p], fg.Phases[ep])
				if err != nil {
					return nil, err
				}
				if added > 0 {
					res.EdgesAdded += added
					ruleSet[string(p)+"_depends_on_"+string(ep)] = true
				}
			}
		}
		if explicit {
			res.Features = append(res.Features, fg)
		}
	}

	for name := range ruleSet {
		res.RulesApplied = append(res.RulesApplied, name)
	}
	sort.Strings(res.RulesApplied)
	e.log.Debug("phase dependencies applied",
		"mode", string(e.mode),
		"features", len(res.Features),
		"edges_added", res.EdgesAdded)
	return res, nil
}

func (e *PhaseEnforcer) link(g *graph.Graph, group string, p, ep models.Phase, from, to []string) (int, error) {
	added := 0
	for _, id := range from {
		for _, dep := range to {
			inserted, err := g.AddEdge(&models.DependencyEdge{
				From:       id,
				To:         dep,
				Sources:    []models.EdgeSource{models.SourcePhaseRule},
				Confidence: 1.0,
				Mandatory:  true,
				Reason:     fmt.Sprintf("%s follows %s in feature group %s", p, ep, group),
			})
			if err != nil {
				return added, fmt.Errorf("apply phase rule: %w", err)
			}
			if inserted {
				added++
			}
		}
	}
	return added, nil
}
