package rules

import (
	"fmt"

	"github.com/skeinhq/skein/internal/graph"
	"github.com/skeinhq/skein/internal/logging"
	"github.com/skeinhq/skein/pkg/models"
)

// Named global rules.
const (
	RuleDocumentationDependsOnAll        = "documentation_depends_on_all"
	RuleDeploymentDependsOnDocumentation = "deployment_depends_on_documentation"
)

// globalOrder fixes execution order so the deployment rule sees the edges
// the documentation rule produced in the same pass.
var globalOrder = []string{
	RuleDocumentationDependsOnAll,
	RuleDeploymentDependsOnDocumentation,
}

// DefaultGlobalRules returns every built-in rule in execution order.
func DefaultGlobalRules() []string {
	out := make([]string, len(globalOrder))
	copy(out, globalOrder)
	return out
}

// Conflict records a rule edge that was skipped because a mandatory edge
// already orders the two tasks the other way. The validator surfaces these
// as dependency_conflict errors.
type Conflict struct {
	Rule   string `json:"rule"`
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason"`
}

// GlobalResult summarizes one rule-engine pass.
type GlobalResult struct {
	Applied      []string   `json:"rules_applied"`
	EdgesAdded   int        `json:"total_dependencies_added"`
	EdgesRemoved int        `json:"total_dependencies_removed"`
	Conflicts    []Conflict `json:"conflicts,omitempty"`
}

// GlobalEngine applies project-wide dependency rules that cut across
// feature groups.
type GlobalEngine struct {
	log *logging.Logger
}

func NewGlobalEngine(log *logging.Logger) *GlobalEngine {
	if log == nil {
		log = logging.Nop()
	}
	return &GlobalEngine{log: log}
}

// Apply runs the named rules against the graph in their fixed execution
// order. An empty rule list selects every built-in rule. A second pass over
// the same graph adds and removes nothing.
func (e *GlobalEngine) Apply(g *graph.Graph, ruleNames []string) (*GlobalResult, error) {
	selected, err := selectRules(ruleNames)
	if err != nil {
		return nil, err
	}
	res := &GlobalResult{}
	for _, name := range selected {
		switch name {
		case RuleDocumentationDependsOnAll:
			e.documentationDependsOnAll(g, res)
		case RuleDeploymentDependsOnDocumentation:
			e.deploymentDependsOnDocumentation(g, res)
		}
		res.Applied = append(res.Applied, name)
	}
	e.log.Debug("global rules applied",
		"rules", res.Applied,
		"edges_added", res.EdgesAdded,
		"edges_removed", res.EdgesRemoved,
		"conflicts", len(res.Conflicts))
	return res, nil
}

func selectRules(names []string) ([]string, error) {
	if len(names) == 0 {
		return DefaultGlobalRules(), nil
	}
	want := map[string]bool{}
	for _, n := range names {
		known := false
		for _, k := range globalOrder {
			if n == k {
				known = true
				break
			}
		}
		if !known {
			return nil, fmt.Errorf("unknown global rule %q", n)
		}
		want[n] = true
	}
	var out []string
	for _, n := range globalOrder {
		if want[n] {
			out = append(out, n)
		}
	}
	return out, nil
}

// documentationDependsOnAll rewrites every documentation task's dependency
// list to exactly the set of work it documents: all tasks that are neither
// documentation nor deployment. Stale entries are removed rather than
// merged. Deployment tasks are excluded from the target set because the
// deployment rule orders them after documentation.
func (e *GlobalEngine) documentationDependsOnAll(g *graph.Graph, res *GlobalResult) {
	var docs, targets []string
	for _, t := range g.Tasks() {
		switch t.Phase {
		case models.PhaseDocumentation:
			docs = append(docs, t.ID)
		case models.PhaseDeployment:
		default:
			targets = append(targets, t.ID)
		}
	}
	want := map[string]bool{}
	for _, dep := range targets {
		want[dep] = true
	}
	for _, id := range docs {
		for _, dep := range g.Dependencies(id) {
			if !want[dep] {
				if g.RemoveEdge(id, dep) {
					res.EdgesRemoved++
				}
			}
		}
		for _, dep := range targets {
			e.addRuleEdge(g, res, RuleDocumentationDependsOnAll, id, dep,
				"documentation follows the work it documents")
		}
	}
}

// deploymentDependsOnDocumentation adds an edge from every deployment task
// to every documentation task, on top of whatever edges already exist.
func (e *GlobalEngine) deploymentDependsOnDocumentation(g *graph.Graph, res *GlobalResult) {
	var deploys, docs []string
	for _, t := range g.Tasks() {
		switch t.Phase {
		case models.PhaseDeployment:
			deploys = append(deploys, t.ID)
		case models.PhaseDocumentation:
			docs = append(docs, t.ID)
		}
	}
	for _, id := range deploys {
		for _, dep := range docs {
			e.addRuleEdge(g, res, RuleDeploymentDependsOnDocumentation, id, dep,
				"deployment waits for documentation")
		}
	}
}

func (e *GlobalEngine) addRuleEdge(g *graph.Graph, res *GlobalResult, rule, from, to, reason string) {
	if rev := g.Edge(to, from); rev != nil && rev.Mandatory {
		res.Conflicts = append(res.Conflicts, Conflict{
			Rule: rule,
			From: from,
			To:   to,
			Reason: fmt.Sprintf("mandatory edge %s -> %s already orders these tasks the other way",
				to, from),
		})
		e.log.Warn("global rule conflict", "rule", rule, "from", from, "to", to)
		return
	}
	inserted, err := g.AddEdge(&models.DependencyEdge{
		From:       from,
		To:         to,
		Sources:    []models.EdgeSource{models.SourceGlobalRule},
		Confidence: 1.0,
		Mandatory:  true,
		Reason:     reason,
	})
	if err != nil {
		e.log.Warn("global rule edge rejected", "rule", rule, "from", from, "to", to, "error", err)
		return
	}
	if inserted {
		res.EdgesAdded++
	}
}
