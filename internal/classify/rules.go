// Package classify assigns lifecycle phases to tasks using weighted
// keyword and pattern rules.
package classify

import (
	"fmt"
	"os"
	"regexp"
	"sort"

	"go.yaml.in/yaml/v3"

	"github.com/skeinhq/skein/pkg/models"
)

// Rules is a compiled classification rule set. Rule data is declarative
// so deployments can replace the defaults with a YAML file.
type Rules struct {
	keywordWeight float64
	patternWeight float64
	contextBoost  float64
	phases        []phaseRule
}

type phaseRule struct {
	phase    models.Phase
	weight   float64
	keywords []string
	patterns []*regexp.Regexp
}

// RulesConfig is the YAML shape of a classification rules file. Phases
// present in the file replace the built-in rule for that phase; absent
// phases keep their defaults.
type RulesConfig struct {
	// KeywordWeight is the score added per keyword hit.
	KeywordWeight float64 `yaml:"keyword_weight"`
	// PatternWeight is the score added per pattern hit.
	PatternWeight float64 `yaml:"pattern_weight"`
	// ContextBoost multiplies a phase score when project context
	// matches one of its keywords.
	ContextBoost float64           `yaml:"context_boost"`
	Phases       []PhaseRuleConfig `yaml:"phases"`
}

// PhaseRuleConfig configures matching for a single phase.
type PhaseRuleConfig struct {
	Phase    string   `yaml:"phase"`
	Weight   float64  `yaml:"weight"`
	Keywords []string `yaml:"keywords"`
	Patterns []string `yaml:"patterns"`
}

// defaultKeywords is the built-in keyword table, one entry per phase in
// canonical order.
var defaultKeywords = map[models.Phase][]string{
	models.PhaseDesign: {
		"design", "architecture", "wireframe", "mockup", "prototype",
		"api contract", "data model", "ux", "user flow", "diagram",
		"rfc", "proposal", "blueprint",
	},
	models.PhaseInfrastructure: {
		"setup", "set up", "scaffold", "infrastructure", "provision",
		"docker", "kubernetes", "terraform", "pipeline",
		"continuous integration", "continuous delivery",
		"environment", "tooling", "repository", "database setup",
	},
	models.PhaseImplementation: {
		"implement", "build", "create", "add", "develop", "code",
		"endpoint", "feature", "integrate", "service", "handler",
		"logic", "crud", "fix", "refactor",
	},
	models.PhaseTesting: {
		"test", "verify", "validate", "qa", "coverage", "regression",
		"benchmark", "assert", "unit test", "integration test", "e2e",
	},
	models.PhaseDocumentation: {
		"document", "documentation", "readme", "guide", "changelog",
		"docs", "manual", "tutorial", "api docs", "runbook",
	},
	models.PhaseDeployment: {
		"deploy", "deployment", "release", "rollout", "publish", "ship",
		"launch", "production", "go live", "cutover", "rollback",
	},
}

// defaultPatterns is the built-in regex table. Patterns score higher
// than keywords because they match more specific phrasing.
var defaultPatterns = map[models.Phase][]string{
	models.PhaseDesign: {
		`(?i)\bapi\s+contract\b`,
		`(?i)\buser\s+(flow|journey)s?\b`,
		`(?i)\bdesign\s+(doc|review|system)\b`,
	},
	models.PhaseInfrastructure: {
		`(?i)\bci/?cd\b`,
		`(?i)\bdev(elopment)?\s+environment\b`,
		`(?i)\b(configure|provision)\s+\w+\s*(cluster|server|instance)?\b`,
	},
	models.PhaseImplementation: {
		`(?i)\bimplement(ation)?\b`,
		`(?i)\bwrite\s+.*\b(code|logic|handler)\b`,
		`(?i)\bbusiness\s+logic\b`,
	},
	models.PhaseTesting: {
		`(?i)\b(unit|integration|e2e|end.to.end|regression)\s+tests?\b`,
		`(?i)\btest\s+(coverage|suite|plan)\b`,
	},
	models.PhaseDocumentation: {
		`(?i)\b(write|update|draft)\s+.*\b(docs|documentation|readme|guide)\b`,
		`(?i)\buser\s+guide\b`,
	},
	models.PhaseDeployment: {
		`(?i)\bdeploy(ment)?\b`,
		`(?i)\b(to|into|in)\s+production\b`,
		`(?i)\brelease\s+(candidate|plan|notes)?\b`,
	},
}

// DefaultRules returns the built-in rule set.
func DefaultRules() *Rules {
	r := &Rules{
		keywordWeight: 1.0,
		patternWeight: 2.0,
		contextBoost:  1.15,
	}
	for _, phase := range models.Phases {
		pr := phaseRule{phase: phase, weight: 1.0, keywords: defaultKeywords[phase]}
		for _, p := range defaultPatterns[phase] {
			pr.patterns = append(pr.patterns, regexp.MustCompile(p))
		}
		r.phases = append(r.phases, pr)
	}
	return r
}

// LoadRules reads a YAML rules file and merges it over the defaults.
func LoadRules(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}

	var cfg RulesConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}

	return compileRules(&cfg)
}

func compileRules(cfg *RulesConfig) (*Rules, error) {
	r := DefaultRules()
	if cfg.KeywordWeight > 0 {
		r.keywordWeight = cfg.KeywordWeight
	}
	if cfg.PatternWeight > 0 {
		r.patternWeight = cfg.PatternWeight
	}
	if cfg.ContextBoost > 0 {
		r.contextBoost = cfg.ContextBoost
	}

	for _, pc := range cfg.Phases {
		phase := models.Phase(pc.Phase)
		if !phase.Valid() {
			return nil, fmt.Errorf("rules file references unknown phase %q", pc.Phase)
		}

		pr := phaseRule{phase: phase, weight: 1.0, keywords: pc.Keywords}
		if pc.Weight > 0 {
			pr.weight = pc.Weight
		}
		for _, p := range pc.Patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("compile pattern %q for phase %s: %w", p, phase, err)
			}
			pr.patterns = append(pr.patterns, re)
		}

		for i := range r.phases {
			if r.phases[i].phase == phase {
				r.phases[i] = pr
				break
			}
		}
	}

	sort.Slice(r.phases, func(i, j int) bool {
		return r.phases[i].phase.Order() < r.phases[j].phase.Order()
	})

	return r, nil
}
