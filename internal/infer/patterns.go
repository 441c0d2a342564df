// Package infer proposes advisory dependency edges between task pairs that
// share no prior relationship, by running a curated pattern library and, for
// ambiguous pairs, batched external judgment.
package infer

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	yaml "go.yaml.in/yaml/v3"

	"github.com/skeinhq/skein/pkg/models"
)

// Pattern names one curated dependency shape: when one task of a pair reads
// like the dependent side and the other like the prerequisite side, an edge
// is proposed at the pattern's static confidence. Mandatory patterns encode
// safety knowledge that holds without corroboration.
type Pattern struct {
	Name       string
	Confidence float64
	Mandatory  bool

	dependentKeywords    []string
	prerequisiteKeywords []string
	dependentPatterns    []*regexp.Regexp
	prerequisitePatterns []*regexp.Regexp
}

// Match is a directed pattern hit for one pair.
type Match struct {
	Pattern    string
	From       string
	To         string
	Confidence float64
	Mandatory  bool
}

// SideConfig describes one side of a pattern in a rules file.
type SideConfig struct {
	Keywords []string `yaml:"keywords"`
	Patterns []string `yaml:"patterns"`
}

// PatternConfig is the YAML shape of one pattern.
type PatternConfig struct {
	Name         string     `yaml:"name"`
	Confidence   float64    `yaml:"confidence"`
	Mandatory    bool       `yaml:"mandatory"`
	Dependent    SideConfig `yaml:"dependent"`
	Prerequisite SideConfig `yaml:"prerequisite"`
}

// LibraryConfig is the YAML shape of a pattern file. A file replaces the
// built-in library wholesale.
type LibraryConfig struct {
	Patterns []PatternConfig `yaml:"patterns"`
}

// PatternLibrary holds the compiled pattern set.
type PatternLibrary struct {
	patterns []*Pattern
}

// DefaultLibrary compiles the built-in pattern set.
func DefaultLibrary() *PatternLibrary {
	lib, err := compileLibrary(defaultPatternConfigs())
	if err != nil {
		panic(fmt.Sprintf("built-in dependency patterns invalid: %v", err))
	}
	return lib
}

// LoadLibrary reads a pattern file and compiles it.
func LoadLibrary(path string) (*PatternLibrary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pattern file: %w", err)
	}
	var cfg LibraryConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse pattern file: %w", err)
	}
	if len(cfg.Patterns) == 0 {
		return nil, fmt.Errorf("pattern file %s defines no patterns", path)
	}
	return compileLibrary(cfg.Patterns)
}

func compileLibrary(configs []PatternConfig) (*PatternLibrary, error) {
	lib := &PatternLibrary{}
	seen := map[string]bool{}
	for _, pc := range configs {
		if pc.Name == "" {
			return nil, fmt.Errorf("pattern with empty name")
		}
		if seen[pc.Name] {
			return nil, fmt.Errorf("duplicate pattern %q", pc.Name)
		}
		seen[pc.Name] = true
		if pc.Confidence <= 0 || pc.Confidence > 1 {
			return nil, fmt.Errorf("pattern %q: confidence %v outside (0, 1]", pc.Name, pc.Confidence)
		}
		p := &Pattern{
			Name:                 pc.Name,
			Confidence:           pc.Confidence,
			Mandatory:            pc.Mandatory,
			dependentKeywords:    lowerAll(pc.Dependent.Keywords),
			prerequisiteKeywords: lowerAll(pc.Prerequisite.Keywords),
		}
		var err error
		if p.dependentPatterns, err = compileSide(pc.Name, pc.Dependent.Patterns); err != nil {
			return nil, err
		}
		if p.prerequisitePatterns, err = compileSide(pc.Name, pc.Prerequisite.Patterns); err != nil {
			return nil, err
		}
		if len(p.dependentKeywords)+len(p.dependentPatterns) == 0 {
			return nil, fmt.Errorf("pattern %q: dependent side matches nothing", pc.Name)
		}
		if len(p.prerequisiteKeywords)+len(p.prerequisitePatterns) == 0 {
			return nil, fmt.Errorf("pattern %q: prerequisite side matches nothing", pc.Name)
		}
		lib.patterns = append(lib.patterns, p)
	}
	sort.Slice(lib.patterns, func(i, j int) bool {
		return lib.patterns[i].Name < lib.patterns[j].Name
	})
	return lib, nil
}

func compileSide(name string, exprs []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, expr := range exprs {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: compile %q: %w", name, expr, err)
		}
		out = append(out, re)
	}
	return out, nil
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Len reports the number of compiled patterns.
func (lib *PatternLibrary) Len() int {
	return len(lib.patterns)
}

// Names lists pattern names in sorted order.
func (lib *PatternLibrary) Names() []string {
	out := make([]string, len(lib.patterns))
	for i, p := range lib.patterns {
		out[i] = p.Name
	}
	return out
}

// Evaluate runs every pattern against the pair in both orientations and
// returns the hits, strongest first. A pattern that matches both
// orientations cannot pick a direction and is skipped.
func (lib *PatternLibrary) Evaluate(a, b *models.Task) []Match {
	aText, bText := a.Text(), b.Text()
	var out []Match
	for _, p := range lib.patterns {
		forward := p.matchesDependent(aText) && p.matchesPrerequisite(bText)
		backward := p.matchesDependent(bText) && p.matchesPrerequisite(aText)
		switch {
		case forward && backward:
			continue
		case forward:
			out = append(out, Match{Pattern: p.Name, From: a.ID, To: b.ID,
				Confidence: p.Confidence, Mandatory: p.Mandatory})
		case backward:
			out = append(out, Match{Pattern: p.Name, From: b.ID, To: a.ID,
				Confidence: p.Confidence, Mandatory: p.Mandatory})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		if out[i].Mandatory != out[j].Mandatory {
			return out[i].Mandatory
		}
		return out[i].Pattern < out[j].Pattern
	})
	return out
}

func (p *Pattern) matchesDependent(text string) bool {
	return matchSide(text, p.dependentKeywords, p.dependentPatterns)
}

func (p *Pattern) matchesPrerequisite(text string) bool {
	return matchSide(text, p.prerequisiteKeywords, p.prerequisitePatterns)
}

func matchSide(text string, keywords []string, patterns []*regexp.Regexp) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	for _, re := range patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

func defaultPatternConfigs() []PatternConfig {
	return []PatternConfig{
		{
			Name:       "testing_before_deployment",
			Confidence: 0.95,
			Mandatory:  true,
			Dependent: SideConfig{
				Keywords: []string{"rollout", "go live", "ship to production", "production cutover"},
				Patterns: []string{`\bdeploy(s|ing|ment)?\b`, `\brelease\b`},
			},
			Prerequisite: SideConfig{
				Keywords: []string{"regression suite", "quality assurance", "end-to-end"},
				Patterns: []string{`\btest(s|ing|ed)?\b`, `\bverif(y|ies|ication)\b`, `\bqa\b`},
			},
		},
		{
			Name:       "implementation_before_testing",
			Confidence: 0.85,
			Dependent: SideConfig{
				Keywords: []string{"test coverage", "regression suite"},
				Patterns: []string{`\btest(s|ing)?\b`, `\bqa\b`},
			},
			Prerequisite: SideConfig{
				Keywords: []string{"develop the", "code the"},
				Patterns: []string{`\bimplement(s|ing|ation)?\b`, `\bbuild\b`},
			},
		},
		{
			Name:       "design_before_implementation",
			Confidence: 0.85,
			Dependent: SideConfig{
				Keywords: []string{"build out"},
				Patterns: []string{`\bimplement(s|ing|ation)?\b`},
			},
			Prerequisite: SideConfig{
				Keywords: []string{"architecture", "api contract", "wireframe", "spec out"},
				Patterns: []string{`\bdesign\b`, `\barchitect`},
			},
		},
		{
			Name:       "schema_before_api",
			Confidence: 0.8,
			Dependent: SideConfig{
				Keywords: []string{"rest api", "graphql", "api route", "http handler"},
				Patterns: []string{`\bendpoints?\b`, `\bapi\b`},
			},
			Prerequisite: SideConfig{
				Keywords: []string{"data model", "database table"},
				Patterns: []string{`\bschemas?\b`, `\bmigrat(e|ion|ions)\b`},
			},
		},
		{
			Name:       "api_before_ui",
			Confidence: 0.75,
			Dependent: SideConfig{
				Keywords: []string{"frontend", "user interface", "screen", "web page", "form component"},
				Patterns: []string{`\bui\b`},
			},
			Prerequisite: SideConfig{
				Keywords: []string{"rest api", "backend"},
				Patterns: []string{`\bendpoints?\b`, `\bapi\b`},
			},
		},
		{
			Name:       "infrastructure_before_deployment",
			Confidence: 0.8,
			Dependent: SideConfig{
				Keywords: []string{"rollout", "go live", "ship to production"},
				Patterns: []string{`\bdeploy(s|ing|ment)?\b`},
			},
			Prerequisite: SideConfig{
				Keywords: []string{"provision", "terraform", "kubernetes", "cluster", "docker", "environment setup"},
				Patterns: []string{`\binfra(structure)?\b`, `\bci/?cd\b`},
			},
		},
		{
			Name:       "auth_before_protected_features",
			Confidence: 0.7,
			Dependent: SideConfig{
				Keywords: []string{"logged-in", "authenticated user", "user profile", "account settings", "permission check"},
			},
			Prerequisite: SideConfig{
				Keywords: []string{"authentication", "login flow", "signup", "oauth", "session management"},
				Patterns: []string{`\bauth\b`},
			},
		},
	}
}
