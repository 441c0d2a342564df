package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/skeinhq/skein/internal/engine"
	"github.com/skeinhq/skein/internal/rules"
	"github.com/skeinhq/skein/internal/validation"
	"github.com/skeinhq/skein/pkg/models"
)

var (
	analyzeProject     string
	analyzeMode        string
	analyzeEnforcement string
	analyzeRules       []string
	analyzeJSON        bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <tasks.yaml>",
	Short: "Run the full dependency pipeline on a task file",
	Long: `Classify tasks, apply phase and global rules, infer cross-feature
dependencies, and validate the resulting graph.

The task file is YAML:

  project: checkout
  context:
    tech_stack: [go, postgres]
    domain: e-commerce
  tasks:
    - id: design-001
      name: Design checkout flow
      feature_group: checkout
    - id: impl-001
      name: Implement checkout API
      feature_group: checkout
      depends_on: [design-001]

Tasks without a phase are classified automatically. The published graph
stays available to 'skein inspect' and the eligibility endpoints for the
lifetime of the process; analyze is a one-shot report.

Examples:
  skein analyze tasks.yaml
  skein analyze tasks.yaml --project checkout --enforcement adjacent
  skein analyze tasks.yaml --mode structural --json`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeProject, "project", "", "Project identifier (defaults to the task file name)")
	analyzeCmd.Flags().StringVar(&analyzeMode, "mode", "", "Validation mode: strict or structural")
	analyzeCmd.Flags().StringVar(&analyzeEnforcement, "enforcement", "", "Phase rule enforcement: full or adjacent")
	analyzeCmd.Flags().StringSliceVar(&analyzeRules, "global-rule", nil, "Global rules to apply (default: all)")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "Print the raw pipeline report as JSON")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	spec, err := loadTaskFile(args[0])
	if err != nil {
		return err
	}

	mode, err := validation.ParseMode(analyzeMode)
	if err != nil {
		return err
	}
	enforcement, err := rules.ParseEnforcementMode(analyzeEnforcement)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log, err := cliLogger(cfg)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer log.Close()

	eng, err := engine.FromConfig(cfg, log)
	if err != nil {
		return fmt.Errorf("assemble engine: %w", err)
	}
	defer eng.Close()

	ctx, cancel := signalContext()
	defer cancel()

	report, err := eng.RunPipeline(ctx, engine.PipelineRequest{
		ProjectID:   resolveProjectID(analyzeProject, spec.Project, args[0]),
		Tasks:       spec.toTasks(),
		Project:     spec.toContext(),
		Enforcement: enforcement,
		GlobalRules: analyzeRules,
		Mode:        mode,
	})
	if err != nil {
		return fmt.Errorf("run pipeline: %w", err)
	}

	if analyzeJSON {
		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("encode report: %w", err)
		}
		fmt.Println(string(out))
	} else {
		printReport(report)
	}

	if !report.Validation.IsValid {
		return fmt.Errorf("dependency graph is invalid: %d errors", len(report.Validation.Errors))
	}
	return nil
}

// printReport renders the pipeline report for the terminal.
func printReport(rep *engine.PipelineReport) {
	if rep.Validation.IsValid {
		fmt.Printf("%s Dependency graph is valid\n\n", color.GreenString("✓"))
	} else {
		fmt.Printf("%s Dependency graph is invalid\n\n", color.RedString("✗"))
	}

	st := rep.Validation.Statistics
	fmt.Printf("Tasks: %d  Edges: %d (%d mandatory, %d advisory)\n",
		st.TotalTasks, st.TotalEdges, st.MandatoryEdges, st.AdvisoryEdges)
	fmt.Printf("Roots: %d  Leaves: %d  Isolated: %d  Longest chain: %d\n",
		st.RootTasks, st.LeafTasks, st.IsolatedTasks, st.LongestChain)

	if n := len(rep.Classifications); n > 0 {
		review := 0
		for _, c := range rep.Classifications {
			if c.NeedsReview {
				review++
			}
		}
		line := fmt.Sprintf("Classified: %d tasks", n)
		if review > 0 {
			line += fmt.Sprintf(" (%s)", color.YellowString("%d need review", review))
		}
		fmt.Println(line)
	}
	if rep.Phase != nil {
		fmt.Printf("Phase rules: %d dependencies added across %d feature groups\n",
			rep.Phase.EdgesAdded, len(rep.Phase.Features))
	}
	if rep.Global != nil {
		line := fmt.Sprintf("Global rules: %d added, %d removed", rep.Global.EdgesAdded, rep.Global.EdgesRemoved)
		if n := len(rep.Global.Conflicts); n > 0 {
			line += fmt.Sprintf(", %s", color.RedString("%d conflicts", n))
		}
		fmt.Println(line)
	}
	if inf := rep.Inference; inf != nil {
		line := fmt.Sprintf("Inference: %d pairs evaluated, %d pattern edges, %d reasoned edges, %d cache hits",
			inf.PairsEvaluated, inf.PatternEdges, inf.AIEdges, inf.CacheHits)
		if inf.Degraded {
			line += " " + color.YellowString("(degraded to pattern-only)")
		}
		fmt.Println(line)
	}

	if len(rep.Validation.Errors) > 0 {
		fmt.Println()
		fmt.Println("Errors:")
		for _, e := range rep.Validation.Errors {
			fmt.Printf("  %s [%s] %s\n", color.RedString("✗"), e.Type, e.Message)
			if e.Fix != nil {
				fmt.Printf("      fix %s: %s\n", e.Fix.ID, e.Fix.Description)
			}
		}
	}
	if len(rep.Validation.Warnings) > 0 {
		fmt.Println()
		fmt.Println("Warnings:")
		for _, w := range rep.Validation.Warnings {
			fmt.Printf("  %s [%s] %s\n", color.YellowString("⚠"), w.Type, w.Message)
		}
	}

	if len(rep.Validation.ExecutionOrder) > 0 {
		fmt.Println()
		fmt.Printf("Execution order: %s\n", strings.Join(rep.Validation.ExecutionOrder, " -> "))
	}
	if len(rep.Validation.CriticalPath) > 0 {
		fmt.Printf("Critical path:   %s", strings.Join(rep.Validation.CriticalPath, " -> "))
		if st.CriticalPathHours > 0 {
			fmt.Printf(" (%.1fh)", st.CriticalPathHours)
		}
		fmt.Println()
	}
	if rep.ValidationID != "" {
		fmt.Printf("\nValidation session: %s\n", rep.ValidationID)
	}
	fmt.Printf("Completed in %dms\n", rep.DurationMS)
}

// taskFile is the YAML task list accepted by analyze and inspect.
type taskFile struct {
	Project string       `yaml:"project"`
	Context *contextSpec `yaml:"context"`
	Tasks   []taskSpec   `yaml:"tasks"`
}

type contextSpec struct {
	TechStack []string `yaml:"tech_stack"`
	Domain    string   `yaml:"domain"`
}

type taskSpec struct {
	ID            string   `yaml:"id"`
	Name          string   `yaml:"name"`
	Description   string   `yaml:"description"`
	Labels        []string `yaml:"labels"`
	Phase         string   `yaml:"phase"`
	FeatureGroup  string   `yaml:"feature_group"`
	DependsOn     []string `yaml:"depends_on"`
	EstimateHours float64  `yaml:"estimate_hours"`
}

// loadTaskFile reads and checks a YAML task file.
func loadTaskFile(path string) (*taskFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read task file: %w", err)
	}

	var spec taskFile
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parse task file: %w", err)
	}
	if len(spec.Tasks) == 0 {
		return nil, fmt.Errorf("task file %s contains no tasks", path)
	}

	seen := make(map[string]bool, len(spec.Tasks))
	for i, t := range spec.Tasks {
		if t.ID == "" {
			return nil, fmt.Errorf("task %d has no id", i)
		}
		if seen[t.ID] {
			return nil, fmt.Errorf("duplicate task id %s", t.ID)
		}
		seen[t.ID] = true
		if t.Name == "" && t.Description == "" {
			return nil, fmt.Errorf("task %s has no name or description", t.ID)
		}
		if t.Phase != "" && !models.Phase(t.Phase).Valid() {
			return nil, fmt.Errorf("task %s has unknown phase %q", t.ID, t.Phase)
		}
	}
	return &spec, nil
}

func (f *taskFile) toTasks() []*models.Task {
	tasks := make([]*models.Task, len(f.Tasks))
	for i, t := range f.Tasks {
		task := &models.Task{
			ID:            t.ID,
			Name:          t.Name,
			Description:   t.Description,
			Labels:        t.Labels,
			Phase:         models.Phase(t.Phase),
			FeatureGroup:  t.FeatureGroup,
			EstimateHours: t.EstimateHours,
		}
		task.SetDependencies(t.DependsOn)
		tasks[i] = task
	}
	return tasks
}

func (f *taskFile) toContext() *models.ProjectContext {
	if f.Context == nil {
		return nil
	}
	return &models.ProjectContext{
		TechStack: f.Context.TechStack,
		Domain:    f.Context.Domain,
	}
}

// resolveProjectID picks the project identifier: the flag wins, then the
// task file's project field, then the file name without its extension.
func resolveProjectID(flag, fromFile, path string) string {
	if flag != "" {
		return flag
	}
	if fromFile != "" {
		return fromFile
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx, cancel
}
