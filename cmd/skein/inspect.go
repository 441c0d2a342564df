package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skeinhq/skein/internal/engine"
	"github.com/skeinhq/skein/internal/rules"
	"github.com/skeinhq/skein/internal/tui"
	"github.com/skeinhq/skein/internal/validation"
)

var (
	inspectProject     string
	inspectMode        string
	inspectEnforcement string
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <tasks.yaml>",
	Short: "Browse the dependency graph interactively",
	Long: `Run the full pipeline on a task file and open the published graph in
an interactive terminal view. Tasks are grouped by lifecycle phase with
per-edge origins, validation findings, and the critical path.

Navigation: j/k move, enter shows task details, space folds a phase,
/ filters, q quits.`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	inspectCmd.Flags().StringVar(&inspectProject, "project", "", "Project identifier (defaults to the task file name)")
	inspectCmd.Flags().StringVar(&inspectMode, "mode", "", "Validation mode: strict or structural")
	inspectCmd.Flags().StringVar(&inspectEnforcement, "enforcement", "", "Phase rule enforcement: full or adjacent")
}

func runInspect(cmd *cobra.Command, args []string) error {
	spec, err := loadTaskFile(args[0])
	if err != nil {
		return err
	}

	mode, err := validation.ParseMode(inspectMode)
	if err != nil {
		return err
	}
	enforcement, err := rules.ParseEnforcementMode(inspectEnforcement)
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

	projectID := resolveProjectID(inspectProject, spec.Project, args[0])
	if _, err := eng.RunPipeline(ctx, engine.PipelineRequest{
		ProjectID:   projectID,
		Tasks:       spec.toTasks(),
		Project:     spec.toContext(),
		Enforcement: enforcement,
		Mode:        mode,
	}); err != nil {
		return fmt.Errorf("run pipeline: %w", err)
	}

	view, err := eng.GraphView(projectID)
	if err != nil {
		return fmt.Errorf("build graph view: %w", err)
	}
	return tui.Run(view)
}
