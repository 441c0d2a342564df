// Package engine wires the dependency pipeline together: task
// classification, phase and global ordering rules, hybrid inference,
// validation, and the published per-project snapshots the query operations
// read from.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/skeinhq/skein/internal/cache"
	"github.com/skeinhq/skein/internal/classify"
	"github.com/skeinhq/skein/internal/config"
	"github.com/skeinhq/skein/internal/eligibility"
	"github.com/skeinhq/skein/internal/graph"
	"github.com/skeinhq/skein/internal/infer"
	"github.com/skeinhq/skein/internal/logging"
	"github.com/skeinhq/skein/internal/notify"
	"github.com/skeinhq/skein/internal/reason"
	"github.com/skeinhq/skein/internal/rules"
	"github.com/skeinhq/skein/internal/validation"
	"github.com/skeinhq/skein/pkg/models"
)

// Options bundles the engine's collaborators. Nil fields fall back to
// pattern-only or in-memory behavior so callers wire only what they need.
type Options struct {
	Classifier *classify.Classifier
	Global     *rules.GlobalEngine
	Inferer    *infer.Inferer
	Sessions   *SessionStore
	Notifier   *notify.Notifier
	Log        *logging.Logger
}

// ErrProjectNotFound reports a graph query for a project that has never had
// a pipeline run published.
var ErrProjectNotFound = errors.New("no published graph for project")

// Engine runs the dependency pipeline and serves graph queries.
type Engine struct {
	classifier *classify.Classifier
	global     *rules.GlobalEngine
	inferer    *infer.Inferer
	sessions   *SessionStore
	notifier   *notify.Notifier
	checker    *eligibility.Checker
	snapshots  *snapshotRegistry
	store      cache.Store
	watcher    *classify.Watcher
	log        *logging.Logger
}

// New assembles an engine from explicit collaborators.
func New(opts Options) *Engine {
	log := opts.Log
	if log == nil {
		log = logging.Nop()
	}
	if opts.Classifier == nil {
		opts.Classifier = classify.New(classify.DefaultRules(), 0.5, log)
	}
	if opts.Global == nil {
		opts.Global = rules.NewGlobalEngine(log)
	}
	if opts.Inferer == nil {
		opts.Inferer = infer.New(infer.DefaultLibrary(), nil, nil, infer.Options{}, log)
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.New("", 0, log)
	}
	return &Engine{
		classifier: opts.Classifier,
		global:     opts.Global,
		inferer:    opts.Inferer,
		sessions:   opts.Sessions,
		notifier:   opts.Notifier,
		checker:    eligibility.NewChecker(log),
		snapshots:  newSnapshotRegistry(),
		log:        log.WithComponent("engine"),
	}
}

// FromConfig assembles a fully wired engine: classifier rules, the pattern
// library, the judgment cache, the external reasoning judge, session
// persistence, and the violation webhook. A missing API key degrades the
// inference pass to pattern-only instead of failing startup.
func FromConfig(cfg *config.Config, log *logging.Logger) (*Engine, error) {
	if log == nil {
		log = logging.Nop()
	}

	classifierRules := classify.DefaultRules()
	if cfg.Classifier.RulesFile != "" {
		loaded, err := classify.LoadRules(cfg.Classifier.RulesFile)
		if err != nil {
			return nil, fmt.Errorf("load classifier rules: %w", err)
		}
		classifierRules = loaded
	}
	classifier := classify.New(classifierRules, cfg.Classifier.ReviewThreshold, log)

	var watcher *classify.Watcher
	if cfg.Classifier.WatchRules && cfg.Classifier.RulesFile != "" {
		w, err := classify.WatchRules(cfg.Classifier.RulesFile, classifier.SetRules, log)
		if err != nil {
			return nil, fmt.Errorf("watch classifier rules: %w", err)
		}
		watcher = w
	}

	lib := infer.DefaultLibrary()
	if cfg.Inference.PatternsFile != "" {
		loaded, err := infer.LoadLibrary(cfg.Inference.PatternsFile)
		if err != nil {
			return nil, fmt.Errorf("load pattern library: %w", err)
		}
		lib = loaded
	}

	store, err := cache.Open(cfg.Cache.Backend, cfg.Cache.Path)
	if err != nil {
		return nil, fmt.Errorf("open judgment cache: %w", err)
	}

	var judge reason.Judge
	if cfg.Inference.Enabled {
		client, err := reason.NewClient(reason.ClientConfig{
			Model:         cfg.Anthropic.Model,
			APIKey:        cfg.Anthropic.APIKey,
			UseAWSBedrock: cfg.Anthropic.UseAWSBedrock,
			AWSRegion:     cfg.Anthropic.AWSRegion,
			AWSProfile:    cfg.Anthropic.AWSProfile,
		})
		if err != nil {
			log.Warn("external reasoning unavailable, inference degrades to pattern-only", "error", err)
		} else {
			judge = reason.NewAnthropicJudge(client, int64(cfg.Anthropic.MaxTokens), log)
		}
	}

	inferer := infer.New(lib, judge, store, infer.Options{
		Enabled:           cfg.Inference.Enabled,
		BatchSize:         cfg.Inference.BatchSize,
		Concurrency:       cfg.Inference.Concurrency,
		BatchTimeout:      cfg.Inference.BatchTimeout,
		AcceptThreshold:   cfg.Inference.AcceptThreshold,
		PatternThreshold:  cfg.Inference.PatternThreshold,
		AgreementBonus:    cfg.Inference.AgreementBonus,
		MinSharedKeywords: cfg.Inference.MinSharedKeywords,
		TTL:               cfg.Cache.TTL,
	}, log)

	sessions, err := NewSessionStore(cfg.Sessions.ResolvePath())
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	if cfg.Sessions.MaxAge > 0 {
		if purged, err := sessions.Purge(cfg.Sessions.MaxAge); err != nil {
			log.Warn("session purge failed", "error", err)
		} else if purged > 0 {
			log.Info("stale validation sessions purged", "count", purged)
		}
	}

	e := New(Options{
		Classifier: classifier,
		Global:     rules.NewGlobalEngine(log),
		Inferer:    inferer,
		Sessions:   sessions,
		Notifier:   notify.New(cfg.Webhook.URL, cfg.Webhook.Timeout, log),
		Log:        log,
	})
	e.store = store
	e.watcher = watcher
	return e, nil
}

// Close releases the engine's stores and waits for in-flight webhook
// deliveries.
func (e *Engine) Close() error {
	e.notifier.Close()
	if e.watcher != nil {
		e.watcher.Close()
	}
	var firstErr error
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			firstErr = err
		}
	}
	if e.sessions != nil {
		if err := e.sessions.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// PipelineRequest configures one full pipeline run.
type PipelineRequest struct {
	ProjectID   string
	Tasks       []*models.Task
	Project     *models.ProjectContext
	Enforcement rules.EnforcementMode
	GlobalRules []string
	Mode        validation.Mode
}

// PipelineReport is the outcome of one pipeline run.
type PipelineReport struct {
	ProjectID       string                    `json:"project_id,omitempty"`
	Tasks           []*models.Task            `json:"tasks"`
	Classifications []classify.Classification `json:"classifications,omitempty"`
	Phase           *rules.PhaseResult        `json:"phase,omitempty"`
	Global          *rules.GlobalResult       `json:"global,omitempty"`
	Inference       *infer.Result             `json:"inference,omitempty"`
	Validation      *validation.Result        `json:"validation"`
	ValidationID    string                    `json:"validation_id,omitempty"`
	DurationMS      int64                     `json:"duration_ms"`
}

// RunPipeline executes the full analysis: classify unphased tasks, enforce
// phase ordering per feature group, apply global rules, infer advisory
// edges, then validate. With a project id the resulting graph is published
// as the project's query snapshot whether or not validation passed; the
// validation result travels with it.
func (e *Engine) RunPipeline(ctx context.Context, req PipelineRequest) (*PipelineReport, error) {
	start := time.Now()

	work := models.CloneTasks(req.Tasks)
	classifications := e.classifier.Apply(work, req.Project)

	g, err := graph.Build(work)
	if err != nil {
		return nil, err
	}

	phase, err := rules.NewPhaseEnforcer(req.Enforcement, e.log).Apply(g)
	if err != nil {
		return nil, err
	}
	global, err := e.global.Apply(g, req.GlobalRules)
	if err != nil {
		return nil, err
	}
	inference, err := e.inferer.Infer(ctx, g)
	if err != nil {
		return nil, err
	}
	g.SyncTasks()

	res := validation.New(req.Mode, e.log).Validate(g)
	attachRuleConflicts(res, global)
	if inference.Degraded {
		res.AddWarning(validation.Warning{
			Type:    validation.WarnDegradedInference,
			Message: "external reasoning was unavailable for part of the run, advisory edges come from patterns only",
		})
	}

	report := &PipelineReport{
		ProjectID:       req.ProjectID,
		Tasks:           models.CloneTasks(g.Tasks()),
		Classifications: classifications,
		Phase:           phase,
		Global:          global,
		Inference:       inference,
		Validation:      res,
	}

	if e.sessions != nil {
		session, err := e.sessions.Create(req.ProjectID, res.Mode, g, res)
		if err != nil {
			e.log.Warn("session create failed", "project_id", req.ProjectID, "error", err)
		} else {
			report.ValidationID = session.ID
		}
	}

	if req.ProjectID != "" {
		e.snapshots.publish(&Snapshot{
			ProjectID:    req.ProjectID,
			Graph:        g,
			Result:       res,
			ValidationID: report.ValidationID,
			PublishedAt:  time.Now().UTC(),
		})
	}

	report.DurationMS = time.Since(start).Milliseconds()
	e.log.Info("pipeline run complete",
		"project_id", req.ProjectID,
		"tasks", len(report.Tasks),
		"valid", res.IsValid,
		"duration_ms", report.DurationMS,
	)
	return report, nil
}

// Identify classifies a single task.
func (e *Engine) Identify(task *models.Task, pctx *models.ProjectContext) classify.Classification {
	return e.classifier.Classify(task, pctx)
}

// IdentifyBatch classifies many tasks in one call.
func (e *Engine) IdentifyBatch(tasks []*models.Task, pctx *models.ProjectContext) classify.BatchResult {
	return e.classifier.ClassifyBatch(tasks, pctx)
}

// ValidateTasks builds a graph from the given tasks as declared and
// validates it, storing a session so fixes can be applied later.
func (e *Engine) ValidateTasks(projectID string, tasks []*models.Task, mode validation.Mode) (*validation.Result, string, error) {
	g, err := graph.Build(models.CloneTasks(tasks))
	if err != nil {
		return nil, "", err
	}
	res := validation.New(mode, e.log).Validate(g)

	validationID := ""
	if e.sessions != nil {
		session, err := e.sessions.Create(projectID, res.Mode, g, res)
		if err != nil {
			e.log.Warn("session create failed", "project_id", projectID, "error", err)
		} else {
			validationID = session.ID
		}
	}
	return res, validationID, nil
}

// AutoFix loads a stored validation session, applies the selected fixes, and
// revalidates. Without dry-run the updated graph and result replace the
// stored session.
func (e *Engine) AutoFix(validationID string, fixIDs []string, dryRun bool) (*validation.AutoFixResult, error) {
	if e.sessions == nil {
		return nil, fmt.Errorf("validation sessions are not configured")
	}
	session, err := e.sessions.Get(validationID)
	if err != nil {
		return nil, err
	}
	g, err := session.Graph()
	if err != nil {
		return nil, err
	}

	out, err := validation.New(session.Mode, e.log).AutoFix(g, session.Result, fixIDs, dryRun)
	if err != nil {
		return nil, err
	}

	if !dryRun {
		session.Tasks = models.CloneTasks(g.Tasks())
		session.Edges = g.Edges()
		session.Result = out.Revalidation
		if err := e.sessions.Update(session); err != nil {
			e.log.Warn("session update failed", "validation_id", validationID, "error", err)
		}
	}
	return out, nil
}

// ApplyPhaseRules inserts phase ordering edges for one task set and returns
// the updated tasks alongside the enforcement report.
func (e *Engine) ApplyPhaseRules(tasks []*models.Task, mode rules.EnforcementMode) ([]*models.Task, *rules.PhaseResult, error) {
	g, err := graph.Build(models.CloneTasks(tasks))
	if err != nil {
		return nil, nil, err
	}
	result, err := rules.NewPhaseEnforcer(mode, e.log).Apply(g)
	if err != nil {
		return nil, nil, err
	}
	g.SyncTasks()
	return models.CloneTasks(g.Tasks()), result, nil
}

// ApplyGlobalRules applies the named project-wide rules and returns the
// updated tasks alongside the rule report.
func (e *Engine) ApplyGlobalRules(tasks []*models.Task, ruleNames []string) ([]*models.Task, *rules.GlobalResult, error) {
	g, err := graph.Build(models.CloneTasks(tasks))
	if err != nil {
		return nil, nil, err
	}
	result, err := e.global.Apply(g, ruleNames)
	if err != nil {
		return nil, nil, err
	}
	g.SyncTasks()
	return models.CloneTasks(g.Tasks()), result, nil
}

// GraphIssue is one validation finding rendered into a graph view.
type GraphIssue struct {
	Severity string `json:"severity"`
	Type     string `json:"type"`
	TaskID   string `json:"task_id,omitempty"`
	Message  string `json:"message"`
}

// GraphView is the published graph of a project in wire form.
type GraphView struct {
	ProjectID    string                   `json:"project_id"`
	Nodes        []*models.Task           `json:"nodes"`
	Edges        []*models.DependencyEdge `json:"edges"`
	Statistics   validation.Statistics    `json:"statistics"`
	CriticalPath []string                 `json:"critical_path,omitempty"`
	Issues       []GraphIssue             `json:"issues,omitempty"`
	ValidationID string                   `json:"validation_id,omitempty"`
	PublishedAt  time.Time                `json:"published_at"`
}

// GraphView renders the published snapshot of a project.
func (e *Engine) GraphView(projectID string) (*GraphView, error) {
	snap := e.snapshots.get(projectID)
	if snap == nil {
		return nil, fmt.Errorf("%w %s", ErrProjectNotFound, projectID)
	}

	view := &GraphView{
		ProjectID:    snap.ProjectID,
		Nodes:        models.CloneTasks(snap.Graph.Tasks()),
		Edges:        snap.Graph.Edges(),
		Statistics:   snap.Result.Statistics,
		CriticalPath: snap.Result.CriticalPath,
		ValidationID: snap.ValidationID,
		PublishedAt:  snap.PublishedAt,
	}
	for _, err := range snap.Result.Errors {
		view.Issues = append(view.Issues, GraphIssue{
			Severity: string(err.Severity),
			Type:     string(err.Type),
			TaskID:   err.TaskID,
			Message:  err.Message,
		})
	}
	for _, w := range snap.Result.Warnings {
		view.Issues = append(view.Issues, GraphIssue{
			Severity: string(validation.SeverityWarning),
			Type:     w.Type,
			TaskID:   w.TaskID,
			Message:  w.Message,
		})
	}
	return view, nil
}

// Projects lists the project ids with a published snapshot.
func (e *Engine) Projects() []string {
	return e.snapshots.projects()
}

// EligibilityRequest asks whether an agent may start a task.
type EligibilityRequest struct {
	ProjectID string
	AgentID   string
	TaskID    string
	Tasks     []*models.Task
	Completed []string
	Assigned  []string
}

// CheckEligibility answers a readiness query. With a project id the check
// runs against the published snapshot, otherwise against a graph built from
// the caller-supplied tasks. A task that is assigned despite incomplete
// dependencies additionally fires the dependency violation webhook.
func (e *Engine) CheckEligibility(ctx context.Context, req EligibilityRequest) (*eligibility.Decision, error) {
	var g *graph.Graph
	if req.ProjectID != "" {
		snap := e.snapshots.get(req.ProjectID)
		if snap == nil {
			return nil, fmt.Errorf("%w %s", ErrProjectNotFound, req.ProjectID)
		}
		g = snap.Graph
	} else {
		var err error
		g, err = graph.Build(models.CloneTasks(req.Tasks))
		if err != nil {
			return nil, err
		}
	}

	d, err := e.checker.Check(g, req.AgentID, req.TaskID, req.Completed, req.Assigned)
	if err != nil {
		return nil, err
	}

	if len(d.BlockingTasks) > 0 && containsID(req.Assigned, req.TaskID) {
		e.notifier.Dispatch(notify.Violation{
			ProjectID:     req.ProjectID,
			AgentID:       req.AgentID,
			TaskID:        req.TaskID,
			BlockingTasks: d.BlockingTasks,
			Message:       "task assigned while dependencies are incomplete",
		})
	}
	return d, nil
}

func attachRuleConflicts(res *validation.Result, global *rules.GlobalResult) {
	for _, c := range global.Conflicts {
		res.AddError(validation.Error{
			TaskID:     c.From,
			Type:       validation.DependencyConflict,
			Severity:   validation.SeverityError,
			Message:    fmt.Sprintf("global rule %s skipped: %s", c.Rule, c.Reason),
			RelatedIDs: []string{c.From, c.To},
		})
	}
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
