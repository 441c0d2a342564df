package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/skeinhq/skein/internal/eligibility"
	"github.com/skeinhq/skein/internal/notify"
	"github.com/skeinhq/skein/internal/rules"
	"github.com/skeinhq/skein/internal/validation"
	"github.com/skeinhq/skein/pkg/models"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	store, err := NewSessionStore(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("NewSessionStore() error = %v", err)
	}
	e := New(Options{Sessions: store})
	t.Cleanup(func() { e.Close() })
	return e
}

// pipelineTasks is one feature group plus project-wide documentation and
// deployment work, phases already set so classification passes through.
func pipelineTasks() []*models.Task {
	return []*models.Task{
		{ID: "design-001", Name: "Design checkout flow", Phase: models.PhaseDesign, FeatureGroup: "checkout"},
		{ID: "impl-001", Name: "Implement checkout flow", Phase: models.PhaseImplementation, FeatureGroup: "checkout"},
		{ID: "test-001", Name: "Test checkout flow", Phase: models.PhaseTesting, FeatureGroup: "checkout"},
		{ID: "doc-001", Name: "Write checkout runbook", Phase: models.PhaseDocumentation},
		{ID: "deploy-001", Name: "Deploy checkout service", Phase: models.PhaseDeployment},
	}
}

func billingTasks() []*models.Task {
	return []*models.Task{
		{ID: "impl-001", Name: "Implement invoice engine", Phase: models.PhaseImplementation, FeatureGroup: "billing"},
		{ID: "impl-002", Name: "Build payment gateway client", Phase: models.PhaseImplementation, FeatureGroup: "billing"},
		{ID: "test-001", Name: "Test the invoice engine", Phase: models.PhaseTesting, FeatureGroup: "billing"},
	}
}

func TestRunPipelinePublishesSnapshot(t *testing.T) {
	e := newTestEngine(t)
	tasks := pipelineTasks()

	report, err := e.RunPipeline(context.Background(), PipelineRequest{
		ProjectID:   "proj-1",
		Tasks:       tasks,
		Enforcement: rules.EnforceFull,
		Mode:        validation.ModeStrict,
	})
	if err != nil {
		t.Fatalf("RunPipeline() error = %v", err)
	}

	if report.Phase.EdgesAdded != 3 {
		t.Errorf("phase edges = %d, want 3", report.Phase.EdgesAdded)
	}
	if report.Global.EdgesAdded != 4 {
		t.Errorf("global edges = %d, want 4", report.Global.EdgesAdded)
	}
	if report.Inference.PairsEvaluated != 0 {
		t.Errorf("inference evaluated %d pairs, want 0 on a fully ordered graph", report.Inference.PairsEvaluated)
	}
	if !report.Validation.IsValid {
		t.Errorf("validation failed: %+v", report.Validation.Errors)
	}
	if report.ValidationID == "" {
		t.Error("report has no validation id")
	}
	if len(report.Classifications) != len(tasks) {
		t.Fatalf("got %d classifications, want %d", len(report.Classifications), len(tasks))
	}
	if report.Classifications[0].Reason != "phase provided by caller" {
		t.Errorf("classification reason = %q, want pass-through", report.Classifications[0].Reason)
	}

	var doc *models.Task
	for _, task := range report.Tasks {
		if task.ID == "doc-001" {
			doc = task
		}
	}
	if doc == nil {
		t.Fatal("doc-001 missing from report tasks")
	}
	if want := []string{"design-001", "impl-001", "test-001"}; !reflect.DeepEqual(doc.DependsOn, want) {
		t.Errorf("doc-001 DependsOn = %v, want %v", doc.DependsOn, want)
	}
	if tasks[3].DependsOn != nil {
		t.Errorf("input task mutated: doc-001 DependsOn = %v", tasks[3].DependsOn)
	}

	view, err := e.GraphView("proj-1")
	if err != nil {
		t.Fatalf("GraphView() error = %v", err)
	}
	if len(view.Nodes) != 5 || len(view.Edges) != 7 {
		t.Errorf("view has %d nodes and %d edges, want 5 and 7", len(view.Nodes), len(view.Edges))
	}
	if view.Statistics.MandatoryEdges != 7 {
		t.Errorf("MandatoryEdges = %d, want 7", view.Statistics.MandatoryEdges)
	}
	wantPath := []string{"design-001", "impl-001", "test-001", "doc-001", "deploy-001"}
	if !reflect.DeepEqual(view.CriticalPath, wantPath) {
		t.Errorf("CriticalPath = %v, want %v", view.CriticalPath, wantPath)
	}
	if view.ValidationID != report.ValidationID {
		t.Errorf("view validation id = %q, want %q", view.ValidationID, report.ValidationID)
	}
	if len(view.Issues) != 0 {
		t.Errorf("unexpected issues: %+v", view.Issues)
	}
}

func TestRunPipelineReportsCycle(t *testing.T) {
	e := newTestEngine(t)
	tasks := []*models.Task{
		{ID: "task-a", Name: "Wire importer", Phase: models.PhaseImplementation, DependsOn: []string{"task-b"}},
		{ID: "task-b", Name: "Wire exporter", Phase: models.PhaseImplementation, DependsOn: []string{"task-a"}},
	}

	report, err := e.RunPipeline(context.Background(), PipelineRequest{
		ProjectID: "proj-cycle",
		Tasks:     tasks,
		Mode:      validation.ModeStrict,
	})
	if err != nil {
		t.Fatalf("RunPipeline() error = %v", err)
	}
	if report.Validation.IsValid {
		t.Error("cyclic graph validated as clean")
	}
	found := false
	for _, verr := range report.Validation.Errors {
		if verr.Type == validation.CircularDependency {
			found = true
		}
	}
	if !found {
		t.Errorf("no circular_dependency error in %+v", report.Validation.Errors)
	}
	if len(report.Validation.ExecutionOrder) != 0 {
		t.Errorf("cyclic graph has execution order %v", report.Validation.ExecutionOrder)
	}

	view, err := e.GraphView("proj-cycle")
	if err != nil {
		t.Fatalf("GraphView() after failed validation error = %v", err)
	}
	if len(view.Issues) == 0 {
		t.Fatal("published view carries no issues")
	}
	if view.Issues[0].Type != string(validation.CircularDependency) {
		t.Errorf("issue type = %q, want circular_dependency", view.Issues[0].Type)
	}
}

func TestValidateTasksAutoFixRoundTrip(t *testing.T) {
	e := newTestEngine(t)

	res, id, err := e.ValidateTasks("proj-1", billingTasks(), validation.ModeStrict)
	if err != nil {
		t.Fatalf("ValidateTasks() error = %v", err)
	}
	if res.IsValid {
		t.Fatal("expected a missing dependency finding")
	}
	if id == "" {
		t.Fatal("no validation id returned")
	}

	out, err := e.AutoFix(id, []string{"fix-1"}, false)
	if err != nil {
		t.Fatalf("AutoFix() error = %v", err)
	}
	if len(out.FixesApplied) != 1 || !out.FixesApplied[0].Applied {
		t.Fatalf("FixesApplied = %+v, want fix-1 applied", out.FixesApplied)
	}
	if !out.IsValidAfterFix {
		t.Errorf("graph still invalid after fix: %+v", out.Revalidation.Errors)
	}

	// The stored session now holds the fixed graph, so the fix is consumed.
	again, err := e.AutoFix(id, []string{"fix-1"}, false)
	if err != nil {
		t.Fatalf("second AutoFix() error = %v", err)
	}
	if again.FixesApplied[0].Applied {
		t.Error("fix-1 applied twice")
	}
	if !strings.Contains(again.FixesApplied[0].Detail, "no such fix") {
		t.Errorf("Detail = %q, want no such fix", again.FixesApplied[0].Detail)
	}
}

func TestAutoFixDryRunKeepsStoredSession(t *testing.T) {
	e := newTestEngine(t)

	_, id, err := e.ValidateTasks("proj-1", billingTasks(), validation.ModeStrict)
	if err != nil {
		t.Fatalf("ValidateTasks() error = %v", err)
	}

	preview, err := e.AutoFix(id, []string{"fix-1"}, true)
	if err != nil {
		t.Fatalf("AutoFix() dry run error = %v", err)
	}
	if !preview.DryRun || !preview.IsValidAfterFix {
		t.Fatalf("dry run = %+v, want valid preview", preview)
	}

	applied, err := e.AutoFix(id, []string{"fix-1"}, false)
	if err != nil {
		t.Fatalf("AutoFix() after dry run error = %v", err)
	}
	if !applied.FixesApplied[0].Applied {
		t.Error("fix-1 gone after dry run, session should have been untouched")
	}
}

func TestAutoFixWithoutSessionStore(t *testing.T) {
	e := New(Options{})
	if _, err := e.AutoFix("any", nil, false); err == nil {
		t.Error("AutoFix() without a session store returned no error")
	}
}

func TestApplyPhaseRules(t *testing.T) {
	e := newTestEngine(t)
	updated, res, err := e.ApplyPhaseRules(pipelineTasks()[:3], rules.EnforceFull)
	if err != nil {
		t.Fatalf("ApplyPhaseRules() error = %v", err)
	}
	if res.EdgesAdded != 3 {
		t.Errorf("EdgesAdded = %d, want 3", res.EdgesAdded)
	}
	byID := map[string]*models.Task{}
	for _, task := range updated {
		byID[task.ID] = task
	}
	if want := []string{"design-001", "impl-001"}; !reflect.DeepEqual(byID["test-001"].DependsOn, want) {
		t.Errorf("test-001 DependsOn = %v, want %v", byID["test-001"].DependsOn, want)
	}
	found := false
	for _, name := range res.RulesApplied {
		if name == "testing_depends_on_implementation" {
			found = true
		}
	}
	if !found {
		t.Errorf("RulesApplied = %v, missing testing_depends_on_implementation", res.RulesApplied)
	}
}

func TestApplyGlobalRules(t *testing.T) {
	e := newTestEngine(t)
	tasks := []*models.Task{
		{ID: "impl-001", Name: "Implement search index", Phase: models.PhaseImplementation},
		{ID: "doc-001", Name: "Document search API", Phase: models.PhaseDocumentation},
		{ID: "deploy-001", Name: "Deploy search service", Phase: models.PhaseDeployment},
	}
	updated, res, err := e.ApplyGlobalRules(tasks, nil)
	if err != nil {
		t.Fatalf("ApplyGlobalRules() error = %v", err)
	}
	if res.EdgesAdded != 2 {
		t.Errorf("EdgesAdded = %d, want 2", res.EdgesAdded)
	}
	want := []string{rules.RuleDocumentationDependsOnAll, rules.RuleDeploymentDependsOnDocumentation}
	if !reflect.DeepEqual(res.Applied, want) {
		t.Errorf("Applied = %v, want %v", res.Applied, want)
	}
	byID := map[string]*models.Task{}
	for _, task := range updated {
		byID[task.ID] = task
	}
	if got := byID["doc-001"].DependsOn; !reflect.DeepEqual(got, []string{"impl-001"}) {
		t.Errorf("doc-001 DependsOn = %v, want [impl-001]", got)
	}
	if got := byID["deploy-001"].DependsOn; !reflect.DeepEqual(got, []string{"doc-001"}) {
		t.Errorf("deploy-001 DependsOn = %v, want [doc-001]", got)
	}
}

func TestCheckEligibilityAdHocTasks(t *testing.T) {
	e := newTestEngine(t)
	tasks := []*models.Task{
		{ID: "impl-001", Name: "Implement uploader", Phase: models.PhaseImplementation},
		{ID: "deploy-001", Name: "Deploy uploader", Phase: models.PhaseDeployment, DependsOn: []string{"impl-001"}},
	}

	blocked, err := e.CheckEligibility(context.Background(), EligibilityRequest{
		AgentID: "agent-1",
		TaskID:  "deploy-001",
		Tasks:   tasks,
	})
	if err != nil {
		t.Fatalf("CheckEligibility() error = %v", err)
	}
	if blocked.Eligible {
		t.Error("task with pending dependency reported eligible")
	}
	if !reflect.DeepEqual(blocked.BlockingTasks, []string{"impl-001"}) {
		t.Errorf("BlockingTasks = %v, want [impl-001]", blocked.BlockingTasks)
	}
	if blocked.Dependencies["impl-001"] != eligibility.StatusPending {
		t.Errorf("dependency status = %q, want pending", blocked.Dependencies["impl-001"])
	}

	ready, err := e.CheckEligibility(context.Background(), EligibilityRequest{
		AgentID:   "agent-1",
		TaskID:    "deploy-001",
		Tasks:     tasks,
		Completed: []string{"impl-001"},
	})
	if err != nil {
		t.Fatalf("CheckEligibility() error = %v", err)
	}
	if !ready.Eligible {
		t.Errorf("Eligible = false, reasons %v", ready.Reasons)
	}
	if ready.Dependencies["impl-001"] != eligibility.StatusCompleted {
		t.Errorf("dependency status = %q, want completed", ready.Dependencies["impl-001"])
	}
}

func TestCheckEligibilityUsesPublishedSnapshot(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.RunPipeline(context.Background(), PipelineRequest{
		ProjectID: "proj-1",
		Tasks:     pipelineTasks(),
	}); err != nil {
		t.Fatalf("RunPipeline() error = %v", err)
	}

	d, err := e.CheckEligibility(context.Background(), EligibilityRequest{
		ProjectID: "proj-1",
		AgentID:   "agent-1",
		TaskID:    "doc-001",
		Completed: []string{"design-001"},
	})
	if err != nil {
		t.Fatalf("CheckEligibility() error = %v", err)
	}
	if d.Eligible {
		t.Error("doc-001 eligible while implementation and testing are open")
	}
	if want := []string{"impl-001", "test-001"}; !reflect.DeepEqual(d.BlockingTasks, want) {
		t.Errorf("BlockingTasks = %v, want %v", d.BlockingTasks, want)
	}

	if _, err := e.CheckEligibility(context.Background(), EligibilityRequest{
		ProjectID: "proj-unknown",
		TaskID:    "doc-001",
	}); err == nil {
		t.Error("unknown project returned no error")
	}
}

func TestCheckEligibilityFiresViolationWebhook(t *testing.T) {
	got := make(chan notify.Violation, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var v notify.Violation
		if err := json.NewDecoder(r.Body).Decode(&v); err == nil {
			got <- v
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	e := New(Options{Notifier: notify.New(srv.URL, 2*time.Second, nil)})
	tasks := []*models.Task{
		{ID: "impl-001", Name: "Implement uploader", Phase: models.PhaseImplementation},
		{ID: "deploy-001", Name: "Deploy uploader", Phase: models.PhaseDeployment, DependsOn: []string{"impl-001"}},
	}

	// Blocked but unassigned: no notification.
	if _, err := e.CheckEligibility(context.Background(), EligibilityRequest{
		AgentID: "agent-7",
		TaskID:  "deploy-001",
		Tasks:   tasks,
	}); err != nil {
		t.Fatalf("CheckEligibility() error = %v", err)
	}

	// Assigned despite the open dependency: one notification.
	d, err := e.CheckEligibility(context.Background(), EligibilityRequest{
		AgentID:  "agent-7",
		TaskID:   "deploy-001",
		Tasks:    tasks,
		Assigned: []string{"deploy-001"},
	})
	if err != nil {
		t.Fatalf("CheckEligibility() error = %v", err)
	}
	if d.Eligible {
		t.Error("assigned task with open dependency reported eligible")
	}

	if err := e.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	select {
	case v := <-got:
		if v.Event != notify.EventDependencyViolation {
			t.Errorf("event = %q, want %q", v.Event, notify.EventDependencyViolation)
		}
		if v.TaskID != "deploy-001" || v.AgentID != "agent-7" {
			t.Errorf("violation = %s/%s, want deploy-001/agent-7", v.TaskID, v.AgentID)
		}
		if !reflect.DeepEqual(v.BlockingTasks, []string{"impl-001"}) {
			t.Errorf("BlockingTasks = %v, want [impl-001]", v.BlockingTasks)
		}
		if v.DeliveryID == "" {
			t.Error("violation has no delivery id")
		}
	default:
		t.Fatal("no violation delivered")
	}
	select {
	case v := <-got:
		t.Errorf("unexpected second delivery: %+v", v)
	default:
	}
}

func TestGraphViewUnknownProject(t *testing.T) {
	e := New(Options{})
	if _, err := e.GraphView("proj-x"); err == nil || !strings.Contains(err.Error(), "no published graph") {
		t.Errorf("GraphView() error = %v, want no published graph", err)
	}
}

func TestProjects(t *testing.T) {
	e := newTestEngine(t)
	for _, id := range []string{"proj-b", "proj-a"} {
		if _, err := e.RunPipeline(context.Background(), PipelineRequest{ProjectID: id, Tasks: pipelineTasks()}); err != nil {
			t.Fatalf("RunPipeline(%s) error = %v", id, err)
		}
	}
	if got, want := e.Projects(), []string{"proj-a", "proj-b"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Projects() = %v, want %v", got, want)
	}
}

func TestAttachRuleConflicts(t *testing.T) {
	res := &validation.Result{IsValid: true}
	attachRuleConflicts(res, &rules.GlobalResult{Conflicts: []rules.Conflict{{
		Rule:   rules.RuleDeploymentDependsOnDocumentation,
		From:   "deploy-001",
		To:     "doc-001",
		Reason: "mandatory edge doc-001 -> deploy-001 already orders these tasks the other way",
	}}})
	if res.IsValid {
		t.Error("result still valid after a rule conflict")
	}
	if len(res.Errors) != 1 {
		t.Fatalf("got %d errors, want 1", len(res.Errors))
	}
	e := res.Errors[0]
	if e.Type != validation.DependencyConflict || e.TaskID != "deploy-001" {
		t.Errorf("error = %+v, want dependency_conflict on deploy-001", e)
	}
	if !reflect.DeepEqual(e.RelatedIDs, []string{"deploy-001", "doc-001"}) {
		t.Errorf("RelatedIDs = %v, want [deploy-001 doc-001]", e.RelatedIDs)
	}
}
