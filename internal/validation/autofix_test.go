package validation

import (
	"strings"
	"testing"

	"github.com/skeinhq/skein/internal/graph"
	"github.com/skeinhq/skein/pkg/models"
)

// missingDepGraph builds a billing feature whose testing task forgot its
// implementation dependency. Validation reports exactly one fixable error.
func missingDepGraph(t *testing.T) *graph.Graph {
	t.Helper()
	impl1 := task("impl-001", models.PhaseImplementation, "billing")
	impl1.Name = "Implement invoice engine"
	impl2 := task("impl-002", models.PhaseImplementation, "billing")
	impl2.Name = "Build payment gateway client"
	test1 := task("test-001", models.PhaseTesting, "billing")
	test1.Name = "Test the invoice engine"
	return mustBuild(t, []*models.Task{impl1, impl2, test1})
}

func TestAutoFixAddsMissingDependency(t *testing.T) {
	g := missingDepGraph(t)
	v := New(ModeStrict, nil)
	res := v.Validate(g)
	if res.IsValid {
		t.Fatal("fixture graph unexpectedly valid")
	}

	out, err := v.AutoFix(g, res, []string{"fix-1"}, false)
	if err != nil {
		t.Fatalf("AutoFix() error = %v", err)
	}

	if len(out.FixesApplied) != 1 || !out.FixesApplied[0].Applied {
		t.Fatalf("FixesApplied = %+v, want fix-1 applied", out.FixesApplied)
	}
	if !out.IsValidAfterFix {
		t.Errorf("IsValidAfterFix = false, revalidation errors = %+v", out.Revalidation.Errors)
	}
	if !g.HasEdge("test-001", "impl-001") {
		t.Error("graph missing the test-001 -> impl-001 edge after fix")
	}
	if len(out.UpdatedTasks) != 1 || out.UpdatedTasks[0].ID != "test-001" {
		t.Fatalf("UpdatedTasks = %+v, want only test-001", out.UpdatedTasks)
	}
	if !out.UpdatedTasks[0].HasDependency("impl-001") {
		t.Errorf("updated task DependsOn = %v, want impl-001", out.UpdatedTasks[0].DependsOn)
	}
	if got := g.Task("test-001").DependsOn; len(got) != 1 || got[0] != "impl-001" {
		t.Errorf("stored task DependsOn = %v, want [impl-001]", got)
	}
}

func TestAutoFixDryRunLeavesGraphUntouched(t *testing.T) {
	g := missingDepGraph(t)
	v := New(ModeStrict, nil)
	res := v.Validate(g)

	out, err := v.AutoFix(g, res, []string{"fix-1"}, true)
	if err != nil {
		t.Fatalf("AutoFix() error = %v", err)
	}

	if !out.DryRun {
		t.Error("DryRun = false")
	}
	if !out.IsValidAfterFix {
		t.Errorf("IsValidAfterFix = false, revalidation errors = %+v", out.Revalidation.Errors)
	}
	if g.HasEdge("test-001", "impl-001") {
		t.Error("dry run mutated the stored graph")
	}
	if got := g.Task("test-001").DependsOn; len(got) != 0 {
		t.Errorf("stored task DependsOn = %v, want unchanged empty list", got)
	}
	if len(out.UpdatedTasks) != 1 || !out.UpdatedTasks[0].HasDependency("impl-001") {
		t.Errorf("UpdatedTasks = %+v, want the previewed test-001 update", out.UpdatedTasks)
	}
}

func TestAutoFixUnknownFixID(t *testing.T) {
	g := missingDepGraph(t)
	v := New(ModeStrict, nil)
	res := v.Validate(g)

	out, err := v.AutoFix(g, res, []string{"fix-99"}, false)
	if err != nil {
		t.Fatalf("AutoFix() error = %v", err)
	}

	if len(out.FixesApplied) != 1 {
		t.Fatalf("FixesApplied = %+v, want one outcome", out.FixesApplied)
	}
	o := out.FixesApplied[0]
	if o.Applied {
		t.Error("unknown fix reported as applied")
	}
	if !strings.Contains(o.Detail, "no such fix") {
		t.Errorf("Detail = %q, want a no-such-fix explanation", o.Detail)
	}
	if out.IsValidAfterFix {
		t.Error("IsValidAfterFix = true with the original error unaddressed")
	}
}

func TestAutoFixRemovesConflictingAdvisoryEdge(t *testing.T) {
	g := mustBuild(t, []*models.Task{
		task("design-001", models.PhaseDesign, ""),
		task("deploy-001", models.PhaseDeployment, ""),
	})
	if _, err := g.AddEdge(&models.DependencyEdge{
		From:       "design-001",
		To:         "deploy-001",
		Sources:    []models.EdgeSource{models.SourcePattern},
		Confidence: 0.7,
	}); err != nil {
		t.Fatalf("AddEdge() error = %v", err)
	}
	v := New(ModeStrict, nil)
	res := v.Validate(g)
	if res.IsValid {
		t.Fatal("fixture graph unexpectedly valid")
	}

	out, err := v.AutoFix(g, res, []string{"fix-1"}, false)
	if err != nil {
		t.Fatalf("AutoFix() error = %v", err)
	}

	if !out.FixesApplied[0].Applied {
		t.Fatalf("FixesApplied = %+v, want fix-1 applied", out.FixesApplied)
	}
	if g.HasEdge("design-001", "deploy-001") {
		t.Error("conflicting advisory edge still present after fix")
	}
	if !out.IsValidAfterFix {
		t.Errorf("IsValidAfterFix = false, revalidation errors = %+v", out.Revalidation.Errors)
	}
}

func TestAutoFixAppliesOnlySelectedFixes(t *testing.T) {
	implA := task("impl-a1", models.PhaseImplementation, "alpha")
	implA.Name = "Implement alpha parser"
	testA := task("test-a1", models.PhaseTesting, "alpha")
	testA.Name = "Test alpha parser"
	implB := task("impl-b1", models.PhaseImplementation, "beta")
	implB.Name = "Implement beta exporter"
	testB := task("test-b1", models.PhaseTesting, "beta")
	testB.Name = "Test beta exporter"
	g := mustBuild(t, []*models.Task{implA, testA, implB, testB})

	v := New(ModeStrict, nil)
	res := v.Validate(g)
	if len(errorsOfType(res, MissingDependency)) != 2 {
		t.Fatalf("fixture errors = %+v, want two missing_dependency findings", res.Errors)
	}

	out, err := v.AutoFix(g, res, []string{"fix-2"}, false)
	if err != nil {
		t.Fatalf("AutoFix() error = %v", err)
	}

	if out.IsValidAfterFix {
		t.Error("IsValidAfterFix = true with one error left unfixed")
	}
	if remaining := errorsOfType(out.Revalidation, MissingDependency); len(remaining) != 1 {
		t.Fatalf("revalidation errors = %+v, want exactly one left", out.Revalidation.Errors)
	} else if remaining[0].TaskID != "test-a1" {
		t.Errorf("remaining error names %s, want test-a1", remaining[0].TaskID)
	}
	if len(out.UpdatedTasks) != 1 || out.UpdatedTasks[0].ID != "test-b1" {
		t.Errorf("UpdatedTasks = %+v, want only test-b1", out.UpdatedTasks)
	}
}

func TestAutoFixRequiresPriorResult(t *testing.T) {
	g := missingDepGraph(t)
	v := New(ModeStrict, nil)
	if _, err := v.AutoFix(g, nil, []string{"fix-1"}, false); err == nil {
		t.Error("AutoFix() with nil prior result returned no error")
	}
}
