package eligibility

import (
	"errors"
	"testing"
	"time"

	"github.com/skeinhq/skein/internal/graph"
	"github.com/skeinhq/skein/pkg/models"
)

func buildGraph(t *testing.T, tasks []*models.Task) *graph.Graph {
	t.Helper()
	g, err := graph.Build(tasks)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return g
}

func chainGraph(t *testing.T) *graph.Graph {
	t.Helper()
	return buildGraph(t, []*models.Task{
		{ID: "design-001", Name: "Design schema"},
		{ID: "impl-001", Name: "Implement service", DependsOn: []string{"design-001"}},
		{ID: "test-001", Name: "Test service", DependsOn: []string{"impl-001", "design-001"}},
	})
}

func TestCheckEligible(t *testing.T) {
	g := chainGraph(t)
	c := NewChecker(nil)

	d, err := c.Check(g, "agent-7", "test-001", []string{"design-001", "impl-001"}, nil)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}

	if !d.Eligible {
		t.Fatalf("Eligible = false, reasons = %v", d.Reasons)
	}
	if len(d.Reasons) != 0 || len(d.BlockingTasks) != 0 {
		t.Errorf("got reasons %v, blocking %v, want none", d.Reasons, d.BlockingTasks)
	}
	if d.Dependencies["design-001"] != StatusCompleted || d.Dependencies["impl-001"] != StatusCompleted {
		t.Errorf("Dependencies = %v, want both completed", d.Dependencies)
	}
	if d.AgentID != "agent-7" || d.TaskID != "test-001" {
		t.Errorf("identity fields = %s/%s, want agent-7/test-001", d.AgentID, d.TaskID)
	}
}

func TestCheckBlockedByIncompleteDependencies(t *testing.T) {
	g := chainGraph(t)
	c := NewChecker(nil)

	d, err := c.Check(g, "agent-7", "test-001", []string{"design-001"}, nil)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}

	if d.Eligible {
		t.Fatal("Eligible = true with an incomplete dependency")
	}
	if len(d.BlockingTasks) != 1 || d.BlockingTasks[0] != "impl-001" {
		t.Errorf("BlockingTasks = %v, want [impl-001]", d.BlockingTasks)
	}
	if d.Dependencies["design-001"] != StatusCompleted || d.Dependencies["impl-001"] != StatusPending {
		t.Errorf("Dependencies = %v, want design completed and impl pending", d.Dependencies)
	}
	if len(d.Reasons) != 1 || d.Reasons[0] != "1 of 2 dependencies are incomplete" {
		t.Errorf("Reasons = %v, want the incomplete-dependency summary", d.Reasons)
	}
}

func TestCheckAdvisoryEdgesBlock(t *testing.T) {
	g := buildGraph(t, []*models.Task{
		{ID: "export-001", Name: "Export ledger"},
		{ID: "email-001", Name: "Email ledger"},
	})
	if _, err := g.AddEdge(&models.DependencyEdge{
		From:       "email-001",
		To:         "export-001",
		Sources:    []models.EdgeSource{models.SourceAI},
		Confidence: 0.7,
	}); err != nil {
		t.Fatalf("AddEdge() error = %v", err)
	}
	c := NewChecker(nil)

	d, err := c.Check(g, "agent-1", "email-001", nil, nil)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if d.Eligible {
		t.Error("Eligible = true despite an incomplete advisory dependency")
	}
	if len(d.BlockingTasks) != 1 || d.BlockingTasks[0] != "export-001" {
		t.Errorf("BlockingTasks = %v, want [export-001]", d.BlockingTasks)
	}
}

func TestCheckAlreadyCompleted(t *testing.T) {
	g := chainGraph(t)
	c := NewChecker(nil)

	d, err := c.Check(g, "agent-1", "design-001", []string{"design-001"}, nil)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if d.Eligible {
		t.Error("Eligible = true for a completed task")
	}
	if len(d.Reasons) != 1 || d.Reasons[0] != "task is already completed" {
		t.Errorf("Reasons = %v, want the completed reason", d.Reasons)
	}
}

func TestCheckAlreadyAssigned(t *testing.T) {
	g := chainGraph(t)
	c := NewChecker(nil)

	d, err := c.Check(g, "agent-1", "design-001", nil, []string{"design-001"})
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if d.Eligible {
		t.Error("Eligible = true for an assigned task")
	}
	if len(d.Reasons) != 1 || d.Reasons[0] != "task is already assigned" {
		t.Errorf("Reasons = %v, want the assigned reason", d.Reasons)
	}
}

func TestCheckUnknownTask(t *testing.T) {
	g := chainGraph(t)
	c := NewChecker(nil)

	if _, err := c.Check(g, "agent-1", "ghost-001", nil, nil); !errors.Is(err, graph.ErrUnknownTask) {
		t.Errorf("Check() on unknown task error = %v, want ErrUnknownTask", err)
	}
}

func TestCheckRefusesCyclicGraph(t *testing.T) {
	g := buildGraph(t, []*models.Task{
		{ID: "task-a", DependsOn: []string{"task-b"}},
		{ID: "task-b", DependsOn: []string{"task-a"}},
	})
	c := NewChecker(nil)

	if _, err := c.Check(g, "agent-1", "task-a", nil, nil); !errors.Is(err, graph.ErrCycleDetected) {
		t.Errorf("Check() on cyclic graph error = %v, want ErrCycleDetected", err)
	}
}

func TestCheckRetryAfterFromEstimates(t *testing.T) {
	g := buildGraph(t, []*models.Task{
		{ID: "impl-001", Name: "Implement service", EstimateHours: 3},
		{ID: "impl-002", Name: "Implement client", EstimateHours: 8},
		{ID: "test-001", Name: "Test both", DependsOn: []string{"impl-001", "impl-002"}},
	})
	c := NewChecker(nil)
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return fixed }

	d, err := c.Check(g, "agent-1", "test-001", nil, nil)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}

	if d.RetryAfter == nil {
		t.Fatal("RetryAfter = nil, want a projection from the 8 hour blocker")
	}
	want := fixed.Add(8 * time.Hour)
	if !d.RetryAfter.Equal(want) {
		t.Errorf("RetryAfter = %v, want %v", d.RetryAfter, want)
	}
}

func TestCheckRetryAfterOmittedWithoutEstimates(t *testing.T) {
	g := chainGraph(t)
	c := NewChecker(nil)

	d, err := c.Check(g, "agent-1", "test-001", nil, nil)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if d.RetryAfter != nil {
		t.Errorf("RetryAfter = %v, want nil without duration estimates", d.RetryAfter)
	}
}

func TestCheckReportsOwnEstimate(t *testing.T) {
	g := buildGraph(t, []*models.Task{
		{ID: "impl-001", Name: "Implement service", EstimateHours: 6},
	})
	c := NewChecker(nil)

	d, err := c.Check(g, "agent-1", "impl-001", nil, nil)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if !d.Eligible {
		t.Errorf("Eligible = false, reasons = %v", d.Reasons)
	}
	if d.EstimatedDurationHours != 6 {
		t.Errorf("EstimatedDurationHours = %v, want 6", d.EstimatedDurationHours)
	}
}
