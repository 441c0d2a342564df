package main

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/skeinhq/skein/pkg/models"
)

func writeTaskFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tasks.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write task file: %v", err)
	}
	return path
}

func TestLoadTaskFile(t *testing.T) {
	path := writeTaskFile(t, `
project: checkout
context:
  tech_stack: [go, postgres]
  domain: e-commerce
tasks:
  - id: design-001
    name: Design checkout flow
    feature_group: checkout
    phase: design
  - id: impl-001
    name: Implement checkout API
    description: REST endpoints for cart and payment
    labels: [api, backend]
    feature_group: checkout
    depends_on: [design-001, design-001]
    estimate_hours: 8
`)

	spec, err := loadTaskFile(path)
	if err != nil {
		t.Fatalf("loadTaskFile() error = %v", err)
	}
	if spec.Project != "checkout" {
		t.Errorf("Project = %q, want %q", spec.Project, "checkout")
	}

	tasks := spec.toTasks()
	if len(tasks) != 2 {
		t.Fatalf("len(tasks) = %d, want 2", len(tasks))
	}
	if tasks[0].Phase != models.PhaseDesign {
		t.Errorf("tasks[0].Phase = %q, want design", tasks[0].Phase)
	}
	if got := tasks[1].DependsOn; !reflect.DeepEqual(got, []string{"design-001"}) {
		t.Errorf("tasks[1].DependsOn = %v, want deduplicated [design-001]", got)
	}
	if tasks[1].EstimateHours != 8 {
		t.Errorf("tasks[1].EstimateHours = %v, want 8", tasks[1].EstimateHours)
	}

	pc := spec.toContext()
	if pc == nil || pc.Domain != "e-commerce" || len(pc.TechStack) != 2 {
		t.Errorf("toContext() = %+v, want tech stack and domain preserved", pc)
	}
}

func TestLoadTaskFileErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "empty file",
			content: "project: demo\n",
			wantErr: "contains no tasks",
		},
		{
			name: "missing id",
			content: `tasks:
  - name: Orphan task
`,
			wantErr: "task 0 has no id",
		},
		{
			name: "duplicate id",
			content: `tasks:
  - id: a
    name: First
  - id: a
    name: Second
`,
			wantErr: "duplicate task id a",
		},
		{
			name: "no name or description",
			content: `tasks:
  - id: a
`,
			wantErr: "task a has no name or description",
		},
		{
			name: "unknown phase",
			content: `tasks:
  - id: a
    name: Task
    phase: planning
`,
			wantErr: `task a has unknown phase "planning"`,
		},
		{
			name:    "not yaml",
			content: "{{{",
			wantErr: "parse task file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTaskFile(t, tt.content)
			_, err := loadTaskFile(path)
			if err == nil {
				t.Fatal("loadTaskFile() error = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("loadTaskFile() error = %q, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadTaskFileMissing(t *testing.T) {
	if _, err := loadTaskFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("loadTaskFile() error = nil for a missing file, want error")
	}
}

func TestToContextNil(t *testing.T) {
	spec := &taskFile{Tasks: []taskSpec{{ID: "a", Name: "Task"}}}
	if pc := spec.toContext(); pc != nil {
		t.Errorf("toContext() = %+v, want nil without a context block", pc)
	}
}

func TestResolveProjectID(t *testing.T) {
	tests := []struct {
		name     string
		flag     string
		fromFile string
		path     string
		expected string
	}{
		{"flag wins", "cli", "file", "tasks.yaml", "cli"},
		{"file field next", "", "file", "tasks.yaml", "file"},
		{"falls back to file name", "", "", "/tmp/checkout.yaml", "checkout"},
		{"strips only the extension", "", "", "sprint.12.yaml", "sprint.12"},
		{"no extension", "", "", "tasks", "tasks"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resolveProjectID(tt.flag, tt.fromFile, tt.path)
			if got != tt.expected {
				t.Errorf("resolveProjectID(%q, %q, %q) = %q, want %q",
					tt.flag, tt.fromFile, tt.path, got, tt.expected)
			}
		})
	}
}
