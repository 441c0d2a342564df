package models

import (
	"reflect"
	"testing"
)

func TestTask_Text(t *testing.T) {
	tests := []struct {
		name string
		task Task
		want string
	}{
		{
			"name and description joined lowercase",
			Task{Name: "Build API", Description: "REST endpoints"},
			"build api rest endpoints",
		},
		{
			"labels included",
			Task{Name: "Deploy", Labels: []string{"Ops", "Release"}},
			"deploy ops release",
		},
		{
			"empty task",
			Task{},
			"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.task.Text(); got != tt.want {
				t.Errorf("Task.Text() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTask_Group(t *testing.T) {
	explicit := Task{ID: "t1", FeatureGroup: "auth"}
	if got := explicit.Group(); got != "auth" {
		t.Errorf("Group() = %q, want %q", got, "auth")
	}

	singleton := Task{ID: "t2"}
	if got := singleton.Group(); got != "t2" {
		t.Errorf("Group() = %q, want singleton key %q", got, "t2")
	}
}

func TestTask_AddDependency(t *testing.T) {
	task := Task{ID: "t3"}

	if !task.AddDependency("t1") {
		t.Error("AddDependency(t1) = false, want true on first add")
	}
	if task.AddDependency("t1") {
		t.Error("AddDependency(t1) = true on duplicate, want false")
	}
	if task.AddDependency("t3") {
		t.Error("AddDependency(self) = true, want false")
	}
	if task.AddDependency("") {
		t.Error("AddDependency(empty) = true, want false")
	}

	task.AddDependency("t0")
	want := []string{"t0", "t1"}
	if !reflect.DeepEqual(task.DependsOn, want) {
		t.Errorf("DependsOn = %v, want sorted %v", task.DependsOn, want)
	}
}

func TestTask_SetDependencies(t *testing.T) {
	task := Task{ID: "t9", DependsOn: []string{"old"}}
	task.SetDependencies([]string{"b", "a", "b", "t9", ""})

	want := []string{"a", "b"}
	if !reflect.DeepEqual(task.DependsOn, want) {
		t.Errorf("SetDependencies result = %v, want %v", task.DependsOn, want)
	}
}

func TestTask_Clone(t *testing.T) {
	orig := &Task{
		ID:        "t1",
		Name:      "Build",
		Labels:    []string{"core"},
		DependsOn: []string{"t0"},
	}
	c := orig.Clone()

	c.Labels[0] = "changed"
	c.AddDependency("t2")

	if orig.Labels[0] != "core" {
		t.Errorf("Clone shares Labels: orig.Labels[0] = %q", orig.Labels[0])
	}
	if len(orig.DependsOn) != 1 {
		t.Errorf("Clone shares DependsOn: orig has %v", orig.DependsOn)
	}
}

func TestTask_HasDependency(t *testing.T) {
	task := Task{ID: "t5", DependsOn: []string{"a", "b"}}
	if !task.HasDependency("a") {
		t.Error("HasDependency(a) = false, want true")
	}
	if task.HasDependency("c") {
		t.Error("HasDependency(c) = true, want false")
	}
}
