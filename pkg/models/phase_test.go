package models

import "testing"

func TestPhase_Valid(t *testing.T) {
	tests := []struct {
		name  string
		phase Phase
		want  bool
	}{
		{"design is valid", PhaseDesign, true},
		{"infrastructure is valid", PhaseInfrastructure, true},
		{"implementation is valid", PhaseImplementation, true},
		{"testing is valid", PhaseTesting, true},
		{"documentation is valid", PhaseDocumentation, true},
		{"deployment is valid", PhaseDeployment, true},
		{"empty string is invalid", Phase(""), false},
		{"unknown phase is invalid", Phase("research"), false},
		{"typo phase is invalid", Phase("deployments"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.phase.Valid(); got != tt.want {
				t.Errorf("Phase(%q).Valid() = %v, want %v", tt.phase, got, tt.want)
			}
		})
	}
}

func TestPhase_Order(t *testing.T) {
	tests := []struct {
		phase Phase
		want  int
	}{
		{PhaseDesign, 0},
		{PhaseInfrastructure, 1},
		{PhaseImplementation, 2},
		{PhaseTesting, 3},
		{PhaseDocumentation, 4},
		{PhaseDeployment, 5},
		{Phase("bogus"), -1},
	}

	for _, tt := range tests {
		t.Run(string(tt.phase), func(t *testing.T) {
			if got := tt.phase.Order(); got != tt.want {
				t.Errorf("Phase(%q).Order() = %d, want %d", tt.phase, got, tt.want)
			}
		})
	}
}

func TestPhase_Before(t *testing.T) {
	tests := []struct {
		name string
		a, b Phase
		want bool
	}{
		{"design before implementation", PhaseDesign, PhaseImplementation, true},
		{"implementation before testing", PhaseImplementation, PhaseTesting, true},
		{"documentation before deployment", PhaseDocumentation, PhaseDeployment, true},
		{"testing not before design", PhaseTesting, PhaseDesign, false},
		{"same phase not before itself", PhaseTesting, PhaseTesting, false},
		{"unknown phase never ordered", Phase("bogus"), PhaseDeployment, false},
		{"known phase never before unknown", PhaseDesign, Phase("bogus"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Before(tt.b); got != tt.want {
				t.Errorf("Phase(%q).Before(%q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestEarlierPhases(t *testing.T) {
	got := EarlierPhases(PhaseTesting)
	want := []Phase{PhaseDesign, PhaseInfrastructure, PhaseImplementation}
	if len(got) != len(want) {
		t.Fatalf("EarlierPhases(testing) length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("EarlierPhases(testing)[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	if got := EarlierPhases(PhaseDesign); got != nil {
		t.Errorf("EarlierPhases(design) = %v, want nil", got)
	}
	if got := EarlierPhases(Phase("bogus")); got != nil {
		t.Errorf("EarlierPhases(bogus) = %v, want nil", got)
	}
}

func TestPhases_CanonicalOrder(t *testing.T) {
	want := []string{"design", "infrastructure", "implementation", "testing", "documentation", "deployment"}
	if len(Phases) != len(want) {
		t.Fatalf("Phases length = %d, want %d", len(Phases), len(want))
	}
	for i, p := range Phases {
		if string(p) != want[i] {
			t.Errorf("Phases[%d] = %q, want %q", i, p, want[i])
		}
	}
}
