package models

// Phase represents a lifecycle phase in the canonical delivery order.
type Phase string

const (
	// PhaseDesign covers architecture, API contracts, and UX work.
	PhaseDesign Phase = "design"
	// PhaseInfrastructure covers environment, scaffolding, and CI work.
	PhaseInfrastructure Phase = "infrastructure"
	// PhaseImplementation covers feature and business-logic work.
	PhaseImplementation Phase = "implementation"
	// PhaseTesting covers test authoring and verification work.
	PhaseTesting Phase = "testing"
	// PhaseDocumentation covers docs, guides, and reference material.
	PhaseDocumentation Phase = "documentation"
	// PhaseDeployment covers release, rollout, and operations work.
	PhaseDeployment Phase = "deployment"
)

// Phases lists every phase in canonical lifecycle order.
var Phases = []Phase{
	PhaseDesign,
	PhaseInfrastructure,
	PhaseImplementation,
	PhaseTesting,
	PhaseDocumentation,
	PhaseDeployment,
}

// Valid returns true if the phase is a known value.
func (p Phase) Valid() bool {
	return p.Order() >= 0
}

// Order returns the phase's position in the canonical lifecycle,
// or -1 for unknown phases.
func (p Phase) Order() int {
	for i, ph := range Phases {
		if p == ph {
			return i
		}
	}
	return -1
}

// Before returns true if p comes strictly earlier than other in the
// canonical lifecycle. Unknown phases are never ordered.
func (p Phase) Before(other Phase) bool {
	po, oo := p.Order(), other.Order()
	return po >= 0 && oo >= 0 && po < oo
}

// EarlierPhases returns the phases strictly before p in canonical order,
// earliest first. Unknown phases yield nil.
func EarlierPhases(p Phase) []Phase {
	o := p.Order()
	if o <= 0 {
		return nil
	}
	out := make([]Phase, o)
	copy(out, Phases[:o])
	return out
}
