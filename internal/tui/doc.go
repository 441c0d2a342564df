// Package tui provides the interactive dependency graph inspector.
//
// The inspector is a read-only terminal view of a published project
// graph. It shows:
//   - Tasks grouped by lifecycle phase in canonical delivery order
//   - Dependency provenance for every edge (explicit, pattern, ai,
//     phase_rule, global_rule) with the combined confidence
//   - Validation findings attached to the tasks that raised them
//   - Graph statistics and the critical path
//
// Usage:
//
//	view, err := eng.GraphView(projectID)
//	if err != nil {
//	    return err
//	}
//	if err := tui.Run(view); err != nil {
//	    return err
//	}
//
// Navigation is keyboard driven: j/k move the selection, enter opens a
// detail panel for the selected task, space folds the phase section
// under the cursor, / starts an incremental filter over task IDs,
// names, and labels, and q quits.
package tui
