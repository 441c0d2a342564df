package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/skeinhq/skein/pkg/models"
)

// Rendering methods for Inspector.

const (
	markError = "[✗]"
	markWarn  = "[!]"
	markClean = "[○]"
)

// rebuildLines recomputes the cached task list lines after the filter
// or collapse state changes.
func (in *Inspector) rebuildLines() {
	in.lines = in.lines[:0]

	sections := make(map[string][]*models.Task)
	for _, task := range in.view.Nodes {
		if !in.matchesFilter(task) {
			continue
		}
		key := sectionUnclassified
		if task.Phase.Valid() {
			key = string(task.Phase)
		}
		sections[key] = append(sections[key], task)
	}

	order := make([]string, 0, len(models.Phases)+1)
	for _, phase := range models.Phases {
		order = append(order, string(phase))
	}
	order = append(order, sectionUnclassified)

	for _, key := range order {
		tasks := sections[key]
		if len(tasks) == 0 {
			continue
		}
		sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })

		marker := "[-]"
		if in.collapsed[key] {
			marker = "[+]"
		}
		header := fmt.Sprintf("%s %s (%d)", marker, key, len(tasks))
		in.lines = append(in.lines, renderedLine{section: key, text: header})

		if in.collapsed[key] {
			continue
		}
		for _, task := range tasks {
			in.lines = append(in.lines, renderedLine{
				taskID:  task.ID,
				section: key,
				text:    in.buildTaskLine(task),
			})
		}
	}

	in.validateSelection()
}

// validateSelection moves the selection to the first visible task when
// the current one is filtered out or folded away.
func (in *Inspector) validateSelection() {
	if in.selected != "" {
		for _, line := range in.lines {
			if line.taskID == in.selected {
				return
			}
		}
	}
	in.selected = ""
	for _, line := range in.lines {
		if line.taskID != "" {
			in.selected = line.taskID
			break
		}
	}
	in.ensureSelectedVisible()
}

// matchesFilter reports whether a task matches the current filter text.
// An empty filter matches everything.
func (in *Inspector) matchesFilter(task *models.Task) bool {
	query := strings.ToLower(strings.TrimSpace(in.filter.Value()))
	if query == "" {
		return true
	}
	if strings.Contains(strings.ToLower(task.ID), query) {
		return true
	}
	return strings.Contains(task.Text(), query)
}

// buildTaskLine renders one task as a list line: a finding marker, the
// ID, the name, and a summary of its prerequisites.
func (in *Inspector) buildTaskLine(task *models.Task) string {
	line := fmt.Sprintf("  %s %-16s %s", in.findingMark(task.ID), task.ID, truncate(task.Name, 35))
	if len(task.DependsOn) > 0 {
		line += " " + in.dimStyle.Render(in.renderDependencies(task))
	}
	return line
}

// renderDependencies summarizes a task's prerequisites. Mandatory
// edges are starred, references to unknown tasks get a question mark.
func (in *Inspector) renderDependencies(task *models.Task) string {
	parts := make([]string, 0, len(task.DependsOn))
	for _, depID := range task.DependsOn {
		part := truncate(depID, 12)
		if edge, ok := in.edges[[2]string{task.ID, depID}]; ok && edge.Mandatory {
			part += "*"
		}
		if _, ok := in.byID[depID]; !ok {
			part += "?"
		}
		parts = append(parts, part)
	}
	return "<-- " + strings.Join(parts, ", ")
}

// findingMark returns the styled validation marker for a task.
func (in *Inspector) findingMark(taskID string) string {
	worst := ""
	for _, issue := range in.issues[taskID] {
		if issue.Severity == "error" {
			worst = "error"
			break
		}
		worst = issue.Severity
	}
	switch worst {
	case "error":
		return in.errorStyle.Render(markError)
	case "warning":
		return in.warnStyle.Render(markWarn)
	default:
		return in.okStyle.Render(markClean)
	}
}

// renderTitle renders the header line with the project and validity.
func (in *Inspector) renderTitle() string {
	badge := "valid"
	for _, issue := range in.view.Issues {
		if issue.Severity == "error" {
			badge = "INVALID"
			break
		}
	}
	return fmt.Sprintf("Dependency graph: %s  [%s]  published %s",
		in.view.ProjectID, badge, in.view.PublishedAt.Format("2006-01-02 15:04"))
}

// renderStats renders the one-line graph statistics summary.
func (in *Inspector) renderStats() string {
	st := in.view.Statistics
	line := fmt.Sprintf("%d tasks, %d edges (%d mandatory, %d advisory), %d roots, %d leaves, chain %d",
		st.TotalTasks, st.TotalEdges, st.MandatoryEdges, st.AdvisoryEdges,
		st.RootTasks, st.LeafTasks, st.LongestChain)
	if st.IsolatedTasks > 0 {
		line += fmt.Sprintf(", %d isolated", st.IsolatedTasks)
	}
	if st.CriticalPathHours > 0 {
		line += fmt.Sprintf(", critical %.1fh", st.CriticalPathHours)
	}
	return in.dimStyle.Render(line)
}

// renderScrollInfo renders scroll position information.
func (in *Inspector) renderScrollInfo(totalLines int) string {
	startLine := in.scrollOffset + 1
	endLine := in.scrollOffset + in.visibleRows
	if endLine > totalLines {
		endLine = totalLines
	}

	percent := 0
	if totalLines > in.visibleRows {
		percent = (in.scrollOffset * 100) / (totalLines - in.visibleRows)
	}

	indicators := ""
	if in.scrollOffset > 0 {
		indicators += "[up]"
	}
	if in.scrollOffset+in.visibleRows < totalLines {
		if indicators != "" {
			indicators += " "
		}
		indicators += "[down]"
	}

	return in.dimStyle.Render(fmt.Sprintf("Lines %d-%d of %d (%d%%) %s", startLine, endLine, totalLines, percent, indicators))
}

// renderDetail renders the detail panel for the selected task.
func (in *Inspector) renderDetail(task *models.Task) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("%s  %s\n", task.ID, task.Name))
	if task.Phase != "" {
		b.WriteString(fmt.Sprintf("phase: %s (%.2f)\n", task.Phase, task.PhaseConfidence))
	}
	if task.FeatureGroup != "" {
		b.WriteString(fmt.Sprintf("group: %s\n", task.FeatureGroup))
	}
	if len(task.Labels) > 0 {
		b.WriteString(fmt.Sprintf("labels: %s\n", strings.Join(task.Labels, ", ")))
	}
	if task.EstimateHours > 0 {
		b.WriteString(fmt.Sprintf("estimate: %.1fh\n", task.EstimateHours))
	}
	if in.critical[task.ID] {
		b.WriteString("on the critical path\n")
	}

	if len(task.DependsOn) > 0 {
		b.WriteString("\nDepends on:\n")
		for _, depID := range task.DependsOn {
			b.WriteString("  " + in.describeEdge(task.ID, depID) + "\n")
		}
	}
	if deps := in.dependents[task.ID]; len(deps) > 0 {
		b.WriteString("\nRequired by:\n")
		b.WriteString("  " + strings.Join(deps, ", ") + "\n")
	}

	if issues := in.issues[task.ID]; len(issues) > 0 {
		b.WriteString("\nFindings:\n")
		for _, issue := range issues {
			mark := markWarn
			if issue.Severity == "error" {
				mark = markError
			}
			b.WriteString(fmt.Sprintf("  %s %s: %s\n", mark, issue.Type, issue.Message))
		}
	}

	return in.detailStyle.Render(strings.TrimRight(b.String(), "\n"))
}

// describeEdge renders one prerequisite with its provenance.
func (in *Inspector) describeEdge(from, to string) string {
	edge, ok := in.edges[[2]string{from, to}]
	if !ok {
		return fmt.Sprintf("%s (unknown origin)", to)
	}
	sources := make([]string, len(edge.Sources))
	for i, s := range edge.Sources {
		sources[i] = string(s)
	}
	kind := "advisory"
	if edge.Mandatory {
		kind = "mandatory"
	}
	desc := fmt.Sprintf("%s  %s, %.2f, %s", to, strings.Join(sources, "+"), edge.Confidence, kind)
	if edge.Reason != "" {
		desc += "  " + edge.Reason
	}
	return desc
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
