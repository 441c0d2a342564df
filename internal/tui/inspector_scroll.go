package tui

// Scrolling and navigation methods for Inspector.

// selectPrevious moves selection to the previous visible task.
func (in *Inspector) selectPrevious() {
	if len(in.lines) == 0 {
		return
	}

	currentIdx := -1
	for i, line := range in.lines {
		if line.taskID != "" && line.taskID == in.selected {
			currentIdx = i
			break
		}
	}

	// Find the previous selectable line, skipping section headers
	for i := currentIdx - 1; i >= 0; i-- {
		if in.lines[i].taskID != "" {
			in.selected = in.lines[i].taskID
			return
		}
	}
}

// selectNext moves selection to the next visible task.
func (in *Inspector) selectNext() {
	if len(in.lines) == 0 {
		return
	}

	currentIdx := -1
	for i, line := range in.lines {
		if line.taskID != "" && line.taskID == in.selected {
			currentIdx = i
			break
		}
	}

	// Find the next selectable line, skipping section headers
	for i := currentIdx + 1; i < len(in.lines); i++ {
		if in.lines[i].taskID != "" {
			in.selected = in.lines[i].taskID
			return
		}
	}
}

// ensureSelectedVisible scrolls to make the selected task visible.
func (in *Inspector) ensureSelectedVisible() {
	if len(in.lines) == 0 {
		return
	}

	selectedIdx := -1
	for i, line := range in.lines {
		if line.taskID != "" && line.taskID == in.selected {
			selectedIdx = i
			break
		}
	}

	if selectedIdx < 0 {
		return
	}

	if selectedIdx < in.scrollOffset {
		in.scrollOffset = selectedIdx
	} else if selectedIdx >= in.scrollOffset+in.visibleRows {
		in.scrollOffset = selectedIdx - in.visibleRows + 1
	}
}

// toggleCollapse folds or unfolds the phase section containing the
// selection.
func (in *Inspector) toggleCollapse() {
	section := in.selectedSection()
	if section == "" {
		return
	}
	in.collapsed[section] = !in.collapsed[section]
	in.rebuildLines()
	in.ensureSelectedVisible()
}

// selectedSection returns the phase section of the selected line.
func (in *Inspector) selectedSection() string {
	for _, line := range in.lines {
		if line.taskID != "" && line.taskID == in.selected {
			return line.section
		}
	}
	return ""
}

// collapseAll folds every phase section.
func (in *Inspector) collapseAll() {
	for _, task := range in.view.Nodes {
		key := sectionUnclassified
		if task.Phase.Valid() {
			key = string(task.Phase)
		}
		in.collapsed[key] = true
	}
	in.rebuildLines()
	in.ensureSelectedVisible()
}

// expandAll unfolds every phase section.
func (in *Inspector) expandAll() {
	in.collapsed = make(map[string]bool)
	in.rebuildLines()
	in.ensureSelectedVisible()
}

// scrollUp scrolls up by n lines.
func (in *Inspector) scrollUp(n int) {
	in.scrollOffset -= n
	if in.scrollOffset < 0 {
		in.scrollOffset = 0
	}
}

// scrollDown scrolls down by n lines.
func (in *Inspector) scrollDown(n int) {
	maxOffset := len(in.lines) - in.visibleRows
	if maxOffset < 0 {
		maxOffset = 0
	}
	in.scrollOffset += n
	if in.scrollOffset > maxOffset {
		in.scrollOffset = maxOffset
	}
}

// scrollToTop scrolls to the top and selects the first task.
func (in *Inspector) scrollToTop() {
	in.scrollOffset = 0
	for _, line := range in.lines {
		if line.taskID != "" {
			in.selected = line.taskID
			break
		}
	}
}

// scrollToBottom scrolls to the bottom and selects the last task.
func (in *Inspector) scrollToBottom() {
	in.scrollOffset = len(in.lines) - in.visibleRows
	if in.scrollOffset < 0 {
		in.scrollOffset = 0
	}
	for i := len(in.lines) - 1; i >= 0; i-- {
		if in.lines[i].taskID != "" {
			in.selected = in.lines[i].taskID
			break
		}
	}
}
