package tui

import (
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/skeinhq/skein/internal/engine"
	"github.com/skeinhq/skein/pkg/models"
)

// sectionUnclassified groups tasks whose phase is empty or unknown.
const sectionUnclassified = "unclassified"

// Inspector displays a published project graph as a scrollable task
// list grouped by phase, with dependency provenance and validation
// findings for the selected task.
type Inspector struct {
	view *engine.GraphView
	byID map[string]*models.Task
	// edges indexes the view's edges by (from, to).
	edges map[[2]string]*models.DependencyEdge
	// dependents maps a prerequisite task to the tasks that require it.
	dependents map[string][]string
	// issues maps task IDs to their validation findings. Findings that
	// name no task live under the empty key.
	issues   map[string][]engine.GraphIssue
	critical map[string]bool

	selected string
	width    int
	height   int

	// Scrolling state
	scrollOffset int
	visibleRows  int

	// Collapse state keyed by phase section
	collapsed map[string]bool

	// Cached rendered lines for scrolling
	lines []renderedLine

	// Incremental filter over task IDs, names, and labels
	filter    textinput.Model
	filtering bool

	showDetail bool
	quitting   bool

	// Styles
	headerStyle   lipgloss.Style
	sectionStyle  lipgloss.Style
	taskStyle     lipgloss.Style
	selectedStyle lipgloss.Style
	dimStyle      lipgloss.Style
	errorStyle    lipgloss.Style
	warnStyle     lipgloss.Style
	okStyle       lipgloss.Style
	detailStyle   lipgloss.Style
}

// renderedLine is a single line of the task list. Section headers carry
// an empty taskID and are not selectable.
type renderedLine struct {
	taskID  string
	section string
	text    string
}

// New creates an Inspector for a published graph view.
func New(view *engine.GraphView) *Inspector {
	byID := make(map[string]*models.Task, len(view.Nodes))
	for _, task := range view.Nodes {
		byID[task.ID] = task
	}

	edges := make(map[[2]string]*models.DependencyEdge, len(view.Edges))
	dependents := make(map[string][]string)
	for _, edge := range view.Edges {
		edges[edge.Key()] = edge
		dependents[edge.To] = append(dependents[edge.To], edge.From)
	}
	for _, ids := range dependents {
		sort.Strings(ids)
	}

	issues := make(map[string][]engine.GraphIssue)
	for _, issue := range view.Issues {
		issues[issue.TaskID] = append(issues[issue.TaskID], issue)
	}

	critical := make(map[string]bool, len(view.CriticalPath))
	for _, id := range view.CriticalPath {
		critical[id] = true
	}

	ti := textinput.New()
	ti.Placeholder = "id, name, or label"
	ti.CharLimit = 80
	ti.Width = 32

	in := &Inspector{
		view:        view,
		byID:        byID,
		edges:       edges,
		dependents:  dependents,
		issues:      issues,
		critical:    critical,
		collapsed:   make(map[string]bool),
		visibleRows: 20,
		filter:      ti,

		headerStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("7")).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(lipgloss.Color("240")),

		sectionStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")),

		taskStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")),

		selectedStyle: lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("15")).
			Bold(true),

		dimStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),

		errorStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")),

		warnStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")),

		okStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("28")),

		detailStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1),
	}

	in.rebuildLines()
	return in
}

// Init implements tea.Model.
func (in *Inspector) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (in *Inspector) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if in.filtering {
			return in.updateFilter(msg)
		}
		switch msg.String() {
		case "q", "ctrl+c":
			in.quitting = true
			return in, tea.Quit
		case "/":
			in.filtering = true
			in.showDetail = false
			return in, in.filter.Focus()
		case "up", "k":
			in.selectPrevious()
			in.ensureSelectedVisible()
		case "down", "j":
			in.selectNext()
			in.ensureSelectedVisible()
		case "enter":
			if in.SelectedTask() != nil {
				in.showDetail = !in.showDetail
			}
		case "esc":
			switch {
			case in.showDetail:
				in.showDetail = false
			case in.filter.Value() != "":
				in.filter.Reset()
				in.rebuildLines()
			}
		case " ", "space":
			in.toggleCollapse()
		case "c":
			in.collapseAll()
		case "e":
			in.expandAll()
		case "pgup", "ctrl+u":
			in.scrollUp(in.visibleRows / 2)
		case "pgdown", "ctrl+d":
			in.scrollDown(in.visibleRows / 2)
		case "home", "g":
			in.scrollToTop()
		case "end", "G":
			in.scrollToBottom()
		}

	case tea.WindowSizeMsg:
		in.width = msg.Width
		in.height = msg.Height
		// Reserve space for the header, statistics, and footer
		in.visibleRows = msg.Height - 10
		if in.visibleRows < 5 {
			in.visibleRows = 5
		}
		in.ensureSelectedVisible()
	}

	return in, nil
}

// updateFilter routes key input to the filter field while it has focus.
func (in *Inspector) updateFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		in.quitting = true
		return in, tea.Quit
	case "enter":
		in.filtering = false
		in.filter.Blur()
	case "esc":
		in.filtering = false
		in.filter.Blur()
		in.filter.Reset()
		in.rebuildLines()
	default:
		var cmd tea.Cmd
		in.filter, cmd = in.filter.Update(msg)
		in.rebuildLines()
		return in, cmd
	}
	return in, nil
}

// View implements tea.Model.
func (in *Inspector) View() string {
	if in.quitting {
		return ""
	}
	if len(in.view.Nodes) == 0 {
		return in.taskStyle.Render("No tasks to display")
	}

	var b strings.Builder

	b.WriteString(in.headerStyle.Render(in.renderTitle()))
	b.WriteString("\n")
	b.WriteString(in.renderStats())
	b.WriteString("\n")
	if in.filtering || in.filter.Value() != "" {
		b.WriteString(in.dimStyle.Render("filter: "))
		b.WriteString(in.filter.View())
		b.WriteString("\n")
	}
	b.WriteString("\n")

	totalLines := len(in.lines)
	if totalLines == 0 {
		b.WriteString(in.taskStyle.Render("No tasks match the filter"))
		b.WriteString("\n")
	}

	// Clamp the scroll window
	if in.scrollOffset < 0 {
		in.scrollOffset = 0
	}
	maxOffset := totalLines - in.visibleRows
	if maxOffset < 0 {
		maxOffset = 0
	}
	if in.scrollOffset > maxOffset {
		in.scrollOffset = maxOffset
	}

	endIdx := in.scrollOffset + in.visibleRows
	if endIdx > totalLines {
		endIdx = totalLines
	}

	for i := in.scrollOffset; i < endIdx; i++ {
		line := in.lines[i]
		switch {
		case line.taskID != "" && line.taskID == in.selected:
			b.WriteString(in.selectedStyle.Render(line.text))
		case line.taskID == "":
			b.WriteString(in.sectionStyle.Render(line.text))
		default:
			b.WriteString(in.taskStyle.Render(line.text))
		}
		b.WriteString("\n")
	}

	if totalLines > in.visibleRows {
		b.WriteString("\n")
		b.WriteString(in.renderScrollInfo(totalLines))
	}

	if in.showDetail {
		if task := in.SelectedTask(); task != nil {
			b.WriteString("\n")
			b.WriteString(in.renderDetail(task))
		}
	}

	b.WriteString("\n")
	b.WriteString(in.dimStyle.Render("[j/k] navigate  [enter] details  [space] fold phase  [c/e] fold/unfold all  [/] filter  [q] quit"))

	return b.String()
}

// SelectTask sets the selection by task ID. Unknown IDs are ignored.
func (in *Inspector) SelectTask(id string) {
	if _, ok := in.byID[id]; ok {
		in.selected = id
		in.ensureSelectedVisible()
	}
}

// SelectedTask returns the currently selected task, or nil.
func (in *Inspector) SelectedTask() *models.Task {
	return in.byID[in.selected]
}

// Run opens the inspector and blocks until the user quits.
func Run(view *engine.GraphView) error {
	p := tea.NewProgram(New(view), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
