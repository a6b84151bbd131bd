// Package explore implements the read-only terminal UI the "explore"
// subcommand launches: a drill-down browser over a root's live item
// tree, backed directly by the store (no HTTP round trip). It never
// writes to the database.
package explore

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lyallcooper/fspulse/internal/model"
	"github.com/lyallcooper/fspulse/internal/store"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("62"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
	dirStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	normalStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	deletedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Strikethrough(true)
	alertStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	hintStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("245"))
)

// crumb is one level of the navigation stack: a root picked, or a
// directory drilled into within that root.
type crumb struct {
	rootID     int64
	rootPath   string
	parentPath string
	label      string
}

// row is one line in the current listing — either a Root (at the top
// level) or an ItemAtScan (once a root has been entered).
type row struct {
	root *model.Root
	item *store.ItemAtScan
}

// Model is the Bubble Tea model driving the explore TUI.
type Model struct {
	st        *store.Store
	stack     []crumb
	rows      []row
	allRows   []row
	selected  int
	scanID    int64
	err       error
	width     int
	height    int
	filtering bool
	filter    textinput.Model
	quitting  bool
}

// New builds the initial Model, listing every monitored root.
func New(st *store.Store) Model {
	ti := textinput.New()
	ti.Prompt = "/ "
	ti.Placeholder = "filter by name..."

	m := Model{st: st, filter: ti}
	m.allRows, m.err = m.rootRows()
	m.rows = m.allRows
	return m
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

// applyFilter narrows allRows down to those matching the current filter
// text, case-insensitively by name.
func (m *Model) applyFilter() {
	q := strings.ToLower(m.filter.Value())
	if q == "" {
		m.rows = m.allRows
		return
	}
	out := make([]row, 0, len(m.allRows))
	for _, r := range m.allRows {
		name := r.name()
		if strings.Contains(strings.ToLower(name), q) {
			out = append(out, r)
		}
	}
	m.rows = out
	if m.selected >= len(m.rows) {
		m.selected = 0
	}
}

func (r row) name() string {
	if r.root != nil {
		return r.root.RootPath
	}
	return r.item.Item.ItemName
}

func (m Model) rootRows() ([]row, error) {
	roots, err := m.st.ListRoots()
	if err != nil {
		return nil, err
	}
	out := make([]row, 0, len(roots))
	for _, r := range roots {
		out = append(out, row{root: r})
	}
	return out, nil
}

func (m Model) childRows(rootID int64, parentPath string) ([]row, int64, error) {
	scans, err := m.st.ListScansForRoot(rootID, 1)
	if err != nil {
		return nil, 0, err
	}
	if len(scans) == 0 {
		return nil, 0, nil
	}
	scanID := scans[0].ScanID

	children, err := m.st.ImmediateChildren(rootID, parentPath, scanID)
	if err != nil {
		return nil, scanID, err
	}
	out := make([]row, 0, len(children))
	for i := range children {
		out = append(out, row{item: &children[i]})
	}
	return out, scanID, nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if m.filtering {
			switch msg.String() {
			case "esc":
				m.filtering = false
				m.filter.Blur()
				m.filter.SetValue("")
				m.applyFilter()
				return m, nil
			case "enter":
				m.filtering = false
				m.filter.Blur()
				return m, nil
			}
			var cmd tea.Cmd
			m.filter, cmd = m.filter.Update(msg)
			m.applyFilter()
			return m, cmd
		}

		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		case "/":
			m.filtering = true
			m.filter.Focus()
			return m, textinput.Blink
		case "up", "k":
			if m.selected > 0 {
				m.selected--
			}
			return m, nil
		case "down", "j":
			if m.selected < len(m.rows)-1 {
				m.selected++
			}
			return m, nil
		case "enter", "right", "l":
			return m.enter()
		case "backspace", "left", "h":
			return m.leave()
		}
	}
	return m, nil
}

// enter drills into the selected root or directory. Selecting a file
// is a no-op — there is nothing further to browse.
func (m Model) enter() (tea.Model, tea.Cmd) {
	if m.selected < 0 || m.selected >= len(m.rows) {
		return m, nil
	}
	sel := m.rows[m.selected]

	switch {
	case sel.root != nil:
		m.stack = append(m.stack, crumb{rootID: sel.root.RootID, rootPath: sel.root.RootPath, parentPath: ".", label: sel.root.RootPath})
		m.allRows, m.scanID, m.err = m.childRows(sel.root.RootID, ".")
		m.resetNav()
		return m, nil

	case sel.item != nil && sel.item.Item.ItemType == model.ItemDirectory:
		top := m.currentRoot()
		if top == nil {
			return m, nil
		}
		m.stack = append(m.stack, crumb{rootID: top.rootID, rootPath: top.rootPath, parentPath: sel.item.Item.ItemPath, label: sel.item.Item.ItemName})
		m.allRows, m.scanID, m.err = m.childRows(top.rootID, sel.item.Item.ItemPath)
		m.resetNav()
		return m, nil
	}
	return m, nil
}

// resetNav clears the selection and any active filter after navigating
// to a new listing.
func (m *Model) resetNav() {
	m.selected = 0
	m.filter.SetValue("")
	m.rows = m.allRows
}

// leave pops one level of the navigation stack.
func (m Model) leave() (tea.Model, tea.Cmd) {
	if len(m.stack) == 0 {
		return m, nil
	}
	m.stack = m.stack[:len(m.stack)-1]

	if len(m.stack) == 0 {
		m.allRows, m.err = m.rootRows()
		m.resetNav()
		return m, nil
	}

	top := m.currentRoot()
	m.allRows, m.scanID, m.err = m.childRows(top.rootID, top.parentPath)
	m.resetNav()
	return m, nil
}

func (m Model) currentRoot() *crumb {
	if len(m.stack) == 0 {
		return nil
	}
	return &m.stack[len(m.stack)-1]
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(" fspulse explore ") + "\n")
	b.WriteString(dimStyle.Render(m.breadcrumb()) + "\n")
	if m.filtering || m.filter.Value() != "" {
		b.WriteString(m.filter.View() + "\n")
	}
	b.WriteString("\n")

	if m.err != nil {
		b.WriteString(alertStyle.Render("error: "+m.err.Error()) + "\n")
	} else if len(m.rows) == 0 {
		b.WriteString(dimStyle.Render("(empty)") + "\n")
	}

	for i, r := range m.rows {
		line := renderRow(r)
		if i == m.selected {
			line = selectedStyle.Render("> " + line)
		} else {
			line = "  " + line
		}
		b.WriteString(line + "\n")
	}

	hint := "up/down move  enter open  backspace up  / filter  q quit"
	if m.filtering {
		hint = "type to filter  enter accept  esc clear"
	}
	b.WriteString("\n" + hintStyle.Render(hint))
	return b.String()
}

func (m Model) breadcrumb() string {
	if len(m.stack) == 0 {
		return "roots"
	}
	parts := make([]string, 0, len(m.stack))
	for _, c := range m.stack {
		parts = append(parts, c.label)
	}
	return strings.Join(parts, " / ")
}

func renderRow(r row) string {
	if r.root != nil {
		return dirStyle.Render(r.root.RootPath)
	}

	it := r.item.Item
	label := it.ItemName
	if it.ItemType == model.ItemDirectory {
		label += "/"
	}

	if r.item.Version == nil {
		return dimStyle.Render(label + " (unseen at this scan)")
	}
	v := r.item.Version
	if v.IsDeleted {
		return deletedStyle.Render(label + " (deleted)")
	}
	if it.ItemType == model.ItemDirectory {
		return dirStyle.Render(label)
	}

	size := ""
	if v.Size != nil {
		size = fmt.Sprintf("  %s", formatBytes(*v.Size))
	}
	line := normalStyle.Render(label) + dimStyle.Render(size)
	if v.Val == model.ValInvalid {
		line += " " + alertStyle.Render("[invalid]")
	}
	return line
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// Run starts the TUI program against st and blocks until the user quits.
func Run(st *store.Store) error {
	p := tea.NewProgram(New(st), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
