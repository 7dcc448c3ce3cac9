package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/matzehuels/cppsbom/pkg/core/deps"
	"github.com/matzehuels/cppsbom/pkg/scanner"
)

// List styles
var (
	listSelectedStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	listNormalStyle   = lipgloss.NewStyle().Foreground(colorWhite)
	listDimStyle      = lipgloss.NewStyle().Foreground(colorDim)
	detailBoxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorDim).Padding(0, 1)
)

// browseCommand creates the interactive tree browser command.
func (c *CLI) browseCommand() *cobra.Command {
	var flags scanFlags

	cmd := &cobra.Command{
		Use:   "browse",
		Short: "Explore the dependency tree interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.prepare(cmd, &flags)
			if err != nil {
				return err
			}
			res, _, err := c.scan(cmd.Context(), &flags, cfg)
			if err != nil {
				return err
			}
			if len(res.Tree.Roots) == 0 {
				printWarning("No dependencies found in %s", flags.dir)
				return nil
			}
			_, err = tea.NewProgram(NewTreeModel(res), tea.WithContext(cmd.Context())).Run()
			return err
		},
	}

	flags.register(cmd.Flags())
	return cmd
}

// =============================================================================
// TreeModel - Interactive dependency tree
// =============================================================================

// treeKeyMap holds the key bindings of the browser.
type treeKeyMap struct {
	Up       key.Binding
	Down     key.Binding
	Expand   key.Binding
	Collapse key.Binding
	Quit     key.Binding
}

var treeKeys = treeKeyMap{
	Up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Expand:   key.NewBinding(key.WithKeys("enter", " ", "right", "l"), key.WithHelp("⏎", "expand")),
	Collapse: key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←", "collapse")),
	Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c", "esc"), key.WithHelp("q", "quit")),
}

func (k treeKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Expand, k.Collapse, k.Quit}
}

func (k treeKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

// treeRow is one visible line of the browser.
type treeRow struct {
	node  *deps.TreeNode
	depth int
	path  string
}

// TreeModel is the bubbletea model for browsing a dependency tree. Nodes
// start collapsed; expansion state is keyed by the path from the root so
// a library reached through two parents expands independently.
type TreeModel struct {
	Result   *scanner.Result
	Expanded map[string]bool
	Cursor   int
	Height   int
	Offset   int

	rows []treeRow
	help help.Model
}

// NewTreeModel creates a browser over the tree of res.
func NewTreeModel(res *scanner.Result) TreeModel {
	m := TreeModel{Result: res, Expanded: make(map[string]bool), Height: 15, help: help.New()}
	m.rows = m.visibleRows()
	return m
}

func (m TreeModel) Init() tea.Cmd {
	return nil
}

func (m TreeModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, treeKeys.Quit):
			return m, tea.Quit
		case key.Matches(msg, treeKeys.Up):
			if m.Cursor > 0 {
				m.Cursor--
			}
		case key.Matches(msg, treeKeys.Down):
			if m.Cursor < len(m.rows)-1 {
				m.Cursor++
			}
		case key.Matches(msg, treeKeys.Expand):
			m = m.toggle(true)
		case key.Matches(msg, treeKeys.Collapse):
			m = m.toggle(false)
		}
	case tea.WindowSizeMsg:
		m.help.Width = msg.Width
		m.Height = msg.Height - 14
		if m.Height < 5 {
			m.Height = 5
		}
	}
	if m.Cursor < m.Offset {
		m.Offset = m.Cursor
	}
	if m.Cursor >= m.Offset+m.Height {
		m.Offset = m.Cursor - m.Height + 1
	}
	return m, nil
}

// toggle expands (open) or collapses the node under the cursor. Collapsing
// a leaf or an already collapsed node moves the cursor to its parent.
func (m TreeModel) toggle(open bool) TreeModel {
	if len(m.rows) == 0 {
		return m
	}
	row := m.rows[m.Cursor]
	expanded := make(map[string]bool, len(m.Expanded))
	for k, v := range m.Expanded {
		expanded[k] = v
	}

	switch {
	case open && len(row.node.Children) > 0:
		expanded[row.path] = !expanded[row.path]
	case !open && expanded[row.path]:
		delete(expanded, row.path)
	case !open:
		for i := m.Cursor - 1; i >= 0; i-- {
			if m.rows[i].depth < row.depth {
				m.Cursor = i
				break
			}
		}
	}
	m.Expanded = expanded
	m.rows = m.visibleRows()
	if m.Cursor >= len(m.rows) {
		m.Cursor = len(m.rows) - 1
	}
	return m
}

func (m TreeModel) visibleRows() []treeRow {
	var rows []treeRow
	var walk func(n *deps.TreeNode, depth int, parent string)
	walk = func(n *deps.TreeNode, depth int, parent string) {
		path := parent + "/" + n.Name
		rows = append(rows, treeRow{node: n, depth: depth, path: path})
		if m.Expanded[path] {
			for _, child := range n.Children {
				walk(child, depth+1, path)
			}
		}
	}
	for _, n := range m.Result.Tree.Roots {
		walk(n, 0, "")
	}
	return rows
}

func (m TreeModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render("Dependency Tree"))
	b.WriteString("\n")
	b.WriteString(m.help.View(treeKeys))
	b.WriteString("\n\n")

	end := m.Offset + m.Height
	if end > len(m.rows) {
		end = len(m.rows)
	}
	for i := m.Offset; i < end; i++ {
		row := m.rows[i]
		marker := "  "
		if len(row.node.Children) > 0 {
			marker = "▸ "
			if m.Expanded[row.path] {
				marker = "▾ "
			}
		}
		line := strings.Repeat("  ", row.depth) + marker + row.node.Name
		if row.node.Version != "" && row.node.Version != deps.UnknownVersion {
			line += " " + row.node.Version
		}

		switch {
		case i == m.Cursor:
			b.WriteString(listSelectedStyle.Render("> " + line))
		case row.node.Scope == "excluded":
			b.WriteString(listDimStyle.Render("  " + line))
		default:
			b.WriteString(listNormalStyle.Render("  " + line))
		}
		b.WriteString("\n")
	}

	if len(m.rows) > 0 {
		b.WriteString("\n")
		b.WriteString(detailBoxStyle.Render(nodeDetails(m.rows[m.Cursor].node)))
		b.WriteString("\n")
	}
	b.WriteString(listDimStyle.Render(fmt.Sprintf("  [%d/%d]  %d components", m.Cursor+1, len(m.rows), len(m.Result.Components))))

	return b.String()
}

// nodeDetails renders the metadata of n as key/value lines.
func nodeDetails(n *deps.TreeNode) string {
	var lines []string
	add := func(key, value string) {
		if value != "" {
			lines = append(lines, listDimStyle.Render(fmt.Sprintf("%-10s", key))+" "+value)
		}
	}
	add("Name", n.Name)
	add("Version", n.Version)
	add("PURL", n.PURL)
	add("Type", n.DependencyType)
	add("Scope", n.Scope)
	add("Source", n.DetectionSource)
	add("Channel", n.Channel)
	add("Revision", n.Revision)
	add("Includes", strings.Join(n.IncludePaths, ", "))
	add("Libraries", strings.Join(n.LinkLibraries, ", "))
	add("About", n.Description)
	return strings.Join(lines, "\n")
}
