package cli

import (
	"fmt"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/tree"
	"github.com/spf13/cobra"

	"github.com/matzehuels/cppsbom/pkg/core/deps"
	"github.com/matzehuels/cppsbom/pkg/scanner"
)

// treeCommand creates the tree command.
func (c *CLI) treeCommand() *cobra.Command {
	var (
		flags  scanFlags
		levels bool
	)

	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Print the dependency tree of a project",
		Long: `Scan a project and print its dependency tree.

Direct dependencies form the top level; each is expanded with its
transitive dependencies. Build-only components are dimmed and marked with
their requirement kind. Use --levels to print the breadth-first layering
instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.prepare(cmd, &flags)
			if err != nil {
				return err
			}
			res, hit, err := c.scan(cmd.Context(), &flags, cfg)
			if err != nil {
				return err
			}
			if levels {
				printLevels(res)
			} else {
				fmt.Println(renderTree(res, flags.dir))
			}
			printNewline()
			printStats(len(res.Components), len(res.Tree.Direct), hit)
			return nil
		},
	}

	flags.register(cmd.Flags())
	cmd.Flags().BoolVar(&levels, "levels", false, "group components by depth instead of nesting")

	return cmd
}

var (
	treeRootStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	treeEnumStyle   = lipgloss.NewStyle().Foreground(colorDim).MarginRight(1)
	treeDirectStyle = lipgloss.NewStyle().Foreground(colorWhite).Bold(true)
)

// renderTree builds a lipgloss tree rooted at the project.
func renderTree(res *scanner.Result, dir string) string {
	label := res.RootName
	if label == "" {
		if abs, err := filepath.Abs(dir); err == nil {
			label = filepath.Base(abs)
		} else {
			label = dir
		}
	}
	if res.RootVersion != "" {
		label += " " + StyleDim.Render(res.RootVersion)
	}

	t := tree.Root(treeRootStyle.Render(label)).
		Enumerator(tree.RoundedEnumerator).
		EnumeratorStyle(treeEnumStyle)
	for _, n := range res.Tree.Roots {
		t.Child(treeNode(res.Tree, n, true))
	}
	return t.String()
}

func treeNode(t *deps.Tree, n *deps.TreeNode, direct bool) any {
	label := nodeLabel(t, n, direct)
	if len(n.Children) == 0 {
		return label
	}
	sub := tree.Root(label).
		Enumerator(tree.RoundedEnumerator).
		EnumeratorStyle(treeEnumStyle)
	for _, child := range n.Children {
		sub.Child(treeNode(t, child, false))
	}
	return sub
}

func nodeLabel(t *deps.Tree, n *deps.TreeNode, direct bool) string {
	name := n.Name
	var kind deps.RequirementKind
	if c, ok := t.Lookup(n.Name); ok {
		kind = c.Kind
	}
	switch {
	case kind.IsBuildOnly():
		name = StyleDim.Render(name)
	case direct:
		name = treeDirectStyle.Render(name)
	}
	if n.Version != "" && n.Version != deps.UnknownVersion {
		name += " " + StyleNumber.Render(n.Version)
	}
	return name + kindLabel(kind)
}

// printLevels prints one section per breadth-first level.
func printLevels(res *scanner.Result) {
	for _, lvl := range res.Tree.Levels {
		fmt.Println(StyleTitle.Render(lvl.Label))
		for _, c := range lvl.Components {
			line := "  " + c.Name
			if c.HasVersion() {
				line += " " + StyleNumber.Render(c.Version)
			}
			fmt.Println(line + kindLabel(c.Kind))
		}
	}
}
