package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/matzehuels/cppsbom/pkg/core/deps"
	"github.com/matzehuels/cppsbom/pkg/errors"
	"github.com/matzehuels/cppsbom/pkg/scanner"
)

// strategiesCommand creates the strategies listing command.
func (c *CLI) strategiesCommand() *cobra.Command {
	var (
		format    string
		manifests bool
	)

	cmd := &cobra.Command{
		Use:   "strategies",
		Short: "List detection strategies and the files they read",
		Long: `List the registered detection strategies in merge order.

When two strategies report the same library, the version from the strategy
with the higher rank wins. With --manifests, list each file a strategy reads
instead, one row per strategy and file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if manifests {
				return writeManifests(os.Stdout, format, deps.KnownManifests(scanner.All()))
			}
			return writeStrategies(os.Stdout, format, scanner.Infos())
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", formatTable, "output format: table, yaml, json")
	cmd.Flags().BoolVar(&manifests, "manifests", false, "list the files each strategy reads")
	return cmd
}

func writeStrategies(w io.Writer, format string, infos []scanner.Info) error {
	if format == formatTable {
		_, err := fmt.Fprintln(w, strategyTable(infos))
		return err
	}
	return writeStructured(w, format, infos)
}

func writeManifests(w io.Writer, format string, manifests []deps.ManifestInfo) error {
	if format == formatTable {
		_, err := fmt.Fprintln(w, manifestTable(manifests))
		return err
	}
	return writeStructured(w, format, manifests)
}

func writeStructured(w io.Writer, format string, v any) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	return errors.New(errors.ErrCodeInvalidFormat, "invalid format: %q (must be table, yaml or json)", format)
}

func manifestTable(manifests []deps.ManifestInfo) string {
	rows := make([][]string, 0, len(manifests))
	for _, m := range manifests {
		rows = append(rows, []string{m.Strategy, m.Filename})
	}

	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("Strategy", "File").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return headerStyle
			}
			base := lipgloss.NewStyle().Padding(0, 1)
			if col == 0 {
				return base.Foreground(colorCyan)
			}
			return base.Foreground(colorGray)
		}).
		Render()
}

func strategyTable(infos []scanner.Info) string {
	rows := make([][]string, 0, len(infos))
	for _, info := range infos {
		rows = append(rows, []string{info.Name, strconv.Itoa(info.Rank), info.Description, strings.Join(info.Manifests, "\n")})
	}

	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		BorderRow(true).
		Headers("Strategy", "Rank", "Description", "Reads").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return headerStyle
			}
			base := lipgloss.NewStyle().Padding(0, 1)
			switch col {
			case 0:
				return base.Foreground(colorCyan)
			case 1:
				return base.Foreground(colorWhite).Align(lipgloss.Right)
			case 3:
				return base.Foreground(colorGray)
			}
			return base
		}).
		Render()
}
