package cli

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/matzehuels/cppsbom/pkg/core/deps"
	"github.com/matzehuels/cppsbom/pkg/errors"
	"github.com/matzehuels/cppsbom/pkg/pipeline"
	"github.com/matzehuels/cppsbom/pkg/sbom"
	"github.com/matzehuels/cppsbom/pkg/scanner"
)

const formatTable = "table"

// transcribeCommand creates the transcribe command.
func (c *CLI) transcribeCommand() *cobra.Command {
	var (
		output   string
		format   string
		kind     string
		noCache  bool
		cacheURL string
	)

	cmd := &cobra.Command{
		Use:   "transcribe <conanfile>",
		Short: "Transcribe one conanfile.py or conanfile.txt",
		Long: `Transcribe the requirements declared in a single Conan manifest.

Every requirement becomes a direct component with a pkg:conan Package URL.
Build tools (tool_requires, build_requires, test_requires) and
python_requires keep their kind and are marked as excluded from the
runtime.`,
		Example: `  cppsbom transcribe conanfile.py
  cppsbom transcribe recipes/conanfile.txt -o sbom.json
  cppsbom transcribe conanfile.py --format table`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != sbom.FormatCycloneDX && format != sbom.FormatTree && format != formatTable {
				return errors.New(errors.ErrCodeInvalidFormat, "invalid format: %q (must be cyclonedx, tree or table)", format)
			}
			path := args[0]
			if kind == "" {
				k, err := pipeline.ManifestKind(path)
				if err != nil {
					return err
				}
				kind = k
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return errors.Wrap(errors.ErrCodeFileNotFound, err, "read %s", path)
			}

			runner, err := c.newRunner(cmd.Context(), noCache, cacheURL)
			if err != nil {
				return fmt.Errorf("initialize runner: %w", err)
			}
			defer runner.Close()

			prog := newProgress(loggerFromContext(cmd.Context()))
			res, err := runner.Transcribe(cmd.Context(), kind, data)
			if err != nil {
				return err
			}
			prog.done(fmt.Sprintf("Transcribed %d requirements from %s", len(res.Components), path))
			if format == formatTable {
				fmt.Println(componentTable(res))
				return nil
			}

			out, err := sbom.Render(cmd.Context(), res, format, sbom.Options{})
			if err != nil {
				return err
			}
			if err := sbom.WriteFile(output, out, os.Stdout); err != nil {
				return fmt.Errorf("write output %s: %w", output, err)
			}
			if output != sbom.Stdout {
				printFile(output)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", sbom.Stdout, "output file ('-' for stdout)")
	cmd.Flags().StringVarP(&format, "format", "f", sbom.FormatCycloneDX, "output format: cyclonedx, tree, table")
	cmd.Flags().StringVar(&kind, "type", "", "manifest type: py or txt (default: from the file name)")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the cache")
	cmd.Flags().StringVar(&cacheURL, "cache-url", "", "cache backend (redis://... or a directory)")

	return cmd
}

// componentTable renders the components of res as a bordered table.
func componentTable(res *scanner.Result) string {
	rows := make([][]string, 0, len(res.Components))
	for _, comp := range res.Components {
		rows = append(rows, []string{comp.Name, comp.Version, string(comp.Kind.OrRuntime()), comp.PURL})
	}

	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("Name", "Version", "Kind", "Package URL").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return headerStyle
			}
			base := lipgloss.NewStyle().Padding(0, 1)
			if row < len(res.Components) && res.Components[row].Kind.IsBuildOnly() {
				return base.Foreground(colorDim)
			}
			if col == 0 {
				return base.Foreground(colorCyan)
			}
			return base
		})
	return t.Render()
}

// kindLabel is the short label shown for build-only components.
func kindLabel(k deps.RequirementKind) string {
	if k.IsBuildOnly() {
		return " " + StyleDim.Render("("+string(k)+")")
	}
	return ""
}
