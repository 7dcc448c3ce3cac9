package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/matzehuels/cppsbom/pkg/pipeline"
	"github.com/matzehuels/cppsbom/pkg/scanner"
)

// completionCommand creates the completion command for generating shell completions.
func (c *CLI) completionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate a shell completion script for cppsbom.

Besides subcommands and flags, the scripts complete strategy names for
--strategies and the manifest type for 'transcribe --type'.`,
		Example: `  # current bash session
  source <(cppsbom completion bash)

  # every zsh session (restart the shell afterwards)
  cppsbom completion zsh > "${fpath[1]}/_cppsbom"

  # fish
  cppsbom completion fish > ~/.config/fish/completions/cppsbom.fish

  # then try: cppsbom scan --strategies <TAB>`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletionV2(os.Stdout, true)
			case "zsh":
				return cmd.Root().GenZshCompletion(os.Stdout)
			case "fish":
				return cmd.Root().GenFishCompletion(os.Stdout, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(os.Stdout)
			}
			return nil
		},
	}

	return cmd
}

// registerCompletions attaches value completion to the flags that take
// a fixed vocabulary, on every command that declares them.
func registerCompletions(root *cobra.Command) {
	fixed := map[string]func() []string{
		"strategies": func() []string { return scanner.Names(scanner.All()) },
		"type":       func() []string { return []string{pipeline.ManifestPy, pipeline.ManifestTxt} },
	}
	var walk func(cmd *cobra.Command)
	walk = func(cmd *cobra.Command) {
		for name, values := range fixed {
			if cmd.Flags().Lookup(name) == nil {
				continue
			}
			_ = cmd.RegisterFlagCompletionFunc(name, func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
				return values(), cobra.ShellCompDirectiveNoFileComp
			})
		}
		for _, sub := range cmd.Commands() {
			walk(sub)
		}
	}
	walk(root)
}
