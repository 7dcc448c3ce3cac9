package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/cppsbom/pkg/cache"
	"github.com/matzehuels/cppsbom/pkg/server"
	"github.com/matzehuels/cppsbom/pkg/store"
)

// serveCommand creates the HTTP API command.
func (c *CLI) serveCommand() *cobra.Command {
	var (
		flags      scanFlags
		addr       string
		root       string
		archiveURI string
		archiveDB  string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the scan API over HTTP",
		Long: `Serve the scan API over HTTP.

Scan requests name a directory relative to --root; paths escaping the root
are rejected. Generated SBOMs are archived in MongoDB when --archive is set
and kept in memory otherwise.`,
		Example: `  cppsbom serve --root /srv/projects
  cppsbom serve --addr :9000 --archive mongodb://localhost:27017`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.prepare(cmd, &flags)
			if err != nil {
				return err
			}
			fs := cmd.Flags()
			if !fs.Changed("addr") {
				addr = cfg.Serve.Addr
			}
			if !fs.Changed("root") {
				root = cfg.Serve.Root
			}
			if !fs.Changed("archive") {
				archiveURI = cfg.Archive.URI
			}
			if !fs.Changed("archive-db") {
				archiveDB = cfg.Archive.Database
			}

			ctx := cmd.Context()
			runner, err := c.newRunner(ctx, flags.noCache, flags.cacheURL)
			if err != nil {
				return fmt.Errorf("initialize runner: %w", err)
			}
			defer runner.Close()
			runner.Keyer = cache.NewScopedKeyer(runner.Keyer, "serve:")

			var st store.Store = store.NewMemoryStore()
			if archiveURI != "" {
				mongo, err := store.NewMongoStore(ctx, archiveURI, archiveDB)
				if err != nil {
					return err
				}
				st = mongo
			}
			defer st.Close()

			scan := flags.options(cfg)
			scan.Logger = c.Logger
			srv := server.New(runner, st, server.Options{Root: root, Scan: scan}, c.Logger)
			return srv.ListenAndServe(ctx, addr)
		},
	}

	flags.register(cmd.Flags())
	cmd.Flags().StringVar(&addr, "addr", server.DefaultAddr, "listen address")
	cmd.Flags().StringVar(&root, "root", ".", "directory scan requests are confined to")
	cmd.Flags().StringVar(&archiveURI, "archive", "", "MongoDB URI for the SBOM archive")
	cmd.Flags().StringVar(&archiveDB, "archive-db", store.DefaultDatabase, "MongoDB database for --archive")

	return cmd
}
