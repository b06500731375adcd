package cli

import (
	"github.com/spf13/cobra"

	"github.com/mrlokans/librarian/internal/config"
	"github.com/mrlokans/librarian/internal/entrypoint"
)

// NewRootCommand builds the librarian command tree. Running the binary
// without a subcommand starts the HTTP server.
func NewRootCommand(version string) *cobra.Command {
	root := &cobra.Command{
		Use:           "librarian",
		Short:         "Library lending service",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			entrypoint.Run(config.NewConfig(), version)
			return nil
		},
	}

	root.AddCommand(
		NewServeCommand(version),
		NewCreateUserCommand(),
		NewReconcileCommand(),
	)
	return root
}

func NewServeCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entrypoint.Run(config.NewConfig(), version)
			return nil
		},
	}
}
