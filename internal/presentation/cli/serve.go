package cli

import (
	"github.com/spf13/cobra"

	"github.com/AtRiskMedia/drillgate/internal/application/startup"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gate HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return startup.Initialize()
		},
	}
}
