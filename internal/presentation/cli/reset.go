package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newResetCmd() *cobra.Command {
	var flags identityFlags

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete the stored gate record for a device or email",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := flags.key()
			if err != nil {
				return err
			}

			c, err := openRecordStore()
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.GateService.Forget(cmd.Context(), key); err != nil {
				return fmt.Errorf("reset %s: %w", key, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "RESET %s\n", key)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}
