package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/AtRiskMedia/drillgate/internal/domain/gate"
	"github.com/AtRiskMedia/drillgate/internal/infrastructure/security"
	"github.com/AtRiskMedia/drillgate/pkg/config"
)

func newBrokerCodeCmd() *cobra.Command {
	var email string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "broker-code",
		Short: "Issue a broker confirmation code for an email",
		Long: `Issues the signed confirmation code a broker partner hands back to the
visitor after account creation. Requires BROKER_CODE_SECRET.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if config.BrokerCodeSecret == "" {
				return errors.New("BROKER_CODE_SECRET is not set")
			}
			normalized, err := gate.NormalizeEmail(email)
			if err != nil {
				return err
			}
			code, err := security.GenerateBrokerCode(config.BrokerCodeSecret, normalized, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), code)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "visitor email")
	cmd.Flags().DurationVar(&ttl, "ttl", 7*24*time.Hour, "code lifetime")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}
