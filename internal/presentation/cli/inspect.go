package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/AtRiskMedia/drillgate/internal/domain/gate"
)

type inspectOutput struct {
	IdentityKey            string   `json:"identityKey"`
	Stage                  string   `json:"stage"`
	ActiveGate             string   `json:"activeGate"`
	RemainingViews         int      `json:"remainingViews"`
	DrillsViewed           int      `json:"drillsViewed"`
	DrillsViewedAfterEmail int      `json:"drillsViewedAfterEmail"`
	HasEmail               bool     `json:"hasEmail"`
	HasBrokerAccount       bool     `json:"hasBrokerAccount"`
	DismissedGate          string   `json:"dismissedGate"`
	SessionStart           string   `json:"sessionStart"`
	ViewedDrillIDs         []string `json:"viewedDrillIds"`
}

func newInspectCmd() *cobra.Command {
	var flags identityFlags
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show the stored gate record for a device or email",
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

			state, err := c.GateService.Inspect(cmd.Context(), key)
			if err != nil {
				return fmt.Errorf("load %s: %w", key, err)
			}
			if state == nil {
				return fmt.Errorf("%w for %s", errNoRecord, key)
			}
			return writeInspect(cmd.OutOrStdout(), key, state, c.GateConfig, jsonOutput)
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print JSON")
	return cmd
}

func writeInspect(w io.Writer, key string, state *gate.SessionState, cfg gate.Config, asJSON bool) error {
	out := inspectOutput{
		IdentityKey:            key,
		Stage:                  string(gate.CurrentStage(state)),
		ActiveGate:             string(gate.ComputeGate(state, cfg)),
		RemainingViews:         gate.RemainingViews(state, cfg),
		DrillsViewed:           state.DrillsViewed,
		DrillsViewedAfterEmail: state.DrillsViewedAfterEmail,
		HasEmail:               state.HasEmail,
		HasBrokerAccount:       state.HasBrokerAccount,
		DismissedGate:          string(state.DismissedGate),
		SessionStart:           state.SessionStart.UTC().Format("2006-01-02T15:04:05Z"),
		ViewedDrillIDs:         state.ViewedIDs(),
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Fprintf(w, "IDENTITY: %s\n", out.IdentityKey)
	fmt.Fprintf(w, "  stage:          %s\n", out.Stage)
	fmt.Fprintf(w, "  active gate:    %s\n", out.ActiveGate)
	if out.RemainingViews == gate.Unlimited {
		fmt.Fprintf(w, "  remaining:      unlimited\n")
	} else {
		fmt.Fprintf(w, "  remaining:      %d\n", out.RemainingViews)
	}
	fmt.Fprintf(w, "  drills viewed:  %d (%d after email)\n", out.DrillsViewed, out.DrillsViewedAfterEmail)
	fmt.Fprintf(w, "  session start:  %s\n", out.SessionStart)
	for _, id := range out.ViewedDrillIDs {
		fmt.Fprintf(w, "    - %s\n", id)
	}
	return nil
}
