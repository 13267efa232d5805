// Package cli provides the drillgate command line.
package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AtRiskMedia/drillgate/internal/application/container"
	"github.com/AtRiskMedia/drillgate/internal/application/startup"
	"github.com/AtRiskMedia/drillgate/internal/domain/gate"
	"github.com/AtRiskMedia/drillgate/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/drillgate/internal/infrastructure/security"
	"github.com/AtRiskMedia/drillgate/pkg/config"
)

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "drillgate",
		Short: "Progressive content gate for the drill library",
		Long: `drillgate - Serves the gate API that decides when a visitor must leave an
email or verify a broker account before opening more drills.`,
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd(), newInspectCmd(), newResetCmd(), newBrokerCodeCmd())
	return root
}

// Execute runs the root command
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// identityFlags selects a stored record by device or email.
type identityFlags struct {
	device string
	email  string
}

func (f *identityFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.device, "device", "", "anonymous device id (ULID)")
	cmd.Flags().StringVar(&f.email, "email", "", "visitor email")
	cmd.MarkFlagsMutuallyExclusive("device", "email")
	cmd.MarkFlagsOneRequired("device", "email")
}

// key returns the identity key the flags select.
func (f *identityFlags) key() (string, error) {
	if f.email != "" {
		normalized, err := gate.NormalizeEmail(f.email)
		if err != nil {
			return "", err
		}
		return gate.EmailKey(normalized), nil
	}
	device := strings.TrimSpace(f.device)
	if !security.IsULID(device) {
		return "", fmt.Errorf("device %q is not a valid ULID", f.device)
	}
	return gate.AnonymousKey(device), nil
}

// cliLogger writes operator-facing logs to stderr so stdout stays parseable.
func cliLogger() (*logging.ChanneledLogger, error) {
	level := logging.ParseLevel(config.LogLevel)
	if os.Getenv("LOG_LEVEL") == "" {
		level = logging.ParseLevel("WARN")
	}
	return logging.NewChanneledLogger(&logging.LoggerConfig{
		Writer:       os.Stderr,
		JSONFormat:   false,
		DefaultLevel: level,
	})
}

var (
	errNoRecord    = errors.New("no stored record")
	errMemoryStore = errors.New("STORE_DRIVER=memory keeps records inside the server process; point the CLI at sqlite, turso or redis")
)

// openRecordStore builds the container for commands that read or delete
// records written by a running server.
func openRecordStore() (*container.Container, error) {
	if config.StoreDriver == config.StoreMemory {
		return nil, errMemoryStore
	}
	logger, err := cliLogger()
	if err != nil {
		return nil, err
	}
	return startup.BuildContainer(logger)
}
