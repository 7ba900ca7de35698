// Package cli implements the sitesync command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/sitesync/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// errUsage marks flag and argument errors.
var errUsage = errors.New("usage error")

// rootFlags holds global flag values accessible to all subcommands.
type rootFlags struct {
	configDir string
	dataDir   string
	jsonMode  bool
	verbose   bool
}

var flags rootFlags

// NewRootCmd creates the top-level "sitesync" command with global flags
// and all subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "sitesync",
		Short: "Mirror an Airtable base into a local content snapshot",
		Long: "sitesync pulls the configured Airtable tables into a local snapshot\n" +
			"that the site build reads. Runs refetch only what changed unless forced.",
		// Do not print usage on errors returned by subcommands.
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return fmt.Errorf("%w: %w", errUsage, err)
	})

	root.PersistentFlags().StringVar(&flags.configDir, "config-dir", "", "configuration directory (default: ./.sitesync or the user config dir)")
	root.PersistentFlags().StringVar(&flags.dataDir, "data-dir", "", "snapshot directory (default: ./data)")
	root.PersistentFlags().BoolVar(&flags.jsonMode, "json", false, "output in JSON format")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newInitCmd())
	root.AddCommand(newSyncCmd())
	root.AddCommand(newServeCmd())
	root.AddCommand(newStatusCmd())

	return root
}

// Execute runs the root command and exits with the appropriate code.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(exitCode(err))
	}
}

// exitCode maps configuration and usage mistakes to exitUserError and
// everything else to exitSysError.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitSuccess
	case errors.Is(err, errUsage),
		errors.Is(err, types.ErrMissingCredentials),
		errors.Is(err, types.ErrNoTables),
		errors.Is(err, types.ErrDuplicateTable),
		errors.Is(err, types.ErrBackendEmpty),
		errors.Is(err, types.ErrBackendUnknown):
		return exitUserError
	default:
		return exitSysError
	}
}

// noArgs is cobra.NoArgs reported as a usage error.
func noArgs(cmd *cobra.Command, args []string) error {
	if err := cobra.NoArgs(cmd, args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	return nil
}
