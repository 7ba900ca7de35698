package cli

import (
	"errors"
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/sitesync/internal/store"
	"github.com/mesh-intelligence/sitesync/pkg/types"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the stored snapshot's sync metadata",
		Long:  "Read the local snapshot and print when and how it was last synced. No remote call is made.",
		Args:  noArgs,
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.log.Sync()

	st, err := store.Open(a.cfg.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	out := cmd.OutOrStdout()
	snap, err := st.Load(cmd.Context())
	if errors.Is(err, types.ErrNoSnapshot) {
		if flags.jsonMode {
			return writeJSON(out, map[string]any{"synced": false})
		}
		fmt.Fprintln(out, "No snapshot yet. Run `sitesync sync`.")
		return nil
	}
	if err != nil {
		return err
	}

	meta := snap.Metadata
	if flags.jsonMode {
		return writeJSON(out, meta)
	}

	fmt.Fprintf(out, "Last sync: %s (%s)\n", meta.LastSync.Format(time.RFC3339), meta.Mode)
	fmt.Fprintf(out, "Run: %s\nChecksum: %s\n", meta.RunID, meta.Checksum)

	names := make([]string, 0, len(meta.Tables))
	for name := range meta.Tables {
		names = append(names, name)
	}
	sort.Strings(names)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TABLE\tRECORDS\tLAST MODIFIED\tSYNCED")
	for _, name := range names {
		tm := meta.Tables[name]
		lm := "-"
		if !tm.LastModified.IsZero() {
			lm = tm.LastModified.Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", name, tm.RecordCount, lm, tm.SyncedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}
