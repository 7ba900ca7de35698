package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/sitesync/internal/syncer"
)

func newSyncCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Update the local snapshot from Airtable",
		Long: "Check the remote tables and refetch what changed. With --force, or\n" +
			"SITESYNC_FORCE_FULL_SYNC=true, every table is refetched.",
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, force)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "refetch every table")
	return cmd
}

func runSync(cmd *cobra.Command, force bool) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.log.Sync()

	force = force || a.v.GetBool(cfgKeyForceFull)

	s, st, err := a.newSyncer()
	if err != nil {
		return err
	}
	defer st.Close()

	res, err := s.Run(cmd.Context(), syncer.Options{Force: force})
	if err != nil {
		a.log.Error("sync failed", zap.Error(err))
		return err
	}

	out := cmd.OutOrStdout()
	if flags.jsonMode {
		return writeJSON(out, res)
	}
	return printResult(out, res)
}

// printResult writes a human summary of res.
func printResult(w io.Writer, res *syncer.Result) error {
	fmt.Fprintf(w, "Sync mode: %s (%s)\n", res.Mode, res.Reason)
	if res.FallbackError != "" {
		fmt.Fprintf(w, "Fallback: %s\n", res.FallbackError)
	}

	names := make([]string, 0, len(res.Tables))
	for name := range res.Tables {
		names = append(names, name)
	}
	sort.Strings(names)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TABLE\tNEW\tCHANGED\tUNCHANGED\tDELETED")
	for _, name := range names {
		ch := res.Tables[name]
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\n", name, ch.New, ch.Changed, ch.Unchanged, ch.Deleted)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "Records: %d  Checksum: %s  Run: %s\n", res.RecordCount, res.Checksum, res.RunID)
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
