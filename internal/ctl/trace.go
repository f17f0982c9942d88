package ctl

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"rsmu-go/errcode"
	"rsmu-go/services/tdcsync"
)

// NewTraceCommand prints a tdcsyncd CBOR trace file.
func NewTraceCommand() *cobra.Command {
	var utc bool
	cmd := &cobra.Command{
		Use:   "trace <file>",
		Short: "Print a sync-loop trace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return &errcode.E{C: errcode.InvalidArgument, Op: "trace", Err: err}
			}
			defer f.Close()

			recs, err := tdcsync.ReadTrace(f)
			out := cmd.OutOrStdout()
			for _, r := range recs {
				ts := r.Time
				if utc {
					ts = ts.UTC()
				}
				fmt.Fprintf(out, "%6d %s %-13s %-10s raw=%d offset=%d adj=%.3f",
					r.Seq, ts.Format(time.RFC3339Nano), r.State, r.Mode, r.RawNs, r.OffsetNs, r.AdjPPB)
				if r.Action != "" {
					fmt.Fprintf(out, " action=%s", r.Action)
				}
				if r.Error != "" {
					fmt.Fprintf(out, " error=%q", r.Error)
				}
				fmt.Fprintln(out)
			}
			if err != nil {
				return &errcode.E{C: errcode.InvalidArgument, Op: "trace", Msg: "truncated trace", Err: err}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&utc, "utc", false, "print timestamps in UTC")
	return cmd
}
