package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tutu-network/focus/internal/daemon"
)

func init() {
	rootCmd.AddCommand(sweepCmd)
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run the reward sweep once for every active user",
	Long: `Check streak milestones and weekly goals for every active user now and
print a summary. Users that fail are reported and do not stop the run.`,
	RunE: runSweep,
}

func runSweep(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	sum, err := d.Sweep.Trigger(context.Background())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "As of:\t%s\n", sum.AsOf.In(d.Location).Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(w, "Processed:\t%d\n", sum.Processed)
	fmt.Fprintf(w, "Successful:\t%d\n", sum.Successful)
	fmt.Fprintf(w, "Failed:\t%d\n", sum.Failed)
	fmt.Fprintf(w, "Rewarded XP:\t%d\n", sum.RewardedXP)
	fmt.Fprintf(w, "Took:\t%s\n", sum.FinishedAt.Sub(sum.StartedAt).Round(time.Millisecond))
	if err := w.Flush(); err != nil {
		return err
	}

	if len(sum.Failures) > 0 {
		w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "\nUSER\tKIND\tATTEMPTS\tERROR")
		for _, f := range sum.Failures {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", f.UserID, f.Kind, f.Attempts, f.Error)
		}
		return w.Flush()
	}
	return nil
}
