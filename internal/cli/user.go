package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tutu-network/focus/internal/daemon"
)

func init() {
	userAddCmd.Flags().IntVar(&userDailyLimit, "daily-limit", 0, "Tasks per day (0 uses the configured default)")
	userCmd.AddCommand(userAddCmd, userShowCmd, userListCmd, userEnableCmd, userDisableCmd)
	rootCmd.AddCommand(userCmd)
}

var userDailyLimit int

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
}

var userAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Register a user and print its ID",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := daemon.New()
		if err != nil {
			return err
		}
		defer d.Close()

		u, err := d.Accounts.Register(context.Background(), args[0], userDailyLimit)
		if err != nil {
			return err
		}
		fmt.Println(u.ID)
		return nil
	},
}

var userShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show a user's level and XP",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := daemon.New()
		if err != nil {
			return err
		}
		defer d.Close()

		ctx := context.Background()
		u, err := d.Accounts.Get(ctx, args[0])
		if err != nil {
			return err
		}
		p, err := d.Levels.Progress(ctx, u.ID)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "Name:\t%s\n", u.Name)
		fmt.Fprintf(w, "Level:\t%d\n", p.Level)
		fmt.Fprintf(w, "XP:\t%d (%d to next, %.0f%%)\n", p.XP, p.XPToNextLevel, p.ProgressPct)
		fmt.Fprintf(w, "Streak milestone:\t%d\n", u.LastStreakRewardMilestone)
		fmt.Fprintf(w, "Active:\t%t\n", u.Active)
		return w.Flush()
	},
}

var userListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List users included in the reward sweep",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := daemon.New()
		if err != nil {
			return err
		}
		defer d.Close()

		ctx := context.Background()
		ids, err := d.Accounts.ListActive(ctx)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			fmt.Println("No active users. Run 'focus user add <name>' to get started.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tLEVEL\tXP\tCREATED")
		for _, id := range ids {
			u, err := d.Accounts.Get(ctx, id)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n",
				u.ID, u.Name, u.Level, u.XP, u.CreatedAt.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

var userEnableCmd = &cobra.Command{
	Use:   "enable ID",
	Short: "Include a user in the reward sweep",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setActive(args[0], true) },
}

var userDisableCmd = &cobra.Command{
	Use:   "disable ID",
	Short: "Exclude a user from the reward sweep",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setActive(args[0], false) },
}

func setActive(id string, active bool) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Accounts.SetActive(context.Background(), id, active)
}
