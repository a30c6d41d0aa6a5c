package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/tutu-network/focus/internal/daemon"
)

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to listen on (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides config)")
	serveCmd.Flags().BoolVar(&serveNoSweep, "no-sweep", false, "Disable the scheduled reward sweep")
	rootCmd.AddCommand(serveCmd)
}

var (
	serveHost    string
	servePort    int
	serveNoSweep bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the focus API server",
	Long:  `Start the HTTP API at localhost:8420 and the daily reward sweep.`,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	// Override config from flags
	if serveHost != "" {
		d.Config.API.Host = serveHost
	}
	if servePort > 0 {
		d.Config.API.Port = servePort
	}
	if serveNoSweep {
		d.Config.Sweep.Enabled = false
	}

	return d.Serve(context.Background())
}
