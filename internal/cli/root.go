// Package cli is the whatif command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Execute runs the root command.
func Execute(version string) error {
	a := newApp(os.Stdout, os.Stderr)
	root := newRootCmd(a)
	root.Version = version
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "whatif",
		Short: "What-if planning for household finances",
		Long: `whatif talks to the planning backend: it shows the dashboard, manages
scenarios and runs life-event and decision wizards from answer files.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(a.out)
	root.SetErr(a.errOut)

	root.PersistentFlags().StringVar(&a.cfgPath, "config", "", "Config file (YAML)")
	root.PersistentFlags().BoolVar(&a.asJSON, "json", false, "Print JSON instead of text")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		newLoginCmd(a),
		newLogoutCmd(a),
		newStatusCmd(a),
		newHouseholdsCmd(a),
		newDashboardCmd(a),
		newScenariosCmd(a),
		newTemplatesCmd(a),
		newLifeEventCmd(a),
		newDecisionCmd(a),
		newServeCmd(a),
	)
	return root
}

func writeln(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, format+"\n", args...)
}
