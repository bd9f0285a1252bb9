package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newScenariosCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "scenarios",
		Aliases: []string{"scenario"},
		Short:   "List, compute or delete scenarios",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List scenarios",
			RunE: func(cmd *cobra.Command, args []string) error {
				rt, err := a.runtime()
				if err != nil {
					return err
				}
				list, err := rt.svc.Scenarios(cmd.Context())
				if err != nil {
					return err
				}
				if a.asJSON {
					return printJSON(a.out, list)
				}
				tw := table(a.out)
				fmt.Fprintln(tw, "ID\tNAME\tSTART\tBASELINE")
				for _, s := range list {
					base := ""
					if s.IsBaseline {
						base = "yes"
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.ID, s.Name, s.StartDate, base)
				}
				return tw.Flush()
			},
		},
		&cobra.Command{
			Use:   "compute <id>",
			Short: "Recompute a scenario's projection",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				rt, err := a.runtime()
				if err != nil {
					return err
				}
				resp, err := rt.svc.ComputeScenario(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if a.asJSON {
					return printJSON(a.out, resp)
				}
				writeln(a.out, "Computed %s: %d months projected", args[0], len(resp.Projections))
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete <id>",
			Short: "Delete a scenario",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				rt, err := a.runtime()
				if err != nil {
					return err
				}
				if err := rt.svc.DeleteScenario(cmd.Context(), args[0]); err != nil {
					return err
				}
				writeln(a.out, "Deleted %s", args[0])
				return nil
			},
		},
	)
	return cmd
}
