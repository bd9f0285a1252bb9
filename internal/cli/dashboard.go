package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"whatif-planner/internal/kpi"
)

func newDashboardCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Show KPIs, accounts and the baseline projection",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := a.runtime()
			if err != nil {
				return err
			}
			d := rt.svc.Dashboard(cmd.Context())
			if a.asJSON {
				return printJSON(a.out, struct {
					Data     any               `json:"data"`
					HasError bool              `json:"hasError"`
					Errors   map[string]string `json:"errors"`
				}{d, d.HasError(), d.ErrorMessages()})
			}

			tw := table(a.out)
			for _, c := range d.Cards {
				line := fmt.Sprintf("%s\t%s\t%s", c.Label, c.Display, c.Status)
				if c.DeltaDisplay != "" {
					line += "\t" + c.DeltaDisplay + " vs goal"
				}
				fmt.Fprintln(tw, line)
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			if len(d.AccountGroups) > 0 {
				writeln(a.out, "\nAccounts")
				tw = table(a.out)
				for _, g := range d.AccountGroups {
					fmt.Fprintf(tw, "%s\t%d\t%s\n", g.Category, len(g.Accounts), kpi.Money(g.Total))
				}
				if err := tw.Flush(); err != nil {
					return err
				}
			}

			if n := len(d.NetWorthSeries); n > 0 {
				first, last := d.NetWorthSeries[0], d.NetWorthSeries[n-1]
				writeln(a.out, "\nProjected net worth: %s (%s) → %s (%s)", kpi.Money(first.Value), first.Month, kpi.Money(last.Value), last.Month)
			}

			if d.HasError() {
				msgs := d.ErrorMessages()
				keys := make([]string, 0, len(msgs))
				for k := range msgs {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				writeln(a.errOut, "\nSome data could not be loaded:")
				for _, k := range keys {
					writeln(a.errOut, "  %s: %s", k, msgs[k])
				}
			}
			return nil
		},
	}
}
