package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"whatif-planner/internal/model"
)

func newTemplatesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "Browse life-event and decision templates",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List templates",
			RunE: func(cmd *cobra.Command, args []string) error {
				rt, err := a.runtime()
				if err != nil {
					return err
				}
				events, err := rt.svc.LifeEventTemplates(cmd.Context())
				if err != nil {
					return err
				}
				decisions, err := rt.svc.DecisionTemplates(cmd.Context())
				if err != nil {
					return err
				}
				if a.asJSON {
					return printJSON(a.out, map[string]any{"lifeEvents": events, "decisions": decisions})
				}

				tw := table(a.out)
				fmt.Fprintln(tw, "KIND\tKEY\tNAME\tCATEGORY")
				for _, t := range events {
					fmt.Fprintf(tw, "life-event\t%s\t%s\t%s\n", t.Name, t.Title(), t.Category)
				}
				for _, t := range decisions {
					fmt.Fprintf(tw, "decision\t%s\t%s\t\n", t.Key, t.Name)
				}
				return tw.Flush()
			},
		},
		&cobra.Command{
			Use:   "show <name>",
			Short: "Show a life-event template's changes, or a decision's fields",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				rt, err := a.runtime()
				if err != nil {
					return err
				}
				if t, err := rt.svc.LifeEventTemplate(cmd.Context(), args[0]); err == nil {
					if a.asJSON {
						return printJSON(a.out, t)
					}
					showLifeEvent(a, t)
					return nil
				}
				t, err := rt.svc.DecisionTemplate(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("no template named %q: %w", args[0], err)
				}
				if a.asJSON {
					return printJSON(a.out, t)
				}
				showDecision(a, t)
				return nil
			},
		},
	)
	return cmd
}

func showLifeEvent(a *app, t model.LifeEventTemplate) {
	writeln(a.out, "%s (%s)", t.Title(), t.Name)
	if t.Description != "" {
		writeln(a.out, "%s", t.Description)
	}
	for i, c := range t.SuggestedChanges {
		var flags []string
		switch {
		case c.IsRequired:
			flags = append(flags, "required")
		case c.ChoiceGroup != "":
			flags = append(flags, "choice:"+c.ChoiceGroup)
		case c.EnabledByDefault:
			flags = append(flags, "default on")
		default:
			flags = append(flags, "optional")
		}
		if c.RequiresSourceFlow {
			flags = append(flags, "needs sourceFlowId")
		}
		writeln(a.out, "  [%d] %s  %s  (%s)", i, c.Name, c.ChangeType, strings.Join(flags, ", "))

		keys := make([]string, 0, len(c.ParameterTemplate))
		for k := range c.ParameterTemplate {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			writeln(a.out, "      %s = %v", k, c.ParameterTemplate[k])
		}
	}
}

func showDecision(a *app, t model.DecisionTemplate) {
	writeln(a.out, "%s (%s)", t.Name, t.Key)
	for i, st := range t.Steps {
		writeln(a.out, "  step %d: %s", i+1, st.Title)
		for _, f := range st.Fields {
			line := fmt.Sprintf("    %s  %s  %s", f.Key, f.Kind, f.Label)
			if f.Required {
				line += "  required"
			}
			if len(f.Options) > 0 {
				line += "  [" + strings.Join(f.Options, "|") + "]"
			}
			if f.ShowIf != nil {
				line += fmt.Sprintf("  when %s=%v", f.ShowIf.Field, f.ShowIf.Equals)
			}
			writeln(a.out, "%s", line)
		}
	}
}
