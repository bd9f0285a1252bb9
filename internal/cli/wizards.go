package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"whatif-planner/internal/decision"
	"whatif-planner/internal/kpi"
	"whatif-planner/internal/model"
	"whatif-planner/internal/wizard"
)

type scenarioFlags struct {
	answers    string
	mode       string
	name       string
	scenarioID string
	date       string
}

func (f *scenarioFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.answers, "answers", "f", "", "YAML answer file")
	cmd.Flags().StringVar(&f.mode, "mode", "", "create or append")
	cmd.Flags().StringVar(&f.name, "name", "", "Name of the new scenario")
	cmd.Flags().StringVar(&f.scenarioID, "scenario", "", "Existing scenario to append to")
	cmd.Flags().StringVar(&f.date, "date", "", "Effective date, YYYY-MM-DD (default today)")
}

func readAnswers(path string, out any) error {
	if path == "" {
		return nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(b, out); err != nil {
		return fmt.Errorf("answers %s: %w", path, err)
	}
	return nil
}

func newLifeEventCmd(a *app) *cobra.Command {
	var (
		sf      scenarioFlags
		include []int
		skip    []int
		choose  []int
		set     []string
		dryRun  bool
	)
	cmd := &cobra.Command{
		Use:   "life-event <template>",
		Short: "Run a life-event wizard from an answer file and flags",
		Long: `Fills the life-event wizard for <template>, shows the review and submits it:
create (or append to) a scenario, apply the template, compute the projection.
A failed apply or compute deletes a scenario this run created.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := a.runtime()
			if err != nil {
				return err
			}
			var ans wizard.Answers
			if err := readAnswers(sf.answers, &ans); err != nil {
				return err
			}
			override(&ans.Mode, sf.mode)
			override(&ans.Name, sf.name)
			override(&ans.ScenarioID, sf.scenarioID)
			override(&ans.EffectiveDate, sf.date)
			if ans.Include == nil {
				ans.Include = map[int]bool{}
			}
			for _, i := range include {
				ans.Include[i] = true
			}
			for _, i := range skip {
				ans.Include[i] = false
			}
			ans.Choices = append(ans.Choices, choose...)
			if err := applySets(&ans, set); err != nil {
				return err
			}
			if ans.Mode == "append" && ans.ScenarioName == "" {
				ans.ScenarioName = scenarioName(cmd, rt, ans.ScenarioID)
			}

			n := notifier{w: a.errOut}
			w, err := rt.svc.LifeEventWizard(cmd.Context(), args[0], n)
			if err != nil {
				return err
			}
			if err := w.Fill(ans); err != nil {
				return err
			}
			review := w.Review()
			if dryRun {
				if a.asJSON {
					return printJSON(a.out, review)
				}
				printReview(a, review)
				return nil
			}
			if !a.asJSON {
				printReview(a, review)
			}

			res, err := w.Submit(cmd.Context())
			if err != nil {
				return err
			}
			return printResult(a, res)
		},
	}
	sf.register(cmd)
	cmd.Flags().IntSliceVar(&include, "include", nil, "Include optional change by index")
	cmd.Flags().IntSliceVar(&skip, "skip", nil, "Skip change by index")
	cmd.Flags().IntSliceVar(&choose, "choose", nil, "Select a choice-group member by index")
	cmd.Flags().StringArrayVar(&set, "set", nil, "Parameter as <index>.<key>=<value>")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show the review without submitting")
	return cmd
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func applySets(ans *wizard.Answers, sets []string) error {
	for _, s := range sets {
		lhs, value, ok := strings.Cut(s, "=")
		idxStr, key, ok2 := strings.Cut(lhs, ".")
		idx, err := strconv.Atoi(idxStr)
		if !ok || !ok2 || err != nil || key == "" {
			return fmt.Errorf("--set %q: want <index>.<key>=<value>", s)
		}
		if ans.Params == nil {
			ans.Params = map[int]map[string]any{}
		}
		if ans.Params[idx] == nil {
			ans.Params[idx] = map[string]any{}
		}
		ans.Params[idx][key] = value
	}
	return nil
}

func scenarioName(cmd *cobra.Command, rt *runtime, id string) string {
	list, err := rt.svc.Scenarios(cmd.Context())
	if err != nil {
		return ""
	}
	for _, s := range list {
		if s.ID == id {
			return s.Name
		}
	}
	return ""
}

func printReview(a *app, r wizard.Review) {
	target := r.ScenarioName
	if r.Mode == "append" {
		target = fmt.Sprintf("%s (%s)", r.ScenarioName, r.ScenarioID)
	}
	writeln(a.out, "%s → %s %s, effective %s", r.Template, r.Mode, target, r.EffectiveDate)
	for _, c := range r.Changes {
		writeln(a.out, "  [%d] %s (%s)", c.Index, c.Name, c.ChangeType)
	}
	if p := r.Preview; p != nil {
		writeln(a.out, "Monthly surplus: %s → %s", kpi.Money(p.Before.Surplus), kpi.Money(p.After.Surplus))
		for _, m := range p.Messages {
			writeln(a.out, "  %s %s: %s", m.Level, m.Code, m.Message)
		}
	}
}

func printResult(a *app, res model.WizardResult) error {
	if a.asJSON {
		return printJSON(a.out, res)
	}
	writeln(a.out, "Scenario %s (%s): %d changes applied", res.ScenarioName, res.ScenarioID, res.ChangesApplied)
	return nil
}

func newDecisionCmd(a *app) *cobra.Command {
	var (
		sf  scenarioFlags
		set []string
	)
	cmd := &cobra.Command{
		Use:   "decision <key>",
		Short: "Run a decision wizard from an answer file and flags",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := a.runtime()
			if err != nil {
				return err
			}
			var ans decision.Answers
			if err := readAnswers(sf.answers, &ans); err != nil {
				return err
			}
			override(&ans.Mode, sf.mode)
			override(&ans.Name, sf.name)
			override(&ans.ScenarioID, sf.scenarioID)
			override(&ans.EffectiveDate, sf.date)
			for _, s := range set {
				k, v, ok := strings.Cut(s, "=")
				if !ok || k == "" {
					return fmt.Errorf("--set %q: want <field>=<value>", s)
				}
				if ans.Values == nil {
					ans.Values = map[string]any{}
				}
				ans.Values[k] = v
			}
			if ans.Mode == "append" && ans.ScenarioName == "" {
				ans.ScenarioName = scenarioName(cmd, rt, ans.ScenarioID)
			}

			res, err := rt.svc.SubmitDecision(cmd.Context(), args[0], ans, notifier{w: a.errOut})
			if err != nil {
				return err
			}
			return printResult(a, res)
		},
	}
	sf.register(cmd)
	cmd.Flags().StringArrayVar(&set, "set", nil, "Field value as <field>=<value>")
	return cmd
}
