// Package decision drives template-defined decision wizards. Each step is a set
// of fields; fields can be hidden by a showIf condition on another field.
package decision

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"whatif-planner/internal/logger"
	"whatif-planner/internal/model"
	"whatif-planner/internal/query"
	"whatif-planner/internal/scenarioflow"
	"whatif-planner/internal/wizard"
)

type API interface {
	scenarioflow.API
	ApplyDecisionTemplate(ctx context.Context, key string, req model.ApplyDecisionRequest) (model.ApplyDecisionResponse, error)
}

type Deps struct {
	API      API
	Cache    query.Invalidator
	Notifier wizard.Notifier
	Log      *zap.Logger
	Now      func() time.Time
	Sources  wizard.Sources
}

type Wizard struct {
	mu sync.Mutex

	tmpl    model.DecisionTemplate
	api     API
	runner  *scenarioflow.Runner
	notify  wizard.Notifier
	log     *zap.Logger
	now     func() time.Time
	sources wizard.Sources

	// step indexes tmpl.Steps; len(tmpl.Steps) is the review step.
	step    int
	reached int
	values  map[string]any

	mode          scenarioflow.Mode
	name          string
	scenarioID    string
	scenarioName  string
	effectiveDate string

	submitting bool
	result     *model.WizardResult
}

func New(tmpl model.DecisionTemplate, deps Deps) *Wizard {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	log := logger.OrNop(deps.Log).With(zap.String("decision", tmpl.Key))
	w := &Wizard{
		tmpl:    tmpl,
		api:     deps.API,
		notify:  wizard.NotifierOrNop(deps.Notifier),
		log:     log,
		now:     now,
		sources: deps.Sources,
		values:  map[string]any{},
		mode:    scenarioflow.ModeCreate,
		name:    tmpl.Name,
		runner:  &scenarioflow.Runner{API: deps.API, Cache: deps.Cache, Log: log, Now: now},
	}
	for _, st := range tmpl.Steps {
		for _, f := range st.Fields {
			if f.Default != nil {
				w.values[f.Key] = f.Default
			}
		}
	}
	return w
}

func (w *Wizard) Template() model.DecisionTemplate { return w.tmpl }

// Step returns the current step index; StepCount() means review.
func (w *Wizard) Step() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step
}

func (w *Wizard) StepCount() int { return len(w.tmpl.Steps) }

func (w *Wizard) AtReview() bool { return w.Step() == len(w.tmpl.Steps) }

func (w *Wizard) Done() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.result != nil
}

func (w *Wizard) SetScenario(mode scenarioflow.Mode, name, scenarioID, scenarioName string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editable(); err != nil {
		return err
	}
	if mode != scenarioflow.ModeCreate && mode != scenarioflow.ModeAppend {
		return fmt.Errorf("unknown scenario mode %q", mode)
	}
	w.mode = mode
	w.name = name
	w.scenarioID = strings.TrimSpace(scenarioID)
	w.scenarioName = scenarioName
	return nil
}

func (w *Wizard) SetEffectiveDate(date string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editable(); err != nil {
		return err
	}
	date = strings.TrimSpace(date)
	if date != "" {
		if _, err := time.Parse(time.DateOnly, date); err != nil {
			return fmt.Errorf("effective date %q is not YYYY-MM-DD", date)
		}
	}
	w.effectiveDate = date
	return nil
}

func (w *Wizard) editable() error {
	if w.submitting {
		return wizard.ErrSubmissionInFlight
	}
	if w.result != nil {
		return fmt.Errorf("decision %s already submitted", w.tmpl.Key)
	}
	return nil
}

// Set parses raw input according to the field's kind. Blank input clears it.
func (w *Wizard) Set(key, raw string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editable(); err != nil {
		return err
	}
	f, ok := w.field(key)
	if !ok {
		return fmt.Errorf("unknown field %q", key)
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		delete(w.values, key)
		return nil
	}
	v, err := parseField(f, raw)
	if err != nil {
		return err
	}
	w.values[key] = v
	return nil
}

func parseField(f model.DecisionField, raw string) (any, error) {
	switch f.Kind {
	case model.FieldNumber:
		d, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", ""))
		if err != nil {
			return nil, fmt.Errorf("%s must be a number", f.Label)
		}
		return d.InexactFloat64(), nil
	case model.FieldBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("%s must be true or false", f.Label)
		}
		return b, nil
	case model.FieldDate:
		if _, err := time.Parse(time.DateOnly, raw); err != nil {
			return nil, fmt.Errorf("%s must be a YYYY-MM-DD date", f.Label)
		}
		return raw, nil
	case model.FieldSelect:
		for _, o := range f.Options {
			if o == raw {
				return raw, nil
			}
		}
		return nil, fmt.Errorf("%s must be one of %s", f.Label, strings.Join(f.Options, ", "))
	}
	return raw, nil
}

func (w *Wizard) field(key string) (model.DecisionField, bool) {
	for _, st := range w.tmpl.Steps {
		for _, f := range st.Fields {
			if f.Key == key {
				return f, true
			}
		}
	}
	return model.DecisionField{}, false
}

// Visible reports whether a field's showIf condition currently holds.
func (w *Wizard) Visible(f model.DecisionField) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.visible(f)
}

func (w *Wizard) visible(f model.DecisionField) bool {
	return w.visibleFrom(f, map[string]bool{})
}

// visibleFrom also requires the controlling field to be visible, so a stale
// value on a hidden controller cannot reveal its dependents. seen guards
// against showIf cycles.
func (w *Wizard) visibleFrom(f model.DecisionField, seen map[string]bool) bool {
	if f.ShowIf == nil {
		return true
	}
	if seen[f.Key] {
		return false
	}
	seen[f.Key] = true
	v, ok := w.values[f.ShowIf.Field]
	if !ok || fmt.Sprint(v) != fmt.Sprint(f.ShowIf.Equals) {
		return false
	}
	if ctrl, found := w.field(f.ShowIf.Field); found {
		return w.visibleFrom(ctrl, seen)
	}
	return true
}

// Next validates the visible fields of the current step and advances.
func (w *Wizard) Next() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editable(); err != nil {
		return err
	}
	if w.step >= len(w.tmpl.Steps) {
		return errors.New("already at review")
	}
	if err := w.validateStep(w.step); err != nil {
		return err
	}
	w.step++
	if w.step > w.reached {
		w.reached = w.step
	}
	return nil
}

func (w *Wizard) Back() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editable(); err != nil {
		return err
	}
	if w.step == 0 {
		return errors.New("already at the first step")
	}
	w.step--
	return nil
}

func (w *Wizard) GoTo(step int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editable(); err != nil {
		return err
	}
	if step < 0 || step > w.reached {
		return wizard.ErrStepLocked
	}
	w.step = step
	return nil
}

func (w *Wizard) validateStep(i int) error {
	var problems []string
	for _, f := range w.tmpl.Steps[i].Fields {
		if !w.visible(f) {
			continue
		}
		v, ok := w.values[f.Key]
		if !ok || fmt.Sprint(v) == "" {
			if f.Required {
				problems = append(problems, fmt.Sprintf("%s is required", f.Label))
			}
			continue
		}
		if f.Kind == model.FieldSource && !w.resolves(fmt.Sprint(v)) {
			problems = append(problems, fmt.Sprintf("%s must reference an existing income source or expense flow", f.Label))
		}
	}
	if len(problems) > 0 {
		return &wizard.ValidationError{Step: wizard.StepConfigure, Problems: problems}
	}
	return nil
}

func (w *Wizard) resolves(id string) bool {
	for _, fl := range w.sources.Incomes {
		if fl.ID == id {
			return true
		}
	}
	for _, fl := range w.sources.Expenses {
		if fl.ID == id {
			return true
		}
	}
	return false
}

func (w *Wizard) validateTarget() error {
	switch {
	case w.mode == scenarioflow.ModeCreate && strings.TrimSpace(w.name) == "":
		return &wizard.ValidationError{Step: wizard.StepOverview, Problems: []string{"scenario name is required"}}
	case w.mode == scenarioflow.ModeAppend && w.scenarioID == "":
		return &wizard.ValidationError{Step: wizard.StepOverview, Problems: []string{"select a scenario to append to"}}
	}
	return nil
}

// Values returns the answers that would be submitted: visible fields only.
func (w *Wizard) Values() map[string]any {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.visibleValues()
}

func (w *Wizard) visibleValues() map[string]any {
	out := map[string]any{}
	for _, st := range w.tmpl.Steps {
		for _, f := range st.Fields {
			if v, ok := w.values[f.Key]; ok && w.visible(f) {
				out[f.Key] = v
			}
		}
	}
	return out
}

// Submit sends the decision from the review step.
func (w *Wizard) Submit(ctx context.Context) (model.WizardResult, error) {
	w.mu.Lock()
	if w.submitting {
		w.mu.Unlock()
		return model.WizardResult{}, wizard.ErrSubmissionInFlight
	}
	if w.step != len(w.tmpl.Steps) || w.result != nil {
		w.mu.Unlock()
		return model.WizardResult{}, wizard.ErrNotAtReview
	}
	if err := w.validateTarget(); err != nil {
		w.mu.Unlock()
		return model.WizardResult{}, err
	}
	for i := range w.tmpl.Steps {
		if err := w.validateStep(i); err != nil {
			w.mu.Unlock()
			return model.WizardResult{}, err
		}
	}

	effective := w.effectiveDate
	if effective == "" {
		effective = w.now().Format(time.DateOnly)
	}
	name := strings.TrimSpace(w.name)
	if w.mode == scenarioflow.ModeAppend {
		name = w.scenarioName
	}
	values := w.visibleValues()
	plan := scenarioflow.Plan{
		Mode:        w.mode,
		Name:        name,
		Description: w.tmpl.Name,
		StartDate:   effective,
		ScenarioID:  w.scenarioID,
		Apply: func(ctx context.Context, scenarioID string) (scenarioflow.ApplyResult, error) {
			resp, err := w.api.ApplyDecisionTemplate(ctx, w.tmpl.Key, model.ApplyDecisionRequest{
				ScenarioID:    scenarioID,
				EffectiveDate: effective,
				Values:        values,
			})
			if err != nil {
				return scenarioflow.ApplyResult{}, err
			}
			return scenarioflow.ApplyResult{ScenarioName: resp.ScenarioName, ChangesApplied: resp.ChangesApplied}, nil
		},
	}
	w.submitting = true
	w.mu.Unlock()

	rep, err := w.runner.Run(ctx, plan)

	w.mu.Lock()
	w.submitting = false
	if err != nil {
		w.mu.Unlock()
		w.notify.Error(err.Error())
		return model.WizardResult{}, err
	}
	w.result = &rep.Result
	w.mu.Unlock()
	w.notify.Success(fmt.Sprintf("%s saved to %s", w.tmpl.Name, rep.Result.ScenarioName))
	return rep.Result, nil
}

// Answers fills a decision wizard without interaction.
type Answers struct {
	Mode          string         `yaml:"mode" json:"mode"`
	Name          string         `yaml:"name" json:"name"`
	ScenarioID    string         `yaml:"scenarioId" json:"scenarioId"`
	ScenarioName  string         `yaml:"scenarioName" json:"scenarioName"`
	EffectiveDate string         `yaml:"effectiveDate" json:"effectiveDate"`
	Values        map[string]any `yaml:"values" json:"values"`
}

// Fill applies answers and walks every step to review.
func (w *Wizard) Fill(a Answers) error {
	mode := scenarioflow.Mode(a.Mode)
	if mode == "" {
		mode = scenarioflow.ModeCreate
	}
	name := a.Name
	if name == "" {
		name = w.tmpl.Name
	}
	if err := w.SetScenario(mode, name, a.ScenarioID, a.ScenarioName); err != nil {
		return err
	}
	if err := w.SetEffectiveDate(a.EffectiveDate); err != nil {
		return err
	}
	for k, v := range a.Values {
		if err := w.Set(k, fmt.Sprint(v)); err != nil {
			return err
		}
	}
	for !w.AtReview() {
		if err := w.Next(); err != nil {
			return err
		}
	}
	return nil
}
