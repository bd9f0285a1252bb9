// Package wizard drives the life-event wizard: overview, configure-changes,
// review, then a single guarded submission through scenarioflow.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"whatif-planner/internal/changes"
	"whatif-planner/internal/engine"
	"whatif-planner/internal/logger"
	"whatif-planner/internal/model"
	"whatif-planner/internal/query"
	"whatif-planner/internal/scenarioflow"
)

type Step int

const (
	StepOverview Step = iota
	StepConfigure
	StepReview
	StepSubmitting
	StepResult
)

func (s Step) String() string {
	switch s {
	case StepOverview:
		return "overview"
	case StepConfigure:
		return "configure-changes"
	case StepReview:
		return "review"
	case StepSubmitting:
		return "submitting"
	case StepResult:
		return "result"
	}
	return fmt.Sprintf("step(%d)", int(s))
}

var (
	ErrSubmissionInFlight = errors.New("a submission is already in flight")
	ErrNotAtReview        = errors.New("submit is only available from the review step")
	ErrStepLocked         = errors.New("step has not been reached yet")
	ErrRequiredChange     = errors.New("required changes cannot be skipped")
	ErrUnknownChange      = errors.New("no such change in template")
	ErrChoiceGroup        = errors.New("change belongs to a choice group; select it instead")
)

// ValidationError lists every problem that keeps a step from advancing.
type ValidationError struct {
	Step     Step
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Step, strings.Join(e.Problems, "; "))
}

// API is the backend surface a life-event submission needs.
type API interface {
	scenarioflow.API
	ApplyLifeEventTemplate(ctx context.Context, name string, req model.ApplyTemplateRequest) (model.ApplyTemplateResponse, error)
}

// Notifier shows user-facing messages.
type Notifier interface {
	Error(msg string)
	Success(msg string)
}

type nopNotifier struct{}

func (nopNotifier) Error(string)   {}
func (nopNotifier) Success(string) {}

// NotifierOrNop returns n, or a notifier that drops everything when n is nil.
func NotifierOrNop(n Notifier) Notifier {
	if n == nil {
		return nopNotifier{}
	}
	return n
}

// Sources are the household flows a change may reference.
type Sources struct {
	Incomes  []model.Flow
	Expenses []model.Flow
}

type Deps struct {
	API      API
	Cache    query.Invalidator
	Notifier Notifier
	Log      *zap.Logger
	Now      func() time.Time
	Sources  Sources
}

type Wizard struct {
	mu sync.Mutex

	tmpl    model.LifeEventTemplate
	api     API
	runner  *scenarioflow.Runner
	notify  Notifier
	log     *zap.Logger
	now     func() time.Time
	sources Sources

	step    Step
	reached Step

	mode          scenarioflow.Mode
	name          string
	scenarioID    string
	scenarioName  string
	effectiveDate string
	values        model.ChangeValues

	submitting bool
	result     *model.WizardResult
}

func New(tmpl model.LifeEventTemplate, deps Deps) *Wizard {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	log := logger.OrNop(deps.Log).With(zap.String("template", tmpl.Name))

	return &Wizard{
		tmpl:   tmpl,
		api:    deps.API,
		notify: NotifierOrNop(deps.Notifier),
		log:    log,
		now:    now,
		runner: &scenarioflow.Runner{
			API:   deps.API,
			Cache: deps.Cache,
			Log:   log,
			Now:   now,
		},
		sources:       deps.Sources,
		mode:          scenarioflow.ModeCreate,
		effectiveDate: now().Format(time.DateOnly),
		values:        InitialValues(tmpl.SuggestedChanges),
	}
}

// InitialValues seeds one entry per suggested change from its parameter
// template. Required changes start included. In each choice group the first
// member enabled by default is selected, or the first member when none is.
func InitialValues(suggested []model.SuggestedChange) model.ChangeValues {
	values := make(model.ChangeValues, len(suggested))
	chosen := map[string]int{}
	for i, sc := range suggested {
		if sc.ChoiceGroup == "" {
			continue
		}
		cur, ok := chosen[sc.ChoiceGroup]
		if !ok || (sc.EnabledByDefault && !suggested[cur].EnabledByDefault) {
			chosen[sc.ChoiceGroup] = i
		}
	}

	for i, sc := range suggested {
		params := make(map[string]any, len(sc.ParameterTemplate))
		for k, v := range sc.ParameterTemplate {
			params[k] = v
		}
		include := sc.IsRequired || sc.EnabledByDefault
		if sc.ChoiceGroup != "" {
			include = chosen[sc.ChoiceGroup] == i
		}
		values[i] = model.ChangeValue{Skip: !include, Params: params}
	}
	return values
}

func (w *Wizard) Template() model.LifeEventTemplate { return w.tmpl }

func (w *Wizard) Step() Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step
}

// Next validates the current step and advances one step.
func (w *Wizard) Next() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.submitting {
		return ErrSubmissionInFlight
	}
	switch w.step {
	case StepOverview:
		if err := w.validateOverview(); err != nil {
			return err
		}
	case StepConfigure:
		if err := w.validateConfigure(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("cannot advance from %s", w.step)
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
	if w.submitting {
		return ErrSubmissionInFlight
	}
	if w.step == StepOverview || w.step > StepReview {
		return fmt.Errorf("cannot go back from %s", w.step)
	}
	w.step--
	return nil
}

// GoTo jumps to a step that has already been reached.
func (w *Wizard) GoTo(s Step) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.submitting {
		return ErrSubmissionInFlight
	}
	if w.step > StepReview || s < StepOverview || s > StepReview || s > w.reached {
		return ErrStepLocked
	}
	w.step = s
	return nil
}

func (w *Wizard) editable() error {
	if w.submitting {
		return ErrSubmissionInFlight
	}
	if w.step > StepReview {
		return fmt.Errorf("wizard is at %s", w.step)
	}
	return nil
}

func (w *Wizard) SetMode(m scenarioflow.Mode) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editable(); err != nil {
		return err
	}
	if m != scenarioflow.ModeCreate && m != scenarioflow.ModeAppend {
		return fmt.Errorf("unknown scenario mode %q", m)
	}
	w.mode = m
	return nil
}

func (w *Wizard) SetName(name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editable(); err != nil {
		return err
	}
	w.name = name
	return nil
}

// SetTarget selects the existing scenario to append to.
func (w *Wizard) SetTarget(id, name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editable(); err != nil {
		return err
	}
	w.scenarioID = strings.TrimSpace(id)
	w.scenarioName = name
	return nil
}

// SetEffectiveDate takes YYYY-MM-DD; blank means today at submission.
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

// Toggle includes or skips a change outside any choice group.
func (w *Wizard) Toggle(index int, include bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editable(); err != nil {
		return err
	}
	sc, v, err := w.entry(index)
	if err != nil {
		return err
	}
	if sc.ChoiceGroup != "" {
		return ErrChoiceGroup
	}
	if sc.IsRequired && !include {
		return ErrRequiredChange
	}
	v.Skip = !include
	w.values[index] = v
	return nil
}

// SelectChoice makes index the only included member of its choice group.
func (w *Wizard) SelectChoice(index int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editable(); err != nil {
		return err
	}
	sc, _, err := w.entry(index)
	if err != nil {
		return err
	}
	if sc.ChoiceGroup == "" {
		return fmt.Errorf("change %d is not part of a choice group", index)
	}
	for i, other := range w.tmpl.SuggestedChanges {
		if other.ChoiceGroup != sc.ChoiceGroup {
			continue
		}
		v := w.values[i]
		v.Skip = i != index
		w.values[i] = v
	}
	return nil
}

// SetParam stores raw user input for one parameter of a change.
func (w *Wizard) SetParam(index int, key, raw string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editable(); err != nil {
		return err
	}
	_, v, err := w.entry(index)
	if err != nil {
		return err
	}
	parsed, err := changes.ParseParam(key, raw)
	if err != nil {
		return err
	}
	params := make(map[string]any, len(v.Params)+1)
	for k, p := range v.Params {
		params[k] = p
	}
	params[key] = parsed
	v.Params = params
	w.values[index] = v
	return nil
}

// SourceOptions lists the flows a change may reference.
func (w *Wizard) SourceOptions(index int) ([]model.Flow, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	sc, _, err := w.entry(index)
	if err != nil {
		return nil, err
	}
	return w.candidates(sc.ChangeType.Subject()), nil
}

func (w *Wizard) candidates(subject string) []model.Flow {
	switch subject {
	case "income":
		return w.sources.Incomes
	case "expense":
		return w.sources.Expenses
	}
	return append(append([]model.Flow(nil), w.sources.Incomes...), w.sources.Expenses...)
}

func (w *Wizard) entry(index int) (model.SuggestedChange, model.ChangeValue, error) {
	if index < 0 || index >= len(w.tmpl.SuggestedChanges) {
		return model.SuggestedChange{}, model.ChangeValue{}, fmt.Errorf("%w: %d", ErrUnknownChange, index)
	}
	return w.tmpl.SuggestedChanges[index], w.values[index], nil
}

func (w *Wizard) validateOverview() error {
	var problems []string
	switch w.mode {
	case scenarioflow.ModeCreate:
		if strings.TrimSpace(w.name) == "" {
			problems = append(problems, "scenario name is required")
		}
	case scenarioflow.ModeAppend:
		if w.scenarioID == "" {
			problems = append(problems, "select a scenario to append to")
		}
	}
	if len(problems) > 0 {
		return &ValidationError{Step: StepOverview, Problems: problems}
	}
	return nil
}

func (w *Wizard) validateConfigure() error {
	var problems []string
	for i, sc := range w.tmpl.SuggestedChanges {
		v := w.values[i]
		if sc.IsRequired && v.Skip {
			problems = append(problems, fmt.Sprintf("%s is required", sc.Name))
		}
		if v.Skip || !sc.RequiresSourceFlow {
			continue
		}
		id, _ := v.Params[changes.SourceFlowKey].(string)
		if !w.resolves(sc.ChangeType.Subject(), id) {
			problems = append(problems, fmt.Sprintf("%s needs an existing %s", sc.Name, sourceNoun(sc.ChangeType.Subject())))
		}
	}
	if len(problems) > 0 {
		return &ValidationError{Step: StepConfigure, Problems: problems}
	}
	return nil
}

func (w *Wizard) resolves(subject, id string) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return false
	}
	for _, f := range w.candidates(subject) {
		if f.ID == id {
			return true
		}
	}
	return false
}

func sourceNoun(subject string) string {
	switch subject {
	case "income":
		return "income source"
	case "expense":
		return "expense flow"
	}
	return "income source or expense flow"
}

// ReviewItem is one change that will be applied.
type ReviewItem struct {
	Index      int              `json:"index"`
	Name       string           `json:"name"`
	ChangeType model.ChangeType `json:"changeType"`
	Params     map[string]any   `json:"params"`
}

type Review struct {
	Template      string                `json:"template"`
	Mode          scenarioflow.Mode     `json:"mode"`
	ScenarioName  string                `json:"scenarioName"`
	ScenarioID    string                `json:"scenarioId,omitempty"`
	EffectiveDate string                `json:"effectiveDate"`
	Changes       []ReviewItem          `json:"changes"`
	Preview       *engine.PreviewResult `json:"preview"`
}

// Review summarizes the included changes and previews their monthly impact
// against the household's current flows.
func (w *Wizard) Review() Review {
	w.mu.Lock()
	defer w.mu.Unlock()

	r := Review{
		Template:      w.tmpl.Title(),
		Mode:          w.mode,
		ScenarioName:  w.targetName(),
		EffectiveDate: w.effective(),
		Changes:       []ReviewItem{},
	}
	if w.mode == scenarioflow.ModeAppend {
		r.ScenarioID = w.scenarioID
	}

	inputs := make([]changes.Input, 0, len(w.tmpl.SuggestedChanges))
	for i, sc := range w.tmpl.SuggestedChanges {
		v := w.values[i]
		inputs = append(inputs, changes.Input{Index: i, Change: sc, Value: v})
		if v.Skip {
			continue
		}
		r.Changes = append(r.Changes, ReviewItem{Index: i, Name: sc.Name, ChangeType: sc.ChangeType, Params: v.Params})
	}
	r.Preview = engine.Preview(changes.BaselineBudget(w.sources.Incomes, w.sources.Expenses), inputs)
	return r
}

func (w *Wizard) targetName() string {
	if w.mode == scenarioflow.ModeAppend {
		return w.scenarioName
	}
	return strings.TrimSpace(w.name)
}

func (w *Wizard) effective() string {
	if w.effectiveDate == "" {
		return w.now().Format(time.DateOnly)
	}
	return w.effectiveDate
}

// Values returns a copy of the current change values.
func (w *Wizard) Values() model.ChangeValues {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.copyValues()
}

func (w *Wizard) copyValues() model.ChangeValues {
	out := make(model.ChangeValues, len(w.values))
	for i, v := range w.values {
		params := make(map[string]any, len(v.Params))
		for k, p := range v.Params {
			params[k] = p
		}
		out[i] = model.ChangeValue{Skip: v.Skip, Params: params}
	}
	return out
}

// Result is set once a submission succeeded.
func (w *Wizard) Result() (model.WizardResult, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.result == nil {
		return model.WizardResult{}, false
	}
	return *w.result, true
}

// Submit runs create (or append) → apply → compute. Only one submission may be
// in flight. On failure the wizard returns to review and one error notice is
// shown.
func (w *Wizard) Submit(ctx context.Context) (model.WizardResult, error) {
	w.mu.Lock()
	if w.submitting {
		w.mu.Unlock()
		return model.WizardResult{}, ErrSubmissionInFlight
	}
	if w.step != StepReview {
		w.mu.Unlock()
		return model.WizardResult{}, ErrNotAtReview
	}
	if err := errors.Join(w.validateOverview(), w.validateConfigure()); err != nil {
		w.mu.Unlock()
		return model.WizardResult{}, err
	}

	values := w.copyValues()
	effective := w.effective()
	plan := scenarioflow.Plan{
		Mode:         w.mode,
		Name:         w.targetName(),
		Description:  w.tmpl.Title(),
		StartDate:    effective,
		ScenarioID:   w.scenarioID,
		LocalChanges: values.Active(),
		Apply: func(ctx context.Context, scenarioID string) (scenarioflow.ApplyResult, error) {
			resp, err := w.api.ApplyLifeEventTemplate(ctx, w.tmpl.Name, model.ApplyTemplateRequest{
				ScenarioID:    scenarioID,
				EffectiveDate: effective,
				ChangeValues:  values,
			})
			if err != nil {
				return scenarioflow.ApplyResult{}, err
			}
			return scenarioflow.ApplyResult{ScenarioName: resp.ScenarioName, ChangesApplied: resp.ChangesApplied}, nil
		},
	}
	w.submitting = true
	w.step = StepSubmitting
	w.mu.Unlock()

	rep, err := w.runner.Run(ctx, plan)

	// Notifiers may read wizard state, so they run after the lock is released.
	w.mu.Lock()
	w.submitting = false
	if err != nil {
		w.step = StepReview
		w.mu.Unlock()
		w.notify.Error(err.Error())
		return model.WizardResult{}, err
	}
	w.step = StepResult
	w.reached = StepResult
	w.result = &rep.Result
	w.mu.Unlock()
	w.notify.Success(fmt.Sprintf("%s: %d changes applied", rep.Result.ScenarioName, rep.Result.ChangesApplied))
	return rep.Result, nil
}

// Answers fills a wizard without interaction, e.g. from a YAML file.
type Answers struct {
	Mode          string                 `yaml:"mode" json:"mode"`
	Name          string                 `yaml:"name" json:"name"`
	ScenarioID    string                 `yaml:"scenarioId" json:"scenarioId"`
	ScenarioName  string                 `yaml:"scenarioName" json:"scenarioName"`
	EffectiveDate string                 `yaml:"effectiveDate" json:"effectiveDate"`
	Include       map[int]bool           `yaml:"include" json:"include"`
	Choices       []int                  `yaml:"choices" json:"choices"`
	Params        map[int]map[string]any `yaml:"params" json:"params"`
}

// Fill applies answers and walks the wizard to the review step.
func (w *Wizard) Fill(a Answers) error {
	if a.Mode != "" {
		if err := w.SetMode(scenarioflow.Mode(a.Mode)); err != nil {
			return err
		}
	}
	if err := w.SetName(a.Name); err != nil {
		return err
	}
	if err := w.SetTarget(a.ScenarioID, a.ScenarioName); err != nil {
		return err
	}
	if a.EffectiveDate != "" {
		if err := w.SetEffectiveDate(a.EffectiveDate); err != nil {
			return err
		}
	}
	if err := w.Next(); err != nil {
		return err
	}

	for _, idx := range sortedKeys(a.Include) {
		if err := w.Toggle(idx, a.Include[idx]); err != nil {
			return fmt.Errorf("change %d: %w", idx, err)
		}
	}
	for _, idx := range a.Choices {
		if err := w.SelectChoice(idx); err != nil {
			return fmt.Errorf("change %d: %w", idx, err)
		}
	}
	for _, idx := range sortedKeys(a.Params) {
		for key, raw := range a.Params[idx] {
			if err := w.SetParam(idx, key, fmt.Sprint(raw)); err != nil {
				return fmt.Errorf("change %d: %w", idx, err)
			}
		}
	}
	return w.Next()
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
