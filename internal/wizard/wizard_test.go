package wizard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whatif-planner/internal/model"
	"whatif-planner/internal/query"
	"whatif-planner/internal/scenarioflow"
	"whatif-planner/internal/testutil"
)

func newJobTemplate() model.LifeEventTemplate {
	return model.LifeEventTemplate{
		Name:        "new_job",
		DisplayName: "New Job",
		SuggestedChanges: []model.SuggestedChange{
			{ChangeType: model.ChangeAddIncome, Name: "New salary", IsRequired: true,
				ParameterTemplate: map[string]any{"amount": 5000.0, "frequency": "monthly"}},
			{ChangeType: model.ChangeRemoveIncome, Name: "Old salary", EnabledByDefault: true, RequiresSourceFlow: true,
				ParameterTemplate: map[string]any{"sourceFlowId": "inc-1"}},
			{ChangeType: model.ChangeAddExpense, Name: "Transit pass", ChoiceGroup: "commute",
				ParameterTemplate: map[string]any{"amount": 120.0}},
			{ChangeType: model.ChangeAddExpense, Name: "Car lease", ChoiceGroup: "commute", EnabledByDefault: true,
				ParameterTemplate: map[string]any{"amount": 400.0}},
			{ChangeType: model.ChangeAddExpense, Name: "Relocation", ParameterTemplate: map[string]any{"amount": 2000.0, "frequency": "one_time"}},
		},
	}
}

func sources() Sources {
	return Sources{
		Incomes:  []model.Flow{{ID: "inc-1", Name: "Old salary", Amount: dec("4000"), Frequency: "monthly"}},
		Expenses: []model.Flow{{ID: "exp-1", Name: "Rent", Amount: dec("1500"), Frequency: "monthly"}},
	}
}

type fixture struct {
	w       *Wizard
	api     *testutil.FakeAPI
	notices *testutil.Notices
	inv     *testutil.Invalidations
}

func newFixture(t *testing.T, tmpl model.LifeEventTemplate) *fixture {
	t.Helper()
	f := &fixture{api: testutil.NewFakeAPI(), notices: &testutil.Notices{}, inv: &testutil.Invalidations{}}
	f.w = New(tmpl, Deps{
		API:      f.api,
		Cache:    f.inv,
		Notifier: f.notices,
		Now:      func() time.Time { return time.Date(2025, 3, 9, 8, 0, 0, 0, time.UTC) },
		Sources:  sources(),
	})
	return f
}

func (f *fixture) toReview(t *testing.T) {
	t.Helper()
	require.NoError(t, f.w.SetName("Raise Modeling"))
	require.NoError(t, f.w.SetEffectiveDate("2025-01-01"))
	require.NoError(t, f.w.Next())
	require.NoError(t, f.w.Next())
	require.Equal(t, StepReview, f.w.Step())
}

func TestInitialValues(t *testing.T) {
	values := InitialValues(newJobTemplate().SuggestedChanges)

	require.Len(t, values, 5)
	assert.False(t, values[0].Skip, "required")
	assert.False(t, values[1].Skip, "enabled by default")
	assert.True(t, values[2].Skip, "group member not chosen")
	assert.False(t, values[3].Skip, "group member enabled by default")
	assert.True(t, values[4].Skip, "optional")
	assert.Equal(t, 5000.0, values[0].Params["amount"])
}

func TestInitialValuesPicksFirstGroupMemberWithoutDefault(t *testing.T) {
	values := InitialValues([]model.SuggestedChange{
		{Name: "a", ChoiceGroup: "g"},
		{Name: "b", ChoiceGroup: "g"},
	})
	assert.False(t, values[0].Skip)
	assert.True(t, values[1].Skip)
}

func TestInitialValuesDoNotAliasTemplate(t *testing.T) {
	tmpl := newJobTemplate()
	f := newFixture(t, tmpl)
	require.NoError(t, f.w.SetParam(0, "amount", "1"))
	assert.Equal(t, 5000.0, tmpl.SuggestedChanges[0].ParameterTemplate["amount"])
}

func groupedTemplate() model.LifeEventTemplate {
	return model.LifeEventTemplate{
		Name: "move",
		SuggestedChanges: []model.SuggestedChange{
			{ChangeType: model.ChangeAddExpense, Name: "Rent", ChoiceGroup: "housing"},
			{ChangeType: model.ChangeAddDebt, Name: "Mortgage", ChoiceGroup: "housing"},
			{ChangeType: model.ChangeAddExpense, Name: "Bus", ChoiceGroup: "commute", EnabledByDefault: true},
			{ChangeType: model.ChangeAddExpense, Name: "Car", ChoiceGroup: "commute"},
			{ChangeType: model.ChangeAddExpense, Name: "Gym"},
		},
	}
}

func included(values model.ChangeValues, group []int) []int {
	var out []int
	for _, i := range group {
		if !values[i].Skip {
			out = append(out, i)
		}
	}
	return out
}

func TestSelectChoiceIsExclusiveWithinGroup(t *testing.T) {
	f := newFixture(t, groupedTemplate())
	housing, commute := []int{0, 1}, []int{2, 3}

	assert.Equal(t, []int{0}, included(f.w.Values(), housing))
	assert.Equal(t, []int{2}, included(f.w.Values(), commute))

	require.NoError(t, f.w.SelectChoice(1))
	values := f.w.Values()
	assert.Equal(t, []int{1}, included(values, housing))
	assert.Equal(t, []int{2}, included(values, commute), "other group untouched")
	assert.True(t, values[4].Skip, "ungrouped change untouched")

	for _, pick := range []int{3, 2, 3, 0, 1} {
		require.NoError(t, f.w.SelectChoice(pick))
		v := f.w.Values()
		assert.LessOrEqual(t, len(included(v, housing)), 1)
		assert.LessOrEqual(t, len(included(v, commute)), 1)
		assert.False(t, v[pick].Skip)
	}
}

func TestSelectChoiceRejectsUngroupedChange(t *testing.T) {
	f := newFixture(t, groupedTemplate())
	assert.Error(t, f.w.SelectChoice(4))
}

func TestToggleGroupMemberIsRejected(t *testing.T) {
	f := newFixture(t, groupedTemplate())
	assert.ErrorIs(t, f.w.Toggle(3, true), ErrChoiceGroup)
}

func TestRequiredChangeCannotBeSkipped(t *testing.T) {
	f := newFixture(t, newJobTemplate())

	assert.ErrorIs(t, f.w.Toggle(0, false), ErrRequiredChange)
	assert.False(t, f.w.Values()[0].Skip)

	require.NoError(t, f.w.Toggle(0, true))
	assert.False(t, f.w.Values()[0].Skip)
}

func TestToggleOptionalChange(t *testing.T) {
	f := newFixture(t, newJobTemplate())
	require.NoError(t, f.w.Toggle(4, true))
	assert.False(t, f.w.Values()[4].Skip)
	require.NoError(t, f.w.Toggle(4, false))
	assert.True(t, f.w.Values()[4].Skip)
}

func TestUnknownChangeIndex(t *testing.T) {
	f := newFixture(t, newJobTemplate())
	assert.ErrorIs(t, f.w.Toggle(9, true), ErrUnknownChange)
	assert.ErrorIs(t, f.w.SetParam(-1, "amount", "1"), ErrUnknownChange)
}

func TestSetParamParsesAmountLikeKeys(t *testing.T) {
	f := newFixture(t, newJobTemplate())

	require.NoError(t, f.w.SetParam(0, "amount", " 1,250.50 "))
	require.NoError(t, f.w.SetParam(0, "name", "Senior role"))
	require.NoError(t, f.w.SetParam(0, "monthlyPayment", ""))

	params := f.w.Values()[0].Params
	assert.Equal(t, 1250.5, params["amount"])
	assert.Equal(t, "Senior role", params["name"])
	assert.Equal(t, 0.0, params["monthlyPayment"])

	assert.Error(t, f.w.SetParam(0, "amount", "lots"))
	assert.Equal(t, 1250.5, f.w.Values()[0].Params["amount"])
}

func TestSetParamRejectsOverflowingAmount(t *testing.T) {
	f := newFixture(t, newJobTemplate())

	require.EqualError(t, f.w.SetParam(0, "amount", "1e400"), "amount must be a number")
	assert.Equal(t, 5000.0, f.w.Values()[0].Params["amount"])

	f.toReview(t)
	_, err := f.w.Submit(context.Background())
	require.NoError(t, err)
	apply, _ := f.api.Last(testutil.OpApplyLifeEvent)
	assert.Equal(t, 5000.0, apply.Payload.(model.ApplyTemplateRequest).ChangeValues[0].Params["amount"])
}

func TestFillWithOverflowingAmountMakesNoCalls(t *testing.T) {
	f := newFixture(t, newJobTemplate())
	err := f.w.Fill(Answers{Name: "x", Params: map[int]map[string]any{0: {"amount": "1e400"}}})
	require.Error(t, err)
	assert.Equal(t, StepConfigure, f.w.Step())

	_, err = f.w.Submit(context.Background())
	assert.ErrorIs(t, err, ErrNotAtReview)
	assert.Zero(t, f.api.Count(testutil.OpCreate))
}

func TestSourceFlowIDIsTrimmedBeforeSending(t *testing.T) {
	f := newFixture(t, newJobTemplate())
	require.NoError(t, f.w.SetParam(1, "sourceFlowId", " inc-1 "))
	assert.Equal(t, "inc-1", f.w.Values()[1].Params["sourceFlowId"])

	f.toReview(t)
	_, err := f.w.Submit(context.Background())
	require.NoError(t, err)

	apply, _ := f.api.Last(testutil.OpApplyLifeEvent)
	req := apply.Payload.(model.ApplyTemplateRequest)
	assert.Equal(t, "inc-1", req.ChangeValues[1].Params["sourceFlowId"])
}

func TestOverviewValidation(t *testing.T) {
	f := newFixture(t, newJobTemplate())

	err := f.w.Next()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, StepOverview, verr.Step)
	assert.Equal(t, StepOverview, f.w.Step())

	require.NoError(t, f.w.SetMode(scenarioflow.ModeAppend))
	require.ErrorAs(t, f.w.Next(), &verr)
	assert.Contains(t, verr.Error(), "append")

	require.NoError(t, f.w.SetTarget("scn-9", "Baseline"))
	require.NoError(t, f.w.Next())
	assert.Equal(t, StepConfigure, f.w.Step())

	assert.Error(t, f.w.SetMode("merge"))
	assert.Error(t, f.w.SetEffectiveDate("01/01/2025"))
}

func TestNavigationOnlyReachesVisitedSteps(t *testing.T) {
	f := newFixture(t, newJobTemplate())

	assert.ErrorIs(t, f.w.GoTo(StepReview), ErrStepLocked)
	assert.Error(t, f.w.Back())

	require.NoError(t, f.w.SetName("Raise Modeling"))
	require.NoError(t, f.w.Next())
	require.NoError(t, f.w.Next())
	assert.Equal(t, StepReview, f.w.Step())

	require.NoError(t, f.w.GoTo(StepOverview))
	require.NoError(t, f.w.GoTo(StepReview))
	require.NoError(t, f.w.Back())
	assert.Equal(t, StepConfigure, f.w.Step())

	assert.ErrorIs(t, f.w.GoTo(StepResult), ErrStepLocked)
	assert.ErrorIs(t, f.w.GoTo(StepSubmitting), ErrStepLocked)
}

func TestSourceFlowMustResolve(t *testing.T) {
	f := newFixture(t, newJobTemplate())
	require.NoError(t, f.w.SetName("x"))
	require.NoError(t, f.w.Next())

	require.NoError(t, f.w.SetParam(1, "sourceFlowId", "exp-1"))
	var verr *ValidationError
	require.ErrorAs(t, f.w.Next(), &verr)
	assert.Equal(t, StepConfigure, verr.Step)
	assert.Contains(t, verr.Error(), "income source")

	opts, err := f.w.SourceOptions(1)
	require.NoError(t, err)
	require.Len(t, opts, 1)
	assert.Equal(t, "inc-1", opts[0].ID)

	require.NoError(t, f.w.Toggle(1, false))
	require.NoError(t, f.w.Next(), "skipped changes need no source")
}

func TestReviewListsIncludedChangesAndPreview(t *testing.T) {
	f := newFixture(t, newJobTemplate())
	f.toReview(t)

	r := f.w.Review()
	assert.Equal(t, "New Job", r.Template)
	assert.Equal(t, "Raise Modeling", r.ScenarioName)
	assert.Equal(t, "2025-01-01", r.EffectiveDate)

	var names []string
	for _, c := range r.Changes {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"New salary", "Old salary", "Car lease"}, names)

	require.NotNil(t, r.Preview)
	assert.Equal(t, "SUCCESS", r.Preview.Outcome)
	assert.Equal(t, "4000", r.Preview.Before.Income.String())
	assert.Equal(t, "5000", r.Preview.After.Income.String())
	assert.Equal(t, "1900", r.Preview.After.Expenses.String())
	assert.Equal(t, "3100", r.Preview.After.Surplus.String())
}

func TestBlankEffectiveDateMeansToday(t *testing.T) {
	f := newFixture(t, newJobTemplate())
	assert.Equal(t, "2025-03-09", f.w.Review().EffectiveDate)
	require.NoError(t, f.w.SetEffectiveDate(""))
	assert.Equal(t, "2025-03-09", f.w.Review().EffectiveDate)
}

func TestSubmitCreatesAppliesAndComputes(t *testing.T) {
	f := newFixture(t, newJobTemplate())
	f.toReview(t)

	res, err := f.w.Submit(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{testutil.OpCreate, testutil.OpApplyLifeEvent, testutil.OpCompute}, f.api.Ops())

	create, _ := f.api.Last(testutil.OpCreate)
	in := create.Payload.(model.ScenarioInput)
	assert.Equal(t, "Raise Modeling", in.Name)
	assert.Equal(t, "New Job", in.Description)
	assert.Equal(t, "2025-01-01", in.StartDate)

	apply, _ := f.api.Last(testutil.OpApplyLifeEvent)
	req := apply.Payload.(model.ApplyTemplateRequest)
	assert.Equal(t, "new_job", apply.Name)
	assert.Equal(t, "scn-1", req.ScenarioID)
	assert.Equal(t, "2025-01-01", req.EffectiveDate)
	assert.Len(t, req.ChangeValues, 5, "skipped entries are sent too")
	assert.Equal(t, 3, req.ChangeValues.Active())

	// one required change plus two enabled by default
	assert.Equal(t, model.WizardResult{ScenarioID: "scn-1", ScenarioName: "Raise Modeling", ChangesApplied: 3}, res)
	assert.Equal(t, StepResult, f.w.Step())
	got, ok := f.w.Result()
	require.True(t, ok)
	assert.Equal(t, res, got)

	assert.Equal(t, []string{query.KeyScenarios}, f.inv.List())
	assert.Empty(t, f.notices.Errors)
	assert.Len(t, f.notices.Infos, 1)

	assert.Error(t, f.w.Back(), "result is terminal")
}

func TestSubmitComputeFailureRollsBackOnce(t *testing.T) {
	f := newFixture(t, newJobTemplate())
	f.toReview(t)
	f.api.Fail[testutil.OpCompute] = errors.New("projection engine unavailable")

	_, err := f.w.Submit(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compute projection")
	assert.Contains(t, err.Error(), "projection engine unavailable")

	assert.Equal(t, 1, f.api.Count(testutil.OpDelete))
	del, _ := f.api.Last(testutil.OpDelete)
	assert.Equal(t, "scn-1", del.ScenarioID)

	assert.Equal(t, []string{err.Error()}, f.notices.Errors)
	assert.Equal(t, StepReview, f.w.Step(), "back to an interactive step")
	_, ok := f.w.Result()
	assert.False(t, ok)
	assert.Empty(t, f.inv.List())

	delete(f.api.Fail, testutil.OpCompute)
	res, err := f.w.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "scn-2", res.ScenarioID)
	assert.Equal(t, 1, f.api.Count(testutil.OpDelete))
}

func TestSubmitApplyFailureRollsBackOnce(t *testing.T) {
	f := newFixture(t, newJobTemplate())
	f.toReview(t)
	f.api.Fail[testutil.OpApplyLifeEvent] = errors.New("bad change values")

	_, err := f.w.Submit(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "apply template")
	assert.Equal(t, 1, f.api.Count(testutil.OpDelete))
	assert.Equal(t, 0, f.api.Count(testutil.OpCompute))
	assert.Len(t, f.notices.Errors, 1)
}

func TestAppendModeNeverDeletes(t *testing.T) {
	for _, op := range []string{testutil.OpApplyLifeEvent, testutil.OpCompute} {
		f := newFixture(t, newJobTemplate())
		require.NoError(t, f.w.SetMode(scenarioflow.ModeAppend))
		require.NoError(t, f.w.SetTarget("scn-existing", "Baseline"))
		require.NoError(t, f.w.Next())
		require.NoError(t, f.w.Next())
		f.api.Fail[op] = errors.New("boom")

		_, err := f.w.Submit(context.Background())
		require.Error(t, err, op)
		assert.Equal(t, 0, f.api.Count(testutil.OpCreate), op)
		assert.Equal(t, 0, f.api.Count(testutil.OpDelete), op)
		assert.Len(t, f.notices.Errors, 1, op)
	}
}

func TestAppendResultUsesBackendName(t *testing.T) {
	f := newFixture(t, newJobTemplate())
	seven := 7
	f.api.ApplyResponse = model.ApplyTemplateResponse{ScenarioName: "Baseline + New Job", ChangesApplied: &seven}
	require.NoError(t, f.w.SetMode(scenarioflow.ModeAppend))
	require.NoError(t, f.w.SetTarget("scn-existing", "Baseline"))
	require.NoError(t, f.w.Next())
	require.NoError(t, f.w.Next())

	res, err := f.w.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.WizardResult{ScenarioID: "scn-existing", ScenarioName: "Baseline + New Job", ChangesApplied: 7}, res)
}

func TestSubmitOnlyFromReview(t *testing.T) {
	f := newFixture(t, newJobTemplate())
	_, err := f.w.Submit(context.Background())
	assert.ErrorIs(t, err, ErrNotAtReview)
	assert.Empty(t, f.api.Ops())
}

type blockingAPI struct {
	*testutil.FakeAPI
	started chan struct{}
	release chan struct{}
}

func (b *blockingAPI) ApplyLifeEventTemplate(ctx context.Context, name string, req model.ApplyTemplateRequest) (model.ApplyTemplateResponse, error) {
	close(b.started)
	<-b.release
	return b.FakeAPI.ApplyLifeEventTemplate(ctx, name, req)
}

func TestSubmitIsSingleFlight(t *testing.T) {
	api := &blockingAPI{FakeAPI: testutil.NewFakeAPI(), started: make(chan struct{}), release: make(chan struct{})}
	w := New(newJobTemplate(), Deps{API: api, Sources: sources()})
	require.NoError(t, w.SetName("Raise Modeling"))
	require.NoError(t, w.Next())
	require.NoError(t, w.Next())

	done := make(chan error, 1)
	go func() {
		_, err := w.Submit(context.Background())
		done <- err
	}()
	<-api.started

	assert.Equal(t, StepSubmitting, w.Step())
	_, err := w.Submit(context.Background())
	assert.ErrorIs(t, err, ErrSubmissionInFlight)
	assert.ErrorIs(t, w.SetName("other"), ErrSubmissionInFlight)
	assert.ErrorIs(t, w.Back(), ErrSubmissionInFlight)

	close(api.release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, api.Count(testutil.OpCreate))
	assert.Equal(t, 1, api.Count(testutil.OpApplyLifeEvent))
}

func TestFillWalksToReview(t *testing.T) {
	f := newFixture(t, newJobTemplate())

	err := f.w.Fill(Answers{
		Name:          "Raise Modeling",
		EffectiveDate: "2025-01-01",
		Include:       map[int]bool{4: true},
		Choices:       []int{2},
		Params:        map[int]map[string]any{0: {"amount": 6100}},
	})
	require.NoError(t, err)
	assert.Equal(t, StepReview, f.w.Step())

	values := f.w.Values()
	assert.False(t, values[4].Skip)
	assert.False(t, values[2].Skip)
	assert.True(t, values[3].Skip)
	assert.Equal(t, 6100.0, values[0].Params["amount"])
}

func TestFillStopsOnRequiredSkip(t *testing.T) {
	f := newFixture(t, newJobTemplate())
	err := f.w.Fill(Answers{Name: "x", Include: map[int]bool{0: false}})
	assert.ErrorIs(t, err, ErrRequiredChange)
}

// stepReader reads wizard state from inside a notification.
type stepReader struct {
	w     *Wizard
	steps chan Step
}

func (r *stepReader) Error(string)   { r.steps <- r.w.Step() }
func (r *stepReader) Success(string) { r.steps <- r.w.Step() }

func TestNotifierMayReadWizardState(t *testing.T) {
	api := testutil.NewFakeAPI()
	r := &stepReader{steps: make(chan Step, 2)}
	r.w = New(newJobTemplate(), Deps{API: api, Notifier: r, Sources: sources()})
	require.NoError(t, r.w.SetName("Raise Modeling"))
	require.NoError(t, r.w.Next())
	require.NoError(t, r.w.Next())

	api.Fail[testutil.OpApplyLifeEvent] = errors.New("boom")
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = r.w.Submit(context.Background())
		delete(api.Fail, testutil.OpApplyLifeEvent)
		_, _ = r.w.Submit(context.Background())
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("submit blocked while notifying")
	}
	assert.Equal(t, StepReview, <-r.steps)
	assert.Equal(t, StepResult, <-r.steps)
}
