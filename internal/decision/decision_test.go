package decision

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whatif-planner/internal/model"
	"whatif-planner/internal/scenarioflow"
	"whatif-planner/internal/testutil"
	"whatif-planner/internal/wizard"
)

func buyCarTemplate() model.DecisionTemplate {
	return model.DecisionTemplate{
		Key:  "buy_car",
		Name: "Buy a car",
		Steps: []model.DecisionStep{
			{Title: "Purchase", Fields: []model.DecisionField{
				{Key: "price", Label: "Price", Kind: model.FieldNumber, Required: true},
				{Key: "financing", Label: "Financing", Kind: model.FieldSelect, Required: true, Options: []string{"cash", "loan"}, Default: "cash"},
			}},
			{Title: "Loan", Fields: []model.DecisionField{
				{Key: "rate", Label: "Interest rate", Kind: model.FieldNumber, Required: true, ShowIf: &model.Condition{Field: "financing", Equals: "loan"}},
				{Key: "termMonths", Label: "Term", Kind: model.FieldNumber, Required: true, ShowIf: &model.Condition{Field: "financing", Equals: "loan"}},
				{Key: "replaces", Label: "Replaces expense", Kind: model.FieldSource},
				{Key: "sellOld", Label: "Sell old car", Kind: model.FieldBool},
			}},
		},
	}
}

func newWizard(api API) (*Wizard, *testutil.Notices) {
	notices := &testutil.Notices{}
	w := New(buyCarTemplate(), Deps{
		API:      api,
		Notifier: notices,
		Now:      func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) },
		Sources: wizard.Sources{
			Expenses: []model.Flow{{ID: "exp-transit", Name: "Transit pass"}},
		},
	})
	return w, notices
}

func TestDefaultsAreSeeded(t *testing.T) {
	w, _ := newWizard(testutil.NewFakeAPI())
	assert.Equal(t, map[string]any{"financing": "cash"}, w.Values())
}

func TestHiddenFieldsAreExemptFromValidation(t *testing.T) {
	w, _ := newWizard(testutil.NewFakeAPI())

	require.NoError(t, w.Set("price", "25,000"))
	require.NoError(t, w.Next())
	require.NoError(t, w.Next(), "loan fields are hidden for cash purchases")
	assert.True(t, w.AtReview())
}

func TestVisibleRequiredFieldsBlockNext(t *testing.T) {
	w, _ := newWizard(testutil.NewFakeAPI())

	var verr *wizard.ValidationError
	require.ErrorAs(t, w.Next(), &verr)
	assert.Equal(t, []string{"Price is required"}, verr.Problems)
	assert.Equal(t, 0, w.Step())

	require.NoError(t, w.Set("price", "25000"))
	require.NoError(t, w.Set("financing", "loan"))
	require.NoError(t, w.Next())

	require.ErrorAs(t, w.Next(), &verr)
	assert.Len(t, verr.Problems, 2)
	assert.Equal(t, 1, w.Step())

	require.NoError(t, w.Set("rate", "4.9"))
	require.NoError(t, w.Set("termMonths", "60"))
	require.NoError(t, w.Next())
	assert.True(t, w.AtReview())
}

func TestSetParsesByKind(t *testing.T) {
	w, _ := newWizard(testutil.NewFakeAPI())

	assert.Error(t, w.Set("price", "cheap"))
	assert.Error(t, w.Set("financing", "lease"))
	assert.Error(t, w.Set("sellOld", "maybe"))
	assert.Error(t, w.Set("color", "red"))

	require.NoError(t, w.Set("price", "1,999.99"))
	require.NoError(t, w.Set("sellOld", "true"))
	vals := w.Values()
	assert.Equal(t, 1999.99, vals["price"])
	assert.Equal(t, true, vals["sellOld"])

	require.NoError(t, w.Set("price", " "))
	assert.NotContains(t, w.Values(), "price")
}

func TestSourceFieldMustResolve(t *testing.T) {
	w, _ := newWizard(testutil.NewFakeAPI())
	require.NoError(t, w.Set("price", "20000"))
	require.NoError(t, w.Next())

	require.NoError(t, w.Set("replaces", "exp-unknown"))
	assert.Error(t, w.Next())
	require.NoError(t, w.Set("replaces", "exp-transit"))
	assert.NoError(t, w.Next())
}

func TestBackAndGoTo(t *testing.T) {
	w, _ := newWizard(testutil.NewFakeAPI())
	assert.Error(t, w.Back())
	assert.ErrorIs(t, w.GoTo(1), wizard.ErrStepLocked)

	require.NoError(t, w.Set("price", "20000"))
	require.NoError(t, w.Next())
	require.NoError(t, w.Back())
	require.NoError(t, w.GoTo(1))
	assert.Equal(t, 1, w.Step())
}

func TestSubmitSendsVisibleValuesOnly(t *testing.T) {
	api := testutil.NewFakeAPI()
	w, notices := newWizard(api)
	require.NoError(t, w.Fill(Answers{
		Name:   "Car purchase",
		Values: map[string]any{"price": 30000, "financing": "cash", "rate": 5},
	}))

	res, err := w.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{testutil.OpCreate, testutil.OpApplyDecision, testutil.OpCompute}, api.Ops())

	call, _ := api.Last(testutil.OpApplyDecision)
	req := call.Payload.(model.ApplyDecisionRequest)
	assert.Equal(t, "buy_car", call.Name)
	assert.Equal(t, "2025-06-01", req.EffectiveDate)
	assert.Equal(t, map[string]any{"price": 30000.0, "financing": "cash"}, req.Values)

	assert.Equal(t, "Car purchase", res.ScenarioName)
	assert.True(t, w.Done())
	assert.Len(t, notices.Infos, 1)
	assert.Error(t, w.Set("price", "1"), "submitted wizards are read-only")
}

func TestSubmitFailureRollsBackCreatedScenario(t *testing.T) {
	api := testutil.NewFakeAPI()
	api.Fail[testutil.OpApplyDecision] = errors.New("unknown decision")
	w, notices := newWizard(api)
	require.NoError(t, w.Fill(Answers{Values: map[string]any{"price": 1}}))

	_, err := w.Submit(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, api.Count(testutil.OpDelete))
	assert.Len(t, notices.Errors, 1)
	assert.False(t, w.Done())
	assert.True(t, w.AtReview())
}

func TestSubmitAppendNeverDeletes(t *testing.T) {
	api := testutil.NewFakeAPI()
	api.Fail[testutil.OpCompute] = errors.New("down")
	w, _ := newWizard(api)
	require.NoError(t, w.Fill(Answers{
		Mode:         string(scenarioflow.ModeAppend),
		ScenarioID:   "scn-7",
		ScenarioName: "Baseline",
		Values:       map[string]any{"price": 1},
	}))

	_, err := w.Submit(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, api.Count(testutil.OpCreate))
	assert.Equal(t, 0, api.Count(testutil.OpDelete))
}

func TestSubmitRequiresTarget(t *testing.T) {
	api := testutil.NewFakeAPI()
	w, _ := newWizard(api)
	require.NoError(t, w.Fill(Answers{Mode: "append", Values: map[string]any{"price": 1}}))

	_, err := w.Submit(context.Background())
	var verr *wizard.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Empty(t, api.Ops())
}

func TestSubmitOnlyFromReview(t *testing.T) {
	w, _ := newWizard(testutil.NewFakeAPI())
	_, err := w.Submit(context.Background())
	assert.ErrorIs(t, err, wizard.ErrNotAtReview)
}

func chainedTemplate() model.DecisionTemplate {
	return model.DecisionTemplate{
		Key:  "buy_car",
		Name: "Buy a car",
		Steps: []model.DecisionStep{
			{Title: "Purchase", Fields: []model.DecisionField{
				{Key: "financing", Label: "Financing", Kind: model.FieldSelect, Options: []string{"cash", "loan"}, Default: "cash"},
				{Key: "lender", Label: "Lender", Kind: model.FieldSelect, Options: []string{"bank", "dealer"},
					ShowIf: &model.Condition{Field: "financing", Equals: "loan"}},
				{Key: "promoRate", Label: "Dealer promo rate", Kind: model.FieldNumber, Required: true,
					ShowIf: &model.Condition{Field: "lender", Equals: "dealer"}},
			}},
		},
	}
}

func TestHiddenControllerHidesDependents(t *testing.T) {
	w := New(chainedTemplate(), Deps{API: testutil.NewFakeAPI()})
	promo, _ := w.field("promoRate")

	require.NoError(t, w.Set("financing", "loan"))
	require.NoError(t, w.Set("lender", "dealer"))
	require.NoError(t, w.Set("promoRate", "1.9"))
	assert.True(t, w.Visible(promo))

	require.NoError(t, w.Set("financing", "cash"))
	assert.False(t, w.Visible(promo), "lender is hidden, so its stale value must not reveal promoRate")
	assert.Equal(t, map[string]any{"financing": "cash"}, w.Values())
	require.NoError(t, w.Next(), "hidden required fields are not validated")
}

func TestShowIfCycleIsHidden(t *testing.T) {
	tmpl := model.DecisionTemplate{Key: "loop", Steps: []model.DecisionStep{{Fields: []model.DecisionField{
		{Key: "a", Kind: model.FieldText, ShowIf: &model.Condition{Field: "b", Equals: "x"}},
		{Key: "b", Kind: model.FieldText, ShowIf: &model.Condition{Field: "a", Equals: "x"}},
	}}}}
	w := New(tmpl, Deps{API: testutil.NewFakeAPI()})
	require.NoError(t, w.Set("a", "x"))
	require.NoError(t, w.Set("b", "x"))
	a, _ := w.field("a")
	assert.False(t, w.Visible(a))
}

// doneReader reads wizard state from inside a notification.
type doneReader struct {
	w    *Wizard
	done chan bool
}

func (r *doneReader) Error(string)   { r.done <- r.w.Done() }
func (r *doneReader) Success(string) { r.done <- r.w.Done() }

func TestNotifierMayReadWizardState(t *testing.T) {
	api := testutil.NewFakeAPI()
	r := &doneReader{done: make(chan bool, 2)}
	r.w = New(buyCarTemplate(), Deps{API: api, Notifier: r})
	require.NoError(t, r.w.Fill(Answers{Name: "Car purchase", Values: map[string]any{"price": 30000}}))

	api.Fail[testutil.OpCompute] = errors.New("boom")
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		_, _ = r.w.Submit(context.Background())
		delete(api.Fail, testutil.OpCompute)
		_, _ = r.w.Submit(context.Background())
	}()

	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("submit blocked while notifying")
	}
	assert.False(t, <-r.done)
	assert.True(t, <-r.done)
}

func TestNilNotifierIsAllowed(t *testing.T) {
	api := testutil.NewFakeAPI()
	w := New(buyCarTemplate(), Deps{API: api})
	require.NoError(t, w.Fill(Answers{Name: "Car purchase", Values: map[string]any{"price": 30000}}))
	_, err := w.Submit(context.Background())
	require.NoError(t, err)
}
