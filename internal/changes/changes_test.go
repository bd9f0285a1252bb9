package changes

import (
	"testing"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whatif-planner/internal/model"
)

func TestIsAmountLike(t *testing.T) {
	for _, k := range []string{"amount", "monthlyPayment", "principal", "homeValue", "closingCosts", "purchasePrice", "interestRate", "percentage", "durationMonths", "loanTerm"} {
		assert.True(t, IsAmountLike(k), k)
	}
	for _, k := range []string{"name", "frequency", "category", "sourceFlowId", "startDate"} {
		assert.False(t, IsAmountLike(k), k)
	}
}

func TestParseParam(t *testing.T) {
	v, err := ParseParam("monthlyAmount", " 1,250.50 ")
	require.NoError(t, err)
	assert.Equal(t, 1250.5, v)

	v, err = ParseParam("monthlyAmount", "")
	require.NoError(t, err)
	assert.Equal(t, 0.0, v)

	_, err = ParseParam("interestRate", "abc")
	require.Error(t, err)

	_, err = ParseParam("amount", "1e400")
	require.EqualError(t, err, "amount must be a number")

	_, err = ParseParam("amount", "-1e400")
	require.Error(t, err)

	v, err = ParseParam("category", " childcare")
	require.NoError(t, err)
	assert.Equal(t, "childcare", v)

	v, err = ParseParam(SourceFlowKey, " inc-1 ")
	require.NoError(t, err)
	assert.Equal(t, "inc-1", v)
}

func TestMonthly(t *testing.T) {
	cases := map[string]string{
		"monthly":     "1200",
		"annual":      "100",
		"weekly":      "5200",
		"biweekly":    "2600",
		"semimonthly": "2400",
		"quarterly":   "400",
		"one_time":    "0",
	}
	for freq, want := range cases {
		got, ok := Monthly(decimal.NewFromInt(1200), freq)
		require.True(t, ok, freq)
		assert.Equal(t, want, got.String(), freq)
	}
	_, ok := Monthly(decimal.NewFromInt(1), "fortnightly-ish")
	assert.False(t, ok)
}

func TestNumberShapes(t *testing.T) {
	for _, v := range []any{12.5, "12.5", json.Number("12.5"), decimal.RequireFromString("12.5")} {
		d, ok := Number(v)
		require.True(t, ok)
		assert.Equal(t, "12.5", d.String())
	}
	_, ok := Number(true)
	assert.False(t, ok)
}

func TestAddValidation(t *testing.T) {
	h, ok := Get(model.ChangeAddDebt)
	require.True(t, ok)
	b := model.Budget{}

	msgs := h.Validate(&b, &Input{Change: model.SuggestedChange{Name: "Car loan"}, Value: model.ChangeValue{Params: map[string]any{}}})
	require.Len(t, msgs, 1)
	assert.Equal(t, "INVALID_AMOUNT", msgs[0].Code)

	msgs = h.Validate(&b, &Input{Value: model.ChangeValue{Params: map[string]any{"monthlyPayment": -5.0}}})
	assert.True(t, model.HasCritical(msgs))

	msgs = h.Validate(&b, &Input{Value: model.ChangeValue{Params: map[string]any{"payment": 5.0, "frequency": "hourly"}}})
	require.Len(t, msgs, 1)
	assert.Equal(t, "INVALID_FREQUENCY", msgs[0].Code)

	in := &Input{Index: 3, Change: model.SuggestedChange{Name: "Car loan"}, Value: model.ChangeValue{Params: map[string]any{"monthlyPayment": 350.0}}}
	assert.Empty(t, h.Validate(&b, in))
	assert.Empty(t, h.Apply(&b, in))
	require.Len(t, b.Debts, 1)
	assert.Equal(t, "change:3", b.Debts[0].Origin)
	assert.Equal(t, "350", b.Totals().Debt.String())
}

func TestDebtModifyWithoutLineWarns(t *testing.T) {
	h, _ := Get(model.ChangeRemoveDebt)
	msgs := h.Validate(&model.Budget{}, &Input{Value: model.ChangeValue{Params: map[string]any{SourceFlowKey: "loan-1"}}})
	require.Len(t, msgs, 1)
	assert.Equal(t, model.LevelWarning, msgs[0].Level)
}

func TestBaselineBudget(t *testing.T) {
	b := BaselineBudget(
		[]model.Flow{{ID: "i", Amount: decimal.NewFromInt(100), Frequency: "Weekly"}},
		[]model.Flow{{ID: "e", Amount: decimal.NewFromInt(50), Frequency: ""}},
	)
	assert.Equal(t, "433.33", b.Incomes[0].Monthly.String())
	assert.Equal(t, "50", b.Expenses[0].Monthly.String())
	assert.Equal(t, "baseline", b.Incomes[0].Origin)
}
