// Package kpi turns a metrics snapshot into dashboard cards with formatted
// values, goal deltas and a traffic-light status.
package kpi

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"whatif-planner/internal/model"
)

type Status string

const (
	StatusGood     Status = "good"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
	StatusNeutral  Status = "neutral"
)

const (
	NetWorth        = "net_worth"
	SavingsRate     = "savings_rate"
	MonthlySurplus  = "monthly_surplus"
	DSCR            = "dscr"
	LiquidityMonths = "liquidity_months"
)

type Card struct {
	Key          string           `json:"key"`
	Label        string           `json:"label"`
	Value        decimal.Decimal  `json:"value"`
	Display      string           `json:"display"`
	Status       Status           `json:"status"`
	Target       *decimal.Decimal `json:"target,omitempty"`
	Delta        *decimal.Decimal `json:"delta,omitempty"`
	DeltaDisplay string           `json:"deltaDisplay,omitempty"`
}

type metric struct {
	key       string
	label     string
	value     func(model.MetricsSnapshot) decimal.Decimal
	format    func(decimal.Decimal) string
	goalTypes []string
}

var metrics = []metric{
	{NetWorth, "Net worth", func(m model.MetricsSnapshot) decimal.Decimal { return m.NetWorth }, Money, []string{"net_worth"}},
	{SavingsRate, "Savings rate", func(m model.MetricsSnapshot) decimal.Decimal { return m.SavingsRate }, Percent, []string{"savings_rate"}},
	{MonthlySurplus, "Monthly surplus", func(m model.MetricsSnapshot) decimal.Decimal { return m.MonthlySurplus }, Money, []string{"monthly_surplus", "surplus"}},
	{DSCR, "Debt service coverage", func(m model.MetricsSnapshot) decimal.Decimal { return m.DSCR }, Ratio, []string{"dscr", "debt_coverage"}},
	{LiquidityMonths, "Liquidity", func(m model.MetricsSnapshot) decimal.Decimal { return m.LiquidityMonths }, Months, []string{"emergency_fund", "emergency_fund_months", "liquidity_months"}},
}

// Cards builds one card per headline metric. A goal of the matching type adds
// a target and delta; a backend goal status overrides the local thresholds.
func Cards(snap model.MetricsSnapshot, goals []model.Goal, statuses []model.GoalStatus) []Card {
	cards := make([]Card, 0, len(metrics))
	for _, m := range metrics {
		v := m.value(snap)
		c := Card{Key: m.key, Label: m.label, Value: v, Display: m.format(v), Status: Evaluate(m.key, v)}

		if g, ok := goalFor(goals, m.goalTypes); ok {
			target := g.TargetValue
			delta := v.Sub(target)
			c.Target = &target
			c.Delta = &delta
			c.DeltaDisplay = signed(delta, m.format)
			if m.key == NetWorth {
				c.Status = StatusGood
				if delta.IsNegative() {
					c.Status = StatusWarning
				}
			}
			if s, ok := statusFor(statuses, g); ok {
				c.Status = s
			}
		}
		cards = append(cards, c)
	}
	return cards
}

// Evaluate applies the local thresholds for a metric.
func Evaluate(key string, v decimal.Decimal) Status {
	switch key {
	case LiquidityMonths:
		return band(v, decimal.NewFromInt(6), decimal.NewFromInt(3))
	case SavingsRate:
		return band(v, decimal.RequireFromString("0.20"), decimal.RequireFromString("0.10"))
	case DSCR:
		return band(v, decimal.NewFromInt(2), decimal.RequireFromString("1.25"))
	case MonthlySurplus:
		switch v.Sign() {
		case 1:
			return StatusGood
		case 0:
			return StatusWarning
		}
		return StatusCritical
	}
	return StatusNeutral
}

func band(v, good, warn decimal.Decimal) Status {
	switch {
	case v.GreaterThanOrEqual(good):
		return StatusGood
	case v.GreaterThanOrEqual(warn):
		return StatusWarning
	}
	return StatusCritical
}

func goalFor(goals []model.Goal, types []string) (model.Goal, bool) {
	for _, g := range goals {
		for _, t := range types {
			if strings.EqualFold(g.GoalType, t) {
				return g, true
			}
		}
	}
	return model.Goal{}, false
}

func statusFor(statuses []model.GoalStatus, g model.Goal) (Status, bool) {
	for _, s := range statuses {
		if s.GoalID != g.ID {
			continue
		}
		switch strings.ToLower(s.Status) {
		case "on_track", "achieved", "good":
			return StatusGood, true
		case "at_risk", "warning":
			return StatusWarning, true
		case "off_track", "behind", "critical":
			return StatusCritical, true
		}
	}
	return "", false
}

// DeriveIncomeExpenses recovers monthly income and expenses from a savings
// rate (a fraction) and surplus. It is undefined when the rate is zero.
func DeriveIncomeExpenses(savingsRate, surplus decimal.Decimal) (income, expenses decimal.Decimal, ok bool) {
	if savingsRate.IsZero() {
		return decimal.Zero, decimal.Zero, false
	}
	income = surplus.Div(savingsRate).Round(2)
	return income, income.Sub(surplus), true
}

var printer = message.NewPrinter(language.English)

func Money(d decimal.Decimal) string {
	if d.IsNegative() {
		return "-" + Money(d.Neg())
	}
	return printer.Sprintf("$%.2f", d.Round(2).InexactFloat64())
}

// Percent formats a fraction: 0.256 → "25.6%".
func Percent(d decimal.Decimal) string {
	return printer.Sprintf("%.1f%%", d.Mul(decimal.NewFromInt(100)).Round(1).InexactFloat64())
}

func Ratio(d decimal.Decimal) string {
	return printer.Sprintf("%.2fx", d.Round(2).InexactFloat64())
}

func Months(d decimal.Decimal) string {
	return printer.Sprintf("%.1f mo", d.Round(1).InexactFloat64())
}

func signed(d decimal.Decimal, format func(decimal.Decimal) string) string {
	if d.IsNegative() {
		return format(d)
	}
	return "+" + format(d)
}
