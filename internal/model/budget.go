package model

import "github.com/shopspring/decimal"

// Budget is the monthly cash-flow picture the review step previews changes against.
type Budget struct {
	Incomes  []BudgetLine `json:"incomes"`
	Expenses []BudgetLine `json:"expenses"`
	Debts    []BudgetLine `json:"debts"`
	LineSeq  int          `json:"-"` // internal: next generated line number
}

type BudgetLine struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Category string          `json:"category,omitempty"`
	Monthly  decimal.Decimal `json:"monthly"`
	Origin   string          `json:"origin"`
}

type BudgetTotals struct {
	Income   decimal.Decimal `json:"income"`
	Expenses decimal.Decimal `json:"expenses"`
	Debt     decimal.Decimal `json:"debt"`
	Surplus  decimal.Decimal `json:"surplus"`
}

func (b *Budget) Lines(subject string) *[]BudgetLine {
	switch subject {
	case "income":
		return &b.Incomes
	case "expense":
		return &b.Expenses
	case "debt":
		return &b.Debts
	}
	return nil
}

func (b Budget) Totals() BudgetTotals {
	var t BudgetTotals
	for _, l := range b.Incomes {
		t.Income = t.Income.Add(l.Monthly)
	}
	for _, l := range b.Expenses {
		t.Expenses = t.Expenses.Add(l.Monthly)
	}
	for _, l := range b.Debts {
		t.Debt = t.Debt.Add(l.Monthly)
	}
	t.Surplus = t.Income.Sub(t.Expenses).Sub(t.Debt)
	return t
}

// Clone deep-copies the line slices so previews never alias the baseline.
func (b Budget) Clone() Budget {
	return Budget{
		Incomes:  append([]BudgetLine(nil), b.Incomes...),
		Expenses: append([]BudgetLine(nil), b.Expenses...),
		Debts:    append([]BudgetLine(nil), b.Debts...),
		LineSeq:  b.LineSeq,
	}
}
