package changes

import (
	"strings"

	"whatif-planner/internal/model"
)

// BaselineBudget builds the preview budget from the household's current flows.
// Flows with an unknown frequency are counted as monthly.
func BaselineBudget(incomes, expenses []model.Flow) model.Budget {
	var b model.Budget
	for _, f := range incomes {
		b.Incomes = append(b.Incomes, baselineLine(f))
	}
	for _, f := range expenses {
		b.Expenses = append(b.Expenses, baselineLine(f))
	}
	return b
}

func baselineLine(f model.Flow) model.BudgetLine {
	monthly, ok := Monthly(f.Amount, normalizeFrequency(f.Frequency))
	if !ok {
		monthly = f.Amount
	}
	return model.BudgetLine{
		ID:       f.ID,
		Name:     f.Name,
		Category: f.Category,
		Monthly:  monthly,
		Origin:   "baseline",
	}
}

func normalizeFrequency(f string) string {
	f = strings.ToLower(strings.TrimSpace(f))
	if f == "" {
		return "monthly"
	}
	return f
}
