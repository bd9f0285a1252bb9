package model

import "github.com/shopspring/decimal"

type Household struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	OnboardingCompleted bool   `json:"onboardingCompleted"`
}

type Account struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Category string          `json:"category"`
	Balance  decimal.Decimal `json:"balance"`
	IsAsset  bool            `json:"isAsset"`
}

// Flow is an income source or an expense flow.
type Flow struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Category  string          `json:"category"`
	Amount    decimal.Decimal `json:"amount"`
	Frequency string          `json:"frequency"`
}

type Goal struct {
	ID          string          `json:"id"`
	GoalType    string          `json:"goalType"`
	Name        string          `json:"name"`
	TargetValue decimal.Decimal `json:"targetValue"`
	TargetDate  string          `json:"targetDate,omitempty"`
}

type GoalStatus struct {
	GoalID       string          `json:"goalId"`
	GoalType     string          `json:"goalType"`
	Status       string          `json:"status"`
	CurrentValue decimal.Decimal `json:"currentValue"`
	TargetValue  decimal.Decimal `json:"targetValue"`
}

type MetricsSnapshot struct {
	AsOf            string          `json:"asOf"`
	NetWorth        decimal.Decimal `json:"netWorth"`
	MonthlyIncome   decimal.Decimal `json:"monthlyIncome"`
	MonthlyExpenses decimal.Decimal `json:"monthlyExpenses"`
	MonthlySurplus  decimal.Decimal `json:"monthlySurplus"`
	SavingsRate     decimal.Decimal `json:"savingsRate"`
	DSCR            decimal.Decimal `json:"dscr"`
	LiquidityMonths decimal.Decimal `json:"liquidityMonths"`
}

type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}
