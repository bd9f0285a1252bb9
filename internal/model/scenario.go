package model

import "github.com/shopspring/decimal"

type Scenario struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	IsBaseline  bool         `json:"isBaseline"`
	StartDate   string       `json:"startDate"`
	Changes     []Change     `json:"changes"`
	Projections []Projection `json:"projections"`
	CreatedAt   string       `json:"createdAt,omitempty"`
	UpdatedAt   string       `json:"updatedAt,omitempty"`
}

type Change struct {
	ID            string         `json:"id"`
	ChangeType    ChangeType     `json:"changeType"`
	Name          string         `json:"name"`
	EffectiveDate string         `json:"effectiveDate"`
	Parameters    map[string]any `json:"parameters"`
}

type Projection struct {
	Month            string          `json:"month"`
	NetWorth         decimal.Decimal `json:"netWorth"`
	TotalAssets      decimal.Decimal `json:"totalAssets"`
	TotalLiabilities decimal.Decimal `json:"totalLiabilities"`
	MonthlyIncome    decimal.Decimal `json:"monthlyIncome"`
	MonthlyExpenses  decimal.Decimal `json:"monthlyExpenses"`
	MonthlySurplus   decimal.Decimal `json:"monthlySurplus"`
	SavingsRate      decimal.Decimal `json:"savingsRate"`
	DSCR             decimal.Decimal `json:"dscr"`
	LiquidityMonths  decimal.Decimal `json:"liquidityMonths"`
}

type ScenarioInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	StartDate   string `json:"startDate"`
	IsBaseline  bool   `json:"isBaseline,omitempty"`
}

type ComputeResponse struct {
	ScenarioID  string       `json:"scenarioId"`
	Status      string       `json:"status"`
	Projections []Projection `json:"projections"`
}

type WizardResult struct {
	ScenarioID     string `json:"scenarioId"`
	ScenarioName   string `json:"scenarioName"`
	ChangesApplied int    `json:"changesApplied"`
}
