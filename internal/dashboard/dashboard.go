// Package dashboard loads everything the home screen shows. Each resource is
// fetched concurrently through the query cache and keeps its own error, so a
// failed resource never hides the ones that loaded.
package dashboard

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"whatif-planner/internal/kpi"
	"whatif-planner/internal/logger"
	"whatif-planner/internal/model"
	"whatif-planner/internal/query"
)

type API interface {
	ListScenarios(ctx context.Context) ([]model.Scenario, error)
	ListAccounts(ctx context.Context) ([]model.Account, error)
	ListIncomeSources(ctx context.Context) ([]model.Flow, error)
	ListExpenseFlows(ctx context.Context) ([]model.Flow, error)
	ListGoals(ctx context.Context) ([]model.Goal, error)
	ListGoalStatuses(ctx context.Context) ([]model.GoalStatus, error)
	GetMetricsSnapshot(ctx context.Context) (model.MetricsSnapshot, error)
	ListProjections(ctx context.Context, scenarioID string) ([]model.Projection, error)
}

type AccountGroup struct {
	Category string          `json:"category"`
	Accounts []model.Account `json:"accounts"`
	Total    decimal.Decimal `json:"total"`
}

type Point struct {
	Month string          `json:"month"`
	Value decimal.Decimal `json:"value"`
}

type CashFlowPoint struct {
	Month    string          `json:"month"`
	Income   decimal.Decimal `json:"income"`
	Expenses decimal.Decimal `json:"expenses"`
	Surplus  decimal.Decimal `json:"surplus"`
}

type Dashboard struct {
	Scenarios    []model.Scenario       `json:"scenarios"`
	Accounts     []model.Account        `json:"accounts"`
	Incomes      []model.Flow           `json:"incomeSources"`
	Expenses     []model.Flow           `json:"expenseFlows"`
	Goals        []model.Goal           `json:"goals"`
	GoalStatuses []model.GoalStatus     `json:"goalStatuses"`
	Metrics      *model.MetricsSnapshot `json:"metrics,omitempty"`

	Cards          []kpi.Card      `json:"cards"`
	AccountGroups  []AccountGroup  `json:"accountGroups"`
	NetWorthSeries []Point         `json:"netWorthSeries"`
	CashFlowSeries []CashFlowPoint `json:"cashFlowSeries"`

	// Errors holds the failure of each resource that did not load, keyed by
	// its cache key.
	Errors map[string]error `json:"-"`
	Stale  []string         `json:"stale,omitempty"`
}

// HasError is true when any resource failed.
func (d *Dashboard) HasError() bool { return len(d.Errors) > 0 }

// ErrorMessages is the serializable form of Errors.
func (d *Dashboard) ErrorMessages() map[string]string {
	out := make(map[string]string, len(d.Errors))
	for k, err := range d.Errors {
		out[k] = err.Error()
	}
	return out
}

type Loader struct {
	API   API
	Cache *query.Cache
	Log   *zap.Logger
}

// Load fetches every resource concurrently and derives the aggregates from
// whatever arrived.
func (l *Loader) Load(ctx context.Context) *Dashboard {
	d := &Dashboard{Errors: map[string]error{}}
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	fetch(ctx, l, &wg, &mu, d, query.KeyScenarios, l.API.ListScenarios, func(v []model.Scenario) { d.Scenarios = v })
	fetch(ctx, l, &wg, &mu, d, query.KeyAccounts, l.API.ListAccounts, func(v []model.Account) { d.Accounts = v })
	fetch(ctx, l, &wg, &mu, d, query.KeyIncomeSources, l.API.ListIncomeSources, func(v []model.Flow) { d.Incomes = v })
	fetch(ctx, l, &wg, &mu, d, query.KeyExpenseFlows, l.API.ListExpenseFlows, func(v []model.Flow) { d.Expenses = v })
	fetch(ctx, l, &wg, &mu, d, query.KeyGoals, l.API.ListGoals, func(v []model.Goal) { d.Goals = v })
	fetch(ctx, l, &wg, &mu, d, query.KeyGoalStatus, l.API.ListGoalStatuses, func(v []model.GoalStatus) { d.GoalStatuses = v })
	fetch(ctx, l, &wg, &mu, d, query.KeyMetrics, l.API.GetMetricsSnapshot, func(v model.MetricsSnapshot) { d.Metrics = &v })
	wg.Wait()

	if base, ok := Baseline(d.Scenarios); ok {
		key := query.ScenarioKey(base.ID) + "/projections"
		load := func(ctx context.Context) ([]model.Projection, error) { return l.API.ListProjections(ctx, base.ID) }
		fetch(ctx, l, &wg, &mu, d, key, load, func(v []model.Projection) {
			d.NetWorthSeries, d.CashFlowSeries = Series(v)
		})
		wg.Wait()
	}

	d.AccountGroups = GroupAccounts(d.Accounts)
	if d.Metrics != nil {
		d.Cards = kpi.Cards(*d.Metrics, d.Goals, d.GoalStatuses)
	}
	sort.Strings(d.Stale)

	if d.HasError() {
		logger.OrNop(l.Log).Warn("dashboard loaded with errors", zap.Int("failed", len(d.Errors)))
	}
	return d
}

func fetch[T any](ctx context.Context, l *Loader, wg *sync.WaitGroup, mu *sync.Mutex, d *Dashboard, key string, load func(context.Context) (T, error), assign func(T)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		res := query.Fetch(ctx, l.Cache, key, load)

		mu.Lock()
		defer mu.Unlock()
		if res.Err != nil {
			d.Errors[key] = res.Err
			logger.OrNop(l.Log).Debug("dashboard resource failed", zap.String("resource", key), zap.Error(res.Err))
			if !res.FromCache {
				return
			}
		}
		if res.Stale {
			d.Stale = append(d.Stale, key)
		}
		assign(res.Data)
	}()
}

// Baseline picks the scenario flagged as baseline, else the first one.
func Baseline(scenarios []model.Scenario) (model.Scenario, bool) {
	for _, s := range scenarios {
		if s.IsBaseline {
			return s, true
		}
	}
	if len(scenarios) > 0 {
		return scenarios[0], true
	}
	return model.Scenario{}, false
}

// GroupAccounts groups accounts by category, ordered by category name.
// Liabilities count negatively toward a group's total.
func GroupAccounts(accounts []model.Account) []AccountGroup {
	idx := map[string]int{}
	var groups []AccountGroup
	for _, a := range accounts {
		cat := a.Category
		if cat == "" {
			cat = "other"
		}
		i, ok := idx[cat]
		if !ok {
			i = len(groups)
			idx[cat] = i
			groups = append(groups, AccountGroup{Category: cat})
		}
		g := &groups[i]
		g.Accounts = append(g.Accounts, a)
		if a.IsAsset {
			g.Total = g.Total.Add(a.Balance)
		} else {
			g.Total = g.Total.Sub(a.Balance)
		}
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Category < groups[j].Category })
	return groups
}

// Series turns projections into the net-worth and cash-flow chart series,
// ordered by month.
func Series(projections []model.Projection) ([]Point, []CashFlowPoint) {
	ps := append([]model.Projection(nil), projections...)
	sort.SliceStable(ps, func(i, j int) bool { return ps[i].Month < ps[j].Month })

	nw := make([]Point, 0, len(ps))
	cf := make([]CashFlowPoint, 0, len(ps))
	for _, p := range ps {
		nw = append(nw, Point{Month: p.Month, Value: p.NetWorth})
		surplus := p.MonthlySurplus
		if surplus.IsZero() {
			surplus = p.MonthlyIncome.Sub(p.MonthlyExpenses)
		}
		cf = append(cf, CashFlowPoint{Month: p.Month, Income: p.MonthlyIncome, Expenses: p.MonthlyExpenses, Surplus: surplus})
	}
	return nw, cf
}
