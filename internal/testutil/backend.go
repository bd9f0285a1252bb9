package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"whatif-planner/internal/model"
)

// Backend is a FakeAPI that also serves read endpoints from fixed data.
// Reads named in ReadFail fail with that error.
type Backend struct {
	*FakeAPI

	LifeEvents  []model.LifeEventTemplate
	Decisions   []model.DecisionTemplate
	Scenarios   []model.Scenario
	Accounts    []model.Account
	Incomes     []model.Flow
	Expenses    []model.Flow
	Goals       []model.Goal
	Statuses    []model.GoalStatus
	Metrics     model.MetricsSnapshot
	Projections map[string][]model.Projection

	ReadFail map[string]error

	mu    sync.Mutex
	reads map[string]int
}

func NewBackend() *Backend {
	return &Backend{FakeAPI: NewFakeAPI(), ReadFail: map[string]error{}, reads: map[string]int{}}
}

// Reads returns how many times the named read endpoint was called.
func (b *Backend) Reads(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reads[name]
}

func (b *Backend) read(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reads[name]++
	return b.ReadFail[name]
}

var errNotFound = errors.New("API error: 404 Not Found")

func (b *Backend) ListLifeEventTemplates(context.Context) ([]model.LifeEventTemplate, error) {
	return b.LifeEvents, b.read("life-event-templates")
}

func (b *Backend) GetLifeEventTemplate(_ context.Context, name string) (model.LifeEventTemplate, error) {
	if err := b.read("life-event-template"); err != nil {
		return model.LifeEventTemplate{}, err
	}
	for _, t := range b.LifeEvents {
		if t.Name == name {
			return t, nil
		}
	}
	return model.LifeEventTemplate{}, fmt.Errorf("%w: %s", errNotFound, name)
}

func (b *Backend) ListDecisionTemplates(context.Context) ([]model.DecisionTemplate, error) {
	return b.Decisions, b.read("decision-templates")
}

func (b *Backend) GetDecisionTemplate(_ context.Context, key string) (model.DecisionTemplate, error) {
	if err := b.read("decision-template"); err != nil {
		return model.DecisionTemplate{}, err
	}
	for _, t := range b.Decisions {
		if t.Key == key {
			return t, nil
		}
	}
	return model.DecisionTemplate{}, fmt.Errorf("%w: %s", errNotFound, key)
}

func (b *Backend) ListScenarios(context.Context) ([]model.Scenario, error) {
	return b.Scenarios, b.read("scenarios")
}

func (b *Backend) ListAccounts(context.Context) ([]model.Account, error) {
	return b.Accounts, b.read("accounts")
}

func (b *Backend) ListIncomeSources(context.Context) ([]model.Flow, error) {
	return b.Incomes, b.read("income-sources")
}

func (b *Backend) ListExpenseFlows(context.Context) ([]model.Flow, error) {
	return b.Expenses, b.read("expense-flows")
}

func (b *Backend) ListGoals(context.Context) ([]model.Goal, error) {
	return b.Goals, b.read("goals")
}

func (b *Backend) ListGoalStatuses(context.Context) ([]model.GoalStatus, error) {
	return b.Statuses, b.read("goal-status")
}

func (b *Backend) GetMetricsSnapshot(context.Context) (model.MetricsSnapshot, error) {
	return b.Metrics, b.read("metrics")
}

func (b *Backend) ListProjections(_ context.Context, id string) ([]model.Projection, error) {
	return b.Projections[id], b.read("projections")
}
