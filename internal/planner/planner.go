// Package planner is the facade the CLI and the companion server share: it
// loads templates and flows through the query cache and runs the wizards.
package planner

import (
	"context"
	"time"

	"go.uber.org/zap"

	"whatif-planner/internal/dashboard"
	"whatif-planner/internal/decision"
	"whatif-planner/internal/logger"
	"whatif-planner/internal/model"
	"whatif-planner/internal/query"
	"whatif-planner/internal/wizard"
)

// API is the backend surface the planner needs; *apiclient.Client satisfies it.
type API interface {
	wizard.API
	decision.API
	dashboard.API
	ListLifeEventTemplates(ctx context.Context) ([]model.LifeEventTemplate, error)
	GetLifeEventTemplate(ctx context.Context, name string) (model.LifeEventTemplate, error)
	ListDecisionTemplates(ctx context.Context) ([]model.DecisionTemplate, error)
	GetDecisionTemplate(ctx context.Context, key string) (model.DecisionTemplate, error)
}

type Service struct {
	API   API
	Cache *query.Cache
	Log   *zap.Logger
	Now   func() time.Time
}

func New(api API, cache *query.Cache, log *zap.Logger) *Service {
	if cache == nil {
		cache = query.NewCache(nil, 5*time.Minute, log)
	}
	return &Service{API: api, Cache: cache, Log: logger.OrNop(log)}
}

func (s *Service) LifeEventTemplates(ctx context.Context) ([]model.LifeEventTemplate, error) {
	res := query.Fetch(ctx, s.Cache, query.KeyLifeEventTemplates, s.API.ListLifeEventTemplates)
	return res.Data, res.Err
}

func (s *Service) LifeEventTemplate(ctx context.Context, name string) (model.LifeEventTemplate, error) {
	res := query.Fetch(ctx, s.Cache, query.KeyLifeEventTemplates+"/"+name, func(ctx context.Context) (model.LifeEventTemplate, error) {
		return s.API.GetLifeEventTemplate(ctx, name)
	})
	return res.Data, res.Err
}

func (s *Service) DecisionTemplates(ctx context.Context) ([]model.DecisionTemplate, error) {
	res := query.Fetch(ctx, s.Cache, query.KeyDecisionTemplates, s.API.ListDecisionTemplates)
	return res.Data, res.Err
}

func (s *Service) DecisionTemplate(ctx context.Context, key string) (model.DecisionTemplate, error) {
	res := query.Fetch(ctx, s.Cache, query.KeyDecisionTemplates+"/"+key, func(ctx context.Context) (model.DecisionTemplate, error) {
		return s.API.GetDecisionTemplate(ctx, key)
	})
	return res.Data, res.Err
}

// Sources loads the flows that source-referencing changes resolve against.
func (s *Service) Sources(ctx context.Context) (wizard.Sources, error) {
	inc := query.Fetch(ctx, s.Cache, query.KeyIncomeSources, s.API.ListIncomeSources)
	if inc.Err != nil && !inc.FromCache {
		return wizard.Sources{}, inc.Err
	}
	exp := query.Fetch(ctx, s.Cache, query.KeyExpenseFlows, s.API.ListExpenseFlows)
	if exp.Err != nil && !exp.FromCache {
		return wizard.Sources{}, exp.Err
	}
	return wizard.Sources{Incomes: inc.Data, Expenses: exp.Data}, nil
}

func (s *Service) Scenarios(ctx context.Context) ([]model.Scenario, error) {
	res := query.Fetch(ctx, s.Cache, query.KeyScenarios, s.API.ListScenarios)
	return res.Data, res.Err
}

func (s *Service) LifeEventWizard(ctx context.Context, name string, notify wizard.Notifier) (*wizard.Wizard, error) {
	tmpl, err := s.LifeEventTemplate(ctx, name)
	if err != nil {
		return nil, err
	}
	sources, err := s.Sources(ctx)
	if err != nil {
		return nil, err
	}
	return wizard.New(tmpl, wizard.Deps{
		API:      s.API,
		Cache:    s.Cache,
		Notifier: notify,
		Log:      s.Log,
		Now:      s.Now,
		Sources:  sources,
	}), nil
}

func (s *Service) DecisionWizard(ctx context.Context, key string, notify wizard.Notifier) (*decision.Wizard, error) {
	tmpl, err := s.DecisionTemplate(ctx, key)
	if err != nil {
		return nil, err
	}
	sources, err := s.Sources(ctx)
	if err != nil {
		return nil, err
	}
	return decision.New(tmpl, decision.Deps{
		API:      s.API,
		Cache:    s.Cache,
		Notifier: notify,
		Log:      s.Log,
		Now:      s.Now,
		Sources:  sources,
	}), nil
}

// LifeEventSubmission is what a non-interactive life-event run produced.
type LifeEventSubmission struct {
	Review wizard.Review      `json:"review"`
	Result model.WizardResult `json:"result"`
}

// SubmitLifeEvent fills the named template's wizard from answers and submits it.
func (s *Service) SubmitLifeEvent(ctx context.Context, name string, a wizard.Answers, notify wizard.Notifier) (LifeEventSubmission, error) {
	w, err := s.LifeEventWizard(ctx, name, notify)
	if err != nil {
		return LifeEventSubmission{}, err
	}
	if err := w.Fill(a); err != nil {
		return LifeEventSubmission{}, err
	}
	out := LifeEventSubmission{Review: w.Review()}
	out.Result, err = w.Submit(ctx)
	return out, err
}

func (s *Service) SubmitDecision(ctx context.Context, key string, a decision.Answers, notify wizard.Notifier) (model.WizardResult, error) {
	w, err := s.DecisionWizard(ctx, key, notify)
	if err != nil {
		return model.WizardResult{}, err
	}
	if err := w.Fill(a); err != nil {
		return model.WizardResult{}, err
	}
	return w.Submit(ctx)
}

func (s *Service) Dashboard(ctx context.Context) *dashboard.Dashboard {
	l := &dashboard.Loader{API: s.API, Cache: s.Cache, Log: s.Log}
	return l.Load(ctx)
}

func (s *Service) DeleteScenario(ctx context.Context, id string) error {
	if err := s.API.DeleteScenario(ctx, id); err != nil {
		return err
	}
	return s.Cache.Invalidate(ctx, query.KeyScenarios)
}

func (s *Service) ComputeScenario(ctx context.Context, id string) (model.ComputeResponse, error) {
	resp, err := s.API.ComputeProjection(ctx, id)
	if err != nil {
		return resp, err
	}
	return resp, s.Cache.Invalidate(ctx, query.ScenarioKey(id))
}

// Invalidate drops cached data under prefix; an empty prefix drops everything.
func (s *Service) Invalidate(ctx context.Context, prefix string) error {
	return s.Cache.Invalidate(ctx, prefix)
}
