package apiclient

import (
	"bytes"
	"context"
	"errors"
	"net/url"

	json "github.com/goccy/go-json"
	"github.com/valyala/fasthttp"

	"whatif-planner/internal/casing"
	"whatif-planner/internal/model"
)

// listBody accepts either a bare array or a paginated {"results": [...]} body.
type listBody[T any] struct {
	Items []T
}

func (l *listBody[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		return json.Unmarshal(b, &l.Items)
	}
	var page struct {
		Results []T `json:"results"`
	}
	if err := json.Unmarshal(b, &page); err != nil {
		return err
	}
	l.Items = page.Results
	return nil
}

func list[T any](ctx context.Context, c *Client, path string) ([]T, error) {
	var body listBody[T]
	if err := c.Do(ctx, fasthttp.MethodGet, path, nil, &body); err != nil {
		return nil, err
	}
	if body.Items == nil {
		return []T{}, nil
	}
	return body.Items, nil
}

func seg(s string) string { return url.PathEscape(s) }

// Login exchanges credentials for a token pair and stores it in the session.
func (c *Client) Login(ctx context.Context, username, password string) error {
	payload, err := casing.Encode(map[string]string{"username": username, "password": password})
	if err != nil {
		return err
	}
	status, body, err := c.send(ctx, fasthttp.MethodPost, c.opts.LoginPath, payload, false)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		apiErr := &APIError{Status: status, StatusText: fasthttp.StatusMessage(status), Body: body}
		c.logFailure(fasthttp.MethodPost, c.opts.LoginPath, status, apiErr)
		return apiErr
	}
	var pair model.TokenPair
	if err := casing.Decode(body, &pair); err != nil {
		return err
	}
	if pair.Access == "" {
		return errors.New("login response carried no access token")
	}
	return c.session.Login(pair.Access, pair.Refresh)
}

// Scenarios

func (c *Client) ListScenarios(ctx context.Context) ([]model.Scenario, error) {
	return list[model.Scenario](ctx, c, "/scenarios")
}

func (c *Client) GetScenario(ctx context.Context, id string) (model.Scenario, error) {
	var s model.Scenario
	err := c.Do(ctx, fasthttp.MethodGet, "/scenarios/"+seg(id), nil, &s)
	return s, err
}

func (c *Client) CreateScenario(ctx context.Context, in model.ScenarioInput) (model.Scenario, error) {
	var s model.Scenario
	err := c.Do(ctx, fasthttp.MethodPost, "/scenarios", in, &s)
	return s, err
}

func (c *Client) UpdateScenario(ctx context.Context, id string, fields map[string]any) (model.Scenario, error) {
	var s model.Scenario
	err := c.Do(ctx, fasthttp.MethodPatch, "/scenarios/"+seg(id), fields, &s)
	return s, err
}

func (c *Client) DeleteScenario(ctx context.Context, id string) error {
	return c.Do(ctx, fasthttp.MethodDelete, "/scenarios/"+seg(id), nil, nil)
}

func (c *Client) ComputeProjection(ctx context.Context, id string) (model.ComputeResponse, error) {
	var r model.ComputeResponse
	err := c.Do(ctx, fasthttp.MethodPost, "/scenarios/"+seg(id)+"/compute", nil, &r)
	return r, err
}

func (c *Client) ListProjections(ctx context.Context, id string) ([]model.Projection, error) {
	return list[model.Projection](ctx, c, "/scenarios/"+seg(id)+"/projections")
}

// Templates

func (c *Client) ListLifeEventTemplates(ctx context.Context) ([]model.LifeEventTemplate, error) {
	return list[model.LifeEventTemplate](ctx, c, "/life-event-templates")
}

func (c *Client) GetLifeEventTemplate(ctx context.Context, name string) (model.LifeEventTemplate, error) {
	var t model.LifeEventTemplate
	err := c.Do(ctx, fasthttp.MethodGet, "/life-event-templates/"+seg(name), nil, &t)
	return t, err
}

func (c *Client) ApplyLifeEventTemplate(ctx context.Context, name string, req model.ApplyTemplateRequest) (model.ApplyTemplateResponse, error) {
	var r model.ApplyTemplateResponse
	err := c.Do(ctx, fasthttp.MethodPost, "/life-event-templates/"+seg(name)+"/apply", req, &r)
	return r, err
}

func (c *Client) ListDecisionTemplates(ctx context.Context) ([]model.DecisionTemplate, error) {
	return list[model.DecisionTemplate](ctx, c, "/decision-templates")
}

func (c *Client) GetDecisionTemplate(ctx context.Context, key string) (model.DecisionTemplate, error) {
	var t model.DecisionTemplate
	err := c.Do(ctx, fasthttp.MethodGet, "/decision-templates/"+seg(key), nil, &t)
	return t, err
}

func (c *Client) ApplyDecisionTemplate(ctx context.Context, key string, req model.ApplyDecisionRequest) (model.ApplyDecisionResponse, error) {
	var r model.ApplyDecisionResponse
	err := c.Do(ctx, fasthttp.MethodPost, "/decision-templates/"+seg(key)+"/apply", req, &r)
	return r, err
}

// Household data

func (c *Client) ListHouseholds(ctx context.Context) ([]model.Household, error) {
	return list[model.Household](ctx, c, "/households")
}

func (c *Client) ListAccounts(ctx context.Context) ([]model.Account, error) {
	return list[model.Account](ctx, c, "/accounts")
}

func (c *Client) ListIncomeSources(ctx context.Context) ([]model.Flow, error) {
	return list[model.Flow](ctx, c, "/income-sources")
}

func (c *Client) ListExpenseFlows(ctx context.Context) ([]model.Flow, error) {
	return list[model.Flow](ctx, c, "/expense-flows")
}

func (c *Client) ListGoals(ctx context.Context) ([]model.Goal, error) {
	return list[model.Goal](ctx, c, "/goals")
}

func (c *Client) ListGoalStatuses(ctx context.Context) ([]model.GoalStatus, error) {
	return list[model.GoalStatus](ctx, c, "/goals/status")
}

func (c *Client) GetMetricsSnapshot(ctx context.Context) (model.MetricsSnapshot, error) {
	var m model.MetricsSnapshot
	err := c.Do(ctx, fasthttp.MethodGet, "/metrics/snapshot", nil, &m)
	return m, err
}
