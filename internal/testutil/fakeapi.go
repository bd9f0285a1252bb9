// Package testutil holds fakes shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"whatif-planner/internal/model"
)

// Call is one recorded backend call.
type Call struct {
	Op         string
	ScenarioID string
	Name       string
	Payload    any
}

// FakeAPI records backend calls and fails the operations named in Fail.
type FakeAPI struct {
	mu    sync.Mutex
	Calls []Call
	seq   int

	Fail map[string]error

	// ApplyResponse is returned by ApplyLifeEventTemplate on success.
	ApplyResponse model.ApplyTemplateResponse
}

const (
	OpCreate         = "create"
	OpApplyLifeEvent = "apply_life_event"
	OpApplyDecision  = "apply_decision"
	OpCompute        = "compute"
	OpDelete         = "delete"
)

func NewFakeAPI() *FakeAPI {
	return &FakeAPI{Fail: map[string]error{}}
}

func (f *FakeAPI) record(c Call) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, c)
	return f.Fail[c.Op]
}

// Count returns how many calls of op were made.
func (f *FakeAPI) Count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Ops lists the recorded operations in order.
func (f *FakeAPI) Ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ops := make([]string, len(f.Calls))
	for i, c := range f.Calls {
		ops[i] = c.Op
	}
	return ops
}

// Last returns the most recent call of op.
func (f *FakeAPI) Last(op string) (Call, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.Calls) - 1; i >= 0; i-- {
		if f.Calls[i].Op == op {
			return f.Calls[i], true
		}
	}
	return Call{}, false
}

func (f *FakeAPI) CreateScenario(_ context.Context, in model.ScenarioInput) (model.Scenario, error) {
	if err := f.record(Call{Op: OpCreate, Name: in.Name, Payload: in}); err != nil {
		return model.Scenario{}, err
	}
	f.mu.Lock()
	f.seq++
	id := fmt.Sprintf("scn-%d", f.seq)
	f.mu.Unlock()
	return model.Scenario{ID: id, Name: in.Name, Description: in.Description, StartDate: in.StartDate}, nil
}

func (f *FakeAPI) ApplyLifeEventTemplate(_ context.Context, name string, req model.ApplyTemplateRequest) (model.ApplyTemplateResponse, error) {
	if err := f.record(Call{Op: OpApplyLifeEvent, ScenarioID: req.ScenarioID, Name: name, Payload: req}); err != nil {
		return model.ApplyTemplateResponse{}, err
	}
	resp := f.ApplyResponse
	resp.ScenarioID = req.ScenarioID
	return resp, nil
}

func (f *FakeAPI) ApplyDecisionTemplate(_ context.Context, key string, req model.ApplyDecisionRequest) (model.ApplyDecisionResponse, error) {
	if err := f.record(Call{Op: OpApplyDecision, ScenarioID: req.ScenarioID, Name: key, Payload: req}); err != nil {
		return model.ApplyDecisionResponse{}, err
	}
	return model.ApplyDecisionResponse{ScenarioID: req.ScenarioID}, nil
}

func (f *FakeAPI) ComputeProjection(_ context.Context, id string) (model.ComputeResponse, error) {
	if err := f.record(Call{Op: OpCompute, ScenarioID: id}); err != nil {
		return model.ComputeResponse{}, err
	}
	return model.ComputeResponse{ScenarioID: id, Status: "computed"}, nil
}

func (f *FakeAPI) DeleteScenario(_ context.Context, id string) error {
	return f.record(Call{Op: OpDelete, ScenarioID: id})
}

// Invalidations records cache invalidation prefixes.
type Invalidations struct {
	mu       sync.Mutex
	Prefixes []string
}

func (i *Invalidations) Invalidate(_ context.Context, prefix string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.Prefixes = append(i.Prefixes, prefix)
	return nil
}

func (i *Invalidations) List() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]string(nil), i.Prefixes...)
}

// Notices records user-facing notifications.
type Notices struct {
	mu     sync.Mutex
	Errors []string
	Infos  []string
}

func (n *Notices) Error(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Errors = append(n.Errors, msg)
}

func (n *Notices) Success(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Infos = append(n.Infos, msg)
}
