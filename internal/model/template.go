package model

import (
	"strings"

	json "github.com/goccy/go-json"
)

type ChangeType string

const (
	ChangeAddIncome     ChangeType = "add_income"
	ChangeModifyIncome  ChangeType = "modify_income"
	ChangeRemoveIncome  ChangeType = "remove_income"
	ChangeAddExpense    ChangeType = "add_expense"
	ChangeModifyExpense ChangeType = "modify_expense"
	ChangeRemoveExpense ChangeType = "remove_expense"
	ChangeAddDebt       ChangeType = "add_debt"
	ChangeModifyDebt    ChangeType = "modify_debt"
	ChangeRemoveDebt    ChangeType = "remove_debt"
)

// Subject returns the flow family a change type targets: income, expense or debt.
func (t ChangeType) Subject() string {
	s := string(t)
	if i := strings.IndexByte(s, '_'); i >= 0 {
		return s[i+1:]
	}
	return s
}

type LifeEventTemplate struct {
	Name             string            `json:"name"`
	DisplayName      string            `json:"displayName"`
	Description      string            `json:"description"`
	Category         string            `json:"category"`
	SuggestedChanges []SuggestedChange `json:"suggestedChanges"`
}

// Title prefers the display name over the catalog key.
func (t LifeEventTemplate) Title() string {
	if strings.TrimSpace(t.DisplayName) != "" {
		return t.DisplayName
	}
	return t.Name
}

type SuggestedChange struct {
	ChangeType         ChangeType     `json:"changeType"`
	Name               string         `json:"name"`
	Description        string         `json:"description"`
	IsRequired         bool           `json:"isRequired"`
	EnabledByDefault   bool           `json:"enabledByDefault"`
	ChoiceGroup        string         `json:"choiceGroup,omitempty"`
	RequiresSourceFlow bool           `json:"requiresSourceFlow"`
	ParameterTemplate  map[string]any `json:"parameterTemplate"`
}

// ChangeValue is the user-edited copy of a suggested change's parameters.
// On the wire the parameters are flattened next to a "_skip" flag.
type ChangeValue struct {
	Skip   bool
	Params map[string]any
}

const SkipKey = "_skip"

func (v ChangeValue) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(v.Params)+1)
	for k, p := range v.Params {
		out[k] = p
	}
	out[SkipKey] = v.Skip
	return json.Marshal(out)
}

func (v *ChangeValue) UnmarshalJSON(b []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	v.Params = make(map[string]any, len(raw))
	v.Skip = false
	for k, p := range raw {
		if k == SkipKey {
			skip, _ := p.(bool)
			v.Skip = skip
			continue
		}
		v.Params[k] = p
	}
	return nil
}

// ChangeValues is keyed by the change's index within its template.
type ChangeValues map[int]ChangeValue

// Active counts entries that will be applied.
func (cv ChangeValues) Active() int {
	n := 0
	for _, v := range cv {
		if !v.Skip {
			n++
		}
	}
	return n
}

type ApplyTemplateRequest struct {
	ScenarioID    string       `json:"scenarioId"`
	EffectiveDate string       `json:"effectiveDate"`
	ChangeValues  ChangeValues `json:"changeValues"`
}

type ApplyTemplateResponse struct {
	ScenarioID     string   `json:"scenarioId"`
	ScenarioName   string   `json:"scenarioName"`
	ChangesApplied *int     `json:"changesApplied"`
	Changes        []Change `json:"changes"`
}
