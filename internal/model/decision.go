package model

type FieldKind string

const (
	FieldText   FieldKind = "text"
	FieldNumber FieldKind = "number"
	FieldDate   FieldKind = "date"
	FieldSelect FieldKind = "select"
	FieldBool   FieldKind = "bool"
	FieldSource FieldKind = "source"
)

type DecisionTemplate struct {
	Key         string         `json:"key"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Steps       []DecisionStep `json:"steps"`
}

type DecisionStep struct {
	Title  string          `json:"title"`
	Fields []DecisionField `json:"fields"`
}

type DecisionField struct {
	Key      string     `json:"key"`
	Label    string     `json:"label"`
	Kind     FieldKind  `json:"kind"`
	Required bool       `json:"required"`
	Options  []string   `json:"options,omitempty"`
	Default  any        `json:"default,omitempty"`
	ShowIf   *Condition `json:"showIf,omitempty"`
}

// Condition shows a field only when another field currently equals a value.
type Condition struct {
	Field  string `json:"field"`
	Equals any    `json:"equals"`
}

type ApplyDecisionRequest struct {
	ScenarioID    string         `json:"scenarioId"`
	EffectiveDate string         `json:"effectiveDate"`
	Values        map[string]any `json:"values"`
}

type ApplyDecisionResponse struct {
	ScenarioID     string `json:"scenarioId"`
	ScenarioName   string `json:"scenarioName"`
	ChangesApplied *int   `json:"changesApplied"`
}
