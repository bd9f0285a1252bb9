package changes

import "whatif-planner/internal/model"

// Input is one suggested change together with the user's edited values.
type Input struct {
	Index  int
	Change model.SuggestedChange
	Value  model.ChangeValue
}

// Handler defines the contract for every change type: client-side checks
// before anything is sent, and a local preview of the monthly impact.
type Handler interface {
	Validate(b *model.Budget, in *Input) []model.Message
	Apply(b *model.Budget, in *Input) []model.Message
}

var registry = map[model.ChangeType]Handler{
	model.ChangeAddIncome:     &AddHandler{Subject: "income"},
	model.ChangeModifyIncome:  &ModifyHandler{Subject: "income"},
	model.ChangeRemoveIncome:  &RemoveHandler{Subject: "income"},
	model.ChangeAddExpense:    &AddHandler{Subject: "expense"},
	model.ChangeModifyExpense: &ModifyHandler{Subject: "expense"},
	model.ChangeRemoveExpense: &RemoveHandler{Subject: "expense"},
	model.ChangeAddDebt:       &AddHandler{Subject: "debt"},
	model.ChangeModifyDebt:    &ModifyHandler{Subject: "debt"},
	model.ChangeRemoveDebt:    &RemoveHandler{Subject: "debt"},
}

func Get(t model.ChangeType) (Handler, bool) {
	h, ok := registry[t]
	return h, ok
}
