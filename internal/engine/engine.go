package engine

import (
	"fmt"

	"github.com/google/uuid"

	"whatif-planner/internal/changes"
	"whatif-planner/internal/jsonpatch"
	"whatif-planner/internal/model"
)

const (
	OutcomeSuccess = "SUCCESS"
	OutcomeFailure = "FAILURE"
)

type AppliedChange struct {
	Index          int              `json:"index"`
	Name           string           `json:"name"`
	ChangeType     model.ChangeType `json:"changeType"`
	MessageIndexes []int            `json:"messageIndexes,omitempty"`
}

type PreviewResult struct {
	PreviewID string             `json:"previewId"`
	Outcome   string             `json:"outcome"`
	Messages  []model.Message    `json:"messages"`
	Changes   []AppliedChange    `json:"changes"`
	Before    model.BudgetTotals `json:"before"`
	After     model.BudgetTotals `json:"after"`
	Budget    model.Budget       `json:"budget"`
	Diff      []jsonpatch.Op     `json:"diff"`
}

// Preview applies the non-skipped inputs, in order, to a copy of base. It stops
// at the first critical message; the budget then reflects every change that
// was applied before it.
func Preview(base model.Budget, inputs []changes.Input) *PreviewResult {
	state := base.Clone()

	var allMessages []model.Message
	var processed []AppliedChange
	outcome := OutcomeSuccess

	for i := range inputs {
		in := &inputs[i]
		if in.Value.Skip {
			continue
		}

		handler, ok := changes.Get(in.Change.ChangeType)
		if !ok {
			msg := model.Message{
				ID:      len(allMessages),
				Level:   model.LevelCritical,
				Code:    "UNKNOWN_CHANGE_TYPE",
				Message: fmt.Sprintf("Unknown change type: %s", in.Change.ChangeType),
			}
			allMessages = append(allMessages, msg)
			processed = append(processed, applied(in, []int{msg.ID}))
			outcome = OutcomeFailure
			break
		}

		var msgIndexes []int
		hasCritical := false
		record := func(msgs []model.Message) {
			for _, m := range msgs {
				m.ID = len(allMessages)
				allMessages = append(allMessages, m)
				msgIndexes = append(msgIndexes, m.ID)
				if m.Level == model.LevelCritical {
					hasCritical = true
				}
			}
		}

		record(handler.Validate(&state, in))
		if !hasCritical {
			record(handler.Apply(&state, in))
		}
		processed = append(processed, applied(in, msgIndexes))

		if hasCritical {
			outcome = OutcomeFailure
			break
		}
	}

	if allMessages == nil {
		allMessages = []model.Message{}
	}
	if processed == nil {
		processed = []AppliedChange{}
	}

	diff, err := jsonpatch.DiffValues(base, state)
	if err != nil {
		diff = nil
	}

	return &PreviewResult{
		PreviewID: uuid.NewString(),
		Outcome:   outcome,
		Messages:  allMessages,
		Changes:   processed,
		Before:    base.Totals(),
		After:     state.Totals(),
		Budget:    state,
		Diff:      diff,
	}
}

func applied(in *changes.Input, msgIndexes []int) AppliedChange {
	return AppliedChange{
		Index:          in.Index,
		Name:           in.Change.Name,
		ChangeType:     in.Change.ChangeType,
		MessageIndexes: msgIndexes,
	}
}
