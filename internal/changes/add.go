package changes

import (
	"fmt"

	"whatif-planner/internal/model"
)

type AddHandler struct {
	Subject string
}

func (h *AddHandler) Validate(b *model.Budget, in *Input) []model.Message {
	var msgs []model.Message

	amount, freq, ok := amountOf(in)
	if !ok {
		msgs = append(msgs, critical("INVALID_AMOUNT", "amount", fmt.Sprintf("%s needs a numeric amount", in.Change.Name)))
		return msgs
	}
	if amount.IsNegative() {
		msgs = append(msgs, critical("INVALID_AMOUNT", "amount", "Amount must be non-negative"))
		return msgs
	}
	if _, ok := Monthly(amount, freq); !ok {
		msgs = append(msgs, critical("INVALID_FREQUENCY", "frequency", fmt.Sprintf("Unknown frequency %q", freq)))
		return msgs
	}
	if amount.IsZero() {
		msgs = append(msgs, warning("ZERO_AMOUNT", "amount", fmt.Sprintf("%s has a zero amount", in.Change.Name)))
	}
	if freq == "one_time" || freq == "once" {
		msgs = append(msgs, warning("ONE_TIME_AMOUNT", "frequency", "One-time amounts do not change the monthly budget"))
	}

	return msgs
}

func (h *AddHandler) Apply(b *model.Budget, in *Input) []model.Message {
	amount, freq, _ := amountOf(in)
	monthly, _ := Monthly(amount, freq)

	lines := b.Lines(h.Subject)
	if lines == nil {
		return []model.Message{critical("UNKNOWN_SUBJECT", "", "Unknown change subject "+h.Subject)}
	}
	b.LineSeq++
	*lines = append(*lines, model.BudgetLine{
		ID:       fmt.Sprintf("change-%d-%d", in.Index, b.LineSeq),
		Name:     lineName(in),
		Category: stringParam(in, "category"),
		Monthly:  monthly,
		Origin:   fmt.Sprintf("change:%d", in.Index),
	})

	return nil
}
