package changes

import (
	"fmt"

	"github.com/shopspring/decimal"

	"whatif-planner/internal/model"
)

type ModifyHandler struct {
	Subject string
}

func (h *ModifyHandler) Validate(b *model.Budget, in *Input) []model.Message {
	var msgs []model.Message

	src := stringParam(in, SourceFlowKey)
	if findLine(b, h.Subject, src) < 0 {
		if h.Subject == "debt" {
			msgs = append(msgs, warning("DEBT_NOT_TRACKED", SourceFlowKey, "Debt payments are not part of the monthly preview"))
			return msgs
		}
		msgs = append(msgs, critical("SOURCE_NOT_FOUND", SourceFlowKey, fmt.Sprintf("No %s found for %s", h.Subject, in.Change.Name)))
		return msgs
	}

	amount, freq, hasAmount := amountOf(in)
	pct, hasPct := percentageOf(in)
	if !hasAmount && !hasPct {
		msgs = append(msgs, critical("INVALID_AMOUNT", "amount", fmt.Sprintf("%s needs a new amount or a percentage", in.Change.Name)))
		return msgs
	}
	if hasAmount {
		if amount.IsNegative() {
			msgs = append(msgs, critical("INVALID_AMOUNT", "amount", "Amount must be non-negative"))
			return msgs
		}
		if _, ok := Monthly(amount, freq); !ok {
			msgs = append(msgs, critical("INVALID_FREQUENCY", "frequency", fmt.Sprintf("Unknown frequency %q", freq)))
			return msgs
		}
	}
	if hasPct && pct.LessThan(decimal.NewFromInt(-100)) {
		msgs = append(msgs, critical("INVALID_PERCENTAGE", "percentage", "Percentage cannot reduce a flow below zero"))
		return msgs
	}

	return msgs
}

func (h *ModifyHandler) Apply(b *model.Budget, in *Input) []model.Message {
	i := findLine(b, h.Subject, stringParam(in, SourceFlowKey))
	if i < 0 {
		return nil
	}
	lines := *b.Lines(h.Subject)

	if amount, freq, ok := amountOf(in); ok {
		monthly, _ := Monthly(amount, freq)
		lines[i].Monthly = monthly
		return nil
	}
	pct, _ := percentageOf(in)
	factor := decimal.NewFromInt(1).Add(pct.Div(decimal.NewFromInt(100)))
	lines[i].Monthly = lines[i].Monthly.Mul(factor).Round(2)
	return nil
}

func percentageOf(in *Input) (decimal.Decimal, bool) {
	v, ok := in.Value.Params["percentage"]
	if !ok {
		return decimal.Zero, false
	}
	return Number(v)
}

func findLine(b *model.Budget, subject, id string) int {
	if id == "" {
		return -1
	}
	lines := b.Lines(subject)
	if lines == nil {
		return -1
	}
	for i, l := range *lines {
		if l.ID == id {
			return i
		}
	}
	return -1
}
