package changes

import (
	"fmt"

	"whatif-planner/internal/model"
)

type RemoveHandler struct {
	Subject string
}

func (h *RemoveHandler) Validate(b *model.Budget, in *Input) []model.Message {
	var msgs []model.Message

	if findLine(b, h.Subject, stringParam(in, SourceFlowKey)) < 0 {
		if h.Subject == "debt" {
			msgs = append(msgs, warning("DEBT_NOT_TRACKED", SourceFlowKey, "Debt payments are not part of the monthly preview"))
			return msgs
		}
		msgs = append(msgs, critical("SOURCE_NOT_FOUND", SourceFlowKey, fmt.Sprintf("No %s found for %s", h.Subject, in.Change.Name)))
	}

	return msgs
}

func (h *RemoveHandler) Apply(b *model.Budget, in *Input) []model.Message {
	i := findLine(b, h.Subject, stringParam(in, SourceFlowKey))
	if i < 0 {
		return nil
	}
	lines := b.Lines(h.Subject)
	*lines = append((*lines)[:i], (*lines)[i+1:]...)
	return nil
}
