package pipeline

import (
	"fmt"

	"github.com/bloodyteeths/mkfakturi-sub009/internal/domain"
)

// The legal transition set is enforced here, centrally, instead of being
// scattered across the stages. Any non-terminal status may additionally
// move to failed.
var transitions = map[domain.RunStatus][]domain.RunStatus{
	domain.RunPending:    {domain.RunParsing, domain.RunMapping},
	domain.RunParsing:    {domain.RunMapping},
	domain.RunMapping:    {domain.RunMapping, domain.RunValidating},
	domain.RunValidating: {domain.RunCommitting},
	domain.RunCommitting: {domain.RunCompleted},
}

// CanTransition reports whether a run may move from one status to another.
// Re-entry at mapping (resubmitted mapping configuration) is legal from
// pending and mapping; no transition skips a stage.
func CanTransition(from, to domain.RunStatus) bool {
	if to == domain.RunFailed {
		return !from.Terminal()
	}
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Transition validates and returns the move, for callers that want the
// error form.
func Transition(from, to domain.RunStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("illegal status transition %s -> %s", from, to)
	}
	return nil
}

// nextStatus maps a completed stage to the stage that follows it.
var nextStatus = map[domain.RunStatus]domain.RunStatus{
	domain.RunParsing:    domain.RunMapping,
	domain.RunMapping:    domain.RunValidating,
	domain.RunValidating: domain.RunCommitting,
	domain.RunCommitting: domain.RunCompleted,
}
