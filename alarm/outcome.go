package alarm

import (
	"fmt"

	"go.uber.org/zap"
)

// Action is the change applied to an alarm.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Outcome is the result of a single alarm change. Reconcilers collect one
// outcome per alarm instead of stopping at the first failure.
type Outcome struct {
	InstanceID string `json:"instance_id"`
	AlarmName  string `json:"alarm_name"`
	Action     Action `json:"action"`
	Err        error  `json:"-"`
}

// Failed reports whether the change was not applied.
func (o Outcome) Failed() bool {
	return o.Err != nil
}

// Outcomes is a list of alarm changes.
type Outcomes []Outcome

// Failed returns the changes that were not applied.
func (o Outcomes) Failed() Outcomes {
	var out Outcomes
	for _, outcome := range o {
		if outcome.Failed() {
			out = append(out, outcome)
		}
	}
	return out
}

// Names returns the alarm names with the given action.
func (o Outcomes) Names(action Action) []string {
	var out []string
	for _, outcome := range o {
		if outcome.Action == action {
			out = append(out, outcome.AlarmName)
		}
	}
	return out
}

// Log writes one entry per outcome, failures at error level.
func (o Outcomes) Log(logger *zap.Logger) {
	for _, outcome := range o {
		fields := []zap.Field{
			zap.String("instance_id", outcome.InstanceID),
			zap.String("alarm_name", outcome.AlarmName),
			zap.String("action", string(outcome.Action)),
		}
		if outcome.Failed() {
			logger.Error("alarm change failed", append(fields, zap.String("cause", fmt.Sprintf("%+v", outcome.Err)))...)
			continue
		}
		logger.Info("alarm changed", fields...)
	}
}

// Summary counts outcomes for the invocation result.
type Summary struct {
	Created int      `json:"created"`
	Updated int      `json:"updated"`
	Deleted int      `json:"deleted"`
	Failed  []string `json:"failed,omitempty"`
}

// Summarize counts applied changes per action and lists failed alarm names.
func (o Outcomes) Summarize() Summary {
	var s Summary
	for _, outcome := range o {
		if outcome.Failed() {
			s.Failed = append(s.Failed, outcome.AlarmName)
			continue
		}
		switch outcome.Action {
		case ActionCreate:
			s.Created++
		case ActionUpdate:
			s.Updated++
		case ActionDelete:
			s.Deleted++
		}
	}
	return s
}
