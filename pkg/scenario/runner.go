package scenario

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/newtron-network/lookupclass/pkg/agent"
	"github.com/newtron-network/lookupclass/pkg/lookupclass"
	"github.com/newtron-network/lookupclass/pkg/util"
)

// Runner replays scenarios. Each scenario runs against a fresh agent with a
// route classID updater.
type Runner struct {
	// Observers are registered with every agent the runner creates.
	Observers []agent.StateObserver

	// ContinueOnFailure keeps running the remaining steps after a failed
	// expectation. Errors always stop the scenario.
	ContinueOnFailure bool
}

// NewRunner returns a runner registering observers with each agent.
func NewRunner(observers ...agent.StateObserver) *Runner {
	return &Runner{Observers: observers}
}

// Run replays scenarios in order.
func (r *Runner) Run(ctx context.Context, scenarios []*Scenario) []*ScenarioResult {
	results := make([]*ScenarioResult, 0, len(scenarios))
	for _, sc := range scenarios {
		results = append(results, r.RunScenario(ctx, sc))
	}
	return results
}

// RunScenario replays one scenario. Steps after the first failure are
// reported as skipped.
func (r *Runner) RunScenario(ctx context.Context, sc *Scenario) *ScenarioResult {
	start := time.Now()
	a := agent.New(lookupclass.NewRouteUpdater(), r.Observers...)
	result := &ScenarioResult{Name: sc.Name}
	log := util.WithField("scenario", sc.Name)

	stopped := ""
	for i := range sc.Steps {
		step := &sc.Steps[i]
		if stopped == "" && ctx.Err() != nil {
			stopped = ctx.Err().Error()
		}
		if stopped != "" {
			result.Steps = append(result.Steps, StepResult{
				Index: i, Name: step.Name, Action: step.Action,
				Status: StepStatusSkipped, Message: stopped,
			})
			continue
		}

		sr := r.executeStep(a, step, i)
		result.Steps = append(result.Steps, sr)
		log.WithField("step", i).Debugf("%s %s: %s", step.Action, sr.Status, sr.Message)

		switch {
		case sr.Status == StepStatusError:
			stopped = fmt.Sprintf("step %d errored", i)
		case sr.Status == StepStatusFailed && !r.ContinueOnFailure:
			stopped = fmt.Sprintf("step %d failed", i)
		}
	}

	result.Status = computeOverallStatus(result.Steps)
	result.Duration = time.Since(start)
	result.Generation = a.State().Generation()
	return result
}

// expectationError marks a step whose check did not hold, as opposed to a
// step that could not be executed.
type expectationError struct {
	msg string
}

func (e *expectationError) Error() string { return e.msg }

func failf(format string, args ...any) error {
	return &expectationError{msg: fmt.Sprintf(format, args...)}
}

// executeStep dispatches a step to its executor. A panic inside the agent
// is reported as a step error.
func (r *Runner) executeStep(a *agent.Agent, step *Step, index int) (sr StepResult) {
	sr = StepResult{Index: index, Name: step.Name, Action: step.Action}
	start := time.Now()
	defer func() {
		sr.Duration = time.Since(start)
		if p := recover(); p != nil {
			sr.Status = StepStatusError
			sr.Message = fmt.Sprintf("panic: %v", p)
		}
	}()

	execute, ok := executors[step.Action]
	if !ok {
		sr.Status = StepStatusError
		sr.Message = fmt.Sprintf("unknown action: %s", step.Action)
		return sr
	}

	msg, err := execute(a, step)
	var failed *expectationError
	switch {
	case errors.As(err, &failed):
		sr.Status = StepStatusFailed
		sr.Message = failed.msg
	case err != nil:
		sr.Status = StepStatusError
		sr.Message = err.Error()
	default:
		sr.Status = StepStatusPassed
		sr.Message = msg
	}
	return sr
}
