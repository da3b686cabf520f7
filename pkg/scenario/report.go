package scenario

import "time"

// StepStatus represents the outcome of a step or scenario.
type StepStatus string

const (
	StepStatusPassed  StepStatus = "PASS"
	StepStatusFailed  StepStatus = "FAIL"
	StepStatusSkipped StepStatus = "SKIP"
	StepStatusError   StepStatus = "ERROR"
)

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name     string
	Status   StepStatus
	Duration time.Duration
	Steps    []StepResult

	// Generation of the agent's state after the last step.
	Generation uint64
}

// StepResult holds the result of a single step execution.
type StepResult struct {
	Index    int
	Name     string
	Action   StepAction
	Status   StepStatus
	Duration time.Duration
	Message  string
}

// computeOverallStatus is ERROR if any step errored, else FAIL if any step
// failed, else PASS. Skipped steps do not count.
func computeOverallStatus(steps []StepResult) StepStatus {
	status := StepStatusPassed
	for _, s := range steps {
		switch s.Status {
		case StepStatusError:
			return StepStatusError
		case StepStatusFailed:
			status = StepStatusFailed
		}
	}
	return status
}
