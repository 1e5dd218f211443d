package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

type StepStatus string

const (
	StepSucceeded StepStatus = "succeeded"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// Step is one named unit of a multi-part flow. A failed Required step skips
// every step after it; any other failure is recorded and the run continues.
type Step struct {
	Name     string
	Required bool
	// Skip returns a reason when the step should not run.
	Skip func() string
	Run  func(ctx context.Context) (map[string]any, error)
}

type StepResult struct {
	Name     string         `json:"name"`
	Status   StepStatus     `json:"status"`
	Code     string         `json:"code,omitempty"`
	Error    string         `json:"error,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
	Duration time.Duration  `json:"duration"`
}

type StepReport struct {
	Results []StepResult `json:"results"`
}

// RunSteps executes steps in order and returns one result per step.
func RunSteps(ctx context.Context, steps ...Step) StepReport {
	report := StepReport{Results: make([]StepResult, 0, len(steps))}
	abortedBy := ""

	for _, step := range steps {
		res := StepResult{Name: step.Name}

		switch {
		case abortedBy != "":
			res.Status = StepSkipped
			res.Error = fmt.Sprintf("skipped: required step %s failed", abortedBy)
		case ctx.Err() != nil:
			res.Status = StepSkipped
			res.Error = ctx.Err().Error()
		default:
			if step.Skip != nil {
				if reason := step.Skip(); reason != "" {
					res.Status = StepSkipped
					res.Details = map[string]any{"reason": reason}
					break
				}
			}
			start := time.Now()
			details, err := step.Run(ctx)
			res.Duration = time.Since(start)
			res.Details = details
			if err != nil {
				res.Status = StepFailed
				res.Code, res.Error = publicError(err)
				log.Printf("⚠️ Step %s failed: %v", step.Name, err)
				if step.Required {
					abortedBy = step.Name
				}
			} else {
				res.Status = StepSucceeded
			}
		}

		report.Results = append(report.Results, res)
	}
	return report
}

// publicError reduces err to what a caller may see. The wrapped cause of a
// service error and any foreign error stay in the log.
func publicError(err error) (code, msg string) {
	var se *Error
	if errors.As(err, &se) {
		return se.Code, se.Message
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "cancelled", err.Error()
	}
	return "internal_error", "internal error"
}

// Result returns the result of the named step.
func (r StepReport) Result(name string) (StepResult, bool) {
	for _, res := range r.Results {
		if res.Name == name {
			return res, true
		}
	}
	return StepResult{}, false
}

func (r StepReport) Succeeded(name string) bool {
	res, ok := r.Result(name)
	return ok && res.Status == StepSucceeded
}

// Failed lists the steps that ran and failed.
func (r StepReport) Failed() []StepResult {
	var out []StepResult
	for _, res := range r.Results {
		if res.Status == StepFailed {
			out = append(out, res)
		}
	}
	return out
}
