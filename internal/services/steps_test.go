package services

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestRunSteps(t *testing.T) {
	ok := func(ctx context.Context) (map[string]any, error) { return nil, nil }
	fail := func(ctx context.Context) (map[string]any, error) { return nil, errors.New("boom") }

	t.Run("Given an optional step fails When running Then later steps still run", func(t *testing.T) {
		report := RunSteps(context.Background(),
			Step{Name: "a", Required: true, Run: ok},
			Step{Name: "b", Run: fail},
			Step{Name: "c", Run: ok},
		)

		if !report.Succeeded("a") || report.Succeeded("b") || !report.Succeeded("c") {
			t.Errorf("unexpected results %+v", report.Results)
		}
		if len(report.Failed()) != 1 {
			t.Errorf("expected one failure, got %d", len(report.Failed()))
		}
	})

	t.Run("Given a required step fails When running Then the rest are skipped", func(t *testing.T) {
		ran := false
		report := RunSteps(context.Background(),
			Step{Name: "a", Required: true, Run: fail},
			Step{Name: "b", Run: func(ctx context.Context) (map[string]any, error) { ran = true; return nil, nil }},
		)

		if ran {
			t.Error("step b should not run")
		}
		if res, _ := report.Result("b"); res.Status != StepSkipped {
			t.Errorf("b status = %s, want skipped", res.Status)
		}
	})

	t.Run("Given a skip reason When running Then the step reports it", func(t *testing.T) {
		report := RunSteps(context.Background(),
			Step{Name: "a", Skip: func() string { return "disabled" }, Run: fail},
		)

		res, _ := report.Result("a")
		if res.Status != StepSkipped || res.Details["reason"] != "disabled" {
			t.Errorf("unexpected result %+v", res)
		}
	})

	t.Run("Given a cancelled context When running Then nothing runs", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		report := RunSteps(ctx, Step{Name: "a", Run: ok})

		if res, _ := report.Result("a"); res.Status != StepSkipped {
			t.Errorf("status = %s, want skipped", res.Status)
		}
	})

	t.Run("Given a step fails with a foreign error When running Then only a generic message is reported", func(t *testing.T) {
		report := RunSteps(context.Background(),
			Step{Name: "a", Run: func(ctx context.Context) (map[string]any, error) {
				return nil, errors.New(`pq: relation "payment_transactions" does not exist`)
			}},
		)

		res, _ := report.Result("a")
		if res.Code != "internal_error" || res.Error != "internal error" {
			t.Errorf("unexpected result %+v", res)
		}
	})

	t.Run("Given a step fails with a service error When running Then its code and message are reported without the cause", func(t *testing.T) {
		report := RunSteps(context.Background(),
			Step{Name: "a", Run: func(ctx context.Context) (map[string]any, error) {
				return nil, upstreamError("key_grant_exhausted", "key grant failed after 3 attempts", errors.New("dial tcp 10.1.2.3:8545: refused"))
			}},
		)

		res, _ := report.Result("a")
		if res.Code != "key_grant_exhausted" || res.Error != "key grant failed after 3 attempts" {
			t.Errorf("unexpected result %+v", res)
		}
		if strings.Contains(res.Error, "10.1.2.3") {
			t.Errorf("cause leaked into %q", res.Error)
		}
	})
}
