package loadtest

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Validation carries the per-invariant verdicts of one run.
type Validation struct {
	NoOverbooking  bool     `json:"no_overbooking"`
	DataConsistent bool     `json:"data_consistent"`
	ExactSuccesses bool     `json:"exact_successes"`
	FailuresTyped  bool     `json:"failures_typed"`
	Passed         bool     `json:"passed"`
	Issues         []string `json:"issues,omitempty"`
}

// Result is the full outcome of one scenario run: aggregate counts, final
// store state and the per-attempt trace.
type Result struct {
	Scenario   Scenario        `json:"scenario"`
	ScheduleID string          `json:"schedule_id"`
	Duration   time.Duration   `json:"duration_ns"`
	Attempts   []AttemptResult `json:"attempts"`

	SuccessCount int `json:"success_count"`
	FailCount    int `json:"fail_count"`
	ErrorCount   int `json:"error_count"`

	FinalBookedCount int    `json:"final_booked_count"`
	ConfirmedCount   int    `json:"confirmed_count"`
	ScheduleStatus   string `json:"schedule_status"`

	Validation Validation `json:"validation"`
}

// JSON renders the result for machine consumption.
func (r *Result) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// Text renders a human-readable summary.
func (r *Result) Text() string {
	var b strings.Builder

	verdict := "PASSED"
	if !r.Validation.Passed {
		verdict = "FAILED"
	}

	fmt.Fprintf(&b, "========== %s ==========\n", r.Scenario.Name)
	if r.Scenario.Description != "" {
		fmt.Fprintf(&b, "%s\n", r.Scenario.Description)
	}
	fmt.Fprintf(&b, "attempts: %d  capacity: %d  duration: %s\n",
		r.Scenario.Concurrency, r.Scenario.Capacity, r.Duration.Round(time.Millisecond))
	fmt.Fprintf(&b, "success: %d  capacity_exceeded: %d  errors: %d\n",
		r.SuccessCount, r.FailCount, r.ErrorCount)
	fmt.Fprintf(&b, "final state: booked_count=%d confirmed=%d status=%s\n",
		r.FinalBookedCount, r.ConfirmedCount, r.ScheduleStatus)
	fmt.Fprintf(&b, "checks: no_overbooking=%t data_consistent=%t exact_successes=%t failures_typed=%t\n",
		r.Validation.NoOverbooking, r.Validation.DataConsistent,
		r.Validation.ExactSuccesses, r.Validation.FailuresTyped)
	for _, issue := range r.Validation.Issues {
		fmt.Fprintf(&b, "  issue: %s\n", issue)
	}
	fmt.Fprintf(&b, "result: %s\n", verdict)
	return b.String()
}

// Summary renders an aggregate verdict over several runs.
func Summary(results []*Result) string {
	var b strings.Builder
	passed := 0
	for _, r := range results {
		if r.Validation.Passed {
			passed++
		}
	}
	fmt.Fprintf(&b, "scenarios: %d  passed: %d  failed: %d\n",
		len(results), passed, len(results)-passed)
	for _, r := range results {
		mark := "ok"
		if !r.Validation.Passed {
			mark = "FAIL"
		}
		fmt.Fprintf(&b, "  [%s] %s (%d vs %d, %s)\n",
			mark, r.Scenario.Name, r.Scenario.Concurrency, r.Scenario.Capacity,
			r.Duration.Round(time.Millisecond))
	}
	return b.String()
}
