package loadtest

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"slotbook/internal/domain"
	"slotbook/internal/models"
	"slotbook/internal/service"

	"github.com/rs/zerolog"
)

// Runner drives simulated concurrent reservation attempts through the real
// BookingService code path and validates the system-level invariants
// afterwards. It works against any store honoring the domain.Store
// contract: the in-memory double or SQLite.
type Runner struct {
	store  domain.Store
	svc    *service.BookingService
	logger *zerolog.Logger
}

func NewRunner(store domain.Store, svc *service.BookingService, logger *zerolog.Logger) *Runner {
	return &Runner{store: store, svc: svc, logger: logger}
}

// Attempt outcomes.
const (
	OutcomeSuccess  = "success"
	OutcomeCapacity = "capacity_exceeded"
	OutcomeError    = "error"
)

// AttemptResult records one simulated user's reservation outcome.
type AttemptResult struct {
	Attempt int           `json:"attempt"`
	UserID  string        `json:"user_id"`
	Outcome string        `json:"outcome"`
	Error   string        `json:"error,omitempty"`
	Elapsed time.Duration `json:"elapsed_ns"`
}

// Run executes one scenario: creates a fresh schedule of the scenario's
// capacity, launches Concurrency goroutines each representing a distinct
// user with a small random delay, waits for every attempt to settle, then
// validates the invariants against the store.
func (r *Runner) Run(ctx context.Context, scenario Scenario) (*Result, error) {
	if err := scenario.Validate(); err != nil {
		return nil, err
	}

	schedule, err := r.setupSchedule(ctx, scenario)
	if err != nil {
		return nil, fmt.Errorf("setup schedule: %w", err)
	}

	r.logger.Info().
		Str("scenario", scenario.Name).
		Str("schedule_id", schedule.ID).
		Int("concurrency", scenario.Concurrency).
		Int("capacity", scenario.Capacity).
		Msg("starting concurrent booking run")

	attempts := make([]AttemptResult, scenario.Concurrency)
	var wg sync.WaitGroup
	wg.Add(scenario.Concurrency)

	runStamp := time.Now().UnixNano()
	start := time.Now()
	for i := 0; i < scenario.Concurrency; i++ {
		go func(n int) {
			defer wg.Done()
			// One attempt's panic must not take down the others.
			defer func() {
				if rec := recover(); rec != nil {
					attempts[n].Outcome = OutcomeError
					attempts[n].Error = fmt.Sprintf("panic: %v", rec)
				}
			}()

			// Random delay emulates network jitter.
			time.Sleep(time.Duration(rand.Int63n(int64(scenario.jitter()))))

			userID := fmt.Sprintf("load_user_%d_%d", n, runStamp)
			attemptStart := time.Now()
			_, err := r.svc.Reserve(ctx, service.ReserveRequest{
				ScheduleID: schedule.ID,
				UserID:     userID,
				UserName:   fmt.Sprintf("Load User %d", n),
				UserPhone:  fmt.Sprintf("1380013%04d", n),
				Remark:     fmt.Sprintf("%s attempt %d", scenario.Name, n),
			})

			attempts[n] = AttemptResult{
				Attempt: n + 1,
				UserID:  userID,
				Elapsed: time.Since(attemptStart),
				Outcome: classify(err),
			}
			if err != nil {
				attempts[n].Error = err.Error()
			}
		}(i)
	}
	wg.Wait()
	duration := time.Since(start)

	result := &Result{
		Scenario:   scenario,
		ScheduleID: schedule.ID,
		Duration:   duration,
		Attempts:   attempts,
	}
	for _, a := range attempts {
		switch a.Outcome {
		case OutcomeSuccess:
			result.SuccessCount++
		case OutcomeCapacity:
			result.FailCount++
		default:
			result.ErrorCount++
		}
	}

	if err := r.validate(ctx, result); err != nil {
		return nil, fmt.Errorf("validate result: %w", err)
	}

	r.logger.Info().
		Str("scenario", scenario.Name).
		Bool("passed", result.Validation.Passed).
		Int("success", result.SuccessCount).
		Int("failed", result.FailCount).
		Int("errors", result.ErrorCount).
		Dur("duration", duration).
		Msg("run finished")
	return result, nil
}

// RunAll runs every scenario and stops early only on harness errors, never
// on invariant failures; those are part of the report.
func (r *Runner) RunAll(ctx context.Context, scenarios []Scenario) ([]*Result, error) {
	results := make([]*Result, 0, len(scenarios))
	for _, scenario := range scenarios {
		result, err := r.Run(ctx, scenario)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}
	return results, nil
}

func (r *Runner) setupSchedule(ctx context.Context, scenario Scenario) (*models.Schedule, error) {
	tomorrow := time.Now().AddDate(0, 0, 1).Format("2006-01-02")
	return r.svc.CreateSchedule(ctx, service.CreateScheduleRequest{
		CourseID:    "load-course",
		CoachID:     "load-coach",
		Date:        tomorrow,
		StartTime:   "23:00",
		EndTime:     "23:59",
		MaxCapacity: scenario.Capacity,
	}, true)
}

// validate checks the outcome invariants against the store's final state:
// exact success count, no overbooking, and counter/records consistency.
func (r *Runner) validate(ctx context.Context, result *Result) error {
	schedule, err := r.store.GetSchedule(ctx, result.ScheduleID)
	if err != nil {
		return err
	}
	confirmed, err := r.store.CountConfirmedBySchedule(ctx, result.ScheduleID)
	if err != nil {
		return err
	}

	result.FinalBookedCount = schedule.BookedCount
	result.ConfirmedCount = confirmed
	result.ScheduleStatus = schedule.Status

	v := &result.Validation
	expected := result.Scenario.ExpectedSuccesses()

	v.NoOverbooking = schedule.BookedCount <= result.Scenario.Capacity && confirmed <= result.Scenario.Capacity
	if !v.NoOverbooking {
		v.Issues = append(v.Issues, fmt.Sprintf("overbooking: booked_count=%d confirmed=%d capacity=%d",
			schedule.BookedCount, confirmed, result.Scenario.Capacity))
	}

	v.DataConsistent = schedule.BookedCount == confirmed
	if !v.DataConsistent {
		v.Issues = append(v.Issues, fmt.Sprintf("counter drift: booked_count=%d but %d confirmed bookings",
			schedule.BookedCount, confirmed))
	}

	v.ExactSuccesses = result.SuccessCount == expected
	if !v.ExactSuccesses {
		v.Issues = append(v.Issues, fmt.Sprintf("success count: got %d, want %d", result.SuccessCount, expected))
	}

	v.FailuresTyped = result.ErrorCount == 0
	if !v.FailuresTyped {
		v.Issues = append(v.Issues, fmt.Sprintf("%d attempts failed with untyped errors", result.ErrorCount))
	}

	v.Passed = v.NoOverbooking && v.DataConsistent && v.ExactSuccesses && v.FailuresTyped
	return nil
}

func classify(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, domain.ErrCapacityExceeded):
		return OutcomeCapacity
	default:
		return OutcomeError
	}
}
