package loadtest

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Scenario describes one contention experiment: Concurrency simulated users
// racing for Capacity seats on a fresh schedule.
type Scenario struct {
	Name        string        `yaml:"name" json:"name"`
	Description string        `yaml:"description,omitempty" json:"description,omitempty"`
	Concurrency int           `yaml:"concurrency" json:"concurrency"`
	Capacity    int           `yaml:"capacity" json:"capacity"`
	MaxJitter   time.Duration `yaml:"max_jitter,omitempty" json:"max_jitter,omitempty"`
}

const defaultMaxJitter = 50 * time.Millisecond

// DefaultScenarios mirrors the standard contention matrix: moderate,
// heavy and extreme oversubscription plus the one-over-boundary case.
func DefaultScenarios() []Scenario {
	return []Scenario{
		{Name: "basic-contention", Description: "twice as many attempts as seats", Concurrency: 20, Capacity: 10},
		{Name: "heavy-contention", Description: "5x oversubscription", Concurrency: 50, Capacity: 10},
		{Name: "extreme-contention", Description: "10x oversubscription", Concurrency: 100, Capacity: 10},
		{Name: "boundary", Description: "exactly one attempt more than seats", Concurrency: 11, Capacity: 10},
	}
}

// LoadScenarios reads a scenario list from a YAML file.
func LoadScenarios(path string) ([]Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file struct {
		Scenarios []Scenario `yaml:"scenarios"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse scenarios: %w", err)
	}

	for i, sc := range file.Scenarios {
		if err := sc.Validate(); err != nil {
			return nil, fmt.Errorf("scenario %d (%s): %w", i, sc.Name, err)
		}
	}
	return file.Scenarios, nil
}

// Validate rejects scenarios that cannot produce a meaningful run.
func (s Scenario) Validate() error {
	if s.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1")
	}
	if s.Capacity < 1 {
		return fmt.Errorf("capacity must be at least 1")
	}
	return nil
}

// ExpectedSuccesses is how many attempts must win seats.
func (s Scenario) ExpectedSuccesses() int {
	if s.Concurrency < s.Capacity {
		return s.Concurrency
	}
	return s.Capacity
}

func (s Scenario) jitter() time.Duration {
	if s.MaxJitter > 0 {
		return s.MaxJitter
	}
	return defaultMaxJitter
}
