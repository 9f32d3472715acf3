package flow

import (
	"fmt"
	"time"

	"github.com/zerotoship/flow/policy"
)

// Config is a serialisable representation of the orchestrator configuration.
// It can be populated from JSON, YAML, environment variables, etc. The
// zero-value is useful; all nested fields inherit their package defaults.
type Config struct {
	// Policy carries the declarative guard settings applied to every run
	// that does not override them through its context.
	Policy *policy.Config `json:"policy,omitempty" yaml:"policy,omitempty"`

	// Snapshots configures where finished run records are stored.
	Snapshots SnapshotConfig `json:"snapshots,omitempty" yaml:"snapshots,omitempty"`
}

// SnapshotConfig selects the run record store. With an empty BaseURL records
// are kept in memory; otherwise they are written as JSON documents under the
// supplied location.
type SnapshotConfig struct {
	BaseURL string `json:"baseURL,omitempty" yaml:"baseURL,omitempty"`
}

// DefaultConfig returns a Config populated with the package defaults.
// Callers may modify the returned struct before passing it to New.
func DefaultConfig() *Config {
	return &Config{
		Policy: policy.ToConfig(policy.New()),
	}
}

// Validate returns an error describing invalid settings or nil.
func (c *Config) Validate() error {
	if c == nil || c.Policy == nil {
		return nil
	}
	if c.Policy.MaxIterations < 0 {
		return fmt.Errorf("policy.maxIterations must be >= 0")
	}
	if c.Policy.StepTimeout != "" {
		if _, err := time.ParseDuration(c.Policy.StepTimeout); err != nil {
			return fmt.Errorf("policy.stepTimeout is invalid: %w", err)
		}
	}
	if retry := c.Policy.Retry; retry != nil {
		if retry.MaxRetries < 0 {
			return fmt.Errorf("policy.retry.maxRetries must be >= 0")
		}
		if retry.Delay != "" {
			if _, err := time.ParseDuration(retry.Delay); err != nil {
				return fmt.Errorf("policy.retry.delay is invalid: %w", err)
			}
		}
	}
	return nil
}
