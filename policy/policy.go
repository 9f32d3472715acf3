package policy

import (
	"context"
	"strings"
	"time"
)

// Guard defaults applied when the corresponding Policy field is zero.
const (
	DefaultMaxIterations = 50
	DefaultCycleWindow   = 4
	DefaultStepTimeout   = 5 * time.Minute
)

// Policy represents the guard settings for the current workflow run.
//
//   - MaxIterations caps engine loop iterations across the whole run,
//     escalations included.
//   - CycleWindow bounds how far back cycle detection looks; 0 keeps the
//     default, a negative value disables detection.
//   - StepTimeout applies to steps that declare no timeout of their own.
//   - Retry applies to steps that declare no retry of their own.
//   - AllowList / BlockList filter executor names; a blocked executor is
//     skipped, not failed.
//
// A nil *Policy behaves like New().
type Policy struct {
	MaxIterations int
	CycleWindow   int
	StepTimeout   time.Duration
	Retry         *RetryConfig
	AllowList     []string
	BlockList     []string
}

// RetryConfig is the declarative default retry applied by the policy.
type RetryConfig struct {
	MaxRetries int     `json:"maxRetries,omitempty" yaml:"maxRetries,omitempty"`
	Delay      string  `json:"delay,omitempty" yaml:"delay,omitempty"`
	Multiplier float64 `json:"multiplier,omitempty" yaml:"multiplier,omitempty"`
	MaxDelay   string  `json:"maxDelay,omitempty" yaml:"maxDelay,omitempty"`
}

// New returns a policy with all guard defaults filled in.
func New() *Policy {
	return &Policy{
		MaxIterations: DefaultMaxIterations,
		CycleWindow:   DefaultCycleWindow,
		StepTimeout:   DefaultStepTimeout,
	}
}

// EffectiveMaxIterations resolves the iteration cap, falling back to the
// default for nil policies and zero values.
func (p *Policy) EffectiveMaxIterations() int {
	if p == nil || p.MaxIterations <= 0 {
		return DefaultMaxIterations
	}
	return p.MaxIterations
}

// EffectiveCycleWindow resolves the cycle detection window. A negative
// window disables detection and yields 0.
func (p *Policy) EffectiveCycleWindow() int {
	if p == nil || p.CycleWindow == 0 {
		return DefaultCycleWindow
	}
	if p.CycleWindow < 0 {
		return 0
	}
	return p.CycleWindow
}

// EffectiveStepTimeout resolves the default per-step timeout.
func (p *Policy) EffectiveStepTimeout() time.Duration {
	if p == nil || p.StepTimeout <= 0 {
		return DefaultStepTimeout
	}
	return p.StepTimeout
}

// Config represents the declarative, serialisable form of a Policy.
type Config struct {
	MaxIterations int          `json:"maxIterations,omitempty" yaml:"maxIterations,omitempty"`
	CycleWindow   int          `json:"cycleWindow,omitempty" yaml:"cycleWindow,omitempty"`
	StepTimeout   string       `json:"stepTimeout,omitempty" yaml:"stepTimeout,omitempty"`
	Retry         *RetryConfig `json:"retry,omitempty" yaml:"retry,omitempty"`
	AllowList     []string     `json:"allow,omitempty" yaml:"allow,omitempty"`
	BlockList     []string     `json:"block,omitempty" yaml:"block,omitempty"`
}

// ToConfig converts a runtime Policy into a persistable Config.
func ToConfig(p *Policy) *Config {
	if p == nil {
		return nil
	}
	var timeout string
	if p.StepTimeout > 0 {
		timeout = p.StepTimeout.String()
	}
	return &Config{
		MaxIterations: p.MaxIterations,
		CycleWindow:   p.CycleWindow,
		StepTimeout:   timeout,
		Retry:         p.Retry,
		AllowList:     append([]string(nil), p.AllowList...),
		BlockList:     append([]string(nil), p.BlockList...),
	}
}

// FromConfig converts a stored Config back to a runtime Policy. An invalid
// timeout string keeps the default.
func FromConfig(c *Config) *Policy {
	if c == nil {
		return nil
	}
	result := &Policy{
		MaxIterations: c.MaxIterations,
		CycleWindow:   c.CycleWindow,
		Retry:         c.Retry,
		AllowList:     append([]string(nil), c.AllowList...),
		BlockList:     append([]string(nil), c.BlockList...),
	}
	if c.StepTimeout != "" {
		if timeout, err := time.ParseDuration(c.StepTimeout); err == nil {
			result.StepTimeout = timeout
		}
	}
	return result
}

// IsAllowed evaluates AllowList / BlockList. Both lists match by exact,
// case-insensitive comparison of the executor name.
func (p *Policy) IsAllowed(executor string) bool {
	if p == nil {
		return true
	}
	normalized := strings.ToLower(executor)

	// BlockList has priority.
	for _, b := range p.BlockList {
		if normalized == strings.ToLower(b) {
			return false
		}
	}
	if len(p.AllowList) == 0 {
		return true
	}
	for _, a := range p.AllowList {
		if normalized == strings.ToLower(a) {
			return true
		}
	}
	return false
}

type ctxKeyT struct{}

var ctxKey ctxKeyT

// WithPolicy embeds policy in ctx; it overrides the engine default for the
// runs started under this context.
func WithPolicy(ctx context.Context, p *Policy) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxKey, p)
}

// FromContext extracts the policy embedded in ctx, or nil.
func FromContext(ctx context.Context) *Policy {
	if ctx == nil {
		return nil
	}
	if v, ok := ctx.Value(ctxKey).(*Policy); ok {
		return v
	}
	return nil
}
