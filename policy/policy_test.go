package policy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPolicy_EffectiveDefaults(t *testing.T) {
	var nilPolicy *Policy
	assert.Equal(t, DefaultMaxIterations, nilPolicy.EffectiveMaxIterations())
	assert.Equal(t, DefaultCycleWindow, nilPolicy.EffectiveCycleWindow())
	assert.Equal(t, DefaultStepTimeout, nilPolicy.EffectiveStepTimeout())

	custom := &Policy{MaxIterations: 10, CycleWindow: 6, StepTimeout: time.Second}
	assert.Equal(t, 10, custom.EffectiveMaxIterations())
	assert.Equal(t, 6, custom.EffectiveCycleWindow())
	assert.Equal(t, time.Second, custom.EffectiveStepTimeout())

	disabled := &Policy{CycleWindow: -1}
	assert.Equal(t, 0, disabled.EffectiveCycleWindow())
}

func TestPolicy_IsAllowed(t *testing.T) {
	var nilPolicy *Policy
	assert.True(t, nilPolicy.IsAllowed("builder"))

	blocked := &Policy{BlockList: []string{"Deployer"}}
	assert.False(t, blocked.IsAllowed("deployer"))
	assert.True(t, blocked.IsAllowed("builder"))

	allowOnly := &Policy{AllowList: []string{"builder"}, BlockList: []string{"builder"}}
	// block wins over allow
	assert.False(t, allowOnly.IsAllowed("builder"))

	scoped := &Policy{AllowList: []string{"builder", "validator"}}
	assert.True(t, scoped.IsAllowed("VALIDATOR"))
	assert.False(t, scoped.IsAllowed("deployer"))
}

func TestPolicy_ConfigRoundTrip(t *testing.T) {
	original := &Policy{
		MaxIterations: 25,
		CycleWindow:   8,
		StepTimeout:   30 * time.Second,
		Retry:         &RetryConfig{MaxRetries: 3, Delay: "1s", Multiplier: 2},
		AllowList:     []string{"builder"},
	}
	restored := FromConfig(ToConfig(original))
	assert.Equal(t, original, restored)

	assert.Nil(t, ToConfig(nil))
	assert.Nil(t, FromConfig(nil))
}

func TestPolicy_Context(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))
	p := New()
	ctx := WithPolicy(context.Background(), p)
	assert.Same(t, p, FromContext(ctx))
}
