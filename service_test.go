package flow

import (
	"context"
	"embed"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "github.com/viant/afs/embed"
	"github.com/zerotoship/flow/model/types"
	"github.com/zerotoship/flow/runtime/execution"
)

//go:embed testdata/*
var testFS embed.FS

func newTestService() *Service {
	srv := New(
		WithMetaBaseURL("embed:///testdata"),
		WithMetaFsOptions(&testFS),
	)
	srv.RegisterExecutor(types.NewExecutor("validator", func(ctx context.Context, snapshot map[string]interface{}) (*types.Result, error) {
		return &types.Result{Data: map[string]interface{}{
			"validation": map[string]interface{}{"passed": true},
		}}, nil
	}))
	srv.RegisterExecutor(types.NewExecutor("builder", func(ctx context.Context, snapshot map[string]interface{}) (*types.Result, error) {
		return &types.Result{Data: map[string]interface{}{"build": "ok"}}, nil
	}))
	return srv
}

func TestService_EndToEnd(t *testing.T) {
	ctx := context.Background()
	srv := newTestService()
	rt := srv.Runtime()

	run, err := rt.RunLocation(ctx, "pipeline", map[string]interface{}{"idea": "meal planner"})
	require.NoError(t, err)
	require.NotNil(t, run)

	assert.True(t, run.Completed())
	assert.Equal(t, execution.StateCompleted, run.State)
	assert.Equal(t, []string{"VALIDATE", "BUILD", "DONE"}, run.Visited)
	assert.Equal(t, "ok", run.Payload["build"])

	stored, err := rt.LoadRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.State, stored.State)

	runs, err := rt.Runs(ctx)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestRuntime_UpsertDefinition(t *testing.T) {
	ctx := context.Background()
	srv := newTestService()
	srv.RegisterExecutor(types.NewExecutor("rescuer", func(ctx context.Context, snapshot map[string]interface{}) (*types.Result, error) {
		return &types.Result{Data: map[string]interface{}{"rescued": true}}, nil
	}))
	srv.RegisterExecutor(types.NewExecutor("breaker", func(ctx context.Context, snapshot map[string]interface{}) (*types.Result, error) {
		return &types.Result{Data: map[string]interface{}{"score": 1}}, nil
	}))
	rt := srv.Runtime()

	recovery := []byte(`
name: recovery
sequence:
  - state: RESCUE
    executor: rescuer
  - terminal: SAVED
`)
	require.NoError(t, rt.UpsertDefinition(ctx, "recovery.yaml", recovery))

	main := []byte(`
name: main
sequence:
  - state: CHECK
    executor: breaker
    conditions:
      - field: score
        operator: ">="
        value: 5
        onFail:
          escalateTo: recovery
  - terminal: DONE
`)
	wf, err := rt.DecodeYAMLWorkflow(main)
	require.NoError(t, err)

	run, err := rt.Run(ctx, wf, nil)
	require.NoError(t, err)
	assert.True(t, run.Completed())
	assert.Contains(t, run.Visited, "RESCUE")
	assert.Equal(t, true, run.Payload["rescued"])
}

func TestRuntime_RefreshWorkflow(t *testing.T) {
	ctx := context.Background()
	srv := newTestService()
	rt := srv.Runtime()

	first, err := rt.LoadWorkflow(ctx, "pipeline")
	require.NoError(t, err)
	// cached copy is served until a refresh
	second, err := rt.LoadWorkflow(ctx, "pipeline")
	require.NoError(t, err)
	assert.Same(t, first, second)

	require.NoError(t, rt.RefreshWorkflow(ctx, "pipeline"))
	third, err := rt.LoadWorkflow(ctx, "pipeline")
	require.NoError(t, err)
	assert.NotSame(t, first, third)
	assert.Equal(t, first.Name, third.Name)
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.NoError(t, (&Config{}).Validate())

	invalid := DefaultConfig()
	invalid.Policy.StepTimeout = "soon"
	assert.Error(t, invalid.Validate())
}
