package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zerotoship/flow/extension"
	"github.com/zerotoship/flow/model"
	"github.com/zerotoship/flow/model/types"
	"github.com/zerotoship/flow/policy"
	"github.com/zerotoship/flow/progress"
	"github.com/zerotoship/flow/runtime/execution"
	runmem "github.com/zerotoship/flow/service/dao/run/memory"
	"github.com/zerotoship/flow/service/dao/workflow"
	"github.com/zerotoship/flow/service/event"
	"github.com/zerotoship/flow/service/router"
)

func newEngine(executors []types.Executor, opts ...Option) *Service {
	registry := extension.NewExecutors()
	for _, executor := range executors {
		registry.Register(executor)
	}
	return New(router.New(registry), opts...)
}

func staticExecutor(name string, result *types.Result) types.Executor {
	return types.NewExecutor(name, func(ctx context.Context, snapshot map[string]interface{}) (*types.Result, error) {
		return result, nil
	})
}

func attemptCount(history []execution.HistoryEvent) int {
	count := 0
	for _, item := range history {
		if item.Name == execution.EventExecutorAttempt {
			count++
		}
	}
	return count
}

func hasHistoryEvent(history []execution.HistoryEvent, name string) bool {
	for _, item := range history {
		if item.Name == name {
			return true
		}
	}
	return false
}

func TestService_Run_HappyPath(t *testing.T) {
	var mux sync.Mutex
	var ideas []interface{}
	record := func(snapshot map[string]interface{}) {
		mux.Lock()
		defer mux.Unlock()
		ideas = append(ideas, snapshot["idea"])
	}

	executors := []types.Executor{
		types.NewExecutor("validator", func(ctx context.Context, snapshot map[string]interface{}) (*types.Result, error) {
			record(snapshot)
			return &types.Result{Data: map[string]interface{}{"validation": map[string]interface{}{"passed": true}}}, nil
		}),
		staticExecutor("builder", &types.Result{Data: map[string]interface{}{"build": "ok"}}),
		staticExecutor("marketer", &types.Result{Data: map[string]interface{}{"market": "ok"}}),
	}

	wf := model.NewWorkflow("ship")
	wf.NewStep("VALIDATE").WithExecutor("validator")
	wf.NewParallel(
		(&model.Step{State: "BUILD"}).WithExecutor("builder"),
		(&model.Step{State: "MARKET"}).WithExecutor("marketer"),
	)
	wf.NewTerminal("DONE")

	srv := newEngine(executors)
	run, err := srv.Run(context.Background(), wf, map[string]interface{}{"idea": "meal planner"})
	require.NoError(t, err)
	require.NotNil(t, run)

	assert.True(t, run.Completed())
	assert.Equal(t, execution.StateCompleted, run.State)
	assert.Equal(t, []string{"VALIDATE", "BUILD", "MARKET", "DONE"}, run.Visited)
	assert.Equal(t, []interface{}{"meal planner"}, ideas)

	// one attempt entry per executor call and nothing else
	require.Len(t, run.History, 3)
	assert.Equal(t, 3, attemptCount(run.History))

	assert.Equal(t, "ok", run.Payload["build"])
	assert.Equal(t, "ok", run.Payload["market"])
	assert.Contains(t, run.Context, "validation")
	assert.NotEmpty(t, run.ID)
	assert.False(t, run.EndedAt.Before(run.StartedAt))
}

func TestService_Run_RetryThenSuccess(t *testing.T) {
	calls := 0
	executor := types.NewExecutor("flaky", func(ctx context.Context, snapshot map[string]interface{}) (*types.Result, error) {
		calls++
		if calls < 3 {
			return nil, types.NewTransientError("WORK", "flaky", errors.New("try again"))
		}
		return &types.Result{Data: map[string]interface{}{"done": true}}, nil
	})

	wf := model.NewWorkflow("retry")
	wf.NewStep("WORK").WithExecutor("flaky").WithRetry(&model.Retry{Type: "fixed", MaxRetries: 3, Delay: "1ms"})
	wf.NewTerminal("DONE")

	ctx, tracker := progress.WithNewTracker(context.Background(), "", "retry", nil)
	run, err := newEngine([]types.Executor{executor}).Run(ctx, wf, nil)
	require.NoError(t, err)

	assert.True(t, run.Completed())
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, attemptCount(run.History))
	assert.Equal(t, 2, tracker.Snapshot().RetriedSteps)
	assert.Equal(t, 1, tracker.Snapshot().CompletedSteps)
}

func TestService_Run_RetryExhausted(t *testing.T) {
	executor := types.NewExecutor("flaky", func(ctx context.Context, snapshot map[string]interface{}) (*types.Result, error) {
		return nil, types.NewTransientError("WORK", "flaky", errors.New("still down"))
	})

	wf := model.NewWorkflow("retry")
	wf.NewStep("WORK").WithExecutor("flaky").WithRetry(&model.Retry{MaxRetries: 2, Delay: "1ms"})
	wf.NewTerminal("DONE")

	run, err := newEngine([]types.Executor{executor}).Run(context.Background(), wf, nil)
	require.Error(t, err)
	require.NotNil(t, run)

	assert.True(t, errors.Is(err, types.ErrHalted))
	assert.Equal(t, execution.StateError, run.State)
	assert.Equal(t, 2, attemptCount(run.History))
	assert.True(t, hasHistoryEvent(run.History, execution.EventHalted))
	assert.NotEmpty(t, run.Error)
}

func TestService_Run_OnErrorEscalation(t *testing.T) {
	executors := []types.Executor{
		types.NewExecutor("deployer", func(ctx context.Context, snapshot map[string]interface{}) (*types.Result, error) {
			return nil, types.NewPermanentError("DEPLOY", "deployer", errors.New("broken image"))
		}),
		staticExecutor("rescuer", &types.Result{Data: map[string]interface{}{"rescued": true}}),
	}

	recovery := model.NewWorkflow("recovery")
	recovery.NewStep("RESCUE").WithExecutor("rescuer")
	recovery.NewTerminal("SAVED")

	definitions := workflow.New()
	definitions.Upsert(recovery)

	wf := model.NewWorkflow("main")
	step := wf.NewStep("DEPLOY").WithExecutor("deployer")
	step.OnError = &model.Escalation{Workflow: "recovery"}
	wf.NewTerminal("DONE")

	srv := newEngine(executors, WithWorkflows(definitions))
	run, err := srv.Run(context.Background(), wf, nil)
	require.NoError(t, err)

	assert.True(t, run.Completed())
	assert.True(t, hasHistoryEvent(run.History, execution.EventEscalated))
	assert.Contains(t, run.Visited, "RESCUE")
	assert.Equal(t, true, run.Payload["rescued"])
}

func TestService_Run_ConditionFailEscalates(t *testing.T) {
	executors := []types.Executor{
		staticExecutor("validator", &types.Result{Data: map[string]interface{}{"score": 2}}),
		staticExecutor("rescuer", &types.Result{}),
	}

	recovery := model.NewWorkflow("deep-validation")
	recovery.NewStep("DEEP_VALIDATE").WithExecutor("rescuer")
	recovery.NewTerminal("SAVED")

	definitions := workflow.New()
	definitions.Upsert(recovery)

	wf := model.NewWorkflow("main")
	step := wf.NewStep("VALIDATE").WithExecutor("validator")
	step.Conditions = []*model.Condition{
		{Field: "score", Operator: model.OpGreaterEqual, Value: 5, OnFail: &model.Escalation{Workflow: "deep-validation"}},
	}
	wf.NewTerminal("DONE")

	run, err := newEngine(executors, WithWorkflows(definitions)).Run(context.Background(), wf, nil)
	require.NoError(t, err)

	assert.True(t, run.Completed())
	assert.Contains(t, run.Visited, "DEEP_VALIDATE")
	assert.True(t, hasHistoryEvent(run.History, execution.EventEscalated))
}

func TestService_Run_ConditionFailCompletes(t *testing.T) {
	executor := staticExecutor("validator", &types.Result{Data: map[string]interface{}{"score": 2}})

	wf := model.NewWorkflow("main")
	step := wf.NewStep("VALIDATE").WithExecutor("validator")
	step.Conditions = []*model.Condition{
		{Field: "score", Operator: model.OpGreaterEqual, Value: 5},
	}
	wf.NewStep("SHIP").WithExecutor("validator")
	wf.NewTerminal("DONE")

	run, err := newEngine([]types.Executor{executor}).Run(context.Background(), wf, nil)
	require.NoError(t, err)

	// a failed gate without an escalation target ends the run as completed
	// at that gate instead of advancing
	assert.True(t, run.Completed())
	assert.NotContains(t, run.Visited, "SHIP")
	assert.True(t, hasHistoryEvent(run.History, execution.EventConditionUnmet))
	assert.False(t, hasHistoryEvent(run.History, execution.EventHalted))
	assert.Equal(t, 2, run.Context["score"])
}

func TestService_Run_NextStateCycleDetected(t *testing.T) {
	executors := []types.Executor{
		staticExecutor("ping", &types.Result{NextState: "B"}),
		staticExecutor("pong", &types.Result{NextState: "A"}),
	}

	wf := model.NewWorkflow("pingpong")
	wf.NewStep("A").WithExecutor("ping")
	wf.NewStep("B").WithExecutor("pong")
	wf.NewTerminal("DONE")

	run, err := newEngine(executors).Run(context.Background(), wf, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrCycleDetected))
	assert.Equal(t, execution.StateError, run.State)
	assert.Equal(t, []string{"A", "B", "A", "B"}, run.Visited)
	assert.True(t, hasHistoryEvent(run.History, execution.EventCycleDetected))
}

func TestService_Run_CycleEscalatesWhenDeclared(t *testing.T) {
	executors := []types.Executor{
		staticExecutor("ping", &types.Result{NextState: "B"}),
		staticExecutor("pong", &types.Result{NextState: "A"}),
		staticExecutor("rescuer", &types.Result{}),
	}

	recovery := model.NewWorkflow("recovery")
	recovery.NewStep("RESCUE").WithExecutor("rescuer")
	recovery.NewTerminal("SAVED")

	definitions := workflow.New()
	definitions.Upsert(recovery)

	wf := model.NewWorkflow("pingpong")
	wf.NewStep("A").WithExecutor("ping")
	stepB := wf.NewStep("B").WithExecutor("pong")
	stepB.OnError = &model.Escalation{Workflow: "recovery"}
	wf.NewTerminal("DONE")

	run, err := newEngine(executors, WithWorkflows(definitions)).Run(context.Background(), wf, nil)
	require.NoError(t, err)
	assert.True(t, run.Completed())
	assert.Contains(t, run.Visited, "RESCUE")
}

func TestService_Run_IterationLimit(t *testing.T) {
	executor := staticExecutor("spinner", &types.Result{NextState: "A"})

	wf := model.NewWorkflow("spin")
	wf.NewStep("A").WithExecutor("spinner")
	wf.NewTerminal("DONE")

	ctx := policy.WithPolicy(context.Background(), &policy.Policy{MaxIterations: 3, CycleWindow: -1})
	run, err := newEngine([]types.Executor{executor}).Run(ctx, wf, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrIterationLimit))
	assert.Equal(t, execution.StateError, run.State)
	assert.Equal(t, 4, run.Iterations)
	assert.True(t, hasHistoryEvent(run.History, execution.EventAborted))
}

func TestService_Run_LoopBreaksOnCondition(t *testing.T) {
	calls := 0
	reviewer := types.NewExecutor("reviewer", func(ctx context.Context, snapshot map[string]interface{}) (*types.Result, error) {
		calls++
		score := 2
		if calls >= 2 {
			score = 5
		}
		return &types.Result{Data: map[string]interface{}{"review": map[string]interface{}{"score": score}}}, nil
	})

	wf := model.NewWorkflow("refine")
	wf.NewLoop("REFINE", 3, (&model.Step{State: "REVIEW"}).WithExecutor("reviewer"))
	wf.Sequence[0].Loop.BreakConditions = []*model.Condition{
		{Field: "review.score", Operator: model.OpGreaterEqual, Value: 4},
	}
	wf.NewTerminal("DONE")

	run, err := newEngine([]types.Executor{reviewer}).Run(context.Background(), wf, nil)
	require.NoError(t, err)

	assert.True(t, run.Completed())
	assert.Equal(t, 2, calls)
	assert.Contains(t, run.Visited, "REFINE_1")
	assert.Contains(t, run.Visited, "REFINE_2")
	assert.NotContains(t, run.Visited, "REFINE_3")
}

func TestService_Run_LoopExhaustsIterations(t *testing.T) {
	reviewer := staticExecutor("reviewer", &types.Result{Data: map[string]interface{}{"review": map[string]interface{}{"score": 1}}})

	wf := model.NewWorkflow("refine")
	wf.NewLoop("REFINE", 2, (&model.Step{State: "REVIEW"}).WithExecutor("reviewer"))
	wf.Sequence[0].Loop.BreakConditions = []*model.Condition{
		{Field: "review.score", Operator: model.OpGreaterEqual, Value: 4},
	}
	wf.NewTerminal("DONE")

	run, err := newEngine([]types.Executor{reviewer}).Run(context.Background(), wf, nil)
	require.NoError(t, err)
	// the bound is a normal exit, not a failure
	assert.True(t, run.Completed())
	assert.Equal(t, 2, attemptCount(run.History))
}

func TestService_Run_BlockedExecutorSkipped(t *testing.T) {
	invoked := false
	executor := types.NewExecutor("deployer", func(ctx context.Context, snapshot map[string]interface{}) (*types.Result, error) {
		invoked = true
		return &types.Result{}, nil
	})

	wf := model.NewWorkflow("main")
	wf.NewStep("DEPLOY").WithExecutor("deployer")
	wf.NewTerminal("DONE")

	ctx := policy.WithPolicy(context.Background(), &policy.Policy{BlockList: []string{"deployer"}})
	ctx, tracker := progress.WithNewTracker(ctx, "", "main", nil)

	run, err := newEngine([]types.Executor{executor}).Run(ctx, wf, nil)
	require.NoError(t, err)
	assert.True(t, run.Completed())
	assert.False(t, invoked)
	assert.Equal(t, 0, attemptCount(run.History))
	assert.Equal(t, 1, tracker.Snapshot().SkippedSteps)
}

func TestService_Run_UnknownExecutorSkipped(t *testing.T) {
	wf := model.NewWorkflow("main")
	wf.NewStep("DEPLOY").WithExecutor("ghost")
	wf.NewTerminal("DONE")

	run, err := newEngine(nil).Run(context.Background(), wf, nil)
	require.NoError(t, err)
	assert.True(t, run.Completed())
	assert.Equal(t, 1, attemptCount(run.History))
}

func TestService_Run_ContextCancelled(t *testing.T) {
	executor := staticExecutor("worker", &types.Result{})

	wf := model.NewWorkflow("main")
	wf.NewStep("WORK").WithExecutor("worker")
	wf.NewTerminal("DONE")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := newEngine([]types.Executor{executor}).Run(ctx, wf, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, execution.StateError, run.State)
	assert.True(t, hasHistoryEvent(run.History, execution.EventAborted))
}

func TestService_Run_SnapshotStored(t *testing.T) {
	store := runmem.New()
	executor := staticExecutor("worker", &types.Result{Data: map[string]interface{}{"done": true}})

	wf := model.NewWorkflow("main")
	wf.NewStep("WORK").WithExecutor("worker")
	wf.NewTerminal("DONE")

	run, err := newEngine([]types.Executor{executor}, WithSnapshots(store)).Run(context.Background(), wf, nil)
	require.NoError(t, err)

	stored, err := store.Load(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.State, stored.State)
	assert.Equal(t, "main", stored.Workflow)
}

func TestService_Run_EventsPublished(t *testing.T) {
	events := event.New()
	var mux sync.Mutex
	seen := map[string]bool{}
	err := event.SetListenerOf[map[string]interface{}](events, func(e *event.Event[map[string]interface{}]) {
		mux.Lock()
		defer mux.Unlock()
		seen[e.Context.EventType] = true
	})
	require.NoError(t, err)

	executor := staticExecutor("worker", &types.Result{})
	wf := model.NewWorkflow("main")
	wf.NewStep("WORK").WithExecutor("worker")
	wf.NewTerminal("DONE")

	run, runErr := newEngine([]types.Executor{executor}, WithEvents(events)).Run(context.Background(), wf, nil)
	require.NoError(t, runErr)
	assert.True(t, run.Completed())

	assert.Eventually(t, func() bool {
		mux.Lock()
		defer mux.Unlock()
		return seen[EventRunStarted] && seen[EventStateEntered] && seen[EventRunCompleted]
	}, time.Second, 5*time.Millisecond)
}

func TestService_Run_InvalidWorkflowRejected(t *testing.T) {
	wf := model.NewWorkflow("broken")
	// standard step without an executor fails validation
	wf.NewStep("WORK")
	wf.NewTerminal("DONE")

	run, err := newEngine(nil).Run(context.Background(), wf, nil)
	require.Error(t, err)
	assert.Nil(t, run)
	var validation *types.ValidationError
	assert.True(t, errors.As(err, &validation))
}
