// Package engine drives declarative workflows: it walks a definition's
// sequence, dispatches executors through the router, folds their output into
// the shared run context and enforces the safety guards (iteration cap,
// cycle detection, per-step retry and escalation).
package engine

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/zerotoship/flow/internal/clock"
	"github.com/zerotoship/flow/internal/idgen"
	"github.com/zerotoship/flow/model"
	"github.com/zerotoship/flow/model/types"
	"github.com/zerotoship/flow/policy"
	"github.com/zerotoship/flow/progress"
	"github.com/zerotoship/flow/runtime/evaluator"
	"github.com/zerotoship/flow/runtime/execution"
	"github.com/zerotoship/flow/service/dao"
	"github.com/zerotoship/flow/service/dao/workflow"
	"github.com/zerotoship/flow/service/event"
	"github.com/zerotoship/flow/service/router"
	"github.com/zerotoship/flow/tracing"
)

// Event types published to the event service while a run progresses.
const (
	EventRunStarted   = "run.started"
	EventRunCompleted = "run.completed"
	EventRunFailed    = "run.failed"
	EventRunEscalated = "run.escalated"
	EventStateEntered = "state.entered"
)

// Service is the state machine engine. It is stateless across runs; all
// per-run state lives in the run's Session and ProjectState.
type Service struct {
	router    router.Service
	workflows *workflow.Service
	policy    *policy.Policy
	events    *event.Service
	snapshots dao.Service[string, execution.Run]
}

// Run executes the supplied workflow against the initial payload and blocks
// until the run terminates. The returned record carries the final context
// snapshot and history even when the run ends in ERROR; the error return is
// non-nil exactly when the run did not complete.
func (s *Service) Run(ctx context.Context, wf *model.Workflow, payload map[string]interface{}) (*execution.Run, error) {
	if wf == nil {
		return nil, fmt.Errorf("workflow was nil")
	}
	if issues := wf.Validate(); len(issues) > 0 {
		return nil, types.NewValidationError("", "%v", issues[0])
	}

	pol := policy.FromContext(ctx)
	if pol == nil {
		pol = s.policy
	}
	if pol == nil {
		pol = policy.New()
	}

	runID := idgen.New()
	if _, ok := progress.FromContext(ctx); !ok {
		ctx, _ = progress.WithNewTracker(ctx, runID, wf.Name, nil)
	}

	r := &runner{
		service:       s,
		policy:        pol,
		runID:         runID,
		root:          wf,
		workflow:      wf,
		session:       execution.NewSession(runID),
		project:       execution.NewProjectState(wf.EntryState(), payload),
		maxIterations: pol.EffectiveMaxIterations(),
		cycleWindow:   pol.EffectiveCycleWindow(),
	}
	if s.events != nil {
		r.publisher, _ = event.PublisherOf[map[string]interface{}](s.events)
	}

	ctx, span := tracing.StartSpan(ctx, "workflow.run", "INTERNAL")
	span.WithAttributes(map[string]string{"workflow.name": wf.Name, "run.id": runID})

	startedAt := clock.Now()
	state, runErr := r.execute(ctx)
	tracing.EndSpan(span, runErr)

	run := &execution.Run{
		ID:         runID,
		Workflow:   wf.Name,
		State:      state,
		Iterations: r.project.Iterations,
		Visited:    r.project.Visited,
		Payload:    r.project.Payload,
		Context:    r.session.Snapshot(),
		History:    r.session.History(),
		StartedAt:  startedAt,
		EndedAt:    clock.Now(),
	}
	if runErr != nil {
		run.Error = runErr.Error()
		r.emit(ctx, EventRunFailed, r.project.State, "", map[string]interface{}{"error": runErr.Error()})
	} else {
		r.emit(ctx, EventRunCompleted, r.project.State, "", nil)
	}
	s.persist(ctx, r.session, run)
	return run, runErr
}

// persist saves the run record when a snapshot store is configured. Storage
// failures never fail the run; they are recorded in the history instead.
func (s *Service) persist(ctx context.Context, session *execution.Session, run *execution.Run) {
	if s.snapshots == nil {
		return
	}
	if err := s.snapshots.Save(ctx, run); err != nil {
		session.Record(execution.EventSnapshotFailed, map[string]interface{}{"run": run.ID, "error": err.Error()})
		run.History = session.History()
		log.Printf("failed to persist run %v: %v", run.ID, err)
	}
}

// New creates an engine dispatching through the supplied router.
func New(dispatcher router.Service, opts ...Option) *Service {
	s := &Service{
		router: dispatcher,
		policy: policy.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// transition tells the control loop where to go after a step: jump to a
// named state, switch to an escalation workflow, or (zero value) advance to
// the next sequence entry.
type transition struct {
	jump     string
	escalate string
}

// runner holds the mutable state of one run. It is driven by a single
// goroutine; only parallel branches fan out, and they touch nothing here
// except the Session, which synchronises itself.
type runner struct {
	service  *Service
	policy   *policy.Policy
	runID    string
	root     *model.Workflow
	workflow *model.Workflow
	index    int
	session  *execution.Session
	project  *execution.ProjectState

	maxIterations int
	cycleWindow   int
	primed        bool

	publisher *event.Publisher[map[string]interface{}]
}

// execute walks the active workflow sequence until a terminal state, a
// safety guard or a permanent failure ends the run.
func (r *runner) execute(ctx context.Context) (string, error) {
	r.emit(ctx, EventRunStarted, r.project.State, "", nil)
	for {
		if err := ctx.Err(); err != nil {
			r.session.Record(execution.EventAborted, map[string]interface{}{"state": r.project.State, "reason": err.Error()})
			return execution.StateError, err
		}

		step := r.workflow.StepAt(r.index)
		if step == nil {
			// ran off the end of the sequence
			return execution.StateCompleted, nil
		}

		var next *transition
		var err error
		switch step.Kind() {
		case model.KindTerminal:
			r.enter(step.Terminal)
			return execution.StateCompleted, nil
		case model.KindStandard:
			next, err = r.runStandard(ctx, step)
		case model.KindParallel:
			next, err = r.runParallel(ctx, step)
		case model.KindLoop:
			next, err = r.runLoop(ctx, step)
		default:
			err = types.NewValidationError(fmt.Sprintf("sequence[%d]", r.index), "step matches no step shape or more than one")
		}
		if err != nil {
			return execution.StateError, err
		}

		switch {
		case next.escalate != "":
			if err := r.escalate(ctx, next.escalate); err != nil {
				return execution.StateError, err
			}
		case next.jump != "":
			if execution.IsTerminal(next.jump) {
				if next.jump == execution.StateCompleted {
					return execution.StateCompleted, nil
				}
				return execution.StateError, fmt.Errorf("executor directed run to %s", next.jump)
			}
			index, ok := r.workflow.IndexOf(next.jump)
			if !ok {
				return execution.StateError, fmt.Errorf("%q: %w", next.jump, types.ErrStateNotFound)
			}
			r.index = index
		default:
			r.index++
		}
	}
}

// runStandard executes one Standard step: entry bookkeeping, dispatch with
// retries, then condition evaluation and payload folding.
func (r *runner) runStandard(ctx context.Context, step *model.Step) (*transition, error) {
	if err := r.tick(); err != nil {
		return nil, err
	}
	if next, err := r.noteEntry(ctx, step.State, cycleEscalation(step)); next != nil || err != nil {
		return next, err
	}
	result, err := r.dispatch(ctx, step, step.State)
	if err != nil {
		return r.failed(ctx, step, step.State, err)
	}
	return r.applyResult(ctx, step, step.State, result)
}

// runParallel fans the sub-steps out over goroutines and folds the results
// back sequentially, in declared order, once all branches have finished.
func (r *runner) runParallel(ctx context.Context, step *model.Step) (*transition, error) {
	for _, sub := range step.Parallel {
		if err := r.tick(); err != nil {
			return nil, err
		}
		if next, err := r.noteEntry(ctx, sub.State, cycleEscalation(sub)); next != nil || err != nil {
			return next, err
		}
	}

	results := make([]*types.Result, len(step.Parallel))
	errs := make([]error, len(step.Parallel))
	var wg sync.WaitGroup
	for i, sub := range step.Parallel {
		wg.Add(1)
		go func(i int, sub *model.Step) {
			defer wg.Done()
			results[i], errs[i] = r.dispatch(ctx, sub, sub.State)
		}(i, sub)
	}
	wg.Wait()

	for i, sub := range step.Parallel {
		if errs[i] != nil {
			return r.failed(ctx, sub, sub.State, errs[i])
		}
	}
	var jump string
	for i, sub := range step.Parallel {
		next, err := r.applyResult(ctx, sub, sub.State, results[i])
		if err != nil {
			return nil, err
		}
		if next.escalate != "" {
			return next, nil
		}
		if jump == "" {
			jump = next.jump
		}
	}
	return &transition{jump: jump}, nil
}

// runLoop repeats the inner sequence until a break condition holds or the
// loop's own iteration bound is reached. Reaching the bound without a break
// is a normal exit, not a failure.
func (r *runner) runLoop(ctx context.Context, step *model.Step) (*transition, error) {
	loop := step.Loop
	for iteration := 1; iteration <= loop.MaxIterations; iteration++ {
		state := fmt.Sprintf("%s_%d", loop.StatePrefix, iteration)
		if err := r.tick(); err != nil {
			return nil, err
		}
		if next, err := r.noteEntry(ctx, state, nil); next != nil || err != nil {
			return next, err
		}
		for _, inner := range loop.Steps {
			result, err := r.dispatch(ctx, inner, inner.State)
			if err != nil {
				return r.failed(ctx, inner, inner.State, err)
			}
			next, err := r.applyResult(ctx, inner, inner.State, result)
			if err != nil {
				return nil, err
			}
			if next.escalate != "" || next.jump != "" {
				return next, nil
			}
		}
		if len(loop.BreakConditions) > 0 {
			if ok, _ := evaluator.EvalAll(loop.BreakConditions, r.snapshotFor()); ok {
				break
			}
		}
	}
	return &transition{}, nil
}

// dispatch invokes the step's executor with retries. Attempt history entries
// are the only happy-path history the engine records. The returned error is
// the final attempt's error once retries are exhausted.
func (r *runner) dispatch(ctx context.Context, step *model.Step, state string) (*types.Result, error) {
	progress.UpdateCtx(ctx, progress.Delta{Steps: 1})
	if !r.policy.IsAllowed(step.Executor) {
		return &types.Result{
			Status:  types.StatusSkipped,
			Message: fmt.Sprintf("executor %q blocked by policy", step.Executor),
		}, nil
	}

	timeout := r.stepTimeout(step)
	retry := r.stepRetry(step)
	attempts := 1
	if retry != nil && retry.MaxRetries > 1 {
		attempts = retry.MaxRetries
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		r.session.Record(execution.EventExecutorAttempt, map[string]interface{}{
			"state":    state,
			"executor": step.Executor,
			"attempt":  attempt,
		})
		spanCtx, span := tracing.StartSpan(ctx, "executor."+step.Executor, "INTERNAL")
		result, err := r.service.router.Execute(spanCtx, &router.Request{
			RunID:    r.runID,
			State:    state,
			Executor: step.Executor,
			Timeout:  timeout,
			Snapshot: r.snapshotFor(),
		})
		tracing.EndSpan(span, err)
		if err == nil {
			r.session.Merge(result.Data)
			return result, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !types.IsTransient(err) || attempt == attempts {
			break
		}
		progress.UpdateCtx(ctx, progress.Delta{Retried: 1})
		if !r.sleep(ctx, r.backoff(retry, attempt)) {
			return nil, ctx.Err()
		}
	}
	progress.UpdateCtx(ctx, progress.Delta{Failed: 1})
	return nil, lastErr
}

// applyResult folds a successful dispatch back into the run: merge payload,
// evaluate advancement conditions and honour an executor-directed jump. A
// failed condition escalates when it names a target workflow; without one
// the run terminates as completed at the failed gate.
func (r *runner) applyResult(ctx context.Context, step *model.Step, state string, result *types.Result) (*transition, error) {
	switch result.Status {
	case types.StatusSkipped:
		progress.UpdateCtx(ctx, progress.Delta{Skipped: 1})
		return &transition{}, nil
	case types.StatusError:
		progress.UpdateCtx(ctx, progress.Delta{Failed: 1})
		message := result.Message
		if message == "" {
			message = "executor reported failure"
		}
		return r.failed(ctx, step, state, types.NewPermanentError(state, step.Executor, fmt.Errorf("%s", message)))
	}

	progress.UpdateCtx(ctx, progress.Delta{Completed: 1})
	r.project.MergePayload(result.Data)

	if ok, failedCond := evaluator.EvalAll(step.Conditions, r.snapshotFor()); !ok {
		if failedCond.OnFail != nil && failedCond.OnFail.Workflow != "" {
			return &transition{escalate: failedCond.OnFail.Workflow}, nil
		}
		r.session.Record(execution.EventConditionUnmet, map[string]interface{}{
			"state":    state,
			"field":    failedCond.Field,
			"operator": failedCond.Operator,
			"expected": failedCond.Value,
		})
		return &transition{jump: execution.StateCompleted}, nil
	}

	if result.NextState != "" {
		return &transition{jump: result.NextState}, nil
	}
	return &transition{}, nil
}

// failed routes a permanent step failure: escalate when the step declares a
// recovery workflow, halt the run for external intervention otherwise.
func (r *runner) failed(ctx context.Context, step *model.Step, state string, err error) (*transition, error) {
	if step.OnError != nil && step.OnError.Workflow != "" {
		return &transition{escalate: step.OnError.Workflow}, nil
	}
	r.session.Record(execution.EventHalted, map[string]interface{}{
		"state":    state,
		"executor": step.Executor,
		"error":    err.Error(),
	})
	if ctx.Err() != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: %w", err, types.ErrHalted)
}

// escalate switches the run to the named workflow, resuming from its entry
// state. The iteration cap and cycle window keep counting across the switch.
func (r *runner) escalate(ctx context.Context, name string) error {
	target := r.lookupWorkflow(ctx, name)
	if target == nil {
		return fmt.Errorf("escalation target %q: %w", name, types.ErrWorkflowNotFound)
	}
	r.session.Record(execution.EventEscalated, map[string]interface{}{"from": r.project.State, "workflow": name})
	progress.UpdateCtx(ctx, progress.Delta{Escalated: 1})
	r.emit(ctx, EventRunEscalated, r.project.State, "", map[string]interface{}{"workflow": name})
	r.workflow = target
	r.index = 0
	return nil
}

func (r *runner) lookupWorkflow(ctx context.Context, name string) *model.Workflow {
	if name == r.workflow.Name {
		return r.workflow
	}
	if name == r.root.Name {
		return r.root
	}
	if r.service.workflows == nil {
		return nil
	}
	if wf := r.service.workflows.Lookup(name); wf != nil {
		return wf
	}
	wf, err := r.service.workflows.Load(ctx, name)
	if err != nil {
		return nil
	}
	return wf
}

// tick counts one engine loop iteration against the policy cap.
func (r *runner) tick() error {
	r.project.Iterations++
	if r.project.Iterations > r.maxIterations {
		r.session.Record(execution.EventAborted, map[string]interface{}{
			"state":  r.project.State,
			"reason": "iteration limit",
		})
		return fmt.Errorf("after %d iterations: %w", r.maxIterations, types.ErrIterationLimit)
	}
	return nil
}

// noteEntry records the state transition and checks the visited tail for a
// repeating pattern. On a cycle the run escalates when the step declares a
// recovery target and aborts otherwise.
func (r *runner) noteEntry(ctx context.Context, state string, esc *model.Escalation) (*transition, error) {
	r.enter(state)
	r.emit(ctx, EventStateEntered, state, "", nil)
	if r.cycleWindow > 0 && r.project.HasCycle(r.cycleWindow) {
		tail := r.project.Visited[len(r.project.Visited)-r.cycleWindow:]
		r.session.Record(execution.EventCycleDetected, map[string]interface{}{
			"state":   state,
			"visited": append([]string(nil), tail...),
		})
		if esc != nil && esc.Workflow != "" {
			return &transition{escalate: esc.Workflow}, nil
		}
		return nil, fmt.Errorf("state %s: %w", state, types.ErrCycleDetected)
	}
	return nil, nil
}

// enter advances the project state. The entry state is already recorded by
// NewProjectState, so the very first call only consumes that record.
func (r *runner) enter(state string) {
	if !r.primed {
		r.primed = true
		r.project.State = state
		return
	}
	r.project.Enter(state)
}

// snapshotFor builds the view handed to executors and condition evaluation:
// the shared context overlaid on the project payload.
func (r *runner) snapshotFor() map[string]interface{} {
	snapshot := r.session.Snapshot()
	for k, v := range r.project.Payload {
		if _, ok := snapshot[k]; !ok {
			snapshot[k] = v
		}
	}
	return snapshot
}

func (r *runner) stepTimeout(step *model.Step) time.Duration {
	if step.Timeout != "" {
		if d, err := time.ParseDuration(step.Timeout); err == nil {
			return d
		}
	}
	return r.policy.EffectiveStepTimeout()
}

// stepRetry resolves the retry strategy: the step's own declaration wins,
// then the policy default, then no retries at all.
func (r *runner) stepRetry(step *model.Step) *model.Retry {
	if step.Retry != nil {
		return step.Retry
	}
	if rc := r.policy.Retry; rc != nil {
		return &model.Retry{
			MaxRetries: rc.MaxRetries,
			Delay:      rc.Delay,
			Multiplier: rc.Multiplier,
			MaxDelay:   rc.MaxDelay,
		}
	}
	return nil
}

// backoff computes the delay before the next attempt. attempt is the number
// of the attempt that just failed, starting at 1.
func (r *runner) backoff(retry *model.Retry, attempt int) time.Duration {
	if retry == nil || retry.Delay == "" {
		return 0
	}
	delay, err := time.ParseDuration(retry.Delay)
	if err != nil || delay <= 0 {
		return 0
	}
	if retry.Type == "exponential" {
		multiplier := retry.Multiplier
		if multiplier <= 1 {
			multiplier = 2
		}
		delay = time.Duration(float64(delay) * math.Pow(multiplier, float64(attempt-1)))
	}
	if retry.MaxDelay != "" {
		if maxDelay, err := time.ParseDuration(retry.MaxDelay); err == nil && maxDelay > 0 && delay > maxDelay {
			delay = maxDelay
		}
	}
	return delay
}

func (r *runner) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// emit publishes a run notification. Publishing is best effort: when the
// queues are full because nobody consumes, the event is dropped rather than
// stalling the run.
func (r *runner) emit(ctx context.Context, eventType, state, executor string, data map[string]interface{}) {
	if r.publisher == nil {
		return
	}
	// detached from the run context so final events survive cancellation
	publishCtx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = r.publisher.Publish(publishCtx, event.NewEvent(&event.Context{
		RunID:     r.runID,
		Workflow:  r.workflow.Name,
		State:     state,
		Executor:  executor,
		EventType: eventType,
	}, data))
}

// cycleEscalation picks the recovery target a cycling step falls back to.
func cycleEscalation(step *model.Step) *model.Escalation {
	if step.OnError != nil && step.OnError.Workflow != "" {
		return step.OnError
	}
	return step.Escalation()
}
