package router

// Package router is the dispatch seam between the engine and registered
// executors. It resolves an executor by name, invokes it against a context
// snapshot under the per-call timeout, and normalises whatever comes back
// into a plain Result the engine can merge.

import (
	"context"
	"fmt"
	"time"

	"github.com/viant/structology/conv"
	"github.com/zerotoship/flow/extension"
	"github.com/zerotoship/flow/model/types"
)

// Listener is invoked once an executor call completes, success or not.
// Implementations can log, collect metrics or perform any other
// side-effects they require.
type Listener func(request *Request, result *types.Result, err error)

// Request describes a single dispatch.
type Request struct {
	RunID    string
	State    string
	Executor string
	// Timeout bounds the executor call; zero means no bound at this level.
	Timeout  time.Duration
	Snapshot map[string]interface{}
}

// Service dispatches execution requests to registered executors.
type Service interface {
	Execute(ctx context.Context, request *Request) (*types.Result, error)
}

// service is the concrete implementation of Service.
type service struct {
	executors *extension.Executors
	converter *conv.Converter
	listener  Listener
}

// Execute resolves and invokes the named executor. An unregistered executor
// yields a skipped result rather than an error, so a workflow can reference
// capabilities that are optional in a given deployment.
func (s *service) Execute(ctx context.Context, request *Request) (*types.Result, error) {
	executor := s.executors.Lookup(request.Executor)
	if executor == nil {
		result := &types.Result{
			Status:  types.StatusSkipped,
			Message: fmt.Sprintf("no executor registered for %q", request.Executor),
		}
		s.notify(request, result, nil)
		return result, nil
	}

	result, err := s.invoke(ctx, request, executor)
	if err != nil {
		s.notify(request, nil, err)
		return nil, err
	}
	result, err = s.normalize(request, result)
	s.notify(request, result, err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// invoke runs the executor in its own goroutine so the per-call timeout
// holds even when the executor ignores context cancellation.
func (s *service) invoke(ctx context.Context, request *Request, executor types.Executor) (*types.Result, error) {
	callCtx := ctx
	var cancel context.CancelFunc
	if request.Timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, request.Timeout)
		defer cancel()
	}

	type outcome struct {
		result *types.Result
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: types.NewPermanentError(request.State, request.Executor, fmt.Errorf("executor panic: %v", r))}
			}
		}()
		result, err := executor.Execute(callCtx, request.Snapshot)
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return nil, s.classify(request, out.err)
		}
		return out.result, nil
	case <-callCtx.Done():
		if ctx.Err() != nil {
			// outer cancellation, not a per-call timeout
			return nil, ctx.Err()
		}
		return nil, &types.TimeoutError{State: request.State, Executor: request.Executor}
	}
}

// classify wraps raw executor errors so the engine can tell transient from
// permanent; errors already classified pass through untouched.
func (s *service) classify(request *Request, err error) error {
	switch err.(type) {
	case *types.ExecutorError, *types.TimeoutError:
		return err
	}
	if types.IsTransient(err) {
		return types.NewTransientError(request.State, request.Executor, err)
	}
	return types.NewPermanentError(request.State, request.Executor, err)
}

// normalize fills result defaults and folds a typed Output into Data so
// that downstream code only deals with maps.
func (s *service) normalize(request *Request, result *types.Result) (*types.Result, error) {
	if result == nil {
		return &types.Result{Status: types.StatusSuccess}, nil
	}
	if result.Status == "" {
		result.Status = types.StatusSuccess
	}
	if result.Output != nil {
		var converted map[string]interface{}
		if err := s.converter.Convert(result.Output, &converted); err != nil {
			return nil, types.NewPermanentError(request.State, request.Executor,
				fmt.Errorf("failed to convert executor output: %w", err))
		}
		if result.Data == nil {
			result.Data = make(map[string]interface{}, len(converted))
		}
		for k, v := range converted {
			result.Data[k] = v
		}
		result.Output = nil
	}
	return result, nil
}

func (s *service) notify(request *Request, result *types.Result, err error) {
	if s.listener != nil {
		s.listener(request, result, err)
	}
}

// New creates a new router backed by the supplied executor registry.
func New(executors *extension.Executors, opts ...Option) Service {
	options := conv.DefaultOptions()
	options.ClonePointerData = true
	options.IgnoreUnmapped = true
	options.AccessUnexported = true

	s := &service{
		executors: executors,
		converter: conv.NewConverter(options),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}
