package router

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/zerotoship/flow/extension"
	"github.com/zerotoship/flow/model/types"
)

type buildOutput struct {
	Status   string  `json:"status"`
	Coverage float64 `json:"coverage"`
}

func newRouter(executors ...types.Executor) Service {
	registry := extension.NewExecutors()
	for _, e := range executors {
		registry.Register(e)
	}
	return New(registry)
}

func TestService_Execute(t *testing.T) {
	builder := types.NewExecutor("builder", func(ctx context.Context, snapshot map[string]interface{}) (*types.Result, error) {
		return &types.Result{Data: map[string]interface{}{"build": "done"}}, nil
	})
	svc := newRouter(builder)

	result, err := svc.Execute(context.Background(), &Request{State: "BUILD", Executor: "builder"})
	assert.NoError(t, err)
	assert.Equal(t, types.StatusSuccess, result.Status)
	assert.Equal(t, map[string]interface{}{"build": "done"}, result.Data)
}

func TestService_ExecuteUnknownExecutorSkips(t *testing.T) {
	svc := newRouter()

	result, err := svc.Execute(context.Background(), &Request{State: "BUILD", Executor: "ghost"})
	assert.NoError(t, err)
	assert.Equal(t, types.StatusSkipped, result.Status)
	assert.Contains(t, result.Message, "ghost")
}

func TestService_ExecuteTypedOutput(t *testing.T) {
	builder := types.NewExecutor("builder", func(ctx context.Context, snapshot map[string]interface{}) (*types.Result, error) {
		return &types.Result{Output: &buildOutput{Status: "done", Coverage: 0.93}}, nil
	})
	svc := newRouter(builder)

	result, err := svc.Execute(context.Background(), &Request{State: "BUILD", Executor: "builder"})
	assert.NoError(t, err)
	assert.Nil(t, result.Output)
	lookup := func(key string) interface{} {
		for k, v := range result.Data {
			if strings.EqualFold(k, key) {
				return v
			}
		}
		return nil
	}
	assert.Equal(t, "done", lookup("status"))
	assert.Equal(t, 0.93, lookup("coverage"))
}

func TestService_ExecuteTimeout(t *testing.T) {
	slow := types.NewExecutor("slow", func(ctx context.Context, snapshot map[string]interface{}) (*types.Result, error) {
		time.Sleep(time.Second)
		return &types.Result{}, nil
	})
	svc := newRouter(slow)

	_, err := svc.Execute(context.Background(), &Request{State: "BUILD", Executor: "slow", Timeout: 20 * time.Millisecond})
	assert.Error(t, err)
	var timeout *types.TimeoutError
	assert.ErrorAs(t, err, &timeout)
	assert.True(t, types.IsTransient(err))
}

func TestService_ExecutePanicIsPermanent(t *testing.T) {
	panicky := types.NewExecutor("panicky", func(ctx context.Context, snapshot map[string]interface{}) (*types.Result, error) {
		panic("boom")
	})
	svc := newRouter(panicky)

	_, err := svc.Execute(context.Background(), &Request{State: "BUILD", Executor: "panicky"})
	assert.Error(t, err)
	assert.False(t, types.IsTransient(err))
}

func TestService_ExecuteClassifiesErrors(t *testing.T) {
	flaky := types.NewExecutor("flaky", func(ctx context.Context, snapshot map[string]interface{}) (*types.Result, error) {
		return nil, types.NewTransientError("BUILD", "flaky", errors.New("connection reset"))
	})
	broken := types.NewExecutor("broken", func(ctx context.Context, snapshot map[string]interface{}) (*types.Result, error) {
		return nil, errors.New("bad input")
	})
	svc := newRouter(flaky, broken)

	_, err := svc.Execute(context.Background(), &Request{State: "BUILD", Executor: "flaky"})
	assert.True(t, types.IsTransient(err))

	_, err = svc.Execute(context.Background(), &Request{State: "BUILD", Executor: "broken"})
	assert.False(t, types.IsTransient(err))
}

func TestService_Listener(t *testing.T) {
	builder := types.NewExecutor("builder", func(ctx context.Context, snapshot map[string]interface{}) (*types.Result, error) {
		return &types.Result{}, nil
	})
	registry := extension.NewExecutors()
	registry.Register(builder)

	var observed []string
	svc := New(registry, WithListener(func(request *Request, result *types.Result, err error) {
		observed = append(observed, request.Executor)
	}))

	_, err := svc.Execute(context.Background(), &Request{State: "BUILD", Executor: "builder"})
	assert.NoError(t, err)
	assert.Equal(t, []string{"builder"}, observed)
}
