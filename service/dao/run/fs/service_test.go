package fs

import (
	"context"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/zerotoship/flow/runtime/execution"
	"github.com/zerotoship/flow/service/dao"
)

func TestService_SaveLoadDelete(t *testing.T) {
	service, err := New(path.Join(t.TempDir(), "runs"))
	assert.NoError(t, err)

	ctx := context.Background()
	run := &execution.Run{
		ID:       "run-1",
		Workflow: "zero-to-ship",
		State:    execution.StateCompleted,
		Visited:  []string{"VALIDATE", "BUILD", "DONE"},
		Payload:  map[string]interface{}{"validation": map[string]interface{}{"passed": true}},
	}
	assert.NoError(t, service.Save(ctx, run))

	loaded, err := service.Load(ctx, "run-1")
	assert.NoError(t, err)
	assert.Equal(t, run.Workflow, loaded.Workflow)
	assert.Equal(t, run.Visited, loaded.Visited)
	assert.True(t, loaded.Completed())

	_, err = service.Load(ctx, "missing")
	assert.ErrorIs(t, err, dao.ErrNotFound)

	listed, err := service.List(ctx, dao.NewParameter("State", execution.StateCompleted))
	assert.NoError(t, err)
	assert.Len(t, listed, 1)

	assert.NoError(t, service.Delete(ctx, "run-1"))
	_, err = service.Load(ctx, "run-1")
	assert.ErrorIs(t, err, dao.ErrNotFound)
}
