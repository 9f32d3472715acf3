package flow

import (
	"context"
	"fmt"

	"github.com/zerotoship/flow/model"
	"github.com/zerotoship/flow/runtime/engine"
	"github.com/zerotoship/flow/runtime/execution"
	"github.com/zerotoship/flow/service/dao"
	"github.com/zerotoship/flow/service/dao/workflow"
)

// Runtime is the run-facing API of the orchestrator: it loads definitions,
// starts runs and serves stored run records.
type Runtime struct {
	definitions *workflow.Service
	engine      *engine.Service
	runDAO      dao.Service[string, execution.Run]
}

// LoadWorkflow loads a workflow definition from the given location,
// resolving it against the configured base URL.
func (r *Runtime) LoadWorkflow(ctx context.Context, location string) (*model.Workflow, error) {
	return r.definitions.Load(ctx, location)
}

// DecodeYAMLWorkflow decodes a workflow definition from YAML bytes.
func (r *Runtime) DecodeYAMLWorkflow(data []byte) (*model.Workflow, error) {
	return r.definitions.DecodeYAML(data)
}

// RefreshWorkflow discards any cached copy of the definition at the given
// location and reloads it, so the next run picks up the new version.
func (r *Runtime) RefreshWorkflow(ctx context.Context, location string) error {
	if r == nil || r.definitions == nil {
		return fmt.Errorf("runtime not fully initialised, definition store missing")
	}
	_, err := r.definitions.Refresh(ctx, location)
	return err
}

// UpsertDefinition parses the supplied YAML bytes and stores the resulting
// definition in the in-memory cache under the given location. When data is
// nil the call falls back to RefreshWorkflow, causing a reload from storage.
func (r *Runtime) UpsertDefinition(ctx context.Context, location string, data []byte) error {
	if r == nil || r.definitions == nil {
		return fmt.Errorf("runtime not fully initialised, definition store missing")
	}
	if data == nil {
		return r.RefreshWorkflow(ctx, location)
	}
	wf, err := r.definitions.DecodeYAML(data)
	if err != nil {
		return fmt.Errorf("failed to decode workflow YAML: %w", err)
	}
	if wf.Source == nil {
		wf.Source = &model.Source{URL: location}
	} else {
		wf.Source.URL = location
	}
	r.definitions.Upsert(wf)
	return nil
}

// Run executes the supplied workflow against the initial payload and blocks
// until the run terminates. The returned record carries the final context
// and history even when the run ends in ERROR.
func (r *Runtime) Run(ctx context.Context, wf *model.Workflow, payload map[string]interface{}) (*execution.Run, error) {
	return r.engine.Run(ctx, wf, payload)
}

// RunLocation loads the definition at the given location and runs it.
func (r *Runtime) RunLocation(ctx context.Context, location string, payload map[string]interface{}) (*execution.Run, error) {
	wf, err := r.LoadWorkflow(ctx, location)
	if err != nil {
		return nil, err
	}
	return r.Run(ctx, wf, payload)
}

// LoadRun returns a stored run record by ID.
func (r *Runtime) LoadRun(ctx context.Context, id string) (*execution.Run, error) {
	return r.runDAO.Load(ctx, id)
}

// Runs lists stored run records, optionally filtered (e.g. by state).
func (r *Runtime) Runs(ctx context.Context, parameters ...*dao.Parameter) ([]*execution.Run, error) {
	return r.runDAO.List(ctx, parameters...)
}
