// Package flow provides a declarative workflow orchestrator.
//
// Workflows are defined as an ordered sequence of states (for example in
// YAML) and executed by a state machine engine with pluggable layers:
//
//   - engine    – sequence walking, conditions, retries, safety guards
//   - router    – dispatch seam between the engine and registered executors
//   - event     – typed run lifecycle notifications
//   - dao       – workflow definition loading and run record storage
//
// The orchestrator is designed to be embedded in host applications.
// End-users typically interact with it via the high-level Service façade
// exposed by the root package:
//
//	srv := flow.New()
//	srv.RegisterExecutor(myExecutor)
//	rt := srv.Runtime()
//	wf, _ := rt.LoadWorkflow(ctx, "workflow.yaml")
//	run, _ := rt.Run(ctx, wf, map[string]interface{}{"idea": "meal planner"})
//
// For more details see the README and individual sub-packages.
package flow
