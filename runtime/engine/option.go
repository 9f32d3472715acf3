package engine

import (
	"github.com/zerotoship/flow/policy"
	"github.com/zerotoship/flow/runtime/execution"
	"github.com/zerotoship/flow/service/dao"
	"github.com/zerotoship/flow/service/dao/workflow"
	"github.com/zerotoship/flow/service/event"
)

// Option customises the engine service.
type Option func(*Service)

// WithWorkflows attaches the definition store used to resolve escalation
// targets by name. Without it only the active workflow can be escalated to.
func WithWorkflows(workflows *workflow.Service) Option {
	return func(s *Service) {
		s.workflows = workflows
	}
}

// WithPolicy sets the default guard policy. A policy embedded in the run
// context still takes precedence.
func WithPolicy(p *policy.Policy) Option {
	return func(s *Service) {
		s.policy = p
	}
}

// WithEvents attaches the event service run notifications are published to.
func WithEvents(events *event.Service) Option {
	return func(s *Service) {
		s.events = events
	}
}

// WithSnapshots attaches the store every finished run record is saved to.
func WithSnapshots(snapshots dao.Service[string, execution.Run]) Option {
	return func(s *Service) {
		s.snapshots = snapshots
	}
}
