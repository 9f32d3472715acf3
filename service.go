package flow

import (
	"log"

	"github.com/viant/afs/storage"
	"github.com/viant/x"
	"github.com/zerotoship/flow/extension"
	"github.com/zerotoship/flow/model/types"
	"github.com/zerotoship/flow/policy"
	"github.com/zerotoship/flow/runtime/engine"
	"github.com/zerotoship/flow/runtime/execution"
	"github.com/zerotoship/flow/service/dao"
	runfs "github.com/zerotoship/flow/service/dao/run/fs"
	runmemory "github.com/zerotoship/flow/service/dao/run/memory"
	"github.com/zerotoship/flow/service/dao/workflow"
	"github.com/zerotoship/flow/service/event"
	"github.com/zerotoship/flow/service/executor/nop"
	"github.com/zerotoship/flow/service/executor/printer"
	"github.com/zerotoship/flow/service/router"
)

// Service is the orchestrator façade. It wires the definition store, the
// executor registry, the dispatch router and the engine together and hands
// out a Runtime for starting runs.
type Service struct {
	runtime        *Runtime
	config         *Config
	executors      *extension.Executors
	extensionTypes []*x.Type
	definitions    *workflow.Service
	eventService   *event.Service
	runDAO         dao.Service[string, execution.Run]
	defaultPolicy  *policy.Policy
	routerOptions  []router.Option
	metaBaseURL    string
	metaFsOptions  []storage.Option
}

func (s *Service) init(options []Option) {
	for _, option := range options {
		option(s)
	}
	s.ensureBaseSetup()
	s.executors.Register(nop.New())
	s.executors.Register(printer.New())

	dispatcher := router.New(s.executors, s.routerOptions...)
	s.runtime.definitions = s.definitions
	s.runtime.runDAO = s.runDAO
	s.runtime.engine = engine.New(dispatcher,
		engine.WithWorkflows(s.definitions),
		engine.WithPolicy(s.defaultPolicy),
		engine.WithEvents(s.eventService),
		engine.WithSnapshots(s.runDAO))
}

func (s *Service) ensureBaseSetup() {
	if s.config == nil {
		s.config = DefaultConfig()
	}
	if err := s.config.Validate(); err != nil {
		log.Printf("invalid configuration, falling back to defaults: %v", err)
		s.config = DefaultConfig()
	}
	if s.executors == nil {
		s.executors = extension.NewExecutors(s.extensionTypes...)
	}
	if s.definitions == nil {
		var opts []workflow.Option
		if s.metaBaseURL != "" {
			opts = append(opts, workflow.WithBaseURL(s.metaBaseURL))
		}
		if len(s.metaFsOptions) > 0 {
			opts = append(opts, workflow.WithFsOptions(s.metaFsOptions...))
		}
		s.definitions = workflow.New(opts...)
	}
	if s.eventService == nil {
		s.eventService = event.New()
	}
	if s.defaultPolicy == nil {
		if s.defaultPolicy = policy.FromConfig(s.config.Policy); s.defaultPolicy == nil {
			s.defaultPolicy = policy.New()
		}
	}
	if s.runDAO == nil {
		if baseURL := s.config.Snapshots.BaseURL; baseURL != "" {
			store, err := runfs.New(baseURL)
			if err == nil {
				s.runDAO = store
			} else {
				log.Printf("failed to open run store at %v, keeping records in memory: %v", baseURL, err)
			}
		}
		if s.runDAO == nil {
			s.runDAO = runmemory.New()
		}
	}
}

// RegisterExecutor adds an executor to the registry, replacing any previous
// registration under the same name.
func (s *Service) RegisterExecutor(executor types.Executor) {
	s.executors.Register(executor)
}

// RegisterExtensionTypes registers Go types executors may produce as typed
// output.
func (s *Service) RegisterExtensionTypes(goTypes ...*x.Type) {
	for i := range goTypes {
		s.executors.Types().Register(goTypes[i])
	}
}

// Runtime returns the run-facing API of the orchestrator.
func (s *Service) Runtime() *Runtime {
	return s.runtime
}

// Events exposes the event service so callers can attach listeners.
func (s *Service) Events() *event.Service {
	return s.eventService
}

// New creates a fully wired orchestrator service.
func New(options ...Option) *Service {
	ret := &Service{runtime: &Runtime{}}
	ret.init(options)
	return ret
}
