package flow

import (
	"github.com/viant/afs/storage"
	"github.com/viant/x"
	"github.com/zerotoship/flow/extension"
	"github.com/zerotoship/flow/policy"
	"github.com/zerotoship/flow/runtime/execution"
	"github.com/zerotoship/flow/service/dao"
	"github.com/zerotoship/flow/service/dao/workflow"
	"github.com/zerotoship/flow/service/event"
	"github.com/zerotoship/flow/service/router"
	"github.com/zerotoship/flow/tracing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Option customises the orchestrator service.
type Option func(s *Service)

// WithConfig sets the declarative configuration.
func WithConfig(config *Config) Option {
	return func(s *Service) {
		s.config = config
	}
}

// WithExecutors sets a pre-populated executor registry.
func WithExecutors(executors *extension.Executors) Option {
	return func(s *Service) {
		s.executors = executors
	}
}

// WithExtensionTypes sets the extension types
func WithExtensionTypes(goTypes ...*x.Type) Option {
	return func(s *Service) {
		s.extensionTypes = goTypes
	}
}

// WithEventService sets the event service run notifications are published to.
func WithEventService(service *event.Service) Option {
	return func(s *Service) {
		s.eventService = service
	}
}

// WithDefinitions sets the workflow definition store.
func WithDefinitions(service *workflow.Service) Option {
	return func(s *Service) {
		s.definitions = service
	}
}

// WithRunDAO sets the store finished run records are saved to.
func WithRunDAO(store dao.Service[string, execution.Run]) Option {
	return func(s *Service) {
		s.runDAO = store
	}
}

// WithPolicy sets the default guard policy applied to every run that does
// not carry its own.
func WithPolicy(p *policy.Policy) Option {
	return func(s *Service) {
		s.defaultPolicy = p
	}
}

// WithRouterOptions forwards options to the dispatch router (e.g. a
// completion listener).
func WithRouterOptions(opts ...router.Option) Option {
	return func(s *Service) {
		s.routerOptions = append(s.routerOptions, opts...)
	}
}

// WithMetaBaseURL sets the base URL workflow locations resolve against.
func WithMetaBaseURL(url string) Option {
	return func(s *Service) {
		s.metaBaseURL = url
	}
}

// WithMetaFsOptions sets the storage options used when loading definitions
// (e.g. an embedded file system).
func WithMetaFsOptions(options ...storage.Option) Option {
	return func(s *Service) {
		s.metaFsOptions = options
	}
}

// WithTracing configures OpenTelemetry tracing for the service. If
// outputFile is empty the stdout exporter is used; otherwise traces are
// written to the supplied file path. The function is safe to call multiple
// times; the first successful initialisation wins.
func WithTracing(serviceName, serviceVersion, outputFile string) Option {
	return func(s *Service) {
		_ = tracing.Init(serviceName, serviceVersion, outputFile)
	}
}

// WithTracingExporter configures OpenTelemetry tracing using a custom
// SpanExporter. This enables integrations with exporters other than the
// built-in stdout exporter, for example OTLP, Jaeger or Zipkin.
func WithTracingExporter(serviceName, serviceVersion string, exporter sdktrace.SpanExporter) Option {
	return func(s *Service) {
		_ = tracing.InitWithExporter(serviceName, serviceVersion, exporter)
	}
}
