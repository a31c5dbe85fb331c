package sagaflow

import (
	"github.com/flowmesh/sagaflow/extension"
	"github.com/flowmesh/sagaflow/runtime/correlation"
	"github.com/flowmesh/sagaflow/runtime/flow"
	"github.com/flowmesh/sagaflow/service/dispatch"
	"github.com/flowmesh/sagaflow/service/event"
	"github.com/flowmesh/sagaflow/service/messaging"
	"github.com/flowmesh/sagaflow/service/scheduler"
	"github.com/flowmesh/sagaflow/tracing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Option customises the assembled service.
type Option func(s *Service)

// WithTypes sets the shared extension type registry.
func WithTypes(types *extension.Types) Option {
	return func(s *Service) { s.types = types }
}

// WithDispatcher replaces the command bus; the default is the built-in
// registry.
func WithDispatcher(dispatcher dispatch.Service) Option {
	return func(s *Service) { s.dispatcher = dispatcher }
}

// WithSnapshotStore sets the snapshot store backing checkpoints.
func WithSnapshotStore(store flow.Store) Option {
	return func(s *Service) { s.store = store }
}

// WithWaitConditionDAO sets the wait-condition persistence.
func WithWaitConditionDAO(dao correlation.DAO) Option {
	return func(s *Service) { s.waitDAO = dao }
}

// WithScheduler sets the timeout scheduler. A caller-supplied scheduler is
// not stopped by Shutdown.
func WithScheduler(sched *scheduler.Service) Option {
	return func(s *Service) { s.scheduler = sched }
}

// WithQueueVendor selects the queue implementation carrying completion
// events ("memory", "fs").
func WithQueueVendor(vendor messaging.Vendor) Option {
	return func(s *Service) { s.queueVendor = vendor }
}

// WithEventOptions passes options through to the event service.
func WithEventOptions(opts ...event.Option) Option {
	return func(s *Service) { s.eventOpts = append(s.eventOpts, opts...) }
}

// WithTracing configures OpenTelemetry tracing. If outputFile is empty the
// stdout exporter is used; otherwise spans are written to the supplied file
// path. Safe to call more than once, the first successful initialisation
// wins.
func WithTracing(serviceName, serviceVersion, outputFile string) Option {
	return func(s *Service) {
		_ = tracing.Init(serviceName, serviceVersion, outputFile)
	}
}

// WithTracingExporter configures OpenTelemetry tracing with a custom span
// exporter, e.g. OTLP. Safe to call more than once, the first successful
// initialisation wins.
func WithTracingExporter(serviceName, serviceVersion string, exporter sdktrace.SpanExporter) Option {
	return func(s *Service) {
		_ = tracing.InitWithExporter(serviceName, serviceVersion, exporter)
	}
}
