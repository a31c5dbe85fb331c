package sagaflow

import (
	"context"
	"errors"
	"log"
	"reflect"

	"github.com/viant/x"

	"github.com/flowmesh/sagaflow/extension"
	"github.com/flowmesh/sagaflow/model/state"
	"github.com/flowmesh/sagaflow/runtime/correlation"
	"github.com/flowmesh/sagaflow/runtime/flow"
	"github.com/flowmesh/sagaflow/service/dao/snapshot"
	"github.com/flowmesh/sagaflow/service/dao/snapshot/memory"
	"github.com/flowmesh/sagaflow/service/dispatch"
	"github.com/flowmesh/sagaflow/service/event"
	"github.com/flowmesh/sagaflow/service/messaging"
	"github.com/flowmesh/sagaflow/service/scheduler"
)

// completionEventType labels child-completion events on the wire.
const completionEventType = "flow.completion"

// Service is the assembled engine: the dispatch registry, the snapshot
// store, the wait-condition coordinator and the flow coordinator wired
// together, with child completions travelling through the event service.
type Service struct {
	types       *extension.Types
	registry    *dispatch.Registry
	dispatcher  dispatch.Service
	store       flow.Store
	waitDAO     correlation.DAO
	scheduler   *scheduler.Service
	queueVendor messaging.Vendor
	eventOpts   []event.Option

	codec  *snapshot.Codec
	events *event.Service
	waits  *correlation.Coordinator
	flows  *flow.Coordinator

	ownedScheduler bool
}

// New assembles a service from the reference implementations, each
// replaceable through options.
func New(options ...Option) (*Service, error) {
	ret := &Service{}
	if err := ret.init(options); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *Service) init(options []Option) error {
	for _, option := range options {
		option(s)
	}
	s.ensureBaseSetup()

	var err error
	if s.events, err = event.New(s.queueVendor, s.eventOpts...); err != nil {
		return s.abortInit(err)
	}

	s.waits = correlation.New(s.waitDAO, s.scheduler,
		correlation.WithCancelChildFunc(func(ctx context.Context, childFlowID string) {
			if s.flows != nil {
				s.flows.CancelFlow(ctx, childFlowID)
			}
		}))

	publisher, err := event.PublisherOf[correlation.Completion](s.events)
	if err != nil {
		return s.abortInit(err)
	}
	err = event.SetListenerOf[correlation.Completion](s.events, func(e *event.Event[correlation.Completion]) {
		completion := e.Data
		err := s.waits.HandleCompletion(context.Background(), &completion)
		if err != nil && !errors.Is(err, correlation.ErrNotFound) {
			log.Printf("sagaflow: completion for %v: %v", completion.FlowID, err)
		}
	})
	if err != nil {
		return s.abortInit(err)
	}

	s.flows = flow.New(s.dispatcher,
		flow.WithStore(s.store),
		flow.WithWaitCoordinator(s.waits),
		flow.WithCompletionSink(func(ctx context.Context, completion *correlation.Completion) error {
			return publisher.Publish(ctx, event.NewEvent(&event.Context{
				FlowID:        completion.FlowID,
				CorrelationID: completion.ParentCorrelationID,
				EventType:     completionEventType,
			}, *completion))
		}))
	return nil
}

// abortInit releases everything a failed init already acquired.
func (s *Service) abortInit(err error) error {
	if s.events != nil {
		s.events.Shutdown()
	}
	if s.ownedScheduler {
		s.scheduler.Stop()
	}
	return err
}

func (s *Service) ensureBaseSetup() {
	if s.types == nil {
		s.types = extension.NewTypes()
	}
	s.codec = snapshot.NewCodec(s.types)
	if s.registry == nil {
		s.registry = dispatch.NewRegistry(s.types)
	}
	if s.dispatcher == nil {
		s.dispatcher = s.registry
	}
	if s.store == nil {
		s.store = memory.New(memory.WithCodec(s.codec))
	}
	if s.waitDAO == nil {
		s.waitDAO = correlation.NewMemoryDAO()
	}
	if s.scheduler == nil {
		s.scheduler = scheduler.Default()
		s.ownedScheduler = true
	}
	if s.queueVendor == "" {
		s.queueVendor = messaging.VendorMemory
	}
}

// RegisterHandler binds a named command handler; raw map inputs are coerced
// into inputType before the handler runs.
func (s *Service) RegisterHandler(name string, inputType reflect.Type, handler dispatch.Handler) {
	s.registry.Register(name, inputType, handler)
}

// RegisterStateType adds a flow state type to the shared registry so
// serialized snapshots can be rehydrated by name.
func (s *Service) RegisterStateType(rType reflect.Type, options ...x.Option) {
	s.types.Register(x.NewType(rType, options...))
}

// RehydrateState rebuilds a registered state type from its raw serialized
// form, typically a decoded map loaded from a durable snapshot backend.
func (s *Service) RehydrateState(typeName string, raw interface{}) (state.State, error) {
	return s.codec.Rehydrate(typeName, raw)
}

// Run executes a flow body as a saga, see flow.Coordinator.Run.
func (s *Service) Run(ctx context.Context, name string, body flow.Body, opts ...flow.BeginOption) *flow.Outcome {
	return s.flows.Run(ctx, name, body, opts...)
}

// Begin creates a flow instance without running it, see
// flow.Coordinator.Begin.
func (s *Service) Begin(ctx context.Context, name string, opts ...flow.BeginOption) (*flow.Flow, error) {
	return s.flows.Begin(ctx, name, opts...)
}

// Flows exposes the flow coordinator.
func (s *Service) Flows() *flow.Coordinator { return s.flows }

// Waits exposes the wait-condition coordinator.
func (s *Service) Waits() *correlation.Coordinator { return s.waits }

// Events exposes the event service, for attaching extra listeners.
func (s *Service) Events() *event.Service { return s.events }

// Store exposes the snapshot store.
func (s *Service) Store() flow.Store { return s.store }

// Shutdown stops the event listeners and, when the service owns it, the
// scheduler. Running flows are not interrupted.
func (s *Service) Shutdown() {
	s.events.Shutdown()
	if s.ownedScheduler {
		s.scheduler.Stop()
	}
}
