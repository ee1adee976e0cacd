// Package orchestrator owns the route optimization request lifecycle:
// validate form fields, resolve ports against the waypoint catalog, call
// the optimization service and expose the outcome as a State.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"aicaptain/internal/catalog"
	"aicaptain/internal/events"
	"aicaptain/internal/metrics"
	"aicaptain/internal/model"
	"aicaptain/internal/store"
	"aicaptain/internal/transport"
)

// Sender performs the optimization call; *transport.Client satisfies it.
type Sender interface {
	Optimize(ctx context.Context, req model.OptimizationRequest) (model.OptimizedRoute, error)
}

// WaypointLoader supplies the catalog; *catalog.Loader satisfies it.
type WaypointLoader interface {
	Load(ctx context.Context) []model.Waypoint
}

const reasonUnknownPort = "unknown port"

// Orchestrator allows at most one outstanding optimization call.
type Orchestrator struct {
	id      string
	sender  Sender
	loader  WaypointLoader
	bus     events.Bus
	history store.RouteHistory
	log     *zap.Logger

	initOnce sync.Once
	wg       sync.WaitGroup
	pubMu    sync.Mutex

	mu      sync.Mutex
	phase   Phase
	gen     uint64
	route   *model.OptimizedRoute
	failure *Failure
	catalog *catalog.Catalog
	outbox  []State
}

type Option func(*Orchestrator)

// WithID names the orchestrator; it is the event topic for its state changes.
func WithID(id string) Option { return func(o *Orchestrator) { o.id = id } }

func WithEvents(bus events.Bus) Option { return func(o *Orchestrator) { o.bus = bus } }

// WithHistory records every successful route.
func WithHistory(h store.RouteHistory) Option { return func(o *Orchestrator) { o.history = h } }

func WithLogger(l *zap.Logger) Option { return func(o *Orchestrator) { o.log = l } }

func New(sender Sender, loader WaypointLoader, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		id:      "default",
		sender:  sender,
		loader:  loader,
		log:     zap.NewNop(),
		catalog: catalog.New(nil),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.log = o.log.With(zap.String("orchestrator", o.id))
	return o
}

func (o *Orchestrator) ID() string { return o.id }

// Init loads the waypoint catalog. Only the first call fetches; the
// catalog is read-only afterwards.
func (o *Orchestrator) Init(ctx context.Context) {
	o.initOnce.Do(func() { o.ReloadCatalog(ctx) })
}

// ReloadCatalog replaces the catalog with a fresh load. It is the manual
// refresh path; nothing calls it implicitly.
func (o *Orchestrator) ReloadCatalog(ctx context.Context) {
	var wps []model.Waypoint
	if o.loader != nil {
		wps = o.loader.Load(ctx)
	}
	c := catalog.New(wps)
	o.mu.Lock()
	o.catalog = c
	o.mu.Unlock()
	o.log.Info("waypoint catalog loaded", zap.Int("waypoints", c.Len()))
}

// Catalog returns the loaded waypoint catalog.
func (o *Orchestrator) Catalog() *catalog.Catalog {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.catalog
}

// Snapshot returns the current state.
func (o *Orchestrator) Snapshot() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

func (o *Orchestrator) snapshotLocked() State {
	s := State{ID: o.id, Phase: o.phase, Generation: o.gen}
	if o.route != nil {
		r := *o.route
		s.Route = &r
	}
	if o.failure != nil {
		f := *o.failure
		s.Error = &f
	}
	return s
}

// Submit runs one optimization from raw form fields and blocks until the
// outcome is applied. It returns nil on success, ErrSubmissionInFlight
// when a call is already outstanding, a *model.ValidationError for bad
// input, a *model.APIError for service failures and ErrAbandoned when
// Abandon ran while the call was in flight.
func (o *Orchestrator) Submit(ctx context.Context, fields map[string]string) error {
	req, gen, err := o.begin(fields)
	o.flush()
	if err != nil {
		return err
	}
	return o.finish(ctx, req, gen)
}

// Start validates synchronously like Submit but performs the service call
// in the background, returning the Loading snapshot. The call outlives
// ctx cancellation; use Abandon to drop interest in it.
func (o *Orchestrator) Start(ctx context.Context, fields map[string]string) (State, error) {
	req, gen, err := o.begin(fields)
	o.flush()
	if err != nil {
		return o.Snapshot(), err
	}
	st := o.Snapshot()
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		_ = o.finish(context.WithoutCancel(ctx), req, gen)
	}()
	return st, nil
}

// Wait blocks until every call started with Start has been applied or
// discarded.
func (o *Orchestrator) Wait() { o.wg.Wait() }

// begin takes the orchestrator from any resting phase to Loading, or to
// Error when the fields do not validate.
func (o *Orchestrator) begin(fields map[string]string) (model.OptimizationRequest, uint64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.phase == PhaseLoading {
		metrics.Optimizations.WithLabelValues("rejected").Inc()
		return model.OptimizationRequest{}, 0, ErrSubmissionInFlight
	}
	o.gen++
	o.route, o.failure = nil, nil
	if err := o.transitionLocked(PhaseValidating); err != nil {
		return model.OptimizationRequest{}, 0, err
	}

	req, err := o.validateLocked(fields)
	if err != nil {
		var ve *model.ValidationError
		errors.As(err, &ve)
		o.failure = invalidInput(ve)
		_ = o.transitionLocked(PhaseError)
		metrics.Optimizations.WithLabelValues(string(KindInvalidInput)).Inc()
		o.log.Debug("submission rejected", zap.String("field", ve.Field), zap.String("reason", ve.Reason))
		return model.OptimizationRequest{}, 0, err
	}
	if err := o.transitionLocked(PhaseLoading); err != nil {
		return model.OptimizationRequest{}, 0, err
	}
	return req, o.gen, nil
}

// finish performs the call for generation gen and applies its outcome
// unless the generation moved on in the meantime.
func (o *Orchestrator) finish(ctx context.Context, req model.OptimizationRequest, gen uint64) error {
	route, callErr := o.sender.Optimize(ctx, req)

	o.mu.Lock()
	if o.gen != gen || o.phase != PhaseLoading {
		o.mu.Unlock()
		metrics.Optimizations.WithLabelValues("abandoned").Inc()
		o.log.Debug("discarding late optimization result", zap.Uint64("generation", gen))
		return ErrAbandoned
	}
	if callErr != nil {
		apiErr := transport.NormalizeError(callErr)
		o.failure = fromAPIError(apiErr)
		kind := o.failure.Kind
		_ = o.transitionLocked(PhaseError)
		o.mu.Unlock()
		o.flush()
		metrics.Optimizations.WithLabelValues(string(kind)).Inc()
		o.log.Warn("route optimization failed",
			zap.Int("status", apiErr.Status),
			zap.String("message", apiErr.Message),
			zap.String("start", req.StartPortID),
			zap.String("end", req.EndPortID))
		return apiErr
	}
	o.route = &route
	_ = o.transitionLocked(PhaseSuccess)
	o.mu.Unlock()
	o.flush()

	metrics.Optimizations.WithLabelValues("success").Inc()
	o.log.Info("route optimized",
		zap.String("start", req.StartPortID),
		zap.String("end", req.EndPortID),
		zap.Int("waypoints", len(route.Waypoints)),
		zap.Float64("distance_nm", route.Metrics.DistanceNM))
	o.record(ctx, req, route)
	return nil
}

// validateLocked builds the request and resolves both port ids against
// the catalog. Start and end may be the same port.
func (o *Orchestrator) validateLocked(fields map[string]string) (model.OptimizationRequest, error) {
	req, err := model.BuildRequest(fields)
	if err != nil {
		return model.OptimizationRequest{}, err
	}
	if _, ok := o.catalog.Lookup(req.StartPortID); !ok {
		return model.OptimizationRequest{}, &model.ValidationError{Field: model.FieldStartPort, Reason: reasonUnknownPort}
	}
	if _, ok := o.catalog.Lookup(req.EndPortID); !ok {
		return model.OptimizationRequest{}, &model.ValidationError{Field: model.FieldEndPort, Reason: reasonUnknownPort}
	}
	return req, nil
}

// Abandon drops interest in the current outcome and returns to Idle. A
// response still in flight is discarded when it arrives. It also dismisses
// a displayed error or result.
func (o *Orchestrator) Abandon() {
	o.mu.Lock()
	if o.phase == PhaseIdle {
		o.mu.Unlock()
		return
	}
	o.gen++
	o.route, o.failure = nil, nil
	_ = o.transitionLocked(PhaseIdle)
	o.mu.Unlock()
	o.flush()
}

// transitionLocked moves to the next phase and queues the new state for
// publication. Callers hold o.mu and call flush after releasing it.
func (o *Orchestrator) transitionLocked(to Phase) error {
	if !canTransition(o.phase, to) {
		o.log.Error("illegal transition", zap.Stringer("from", o.phase), zap.Stringer("to", to))
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, o.phase, to)
	}
	o.phase = to
	if o.bus != nil {
		o.outbox = append(o.outbox, o.snapshotLocked())
	}
	return nil
}

// flush publishes queued states in transition order. Publishing may block
// on the network, so it runs without o.mu; pubMu admits one drainer at a
// time so events never overtake each other.
func (o *Orchestrator) flush() {
	if o.bus == nil {
		return
	}
	o.pubMu.Lock()
	defer o.pubMu.Unlock()
	for {
		o.mu.Lock()
		pending := o.outbox
		o.outbox = nil
		o.mu.Unlock()
		if len(pending) == 0 {
			return
		}
		for _, st := range pending {
			o.bus.Publish(o.id, events.Event{
				Type: events.TypeStateChanged,
				Data: map[string]any{"state": st},
			})
		}
	}
}

func (o *Orchestrator) record(ctx context.Context, req model.OptimizationRequest, route model.OptimizedRoute) {
	if o.history == nil {
		return
	}
	if _, err := o.history.Add(context.WithoutCancel(ctx), store.NewRecord(req, route)); err != nil {
		o.log.Error("route history write failed", zap.Error(err))
	}
}
