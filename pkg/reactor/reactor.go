package reactor

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fluxorio/reactor/pkg/logging"
)

// Reactor is the facade external code drives: construct one with New,
// Listen/Connect to register sockets, then call Run from the single
// goroutine that will own dispatch for its whole lifetime.
type Reactor struct {
	ctrl   *Control
	ticker *time.Ticker
}

// Option configures a Reactor at construction time.
type Option func(*options)

type options struct {
	notifier Notifier
	mailbox  Mailbox
	registry prometheus.Registerer
	log      logging.Logger
}

// WithNotifier overrides the default goroutine-based Notifier.
func WithNotifier(n Notifier) Option { return func(o *options) { o.notifier = n } }

// WithMailbox sets the sink Out() commands are delivered to.
func WithMailbox(m Mailbox) Option { return func(o *options) { o.mailbox = m } }

// WithMetricsRegistry registers the reactor's Prometheus metrics against
// reg instead of leaving them unregistered.
func WithMetricsRegistry(reg prometheus.Registerer) Option {
	return func(o *options) { o.registry = reg }
}

// WithLogger overrides the default text logger.
func WithLogger(log logging.Logger) Option { return func(o *options) { o.log = log } }

// New constructs a Reactor from cfg. Callers wanting Prometheus metrics
// must pass WithMetricsRegistry; otherwise metrics collection is skipped
// entirely rather than registered against a throwaway registry.
func New(cfg Config, opts ...Option) *Reactor {
	o := &options{}
	for _, apply := range opts {
		apply(o)
	}
	if o.notifier == nil {
		o.notifier = NewGoNotifier(cfg.NotifyQueueDepth)
	}
	if o.log == nil {
		o.log = logging.NewDefault()
	}

	var metrics *Metrics
	if o.registry != nil {
		metrics = NewMetrics(o.registry)
	}

	return &Reactor{
		ctrl:   NewControl(cfg, o.notifier, o.mailbox, metrics, o.log),
		ticker: time.NewTicker(cfg.WheelTick),
	}
}

// Listen binds addr and begins accepting inbound connections, each given a
// fresh Protocol from factory.
func (r *Reactor) Listen(addr string, factory ProtocolFactory) (Token, error) {
	return r.ctrl.Listen(addr, factory)
}

// Connect dials addr asynchronously; its Protocol.OnConnect fires once the
// dial resolves, from inside Run/RunOnce.
func (r *Reactor) Connect(addr string, factory ProtocolFactory) {
	r.ctrl.Connect(addr, factory)
}

// Channel returns the cross-thread NotifyChannel other goroutines use to
// reach into the reactor.
func (r *Reactor) Channel() *NotifyChannel {
	return r.ctrl.NotifyChannel()
}

// Timeout arms a timer on behalf of owner's protocol: after delay its
// OnTimer(id) fires as if the protocol had returned Timer(delay, id)
// itself. Like every control-object method it must run on the dispatch
// goroutine, or before Run starts.
func (r *Reactor) Timeout(owner Token, id TimerId, delay time.Duration) (Token, error) {
	return r.ctrl.Timeout(owner, id, delay)
}

// Control exposes the underlying control object for Mailbox
// implementations and pre-Run setup. Its methods are not safe to call
// concurrently with Run from another goroutine.
func (r *Reactor) Control() *Control {
	return r.ctrl
}

// RunOnce performs exactly one unit of dispatch work and returns false once
// ctx is done.
func (r *Reactor) RunOnce(ctx context.Context) bool {
	return r.ctrl.poll(r.ticker.C, ctx.Done())
}

// Run drives dispatch until ctx is cancelled, then shuts the reactor down.
// It is meant to be called once, from the single goroutine that owns this
// Reactor for its entire lifetime.
func (r *Reactor) Run(ctx context.Context) error {
	for r.RunOnce(ctx) {
	}
	r.Shutdown()
	return ctx.Err()
}

// Shutdown closes every listener and connection and stops the ticker and
// notifier. It is safe to call after Run has already returned.
func (r *Reactor) Shutdown() {
	r.ticker.Stop()
	r.ctrl.Shutdown()
}
