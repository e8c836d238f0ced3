// Package service intercepts engine check events and hands them to the
// broker, and collects the results that come back.
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"ozzus/check-dispatcher/internal/dispatch"
	"ozzus/check-dispatcher/internal/domain"
	"ozzus/check-dispatcher/internal/engine"
	"ozzus/check-dispatcher/internal/lib/logger/sl"
	"ozzus/check-dispatcher/internal/payload"
	"ozzus/check-dispatcher/internal/routing"
)

// QueueEventHandler receives every event handler, whatever the routing rules.
const QueueEventHandler = routing.QueueService

type Hooks interface {
	Subscribe(t engine.CallbackType, cb engine.Callback)
	Unsubscribe(t engine.CallbackType)
}

type Router interface {
	Resolve(host, service string) domain.TargetDecision
	Validate() []routing.UnknownGroup
}

// HostChecks is the part of the engine a remote host check needs.
type HostChecks interface {
	HostCheckCommand(name string) (string, error)
	HostCheckTimeout(name string) int
	BeginHostCheck(name string) error
}

type Submitter interface {
	Submit(ctx context.Context, job dispatch.Job) error
}

// Subscriptions says which check callbacks get installed.
type Subscriptions struct {
	HostChecks    bool
	ServiceChecks bool
	EventHandlers bool
}

// SubscriptionsFor derives the subscriptions from the routing rules. A host
// group rule routes service checks through their host, so it enables both.
func SubscriptionsFor(rules routing.Rules, eventHandlers bool) Subscriptions {
	hostGroups := len(rules.HostGroups) > 0
	return Subscriptions{
		HostChecks:    hostGroups || rules.Hosts,
		ServiceChecks: hostGroups || len(rules.ServiceGroups) > 0 || rules.Services,
		EventHandlers: eventHandlers,
	}
}

type Options struct {
	Subscriptions Subscriptions
	ResultQueue   string
}

type Deps struct {
	Hooks     Hooks
	Router    Router
	Hosts     HostChecks
	Submitter Submitter
	Pool      *ResultWorkerPool
}

type Interceptor struct {
	opts      Options
	hooks     Hooks
	router    Router
	hosts     HostChecks
	submitter Submitter
	pool      *ResultWorkerPool
	log       *slog.Logger
	now       func() time.Time

	mu         sync.Mutex
	baseCtx    context.Context
	subscribed []engine.CallbackType
	active     bool
}

func NewInterceptor(opts Options, deps Deps, log *slog.Logger) *Interceptor {
	return &Interceptor{
		opts:      opts,
		hooks:     deps.Hooks,
		router:    deps.Router,
		hosts:     deps.Hosts,
		submitter: deps.Submitter,
		pool:      deps.Pool,
		log:       log.With(slog.String("component", "interceptor")),
		now:       time.Now,
	}
}

// Init subscribes to process events only. ctx bounds the result workers
// started later.
func (i *Interceptor) Init(ctx context.Context) {
	i.mu.Lock()
	i.baseCtx = ctx
	i.mu.Unlock()

	i.hooks.Subscribe(engine.CallbackProcess, i.OnProcessEvent)
	i.log.Info("interceptor initialized",
		slog.Bool("host_checks", i.opts.Subscriptions.HostChecks),
		slog.Bool("service_checks", i.opts.Subscriptions.ServiceChecks),
		slog.Bool("eventhandlers", i.opts.Subscriptions.EventHandlers),
	)
}

func (i *Interceptor) OnProcessEvent(_ context.Context, data any) engine.Verdict {
	ev, _ := data.(*engine.ProcessEvent)
	if ev == nil {
		i.log.Error("process event without data")
		return engine.Proceed
	}

	switch ev.Type {
	case engine.ProcessEventLoopStart:
		i.activate()
	case engine.ProcessShutdown:
		i.log.Debug("engine shutting down")
	}
	return engine.Proceed
}

func (i *Interceptor) activate() {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.active {
		return
	}
	i.active = true

	subs := i.opts.Subscriptions
	if subs.HostChecks {
		i.subscribe(engine.CallbackHostCheck, i.HandleHostCheck)
	}
	if subs.ServiceChecks {
		i.subscribe(engine.CallbackServiceCheck, i.HandleServiceCheck)
	}
	if subs.EventHandlers {
		i.subscribe(engine.CallbackEventHandler, i.HandleEventHandler)
	}

	ctx := i.baseCtx
	if ctx == nil {
		ctx = context.Background()
	}
	if i.pool != nil {
		i.pool.Start(ctx)
	}

	i.hooks.Unsubscribe(engine.CallbackProcess)

	for _, u := range i.router.Validate() {
		i.log.Warn("unknown group name in config", slog.String("list", u.List), slog.String("group", u.Name))
	}
}

// subscribe is called with i.mu held.
func (i *Interceptor) subscribe(t engine.CallbackType, cb engine.Callback) {
	i.hooks.Subscribe(t, cb)
	i.subscribed = append(i.subscribed, t)
	i.log.Debug("registered callback", slog.String("callback", string(t)))
}

// Deinit removes exactly the callbacks Init and the event loop start
// installed, then stops and joins the result workers.
func (i *Interceptor) Deinit() {
	i.mu.Lock()
	i.hooks.Unsubscribe(engine.CallbackProcess)
	for _, t := range i.subscribed {
		i.hooks.Unsubscribe(t)
		i.log.Debug("deregistered callback", slog.String("callback", string(t)))
	}
	i.subscribed = nil
	i.active = false
	i.mu.Unlock()

	if i.pool != nil {
		i.pool.Stop()
	}
	i.log.Info("interceptor deinitialized")
}

func (i *Interceptor) Active() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.active
}

func (i *Interceptor) Subscribed() []engine.CallbackType {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]engine.CallbackType(nil), i.subscribed...)
}

func (i *Interceptor) HandleHostCheck(ctx context.Context, data any) engine.Verdict {
	ev, _ := data.(*engine.HostCheckEvent)
	if ev == nil {
		i.log.Error("host check event without data")
		return engine.Abort
	}
	if ev.Type != engine.HostCheckAsyncPrecheck {
		return engine.Proceed
	}

	log := i.log.With(slog.String("host", ev.HostName))

	target := i.router.Resolve(ev.HostName, "")
	if target.IsLocal() {
		log.Debug("host check runs locally")
		return engine.Proceed
	}

	cmd, err := i.hosts.HostCheckCommand(ev.HostName)
	if err != nil || cmd == "" {
		log.Error("could not expand host check command", sl.Err(err))
		return engine.Abort
	}

	timeout := ev.Timeout
	if timeout <= 0 {
		timeout = i.hosts.HostCheckTimeout(ev.HostName)
	}

	req := domain.CheckRequest{
		Kind:        domain.CheckKindHost,
		HostName:    ev.HostName,
		CommandLine: cmd,
		StartTime:   domain.StartTimeOf(i.now()),
		Timeout:     timeout,
	}
	body, err := payload.Encode(req, i.opts.ResultQueue)
	if err != nil {
		log.Error("could not encode host check", sl.Err(err))
		return engine.Abort
	}

	if err := i.hosts.BeginHostCheck(ev.HostName); err != nil {
		log.Error("could not start host check", sl.Err(err))
		return engine.Abort
	}

	i.submit(ctx, log, dispatch.Job{
		Queue:    target.Queue,
		Priority: target.Priority,
		Payload:  body,
		Timeout:  time.Duration(timeout) * time.Second,
	})
	return engine.Override
}

func (i *Interceptor) HandleServiceCheck(ctx context.Context, data any) engine.Verdict {
	ev, _ := data.(*engine.ServiceCheckEvent)
	if ev == nil {
		i.log.Error("service check event without data")
		return engine.Abort
	}
	if ev.Type != engine.ServiceCheckInitiate {
		return engine.Proceed
	}

	log := i.log.With(slog.String("host", ev.HostName), slog.String("service", ev.ServiceDescription))

	target := i.router.Resolve(ev.HostName, ev.ServiceDescription)
	if target.IsLocal() {
		log.Debug("service check runs locally")
		return engine.Proceed
	}

	if ev.CommandLine == "" {
		log.Error("service check without command line")
		return engine.Abort
	}

	start := ev.StartTime
	if start.Sec == 0 {
		start = domain.StartTimeOf(i.now())
	}

	req := domain.CheckRequest{
		Kind:               domain.CheckKindService,
		HostName:           ev.HostName,
		ServiceDescription: ev.ServiceDescription,
		CommandLine:        ev.CommandLine,
		StartTime:          start,
		Timeout:            ev.Timeout,
		CheckOptions:       ev.CheckOptions,
		ScheduledCheck:     ev.ScheduledCheck,
		RescheduleCheck:    ev.RescheduleCheck,
		Latency:            ev.Latency,
	}
	body, err := payload.Encode(req, i.opts.ResultQueue)
	if err != nil {
		log.Error("could not encode service check", sl.Err(err))
		return engine.Abort
	}

	i.submit(ctx, log, dispatch.Job{
		Queue:     target.Queue,
		UniqueKey: req.DedupKey(),
		Priority:  domain.PriorityLow,
		Payload:   body,
		Timeout:   time.Duration(ev.Timeout) * time.Second,
	})
	return engine.Override
}

// HandleEventHandler takes over every starting event handler. Native
// execution is suppressed even when the job could not be submitted.
func (i *Interceptor) HandleEventHandler(ctx context.Context, data any) engine.Verdict {
	ev, _ := data.(*engine.EventHandlerEvent)
	if ev == nil {
		i.log.Error("event handler event without data")
		return engine.Abort
	}
	if ev.Type != engine.EventHandlerStart {
		return engine.Proceed
	}

	log := i.log.With(slog.String("host", ev.HostName))
	if ev.ServiceDescription != "" {
		log = log.With(slog.String("service", ev.ServiceDescription))
	}

	body, err := payload.Encode(domain.CheckRequest{
		Kind:        domain.CheckKindEventHandler,
		HostName:    ev.HostName,
		CommandLine: ev.CommandLine,
		Timeout:     ev.Timeout,
	}, i.opts.ResultQueue)
	if err != nil {
		log.Error("could not encode event handler", sl.Err(err))
		return engine.Override
	}

	i.submit(ctx, log, dispatch.Job{
		Queue:    QueueEventHandler,
		Priority: domain.PriorityNormal,
		Payload:  body,
		Timeout:  time.Duration(ev.Timeout) * time.Second,
	})
	return engine.Override
}

func (i *Interceptor) submit(ctx context.Context, log *slog.Logger, job dispatch.Job) {
	if err := i.submitter.Submit(ctx, job); err != nil {
		log.Error("check dropped", slog.String("queue", job.Queue), sl.Err(err))
		return
	}
	log.Debug("check dispatched", slog.String("queue", job.Queue))
}
