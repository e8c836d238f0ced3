package service_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ozzus/check-dispatcher/internal/dispatch"
	"ozzus/check-dispatcher/internal/domain"
	"ozzus/check-dispatcher/internal/engine"
	"ozzus/check-dispatcher/internal/routing"
	"ozzus/check-dispatcher/internal/service"
)

type recordingSubmitter struct {
	mu   sync.Mutex
	jobs []dispatch.Job
}

func (s *recordingSubmitter) Submit(_ context.Context, job dispatch.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job)
	return nil
}

func (s *recordingSubmitter) all() []dispatch.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]dispatch.Job(nil), s.jobs...)
}

func testObjects() engine.Objects {
	return engine.Objects{
		Macros: map[string]string{"USER1": "/usr/lib/nagios/plugins"},
		Commands: []engine.Command{
			{Name: "check-host-alive", Line: "$USER1$/check_ping -H $HOSTADDRESS$ -w $ARG1$"},
		},
		Hosts: []engine.Host{
			{Name: "web1", Address: "10.0.0.1", CheckCommand: "check-host-alive!100", HostGroups: []string{"dc-east", "dc-west"}},
			{Name: "web2", Address: "10.0.0.2", CheckCommand: "check-host-alive!100", HostGroups: []string{"dc-west"}},
			{Name: "bare"},
		},
		Services: []engine.Service{
			{HostName: "web1", Description: "http"},
			{HostName: "web2", Description: "http"},
		},
	}
}

type fixture struct {
	hooks     *engine.Hooks
	registry  *engine.Registry
	submitter *recordingSubmitter
	ic        *service.Interceptor
}

func newFixture(t *testing.T, rules routing.Rules, eventHandlers bool) *fixture {
	t.Helper()

	registry, err := engine.NewRegistry(testObjects())
	require.NoError(t, err)

	f := &fixture{
		hooks:     engine.NewHooks(),
		registry:  registry,
		submitter: &recordingSubmitter{},
	}
	f.ic = service.NewInterceptor(service.Options{
		Subscriptions: service.SubscriptionsFor(rules, eventHandlers),
		ResultQueue:   "check_results",
	}, service.Deps{
		Hooks:     f.hooks,
		Router:    routing.NewResolver(rules, registry, discardLogger()),
		Hosts:     registry,
		Submitter: f.submitter,
	}, discardLogger())
	return f
}

func (f *fixture) start(ctx context.Context) {
	f.ic.Init(ctx)
	f.hooks.Emit(ctx, engine.CallbackProcess, &engine.ProcessEvent{Type: engine.ProcessEventLoopStart})
}

func TestSubscriptionsFor(t *testing.T) {
	tests := []struct {
		name          string
		rules         routing.Rules
		eventHandlers bool
		want          service.Subscriptions
	}{
		{name: "nothing", want: service.Subscriptions{}},
		{name: "general hosts", rules: routing.Rules{Hosts: true}, want: service.Subscriptions{HostChecks: true}},
		{name: "general services", rules: routing.Rules{Services: true}, want: service.Subscriptions{ServiceChecks: true}},
		{name: "servicegroup", rules: routing.Rules{ServiceGroups: []string{"sg"}}, want: service.Subscriptions{ServiceChecks: true}},
		{
			name:  "hostgroup routes service checks too",
			rules: routing.Rules{HostGroups: []string{"hg"}},
			want:  service.Subscriptions{HostChecks: true, ServiceChecks: true},
		},
		{name: "local groups alone", rules: routing.Rules{LocalHostGroups: []string{"hg"}}, want: service.Subscriptions{}},
		{name: "eventhandlers", eventHandlers: true, want: service.Subscriptions{EventHandlers: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, service.SubscriptionsFor(tt.rules, tt.eventHandlers))
		})
	}
}

func TestLifecycle(t *testing.T) {
	f := newFixture(t, routing.Rules{HostGroups: []string{"dc-west", "nowhere"}}, false)
	ctx := context.Background()

	f.ic.Init(ctx)
	assert.True(t, f.hooks.Subscribed(engine.CallbackProcess))
	assert.False(t, f.hooks.Subscribed(engine.CallbackHostCheck))
	assert.False(t, f.ic.Active())

	f.hooks.Emit(ctx, engine.CallbackProcess, &engine.ProcessEvent{Type: engine.ProcessEventLoopStart})

	assert.True(t, f.ic.Active())
	assert.False(t, f.hooks.Subscribed(engine.CallbackProcess))
	assert.True(t, f.hooks.Subscribed(engine.CallbackHostCheck))
	assert.True(t, f.hooks.Subscribed(engine.CallbackServiceCheck))
	assert.False(t, f.hooks.Subscribed(engine.CallbackEventHandler))
	assert.ElementsMatch(t, []engine.CallbackType{engine.CallbackHostCheck, engine.CallbackServiceCheck}, f.ic.Subscribed())

	// a user-installed callback survives deinit
	f.hooks.Subscribe(engine.CallbackEventHandler, func(context.Context, any) engine.Verdict { return engine.Proceed })

	f.ic.Deinit()

	assert.False(t, f.hooks.Subscribed(engine.CallbackHostCheck))
	assert.False(t, f.hooks.Subscribed(engine.CallbackServiceCheck))
	assert.True(t, f.hooks.Subscribed(engine.CallbackEventHandler))
	assert.Empty(t, f.ic.Subscribed())
}

func TestLifecycleJoinsResultWorkers(t *testing.T) {
	registry, err := engine.NewRegistry(testObjects())
	require.NoError(t, err)

	src := newSources()
	pool := service.NewResultWorkerPool(3, src.factory, &recordingSink{}, discardLogger())
	hooks := engine.NewHooks()
	rules := routing.Rules{Hosts: true}

	ic := service.NewInterceptor(service.Options{
		Subscriptions: service.SubscriptionsFor(rules, true),
		ResultQueue:   "check_results",
	}, service.Deps{
		Hooks:     hooks,
		Router:    routing.NewResolver(rules, registry, discardLogger()),
		Hosts:     registry,
		Submitter: &recordingSubmitter{},
		Pool:      pool,
	}, discardLogger())

	ctx := context.Background()
	ic.Init(ctx)
	hooks.Emit(ctx, engine.CallbackProcess, &engine.ProcessEvent{Type: engine.ProcessEventLoopStart})

	require.Eventually(t, func() bool { return pool.Stats().Running == 3 }, time.Second, 5*time.Millisecond)

	ic.Deinit()

	assert.Equal(t, 0, pool.Stats().Running)
	assert.Equal(t, int32(3), src.closed.Load())
}

func TestHostCheckLocalHostgroup(t *testing.T) {
	f := newFixture(t, routing.Rules{LocalHostGroups: []string{"dc-east"}, HostGroups: []string{"dc-west"}}, false)
	ctx := context.Background()
	f.start(ctx)

	v := f.hooks.Emit(ctx, engine.CallbackHostCheck, &engine.HostCheckEvent{Type: engine.HostCheckAsyncPrecheck, HostName: "web1"})

	assert.Equal(t, engine.Proceed, v)
	assert.Empty(t, f.submitter.all())
	st, _ := f.registry.HostState("web1")
	assert.False(t, st.IsExecuting)
}

func TestHostCheckRemoteHostgroup(t *testing.T) {
	f := newFixture(t, routing.Rules{HostGroups: []string{"dc-west"}}, false)
	ctx := context.Background()
	f.start(ctx)

	v := f.hooks.Emit(ctx, engine.CallbackHostCheck, &engine.HostCheckEvent{Type: engine.HostCheckAsyncPrecheck, HostName: "web1", Timeout: 30})
	require.Equal(t, engine.Override, v)

	jobs := f.submitter.all()
	require.Len(t, jobs, 1)
	job := jobs[0]
	assert.Equal(t, "hostgroup_dc-west", job.Queue)
	assert.Equal(t, domain.PriorityNormal, job.Priority)
	assert.Empty(t, job.UniqueKey)
	assert.Equal(t, 30*time.Second, job.Timeout)

	body := string(job.Payload)
	assert.True(t, strings.HasPrefix(body, "type=host\nresult_queue=check_results\nhost_name=web1\nstart_time="), body)
	assert.Contains(t, body, "\ntimeout=30\n")
	assert.True(t, strings.HasSuffix(body, "command_line=/usr/lib/nagios/plugins/check_ping -H 10.0.0.1 -w 100\n"), body)

	st, ok := f.registry.HostState("web1")
	require.True(t, ok)
	assert.True(t, st.IsExecuting)
	assert.Equal(t, 1, f.registry.RunningHostChecks())
}

func TestHostCheckDefaultTimeout(t *testing.T) {
	f := newFixture(t, routing.Rules{Hosts: true}, false)
	ctx := context.Background()
	f.start(ctx)

	v := f.hooks.Emit(ctx, engine.CallbackHostCheck, &engine.HostCheckEvent{Type: engine.HostCheckAsyncPrecheck, HostName: "web2"})
	require.Equal(t, engine.Override, v)

	jobs := f.submitter.all()
	require.Len(t, jobs, 1)
	assert.Equal(t, routing.QueueHost, jobs[0].Queue)
	assert.Contains(t, string(jobs[0].Payload), "\ntimeout=60\n")
	assert.Equal(t, time.Minute, jobs[0].Timeout)
}

func TestHostCheckGuards(t *testing.T) {
	f := newFixture(t, routing.Rules{Hosts: true}, false)
	ctx := context.Background()
	f.start(ctx)

	assert.Equal(t, engine.Abort, f.ic.HandleHostCheck(ctx, nil))
	assert.Equal(t, engine.Abort, f.ic.HandleHostCheck(ctx, (*engine.HostCheckEvent)(nil)))
	assert.Equal(t, engine.Proceed, f.ic.HandleHostCheck(ctx, &engine.HostCheckEvent{Type: engine.HostCheckSyncPrecheck, HostName: "web1"}))

	// no check command to expand
	assert.Equal(t, engine.Abort, f.ic.HandleHostCheck(ctx, &engine.HostCheckEvent{Type: engine.HostCheckAsyncPrecheck, HostName: "bare"}))
	st, _ := f.registry.HostState("bare")
	assert.False(t, st.IsExecuting)

	assert.Empty(t, f.submitter.all())
}

func TestServiceCheckGeneralServices(t *testing.T) {
	f := newFixture(t, routing.Rules{Services: true}, false)
	ctx := context.Background()
	f.start(ctx)

	v := f.hooks.Emit(ctx, engine.CallbackServiceCheck, &engine.ServiceCheckEvent{
		Type:               engine.ServiceCheckInitiate,
		HostName:           "web1",
		ServiceDescription: "http",
		CommandLine:        "/usr/lib/nagios/plugins/check_http -H 10.0.0.1",
		StartTime:          domain.StartTime{Sec: 1700000000, Usec: 5},
		Timeout:            60,
		ScheduledCheck:     true,
		Latency:            0.5,
	})
	require.Equal(t, engine.Override, v)

	jobs := f.submitter.all()
	require.Len(t, jobs, 1)
	job := jobs[0]
	assert.Equal(t, routing.QueueService, job.Queue)
	assert.Equal(t, domain.PriorityLow, job.Priority)
	assert.Equal(t, "web1-http", job.UniqueKey)
	assert.Equal(t, time.Minute, job.Timeout)
	assert.Equal(t,
		"type=service\nresult_queue=check_results\nhost_name=web1\nservice_description=http\n"+
			"start_time=1700000000.5\ntimeout=60\ncheck_options=0\nscheduled_check=1\nreschedule_check=0\n"+
			"latency=0.500000\ncommand_line=/usr/lib/nagios/plugins/check_http -H 10.0.0.1\n",
		string(job.Payload))
}

func TestServiceCheckViaHostgroupIsLowPriority(t *testing.T) {
	f := newFixture(t, routing.Rules{HostGroups: []string{"dc-west"}}, false)
	ctx := context.Background()
	f.start(ctx)

	v := f.hooks.Emit(ctx, engine.CallbackServiceCheck, &engine.ServiceCheckEvent{
		Type:               engine.ServiceCheckInitiate,
		HostName:           "web2",
		ServiceDescription: "http",
		CommandLine:        "check_http",
	})
	require.Equal(t, engine.Override, v)

	jobs := f.submitter.all()
	require.Len(t, jobs, 1)
	assert.Equal(t, "hostgroup_dc-west", jobs[0].Queue)
	assert.Equal(t, domain.PriorityLow, jobs[0].Priority)
}

func TestServiceCheckGuards(t *testing.T) {
	f := newFixture(t, routing.Rules{Services: true}, false)
	ctx := context.Background()

	assert.Equal(t, engine.Abort, f.ic.HandleServiceCheck(ctx, nil))
	assert.Equal(t, engine.Proceed, f.ic.HandleServiceCheck(ctx, &engine.ServiceCheckEvent{Type: engine.ServiceCheckProcessed, HostName: "web1", ServiceDescription: "http"}))
	assert.Equal(t, engine.Abort, f.ic.HandleServiceCheck(ctx, &engine.ServiceCheckEvent{Type: engine.ServiceCheckInitiate, HostName: "web1", ServiceDescription: "http"}))
	assert.Empty(t, f.submitter.all())
}

func TestServiceCheckLocalWithoutGeneralServices(t *testing.T) {
	f := newFixture(t, routing.Rules{Hosts: true}, false)
	ctx := context.Background()

	v := f.ic.HandleServiceCheck(ctx, &engine.ServiceCheckEvent{
		Type:               engine.ServiceCheckInitiate,
		HostName:           "web1",
		ServiceDescription: "http",
		CommandLine:        "check_http",
	})
	assert.Equal(t, engine.Proceed, v)
	assert.Empty(t, f.submitter.all())
}

func TestEventHandlerRouting(t *testing.T) {
	f := newFixture(t, routing.Rules{LocalHostGroups: []string{"dc-east"}}, true)
	ctx := context.Background()
	f.start(ctx)

	v := f.hooks.Emit(ctx, engine.CallbackEventHandler, &engine.EventHandlerEvent{
		Type:        engine.EventHandlerStart,
		HostName:    "web1",
		CommandLine: "/usr/local/bin/restart_httpd",
	})
	require.Equal(t, engine.Override, v)

	jobs := f.submitter.all()
	require.Len(t, jobs, 1)
	assert.Equal(t, "service", jobs[0].Queue)
	assert.Equal(t, domain.PriorityNormal, jobs[0].Priority)
	assert.Empty(t, jobs[0].UniqueKey)
	assert.Equal(t, "type=eventhandler\ncommand_line=/usr/local/bin/restart_httpd\n", string(jobs[0].Payload))

	assert.Equal(t, engine.Proceed, f.ic.HandleEventHandler(ctx, &engine.EventHandlerEvent{Type: engine.EventHandlerEnd}))
}

type deadConn struct{}

func (deadConn) Submit(context.Context, dispatch.Job) error { return errors.New("connection refused") }
func (deadConn) LastError() string                          { return "" }
func (deadConn) Close() error                               { return nil }

func TestEventHandlerOverridesOnTotalFailure(t *testing.T) {
	client, err := dispatch.New(func(dispatch.Options) (dispatch.Conn, error) {
		return deadConn{}, nil
	}, dispatch.Options{Servers: []dispatch.Server{{Host: "127.0.0.1", Port: 1}}}, discardLogger())
	require.NoError(t, err)
	defer client.Close()

	registry, err := engine.NewRegistry(testObjects())
	require.NoError(t, err)

	ic := service.NewInterceptor(service.Options{
		Subscriptions: service.Subscriptions{EventHandlers: true},
		ResultQueue:   "check_results",
	}, service.Deps{
		Hooks:     engine.NewHooks(),
		Router:    routing.NewResolver(routing.Rules{}, registry, discardLogger()),
		Hosts:     registry,
		Submitter: client,
	}, discardLogger())

	v := ic.HandleEventHandler(context.Background(), &engine.EventHandlerEvent{
		Type:        engine.EventHandlerStart,
		HostName:    "web1",
		CommandLine: "restart",
	})

	assert.Equal(t, engine.Override, v)
	assert.Equal(t, 2, client.Reconnects())
	assert.Equal(t, 1, client.Stats().Dropped)
}
