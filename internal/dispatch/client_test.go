package dispatch_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"ozzus/check-dispatcher/internal/dispatch"
	"ozzus/check-dispatcher/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBroker hands out handles that answer submits from a script. Once the
// script is exhausted every submit succeeds.
type fakeBroker struct {
	mu      sync.Mutex
	script  []outcome
	dials   int
	dialErr []error
	jobs    []dispatch.Job
	closed  int
}

type outcome struct {
	err     error
	lastErr string
}

func (b *fakeBroker) dial(dispatch.Options) (dispatch.Conn, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dials++
	if len(b.dialErr) > 0 {
		err := b.dialErr[0]
		b.dialErr = b.dialErr[1:]
		if err != nil {
			return nil, err
		}
	}
	return &fakeConn{broker: b}, nil
}

type fakeConn struct {
	broker  *fakeBroker
	lastErr string
}

func (c *fakeConn) Submit(_ context.Context, job dispatch.Job) error {
	b := c.broker
	b.mu.Lock()
	defer b.mu.Unlock()

	b.jobs = append(b.jobs, job)
	if len(b.script) == 0 {
		return nil
	}
	o := b.script[0]
	b.script = b.script[1:]
	c.lastErr = o.lastErr
	return o.err
}

func (c *fakeConn) LastError() string { return c.lastErr }

func (c *fakeConn) Close() error {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()
	c.broker.closed++
	return nil
}

var servers = []dispatch.Server{{Host: "localhost", Port: 9092}}

func newClient(t *testing.T, b *fakeBroker, w io.Writer) *dispatch.Client {
	t.Helper()
	if w == nil {
		w = io.Discard
	}
	log := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
	c, err := dispatch.New(b.dial, dispatch.Options{Servers: servers}, log)
	require.NoError(t, err)
	return c
}

func job() dispatch.Job {
	return dispatch.Job{
		Queue:     "service",
		UniqueKey: "web1-http",
		Priority:  domain.PriorityLow,
		Payload:   []byte("type=service\n"),
	}
}

func TestSubmitFirstTry(t *testing.T) {
	t.Parallel()
	b := &fakeBroker{}
	c := newClient(t, b, nil)

	require.NoError(t, c.Submit(t.Context(), job()))
	require.Equal(t, 0, c.Reconnects())
	require.Equal(t, 1, b.dials)
	require.Len(t, b.jobs, 1)
	require.NotEmpty(t, b.jobs[0].ID)
	require.Equal(t, "web1-http", b.jobs[0].UniqueKey)
}

func TestSubmitRetry(t *testing.T) {
	t.Parallel()

	var testCases = []struct {
		scenario   string
		script     []outcome
		fails      bool
		reconnects int
		attempts   int
	}{
		{"fails once", []outcome{{err: errors.New("connection reset")}}, false, 1, 2},
		{"error string on success", []outcome{{lastErr: "lost connection to server"}}, false, 1, 2},
		{"fails twice", []outcome{{err: errors.New("timeout")}, {err: errors.New("timeout")}}, true, 2, 2},
		{"error strings twice", []outcome{{lastErr: "e1"}, {err: errors.New("x"), lastErr: "e2"}}, true, 2, 2},
	}

	for _, tt := range testCases {
		t.Run(tt.scenario, func(t *testing.T) {
			t.Parallel()
			b := &fakeBroker{script: tt.script}
			c := newClient(t, b, nil)

			err := c.Submit(t.Context(), job())
			if tt.fails {
				require.ErrorIs(t, err, dispatch.ErrSubmitFailed)
			} else {
				require.NoError(t, err)
			}
			require.Equal(t, tt.reconnects, c.Reconnects())
			require.Len(t, b.jobs, tt.attempts)
			require.Equal(t, 1+tt.reconnects, b.dials)
			require.Equal(t, tt.reconnects, b.closed)
			// the retry resubmits the same job
			require.Equal(t, b.jobs[0].ID, b.jobs[len(b.jobs)-1].ID)

			// next call starts from a clean handle
			require.NoError(t, c.Submit(t.Context(), job()))
			require.Equal(t, tt.reconnects, c.Reconnects())
		})
	}
}

func TestSubmitErrorText(t *testing.T) {
	t.Parallel()

	b := &fakeBroker{script: []outcome{
		{err: errors.New("failed to push to host: EOF"), lastErr: "broker is loading"},
		{err: errors.New("failed to push to host: EOF"), lastErr: "failed to push to host: EOF"},
	}}
	c := newClient(t, b, nil)

	err := c.Submit(t.Context(), job())
	require.ErrorIs(t, err, dispatch.ErrSubmitFailed)
	assert.Equal(t, 1, strings.Count(err.Error(), "failed to push to host: EOF"), err.Error())
	assert.NotContains(t, err.Error(), "(")
}

func TestSubmitNoReachableServer(t *testing.T) {
	t.Parallel()

	refused := errors.New("dial tcp 127.0.0.1:9092: connect: connection refused")
	b := &fakeBroker{script: []outcome{{err: refused}, {err: refused}}}
	var logs bytes.Buffer
	c := newClient(t, b, &logs)

	err := c.Submit(t.Context(), job())
	require.ErrorIs(t, err, dispatch.ErrSubmitFailed)
	require.ErrorIs(t, err, refused)
	require.Len(t, b.jobs, 2)
	require.Equal(t, 2, strings.Count(logs.String(), "broker client recreated"))
	require.Equal(t, 1, strings.Count(logs.String(), "client error permanent"))
	require.Equal(t, dispatch.Stats{Dropped: 1, Reconnects: 2}, c.Stats())
}

func TestSubmitDialFailsOnReconnect(t *testing.T) {
	t.Parallel()

	down := errors.New("no route to host")
	// first dial (New) works, both reconnects fail
	b := &fakeBroker{
		script:  []outcome{{err: errors.New("broken pipe")}},
		dialErr: []error{nil, down, down},
	}
	c := newClient(t, b, nil)

	err := c.Submit(t.Context(), job())
	require.ErrorIs(t, err, down)
	require.Len(t, b.jobs, 1)
	require.Equal(t, 2, c.Reconnects())

	// broker back: the broken handle fails once and gets replaced
	require.NoError(t, c.Submit(t.Context(), job()))
	require.Equal(t, 3, c.Reconnects())
}

func TestNew(t *testing.T) {
	t.Parallel()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	_, err := dispatch.New((&fakeBroker{}).dial, dispatch.Options{}, log)
	require.ErrorIs(t, err, dispatch.ErrNoServers)

	boom := errors.New("boom")
	_, err = dispatch.New((&fakeBroker{dialErr: []error{boom}}).dial, dispatch.Options{Servers: servers}, log)
	require.ErrorIs(t, err, boom)
}

func TestSubmitSerialized(t *testing.T) {
	t.Parallel()
	b := &fakeBroker{}
	c := newClient(t, b, nil)

	var wg sync.WaitGroup
	for range 20 {
		wg.Go(func() {
			assert.NoError(t, c.Submit(context.Background(), job()))
		})
	}
	wg.Wait()
	require.Len(t, b.jobs, 20)
	require.Equal(t, 20, c.Stats().Submitted)
}
