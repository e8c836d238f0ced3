package redis_test

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"ozzus/check-dispatcher/internal/dispatch"
)

// fakeRedis answers the commands the producer and consumer send: EVALSHA
// (always NOSCRIPT), EVAL of the enqueue script, LPUSH and a non-blocking
// BRPOP. A command can be set to drop the connection instead of running.
type fakeRedis struct {
	ln net.Listener
	wg sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	conns   map[net.Conn]struct{}
	markers map[string]int
	lists   map[string][]string
	drops   map[string]int
	calls   []string
}

func newFakeRedis(t *testing.T) *fakeRedis {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	f := &fakeRedis{
		ln:      ln,
		conns:   make(map[net.Conn]struct{}),
		markers: make(map[string]int),
		lists:   make(map[string][]string),
		drops:   make(map[string]int),
	}
	f.wg.Add(1)
	go f.serve()
	t.Cleanup(f.close)
	return f
}

func (f *fakeRedis) server() dispatch.Server {
	return dispatch.Server{Host: "127.0.0.1", Port: f.ln.Addr().(*net.TCPAddr).Port}
}

func (f *fakeRedis) addr() string {
	return f.ln.Addr().String()
}

func (f *fakeRedis) dropNext(cmd string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drops[cmd] += n
}

func (f *fakeRedis) list(key string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lists[key]...)
}

func (f *fakeRedis) push(key, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lpush(key, value)
}

func (f *fakeRedis) ttl(key string) (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ttl, ok := f.markers[key]
	return ttl, ok
}

func (f *fakeRedis) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeRedis) close() {
	f.ln.Close()

	f.mu.Lock()
	f.closed = true
	for c := range f.conns {
		c.Close()
	}
	f.mu.Unlock()

	f.wg.Wait()
}

func (f *fakeRedis) serve() {
	defer f.wg.Done()

	for {
		c, err := f.ln.Accept()
		if err != nil {
			return
		}

		f.mu.Lock()
		if f.closed {
			f.mu.Unlock()
			c.Close()
			return
		}
		f.conns[c] = struct{}{}
		f.mu.Unlock()

		f.wg.Add(1)
		go f.handle(c)
	}
}

func (f *fakeRedis) handle(c net.Conn) {
	defer f.wg.Done()
	defer c.Close()

	r := bufio.NewReader(c)
	for {
		args, err := readCommand(r)
		if err != nil {
			return
		}
		reply, drop := f.exec(args)
		if drop {
			return
		}
		if _, err := io.WriteString(c, reply); err != nil {
			return
		}
	}
}

func readCommand(r *bufio.Reader) ([]string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(line, "*") {
		return nil, fmt.Errorf("unexpected line %q", line)
	}
	n, err := strconv.Atoi(strings.TrimSpace(line[1:]))
	if err != nil {
		return nil, err
	}

	args := make([]string, 0, n)
	for range n {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		size, err := strconv.Atoi(strings.TrimSpace(line[1:]))
		if err != nil {
			return nil, err
		}
		buf := make([]byte, size+2)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		args = append(args, string(buf[:size]))
	}
	return args, nil
}

func (f *fakeRedis) exec(args []string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cmd := strings.ToUpper(args[0])
	f.calls = append(f.calls, cmd)
	if f.drops[cmd] > 0 {
		f.drops[cmd]--
		return "", true
	}

	switch cmd {
	case "EVALSHA":
		return "-NOSCRIPT No matching script. Please use EVAL.\r\n", false
	case "EVAL":
		// EVAL src 2 marker list id ttl payload
		marker, list, payload := args[3], args[4], args[7]
		if _, ok := f.markers[marker]; ok {
			return ":0\r\n", false
		}
		f.markers[marker], _ = strconv.Atoi(args[6])
		return f.lpush(list, payload), false
	case "LPUSH":
		return f.lpush(args[1], args[2]), false
	case "BRPOP":
		for _, key := range args[1 : len(args)-1] {
			l := f.lists[key]
			if len(l) == 0 {
				continue
			}
			v := l[len(l)-1]
			f.lists[key] = l[:len(l)-1]
			return "*2\r\n" + bulk(key) + bulk(v), false
		}
		return "*-1\r\n", false
	}
	return "-ERR unknown command '" + cmd + "'\r\n", false
}

func (f *fakeRedis) lpush(key, value string) string {
	f.lists[key] = append([]string{value}, f.lists[key]...)
	return ":" + strconv.Itoa(len(f.lists[key])) + "\r\n"
}

func bulk(s string) string {
	return "$" + strconv.Itoa(len(s)) + "\r\n" + s + "\r\n"
}
