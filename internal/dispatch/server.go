package dispatch

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

var ErrNoServers = errors.New("no broker server configured")

type Server struct {
	Host string
	Port int
}

func (s Server) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

func (s Server) String() string {
	return s.Addr()
}

// ParseServers turns "host[:port]" entries into servers. Empty entries are
// skipped.
func ParseServers(entries []string, defaultPort int) ([]Server, error) {
	servers := make([]Server, 0, len(entries))

	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}

		host, portStr, err := net.SplitHostPort(e)
		if err != nil {
			// no port given
			host, portStr = strings.Trim(e, "[]"), ""
		}
		if host == "" {
			return nil, fmt.Errorf("invalid server %q: empty host", e)
		}

		port := defaultPort
		if portStr != "" {
			port, err = strconv.Atoi(portStr)
			if err != nil || port <= 0 || port > 65535 {
				return nil, fmt.Errorf("invalid server %q: bad port", e)
			}
		}

		servers = append(servers, Server{Host: host, Port: port})
	}

	if len(servers) == 0 {
		return nil, ErrNoServers
	}
	return servers, nil
}

func Addrs(servers []Server) []string {
	addrs := make([]string, len(servers))
	for i, s := range servers {
		addrs[i] = s.Addr()
	}
	return addrs
}
