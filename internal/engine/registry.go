package engine

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

var ErrNotFound = errors.New("not found")

type serviceKey struct {
	host    string
	service string
}

// HostState is the runtime part of a host the gateway takes over from the
// engine when it intercepts a host check. Attempt counts up to the host's
// max check attempts and stays there.
type HostState struct {
	CheckOptions int
	IsExecuting  bool
	Attempt      int
}

// Registry indexes the object configuration and answers membership queries.
type Registry struct {
	macros        map[string]string
	commands      map[string]string
	hosts         map[string]Host
	services      map[serviceKey]Service
	hostGroups    map[string]map[string]struct{}
	serviceGroups map[string]map[serviceKey]struct{}

	mu                sync.RWMutex
	state             map[string]*HostState
	runningHostChecks int
}

func NewRegistry(objs Objects) (*Registry, error) {
	r := &Registry{
		macros:        make(map[string]string, len(objs.Macros)),
		commands:      make(map[string]string, len(objs.Commands)),
		hosts:         make(map[string]Host, len(objs.Hosts)),
		services:      make(map[serviceKey]Service, len(objs.Services)),
		hostGroups:    make(map[string]map[string]struct{}, len(objs.HostGroups)),
		serviceGroups: make(map[string]map[serviceKey]struct{}, len(objs.ServiceGroups)),
		state:         make(map[string]*HostState, len(objs.Hosts)),
	}

	for k, v := range objs.Macros {
		r.macros[strings.ToUpper(k)] = v
	}

	for _, c := range objs.Commands {
		if c.Name == "" {
			return nil, errors.New("command without name")
		}
		r.commands[c.Name] = c.Line
	}

	for _, g := range objs.HostGroups {
		members := make(map[string]struct{}, len(g.Members))
		for _, m := range g.Members {
			members[strings.TrimSpace(m)] = struct{}{}
		}
		r.hostGroups[g.Name] = members
	}

	for _, g := range objs.ServiceGroups {
		members := make(map[serviceKey]struct{}, len(g.Members))
		for _, m := range g.Members {
			host, svc, ok := strings.Cut(m, ",")
			if !ok {
				return nil, fmt.Errorf("servicegroup %s: member %q is not host,service", g.Name, m)
			}
			members[serviceKey{strings.TrimSpace(host), strings.TrimSpace(svc)}] = struct{}{}
		}
		r.serviceGroups[g.Name] = members
	}

	for _, h := range objs.Hosts {
		if h.Name == "" {
			return nil, errors.New("host without name")
		}
		if _, dup := r.hosts[h.Name]; dup {
			return nil, fmt.Errorf("host %s defined twice", h.Name)
		}
		r.hosts[h.Name] = h
		r.state[h.Name] = &HostState{}
		for _, g := range h.HostGroups {
			members, ok := r.hostGroups[g]
			if !ok {
				members = make(map[string]struct{})
				r.hostGroups[g] = members
			}
			members[h.Name] = struct{}{}
		}
	}

	for _, s := range objs.Services {
		if _, ok := r.hosts[s.HostName]; !ok {
			return nil, fmt.Errorf("service %s references unknown host %s", s.Description, s.HostName)
		}
		key := serviceKey{s.HostName, s.Description}
		r.services[key] = s
		for _, g := range s.ServiceGroups {
			members, ok := r.serviceGroups[g]
			if !ok {
				members = make(map[serviceKey]struct{})
				r.serviceGroups[g] = members
			}
			members[key] = struct{}{}
		}
	}

	return r, nil
}

func (r *Registry) FindHost(name string) (Host, bool) {
	h, ok := r.hosts[name]
	return h, ok
}

func (r *Registry) FindService(host, description string) (Service, bool) {
	s, ok := r.services[serviceKey{host, description}]
	return s, ok
}

func (r *Registry) HostGroupExists(name string) bool {
	_, ok := r.hostGroups[name]
	return ok
}

func (r *Registry) ServiceGroupExists(name string) bool {
	_, ok := r.serviceGroups[name]
	return ok
}

// IsHostMember reports false for unknown groups.
func (r *Registry) IsHostMember(group, host string) bool {
	members, ok := r.hostGroups[group]
	if !ok {
		return false
	}
	_, ok = members[host]
	return ok
}

func (r *Registry) IsServiceMember(group, host, service string) bool {
	members, ok := r.serviceGroups[group]
	if !ok {
		return false
	}
	_, ok = members[serviceKey{host, service}]
	return ok
}

func (r *Registry) Counts() (hosts, services int) {
	return len(r.hosts), len(r.services)
}

// BeginHostCheck does the bookkeeping the engine would do before running a
// host check itself.
func (r *Registry) BeginHostCheck(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.state[name]
	if !ok {
		return fmt.Errorf("host %s: %w", name, ErrNotFound)
	}
	st.CheckOptions = 0
	if st.Attempt < max(r.hosts[name].MaxCheckAttempts, 1) {
		st.Attempt++
	}
	st.IsExecuting = true
	r.runningHostChecks++
	return nil
}

// FinishHostCheck is called when a host result comes back.
func (r *Registry) FinishHostCheck(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.state[name]
	if !ok {
		return fmt.Errorf("host %s: %w", name, ErrNotFound)
	}
	if st.IsExecuting {
		st.IsExecuting = false
		if r.runningHostChecks > 0 {
			r.runningHostChecks--
		}
	}
	return nil
}

func (r *Registry) HostState(name string) (HostState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st, ok := r.state[name]
	if !ok {
		return HostState{}, false
	}
	return *st, true
}

func (r *Registry) RunningHostChecks() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.runningHostChecks
}
