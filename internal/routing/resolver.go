// Package routing decides which broker queue executes a check.
//
// Rules are evaluated in a fixed order and the first match wins:
// local servicegroups, local hostgroups, servicegroups, hostgroups, then the
// general "service" and "host" queues. Local rules keep a check on the engine
// even when a later remote rule would match.
package routing

import (
	"context"
	"log/slog"

	"ozzus/check-dispatcher/internal/domain"
	"ozzus/check-dispatcher/internal/lib/logger/slogpretty"
)

const (
	QueueHost               = "host"
	QueueService            = "service"
	hostGroupQueuePrefix    = "hostgroup_"
	serviceGroupQueuePrefix = "servicegroup_"
)

// Membership answers group questions against the engine configuration.
type Membership interface {
	IsHostMember(group, host string) bool
	IsServiceMember(group, host, service string) bool
	HostGroupExists(name string) bool
	ServiceGroupExists(name string) bool
}

type Rules struct {
	LocalServiceGroups []string
	LocalHostGroups    []string
	ServiceGroups      []string
	HostGroups         []string
	Hosts              bool
	Services           bool
}

type Resolver struct {
	rules  Rules
	groups Membership
	log    *slog.Logger
}

func NewResolver(rules Rules, groups Membership, log *slog.Logger) *Resolver {
	return &Resolver{
		rules:  rules,
		groups: groups,
		log:    log.With(slog.String("component", "resolver")),
	}
}

func (r *Resolver) Rules() Rules {
	return r.rules
}

// Resolve returns the target for a host check (service == "") or a service
// check.
func (r *Resolver) Resolve(host, service string) domain.TargetDecision {
	hasService := service != ""

	if hasService {
		for _, g := range r.rules.LocalServiceGroups {
			if r.groups.IsServiceMember(g, host, service) {
				r.trace("service is member of local servicegroup", g)
				return domain.Local
			}
		}
	}

	for _, g := range r.rules.LocalHostGroups {
		if r.groups.IsHostMember(g, host) {
			r.trace("host is member of local hostgroup", g)
			return domain.Local
		}
	}

	if hasService {
		for _, g := range r.rules.ServiceGroups {
			if r.groups.IsServiceMember(g, host, service) {
				r.trace("service is member of servicegroup", g)
				return domain.Remote(serviceGroupQueuePrefix+g, domain.PriorityLow)
			}
		}
	}

	for _, g := range r.rules.HostGroups {
		if r.groups.IsHostMember(g, host) {
			r.trace("host is member of hostgroup", g)
			return domain.Remote(hostGroupQueuePrefix+g, domain.PriorityNormal)
		}
	}

	if hasService {
		if r.rules.Services {
			return domain.Remote(QueueService, domain.PriorityLow)
		}
		return domain.Local
	}

	if r.rules.Hosts {
		return domain.Remote(QueueHost, domain.PriorityNormal)
	}
	return domain.Local
}

type UnknownGroup struct {
	List string
	Name string
}

// Validate lists every configured group name the engine does not know.
func (r *Resolver) Validate() []UnknownGroup {
	var unknown []UnknownGroup

	check := func(list string, names []string, exists func(string) bool) {
		for _, n := range names {
			if !exists(n) {
				unknown = append(unknown, UnknownGroup{List: list, Name: n})
			}
		}
	}

	check("localservicegroups", r.rules.LocalServiceGroups, r.groups.ServiceGroupExists)
	check("localhostgroups", r.rules.LocalHostGroups, r.groups.HostGroupExists)
	check("servicegroups", r.rules.ServiceGroups, r.groups.ServiceGroupExists)
	check("hostgroups", r.rules.HostGroups, r.groups.HostGroupExists)

	return unknown
}

func (r *Resolver) trace(msg, group string) {
	r.log.Log(context.Background(), slogpretty.LevelTrace, msg, slog.String("group", group))
}
