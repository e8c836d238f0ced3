package main

import (
	"fmt"
	"log/slog"
	"strings"

	"ozzus/check-dispatcher/internal/config"
	"ozzus/check-dispatcher/internal/dispatch"
	"ozzus/check-dispatcher/internal/repository"
	"ozzus/check-dispatcher/internal/repository/kafka"
	"ozzus/check-dispatcher/internal/repository/redis"
	"ozzus/check-dispatcher/internal/routing"
)

var brokerDrivers = []dispatch.Driver{
	kafka.Driver,
	redis.Driver,
}

func driverFor(name string) (dispatch.Driver, error) {
	names := make([]string, 0, len(brokerDrivers))
	for _, d := range brokerDrivers {
		if d.Name == name {
			return d, nil
		}
		names = append(names, d.Name)
	}
	return dispatch.Driver{}, fmt.Errorf("unknown broker driver %q, expected one of %s", name, strings.Join(names, ", "))
}

func resultSources(driver string, servers []dispatch.Server, c *config.Config, log *slog.Logger) repository.ResultSourceFactory {
	addrs := dispatch.Addrs(servers)
	if driver == redis.Driver.Name {
		return redis.SourceFactory(addrs, c.Dispatch.ResultQueue, c.GetTimeout(), log)
	}
	return kafka.SourceFactory(addrs, c.Dispatch.ResultQueue, log)
}

func rulesFrom(c *config.Config) routing.Rules {
	return routing.Rules{
		LocalServiceGroups: c.Dispatch.LocalServiceGroups,
		LocalHostGroups:    c.Dispatch.LocalHostGroups,
		ServiceGroups:      c.Dispatch.ServiceGroups,
		HostGroups:         c.Dispatch.HostGroups,
		Hosts:              c.Dispatch.Hosts,
		Services:           c.Dispatch.Services,
	}
}
