package config

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseArgs applies a module argument string such as
//
//	server=localhost:4730 hostgroups=dc-west,dc-north services=yes
//
// on top of c. Keys may carry a "--" prefix. List keys accumulate when
// repeated and replace what the config file set. Flags are enabled by "yes"
// only. Unknown keys and bad numbers come back as warnings.
func (c *Config) ParseArgs(args string) []string {
	var (
		warnings []string
		seen     = make(map[string]bool)
	)

	list := func(key string, dst *[]string, value string) {
		if !seen[key] {
			*dst = nil
			seen[key] = true
		}
		for _, name := range strings.Split(value, ",") {
			if name = strings.TrimSpace(name); name != "" {
				*dst = append(*dst, name)
			}
		}
	}

	number := func(key, value string, dst *int) {
		n, err := strconv.Atoi(value)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %q is not a number", key, value))
			return
		}
		*dst = n
	}

	for _, tok := range strings.Fields(args) {
		key, value, ok := strings.Cut(tok, "=")
		if !ok || value == "" {
			continue
		}
		key = strings.TrimPrefix(key, "--")

		switch key {
		case "debug":
			number(key, value, &c.Debug)
		case "timeout":
			number(key, value, &c.Broker.Timeout)
		case "result_workers":
			number(key, value, &c.Dispatch.ResultWorkers)
		case "result_queue":
			c.Dispatch.ResultQueue = value
		case "driver":
			c.Broker.Driver = value
		case "server":
			list(key, &c.Broker.Servers, value)
		case "eventhandler":
			if value == "yes" {
				c.Dispatch.EventHandler = true
			}
		case "services":
			if value == "yes" {
				c.Dispatch.Services = true
			}
		case "hosts":
			if value == "yes" {
				c.Dispatch.Hosts = true
			}
		case "servicegroups":
			list(key, &c.Dispatch.ServiceGroups, value)
		case "hostgroups":
			list(key, &c.Dispatch.HostGroups, value)
		case "localhostgroups":
			list(key, &c.Dispatch.LocalHostGroups, value)
		case "localservicegroups":
			list(key, &c.Dispatch.LocalServiceGroups, value)
		default:
			warnings = append(warnings, fmt.Sprintf("unknown argument %q", key))
		}
	}

	return warnings
}
