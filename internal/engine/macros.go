package engine

import (
	"fmt"
	"strconv"
	"strings"
)

const DefaultHostCheckTimeout = 60

// HostCheckCommand returns the host's check command with macros expanded.
func (r *Registry) HostCheckCommand(name string) (string, error) {
	h, ok := r.hosts[name]
	if !ok {
		return "", fmt.Errorf("host %s: %w", name, ErrNotFound)
	}
	if h.CheckCommand == "" {
		return "", fmt.Errorf("host %s has no check command", name)
	}

	cmdName, rawArgs, _ := strings.Cut(h.CheckCommand, "!")
	line, ok := r.commands[cmdName]
	if !ok {
		return "", fmt.Errorf("command %s: %w", cmdName, ErrNotFound)
	}

	var args []string
	if rawArgs != "" {
		args = strings.Split(rawArgs, "!")
	}

	macros := map[string]string{
		"HOSTNAME":    h.Name,
		"HOSTALIAS":   h.Alias,
		"HOSTADDRESS": h.Address,
	}
	if macros["HOSTALIAS"] == "" {
		macros["HOSTALIAS"] = h.Name
	}
	if macros["HOSTADDRESS"] == "" {
		macros["HOSTADDRESS"] = h.Name
	}
	for i, a := range args {
		// arguments may reference macros themselves
		macros["ARG"+strconv.Itoa(i+1)] = expand(a, r.macros, macros)
	}

	return expand(line, r.macros, macros), nil
}

func (r *Registry) HostCheckTimeout(name string) int {
	if h, ok := r.hosts[name]; ok && h.CheckTimeout > 0 {
		return h.CheckTimeout
	}
	return DefaultHostCheckTimeout
}

// expand replaces $NAME$ tokens. "$$" is a literal dollar; unknown macros are
// kept verbatim.
func expand(s string, scopes ...map[string]string) string {
	var b strings.Builder
	b.Grow(len(s))

	for {
		start := strings.IndexByte(s, '$')
		if start < 0 {
			b.WriteString(s)
			return b.String()
		}
		end := strings.IndexByte(s[start+1:], '$')
		if end < 0 {
			b.WriteString(s)
			return b.String()
		}
		end += start + 1

		b.WriteString(s[:start])
		name := s[start+1 : end]
		switch {
		case name == "":
			b.WriteByte('$')
		default:
			if v, ok := lookup(name, scopes); ok {
				b.WriteString(v)
			} else {
				b.WriteString(s[start : end+1])
			}
		}
		s = s[end+1:]
	}
}

func lookup(name string, scopes []map[string]string) (string, bool) {
	for i := len(scopes) - 1; i >= 0; i-- {
		if v, ok := scopes[i][name]; ok {
			return v, true
		}
	}
	return "", false
}
