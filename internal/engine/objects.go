package engine

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
)

// Objects is the engine object configuration the gateway routes against.
type Objects struct {
	Macros        map[string]string `yaml:"macros" json:"macros" toml:"macros"`
	Commands      []Command         `yaml:"commands" json:"commands" toml:"commands"`
	Hosts         []Host            `yaml:"hosts" json:"hosts" toml:"hosts"`
	Services      []Service         `yaml:"services" json:"services" toml:"services"`
	HostGroups    []Group           `yaml:"hostgroups" json:"hostgroups" toml:"hostgroups"`
	ServiceGroups []Group           `yaml:"servicegroups" json:"servicegroups" toml:"servicegroups"`
}

type Command struct {
	Name string `yaml:"name" json:"name" toml:"name"`
	Line string `yaml:"line" json:"line" toml:"line"`
}

// Host is a monitored host. MaxCheckAttempts caps HostState.Attempt; zero
// means a single attempt.
type Host struct {
	Name             string   `yaml:"name" json:"name" toml:"name"`
	Alias            string   `yaml:"alias" json:"alias" toml:"alias"`
	Address          string   `yaml:"address" json:"address" toml:"address"`
	CheckCommand     string   `yaml:"check_command" json:"check_command" toml:"check_command"`
	CheckTimeout     int      `yaml:"check_timeout" json:"check_timeout" toml:"check_timeout"`
	MaxCheckAttempts int      `yaml:"max_check_attempts" json:"max_check_attempts" toml:"max_check_attempts"`
	HostGroups       []string `yaml:"hostgroups" json:"hostgroups" toml:"hostgroups"`
}

type Service struct {
	HostName      string   `yaml:"host_name" json:"host_name" toml:"host_name"`
	Description   string   `yaml:"description" json:"description" toml:"description"`
	CheckCommand  string   `yaml:"check_command" json:"check_command" toml:"check_command"`
	ServiceGroups []string `yaml:"servicegroups" json:"servicegroups" toml:"servicegroups"`
}

// Group members are host names for host groups and "host,service" pairs for
// service groups.
type Group struct {
	Name    string   `yaml:"name" json:"name" toml:"name"`
	Alias   string   `yaml:"alias" json:"alias" toml:"alias"`
	Members []string `yaml:"members" json:"members" toml:"members"`
}

// LoadObjects reads an object file; the format follows the file extension.
func LoadObjects(path string) (Objects, error) {
	var objs Objects
	if err := cleanenv.ReadConfig(path, &objs); err != nil {
		return Objects{}, fmt.Errorf("failed to read objects %s: %w", path, err)
	}
	return objs, nil
}
