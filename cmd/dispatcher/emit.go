package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"ozzus/check-dispatcher/internal/api/client"
	"ozzus/check-dispatcher/internal/dispatch"
	"ozzus/check-dispatcher/internal/domain"
	"ozzus/check-dispatcher/internal/engine"
	"ozzus/check-dispatcher/internal/repository"
	"ozzus/check-dispatcher/internal/routing"
)

var (
	flagGateway string
	flagHost    string
	flagService string
	flagCommand string
	flagTimeout int
	flagType    string
	flagLimit   int
)

var resolveCmd = &cobra.Command{
	Use:   "resolve HOST [SERVICE]",
	Short: "print the queue a host or service check would be sent to",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  doResolve,
}

var emitCmd = &cobra.Command{
	Use:   "emit",
	Short: "post an engine event to a running gateway",
}

var emitHostCmd = &cobra.Command{
	Use:   "host",
	Short: "post a host check event",
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := gatewayClient()
		if err != nil {
			return err
		}
		resp, err := c.HostCheck(cmd.Context(), engine.HostCheckEvent{
			Type:     engine.HostCheckEventType(flagType),
			HostName: flagHost,
			Timeout:  flagTimeout,
		})
		return printJSON(resp, err)
	},
}

var emitServiceCmd = &cobra.Command{
	Use:   "service",
	Short: "post a service check event",
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := gatewayClient()
		if err != nil {
			return err
		}
		resp, err := c.ServiceCheck(cmd.Context(), engine.ServiceCheckEvent{
			Type:               engine.ServiceCheckEventType(flagType),
			HostName:           flagHost,
			ServiceDescription: flagService,
			CommandLine:        flagCommand,
			StartTime:          domain.StartTimeOf(time.Now()),
			Timeout:            flagTimeout,
			ScheduledCheck:     true,
		})
		return printJSON(resp, err)
	},
}

var emitEventHandlerCmd = &cobra.Command{
	Use:   "eventhandler",
	Short: "post an event handler event",
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := gatewayClient()
		if err != nil {
			return err
		}
		resp, err := c.EventHandler(cmd.Context(), engine.EventHandlerEvent{
			Type:               engine.EventHandlerEventType(flagType),
			HostName:           flagHost,
			ServiceDescription: flagService,
			CommandLine:        flagCommand,
			Timeout:            flagTimeout,
		})
		return printJSON(resp, err)
	},
}

var emitProcessCmd = &cobra.Command{
	Use:       "process event_loop_start|shutdown",
	Short:     "post a process lifecycle event",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{string(engine.ProcessEventLoopStart), string(engine.ProcessShutdown)},
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := gatewayClient()
		if err != nil {
			return err
		}
		resp, err := c.ProcessEvent(cmd.Context(), engine.ProcessEvent{Type: engine.ProcessEventType(args[0])})
		return printJSON(resp, err)
	},
}

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "list collected check results from a running gateway",
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := gatewayClient()
		if err != nil {
			return err
		}
		results, err := c.Results(cmd.Context(), repository.ResultFilter{
			HostName:           flagHost,
			ServiceDescription: flagService,
			Limit:              flagLimit,
		})
		return printJSON(results, err)
	},
}

func init() {
	for _, c := range []*cobra.Command{emitCmd, resultsCmd} {
		c.PersistentFlags().StringVar(&flagGateway, "gateway", "", "gateway base URL - default is localhost on server.port")
		c.PersistentFlags().StringVar(&flagHost, "host", "", "host name")
		c.PersistentFlags().StringVar(&flagService, "service", "", "service description")
	}
	emitCmd.PersistentFlags().StringVar(&flagCommand, "command", "", "expanded command line")
	emitCmd.PersistentFlags().IntVar(&flagTimeout, "timeout", 0, "check timeout in seconds")
	emitCmd.PersistentFlags().StringVar(&flagType, "type", "", "event type - default is the interceptable one")
	resultsCmd.Flags().IntVar(&flagLimit, "limit", 20, "maximum number of results")

	emitCmd.AddCommand(emitHostCmd, emitServiceCmd, emitEventHandlerCmd, emitProcessCmd)
}

func gatewayClient() (*client.Client, error) {
	url := flagGateway
	if url == "" {
		url = "localhost:" + cfg.Server.Port
	}
	return client.NewClient(url, cfg.Server.AuthUser, cfg.Server.AuthToken)
}

func printJSON(v any, err error) error {
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func doResolve(_ *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil && !errors.Is(err, dispatch.ErrNoServers) {
		return err
	}

	objs, err := engine.LoadObjects(cfg.Engine.Objects)
	if err != nil {
		return err
	}
	registry, err := engine.NewRegistry(objs)
	if err != nil {
		return fmt.Errorf("invalid objects %s: %w", cfg.Engine.Objects, err)
	}

	resolver := routing.NewResolver(rulesFrom(cfg), registry, log)
	for _, u := range resolver.Validate() {
		log.Warn("unknown group name in config", "list", u.List, "group", u.Name)
	}

	host, service := args[0], ""
	if len(args) == 2 {
		service = args[1]
	}

	fmt.Println(resolver.Resolve(host, service))
	return nil
}
