package engine

import "ozzus/check-dispatcher/internal/domain"

type ProcessEventType string

const (
	ProcessEventLoopStart ProcessEventType = "event_loop_start"
	ProcessShutdown       ProcessEventType = "shutdown"
)

type ProcessEvent struct {
	Type ProcessEventType `json:"type"`
}

type HostCheckEventType string

const (
	HostCheckAsyncPrecheck HostCheckEventType = "async_precheck"
	HostCheckSyncPrecheck  HostCheckEventType = "sync_precheck"
	HostCheckProcessed     HostCheckEventType = "processed"
)

type HostCheckEvent struct {
	Type     HostCheckEventType `json:"type"`
	HostName string             `json:"host_name"`
	Timeout  int                `json:"timeout"`
}

type ServiceCheckEventType string

const (
	ServiceCheckInitiate  ServiceCheckEventType = "initiate"
	ServiceCheckProcessed ServiceCheckEventType = "processed"
)

// ServiceCheckEvent arrives with the command line already expanded.
type ServiceCheckEvent struct {
	Type               ServiceCheckEventType `json:"type"`
	HostName           string                `json:"host_name"`
	ServiceDescription string                `json:"service_description"`
	CommandLine        string                `json:"command_line"`
	StartTime          domain.StartTime      `json:"start_time"`
	Timeout            int                   `json:"timeout"`
	CheckOptions       int                   `json:"check_options"`
	ScheduledCheck     bool                  `json:"scheduled_check"`
	RescheduleCheck    bool                  `json:"reschedule_check"`
	Latency            float64               `json:"latency"`
}

type EventHandlerEventType string

const (
	EventHandlerStart EventHandlerEventType = "start"
	EventHandlerEnd   EventHandlerEventType = "end"
)

type EventHandlerEvent struct {
	Type               EventHandlerEventType `json:"type"`
	HostName           string                `json:"host_name"`
	ServiceDescription string                `json:"service_description,omitempty"`
	CommandLine        string                `json:"command_line"`
	Timeout            int                   `json:"timeout"`
}
