package domain

import "time"

// тип перехваченного события

type CheckKind string

const (
	CheckKindHost         CheckKind = "host"
	CheckKindService      CheckKind = "service"
	CheckKindEventHandler CheckKind = "eventhandler"
)

// StartTime is a wall-clock stamp split the way the engine reports it.
type StartTime struct {
	Sec  int64 `json:"sec"`
	Usec int64 `json:"usec"`
}

func StartTimeOf(t time.Time) StartTime {
	return StartTime{
		Sec:  t.Unix(),
		Usec: int64(t.Nanosecond() / 1000),
	}
}

func (s StartTime) Time() time.Time {
	return time.Unix(s.Sec, s.Usec*1000)
}

type CheckRequest struct {
	Kind               CheckKind `json:"type"`
	HostName           string    `json:"host_name"`
	ServiceDescription string    `json:"service_description,omitempty"`
	CommandLine        string    `json:"command_line"`
	StartTime          StartTime `json:"start_time"`
	Timeout            int       `json:"timeout"`

	// service checks only
	CheckOptions    int     `json:"check_options"`
	ScheduledCheck  bool    `json:"scheduled_check"`
	RescheduleCheck bool    `json:"reschedule_check"`
	Latency         float64 `json:"latency"`
}

// DedupKey collapses duplicate in-flight service checks on the broker.
func (r CheckRequest) DedupKey() string {
	if r.Kind != CheckKindService {
		return ""
	}
	return r.HostName + "-" + r.ServiceDescription
}

// InterceptResponse answers a check event posted by the engine shim.
type InterceptResponse struct {
	Verdict  string `json:"verdict"`
	Override bool   `json:"override"`
}
