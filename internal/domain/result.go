package domain

import "time"

type CheckResult struct {
	ID                 string    `json:"id"`
	Kind               CheckKind `json:"type"`
	HostName           string    `json:"host_name"`
	ServiceDescription string    `json:"service_description,omitempty"`
	CheckOptions       int       `json:"check_options"`
	ScheduledCheck     bool      `json:"scheduled_check"`
	RescheduleCheck    bool      `json:"reschedule_check"`
	Latency            float64   `json:"latency"`
	StartTime          StartTime `json:"start_time"`
	FinishTime         StartTime `json:"finish_time"`
	ReturnCode         int       `json:"return_code"`
	ExitedOK           bool      `json:"exited_ok"`
	Output             string    `json:"output"`
	ReceivedAt         time.Time `json:"received_at"`
}

func (r CheckResult) IsHost() bool {
	return r.ServiceDescription == ""
}
