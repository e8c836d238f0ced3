// Package payload implements the job wire format shared with remote workers:
// one "key=value" record per line, terminated by a newline. The command_line
// (and, in results, output) field is always last and is not escaped; readers
// treat everything after its key as the value.
package payload

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"

	"ozzus/check-dispatcher/internal/domain"
)

// MaxSize bounds a single job payload.
const MaxSize = 128 * 1024

var ErrTooLarge = errors.New("payload too large")

const (
	KeyType               = "type"
	KeyResultQueue        = "result_queue"
	KeyHostName           = "host_name"
	KeyServiceDescription = "service_description"
	KeyStartTime          = "start_time"
	KeyFinishTime         = "finish_time"
	KeyTimeout            = "timeout"
	KeyCheckOptions       = "check_options"
	KeyScheduledCheck     = "scheduled_check"
	KeyRescheduleCheck    = "reschedule_check"
	KeyLatency            = "latency"
	KeyReturnCode         = "return_code"
	KeyExitedOK           = "exited_ok"
	KeyCommandLine        = "command_line"
	KeyOutput             = "output"
)

// Encode serializes a check request. Payloads above MaxSize are rejected
// rather than cut.
func Encode(req domain.CheckRequest, resultQueue string) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(256 + len(req.CommandLine))

	switch req.Kind {
	case domain.CheckKindHost:
		field(&buf, KeyType, string(domain.CheckKindHost))
		field(&buf, KeyResultQueue, resultQueue)
		field(&buf, KeyHostName, req.HostName)
		field(&buf, KeyStartTime, FormatTime(req.StartTime))
		field(&buf, KeyTimeout, strconv.Itoa(req.Timeout))
		field(&buf, KeyCommandLine, req.CommandLine)
	case domain.CheckKindService:
		field(&buf, KeyType, string(domain.CheckKindService))
		field(&buf, KeyResultQueue, resultQueue)
		field(&buf, KeyHostName, req.HostName)
		field(&buf, KeyServiceDescription, req.ServiceDescription)
		field(&buf, KeyStartTime, FormatTime(req.StartTime))
		field(&buf, KeyTimeout, strconv.Itoa(req.Timeout))
		field(&buf, KeyCheckOptions, strconv.Itoa(req.CheckOptions))
		field(&buf, KeyScheduledCheck, flag(req.ScheduledCheck))
		field(&buf, KeyRescheduleCheck, flag(req.RescheduleCheck))
		field(&buf, KeyLatency, strconv.FormatFloat(req.Latency, 'f', 6, 64))
		field(&buf, KeyCommandLine, req.CommandLine)
	case domain.CheckKindEventHandler:
		field(&buf, KeyType, string(domain.CheckKindEventHandler))
		field(&buf, KeyCommandLine, req.CommandLine)
	default:
		return nil, fmt.Errorf("unknown check kind %q", req.Kind)
	}

	if buf.Len() > MaxSize {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrTooLarge, buf.Len(), MaxSize)
	}
	return buf.Bytes(), nil
}

// FormatTime renders "<sec>.<usec>" with the microseconds unpadded, which is
// what existing workers parse.
func FormatTime(t domain.StartTime) string {
	return strconv.FormatInt(t.Sec, 10) + "." + strconv.FormatInt(t.Usec, 10)
}

func field(buf *bytes.Buffer, key, value string) {
	buf.WriteString(key)
	buf.WriteByte('=')
	buf.WriteString(value)
	buf.WriteByte('\n')
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
