package payload

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"ozzus/check-dispatcher/internal/domain"
)

// Fields is a decoded record set. Keys keep their last value.
type Fields map[string]string

func (f Fields) Int(key string) (int, error) {
	v, ok := f[key]
	if !ok || v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("field %s: %w", key, err)
	}
	return n, nil
}

func (f Fields) Float(key string) (float64, error) {
	v, ok := f[key]
	if !ok || v == "" {
		return 0, nil
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("field %s: %w", key, err)
	}
	return x, nil
}

func (f Fields) Bool(key string) (bool, error) {
	n, err := f.Int(key)
	return n != 0, err
}

func (f Fields) Time(key string) (domain.StartTime, error) {
	v, ok := f[key]
	if !ok || v == "" {
		return domain.StartTime{}, nil
	}
	return ParseTime(v)
}

// ParseTime accepts "<sec>.<usec>" as written by FormatTime.
func ParseTime(s string) (domain.StartTime, error) {
	secStr, usecStr, _ := strings.Cut(strings.TrimSpace(s), ".")
	sec, err := strconv.ParseInt(secStr, 10, 64)
	if err != nil {
		return domain.StartTime{}, fmt.Errorf("bad time %q: %w", s, err)
	}
	var usec int64
	if usecStr != "" {
		usec, err = strconv.ParseInt(usecStr, 10, 64)
		if err != nil {
			return domain.StartTime{}, fmt.Errorf("bad time %q: %w", s, err)
		}
	}
	return domain.StartTime{Sec: sec, Usec: usec}, nil
}

func isTail(key string) bool {
	return key == KeyCommandLine || key == KeyOutput
}

// Decode parses a record set. A tail key consumes the rest of the data, minus
// the terminating newline. Lines without "=" are skipped.
func Decode(data []byte) Fields {
	fields := make(Fields)

	for len(data) > 0 {
		line := data
		rest := []byte(nil)
		if i := bytes.IndexByte(data, '\n'); i >= 0 {
			line, rest = data[:i], data[i+1:]
		}

		key, value, ok := bytes.Cut(line, []byte("="))
		if ok && isTail(string(key)) {
			tail := data[len(key)+1:]
			fields[string(key)] = string(bytes.TrimSuffix(tail, []byte("\n")))
			return fields
		}
		if ok && len(key) > 0 {
			fields[string(key)] = string(value)
		}
		data = rest
	}

	return fields
}

// ParseResult decodes a result payload posted by a worker to the result queue.
func ParseResult(data []byte) (*domain.CheckResult, error) {
	f := Decode(data)

	host := f[KeyHostName]
	if host == "" {
		return nil, fmt.Errorf("result without %s", KeyHostName)
	}

	res := &domain.CheckResult{
		Kind:               domain.CheckKind(f[KeyType]),
		HostName:           host,
		ServiceDescription: f[KeyServiceDescription],
		Output:             f[KeyOutput],
		ReceivedAt:         time.Now(),
	}
	if res.Kind == "" {
		res.Kind = domain.CheckKindHost
		if res.ServiceDescription != "" {
			res.Kind = domain.CheckKindService
		}
	}

	var err error
	if res.CheckOptions, err = f.Int(KeyCheckOptions); err != nil {
		return nil, err
	}
	if res.ScheduledCheck, err = f.Bool(KeyScheduledCheck); err != nil {
		return nil, err
	}
	if res.RescheduleCheck, err = f.Bool(KeyRescheduleCheck); err != nil {
		return nil, err
	}
	if res.Latency, err = f.Float(KeyLatency); err != nil {
		return nil, err
	}
	if res.StartTime, err = f.Time(KeyStartTime); err != nil {
		return nil, err
	}
	if res.FinishTime, err = f.Time(KeyFinishTime); err != nil {
		return nil, err
	}
	if res.ReturnCode, err = f.Int(KeyReturnCode); err != nil {
		return nil, err
	}

	res.ExitedOK = true
	if _, ok := f[KeyExitedOK]; ok {
		if res.ExitedOK, err = f.Bool(KeyExitedOK); err != nil {
			return nil, err
		}
	}

	return res, nil
}
