package domain

type Priority int

const (
	PriorityNormal Priority = iota
	PriorityLow
)

func (p Priority) String() string {
	if p == PriorityLow {
		return "low"
	}
	return "normal"
}

// TargetDecision is either local execution or a broker queue.
type TargetDecision struct {
	Queue    string
	Priority Priority
}

var Local = TargetDecision{}

func Remote(queue string, priority Priority) TargetDecision {
	return TargetDecision{Queue: queue, Priority: priority}
}

func (d TargetDecision) IsLocal() bool {
	return d.Queue == ""
}

func (d TargetDecision) String() string {
	if d.IsLocal() {
		return "local"
	}
	return d.Queue + "(" + d.Priority.String() + ")"
}
