package domain

import "time"

// State is a step of one tenant's billing pipeline.
type State string

const (
	StateDiscovered    State = "discovered"
	StateGateChecked   State = "gate_checked"
	StateSnapshotTaken State = "snapshot_taken"
	StatePriced        State = "priced"
	StateComposed      State = "composed"
	StateSent          State = "sent"
	StateSendFailed    State = "send_failed"
	StateSendSkipped   State = "send_skipped"
	StateSkipped       State = "skipped"
)

// Terminal reports whether no further events apply to s.
func (s State) Terminal() bool {
	switch s {
	case StateSent, StateSendFailed, StateSendSkipped, StateSkipped:
		return true
	}
	return false
}

// Event moves a tenant pipeline from one State to the next.
type Event string

const (
	EventCheckGate    Event = "check_gate"
	EventTakeSnapshot Event = "take_snapshot"
	EventPrice        Event = "price"
	EventCompose      Event = "compose"
	EventSendOK       Event = "send_ok"
	EventSendFail     Event = "send_fail"
	EventSendFault    Event = "send_fault"
	EventSkip         Event = "skip"
)

// Transition defines a valid state change: an event moves a pipeline from Src to Dst.
type Transition struct {
	Event Event
	Src   State
	Dst   State
}

// DispatchTransitions defines every valid step of a tenant billing pipeline.
var DispatchTransitions = []Transition{
	{Event: EventCheckGate, Src: StateDiscovered, Dst: StateGateChecked},
	{Event: EventTakeSnapshot, Src: StateGateChecked, Dst: StateSnapshotTaken},
	{Event: EventPrice, Src: StateSnapshotTaken, Dst: StatePriced},
	{Event: EventCompose, Src: StatePriced, Dst: StateComposed},
	{Event: EventSendOK, Src: StateComposed, Dst: StateSent},
	{Event: EventSendFail, Src: StateComposed, Dst: StateSendFailed},
	{Event: EventSendFault, Src: StateComposed, Dst: StateSendSkipped},
	{Event: EventSkip, Src: StateDiscovered, Dst: StateSkipped},
	{Event: EventSkip, Src: StateGateChecked, Dst: StateSkipped},
	{Event: EventSkip, Src: StateSnapshotTaken, Dst: StateSkipped},
	{Event: EventSkip, Src: StatePriced, Dst: StateSkipped},
}

// ResultStatus is the outcome class of a tenant billing attempt.
type ResultStatus string

const (
	ResultOK      ResultStatus = "ok"
	ResultSkipped ResultStatus = "skipped"
	ResultFailed  ResultStatus = "failed"
)

// StatusOf maps a terminal pipeline state to its result status.
func StatusOf(s State) ResultStatus {
	switch s {
	case StateSent:
		return ResultOK
	case StateSendFailed:
		return ResultFailed
	default:
		return ResultSkipped
	}
}

// Machine-readable skip reasons. Tagged reasons carry a suffix after the colon.
const (
	ReasonNoManagementDate = "no-management-date"
	ReasonNotDueToday      = "not-due-today"
	ReasonNoRate           = "no-rate"
	ReasonNoUsers          = "no-users"
	ReasonDBSkipPrefix     = "db-skip:"
	ReasonSkipPrefix       = "skip:"
	ReasonWebhookPrefix    = "webhook-skip:"
)

// AttachmentInfo is the attachment metadata echoed back in a result.
type AttachmentInfo struct {
	Name      string
	MIME      string
	Bytes     int
	Requested AttachMode
	Attempted AttachmentKind
	Rendered  bool
	Error     string
}

// DispatchResult is the outcome of billing one tenant.
type DispatchResult struct {
	TenantID    string
	CompanyName string
	State       State
	Status      ResultStatus
	Reason      string
	Quantity    int
	Rate        float64
	Total       float64
	Currency    string
	Recipients  []string
	Attachment  *AttachmentInfo
	HTTPStatus  int
	Error       string
}

// RunOptions controls one orchestrator run.
type RunOptions struct {
	// Tenant restricts the run to a single tenant id when non-empty.
	Tenant string
	// Force bypasses the management-date and due-date checks.
	Force bool
	// SendZero bypasses the rate and quantity checks.
	SendZero bool
	// Attach overrides the configured attachment mode when non-empty.
	Attach AttachMode
	// Currency overrides the configured currency when non-empty.
	Currency string
	// Now overrides the wall clock; zero means time.Now.
	Now time.Time
}

// RunCounts summarises a run's results.
type RunCounts struct {
	Total   int
	Sent    int
	Skipped int
	Failed  int
}

// RunReport is the full output of an orchestrator run.
type RunReport struct {
	RunID            string
	RunDate          CivilDate
	StartedAt        time.Time
	FinishedAt       time.Time
	Endpoint         string
	QuantityStrategy QuantityStrategy
	AttachMode       AttachMode
	Currency         string
	Tenant           string
	Forced           bool
	SendZero         bool
	Results          []DispatchResult
	Counts           RunCounts
}

// Tally recomputes Counts from Results.
func (r *RunReport) Tally() {
	c := RunCounts{Total: len(r.Results)}
	for _, res := range r.Results {
		switch res.Status {
		case ResultOK:
			c.Sent++
		case ResultFailed:
			c.Failed++
		default:
			c.Skipped++
		}
	}
	r.Counts = c
}
