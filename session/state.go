package session

import (
	"errors"

	"matchmaker-client/matchmaker"
	"matchmaker-client/metrics"
)

type State int

const (
	StateIdle State = iota
	StatePending
	StateAssigned
	StateOnline
)

var allStates = []State{StateIdle, StatePending, StateAssigned, StateOnline}

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePending:
		return "pending"
	case StateAssigned:
		return "assigned"
	case StateOnline:
		return "online"
	default:
		return "unknown"
	}
}

var (
	ErrEmptyMode    = errors.New("session: empty mode tag")
	ErrTicketActive = errors.New("session: a ticket is already active")
	ErrBusy         = errors.New("session: a create request is already outstanding")
	ErrNoTicket     = errors.New("session: no pending ticket")
	ErrSuperseded   = errors.New("session: ticket superseded by disconnect")
)

// Snapshot is what a presentation layer reads once per frame.
type Snapshot struct {
	State     State
	Ticket    *matchmaker.Ticket
	Mode      string
	Target    string
	LastError string
	// Refreshing is true while a poll request is outstanding.
	Refreshing bool
}

// CanCreate reports whether a create control should be enabled.
func (s Snapshot) CanCreate() bool { return s.State == StateIdle }

// CanDelete reports whether a delete control should be enabled.
func (s Snapshot) CanDelete() bool { return s.State == StatePending }

func (s Snapshot) Online() bool { return s.State == StateOnline }

func setStateGauge(current State) {
	for _, st := range allStates {
		v := 0.0
		if st == current {
			v = 1
		}
		metrics.SessionState.WithLabelValues(st.String()).Set(v)
	}
}
