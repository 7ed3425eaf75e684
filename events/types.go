package events

import (
	"context"
	"time"
)

const (
	EnvelopeVersion    = "1.0"
	TypeSessionChanged = "session-transition"
)

// SessionEvent is published on every ticket session state transition.
type SessionEvent struct {
	EnvelopeVersion string    `json:"envelopeVersion"`
	Type            string    `json:"type"`
	TicketID        string    `json:"ticketId,omitempty"`
	From            string    `json:"from"`
	To              string    `json:"to"`
	Mode            string    `json:"mode,omitempty"`
	Connection      *string   `json:"connection,omitempty"`
	ErrorMessage    *string   `json:"errorMessage,omitempty"`
	At              time.Time `json:"at"`
}

type NoticeStatus string

const (
	NoticeAssigned NoticeStatus = "Assigned"
	NoticeFailure  NoticeStatus = "Failure"
)

// AssignmentNotice tells the client a ticket changed server side, so it can
// refresh ahead of its next poll.
type AssignmentNotice struct {
	TicketID string       `json:"ticketId"`
	Status   NoticeStatus `json:"status"`
}

type Publisher interface {
	PublishEvent(ctx context.Context, ev *SessionEvent) error
}

type Subscriber interface {
	Start(ctx context.Context, handler func(context.Context, *AssignmentNotice) error) error
}
