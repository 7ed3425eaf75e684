package matchmaker

import "context"

// Ticket is a matchmaking request as tracked by the remote matchmaker.
type Ticket struct {
	ID           string               `json:"id"`
	Assignment   *Assignment          `json:"assignment"`
	SearchFields SearchFields         `json:"search_fields"`
	Extensions   map[string]Extension `json:"extensions,omitempty"`
	CreateTime   string               `json:"create_time"`
}

// Assignment is the game server a ticket was matched to. Connection is host:port.
type Assignment struct {
	Connection string               `json:"connection"`
	Extensions map[string]Extension `json:"extensions,omitempty"`
}

type SearchFields struct {
	Tags []string `json:"tags"`
}

// Extension is an opaque typed payload, passed through unexamined.
type Extension struct {
	Type  string `json:"type"`
	Value []byte `json:"value"`
}

type createTicketPayload struct {
	Mode string `json:"mode"`
}

// Assigned reports whether the matchmaker has paired the ticket with a server.
func (t *Ticket) Assigned() bool {
	return t != nil && t.Assignment != nil
}

// Clone returns a copy that shares no slices or maps with t.
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	out := *t
	out.SearchFields.Tags = append([]string(nil), t.SearchFields.Tags...)
	out.Extensions = cloneExtensions(t.Extensions)
	if t.Assignment != nil {
		a := *t.Assignment
		a.Extensions = cloneExtensions(t.Assignment.Extensions)
		out.Assignment = &a
	}
	return &out
}

func cloneExtensions(in map[string]Extension) map[string]Extension {
	if in == nil {
		return nil
	}
	out := make(map[string]Extension, len(in))
	for k, v := range in {
		v.Value = append([]byte(nil), v.Value...)
		out[k] = v
	}
	return out
}

// Transport is the game network transport a resolved assignment is handed to.
type Transport interface {
	SetTarget(host string, port uint16)
	StartClient(ctx context.Context) error
	StopClient() error
}
