package matchmaker

import (
	"context"
	"strconv"
	"strings"

	"matchmaker-client/metrics"

	"github.com/rs/zerolog/log"
)

// ParseConnection splits an assignment connection string into host and port.
// The string must contain exactly one ':' with a non-empty host and a port
// that fits in an unsigned 16-bit integer.
func ParseConnection(conn string) (string, uint16, error) {
	if strings.Count(conn, ":") != 1 {
		return "", 0, &InvalidAssignmentError{Connection: conn, Reason: "expected exactly one ':' separator"}
	}
	host, portStr, _ := strings.Cut(conn, ":")
	if host == "" {
		return "", 0, &InvalidAssignmentError{Connection: conn, Reason: "empty host"}
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return "", 0, &InvalidAssignmentError{Connection: conn, Reason: "port couldn't be parsed"}
	}
	return host, uint16(port), nil
}

// Connect points the transport at the assigned server and starts the client.
// The transport is left untouched when the assignment does not parse.
func (c *Client) Connect(ctx context.Context, a *Assignment) error {
	if a == nil {
		metrics.ConnectsTotal.WithLabelValues("invalid").Inc()
		return &InvalidAssignmentError{Reason: "no assignment"}
	}
	host, port, err := ParseConnection(a.Connection)
	if err != nil {
		metrics.ConnectsTotal.WithLabelValues("invalid").Inc()
		return err
	}
	c.transport.SetTarget(host, port)
	if err := c.transport.StartClient(ctx); err != nil {
		metrics.ConnectsTotal.WithLabelValues("failure").Inc()
		return &TransportError{Target: a.Connection, Err: err}
	}
	metrics.ConnectsTotal.WithLabelValues("success").Inc()
	log.Info().Str("host", host).Uint16("port", port).Msg("matchmaker: client connected to match")
	return nil
}

// Disconnect stops the transport client. Safe to call when not connected.
func (c *Client) Disconnect() error {
	if err := c.transport.StopClient(); err != nil {
		return err
	}
	log.Info().Msg("matchmaker: client disconnected")
	return nil
}
