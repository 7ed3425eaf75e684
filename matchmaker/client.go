package matchmaker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"matchmaker-client/metrics"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	opGetTicket    = "get_ticket"
	opCreateTicket = "create_ticket"
	opDeleteTicket = "delete_ticket"

	// error bodies are only kept for logging
	maxErrorBody = 4 << 10
)

// Client talks to the matchmaker REST API and hands assignments to the game transport.
// It keeps no ticket state; every call can be retried by the caller.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	transport  Transport
}

type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithRequestTimeout bounds each HTTP call. Zero leaves only the caller's context.
func WithRequestTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.timeout = d }
}

func NewClient(baseURL string, transport Transport, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		transport:  transport,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) GetTicket(ctx context.Context, ticketID string) (*Ticket, error) {
	var t Ticket
	if err := c.do(ctx, opGetTicket, http.MethodGet, c.ticketURL(ticketID), nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) CreateTicket(ctx context.Context, modeTag string) (*Ticket, error) {
	b, err := json.Marshal(createTicketPayload{Mode: modeTag})
	if err != nil {
		return nil, err
	}
	var t Ticket
	if err := c.do(ctx, opCreateTicket, http.MethodPost, c.baseURL+"/v1/tickets", b, &t); err != nil {
		return nil, err
	}
	log.Info().Str("ticketId", t.ID).Str("mode", modeTag).Msg("matchmaker: ticket created")
	return &t, nil
}

func (c *Client) DeleteTicket(ctx context.Context, ticketID string) error {
	if err := c.do(ctx, opDeleteTicket, http.MethodDelete, c.ticketURL(ticketID), nil, nil); err != nil {
		return err
	}
	log.Info().Str("ticketId", ticketID).Msg("matchmaker: ticket deleted")
	return nil
}

func (c *Client) ticketURL(ticketID string) string {
	return c.baseURL + "/v1/tickets/" + url.PathEscape(ticketID)
}

// do issues one request. Non-2xx statuses become a RemoteError; when out is
// non-nil the body is decoded into it.
func (c *Client) do(ctx context.Context, op, method, target string, body []byte, out *Ticket) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	reqID := uuid.NewString()
	req.Header.Set("X-Request-Id", reqID)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)
	metrics.RequestDuration.WithLabelValues(op).Observe(elapsed.Seconds())
	if err != nil {
		metrics.RequestsTotal.WithLabelValues(op, "error").Inc()
		log.Debug().Err(err).Str("op", op).Str("url", target).Str("requestId", reqID).Dur("latency", elapsed).Msg("matchmaker: request failed")
		return fmt.Errorf("matchmaker %s: %w", op, err)
	}
	defer resp.Body.Close()
	log.Debug().Str("op", op).Str("url", target).Str("requestId", reqID).Int("status", resp.StatusCode).Dur("latency", elapsed).Msg("matchmaker: request done")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		metrics.RequestsTotal.WithLabelValues(op, "failure").Inc()
		return &RemoteError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		metrics.RequestsTotal.WithLabelValues(op, "success").Inc()
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		metrics.RequestsTotal.WithLabelValues(op, "failure").Inc()
		return &DecodeError{Op: op, Err: err}
	}
	if out.ID == "" {
		metrics.RequestsTotal.WithLabelValues(op, "failure").Inc()
		return &DecodeError{Op: op, Err: errors.New("ticket has no id")}
	}
	metrics.RequestsTotal.WithLabelValues(op, "success").Inc()
	return nil
}
