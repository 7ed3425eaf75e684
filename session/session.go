package session

import (
	"context"
	"sync"
	"time"

	"matchmaker-client/events"
	"matchmaker-client/matchmaker"
	"matchmaker-client/metrics"

	"github.com/rs/zerolog/log"
)

const (
	DefaultPollInterval       = 5 * time.Second
	DefaultMaxRefreshFailures = 3

	publishTimeout = 5 * time.Second
)

// Matchmaker is the part of *matchmaker.Client the session drives.
type Matchmaker interface {
	CreateTicket(ctx context.Context, modeTag string) (*matchmaker.Ticket, error)
	GetTicket(ctx context.Context, ticketID string) (*matchmaker.Ticket, error)
	DeleteTicket(ctx context.Context, ticketID string) error
	Connect(ctx context.Context, a *matchmaker.Assignment) error
	Disconnect() error
}

type Option func(*Session)

func WithPollInterval(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithMaxRefreshFailures sets how many consecutive failed polls drop the
// ticket. Zero keeps polling forever.
func WithMaxRefreshFailures(n int) Option {
	return func(s *Session) {
		if n >= 0 {
			s.maxFailures = n
		}
	}
}

func WithPublisher(p events.Publisher) Option {
	return func(s *Session) { s.publisher = p }
}

func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// Session tracks one matchmaking attempt: Idle -> Pending -> Assigned -> Online.
//
// Every local change that invalidates outstanding requests (delete,
// disconnect) bumps generation; responses stamped with an older generation
// are dropped.
type Session struct {
	client       Matchmaker
	publisher    events.Publisher
	pollInterval time.Duration
	maxFailures  int
	now          func() time.Time

	mu            sync.Mutex
	state         State
	ticket        *matchmaker.Ticket
	mode          string
	target        string
	lastErr       string
	createdAt     time.Time
	nextPoll      time.Time
	failures      int
	generation    uint64
	creating      bool
	inFlight      bool
	cancelRefresh context.CancelFunc

	wg sync.WaitGroup
}

func New(client Matchmaker, opts ...Option) *Session {
	s := &Session{
		client:       client,
		pollInterval: DefaultPollInterval,
		maxFailures:  DefaultMaxRefreshFailures,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	setStateGauge(StateIdle)
	return s
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		State:      s.state,
		Ticket:     s.ticket.Clone(),
		Mode:       s.mode,
		Target:     s.target,
		LastError:  s.lastErr,
		Refreshing: s.inFlight,
	}
}

// Wait blocks until background refreshes, and any connect they started, return.
func (s *Session) Wait() {
	s.wg.Wait()
}

// Create requests a new ticket for mode. The session only leaves Idle when
// the matchmaker accepts the ticket.
func (s *Session) Create(ctx context.Context, mode string) (*matchmaker.Ticket, error) {
	if mode == "" {
		return nil, ErrEmptyMode
	}
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return nil, ErrTicketActive
	}
	if s.creating {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	s.creating = true
	gen := s.generation
	s.mu.Unlock()

	log.Info().Str("mode", mode).Msg("session: creating ticket")
	t, err := s.client.CreateTicket(ctx, mode)

	s.mu.Lock()
	s.creating = false
	if err != nil {
		s.lastErr = err.Error()
		s.mu.Unlock()
		log.Error().Err(err).Str("mode", mode).Msg("session: create ticket failed")
		return nil, err
	}
	if gen != s.generation || s.state != StateIdle {
		s.mu.Unlock()
		log.Warn().Str("ticketId", t.ID).Msg("session: ticket created after disconnect; deleting it")
		if derr := s.client.DeleteTicket(ctx, t.ID); derr != nil {
			log.Error().Err(derr).Str("ticketId", t.ID).Msg("session: failed to delete superseded ticket")
		}
		return nil, ErrSuperseded
	}
	now := s.now()
	s.ticket = t
	s.mode = mode
	s.target = ""
	s.lastErr = ""
	s.failures = 0
	s.createdAt = now
	s.nextPoll = now.Add(s.pollInterval)
	ev := s.transition(StatePending, t.ID, nil)
	out := t.Clone()
	var (
		assignment *matchmaker.Assignment
		assignedEv *events.SessionEvent
	)
	if t.Assigned() {
		assignment, assignedEv = s.assignLocked()
	}
	s.mu.Unlock()
	s.publish(ctx, ev)

	if assignment != nil {
		s.publish(ctx, assignedEv)
		s.connect(ctx, gen, t.ID, assignment)
	}
	return out, nil
}

// Tick is called once per frame. In Pending it starts a refresh when the poll
// interval has elapsed and no refresh is outstanding. It never blocks on I/O.
func (s *Session) Tick(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePending || s.inFlight || s.now().Before(s.nextPoll) {
		return
	}
	s.startRefreshLocked(ctx)
}

// Nudge refreshes ticketID now instead of waiting for the next poll. It still
// respects the single outstanding refresh, and ignores other ticket ids.
func (s *Session) Nudge(ctx context.Context, ticketID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePending || s.inFlight || s.ticket == nil || s.ticket.ID != ticketID {
		return false
	}
	log.Debug().Str("ticketId", ticketID).Msg("session: refresh nudged")
	s.startRefreshLocked(ctx)
	return true
}

func (s *Session) startRefreshLocked(ctx context.Context) {
	gen := s.generation
	id := s.ticket.ID
	rctx, cancel := context.WithCancel(ctx)
	s.inFlight = true
	s.cancelRefresh = cancel
	s.nextPoll = s.now().Add(s.pollInterval)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		s.refresh(ctx, rctx, gen, id)
	}()
}

func (s *Session) refresh(ctx, rctx context.Context, gen uint64, ticketID string) {
	log.Debug().Str("ticketId", ticketID).Msg("session: refreshing ticket")
	t, err := s.client.GetTicket(rctx, ticketID)

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		log.Debug().Str("ticketId", ticketID).Msg("session: dropping stale refresh result")
		return
	}
	s.inFlight = false
	s.cancelRefresh = nil
	if s.state != StatePending {
		// the ticket was consumed while this request was outstanding
		st := s.state
		s.mu.Unlock()
		log.Debug().Str("ticketId", ticketID).Str("state", st.String()).Msg("session: dropping refresh result outside pending")
		return
	}

	if err != nil {
		if ctx.Err() != nil {
			// shutting down; keep the ticket as is
			s.mu.Unlock()
			return
		}
		s.lastErr = err.Error()
		var ev *events.SessionEvent
		switch {
		case matchmaker.IsNotFound(err):
			log.Warn().Err(err).Str("ticketId", ticketID).Msg("session: ticket no longer exists; dropping it")
			ev = s.dropTicketLocked(ticketID, err)
		default:
			s.failures++
			if s.maxFailures > 0 && s.failures >= s.maxFailures {
				log.Error().Err(err).Str("ticketId", ticketID).Int("failures", s.failures).Msg("session: too many failed refreshes; dropping ticket")
				ev = s.dropTicketLocked(ticketID, err)
			} else {
				log.Warn().Err(err).Str("ticketId", ticketID).Int("failures", s.failures).Msg("session: refresh failed; retrying next poll")
			}
		}
		s.mu.Unlock()
		s.publish(ctx, ev)
		return
	}

	s.failures = 0
	s.ticket = t
	if !t.Assigned() {
		s.mu.Unlock()
		log.Debug().Str("ticketId", ticketID).Msg("session: ticket still waiting for assignment")
		return
	}
	assignment, ev := s.assignLocked()
	s.mu.Unlock()
	s.publish(ctx, ev)
	s.connect(ctx, gen, t.ID, assignment)
}

// assignLocked moves a Pending session holding an assigned ticket to
// Assigned. It runs in the same critical section that stored the ticket, so
// no other refresh can start in between and Connect is attempted at most
// once per ticket.
func (s *Session) assignLocked() (*matchmaker.Assignment, *events.SessionEvent) {
	metrics.TicketWait.Observe(s.now().Sub(s.createdAt).Seconds())
	return s.ticket.Clone().Assignment, s.transition(StateAssigned, s.ticket.ID, nil)
}

// connect hands the assignment to the transport and settles Assigned into
// Online, or Idle on failure. The ticket is consumed either way.
func (s *Session) connect(ctx context.Context, gen uint64, ticketID string, assignment *matchmaker.Assignment) {
	log.Info().Str("ticketId", ticketID).Str("connection", assignment.Connection).Msg("session: ticket assigned; connecting")
	err := s.client.Connect(ctx, assignment)

	var ev *events.SessionEvent
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		// disconnected while connecting; the transport must not stay up
		if err == nil {
			if derr := s.client.Disconnect(); derr != nil {
				log.Error().Err(derr).Msg("session: failed to stop superseded connection")
			}
		}
		return
	}
	s.ticket = nil
	if err != nil {
		s.lastErr = err.Error()
		ev = s.transition(StateIdle, ticketID, err)
		s.mu.Unlock()
		log.Error().Err(err).Str("ticketId", ticketID).Str("connection", assignment.Connection).Msg("session: failed to connect; ticket discarded")
		s.publish(ctx, ev)
		return
	}
	s.target = assignment.Connection
	ev = s.transition(StateOnline, ticketID, nil)
	s.mu.Unlock()
	s.publish(ctx, ev)
}

// Delete cancels the pending ticket. The session is Idle afterwards even when
// the matchmaker rejects the delete; that error is returned.
func (s *Session) Delete(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StatePending || s.ticket == nil {
		s.mu.Unlock()
		return ErrNoTicket
	}
	ticketID := s.ticket.ID
	s.invalidateLocked()
	s.ticket = nil
	ev := s.transition(StateIdle, ticketID, nil)
	s.mu.Unlock()
	s.publish(ctx, ev)

	if err := s.client.DeleteTicket(ctx, ticketID); err != nil {
		log.Error().Err(err).Str("ticketId", ticketID).Msg("session: remote delete failed; ticket dropped locally")
		s.mu.Lock()
		s.lastErr = err.Error()
		s.mu.Unlock()
		return err
	}
	return nil
}

// Disconnect leaves the match (or abandons the ticket) and returns to Idle
// from any state. The transport stop error is returned.
func (s *Session) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	s.invalidateLocked()
	var ticketID string
	if s.ticket != nil {
		ticketID = s.ticket.ID
	}
	s.ticket = nil
	s.target = ""
	var ev *events.SessionEvent
	if s.state != StateIdle {
		ev = s.transition(StateIdle, ticketID, nil)
	}
	s.mu.Unlock()

	// a connect finishing after this point sees the new generation and stops itself
	err := s.client.Disconnect()
	if err != nil {
		log.Error().Err(err).Msg("session: transport stop failed")
	}
	s.publish(ctx, ev)
	return err
}

// invalidateLocked makes every outstanding response stale.
func (s *Session) invalidateLocked() {
	s.generation++
	if s.cancelRefresh != nil {
		s.cancelRefresh()
		s.cancelRefresh = nil
	}
	s.inFlight = false
	s.failures = 0
}

func (s *Session) dropTicketLocked(ticketID string, cause error) *events.SessionEvent {
	s.generation++
	s.ticket = nil
	s.failures = 0
	return s.transition(StateIdle, ticketID, cause)
}

func (s *Session) transition(to State, ticketID string, cause error) *events.SessionEvent {
	from := s.state
	s.state = to
	metrics.TransitionsTotal.WithLabelValues(from.String(), to.String()).Inc()
	setStateGauge(to)
	log.Info().Str("ticketId", ticketID).Str("from", from.String()).Str("to", to.String()).Msg("session: state changed")

	if s.publisher == nil {
		return nil
	}
	ev := &events.SessionEvent{
		EnvelopeVersion: events.EnvelopeVersion,
		Type:            events.TypeSessionChanged,
		TicketID:        ticketID,
		From:            from.String(),
		To:              to.String(),
		Mode:            s.mode,
		At:              s.now(),
	}
	if to == StateOnline && s.target != "" {
		conn := s.target
		ev.Connection = &conn
	}
	if cause != nil {
		msg := cause.Error()
		ev.ErrorMessage = &msg
	}
	return ev
}

func (s *Session) publish(ctx context.Context, ev *events.SessionEvent) {
	if ev == nil || s.publisher == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.publisher.PublishEvent(pctx, ev); err != nil {
		log.Warn().Err(err).Str("ticketId", ev.TicketID).Str("to", ev.To).Msg("session: failed to publish event")
	}
}
