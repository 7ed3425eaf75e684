package transport

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"

	"github.com/rs/zerolog/log"
	kcp "github.com/xtaci/kcp-go/v5"
)

var ErrNoTarget = errors.New("transport: no target set")

// KCP is a client-side KCP transport. SetTarget only records the server;
// StartClient opens the session.
type KCP struct {
	mu      sync.Mutex
	host    string
	port    uint16
	noDelay bool
	sess    *kcp.UDPSession
}

func NewKCP(noDelay bool) *KCP {
	return &KCP{noDelay: noDelay}
}

func (t *KCP) SetTarget(host string, port uint16) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.host, t.port = host, port
}

// Target returns the current host:port, or "" when unset.
func (t *KCP) Target() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.target()
}

func (t *KCP) target() string {
	if t.host == "" {
		return ""
	}
	return net.JoinHostPort(t.host, strconv.Itoa(int(t.port)))
}

// StartClient dials the target, replacing any open session.
func (t *KCP) StartClient(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	addr := t.target()
	if addr == "" {
		return ErrNoTarget
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.sess != nil {
		_ = t.sess.Close()
		t.sess = nil
	}
	sess, err := kcp.DialWithOptions(addr, nil, 0, 0)
	if err != nil {
		log.Error().Err(err).Str("addr", addr).Msg("transport: kcp dial failed")
		return err
	}
	if t.noDelay {
		sess.SetNoDelay(1, 10, 2, 1)
	}
	sess.SetWindowSize(128, 128)
	sess.SetStreamMode(true)
	t.sess = sess
	log.Info().Str("addr", addr).Str("local", sess.LocalAddr().String()).Msg("transport: kcp client started")
	return nil
}

// StopClient closes the session if one is open.
func (t *KCP) StopClient() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sess == nil {
		return nil
	}
	err := t.sess.Close()
	t.sess = nil
	log.Info().Str("addr", t.target()).Msg("transport: kcp client stopped")
	return err
}

func (t *KCP) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sess != nil
}
