package matchmaker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	host     string
	port     uint16
	setCalls int
	started  int
	stopped  int
	startErr error
}

func (f *fakeTransport) SetTarget(host string, port uint16) {
	f.host, f.port = host, port
	f.setCalls++
}

func (f *fakeTransport) StartClient(ctx context.Context) error {
	f.started++
	return f.startErr
}

func (f *fakeTransport) StopClient() error {
	f.stopped++
	return nil
}

func TestParseConnection(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		wantHost string
		wantPort uint16
		wantErr  bool
	}{
		{name: "ipv4", in: "203.0.113.5:7777", wantHost: "203.0.113.5", wantPort: 7777},
		{name: "hostname", in: "game.example.com:1", wantHost: "game.example.com", wantPort: 1},
		{name: "port zero", in: "h:0", wantHost: "h", wantPort: 0},
		{name: "max port", in: "h:65535", wantHost: "h", wantPort: 65535},
		{name: "no separator", in: "bad-format", wantErr: true},
		{name: "two separators", in: "h:1:2", wantErr: true},
		{name: "ipv6 literal", in: "::1", wantErr: true},
		{name: "empty", in: "", wantErr: true},
		{name: "empty host", in: ":7777", wantErr: true},
		{name: "empty port", in: "h:", wantErr: true},
		{name: "non numeric port", in: "h:abc", wantErr: true},
		{name: "negative port", in: "h:-1", wantErr: true},
		{name: "signed port", in: "h:+80", wantErr: true},
		{name: "out of range port", in: "h:65536", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, port, err := ParseConnection(tt.in)
			if tt.wantErr {
				var ia *InvalidAssignmentError
				require.ErrorAs(t, err, &ia)
				assert.Equal(t, tt.in, ia.Connection)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantHost, host)
			assert.Equal(t, tt.wantPort, port)
		})
	}
}

func TestClient_Connect(t *testing.T) {
	tests := []struct {
		name          string
		assignment    *Assignment
		startErr      error
		wantInvalid   bool
		wantTransport bool
		wantHost      string
		wantPort      uint16
	}{
		{name: "connects", assignment: &Assignment{Connection: "203.0.113.5:7777"}, wantHost: "203.0.113.5", wantPort: 7777},
		{name: "bad format", assignment: &Assignment{Connection: "bad-format"}, wantInvalid: true},
		{name: "bad port", assignment: &Assignment{Connection: "h:99999"}, wantInvalid: true},
		{name: "nil assignment", assignment: nil, wantInvalid: true},
		{name: "transport fails", assignment: &Assignment{Connection: "h:1"}, startErr: errors.New("refused"), wantTransport: true, wantHost: "h", wantPort: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &fakeTransport{host: "unchanged", port: 1, startErr: tt.startErr}
			c := NewClient("http://mm", tr)
			err := c.Connect(context.Background(), tt.assignment)

			switch {
			case tt.wantInvalid:
				var ia *InvalidAssignmentError
				require.ErrorAs(t, err, &ia)
				assert.Equal(t, 0, tr.setCalls, "transport target must be left unchanged")
				assert.Equal(t, "unchanged", tr.host)
				assert.Equal(t, 0, tr.started)
			case tt.wantTransport:
				var te *TransportError
				require.ErrorAs(t, err, &te)
				assert.ErrorIs(t, err, tt.startErr)
				assert.Equal(t, tt.wantHost, tr.host)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.wantHost, tr.host)
				assert.Equal(t, tt.wantPort, tr.port)
				assert.Equal(t, 1, tr.started)
			}
		})
	}
}

func TestClient_Disconnect(t *testing.T) {
	tr := &fakeTransport{}
	c := NewClient("http://mm", tr)
	require.NoError(t, c.Disconnect())
	require.NoError(t, c.Disconnect())
	assert.Equal(t, 2, tr.stopped)
}
