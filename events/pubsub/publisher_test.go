package pubsub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"matchmaker-client/events"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

type args struct {
	ev *events.SessionEvent
}

type test struct {
	name    string
	setup   func() *Publisher
	args    args
	wantErr bool
}

func newTestClient(t *testing.T) (*pstest.Server, *pubsub.Client) {
	t.Helper()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial error: %#v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(context.Background(), "test-project", option.WithGRPCConn(conn))
	if err != nil {
		t.Fatalf("client error: %#v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return srv, client
}

func TestPublisher_PublishEvent(t *testing.T) {
	if testing.Short() {
		t.Skip("short")
	}

	srv, client := newTestClient(t)
	ctx := context.Background()
	conn := "203.0.113.5:7777"

	tests := []test{
		{
			name: "success",
			setup: func() *Publisher {
				topic, err := client.CreateTopic(ctx, "session-events")
				if err != nil {
					t.Fatalf("create topic: %#v", err)
				}
				return &Publisher{projectID: "test-project", topicName: "session-events", client: client, topic: topic}
			},
			args:    args{ev: &events.SessionEvent{EnvelopeVersion: "1.0", Type: events.TypeSessionChanged, TicketID: "t1", From: "assigned", To: "online", Connection: &conn, At: time.Unix(0, 0).UTC()}},
			wantErr: false,
		},
		{
			name: "missing topic error",
			setup: func() *Publisher {
				topic := client.Topic("missing-topic")
				return &Publisher{projectID: "test-project", topicName: "missing-topic", client: client, topic: topic}
			},
			args:    args{ev: &events.SessionEvent{EnvelopeVersion: "1.0", Type: events.TypeSessionChanged, TicketID: "t2", From: "pending", To: "idle"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.setup()
			err := p.PublishEvent(ctx, tt.args.ev)
			gotErr := (err != nil)
			if gotErr != tt.wantErr {
				t.Errorf("PublishEvent() error mismatch\ngotErr: %#v\nwantErr: %#v\nerr: %#v", gotErr, tt.wantErr, err)
			}
		})
	}

	msgs := srv.Messages()
	if len(msgs) != 1 {
		t.Fatalf("published messages got=%d want=1", len(msgs))
	}
	var got events.SessionEvent
	if err := json.Unmarshal(msgs[0].Data, &got); err != nil {
		t.Fatalf("unmarshal published event: %#v", err)
	}
	if got.TicketID != "t1" || got.To != "online" || got.Connection == nil || *got.Connection != conn {
		t.Errorf("published event mismatch: %#v", got)
	}
	if msgs[0].Attributes["to"] != "online" {
		t.Errorf("attributes mismatch: %#v", msgs[0].Attributes)
	}
}

func TestPublisher_CloseUninitialized(t *testing.T) {
	p := NewPublisher("p", "t", "")
	if err := p.Close(); err != nil {
		t.Errorf("Close() on unused publisher err=%#v", err)
	}
}
