package pubsub

import (
	"context"
	"encoding/json"
	"time"

	"matchmaker-client/events"

	gpubsub "cloud.google.com/go/pubsub"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

type Subscriber struct {
	projectID        string
	subscriptionName string
	credsFile        string
	client           *gpubsub.Client
	sub              *gpubsub.Subscription
}

func NewSubscriber(projectID, subscriptionName, credsFile string) *Subscriber {
	return &Subscriber{projectID: projectID, subscriptionName: subscriptionName, credsFile: credsFile}
}

func (s *Subscriber) Start(ctx context.Context, handler func(context.Context, *events.AssignmentNotice) error) error {
	if s.client == nil {
		var (
			client *gpubsub.Client
			err    error
		)
		if s.credsFile != "" {
			log.Debug().Str("projectID", s.projectID).Str("subscription", s.subscriptionName).Str("credsFile", s.credsFile).Msg("initializing pubsub subscriber with explicit credentials")
			client, err = gpubsub.NewClient(ctx, s.projectID, option.WithCredentialsFile(s.credsFile))
		} else {
			log.Debug().Str("projectID", s.projectID).Str("subscription", s.subscriptionName).Msg("initializing pubsub subscriber with default credentials")
			client, err = gpubsub.NewClient(ctx, s.projectID)
		}
		if err != nil {
			log.Error().Err(err).Str("projectID", s.projectID).Str("subscription", s.subscriptionName).Msg("failed to create pubsub client for subscriber")
			return err
		}
		s.client = client
		s.sub = client.Subscription(s.subscriptionName)
		log.Info().Str("subscription", s.subscriptionName).Msg("pubsub subscriber initialized")
	}

	return s.sub.Receive(ctx, func(ctx context.Context, m *gpubsub.Message) {
		handleMessage(ctx, m, handler)
	})
}

// ackNacker is the part of a Pub/Sub message handleMessage settles.
type ackNacker interface {
	Ack()
	Nack()
}

func handleMessage(ctx context.Context, m *gpubsub.Message, handler func(context.Context, *events.AssignmentNotice) error) {
	log.Debug().Str("messageID", m.ID).Int("size", len(m.Data)).Msg("received pubsub message")
	settle(ctx, m.Data, m, handler)
}

func settle(ctx context.Context, data []byte, m ackNacker, handler func(context.Context, *events.AssignmentNotice) error) {
	recvAt := time.Now()
	var notice events.AssignmentNotice
	if err := json.Unmarshal(data, &notice); err != nil {
		log.Error().Err(err).Msg("failed to unmarshal assignment notice")
		m.Nack()
		return
	}
	if notice.TicketID == "" {
		log.Error().Str("status", string(notice.Status)).Msg("assignment notice without ticket id")
		// poison message, drop it
		m.Ack()
		return
	}
	if err := handler(ctx, &notice); err != nil {
		log.Error().Err(err).Str("ticketId", notice.TicketID).Msg("notice handler failed; will retry")
		m.Nack()
		return
	}
	log.Debug().Str("ticketId", notice.TicketID).Dur("latency", time.Since(recvAt)).Msg("notice handled; acking message")
	m.Ack()
}
