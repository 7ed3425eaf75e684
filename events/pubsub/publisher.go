package pubsub

import (
	"context"
	"encoding/json"
	"sync"

	"matchmaker-client/events"

	gpubsub "cloud.google.com/go/pubsub"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

type Publisher struct {
	projectID string
	topicName string
	credsFile string

	mu     sync.Mutex
	client *gpubsub.Client
	topic  *gpubsub.Topic
}

func NewPublisher(projectID, topicName, credsFile string) *Publisher {
	return &Publisher{projectID: projectID, topicName: topicName, credsFile: credsFile}
}

func (p *Publisher) init(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return nil
	}
	var (
		client *gpubsub.Client
		err    error
	)
	if p.credsFile != "" {
		log.Debug().Str("projectID", p.projectID).Str("topic", p.topicName).Str("credsFile", p.credsFile).Msg("initializing pubsub publisher with explicit credentials")
		client, err = gpubsub.NewClient(ctx, p.projectID, option.WithCredentialsFile(p.credsFile))
	} else {
		log.Debug().Str("projectID", p.projectID).Str("topic", p.topicName).Msg("initializing pubsub publisher with default credentials")
		client, err = gpubsub.NewClient(ctx, p.projectID)
	}
	if err != nil {
		log.Error().Err(err).Str("projectID", p.projectID).Str("topic", p.topicName).Msg("failed to create pubsub client for publisher")
		return err
	}
	p.client = client
	p.topic = client.Topic(p.topicName)
	log.Info().Str("topic", p.topicName).Msg("pubsub publisher initialized")
	return nil
}

func (p *Publisher) PublishEvent(ctx context.Context, ev *events.SessionEvent) error {
	if err := p.init(ctx); err != nil {
		return err
	}
	b, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Interface("event", ev).Msg("failed to marshal session event")
		return err
	}
	// Publish and wait for server ack
	r := p.topic.Publish(ctx, &gpubsub.Message{Data: b, Attributes: map[string]string{"type": ev.Type, "to": ev.To}})
	id, err := r.Get(ctx)
	if err != nil {
		log.Error().Err(err).Str("ticketId", ev.TicketID).Msg("failed to publish session event")
		return err
	}
	log.Debug().Str("messageID", id).Str("ticketId", ev.TicketID).Str("from", ev.From).Str("to", ev.To).Msg("published session event")
	return nil
}

// Close flushes pending publishes and releases the client.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client == nil {
		return nil
	}
	p.topic.Stop()
	err := p.client.Close()
	p.client, p.topic = nil, nil
	return err
}
