package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"matchmaker-client/config"
	"matchmaker-client/events"
	epubsub "matchmaker-client/events/pubsub"
	"matchmaker-client/health"
	"matchmaker-client/matchmaker"
	"matchmaker-client/session"
	"matchmaker-client/transport"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

var version = "source"

const tickRate = 100 * time.Millisecond

func setLogger(level string) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if os.Getenv("DEBUG") != "" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		return
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

func main() {
	var (
		urlFlag  string
		modeFlag string
		portFlag int
	)
	flagSet := pflag.NewFlagSet("matchmaker-client", pflag.ContinueOnError)
	flagSet.StringVar(&urlFlag, "url", "", "matchmaker base URL (overrides MATCHMAKER_URL)")
	flagSet.StringVarP(&modeFlag, "mode", "m", "", "game mode tag to queue for (overrides MATCHMAKER_MODE)")
	flagSet.IntVar(&portFlag, "metrics-port", 0, "status/metrics listen port (overrides MATCHMAKER_METRICS_PORT)")
	showVersion := flagSet.Bool("version", false, "print version and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
	if *showVersion {
		fmt.Println(version)
		return
	}

	cfg := config.Load()
	if urlFlag != "" {
		cfg.MatchmakerURL = strings.TrimRight(urlFlag, "/")
	}
	if modeFlag != "" {
		cfg.Mode = modeFlag
	}
	if portFlag > 0 {
		cfg.MetricsPort = portFlag
	}
	setLogger(cfg.LogLevel)
	log.Info().Msgf("Starting matchmaker-client version: %s", version)
	log.Info().Interface("config", cfg.Redacted()).Msg("config loaded")

	if cfg.MatchmakerURL == "" {
		log.Fatal().Msg("missing matchmaker URL; set MATCHMAKER_URL or --url")
	}
	if cfg.Mode == "" {
		log.Fatal().Msg("missing game mode; set MATCHMAKER_MODE or --mode")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kcpTransport := transport.NewKCP(cfg.KCPNoDelay)
	client := matchmaker.NewClient(cfg.MatchmakerURL, kcpTransport, matchmaker.WithRequestTimeout(cfg.RequestTimeout))

	opts := []session.Option{
		session.WithPollInterval(cfg.PollInterval),
		session.WithMaxRefreshFailures(cfg.MaxRefreshFailures),
	}
	var publisher *epubsub.Publisher
	if cfg.EventsTopic != "" && cfg.GoogleProjectID != "" {
		publisher = epubsub.NewPublisher(cfg.GoogleProjectID, cfg.EventsTopic, cfg.CredentialsFile)
		opts = append(opts, session.WithPublisher(publisher))
	}
	sess := session.New(client, opts...)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           health.NewRouter(sess.Snapshot),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr()).Msg("starting status/metrics server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	if cfg.NoticeSubscription != "" && cfg.GoogleProjectID != "" {
		var subscriber events.Subscriber = epubsub.NewSubscriber(cfg.GoogleProjectID, cfg.NoticeSubscription, cfg.CredentialsFile)
		go func() {
			log.Info().Str("subscription", cfg.NoticeSubscription).Msg("starting assignment notice loop")
			err := subscriber.Start(ctx, func(ctx context.Context, n *events.AssignmentNotice) error {
				if sess.Nudge(ctx, n.TicketID) {
					log.Debug().Str("ticketId", n.TicketID).Str("status", string(n.Status)).Msg("assignment notice triggered refresh")
				}
				return nil
			})
			if err != nil && ctx.Err() == nil {
				// polling still works without notices
				log.Error().Err(err).Msg("assignment notice loop exited")
			}
		}()
	}

	if _, err := sess.Create(ctx, cfg.Mode); err != nil {
		log.Error().Err(err).Msg("initial ticket creation failed")
	}

	ticker := time.NewTicker(tickRate)
	defer ticker.Stop()
	lastState := sess.State()
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			sess.Tick(ctx)
			if st := sess.State(); st != lastState {
				lastState = st
				if st == session.StateIdle {
					log.Info().Msg("session idle; press Ctrl+C to exit or restart to queue again")
				}
			}
		}
	}
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	switch sess.State() {
	case session.StatePending:
		if err := sess.Delete(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("failed to delete ticket on shutdown")
		}
	case session.StateAssigned, session.StateOnline:
		if err := sess.Disconnect(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("failed to disconnect on shutdown")
		}
	}
	sess.Wait()
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			log.Error().Err(err).Msg("pubsub publisher close failed")
		}
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server graceful shutdown failed")
	}
	log.Info().Msg("shutdown complete")
}
