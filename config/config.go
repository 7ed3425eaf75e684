package config

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	MatchmakerURL      string
	Mode               string
	PollInterval       time.Duration
	RequestTimeout     time.Duration
	MaxRefreshFailures int
	MetricsPort        int
	LogLevel           string
	KCPNoDelay         bool

	EventsTopic        string
	NoticeSubscription string
	GoogleProjectID    string
	CredentialsFile    string
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first without overriding variables already set.
func Load() *Config {
	if err := godotenv.Load(); err == nil {
		log.Info().Msg(".env file loaded")
	}

	cfg := &Config{
		MatchmakerURL:      strings.TrimRight(strings.TrimSpace(getEnv("MATCHMAKER_URL", "")), "/"),
		Mode:               strings.TrimSpace(getEnv("MATCHMAKER_MODE", "")),
		PollInterval:       getEnvDuration("MATCHMAKER_POLL_INTERVAL", 5*time.Second),
		RequestTimeout:     getEnvDuration("MATCHMAKER_REQUEST_TIMEOUT", 10*time.Second),
		MaxRefreshFailures: getEnvInt("MATCHMAKER_MAX_REFRESH_FAILURES", 3),
		MetricsPort:        getEnvInt("MATCHMAKER_METRICS_PORT", 8080),
		LogLevel:           strings.TrimSpace(getEnv("MATCHMAKER_LOG_LEVEL", "info")),
		KCPNoDelay:         getEnvBool("KCP_NODELAY", true),
		EventsTopic:        strings.TrimSpace(getEnv("MATCHMAKER_EVENTS_TOPIC", "")),
		NoticeSubscription: strings.TrimSpace(getEnv("MATCHMAKER_NOTICE_SUBSCRIPTION", "")),
		CredentialsFile:    strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")),
	}

	if cfg.MatchmakerURL == "" {
		log.Warn().Msg("matchmaker URL not set; set MATCHMAKER_URL")
	}
	if cfg.PubsubEnabled() {
		cfg.GoogleProjectID = getGoogleProjectID(cfg.CredentialsFile, strings.TrimSpace(getEnv("MATCHMAKER_PUBSUB_PROJECT_ID", "")))
		if cfg.GoogleProjectID == "" {
			log.Warn().Msg("Google project ID not resolved; set GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_PROJECT_ID or MATCHMAKER_PUBSUB_PROJECT_ID")
		}
	}
	return cfg
}

// PubsubEnabled reports whether any Pub/Sub integration is configured.
func (c *Config) PubsubEnabled() bool {
	return c.EventsTopic != "" || c.NoticeSubscription != ""
}

func (c *Config) HTTPAddr() string {
	return net.JoinHostPort("0.0.0.0", strconv.Itoa(c.MetricsPort))
}

// Redacted returns a view safe for logging
func (c *Config) Redacted() map[string]any {
	return map[string]any{
		"matchmakerURL":       c.MatchmakerURL,
		"mode":                c.Mode,
		"pollInterval":        c.PollInterval.String(),
		"requestTimeout":      c.RequestTimeout.String(),
		"maxRefreshFailures":  c.MaxRefreshFailures,
		"metricsPort":         c.MetricsPort,
		"logLevel":            c.LogLevel,
		"kcpNoDelay":          c.KCPNoDelay,
		"eventsTopic":         c.EventsTopic,
		"noticeSubscription":  c.NoticeSubscription,
		"projectID":           c.GoogleProjectID,
		"credentialsProvided": c.CredentialsFile != "",
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		iv, err := strconv.Atoi(v)
		if err == nil {
			return iv
		}
		fmt.Printf("invalid int for %s: %s\n", key, v)
	}
	return def
}

// getEnvDuration accepts Go durations ("5s") or a bare number of seconds.
func getEnvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
		return time.Duration(f * float64(time.Second))
	}
	fmt.Printf("invalid duration for %s: %s\n", key, v)
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
		fmt.Printf("invalid bool for %s: %s\n", key, v)
	}
	return def
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func projectIDFromCredentials(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	b, err := io.ReadAll(f)
	if err != nil {
		return "", err
	}
	var x struct {
		ProjectID string `json:"project_id"`
	}
	if err := json.Unmarshal(b, &x); err != nil {
		return "", err
	}
	return x.ProjectID, nil
}

func getGoogleProjectID(credsFile string, explicit string) string {
	// 1) Explicit override
	if explicit := strings.TrimSpace(explicit); explicit != "" {
		log.Info().Str("projectID", explicit).Msg("using MATCHMAKER_PUBSUB_PROJECT_ID for Google project")
		return explicit
	}

	// 2) Credentials file
	if p := strings.TrimSpace(credsFile); p != "" {
		if pid, err := projectIDFromCredentials(p); err == nil && pid != "" {
			log.Info().Str("credsFile", p).Msg("using project_id from credentials file")
			return strings.TrimSpace(pid)
		}
		log.Warn().Str("credsFile", p).Msg("project_id not found in credentials file or unreadable")
	}

	// 3) Common Google envs
	if v := firstNonEmpty(os.Getenv("GOOGLE_PROJECT_ID"), os.Getenv("GOOGLE_CLOUD_PROJECT"), os.Getenv("GCLOUD_PROJECT"), os.Getenv("GCP_PROJECT")); strings.TrimSpace(v) != "" {
		v = strings.TrimSpace(v)
		log.Info().Str("projectID", v).Msg("using Google project from environment")
		return v
	}
	return ""
}
