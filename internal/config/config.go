package config

import (
	"os"
	"strconv"
	"time"
)

// Config carries every knob the engine needs. It is built once in cmd/server
// and passed down by value; nothing reads the environment mid-request.
type Config struct {
	ListenAddr     string
	DatabasePath   string
	WebhookLogPath string

	// Provider selects the adapter used for new payment links. Webhooks are
	// routed by URL, so every configured adapter stays reachable.
	Provider string

	YocoAPIKey        string
	YocoWebhookSecret string
	YocoBaseURL       string

	PeachEntityID      string
	PeachAPIKey        string
	PeachWebhookSecret string
	PeachBaseURL       string

	// AllowUnverifiedWebhooks accepts unsigned webhooks for providers with no
	// configured secret. Every such request is logged at error level. Never
	// enable this in production.
	AllowUnverifiedWebhooks bool

	OrderSystemURL string

	PollInterval          time.Duration
	MinAgeBeforeReconcile time.Duration
	ReconcileBatchSize    int
	ReconcileInitialDelay time.Duration

	NotifyMaxAttempts int
	NotifyBaseDelay   time.Duration
	NotifyMaxDelay    time.Duration

	HTTPTimeout time.Duration
}

func Default() Config {
	return Config{
		ListenAddr:            ":8080",
		DatabasePath:          "paylink.db",
		WebhookLogPath:        "webhooks.db",
		Provider:              "yoco",
		YocoBaseURL:           "https://payments.yoco.com/api",
		PeachBaseURL:          "https://testsecure.peachpayments.com",
		PollInterval:          2 * time.Minute,
		MinAgeBeforeReconcile: 10 * time.Minute,
		ReconcileBatchSize:    50,
		ReconcileInitialDelay: 30 * time.Second,
		NotifyMaxAttempts:     3,
		NotifyBaseDelay:       time.Second,
		NotifyMaxDelay:        30 * time.Second,
		HTTPTimeout:           15 * time.Second,
	}
}

// FromEnv overlays environment variables onto the defaults.
func FromEnv() Config {
	cfg := Default()

	str(&cfg.ListenAddr, "PAYLINK_LISTEN_ADDR")
	str(&cfg.DatabasePath, "PAYLINK_DB_PATH")
	str(&cfg.WebhookLogPath, "PAYLINK_WEBHOOK_LOG_PATH")
	str(&cfg.Provider, "PAYLINK_PROVIDER")
	str(&cfg.YocoAPIKey, "YOCO_API_KEY")
	str(&cfg.YocoWebhookSecret, "YOCO_WEBHOOK_SECRET")
	str(&cfg.YocoBaseURL, "YOCO_BASE_URL")
	str(&cfg.PeachEntityID, "PEACH_ENTITY_ID")
	str(&cfg.PeachAPIKey, "PEACH_API_KEY")
	str(&cfg.PeachWebhookSecret, "PEACH_WEBHOOK_SECRET")
	str(&cfg.PeachBaseURL, "PEACH_BASE_URL")
	str(&cfg.OrderSystemURL, "PAYLINK_ORDER_SYSTEM_URL")

	boolean(&cfg.AllowUnverifiedWebhooks, "PAYLINK_ALLOW_UNVERIFIED_WEBHOOKS")

	duration(&cfg.PollInterval, "PAYLINK_POLL_INTERVAL")
	duration(&cfg.MinAgeBeforeReconcile, "PAYLINK_MIN_AGE_BEFORE_RECONCILE")
	duration(&cfg.ReconcileInitialDelay, "PAYLINK_RECONCILE_INITIAL_DELAY")
	duration(&cfg.NotifyBaseDelay, "PAYLINK_NOTIFY_BASE_DELAY")
	duration(&cfg.NotifyMaxDelay, "PAYLINK_NOTIFY_MAX_DELAY")
	duration(&cfg.HTTPTimeout, "PAYLINK_HTTP_TIMEOUT")

	integer(&cfg.ReconcileBatchSize, "PAYLINK_RECONCILE_BATCH_SIZE")
	integer(&cfg.NotifyMaxAttempts, "PAYLINK_NOTIFY_MAX_ATTEMPTS")

	return cfg
}

func str(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func boolean(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func duration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func integer(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
