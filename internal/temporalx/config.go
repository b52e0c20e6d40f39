package temporalx

import (
	"time"

	"github.com/yungbote/knowtree-backend/internal/platform/envutil"
)

type Config struct {
	Address   string
	Namespace string
	TaskQueue string

	ClientCertPath string
	ClientKeyPath  string
	ClientCAPath   string

	AutoRegister  bool
	RetentionDays int

	DialTimeout time.Duration
	// MaxWait bounds how long dialing and namespace registration keep retrying.
	MaxWait    time.Duration
	Backoff    time.Duration
	BackoffMax time.Duration
}

func LoadConfig() Config {
	return Config{
		Address:   envutil.String("TEMPORAL_ADDRESS", ""),
		Namespace: envutil.String("TEMPORAL_NAMESPACE", "knowtree"),
		TaskQueue: envutil.String("TEMPORAL_TASK_QUEUE", "knowtree-ingest"),

		ClientCertPath: envutil.String("TEMPORAL_CLIENT_CERT_PATH", ""),
		ClientKeyPath:  envutil.String("TEMPORAL_CLIENT_KEY_PATH", ""),
		ClientCAPath:   envutil.String("TEMPORAL_CLIENT_CA_PATH", ""),

		AutoRegister:  envutil.Bool("TEMPORAL_AUTO_REGISTER_NAMESPACE", false),
		RetentionDays: min(max(envutil.Int("TEMPORAL_NAMESPACE_RETENTION_DAYS", 3), 1), 365),

		DialTimeout: envutil.Seconds("TEMPORAL_DIAL_TIMEOUT_SECONDS", 5*time.Second),
		MaxWait:     envutil.Seconds("TEMPORAL_DIAL_MAX_WAIT_SECONDS", 30*time.Second),
		Backoff:     envutil.Millis("TEMPORAL_DIAL_BACKOFF_MS", 250*time.Millisecond),
		BackoffMax:  envutil.Millis("TEMPORAL_DIAL_BACKOFF_MAX_MS", 5*time.Second),
	}
}

func (c Config) tlsEnabled() bool {
	return c.ClientCertPath != "" || c.ClientKeyPath != "" || c.ClientCAPath != ""
}
