// Package temporalx dials Temporal for document ingestion.
package temporalx

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/api/workflowservice/v1"
	temporalsdkclient "go.temporal.io/sdk/client"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/yungbote/knowtree-backend/internal/platform/logger"
)

// NewClient returns nil, nil when TEMPORAL_ADDRESS is unset, so callers fall
// back to in-process ingestion.
func NewClient(log *logger.Logger) (temporalsdkclient.Client, error) {
	cfg := LoadConfig()
	if cfg.Address == "" {
		log.Warn("TEMPORAL_ADDRESS not set; ingestion runs in-process")
		return nil, nil
	}
	opts, err := clientOptions(cfg, log, true)
	if err != nil {
		return nil, err
	}

	var c temporalsdkclient.Client
	err = retry(context.Background(), cfg, log, "dial", func(ctx context.Context) (bool, error) {
		dialCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
		var dialErr error
		c, dialErr = temporalsdkclient.DialContext(dialCtx, opts)
		return dialErr == nil, dialErr
	})
	if err != nil {
		return nil, fmt.Errorf("temporal dial (address=%s namespace=%s): %w", cfg.Address, cfg.Namespace, err)
	}
	log.Info("Connected to Temporal", "address", cfg.Address, "namespace", cfg.Namespace)

	if cfg.AutoRegister {
		if err := EnsureNamespace(context.Background(), cfg, log); err != nil {
			c.Close()
			return nil, err
		}
	}
	return c, nil
}

// EnsureNamespace registers cfg.Namespace when it does not exist. Only
// self-hosted clusters allow this.
func EnsureNamespace(ctx context.Context, cfg Config, log *logger.Logger) error {
	namespace := strings.TrimSpace(cfg.Namespace)
	if cfg.Address == "" || namespace == "" {
		return nil
	}
	// No namespace header is sent, so this works before registration.
	opts, err := clientOptions(cfg, log, false)
	if err != nil {
		return err
	}
	ns, err := temporalsdkclient.NewNamespaceClient(opts)
	if err != nil {
		return fmt.Errorf("temporal namespace client: %w", err)
	}
	defer ns.Close()

	return retry(ctx, cfg, log, "ensure_namespace", func(ctx context.Context) (bool, error) {
		_, err := ns.Describe(ctx, namespace)
		var notFound *serviceerror.NamespaceNotFound
		if !errors.As(err, &notFound) {
			return err == nil, err
		}
		err = ns.Register(ctx, &workflowservice.RegisterNamespaceRequest{
			Namespace:                        namespace,
			Description:                      "knowtree document ingestion",
			WorkflowExecutionRetentionPeriod: durationpb.New(time.Duration(cfg.RetentionDays) * 24 * time.Hour),
		})
		var exists *serviceerror.NamespaceAlreadyExists
		if err == nil || errors.As(err, &exists) {
			log.Info("Temporal namespace ready", "namespace", namespace, "retention_days", cfg.RetentionDays)
			return true, nil
		}
		return false, err
	})
}

// retry runs fn until it reports done, fails with a non-retryable error, or
// cfg.MaxWait elapses. Dial errors are always retried.
func retry(ctx context.Context, cfg Config, log *logger.Logger, op string, fn func(context.Context) (bool, error)) error {
	deadline := time.Now().Add(cfg.MaxWait)
	for attempt := 1; ; attempt++ {
		done, err := fn(ctx)
		if done {
			return nil
		}
		if op != "dial" && !isRetryableRPC(err) {
			return err
		}
		if cfg.MaxWait <= 0 || time.Now().After(deadline) {
			return err
		}
		log.Warn("Temporal not ready; retrying", "op", op, "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(clampBackoff(cfg.Backoff, cfg.BackoffMax, attempt)):
		}
	}
}

func clientOptions(cfg Config, log *logger.Logger, withNamespace bool) (temporalsdkclient.Options, error) {
	opts := temporalsdkclient.Options{HostPort: cfg.Address, Logger: log}
	if withNamespace {
		opts.Namespace = cfg.Namespace
	}
	if cfg.tlsEnabled() {
		tlsCfg, err := loadTLSConfig(cfg)
		if err != nil {
			return opts, err
		}
		opts.ConnectionOptions.TLS = tlsCfg
	}
	return opts, nil
}

func loadTLSConfig(cfg Config) (*tls.Config, error) {
	if cfg.ClientCertPath == "" || cfg.ClientKeyPath == "" {
		return nil, errors.New("temporal tls: TEMPORAL_CLIENT_CERT_PATH and TEMPORAL_CLIENT_KEY_PATH must both be set")
	}
	cert, err := tls.LoadX509KeyPair(cfg.ClientCertPath, cfg.ClientKeyPath)
	if err != nil {
		return nil, fmt.Errorf("temporal tls: load key pair: %w", err)
	}
	out := &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}
	if cfg.ClientCAPath == "" {
		return out, nil
	}
	pem, err := os.ReadFile(cfg.ClientCAPath)
	if err != nil {
		return nil, fmt.Errorf("temporal tls: read CA: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("temporal tls: CA file has no certificates")
	}
	out.RootCAs = pool
	return out, nil
}

// clampBackoff doubles base per attempt, capped at ceiling.
func clampBackoff(base, ceiling time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = 250 * time.Millisecond
	}
	d := base << min(max(attempt-1, 0), 20)
	if ceiling > 0 && d > ceiling {
		return ceiling
	}
	return d
}

func isRetryableRPC(err error) bool {
	if err == nil {
		return false
	}
	s, ok := status.FromError(err)
	if !ok {
		return errors.Is(err, context.DeadlineExceeded)
	}
	switch s.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted:
		return true
	}
	return false
}
