package stream

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/metalbox-io/sonic-manager/internal/config"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"
)

// jetStreamLog implements Log on NATS JetStream. Each task id gets its
// own stream; the stream sequence number is the entry id, a pull
// consumer's bounded Fetch is the blocking read-after-cursor, and
// DeleteMsg is the destructive consumption.
type jetStreamLog struct {
	nc        *nats.Conn
	js        nats.JetStreamContext
	namespace string
	logger    *zap.Logger
}

// connect establishes the log connection and performs an eager liveness
// check so a dead server degrades the channel at startup rather than on
// first use.
func connect(cfg config.StreamConfig, logger *zap.Logger) (*jetStreamLog, error) {
	opts := []nats.Option{
		nats.Name("sonic-manager"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Warn("Task log disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("Task log reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}

	if cfg.TLS.Enabled {
		tlsConfig, err := createTLSConfig(&cfg.TLS, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
		opts = append(opts, nats.Secure(tlsConfig))
		if cfg.TLS.InsecureSkipVerify {
			logger.Warn("Task log TLS certificate verification is disabled")
		}
	}

	switch cfg.Auth.Type {
	case "creds":
		opts = append(opts, nats.UserCredentials(cfg.Auth.CredsFile))
	case "token":
		opts = append(opts, nats.Token(cfg.Auth.Token))
	case "userpass":
		opts = append(opts, nats.UserInfo(cfg.Auth.Username, cfg.Auth.Password))
	case "none":
	default:
		return nil, fmt.Errorf("invalid auth type: %s", cfg.Auth.Type)
	}

	conn, err := nats.Connect(strings.Join(cfg.URLs, ","), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to task log: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	// Liveness ping. Fail here rather than on the first push.
	if _, err := js.AccountInfo(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("JetStream not available on task log server: %w", err)
	}

	logger.Info("Connected to task log",
		zap.String("url", conn.ConnectedUrl()),
		zap.String("namespace", cfg.Namespace))

	return &jetStreamLog{
		nc:        conn,
		js:        js,
		namespace: cfg.Namespace,
		logger:    logger,
	}, nil
}

func createTLSConfig(cfg *config.TLSConfig, logger *zap.Logger) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}

	if cfg.InsecureSkipVerify {
		tlsConfig.InsecureSkipVerify = true
	}

	if cfg.CAFile != "" {
		caCert, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		tlsConfig.RootCAs = caCertPool
	}

	if cfg.CertFile != "" && cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

// streamName returns the JetStream stream name for a task id. Stream
// names cannot contain dots, spaces, or wildcards.
func (l *jetStreamLog) streamName(taskID string) string {
	return strings.ToUpper(l.namespace) + "_TASK_" + sanitizeToken(taskID)
}

func (l *jetStreamLog) subject(taskID string) string {
	return l.namespace + ".task." + sanitizeToken(taskID) + ".output"
}

func sanitizeToken(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// ensureStream creates the task's stream if it does not exist yet.
// Both producer and consumer call this: a consumer may start fetching
// before the producer appends anything.
func (l *jetStreamLog) ensureStream(taskID string) error {
	name := l.streamName(taskID)

	_, err := l.js.StreamInfo(name)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream %s: %w", name, err)
	}

	_, err = l.js.AddStream(&nats.StreamConfig{
		Name:      name,
		Subjects:  []string{l.subject(taskID)},
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		return fmt.Errorf("failed to create stream %s: %w", name, err)
	}
	return nil
}

func (l *jetStreamLog) Append(taskID string, entry Entry) error {
	if err := l.ensureStream(taskID); err != nil {
		return err
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode entry: %w", err)
	}

	if _, err := l.js.Publish(l.subject(taskID), payload); err != nil {
		return fmt.Errorf("failed to append to task log: %w", err)
	}
	return nil
}

func (l *jetStreamLog) Consume(taskID string) (Consumer, error) {
	if err := l.ensureStream(taskID); err != nil {
		return nil, err
	}

	// Ephemeral pull consumer from the beginning of the stream.
	sub, err := l.js.PullSubscribe(l.subject(taskID), "", nats.BindStream(l.streamName(taskID)))
	if err != nil {
		return nil, fmt.Errorf("failed to open task log consumer: %w", err)
	}

	return &jetStreamConsumer{
		log:    l,
		stream: l.streamName(taskID),
		sub:    sub,
	}, nil
}

func (l *jetStreamLog) Close() {
	l.nc.Close()
}

type jetStreamConsumer struct {
	log    *jetStreamLog
	stream string
	sub    *nats.Subscription
}

func (c *jetStreamConsumer) Next(wait time.Duration) (*StoredEntry, error) {
	msgs, err := c.sub.Fetch(1, nats.MaxWait(wait))
	if err != nil {
		if errors.Is(err, nats.ErrTimeout) || errors.Is(err, jetstream.ErrNoMessages) {
			return nil, ErrNoEntry
		}
		return nil, fmt.Errorf("task log read failed: %w", err)
	}

	msg := msgs[0]
	meta, err := msg.Metadata()
	if err != nil {
		return nil, fmt.Errorf("task log message without metadata: %w", err)
	}

	stored := &StoredEntry{ID: meta.Sequence.Stream}
	if err := json.Unmarshal(msg.Data, &stored.Entry); err != nil {
		// Leave Type empty; the channel logs it as an invariant
		// violation and skips the entry.
		c.log.logger.Error("Malformed task log entry",
			zap.String("stream", c.stream),
			zap.Uint64("entry_id", stored.ID),
			zap.Error(err))
	}

	msg.Ack()
	return stored, nil
}

func (c *jetStreamConsumer) Delete(id uint64) error {
	if err := c.log.js.DeleteMsg(c.stream, id); err != nil {
		return fmt.Errorf("failed to delete entry %d from %s: %w", id, c.stream, err)
	}
	return nil
}

func (c *jetStreamConsumer) Close() error {
	return c.sub.Unsubscribe()
}
