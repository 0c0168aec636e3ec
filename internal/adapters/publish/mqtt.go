// Package publish delivers readings to an MQTT broker, best-effort with
// retained messages so late subscribers see the last known value per source.
package publish

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"math/rand"
	"net"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eclipse/paho.golang/paho"
	"github.com/google/uuid"

	"github.com/grillbaer/data-logger/internal/adapters/observability"
	"github.com/grillbaer/data-logger/internal/domain"
	"github.com/grillbaer/data-logger/internal/ports"
)

// timestampLayout renders UTC with microsecond precision, matching what
// downstream dashboards already parse.
const timestampLayout = "2006-01-02T15:04:05.000000Z"

const (
	backoffMin = 1 * time.Second
	backoffMax = 30 * time.Second

	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

type Config struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	Username     string `yaml:"username"`
	PasswordFile string `yaml:"password_file"`
	CACertFile   string `yaml:"ca_cert_file"`
	BaseTopic    string `yaml:"base_topic"`
	ClientID     string `yaml:"client_id"`
}

// Enabled reports whether a broker is configured at all.
func (c Config) Enabled() bool { return c.Host != "" }

type MQTT struct {
	cfg      Config
	password string
	tlsConf  *tls.Config
	obs      ports.Observability

	connected atomic.Bool

	mu     sync.Mutex
	client *paho.Client

	cancel context.CancelFunc
	done   chan struct{}
}

// New prepares a broker publisher. Reading the password file or the CA
// certificate fails here, before any goroutine starts, so a broken broker
// config aborts startup instead of failing silently later.
func New(cfg Config, obs ports.Observability) (*MQTT, error) {
	m := &MQTT{cfg: cfg, obs: obs}

	if cfg.PasswordFile != "" {
		raw, err := os.ReadFile(cfg.PasswordFile)
		if err != nil {
			return nil, fmt.Errorf("read mqtt password file: %w", err)
		}
		m.password = strings.TrimSpace(string(raw))
	}

	if cfg.CACertFile != "" {
		pem, err := os.ReadFile(cfg.CACertFile)
		if err != nil {
			return nil, fmt.Errorf("read mqtt ca cert: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("mqtt ca cert %s: no PEM certificates found", cfg.CACertFile)
		}
		m.tlsConf = &tls.Config{RootCAs: pool, ServerName: cfg.Host}
	}

	if m.cfg.Port == 0 {
		if m.tlsConf != nil {
			m.cfg.Port = 8883
		} else {
			m.cfg.Port = 1883
		}
	}
	if m.cfg.ClientID == "" {
		m.cfg.ClientID = "data-logger-" + uuid.NewString()[:8]
	}

	return m, nil
}

func (m *MQTT) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.maintain(ctx)
	return nil
}

// maintain dials and re-dials the broker until the context ends. Each
// failed attempt backs off exponentially with jitter up to backoffMax.
func (m *MQTT) maintain(ctx context.Context) {
	defer close(m.done)

	backoff := backoffMin
	for {
		lost, err := m.connect(ctx)
		if err != nil {
			m.obs.LogErrorRateLimited("mqtt-connect", "broker connect failed", err,
				ports.Field{Key: "host", Value: m.cfg.Host})
			if !sleepCtx(ctx, jitter(backoff)) {
				return
			}
			backoff *= 2
			if backoff > backoffMax {
				backoff = backoffMax
			}
			continue
		}

		backoff = backoffMin
		m.connected.Store(true)
		m.obs.SetGauge(observability.GaugeBrokerConnected, 1)
		m.obs.LogInfo("broker connected",
			ports.Field{Key: "host", Value: m.cfg.Host},
			ports.Field{Key: "port", Value: m.cfg.Port})

		select {
		case <-ctx.Done():
			m.disconnect()
			return
		case err := <-lost:
			m.connected.Store(false)
			m.obs.SetGauge(observability.GaugeBrokerConnected, 0)
			m.obs.LogError("broker connection lost", err,
				ports.Field{Key: "host", Value: m.cfg.Host})
		}
	}
}

// connect dials the broker once. On success it returns a channel that
// receives when the connection drops.
func (m *MQTT) connect(ctx context.Context) (<-chan error, error) {
	addr := net.JoinHostPort(m.cfg.Host, fmt.Sprint(m.cfg.Port))

	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	var conn net.Conn
	var err error
	if m.tlsConf != nil {
		d := &tls.Dialer{Config: m.tlsConf}
		conn, err = d.DialContext(dialCtx, "tcp", addr)
	} else {
		var d net.Dialer
		conn, err = d.DialContext(dialCtx, "tcp", addr)
	}
	if err != nil {
		return nil, err
	}

	lost := make(chan error, 2)
	client := paho.NewClient(paho.ClientConfig{
		Conn: conn,
		OnClientError: func(err error) {
			select {
			case lost <- err:
			default:
			}
		},
		OnServerDisconnect: func(d *paho.Disconnect) {
			select {
			case lost <- fmt.Errorf("server disconnect, reason code %d", d.ReasonCode):
			default:
			}
		},
	})

	connect := &paho.Connect{
		ClientID:     m.cfg.ClientID,
		CleanStart:   true,
		KeepAlive:    30,
		Username:     m.cfg.Username,
		UsernameFlag: m.cfg.Username != "",
		Password:     []byte(m.password),
		PasswordFlag: m.password != "",
	}

	ack, err := client.Connect(dialCtx, connect)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if ack != nil && ack.ReasonCode != 0 {
		conn.Close()
		return nil, fmt.Errorf("broker refused connection, reason code %d", ack.ReasonCode)
	}

	m.mu.Lock()
	m.client = client
	m.mu.Unlock()
	return lost, nil
}

func (m *MQTT) disconnect() {
	m.connected.Store(false)
	m.obs.SetGauge(observability.GaugeBrokerConnected, 0)

	m.mu.Lock()
	client := m.client
	m.client = nil
	m.mu.Unlock()
	if client != nil {
		_ = client.Disconnect(&paho.Disconnect{ReasonCode: 0})
	}
}

func (m *MQTT) Connected() bool { return m.connected.Load() }

// Publish sends one reading, retained at QoS 0. While disconnected the
// reading is dropped and counted; the poll cycle never waits on the broker.
func (m *MQTT) Publish(sourceID string, r domain.Reading) {
	if !m.connected.Load() {
		m.obs.IncCounter(observability.MetricPublishDisconnected, 1)
		m.obs.LogDebug("reading dropped, broker disconnected",
			ports.Field{Key: "source", Value: sourceID})
		return
	}

	m.mu.Lock()
	client := m.client
	m.mu.Unlock()
	if client == nil {
		m.obs.IncCounter(observability.MetricPublishDisconnected, 1)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	_, err := client.Publish(ctx, &paho.Publish{
		QoS:     0,
		Retain:  true,
		Topic:   Topic(m.cfg.BaseTopic, sourceID),
		Payload: encodePayload(r),
	})
	if err != nil {
		m.obs.LogErrorRateLimited("mqtt-publish", "publish failed", err,
			ports.Field{Key: "source", Value: sourceID})
		return
	}
	m.obs.IncCounter(observability.MetricPublished, 1)
}

func (m *MQTT) Close(ctx context.Context) error {
	if m.cancel == nil {
		return nil
	}
	m.cancel()
	select {
	case <-m.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

var _ ports.Publisher = (*MQTT)(nil)

// Topic joins the configured base topic with a source id.
func Topic(base, sourceID string) string {
	return strings.TrimSuffix(base, "/") + "/" + sourceID
}

type payload struct {
	Status    string   `json:"status"`
	Timestamp string   `json:"timestamp"`
	Value     *float64 `json:"value,omitempty"`
	Unit      string   `json:"unit"`
	Formatted string   `json:"formatted"`
}

func encodePayload(r domain.Reading) []byte {
	p := payload{
		Status:    string(r.Status),
		Timestamp: r.Timestamp.UTC().Format(timestampLayout),
		Unit:      r.Unit,
		Formatted: r.Formatted,
	}
	if r.OK() {
		v := r.Value
		p.Value = &v
	}
	raw, _ := json.Marshal(p)
	return raw
}

func jitter(d time.Duration) time.Duration {
	return d/2 + time.Duration(rand.Int63n(int64(d)))/2
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Disabled is the publisher used when no broker host is configured. All
// operations are no-ops.
type Disabled struct{}

func (Disabled) Start(context.Context) error    { return nil }
func (Disabled) Publish(string, domain.Reading) {}
func (Disabled) Connected() bool                { return false }
func (Disabled) Close(context.Context) error    { return nil }

var _ ports.Publisher = Disabled{}
