package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/gridwise/tariffsim/infra/logger"
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Enabled     bool            `koanf:"enabled"`
	Broker      string          `koanf:"broker"`
	ClientID    string          `koanf:"client_id"`
	Username    string          `koanf:"username"`
	Password    string          `koanf:"password"`
	TopicPrefix string          `koanf:"topic_prefix"`
	UseTLS      bool            `koanf:"use_tls"`
	ClientCert  string          `koanf:"client_cert"`
	ClientKey   string          `koanf:"client_key"`
	CABundle    string          `koanf:"ca_bundle"`
	AuthMethod  string          `koanf:"auth_method"`
	QoS         map[string]byte `koanf:"qos"`
	LWTTopic    string          `koanf:"lwt_topic"`
	LWTPayload  string          `koanf:"lwt_payload"`
	LWTQoS      byte            `koanf:"lwt_qos"`
	LWTRetain   bool            `koanf:"lwt_retain"`
	MaxRetries  int             `koanf:"max_retries"`
	BackoffMS   int             `koanf:"backoff_ms"`
	TLSConfig   *tls.Config     `koanf:"-"`
}

// Publisher sends simulation events to a topic and returns the message id.
type Publisher interface {
	PublishEvent(topic string, payload any) (string, error)
	Disconnect()
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

// PahoPublisher implements Publisher using Eclipse Paho.
type PahoPublisher struct {
	cli        pahoClient
	qos        map[string]byte
	logger     logger.Logger
	maxRetries int
	backoff    time.Duration
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// NewPahoPublisher connects to the MQTT broker.
func NewPahoPublisher(cfg Config) (*PahoPublisher, error) {
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	logger := logger.New("mqtt_client")
	pub := &PahoPublisher{
		qos:        cfg.QoS,
		logger:     logger,
		maxRetries: cfg.MaxRetries,
		backoff:    time.Duration(cfg.BackoffMS) * time.Millisecond,
	}

	opts.OnConnect = func(_ paho.Client) {
		logger.Infof("MQTT connected")
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		logger.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		logger.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	pub.cli = c
	return pub, nil
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.AuthMethod == "username_password" || cfg.AuthMethod == "both" || cfg.AuthMethod == "" {
		if cfg.Username != "" {
			opts.SetUsername(cfg.Username)
		}
		if cfg.Password != "" {
			opts.SetPassword(cfg.Password)
		}
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.LWTTopic != "" {
		opts.SetWill(cfg.LWTTopic, cfg.LWTPayload, cfg.LWTQoS, cfg.LWTRetain)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	cfg := &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}
	return cfg, nil
}

// PublishEvent wraps the payload in a message envelope and publishes it to the
// given topic, retrying with exponential backoff on failure. It returns the
// message identifier.
func (p *PahoPublisher) PublishEvent(topic string, payload any) (string, error) {
	msgID := uuid.NewString()
	msg := struct {
		MessageID string `json:"message_id"`
		Timestamp int64  `json:"timestamp"`
		Data      any    `json:"data"`
	}{
		MessageID: msgID,
		Timestamp: time.Now().UnixMilli(),
		Data:      payload,
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}

	qos := byte(0)
	if q, ok := p.qos["event"]; ok {
		qos = q
	}
	if p.maxRetries <= 0 {
		p.maxRetries = 3
	}
	if p.backoff <= 0 {
		p.backoff = 100 * time.Millisecond
	}
	var publishErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		token := p.cli.Publish(topic, qos, false, body)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			p.logger.Debugf("sent message %s to %s", msgID, topic)
			break
		}
		p.logger.Errorf("publish attempt %d failed: %v", attempt+1, publishErr)
		time.Sleep(p.backoff * time.Duration(1<<attempt))
	}
	if publishErr != nil {
		return "", publishErr
	}
	return msgID, nil
}

// Disconnect gracefully closes the MQTT connection.
func (p *PahoPublisher) Disconnect() {
	if p.cli != nil && p.cli.IsConnected() {
		p.cli.Disconnect(250)
	}
}
