package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Options configures a paho based adapter.
type Options struct {
	Server         string
	Port           int
	ClientID       string
	Username       string
	Password       string
	TLSConfig      *tls.Config
	ConnectTimeout time.Duration
	Logger         *slog.Logger
}

// BrokerURL returns the paho broker URL for the options. A server that
// already carries a scheme is used as is.
func (o Options) BrokerURL() string {
	if strings.Contains(o.Server, "://") {
		return o.Server
	}
	scheme := "tcp"
	if o.TLSConfig != nil {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, o.Server, o.Port)
}

// pahoConn is the paho client shared by both adapters.
type pahoConn struct {
	client         mqtt.Client
	connectTimeout time.Duration
	logger         *slog.Logger
}

func newPahoConn(o Options, component string) *pahoConn {
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", component, "broker", o.BrokerURL(), "client_id", o.ClientID)

	timeout := o.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	opts := mqtt.NewClientOptions().
		AddBroker(o.BrokerURL()).
		SetClientID(o.ClientID).
		SetKeepAlive(60 * time.Second).
		SetPingTimeout(10 * time.Second).
		SetConnectTimeout(timeout).
		SetAutoReconnect(false).
		SetCleanSession(true)
	if o.Username != "" {
		opts.SetUsername(o.Username)
		opts.SetPassword(o.Password)
	}
	if o.TLSConfig != nil {
		opts.SetTLSConfig(o.TLSConfig)
	}

	conn := &pahoConn{connectTimeout: timeout, logger: logger}
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		conn.logger.Info("Connected to MQTT broker")
	})
	opts.SetConnectionLostHandler(func(c mqtt.Client, err error) {
		conn.logger.Error("MQTT connection lost", slog.Any("error", err))
	})
	opts.SetDefaultPublishHandler(func(c mqtt.Client, msg mqtt.Message) {
		conn.logger.Debug("Message without subscription handler", "topic", msg.Topic(), "payload_size", len(msg.Payload()))
	})

	conn.client = mqtt.NewClient(opts)
	return conn
}

func (p *pahoConn) Connect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.connectTimeout)
	defer cancel()
	if err := wait(ctx, p.client.Connect()); err != nil {
		// Aborts an attempt still in flight once it settles.
		p.client.Disconnect(0)
		return fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}
	return nil
}

func (p *pahoConn) Disconnect() {
	if p.client.IsConnected() {
		p.client.Disconnect(250)
		p.logger.Info("MQTT client disconnected")
	}
}

func (p *pahoConn) Publish(ctx context.Context, topic string, payload []byte, qos QoS) error {
	if !p.client.IsConnected() {
		return errors.New("MQTT client is not connected")
	}
	p.logger.Debug("Publishing message", "topic", topic, "payload_size", len(payload), "qos", qos.String())
	if err := wait(ctx, p.client.Publish(topic, byte(qos), false, payload)); err != nil {
		return fmt.Errorf("MQTT publish to %s failed: %w", topic, err)
	}
	return nil
}

func (p *pahoConn) Subscribe(ctx context.Context, topic string, qos QoS, handler MessageHandler) error {
	if !p.client.IsConnected() {
		return errors.New("MQTT client is not connected")
	}
	callback := func(c mqtt.Client, msg mqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	}
	if err := wait(ctx, p.client.Subscribe(topic, byte(qos), callback)); err != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", topic, err)
	}
	p.logger.Info("Subscribed to topic", "topic", topic, "qos", qos.String())
	return nil
}

func (p *pahoConn) Unsubscribe(ctx context.Context, topic string) error {
	if !p.client.IsConnected() {
		return errors.New("MQTT client is not connected")
	}
	if err := wait(ctx, p.client.Unsubscribe(topic)); err != nil {
		return fmt.Errorf("failed to unsubscribe from topic %s: %w", topic, err)
	}
	return nil
}

// wait blocks until the token completes or ctx is done.
func wait(ctx context.Context, token mqtt.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Generic connects to any MQTT broker over plain TCP, or TLS when a TLS
// config is supplied.
type Generic struct {
	*pahoConn
}

// NewGeneric creates the adapter. No network I/O happens until Connect.
func NewGeneric(o Options) *Generic {
	if o.Port == 0 {
		o.Port = 1883
	}
	return &Generic{pahoConn: newPahoConn(o, "mqtt_generic")}
}
