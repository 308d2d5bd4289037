package hass

import (
	"crypto/tls"
	"fmt"
	"os"
	"sync"
	"time"

	logp "github.com/charmbracelet/log"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

var log = logp.NewWithOptions(os.Stderr, logp.Options{
	ReportTimestamp: true,
	TimeFormat:      time.Kitchen,
	Prefix:          "hass",
})

// SetLogLevel sets the level of the package logger.
func SetLogLevel(level logp.Level) {
	log.SetLevel(level)
}

const (
	defaultConnectTimeout    = 10 * time.Second
	defaultPublishTimeout    = 5 * time.Second
	defaultDisconnectQuiesce = 1000 // milliseconds
	defaultKeepAlive         = 60 * time.Second
	defaultMaxReconnect      = 2 * time.Minute
	maxPayloadSize           = 1 << 20
)

// MQTTOptions configures the broker connection.
type MQTTOptions struct {
	Host     string
	Port     int
	TLS      bool
	ClientID string
	Username string
	Password string
	QoS      byte
	// StatusTopic receives a retained online message on every connect and
	// offline as the last will.
	StatusTopic string
}

// MessageHandler is called for every message received on a subscription.
type MessageHandler func(topic string, payload []byte) error

type subscription struct {
	topic   string
	handler MessageHandler
}

// Client is a paho client that restores its subscriptions on reconnect and
// keeps the bridge status topic up to date.
type Client struct {
	client pahomqtt.Client
	opts   MQTTOptions

	subscriptions map[string]subscription
	subMu         sync.RWMutex

	connected bool
	connMu    sync.RWMutex

	onConnect  func()
	callbackMu sync.RWMutex
}

// Connect connects to the broker, waiting at most 10 seconds for the first
// connection.
func Connect(opts MQTTOptions) (*Client, error) {
	c := &Client{
		opts:          opts,
		subscriptions: map[string]subscription{},
	}

	popts := buildClientOptions(opts)
	popts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})
	popts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		log.Warn("lost connection to broker", "err", err)
		c.setConnected(false)
	})
	popts.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		log.Info("reconnecting to broker")
	})

	c.client = pahomqtt.NewClient(popts)
	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// the connect handler runs asynchronously
	c.setConnected(true)
	return c, nil
}

func buildClientOptions(opts MQTTOptions) *pahomqtt.ClientOptions {
	scheme := "tcp"
	if opts.TLS {
		scheme = "ssl"
	}

	popts := pahomqtt.NewClientOptions()
	popts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, opts.Host, opts.Port))
	popts.SetClientID(opts.ClientID)
	if opts.Username != "" {
		popts.SetUsername(opts.Username)
		popts.SetPassword(opts.Password)
	}
	popts.SetCleanSession(true)
	popts.SetAutoReconnect(true)
	popts.SetConnectRetry(true)
	popts.SetMaxReconnectInterval(defaultMaxReconnect)
	popts.SetConnectTimeout(defaultConnectTimeout)
	popts.SetKeepAlive(defaultKeepAlive)
	if opts.TLS {
		popts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	if opts.StatusTopic != "" {
		popts.SetWill(opts.StatusTopic, PayloadOffline, 1, true)
	}
	return popts
}

func (c *Client) handleConnect() {
	log.Info("connected to broker", "host", c.opts.Host)
	c.setConnected(true)

	c.subMu.RLock()
	for _, sub := range c.subscriptions {
		c.client.Subscribe(sub.topic, c.opts.QoS, c.wrapHandler(sub.handler))
	}
	c.subMu.RUnlock()

	if c.opts.StatusTopic != "" {
		c.client.Publish(c.opts.StatusTopic, 1, true, PayloadOnline)
	}

	c.callbackMu.RLock()
	callback := c.onConnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback()
	}
}

func (c *Client) setConnected(connected bool) {
	c.connMu.Lock()
	c.connected = connected
	c.connMu.Unlock()
}

// SetOnConnect sets a callback for every successful (re)connection.
func (c *Client) SetOnConnect(fn func()) {
	c.callbackMu.Lock()
	c.onConnect = fn
	c.callbackMu.Unlock()
}

func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client.IsConnected()
}

// Publish sends a message with the configured QoS.
func (c *Client) Publish(topic string, payload []byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, c.opts.QoS, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// Subscribe registers handler for topic. The subscription survives
// reconnects.
func (c *Client) Subscribe(topic string, handler MessageHandler) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.subMu.Lock()
	c.subscriptions[topic] = subscription{topic: topic, handler: handler}
	c.subMu.Unlock()

	token := c.client.Subscribe(topic, c.opts.QoS, c.wrapHandler(handler))
	var err error
	if !token.WaitTimeout(defaultPublishTimeout) {
		err = fmt.Errorf("timeout after %v", defaultPublishTimeout)
	} else {
		err = token.Error()
	}
	if err != nil {
		c.subMu.Lock()
		delete(c.subscriptions, topic)
		c.subMu.Unlock()
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	return nil
}

// Close publishes the offline status and disconnects.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	if c.IsConnected() && c.opts.StatusTopic != "" {
		token := c.client.Publish(c.opts.StatusTopic, 1, true, PayloadOffline)
		token.WaitTimeout(defaultPublishTimeout)
	}
	c.client.Disconnect(defaultDisconnectQuiesce)
	c.setConnected(false)
	return nil
}

func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("mqtt handler panic recovered", "topic", msg.Topic(), "panic", r)
			}
		}()
		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			log.Warn("mqtt handler failed", "topic", msg.Topic(), "err", err)
		}
	}
}
