// Package mqtt implements the MQTT transport and the Command Router
// (§4.6, §6): a paho-backed client with a bounded-exponential
// reconnect schedule, topic parsing, JSON payload shapes, and the
// dispatch table that routes parsed commands into the Scene Runtime
// and Device Handles.
package mqtt

import (
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Options configures a Client's broker connection, TLS, and keepalive.
type Options struct {
	BrokerURL   string
	ClientID    string
	Username    string
	Password    string
	TLSConfig   *tls.Config
	KeepAlive   time.Duration
	PingTimeout time.Duration

	// ReconnectOnDrop arms the bounded-exponential reconnect loop when a
	// connection is lost (or the initial Connect fails). When false, a
	// drop is logged and left disconnected until the caller dials again.
	ReconnectOnDrop bool
}

// Client wraps a paho client with the project's own bounded-exponential
// reconnect schedule (1s x5 -> 5s x5 -> 60s x5 -> 300s thereafter, per
// §4.6) in place of paho's built-in auto-reconnect, and a rate limiter
// that keeps "publish while disconnected" log noise bounded.
type Client struct {
	log  zerolog.Logger
	opts Options

	mu                sync.Mutex
	paho              paho.Client
	reconnectAttempt  int
	connected         bool
	dropLogLimiter    *rate.Limiter
	onReconnectTopics []subscription
}

type subscription struct {
	topic   string
	handler paho.MessageHandler
}

// NewClient constructs a disconnected Client; call Connect to dial.
func NewClient(log zerolog.Logger, opts Options) *Client {
	if opts.KeepAlive == 0 {
		opts.KeepAlive = 60 * time.Second
	}
	if opts.PingTimeout == 0 {
		opts.PingTimeout = 10 * time.Second
	}
	return &Client{
		log:            log.With().Str("component", "mqtt").Logger(),
		opts:           opts,
		dropLogLimiter: rate.NewLimiter(rate.Every(10*time.Second), 1),
	}
}

// reconnectDelay implements the documented bounded-exponential
// schedule: 1s for the first 5 attempts, 5s for the next 5, 60s for
// the next 5, then 300s forever.
func reconnectDelay(attempt int) time.Duration {
	switch {
	case attempt < 5:
		return 1 * time.Second
	case attempt < 10:
		return 5 * time.Second
	case attempt < 15:
		return 60 * time.Second
	default:
		return 300 * time.Second
	}
}

// Connect dials the broker and arms reconnect/resubscribe handlers.
func (c *Client) Connect() error {
	o := paho.NewClientOptions()
	o.AddBroker(c.opts.BrokerURL)
	o.SetClientID(c.opts.ClientID)
	if c.opts.Username != "" {
		o.SetUsername(c.opts.Username)
		o.SetPassword(c.opts.Password)
	}
	if c.opts.TLSConfig != nil {
		o.SetTLSConfig(c.opts.TLSConfig)
	}
	o.SetCleanSession(false)
	o.SetKeepAlive(c.opts.KeepAlive)
	o.SetPingTimeout(c.opts.PingTimeout)
	o.SetAutoReconnect(false) // we drive the documented reconnect schedule ourselves
	o.SetConnectTimeout(5 * time.Second)

	o.OnConnect = func(paho.Client) {
		c.mu.Lock()
		c.connected = true
		c.reconnectAttempt = 0
		subs := append([]subscription{}, c.onReconnectTopics...)
		c.mu.Unlock()
		c.log.Info().Msg("mqtt connected")
		for _, s := range subs {
			c.subscribeNow(s.topic, s.handler)
		}
	}
	o.OnConnectionLost = func(_ paho.Client, err error) {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
		if !c.opts.ReconnectOnDrop {
			c.log.Warn().Err(err).Msg("mqtt connection lost, reconnect disabled by configuration")
			return
		}
		c.log.Warn().Err(err).Msg("mqtt connection lost, scheduling reconnect")
		go c.reconnectLoop()
	}

	c.mu.Lock()
	c.paho = paho.NewClient(o)
	client := c.paho
	c.mu.Unlock()

	token := client.Connect()
	token.Wait()
	if token.Error() != nil {
		if c.opts.ReconnectOnDrop {
			go c.reconnectLoop()
		}
		return fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return nil
}

func (c *Client) reconnectLoop() {
	for {
		c.mu.Lock()
		if c.connected {
			c.mu.Unlock()
			return
		}
		attempt := c.reconnectAttempt
		c.reconnectAttempt++
		client := c.paho
		c.mu.Unlock()

		time.Sleep(reconnectDelay(attempt))

		if client == nil {
			continue
		}
		token := client.Connect()
		token.Wait()
		if token.Error() != nil {
			c.log.Warn().Err(token.Error()).Int("attempt", attempt+1).Msg("mqtt reconnect attempt failed")
			continue
		}
		return
	}
}

// IsConnected reports the last known connection state.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Publish sends payload to topic. While disconnected, per §4.6 this
// is defined as "not sent" rather than an error: the call returns nil
// and logs at a rate-limited warning level.
func (c *Client) Publish(topic string, payload []byte, retained bool) error {
	c.mu.Lock()
	client := c.paho
	connected := c.connected
	c.mu.Unlock()

	if client == nil || !connected {
		if c.dropLogLimiter.Allow() {
			c.log.Warn().Str("topic", topic).Msg("mqtt disconnected, publish dropped")
		}
		return nil
	}
	token := client.Publish(topic, 1, retained, payload)
	token.Wait()
	if token.Error() != nil {
		c.log.Warn().Err(token.Error()).Str("topic", topic).Msg("publish failed")
	}
	return nil
}

// Subscribe registers handler for topic, and re-subscribes
// automatically on every future reconnect.
func (c *Client) Subscribe(topic string, handler paho.MessageHandler) {
	c.mu.Lock()
	c.onReconnectTopics = append(c.onReconnectTopics, subscription{topic: topic, handler: handler})
	client := c.paho
	connected := c.connected
	c.mu.Unlock()

	if client != nil && connected {
		c.subscribeNow(topic, handler)
	}
}

func (c *Client) subscribeNow(topic string, handler paho.MessageHandler) {
	c.mu.Lock()
	client := c.paho
	c.mu.Unlock()
	if client == nil {
		return
	}
	token := client.Subscribe(topic, 1, handler)
	token.Wait()
	if token.Error() != nil {
		c.log.Warn().Err(token.Error()).Str("topic", topic).Msg("subscribe failed")
	} else {
		c.log.Info().Str("topic", topic).Msg("subscribed")
	}
}

// Disconnect closes the connection cleanly.
func (c *Client) Disconnect() {
	c.mu.Lock()
	client := c.paho
	c.mu.Unlock()
	if client != nil {
		client.Disconnect(250)
	}
}
