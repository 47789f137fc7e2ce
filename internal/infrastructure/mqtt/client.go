package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"

	"github.com/nerrad567/irrigation-core/internal/infrastructure/config"
)

// Client wraps paho.mqtt.golang for the irrigation controller.
//
// It provides connection management, message publishing and subscription
// handling. After the first successful connection paho reconnects on its own
// with exponential backoff.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Subscriptions are NOT restored on reconnection. Owners re-subscribe from
//     the connect callback, which fires for every established session.
type Client struct {
	client  pahomqtt.Client
	options *pahomqtt.ClientOptions
	cfg     config.MQTTConfig

	// subscriptions tracks active subscriptions by topic filter.
	subscriptions map[string]subscription
	subMu         sync.RWMutex

	// connected tracks current connection state.
	connected bool
	connMu    sync.RWMutex

	// sessions counts successful connections, so reconnects can be flagged.
	sessions atomic.Int64

	// Callbacks for connection events (optional, set via SetOnConnect/SetOnDisconnect).
	onConnect    func(ConnectEvent)
	onDisconnect func(err error)
	callbackMu   sync.RWMutex

	// logger for error/panic logging (optional, set via SetLogger).
	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// subscription holds subscription details.
type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// MessageHandler is the callback signature for received messages.
//
// With ordered delivery the paho router calls handlers one at a time, so a
// handler that blocks delays every message behind it.
//
// Parameters:
//   - topic: The topic the message was received on (wildcards expanded)
//   - payload: The raw message payload
//
// Returns:
//   - error: Logged but does not affect message acknowledgment
type MessageHandler func(topic string, payload []byte) error

// ConnectEvent describes the outcome of one connection attempt.
type ConnectEvent struct {
	// ReturnCode is the CONNACK code; 0 means the broker accepted the session.
	ReturnCode byte

	// Reconnect is true when an earlier session existed on this client.
	Reconnect bool
}

// Accepted reports whether the broker accepted the connection.
func (e ConnectEvent) Accepted() bool {
	return e.ReturnCode == packets.Accepted
}

// Reason returns the broker's description of the return code.
func (e ConnectEvent) Reason() string {
	if reason, ok := packets.ConnackReturnCodes[e.ReturnCode]; ok {
		return reason
	}
	return fmt.Sprintf("unknown return code %d", e.ReturnCode)
}

// RefusedError is returned when the broker answers CONNECT with a refusal.
type RefusedError struct {
	Code byte
}

func (e *RefusedError) Error() string {
	return fmt.Sprintf("broker refused connection: %s", ConnectEvent{ReturnCode: e.Code}.Reason())
}

// NewClient prepares a client from config without connecting.
//
// Callbacks should be registered before the first Connect so the initial
// session is reported like every later one.
func NewClient(cfg config.MQTTConfig) *Client {
	opts := buildClientOptions(cfg)
	configureLWT(opts, cfg.Broker.ClientID)

	c := &Client{
		cfg:           cfg,
		options:       opts,
		subscriptions: make(map[string]subscription),
	}

	// Paho runs this in its own goroutine, so blocking on tokens is allowed.
	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})

	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleDisconnect(err)
	})

	opts.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		if logger := c.getLogger(); logger != nil {
			logger.Warn("MQTT reconnecting", "broker", brokerURL(cfg))
		}
	})

	c.client = pahomqtt.NewClient(opts)
	return c
}

// Connect creates a client and makes a single connection attempt.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := NewClient(cfg)
	if err := c.Connect(); err != nil {
		return nil, err
	}
	return c, nil
}

// Connect makes one connection attempt, bounded by the connect timeout.
//
// A broker refusal is reported to the connect callback with its return code
// before the error is returned.
func (c *Client) Connect() error {
	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		if ct, ok := token.(*pahomqtt.ConnectToken); ok && isRefusal(ct.ReturnCode()) {
			c.notifyConnect(ConnectEvent{
				ReturnCode: ct.ReturnCode(),
				Reconnect:  c.sessions.Load() > 0,
			})
			return fmt.Errorf("%w: %w", ErrConnectionFailed, &RefusedError{Code: ct.ReturnCode()})
		}
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The OnConnectHandler runs asynchronously and may not have executed yet.
	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	return nil
}

// ConnectWithRetry attempts the initial connection up to attempts times with
// exponential backoff between tries.
//
// Refusals that retrying cannot fix (bad credentials, rejected client ID) stop
// the loop immediately. A cancelled context stops it too.
func (c *Client) ConnectWithRetry(ctx context.Context, attempts int) error {
	if attempts < 1 {
		attempts = 1
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = time.Duration(c.cfg.Reconnect.InitialDelay) * time.Second
	eb.MaxInterval = time.Duration(c.cfg.Reconnect.MaxDelay) * time.Second
	eb.MaxElapsedTime = 0

	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(attempts-1)), ctx)

	attempt := 0
	operation := func() error {
		attempt++
		err := c.Connect()
		var refused *RefusedError
		if errors.As(err, &refused) && refused.Code != packets.ErrRefusedServerUnavailable {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		if logger := c.getLogger(); logger != nil {
			logger.Warn("MQTT connect attempt failed",
				"attempt", attempt,
				"max_attempts", attempts,
				"retry_in", wait,
				"error", err,
			)
		}
	}

	if err := backoff.RetryNotify(operation, b, notify); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %w", ErrConnectionFailed, ctxErr)
		}
		return err
	}
	return nil
}

// isRefusal reports whether a CONNACK code is a broker refusal rather than a
// local network or protocol failure.
func isRefusal(code byte) bool {
	return code != packets.Accepted && code <= packets.ErrRefusedNotAuthorised
}

// handleConnect is called when a session is established.
func (c *Client) handleConnect() {
	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	reconnect := c.sessions.Add(1) > 1

	c.publishStatus("online", "")

	c.notifyConnect(ConnectEvent{ReturnCode: packets.Accepted, Reconnect: reconnect})
}

// notifyConnect invokes the connect callback if one is set.
func (c *Client) notifyConnect(ev ConnectEvent) {
	c.callbackMu.RLock()
	callback := c.onConnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(ev)
	}
}

// handleDisconnect is called when the connection is lost.
func (c *Client) handleDisconnect(err error) {
	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	// The broker dropped our subscriptions along with the clean session.
	c.subMu.Lock()
	clear(c.subscriptions)
	c.subMu.Unlock()

	c.callbackMu.RLock()
	callback := c.onDisconnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// publishStatus publishes a retained status message without waiting for the ack.
func (c *Client) publishStatus(status, reason string) pahomqtt.Token {
	topic := StatusTopic(c.cfg.Broker.ClientID)
	payload := buildStatusPayload(c.cfg.Broker.ClientID, status, reason)
	return c.client.Publish(topic, byte(c.cfg.QoS), true, payload)
}

// Close gracefully disconnects from the MQTT broker.
//
// It publishes a graceful offline status (different from the LWT crash
// status), waits for it briefly, then disconnects.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.IsConnected() {
		c.publishStatus("offline", "shutdown").WaitTimeout(defaultOperationTimeout)
	}

	c.client.Disconnect(defaultDisconnectQuiesce)

	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	return nil
}

// HealthCheck verifies the MQTT connection is alive.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	return nil
}

// SubscriptionHealthCheck returns a health check that also fails while
// filter is missing from the current session's subscriptions.
func (c *Client) SubscriptionHealthCheck(filter string) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := c.HealthCheck(ctx); err != nil {
			return err
		}
		return c.checkSubscribed(filter)
	}
}

func (c *Client) checkSubscribed(filter string) error {
	if !c.HasSubscription(filter) {
		return fmt.Errorf("%w: %s (%d active)", ErrNotSubscribed, filter, c.SubscriptionCount())
	}
	return nil
}

// IsConnected returns the last known connection state.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client != nil && c.client.IsConnected()
}

// SetOnConnect sets a callback invoked for every connection outcome: the
// initial session, every automatic reconnect, and broker refusals.
func (c *Client) SetOnConnect(callback func(ConnectEvent)) {
	c.callbackMu.Lock()
	c.onConnect = callback
	c.callbackMu.Unlock()
}

// SetOnDisconnect sets a callback to be invoked when connection is lost.
// The error parameter describes why the connection was lost.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.callbackMu.Lock()
	c.onDisconnect = callback
	c.callbackMu.Unlock()
}

// SetLogger sets a logger for error and panic logging.
// If not set, errors in handlers are silently ignored.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// wrapHandler wraps a MessageHandler with panic recovery and optional logging.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if logger := c.getLogger(); logger != nil {
					logger.Error("MQTT handler panic recovered",
						"topic", msg.Topic(),
						"panic", r,
					)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Warn("MQTT handler returned error",
					"topic", msg.Topic(),
					"error", err,
				)
			}
		}
	}
}
