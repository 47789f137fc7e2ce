package controller

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/nerrad567/irrigation-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/irrigation-core/internal/storage"
	"github.com/nerrad567/irrigation-core/internal/telemetry"
	"github.com/nerrad567/irrigation-core/internal/watering"
)

// ActuationThreshold is the run time, in milliseconds, a decision must
// exceed before the valve is opened.
const ActuationThreshold int64 = 200

const (
	defaultQueueSize    = 64
	defaultStoreTimeout = 10 * time.Second

	// maxLoggedPayload caps how much of a raw payload goes into a log entry.
	maxLoggedPayload = 256
)

// Transport is the subset of the MQTT client the controller drives.
type Transport interface {
	// Subscribe registers handler for topic on the current session.
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error

	// Publish sends payload and reports local delivery to the broker.
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Recorder receives control loop measurements. *metrics.Metrics satisfies it.
type Recorder interface {
	MessageHandled(outcome string)
	Actuated(milliseconds int64)
	ConnectEvent(accepted bool)
	Disconnected()
}

// Logger is the logging interface used by the controller.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Options configures a Controller.
type Options struct {
	Transport Transport       // required
	Gateway   storage.Gateway // required
	Policy    watering.Policy // required
	Logger    Logger
	Metrics   Recorder

	SensorTopic   string
	SensorQoS     byte
	WateringTopic string
	WateringQoS   byte

	// QueueSize bounds the event queue. Zero selects the default.
	QueueSize int

	// StoreTimeout bounds each persistence call. Zero selects the default.
	StoreTimeout time.Duration
}

// event is one queued transport event. Exactly one of connect or message is set.
type event struct {
	connect *mqtt.ConnectEvent
	message *message
}

type message struct {
	topic   string
	payload []byte
}

// Controller is the irrigation control loop.
//
// Thread Safety: OnConnect, OnDisconnect and OnMessage are safe to call from
// any goroutine. All handling happens on the goroutine running Run.
type Controller struct {
	transport Transport
	gateway   storage.Gateway
	policy    watering.Policy
	logger    Logger
	metrics   Recorder

	sensorTopic   string
	sensorQoS     byte
	wateringTopic string
	wateringQoS   byte
	storeTimeout  time.Duration

	events  chan event
	done    chan struct{}
	started atomic.Bool
}

// New validates opts and creates a Controller. Call Run to start handling events.
func New(opts Options) (*Controller, error) {
	var errs []error
	if opts.Transport == nil {
		errs = append(errs, errors.New("transport is required"))
	}
	if opts.Gateway == nil {
		errs = append(errs, errors.New("gateway is required"))
	}
	if opts.Policy == nil {
		errs = append(errs, errors.New("policy is required"))
	}
	if opts.SensorTopic == "" {
		errs = append(errs, errors.New("sensor topic is required"))
	}
	if opts.WateringTopic == "" {
		errs = append(errs, errors.New("watering topic is required"))
	}
	if opts.SensorQoS > 2 || opts.WateringQoS > 2 {
		errs = append(errs, errors.New("qos must be 0, 1, or 2"))
	}
	if opts.QueueSize < 0 {
		errs = append(errs, errors.New("queue size must not be negative"))
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOptions, errors.Join(errs...))
	}

	queueSize := opts.QueueSize
	if queueSize == 0 {
		queueSize = defaultQueueSize
	}
	storeTimeout := opts.StoreTimeout
	if storeTimeout <= 0 {
		storeTimeout = defaultStoreTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	recorder := opts.Metrics
	if recorder == nil {
		recorder = noopRecorder{}
	}

	return &Controller{
		transport:     opts.Transport,
		gateway:       opts.Gateway,
		policy:        opts.Policy,
		logger:        logger,
		metrics:       recorder,
		sensorTopic:   opts.SensorTopic,
		sensorQoS:     opts.SensorQoS,
		wateringTopic: opts.WateringTopic,
		wateringQoS:   opts.WateringQoS,
		storeTimeout:  storeTimeout,
		events:        make(chan event, queueSize),
		done:          make(chan struct{}),
	}, nil
}

// OnConnect queues a connection event. It blocks while the queue is full so
// that no session goes without its subscription.
//
// The connection state is recorded before queueing, in callback order with
// OnDisconnect, so a connect still waiting in the queue cannot overwrite a
// later loss.
func (c *Controller) OnConnect(ev mqtt.ConnectEvent) {
	c.metrics.ConnectEvent(ev.Accepted())

	select {
	case c.events <- event{connect: &ev}:
	case <-c.done:
		c.logger.Warn("connect event after controller stopped",
			"return_code", ev.ReturnCode,
		)
	}
}

// OnDisconnect records the loss of a session. Nothing is queued; the next
// connect event re-subscribes.
func (c *Controller) OnDisconnect(err error) {
	c.metrics.Disconnected()
	c.logger.Warn("broker connection lost", "error", err)
}

// OnMessage queues a telemetry message. It matches mqtt.MessageHandler.
//
// It never blocks: the MQTT router delivers messages from the goroutine that
// also reads acknowledgements, and Run may be waiting on one of those. When
// the queue is full the message is dropped and ErrQueueFull returned.
func (c *Controller) OnMessage(topic string, payload []byte) error {
	msg := &message{topic: topic, payload: append([]byte(nil), payload...)}

	select {
	case <-c.done:
		return ErrStopped
	default:
	}

	select {
	case c.events <- event{message: msg}:
		return nil
	default:
		c.metrics.MessageHandled(string(OutcomeDropped))
		c.logger.Error("event queue full, dropping message",
			"topic", topic,
			"payload", payloadForLog(payload),
			"queue_size", cap(c.events),
		)
		return ErrQueueFull
	}
}

// Run handles queued events in order until ctx is cancelled.
//
// Events still queued at cancellation are discarded. Run may be called once.
func (c *Controller) Run(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(c.done)

	c.logger.Info("controller running",
		"sensor_topic", c.sensorTopic,
		"watering_topic", c.wateringTopic,
		"queue_size", cap(c.events),
	)

	for {
		select {
		case <-ctx.Done():
			if pending := len(c.events); pending > 0 {
				c.logger.Warn("controller stopping with queued events", "pending", pending)
			}
			c.logger.Info("controller stopped")
			return nil
		case ev := <-c.events:
			switch {
			case ev.connect != nil:
				c.HandleConnect(*ev.connect)
			case ev.message != nil:
				c.HandleMessage(ctx, ev.message.topic, ev.message.payload)
			}
		}
	}
}

// HandleConnect reacts to one connection event.
//
// An accepted session gets exactly one Subscribe call for the sensor topic,
// whatever was subscribed before. A failed Subscribe is logged and not
// retried; the next session tries again.
func (c *Controller) HandleConnect(ev mqtt.ConnectEvent) {
	if !ev.Accepted() {
		c.logger.Error("broker refused connection",
			"return_code", ev.ReturnCode,
			"reason", ev.Reason(),
		)
		return
	}

	if err := c.transport.Subscribe(c.sensorTopic, c.sensorQoS, c.OnMessage); err != nil {
		c.logger.Error("subscribing to sensor topic failed",
			"topic", c.sensorTopic,
			"reconnect", ev.Reconnect,
			"error", err,
		)
		return
	}

	c.logger.Info("subscribed to sensor topic",
		"topic", c.sensorTopic,
		"qos", c.sensorQoS,
		"reconnect", ev.Reconnect,
	)
}

// HandleMessage runs one message through the pipeline and returns how it ended.
// It never panics and never returns an error; failures are logged.
func (c *Controller) HandleMessage(ctx context.Context, topic string, payload []byte) (outcome Outcome) {
	stage := StageReceived

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("panic recovered while handling message",
				"panic", r,
				"stage", stage,
				"topic", topic,
				"payload", payloadForLog(payload),
			)
			outcome = OutcomePanicked
		}
		c.metrics.MessageHandled(string(outcome))
	}()

	if topic != c.sensorTopic && !mqtt.TopicMatches(c.sensorTopic, topic) {
		c.logger.Debug("ignoring message on unexpected topic", "topic", topic)
		return OutcomeIgnored
	}

	reading, err := telemetry.Decode(payload)
	if err != nil {
		c.logger.Warn("dropping invalid telemetry",
			"stage", stage,
			"topic", topic,
			"payload", payloadForLog(payload),
			"error", err,
		)
		return OutcomeInvalidPayload
	}
	stage = StageDecoded

	id, err := c.saveReading(ctx, reading)
	if err != nil {
		c.logger.Error("persisting reading failed, not actuating",
			"stage", stage,
			"topic", topic,
			"reading", reading,
			"error", err,
		)
		return OutcomePersistFailed
	}
	stage = StagePersisted

	ms := c.policy.CalculateMilliseconds(reading.SoilMoisture())
	if ms < 0 {
		ms = 0
	}
	stage = StageDecided

	if ms <= ActuationThreshold {
		c.logger.Debug("watering not needed",
			"sensors_id", id,
			"soil_moisture", reading.SoilMoisture(),
			"milliseconds", ms,
		)
		return OutcomeSkipped
	}

	if err := c.transport.Publish(c.wateringTopic, []byte(strconv.FormatInt(ms, 10)), c.wateringQoS, false); err != nil {
		c.logger.Error("publishing watering command failed",
			"stage", stage,
			"topic", c.wateringTopic,
			"sensors_id", id,
			"milliseconds", ms,
			"error", err,
		)
		return OutcomePublishFailed
	}
	stage = StageActuated
	c.metrics.Actuated(ms)

	if err := c.saveWatering(ctx, id, ms); err != nil {
		c.logger.Error("recording watering failed after actuation",
			"stage", stage,
			"sensors_id", id,
			"milliseconds", ms,
			"error", err,
		)
		return OutcomeRecordFailed
	}

	c.logger.Info("watering actuated",
		"sensors_id", id,
		"soil_moisture", reading.SoilMoisture(),
		"milliseconds", ms,
	)
	return OutcomeActuated
}

func (c *Controller) saveReading(ctx context.Context, r telemetry.Reading) (storage.ReadingID, error) {
	ctx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	defer cancel()

	id, err := c.gateway.SaveSensorValues(ctx, r.Temperature(), r.Humidity(), r.SoilMoisture())
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", storage.ErrEmptyReadingID
	}
	return id, nil
}

func (c *Controller) saveWatering(ctx context.Context, id storage.ReadingID, ms int64) error {
	ctx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	defer cancel()
	return c.gateway.SaveWatering(ctx, id, ms)
}

// payloadForLog renders a payload for a log entry, truncated.
func payloadForLog(payload []byte) string {
	if len(payload) > maxLoggedPayload {
		return string(payload[:maxLoggedPayload]) + "..."
	}
	return string(payload)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type noopRecorder struct{}

func (noopRecorder) MessageHandled(string) {}
func (noopRecorder) Actuated(int64)        {}
func (noopRecorder) ConnectEvent(bool)     {}
func (noopRecorder) Disconnected()         {}
