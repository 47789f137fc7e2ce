package controller

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"testing/quick"
	"time"

	"github.com/nerrad567/irrigation-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/irrigation-core/internal/storage"
	"github.com/nerrad567/irrigation-core/internal/watering"
)

const (
	sensorTopic   = "garden/sensors"
	wateringTopic = "garden/watering"
)

// ─── Mock Dependencies ──────────────────────────────────────────────────────

type published struct {
	Topic    string
	Payload  string
	QoS      byte
	Retained bool
}

type subscribed struct {
	Topic   string
	QoS     byte
	Handler mqtt.MessageHandler
}

// mockTransport captures subscriptions and publishes.
type mockTransport struct {
	mu           sync.Mutex
	subscribes   []subscribed
	publishes    []published
	subscribeErr error
	publishErr   error
}

func (m *mockTransport) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribes = append(m.subscribes, subscribed{Topic: topic, QoS: qos, Handler: handler})
	return m.subscribeErr
}

func (m *mockTransport) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.publishes = append(m.publishes, published{Topic: topic, Payload: string(payload), QoS: qos, Retained: retained})
	return nil
}

func (m *mockTransport) subscribeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subscribes)
}

func (m *mockTransport) publishCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.publishes)
}

type savedReading struct {
	Temperature, Humidity, SoilMoisture float64
	// SubscribedBefore is how many subscriptions existed when the reading was saved.
	SubscribedBefore int
}

type savedWatering struct {
	ID           storage.ReadingID
	Milliseconds int64
}

// mockGateway records saves and can be told to fail.
type mockGateway struct {
	mu          sync.Mutex
	transport   *mockTransport
	readings    []savedReading
	waterings   []savedWatering
	id          storage.ReadingID
	readingErr  error
	wateringErr error
}

func newMockGateway() *mockGateway {
	return &mockGateway{id: "reading-1"}
}

func (m *mockGateway) SaveSensorValues(_ context.Context, temperature, humidity, soilMoisture float64) (storage.ReadingID, error) {
	subs := 0
	if m.transport != nil {
		subs = m.transport.subscribeCount()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.readings = append(m.readings, savedReading{temperature, humidity, soilMoisture, subs})
	if m.readingErr != nil {
		return "", m.readingErr
	}
	return m.id, nil
}

func (m *mockGateway) SaveWatering(_ context.Context, id storage.ReadingID, milliseconds int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.waterings = append(m.waterings, savedWatering{ID: id, Milliseconds: milliseconds})
	return m.wateringErr
}

func (m *mockGateway) readingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.readings)
}

// countingPolicy returns fixed durations per moisture and counts calls.
type countingPolicy struct {
	mu     sync.Mutex
	calls  int
	decide func(float64) int64
}

func (p *countingPolicy) CalculateMilliseconds(soilMoisture float64) int64 {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	return p.decide(soilMoisture)
}

func fixedPolicy(m map[float64]int64) *countingPolicy {
	return &countingPolicy{decide: func(moisture float64) int64 { return m[moisture] }}
}

// mockRecorder counts outcomes.
type mockRecorder struct {
	mu        sync.Mutex
	outcomes  map[string]int
	actuated  []int64
	accepted  int
	refused   int
	lostCount int
	connected bool
}

func newMockRecorder() *mockRecorder {
	return &mockRecorder{outcomes: make(map[string]int)}
}

func (m *mockRecorder) MessageHandled(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[outcome]++
}

func (m *mockRecorder) Actuated(ms int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actuated = append(m.actuated, ms)
}

func (m *mockRecorder) ConnectEvent(accepted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = accepted
	if accepted {
		m.accepted++
	} else {
		m.refused++
	}
}

func (m *mockRecorder) Disconnected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lostCount++
	m.connected = false
}

func (m *mockRecorder) isConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

type fixture struct {
	ctrl      *Controller
	transport *mockTransport
	gateway   *mockGateway
	policy    *countingPolicy
	metrics   *mockRecorder
}

func newFixture(t *testing.T, policy *countingPolicy) *fixture {
	t.Helper()

	f := &fixture{
		transport: &mockTransport{},
		gateway:   newMockGateway(),
		policy:    policy,
		metrics:   newMockRecorder(),
	}
	f.gateway.transport = f.transport

	ctrl, err := New(Options{
		Transport:     f.transport,
		Gateway:       f.gateway,
		Policy:        f.policy,
		Metrics:       f.metrics,
		SensorTopic:   sensorTopic,
		SensorQoS:     1,
		WateringTopic: wateringTopic,
		WateringQoS:   1,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	f.ctrl = ctrl
	return f
}

// ─── Construction ───────────────────────────────────────────────────────────

func TestNew_Validation(t *testing.T) {
	valid := func() Options {
		return Options{
			Transport:     &mockTransport{},
			Gateway:       newMockGateway(),
			Policy:        watering.PolicyFunc(func(float64) int64 { return 0 }),
			SensorTopic:   sensorTopic,
			WateringTopic: wateringTopic,
		}
	}

	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"missing transport", func(o *Options) { o.Transport = nil }},
		{"missing gateway", func(o *Options) { o.Gateway = nil }},
		{"missing policy", func(o *Options) { o.Policy = nil }},
		{"missing sensor topic", func(o *Options) { o.SensorTopic = "" }},
		{"missing watering topic", func(o *Options) { o.WateringTopic = "" }},
		{"sensor qos out of range", func(o *Options) { o.SensorQoS = 3 }},
		{"watering qos out of range", func(o *Options) { o.WateringQoS = 3 }},
		{"negative queue size", func(o *Options) { o.QueueSize = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := valid()
			tt.mutate(&opts)
			if _, err := New(opts); !errors.Is(err, ErrInvalidOptions) {
				t.Errorf("New() error = %v, want ErrInvalidOptions", err)
			}
		})
	}

	t.Run("valid with defaults", func(t *testing.T) {
		ctrl, err := New(valid())
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		if cap(ctrl.events) != defaultQueueSize {
			t.Errorf("queue size = %d, want %d", cap(ctrl.events), defaultQueueSize)
		}
		if ctrl.storeTimeout != defaultStoreTimeout {
			t.Errorf("store timeout = %v, want %v", ctrl.storeTimeout, defaultStoreTimeout)
		}
	})
}

// ─── Message Scenarios ──────────────────────────────────────────────────────

func TestHandleMessage_DryReadingActuates(t *testing.T) {
	f := newFixture(t, fixedPolicy(map[float64]int64{15: 250}))

	got := f.ctrl.HandleMessage(context.Background(), sensorTopic,
		[]byte(`{"Temperature":22.5,"Humidity":60,"SoilMoisture":15}`))

	if got != OutcomeActuated {
		t.Fatalf("outcome = %s, want %s", got, OutcomeActuated)
	}
	if len(f.gateway.readings) != 1 {
		t.Fatalf("readings saved = %d, want 1", len(f.gateway.readings))
	}
	r := f.gateway.readings[0]
	if r.Temperature != 22.5 || r.Humidity != 60 || r.SoilMoisture != 15 {
		t.Errorf("saved reading = %+v", r)
	}

	want := published{Topic: wateringTopic, Payload: "250", QoS: 1, Retained: false}
	if len(f.transport.publishes) != 1 || f.transport.publishes[0] != want {
		t.Errorf("publishes = %+v, want [%+v]", f.transport.publishes, want)
	}
	wantWatering := savedWatering{ID: "reading-1", Milliseconds: 250}
	if len(f.gateway.waterings) != 1 || f.gateway.waterings[0] != wantWatering {
		t.Errorf("waterings = %+v, want [%+v]", f.gateway.waterings, wantWatering)
	}
	if f.metrics.outcomes[string(OutcomeActuated)] != 1 {
		t.Errorf("metrics outcomes = %v", f.metrics.outcomes)
	}
}

func TestHandleMessage_WetReadingSkips(t *testing.T) {
	f := newFixture(t, fixedPolicy(map[float64]int64{80: 50}))

	got := f.ctrl.HandleMessage(context.Background(), sensorTopic,
		[]byte(`{"Temperature":22.5,"Humidity":60,"SoilMoisture":80}`))

	if got != OutcomeSkipped {
		t.Fatalf("outcome = %s, want %s", got, OutcomeSkipped)
	}
	if len(f.gateway.readings) != 1 {
		t.Errorf("readings saved = %d, want 1", len(f.gateway.readings))
	}
	if f.transport.publishCount() != 0 {
		t.Errorf("publishes = %+v, want none", f.transport.publishes)
	}
	if len(f.gateway.waterings) != 0 {
		t.Errorf("waterings = %+v, want none", f.gateway.waterings)
	}
}

func TestHandleMessage_InvalidPayload(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"missing temperature", `{"Humidity":60,"SoilMoisture":80}`},
		{"missing humidity", `{"Temperature":22.5,"SoilMoisture":80}`},
		{"missing soil moisture", `{"Temperature":22.5,"Humidity":60}`},
		{"string value", `{"Temperature":"warm","Humidity":60,"SoilMoisture":80}`},
		{"null value", `{"Temperature":22.5,"Humidity":null,"SoilMoisture":80}`},
		{"not json", `Temperature=22.5`},
		{"array", `[22.5,60,80]`},
		{"empty", ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, fixedPolicy(nil))

			got := f.ctrl.HandleMessage(context.Background(), sensorTopic, []byte(tt.payload))

			if got != OutcomeInvalidPayload {
				t.Errorf("outcome = %s, want %s", got, OutcomeInvalidPayload)
			}
			if len(f.gateway.readings) != 0 || len(f.gateway.waterings) != 0 {
				t.Errorf("persistence calls = %d readings, %d waterings, want none",
					len(f.gateway.readings), len(f.gateway.waterings))
			}
			if f.policy.calls != 0 {
				t.Errorf("policy calls = %d, want 0", f.policy.calls)
			}
			if f.transport.publishCount() != 0 {
				t.Errorf("publishes = %d, want 0", f.transport.publishCount())
			}
		})
	}
}

func TestHandleMessage_PersistenceFailureStopsPipeline(t *testing.T) {
	tests := []struct {
		name string
		id   storage.ReadingID
		err  error
	}{
		{"gateway error", "", fmt.Errorf("%w: disk full", storage.ErrPersistence)},
		{"empty identifier", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, fixedPolicy(map[float64]int64{15: 250}))
			f.gateway.id = tt.id
			f.gateway.readingErr = tt.err

			got := f.ctrl.HandleMessage(context.Background(), sensorTopic,
				[]byte(`{"Temperature":22.5,"Humidity":60,"SoilMoisture":15}`))

			if got != OutcomePersistFailed {
				t.Errorf("outcome = %s, want %s", got, OutcomePersistFailed)
			}
			if f.policy.calls != 0 {
				t.Errorf("policy calls = %d, want 0", f.policy.calls)
			}
			if f.transport.publishCount() != 0 {
				t.Errorf("publishes = %d, want 0", f.transport.publishCount())
			}
			if len(f.gateway.waterings) != 0 {
				t.Errorf("waterings = %d, want 0", len(f.gateway.waterings))
			}
		})
	}
}

func TestHandleMessage_Threshold(t *testing.T) {
	tests := []struct {
		decision int64
		want     Outcome
		payload  string
	}{
		{-500, OutcomeSkipped, ""},
		{0, OutcomeSkipped, ""},
		{199, OutcomeSkipped, ""},
		{ActuationThreshold, OutcomeSkipped, ""},
		{ActuationThreshold + 1, OutcomeActuated, "201"},
		{30000, OutcomeActuated, "30000"},
	}

	for _, tt := range tests {
		t.Run(strconv.FormatInt(tt.decision, 10), func(t *testing.T) {
			f := newFixture(t, &countingPolicy{decide: func(float64) int64 { return tt.decision }})

			got := f.ctrl.HandleMessage(context.Background(), sensorTopic,
				[]byte(`{"Temperature":20,"Humidity":50,"SoilMoisture":30}`))

			if got != tt.want {
				t.Fatalf("outcome = %s, want %s", got, tt.want)
			}
			if !tt.want.Actuated() {
				if f.transport.publishCount() != 0 || len(f.gateway.waterings) != 0 {
					t.Errorf("skipped decision produced %d publishes, %d waterings",
						f.transport.publishCount(), len(f.gateway.waterings))
				}
				return
			}
			if f.transport.publishCount() != 1 || f.transport.publishes[0].Payload != tt.payload {
				t.Errorf("publishes = %+v, want one with payload %s", f.transport.publishes, tt.payload)
			}
			if len(f.gateway.waterings) != 1 || f.gateway.waterings[0].Milliseconds != tt.decision {
				t.Errorf("waterings = %+v, want one of %d ms", f.gateway.waterings, tt.decision)
			}
		})
	}
}

func TestHandleMessage_PublishFailureRecordsNothing(t *testing.T) {
	f := newFixture(t, fixedPolicy(map[float64]int64{15: 250}))
	f.transport.publishErr = mqtt.ErrNotConnected

	got := f.ctrl.HandleMessage(context.Background(), sensorTopic,
		[]byte(`{"Temperature":22.5,"Humidity":60,"SoilMoisture":15}`))

	if got != OutcomePublishFailed {
		t.Fatalf("outcome = %s, want %s", got, OutcomePublishFailed)
	}
	if len(f.gateway.waterings) != 0 {
		t.Errorf("waterings = %+v, want none", f.gateway.waterings)
	}
	if len(f.metrics.actuated) != 0 {
		t.Errorf("actuations recorded = %v, want none", f.metrics.actuated)
	}
}

func TestHandleMessage_RecordFailureAfterActuation(t *testing.T) {
	f := newFixture(t, fixedPolicy(map[float64]int64{15: 250}))
	f.gateway.wateringErr = storage.ErrPersistence

	got := f.ctrl.HandleMessage(context.Background(), sensorTopic,
		[]byte(`{"Temperature":22.5,"Humidity":60,"SoilMoisture":15}`))

	if got != OutcomeRecordFailed {
		t.Fatalf("outcome = %s, want %s", got, OutcomeRecordFailed)
	}
	if !got.Actuated() {
		t.Error("record failure should still count as actuated")
	}
	if f.transport.publishCount() != 1 {
		t.Errorf("publishes = %d, want 1", f.transport.publishCount())
	}
	if len(f.metrics.actuated) != 1 {
		t.Errorf("actuations recorded = %v, want one", f.metrics.actuated)
	}
}

func TestHandleMessage_Topics(t *testing.T) {
	payload := []byte(`{"Temperature":22.5,"Humidity":60,"SoilMoisture":15}`)

	t.Run("other topic ignored", func(t *testing.T) {
		f := newFixture(t, fixedPolicy(map[float64]int64{15: 250}))
		if got := f.ctrl.HandleMessage(context.Background(), "garden/other", payload); got != OutcomeIgnored {
			t.Errorf("outcome = %s, want %s", got, OutcomeIgnored)
		}
		if f.gateway.readingCount() != 0 {
			t.Error("reading saved for ignored topic")
		}
	})

	t.Run("wildcard sensor topic", func(t *testing.T) {
		f := newFixture(t, fixedPolicy(map[float64]int64{15: 250}))
		f.ctrl.sensorTopic = "garden/+/sensors"
		if got := f.ctrl.HandleMessage(context.Background(), "garden/bed-1/sensors", payload); got != OutcomeActuated {
			t.Errorf("outcome = %s, want %s", got, OutcomeActuated)
		}
	})
}

func TestHandleMessage_RecoversPanic(t *testing.T) {
	f := newFixture(t, &countingPolicy{decide: func(m float64) int64 {
		if m == 15 {
			panic("policy exploded")
		}
		return 300
	}})

	got := f.ctrl.HandleMessage(context.Background(), sensorTopic,
		[]byte(`{"Temperature":22.5,"Humidity":60,"SoilMoisture":15}`))
	if got != OutcomePanicked {
		t.Fatalf("outcome = %s, want %s", got, OutcomePanicked)
	}

	got = f.ctrl.HandleMessage(context.Background(), sensorTopic,
		[]byte(`{"Temperature":22.5,"Humidity":60,"SoilMoisture":20}`))
	if got != OutcomeActuated {
		t.Errorf("next message outcome = %s, want %s", got, OutcomeActuated)
	}
	if f.metrics.outcomes[string(OutcomePanicked)] != 1 {
		t.Errorf("metrics outcomes = %v", f.metrics.outcomes)
	}
}

// Publishing happens iff the decision exceeds the threshold, and then exactly once.
func TestHandleMessage_ActuationProperty(t *testing.T) {
	property := func(decision int64, moisture float64) bool {
		f := newFixture(t, &countingPolicy{decide: func(float64) int64 { return decision }})
		payload := fmt.Sprintf(`{"Temperature":1,"Humidity":2,"SoilMoisture":%s}`,
			strconv.FormatFloat(moisture, 'g', -1, 64))

		f.ctrl.HandleMessage(context.Background(), sensorTopic, []byte(payload))

		if decision > ActuationThreshold {
			return f.transport.publishCount() == 1 &&
				f.transport.publishes[0].Payload == strconv.FormatInt(decision, 10) &&
				len(f.gateway.waterings) == 1 &&
				f.gateway.waterings[0].ID == "reading-1"
		}
		return f.transport.publishCount() == 0 && len(f.gateway.waterings) == 0
	}

	if err := quick.Check(property, nil); err != nil {
		t.Error(err)
	}
}

// ─── Connection Events ──────────────────────────────────────────────────────

func TestHandleConnect_SubscribesOncePerEvent(t *testing.T) {
	f := newFixture(t, fixedPolicy(nil))

	events := []mqtt.ConnectEvent{
		{ReturnCode: 0, Reconnect: false},
		{ReturnCode: 0, Reconnect: true},
		{ReturnCode: 0, Reconnect: true},
	}
	for i, ev := range events {
		f.ctrl.HandleConnect(ev)
		if got := f.transport.subscribeCount(); got != i+1 {
			t.Fatalf("after event %d: subscribe calls = %d, want %d", i, got, i+1)
		}
	}

	for _, s := range f.transport.subscribes {
		if s.Topic != sensorTopic || s.QoS != 1 {
			t.Errorf("subscribe = %s qos %d, want %s qos 1", s.Topic, s.QoS, sensorTopic)
		}
	}
	// Connection state is recorded by OnConnect, not by the queued handler.
	if f.metrics.accepted != 0 {
		t.Errorf("accepted events = %d, want 0", f.metrics.accepted)
	}
}

func TestHandleConnect_RefusedDoesNotSubscribe(t *testing.T) {
	f := newFixture(t, fixedPolicy(nil))

	f.ctrl.HandleConnect(mqtt.ConnectEvent{ReturnCode: 5})

	if f.transport.subscribeCount() != 0 {
		t.Errorf("subscribe calls = %d, want 0", f.transport.subscribeCount())
	}
}

func TestHandleConnect_SubscribeFailureNotRetried(t *testing.T) {
	f := newFixture(t, fixedPolicy(nil))
	f.transport.subscribeErr = mqtt.ErrSubscribeFailed

	f.ctrl.HandleConnect(mqtt.ConnectEvent{})

	if f.transport.subscribeCount() != 1 {
		t.Errorf("subscribe calls = %d, want 1", f.transport.subscribeCount())
	}
}

func TestHandleConnect_HandlerFeedsQueue(t *testing.T) {
	f := newFixture(t, fixedPolicy(nil))
	f.ctrl.HandleConnect(mqtt.ConnectEvent{})

	handler := f.transport.subscribes[0].Handler
	if err := handler(sensorTopic, []byte(`{}`)); err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if len(f.ctrl.events) != 1 {
		t.Errorf("queued events = %d, want 1", len(f.ctrl.events))
	}
}

func TestOnDisconnect(t *testing.T) {
	f := newFixture(t, fixedPolicy(nil))
	f.ctrl.OnDisconnect(errors.New("connection reset"))
	if f.metrics.lostCount != 1 {
		t.Errorf("disconnects = %d, want 1", f.metrics.lostCount)
	}
}

func TestOnConnect_RecordsStateBeforeQueueing(t *testing.T) {
	f := newFixture(t, fixedPolicy(nil))

	f.ctrl.OnConnect(mqtt.ConnectEvent{})
	if !f.metrics.isConnected() || f.metrics.accepted != 1 {
		t.Errorf("after OnConnect: connected = %v, accepted = %d; want true, 1",
			f.metrics.isConnected(), f.metrics.accepted)
	}

	f.ctrl.OnConnect(mqtt.ConnectEvent{ReturnCode: 5})
	if f.metrics.isConnected() || f.metrics.refused != 1 {
		t.Errorf("after refusal: connected = %v, refused = %d; want false, 1",
			f.metrics.isConnected(), f.metrics.refused)
	}
}

func TestOnDisconnect_WinsOverQueuedConnect(t *testing.T) {
	f := newFixture(t, fixedPolicy(nil))

	// The session is accepted and lost before the loop gets to the event.
	f.ctrl.OnConnect(mqtt.ConnectEvent{})
	f.ctrl.OnDisconnect(errors.New("keepalive timeout"))

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- f.ctrl.Run(ctx) }()

	waitFor(t, func() bool { return f.transport.subscribeCount() == 1 })
	cancel()
	if err := <-runErr; err != nil {
		t.Errorf("Run() error = %v", err)
	}

	if f.metrics.isConnected() {
		t.Error("stale queued connect marked the session connected after it was lost")
	}
	if f.metrics.accepted != 1 || f.metrics.lostCount != 1 {
		t.Errorf("accepted = %d, lost = %d; want 1, 1", f.metrics.accepted, f.metrics.lostCount)
	}
}

// ─── Event Loop ─────────────────────────────────────────────────────────────

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRun_HandlesEventsInOrder(t *testing.T) {
	f := newFixture(t, &countingPolicy{decide: func(m float64) int64 { return int64(m) * 100 }})

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- f.ctrl.Run(ctx) }()

	f.ctrl.OnConnect(mqtt.ConnectEvent{})
	const n = 10
	for i := 0; i < n; i++ {
		payload := fmt.Sprintf(`{"Temperature":20,"Humidity":50,"SoilMoisture":%d}`, i)
		if err := f.ctrl.OnMessage(sensorTopic, []byte(payload)); err != nil {
			t.Fatalf("OnMessage(%d) error = %v", i, err)
		}
	}

	waitFor(t, func() bool { return f.gateway.readingCount() == n })
	cancel()
	if err := <-runErr; err != nil {
		t.Errorf("Run() error = %v", err)
	}

	for i, r := range f.gateway.readings {
		if r.SoilMoisture != float64(i) {
			t.Errorf("reading %d has moisture %v, want %d", i, r.SoilMoisture, i)
		}
		if r.SubscribedBefore != 1 {
			t.Errorf("reading %d saved with %d subscriptions, want 1", i, r.SubscribedBefore)
		}
	}

	// Moisture 0..2 decide 0..200 ms and are skipped; 3..9 actuate.
	if got := f.transport.publishCount(); got != 7 {
		t.Errorf("publishes = %d, want 7", got)
	}
	for i, p := range f.transport.publishes {
		if want := strconv.Itoa((i + 3) * 100); p.Payload != want {
			t.Errorf("publish %d payload = %s, want %s", i, p.Payload, want)
		}
	}
}

func TestRun_OnlyOnce(t *testing.T) {
	f := newFixture(t, fixedPolicy(nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := f.ctrl.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if err := f.ctrl.Run(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Run() error = %v, want ErrAlreadyRunning", err)
	}
}

func TestOnMessage_AfterStop(t *testing.T) {
	f := newFixture(t, fixedPolicy(nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = f.ctrl.Run(ctx)

	if err := f.ctrl.OnMessage(sensorTopic, []byte(`{}`)); !errors.Is(err, ErrStopped) {
		t.Errorf("OnMessage() error = %v, want ErrStopped", err)
	}
	// Must not block.
	f.ctrl.OnConnect(mqtt.ConnectEvent{})
}

func TestOnMessage_QueueFull(t *testing.T) {
	ctrl, err := New(Options{
		Transport:     &mockTransport{},
		Gateway:       newMockGateway(),
		Policy:        fixedPolicy(nil),
		SensorTopic:   sensorTopic,
		WateringTopic: wateringTopic,
		QueueSize:     1,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := ctrl.OnMessage(sensorTopic, []byte(`{}`)); err != nil {
		t.Fatalf("first OnMessage() error = %v", err)
	}
	if err := ctrl.OnMessage(sensorTopic, []byte(`{}`)); !errors.Is(err, ErrQueueFull) {
		t.Errorf("second OnMessage() error = %v, want ErrQueueFull", err)
	}
}

func TestOnMessage_CopiesPayload(t *testing.T) {
	f := newFixture(t, fixedPolicy(nil))

	buf := []byte(`{"Temperature":1,"Humidity":2,"SoilMoisture":3}`)
	if err := f.ctrl.OnMessage(sensorTopic, buf); err != nil {
		t.Fatalf("OnMessage() error = %v", err)
	}
	buf[0] = 'X'

	ev := <-f.ctrl.events
	if ev.message.payload[0] != '{' {
		t.Error("queued payload aliases the caller's buffer")
	}
}

func TestPayloadForLog(t *testing.T) {
	long := make([]byte, maxLoggedPayload+10)
	for i := range long {
		long[i] = 'a'
	}
	if got := payloadForLog(long); len(got) != maxLoggedPayload+3 {
		t.Errorf("len = %d, want %d", len(got), maxLoggedPayload+3)
	}
	if got := payloadForLog([]byte("short")); got != "short" {
		t.Errorf("payloadForLog(short) = %q", got)
	}
}
