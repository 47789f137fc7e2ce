package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nerrad567/irrigation-core/internal/infrastructure/cache"
	"github.com/nerrad567/irrigation-core/internal/infrastructure/influxdb"
)

func TestObserved_NotifiesAfterSuccess(t *testing.T) {
	next := &fakeGateway{nextID: "r-1"}
	obs := &recordingObserver{}
	o := NewObserved(next, &recordingLogger{}, obs)
	at := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	o.now = func() time.Time { return at }
	ctx := context.Background()

	id, err := o.SaveSensorValues(ctx, 22.5, 60, 15)
	if err != nil || id != "r-1" {
		t.Fatalf("SaveSensorValues() = %q, %v", id, err)
	}
	if err := o.SaveWatering(ctx, id, 250); err != nil {
		t.Fatalf("SaveWatering() error = %v", err)
	}

	if len(obs.readings) != 1 || obs.readings[0] != "r-1" {
		t.Errorf("observed readings = %v", obs.readings)
	}
	if len(obs.waterings) != 1 || obs.waterings[0] != 250 {
		t.Errorf("observed waterings = %v", obs.waterings)
	}
	if !obs.at[0].Equal(at) {
		t.Errorf("observed time = %v, want %v", obs.at[0], at)
	}
}

func TestObserved_SkipsObserversOnFailure(t *testing.T) {
	next := &fakeGateway{readingErr: errBackend, wateringErr: errBackend}
	obs := &recordingObserver{}
	o := NewObserved(next, &recordingLogger{}, obs)
	ctx := context.Background()

	if _, err := o.SaveSensorValues(ctx, 1, 2, 3); !errors.Is(err, errBackend) {
		t.Errorf("SaveSensorValues() error = %v", err)
	}
	if err := o.SaveWatering(ctx, "r", 250); !errors.Is(err, errBackend) {
		t.Errorf("SaveWatering() error = %v", err)
	}
	if len(obs.readings) != 0 || len(obs.waterings) != 0 {
		t.Error("observer notified for a failed save")
	}
}

func TestObserved_ObserverErrorIsLoggedOnly(t *testing.T) {
	next := &fakeGateway{nextID: "r-1"}
	failing := &recordingObserver{err: errors.New("redis down")}
	healthy := &recordingObserver{}
	logger := &recordingLogger{}
	o := NewObserved(next, logger, failing, nil, healthy)
	ctx := context.Background()

	id, err := o.SaveSensorValues(ctx, 1, 2, 3)
	if err != nil {
		t.Fatalf("SaveSensorValues() error = %v, observer failure must not fail the save", err)
	}
	if err := o.SaveWatering(ctx, id, 250); err != nil {
		t.Fatalf("SaveWatering() error = %v", err)
	}

	if len(logger.warns) != 2 {
		t.Errorf("got %d warnings, want 2", len(logger.warns))
	}
	if len(healthy.readings) != 1 || len(healthy.waterings) != 1 {
		t.Error("later observer skipped after an earlier one failed")
	}
}

func TestCacheObserver_Unreachable(t *testing.T) {
	c := cache.New(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1}), time.Minute)
	defer c.Close() //nolint:errcheck // Test cleanup

	obs := CacheObserver{Cache: c}
	if obs.Name() != "redis" {
		t.Errorf("Name() = %q", obs.Name())
	}
	if err := obs.ReadingSaved(context.Background(), "r", 1, 2, 3, time.Now()); err == nil {
		t.Error("ReadingSaved() expected error without a server")
	}
}

func TestInfluxObserver_DisconnectedIsNoop(t *testing.T) {
	obs := InfluxObserver{Client: &influxdb.Client{}}
	ctx := context.Background()

	if err := obs.ReadingSaved(ctx, "r", 1, 2, 3, time.Now()); err != nil {
		t.Errorf("ReadingSaved() error = %v", err)
	}
	if err := obs.WateringSaved(ctx, "r", 250, time.Now()); err != nil {
		t.Errorf("WateringSaved() error = %v", err)
	}
}
