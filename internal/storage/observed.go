package storage

import (
	"context"
	"time"

	"github.com/nerrad567/irrigation-core/internal/infrastructure/cache"
	"github.com/nerrad567/irrigation-core/internal/infrastructure/influxdb"
)

// Observer receives a copy of every successful save.
type Observer interface {
	// Name labels the observer in logs.
	Name() string
	ReadingSaved(ctx context.Context, id ReadingID, temperature, humidity, soilMoisture float64, at time.Time) error
	WateringSaved(ctx context.Context, id ReadingID, milliseconds int64, at time.Time) error
}

// Observed is a Gateway that notifies observers after the wrapped Gateway
// succeeds. Observer errors are logged and otherwise ignored.
type Observed struct {
	next      Gateway
	observers []Observer
	logger    Logger
	now       func() time.Time
}

// NewObserved wraps next. Nil observers are skipped.
func NewObserved(next Gateway, logger Logger, observers ...Observer) *Observed {
	o := &Observed{next: next, logger: logger, now: time.Now}
	for _, obs := range observers {
		if obs != nil {
			o.observers = append(o.observers, obs)
		}
	}
	return o
}

// SaveSensorValues implements Gateway.
func (o *Observed) SaveSensorValues(ctx context.Context, temperature, humidity, soilMoisture float64) (ReadingID, error) {
	id, err := o.next.SaveSensorValues(ctx, temperature, humidity, soilMoisture)
	if err != nil {
		return id, err
	}

	at := o.now()
	for _, obs := range o.observers {
		if err := obs.ReadingSaved(ctx, id, temperature, humidity, soilMoisture, at); err != nil {
			o.logger.Warn("observer failed to record reading",
				"observer", obs.Name(),
				"sensors_id", id,
				"error", err,
			)
		}
	}
	return id, nil
}

// SaveWatering implements Gateway.
func (o *Observed) SaveWatering(ctx context.Context, id ReadingID, milliseconds int64) error {
	if err := o.next.SaveWatering(ctx, id, milliseconds); err != nil {
		return err
	}

	at := o.now()
	for _, obs := range o.observers {
		if err := obs.WateringSaved(ctx, id, milliseconds, at); err != nil {
			o.logger.Warn("observer failed to record watering",
				"observer", obs.Name(),
				"sensors_id", id,
				"error", err,
			)
		}
	}
	return nil
}

// CacheObserver keeps the latest reading and watering in Redis.
type CacheObserver struct {
	Cache *cache.Client
}

// Name implements Observer.
func (CacheObserver) Name() string { return "redis" }

// ReadingSaved implements Observer.
func (c CacheObserver) ReadingSaved(ctx context.Context, id ReadingID, temperature, humidity, soilMoisture float64, at time.Time) error {
	return c.Cache.SetLastReading(ctx, cache.LastReading{
		SensorsID:    string(id),
		Temperature:  temperature,
		Humidity:     humidity,
		SoilMoisture: soilMoisture,
		RecordedAt:   at,
	})
}

// WateringSaved implements Observer.
func (c CacheObserver) WateringSaved(ctx context.Context, id ReadingID, milliseconds int64, at time.Time) error {
	return c.Cache.SetLastWatering(ctx, cache.LastWatering{
		SensorsID:    string(id),
		Milliseconds: milliseconds,
		WateredAt:    at,
	})
}

// InfluxObserver mirrors history into InfluxDB. Writes are asynchronous, so
// failures reach the client's error callback instead of this observer.
type InfluxObserver struct {
	Client *influxdb.Client
}

// Name implements Observer.
func (InfluxObserver) Name() string { return "influxdb" }

// ReadingSaved implements Observer.
func (i InfluxObserver) ReadingSaved(_ context.Context, id ReadingID, temperature, humidity, soilMoisture float64, at time.Time) error {
	i.Client.WriteReading(string(id), temperature, humidity, soilMoisture, at)
	return nil
}

// WateringSaved implements Observer.
func (i InfluxObserver) WateringSaved(_ context.Context, id ReadingID, milliseconds int64, at time.Time) error {
	i.Client.WriteWatering(string(id), milliseconds, at)
	return nil
}
