package telemetry

import "log/slog"

// Reading is one decoded sensor report. It is a value type: copies are
// independent and no method mutates it.
type Reading struct {
	temperature  float64
	humidity     float64
	soilMoisture float64
}

// NewReading builds a Reading from already validated values.
func NewReading(temperature, humidity, soilMoisture float64) Reading {
	return Reading{
		temperature:  temperature,
		humidity:     humidity,
		soilMoisture: soilMoisture,
	}
}

// Temperature in degrees Celsius as reported by the device.
func (r Reading) Temperature() float64 { return r.temperature }

// Humidity is relative air humidity in percent.
func (r Reading) Humidity() float64 { return r.humidity }

// SoilMoisture is the soil moisture level in percent.
func (r Reading) SoilMoisture() float64 { return r.soilMoisture }

// LogValue implements slog.LogValuer.
func (r Reading) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Float64("temperature", r.temperature),
		slog.Float64("humidity", r.humidity),
		slog.Float64("soil_moisture", r.soilMoisture),
	)
}
