package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names in the bucket.
const (
	MeasurementSensorValues = "sensor_values"
	MeasurementWaterings    = "waterings"
)

// WriteReading mirrors one persisted sensor reading.
//
// The reading ID is stored as a field rather than a tag: it is unique per
// point and would explode series cardinality as a tag.
func (c *Client) WriteReading(sensorsID string, temperature, humidity, soilMoisture float64, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(readingPoint(sensorsID, temperature, humidity, soilMoisture, at))
}

// WriteWatering mirrors one valve actuation.
func (c *Client) WriteWatering(sensorsID string, milliseconds int64, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(wateringPoint(sensorsID, milliseconds, at))
}

func readingPoint(sensorsID string, temperature, humidity, soilMoisture float64, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementSensorValues,
		nil,
		map[string]interface{}{
			"sensors_id":    sensorsID,
			"temperature":   temperature,
			"humidity":      humidity,
			"soil_moisture": soilMoisture,
		},
		at,
	)
}

func wateringPoint(sensorsID string, milliseconds int64, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementWaterings,
		nil,
		map[string]interface{}{
			"sensors_id":   sensorsID,
			"milliseconds": milliseconds,
		},
		at,
	)
}
