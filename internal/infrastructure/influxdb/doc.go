// Package influxdb mirrors irrigation history into InfluxDB v2.
//
// The SQL store is the source of truth; this package only feeds dashboards.
// Two measurements are written:
//
//	sensor_values  fields: sensors_id, temperature, humidity, soil_moisture
//	waterings      fields: sensors_id, milliseconds
//
// Usage:
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteReading(id, 22.5, 60, 15, time.Now())
//
// Writes are batched according to batch_size and flush_interval. Async write
// errors are delivered to the SetOnError callback.
package influxdb
