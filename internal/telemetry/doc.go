// Package telemetry decodes sensor reports published by the garden device.
//
// A report is a JSON object carrying three numbers:
//
//	{"Temperature":22.5,"Humidity":60,"SoilMoisture":15}
//
// Decode turns the raw payload into an immutable Reading or an
// *InvalidPayloadError naming the first offending field. It never returns a
// partially populated Reading.
package telemetry
