package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteZoneReading writes a single zone measurement set to InfluxDB.
//
// This is the primary method for recording polled zone telemetry.
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - thermostatID: Parent thermostat identifier
//   - zoneID: Zone identifier
//   - fields: Numeric readings (temperature, heating_setpoint, cooling_setpoint)
//
// Example:
//
//	client.WriteZoneReading(2059652, 83261002, map[string]interface{}{
//	    "temperature":      21.5,
//	    "heating_setpoint": 20.0,
//	    "cooling_setpoint": 25.5,
//	})
func (c *Client) WriteZoneReading(thermostatID, zoneID int64, fields map[string]interface{}) {
	if !c.IsConnected() || len(fields) == 0 {
		return
	}

	point := write.NewPoint(
		"zone_readings",
		map[string]string{
			"thermostat_id": strconv.FormatInt(thermostatID, 10),
			"zone_id":       strconv.FormatInt(zoneID, 10),
		},
		fields,
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteThermostatMetric writes a single thermostat-level measurement.
//
// Used for readings that belong to the whole unit rather than one zone:
// outdoor temperature, relative humidity, compressor speed.
//
// Parameters:
//   - thermostatID: Thermostat identifier
//   - metric: The metric name (e.g., "outdoor_temperature", "compressor_speed")
//   - value: The numeric value to record
func (c *Client) WriteThermostatMetric(thermostatID int64, metric string, value float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"thermostat_metrics",
		map[string]string{
			"thermostat_id": strconv.FormatInt(thermostatID, 10),
			"metric":        metric,
		},
		map[string]interface{}{
			"value": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}
