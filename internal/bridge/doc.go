// Package bridge connects the Nexia cloud to the local MQTT bus.
//
// The bridge owns the polling cadence: on each cycle it refreshes the
// cloud snapshot, publishes retained state messages for every thermostat
// and zone whose state changed, records zone readings to the local
// history store, and forwards metrics to InfluxDB when enabled.
//
// Commands arrive on graylogic/command/nexia/{address} where the address
// names a thermostat ("thermostat-2059652") or a zone ("zone-83261002").
// Each command is acknowledged on the matching ack topic; successful
// commands publish the confirmed state immediately from the merged cache
// rather than waiting for the next poll.
//
// Health status is published periodically to graylogic/health/nexia and
// as a retained LWT message if the connection drops.
package bridge
