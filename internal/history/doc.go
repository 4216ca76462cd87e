// Package history stores zone readings sampled from the cloud snapshot.
//
// Each poll produces one reading per zone: temperature, both setpoints, the
// operating mode and the zone status. Readings feed the local REST API's
// history endpoints and survive restarts; long-term metrics additionally go
// to InfluxDB when it is enabled.
//
// Retention is bounded: Prune deletes readings older than the configured
// window and runs periodically from the bridge.
package history
