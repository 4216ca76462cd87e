// Package nexia provides a client for the mynexia.com cloud thermostat API
// used by Nexia, Trane and American Standard connected thermostats.
//
// This package manages:
//   - Authenticated sessions against the mobile API (token pair, transparent
//     re-login on session expiry, bounded login attempts)
//   - A cached snapshot of all thermostats and zones in a house, refreshed on
//     a staleness window
//   - Typed read access to thermostat and zone attributes, settings and
//     features
//   - Control operations (modes, setpoints, presets, fan, humidity) with
//     client-side validation and cache write-back from the server response
//
// # Architecture
//
// The cloud has no push channel; all state arrives by polling GET /houses/{id}
// and all writes go through POST endpoints that return the updated object
// fragment. The client keeps one snapshot per house and merges POST responses
// into it, so reads immediately after a write observe the confirmed state
// without another poll.
//
// # Usage
//
//	client, err := nexia.New(nexia.Config{
//	    Username: "user@example.com",
//	    Password: "secret",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := client.Login(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	thermostat, err := client.Thermostat(ctx, 0) // sole thermostat
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, zone := range thermostat.Zones() {
//	    name, _ := zone.Name()
//	    temp, _ := zone.Temperature()
//	    fmt.Printf("%s: %.1f\n", name, temp)
//	}
//
// # Thread Safety
//
// All methods on Client, Thermostat and Zone are safe for concurrent use.
// Control operations on the same zone are not serialised against each other;
// the last write accepted by the cloud wins.
//
// # Rate Limits
//
// The cloud service locks accounts after repeated failed logins. The client
// bounds login attempts per instance (default 4) and fails fast once
// exhausted. Do not construct clients in a retry loop.
package nexia
