// Package api provides the local HTTP REST API for the Nexia bridge.
//
// It exposes read access to the cached house snapshot (thermostats, zones,
// recorded readings) and the control operations that post back to the
// cloud. The server is intended for the local network only; commands from
// other systems normally arrive over MQTT instead.
//
// The server follows the same lifecycle pattern as the other
// infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
