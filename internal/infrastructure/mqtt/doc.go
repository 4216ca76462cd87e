// Package mqtt provides MQTT client connectivity for the Nexia bridge.
//
// This package manages:
//   - Connection to Mosquitto broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// The bridge uses MQTT as the message bus connecting the cloud thermostat
// state to the rest of the home-automation stack. The broker (Mosquitto)
// decouples consumers from the cloud polling cycle.
//
//	mynexia.com ↔ Nexia Bridge ↔ MQTT Broker ↔ Consumers
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Performance Characteristics
//
//   - Connection: <1 second to local broker
//   - Publish latency: <10ms for QoS 1 to local broker
//   - Reconnect: Exponential backoff 1s-60s with jitter
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to all thermostat commands
//	err = client.Subscribe(mqtt.Topics{}.BridgeCommands("nexia"), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	// Publish zone state (retained so new subscribers see current state)
//	topic := mqtt.Topics{}.BridgeState("nexia", "zone-83261002")
//	client.Publish(topic, stateJSON, 1, true)
package mqtt
