// Package mqtt provides MQTT client connectivity for the telemetry collectors.
//
// This package manages:
//   - Connection to the broker with bounded auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// Gateways publish device data to the broker under data/<site>/<class>/...
// Each collector holds its own connection so the history and realtime
// streams can fail and reconnect independently.
//
//	Gateways -> MQTT Broker -> history collector  -> history lane
//	                        -> realtime collector -> realtime lane
//
// # Reconnection
//
// paho reconnects automatically. Consecutive attempts are counted and,
// once cfg.Reconnect.MaxAttempts is passed, the client disconnects for
// good and invokes the OnFatal callback. A successful connection resets
// the count.
//
// Subscriptions are restored on reconnect unless SetAutoResubscribe(false)
// is called, in which case the OnConnect callback must resubscribe.
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//
// # Usage
//
//	client, err := mqtt.Connect(mqtt.WithClientIDSuffix(cfg.MQTT, "history"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe(topic.HistoryWildcard(), 1,
//	    func(t string, payload []byte) error {
//	        log.Printf("Received: %s = %s", t, payload)
//	        return nil
//	    })
package mqtt
