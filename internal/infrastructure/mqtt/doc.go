// Package mqtt provides the MQTT client for publishing sync status.
//
// # Purpose
//
// Announces VitalSync's presence and per-pass results over MQTT so
// dashboards and home-automation rules can observe the sync loop without
// querying the time-series store. Two retained topics are used:
//
//   - <prefix>/availability: online/offline presence, with a Last Will
//     message distinguishing crashes from graceful shutdown
//   - <prefix>/status: JSON summary of the most recent sync pass
//
// The client is publish-only. It never subscribes.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return fmt.Errorf("connecting to broker: %w", err)
//	}
//	defer client.Close()
//
//	err = client.PublishRetained(mqtt.StatusTopic(cfg.MQTT.TopicPrefix), payload)
//
// # Thread Safety
//
// All methods are safe for concurrent use. Reconnection is handled by the
// paho library with exponential backoff; publishes while disconnected
// return ErrNotConnected rather than queueing.
//
// # Error Handling
//
// Failures publishing status are reported to the caller and are expected
// to be treated as non-fatal: status is advisory, the sync pass itself
// has already completed.
package mqtt
