// Package mqtt provides MQTT connectivity for Doorwatch Core.
//
// The sensor bridge uses it in two directions: door sensors publish their
// state to doorwatch/sensor/{doorId}/state, and every envelope the hub
// broadcasts is mirrored to doorwatch/events/{type} for other consumers on
// the bus.
//
// The client reconnects automatically with exponential backoff, restores
// its subscriptions after a reconnect, and publishes a retained status on
// doorwatch/system/status. The broker publishes the LWT there if the
// process dies without closing.
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllSensorStates(), client.QoS(), handler)
package mqtt
