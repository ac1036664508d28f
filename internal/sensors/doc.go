// Package sensors connects physical door hardware to the facility over MQTT.
//
// Bridge subscribes to doorwatch/sensor/+/state and feeds each report into
// the control service, so a door opened by hand reaches viewers exactly like
// one opened from the dashboard. Mirror republishes every broadcast envelope
// on doorwatch/events/{type} for other consumers on the bus.
//
// Sensor payloads are partial; absent fields are left unchanged:
//
//	{"status":"open","isOnline":true,"batteryLevel":81}
package sensors
