// Package influxdb records door telemetry in InfluxDB v2.
//
// Two measurements are written:
//
//	door_state     tags door_id, name, location
//	               fields status, status_code, online, battery_level
//	door_activity  tags door_id, action, method
//	               fields user_id, user_name, door_name, count
//
// Client implements control.Telemetry. Writes never block the caller;
// points are batched according to batch_size and flush_interval and
// write failures arrive through SetOnError.
//
// Usage:
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	client.WriteDoorState(door)
package influxdb
