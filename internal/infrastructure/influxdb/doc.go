// Package influxdb writes session telemetry to InfluxDB v2.
//
// Each session event (sign-in, refresh, expiry, ...) becomes one point in
// the session_event measurement, tagged by event type, role and the
// writing instance, with the refresh latency as a field when there is one. Writes are batched and
// never block the caller; failures are reported through SetOnError.
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	client.WriteSessionEvent("session.refreshed", "teacher", 42*time.Millisecond, time.Now())
package influxdb
