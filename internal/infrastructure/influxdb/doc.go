// Package influxdb records TopHat command metrics in InfluxDB v2.
//
// When enabled, every finished command becomes one tophat_command point
// tagged by device, command, kind and status, with run and queue time as
// fields. Every hat start or stop becomes one tophat_hat point. Together
// they show how busy each peripheral is and how long commands wait for a
// worker.
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteCommand(influxdb.CommandPoint{
//	    Device: "printer", Command: "printer.print",
//	    Kind: "async", Status: "SUCCESS", Duration: 10 * time.Second,
//	})
//
// Writes are batched and never block. Batch failures are counted in Stats
// and passed to the SetOnError callback.
package influxdb
