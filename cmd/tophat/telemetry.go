package main

import (
	"context"
	"fmt"

	_ "github.com/nerrad567/tophat-core/migrations"

	"github.com/nerrad567/tophat-core/internal/api"
	"github.com/nerrad567/tophat-core/internal/audit"
	"github.com/nerrad567/tophat-core/internal/events"
	"github.com/nerrad567/tophat-core/internal/infrastructure/config"
	"github.com/nerrad567/tophat-core/internal/infrastructure/database"
	"github.com/nerrad567/tophat-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/tophat-core/internal/infrastructure/logging"
	"github.com/nerrad567/tophat-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/tophat-core/internal/sandbox"
)

// telemetry holds the optional outbound connections. Each member is nil
// when its section is disabled.
type telemetry struct {
	log    *logging.Logger
	mqtt   *mqtt.Client
	influx *influxdb.Client
	db     *database.DB
	audit  audit.Repository
}

// connectTelemetry opens every enabled sink. A sink that is enabled but
// unreachable is a startup error, as in any other misconfiguration.
func connectTelemetry(ctx context.Context, cfg *config.Config, log *logging.Logger) (*telemetry, error) {
	t := &telemetry{log: log}

	if cfg.Database.Enabled {
		db, err := database.Open(cfg.Database)
		if err != nil {
			return t, fmt.Errorf("opening database: %w", err)
		}
		t.db = db
		if err := db.Migrate(ctx); err != nil {
			return t, fmt.Errorf("running migrations: %w", err)
		}
		t.audit = audit.NewSQLiteRepository(db.DB)
		log.Info("audit log enabled", "path", cfg.Database.Path)
	}

	if cfg.MQTT.Enabled {
		client, err := mqtt.Connect(cfg.MQTT)
		if err != nil {
			return t, fmt.Errorf("connecting to MQTT: %w", err)
		}
		client.SetLogger(log.Component("mqtt"))
		client.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		client.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		t.mqtt = client
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	}

	if cfg.InfluxDB.Enabled {
		client, err := influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return t, fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		client.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		t.influx = client
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	}

	return t, nil
}

// observers returns a command observer for every open sink.
func (t *telemetry) observers(log *logging.Logger) events.Multi {
	var obs events.Multi
	if t.audit != nil {
		rec := events.NewAuditRecorder(t.audit)
		rec.SetLogger(log.Component("audit"))
		obs = append(obs, rec)
	}
	if t.mqtt != nil {
		pub := events.NewMQTTPublisher(t.mqtt, t.mqtt.Topics())
		pub.SetLogger(log.Component("mqtt"))
		obs = append(obs, pub)
	}
	if t.influx != nil {
		obs = append(obs, events.NewMetricsRecorder(t.influx))
	}
	return obs
}

// reportHats publishes each hat's running state.
func (t *telemetry) reportHats(statuses []sandbox.HatStatus) {
	if t == nil {
		return
	}
	for _, s := range statuses {
		if t.mqtt != nil {
			if err := t.mqtt.PublishJSON(t.mqtt.Topics().HatStatus(s.Name), s, true); err != nil {
				t.log.Warn("publishing hat status failed", "hat", s.Name, "error", err)
			}
		}
		if t.influx != nil {
			t.influx.WriteHatStatus(s.Name, s.Running)
		}
	}
}

// apiDeps fills in the sinks the status API reports on.
func (t *telemetry) apiDeps(deps *api.Deps) {
	if t.audit != nil {
		deps.Audit = t.audit
	}
	if t.db != nil {
		deps.DB = t.db
	}
	if t.mqtt != nil {
		deps.MQTT = t.mqtt
	}
	if t.influx != nil {
		deps.Influx = t.influx
	}
}

// Close releases every open sink.
func (t *telemetry) Close() {
	if t.influx != nil {
		t.log.Info("closing InfluxDB connection")
		if err := t.influx.Close(); err != nil {
			t.log.Error("error closing InfluxDB", "error", err)
		}
	}
	if t.mqtt != nil {
		t.log.Info("disconnecting from MQTT")
		if err := t.mqtt.Close(); err != nil {
			t.log.Error("error closing MQTT", "error", err)
		}
	}
	if t.db != nil {
		t.log.Info("closing database")
		if err := t.db.Close(); err != nil {
			t.log.Error("error closing database", "error", err)
		}
	}
}
