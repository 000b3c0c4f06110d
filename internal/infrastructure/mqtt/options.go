package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/tophat-core/internal/infrastructure/config"
)

const (
	connectTimeout  = 10 * time.Second
	publishTimeout  = 5 * time.Second
	keepAlive       = 60 * time.Second
	quiesceMillis   = 1000
	maxQoS          = 2
	presenceQoS     = 1
	minTLSVersion   = tls.VersionTLS12
	reasonCrash     = "unexpected_disconnect"
	reasonShutdown  = "graceful_shutdown"
	presenceOnline  = "online"
	presenceOffline = "offline"
)

// Presence is the retained payload on the system status topic.
type Presence struct {
	Status    string    `json:"status"`
	ClientID  string    `json:"client_id"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func presence(clientID, status, reason string) []byte {
	b, _ := json.Marshal(Presence{
		Status:    status,
		ClientID:  clientID,
		Reason:    reason,
		Timestamp: time.Now().UTC().Truncate(time.Second),
	})
	return b
}

// clientOptions maps the mqtt config section onto paho options. The
// session is clean: the daemon only publishes, so there is nothing to
// resume.
func clientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port)).
		SetClientID(cfg.Broker.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second).
		SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second).
		SetConnectTimeout(connectTimeout).
		SetKeepAlive(keepAlive)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username).SetPassword(cfg.Auth.Password)
	}
	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: minTLSVersion})
	}
	return opts
}

// setWill registers the retained offline presence the broker publishes
// if the daemon dies without closing the client.
func setWill(opts *pahomqtt.ClientOptions, topics Topics, clientID string) {
	opts.SetBinaryWill(topics.SystemStatus(), presence(clientID, presenceOffline, reasonCrash), presenceQoS, true)
}
