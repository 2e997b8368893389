package records

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"codeberg.org/mutker/imuctl/internal/errors"
	"codeberg.org/mutker/imuctl/internal/integration"
	"codeberg.org/mutker/imuctl/internal/logger"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// publisher is the part of mqtt.Client the sink uses.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTT publishes every record as a JSON message.
type MQTT struct {
	client publisher
	cfg    MQTTConfig
	logger logger.Logger
}

func NewMQTT(cfg MQTTConfig, log logger.Logger) (*MQTT, error) {
	errFactory := errors.New()

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("imuctl-%d", time.Now().Unix())
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetConnectTimeout(cfg.Timeout).
		SetKeepAlive(60 * time.Second).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(30 * time.Second)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Str("broker", cfg.Broker).Msg("MQTT connection lost")
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.Timeout) {
		return nil, errFactory.WithData(ErrBrokerConnect, struct {
			Broker  string
			Timeout time.Duration
		}{
			Broker:  cfg.Broker,
			Timeout: cfg.Timeout,
		})
	}
	if err := token.Error(); err != nil {
		return nil, errFactory.Wrap(ErrBrokerConnect, err)
	}

	log.Info().
		Str("broker", cfg.Broker).
		Str("client_id", clientID).
		Str("topic", cfg.Topic).
		Msg("Connected to MQTT broker")

	return newMQTT(client, cfg, log), nil
}

func newMQTT(client publisher, cfg MQTTConfig, log logger.Logger) *MQTT {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultMQTTTimeout
	}
	return &MQTT{client: client, cfg: cfg, logger: log}
}

func (m *MQTT) Append(ctx context.Context, rec integration.Record) error {
	errFactory := errors.New()

	if err := ctx.Err(); err != nil {
		return errFactory.Wrap(ErrOperationTimeout, err)
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return errFactory.Wrap(ErrPublish, err)
	}

	token := m.client.Publish(m.cfg.Topic, m.cfg.QoS, false, payload)
	if !token.WaitTimeout(m.cfg.Timeout) {
		return errFactory.WithData(ErrPublish, struct {
			Topic string
			ID    uint64
		}{
			Topic: m.cfg.Topic,
			ID:    rec.ID,
		})
	}
	if err := token.Error(); err != nil {
		return errFactory.Wrap(ErrPublish, err)
	}

	return nil
}

func (m *MQTT) Close() error {
	m.client.Disconnect(250)
	return nil
}
