package eit

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const (
	defaultClientID = "eitvis"

	connectTimeout   = 10 * time.Second
	subscribeTimeout = 5 * time.Second
	maxConnectDelay  = time.Minute
)

// ReadingsHandler is called for every message received on a sensor topic.
// err is non-nil when the payload could not be decoded.
type ReadingsHandler func(sensorID string, msg *ReadingsMessage, err error)

// MQTTClient subscribes to the readings topic of every configured sensor
type MQTTClient struct {
	client  mqtt.Client
	sensors []SensorConfig
	handler ReadingsHandler
	logger  *zap.Logger

	connected atomic.Bool
	stop      chan struct{}
	stopOnce  sync.Once
}

// envOr returns the environment variable key, or fallback when it is unset
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// InitMQTT connects to the broker in the background and subscribes to every
// sensor topic once connected. Environment variables MQTT_BROKER,
// MQTT_CLIENT_ID, MQTT_USERNAME and MQTT_PASSWORD override the config file.
// Without a broker MQTT is disabled and InitMQTT returns nil, nil.
func InitMQTT(config *Config, handler ReadingsHandler, logger *zap.Logger) (*MQTTClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var settings MQTTConfig
	if config != nil {
		settings = config.MQTT
	}

	broker := envOr("MQTT_BROKER", settings.Broker)
	if broker == "" {
		logger.Info("MQTT disabled: no broker configured")
		return nil, nil
	}
	if config == nil || len(config.Sensors) == 0 {
		return nil, fmt.Errorf("MQTT broker %s configured without any sensors", broker)
	}

	clientID := envOr("MQTT_CLIENT_ID", settings.ClientID)
	if clientID == "" {
		clientID = defaultClientID
	}
	c := newMQTTClient(nil, config, handler, logger)

	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetMaxReconnectInterval(maxConnectDelay).
		SetKeepAlive(30 * time.Second).
		SetCleanSession(true).
		SetOrderMatters(false).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost).
		SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
			logger.Info("MQTT reconnecting", zap.String("broker", broker))
		})
	if username := envOr("MQTT_USERNAME", settings.Username); username != "" {
		opts.SetUsername(username)
		opts.SetPassword(envOr("MQTT_PASSWORD", settings.Password))
	}

	c.client = mqtt.NewClient(opts)
	go c.connectLoop()

	return c, nil
}

func newMQTTClient(client mqtt.Client, config *Config, handler ReadingsHandler, logger *zap.Logger) *MQTTClient {
	return &MQTTClient{
		client:  client,
		sensors: config.Sensors,
		handler: handler,
		logger:  logger,
		stop:    make(chan struct{}),
	}
}

// connectLoop makes the first connection, doubling the delay between
// failures up to maxConnectDelay. Paho's auto-reconnect takes over afterwards.
func (c *MQTTClient) connectLoop() {
	delay := time.Second
	for {
		token := c.client.Connect()
		switch {
		case !token.WaitTimeout(connectTimeout):
			c.logger.Warn("MQTT connect timed out")
		case token.Error() != nil:
			c.logger.Warn("MQTT connect failed", zap.Error(token.Error()))
		default:
			c.logger.Info("connected to MQTT broker")
			return
		}

		c.logger.Info("retrying MQTT connect", zap.Duration("delay", delay))
		select {
		case <-c.stop:
			return
		case <-time.After(delay):
		}
		delay = min(delay*2, maxConnectDelay)
	}
}

// onConnect (re)subscribes every sensor topic
func (c *MQTTClient) onConnect(client mqtt.Client) {
	c.connected.Store(true)

	for _, sensor := range c.sensors {
		if sensor.Topic == "" {
			c.logger.Warn("sensor has no topic", zap.String("sensor", sensor.ID))
			continue
		}
		token := client.Subscribe(sensor.Topic, 0, c.readingsCallback(sensor.ID))
		if token.WaitTimeout(subscribeTimeout) && token.Error() != nil {
			c.logger.Error("subscribe failed", zap.String("topic", sensor.Topic), zap.Error(token.Error()))
			continue
		}
		c.logger.Info("subscribed", zap.String("topic", sensor.Topic), zap.String("sensor", sensor.ID))
	}
}

func (c *MQTTClient) onConnectionLost(_ mqtt.Client, err error) {
	c.logger.Warn("MQTT connection lost", zap.Error(err))
	c.connected.Store(false)
}

// readingsCallback decodes payloads arriving on one sensor's topic
func (c *MQTTClient) readingsCallback(sensorID string) mqtt.MessageHandler {
	return func(_ mqtt.Client, m mqtt.Message) {
		c.logger.Debug("readings received",
			zap.String("sensor", sensorID),
			zap.String("topic", m.Topic()),
			zap.Int("bytes", len(m.Payload())))

		msg, err := DecodeReadings(m.Payload())
		if err == nil && msg.SensorID == "" {
			msg.SensorID = sensorID
		}
		if c.handler != nil {
			c.handler(sensorID, msg, err)
		}
	}
}

// IsConnected reports whether the broker connection is up
func (c *MQTTClient) IsConnected() bool {
	return c.connected.Load()
}

// Disconnect stops any pending connect attempt and closes the connection
func (c *MQTTClient) Disconnect() {
	c.stopOnce.Do(func() { close(c.stop) })
	if c.client != nil && c.client.IsConnected() {
		c.logger.Info("disconnecting from MQTT broker")
		c.client.Disconnect(250)
	}
	c.connected.Store(false)
}

// GetSensorByTopic returns the ID of the sensor publishing on topic
func (c *MQTTClient) GetSensorByTopic(topic string) (string, bool) {
	for _, sensor := range c.sensors {
		if sensor.Topic == topic {
			return sensor.ID, true
		}
	}
	return "", false
}

// GetClient returns the paho client, shared with the Publisher
func (c *MQTTClient) GetClient() mqtt.Client {
	return c.client
}

func newMQTTClientWithMock(client mqtt.Client, config *Config, handler ReadingsHandler) *MQTTClient {
	return newMQTTClient(client, config, handler, zap.NewNop())
}
