package eit

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// ResultSummary is the published form of a Result
type ResultSummary struct {
	ID         string    `json:"id"`
	SensorID   string    `json:"sensorId"`
	Frequency  int       `json:"frequency,omitempty"`
	Background float64   `json:"background"`
	Anomalies  []Anomaly `json:"anomalies"`
	Timestamp  int64     `json:"timestamp"`
}

// Publisher publishes reconstruction results to MQTT
type Publisher struct {
	client        mqtt.Client
	publishPrefix string
	qos           byte
	retain        bool
	latest        map[string]string // sensor ID -> last published result ID
	logger        *zap.Logger
	mu            sync.RWMutex
}

// NewPublisher creates a new result publisher. The topic prefix comes from
// MQTT_PUBLISH_PREFIX, then prefix, then DefaultPublishPrefix.
// If client is nil, publishing is disabled (for testing).
func NewPublisher(client mqtt.Client, prefix string, logger *zap.Logger) *Publisher {
	if env := os.Getenv("MQTT_PUBLISH_PREFIX"); env != "" {
		prefix = env
	}
	if prefix == "" {
		prefix = DefaultPublishPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Publisher{
		client:        client,
		publishPrefix: prefix,
		qos:           0,    // fire and forget
		retain:        true, // late subscribers get the latest result
		latest:        make(map[string]string),
		logger:        logger,
	}
}

// PublishResult publishes a result to {prefix}/{sensorID} and the map of
// latest result IDs to {prefix}/latest
func (p *Publisher) PublishResult(r *Result) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}
	if r.SensorID == "" {
		return fmt.Errorf("result %s has no sensor ID", r.ID)
	}

	summary := ResultSummary{
		ID:         r.ID,
		SensorID:   r.SensorID,
		Frequency:  r.Frequency,
		Background: r.Background,
		Anomalies:  r.Anomalies,
		Timestamp:  r.CreatedAt.Unix(),
	}

	p.mu.Lock()
	p.latest[r.SensorID] = r.ID
	p.mu.Unlock()

	if err := p.publishJSON(fmt.Sprintf("%s/%s", p.publishPrefix, r.SensorID), summary); err != nil {
		p.logger.Error("publishing result", zap.String("sensor", r.SensorID), zap.Error(err))
		return err
	}

	if err := p.publishLatest(); err != nil {
		p.logger.Error("publishing latest results", zap.Error(err))
		return err
	}

	p.logger.Info("published result",
		zap.String("sensor", r.SensorID),
		zap.String("id", r.ID),
		zap.Int("anomalies", len(r.Anomalies)))
	return nil
}

// publishLatest publishes the latest result ID of every sensor
func (p *Publisher) publishLatest() error {
	latest := p.GetLatest()
	if len(latest) == 0 {
		return nil
	}

	sensors := make([]string, 0, len(latest))
	for id := range latest {
		sensors = append(sensors, id)
	}
	sort.Strings(sensors)

	message := map[string]interface{}{
		"sensors":   sensors,
		"results":   latest,
		"timestamp": time.Now().Unix(),
	}
	return p.publishJSON(fmt.Sprintf("%s/latest", p.publishPrefix), message)
}

func (p *Publisher) publishJSON(topic string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling payload for %s: %w", topic, err)
	}

	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	return nil
}

// GetLatest returns a copy of the latest published result ID per sensor
func (p *Publisher) GetLatest() map[string]string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	latest := make(map[string]string, len(p.latest))
	for k, v := range p.latest {
		latest[k] = v
	}
	return latest
}

// ClearSensor forgets the latest result of a sensor
func (p *Publisher) ClearSensor(sensorID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.latest, sensorID)
}

// SetQoS sets the Quality of Service level for publishing (0, 1, or 2)
func (p *Publisher) SetQoS(qos byte) {
	if qos <= 2 {
		p.qos = qos
	}
}

// SetRetain sets whether published messages should be retained by the broker
func (p *Publisher) SetRetain(retain bool) {
	p.retain = retain
}
