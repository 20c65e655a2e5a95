package eit

import (
	"math"
	"time"
)

const (
	// ElectrodeCount is the number of electrodes around the sensor ring
	ElectrodeCount = 16

	// NodeCount is the number of measurement nodes (one per A/B electrode pair)
	NodeCount = ElectrodeCount / 2

	// ReadingsPerNode is the number of readings taken at each node:
	// right, left, far-left, far-right
	ReadingsPerNode = 4

	// ReadingCount is the length of a complete reading sequence
	ReadingCount = NodeCount * ReadingsPerNode

	// Background is the permittivity of the whole mesh before anomalies are applied
	Background = 1.0
)

// Point represents a 2D coordinate
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Anomaly describes a circular region of raised permittivity. All mesh
// elements closer than D to (X, Y) take the value Perm.
type Anomaly struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	D    float64 `json:"d"`
	Perm float64 `json:"perm"`
}

// Request holds the inputs of one visualisation.
// Baseline and Flatten are optional.
type Request struct {
	Readings []float64
	Baseline []float64
	Flatten  *float64
}

// ReadingsMessage is the wire form of a reading set, used by the MQTT
// subscriber, the HTTP API and remote fetches.
type ReadingsMessage struct {
	SensorID  string    `json:"sensorId,omitempty"`
	Frequency int       `json:"frequency,omitempty"`
	Readings  []float64 `json:"readings"`
	Baseline  []float64 `json:"baseline,omitempty"`
	Flatten   *float64  `json:"flatten,omitempty"`
}

// Request converts the message into a pipeline request
func (m *ReadingsMessage) Request() Request {
	return Request{
		Readings: m.Readings,
		Baseline: m.Baseline,
		Flatten:  m.Flatten,
	}
}

// Field is a square, row-major scalar grid produced by the inverse step.
// Row 0 is y = -1 and column 0 is x = -1. Cells outside the sensor disc are NaN.
type Field struct {
	Size   int       `json:"size"`
	Values []float64 `json:"values"`
}

// At returns the value at row r, column c
func (f *Field) At(r, c int) float64 {
	return f.Values[r*f.Size+c]
}

// Range returns the minimum and maximum finite values of the field.
// ok is false when the field holds no finite value.
func (f *Field) Range() (lo, hi float64, ok bool) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range f.Values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
		ok = true
	}
	return lo, hi, ok
}

// Result is one completed visualisation
type Result struct {
	ID         string    `json:"id"`
	SensorID   string    `json:"sensorId,omitempty"`
	Frequency  int       `json:"frequency,omitempty"`
	Anomalies  []Anomaly `json:"anomalies"`
	Background float64   `json:"background"`
	Field      *Field    `json:"-"`
	CreatedAt  time.Time `json:"createdAt"`
}

// SensorConfig defines a sensor from the config file
type SensorConfig struct {
	ID        string   `yaml:"id" json:"id"`
	Topic     string   `yaml:"topic" json:"topic"`
	Frequency int      `yaml:"frequency,omitempty" json:"frequency,omitempty"`
	Baseline  string   `yaml:"baseline,omitempty" json:"baseline,omitempty"` // Optional baseline workbook, read at Frequency
	Flatten   *float64 `yaml:"flatten,omitempty" json:"flatten,omitempty"`   // Overrides pipeline.flatten for this sensor
}

// MQTTConfig holds MQTT connection settings
type MQTTConfig struct {
	Broker        string `yaml:"broker" json:"broker"`
	PublishPrefix string `yaml:"publishPrefix" json:"publishPrefix"`
	ClientID      string `yaml:"clientId" json:"clientId"`
	Username      string `yaml:"username,omitempty" json:"username,omitempty"`
	Password      string `yaml:"password,omitempty" json:"password,omitempty"`
}

// PipelineConfig holds defaults for the measurement pipeline
type PipelineConfig struct {
	Flatten *float64 `yaml:"flatten,omitempty" json:"flatten,omitempty"`
}

// EngineConfig configures the built-in grid engine
type EngineConfig struct {
	GridSize int     `yaml:"gridSize" json:"gridSize"`
	Lambda   float64 `yaml:"lambda" json:"lambda"`
}

// RenderConfig configures image output
type RenderConfig struct {
	Size   int    `yaml:"size" json:"size"`
	Format string `yaml:"format" json:"format"` // "raster" or "vector"
}

// HTTPConfig configures the HTTP server
type HTTPConfig struct {
	Port int `yaml:"port" json:"port"`
}

// Config represents the full configuration file
type Config struct {
	MQTT     MQTTConfig     `yaml:"mqtt" json:"mqtt"`
	Sensors  []SensorConfig `yaml:"sensors" json:"sensors"`
	Pipeline PipelineConfig `yaml:"pipeline" json:"pipeline"`
	Engine   EngineConfig   `yaml:"engine" json:"engine"`
	Render   RenderConfig   `yaml:"render" json:"render"`
	HTTP     HTTPConfig     `yaml:"http" json:"http"`
}

// GetSensorByID returns the sensor config for the given ID
func (c *Config) GetSensorByID(id string) *SensorConfig {
	for i := range c.Sensors {
		if c.Sensors[i].ID == id {
			return &c.Sensors[i]
		}
	}
	return nil
}

// EffectiveFlatten returns the sensor's flatten override or the pipeline default
func (c *Config) EffectiveFlatten(sensorID string) *float64 {
	if sc := c.GetSensorByID(sensorID); sc != nil && sc.Flatten != nil {
		return sc.Flatten
	}
	return c.Pipeline.Flatten
}
