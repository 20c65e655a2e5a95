package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vascusens/eitvis/eit"
)

// App encapsulates the application state and dependencies
type App struct {
	Config        *eit.Config
	Logger        *zap.Logger
	Reconstructor *eit.Reconstructor
	StateTracker  *eit.StateTracker
	MQTTClient    *eit.MQTTClient
	Publisher     *eit.Publisher

	// Baselines read from the sensor config, keyed by sensor ID
	baselines map[string][]float64
	mu        sync.RWMutex

	// CLI Flags (effectively dependencies)
	InputFiles   []string
	APIURL       string
	Frequency    int
	BaselineFile string
	Flatten      *float64
	OutputFile   string
	RenderFormat string
	ConfigFile   string
	HTTPPort     int
	MqttMode     bool
	HTTPMode     bool
}

// NewApp creates a new App instance with the default configuration
func NewApp(logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	config := eit.DefaultConfig()
	return &App{
		Config:        config,
		Logger:        logger,
		Reconstructor: newReconstructor(config, logger),
		StateTracker:  eit.NewStateTracker(),
		baselines:     make(map[string][]float64),
	}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.InputFiles = opts.InputFiles
	a.APIURL = opts.APIURL
	a.Frequency = opts.Frequency
	a.BaselineFile = opts.BaselineFile
	a.Flatten = opts.Flatten
	a.OutputFile = opts.OutputFile
	a.RenderFormat = opts.RenderFormat
	a.ConfigFile = opts.ConfigFile
	a.HTTPPort = opts.HTTPPort
	a.MqttMode = opts.MqttMode
	a.HTTPMode = opts.HTTPMode
}

func newReconstructor(config *eit.Config, logger *zap.Logger) *eit.Reconstructor {
	engine := eit.NewGridEngine(config.Engine.GridSize, config.Engine.Lambda)
	return eit.NewReconstructor(engine, logger)
}

// useConfig replaces the active configuration and rebuilds the reconstructor
func (a *App) useConfig(config *eit.Config) {
	a.Config = config
	a.Reconstructor = newReconstructor(config, a.Logger)
}

// loadOptionalConfig loads the config file when it exists. The CLI commands
// run with defaults without one.
func (a *App) loadOptionalConfig() error {
	if a.ConfigFile == "" {
		return nil
	}
	config, err := eit.LoadConfig(a.ConfigFile)
	if errors.Is(err, eit.ErrFileNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	a.useConfig(config)
	a.Logger.Debug("loaded config", zap.String("path", a.ConfigFile))
	return nil
}

// loadRequest reads the readings for one visualisation from a file, or from
// the API when input is empty
func (a *App) loadRequest(ctx context.Context, input string) (eit.Request, error) {
	if input == "" {
		msg, err := eit.FetchReadingsFromAPI(ctx, a.APIURL)
		if err != nil {
			return eit.Request{}, err
		}
		req := msg.Request()
		if a.Flatten != nil {
			req.Flatten = a.Flatten
		}
		if a.BaselineFile != "" && req.Baseline == nil {
			req.Baseline, err = eit.LoadFrequencyColumn(a.BaselineFile, a.Frequency)
			if err != nil {
				return eit.Request{}, fmt.Errorf("baseline file: %w", err)
			}
		}
		return req, nil
	}

	data, baseline, err := eit.OpenFileAtFrequency(input, a.Frequency, a.BaselineFile)
	if err != nil {
		return eit.Request{}, err
	}
	flatten := a.Flatten
	if flatten == nil {
		flatten = a.Config.Pipeline.Flatten
	}
	return eit.Request{Readings: data, Baseline: baseline, Flatten: flatten}, nil
}

func (a *App) reconstruct(ctx context.Context, input string) (*eit.Result, error) {
	req, err := a.loadRequest(ctx, input)
	if err != nil {
		return nil, err
	}
	result, err := a.Reconstructor.Reconstruct(req)
	if err != nil {
		return nil, err
	}
	result.Frequency = a.Frequency
	return result, nil
}

// inputs returns the configured inputs; an empty string stands for the API
func (a *App) inputs() []string {
	if len(a.InputFiles) > 0 {
		return a.InputFiles
	}
	if a.APIURL != "" {
		return []string{""}
	}
	return nil
}

// RunVisualise reconstructs a single input and writes the image
func (a *App) RunVisualise(ctx context.Context) error {
	if err := a.loadOptionalConfig(); err != nil {
		return err
	}
	inputs := a.inputs()
	if len(inputs) != 1 {
		return fmt.Errorf("expected one input, got %d", len(inputs))
	}

	result, err := a.reconstruct(ctx, inputs[0])
	if err != nil {
		return err
	}
	if err := a.writeImage(a.OutputFile, result.Field); err != nil {
		return err
	}

	a.Logger.Info("visualisation written",
		zap.String("output", a.OutputFile),
		zap.Int("anomalies", len(result.Anomalies)))
	return nil
}

// RunCompare reconstructs two inputs concurrently and writes OUT-1 and OUT-2
func (a *App) RunCompare(ctx context.Context) error {
	if err := a.loadOptionalConfig(); err != nil {
		return err
	}
	if len(a.InputFiles) != 2 {
		return fmt.Errorf("compare needs exactly two inputs, got %d", len(a.InputFiles))
	}

	results := make([]*eit.Result, len(a.InputFiles))
	g, gctx := errgroup.WithContext(ctx)
	for i, input := range a.InputFiles {
		g.Go(func() error {
			r, err := a.reconstruct(gctx, input)
			if err != nil {
				return fmt.Errorf("%s: %w", input, err)
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, r := range results {
		out := numberedPath(a.OutputFile, i+1)
		if err := a.writeImage(out, r.Field); err != nil {
			return err
		}
		a.Logger.Info("visualisation written",
			zap.String("input", a.InputFiles[i]),
			zap.String("output", out))
	}
	return nil
}

// numberedPath turns out.png into out-N.png
func numberedPath(path string, n int) string {
	ext := filepath.Ext(path)
	return fmt.Sprintf("%s-%d%s", strings.TrimSuffix(path, ext), n, ext)
}

// anomalyReport is the JSON printed by the anomalies command
type anomalyReport struct {
	Frequency  int           `json:"frequency"`
	Background float64       `json:"background"`
	Anomalies  []eit.Anomaly `json:"anomalies"`
}

// RunAnomalies prints the anomaly list of a single input as JSON
func (a *App) RunAnomalies(ctx context.Context, w io.Writer) error {
	if err := a.loadOptionalConfig(); err != nil {
		return err
	}
	inputs := a.inputs()
	if len(inputs) != 1 {
		return fmt.Errorf("expected one input, got %d", len(inputs))
	}

	req, err := a.loadRequest(ctx, inputs[0])
	if err != nil {
		return err
	}
	anomalies, err := eit.Prepare(req)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(anomalyReport{
		Frequency:  a.Frequency,
		Background: eit.Background,
		Anomalies:  anomalies,
	})
}

// writeImage renders the field to path; the extension picks SVG or PNG
func (a *App) writeImage(path string, field *eit.Field) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer func() { _ = f.Close() }()

	format := a.RenderFormat
	if format == "" {
		format = a.Config.Render.Format
	}
	if strings.EqualFold(filepath.Ext(path), ".svg") {
		format = "svg"
	}
	if err := encodeField(f, field, format, a.Config.Render.Size); err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return nil
}

// encodeField writes field as "svg", vector-rasterised "vector" PNG, or "raster" PNG
func encodeField(w io.Writer, field *eit.Field, format string, size int) error {
	switch format {
	case "svg":
		return eit.NewVectorRenderer().RenderToSVG(w, field)
	case "vector":
		return eit.NewVectorRenderer().RenderToPNG(w, field)
	case "raster", "":
		return eit.NewFieldRenderer(size).EncodePNG(w, field)
	default:
		return fmt.Errorf("%w: unknown render format %q", eit.ErrInvalidInput, format)
	}
}

// loadSensorBaselines reads the baseline file of every sensor that names one
func (a *App) loadSensorBaselines() {
	for _, sc := range a.Config.Sensors {
		if sc.Baseline == "" {
			continue
		}
		freq := sc.Frequency
		if freq == 0 {
			freq = a.Frequency
		}
		baseline, err := eit.LoadFrequencyColumn(sc.Baseline, freq)
		if err != nil {
			a.Logger.Warn("sensor baseline not loaded",
				zap.String("sensor", sc.ID), zap.String("path", sc.Baseline), zap.Error(err))
			continue
		}
		a.mu.Lock()
		a.baselines[sc.ID] = baseline
		a.mu.Unlock()
		a.Logger.Info("loaded sensor baseline", zap.String("sensor", sc.ID), zap.Int("frequency", freq))
	}
}

// handleReadings reconstructs one sensor message, stores the result and publishes it
func (a *App) handleReadings(sensorID string, msg *eit.ReadingsMessage, err error) {
	if err != nil {
		a.Logger.Warn("dropping undecodable readings", zap.String("sensor", sensorID), zap.Error(err))
		return
	}

	req := msg.Request()
	if req.Baseline == nil {
		a.mu.RLock()
		req.Baseline = a.baselines[sensorID]
		a.mu.RUnlock()
	}
	if req.Flatten == nil {
		req.Flatten = a.Config.EffectiveFlatten(sensorID)
	}

	result, err := a.Reconstructor.Reconstruct(req)
	if err != nil {
		a.Logger.Warn("dropping readings", zap.String("sensor", sensorID), zap.Error(err))
		return
	}
	result.SensorID = sensorID
	result.Frequency = msg.Frequency
	if result.Frequency == 0 {
		if sc := a.Config.GetSensorByID(sensorID); sc != nil {
			result.Frequency = sc.Frequency
		}
	}

	a.StateTracker.Update(result)
	a.Logger.Debug("result stored",
		zap.String("sensor", sensorID),
		zap.String("id", result.ID),
		zap.Int("anomalies", len(result.Anomalies)))

	if a.Publisher != nil {
		if err := a.Publisher.PublishResult(result); err != nil {
			a.Logger.Warn("publishing result", zap.String("sensor", sensorID), zap.Error(err))
		}
	}
}

// RunService runs the MQTT subscriber and/or the HTTP server until ctx is done
func (a *App) RunService(ctx context.Context) error {
	a.Logger.Info("starting eitvis service")

	config, err := eit.LoadConfig(a.ConfigFile)
	switch {
	case err == nil:
		a.useConfig(config)
		a.Logger.Info("loaded config", zap.String("path", a.ConfigFile))
	case a.MqttMode:
		return fmt.Errorf("failed to load config: %w (looked at %s)", err, a.ConfigFile)
	case errors.Is(err, eit.ErrFileNotFound):
		a.Logger.Warn("no config file, using defaults", zap.String("path", a.ConfigFile))
	default:
		return fmt.Errorf("failed to load config: %w", err)
	}

	a.loadSensorBaselines()

	if a.MqttMode {
		mqttClient, err := eit.InitMQTT(a.Config, a.handleReadings, a.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize MQTT: %w", err)
		}
		if mqttClient == nil {
			return fmt.Errorf("MQTT broker not configured in %s", a.ConfigFile)
		}
		a.MQTTClient = mqttClient
		a.Publisher = eit.NewPublisher(mqttClient.GetClient(), a.Config.MQTT.PublishPrefix, a.Logger)
		defer a.MQTTClient.Disconnect()

		for _, sc := range a.Config.Sensors {
			a.Logger.Info("sensor", zap.String("id", sc.ID), zap.String("topic", sc.Topic))
		}
	}

	var server *http.Server
	serverErr := make(chan error, 1)
	if a.HTTPMode {
		port := a.HTTPPort
		if port <= 0 {
			port = a.Config.HTTP.Port
		}
		server = &http.Server{
			Addr:              fmt.Sprintf("0.0.0.0:%d", port),
			Handler:           newHTTPServer(a.StateTracker, a.Reconstructor, a.Config, a.Logger),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			a.Logger.Info("starting HTTP server", zap.String("addr", server.Addr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
		}()
	}

	a.Logger.Info("service running, press Ctrl+C to stop")

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		return fmt.Errorf("HTTP server: %w", err)
	}

	a.Logger.Info("shutting down service")
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			a.Logger.Warn("HTTP shutdown", zap.Error(err))
		}
	}
	a.Logger.Info("service stopped")
	return nil
}
