package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vascusens/eitvis/eit"
)

var (
	verbose bool
	logger  *zap.Logger

	opts = AppOptions{
		Frequency:    100,
		OutputFile:   "visualisation.png",
		RenderFormat: "raster",
		ConfigFile:   "config.yaml",
		HTTPPort:     eit.DefaultHTTPPort,
	}
	flatten float64
)

// AppOptions holds the command line options shared by all commands
type AppOptions struct {
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

var rootCmd = &cobra.Command{
	Use:   "eitvis",
	Short: "Electrical impedance tomography visualiser",
	Long: `eitvis turns a 32-value EIT measurement sequence into a list of circular
permittivity anomalies and a reconstructed field image.

Readings come from the frequency column of an .xlsx or .csv export (-i),
from an HTTP endpoint (--url), or from MQTT in service mode (serve).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		if cmd.Flags().Changed("flatten") {
			opts.Flatten = &flatten
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(opts.InputFiles) == 0 && opts.APIURL == "" {
			return cmd.Help()
		}
		return newApp(opts).RunVisualise(cmd.Context())
	},
}

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Reconstruct two inputs side by side",
	Long: `Reconstructs two inputs concurrently and writes OUT-1 and OUT-2,
where OUT is the output path without its extension.

Example:
  eitvis compare -i before.xlsx -i after.xlsx -c 50 -o cmp.png`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return newApp(opts).RunCompare(cmd.Context())
	},
}

var anomaliesCmd = &cobra.Command{
	Use:   "anomalies",
	Short: "Print the anomaly list as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		return newApp(opts).RunAnomalies(cmd.Context(), cmd.OutOrStdout())
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run as a service reconstructing MQTT readings",
	Long: `Subscribes to the readings topic of every sensor in the config file,
reconstructs each message and publishes the anomalies to
{publishPrefix}/{sensorId}. With --http the latest results are served
over HTTP.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !opts.MqttMode && !opts.HTTPMode {
			return fmt.Errorf("serve needs --mqtt, --http or both")
		}
		return newApp(opts).RunService(cmd.Context())
	},
}

func newApp(o AppOptions) *App {
	app := NewApp(logger)
	app.ApplyOptions(o)
	return app
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	input := rootCmd.PersistentFlags()
	input.StringArrayVarP(&opts.InputFiles, "input", "i", nil, "Input .xlsx or .csv file")
	input.StringVar(&opts.APIURL, "url", "", "Fetch readings from an HTTP endpoint instead of a file")
	input.IntVarP(&opts.Frequency, "frequency", "c", opts.Frequency,
		fmt.Sprintf("Measurement frequency column (%d-%d)", eit.MinFrequency, eit.MaxFrequency))
	input.StringVarP(&opts.BaselineFile, "baseline", "b", "", "Baseline file read at the same frequency")
	input.Float64VarP(&flatten, "flatten", "f", 0, "Clamp readings above mean + FLATTEN*stddev")
	input.StringVarP(&opts.OutputFile, "output", "o", opts.OutputFile, "Output image (.png or .svg)")
	input.StringVar(&opts.RenderFormat, "format", opts.RenderFormat, "PNG renderer: raster or vector")
	input.StringVar(&opts.ConfigFile, "config", opts.ConfigFile, "Path to config.yaml")

	serveCmd.Flags().BoolVar(&opts.MqttMode, "mqtt", false, "Enable MQTT subscription and publishing")
	serveCmd.Flags().BoolVar(&opts.HTTPMode, "http", false, "Enable the HTTP server")
	serveCmd.Flags().IntVar(&opts.HTTPPort, "http-port", opts.HTTPPort, "HTTP server port")

	rootCmd.AddCommand(compareCmd, anomaliesCmd, serveCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
