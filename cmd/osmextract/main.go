package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/NERVsystems/osmextract/pkg/classify"
	"github.com/NERVsystems/osmextract/pkg/core"
	"github.com/NERVsystems/osmextract/pkg/extract"
	"github.com/NERVsystems/osmextract/pkg/geo"
	"github.com/NERVsystems/osmextract/pkg/monitoring"
	"github.com/NERVsystems/osmextract/pkg/osm"
	"github.com/NERVsystems/osmextract/pkg/server"
	"github.com/NERVsystems/osmextract/pkg/tools"
	"github.com/NERVsystems/osmextract/pkg/tracing"
	ver "github.com/NERVsystems/osmextract/pkg/version"
)

var (
	showVersionFlag bool
	debug           bool
	userAgent       string

	// Overpass flags
	overpassURL     string
	overpassRPS     float64
	overpassBurst   int
	overpassTimeout time.Duration
	overpassRetries int

	rulesFile string

	// Monitoring flags
	enableMonitoring bool
	monitoringAddr   string

	// One-shot extraction flags
	bboxFlag    string
	polygonFile string
	layersFlag  string
)

func init() {
	flag.BoolVar(&showVersionFlag, "version", false, "Display version information")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.StringVar(&userAgent, "user-agent", osm.DefaultUserAgent, "User-Agent string for Overpass requests")

	flag.StringVar(&overpassURL, "overpass-url", osm.OverpassBaseURL, "Overpass API interpreter endpoint")
	flag.Float64Var(&overpassRPS, "overpass-rps", osm.DefaultRPS, "Overpass rate limit in requests per second")
	flag.IntVar(&overpassBurst, "overpass-burst", osm.DefaultBurst, "Overpass rate limit burst size")
	flag.DurationVar(&overpassTimeout, "overpass-timeout", osm.DefaultTimeout, "Timeout for each Overpass call")
	flag.IntVar(&overpassRetries, "overpass-retries", 0, "Extra attempts for a failed Overpass call (0 disables retries)")

	flag.StringVar(&rulesFile, "rules", "", "YAML file overriding the built-in POI classification rules")

	flag.BoolVar(&enableMonitoring, "enable-monitoring", true, "Enable Prometheus metrics and health endpoints")
	flag.StringVar(&monitoringAddr, "monitoring-addr", ":9090", "Monitoring server address")

	flag.StringVar(&bboxFlag, "bbox", "", "Extract once for min_lon,min_lat,max_lon,max_lat and print the result instead of serving MCP")
	flag.StringVar(&polygonFile, "polygon-file", "", "Extract once for the GeoJSON Polygon in this file and print the result")
	flag.StringVar(&layersFlag, "layers", "", "Comma-separated layers for one-shot extraction (default: all)")
}

func main() {
	flag.Parse()

	var logLevel slog.Level
	if debug {
		logLevel = slog.LevelDebug
	} else {
		logLevel = slog.LevelInfo
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if showVersionFlag {
		fmt.Println(ver.String())
		return
	}

	if err := run(logger); err != nil {
		logger.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	traceCfg := tracing.ConfigFromEnv()
	shutdownTracing, err := tracing.InitTracing(ctx, traceCfg, ver.BuildVersion)
	if err != nil {
		// tracing is optional
		logger.Error("failed to initialize tracing", "error", err)
	} else {
		defer func() {
			if err := shutdownTracing(context.Background()); err != nil {
				logger.Error("error shutting down tracing", "error", err)
			}
		}()
		if traceCfg.Enabled() {
			logger.Info("OpenTelemetry tracing enabled",
				"endpoint", traceCfg.Endpoint,
				"insecure", traceCfg.Insecure,
				"sample_ratio", traceCfg.SampleRatio)
		}
	}

	classifier, err := loadClassifier(rulesFile)
	if err != nil {
		return err
	}

	client := osm.NewClient(clientConfig(logger))
	extractor := extract.NewExtractor(client, classifier, logger)

	oneShot := bboxFlag != "" || polygonFile != ""

	logger.Info("starting osmextract",
		"version", ver.BuildVersion,
		"log_level", levelName(logger),
		"overpass_url", client.BaseURL(),
		"overpass_rps", overpassRPS,
		"overpass_burst", overpassBurst,
		"overpass_timeout", overpassTimeout,
		"overpass_retries", overpassRetries,
		"rules", rulesSource(rulesFile),
		"one_shot", oneShot,
		"monitoring_enabled", enableMonitoring && !oneShot,
	)

	if oneShot {
		req, err := oneShotRequest(bboxFlag, polygonFile, layersFlag)
		if err != nil {
			return err
		}
		return extractOnce(ctx, extractor, req, os.Stdout)
	}

	if enableMonitoring {
		stopMonitoring := startMonitoring(client, logger)
		defer stopMonitoring()
	}

	s := server.NewServer(tools.NewRegistry(logger, extractor), logger)
	logger.Info("transport_enabled", "type", "stdio", "mode", "blocking")
	if err := s.Run(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func levelName(logger *slog.Logger) string {
	if logger.Enabled(context.Background(), slog.LevelDebug) {
		return slog.LevelDebug.String()
	}
	return slog.LevelInfo.String()
}

func rulesSource(path string) string {
	if path == "" {
		return "built-in"
	}
	return path
}

func clientConfig(logger *slog.Logger) osm.Config {
	cfg := osm.DefaultConfig()
	cfg.BaseURL = overpassURL
	cfg.UserAgent = userAgent
	cfg.RPS = overpassRPS
	cfg.Burst = overpassBurst
	cfg.Timeout = overpassTimeout
	cfg.Retry = core.DefaultRetryOptions.WithAttempts(1 + overpassRetries)
	cfg.Logger = logger
	return cfg
}

func loadClassifier(path string) (*classify.Classifier, error) {
	if path == "" {
		return classify.New(nil), nil
	}
	rules, err := classify.LoadRulesFile(path)
	if err != nil {
		return nil, fmt.Errorf("load classification rules: %w", err)
	}
	return classify.New(rules), nil
}

// oneShotRequest builds an extraction request from the command line flags
func oneShotRequest(bbox, polygonPath, layers string) (extract.Request, error) {
	var req extract.Request

	if polygonPath != "" {
		data, err := os.ReadFile(polygonPath)
		if err != nil {
			return req, fmt.Errorf("read polygon file: %w", err)
		}
		req.Area.Polygon = string(data)
	}
	if bbox != "" {
		b, err := geo.ParseBBox(bbox)
		if err != nil {
			return req, err
		}
		req.Area.BBox = &b
	}

	for _, l := range strings.Split(layers, ",") {
		if l = strings.TrimSpace(l); l != "" {
			req.Layers = append(req.Layers, l)
		}
	}
	return req, nil
}

// extractOnce runs one extraction and writes the indented result JSON
func extractOnce(ctx context.Context, extractor *extract.Extractor, req extract.Request, w io.Writer) error {
	result, err := extractor.Extract(ctx, req)
	if err != nil {
		var areaErr *core.InvalidAreaError
		if errors.As(err, &areaErr) {
			return fmt.Errorf("%w (%s)", err, areaErr.MCPError().Guidance)
		}
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// startMonitoring wires the Overpass client into Prometheus, serves the
// metrics and health endpoints and probes Overpass in the background.
// The returned func stops everything it started.
func startMonitoring(client *osm.Client, logger *slog.Logger) func() {
	healthChecker := monitoring.NewHealthChecker(monitoring.ServiceName, ver.BuildVersion)

	osm.SetMonitoringHooks(&osm.MonitoringHooks{
		OnResponse: func(service, operation string, duration time.Duration, success bool) {
			monitoring.RecordExternalServiceRequest(service, operation, duration, success)
		},
		OnRateLimit: func(service string, waitTime time.Duration) {
			monitoring.RecordRateLimitWait(service, waitTime)
			monitoring.RecordRateLimitExceeded(service)
		},
		OnError: func(service, errorType string) {
			monitoring.RecordError(service, errorType)
		},
	})

	overpassMonitor := monitoring.NewConnectionMonitor(
		tracing.ServiceOverpass,
		healthChecker,
		client.CheckHealth,
		30*time.Second,
	)
	overpassMonitor.Start()
	logger.Info("started external service monitoring",
		"services", []string{tracing.ServiceOverpass},
		"check_interval", "30s")

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	health := healthChecker.Handler()
	mux.Handle("/health", health)
	mux.Handle("/ready", health)
	mux.Handle("/live", health)

	monitoringServer := &http.Server{
		Addr:              monitoringAddr,
		Handler:           mux,
		ReadHeaderTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("starting monitoring server", "addr", monitoringAddr)
		if err := monitoringServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("monitoring server error", "error", err)
		}
	}()

	return func() {
		overpassMonitor.Stop()
		healthChecker.Shutdown()
		osm.SetMonitoringHooks(nil)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := monitoringServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown monitoring server", "error", err)
		}
	}
}
