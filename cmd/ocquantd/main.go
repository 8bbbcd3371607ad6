// ocquantd is the quantizer host daemon. It tethers to the hardware (or
// a simulated device), runs the quantization loop, and serves the
// control API for UI and settings collaborators.
//
// Usage:
//
//	ocquantd -config ~/quantizer.cfg [options]
//
// Options:
//
//	-config string   Settings file (required)
//	-api string      Control API address (overrides config)
//	-metrics string  Metrics scrape address (overrides config)
//	-sim             Use the simulated driver instead of the tether
//	-logfile string  Log file path (default: stderr)
//	-loglevel string Log level (overrides config)
//
// Examples:
//
//	# Run against the hardware named in the config
//	ocquantd -config ~/quantizer.cfg
//
//	# Run against a mock hardware socket
//	ocquantd -config ~/quantizer.cfg -api :7180
//
//	# Run fully simulated, verbose
//	ocquantd -config ~/quantizer.cfg -sim -loglevel debug
package main

import (
	"context"
	stderrors "errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"cvquant-go/pkg/api"
	"cvquant-go/pkg/config"
	"cvquant-go/pkg/driver"
	"cvquant-go/pkg/host"
	"cvquant-go/pkg/log"
	"cvquant-go/pkg/metrics"
)

func main() {
	configFile := flag.String("config", "", "Settings file (required)")
	apiAddr := flag.String("api", "", "Control API address (overrides config)")
	metricsAddr := flag.String("metrics", "", "Metrics scrape address (overrides config)")
	sim := flag.Bool("sim", false, "Use the simulated driver instead of the tether")
	logFile := flag.String("logfile", "", "Log file path (default: stderr)")
	logLevel := flag.String("loglevel", "", "Log level (overrides config)")
	flag.Parse()

	if *configFile == "" {
		fmt.Fprintf(os.Stderr, "Error: -config is required\n")
		flag.Usage()
		os.Exit(1)
	}

	logger := log.Default()
	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening log file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		logger.SetWriter(f)
	}

	settings, err := config.LoadSettings(*configFile)
	if err != nil {
		logger.Error("config error: %v", err)
		os.Exit(1)
	}

	level := settings.LogLevel
	if *logLevel != "" {
		level = *logLevel
	}
	logger.SetLevel(log.ParseLevel(level))

	if *apiAddr != "" {
		settings.APIAddr = *apiAddr
	}
	if *metricsAddr != "" {
		settings.MetricsAddr = *metricsAddr
	}

	logger.Info("quantizer host starting")
	logger.Info("config: %s, %d channels, standard %s",
		*configFile, settings.Channels, settings.Standard)

	drv, err := openDriver(settings, *sim)
	if err != nil {
		logger.Error("driver error: %v", err)
		os.Exit(1)
	}
	defer drv.Close()

	hm := metrics.NewHostMetrics()
	ctrl, err := host.New(settings, drv, logger.Child("host"), hm)
	if err != nil {
		logger.Error("startup error: %v", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	if settings.MetricsAddr != "" {
		ms := metrics.NewServer(hm.Registry(), settings.MetricsAddr)
		go func() {
			if err := ms.Start(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
				logger.Warn("metrics server: %v", err)
			}
		}()
		defer ms.Shutdown(context.Background())
		logger.Info("metrics on %s", settings.MetricsAddr)
	}

	var ctl *api.Server
	if settings.APIAddr != "" {
		ctl = api.New(api.Config{
			Addr:      settings.APIAddr,
			Quantizer: ctrl,
			Logger:    logger.Child("api"),
		})
		go func() {
			if err := ctl.Start(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
				logger.Warn("control API: %v", err)
			}
		}()
		defer ctl.Stop()
		logger.Info("control API on %s", settings.APIAddr)
	}

	if err := ctrl.Run(ctx); err != nil && !stderrors.Is(err, context.Canceled) {
		logger.Error("loop error: %v", err)
		os.Exit(1)
	}
	logger.Info("quantizer host stopped")
}

// openDriver picks the hardware tether or the simulator. An empty
// device path in the config also falls back to the simulator.
func openDriver(settings *config.Settings, sim bool) (driver.Driver, error) {
	if sim || settings.Device == "" {
		return driver.NewSim(settings.Channels), nil
	}
	return driver.OpenSerial(driver.SerialConfig{
		Device:   settings.Device,
		Channels: settings.Channels,
	})
}
