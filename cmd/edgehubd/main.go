// Command edgehubd runs one Edge Hub Controller: the hub/node state
// machines, the Dynamic Load Management control loop, request intake, and
// (optionally) an mDNS advertisement and an interactive operator console.
//
// Usage:
//
//	edgehubd serve --config /etc/hubctl/hub.yaml
//	edgehubd validate-config /etc/hubctl/hub.yaml
//	edgehubd version
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/gridwatt/hubctl/cmd/edgehubd/interactive"
	"github.com/gridwatt/hubctl/internal/config"
	"github.com/gridwatt/hubctl/internal/dlm"
	"github.com/gridwatt/hubctl/internal/hub"
	"github.com/gridwatt/hubctl/internal/intake"
	"github.com/gridwatt/hubctl/internal/node"
	"github.com/gridwatt/hubctl/pkg/broker"
	"github.com/gridwatt/hubctl/pkg/hal"
	"github.com/gridwatt/hubctl/pkg/log"
	"github.com/gridwatt/hubctl/pkg/model"
)

// version is set at release time via -ldflags; left as "dev" in normal builds.
var version = "dev"

var configFile string

func main() {
	root := &cobra.Command{
		Use:   "edgehubd",
		Short: "Edge Hub Controller daemon",
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "path to the hub's YAML config file")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the hub and run until terminated",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd, configFile)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(2)
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	config.BindFlags(serveCmd)

	validateCmd := &cobra.Command{
		Use:   "validate-config <file>",
		Short: "Validate a config file and exit",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if _, err := config.Load(cmd, args[0]); err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(2)
			}
			fmt.Println("config OK")
		},
	}
	config.BindFlags(validateCmd)

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the edgehubd version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}

	root.AddCommand(serveCmd, validateCmd, versionCmd)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	zl := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Str("hub_id", cfg.HubID).Logger()
	zl = setLevel(zl, cfg.LogLevel)

	var events log.Logger = log.NoopLogger{}
	if cfg.EventLogPath != "" {
		fileLogger, err := log.NewFileLogger(cfg.EventLogPath)
		if err != nil {
			zl.Error().Err(err).Msg("failed to open event log, continuing without one")
		} else {
			defer fileLogger.Close()
			events = fileLogger
			zl.Info().Str("path", cfg.EventLogPath).Msg("event log enabled")
		}
	}

	memBroker := broker.NewMemoryBroker()
	client := memBroker.Client()

	connMgr := broker.NewManager(client.Connect)
	connMgr.OnStateChange(func(oldState, newState broker.State) {
		zl.Info().Str("from", oldState.String()).Str("to", newState.String()).Msg("broker connection state changed")
	})
	if err := connMgr.Connect(ctx); err != nil {
		return fmt.Errorf("edgehubd: broker connect: %w", err)
	}
	defer connMgr.Close()

	loc, err := model.NewLocation(cfg.Location.Latitude, cfg.Location.Longitude, cfg.Location.AltitudeM)
	if err != nil {
		return fmt.Errorf("edgehubd: %w", err)
	}
	hubCfg := model.HubConfig{
		HubID:             cfg.HubID,
		Location:          loc,
		MaxGridCapacityKW: cfg.MaxGridCapacityKW,
		FirmwareVersion:   cfg.FirmwareVersion,
		IPAddress:         cfg.IPAddress,
	}

	h, err := hub.New(hubCfg, client, events)
	if err != nil {
		return fmt.Errorf("edgehubd: %w", err)
	}

	for i, nd := range cfg.Nodes {
		power, proximity, actuator, err := buildNodeHardware(nd, i)
		if err != nil {
			return fmt.Errorf("edgehubd: node %s: %w", nd.NodeID, err)
		}
		spec := hub.NodeSpec{
			NodeID:       nd.NodeID,
			MaxPowerKW:   nd.MaxPowerKW,
			TelemetryCfg: node.Config{HardwareMode: !nd.Simulation},
		}
		if _, err := h.AddNode(spec, power, proximity, actuator); err != nil {
			return fmt.Errorf("edgehubd: node %s: %w", nd.NodeID, err)
		}
		zl.Info().Str("node_id", nd.NodeID).Float64("max_power_kw", nd.MaxPowerKW).Bool("simulation", nd.Simulation).Msg("node configured")
	}

	dlmSvc, err := dlm.New(dlm.Config{
		HubID:      cfg.HubID,
		CapacityKW: cfg.MaxGridCapacityKW,
		PolicyName: cfg.PolicyName,
		Interval:   time.Duration(cfg.DLMIntervalSeconds) * time.Second,
	}, h, client, events)
	if err != nil {
		return fmt.Errorf("edgehubd: %w", err)
	}

	in := intake.New(h, client, dlmSvc, events)

	var advertiser *lanAdvertiser
	if cfg.AdvertiseLAN {
		advertiser, err = startLANAdvertisement(cfg)
		if err != nil {
			zl.Warn().Err(err).Msg("LAN advertisement failed to start, continuing without it")
			advertiser = nil
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := h.Start(runCtx); err != nil {
		return fmt.Errorf("edgehubd: %w", err)
	}
	dlmSvc.Start(runCtx)
	if err := in.Start(); err != nil {
		return fmt.Errorf("edgehubd: %w", err)
	}
	zl.Info().Int("nodes", len(cfg.Nodes)).Str("policy", cfg.PolicyName).Msg("hub online")

	if cfg.Interactive {
		console := interactive.New(h, dlmSvc, zl)
		go console.Run(runCtx, cancel)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		zl.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case <-runCtx.Done():
	}

	zl.Info().Msg("shutting down")
	in.Stop()
	dlmSvc.Stop()
	h.Stop()
	if advertiser != nil {
		advertiser.stop()
	}
	client.Disconnect()
	return nil
}

// buildNodeHardware resolves a node descriptor to concrete HAL devices: a
// deterministic-seeded simulation (spec.md section 6) or a serial bridge
// to a microcontroller, one bridge/goroutine per node's serial port
// (design note 9: single-owner-goroutine pattern per bus).
func buildNodeHardware(nd config.NodeDescriptor, index int) (hal.PowerSensor, hal.ProximitySensor, hal.Actuator, error) {
	if nd.Simulation {
		seed := int64(index) + 1
		return hal.NewSimPowerSensor(rand.NewSource(seed)),
			hal.NewSimProximitySensor(rand.NewSource(seed + 1000)),
			hal.NewSimActuator(),
			nil
	}

	port, err := openSerialPort(nd.SerialPort)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening serial port %s: %w", nd.SerialPort, err)
	}
	bridge := hal.NewBridge(port, 2*time.Second)
	onErr := func(error) {}
	return hal.NewSerialPowerSensor(bridge, onErr),
		hal.NewSerialProximitySensor(bridge, onErr),
		hal.NewSerialActuator(bridge),
		nil
}

type lanAdvertiser struct {
	stopFn func()
}

func (a *lanAdvertiser) stop() {
	if a.stopFn != nil {
		a.stopFn()
	}
}

func setLevel(zl zerolog.Logger, level string) zerolog.Logger {
	switch level {
	case "debug":
		return zl.Level(zerolog.DebugLevel)
	case "warn":
		return zl.Level(zerolog.WarnLevel)
	case "error":
		return zl.Level(zerolog.ErrorLevel)
	default:
		return zl.Level(zerolog.InfoLevel)
	}
}
