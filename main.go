package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"pixoo-scened/internal/config"
	"pixoo-scened/internal/device"
	"pixoo-scened/internal/logging"
	"pixoo-scened/internal/metrics"
	"pixoo-scened/internal/mqtt"
	"pixoo-scened/internal/scene"
	"pixoo-scened/internal/service"
	"pixoo-scened/internal/store"

	// Blank-imported for their init() self-registration into
	// scene.Default (§4.5's discovery pass, Go's static-compile analog).
	_ "pixoo-scened/scenes/dev/clock"
	_ "pixoo-scened/scenes/examples/gradient"
)

// heartbeatInterval is how often the daemon touches the State Store's
// daemon.lastHeartbeat field and publishes a metrics event per device.
const heartbeatInterval = 30 * time.Second

var (
	configFile string
	httpAddr   string
	debugFlag  bool
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pixoo-scened",
		Short: "Headless daemon driving Pixoo 64x64 LED matrix displays over MQTT",
		RunE: func(cmd *cobra.Command, args []string) error {
			if debugFlag || IsDebugBuild {
				fmt.Fprintln(os.Stderr, "Starting up... [DEBUG BUILD]")
			}
			return run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&configFile, "config", "", "path to an optional config file")
	cmd.Flags().StringVar(&httpAddr, "http-addr", "", "admin HTTP bind address (overrides PIXOO_HTTP_ADDR)")
	cmd.Flags().BoolVar(&debugFlag, "debug", false, "verbose startup logging before the configured log level applies")
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if httpAddr != "" {
		cfg.HTTPAddr = httpAddr
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}

	log := logging.New(logging.Options{Level: cfg.LogLevel, FilePath: cfg.LogFile})
	log.Info().Str("httpAddr", cfg.HTTPAddr).Int("deviceCount", len(cfg.Devices)).Msg("pixoo-scened starting")

	collector := metrics.NewDeviceCollector(prometheus.DefaultRegisterer)

	st := store.New(log, cfg.StatePath, config.Debounce())

	// scene.Default is the process-wide registry the blank-imported
	// scene packages above registered themselves into at init() time.
	scene.Default.EnsureFallback()

	mqttClient := mqtt.NewClient(log, mqtt.Options{
		BrokerURL:       cfg.MQTTBrokerURL,
		ClientID:        cfg.MQTTClientID,
		Username:        cfg.MQTTUsername,
		Password:        cfg.MQTTPassword,
		ReconnectOnDrop: cfg.MQTTReconnectOnDrop,
	})

	// The runtime's publish callback is the scene-visible "ok" outbound
	// event (§6); wiring it to the real client, rather than leaving the
	// no-op default, is what makes ctx.PublishOk calls reach the broker.
	runtime := scene.NewRuntime(log, scene.Default, st, scene.DefaultErrorThreshold, mqtt.NewOkPublisher(mqttClient))

	handles := make(map[string]*device.Handle, len(cfg.Devices))
	newDriver := func(kind device.Kind, host string) device.Driver {
		if kind == device.KindReal {
			return device.NewRealDriver(host, log)
		}
		return device.NewMockDriver(log)
	}
	for _, dc := range cfg.Devices {
		handle := device.NewHandle(dc.Host, newDriver(dc.Kind, dc.Host), log, collector)
		handles[dc.Host] = handle
		runtime.RegisterDevice(handle)
	}
	lookup := func(deviceID string) (*device.Handle, bool) {
		h, ok := handles[deviceID]
		return h, ok
	}

	bootstrapCtx, cancelBootstrap := context.WithTimeout(ctx, 30*time.Second)
	if err := runtime.Bootstrap(bootstrapCtx); err != nil {
		log.Warn().Err(err).Msg("scene bootstrap finished with errors")
	}
	cancelBootstrap()

	if err := mqttClient.Connect(); err != nil {
		log.Warn().Err(err).Msg("initial MQTT connect failed, reconnect loop will retry")
	}
	router := mqtt.NewRouter(log, mqttClient, runtime, lookup, newDriver)
	router.Start()

	heartbeatCtx, cancelHeartbeat := context.WithCancel(context.Background())
	go runHeartbeat(heartbeatCtx, log, st, mqttClient, handles)

	svc := service.New(log, runtime, lookup, newDriver)
	hub := service.NewHub(log)
	st.Subscribe("*", hub.Broadcast)
	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: service.NewServer(log, svc, hub),
	}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("admin HTTP server stopped unexpectedly")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigCh:
		log.Info().Msg("signal received, shutting down")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cancelHeartbeat()
	_ = httpServer.Shutdown(shutdownCtx)
	mqttClient.Disconnect()
	if err := runtime.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("runtime shutdown finished with errors")
	}
	if err := st.Flush(); err != nil {
		log.Warn().Err(err).Msg("final state flush failed")
	}

	log.Info().Msg("pixoo-scened stopped")
	return nil
}

// runHeartbeat periodically touches the State Store's daemon liveness
// fields and publishes a metrics event per device, until ctx is
// cancelled at shutdown.
func runHeartbeat(ctx context.Context, log zerolog.Logger, st *store.Store, client *mqtt.Client, handles map[string]*device.Handle) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st.Heartbeat()
			for deviceID, handle := range handles {
				m, _, _ := handle.Snapshot()
				if err := mqtt.PublishMetrics(client, deviceID, m); err != nil {
					log.Warn().Err(err).Str("deviceId", deviceID).Msg("failed to publish metrics event")
				}
			}
		}
	}
}
