package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/smazurov/relaynode/cmd"
	"github.com/smazurov/relaynode/internal/api"
	"github.com/smazurov/relaynode/internal/config"
	"github.com/smazurov/relaynode/internal/events"
	"github.com/smazurov/relaynode/internal/logging"
	"github.com/smazurov/relaynode/internal/metrics"
	"github.com/smazurov/relaynode/internal/metrics/exporters"
	"github.com/smazurov/relaynode/internal/process"
	"github.com/smazurov/relaynode/internal/relay"
	"github.com/smazurov/relaynode/internal/supervisor"
	"github.com/smazurov/relaynode/internal/version"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`

	// Worker settings
	WorkerBinary       string        `help:"Worker executable" default:"ffmpeg" toml:"worker.binary" env:"WORKER_BINARY"`
	WorkerGracePeriod  time.Duration `help:"Time between SIGINT and SIGKILL when stopping the worker" default:"5s" toml:"worker.grace_period" env:"WORKER_GRACE_PERIOD"`
	WorkerDrainTimeout time.Duration `help:"How long worker output may stay open after exit" default:"2s" toml:"worker.drain_timeout" env:"WORKER_DRAIN_TIMEOUT"`

	// Relay settings
	RelayQueueSize    int `help:"Undelivered log lines kept before dropping" default:"256" toml:"relay.queue_size" env:"RELAY_QUEUE_SIZE"`
	RelayMaxLineBytes int `help:"Maximum log line length" default:"65536" toml:"relay.max_line_bytes" env:"RELAY_MAX_LINE_BYTES"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" default:"admin" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"password" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Metrics settings
	MetricsEnabled bool `help:"Serve Prometheus metrics on /metrics" default:"true" toml:"metrics.enabled" env:"METRICS_ENABLED"`

	// Logging settings
	LoggingLevel      string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat     string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingSupervisor string `help:"Supervisor logging level" default:"info" toml:"logging.supervisor" env:"LOGGING_SUPERVISOR"`
	LoggingRelay      string `help:"Log relay logging level" default:"info" toml:"logging.relay" env:"LOGGING_RELAY"`
	LoggingProcess    string `help:"Process launcher logging level" default:"info" toml:"logging.process" env:"LOGGING_PROCESS"`
	LoggingFFmpeg     string `help:"Worker output logging level" default:"info" toml:"logging.ffmpeg" env:"LOGGING_FFMPEG"`
	LoggingAPI        string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
}

func main() {
	newCLI().Run()
}

// newCLI builds the root command with the server hooks and subcommands attached.
func newCLI() humacli.CLI {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		// Load configuration automatically
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		// Initialize logging system
		loggingConfig := logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"supervisor": opts.LoggingSupervisor,
				"relay":      opts.LoggingRelay,
				"process":    opts.LoggingProcess,
				"ffmpeg":     opts.LoggingFFmpeg,
				"api":        opts.LoggingAPI,
				"http":       opts.LoggingAPI,
			},
		}
		logging.Initialize(loggingConfig)

		logger := logging.GetLogger("main")

		// Create event bus for in-process event handling
		eventBus := events.New()

		sinks := []events.Sink{eventBus, events.NewLogSink(logging.GetLogger("ffmpeg"))}
		if opts.MetricsEnabled {
			sinks = append(sinks, metrics.NewSink())
		}

		relaySupervisor := supervisor.New(supervisor.Options{
			Spawner:      process.NewLauncher(opts.WorkerBinary, logging.GetLogger("process")),
			Sink:         events.NewMultiSink(sinks...),
			GracePeriod:  opts.WorkerGracePeriod,
			DrainTimeout: opts.WorkerDrainTimeout,
			Relay: relay.Options{
				QueueSize:    opts.RelayQueueSize,
				MaxLineBytes: opts.RelayMaxLineBytes,
			},
			Logger: logging.GetLogger("supervisor"),
		})

		apiOpts := &api.Options{
			AuthUsername: opts.AuthUsername,
			AuthPassword: opts.AuthPassword,
			Relay:        relaySupervisor,
			EventBus:     eventBus,
			WorkerBinary: opts.WorkerBinary,
		}
		if opts.MetricsEnabled {
			apiOpts.PrometheusHandler = exporters.HTTPHandler()
		}

		server := api.NewServer(apiOpts)

		// Log levels follow config file edits without a restart
		levelWatcher := config.NewConfigWatcher(
			opts.Config,
			func(path string) (logging.Config, error) { return config.LoadLoggingConfig(path), nil },
			logging.GetLogger("config"),
		)
		levelWatcher.OnReload(func(cfg logging.Config) {
			logging.SetLevels(cfg.Level, cfg.Modules)
			logger.Info("Logging levels reloaded", "level", cfg.Level)
		})

		hooks.OnStart(func() {
			if startErr := levelWatcher.Start(); startErr != nil {
				logger.Warn("Failed to watch config file, log level reload disabled", "error", startErr)
			}

			logger.Info("Starting HTTP server", "port", opts.Port, "worker", opts.WorkerBinary)
			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down server")
			if stopErr := server.Stop(); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}

			// Stop the worker after the HTTP server stops accepting new requests
			ctx, cancel := context.WithTimeout(context.Background(), opts.WorkerGracePeriod+opts.WorkerDrainTimeout+10*time.Second)
			defer cancel()
			if stopErr := relaySupervisor.Shutdown(ctx); stopErr != nil {
				logger.Error("Relay did not stop cleanly", "error", stopErr)
			}

			_ = levelWatcher.Stop()
		})
	})

	cli.Root().Use = version.Name
	cli.Root().Version = version.Banner()

	// Add relay command
	cli.Root().AddCommand(cmd.CreateRelayCmd())

	return cli
}
