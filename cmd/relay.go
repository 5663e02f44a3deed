package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/smazurov/relaynode/internal/config"
	"github.com/smazurov/relaynode/internal/events"
	"github.com/smazurov/relaynode/internal/ffmpeg"
	"github.com/smazurov/relaynode/internal/logging"
	"github.com/smazurov/relaynode/internal/process"
	"github.com/smazurov/relaynode/internal/relay"
	"github.com/smazurov/relaynode/internal/supervisor"
	"github.com/spf13/cobra"
)

const (
	restartTimeout  = 30 * time.Second
	shutdownTimeout = 30 * time.Second
)

// relaySettings mirrors the worker keys of the server config so the relay
// command honours the same config file and environment.
type relaySettings struct {
	Config             string
	WorkerBinary       string        `toml:"worker.binary" env:"WORKER_BINARY"`
	WorkerGracePeriod  time.Duration `toml:"worker.grace_period" env:"WORKER_GRACE_PERIOD"`
	WorkerDrainTimeout time.Duration `toml:"worker.drain_timeout" env:"WORKER_DRAIN_TIMEOUT"`
	RelayQueueSize     int           `toml:"relay.queue_size" env:"RELAY_QUEUE_SIZE"`
	RelayMaxLineBytes  int           `toml:"relay.max_line_bytes" env:"RELAY_MAX_LINE_BYTES"`
}

// CreateRelayCmd creates the relay command.
func CreateRelayCmd() *cobra.Command {
	var settings relaySettings
	var source string
	var destinations []string
	var relayFile string
	var logJSON bool

	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Run a relay in the foreground",
		Long: `Spawns ffmpeg to copy one source to every destination and relays its diagnostics to the log. ` +
			`With --file the relay definition is read from TOML and the relay restarts when the file changes. ` +
			`Exits with the worker's exit code.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			settings.Config = configPath(cmd)
			if err := config.LoadConfig(&settings, cmd); err != nil {
				slog.Warn("Failed to load config", "error", err)
			}

			loggingConfig := config.LoadLoggingConfig(settings.Config)
			if logJSON {
				loggingConfig.Format = "json"
			}
			logging.Initialize(loggingConfig)
			logger := logging.GetLogger("main")

			req := ffmpeg.Request{Source: source, Destinations: destinations}
			if relayFile != "" {
				var err error
				if req, err = config.LoadRelayFile(relayFile); err != nil {
					logger.Error("Failed to load relay file", "error", err, "file", relayFile)
					os.Exit(1)
				}
			}

			sup := supervisor.New(supervisor.Options{
				Spawner:      process.NewLauncher(settings.WorkerBinary, logging.GetLogger("process")),
				Sink:         events.NewLogSink(logging.GetLogger("ffmpeg")),
				GracePeriod:  settings.WorkerGracePeriod,
				DrainTimeout: settings.WorkerDrainTimeout,
				Relay: relay.Options{
					QueueSize:    settings.RelayQueueSize,
					MaxLineBytes: settings.RelayMaxLineBytes,
				},
				Logger: logging.GetLogger("supervisor"),
			})

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			runner := newForegroundRelay(sup, logger)
			if err := runner.start(ctx, req); err != nil {
				logger.Error("Failed to start relay", "error", err)
				os.Exit(1)
			}

			if relayFile != "" {
				watcher := config.NewConfigWatcher(relayFile, config.LoadRelayFile, logging.GetLogger("config"))
				watcher.OnReload(func(next ffmpeg.Request) {
					if err := runner.restart(ctx, next); err != nil {
						logger.Warn("Failed to restart relay", "error", err)
					}
				})
				if err := watcher.Start(); err != nil {
					logger.Warn("Failed to start relay file watcher, hot-reload disabled", "error", err)
				} else {
					defer func() { _ = watcher.Stop() }()
				}
			}

			exitCode := runner.run(ctx)
			logger.Info("Relay command exiting", "exit_code", exitCode)
			if exitCode != 0 {
				stop()
				os.Exit(exitCode)
			}
		},
	}

	cmd.Flags().StringVarP(&source, "source", "s", "", "Input endpoint URL")
	cmd.Flags().StringArrayVarP(&destinations, "dest", "d", nil, "Output endpoint URL (repeatable)")
	cmd.Flags().StringVarP(&relayFile, "file", "f", "", "Relay definition file, watched for changes")
	cmd.Flags().StringVar(&settings.WorkerBinary, "worker-binary", "ffmpeg", "Worker executable")
	cmd.Flags().DurationVar(&settings.WorkerGracePeriod, "worker-grace-period", 5*time.Second,
		"Time between SIGINT and SIGKILL when stopping the worker")
	cmd.Flags().DurationVar(&settings.WorkerDrainTimeout, "worker-drain-timeout", 2*time.Second,
		"How long worker output may stay open after exit")
	cmd.Flags().IntVar(&settings.RelayQueueSize, "relay-queue-size", relay.DefaultQueueSize, "Undelivered log lines kept before dropping")
	cmd.Flags().IntVar(&settings.RelayMaxLineBytes, "relay-max-line-bytes", relay.DefaultMaxLineBytes, "Maximum log line length")
	cmd.Flags().BoolVar(&logJSON, "log-json", false, "Use JSON log format")
	cmd.MarkFlagsMutuallyExclusive("file", "source")
	cmd.MarkFlagsMutuallyExclusive("file", "dest")

	return cmd
}

// configPath returns the --config flag inherited from the root command.
func configPath(cmd *cobra.Command) string {
	if f := cmd.Flags().Lookup("config"); f != nil {
		return f.Value.String()
	}
	return "config.toml"
}

// foregroundRelay keeps one relay session alive until the worker exits on
// its own or ctx is canceled. Restarts replace the session in place.
type foregroundRelay struct {
	sup    *supervisor.Supervisor
	logger *slog.Logger

	mu   sync.Mutex
	args []string
}

func newForegroundRelay(sup *supervisor.Supervisor, logger *slog.Logger) *foregroundRelay {
	return &foregroundRelay{sup: sup, logger: logger}
}

func (f *foregroundRelay) start(ctx context.Context, req ffmpeg.Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.launch(ctx, req)
}

// launch must be called with f.mu held.
func (f *foregroundRelay) launch(ctx context.Context, req ffmpeg.Request) error {
	info, err := f.sup.Launch(ctx, req)
	if err != nil {
		return err
	}
	f.args = info.Args
	f.logger.Info("Relay started", "session_id", info.ID, "pid", info.PID)
	return nil
}

// restart stops the current session and launches req, unless req builds the
// same command line as the running session.
func (f *foregroundRelay) restart(ctx context.Context, req ffmpeg.Request) error {
	args, err := ffmpeg.BuildRelayArgs(req)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if slices.Equal(args, f.args) && f.sup.Status().State.Active() {
		f.logger.Debug("Relay definition reloaded, command unchanged")
		return nil
	}

	f.logger.Info("Relay definition changed, restarting")
	if err := f.sup.Terminate(); err != nil && !errors.Is(err, supervisor.ErrNotRunning) {
		return err
	}
	waitCtx, cancel := context.WithTimeout(ctx, restartTimeout)
	defer cancel()
	if _, err := f.sup.Wait(waitCtx); err != nil {
		return err
	}
	return f.launch(ctx, req)
}

// run blocks until the session ends without being replaced, or ctx is
// canceled, and returns the process exit code for the command.
func (f *foregroundRelay) run(ctx context.Context) int {
	for {
		info, err := f.sup.Wait(ctx)
		if err != nil {
			f.logger.Info("Stopping relay")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := f.sup.Shutdown(shutdownCtx); err != nil {
				f.logger.Error("Relay did not stop in time", "error", err)
				return 1
			}
			return 0
		}

		// a restart in progress holds f.mu until the new session exists
		f.mu.Lock()
		replaced := f.sup.Status().ID != info.ID
		f.mu.Unlock()
		if replaced {
			continue
		}
		return exitCode(info)
	}
}

// exitCode maps a finished session to a command exit code.
func exitCode(info supervisor.SessionInfo) int {
	switch {
	case info.State == supervisor.StateFailed:
		return 1
	case info.ExitCode != nil:
		return *info.ExitCode
	case info.Signal != "":
		return 1
	default:
		return 0
	}
}
