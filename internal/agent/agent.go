package agent

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/stone-age-io/inventory-agent/internal/config"
	natsclient "github.com/stone-age-io/inventory-agent/internal/nats"
	"github.com/stone-age-io/inventory-agent/internal/probe"
	"github.com/stone-age-io/inventory-agent/internal/report"
	"github.com/stone-age-io/inventory-agent/internal/scheduler"
	"github.com/stone-age-io/inventory-agent/internal/sysinfo"
	"github.com/stone-age-io/inventory-agent/internal/tasks"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const connectionName = "inventory-agent"

// Agent represents the main agent
type Agent struct {
	config    *config.Config
	logger    *zap.Logger
	executor  *tasks.Executor
	nats      *natsclient.Client // nil when NATS is disabled or unreachable
	scheduler *scheduler.Scheduler
	version   string
	ctx       context.Context
	cancel    context.CancelFunc
	stopOnce  sync.Once
}

// New loads configuration and builds the reporting pipeline. Nothing is
// scheduled and no connection is opened until Start.
func New(configPath string, version string) (*Agent, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := initLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return newAgent(cfg, logger, version)
}

func newAgent(cfg *config.Config, logger *zap.Logger, version string) (*Agent, error) {
	runner := probe.NewExecRunner(logger, cfg.Probes.CommandTimeout)
	detector := probe.NewDetector(runner, probe.NewSystemdChecker(runner, logger), logger)

	var publicIP *sysinfo.PublicIPResolver
	if cfg.PublicIP.URL != "" {
		publicIP = sysinfo.NewPublicIPResolver(cfg.PublicIP.URL, cfg.PublicIP.Timeout, logger)
	}
	collector := sysinfo.NewCollector(logger, publicIP)

	reporter, err := report.NewReporter(cfg.Server, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create reporter: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	executor := tasks.NewExecutor(logger, cfg.Agent, detector, collector, reporter, tasks.Options{
		Textfile: cfg.Metrics.Textfile,
	})

	return &Agent{
		config:   cfg,
		logger:   logger,
		executor: executor,
		version:  version,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Start connects to NATS when configured and starts the daily schedule.
// It does not block.
func (a *Agent) Start() error {
	a.logger.Info("Starting inventory-agent",
		zap.String("version", a.version),
		zap.String("server", a.config.Server.URL),
		zap.String("schedule", a.config.Schedule.At))

	sched, err := scheduler.New(a.ctx, a.logger, a.executor, a.config.Schedule, nil)
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	a.scheduler = sched

	if a.config.NATS.Enabled() {
		a.startNATS()
	}

	a.scheduler.Start()

	a.logger.Info("Agent running", zap.String("version", a.version))
	return nil
}

// startNATS wires the optional NATS publisher and command handlers. A
// failure here only costs the NATS features; HTTP reporting carries on.
func (a *Agent) startNATS() {
	client, err := natsclient.NewClient(&a.config.NATS, connectionName, a.logger)
	if err != nil {
		a.logger.Error("NATS unavailable, continuing with HTTP reporting only", zap.Error(err))
		return
	}

	hostname, err := os.Hostname()
	if err != nil {
		a.logger.Warn("Failed to read hostname for NATS subjects", zap.Error(err))
	}
	subjects := natsclient.NewSubjects(a.config.NATS.SubjectPrefix, hostname)

	if err := a.wireNATS(client, subjects); err != nil {
		a.logger.Error("Failed to subscribe to commands, closing NATS connection", zap.Error(err))
		client.Close()
		return
	}

	a.nats = client
}

// natsConn is the part of the NATS client the agent wires into the pipeline
type natsConn interface {
	natsclient.Subscriber
	natsclient.MessagePublisher
	natsclient.ConnectionState
}

// wireNATS subscribes the command handlers and only then attaches the
// inventory publisher, so a failed subscription leaves nothing half-wired
func (a *Agent) wireNATS(conn natsConn, subjects natsclient.Subjects) error {
	handlers := natsclient.NewCommandHandlers(a.logger, subjects, a.scheduler, a.executor, conn, a.version)
	if err := handlers.SubscribeAll(conn); err != nil {
		return err
	}

	a.executor.SetPublisher(natsclient.NewInventoryPublisher(conn, subjects, a.logger))
	return nil
}

// Detect collects one snapshot without reporting it
func (a *Agent) Detect(ctx context.Context) *sysinfo.Snapshot {
	return a.executor.Snapshot(ctx)
}

// ReportOnce runs a single reporting cycle outside the schedule
func (a *Agent) ReportOnce(ctx context.Context) tasks.CycleResult {
	return a.executor.RunCycle(ctx)
}

// Logger returns the agent's logger
func (a *Agent) Logger() *zap.Logger {
	return a.logger
}

// Shutdown gracefully shuts down the agent. It is safe to call more than once.
func (a *Agent) Shutdown() error {
	a.stopOnce.Do(func() {
		a.logger.Info("Shutting down agent gracefully")

		// Signal a running cycle to stop
		a.cancel()

		if a.scheduler != nil {
			if err := a.scheduler.Shutdown(); err != nil {
				a.logger.Error("Error shutting down scheduler", zap.Error(err))
			}
		}

		if a.nats != nil {
			if err := a.nats.Drain(a.config.NATS.DrainTimeout); err != nil {
				a.logger.Error("Error draining NATS", zap.Error(err))
			}
		}

		a.logger.Info("Agent shutdown complete")
		a.logger.Sync()
	})
	return nil
}

// initLogger creates the logger: human-readable console output on stdout,
// or rotated JSON when writing to a file
func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var core zapcore.Core
	switch cfg.Output {
	case "file":
		fileWriter := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB, // megabytes
			MaxBackups: cfg.MaxBackups,
			MaxAge:     28, // days
			Compress:   true,
		}
		core = zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(fileWriter), level)
	default:
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		core = zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.Lock(os.Stdout), level)
	}

	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}
