package tasks

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/stone-age-io/inventory-agent/internal/config"
	"github.com/stone-age-io/inventory-agent/internal/metrics"
	"github.com/stone-age-io/inventory-agent/internal/probe"
	"github.com/stone-age-io/inventory-agent/internal/report"
	"github.com/stone-age-io/inventory-agent/internal/sysinfo"
	"go.uber.org/zap"
)

// Detector runs the virtualization probes
type Detector interface {
	Detect(ctx context.Context) probe.Result
}

// Collector gathers host facts around a detection result
type Collector interface {
	Collect(ctx context.Context, detection probe.Result) *sysinfo.Snapshot
}

// Reporter delivers a payload to the inventory server
type Reporter interface {
	Report(ctx context.Context, payload report.Payload) bool
}

// Publisher mirrors a payload to a secondary channel (NATS)
type Publisher interface {
	PublishInventory(payload report.Payload) error
}

// CycleResult describes one reporting cycle
type CycleResult struct {
	Snapshot *sysinfo.Snapshot
	Payload  report.Payload
	Sent     bool
	Duration time.Duration
}

// Executor runs the detect, collect and report cycle and keeps its statistics
type Executor struct {
	logger    *zap.Logger
	agent     config.AgentConfig
	detector  Detector
	collector Collector
	reporter  Reporter
	publisher Publisher // nil when NATS is disabled
	textfile  string    // empty disables the metrics textfile
	stats     *CycleStats
	now       func() time.Time
}

// Options holds the optional executor collaborators
type Options struct {
	Publisher Publisher
	Textfile  string
}

// NewExecutor creates a cycle executor
func NewExecutor(logger *zap.Logger, agent config.AgentConfig, detector Detector, collector Collector, reporter Reporter, opts Options) *Executor {
	return &Executor{
		logger:    logger,
		agent:     agent,
		detector:  detector,
		collector: collector,
		reporter:  reporter,
		publisher: opts.Publisher,
		textfile:  opts.Textfile,
		stats:     newCycleStats(time.Now()),
		now:       time.Now,
	}
}

// SetPublisher attaches the NATS publisher. Call it before the first cycle.
func (e *Executor) SetPublisher(p Publisher) {
	e.publisher = p
}

// Snapshot runs detection and collection without reporting anything
func (e *Executor) Snapshot(ctx context.Context) *sysinfo.Snapshot {
	detection := e.detector.Detect(ctx)
	return e.collector.Collect(ctx, detection)
}

// RunCycle performs one full reporting cycle. It never panics and never
// fails; Sent tells whether the inventory server accepted the report.
func (e *Executor) RunCycle(ctx context.Context) (result CycleResult) {
	start := e.now()
	e.logger.Info("Starting inventory cycle")

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Panic recovered in inventory cycle",
				zap.Any("panic", r),
				zap.String("stack", string(debug.Stack())))
			result.Sent = false
			result.Duration = e.now().Sub(start)
			e.finish(start, result)
		}
	}()

	result.Snapshot = e.Snapshot(ctx)
	result.Payload = report.NewPayload(result.Snapshot, e.agent.Name, e.agent.Description)
	result.Sent = e.reporter.Report(ctx, result.Payload)

	if e.publisher != nil {
		if err := e.publisher.PublishInventory(result.Payload); err != nil {
			e.logger.Warn("Failed to publish inventory to NATS", zap.Error(err))
		}
	}

	result.Duration = e.now().Sub(start)
	e.finish(start, result)

	e.logger.Info("Inventory cycle complete",
		zap.Bool("sent", result.Sent),
		zap.Strings("virtualization_method", result.Payload.VirtualizationMethod),
		zap.Duration("duration", result.Duration))

	return result
}

// finish records the cycle and refreshes the textfile
func (e *Executor) finish(start time.Time, result CycleResult) {
	var detections []probe.Detection
	if result.Snapshot != nil {
		detections = result.Snapshot.Detections
	}
	e.stats.record(start, result.Duration, result.Sent, detections)

	if e.textfile == "" {
		return
	}
	if err := metrics.WriteTextfile(e.textfile, e.stats.sample()); err != nil {
		e.logger.Warn("Failed to write metrics textfile",
			zap.String("path", e.textfile),
			zap.Error(err))
	}
}

// Health returns the agent's self-monitoring metrics
func (e *Executor) Health() *HealthMetrics {
	return e.stats.health(e.now())
}
