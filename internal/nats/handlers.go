package nats

import (
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stone-age-io/inventory-agent/internal/tasks"
	"go.uber.org/zap"
)

// Subscriber is the part of Client the command handlers need
type Subscriber interface {
	Subscribe(subject string, handler nats.MsgHandler) (*nats.Subscription, error)
}

// ReportTrigger starts an out-of-schedule report
type ReportTrigger interface {
	RunNow() error
	NextRun() (time.Time, error)
}

// ConnectionState reports whether the NATS connection is up
type ConnectionState interface {
	IsConnected() bool
}

// HealthSource exposes the agent's self-monitoring metrics
type HealthSource interface {
	Health() *tasks.HealthMetrics
}

// CommandHandlers manages all command subscriptions and handlers
type CommandHandlers struct {
	logger   *zap.Logger
	subjects Subjects
	trigger  ReportTrigger
	health   HealthSource
	conn     ConnectionState
	version  string
	now      func() time.Time
}

// NewCommandHandlers creates a new command handler manager
func NewCommandHandlers(logger *zap.Logger, subjects Subjects, trigger ReportTrigger, health HealthSource, conn ConnectionState, version string) *CommandHandlers {
	return &CommandHandlers{
		logger:   logger,
		subjects: subjects,
		trigger:  trigger,
		health:   health,
		conn:     conn,
		version:  version,
		now:      time.Now,
	}
}

// handleWithRecovery wraps a command handler with panic recovery
// This prevents a panic in one command handler from crashing the entire agent
func (h *CommandHandlers) handleWithRecovery(name string, handler nats.MsgHandler) nats.MsgHandler {
	return func(msg *nats.Msg) {
		defer func() {
			if r := recover(); r != nil {
				h.logger.Error("Panic recovered in command handler",
					zap.String("handler", name),
					zap.String("subject", msg.Subject),
					zap.Any("panic", r),
					zap.String("stack", string(debug.Stack())))

				h.respond(msg, h.errorResponse(fmt.Sprintf("Internal error: handler panicked: %v", r)))
			}
		}()

		handler(msg)
	}
}

// SubscribeAll subscribes to all command subjects for this host
func (h *CommandHandlers) SubscribeAll(client Subscriber) error {
	commands := []struct {
		name    string
		handler nats.MsgHandler
	}{
		{"ping", h.handlePing},
		{"report", h.handleReport},
		{"health", h.handleHealth},
	}

	for _, c := range commands {
		if _, err := client.Subscribe(h.subjects.Command(c.name), h.handleWithRecovery(c.name, c.handler)); err != nil {
			return err
		}
	}

	return nil
}

// Response structures

type pingResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

type reportResponse struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp"`
}

type healthResponse struct {
	Status        string               `json:"status"`
	Version       string               `json:"version"`
	NATSConnected bool                 `json:"nats_connected"`
	AgentMetrics  *tasks.HealthMetrics `json:"agent_metrics"`
	NextRun       string               `json:"next_run,omitempty"`
	Timestamp     string               `json:"timestamp"`
}

type errorResponse struct {
	Status    string `json:"status"`
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
}

func (h *CommandHandlers) timestamp() string {
	return h.now().UTC().Format(time.RFC3339)
}

// handlePing responds to ping commands
func (h *CommandHandlers) handlePing(msg *nats.Msg) {
	h.logger.Debug("Received ping command")
	h.respond(msg, h.pingResponse())
}

func (h *CommandHandlers) pingResponse() pingResponse {
	return pingResponse{
		Status:    "pong",
		Timestamp: h.timestamp(),
	}
}

// handleReport queues an immediate reporting cycle. The reply is sent
// once the cycle is scheduled, not when it finishes.
func (h *CommandHandlers) handleReport(msg *nats.Msg) {
	h.logger.Info("Received report command")
	h.respond(msg, h.reportResponse())
}

func (h *CommandHandlers) reportResponse() reportResponse {
	if err := h.trigger.RunNow(); err != nil {
		h.logger.Error("Failed to trigger report", zap.Error(err))
		return reportResponse{
			Status:    "error",
			Error:     err.Error(),
			Timestamp: h.timestamp(),
		}
	}

	return reportResponse{
		Status:    "accepted",
		Timestamp: h.timestamp(),
	}
}

// handleHealth returns agent health and cycle statistics
func (h *CommandHandlers) handleHealth(msg *nats.Msg) {
	h.logger.Debug("Received health check command")
	h.respond(msg, h.healthResponse())
}

func (h *CommandHandlers) healthResponse() healthResponse {
	resp := healthResponse{
		Status:        "healthy",
		Version:       h.version,
		NATSConnected: h.conn.IsConnected(),
		AgentMetrics:  h.health.Health(),
		Timestamp:     h.timestamp(),
	}

	if next, err := h.trigger.NextRun(); err == nil && !next.IsZero() {
		resp.NextRun = next.UTC().Format(time.RFC3339)
	}

	return resp
}

func (h *CommandHandlers) errorResponse(message string) errorResponse {
	return errorResponse{
		Status:    "error",
		Error:     message,
		Timestamp: h.timestamp(),
	}
}

// respond marshals v and replies to msg; requests without a reply subject
// are dropped
func (h *CommandHandlers) respond(msg *nats.Msg, v any) {
	responseBytes, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
		return
	}
	if err := msg.Respond(responseBytes); err != nil {
		h.logger.Debug("Failed to send response",
			zap.String("subject", msg.Subject),
			zap.Error(err))
	}
}
