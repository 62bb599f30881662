package nats

import (
	"encoding/json"
	"fmt"

	"github.com/stone-age-io/inventory-agent/internal/report"
	"go.uber.org/zap"
)

// MessagePublisher is the part of Client the inventory publisher needs
type MessagePublisher interface {
	Publish(subject string, data []byte) error
}

// InventoryPublisher mirrors each report payload to NATS
type InventoryPublisher struct {
	client   MessagePublisher
	subjects Subjects
	logger   *zap.Logger
}

// NewInventoryPublisher creates a publisher for the given subjects
func NewInventoryPublisher(client MessagePublisher, subjects Subjects, logger *zap.Logger) *InventoryPublisher {
	return &InventoryPublisher{
		client:   client,
		subjects: subjects,
		logger:   logger,
	}
}

// PublishInventory publishes the payload in the same JSON shape the HTTP
// reporter sends
func (p *InventoryPublisher) PublishInventory(payload report.Payload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode inventory: %w", err)
	}

	subject := p.subjects.Inventory()
	if err := p.client.Publish(subject, data); err != nil {
		return err
	}

	p.logger.Debug("Published inventory", zap.String("subject", subject))
	return nil
}
