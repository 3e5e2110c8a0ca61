// Package worker contains the background consumers: the task runner that
// drains the Redis queue, the campaign dispatcher, the delivery receipt
// aggregator, and the simulated delivery vendor.
package worker

import (
	"context"

	"github.com/ignite/crm-engine/internal/domain"
	"github.com/ignite/crm-engine/internal/segment"
)

// AudienceStore is the read side of the customer store used during dispatch.
type AudienceStore interface {
	CountBySegment(ctx context.Context, rule *segment.CompiledRule) (int, error)
	QueryBySegment(ctx context.Context, rule *segment.CompiledRule, limit, offset int) ([]domain.Customer, error)
}

// LogStore persists communication log rows.
type LogStore interface {
	BulkInsert(ctx context.Context, logs []domain.CommunicationLog) error
	MarkDelivered(ctx context.Context, receipts []domain.DeliveryReceipt) ([]domain.DeliveryOutcome, error)
}

// Sender hands one message to the delivery vendor. Implementations return
// quickly; the delivery outcome arrives later as a receipt.
type Sender interface {
	Send(ctx context.Context, log *domain.CommunicationLog) error
}
