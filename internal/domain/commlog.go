package domain

import (
	"strings"
	"time"
)

// DeliveryStatus enumerates the lifecycle of a single dispatched message.
// PENDING transitions once, to SENT or FAILED, and never back.
type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "PENDING"
	DeliverySent    DeliveryStatus = "SENT"
	DeliveryFailed  DeliveryStatus = "FAILED"
)

// CommunicationLog records one campaign message's delivery lifecycle.
// DeliveryID is the correlation id minted by the orchestrator before
// dispatch; it is the only key the aggregator uses to locate the entry.
type CommunicationLog struct {
	ID            string         `json:"id" db:"id"`
	CampaignID    string         `json:"campaignId" db:"campaign_id"`
	CustomerID    string         `json:"customerId" db:"customer_id"`
	CustomerName  string         `json:"customerName" db:"customer_name"`
	CustomerEmail string         `json:"customerEmail" db:"customer_email"`
	Message       string         `json:"message" db:"message"`
	DeliveryID    string         `json:"deliveryId" db:"delivery_id"`
	Status        DeliveryStatus `json:"status" db:"status"`
	SentAt        *time.Time     `json:"sentAt,omitempty" db:"sent_at"`
	CreatedAt     time.Time      `json:"createdAt" db:"created_at"`
}

// DeliveryReceipt is one asynchronous acknowledgment from the vendor.
// Receipts arrive out of order and at-least-once.
type DeliveryReceipt struct {
	DeliveryID string         `json:"deliveryId"`
	Status     DeliveryStatus `json:"status"`
	Timestamp  time.Time      `json:"timestamp"`
}

// DeliveryOutcome is the per-row result of applying a receipt batch: which
// campaign's log was stamped, and with what terminal status.
type DeliveryOutcome struct {
	CampaignID string
	Status     DeliveryStatus
}

// ParseDeliveryStatus normalizes the vendor's status vocabulary
// ("success"/"failure"/"SENT"/"FAILED", any case) to a DeliveryStatus.
// Returns false for anything else.
func ParseDeliveryStatus(s string) (DeliveryStatus, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "SENT", "SUCCESS":
		return DeliverySent, true
	case "FAILED", "FAILURE":
		return DeliveryFailed, true
	default:
		return "", false
	}
}
