package queue

import (
	"time"

	"github.com/ignite/crm-engine/internal/domain"
)

// Payload shapes for each task type. Producers and consumers share these so
// the wire contract lives in one place.

type IngestCustomerPayload struct {
	Customer domain.Customer `json:"customer"`
}

type BatchIngestCustomersPayload struct {
	Customers []domain.Customer `json:"customers"`
}

type IngestOrderPayload struct {
	Order domain.Order `json:"order"`
}

type ProcessCampaignPayload struct {
	CampaignID string `json:"campaignId"`
}

type UpdateDeliveryStatusPayload struct {
	DeliveryID string    `json:"deliveryId"`
	Status     string    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
}
