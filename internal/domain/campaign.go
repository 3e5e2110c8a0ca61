package domain

import (
	"errors"
	"time"
)

// Validation sentinels shared across aggregates.
var (
	ErrMissingID         = errors.New("id is required")
	ErrMissingEmail      = errors.New("email is required")
	ErrInvalidEmail      = errors.New("email is not valid")
	ErrMissingCustomerID = errors.New("customerId is required")
	ErrMissingDate       = errors.New("order date is required")
)

// CampaignStatus enumerates the lifecycle states of a campaign.
type CampaignStatus string

const (
	CampaignPending    CampaignStatus = "PENDING"
	CampaignProcessing CampaignStatus = "PROCESSING"
	CampaignCompleted  CampaignStatus = "COMPLETED"
	CampaignFailed     CampaignStatus = "FAILED"
)

// CampaignStats is the running delivery counter triple. All mutation goes
// through the repository's atomic increment, never read-then-write.
type CampaignStats struct {
	Sent    int `json:"sent" db:"stats_sent"`
	Failed  int `json:"failed" db:"stats_failed"`
	Pending int `json:"pending" db:"stats_pending"`
}

// Campaign fans one personalized message out to every customer matching its
// segment rule. SegmentRule is stored as the raw JSON rule document and is
// read-only once the campaign is created.
type Campaign struct {
	ID           string         `json:"id" db:"id"`
	Name         string         `json:"name" db:"name"`
	OwnerID      string         `json:"userId" db:"owner_id"`
	SegmentRule  []byte         `json:"segmentRules" db:"segment_rule"`
	Message      string         `json:"message" db:"message"`
	AudienceSize int            `json:"audienceSize" db:"audience_size"`
	Status       CampaignStatus `json:"status" db:"status"`
	Stats        CampaignStats  `json:"stats"`
	CreatedAt    time.Time      `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time      `json:"updatedAt" db:"updated_at"`
}

// IsTerminal returns true if the campaign is in a final state.
func (c *Campaign) IsTerminal() bool {
	return c.Status == CampaignCompleted || c.Status == CampaignFailed
}
