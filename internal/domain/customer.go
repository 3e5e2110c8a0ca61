package domain

import (
	"strings"
	"time"
)

// Customer represents one customer aggregate, keyed by email. The ID is
// generated by the store on first insert when the ingesting system does not
// supply one.
type Customer struct {
	ID          string     `json:"id" db:"id"`
	Name        string     `json:"name" db:"name"`
	Email       string     `json:"email" db:"email"`
	TotalSpends float64    `json:"totalSpends" db:"total_spends"`
	Visits      int        `json:"visits" db:"visits"`
	LastVisit   *time.Time `json:"lastVisit,omitempty" db:"last_visit"`
	Tags        []string   `json:"tags,omitempty"`
	CreatedAt   time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time  `json:"updatedAt" db:"updated_at"`
}

// Normalize clamps counters that must never go negative and canonicalizes
// the email. Called on every write path.
func (c *Customer) Normalize() {
	if c.TotalSpends < 0 {
		c.TotalSpends = 0
	}
	if c.Visits < 0 {
		c.Visits = 0
	}
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
}

// Validate checks the fields required for ingestion. Call after Normalize.
func (c *Customer) Validate() error {
	if c.Email == "" {
		return ErrMissingEmail
	}
	at := strings.IndexByte(c.Email, '@')
	if at <= 0 || at == len(c.Email)-1 {
		return ErrInvalidEmail
	}
	return nil
}

// Order is an immutable purchase record. Each successful order ingestion
// increments the owning customer's spend and visit counters exactly once.
type Order struct {
	ID         string    `json:"id" db:"id"`
	CustomerID string    `json:"customerId" db:"customer_id"`
	Amount     float64   `json:"amount" db:"amount"`
	Date       time.Time `json:"date" db:"order_date"`
	Items      []string  `json:"items,omitempty"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
}

// Validate checks the fields required for order ingestion. Negative amounts
// are legal refunds; the store clamps the customer's running total at zero.
func (o *Order) Validate() error {
	if strings.TrimSpace(o.CustomerID) == "" {
		return ErrMissingCustomerID
	}
	if o.Date.IsZero() {
		return ErrMissingDate
	}
	return nil
}
