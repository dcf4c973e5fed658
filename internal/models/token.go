package models

import "time"

// Token is a customer's reserved place in a business's queue for one
// calendar day. TokenNumber is unique per (business, day) and immutable;
// WaitingAhead and EstimatedWaitMinutes are derived and recomputed, never
// authoritative history.
type Token struct {
	TokenID              string    `json:"token_id"`
	BusinessID           string    `json:"business_id"`
	CustomerID           string    `json:"customer_id"`
	TokenNumber          int       `json:"token_number"`
	Status               string    `json:"status"`
	CreatedAt            time.Time `json:"created_at"`
	WaitingAhead         *int      `json:"waiting_ahead,omitempty"`
	EstimatedWaitMinutes *int      `json:"estimated_wait_minutes,omitempty"`
	AlertSent            bool      `json:"alert_sent"`
	BusinessName         string    `json:"business_name,omitempty"`
	Category             string    `json:"category,omitempty"`
	Locality             string    `json:"locality,omitempty"`
}

const (
	StatusWaiting   = "waiting"
	StatusRequested = "requested"
	StatusAtCounter = "at_counter"
	StatusServed    = "served"
	StatusCancelled = "cancelled"
)

// ActiveStatuses are the statuses that block a second token for the same
// (business, customer, day).
var ActiveStatuses = []string{StatusWaiting, StatusRequested, StatusAtCounter}

func IsActiveStatus(status string) bool {
	for _, s := range ActiveStatuses {
		if s == status {
			return true
		}
	}
	return false
}
