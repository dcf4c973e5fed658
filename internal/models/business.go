package models

// Business is owned by the registration collaborator; the engine only reads
// it. AvgTimeMinutes is nil when the owner never set one.
type Business struct {
	BusinessID     string `json:"business_id"`
	Name           string `json:"name"`
	Category       string `json:"category"`
	Locality       string `json:"locality"`
	AvgTimeMinutes *int   `json:"avg_time_minutes,omitempty"`
	IsActive       bool   `json:"is_active"`
}
