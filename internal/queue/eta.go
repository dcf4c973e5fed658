// Package queue computes waiting positions and wait estimates for one
// business's queue on one day. It is pure: same snapshot in, same estimates
// out. Callers decide whether to persist the result, which keeps the
// synchronous join path and the periodic alert path on identical logic.
package queue

import (
	"sort"

	"github.com/hameed6991/queueless/internal/models"
)

// FallbackAvgMinutes is used when a business has no positive average
// service time configured.
const FallbackAvgMinutes = 5

// Estimate is the derived position for a single waiting token.
type Estimate struct {
	TokenID              string
	TokenNumber          int
	WaitingAhead         int
	EstimatedWaitMinutes int
}

// EffectiveAvgMinutes resolves a business's average service time, falling
// back when it is absent or non-positive.
func EffectiveAvgMinutes(avg *int) int {
	if avg == nil || *avg <= 0 {
		return FallbackAvgMinutes
	}
	return *avg
}

// ComputeEstimates assigns each waiting token its zero-based waiting-ahead
// count and estimated wait in minutes. Tokens whose status is not waiting are
// excluded entirely: served or cancelled tokens never count against others'
// positions, and token numbers are never reassigned.
func ComputeEstimates(tokens []models.Token, avgMinutes int) []Estimate {
	if avgMinutes <= 0 {
		avgMinutes = FallbackAvgMinutes
	}

	waiting := make([]models.Token, 0, len(tokens))
	for _, token := range tokens {
		if token.Status == models.StatusWaiting {
			waiting = append(waiting, token)
		}
	}
	sort.Slice(waiting, func(i, j int) bool {
		return waiting[i].TokenNumber < waiting[j].TokenNumber
	})

	estimates := make([]Estimate, 0, len(waiting))
	for i, token := range waiting {
		estimates = append(estimates, Estimate{
			TokenID:              token.TokenID,
			TokenNumber:          token.TokenNumber,
			WaitingAhead:         i,
			EstimatedWaitMinutes: i * avgMinutes,
		})
	}
	return estimates
}
