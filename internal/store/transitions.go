package store

import "github.com/hameed6991/queueless/internal/models"

// Transition triggers are driven by the business-side caller; the engine only
// enforces which source statuses each action accepts. served and cancelled
// are terminal.
var transitionMap = map[string][]string{
	"request": {models.StatusWaiting},
	"arrive":  {models.StatusWaiting, models.StatusRequested},
	"serve":   {models.StatusAtCounter},
	"cancel":  {models.StatusWaiting, models.StatusRequested},
}

// targetStatus maps an action to the status it produces.
var targetStatus = map[string]string{
	"request": models.StatusRequested,
	"arrive":  models.StatusAtCounter,
	"serve":   models.StatusServed,
	"cancel":  models.StatusCancelled,
}

func ValidTransition(action, fromStatus string) bool {
	allowed, ok := transitionMap[action]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == fromStatus {
			return true
		}
	}
	return false
}

// TargetStatus returns the status an action transitions into, and whether the
// action is known.
func TargetStatus(action string) (string, bool) {
	status, ok := targetStatus[action]
	return status, ok
}

// AllowedSources returns the statuses an action accepts as input, nil for an
// unknown action.
func AllowedSources(action string) []string {
	return transitionMap[action]
}
