package store

import (
	"context"
	"time"

	"github.com/hameed6991/queueless/internal/models"
	"github.com/hameed6991/queueless/internal/queue"
)

// JoinInput describes one join request. CreatedAt zero means "now".
type JoinInput struct {
	BusinessID string
	CustomerID string
	CreatedAt  time.Time
}

// TokenActionInput drives one lifecycle transition on an existing token.
type TokenActionInput struct {
	BusinessID string
	TokenID    string
}

// AlertCandidate is a waiting token due for its near-your-turn alert,
// joined with what the notifier needs.
type AlertCandidate struct {
	TokenID              string
	TokenNumber          int
	BusinessID           string
	BusinessName         string
	CustomerID           string
	Handle               string
	EstimatedWaitMinutes int
}

// TokenStore owns token issuance and lifecycle. All position/ETA reads and
// the alert-dedup window are scoped to tokens created on the given calendar
// day; stale waiting tokens from prior days never count.
type TokenStore interface {
	// JoinQueue issues today's token for the pair or returns the existing
	// active one. The returned bool is true when a new token was created.
	JoinQueue(ctx context.Context, input JoinInput) (models.Token, bool, error)
	GetActiveToken(ctx context.Context, businessID, customerID string) (models.Token, bool, error)
	ListActiveTokens(ctx context.Context, customerID string) ([]models.Token, error)

	RequestToken(ctx context.Context, input TokenActionInput) (models.Token, error)
	ArriveToken(ctx context.Context, input TokenActionInput) (models.Token, error)
	ServeToken(ctx context.Context, input TokenActionInput) (models.Token, error)
	CancelToken(ctx context.Context, input TokenActionInput) (models.Token, error)

	ListWaitingBusinessIDs(ctx context.Context, day time.Time) ([]string, error)
	ListWaitingTokens(ctx context.Context, businessID string, day time.Time) ([]models.Token, error)
	UpdateEstimates(ctx context.Context, businessID string, estimates []queue.Estimate) error
	ListAlertCandidates(ctx context.Context, day time.Time, thresholdMinutes int) ([]AlertCandidate, error)
	// MarkAlertSent is called only by the alert worker, after a successful
	// notifier hand-off.
	MarkAlertSent(ctx context.Context, tokenID string) error

	GetActiveBusiness(ctx context.Context, businessID string) (models.Business, error)
	GetNotificationHandle(ctx context.Context, customerID string) (string, bool, error)
}
