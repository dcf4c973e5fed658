// Package memory implements store.TokenStore with in-process state. It backs
// the worker and engine tests, where cycles and concurrent joins must be
// driven deterministically without a database.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hameed6991/queueless/internal/models"
	"github.com/hameed6991/queueless/internal/queue"
	"github.com/hameed6991/queueless/internal/store"
)

type Store struct {
	mu         sync.Mutex
	businesses map[string]models.Business
	handles    map[string]string
	tokens     map[string]*models.Token
	sequences  map[string]int // businessID + "|" + day
}

func NewStore() *Store {
	return &Store{
		businesses: make(map[string]models.Business),
		handles:    make(map[string]string),
		tokens:     make(map[string]*models.Token),
		sequences:  make(map[string]int),
	}
}

// AddBusiness seeds a business record. Test and fixture helper; businesses
// are collaborator-owned in production.
func (s *Store) AddBusiness(business models.Business) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.businesses[business.BusinessID] = business
}

// SetNotificationHandle seeds a customer's push handle.
func (s *Store) SetNotificationHandle(customerID, handle string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handles[customerID] = handle
}

func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func sameDay(a, b time.Time) bool {
	return dayKey(a) == dayKey(b)
}

func (s *Store) JoinQueue(ctx context.Context, input store.JoinInput) (models.Token, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	business, ok := s.businesses[input.BusinessID]
	if !ok {
		return models.Token{}, false, store.ErrBusinessNotFound
	}
	if !business.IsActive {
		return models.Token{}, false, store.ErrBusinessInactive
	}

	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	if existing := s.findActiveLocked(input.BusinessID, input.CustomerID, createdAt); existing != nil {
		return s.enrichLocked(*existing), false, nil
	}

	seqKey := input.BusinessID + "|" + dayKey(createdAt)
	s.sequences[seqKey]++

	token := models.Token{
		TokenID:     uuid.NewString(),
		BusinessID:  input.BusinessID,
		CustomerID:  input.CustomerID,
		TokenNumber: s.sequences[seqKey],
		Status:      models.StatusWaiting,
		CreatedAt:   createdAt,
	}
	s.tokens[token.TokenID] = &token

	estimates := queue.ComputeEstimates(s.waitingLocked(input.BusinessID, createdAt), queue.EffectiveAvgMinutes(business.AvgTimeMinutes))
	s.applyEstimatesLocked(estimates)

	return s.enrichLocked(*s.tokens[token.TokenID]), true, nil
}

func (s *Store) GetActiveToken(ctx context.Context, businessID, customerID string) (models.Token, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token := s.findActiveLocked(businessID, customerID, time.Now().UTC())
	if token == nil {
		return models.Token{}, false, nil
	}
	return s.enrichLocked(*token), true, nil
}

func (s *Store) ListActiveTokens(ctx context.Context, customerID string) ([]models.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	var active []models.Token
	for _, token := range s.tokens {
		if token.CustomerID == customerID && models.IsActiveStatus(token.Status) && sameDay(token.CreatedAt, now) {
			active = append(active, s.enrichLocked(*token))
		}
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].CreatedAt.Before(active[j].CreatedAt)
	})
	return active, nil
}

func (s *Store) RequestToken(ctx context.Context, input store.TokenActionInput) (models.Token, error) {
	return s.applyAction(input, "request")
}

func (s *Store) ArriveToken(ctx context.Context, input store.TokenActionInput) (models.Token, error) {
	return s.applyAction(input, "arrive")
}

func (s *Store) ServeToken(ctx context.Context, input store.TokenActionInput) (models.Token, error) {
	return s.applyAction(input, "serve")
}

func (s *Store) CancelToken(ctx context.Context, input store.TokenActionInput) (models.Token, error) {
	return s.applyAction(input, "cancel")
}

func (s *Store) applyAction(input store.TokenActionInput, action string) (models.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.tokens[input.TokenID]
	if !ok || (input.BusinessID != "" && token.BusinessID != input.BusinessID) {
		return models.Token{}, store.ErrTokenNotFound
	}
	if !store.ValidTransition(action, token.Status) {
		return models.Token{}, store.ErrInvalidState
	}
	target, _ := store.TargetStatus(action)
	token.Status = target
	return s.enrichLocked(*token), nil
}

func (s *Store) ListWaitingBusinessIDs(ctx context.Context, day time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool)
	var ids []string
	for _, token := range s.tokens {
		if token.Status == models.StatusWaiting && sameDay(token.CreatedAt, day) && !seen[token.BusinessID] {
			seen[token.BusinessID] = true
			ids = append(ids, token.BusinessID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) ListWaitingTokens(ctx context.Context, businessID string, day time.Time) ([]models.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waitingLocked(businessID, day), nil
}

func (s *Store) UpdateEstimates(ctx context.Context, businessID string, estimates []queue.Estimate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyEstimatesLocked(estimates)
	return nil
}

func (s *Store) ListAlertCandidates(ctx context.Context, day time.Time, thresholdMinutes int) ([]store.AlertCandidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var candidates []store.AlertCandidate
	for _, token := range s.tokens {
		if token.Status != models.StatusWaiting || token.AlertSent || !sameDay(token.CreatedAt, day) {
			continue
		}
		if token.EstimatedWaitMinutes == nil || *token.EstimatedWaitMinutes > thresholdMinutes {
			continue
		}
		handle, ok := s.handles[token.CustomerID]
		if !ok || handle == "" {
			continue
		}
		business := s.businesses[token.BusinessID]
		candidates = append(candidates, store.AlertCandidate{
			TokenID:              token.TokenID,
			TokenNumber:          token.TokenNumber,
			BusinessID:           token.BusinessID,
			BusinessName:         business.Name,
			CustomerID:           token.CustomerID,
			Handle:               handle,
			EstimatedWaitMinutes: *token.EstimatedWaitMinutes,
		})
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].TokenNumber < candidates[j].TokenNumber
	})
	return candidates, nil
}

func (s *Store) MarkAlertSent(ctx context.Context, tokenID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.tokens[tokenID]
	if !ok {
		return store.ErrTokenNotFound
	}
	token.AlertSent = true
	return nil
}

func (s *Store) GetActiveBusiness(ctx context.Context, businessID string) (models.Business, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	business, ok := s.businesses[businessID]
	if !ok {
		return models.Business{}, store.ErrBusinessNotFound
	}
	if !business.IsActive {
		return models.Business{}, store.ErrBusinessInactive
	}
	return business, nil
}

func (s *Store) GetNotificationHandle(ctx context.Context, customerID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	handle, ok := s.handles[customerID]
	if !ok || handle == "" {
		return "", false, nil
	}
	return handle, true, nil
}

func (s *Store) findActiveLocked(businessID, customerID string, day time.Time) *models.Token {
	for _, token := range s.tokens {
		if token.BusinessID == businessID && token.CustomerID == customerID &&
			models.IsActiveStatus(token.Status) && sameDay(token.CreatedAt, day) {
			return token
		}
	}
	return nil
}

func (s *Store) waitingLocked(businessID string, day time.Time) []models.Token {
	var waiting []models.Token
	for _, token := range s.tokens {
		if token.BusinessID == businessID && token.Status == models.StatusWaiting && sameDay(token.CreatedAt, day) {
			waiting = append(waiting, *token)
		}
	}
	sort.Slice(waiting, func(i, j int) bool {
		return waiting[i].TokenNumber < waiting[j].TokenNumber
	})
	return waiting
}

func (s *Store) applyEstimatesLocked(estimates []queue.Estimate) {
	for _, est := range estimates {
		if token, ok := s.tokens[est.TokenID]; ok {
			ahead := est.WaitingAhead
			eta := est.EstimatedWaitMinutes
			token.WaitingAhead = &ahead
			token.EstimatedWaitMinutes = &eta
		}
	}
}

func (s *Store) enrichLocked(token models.Token) models.Token {
	if business, ok := s.businesses[token.BusinessID]; ok {
		token.BusinessName = business.Name
		token.Category = business.Category
		token.Locality = business.Locality
	}
	return token
}
