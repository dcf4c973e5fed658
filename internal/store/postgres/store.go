package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/hameed6991/queueless/internal/models"
	"github.com/hameed6991/queueless/internal/queue"
	"github.com/hameed6991/queueless/internal/store"
)

const (
	uniqueViolation    = "23505"
	activePairIndex    = "queue_tokens_active_pair_idx"
	defaultAllocations = 3
)

type Store struct {
	pool               *pgxpool.Pool
	allocationAttempts int
}

type Options struct {
	AllocationAttempts int
}

func NewStore(pool *pgxpool.Pool, options Options) *Store {
	attempts := options.AllocationAttempts
	if attempts <= 0 {
		attempts = defaultAllocations
	}
	return &Store{pool: pool, allocationAttempts: attempts}
}

func dayOf(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// JoinQueue allocates today's next token number inside one transaction, or
// returns the pair's existing active token. Number conflicts restart the
// whole transaction; the attempt count is bounded so contention surfaces as
// ErrAllocationConflict instead of blocking the caller indefinitely.
func (s *Store) JoinQueue(ctx context.Context, input store.JoinInput) (models.Token, bool, error) {
	for attempt := 0; attempt < s.allocationAttempts; attempt++ {
		token, created, err := s.joinOnce(ctx, input)
		if err == nil {
			return token, created, nil
		}
		if pgErr := uniqueViolationError(err); pgErr != nil {
			if pgErr.ConstraintName == activePairIndex {
				// Lost a race against the same customer's concurrent join;
				// the winner's token is the one to hand back.
				existing, found, lookupErr := s.GetActiveToken(ctx, input.BusinessID, input.CustomerID)
				if lookupErr != nil {
					return models.Token{}, false, lookupErr
				}
				if found {
					return existing, false, nil
				}
			}
			continue
		}
		return models.Token{}, false, err
	}
	return models.Token{}, false, store.ErrAllocationConflict
}

func (s *Store) joinOnce(ctx context.Context, input store.JoinInput) (models.Token, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Token{}, false, errors.Wrap(classifyError(err), "begin join tx")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	business, err := queryBusiness(ctx, tx, input.BusinessID)
	if err != nil {
		return models.Token{}, false, err
	}
	if !business.IsActive {
		err = store.ErrBusinessInactive
		return models.Token{}, false, err
	}

	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	day := dayOf(createdAt)

	existing, found, err := findActiveToken(ctx, tx, input.BusinessID, input.CustomerID, day)
	if err != nil {
		return models.Token{}, false, err
	}

	created := false
	var token models.Token
	if found {
		token = existing
	} else {
		seq, seqErr := nextTokenNumber(ctx, tx, input.BusinessID, day)
		if seqErr != nil {
			err = seqErr
			return models.Token{}, false, err
		}
		token = models.Token{
			TokenID:     uuid.NewString(),
			BusinessID:  input.BusinessID,
			CustomerID:  input.CustomerID,
			TokenNumber: seq,
			Status:      models.StatusWaiting,
			CreatedAt:   createdAt,
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO queue_tokens (token_id, business_id, customer_id, token_number, status, day, created_at, alert_sent)
			VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE)
		`, token.TokenID, token.BusinessID, token.CustomerID, token.TokenNumber, token.Status, day, createdAt)
		if err != nil {
			err = classifyError(err)
			return models.Token{}, false, err
		}
		created = true
	}

	estimates, err := refreshEstimates(ctx, tx, input.BusinessID, day, business.AvgTimeMinutes)
	if err != nil {
		return models.Token{}, false, err
	}
	for _, est := range estimates {
		if est.TokenID == token.TokenID {
			ahead := est.WaitingAhead
			eta := est.EstimatedWaitMinutes
			token.WaitingAhead = &ahead
			token.EstimatedWaitMinutes = &eta
		}
	}

	if err = tx.Commit(ctx); err != nil {
		err = classifyError(err)
		return models.Token{}, false, errors.Wrap(err, "commit join tx")
	}

	token.BusinessName = business.Name
	token.Category = business.Category
	token.Locality = business.Locality
	return token, created, nil
}

func (s *Store) GetActiveToken(ctx context.Context, businessID, customerID string) (models.Token, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT t.token_id, t.business_id, t.customer_id, t.token_number, t.status, t.created_at,
			t.waiting_ahead, t.estimated_wait_minutes, t.alert_sent, b.name, b.category, b.locality
		FROM queue_tokens t
		JOIN businesses b ON b.business_id = t.business_id
		WHERE t.business_id = $1 AND t.customer_id = $2
			AND t.day = (now() AT TIME ZONE 'utc')::date
			AND t.status = ANY($3)
		ORDER BY t.created_at DESC
		LIMIT 1
	`, businessID, customerID, models.ActiveStatuses)

	token, err := scanToken(row)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return models.Token{}, false, nil
		}
		return models.Token{}, false, err
	}
	return token, true, nil
}

func (s *Store) ListActiveTokens(ctx context.Context, customerID string) ([]models.Token, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT t.token_id, t.business_id, t.customer_id, t.token_number, t.status, t.created_at,
			t.waiting_ahead, t.estimated_wait_minutes, t.alert_sent, b.name, b.category, b.locality
		FROM queue_tokens t
		JOIN businesses b ON b.business_id = t.business_id
		WHERE t.customer_id = $1
			AND t.day = (now() AT TIME ZONE 'utc')::date
			AND t.status = ANY($2)
		ORDER BY t.created_at ASC
	`, customerID, models.ActiveStatuses)
	if err != nil {
		return nil, classifyError(err)
	}
	defer rows.Close()

	var tokens []models.Token
	for rows.Next() {
		token, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyError(err)
	}
	return tokens, nil
}

func (s *Store) RequestToken(ctx context.Context, input store.TokenActionInput) (models.Token, error) {
	return s.applyAction(ctx, input, "request")
}

func (s *Store) ArriveToken(ctx context.Context, input store.TokenActionInput) (models.Token, error) {
	return s.applyAction(ctx, input, "arrive")
}

func (s *Store) ServeToken(ctx context.Context, input store.TokenActionInput) (models.Token, error) {
	return s.applyAction(ctx, input, "serve")
}

func (s *Store) CancelToken(ctx context.Context, input store.TokenActionInput) (models.Token, error) {
	return s.applyAction(ctx, input, "cancel")
}

func (s *Store) applyAction(ctx context.Context, input store.TokenActionInput, action string) (models.Token, error) {
	target, ok := store.TargetStatus(action)
	if !ok {
		return models.Token{}, store.ErrInvalidState
	}
	allowed := store.AllowedSources(action)

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Token{}, errors.Wrap(classifyError(err), "begin action tx")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	row := tx.QueryRow(ctx, `
		UPDATE queue_tokens
		SET status = $1
		WHERE token_id = $2 AND business_id = $3 AND status = ANY($4)
		RETURNING token_id, business_id, customer_id, token_number, status, created_at,
			waiting_ahead, estimated_wait_minutes, alert_sent
	`, target, input.TokenID, input.BusinessID, allowed)

	var token models.Token
	var aheadNull, etaNull sql.NullInt32
	if err = row.Scan(&token.TokenID, &token.BusinessID, &token.CustomerID, &token.TokenNumber,
		&token.Status, &token.CreatedAt, &aheadNull, &etaNull, &token.AlertSent); err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			exists, stateErr := tokenExists(ctx, tx, input.TokenID, input.BusinessID)
			if stateErr != nil {
				err = stateErr
				return models.Token{}, err
			}
			if !exists {
				err = store.ErrTokenNotFound
			} else {
				err = store.ErrInvalidState
			}
			return models.Token{}, err
		}
		err = classifyError(err)
		return models.Token{}, err
	}
	token.WaitingAhead = nullIntPtr(aheadNull)
	token.EstimatedWaitMinutes = nullIntPtr(etaNull)

	if err = tx.Commit(ctx); err != nil {
		err = classifyError(err)
		return models.Token{}, errors.Wrap(err, "commit action tx")
	}
	return token, nil
}

func (s *Store) ListWaitingBusinessIDs(ctx context.Context, day time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT business_id
		FROM queue_tokens
		WHERE status = $1 AND day = $2
		ORDER BY business_id ASC
	`, models.StatusWaiting, dayOf(day))
	if err != nil {
		return nil, classifyError(err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyError(err)
	}
	return ids, nil
}

func (s *Store) ListWaitingTokens(ctx context.Context, businessID string, day time.Time) ([]models.Token, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT token_id, business_id, customer_id, token_number, status, created_at,
			waiting_ahead, estimated_wait_minutes, alert_sent
		FROM queue_tokens
		WHERE business_id = $1 AND status = $2 AND day = $3
		ORDER BY token_number ASC
	`, businessID, models.StatusWaiting, dayOf(day))
	if err != nil {
		return nil, classifyError(err)
	}
	defer rows.Close()

	var tokens []models.Token
	for rows.Next() {
		var token models.Token
		var aheadNull, etaNull sql.NullInt32
		if err := rows.Scan(&token.TokenID, &token.BusinessID, &token.CustomerID, &token.TokenNumber,
			&token.Status, &token.CreatedAt, &aheadNull, &etaNull, &token.AlertSent); err != nil {
			return nil, err
		}
		token.WaitingAhead = nullIntPtr(aheadNull)
		token.EstimatedWaitMinutes = nullIntPtr(etaNull)
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyError(err)
	}
	return tokens, nil
}

func (s *Store) UpdateEstimates(ctx context.Context, businessID string, estimates []queue.Estimate) error {
	if len(estimates) == 0 {
		return nil
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(classifyError(err), "begin estimates tx")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	for _, est := range estimates {
		if _, err = tx.Exec(ctx, `
			UPDATE queue_tokens
			SET waiting_ahead = $1, estimated_wait_minutes = $2
			WHERE token_id = $3 AND business_id = $4
		`, est.WaitingAhead, est.EstimatedWaitMinutes, est.TokenID, businessID); err != nil {
			err = classifyError(err)
			return err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		err = classifyError(err)
		return errors.Wrap(err, "commit estimates tx")
	}
	return nil
}

func (s *Store) ListAlertCandidates(ctx context.Context, day time.Time, thresholdMinutes int) ([]store.AlertCandidate, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT t.token_id, t.token_number, t.business_id, b.name, t.customer_id, u.push_handle, t.estimated_wait_minutes
		FROM queue_tokens t
		JOIN businesses b ON b.business_id = t.business_id
		JOIN app_users u ON u.user_id = t.customer_id
		WHERE t.status = $1
			AND t.day = $2
			AND t.estimated_wait_minutes IS NOT NULL
			AND t.estimated_wait_minutes <= $3
			AND t.alert_sent = FALSE
			AND u.push_handle IS NOT NULL
		ORDER BY t.business_id ASC, t.token_number ASC
	`, models.StatusWaiting, dayOf(day), thresholdMinutes)
	if err != nil {
		return nil, classifyError(err)
	}
	defer rows.Close()

	var candidates []store.AlertCandidate
	for rows.Next() {
		var cand store.AlertCandidate
		if err := rows.Scan(&cand.TokenID, &cand.TokenNumber, &cand.BusinessID, &cand.BusinessName,
			&cand.CustomerID, &cand.Handle, &cand.EstimatedWaitMinutes); err != nil {
			return nil, err
		}
		candidates = append(candidates, cand)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyError(err)
	}
	return candidates, nil
}

func (s *Store) MarkAlertSent(ctx context.Context, tokenID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE queue_tokens
		SET alert_sent = TRUE
		WHERE token_id = $1
	`, tokenID)
	if err != nil {
		return classifyError(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrTokenNotFound
	}
	return nil
}

func (s *Store) GetActiveBusiness(ctx context.Context, businessID string) (models.Business, error) {
	business, err := queryBusiness(ctx, s.pool, businessID)
	if err != nil {
		return models.Business{}, err
	}
	if !business.IsActive {
		return models.Business{}, store.ErrBusinessInactive
	}
	return business, nil
}

func (s *Store) GetNotificationHandle(ctx context.Context, customerID string) (string, bool, error) {
	var handle sql.NullString
	row := s.pool.QueryRow(ctx, `
		SELECT push_handle
		FROM app_users
		WHERE user_id = $1
	`, customerID)
	if err := row.Scan(&handle); err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, classifyError(err)
	}
	if !handle.Valid || handle.String == "" {
		return "", false, nil
	}
	return handle.String, true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanToken(row rowScanner) (models.Token, error) {
	var token models.Token
	var aheadNull, etaNull sql.NullInt32
	if err := row.Scan(&token.TokenID, &token.BusinessID, &token.CustomerID, &token.TokenNumber,
		&token.Status, &token.CreatedAt, &aheadNull, &etaNull, &token.AlertSent,
		&token.BusinessName, &token.Category, &token.Locality); err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return models.Token{}, err
		}
		return models.Token{}, classifyError(err)
	}
	token.WaitingAhead = nullIntPtr(aheadNull)
	token.EstimatedWaitMinutes = nullIntPtr(etaNull)
	return token, nil
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func queryBusiness(ctx context.Context, q rowQuerier, businessID string) (models.Business, error) {
	var business models.Business
	var avgNull sql.NullInt32
	row := q.QueryRow(ctx, `
		SELECT business_id, name, category, locality, avg_time_minutes, is_active
		FROM businesses
		WHERE business_id = $1
	`, businessID)
	if err := row.Scan(&business.BusinessID, &business.Name, &business.Category,
		&business.Locality, &avgNull, &business.IsActive); err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return models.Business{}, store.ErrBusinessNotFound
		}
		return models.Business{}, classifyError(err)
	}
	business.AvgTimeMinutes = nullIntPtr(avgNull)
	return business, nil
}

func findActiveToken(ctx context.Context, tx pgx.Tx, businessID, customerID, day string) (models.Token, bool, error) {
	var token models.Token
	var aheadNull, etaNull sql.NullInt32
	row := tx.QueryRow(ctx, `
		SELECT token_id, business_id, customer_id, token_number, status, created_at,
			waiting_ahead, estimated_wait_minutes, alert_sent
		FROM queue_tokens
		WHERE business_id = $1 AND customer_id = $2 AND day = $3 AND status = ANY($4)
		ORDER BY created_at DESC
		LIMIT 1
	`, businessID, customerID, day, models.ActiveStatuses)
	if err := row.Scan(&token.TokenID, &token.BusinessID, &token.CustomerID, &token.TokenNumber,
		&token.Status, &token.CreatedAt, &aheadNull, &etaNull, &token.AlertSent); err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return models.Token{}, false, nil
		}
		return models.Token{}, false, classifyError(err)
	}
	token.WaitingAhead = nullIntPtr(aheadNull)
	token.EstimatedWaitMinutes = nullIntPtr(etaNull)
	return token, true, nil
}

// nextTokenNumber serializes concurrent joins for one business-day: the
// upsert takes a row lock on the sequence row, so a competing join blocks
// until this transaction finishes. The increment commits or rolls back with
// the enclosing transaction, so a failed join never consumes a number.
func nextTokenNumber(ctx context.Context, tx pgx.Tx, businessID, day string) (int, error) {
	var next int
	row := tx.QueryRow(ctx, `
		INSERT INTO token_sequences (business_id, day, next_number)
		VALUES ($1, $2, 1)
		ON CONFLICT (business_id, day)
		DO UPDATE SET next_number = token_sequences.next_number + 1
		RETURNING next_number
	`, businessID, day)
	if err := row.Scan(&next); err != nil {
		return 0, classifyError(err)
	}
	return next, nil
}

func refreshEstimates(ctx context.Context, tx pgx.Tx, businessID, day string, avgMinutes *int) ([]queue.Estimate, error) {
	rows, err := tx.Query(ctx, `
		SELECT token_id, token_number, status
		FROM queue_tokens
		WHERE business_id = $1 AND status = $2 AND day = $3
		ORDER BY token_number ASC
	`, businessID, models.StatusWaiting, day)
	if err != nil {
		return nil, classifyError(err)
	}
	defer rows.Close()

	var waiting []models.Token
	for rows.Next() {
		var token models.Token
		if err := rows.Scan(&token.TokenID, &token.TokenNumber, &token.Status); err != nil {
			return nil, err
		}
		waiting = append(waiting, token)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyError(err)
	}
	rows.Close()

	estimates := queue.ComputeEstimates(waiting, queue.EffectiveAvgMinutes(avgMinutes))
	for _, est := range estimates {
		if _, err := tx.Exec(ctx, `
			UPDATE queue_tokens
			SET waiting_ahead = $1, estimated_wait_minutes = $2
			WHERE token_id = $3
		`, est.WaitingAhead, est.EstimatedWaitMinutes, est.TokenID); err != nil {
			return nil, classifyError(err)
		}
	}
	return estimates, nil
}

func tokenExists(ctx context.Context, tx pgx.Tx, tokenID, businessID string) (bool, error) {
	var exists bool
	row := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM queue_tokens WHERE token_id = $1 AND business_id = $2
		)
	`, tokenID, businessID)
	if err := row.Scan(&exists); err != nil {
		return false, classifyError(err)
	}
	return exists, nil
}

func uniqueViolationError(err error) *pgconn.PgError {
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return pgErr
	}
	return nil
}

// classifyError converts connection-level failures into
// store.ErrDependencyUnavailable so callers can tell an unreachable database
// apart from data errors. Server-reported SQL errors keep their chain so
// constraint handling still sees the PgError.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		// Class 08 is connection_exception; 57P covers server shutdown.
		if strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "57P") {
			return errors.Wrap(store.ErrDependencyUnavailable, pgErr.Message)
		}
		return err
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) || pgconn.Timeout(err) {
		return errors.Wrap(store.ErrDependencyUnavailable, err.Error())
	}
	return err
}

func nullIntPtr(value sql.NullInt32) *int {
	if !value.Valid {
		return nil
	}
	v := int(value.Int32)
	return &v
}
