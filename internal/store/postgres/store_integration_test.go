package postgres

import (
	"context"
	"errors"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hameed6991/queueless/internal/models"
	"github.com/hameed6991/queueless/internal/store"
	"github.com/hameed6991/queueless/migrations"
)

func TestJoinQueueConcurrentNumbersDistinct(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	businessID := uuid.NewString()
	seedBusiness(t, ctx, pool, businessID, 4, true)

	const customers = 10
	createdAt := time.Now().UTC()

	var wg sync.WaitGroup
	numbers := make(chan int, customers)
	for i := 0; i < customers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, created, err := st.JoinQueue(ctx, store.JoinInput{
				BusinessID: businessID,
				CustomerID: uuid.NewString(),
				CreatedAt:  createdAt,
			})
			if err != nil {
				t.Errorf("join queue: %v", err)
				return
			}
			if !created {
				t.Errorf("expected a fresh token")
				return
			}
			numbers <- token.TokenNumber
		}()
	}
	wg.Wait()
	close(numbers)

	seen := make(map[int]bool)
	max := 0
	count := 0
	for number := range numbers {
		if number <= 0 {
			t.Fatalf("non-positive token number %d", number)
		}
		if seen[number] {
			t.Fatalf("duplicate token number %d", number)
		}
		seen[number] = true
		if number > max {
			max = number
		}
		count++
	}
	if count != customers {
		t.Fatalf("expected %d tokens, got %d", customers, count)
	}
	if max != customers {
		t.Fatalf("expected contiguous numbers up to %d, got max %d", customers, max)
	}
}

func TestJoinQueueIdempotentPair(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	businessID := uuid.NewString()
	customerID := uuid.NewString()
	seedBusiness(t, ctx, pool, businessID, 4, true)

	first, created, err := st.JoinQueue(ctx, store.JoinInput{BusinessID: businessID, CustomerID: customerID})
	if err != nil || !created {
		t.Fatalf("first join: created=%v err=%v", created, err)
	}
	second, created, err := st.JoinQueue(ctx, store.JoinInput{BusinessID: businessID, CustomerID: customerID})
	if err != nil {
		t.Fatalf("second join: %v", err)
	}
	if created {
		t.Fatalf("expected existing token on repeat join")
	}
	if second.TokenID != first.TokenID || second.TokenNumber != first.TokenNumber {
		t.Fatalf("expected same token back, got %+v vs %+v", second, first)
	}
}

func TestJoinQueueInactiveBusiness(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	businessID := uuid.NewString()
	seedBusiness(t, ctx, pool, businessID, 4, false)

	_, _, err := st.JoinQueue(ctx, store.JoinInput{BusinessID: businessID, CustomerID: uuid.NewString()})
	if !errors.Is(err, store.ErrBusinessInactive) {
		t.Fatalf("expected ErrBusinessInactive, got %v", err)
	}

	_, _, err = st.JoinQueue(ctx, store.JoinInput{BusinessID: uuid.NewString(), CustomerID: uuid.NewString()})
	if !errors.Is(err, store.ErrBusinessNotFound) {
		t.Fatalf("expected ErrBusinessNotFound, got %v", err)
	}
}

func TestTokenLifecycleAndAlertFlow(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	businessID := uuid.NewString()
	customerID := uuid.NewString()
	seedBusiness(t, ctx, pool, businessID, 4, true)
	seedUser(t, ctx, pool, customerID, "push:device-1")

	token, _, err := st.JoinQueue(ctx, store.JoinInput{BusinessID: businessID, CustomerID: customerID})
	if err != nil {
		t.Fatalf("join queue: %v", err)
	}

	input := store.TokenActionInput{BusinessID: businessID, TokenID: token.TokenID}

	if _, err := st.ServeToken(ctx, input); !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("serve from waiting: expected ErrInvalidState, got %v", err)
	}

	day := time.Now().UTC()
	candidates, err := st.ListAlertCandidates(ctx, day, 5)
	if err != nil {
		t.Fatalf("list candidates: %v", err)
	}
	if len(candidates) != 1 || candidates[0].TokenID != token.TokenID {
		t.Fatalf("expected the head token as alert candidate, got %+v", candidates)
	}
	if candidates[0].Handle != "push:device-1" {
		t.Fatalf("unexpected handle: %s", candidates[0].Handle)
	}
	if err := st.MarkAlertSent(ctx, token.TokenID); err != nil {
		t.Fatalf("mark alert sent: %v", err)
	}
	candidates, err = st.ListAlertCandidates(ctx, day, 5)
	if err != nil {
		t.Fatalf("list candidates after mark: %v", err)
	}
	if len(candidates) != 0 {
		t.Fatalf("expected no candidates after alert sent, got %+v", candidates)
	}

	updated, err := st.RequestToken(ctx, input)
	if err != nil || updated.Status != models.StatusRequested {
		t.Fatalf("request: status=%s err=%v", updated.Status, err)
	}
	updated, err = st.ArriveToken(ctx, input)
	if err != nil || updated.Status != models.StatusAtCounter {
		t.Fatalf("arrive: status=%s err=%v", updated.Status, err)
	}
	updated, err = st.ServeToken(ctx, input)
	if err != nil || updated.Status != models.StatusServed {
		t.Fatalf("serve: status=%s err=%v", updated.Status, err)
	}
	if _, err := st.CancelToken(ctx, input); !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("cancel served: expected ErrInvalidState, got %v", err)
	}
}

func setupTestStore(t *testing.T, ctx context.Context) (*Store, *pgxpool.Pool, func()) {
	t.Helper()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		dsn = os.Getenv("DB_DSN")
	}
	if dsn == "" {
		t.Skip("TEST_DB_DSN or DB_DSN is required for integration tests")
	}

	schema := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := createSchema(ctx, dsn, schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	pool, err := newPoolWithSchema(ctx, dsn, schema)
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}

	if err := applyTestMigrations(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("apply migrations: %v", err)
	}

	st := NewStore(pool, Options{})
	cleanup := func() {
		pool.Close()
		_ = dropSchema(context.Background(), dsn, schema)
	}
	return st, pool, cleanup
}

func createSchema(ctx context.Context, dsn, schema string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, "CREATE SCHEMA "+schema)
	return err
}

func dropSchema(ctx context.Context, dsn, schema string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, "DROP SCHEMA "+schema+" CASCADE")
	return err
}

func newPoolWithSchema(ctx context.Context, dsn, schema string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	return pgxpool.NewWithConfig(ctx, cfg)
}

func applyTestMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	entries, err := migrations.FS.ReadDir(".")
	if err != nil {
		return err
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".up.sql") {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)
	for _, name := range files {
		content, err := migrations.FS.ReadFile(name)
		if err != nil {
			return err
		}
		if strings.TrimSpace(string(content)) == "" {
			continue
		}
		if _, err := pool.Exec(ctx, string(content)); err != nil {
			return err
		}
	}
	return nil
}

func seedBusiness(t *testing.T, ctx context.Context, pool *pgxpool.Pool, businessID string, avgMinutes int, active bool) {
	t.Helper()
	_, err := pool.Exec(ctx, `
		INSERT INTO businesses (business_id, name, category, locality, avg_time_minutes, is_active)
		VALUES ($1, 'Cut & Go', 'salon', 'Deira', $2, $3)
	`, businessID, avgMinutes, active)
	if err != nil {
		t.Fatalf("seed business: %v", err)
	}
}

func seedUser(t *testing.T, ctx context.Context, pool *pgxpool.Pool, customerID, handle string) {
	t.Helper()
	_, err := pool.Exec(ctx, `
		INSERT INTO app_users (user_id, full_name, push_handle)
		VALUES ($1, 'Test Customer', $2)
	`, customerID, handle)
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
}
