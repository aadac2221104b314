package store

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/gl-core/internal/ledger"
)

// openPostgres connects to DATABASE_URL or skips the test.
func openPostgres(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set, skipping PostgreSQL integration test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := OpenPostgres(ctx, url, testLogger())
	if err != nil {
		t.Skipf("Skipping PostgreSQL integration test: %v", err)
	}
	t.Cleanup(s.Close)
	require.NoError(t, s.Migrate(ctx))
	return s
}

func TestPostgresPostingAndReports(t *testing.T) {
	s := openPostgres(t)
	ctx := context.Background()
	tenant := "it-" + uuid.New().String()

	svc := ledger.NewService(s, ledger.Options{Logger: testLogger()})
	_, err := svc.Accounts.SeedDefaults(ctx, tenant)
	require.NoError(t, err)

	_, _, err = svc.Posting.IssueInvoice(ctx, ledger.InvoiceIssued{
		TenantID:  tenant,
		PostedBy:  "integration",
		InvoiceID: uuid.New().String(),
		Number:    "INV-IT-1",
		IssueDate: ledger.Day(time.Now()),
		Subtotal:  fromCents(2500000),
		Tax:       fromCents(125000),
		Total:     fromCents(2625000),
	})
	require.NoError(t, err)

	tb, err := svc.Reports.TrialBalance(ctx, tenant, time.Now())
	require.NoError(t, err)
	assert.True(t, tb.IsBalanced)
	assert.Equal(t, "26250.00", tb.TotalDebit.StringFixed(2))

	results, err := svc.Validator.ValidateTenant(ctx, tenant)
	require.NoError(t, err)
	assert.True(t, ledger.Valid(results))
}

func TestPostgresConcurrentPostings(t *testing.T) {
	s := openPostgres(t)
	ctx := context.Background()
	tenant := "it-" + uuid.New().String()

	svc := ledger.NewService(s, ledger.Options{Logger: testLogger()})
	_, err := svc.Accounts.SeedDefaults(ctx, tenant)
	require.NoError(t, err)
	cash, err := svc.Accounts.GetByCode(ctx, tenant, "1110")
	require.NoError(t, err)
	revenue, err := svc.Accounts.GetByCode(ctx, tenant, "4100")
	require.NoError(t, err)

	const workers = 10
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Posting.Post(ctx, ledger.Transaction{
				TenantID:    tenant,
				PostedBy:    "integration",
				Date:        time.Now(),
				Description: "cash sale",
				SourceType:  ledger.SourceManual,
				SourceID:    uuid.New().String(),
				Lines: []ledger.Line{
					{AccountID: cash.ID, Debit: fromCents(1000)},
					{AccountID: revenue.ID, Credit: fromCents(1000)},
				},
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	posted := 0
	for err := range errs {
		if err == nil {
			posted++
			continue
		}
		assert.ErrorIs(t, err, ledger.ErrContention)
	}

	cash, err = svc.Accounts.Get(ctx, tenant, cash.ID)
	require.NoError(t, err)
	assert.Equal(t, fromCents(int64(posted)*1000).StringFixed(2), cash.Balance.StringFixed(2))
}
