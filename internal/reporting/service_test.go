package reporting

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/clinicore/clinicore/internal/billing"
)

// memoryRepository serves canned aggregates and counts how often the totals
// query runs, which is how the cache tests observe hits and misses.
type memoryRepository struct {
	totals     LedgerTotals
	buckets    []StatusBucket
	categories []CategoryAmount
	methods    []MethodAmount
	rows       []InvoiceRow
	loads      atomic.Int64
}

func (m *memoryRepository) LedgerTotals(ctx context.Context, from, to time.Time) (LedgerTotals, error) {
	m.loads.Add(1)
	return m.totals, nil
}

func (m *memoryRepository) StatusBuckets(ctx context.Context, from, to time.Time) ([]StatusBucket, error) {
	return m.buckets, nil
}

func (m *memoryRepository) CategoryAmounts(ctx context.Context, from, to time.Time) ([]CategoryAmount, error) {
	return m.categories, nil
}

func (m *memoryRepository) MethodAmounts(ctx context.Context, from, to time.Time) ([]MethodAmount, error) {
	return m.methods, nil
}

func (m *memoryRepository) InvoiceRows(ctx context.Context, from, to time.Time) ([]InvoiceRow, error) {
	return m.rows, nil
}

func newTestCache(t *testing.T) (*Cache, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute), client
}

func sampleRepository() *memoryRepository {
	return &memoryRepository{
		totals: LedgerTotals{InvoiceCount: 3, NetTotal: 45000, PaidTotal: 30000, BalanceDue: 15000},
		buckets: []StatusBucket{
			{Status: billing.StatusPaid, Count: 2},
			{Status: billing.StatusPartiallyPaid, Count: 1},
		},
		categories: []CategoryAmount{{ServiceType: "CONSULTATION", Amount: 20000}, {ServiceType: "LABO", Amount: 25000}},
		methods:    []MethodAmount{{Method: billing.MethodCash, Amount: 18000}, {Method: billing.MethodCoverage, Amount: 12000}},
	}
}

func TestGetStatisticsAggregates(t *testing.T) {
	repo := sampleRepository()
	cache, _ := newTestCache(t)
	svc := NewService(repo, cache)

	day := time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)
	stats, err := svc.GetStatistics(context.Background(), day, day)
	require.NoError(t, err)
	require.Equal(t, 3, stats.Totals.InvoiceCount)
	require.Equal(t, int64(15000), stats.Totals.BalanceDue)
	require.Len(t, stats.ByStatus, 2)
	require.Len(t, stats.ByCategory, 2)
	require.Len(t, stats.ByMethod, 2)
}

func TestGetStatisticsCachesUntilLedgerBump(t *testing.T) {
	repo := sampleRepository()
	cache, client := newTestCache(t)
	svc := NewService(repo, cache)
	ctx := context.Background()
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	_, err := svc.GetStatistics(ctx, day, day)
	require.NoError(t, err)
	_, err = svc.GetStatistics(ctx, day, day)
	require.NoError(t, err)
	require.Equal(t, int64(1), repo.loads.Load())

	// A committed payment bumps the ledger version through the billing events
	// port; the next read rebuilds.
	require.NoError(t, billing.NewRedisEvents(client).LedgerChanged(ctx))
	_, err = svc.GetStatistics(ctx, day, day)
	require.NoError(t, err)
	require.Equal(t, int64(2), repo.loads.Load())
}

func TestGetStatisticsWithoutRedis(t *testing.T) {
	repo := sampleRepository()
	svc := NewService(repo, NewCache(nil, 0))

	stats, err := svc.GetStatistics(context.Background(), time.Now(), time.Now())
	require.NoError(t, err)
	require.Equal(t, int64(45000), stats.Totals.NetTotal)
}

func TestLedgerVersionSharedWithBilling(t *testing.T) {
	cache, client := newTestCache(t)
	ctx := context.Background()

	ver, err := cache.Version(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), ver)

	// The payment engine bumps the same key through its events port.
	require.NoError(t, client.Incr(ctx, billing.LedgerVersionKey).Err())

	ver, err = cache.Version(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), ver)
}
