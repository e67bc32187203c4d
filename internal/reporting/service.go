package reporting

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/clinicore/clinicore/internal/shared"
)

// Statistics is the dashboard aggregate over one date range.
type Statistics struct {
	From       time.Time        `json:"from"`
	To         time.Time        `json:"to"`
	Totals     LedgerTotals     `json:"totals"`
	ByStatus   []StatusBucket   `json:"by_status"`
	ByCategory []CategoryAmount `json:"by_category"`
	ByMethod   []MethodAmount   `json:"by_method"`
}

// Service aggregates the ledger read side.
type Service struct {
	repo  RepositoryPort
	cache *Cache
	group singleflight.Group
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, cache *Cache) *Service {
	return &Service{repo: repo, cache: cache}
}

// GetStatistics returns the range aggregates. Results are cached under the
// ledger version; concurrent dashboard hits for the same range collapse into
// one build through singleflight.
func (s *Service) GetStatistics(ctx context.Context, from, to time.Time) (*Statistics, error) {
	from = shared.BusinessDate(from)
	to = shared.BusinessDate(to).AddDate(0, 0, 1)

	key, err := s.cache.BuildKey(ctx, keyStatistics(from, to)...)
	if err != nil {
		return nil, err
	}

	value, err, _ := s.group.Do(key, func() (interface{}, error) {
		var stats Statistics
		err := s.cache.FetchJSON(ctx, key, &stats, func(ctx context.Context) (interface{}, error) {
			return s.buildStatistics(ctx, from, to)
		})
		if err != nil {
			return nil, err
		}
		return &stats, nil
	})
	if err != nil {
		return nil, err
	}
	return value.(*Statistics), nil
}

// buildStatistics fans the four aggregate queries out in parallel.
func (s *Service) buildStatistics(ctx context.Context, from, to time.Time) (*Statistics, error) {
	stats := Statistics{From: from, To: to}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		totals, err := s.repo.LedgerTotals(ctx, from, to)
		if err == nil {
			stats.Totals = totals
		}
		return err
	})
	g.Go(func() error {
		buckets, err := s.repo.StatusBuckets(ctx, from, to)
		if err == nil {
			stats.ByStatus = buckets
		}
		return err
	})
	g.Go(func() error {
		amounts, err := s.repo.CategoryAmounts(ctx, from, to)
		if err == nil {
			stats.ByCategory = amounts
		}
		return err
	})
	g.Go(func() error {
		amounts, err := s.repo.MethodAmounts(ctx, from, to)
		if err == nil {
			stats.ByMethod = amounts
		}
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &stats, nil
}

// InvoiceRows lists the invoices of the range for export. Exports bypass the
// cache; a download must always reflect committed state.
func (s *Service) InvoiceRows(ctx context.Context, from, to time.Time) ([]InvoiceRow, error) {
	from = shared.BusinessDate(from)
	to = shared.BusinessDate(to).AddDate(0, 0, 1)
	return s.repo.InvoiceRows(ctx, from, to)
}

// WarmStatistics pre-builds the aggregates for a range, used by the nightly
// warm-up job.
func (s *Service) WarmStatistics(ctx context.Context, from, to time.Time) error {
	_, err := s.GetStatistics(ctx, from, to)
	return err
}
