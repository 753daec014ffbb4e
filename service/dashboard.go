package service

import (
	"context"

	"github.com/warp/loan-ledger/application"
	"github.com/warp/loan-ledger/ledger"
)

// RecentTransactions is how many rows the dashboard shows.
const RecentTransactions = 10

// Dashboard is the admin overview.
type Dashboard struct {
	Applications      map[application.Status]int
	TotalApplications int
	Totals            ledger.Totals
	Recent            []ledger.TransactionLine
}

// Dashboard gathers application counts, portfolio totals and the most
// recent transactions.
func (s *Service) Dashboard(ctx context.Context) (*Dashboard, error) {
	counts, err := s.workflow.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	d := &Dashboard{Applications: counts}
	for _, n := range counts {
		d.TotalApplications += n
	}

	ctx, cancel := s.ledger.WithStorageTimeout(ctx)
	defer cancel()
	if d.Totals, err = s.reports.Totals(ctx); err != nil {
		return nil, ledger.WrapPersistence("totals", err)
	}
	if d.Recent, _, err = s.reports.SearchTransactions(ctx, ledger.TransactionFilter{}, 0, RecentTransactions); err != nil {
		return nil, ledger.WrapPersistence("recent transactions", err)
	}
	return d, nil
}
