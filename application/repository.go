package application

import (
	"context"
	"time"

	"github.com/warp/loan-ledger/ledger"
)

// =============================================================================
// REPOSITORY
// =============================================================================

// Repository persists loan applications.
type Repository interface {
	// ApplicationIDExists backs application ID generation.
	ApplicationIDExists(ctx context.Context, applicationID string) (bool, error)

	// InsertApplication creates the row and sets app.ID.
	// Returns ledger.ErrConflict if the application ID is taken.
	InsertApplication(ctx context.Context, app *LoanApplication) error

	// GetApplication returns ErrApplicationNotFound when absent.
	GetApplication(ctx context.Context, applicationID string) (*LoanApplication, error)

	// UpdateApplicationStatus moves the row from `from` to `to` only if it is
	// still in `from`. Zero affected rows is ledger.ErrConflict. Empty notes
	// keep the existing admin notes.
	UpdateApplicationStatus(ctx context.Context, applicationID string, from, to Status, notes string, at time.Time) error

	// ListApplications returns one page, newest first, plus the total match count.
	ListApplications(ctx context.Context, f Filter, offset, limit int) ([]LoanApplication, int, error)

	// CountApplicationsByStatus returns a count for every status that has rows.
	CountApplicationsByStatus(ctx context.Context) (map[Status]int, error)
}

// =============================================================================
// UNIT OF WORK
// =============================================================================

// Repos are the repositories bound to one unit of work.
type Repos struct {
	Ledger       ledger.Store
	Applications Repository
}

// UnitOfWork runs fn inside one database transaction. Any error from fn
// rolls back every write made through the Repos it was handed.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(Repos) error) error
}

// Store is what the workflow needs from a backend.
type Store interface {
	Repository
	UnitOfWork
}
