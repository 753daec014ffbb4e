/*
Package mysql provides a gorm-backed implementation of the storage interfaces
for MySQL.

PURPOSE:
  Production backend. Same contract as store/sqlite, with row-level locks:
  account and application reads inside a transaction use SELECT ... FOR
  UPDATE, so two processes sharing the database still serialize per
  account.

INTERFACES IMPLEMENTED:
  ledger.TxStore, ledger.Querier, application.Store

ERRORS:
  gorm.ErrRecordNotFound maps to the domain not-found sentinels.
  gorm.ErrDuplicatedKey (TranslateError) maps to ledger.ErrConflict.

TESTS:
  Run against gorm's SQLite dialector, which ignores the locking clause.

SEE ALSO:
  - ../sqlite: database/sql implementation
*/
package mysql

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/warp/loan-ledger/application"
	"github.com/warp/loan-ledger/ledger"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Store implements all storage interfaces on top of gorm.
type Store struct {
	*repo
	db *gorm.DB
}

var (
	_ ledger.TxStore    = (*Store)(nil)
	_ ledger.Querier    = (*Store)(nil)
	_ application.Store = (*Store)(nil)
)

// PoolConfig sizes the connection pool.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultPool is sized for a single API instance.
var DefaultPool = PoolConfig{
	MaxOpenConns:    30,
	MaxIdleConns:    10,
	ConnMaxLifetime: 30 * time.Minute,
	ConnMaxIdleTime: 10 * time.Minute,
}

// Open connects to MySQL, checks the connection and migrates the schema.
// The DSN should carry parseTime=true.
func Open(ctx context.Context, dsn string, pool PoolConfig) (*Store, error) {
	db, err := gorm.Open(gormmysql.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(pool.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(pool.ConnMaxIdleTime)

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	s := New(db)
	if err := s.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	slog.Info("database connected", "component", "store", "driver", "mysql")
	return s, nil
}

// New wraps an open gorm handle. The handle should be opened with
// TranslateError so unique violations surface as ErrConflict.
func New(db *gorm.DB) *Store {
	return &Store{repo: &repo{db: db}, db: db}
}

// Migrate creates or updates the tables.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&accountModel{}, &applicationModel{}, &transactionModel{})
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&repo{db: tx, lock: true})
	})
}

// WithinTx runs fn as one unit of work over accounts, transactions and
// applications.
func (s *Store) WithinTx(ctx context.Context, fn func(application.Repos) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r := &repo{db: tx, lock: true}
		return fn(application.Repos{Ledger: r, Applications: r})
	})
}

// =============================================================================
// REPO
// =============================================================================

// repo carries every query. Inside a transaction lock is set and row
// reads take FOR UPDATE.
type repo struct {
	db   *gorm.DB
	lock bool
}

func (r *repo) q(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx)
}

func (r *repo) forUpdate(ctx context.Context) *gorm.DB {
	q := r.q(ctx)
	if r.lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return q
}

func notFound(err, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return err
}

func conflict(err error, what string) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %s", ledger.ErrConflict, what)
	}
	return err
}

func like(search string) string {
	return "%" + search + "%"
}

func page(q *gorm.DB, offset, limit int) *gorm.DB {
	if limit <= 0 {
		return q
	}
	if offset < 0 {
		offset = 0
	}
	return q.Offset(offset).Limit(limit)
}

func (r *repo) exists(ctx context.Context, model any, column, value string) (bool, error) {
	var n int64
	err := r.q(ctx).Model(model).Where(column+" = ?", value).Count(&n).Error
	return n > 0, err
}
