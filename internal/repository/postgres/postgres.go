package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"

	"github.com/lib/pq"

	"staybook-backend/internal/logger"
	"staybook-backend/internal/repository"
)

//go:embed schema.sql
var schema string

type Store struct {
	db *sql.DB
	repository.RoomRepository
	repository.BookingRepository
	repository.TransactionRepository
	repository.PromoRepository
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:                    db,
		RoomRepository:        NewRoomRepository(db),
		BookingRepository:     NewBookingRepository(db),
		TransactionRepository: NewTransactionRepository(db),
		PromoRepository:       NewPromoRepository(db),
	}
}

// Migrate creates the tables this service owns if they do not exist yet
func (s *Store) Migrate(ctx context.Context) error {
	logger.Info("Applying database schema")
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Ping checks the connection for the health service
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// scanner is satisfied by *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

// execer is satisfied by *sql.DB and *sql.Tx
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// affectedOne reports whether a guarded write matched a row
func affectedOne(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
