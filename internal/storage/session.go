package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Rows is the subset of pgx.Rows the connector hands to scanners
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

// Session is one open database connection
type Session interface {
	Query(ctx context.Context, sql string, args ...any) (Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (int64, error)

	// ExecTx runs sql inside its own transaction and commits it
	ExecTx(ctx context.Context, sql string, args ...any) error

	Close(ctx context.Context) error
	IsClosed() bool
}

// Dialer opens a new session
type Dialer func(ctx context.Context) (Session, error)

type pgxSession struct {
	conn *pgx.Conn
}

func (s *pgxSession) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	return s.conn.Query(ctx, sql, args...)
}

func (s *pgxSession) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	tag, err := s.conn.Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *pgxSession) ExecTx(ctx context.Context, sql string, args ...any) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if _, err := tx.Exec(ctx, sql, args...); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *pgxSession) Close(ctx context.Context) error {
	return s.conn.Close(ctx)
}

func (s *pgxSession) IsClosed() bool {
	return s.conn.IsClosed()
}

// PgxDialer connects with pgx to dsn, through tunnel when it is not nil
func PgxDialer(dsn string, tunnel *Tunnel) (Dialer, error) {
	base, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}

	return func(ctx context.Context) (Session, error) {
		cfg := base.Copy()

		if tunnel != nil {
			if err := tunnel.Open(ctx); err != nil {
				return nil, err
			}
			cfg.DialFunc = tunnel.DialContext
			// the database host is resolved on the far side of the tunnel
			cfg.LookupFunc = func(_ context.Context, host string) ([]string, error) {
				return []string{host}, nil
			}
		}

		conn, err := pgx.ConnectConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		return &pgxSession{conn: conn}, nil
	}, nil
}
