// Package storagetest provides an in-memory scripted Session for tests of
// code built on the storage connector.
package storagetest

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/bstardust/photo-gps-resolver/internal/storage"
)

// Handler answers one statement with result rows, affected count or error
type Handler func(sql string, args []any) (rows [][]any, affected int64, err error)

// Call is one statement seen by a fake session
type Call struct {
	SQL       string
	Args      []any
	Committed bool
}

// Server hands out fake sessions that all answer through the same handler
type Server struct {
	mu      sync.Mutex
	handler Handler
	calls   []Call
	dials   int
	dialErr []error
}

// NewServer creates a server answering with h
func NewServer(h Handler) *Server {
	return &Server{handler: h}
}

// FailDials makes the next dials fail with errs, in order
func (s *Server) FailDials(errs ...error) {
	s.mu.Lock()
	s.dialErr = append(s.dialErr, errs...)
	s.mu.Unlock()
}

// Dialer returns a storage.Dialer connected to s
func (s *Server) Dialer() storage.Dialer {
	return func(ctx context.Context) (storage.Session, error) {
		s.mu.Lock()
		defer s.mu.Unlock()

		s.dials++
		if len(s.dialErr) > 0 {
			err := s.dialErr[0]
			s.dialErr = s.dialErr[1:]
			return nil, err
		}
		return &session{srv: s}, nil
	}
}

// Connector returns a connector with zero backoff dialing s
func (s *Server) Connector(attempts int) *storage.Connector {
	return storage.NewWithDialer(s.Dialer(), storage.RetryConfig{MaxAttempts: attempts})
}

// Calls returns every statement run so far
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Dials returns how many sessions were requested
func (s *Server) Dials() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials
}

func (s *Server) answer(sql string, args []any, commit bool) ([][]any, int64, error) {
	s.mu.Lock()
	s.calls = append(s.calls, Call{SQL: sql, Args: args, Committed: commit})
	h := s.handler
	s.mu.Unlock()

	if h == nil {
		return nil, 0, nil
	}
	return h(sql, args)
}

type session struct {
	srv    *Server
	closed bool
}

func (f *session) Query(_ context.Context, sql string, args ...any) (storage.Rows, error) {
	if f.closed {
		return nil, storage.ErrSessionClosed
	}
	rows, _, err := f.srv.answer(sql, args, false)
	if err != nil {
		return nil, err
	}
	return &Rows{data: rows, idx: -1}, nil
}

func (f *session) Exec(_ context.Context, sql string, args ...any) (int64, error) {
	if f.closed {
		return 0, storage.ErrSessionClosed
	}
	_, n, err := f.srv.answer(sql, args, false)
	return n, err
}

func (f *session) ExecTx(_ context.Context, sql string, args ...any) error {
	if f.closed {
		return storage.ErrSessionClosed
	}
	_, _, err := f.srv.answer(sql, args, true)
	return err
}

func (f *session) Close(context.Context) error {
	f.closed = true
	return nil
}

func (f *session) IsClosed() bool {
	return f.closed
}

// Rows iterates over fixed values
type Rows struct {
	data [][]any
	idx  int
	err  error
}

func (r *Rows) Next() bool {
	r.idx++
	return r.idx < len(r.data)
}

// Scan copies the current row into dest pointers. A nil value zeroes the
// destination, which suits pointer destinations for nullable columns.
func (r *Rows) Scan(dest ...any) error {
	if r.idx < 0 || r.idx >= len(r.data) {
		return fmt.Errorf("scan called without a current row")
	}
	row := r.data[r.idx]
	if len(row) != len(dest) {
		return fmt.Errorf("row has %d values, scan wants %d", len(row), len(dest))
	}

	for i, d := range dest {
		target := reflect.ValueOf(d).Elem()
		if row[i] == nil {
			target.Set(reflect.Zero(target.Type()))
			continue
		}

		v := reflect.ValueOf(row[i])
		switch {
		case v.Type().AssignableTo(target.Type()):
			target.Set(v)
		case v.Type().ConvertibleTo(target.Type()):
			target.Set(v.Convert(target.Type()))
		case target.Kind() == reflect.Pointer && v.Type().ConvertibleTo(target.Type().Elem()):
			p := reflect.New(target.Type().Elem())
			p.Elem().Set(v.Convert(target.Type().Elem()))
			target.Set(p)
		default:
			return fmt.Errorf("cannot scan %T into %s", row[i], target.Type())
		}
	}
	return nil
}

func (r *Rows) Err() error {
	return r.err
}

func (r *Rows) Close() {}
