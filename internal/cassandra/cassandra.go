// Package cassandra adapts a gocql session to the store's Executor contract
// and owns connection setup and schema bootstrap for the courier keyspace.
package cassandra

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"

	"courier/internal/store"
)

// Config holds the connection settings for the cluster.
type Config struct {
	Hosts          []string
	Port           int
	Keyspace       string
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
}

// Session wraps a gocql session. It satisfies store.Executor; every
// transport failure is surfaced wrapped in store.ErrUnavailable so callers
// can classify it without knowing the driver.
type Session struct {
	session *gocql.Session
}

// Open connects to the cluster, creating the keyspace and tables if they do
// not exist yet, and returns a session bound to the keyspace.
func Open(cfg Config) (*Session, error) {
	// Keyspace creation needs a session with no keyspace selected.
	boot, err := newSession(cfg, "")
	if err != nil {
		return nil, err
	}
	if err := boot.Query(fmt.Sprintf(createKeyspace, cfg.Keyspace)).Exec(); err != nil {
		boot.Close()
		return nil, fmt.Errorf("create keyspace %s: %w", cfg.Keyspace, wrapErr(err))
	}
	boot.Close()

	sess, err := newSession(cfg, cfg.Keyspace)
	if err != nil {
		return nil, err
	}
	s := &Session{session: sess}
	if err := s.ensureTables(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func newSession(cfg Config, keyspace string) (*gocql.Session, error) {
	cluster := gocql.NewCluster(cfg.Hosts...)
	if cfg.Port != 0 {
		cluster.Port = cfg.Port
	}
	cluster.Keyspace = keyspace
	cluster.Consistency = gocql.Quorum
	if cfg.ConnectTimeout > 0 {
		cluster.ConnectTimeout = cfg.ConnectTimeout
	}
	if cfg.RequestTimeout > 0 {
		cluster.Timeout = cfg.RequestTimeout
	}

	sess, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("connect to cluster: %w", wrapErr(err))
	}
	return sess, nil
}

// Select runs a read statement and materializes all rows.
func (s *Session) Select(ctx context.Context, stmt string, values ...any) ([]store.Row, error) {
	iter := s.session.Query(stmt, values...).WithContext(ctx).Iter()
	raw, err := iter.SliceMap()
	if cerr := iter.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, wrapErr(err)
	}
	rows := make([]store.Row, len(raw))
	for i, m := range raw {
		rows[i] = store.Row(m)
	}
	return rows, nil
}

// Exec runs a write statement.
func (s *Session) Exec(ctx context.Context, stmt string, values ...any) error {
	if err := s.session.Query(stmt, values...).WithContext(ctx).Exec(); err != nil {
		return wrapErr(err)
	}
	return nil
}

// ExecCAS runs a lightweight transaction and reports whether it applied.
func (s *Session) ExecCAS(ctx context.Context, stmt string, values ...any) (bool, store.Row, error) {
	prev := make(map[string]any)
	applied, err := s.session.Query(stmt, values...).WithContext(ctx).MapScanCAS(prev)
	if err != nil {
		return false, nil, wrapErr(err)
	}
	return applied, store.Row(prev), nil
}

// Ping verifies the cluster is reachable.
func (s *Session) Ping(ctx context.Context) error {
	if err := s.session.Query(`SELECT release_version FROM system.local`).WithContext(ctx).Exec(); err != nil {
		return wrapErr(err)
	}
	return nil
}

// Close releases the underlying session.
func (s *Session) Close() {
	s.session.Close()
}

func wrapErr(err error) error {
	return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
}
