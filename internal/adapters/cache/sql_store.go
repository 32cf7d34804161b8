package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mikey/mail-threat-analyzer/internal/core"
	"go.uber.org/zap"
)

// sqlStore holds the queries shared by the SQL-backed caches; only the
// upsert statement differs between dialects
type sqlStore struct {
	db       *sql.DB
	logger   *zap.Logger
	upsert   string
	stopCh   chan struct{}
	stopOnce sync.Once
}

func newSQLStore(db *sql.DB, logger *zap.Logger, upsert string) *sqlStore {
	return &sqlStore{
		db:     db,
		logger: logger,
		upsert: upsert,
		stopCh: make(chan struct{}),
	}
}

// Get retrieves a cached entry by input digest
func (s *sqlStore) Get(ctx context.Context, digest string) (*core.CacheEntry, error) {
	var (
		data      []byte
		lastSeen  int64
		expiresAt int64
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT result, last_seen, expires_at
		FROM threat_cache
		WHERE digest = ? AND expires_at > ?
	`, digest, time.Now().Unix()).Scan(&data, &lastSeen, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query cache: %w", err)
	}

	result, err := decodeResult(data)
	if err != nil {
		return nil, err
	}

	return &core.CacheEntry{
		Digest:    digest,
		Result:    result,
		LastSeen:  time.Unix(lastSeen, 0),
		ExpiresAt: time.Unix(expiresAt, 0),
	}, nil
}

// Set stores a cache entry
func (s *sqlStore) Set(ctx context.Context, entry *core.CacheEntry) error {
	data, err := encodeResult(entry.Result)
	if err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, s.upsert,
		entry.Digest, data, entry.LastSeen.Unix(), entry.ExpiresAt.Unix()); err != nil {
		return fmt.Errorf("failed to insert cache entry: %w", err)
	}
	return nil
}

// Delete removes a cache entry
func (s *sqlStore) Delete(ctx context.Context, digest string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM threat_cache WHERE digest = ?`, digest); err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// Cleanup removes expired entries
func (s *sqlStore) Cleanup(ctx context.Context) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM threat_cache WHERE expires_at <= ?`, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to clean up expired entries: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		s.logger.Warn("Failed to get rows affected during cleanup", zap.Error(err))
	} else {
		s.logger.Debug("Cleaned up expired cache entries", zap.Int64("expired_count", rowsAffected))
	}
	return nil
}

// Stop stops the background cleanup task and closes the database connection
func (s *sqlStore) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		if err := s.db.Close(); err != nil {
			s.logger.Error("Failed to close cache database", zap.Error(err))
		}
	})
}
