// Package store persists invocation results and usage records in SQLite
// using the pure Go modernc.org/sqlite driver. It backs llm.Cache for
// durable response caching and core.UsageRecorder for cost accounting and
// incident history.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/agentforge/agentforge/core"
	"github.com/agentforge/agentforge/llm"
	"github.com/agentforge/agentforge/logging"
)

// Options configure a Store.
type Options struct {
	// CacheTTL is how long cached responses stay valid.
	CacheTTL time.Duration
	// CacheMaxEntries caps the cache table; beyond it the oldest tenth of
	// rows is dropped.
	CacheMaxEntries int
	// Logger receives store telemetry.
	Logger logging.Logger
}

// Store wraps a SQLite database holding the response cache, usage log and
// incident log.
type Store struct {
	db     *sql.DB
	opts   Options
	logger logging.Logger

	hits        atomic.Int64
	misses      atomic.Int64
	evictions   atomic.Int64
	tokensSaved atomic.Int64
}

// Open opens (or creates) the database at dbPath and runs migrations.
func Open(dbPath string, optFns ...func(o *Options)) (*Store, error) {
	opts := Options{
		CacheTTL:        24 * time.Hour,
		CacheMaxEntries: 10000,
		Logger:          logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// modernc sqlite performs best with a single writer connection.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, opts: opts, logger: opts.Logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS llm_cache (
		key        TEXT PRIMARY KEY,
		model      TEXT NOT NULL,
		content    TEXT NOT NULL,
		tool_calls TEXT,
		tokens_in  INTEGER NOT NULL DEFAULT 0,
		tokens_out INTEGER NOT NULL DEFAULT 0,
		provider   TEXT,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_llm_cache_created ON llm_cache(created_at);

	CREATE TABLE IF NOT EXISTS llm_usage (
		id          TEXT PRIMARY KEY,
		provider    TEXT NOT NULL,
		model       TEXT NOT NULL,
		tokens_in   INTEGER NOT NULL,
		tokens_out  INTEGER NOT NULL,
		cost_usd    REAL NOT NULL,
		duration_ms INTEGER NOT NULL,
		created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_llm_usage_provider ON llm_usage(provider);

	CREATE TABLE IF NOT EXISTS incidents (
		id         TEXT PRIMARY KEY,
		run_id     TEXT NOT NULL,
		node_id    TEXT,
		category   TEXT NOT NULL,
		detail     TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_incidents_run ON incidents(run_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Get implements llm.Cache. Storage errors degrade to a miss.
func (s *Store) Get(ctx context.Context, key string) (*llm.Result, bool) {
	cutoff := time.Now().Add(-s.opts.CacheTTL)
	row := s.db.QueryRowContext(ctx, `
		SELECT model, content, tokens_in, tokens_out, provider
		FROM llm_cache WHERE key = ? AND created_at > ?`, key, cutoff)

	var res llm.Result
	var provider sql.NullString
	err := row.Scan(&res.Model, &res.Content, &res.TokensIn, &res.TokensOut, &provider)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("cache read failed", "error", err)
		}
		s.misses.Add(1)
		return nil, false
	}
	res.Provider = provider.String
	s.hits.Add(1)
	s.tokensSaved.Add(int64(res.TokensIn + res.TokensOut))
	return &res, true
}

// Put implements llm.Cache. Storage errors are logged, never surfaced.
func (s *Store) Put(ctx context.Context, key string, res *llm.Result) {
	if res == nil {
		return
	}
	if err := s.evictIfFull(ctx); err != nil {
		s.logger.Warn("cache eviction failed", "error", err)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO llm_cache (key, model, content, tokens_in, tokens_out, provider, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		key, res.Model, res.Content, res.TokensIn, res.TokensOut, res.Provider, time.Now())
	if err != nil {
		s.logger.Warn("cache write failed", "error", err)
	}
}

func (s *Store) evictIfFull(ctx context.Context) error {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM llm_cache`).Scan(&count); err != nil {
		return err
	}
	if count < s.opts.CacheMaxEntries {
		return nil
	}
	n := s.opts.CacheMaxEntries / 10
	if n < 1 {
		n = 1
	}
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM llm_cache WHERE key IN (
			SELECT key FROM llm_cache ORDER BY created_at ASC LIMIT ?
		)`, n)
	if err != nil {
		return err
	}
	if dropped, err := result.RowsAffected(); err == nil {
		s.evictions.Add(dropped)
	}
	return nil
}

// Stats implements llm.Cache.
func (s *Store) Stats() llm.CacheStats {
	return llm.CacheStats{
		Hits:        s.hits.Load(),
		Misses:      s.misses.Load(),
		Evictions:   s.evictions.Load(),
		TokensSaved: s.tokensSaved.Load(),
	}
}

// RecordUsage implements core.UsageRecorder.
func (s *Store) RecordUsage(ctx context.Context, rec core.UsageRecord) error {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO llm_usage (id, provider, model, tokens_in, tokens_out, cost_usd, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Provider, rec.Model, rec.TokensIn, rec.TokensOut,
		rec.CostUSD, rec.Duration.Milliseconds(), createdAt)
	if err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	return nil
}

// RecordIncident implements core.UsageRecorder.
func (s *Store) RecordIncident(ctx context.Context, inc core.Incident) error {
	createdAt := inc.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO incidents (id, run_id, node_id, category, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		inc.ID, inc.RunID, inc.NodeID, inc.Category, inc.Detail, createdAt)
	if err != nil {
		return fmt.Errorf("record incident: %w", err)
	}
	return nil
}

// UsageSummary aggregates recorded spend per provider.
type UsageSummary struct {
	Provider  string  `json:"provider"`
	Calls     int     `json:"calls"`
	TokensIn  int     `json:"tokens_in"`
	TokensOut int     `json:"tokens_out"`
	CostUSD   float64 `json:"cost_usd"`
}

// UsageByProvider returns aggregate usage grouped by provider.
func (s *Store) UsageByProvider(ctx context.Context) ([]UsageSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT provider, COUNT(*), SUM(tokens_in), SUM(tokens_out), SUM(cost_usd)
		FROM llm_usage GROUP BY provider ORDER BY provider`)
	if err != nil {
		return nil, fmt.Errorf("query usage: %w", err)
	}
	defer rows.Close()

	var out []UsageSummary
	for rows.Next() {
		var u UsageSummary
		if err := rows.Scan(&u.Provider, &u.Calls, &u.TokensIn, &u.TokensOut, &u.CostUSD); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// IncidentsForRun returns the incidents recorded for a run, oldest first.
func (s *Store) IncidentsForRun(ctx context.Context, runID string) ([]core.Incident, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, node_id, category, detail, created_at
		FROM incidents WHERE run_id = ? ORDER BY created_at ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("query incidents: %w", err)
	}
	defer rows.Close()

	var out []core.Incident
	for rows.Next() {
		var inc core.Incident
		var nodeID sql.NullString
		if err := rows.Scan(&inc.ID, &inc.RunID, &nodeID, &inc.Category, &inc.Detail, &inc.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		inc.NodeID = nodeID.String
		out = append(out, inc)
	}
	return out, rows.Err()
}
