// Package sqlstore is the SQLite-backed persistence for C6's two caches
// (VCR response cache, incremental-skip run history), C7's judge result
// cache, and the quarantine list of test ids excluded from a failing exit
// code, following the same database/sql + modernc.org/sqlite pattern used
// elsewhere in the example pack for embedded storage.
package sqlstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/assay-dev/assay/internal/domain/cache"
	"github.com/assay-dev/assay/internal/domain/judge"
	"github.com/assay-dev/assay/internal/domain/trace"
)

const schema = `
CREATE TABLE IF NOT EXISTS cache (
	key TEXT PRIMARY KEY,
	response_json TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	suite TEXT NOT NULL,
	started_at TEXT NOT NULL,
	status TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS results (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id INTEGER NOT NULL REFERENCES runs(id),
	test_id TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	outcome TEXT NOT NULL,
	score REAL,
	skip_reason TEXT,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_results_fingerprint ON results(fingerprint);
CREATE INDEX IF NOT EXISTS idx_results_run ON results(run_id);

CREATE TABLE IF NOT EXISTS judge_cache (
	key TEXT PRIMARY KEY,
	result_json TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS quarantine (
	test_id TEXT PRIMARY KEY,
	reason TEXT,
	added_at TEXT NOT NULL
);
`

// Store is a SQLite-backed cache.ResponseCache and cache.SkipChecker.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if necessary) the SQLite database at path and runs
// its migration. Pass ":memory:" for an ephemeral, test-only store.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	store := &Store{db: db, logger: logger}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	store.logger.Info("cache store initialized", "path", path)
	return store, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(schema)
	return err
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the underlying database connection is alive, satisfying
// the health-check HTTP adapter's StorePinger interface.
func (s *Store) Ping() error {
	return s.db.Ping()
}

// Get implements cache.ResponseCache.
func (s *Store) Get(key string) (trace.Response, bool, error) {
	var raw string
	err := s.db.QueryRow("SELECT response_json FROM cache WHERE key = ?", key).Scan(&raw)
	if err == sql.ErrNoRows {
		return trace.Response{}, false, nil
	}
	if err != nil {
		return trace.Response{}, false, fmt.Errorf("query cache: %w", err)
	}

	var resp trace.Response
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return trace.Response{}, false, fmt.Errorf("decode cached response: %w", err)
	}
	return resp, true, nil
}

// Put implements cache.ResponseCache.
func (s *Store) Put(key string, resp trace.Response) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode response for cache: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO cache(key, response_json, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET response_json = excluded.response_json, created_at = excluded.created_at`,
		key, string(raw), nowRFC3339(),
	)
	if err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	return nil
}

// CreateRun implements cache.SkipChecker.
func (s *Store) CreateRun(suite string) (int64, error) {
	res, err := s.db.Exec(
		"INSERT INTO runs(suite, started_at, status) VALUES (?, ?, ?)",
		suite, nowRFC3339(), "running",
	)
	if err != nil {
		return 0, fmt.Errorf("create run: %w", err)
	}
	return res.LastInsertId()
}

// FinalizeRun implements cache.SkipChecker.
func (s *Store) FinalizeRun(runID int64, status string) error {
	_, err := s.db.Exec("UPDATE runs SET status = ? WHERE id = ?", status, runID)
	if err != nil {
		return fmt.Errorf("finalize run: %w", err)
	}
	return nil
}

// RecordResult implements cache.SkipChecker.
func (s *Store) RecordResult(runID int64, testID, fingerprintHex, outcome string, score float64, skipReason string) error {
	_, err := s.db.Exec(
		`INSERT INTO results(run_id, test_id, fingerprint, outcome, score, skip_reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, testID, fingerprintHex, outcome, score, nullableString(skipReason), nowRFC3339(),
	)
	if err != nil {
		return fmt.Errorf("record result: %w", err)
	}
	return nil
}

// LastPassingByFingerprint implements cache.SkipChecker: it returns the
// most recent passing result recorded under fingerprintHex, across any run.
func (s *Store) LastPassingByFingerprint(fingerprintHex string) (*cache.SkipRecord, bool, error) {
	row := s.db.QueryRow(
		`SELECT r.run_id, runs.started_at, r.score
		 FROM results r
		 JOIN runs ON r.run_id = runs.id
		 WHERE r.fingerprint = ? AND r.outcome = 'pass'
		 ORDER BY r.id DESC
		 LIMIT 1`,
		fingerprintHex,
	)

	var rec cache.SkipRecord
	err := row.Scan(&rec.PreviousRunID, &rec.PreviousAt, &rec.PreviousScore)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query last passing result: %w", err)
	}
	rec.Reason = "fingerprint_match"
	return &rec, true, nil
}

// GetJudgeResult returns the judge result cached under key, if any.
func (s *Store) GetJudgeResult(key string) (judge.Result, bool, error) {
	var raw string
	err := s.db.QueryRow("SELECT result_json FROM judge_cache WHERE key = ?", key).Scan(&raw)
	if err == sql.ErrNoRows {
		return judge.Result{}, false, nil
	}
	if err != nil {
		return judge.Result{}, false, fmt.Errorf("query judge cache: %w", err)
	}

	var result judge.Result
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return judge.Result{}, false, fmt.Errorf("decode cached judge result: %w", err)
	}
	return result, true, nil
}

// PutJudgeResult stores result in the judge cache under key.
func (s *Store) PutJudgeResult(key string, result judge.Result) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode judge result for cache: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO judge_cache(key, result_json, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET result_json = excluded.result_json, created_at = excluded.created_at`,
		key, string(raw), nowRFC3339(),
	)
	if err != nil {
		return fmt.Errorf("write judge cache entry: %w", err)
	}
	return nil
}

// JudgeCache adapts Store's Get/Put-prefixed judge methods to the narrow
// judge.Cache shape, since Store already exposes an unprefixed Get/Put
// pair for cache.ResponseCache and Go has no method overloading.
type JudgeCache struct {
	store *Store
}

// NewJudgeCache wraps store as a judge.Cache.
func NewJudgeCache(store *Store) JudgeCache {
	return JudgeCache{store: store}
}

func (c JudgeCache) Get(key string) (judge.Result, bool, error) {
	return c.store.GetJudgeResult(key)
}

func (c JudgeCache) Put(key string, result judge.Result) error {
	return c.store.PutJudgeResult(key, result)
}

// AddQuarantine implements runner.QuarantineLookup's write side: it marks
// testID quarantined, recording reason for `quarantine list` to display.
func (s *Store) AddQuarantine(testID, reason string) error {
	_, err := s.db.Exec(
		`INSERT INTO quarantine(test_id, reason, added_at) VALUES (?, ?, ?)
		 ON CONFLICT(test_id) DO UPDATE SET reason = excluded.reason, added_at = excluded.added_at`,
		testID, nullableString(reason), nowRFC3339(),
	)
	if err != nil {
		return fmt.Errorf("add quarantine entry: %w", err)
	}
	return nil
}

// RemoveQuarantine clears testID's quarantine entry, if any.
func (s *Store) RemoveQuarantine(testID string) error {
	_, err := s.db.Exec("DELETE FROM quarantine WHERE test_id = ?", testID)
	if err != nil {
		return fmt.Errorf("remove quarantine entry: %w", err)
	}
	return nil
}

// IsQuarantined implements runner.QuarantineLookup.
func (s *Store) IsQuarantined(testID string) bool {
	var count int
	err := s.db.QueryRow("SELECT COUNT(1) FROM quarantine WHERE test_id = ?", testID).Scan(&count)
	if err != nil {
		s.logger.Warn("quarantine lookup failed", "test_id", testID, "error", err)
		return false
	}
	return count > 0
}

// QuarantineEntry is one row of the quarantine list.
type QuarantineEntry struct {
	TestID  string
	Reason  string
	AddedAt string
}

// ListQuarantine returns every quarantined test, ordered by when it was added.
func (s *Store) ListQuarantine() ([]QuarantineEntry, error) {
	rows, err := s.db.Query("SELECT test_id, COALESCE(reason, ''), added_at FROM quarantine ORDER BY added_at")
	if err != nil {
		return nil, fmt.Errorf("list quarantine entries: %w", err)
	}
	defer rows.Close()

	var out []QuarantineEntry
	for rows.Next() {
		var e QuarantineEntry
		if err := rows.Scan(&e.TestID, &e.Reason, &e.AddedAt); err != nil {
			return nil, fmt.Errorf("scan quarantine entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}
