// Package db persists normalization statistics in SQLite so they survive
// restarts.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"segloader/stats"
)

type StoreConfig struct {
	DBPath    string `yaml:"path" toml:"path"`
	EnableWAL bool   `yaml:"enable_wal" toml:"enable_wal"`
}

// StatsStore is a stats.Cache over a SQLite table keyed by file path,
// internal path, size and modification time.
type StatsStore struct {
	config StoreConfig
	db     *sql.DB
	logger *zap.Logger

	preparedStmts map[string]*sql.Stmt
	stmtLock      sync.RWMutex
}

const (
	selectStats = `SELECT pmin, pmax, mean, std FROM dataset_stats
        WHERE path = ? AND internal_path = ? AND size = ? AND mod_time = ?`
	upsertStats = `INSERT OR REPLACE INTO dataset_stats
        (path, internal_path, size, mod_time, pmin, pmax, mean, std)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
)

func NewStatsStore(config StoreConfig, logger *zap.Logger) (*StatsStore, error) {
	if config.DBPath == "" {
		return nil, errors.New("stats store: empty database path")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &StatsStore{
		config:        config,
		logger:        logger,
		preparedStmts: make(map[string]*sql.Stmt),
	}
	if err := s.initDB(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *StatsStore) initDB() error {
	if err := os.MkdirAll(filepath.Dir(s.config.DBPath), 0o755); err != nil {
		return fmt.Errorf("create database directory failed: %w", err)
	}

	dsn := s.config.DBPath
	if s.config.EnableWAL {
		dsn += "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	} else {
		dsn += "?_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return fmt.Errorf("open database failed: %w", err)
	}
	s.db = db

	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(1 * time.Hour)

	query := `CREATE TABLE IF NOT EXISTS dataset_stats (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            path TEXT NOT NULL,
            internal_path TEXT NOT NULL,
            size INTEGER NOT NULL,
            mod_time INTEGER NOT NULL,
            pmin REAL NOT NULL,
            pmax REAL NOT NULL,
            mean REAL NOT NULL,
            std REAL NOT NULL,
            created_at INTEGER DEFAULT (strftime('%s', 'now')),
            UNIQUE(path, internal_path, size, mod_time)
        )`
	if _, err := db.Exec(query); err != nil {
		db.Close()
		return fmt.Errorf("create tables failed: %w", err)
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_stats_path ON dataset_stats(path)`); err != nil {
		s.logger.Warn("create index failed", zap.Error(err))
	}
	return nil
}

// Get implements stats.Cache.
func (s *StatsStore) Get(ctx context.Context, key stats.Key) (stats.Stats, bool, error) {
	stmt, err := s.getPreparedStmt(selectStats)
	if err != nil {
		return stats.Stats{}, false, err
	}

	var st stats.Stats
	err = stmt.QueryRowContext(ctx, key.Path, key.InternalPath, key.Size, key.ModTime.Unix()).
		Scan(&st.PMin, &st.PMax, &st.Mean, &st.Std)
	if errors.Is(err, sql.ErrNoRows) {
		return stats.Stats{}, false, nil
	}
	if err != nil {
		return stats.Stats{}, false, fmt.Errorf("query stats for %s: %w", key, err)
	}
	return st, true, nil
}

// Put implements stats.Cache. Entries for older versions of the same file are
// dropped.
func (s *StatsStore) Put(ctx context.Context, key stats.Key, st stats.Stats) error {
	if st.Skipped {
		return nil
	}
	stmt, err := s.getPreparedStmt(upsertStats)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM dataset_stats WHERE path = ? AND internal_path = ? AND (size != ? OR mod_time != ?)`,
		key.Path, key.InternalPath, key.Size, key.ModTime.Unix()); err != nil {
		return fmt.Errorf("drop stale stats for %s: %w", key.Path, err)
	}
	if _, err := tx.StmtContext(ctx, stmt).ExecContext(ctx,
		key.Path, key.InternalPath, key.Size, key.ModTime.Unix(),
		st.PMin, st.PMax, st.Mean, st.Std); err != nil {
		return fmt.Errorf("store stats for %s: %w", key, err)
	}
	return tx.Commit()
}

// Delete removes every entry recorded for path.
func (s *StatsStore) Delete(ctx context.Context, path string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM dataset_stats WHERE path = ?`, path)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *StatsStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dataset_stats`).Scan(&n)
	return n, err
}

func (s *StatsStore) getPreparedStmt(query string) (*sql.Stmt, error) {
	s.stmtLock.RLock()
	stmt, ok := s.preparedStmts[query]
	s.stmtLock.RUnlock()
	if ok {
		return stmt, nil
	}

	stmt, err := s.db.Prepare(query)
	if err != nil {
		return nil, err
	}

	s.stmtLock.Lock()
	defer s.stmtLock.Unlock()
	if existing, ok := s.preparedStmts[query]; ok {
		stmt.Close()
		return existing, nil
	}
	s.preparedStmts[query] = stmt
	return stmt, nil
}

func (s *StatsStore) Close() error {
	s.stmtLock.Lock()
	for _, stmt := range s.preparedStmts {
		if err := stmt.Close(); err != nil {
			s.logger.Warn("failed to close statement", zap.Error(err))
		}
	}
	s.preparedStmts = make(map[string]*sql.Stmt)
	s.stmtLock.Unlock()

	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
