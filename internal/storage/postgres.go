package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/rotisserie/eris"

	"github.com/bdougie/truthlens/internal/models"
)

// PostgresConfig holds connection details for PostgreSQL
type PostgresConfig struct {
	// URL, when set, takes precedence over the individual fields
	URL      string
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

// ConnString returns the connection URL for cfg
func (c PostgresConfig) ConnString() string {
	if c.URL != "" {
		return c.URL
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   c.Host + ":" + c.Port,
		Path:   "/" + c.DBName,
	}
	return u.String()
}

// Pool is the subset of pgxpool.Pool the archive needs
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStorage archives reports in PostgreSQL with a pgvector signature
type PostgresStorage struct {
	pool Pool
}

// Connect opens and pings a connection pool
func Connect(ctx context.Context, cfg PostgresConfig) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, cfg.ConnString())
	if err != nil {
		return nil, eris.Wrap(err, "failed to connect to database")
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "failed to ping database")
	}
	return pool, nil
}

// NewPostgresStorage connects to PostgreSQL and returns an archive on top of it
func NewPostgresStorage(ctx context.Context, cfg PostgresConfig) (*PostgresStorage, error) {
	pool, err := Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewPostgresStorageWithPool(pool), nil
}

// NewPostgresStorageWithPool wraps an existing pool
func NewPostgresStorageWithPool(pool Pool) *PostgresStorage {
	return &PostgresStorage{pool: pool}
}

// Close closes the database connection
func (s *PostgresStorage) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// Flush is a no-op as reports are written immediately
func (s *PostgresStorage) Flush() error {
	return nil
}

// SaveReport inserts one report with its signature vector
func (s *PostgresStorage) SaveReport(ctx context.Context, rec Record) error {
	payload, err := json.Marshal(rec.Report)
	if err != nil {
		return eris.Wrap(err, "failed to encode report")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO reports
        (id, video_name, verdict, overall_score, confidence, payload, signature, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, rec.VideoName, rec.Verdict, rec.Report.OverallScore, rec.Report.Confidence,
		string(payload), pgvector.NewVector(Signature(rec.Report)), rec.CreatedAt)
	if err != nil {
		return eris.Wrapf(err, "failed to store report %s", rec.ID)
	}
	return nil
}

// GetReport loads a single report by id
func (s *PostgresStorage) GetReport(ctx context.Context, id string) (*Record, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, video_name, verdict, payload, created_at
        FROM reports
        WHERE id = $1`, id)

	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "id %s", id)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListReports returns the newest reports first
func (s *PostgresStorage) ListReports(ctx context.Context, limit int) ([]Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, video_name, verdict, payload, created_at
        FROM reports
        ORDER BY created_at DESC
        LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "failed to list reports")
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, eris.Wrap(rows.Err(), "failed to read reports")
}

// SearchSimilar finds archived reports whose detection profile is closest to report
func (s *PostgresStorage) SearchSimilar(ctx context.Context, report *models.Report, limit int) ([]Match, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, video_name, verdict, payload, created_at,
        signature <-> $1 AS distance
        FROM reports
        ORDER BY signature <-> $1
        LIMIT $2`,
		pgvector.NewVector(Signature(report)), limit)
	if err != nil {
		return nil, eris.Wrap(err, "failed to search similar reports")
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var (
			m       Match
			payload []byte
		)
		if err := rows.Scan(&m.ID, &m.VideoName, &m.Verdict, &payload, &m.CreatedAt, &m.Distance); err != nil {
			return nil, eris.Wrap(err, "failed to scan search results")
		}
		if m.Report, err = decodePayload(payload); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, eris.Wrap(rows.Err(), "failed to read search results")
}

func scanRecord(row pgx.Row) (*Record, error) {
	var (
		rec     Record
		payload []byte
	)
	if err := row.Scan(&rec.ID, &rec.VideoName, &rec.Verdict, &payload, &rec.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "failed to scan report")
	}
	report, err := decodePayload(payload)
	if err != nil {
		return nil, err
	}
	rec.Report = report
	return &rec, nil
}

func decodePayload(payload []byte) (*models.Report, error) {
	var report models.Report
	if err := json.Unmarshal(payload, &report); err != nil {
		return nil, eris.Wrap(err, "failed to decode report payload")
	}
	return &report, nil
}

// InitSchema creates the vector extension, reports table and indexes if they don't exist
func InitSchema(ctx context.Context, pool Pool) error {
	// Check if vector extension exists
	var exists bool
	err := pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM pg_extension WHERE extname = 'vector')").Scan(&exists)
	if err != nil {
		return eris.Wrap(err, "failed to check for vector extension")
	}

	// Create vector extension if it doesn't exist
	if !exists {
		if _, err := pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
			return eris.Wrap(err, "failed to create vector extension")
		}
	}

	_, err = pool.Exec(ctx, fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS reports (
            id TEXT PRIMARY KEY,
            video_name TEXT NOT NULL,
            verdict TEXT NOT NULL,
            overall_score DOUBLE PRECISION NOT NULL,
            confidence DOUBLE PRECISION NOT NULL,
            payload JSONB NOT NULL,
            signature vector(%d) NOT NULL,
            created_at TIMESTAMPTZ NOT NULL
        )`, SignatureDims))
	if err != nil {
		return eris.Wrap(err, "failed to create database schema")
	}

	// Create indexes
	_, err = pool.Exec(ctx, `
        CREATE INDEX IF NOT EXISTS idx_reports_created_at ON reports(created_at DESC);
        CREATE INDEX IF NOT EXISTS idx_reports_verdict ON reports(verdict);
        CREATE INDEX IF NOT EXISTS idx_reports_signature ON reports USING ivfflat (signature vector_l2_ops) WITH (lists = 100);
    `)
	if err != nil {
		return eris.Wrap(err, "failed to create database indexes")
	}

	return nil
}
