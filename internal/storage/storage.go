package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/bdougie/truthlens/internal/models"
)

const batchSize = 10 // Number of reports to batch write

// ErrNotFound is returned when a lookup matches nothing
var ErrNotFound = eris.New("report not found")

// Record is one archived forensic report
type Record struct {
	ID        string         `json:"id"`
	VideoName string         `json:"videoName"`
	Verdict   string         `json:"verdict"`
	Report    *models.Report `json:"report"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Match is a record together with its distance from a query report
type Match struct {
	Record
	Distance float64 `json:"distance"`
}

// Storage defines the interface for archiving finished reports
type Storage interface {
	// SaveReport archives a single report
	SaveReport(ctx context.Context, rec Record) error

	// Flush ensures all pending reports are saved
	Flush() error

	// Close flushes and releases resources
	Close() error
}

// Lister is implemented by archives that can read reports back
type Lister interface {
	ListReports(ctx context.Context, limit int) ([]Record, error)
}

// Searcher is implemented by archives with similarity search
type Searcher interface {
	SearchSimilar(ctx context.Context, report *models.Report, limit int) ([]Match, error)
}

// Discard drops every report
type Discard struct{}

func (Discard) SaveReport(context.Context, Record) error { return nil }
func (Discard) Flush() error                              { return nil }
func (Discard) Close() error                              { return nil }

// FileStorage batches reports into a JSON array on disk
type FileStorage struct {
	mu      sync.Mutex
	pending []Record
	path    string
}

// NewFileStorage creates a file archive writing to dir/reports.json
func NewFileStorage(dir string) *FileStorage {
	return &FileStorage{
		path: filepath.Join(dir, "reports.json"),
	}
}

// Path is the JSON file the archive writes to
func (s *FileStorage) Path() string {
	return s.path
}

// SaveReport adds a report to the batch and flushes if the batch is full
func (s *FileStorage) SaveReport(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, rec)

	// Write to disk when batch is full
	if len(s.pending) >= batchSize {
		return s.flush()
	}
	return nil
}

// Flush writes all pending reports to disk
func (s *FileStorage) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flush()
}

// Close flushes whatever is left
func (s *FileStorage) Close() error {
	return s.Flush()
}

// ListReports returns archived and pending reports, newest first
func (s *FileStorage) ListReports(ctx context.Context, limit int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.read()
	if err != nil {
		return nil, err
	}
	all := append(existing, s.pending...)
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// Internal flush implementation
func (s *FileStorage) flush() error {
	if len(s.pending) == 0 {
		return nil
	}

	existing, err := s.read()
	if err != nil {
		return err
	}
	all := append(existing, s.pending...)

	// Create directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return eris.Wrap(err, "failed to create archive directory")
	}

	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return eris.Wrap(err, "failed to encode reports")
	}

	// Write beside the target and rename so readers never see a torn file
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return eris.Wrap(err, "failed to write reports file")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return eris.Wrap(err, "failed to replace reports file")
	}

	s.pending = nil // Clear the batch
	return nil
}

func (s *FileStorage) read() ([]Record, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "failed to read reports file")
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, eris.Wrap(err, "failed to unmarshal existing reports")
	}
	return records, nil
}

// Config selects and configures the archive backend
type Config struct {
	Driver   string
	Dir      string
	Postgres PostgresConfig
}

// Open builds the archive named by cfg.Driver: none, file or postgres
func Open(ctx context.Context, cfg Config) (Storage, error) {
	switch cfg.Driver {
	case "", "none":
		return Discard{}, nil
	case "file":
		return NewFileStorage(cfg.Dir), nil
	case "postgres":
		return NewPostgresStorage(ctx, cfg.Postgres)
	default:
		return nil, eris.Errorf("unknown archive driver %q", cfg.Driver)
	}
}
