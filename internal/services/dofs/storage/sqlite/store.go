// Package sqlite provides a SQLite-backed model weights store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/louisbranch/dofsim/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/dofsim/internal/services/dofs/storage"
	"github.com/louisbranch/dofsim/internal/services/dofs/storage/sqlite/migrations"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Store persists model weights in SQLite.
type Store struct {
	sqlDB    *sql.DB
	readOnly bool
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens an existing weights file read-only. A missing file reports
// storage.ErrNotFound instead of creating an empty database.
func Open(path string) (*Store, error) {
	cleanPath, err := cleanStoragePath(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(cleanPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("weights file %s: %w", cleanPath, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("stat weights file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("weights file %s is a directory", cleanPath)
	}

	sqlDB, err := sql.Open("sqlite", cleanPath+"?_pragma=query_only(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	return &Store{sqlDB: sqlDB, readOnly: true}, nil
}

// Create opens or creates a writable weights file and applies embedded
// migrations.
func Create(ctx context.Context, path string) (*Store, error) {
	cleanPath, err := cleanStoragePath(path)
	if err != nil {
		return nil, err
	}
	sqlDB, err := sql.Open("sqlite", cleanPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.Apply(ctx, sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

func cleanStoragePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("storage path is required")
	}
	return filepath.Clean(path), nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// PutTensor inserts one parameter tensor.
func (s *Store) PutTensor(ctx context.Context, tensor storage.Tensor) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if s.readOnly {
		return fmt.Errorf("weights store is read-only")
	}
	layer := strings.TrimSpace(tensor.Layer)
	name := strings.TrimSpace(tensor.Name)
	if layer == "" {
		return fmt.Errorf("layer is required")
	}
	if name == "" {
		return fmt.Errorf("tensor name is required")
	}
	size := 1
	for _, d := range tensor.Shape {
		if d <= 0 {
			return fmt.Errorf("shape %v must be positive", tensor.Shape)
		}
		size *= d
	}
	if size != len(tensor.Data) {
		return fmt.Errorf("shape %v holds %d values, got %d", tensor.Shape, size, len(tensor.Data))
	}
	shape, err := json.Marshal(tensor.Shape)
	if err != nil {
		return fmt.Errorf("encode shape: %w", err)
	}
	createdAt := tensor.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO tensors (layer, name, shape, data, created_at) VALUES (?, ?, ?, ?, ?)`,
		layer,
		name,
		string(shape),
		encodeFloat32(tensor.Data),
		toMillis(createdAt),
	)
	if err != nil {
		if isTensorUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("put tensor: %w", err)
	}
	return nil
}

// GetTensor returns one parameter tensor.
func (s *Store) GetTensor(ctx context.Context, layer, name string) (storage.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return storage.Tensor{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Tensor{}, fmt.Errorf("storage is not configured")
	}
	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT layer, name, shape, data, created_at
		   FROM tensors
		  WHERE layer = ? AND name = ?`,
		strings.TrimSpace(layer),
		strings.TrimSpace(name),
	)
	tensor, err := scanTensor(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Tensor{}, storage.ErrNotFound
		}
		return storage.Tensor{}, fmt.Errorf("get tensor: %w", err)
	}
	return tensor, nil
}

// ListTensors returns every stored tensor ordered by layer and name.
func (s *Store) ListTensors(ctx context.Context) ([]storage.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT layer, name, shape, data, created_at
		   FROM tensors
		  ORDER BY layer ASC, name ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list tensors: %w", err)
	}
	defer rows.Close()

	var tensors []storage.Tensor
	for rows.Next() {
		tensor, err := scanTensor(rows)
		if err != nil {
			return nil, fmt.Errorf("list tensors: %w", err)
		}
		tensors = append(tensors, tensor)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tensors: %w", err)
	}
	return tensors, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTensor(row scanner) (storage.Tensor, error) {
	var (
		tensor    storage.Tensor
		shape     string
		data      []byte
		createdAt int64
	)
	if err := row.Scan(&tensor.Layer, &tensor.Name, &shape, &data, &createdAt); err != nil {
		return storage.Tensor{}, err
	}
	if err := json.Unmarshal([]byte(shape), &tensor.Shape); err != nil {
		return storage.Tensor{}, fmt.Errorf("decode shape of %s/%s: %w", tensor.Layer, tensor.Name, err)
	}
	values, err := decodeFloat32(data)
	if err != nil {
		return storage.Tensor{}, fmt.Errorf("decode data of %s/%s: %w", tensor.Layer, tensor.Name, err)
	}
	tensor.Data = values
	tensor.CreatedAt = fromMillis(createdAt)
	return tensor, nil
}

func encodeFloat32(values []float64) []byte {
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(float32(v)))
	}
	return buf
}

func decodeFloat32(buf []byte) ([]float64, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("blob length %d is not a multiple of 4", len(buf))
	}
	values := make([]float64, len(buf)/4)
	for i := range values {
		values[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:])))
	}
	return values, nil
}

func isTensorUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique constraint failed") &&
		strings.Contains(message, "tensors.")
}

var (
	_ storage.WeightsReader = (*Store)(nil)
	_ storage.WeightsWriter = (*Store)(nil)
)
