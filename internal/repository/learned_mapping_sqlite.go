package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/rpattn/accessmap/internal/domain"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS learned_mappings (
	fingerprint           TEXT PRIMARY KEY,
	filename              TEXT NOT NULL,
	learned_at            TEXT NOT NULL,
	learned_by            TEXT NOT NULL DEFAULT '',
	device_count          INTEGER NOT NULL DEFAULT 0,
	has_human_corrections INTEGER NOT NULL DEFAULT 0,
	mappings              TEXT NOT NULL,
	file_info             TEXT NOT NULL
)`

const sqliteColumns = `fingerprint, filename, learned_at, learned_by, device_count, has_human_corrections, mappings, file_info`

// SQLiteLearnedMappingRepository keeps learned mappings in a single SQLite file.
type SQLiteLearnedMappingRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteLearnedMappingRepository opens (or creates) the database at path.
func NewSQLiteLearnedMappingRepository(ctx context.Context, path string, logger *zap.Logger) (*SQLiteLearnedMappingRepository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single writer avoids SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create learned_mappings table: %w", err)
	}

	logger.Info("Opened sqlite learning store", zap.String("path", path))
	return &SQLiteLearnedMappingRepository{db: db, logger: logger}, nil
}

// Close releases the database handle.
func (r *SQLiteLearnedMappingRepository) Close() error {
	return r.db.Close()
}

func (r *SQLiteLearnedMappingRepository) Save(ctx context.Context, record domain.LearnedMapping) error {
	encoded, err := encodeMapping(record)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO learned_mappings (`+sqliteColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(fingerprint) DO UPDATE SET
			filename = excluded.filename,
			learned_at = excluded.learned_at,
			learned_by = excluded.learned_by,
			device_count = excluded.device_count,
			has_human_corrections = excluded.has_human_corrections,
			mappings = excluded.mappings,
			file_info = excluded.file_info`,
		record.Fingerprint,
		record.Filename,
		formatTime(record.LearnedAt),
		record.LearnedBy,
		record.DeviceCount,
		record.HasHumanCorrections,
		string(encoded.mappings),
		string(encoded.fileInfo),
	)
	if err != nil {
		return fmt.Errorf("failed to save learned mapping: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit learned mapping: %w", err)
	}
	return nil
}

func (r *SQLiteLearnedMappingRepository) Get(ctx context.Context, fingerprint string) (domain.LearnedMapping, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sqliteColumns+` FROM learned_mappings WHERE fingerprint = ?`, fingerprint)
	record, err := scanSQLiteMapping(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.LearnedMapping{}, domain.ErrNotFound
	}
	return record, err
}

func (r *SQLiteLearnedMappingRepository) GetByFingerprints(ctx context.Context, fingerprints []string) ([]domain.LearnedMapping, error) {
	if len(fingerprints) == 0 {
		return []domain.LearnedMapping{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(fingerprints)), ",")
	args := make([]any, len(fingerprints))
	for i, fingerprint := range fingerprints {
		args[i] = fingerprint
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sqliteColumns+` FROM learned_mappings WHERE fingerprint IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query learned mappings: %w", err)
	}
	return collectSQLiteMappings(rows)
}

func (r *SQLiteLearnedMappingRepository) List(ctx context.Context) ([]domain.LearnedMapping, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sqliteColumns+` FROM learned_mappings ORDER BY learned_at DESC, fingerprint`)
	if err != nil {
		return nil, fmt.Errorf("failed to list learned mappings: %w", err)
	}
	return collectSQLiteMappings(rows)
}

func (r *SQLiteLearnedMappingRepository) Delete(ctx context.Context, fingerprint string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM learned_mappings WHERE fingerprint = ?`, fingerprint)
	if err != nil {
		return fmt.Errorf("failed to delete learned mapping: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete learned mapping: %w", err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteMapping(row rowScanner) (domain.LearnedMapping, error) {
	var (
		record    domain.LearnedMapping
		learnedAt string
		mappings  string
		fileInfo  string
	)
	if err := row.Scan(
		&record.Fingerprint,
		&record.Filename,
		&learnedAt,
		&record.LearnedBy,
		&record.DeviceCount,
		&record.HasHumanCorrections,
		&mappings,
		&fileInfo,
	); err != nil {
		return domain.LearnedMapping{}, err
	}

	ts, err := parseTime(learnedAt)
	if err != nil {
		return domain.LearnedMapping{}, err
	}
	record.LearnedAt = ts

	if err := decodeMapping(&record, []byte(mappings), []byte(fileInfo)); err != nil {
		return domain.LearnedMapping{}, err
	}
	return record, nil
}

func collectSQLiteMappings(rows *sql.Rows) ([]domain.LearnedMapping, error) {
	defer rows.Close()

	records := []domain.LearnedMapping{}
	for rows.Next() {
		record, err := scanSQLiteMapping(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan learned mapping: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate learned mappings: %w", err)
	}
	return records, nil
}
