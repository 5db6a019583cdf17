package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/rpattn/accessmap/internal/db"
	"github.com/rpattn/accessmap/internal/domain"
)

const learnedMappingColumns = `fingerprint, filename, learned_at, learned_by, device_count, has_human_corrections, mappings, file_info`

type learnedMappingRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewLearnedMappingRepository wires a repository backed by pgxpool.
func NewLearnedMappingRepository(pool *pgxpool.Pool, logger *zap.Logger) LearnedMappingRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &learnedMappingRepository{pool: pool, logger: logger}
}

func (r *learnedMappingRepository) Save(ctx context.Context, record domain.LearnedMapping) error {
	if r.pool == nil {
		return fmt.Errorf("learned mapping repository not initialized")
	}

	encoded, err := encodeMapping(record)
	if err != nil {
		return err
	}

	return db.WithTx(ctx, r.pool, r.logger, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO learned_mappings (`+learnedMappingColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (fingerprint) DO UPDATE SET
				filename = EXCLUDED.filename,
				learned_at = EXCLUDED.learned_at,
				learned_by = EXCLUDED.learned_by,
				device_count = EXCLUDED.device_count,
				has_human_corrections = EXCLUDED.has_human_corrections,
				mappings = EXCLUDED.mappings,
				file_info = EXCLUDED.file_info`,
			record.Fingerprint,
			record.Filename,
			record.LearnedAt,
			record.LearnedBy,
			record.DeviceCount,
			record.HasHumanCorrections,
			encoded.mappings,
			encoded.fileInfo,
		)
		if err != nil {
			return fmt.Errorf("failed to save learned mapping: %w", err)
		}
		return nil
	})
}

func (r *learnedMappingRepository) Get(ctx context.Context, fingerprint string) (domain.LearnedMapping, error) {
	if r.pool == nil {
		return domain.LearnedMapping{}, fmt.Errorf("learned mapping repository not initialized")
	}

	row := r.pool.QueryRow(ctx,
		`SELECT `+learnedMappingColumns+` FROM learned_mappings WHERE fingerprint = $1`, fingerprint)
	record, err := scanLearnedMapping(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.LearnedMapping{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.LearnedMapping{}, fmt.Errorf("failed to get learned mapping: %w", err)
	}
	return record, nil
}

func (r *learnedMappingRepository) GetByFingerprints(ctx context.Context, fingerprints []string) ([]domain.LearnedMapping, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("learned mapping repository not initialized")
	}
	if len(fingerprints) == 0 {
		return []domain.LearnedMapping{}, nil
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+learnedMappingColumns+` FROM learned_mappings WHERE fingerprint = ANY($1)`, fingerprints)
	if err != nil {
		return nil, fmt.Errorf("failed to query learned mappings: %w", err)
	}
	return collectLearnedMappings(rows)
}

func (r *learnedMappingRepository) List(ctx context.Context) ([]domain.LearnedMapping, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("learned mapping repository not initialized")
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+learnedMappingColumns+` FROM learned_mappings ORDER BY learned_at DESC, fingerprint`)
	if err != nil {
		return nil, fmt.Errorf("failed to list learned mappings: %w", err)
	}
	return collectLearnedMappings(rows)
}

func (r *learnedMappingRepository) Delete(ctx context.Context, fingerprint string) error {
	if r.pool == nil {
		return fmt.Errorf("learned mapping repository not initialized")
	}

	tag, err := r.pool.Exec(ctx, `DELETE FROM learned_mappings WHERE fingerprint = $1`, fingerprint)
	if err != nil {
		return fmt.Errorf("failed to delete learned mapping: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanLearnedMapping(row pgx.Row) (domain.LearnedMapping, error) {
	var (
		record    domain.LearnedMapping
		learnedAt pgtype.Timestamptz
		mappings  []byte
		fileInfo  []byte
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

	if learnedAt.Valid {
		record.LearnedAt = learnedAt.Time
	}
	if err := decodeMapping(&record, mappings, fileInfo); err != nil {
		return domain.LearnedMapping{}, err
	}
	return record, nil
}

func collectLearnedMappings(rows pgx.Rows) ([]domain.LearnedMapping, error) {
	defer rows.Close()

	records := []domain.LearnedMapping{}
	for rows.Next() {
		record, err := scanLearnedMapping(rows)
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
