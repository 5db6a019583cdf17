package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/rpattn/accessmap/internal/domain"
)

const (
	mappingFilePrefix = "mapping_"
	mappingFileSuffix = ".json"
)

type fileLearnedMappingRepository struct {
	dir    string
	logger *zap.Logger
}

// NewFileLearnedMappingRepository stores one mapping_<fingerprint>.json
// document per record in dir, creating dir if needed.
func NewFileLearnedMappingRepository(dir string, logger *zap.Logger) (LearnedMappingRepository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create learning directory %s: %w", dir, err)
	}
	return &fileLearnedMappingRepository{dir: dir, logger: logger}, nil
}

func (r *fileLearnedMappingRepository) path(fingerprint string) string {
	return filepath.Join(r.dir, mappingFilePrefix+fingerprint+mappingFileSuffix)
}

// Save writes to a temporary file in the same directory and renames it over
// the target, so readers never observe a partial document.
func (r *fileLearnedMappingRepository) Save(ctx context.Context, record domain.LearnedMapping) error {
	if !ValidFingerprint(record.Fingerprint) {
		return fmt.Errorf("invalid fingerprint %q", record.Fingerprint)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal learned mapping: %w", err)
	}

	tmp, err := os.CreateTemp(r.dir, ".mapping-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write learned mapping: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync learned mapping: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close learned mapping: %w", err)
	}

	if err := os.Rename(tmpName, r.path(record.Fingerprint)); err != nil {
		return fmt.Errorf("failed to persist learned mapping: %w", err)
	}
	return nil
}

func (r *fileLearnedMappingRepository) Get(ctx context.Context, fingerprint string) (domain.LearnedMapping, error) {
	if !ValidFingerprint(fingerprint) {
		return domain.LearnedMapping{}, domain.ErrNotFound
	}
	return r.read(r.path(fingerprint))
}

func (r *fileLearnedMappingRepository) read(path string) (domain.LearnedMapping, error) {
	payload, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return domain.LearnedMapping{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.LearnedMapping{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var record domain.LearnedMapping
	if err := json.Unmarshal(payload, &record); err != nil {
		return domain.LearnedMapping{}, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	if record.Mappings == nil {
		record.Mappings = domain.DeviceMappings{}
	}
	return record, nil
}

func (r *fileLearnedMappingRepository) GetByFingerprints(ctx context.Context, fingerprints []string) ([]domain.LearnedMapping, error) {
	records := make([]domain.LearnedMapping, 0, len(fingerprints))
	for _, fingerprint := range fingerprints {
		record, err := r.Get(ctx, fingerprint)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// List skips unreadable documents with a warning rather than failing.
func (r *fileLearnedMappingRepository) List(ctx context.Context) ([]domain.LearnedMapping, error) {
	paths, err := filepath.Glob(filepath.Join(r.dir, mappingFilePrefix+"*"+mappingFileSuffix))
	if err != nil {
		return nil, fmt.Errorf("failed to list learned mappings: %w", err)
	}
	sort.Strings(paths)

	records := make([]domain.LearnedMapping, 0, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := r.read(path)
		if err != nil {
			r.logger.Warn("Skipping unreadable learned mapping", zap.String("path", path), zap.Error(err))
			continue
		}
		if record.Fingerprint == "" {
			record.Fingerprint = strings.TrimSuffix(strings.TrimPrefix(filepath.Base(path), mappingFilePrefix), mappingFileSuffix)
		}
		records = append(records, record)
	}
	return records, nil
}

func (r *fileLearnedMappingRepository) Delete(ctx context.Context, fingerprint string) error {
	if !ValidFingerprint(fingerprint) {
		return domain.ErrNotFound
	}
	err := os.Remove(r.path(fingerprint))
	if errors.Is(err, os.ErrNotExist) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete learned mapping: %w", err)
	}
	return nil
}
