package learning

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rpattn/accessmap/internal/auth"
	"github.com/rpattn/accessmap/internal/domain"
	"github.com/rpattn/accessmap/internal/repository"
)

const (
	exactConfidence   = 1.0
	similarConfidence = 0.8
)

// LookupResult describes the learned mapping that applies to an upload.
type LookupResult struct {
	Fingerprint string                `json:"fingerprint"`
	Match       domain.MatchType      `json:"match_type"`
	Confidence  float64               `json:"confidence"`
	Mappings    domain.DeviceMappings `json:"device_mappings"`
	Source      *domain.LearnedFile   `json:"source,omitempty"`
}

// Store is the learning store. Reads are served from an in-memory cache that
// is loaded at construction and kept current by saves and Refresh.
type Store struct {
	repo   repository.LearnedMappingRepository
	logger *zap.Logger
	now    func() time.Time

	mu    sync.RWMutex
	cache map[string]domain.LearnedMapping

	locks sync.Map
}

// NewStore creates a store and loads existing records. A failed load is
// logged and leaves the cache empty.
func NewStore(ctx context.Context, repo repository.LearnedMappingRepository, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		repo:   repo,
		logger: logger,
		now:    time.Now,
		cache:  make(map[string]domain.LearnedMapping),
	}
	if err := s.Refresh(ctx); err != nil {
		logger.Warn("Failed to load learned mappings", zap.Error(err))
	}
	return s
}

// Refresh reloads the cache from the repository.
func (s *Store) Refresh(ctx context.Context) error {
	records, err := s.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list learned mappings: %w", err)
	}

	cache := make(map[string]domain.LearnedMapping, len(records))
	for _, record := range records {
		cache[record.Fingerprint] = record
	}

	s.mu.Lock()
	s.cache = cache
	s.mu.Unlock()

	s.logger.Info("Loaded learned mappings", zap.Int("count", len(cache)))
	return nil
}

func (s *Store) lockFor(fingerprint string) *sync.Mutex {
	lock, _ := s.locks.LoadOrStore(fingerprint, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// SaveMapping persists the confirmed devices for an upload and returns its
// fingerprint. Saves for the same fingerprint are serialized; the last one wins.
func (s *Store) SaveMapping(ctx context.Context, table *domain.Table, filename string, mappings domain.DeviceMappings) (string, error) {
	if table == nil {
		table = domain.EmptyTable()
	}
	fingerprint := Fingerprint(table, filename)

	lock := s.lockFor(fingerprint)
	lock.Lock()
	defer lock.Unlock()

	record := domain.LearnedMapping{
		Fingerprint:         fingerprint,
		Filename:            filename,
		LearnedAt:           s.now().UTC(),
		DeviceCount:         len(mappings),
		Mappings:            mappings.Clone(),
		FileInfo:            fileInfo(table),
		HasHumanCorrections: mappings.HasHumanCorrections(),
	}
	if reviewer, ok := auth.ReviewerFromContext(ctx); ok {
		record.LearnedBy = reviewer
	}

	if err := s.repo.Save(ctx, record); err != nil {
		s.logger.Error("Failed to save learned mapping",
			zap.String("fingerprint", fingerprint),
			zap.String("filename", filename),
			zap.Error(err))
		return "", fmt.Errorf("failed to save learned mapping: %w", err)
	}

	s.mu.Lock()
	s.cache[fingerprint] = record
	s.mu.Unlock()

	s.logger.Info("Saved learned mapping",
		zap.String("fingerprint", fingerprint),
		zap.String("filename", filename),
		zap.Int("device_count", record.DeviceCount),
		zap.Bool("has_human_corrections", record.HasHumanCorrections))
	return fingerprint, nil
}

// GetLearnedMapping returns the devices learned for this exact upload, or an
// empty map.
func (s *Store) GetLearnedMapping(table *domain.Table, filename string) domain.DeviceMappings {
	record, ok := s.Get(Fingerprint(table, filename))
	if !ok {
		return domain.DeviceMappings{}
	}
	return record.Mappings.Clone()
}

// Get returns the cached record for a fingerprint.
func (s *Store) Get(fingerprint string) (domain.LearnedMapping, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.cache[fingerprint]
	if !ok {
		return domain.LearnedMapping{}, false
	}
	record.Mappings = record.Mappings.Clone()
	return record, true
}

// Lookup finds an exact fingerprint match, else the most recent mapping
// learned from a file with the same name stem.
func (s *Store) Lookup(table *domain.Table, filename string) LookupResult {
	fingerprint := Fingerprint(table, filename)
	result := LookupResult{
		Fingerprint: fingerprint,
		Match:       domain.MatchNone,
		Mappings:    domain.DeviceMappings{},
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if record, ok := s.cache[fingerprint]; ok {
		return matched(result, record, domain.MatchExact, exactConfidence)
	}

	stem := FileStem(filename)
	var best *domain.LearnedMapping
	for _, record := range s.cache {
		if FileStem(record.Filename) != stem {
			continue
		}
		if best == nil || record.LearnedAt.After(best.LearnedAt) ||
			(record.LearnedAt.Equal(best.LearnedAt) && record.Fingerprint < best.Fingerprint) {
			candidate := record
			best = &candidate
		}
	}
	if best != nil {
		return matched(result, *best, domain.MatchSimilar, similarConfidence)
	}
	return result
}

func matched(result LookupResult, record domain.LearnedMapping, match domain.MatchType, confidence float64) LookupResult {
	file := learnedFile(record)
	result.Match = match
	result.Confidence = confidence
	result.Mappings = record.Mappings.Clone()
	result.Source = &file
	return result
}

// ApplyToStaging replaces the staged proposal with a learned mapping when one
// applies to the upload. It reports whether a replacement happened.
func (s *Store) ApplyToStaging(staging *Staging, sessionID uuid.UUID, table *domain.Table, filename string) (LookupResult, bool, error) {
	result := s.Lookup(table, filename)
	if result.Match == domain.MatchNone {
		return result, false, nil
	}
	if _, err := staging.Replace(sessionID, result.Mappings, SourceLearned, result.Match); err != nil {
		return result, false, err
	}
	s.logger.Info("Applied learned mapping",
		zap.String("session_id", sessionID.String()),
		zap.String("fingerprint", result.Fingerprint),
		zap.String("match_type", string(result.Match)))
	return result, true, nil
}

// Summary lists learned files, newest first.
func (s *Store) Summary() domain.LearningSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := domain.LearningSummary{Files: make([]domain.LearnedFile, 0, len(s.cache))}
	for _, record := range s.cache {
		summary.TotalMappings++
		summary.TotalDevices += record.DeviceCount
		if record.HasHumanCorrections {
			summary.CorrectedMappings++
		}
		summary.Files = append(summary.Files, learnedFile(record))
	}
	sort.Slice(summary.Files, func(i, j int) bool {
		a, b := summary.Files[i], summary.Files[j]
		if !a.LearnedAt.Equal(b.LearnedAt) {
			return a.LearnedAt.After(b.LearnedAt)
		}
		return a.Fingerprint < b.Fingerprint
	})
	return summary
}

func learnedFile(record domain.LearnedMapping) domain.LearnedFile {
	return domain.LearnedFile{
		Fingerprint:         record.Fingerprint,
		Filename:            record.Filename,
		LearnedAt:           record.LearnedAt,
		DeviceCount:         record.DeviceCount,
		HasHumanCorrections: record.HasHumanCorrections,
	}
}

// Delete removes a learned mapping from storage and the cache.
func (s *Store) Delete(ctx context.Context, fingerprint string) error {
	lock := s.lockFor(fingerprint)
	lock.Lock()
	defer lock.Unlock()

	err := s.repo.Delete(ctx, fingerprint)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		s.logger.Error("Failed to delete learned mapping", zap.String("fingerprint", fingerprint), zap.Error(err))
		return fmt.Errorf("failed to delete learned mapping: %w", err)
	}

	s.mu.Lock()
	_, cached := s.cache[fingerprint]
	delete(s.cache, fingerprint)
	s.mu.Unlock()

	if err != nil && !cached {
		return err
	}
	s.logger.Info("Deleted learned mapping", zap.String("fingerprint", fingerprint))
	return nil
}
