// Package pipeline runs an upload through ingestion, inference and the
// learning store, and drives the human review that follows.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rpattn/accessmap/internal/domain"
	"github.com/rpattn/accessmap/internal/inference"
	"github.com/rpattn/accessmap/internal/ingestion"
	"github.com/rpattn/accessmap/internal/learning"
)

// ErrSaveFailed wraps learning store write failures on confirm.
var ErrSaveFailed = errors.New("your correction could not be saved")

// Pipeline wires the processing stages together.
type Pipeline struct {
	ingest    *ingestion.Service
	generator *inference.Generator
	store     *learning.Store
	staging   *learning.Staging
	logger    *zap.Logger
	now       func() time.Time
}

// New creates a pipeline. A nil logger disables logging.
func New(ingest *ingestion.Service, generator *inference.Generator, store *learning.Store, staging *learning.Staging, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if generator == nil {
		generator = inference.NewGenerator(logger)
	}
	return &Pipeline{
		ingest:    ingest,
		generator: generator,
		store:     store,
		staging:   staging,
		logger:    logger,
		now:       time.Now,
	}
}

// UploadResult is the outcome of an upload. Session is nil when the upload
// could not be staged for review.
type UploadResult struct {
	Ingestion ingestion.Result
	Session   *learning.Session
	Lookup    learning.LookupResult
}

// Upload processes raw bytes with the suggested column mapping.
func (p *Pipeline) Upload(ctx context.Context, raw []byte, filename string) UploadResult {
	return p.stage(ctx, p.ingest.Process(ctx, raw, filename))
}

// UploadWithMapping processes raw bytes with a human-confirmed column mapping.
func (p *Pipeline) UploadWithMapping(ctx context.Context, raw []byte, filename string, manual map[string]string) UploadResult {
	return p.stage(ctx, p.ingest.ProcessWithMapping(ctx, raw, filename, manual))
}

func (p *Pipeline) stage(ctx context.Context, processed ingestion.Result) UploadResult {
	out := UploadResult{
		Ingestion: processed,
		Lookup:    learning.LookupResult{Match: domain.MatchNone, Mappings: domain.DeviceMappings{}},
	}
	if !processed.Valid {
		p.logger.Info("Upload not staged",
			zap.String("filename", processed.Filename),
			zap.Strings("issues", processed.Issues.Messages()))
		return out
	}

	table := processed.Table
	devices := p.generator.GenerateAll(table.UniqueValues(string(domain.RoleDoorID)))
	session := p.staging.Stage(learning.Session{
		Filename:    processed.Filename,
		Fingerprint: learning.Fingerprint(table, processed.Filename),
		Table:       table,
		Mapping:     processed.Mapping,
		Issues:      processed.Issues,
		Devices:     devices,
		Source:      learning.SourceInferred,
		Match:       domain.MatchNone,
	})

	lookup, applied, err := p.store.ApplyToStaging(p.staging, session.ID, table, processed.Filename)
	out.Lookup = lookup
	if err != nil {
		p.logger.Warn("Failed to apply learned mapping", zap.String("session_id", session.ID.String()), zap.Error(err))
	} else if applied {
		if refreshed, err := p.staging.Get(session.ID); err == nil {
			session = refreshed
		}
	}

	p.logger.Info("Upload staged for review",
		zap.String("session_id", session.ID.String()),
		zap.String("filename", session.Filename),
		zap.String("fingerprint", session.Fingerprint),
		zap.Int("device_count", len(session.Devices)),
		zap.String("source", string(session.Source)))

	out.Session = &session
	return out
}

// Session returns a staged review.
func (p *Pipeline) Session(id uuid.UUID) (learning.Session, error) {
	return p.staging.Get(id)
}

// Edit applies human corrections to a staged review.
func (p *Pipeline) Edit(ctx context.Context, id uuid.UUID, edits map[string]domain.DeviceEdit) (learning.Session, error) {
	session, err := p.staging.Get(id)
	if err != nil {
		return learning.Session{}, err
	}
	devices, err := learning.ApplyEdits(session.Devices, edits, p.now())
	if err != nil {
		return learning.Session{}, err
	}
	updated, err := p.staging.Replace(id, devices, session.Source, session.Match)
	if err != nil {
		return learning.Session{}, err
	}
	p.logger.Info("Applied device edits",
		zap.String("session_id", id.String()),
		zap.Int("edited", len(edits)))
	return updated, nil
}

// Confirmation reports what was persisted.
type Confirmation struct {
	SessionID           uuid.UUID `json:"session_id"`
	Fingerprint         string    `json:"fingerprint"`
	Filename            string    `json:"filename"`
	DeviceCount         int       `json:"device_count"`
	HasHumanCorrections bool      `json:"has_human_corrections"`
}

// Confirm persists the reviewed devices and closes the session. On a storage
// failure the session is kept so the reviewer can retry.
func (p *Pipeline) Confirm(ctx context.Context, id uuid.UUID) (Confirmation, error) {
	session, err := p.staging.Get(id)
	if err != nil {
		return Confirmation{}, err
	}

	fingerprint, err := p.store.SaveMapping(ctx, session.Table, session.Filename, session.Devices)
	if err != nil {
		return Confirmation{}, fmt.Errorf("%w: %w", ErrSaveFailed, err)
	}
	if err := p.staging.Clear(id); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		return Confirmation{}, err
	}

	return Confirmation{
		SessionID:           id,
		Fingerprint:         fingerprint,
		Filename:            session.Filename,
		DeviceCount:         len(session.Devices),
		HasHumanCorrections: session.Devices.HasHumanCorrections(),
	}, nil
}

// Discard drops a staged review without saving it.
func (p *Pipeline) Discard(id uuid.UUID) error {
	return p.staging.Clear(id)
}
