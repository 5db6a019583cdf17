package mappingloader

import (
	"context"
	"time"

	"github.com/graph-gophers/dataloader"

	"github.com/rpattn/accessmap/internal/domain"
	"github.com/rpattn/accessmap/internal/repository"
)

// MappingLoader batches learned mapping lookups by fingerprint.
type MappingLoader struct {
	Loader *dataloader.Loader
}

func NewMappingLoader(repo repository.LearnedMappingRepository) *MappingLoader {
	batchFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		fingerprints := keys.Keys()

		records, err := repo.GetByFingerprints(ctx, fingerprints)
		if err != nil {
			results := make([]*dataloader.Result, len(keys))
			for i := range results {
				results[i] = &dataloader.Result{Error: err}
			}
			return results
		}

		byFingerprint := make(map[string]domain.LearnedMapping, len(records))
		for _, record := range records {
			byFingerprint[record.Fingerprint] = record
		}

		// Results must line up with keys.
		results := make([]*dataloader.Result, len(keys))
		for i, fingerprint := range fingerprints {
			if record, ok := byFingerprint[fingerprint]; ok {
				results[i] = &dataloader.Result{Data: record}
			} else {
				results[i] = &dataloader.Result{Data: nil}
			}
		}

		return results
	}

	loader := dataloader.NewBatchedLoader(batchFn, dataloader.WithWait(5*time.Millisecond))

	return &MappingLoader{Loader: loader}
}

// LoadMany resolves fingerprints in one batch. Unknown fingerprints are
// omitted from the returned map.
func (l *MappingLoader) LoadMany(ctx context.Context, fingerprints []string) (map[string]domain.LearnedMapping, error) {
	keys := dataloader.NewKeysFromStrings(fingerprints)
	values, errs := l.Loader.LoadMany(ctx, keys)()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	out := make(map[string]domain.LearnedMapping, len(fingerprints))
	for _, value := range values {
		if record, ok := value.(domain.LearnedMapping); ok {
			out[record.Fingerprint] = record
		}
	}
	return out, nil
}
