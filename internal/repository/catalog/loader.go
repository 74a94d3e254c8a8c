// Package catalog loads the course catalog snapshot from blob storage and
// keeps it cached in memory under a configurable staleness policy.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/coursedex/internal/blob"
	"github.com/kailas-cloud/coursedex/internal/domain"
	"github.com/kailas-cloud/coursedex/internal/domain/course"
)

// Catalog is the parsed content of one snapshot blob.
type Catalog struct {
	Courses []course.Summary
	Skipped int  // malformed entries left out
	Missing bool // the blob does not exist
}

// Loader reads {"courses": [...]} from a blob source.
type Loader struct {
	src    blob.Source
	name   string
	logger *zap.Logger
}

// NewLoader creates a loader for the blob called name. Compressed snapshots
// are recognised by extension (e.g. all_courses_data.json.zst).
func NewLoader(src blob.Source, name string, logger *zap.Logger) *Loader {
	return &Loader{src: src, name: name, logger: logger}
}

// Load reads and parses the snapshot. A missing blob is an empty catalog,
// not an error. An unreadable or unparsable blob wraps domain.ErrCatalogLoad.
func (l *Loader) Load(ctx context.Context) (Catalog, error) {
	rc, err := blob.OpenDecoded(ctx, l.src, l.name)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			l.logger.Warn("Catalog snapshot not found, serving empty catalog", zap.String("blob", l.name))
			return Catalog{Missing: true}, nil
		}
		return Catalog{}, fmt.Errorf("%w: open %s: %w", domain.ErrCatalogLoad, l.name, err)
	}
	defer func() { _ = rc.Close() }()

	var raw struct {
		Courses []json.RawMessage `json:"courses"`
	}
	if err := json.NewDecoder(rc).Decode(&raw); err != nil {
		return Catalog{}, fmt.Errorf("%w: decode %s: %w", domain.ErrCatalogLoad, l.name, err)
	}

	cat := Catalog{Courses: make([]course.Summary, 0, len(raw.Courses))}
	for i, entry := range raw.Courses {
		s, err := course.DecodeSummary(entry)
		if err != nil {
			cat.Skipped++
			l.logger.Warn("Skipping malformed catalog entry",
				zap.String("blob", l.name),
				zap.Int("index", i),
				zap.Error(err),
			)
			continue
		}
		cat.Courses = append(cat.Courses, s)
	}
	return cat, nil
}
