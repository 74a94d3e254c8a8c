package search

import (
	"context"

	"github.com/kailas-cloud/coursedex/internal/domain/category"
	"github.com/kailas-cloud/coursedex/internal/domain/course"
	"github.com/kailas-cloud/coursedex/internal/repository/catalog"
	catrepo "github.com/kailas-cloud/coursedex/internal/repository/category"
)

// CatalogReader returns the current catalog snapshot. It never fails; a
// broken catalog is served as an empty snapshot.
type CatalogReader interface {
	Snapshot(ctx context.Context) *catalog.Snapshot
}

// CategoryReader reads category documents.
type CategoryReader interface {
	List(ctx context.Context, kind course.Kind, limit int) (catrepo.Listing, error)
	Get(ctx context.Context, kind course.Kind, id string) (category.Document, error)
}
