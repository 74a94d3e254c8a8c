package counter

import (
	"context"

	"github.com/kailas-cloud/coursedex/internal/domain/category"
	"github.com/kailas-cloud/coursedex/internal/domain/course"
	"github.com/kailas-cloud/coursedex/internal/domain/event"
	catrepo "github.com/kailas-cloud/coursedex/internal/repository/category"
)

// Repository applies counter operations of one kind in a single transaction.
type Repository interface {
	Apply(ctx context.Context, kind course.Kind, ops []category.Op, marker *catrepo.Marker) (catrepo.Applied, error)
}

// FailureSink receives updates dropped after exhausting retries.
type FailureSink interface {
	Record(ctx context.Context, f event.Failure) error
}
