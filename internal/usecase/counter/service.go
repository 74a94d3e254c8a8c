// Package counter keeps category coursesCounter values in step with course
// lifecycle events.
package counter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/kailas-cloud/coursedex/internal/db"
	"github.com/kailas-cloud/coursedex/internal/domain"
	"github.com/kailas-cloud/coursedex/internal/domain/category"
	"github.com/kailas-cloud/coursedex/internal/domain/course"
	"github.com/kailas-cloud/coursedex/internal/domain/event"
	"github.com/kailas-cloud/coursedex/internal/metrics"
	catrepo "github.com/kailas-cloud/coursedex/internal/repository/category"
)

// MaxAttempts is the upper bound for Config.MaxAttempts.
const MaxAttempts = 5

// Config tunes transaction retries and redelivery dedup.
type Config struct {
	MaxAttempts int           // 1..5, total tries per kind
	Backoff     time.Duration // base of the exponential backoff
	DedupTTL    time.Duration // 0 disables event markers
}

// DefaultConfig returns 5 attempts with a 20ms base backoff and no dedup.
func DefaultConfig() Config {
	return Config{MaxAttempts: MaxAttempts, Backoff: 20 * time.Millisecond}
}

// Service runs the counter protocol. Handlers never return errors and never
// panic: every failure ends up in the returned report, the log, the
// counter_dropped metric and the failure sink.
type Service struct {
	repo   Repository
	cfg    Config
	sink   FailureSink
	logger *zap.Logger
	newID  func() string
}

// New creates a counter service. Out-of-range config values are clamped.
func New(repo Repository, cfg Config, logger *zap.Logger) *Service {
	cfg.MaxAttempts = min(max(cfg.MaxAttempts, 1), MaxAttempts)
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultConfig().Backoff
	}
	return &Service{repo: repo, cfg: cfg, logger: logger, newID: uuid.NewString}
}

// WithFailureSink configures where dropped updates are recorded.
func (s *Service) WithFailureSink(sink FailureSink) *Service {
	s.sink = sink
	return s
}

// OnCreated increments (or creates) the category of every present reference.
func (s *Service) OnCreated(ctx context.Context, eventID string, c course.Course) event.Report {
	return s.Handle(ctx, event.Event{ID: eventID, Type: event.Created, After: &c})
}

// OnUpdated moves counters for every kind whose reference changed.
func (s *Service) OnUpdated(ctx context.Context, eventID string, before, after course.Course) event.Report {
	return s.Handle(ctx, event.Event{ID: eventID, Type: event.Updated, Before: &before, After: &after})
}

// OnDeleted decrements the category of every present reference, clamped at 0.
func (s *Service) OnDeleted(ctx context.Context, eventID string, c course.Course) event.Report {
	return s.Handle(ctx, event.Event{ID: eventID, Type: event.Deleted, Before: &c})
}

// Handle processes each category kind of ev independently. Events without
// an id get a generated one for correlation; only upstream ids are used for
// redelivery dedup.
func (s *Service) Handle(ctx context.Context, ev event.Event) event.Report {
	dedup := ev.ID != "" && s.cfg.DedupTTL > 0
	if ev.ID == "" {
		ev.ID = s.newID()
	}

	report := event.Report{EventID: ev.ID, Type: ev.Type, CourseID: ev.CourseID()}
	shapeErr := checkShape(ev)
	for _, kind := range course.Kinds() {
		if shapeErr != nil {
			report.Add(event.KindOutcome{Kind: kind, Action: event.ActionSkipped, Err: shapeErr})
			continue
		}
		report.Add(s.handleKind(ctx, ev, kind, dedup))
	}

	result := "ok"
	if report.Failed() {
		result = "failed"
	}
	metrics.CounterEventsTotal.WithLabelValues(string(ev.Type), result).Inc()
	return report
}

func checkShape(ev event.Event) error {
	var ok bool
	switch ev.Type {
	case event.Created:
		ok = ev.After != nil
	case event.Updated:
		ok = ev.Before != nil && ev.After != nil
	case event.Deleted:
		ok = ev.Before != nil
	}
	if !ok {
		return fmt.Errorf("%w: malformed %q event", domain.ErrValidation, ev.Type)
	}
	return nil
}

func (s *Service) handleKind(ctx context.Context, ev event.Event, kind course.Kind, dedup bool) (out event.KindOutcome) {
	out.Kind = kind
	before, after, err := refs(ev, kind)

	defer func() {
		if r := recover(); r != nil {
			out = event.KindOutcome{Kind: kind, Action: event.ActionFailed, Err: fmt.Errorf("panic: %v", r)}
			s.drop(ctx, ev, kind, before, after, 0, out.Err)
		}
	}()

	if err != nil {
		s.logger.Warn("Skipping malformed category reference",
			s.fields(ev, kind, before, after, zap.Error(err))...)
		out.Action, out.Err = event.ActionSkipped, err
		return out
	}

	ops := plan(ev.Type, kind, before, after)
	if len(ops) == 0 {
		out.Action = event.ActionNoop
		return out
	}

	var marker *catrepo.Marker
	if dedup {
		marker = &catrepo.Marker{EventID: ev.ID, TTL: s.cfg.DedupTTL}
	}

	applied, attempts, err := s.apply(ctx, kind, ops, marker)
	out.Attempts = attempts
	switch {
	case err == nil:
	case isTransient(err):
		out.Action, out.Err = event.ActionFailed, err
		s.drop(ctx, ev, kind, before, after, attempts, err)
		return out
	default:
		s.logger.Warn("Skipping counter update",
			s.fields(ev, kind, before, after, zap.Int("attempts", attempts), zap.Error(err))...)
		out.Action, out.Err = event.ActionSkipped, err
		return out
	}

	if applied.Duplicate {
		out.Action = event.ActionDuplicate
		return out
	}

	out.Action, out.Results = event.ActionApplied, applied.Results
	missing := 0
	for _, r := range applied.Results {
		if r.Transition == category.Missing {
			missing++
			s.logger.Warn("Category document missing on decrement, skipped",
				s.fields(ev, kind, before, after, zap.String("category_id", r.Op.Key.ID))...)
		}
	}
	if missing == len(applied.Results) {
		out.Action = event.ActionSkipped
		out.Err = fmt.Errorf("%w: category document", domain.ErrNotFound)
	}
	return out
}

// refs returns the before/after references of kind, failing on the first
// malformed one.
func refs(ev event.Event, kind course.Kind) (before, after course.Ref, err error) {
	if ev.Before != nil {
		if before, err = ev.Before.Ref(kind); err != nil {
			return course.Absent(), course.Absent(), err
		}
	}
	if ev.After != nil {
		if after, err = ev.After.Ref(kind); err != nil {
			return before, course.Absent(), err
		}
	}
	return before, after, nil
}

// plan computes the ops one event requires for one kind.
//
//	created:  after present        -> +1 after
//	deleted:  before present       -> -1 before
//	updated:  unchanged or renamed -> nothing
//	          otherwise            -> -1 before (if present), +1 after (if present)
//
// A rename keeps the category id, so the course is already counted in that
// document; a -1/+1 pair would only lift a clamped 0 back to 1.
func plan(t event.Type, kind course.Kind, before, after course.Ref) []category.Op {
	var ops []category.Op
	switch t {
	case event.Created:
		if after.Present() {
			ops = append(ops, category.Increment(kind, after))
		}
	case event.Deleted:
		if before.Present() {
			ops = append(ops, category.Decrement(kind, before))
		}
	case event.Updated:
		if before.Equal(after) || before.SameCategory(after) {
			return nil
		}
		if before.Present() {
			ops = append(ops, category.Decrement(kind, before))
		}
		if after.Present() {
			ops = append(ops, category.Increment(kind, after))
		}
	}
	return ops
}

// apply runs the transaction with bounded exponential backoff. Only
// transient failures are retried.
func (s *Service) apply(
	ctx context.Context, kind course.Kind, ops []category.Op, marker *catrepo.Marker,
) (catrepo.Applied, int, error) {
	b := retry.WithMaxRetries(uint64(s.cfg.MaxAttempts-1), retry.NewExponential(s.cfg.Backoff))

	var (
		applied  catrepo.Applied
		attempts int
	)
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempts++
		res, err := s.repo.Apply(ctx, kind, ops, marker)
		switch {
		case err == nil:
			metrics.CounterTxAttemptsTotal.WithLabelValues("committed").Inc()
			applied = res
			return nil
		case errors.Is(err, db.ErrTxConflict):
			metrics.CounterTxAttemptsTotal.WithLabelValues("conflict").Inc()
			return retry.RetryableError(err)
		case isTransient(err):
			metrics.CounterTxAttemptsTotal.WithLabelValues("error").Inc()
			return retry.RetryableError(err)
		default:
			metrics.CounterTxAttemptsTotal.WithLabelValues("error").Inc()
			return err
		}
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %w", domain.ErrTransient, err)
		}
		return catrepo.Applied{}, attempts, err
	}
	return applied, attempts, nil
}

// isTransient reports whether err may succeed on retry: a lost race, a
// driver failure or an explicitly transient error.
func isTransient(err error) bool {
	var dbErr *db.Error
	return errors.Is(err, db.ErrTxConflict) ||
		errors.Is(err, domain.ErrTransient) ||
		errors.As(err, &dbErr)
}

// drop makes an exhausted update observable: error log, metric and sink.
func (s *Service) drop(
	ctx context.Context, ev event.Event, kind course.Kind,
	before, after course.Ref, attempts int, err error,
) {
	s.logger.Error("Counter update dropped",
		s.fields(ev, kind, before, after, zap.Int("attempts", attempts), zap.Error(err))...)
	metrics.CounterDroppedTotal.WithLabelValues(string(kind)).Inc()

	if s.sink == nil {
		return
	}
	f := event.Failure{
		EventID: ev.ID, Type: ev.Type, CourseID: ev.CourseID(), Kind: kind,
		Before: before, After: after, Attempts: attempts, Err: err,
	}
	if sinkErr := s.sink.Record(context.WithoutCancel(ctx), f); sinkErr != nil {
		s.logger.Error("Failed to record dropped counter update",
			zap.String("event_id", ev.ID), zap.String("kind", string(kind)), zap.Error(sinkErr))
	}
}

func (s *Service) fields(ev event.Event, kind course.Kind, before, after course.Ref, extra ...zap.Field) []zap.Field {
	return append([]zap.Field{
		zap.String("event_id", ev.ID),
		zap.String("event", string(ev.Type)),
		zap.String("course_id", ev.CourseID()),
		zap.String("kind", string(kind)),
		zap.Stringer("before", before),
		zap.Stringer("after", after),
	}, extra...)
}
