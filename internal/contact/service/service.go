package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"reconciler/internal/contact/events"
	"reconciler/internal/contact/metrics"
	"reconciler/internal/contact/models"
	"reconciler/internal/platform/config"
	dErrors "reconciler/pkg/domain-errors"
	"reconciler/pkg/platform/sentinel"
	"reconciler/pkg/requestcontext"
)

// Store is the contact repository seen by the reconciliation algorithm. All
// reads exclude tombstoned rows.
type Store interface {
	FindLive(ctx context.Context, ids models.Identifiers) ([]*models.Contact, error)
	FindLiveByID(ctx context.Context, id models.ContactID) (*models.Contact, error)
	FindCluster(ctx context.Context, primaryID models.ContactID) ([]*models.Contact, error)
	Insert(ctx context.Context, contact *models.Contact) error
	DemoteToSecondary(ctx context.Context, id, newPrimaryID models.ContactID, now time.Time) error
	RepointSecondaries(ctx context.Context, oldPrimaryID, newPrimaryID models.ContactID, now time.Time) (int64, error)
}

// IdentifierLocker serializes identify calls that share an identifier across
// processes. The returned release func must be called once.
type IdentifierLocker interface {
	Lock(ctx context.Context, keys []string) (release func(context.Context) error, err error)
}

const tracerName = "reconciler/contact"

// Service reconciles contact touchpoints into identity clusters.
type Service struct {
	tx          ContactStoreTx
	logger      *slog.Logger
	metrics     *metrics.Metrics
	publisher   events.Publisher
	locker      IdentifierLocker
	emptyPolicy config.EmptyIdentifyPolicy
	tracer      trace.Tracer
	clock       func() time.Time
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithEventPublisher ships contact events after each committed identify.
func WithEventPublisher(p events.Publisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

// WithIdentifierLocker takes a distributed lock per identifier around each
// identify transaction.
func WithIdentifierLocker(l IdentifierLocker) Option {
	return func(s *Service) {
		s.locker = l
	}
}

// WithEmptyPolicy decides what identify does with neither email nor phone.
func WithEmptyPolicy(p config.EmptyIdentifyPolicy) Option {
	return func(s *Service) {
		s.emptyPolicy = p
	}
}

// WithClock sets the source of the timestamps written to contacts. It is read
// inside each transaction attempt, after identifier locks are held.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

// WithTracerProvider replaces the global otel provider for identify spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) {
		s.tracer = tp.Tracer(tracerName)
	}
}

// New constructs a Service.
func New(tx ContactStoreTx, opts ...Option) (*Service, error) {
	if tx == nil {
		return nil, errors.New("contact store transaction is required")
	}
	s := &Service{
		tx:          tx,
		emptyPolicy: config.EmptyIdentifyCreate,
		tracer:      otel.Tracer(tracerName),
		clock:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Identify resolves ids to their identity cluster, creating, linking or
// merging contacts as needed, and returns the consolidated view.
func (s *Service) Identify(ctx context.Context, ids models.Identifiers) (*models.ConsolidatedContact, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "contact.Identify", trace.WithAttributes(
		attribute.Bool("contact.has_email", ids.HasEmail()),
		attribute.Bool("contact.has_phone", ids.HasPhone()),
	))
	defer span.End()

	if ids.Empty() {
		switch s.emptyPolicy {
		case config.EmptyIdentifyReject:
			s.observe(metrics.OutcomeError, start)
			return nil, dErrors.New(dErrors.CodeBadRequest, "email or phoneNumber is required")
		case config.EmptyIdentifySkip:
			s.observe(metrics.OutcomeEmpty, start)
			return models.EmptyConsolidated(), nil
		}
	}

	outcome, err := s.identifyLocked(ctx, ids)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "identify failed")
		s.observe(metrics.OutcomeError, start)
		s.logError(ctx, "identify failed", err)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int64("contact.primary_id", int64(outcome.Contact.PrimaryID)),
		attribute.Int("contact.merges", len(outcome.Merges)),
	)
	s.afterCommit(ctx, outcome)
	s.observe(outcomeLabel(outcome), start)
	return outcome.Contact, nil
}

// Lookup returns the consolidated view of the cluster containing id.
func (s *Service) Lookup(ctx context.Context, id models.ContactID) (*models.ConsolidatedContact, error) {
	ctx, span := s.tracer.Start(ctx, "contact.Lookup", trace.WithAttributes(attribute.Int64("contact.id", int64(id))))
	defer span.End()

	var view *models.ConsolidatedContact
	err := s.tx.RunInTx(ctx, func(ctx context.Context, store Store) error {
		c, err := store.FindLiveByID(ctx, id)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "contact not found")
			}
			return err
		}
		primary := c
		if !c.IsPrimary() {
			primary, err = store.FindLiveByID(ctx, c.ClusterID())
			if err != nil {
				if errors.Is(err, sentinel.ErrNotFound) {
					return dErrors.New(dErrors.CodeIntegrity,
						fmt.Sprintf("contact %d links to missing primary %d", c.ID, c.ClusterID()))
				}
				return err
			}
		}
		cluster, err := store.FindCluster(ctx, primary.ID)
		if err != nil {
			return err
		}
		view = assemble(primary, cluster)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, translateErr(err)
	}
	return view, nil
}

// identifyLocked takes the optional distributed lock, then runs the
// transaction, retrying when the store reports a serialization conflict.
func (s *Service) identifyLocked(ctx context.Context, ids models.Identifiers) (*models.IdentifyOutcome, error) {
	if s.locker != nil && !ids.Empty() {
		release, err := s.locker.Lock(ctx, lockKeys(ids))
		if err != nil {
			return nil, translateErr(err)
		}
		defer func() {
			// release on a fresh context so a cancelled request still unlocks
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.logError(ctx, "failed to release identifier lock", err)
			}
		}()
	}

	ctx = withLockKeys(ctx, ids)
	var (
		outcome *models.IdentifyOutcome
		err     error
	)
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = s.tx.RunInTx(ctx, func(ctx context.Context, store Store) error {
			var runErr error
			outcome, runErr = s.identify(ctx, store, ids)
			return runErr
		})
		if err == nil || !errors.Is(err, sentinel.ErrConflict) {
			break
		}
		if s.metrics != nil {
			s.metrics.TxRetries.Inc()
		}
		if s.logger != nil {
			s.logger.WarnContext(ctx, "identify transaction conflicted, retrying",
				"attempt", attempt,
				"request_id", requestcontext.RequestID(ctx),
			)
		}
	}
	if err != nil {
		return nil, translateErr(err)
	}
	return outcome, nil
}

// identify is one attempt of the reconciliation algorithm inside a transaction.
// Writes are stamped with the clock here, after locks are held, so a request
// that waited or retried sorts after whatever committed before it.
func (s *Service) identify(ctx context.Context, store Store, ids models.Identifiers) (*models.IdentifyOutcome, error) {
	now := s.clock().UTC().Truncate(time.Microsecond)

	var matched []*models.Contact
	err := s.phase(ctx, "contact.match", func(ctx context.Context) (err error) {
		matched, err = match(ctx, store, ids)
		return err
	})
	if err != nil {
		return nil, err
	}
	outcome := &models.IdentifyOutcome{MatchedCount: len(matched)}

	if len(matched) == 0 {
		primary := models.NewPrimary(ids, now)
		err := s.phase(ctx, "contact.create_primary", func(ctx context.Context) error {
			if err := store.Insert(ctx, primary); err != nil {
				return fmt.Errorf("insert primary: %w", err)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		outcome.CreatedID = primary.ID
		outcome.CreatedAs = models.PrecedencePrimary
		outcome.Contact = assemble(primary, nil)
		return outcome, nil
	}

	var survivor *models.Contact
	var losers []*models.Contact
	err = s.phase(ctx, "contact.resolve_primary", func(ctx context.Context) (err error) {
		survivor, losers, err = resolvePrimary(ctx, store, matched)
		return err
	})
	if err != nil {
		return nil, err
	}

	err = s.phase(ctx, "contact.merge", func(ctx context.Context) (err error) {
		outcome.Merges, err = mergeClusters(ctx, store, survivor, losers, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	cluster, err := store.FindCluster(ctx, survivor.ID)
	if err != nil {
		return nil, fmt.Errorf("load cluster %d: %w", survivor.ID, err)
	}
	primary := findByID(cluster, survivor.ID)
	if primary == nil || !primary.IsPrimary() {
		return nil, dErrors.New(dErrors.CodeIntegrity,
			fmt.Sprintf("primary %d missing from its own cluster", survivor.ID))
	}

	var created *models.Contact
	err = s.phase(ctx, "contact.fill_gap", func(ctx context.Context) (err error) {
		created, err = fillGap(ctx, store, primary, cluster, ids, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	if created != nil {
		cluster = append(cluster, created)
		outcome.CreatedID = created.ID
		outcome.CreatedAs = models.PrecedenceSecondary
	}

	outcome.Contact = assemble(primary, cluster)
	return outcome, nil
}

// phase runs fn under a child span of the identify span.
func (s *Service) phase(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, name)
	defer span.End()
	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, name+" failed")
		return err
	}
	return nil
}

func (s *Service) afterCommit(ctx context.Context, outcome *models.IdentifyOutcome) {
	requestID := requestcontext.RequestID(ctx)

	if s.metrics != nil {
		if outcome.Created() {
			s.metrics.IncrementCreated(string(outcome.CreatedAs))
		}
		for _, m := range outcome.Merges {
			s.metrics.AddMerge(m.Repointed)
		}
	}

	if s.logger != nil {
		for _, m := range outcome.Merges {
			s.logger.InfoContext(ctx, "contact_merged",
				"survivor_id", m.SurvivorID,
				"demoted_id", m.DemotedID,
				"repointed", m.Repointed,
				"request_id", requestID,
				"event", "contact_merged",
				"log_type", "audit",
			)
		}
		s.logger.DebugContext(ctx, "identify completed",
			"primary_id", outcome.Contact.PrimaryID,
			"secondary_ids", outcome.Contact.SecondaryIDs,
			"matched", outcome.MatchedCount,
			"created_id", outcome.CreatedID,
			"request_id", requestID,
		)
	}

	if s.publisher == nil {
		return
	}
	evts := events.FromOutcome(outcome, requestID, requestcontext.Now(ctx).UTC())
	if len(evts) == 0 {
		return
	}
	if err := s.publisher.Publish(ctx, evts...); err != nil {
		if s.metrics != nil {
			s.metrics.PublishFailures.Add(float64(len(evts)))
		}
		s.logError(ctx, "failed to publish contact events", err)
	}
}

func (s *Service) observe(outcome string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveIdentify(outcome, start)
	}
}

func (s *Service) logError(ctx context.Context, msg string, err error) {
	if s.logger == nil {
		return
	}
	s.logger.ErrorContext(ctx, msg,
		"error", err,
		"code", dErrors.CodeOf(err),
		"request_id", requestcontext.RequestID(ctx),
	)
}

func outcomeLabel(o *models.IdentifyOutcome) string {
	switch {
	case len(o.Merges) > 0:
		return metrics.OutcomeMerged
	case o.CreatedAs == models.PrecedencePrimary:
		return metrics.OutcomeCreatedPrimary
	case o.CreatedAs == models.PrecedenceSecondary:
		return metrics.OutcomeCreatedSecondary
	default:
		return metrics.OutcomeUnchanged
	}
}

func findByID(contacts []*models.Contact, id models.ContactID) *models.Contact {
	for _, c := range contacts {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// translateErr converts store and lock failures into coded domain errors.
// Errors that already carry a code pass through unchanged.
func translateErr(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := dErrors.As(err); ok {
		return err
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "identify aborted before commit")
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "contact store unavailable")
	case errors.Is(err, sentinel.ErrLockHeld), errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "contact is being updated concurrently")
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "contact not found")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "identify failed")
	}
}
