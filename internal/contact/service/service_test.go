package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Store,IdentifierLocker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"reconciler/internal/contact/events"
	eventmocks "reconciler/internal/contact/events/mocks"
	"reconciler/internal/contact/metrics"
	"reconciler/internal/contact/models"
	"reconciler/internal/contact/service/mocks"
	"reconciler/internal/platform/config"
	dErrors "reconciler/pkg/domain-errors"
	"reconciler/pkg/platform/sentinel"
	"reconciler/pkg/requestcontext"
)

// passthroughTx hands the mocked store straight to fn. errs, when set, are
// returned by successive calls instead of running fn.
type passthroughTx struct {
	store Store
	errs  []error
	calls int
}

func (t *passthroughTx) RunInTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error {
	t.calls++
	if len(t.errs) > 0 {
		err := t.errs[0]
		t.errs = t.errs[1:]
		if err != nil {
			return err
		}
	}
	return fn(ctx, t.store)
}

type ServiceSuite struct {
	suite.Suite
	ctrl          *gomock.Controller
	mockStore     *mocks.MockStore
	mockLocker    *mocks.MockIdentifierLocker
	mockPublisher *eventmocks.MockPublisher
	tx            *passthroughTx
	metrics       *metrics.Metrics
	service       *Service
	ctx           context.Context
	t0            time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.mockStore = mocks.NewMockStore(s.ctrl)
	s.mockLocker = mocks.NewMockIdentifierLocker(s.ctrl)
	s.mockPublisher = eventmocks.NewMockPublisher(s.ctrl)
	s.tx = &passthroughTx{store: s.mockStore}
	s.metrics = metrics.NewWithRegisterer(prometheus.NewRegistry())
	s.t0 = time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.t0.Add(47*time.Hour))
	s.service = s.newService()
}

func (s *ServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *ServiceSuite) newService(opts ...Option) *Service {
	base := []Option{
		WithMetrics(s.metrics),
		WithEventPublisher(s.mockPublisher),
		WithClock(func() time.Time { return s.t0.Add(48 * time.Hour) }),
	}
	svc, err := New(s.tx, append(base, opts...)...)
	s.Require().NoError(err)
	return svc
}

func primary(id models.ContactID, email, phone string, at time.Time) *models.Contact {
	return &models.Contact{ID: id, Email: email, Phone: phone, Link: models.PrimaryLink(), CreatedAt: at, UpdatedAt: at}
}

func secondary(id models.ContactID, email, phone string, of models.ContactID, at time.Time) *models.Contact {
	link, err := models.RestoreLink(models.PrecedenceSecondary, &of)
	if err != nil {
		panic(err)
	}
	return &models.Contact{ID: id, Email: email, Phone: phone, Link: link, CreatedAt: at, UpdatedAt: at}
}

// assignID stands in for the store's sequence.
func assignID(id models.ContactID) func(context.Context, *models.Contact) error {
	return func(_ context.Context, c *models.Contact) error {
		c.ID = id
		return nil
	}
}

func TestNewRequiresTx(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}

// =============================================================================
// Orchestration
// =============================================================================

func (s *ServiceSuite) TestIdentifyCreatesPrimaryWhenNothingMatches() {
	ids := models.NewIdentifiers("doc@hillvalley.edu", "88")

	s.mockStore.EXPECT().FindLive(gomock.Any(), ids).Return(nil, nil)
	s.mockStore.EXPECT().Insert(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, c *models.Contact) error {
			s.True(c.IsPrimary())
			s.Equal(s.t0.Add(48*time.Hour), c.CreatedAt, "stamped by the clock, not the request time")
			c.ID = 1
			return nil
		})
	s.mockPublisher.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, evts ...events.Event) error {
			s.Require().Len(evts, 1)
			s.Equal(events.TypeContactCreated, evts[0].Type)
			s.Equal(models.PrecedencePrimary, evts[0].Precedence)
			return nil
		})

	got, err := s.service.Identify(s.ctx, ids)
	s.Require().NoError(err)
	s.Equal(models.ContactID(1), got.PrimaryID)
	s.Equal([]string{"doc@hillvalley.edu"}, got.Emails)
	s.Equal([]string{"88"}, got.PhoneNumbers)
	s.Empty(got.SecondaryIDs)
	s.Equal(1.0, promtest.ToFloat64(s.metrics.IdentifyTotal.WithLabelValues(metrics.OutcomeCreatedPrimary)))
}

func (s *ServiceSuite) TestIdentifyMergesIntoElderPrimary() {
	elder := primary(1, "george@hillvalley.edu", "919191", s.t0)
	younger := primary(4, "biff@hillvalley.edu", "717171", s.t0.Add(time.Hour))
	ids := models.NewIdentifiers("george@hillvalley.edu", "717171")

	gomock.InOrder(
		s.mockStore.EXPECT().FindLive(gomock.Any(), ids).Return([]*models.Contact{elder, younger}, nil),
		s.mockStore.EXPECT().DemoteToSecondary(gomock.Any(), models.ContactID(4), models.ContactID(1), gomock.Any()).Return(nil),
		s.mockStore.EXPECT().RepointSecondaries(gomock.Any(), models.ContactID(4), models.ContactID(1), gomock.Any()).Return(int64(2), nil),
		s.mockStore.EXPECT().FindCluster(gomock.Any(), models.ContactID(1)).Return([]*models.Contact{
			elder,
			secondary(4, "biff@hillvalley.edu", "717171", 1, s.t0.Add(time.Hour)),
			secondary(5, "biff@hillvalley.edu", "121212", 1, s.t0.Add(2*time.Hour)),
			secondary(6, "tannen@hillvalley.edu", "717171", 1, s.t0.Add(3*time.Hour)),
		}, nil),
		// george + 717171 is a new pair in the merged cluster
		s.mockStore.EXPECT().Insert(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, c *models.Contact) error {
				s.Equal(models.ContactID(1), c.ClusterID())
				c.ID = 7
				return nil
			}),
	)
	s.mockPublisher.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, evts ...events.Event) error {
			s.Require().Len(evts, 2)
			s.Equal(events.TypeContactMerged, evts[0].Type)
			s.Equal(int64(2), evts[0].Repointed)
			s.Equal(events.TypeContactCreated, evts[1].Type)
			return nil
		})

	got, err := s.service.Identify(s.ctx, ids)
	s.Require().NoError(err)
	s.Equal(models.ContactID(1), got.PrimaryID)
	s.Equal([]string{"george@hillvalley.edu", "biff@hillvalley.edu", "tannen@hillvalley.edu"}, got.Emails)
	s.Equal([]string{"919191", "717171", "121212"}, got.PhoneNumbers)
	s.Equal([]models.ContactID{4, 5, 6, 7}, got.SecondaryIDs)
	s.Equal(1.0, promtest.ToFloat64(s.metrics.MergesTotal))
	s.Equal(2.0, promtest.ToFloat64(s.metrics.RepointedTotal))
}

func (s *ServiceSuite) TestIdentifyResolvesLinkedPrimary() {
	p := primary(1, "a@example.com", "1", s.t0)
	sec := secondary(2, "b@example.com", "1", 1, s.t0.Add(time.Minute))
	ids := models.NewIdentifiers("b@example.com", "")

	s.mockStore.EXPECT().FindLive(gomock.Any(), ids).Return([]*models.Contact{sec}, nil)
	s.mockStore.EXPECT().FindLiveByID(gomock.Any(), models.ContactID(1)).Return(p, nil)
	s.mockStore.EXPECT().FindCluster(gomock.Any(), models.ContactID(1)).Return([]*models.Contact{p, sec}, nil)

	got, err := s.service.Identify(s.ctx, ids)
	s.Require().NoError(err)
	s.Equal(models.ContactID(1), got.PrimaryID)
	s.Equal([]models.ContactID{2}, got.SecondaryIDs)
	s.Equal(1.0, promtest.ToFloat64(s.metrics.IdentifyTotal.WithLabelValues(metrics.OutcomeUnchanged)))
}

// =============================================================================
// Failures
// =============================================================================

func (s *ServiceSuite) TestIdentifyFailures() {
	ids := models.NewIdentifiers("a@example.com", "1")

	s.Run("dangling link is an integrity error and nothing is written", func() {
		orphan := secondary(3, "a@example.com", "1", 99, s.t0)
		s.mockStore.EXPECT().FindLive(gomock.Any(), ids).Return([]*models.Contact{orphan}, nil)
		s.mockStore.EXPECT().FindLiveByID(gomock.Any(), models.ContactID(99)).
			Return(nil, fmt.Errorf("contact 99: %w", sentinel.ErrNotFound))

		_, err := s.service.Identify(s.ctx, ids)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeIntegrity))
	})

	s.Run("link to a secondary is an integrity error", func() {
		orphan := secondary(3, "a@example.com", "1", 2, s.t0)
		s.mockStore.EXPECT().FindLive(gomock.Any(), ids).Return([]*models.Contact{orphan}, nil)
		s.mockStore.EXPECT().FindLiveByID(gomock.Any(), models.ContactID(2)).
			Return(secondary(2, "", "1", 1, s.t0), nil)

		_, err := s.service.Identify(s.ctx, ids)
		s.True(dErrors.HasCode(err, dErrors.CodeIntegrity))
	})

	s.Run("unavailable store maps to unavailable", func() {
		s.mockStore.EXPECT().FindLive(gomock.Any(), ids).
			Return(nil, fmt.Errorf("find live contacts: %w", sentinel.ErrUnavailable))

		_, err := s.service.Identify(s.ctx, ids)
		s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
		s.True(dErrors.IsRetryable(err))
	})

	s.Run("unknown store error maps to internal", func() {
		s.mockStore.EXPECT().FindLive(gomock.Any(), ids).Return(nil, assert.AnError)

		_, err := s.service.Identify(s.ctx, ids)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})

	s.Run("deadline maps to timeout", func() {
		s.mockStore.EXPECT().FindLive(gomock.Any(), ids).Return(nil, context.DeadlineExceeded)

		_, err := s.service.Identify(s.ctx, ids)
		s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
	})

	s.Run("failed gap fill fails the call", func() {
		p := primary(1, "a@example.com", "", s.t0)
		s.mockStore.EXPECT().FindLive(gomock.Any(), ids).Return([]*models.Contact{p}, nil)
		s.mockStore.EXPECT().FindCluster(gomock.Any(), models.ContactID(1)).Return([]*models.Contact{p}, nil)
		s.mockStore.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(assert.AnError)

		_, err := s.service.Identify(s.ctx, ids)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})

	s.Run("primary missing from its own cluster", func() {
		p := primary(1, "a@example.com", "1", s.t0)
		s.mockStore.EXPECT().FindLive(gomock.Any(), ids).Return([]*models.Contact{p}, nil)
		s.mockStore.EXPECT().FindCluster(gomock.Any(), models.ContactID(1)).Return(nil, nil)

		_, err := s.service.Identify(s.ctx, ids)
		s.True(dErrors.HasCode(err, dErrors.CodeIntegrity))
	})

	s.Equal(7.0, promtest.ToFloat64(s.metrics.IdentifyTotal.WithLabelValues(metrics.OutcomeError)))
}

func (s *ServiceSuite) TestIdentifyRetriesConflicts() {
	ids := models.NewIdentifiers("", "555")

	s.Run("conflict then success", func() {
		s.tx.errs = []error{fmt.Errorf("commit: %w", sentinel.ErrConflict), nil}
		s.tx.calls = 0
		s.mockStore.EXPECT().FindLive(gomock.Any(), ids).Return(nil, nil)
		s.mockStore.EXPECT().Insert(gomock.Any(), gomock.Any()).DoAndReturn(assignID(3))
		s.mockPublisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)

		_, err := s.service.Identify(s.ctx, ids)
		s.Require().NoError(err)
		s.Equal(2, s.tx.calls)
		s.Equal(1.0, promtest.ToFloat64(s.metrics.TxRetries))
	})

	s.Run("gives up after max attempts", func() {
		conflict := fmt.Errorf("commit: %w", sentinel.ErrConflict)
		s.tx.errs = []error{conflict, conflict, conflict}
		s.tx.calls = 0

		_, err := s.service.Identify(s.ctx, ids)
		s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
		s.Equal(maxTxAttempts, s.tx.calls)
	})

	s.Run("non-conflict errors are not retried", func() {
		s.tx.errs = []error{fmt.Errorf("begin: %w", sentinel.ErrUnavailable)}
		s.tx.calls = 0

		_, err := s.service.Identify(s.ctx, ids)
		s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
		s.Equal(1, s.tx.calls)
	})
}

func (s *ServiceSuite) TestPublishFailureDoesNotFailIdentify() {
	ids := models.NewIdentifiers("x@example.com", "")
	s.mockStore.EXPECT().FindLive(gomock.Any(), ids).Return(nil, nil)
	s.mockStore.EXPECT().Insert(gomock.Any(), gomock.Any()).DoAndReturn(assignID(8))
	s.mockPublisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("broker down"))

	_, err := s.service.Identify(s.ctx, ids)
	s.Require().NoError(err)
	s.Equal(1.0, promtest.ToFloat64(s.metrics.PublishFailures))
}

// =============================================================================
// Identifier lock
// =============================================================================

func (s *ServiceSuite) TestIdentifierLock() {
	svc := s.newService(WithIdentifierLocker(s.mockLocker))
	ids := models.NewIdentifiers("z@example.com", "123")
	wantKeys := []string{"contact:email:z@example.com", "contact:phone:123"}

	s.Run("lock wraps the transaction and is released", func() {
		released := false
		p := primary(1, "z@example.com", "123", s.t0)
		gomock.InOrder(
			s.mockLocker.EXPECT().Lock(gomock.Any(), wantKeys).Return(func(context.Context) error {
				released = true
				return nil
			}, nil),
			s.mockStore.EXPECT().FindLive(gomock.Any(), ids).Return([]*models.Contact{p}, nil),
			s.mockStore.EXPECT().FindCluster(gomock.Any(), models.ContactID(1)).Return([]*models.Contact{p}, nil),
		)

		_, err := svc.Identify(s.ctx, ids)
		s.Require().NoError(err)
		s.True(released)
	})

	s.Run("held lock is unavailable and the store is untouched", func() {
		s.mockLocker.EXPECT().Lock(gomock.Any(), wantKeys).
			Return(nil, fmt.Errorf("acquire: %w", sentinel.ErrLockHeld))

		_, err := svc.Identify(s.ctx, ids)
		s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	})

	s.Run("lock is released when the transaction fails", func() {
		released := false
		s.mockLocker.EXPECT().Lock(gomock.Any(), wantKeys).Return(func(context.Context) error {
			released = true
			return nil
		}, nil)
		s.mockStore.EXPECT().FindLive(gomock.Any(), ids).Return(nil, assert.AnError)

		_, err := svc.Identify(s.ctx, ids)
		s.Require().Error(err)
		s.True(released)
	})
}

// =============================================================================
// Empty identify policy
// =============================================================================

func (s *ServiceSuite) TestEmptyIdentifyPolicy() {
	empty := models.NewIdentifiers(" ", "")

	s.Run("reject", func() {
		svc := s.newService(WithEmptyPolicy(config.EmptyIdentifyReject))
		_, err := svc.Identify(s.ctx, empty)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("skip writes nothing", func() {
		svc := s.newService(WithEmptyPolicy(config.EmptyIdentifySkip))
		got, err := svc.Identify(s.ctx, empty)
		s.Require().NoError(err)
		s.Equal(models.EmptyConsolidated(), got)
	})

	s.Run("create persists an empty primary without matching", func() {
		s.mockStore.EXPECT().Insert(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, c *models.Contact) error {
				s.Empty(c.Email)
				s.Empty(c.Phone)
				c.ID = 12
				return nil
			})
		s.mockPublisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)

		got, err := s.service.Identify(s.ctx, empty)
		s.Require().NoError(err)
		s.Equal(models.ContactID(12), got.PrimaryID)
		s.Empty(got.Emails)
		s.Empty(got.PhoneNumbers)
		s.Empty(got.SecondaryIDs)
	})
}

// =============================================================================
// Lookup
// =============================================================================

func (s *ServiceSuite) TestLookup() {
	p := primary(1, "a@example.com", "1", s.t0)
	sec := secondary(2, "b@example.com", "1", 1, s.t0.Add(time.Minute))

	s.Run("secondary id resolves to its cluster", func() {
		s.mockStore.EXPECT().FindLiveByID(gomock.Any(), models.ContactID(2)).Return(sec, nil)
		s.mockStore.EXPECT().FindLiveByID(gomock.Any(), models.ContactID(1)).Return(p, nil)
		s.mockStore.EXPECT().FindCluster(gomock.Any(), models.ContactID(1)).Return([]*models.Contact{p, sec}, nil)

		got, err := s.service.Lookup(s.ctx, 2)
		s.Require().NoError(err)
		s.Equal(models.ContactID(1), got.PrimaryID)
		s.Equal([]string{"a@example.com", "b@example.com"}, got.Emails)
	})

	s.Run("unknown id is not found", func() {
		s.mockStore.EXPECT().FindLiveByID(gomock.Any(), models.ContactID(9)).
			Return(nil, fmt.Errorf("contact 9: %w", sentinel.ErrNotFound))

		_, err := s.service.Lookup(s.ctx, 9)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func TestTranslateErr(t *testing.T) {
	coded := dErrors.New(dErrors.CodeIntegrity, "broken")
	assert.Same(t, coded, translateErr(coded))
	assert.Nil(t, translateErr(nil))
	assert.True(t, dErrors.HasCode(translateErr(sentinel.ErrLockHeld), dErrors.CodeUnavailable))
	assert.True(t, dErrors.HasCode(translateErr(context.Canceled), dErrors.CodeTimeout))
	assert.True(t, dErrors.HasCode(translateErr(sentinel.ErrNotFound), dErrors.CodeNotFound))
}

func TestLockKeysAreSorted(t *testing.T) {
	assert.Equal(t,
		[]string{"contact:email:z@example.com", "contact:phone:1"},
		lockKeys(models.NewIdentifiers("z@example.com", "1")))
	assert.Equal(t, []string{"contact:phone:1"}, lockKeys(models.NewIdentifiers("", "1")))
	assert.Empty(t, lockKeys(models.Identifiers{}))
}
