package store

import (
	"context"
	"errors"
	"time"

	"github.com/stretchr/testify/suite"

	"reconciler/internal/contact/models"
	"reconciler/internal/contact/service"
	"reconciler/pkg/platform/sentinel"
)

type tombstoner interface {
	Tombstone(ctx context.Context, id models.ContactID, now time.Time) error
}

// contractSuite holds the behaviour every contact store must share. Concrete
// suites embed it and set runner and admin in SetupTest.
type contractSuite struct {
	suite.Suite
	ctx    context.Context
	runner service.ContactStoreTx
	admin  tombstoner
	now    time.Time
}

func (s *contractSuite) initContract(runner service.ContactStoreTx, admin tombstoner) {
	s.ctx = context.Background()
	s.runner = runner
	s.admin = admin
	s.now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
}

// inTx runs fn and fails the test on error.
func (s *contractSuite) inTx(fn func(ctx context.Context, st service.Store)) {
	err := s.runner.RunInTx(s.ctx, func(ctx context.Context, st service.Store) error {
		fn(ctx, st)
		return nil
	})
	s.Require().NoError(err)
}

func (s *contractSuite) insertPrimary(email, phone string, at time.Time) *models.Contact {
	c := models.NewPrimary(models.NewIdentifiers(email, phone), at)
	s.inTx(func(ctx context.Context, st service.Store) {
		s.Require().NoError(st.Insert(ctx, c))
	})
	return c
}

func (s *contractSuite) insertSecondary(email, phone string, primary *models.Contact, at time.Time) *models.Contact {
	c, err := models.NewSecondary(models.NewIdentifiers(email, phone), primary, at)
	s.Require().NoError(err)
	s.inTx(func(ctx context.Context, st service.Store) {
		s.Require().NoError(st.Insert(ctx, c))
	})
	return c
}

func ids(contacts []*models.Contact) []models.ContactID {
	out := make([]models.ContactID, 0, len(contacts))
	for _, c := range contacts {
		out = append(out, c.ID)
	}
	return out
}

func (s *contractSuite) TestInsertAndFind() {
	s.Run("assigns increasing ids", func() {
		a := s.insertPrimary("a@example.com", "111", s.now)
		b := s.insertPrimary("b@example.com", "", s.now)
		s.Positive(int64(a.ID))
		s.Greater(b.ID, a.ID)
	})

	s.Run("round-trips every column", func() {
		p := s.insertPrimary("round@example.com", "", s.now)
		sec := s.insertSecondary("", "424242", p, s.now.Add(time.Minute))

		s.inTx(func(ctx context.Context, st service.Store) {
			got, err := st.FindLiveByID(ctx, sec.ID)
			s.Require().NoError(err)
			s.Equal("", got.Email)
			s.Equal("424242", got.Phone)
			s.False(got.IsPrimary())
			s.Equal(p.ID, got.ClusterID())
			s.True(got.CreatedAt.Equal(s.now.Add(time.Minute)), "created_at %s", got.CreatedAt)
			s.Nil(got.DeletedAt)
		})
	})

	s.Run("unknown id is not found", func() {
		s.inTx(func(ctx context.Context, st service.Store) {
			_, err := st.FindLiveByID(ctx, 999999)
			s.ErrorIs(err, sentinel.ErrNotFound)
		})
	})
}

func (s *contractSuite) TestFindLive() {
	p := s.insertPrimary("lorraine@hillvalley.edu", "123456", s.now)
	sec := s.insertSecondary("mcfly@hillvalley.edu", "123456", p, s.now.Add(time.Hour))
	other := s.insertPrimary("george@hillvalley.edu", "717171", s.now)
	gone := s.insertPrimary("lorraine@hillvalley.edu", "999", s.now)
	s.Require().NoError(s.admin.Tombstone(s.ctx, gone.ID, s.now))

	s.Run("matches email or phone and skips tombstoned rows", func() {
		s.inTx(func(ctx context.Context, st service.Store) {
			got, err := st.FindLive(ctx, models.NewIdentifiers("lorraine@hillvalley.edu", "717171"))
			s.Require().NoError(err)
			s.Equal([]models.ContactID{p.ID, other.ID}, ids(got))
		})
	})

	s.Run("phone only", func() {
		s.inTx(func(ctx context.Context, st service.Store) {
			got, err := st.FindLive(ctx, models.NewIdentifiers("", "123456"))
			s.Require().NoError(err)
			s.Equal([]models.ContactID{p.ID, sec.ID}, ids(got))
		})
	})

	s.Run("no match", func() {
		s.inTx(func(ctx context.Context, st service.Store) {
			got, err := st.FindLive(ctx, models.NewIdentifiers("nobody@example.com", ""))
			s.Require().NoError(err)
			s.Empty(got)
		})
	})
}

func (s *contractSuite) TestClusterMutations() {
	eldest := s.insertPrimary("a@example.com", "1", s.now)
	younger := s.insertPrimary("b@example.com", "2", s.now.Add(time.Hour))
	child := s.insertSecondary("c@example.com", "2", younger, s.now.Add(2*time.Hour))
	deadChild := s.insertSecondary("d@example.com", "2", younger, s.now.Add(3*time.Hour))
	s.Require().NoError(s.admin.Tombstone(s.ctx, deadChild.ID, s.now))

	later := s.now.Add(24 * time.Hour)
	s.inTx(func(ctx context.Context, st service.Store) {
		s.Require().NoError(st.DemoteToSecondary(ctx, younger.ID, eldest.ID, later))
		moved, err := st.RepointSecondaries(ctx, younger.ID, eldest.ID, later)
		s.Require().NoError(err)
		s.Equal(int64(2), moved, "tombstoned secondaries are repointed too")
	})

	s.Run("cluster holds every live member", func() {
		s.inTx(func(ctx context.Context, st service.Store) {
			cluster, err := st.FindCluster(ctx, eldest.ID)
			s.Require().NoError(err)
			s.Equal([]models.ContactID{eldest.ID, younger.ID, child.ID}, ids(cluster))
			for _, c := range cluster[1:] {
				s.Equal(eldest.ID, c.ClusterID())
			}
		})
	})

	s.Run("demoting a secondary conflicts", func() {
		err := s.runner.RunInTx(s.ctx, func(ctx context.Context, st service.Store) error {
			return st.DemoteToSecondary(ctx, younger.ID, eldest.ID, later)
		})
		s.ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("old cluster is empty", func() {
		s.inTx(func(ctx context.Context, st service.Store) {
			cluster, err := st.FindCluster(ctx, younger.ID)
			s.Require().NoError(err)
			s.Equal([]models.ContactID{younger.ID}, ids(cluster))
		})
	})
}

func (s *contractSuite) TestRollback() {
	p := s.insertPrimary("keep@example.com", "", s.now)
	boom := errors.New("boom")

	var inserted models.ContactID
	err := s.runner.RunInTx(s.ctx, func(ctx context.Context, st service.Store) error {
		c := models.NewPrimary(models.NewIdentifiers("discard@example.com", ""), s.now)
		if err := st.Insert(ctx, c); err != nil {
			return err
		}
		inserted = c.ID
		other := models.NewPrimary(models.NewIdentifiers("other@example.com", ""), s.now.Add(time.Hour))
		if err := st.Insert(ctx, other); err != nil {
			return err
		}
		if err := st.DemoteToSecondary(ctx, other.ID, p.ID, s.now); err != nil {
			return err
		}
		return boom
	})
	s.Require().ErrorIs(err, boom)

	s.inTx(func(ctx context.Context, st service.Store) {
		_, err := st.FindLiveByID(ctx, inserted)
		s.ErrorIs(err, sentinel.ErrNotFound)

		got, err := st.FindLive(ctx, models.NewIdentifiers("discard@example.com", ""))
		s.Require().NoError(err)
		s.Empty(got)

		cluster, err := st.FindCluster(ctx, p.ID)
		s.Require().NoError(err)
		s.Equal([]models.ContactID{p.ID}, ids(cluster))
	})
}

func (s *contractSuite) TestTombstone() {
	p := s.insertPrimary("t@example.com", "", s.now)
	s.Require().NoError(s.admin.Tombstone(s.ctx, p.ID, s.now))

	s.Run("tombstoned row is invisible", func() {
		s.inTx(func(ctx context.Context, st service.Store) {
			_, err := st.FindLiveByID(ctx, p.ID)
			s.ErrorIs(err, sentinel.ErrNotFound)
		})
	})

	s.Run("second tombstone is not found", func() {
		s.ErrorIs(s.admin.Tombstone(s.ctx, p.ID, s.now), sentinel.ErrNotFound)
	})
}
