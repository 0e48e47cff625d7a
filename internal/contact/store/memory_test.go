package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"reconciler/internal/contact/models"
	"reconciler/internal/contact/service"
	dErrors "reconciler/pkg/domain-errors"
)

type MemoryStoreSuite struct {
	contractSuite
	store *InMemory
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.initContract(s.store, s.store)
}

func (s *MemoryStoreSuite) TestReturnedContactsAreCopies() {
	p := s.insertPrimary("copy@example.com", "", s.now)

	s.inTx(func(ctx context.Context, st service.Store) {
		got, err := st.FindLiveByID(ctx, p.ID)
		s.Require().NoError(err)
		got.Email = "mutated@example.com"
	})

	s.inTx(func(ctx context.Context, st service.Store) {
		got, err := st.FindLiveByID(ctx, p.ID)
		s.Require().NoError(err)
		s.Equal("copy@example.com", got.Email)
	})
}

func (s *MemoryStoreSuite) TestCancelledContext() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.store.RunInTx(ctx, func(context.Context, service.Store) error {
		called = true
		return nil
	})
	s.False(called)
	s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
}

func (s *MemoryStoreSuite) TestSeedKeepsIDsAndAdvancesSequence() {
	linked := models.ContactID(7)
	link, err := models.RestoreLink(models.PrecedenceSecondary, &linked)
	s.Require().NoError(err)
	s.store.Seed(&models.Contact{
		ID:        10,
		Email:     "orphan@example.com",
		Link:      link,
		CreatedAt: s.now,
		UpdatedAt: s.now,
	})

	next := s.insertPrimary("next@example.com", "", s.now.Add(time.Second))
	s.Equal(models.ContactID(11), next.ID)
	s.Equal(2, s.store.Count())
}
