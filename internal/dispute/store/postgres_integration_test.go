//go:build integration

package store_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"terrier/internal/dispute/models"
	"terrier/internal/dispute/store"
	"terrier/pkg/domain"
	"terrier/pkg/platform/sentinel"
	"terrier/pkg/testutil/containers"
)

type PostgresSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	disputes *store.PostgresDisputes
	cases    *store.PostgresCases
}

func TestPostgresSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresSuite))
}

func (s *PostgresSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.disputes = store.NewPostgresDisputes(s.postgres.DB)
	s.cases = store.NewPostgresCases(s.postgres.DB)
}

func (s *PostgresSuite) TearDownSuite() {
	_ = s.postgres.DB.Close()
	_ = s.postgres.Container.Terminate(context.Background())
}

func (s *PostgresSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "cases", "disputes"))
}

func (s *PostgresSuite) newDispute(propertyID domain.PropertyID) *models.Dispute {
	d, err := models.New(domain.NewDisputeID(), propertyID, "citizen-claimant",
		"Boundary encroachment claim", time.Now().UTC().Truncate(time.Microsecond))
	s.Require().NoError(err)
	return d
}

func (s *PostgresSuite) TestRoundTripAndTimeline() {
	ctx := context.Background()
	d := s.newDispute(domain.NewPropertyID())
	s.Require().NoError(s.disputes.Create(ctx, d))

	got, err := s.disputes.FindByID(ctx, d.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusOpen, got.Status)
	s.Require().Len(got.Timeline, 1)
	s.Equal(d.Timeline[0].Message, got.Timeline[0].Message)
}

// TestConcurrentRaisesOnOneProperty drives the partial unique index: many
// simultaneous raises against the same property must yield exactly one
// dispute.
func (s *PostgresSuite) TestConcurrentRaisesOnOneProperty() {
	ctx := context.Background()
	propertyID := domain.NewPropertyID()
	const attempts = 25

	var wg sync.WaitGroup
	var created, conflicted atomic.Int32
	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.disputes.Create(ctx, s.newDispute(propertyID))
			switch {
			case err == nil:
				created.Add(1)
			case errors.Is(err, sentinel.ErrConflict):
				conflicted.Add(1)
			default:
				s.T().Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), created.Load())
	s.Equal(int32(attempts-1), conflicted.Load())
}

func (s *PostgresSuite) TestResolvedDisputeFreesTheSlot() {
	ctx := context.Background()
	propertyID := domain.NewPropertyID()

	first := s.newDispute(propertyID)
	s.Require().NoError(s.disputes.Create(ctx, first))

	s.Require().NoError(first.CanRefer())
	first.ApplyReferral(domain.NewCaseID(), time.Now().UTC())
	s.Require().NoError(s.disputes.Update(ctx, first))
	s.Require().NoError(first.CanResolve())
	first.ApplyResolution("settled out of court", time.Now().UTC())
	s.Require().NoError(s.disputes.Update(ctx, first))

	// Terminal status no longer occupies the active slot.
	_, err := s.disputes.FindActiveByProperty(ctx, propertyID)
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.NoError(s.disputes.Create(ctx, s.newDispute(propertyID)))

	all, err := s.disputes.ListByProperty(ctx, propertyID)
	s.Require().NoError(err)
	s.Len(all, 2)
}

func (s *PostgresSuite) TestCaseRoundTrip() {
	ctx := context.Background()
	d := s.newDispute(domain.NewPropertyID())
	s.Require().NoError(s.disputes.Create(ctx, d))

	now := time.Now().UTC().Truncate(time.Microsecond)
	c := models.NewCase(domain.NewCaseID(), d.ID, d.PropertyID, now)
	s.Require().NoError(s.cases.Create(ctx, c))

	s.Require().NoError(c.ApplyOrder("Status quo to be maintained", now))
	s.Require().NoError(c.ApplyHearing(now.Add(48*time.Hour), "Court 2", now))
	s.Require().NoError(s.cases.Update(ctx, c))

	got, err := s.cases.FindByID(ctx, c.ID)
	s.Require().NoError(err)
	s.Equal(models.CaseActive, got.Status)
	s.Require().Len(got.Orders, 1)
	s.Require().Len(got.Hearings, 1)
	s.Equal("Status quo to be maintained", got.Orders[0].Text)

	s.Require().NoError(got.ApplyClose("title cleared", now))
	s.Require().NoError(s.cases.Update(ctx, got))

	closed, err := s.cases.FindByID(ctx, c.ID)
	s.Require().NoError(err)
	s.Equal(models.CaseClosed, closed.Status)
	s.Equal("title cleared", closed.Resolution)
}
