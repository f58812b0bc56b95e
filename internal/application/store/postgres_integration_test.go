//go:build integration

package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"terrier/internal/application/models"
	"terrier/internal/application/store"
	"terrier/pkg/domain"
	"terrier/pkg/platform/sentinel"
	"terrier/pkg/testutil/containers"
)

type PostgresSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.Postgres
}

func TestPostgresSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresSuite))
}

func (s *PostgresSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresSuite) TearDownSuite() {
	_ = s.postgres.DB.Close()
	_ = s.postgres.Container.Terminate(context.Background())
}

func (s *PostgresSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "applications"))
}

func newIssueApplication(s *PostgresSuite, applicant domain.ActorRef) *models.Application {
	app, err := models.New(domain.NewApplicationID(), domain.KindIssue, applicant, models.PropertyDraft{
		OwnerName:     "Meera Nair",
		Address:       "7 Lake View, Kochi",
		AreaSqft:      980,
		DeclaredValue: 3100000,
		DocumentRefs:  []string{"doc://deed/12"},
	}, time.Now().UTC().Truncate(time.Microsecond))
	s.Require().NoError(err)
	return app
}

func (s *PostgresSuite) TestCreateAndFindRoundTrip() {
	ctx := context.Background()
	app := newIssueApplication(s, "citizen-meera")
	s.Require().NoError(s.store.Create(ctx, app))

	got, err := s.store.FindByID(ctx, app.ID)
	s.Require().NoError(err)
	s.Equal(app.ID, got.ID)
	s.Equal(models.StatusPending, got.Status)
	s.Equal(app.Draft, got.Draft)
	s.Equal(int64(1), got.Version)
}

func (s *PostgresSuite) TestDuplicateCreateConflicts() {
	ctx := context.Background()
	app := newIssueApplication(s, "citizen-meera")
	s.Require().NoError(s.store.Create(ctx, app))
	s.ErrorIs(s.store.Create(ctx, app), sentinel.ErrConflict)
}

func (s *PostgresSuite) TestUpdateVersionCheck() {
	ctx := context.Background()
	app := newIssueApplication(s, "citizen-meera")
	s.Require().NoError(s.store.Create(ctx, app))

	now := time.Now().UTC()
	s.Require().NoError(app.CanRecordDecision("registrar-1"))
	app.ApplyDecision(models.Approval{
		RegistrarRef: "registrar-1",
		Rank:         "junior",
		Decision:     models.DecisionApprove,
		Timestamp:    now,
	})
	s.Require().NoError(s.store.Update(ctx, app))

	// Same in-memory aggregate still carries the old version.
	err := s.store.Update(ctx, app)
	s.ErrorIs(err, sentinel.ErrVersionConflict)

	got, err := s.store.FindByID(ctx, app.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusUnderReview, got.Status)
	s.Len(got.Approvals, 1)
	s.Equal(int64(2), got.Version)
}

func (s *PostgresSuite) TestUpdateUnknownApplication() {
	app := newIssueApplication(s, "citizen-meera")
	err := s.store.Update(context.Background(), app)
	s.True(errors.Is(err, sentinel.ErrNotFound))
}

func (s *PostgresSuite) TestListByApplicantNewestFirst() {
	ctx := context.Background()
	first := newIssueApplication(s, "citizen-meera")
	s.Require().NoError(s.store.Create(ctx, first))

	second := newIssueApplication(s, "citizen-meera")
	second.CreatedAt = first.CreatedAt.Add(time.Minute)
	second.UpdatedAt = second.CreatedAt
	s.Require().NoError(s.store.Create(ctx, second))

	other := newIssueApplication(s, "citizen-arun")
	s.Require().NoError(s.store.Create(ctx, other))

	apps, err := s.store.ListByApplicant(ctx, "citizen-meera")
	s.Require().NoError(err)
	s.Require().Len(apps, 2)
	s.Equal(second.ID, apps[0].ID)
	s.Equal(first.ID, apps[1].ID)
}
