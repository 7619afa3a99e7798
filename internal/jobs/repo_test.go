package jobs

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/maazehsan003/workhub-backend/pkg/db/models"
	"github.com/maazehsan003/workhub-backend/pkg/enums"
)

func newJobsRepoDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	ddl := []string{
		`CREATE TABLE IF NOT EXISTS jobs (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  description TEXT NOT NULL,
  category TEXT NOT NULL,
  budget NUMERIC NOT NULL,
  deadline DATETIME NOT NULL,
  status TEXT NOT NULL DEFAULT 'open',
  client_id TEXT NOT NULL,
  freelancer_id TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS applications (
  id TEXT PRIMARY KEY,
  job_id TEXT NOT NULL,
  freelancer_id TEXT NOT NULL,
  cover_letter TEXT NOT NULL,
  proposed_budget NUMERIC NOT NULL,
  estimated_duration TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  applied_at DATETIME,
  UNIQUE (job_id, freelancer_id)
);`,
		`CREATE TABLE IF NOT EXISTS payments (
  id TEXT PRIMARY KEY,
  job_id TEXT,
  from_user_id TEXT NOT NULL,
  to_user_id TEXT,
  amount NUMERIC NOT NULL,
  status TEXT NOT NULL,
  payment_type TEXT NOT NULL,
  description TEXT NOT NULL,
  created_at DATETIME,
  completed_at DATETIME
);`,
	}
	for _, stmt := range ddl {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

func seedRepoJob(t *testing.T, db *gorm.DB, status enums.JobStatus) *models.Job {
	t.Helper()
	job := &models.Job{
		ID:          uuid.New(),
		Title:       "Build a landing page",
		Description: "Static marketing site",
		Category:    enums.JobCategoryWebDev,
		Budget:      decimal.NewFromInt(500),
		Deadline:    time.Now().Add(72 * time.Hour),
		Status:      status,
		ClientID:    uuid.New(),
	}
	require.NoError(t, db.Create(job).Error)
	return job
}

func seedRepoApplication(t *testing.T, db *gorm.DB, jobID uuid.UUID, status enums.ApplicationStatus) *models.Application {
	t.Helper()
	application := &models.Application{
		ID:                uuid.New(),
		JobID:             jobID,
		FreelancerID:      uuid.New(),
		CoverLetter:       "I can do this",
		ProposedBudget:    decimal.NewFromInt(450),
		EstimatedDuration: "1 week",
		Status:            status,
	}
	require.NoError(t, db.Create(application).Error)
	return application
}

func TestRepository_TransitionJobStatusGuard(t *testing.T) {
	db := newJobsRepoDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	job := seedRepoJob(t, db, enums.JobStatusOpen)
	freelancerID := uuid.New()

	ok, err := repo.TransitionJobStatus(ctx, job.ID, enums.JobStatusOpen, enums.JobStatusInProgress,
		map[string]any{"freelancer_id": freelancerID})
	require.NoError(t, err)
	require.True(t, ok)

	// same guard again: job already left open
	ok, err = repo.TransitionJobStatus(ctx, job.ID, enums.JobStatusOpen, enums.JobStatusCancelled, nil)
	require.NoError(t, err)
	require.False(t, ok)

	found, err := repo.FindJob(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, enums.JobStatusInProgress, found.Status)
	require.NotNil(t, found.FreelancerID)
	require.Equal(t, freelancerID, *found.FreelancerID)
}

func TestRepository_ListOpenJobsFiltersStatus(t *testing.T) {
	db := newJobsRepoDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	open := seedRepoJob(t, db, enums.JobStatusOpen)
	seedRepoJob(t, db, enums.JobStatusCancelled)
	seedRepoJob(t, db, enums.JobStatusCompleted)

	jobs, err := repo.ListOpenJobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, open.ID, jobs[0].ID)
}

func TestRepository_DeclinePendingApplicationsSparesWinner(t *testing.T) {
	db := newJobsRepoDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	job := seedRepoJob(t, db, enums.JobStatusOpen)
	winner := seedRepoApplication(t, db, job.ID, enums.ApplicationStatusAccepted)
	loser := seedRepoApplication(t, db, job.ID, enums.ApplicationStatusPending)
	decided := seedRepoApplication(t, db, job.ID, enums.ApplicationStatusDeclined)

	require.NoError(t, repo.DeclinePendingApplications(ctx, job.ID, winner.ID))

	check := func(id uuid.UUID, want enums.ApplicationStatus) {
		application, err := repo.FindApplication(ctx, id)
		require.NoError(t, err)
		require.Equal(t, want, application.Status)
	}
	check(winner.ID, enums.ApplicationStatusAccepted)
	check(loser.ID, enums.ApplicationStatusDeclined)
	check(decided.ID, enums.ApplicationStatusDeclined)
}

func TestRepository_HasApplication(t *testing.T) {
	db := newJobsRepoDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	job := seedRepoJob(t, db, enums.JobStatusOpen)
	application := seedRepoApplication(t, db, job.ID, enums.ApplicationStatusPending)

	has, err := repo.HasApplication(ctx, job.ID, application.FreelancerID)
	require.NoError(t, err)
	require.True(t, has)

	has, err = repo.HasApplication(ctx, job.ID, uuid.New())
	require.NoError(t, err)
	require.False(t, has)
}

func TestRepository_FindHoldPayment(t *testing.T) {
	db := newJobsRepoDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	job := seedRepoJob(t, db, enums.JobStatusInProgress)
	payerID := uuid.New()
	payeeID := uuid.New()

	completed := &models.Payment{
		ID:          uuid.New(),
		JobID:       &job.ID,
		FromUserID:  payerID,
		ToUserID:    &payeeID,
		Amount:      decimal.NewFromInt(100),
		Status:      enums.PaymentStatusCompleted,
		PaymentType: enums.PaymentTypeJobPayment,
		Description: "Payment for job: " + job.Title,
	}
	require.NoError(t, db.Create(completed).Error)

	_, err := repo.FindHoldPayment(ctx, job.ID)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	hold := &models.Payment{
		ID:          uuid.New(),
		JobID:       &job.ID,
		FromUserID:  payerID,
		ToUserID:    &payeeID,
		Amount:      decimal.NewFromInt(250),
		Status:      enums.PaymentStatusOnHold,
		PaymentType: enums.PaymentTypeJobPayment,
		Description: "Payment for job: " + job.Title,
	}
	require.NoError(t, db.Create(hold).Error)

	found, err := repo.FindHoldPayment(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, hold.ID, found.ID)
}

func TestRepository_UpdateApplicationStatusMissingRow(t *testing.T) {
	db := newJobsRepoDB(t)
	repo := NewRepository(db)

	err := repo.UpdateApplicationStatus(context.Background(), uuid.New(), enums.ApplicationStatusAccepted)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
