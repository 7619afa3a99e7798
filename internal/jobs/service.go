package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/maazehsan003/workhub-backend/internal/escrow"
	dbpkg "github.com/maazehsan003/workhub-backend/pkg/db"
	"github.com/maazehsan003/workhub-backend/pkg/db/models"
	"github.com/maazehsan003/workhub-backend/pkg/enums"
	pkgerrors "github.com/maazehsan003/workhub-backend/pkg/errors"
	"github.com/maazehsan003/workhub-backend/pkg/outbox"
	"github.com/maazehsan003/workhub-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// escrowEngine is the slice of the payment engine job workflows compose with.
type escrowEngine interface {
	HoldTx(ctx context.Context, tx *gorm.DB, input escrow.HoldInput) (*models.Payment, error)
	ReleaseTx(ctx context.Context, tx *gorm.DB, input escrow.ReleaseInput) (*models.Payment, error)
	RefundTx(ctx context.Context, tx *gorm.DB, input escrow.RefundInput) (*models.Payment, error)
}

// Service defines the marketplace job workflow. Accepting an application,
// completing a job and cancelling a job each run as one transaction with
// their payment side effects.
type Service interface {
	PostJob(ctx context.Context, input PostJobInput) (*models.Job, error)
	GetJob(ctx context.Context, jobID uuid.UUID) (*models.Job, error)
	ListOpenJobs(ctx context.Context) ([]models.Job, error)
	MyJobs(ctx context.Context, userID uuid.UUID) (*JobBoard, error)
	Apply(ctx context.Context, input ApplyInput) (*models.Application, error)
	ListApplications(ctx context.Context, jobID, actorID uuid.UUID) ([]models.Application, error)
	AcceptApplication(ctx context.Context, input DecisionInput) (*AcceptResult, error)
	DeclineApplication(ctx context.Context, input DecisionInput) error
	CompleteJob(ctx context.Context, input CompleteJobInput) (*models.Job, error)
	CancelJob(ctx context.Context, input CancelJobInput) (*models.Job, error)
}

type service struct {
	repo   Repository
	escrow escrowEngine
	tx     txRunner
	outbox outboxEmitter
}

// PostJobInput captures a new job posting.
type PostJobInput struct {
	Title       string
	Description string
	Category    enums.JobCategory
	Budget      decimal.Decimal
	Deadline    time.Time
	ClientID    uuid.UUID
}

// ApplyInput captures a freelancer's bid on a job.
type ApplyInput struct {
	JobID             uuid.UUID
	FreelancerID      uuid.UUID
	CoverLetter       string
	ProposedBudget    decimal.Decimal
	EstimatedDuration string
}

// DecisionInput identifies the application a client is deciding on.
type DecisionInput struct {
	ApplicationID uuid.UUID
	ActorID       uuid.UUID
}

// CompleteJobInput identifies the job a freelancer is finishing.
type CompleteJobInput struct {
	JobID   uuid.UUID
	ActorID uuid.UUID
}

// CancelJobInput identifies the job a client is cancelling.
type CancelJobInput struct {
	JobID   uuid.UUID
	ActorID uuid.UUID
}

// AcceptResult pairs the assigned job with the escrow payment placed for it.
type AcceptResult struct {
	Job     *models.Job
	Payment *models.Payment
}

// JobBoard groups a user's jobs by their side of the marketplace.
type JobBoard struct {
	Posted   []models.Job
	Assigned []models.Job
}

// NewService builds a jobs service with the required dependencies.
func NewService(repo Repository, engine escrowEngine, tx txRunner, emitter outboxEmitter) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("jobs repository required")
	}
	if engine == nil {
		return nil, fmt.Errorf("escrow engine required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &service{repo: repo, escrow: engine, tx: tx, outbox: emitter}, nil
}

func (s *service) PostJob(ctx context.Context, input PostJobInput) (*models.Job, error) {
	if input.ClientID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.Title == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title required")
	}
	if input.Description == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "description required")
	}
	if !input.Category.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid category %q", input.Category))
	}
	if !input.Budget.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "budget must be greater than 0")
	}
	if input.Deadline.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "deadline required")
	}

	job := &models.Job{
		ID:          uuid.New(),
		Title:       input.Title,
		Description: input.Description,
		Category:    input.Category,
		Budget:      input.Budget,
		Deadline:    input.Deadline,
		Status:      enums.JobStatusOpen,
		ClientID:    input.ClientID,
	}
	if err := s.repo.CreateJob(ctx, job); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create job")
	}
	return job, nil
}

func (s *service) GetJob(ctx context.Context, jobID uuid.UUID) (*models.Job, error) {
	if jobID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "job id required")
	}
	job, err := s.repo.FindJob(ctx, jobID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "job not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load job")
	}
	return job, nil
}

func (s *service) ListOpenJobs(ctx context.Context) ([]models.Job, error) {
	jobs, err := s.repo.ListOpenJobs(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list open jobs")
	}
	return jobs, nil
}

func (s *service) MyJobs(ctx context.Context, userID uuid.UUID) (*JobBoard, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	posted, err := s.repo.ListJobsByClient(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list posted jobs")
	}
	assigned, err := s.repo.ListJobsByFreelancer(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list assigned jobs")
	}
	return &JobBoard{Posted: posted, Assigned: assigned}, nil
}

func (s *service) Apply(ctx context.Context, input ApplyInput) (*models.Application, error) {
	if input.FreelancerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.JobID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "job id required")
	}
	if !input.ProposedBudget.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "proposed budget must be greater than 0")
	}

	job, err := s.GetJob(ctx, input.JobID)
	if err != nil {
		return nil, err
	}
	if job.ClientID == input.FreelancerID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cannot apply to your own job")
	}
	if job.Status != enums.JobStatusOpen {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "job is not open for applications")
	}

	exists, err := s.repo.HasApplication(ctx, input.JobID, input.FreelancerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check application")
	}
	if exists {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "already applied to this job")
	}

	application := &models.Application{
		ID:                uuid.New(),
		JobID:             input.JobID,
		FreelancerID:      input.FreelancerID,
		CoverLetter:       input.CoverLetter,
		ProposedBudget:    input.ProposedBudget,
		EstimatedDuration: input.EstimatedDuration,
		Status:            enums.ApplicationStatusPending,
	}
	if err := s.repo.CreateApplication(ctx, application); err != nil {
		if dbpkg.IsUniqueViolation(err, "ux_applications_job_freelancer") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "already applied to this job")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create application")
	}
	return application, nil
}

func (s *service) ListApplications(ctx context.Context, jobID, actorID uuid.UUID) ([]models.Application, error) {
	if actorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.ClientID != actorID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "job does not belong to user")
	}
	applications, err := s.repo.ListApplicationsByJob(ctx, jobID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list applications")
	}
	return applications, nil
}

// AcceptApplication assigns the freelancer, moves the job in_progress,
// places the proposed budget on hold and declines competing bids, all in
// one unit of work. An insufficient balance rolls everything back.
func (s *service) AcceptApplication(ctx context.Context, input DecisionInput) (*AcceptResult, error) {
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.ApplicationID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "application id required")
	}

	var result *AcceptResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		application, job, err := s.loadDecision(ctx, repo, input)
		if err != nil {
			return err
		}
		if job.Status != enums.JobStatusOpen {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "job is no longer open")
		}

		if err := repo.UpdateApplicationStatus(ctx, application.ID, enums.ApplicationStatusAccepted); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "accept application")
		}

		ok, err := repo.TransitionJobStatus(ctx, job.ID, enums.JobStatusOpen, enums.JobStatusInProgress,
			map[string]any{"freelancer_id": application.FreelancerID})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "assign job")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "job is no longer open")
		}

		payment, err := s.escrow.HoldTx(ctx, tx, escrow.HoldInput{
			JobID:     job.ID,
			JobTitle:  job.Title,
			PayerID:   job.ClientID,
			PayeeID:   application.FreelancerID,
			Amount:    application.ProposedBudget,
			ActorID:   input.ActorID,
			ActorRole: enums.UserRoleClient.String(),
		})
		if err != nil {
			return err
		}

		if err := repo.DeclinePendingApplications(ctx, job.ID, application.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decline competing applications")
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventJobAssigned,
			AggregateType: enums.AggregateJob,
			AggregateID:   job.ID,
			Version:       1,
			Actor:         &outbox.ActorRef{UserID: input.ActorID, Role: enums.UserRoleClient.String()},
			Data: payloads.JobAssignedEvent{
				JobID:         job.ID,
				ApplicationID: application.ID,
				ClientID:      job.ClientID,
				FreelancerID:  application.FreelancerID,
				PaymentID:     payment.ID,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue job_assigned event")
		}

		job.Status = enums.JobStatusInProgress
		job.FreelancerID = &application.FreelancerID
		result = &AcceptResult{Job: job, Payment: payment}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) DeclineApplication(ctx context.Context, input DecisionInput) error {
	if input.ActorID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.ApplicationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "application id required")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		application, job, err := s.loadDecision(ctx, repo, input)
		if err != nil {
			return err
		}

		if err := repo.UpdateApplicationStatus(ctx, application.ID, enums.ApplicationStatusDeclined); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decline application")
		}

		// keyed by the application so declining several bids on one job
		// does not collide on the outbox unique index
		event := outbox.DomainEvent{
			EventType:     enums.EventApplicationDecided,
			AggregateType: enums.AggregateApplication,
			AggregateID:   application.ID,
			Version:       1,
			Actor:         &outbox.ActorRef{UserID: input.ActorID, Role: enums.UserRoleClient.String()},
			Data: payloads.ApplicationDecidedEvent{
				ApplicationID: application.ID,
				JobID:         job.ID,
				FreelancerID:  application.FreelancerID,
				Decision:      enums.ApplicationStatusDeclined.String(),
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue application_decided event")
		}
		return nil
	})
}

// CompleteJob marks the job done and releases the held payment to the
// freelancer. A job accepted before escrow existed simply completes.
func (s *service) CompleteJob(ctx context.Context, input CompleteJobInput) (*models.Job, error) {
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.JobID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "job id required")
	}

	var completed *models.Job
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		job, err := repo.FindJob(ctx, input.JobID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "job not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load job")
		}
		if job.FreelancerID == nil || *job.FreelancerID != input.ActorID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "job is not assigned to user")
		}

		ok, err := repo.TransitionJobStatus(ctx, job.ID, enums.JobStatusInProgress, enums.JobStatusCompleted, nil)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete job")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "job cannot be completed in current state")
		}
		job.Status = enums.JobStatusCompleted

		var paymentID *uuid.UUID
		hold, err := repo.FindHoldPayment(ctx, job.ID)
		if err != nil && err != gorm.ErrRecordNotFound {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load held payment")
		}
		if hold != nil {
			released, err := s.escrow.ReleaseTx(ctx, tx, escrow.ReleaseInput{
				PaymentID: hold.ID,
				ActorID:   input.ActorID,
				ActorRole: enums.UserRoleFreelancer.String(),
			})
			if err != nil {
				return err
			}
			paymentID = &released.ID
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventJobCompleted,
			AggregateType: enums.AggregateJob,
			AggregateID:   job.ID,
			Version:       1,
			Actor:         &outbox.ActorRef{UserID: input.ActorID, Role: enums.UserRoleFreelancer.String()},
			Data: payloads.JobCompletedEvent{
				JobID:        job.ID,
				FreelancerID: input.ActorID,
				PaymentID:    paymentID,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue job_completed event")
		}

		completed = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return completed, nil
}

// CancelJob moves the job to cancelled and refunds any held payment back
// to the client in the same unit of work.
func (s *service) CancelJob(ctx context.Context, input CancelJobInput) (*models.Job, error) {
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.JobID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "job id required")
	}

	var cancelled *models.Job
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		job, err := repo.FindJob(ctx, input.JobID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "job not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load job")
		}
		if job.ClientID != input.ActorID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "job does not belong to user")
		}
		if job.Status != enums.JobStatusOpen && job.Status != enums.JobStatusInProgress {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "job cannot be cancelled in current state")
		}

		ok, err := repo.TransitionJobStatus(ctx, job.ID, job.Status, enums.JobStatusCancelled, nil)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel job")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "job cannot be cancelled in current state")
		}
		job.Status = enums.JobStatusCancelled

		var paymentID *uuid.UUID
		hold, err := repo.FindHoldPayment(ctx, job.ID)
		if err != nil && err != gorm.ErrRecordNotFound {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load held payment")
		}
		if hold != nil {
			refunded, err := s.escrow.RefundTx(ctx, tx, escrow.RefundInput{
				PaymentID: hold.ID,
				ActorID:   input.ActorID,
				ActorRole: enums.UserRoleClient.String(),
			})
			if err != nil {
				return err
			}
			paymentID = &refunded.ID
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventJobCancelled,
			AggregateType: enums.AggregateJob,
			AggregateID:   job.ID,
			Version:       1,
			Actor:         &outbox.ActorRef{UserID: input.ActorID, Role: enums.UserRoleClient.String()},
			Data: payloads.JobCancelledEvent{
				JobID:     job.ID,
				ClientID:  job.ClientID,
				PaymentID: paymentID,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue job_cancelled event")
		}

		cancelled = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

func (s *service) loadDecision(ctx context.Context, repo Repository, input DecisionInput) (*models.Application, *models.Job, error) {
	application, err := repo.FindApplication(ctx, input.ApplicationID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "application not found")
		}
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load application")
	}
	if application.Status != enums.ApplicationStatusPending {
		return nil, nil, pkgerrors.New(pkgerrors.CodeStateConflict, "application already decided")
	}

	job, err := repo.FindJob(ctx, application.JobID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "job not found")
		}
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load job")
	}
	if job.ClientID != input.ActorID {
		return nil, nil, pkgerrors.New(pkgerrors.CodeForbidden, "job does not belong to user")
	}
	return application, job, nil
}
